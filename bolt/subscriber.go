package bolt

import (
	"context"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/go-errors/errors"
	uuid "github.com/satori/go.uuid"

	"github.com/themunch/munch"
)

type subscriberService struct {
	db *DB
}

func NewSubscriberService(db *DB) munch.SubscriberService {
	return &subscriberService{
		db: db,
	}
}

// FindByEmail finds a subscriber by email
func (ss *subscriberService) FindByEmail(_ context.Context, email string) (*munch.Subscriber, error) {
	var sub munch.Subscriber
	if err := ss.db.stormDB.One("Email", email, &sub); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return nil, &munch.Error{Code: munch.ErrNotFound, Message: "subscriber not found", Op: "bolt.FindByEmail"}
		}
		return nil, errors.Errorf("failed to find by email %s: %v", email, err)
	}

	return &sub, nil
}

// UpsertPending inserts or refreshes a subscriber in the pending-verification
// state inside a single writable transaction. The first writer's createdAt is
// preserved; a save that races an existing record reports AlreadyExisted.
func (ss *subscriberService) UpsertPending(_ context.Context, sub *munch.Subscriber) (munch.UpsertResult, error) {
	tx, err := ss.db.stormDB.Begin(true)
	if err != nil {
		return munch.UpsertResult{}, errors.Errorf("failed to begin transaction: %v", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()

	var existing munch.Subscriber
	err = tx.One("Email", sub.Email, &existing)
	switch {
	case err == nil:
		existing.Status = munch.StatusPendingVerification
		existing.Profile = sub.Profile
		existing.UTM = sub.UTM
		existing.Source = sub.Source
		existing.Context = sub.Context
		existing.UpdatedAt = now
		if err := tx.Save(&existing); err != nil {
			return munch.UpsertResult{}, errors.Errorf("failed to save: %v", err)
		}
		if err := tx.Commit(); err != nil {
			return munch.UpsertResult{}, errors.Errorf("failed to commit: %v", err)
		}
		return munch.UpsertResult{Created: false}, nil

	case errors.Is(err, storm.ErrNotFound):
		record := *sub
		record.ID = uuid.NewV4().String()
		record.Status = munch.StatusPendingVerification
		record.CreatedAt = now
		record.UpdatedAt = now
		if err := tx.Save(&record); err != nil {
			if errors.Is(err, storm.ErrAlreadyExists) {
				return munch.UpsertResult{Created: false}, nil
			}
			return munch.UpsertResult{}, errors.Errorf("failed to save: %v", err)
		}
		if err := tx.Commit(); err != nil {
			return munch.UpsertResult{}, errors.Errorf("failed to commit: %v", err)
		}
		return munch.UpsertResult{Created: true}, nil

	default:
		return munch.UpsertResult{}, errors.Errorf("failed to find by email %s: %v", sub.Email, err)
	}
}

// ApplyVerification stores the verification outcome and moves the subscriber
// to active or invalid. Re-verification overwrites the previous outcome.
func (ss *subscriberService) ApplyVerification(_ context.Context, email string, v munch.Verification) (string, error) {
	status := munch.StatusInvalid
	if v.Deliverable {
		status = munch.StatusActive
	}

	tx, err := ss.db.stormDB.Begin(true)
	if err != nil {
		return "", errors.Errorf("failed to begin transaction: %v", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var sub munch.Subscriber
	if err := tx.One("Email", email, &sub); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return "", &munch.Error{Code: munch.ErrNotFound, Message: "subscriber not found", Op: "bolt.ApplyVerification"}
		}
		return "", errors.Errorf("failed to find by email %s: %v", email, err)
	}

	sub.Status = status
	sub.Verifier = &v
	sub.UpdatedAt = time.Now().UTC()
	if err := tx.Save(&sub); err != nil {
		return "", errors.Errorf("failed to save: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return "", errors.Errorf("failed to commit: %v", err)
	}

	return status, nil
}
