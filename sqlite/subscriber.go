package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
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
func (ss *subscriberService) FindByEmail(ctx context.Context, email string) (*munch.Subscriber, error) {
	var (
		sub              munch.Subscriber
		contextJSON      sql.NullString
		verificationJSON sql.NullString
	)
	err := ss.db.sqlDB.QueryRowContext(ctx,
		`SELECT id, email, status, profile, utm, source, context, verifier, created_at, updated_at
		FROM subscribers WHERE email = ?`, email).
		Scan(&sub.ID, &sub.Email, &sub.Status, &sub.Profile, &sub.UTM, &sub.Source,
			&contextJSON, &verificationJSON, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &munch.Error{Code: munch.ErrNotFound, Message: "subscriber not found", Op: "sqlite.FindByEmail"}
		}
		return nil, errors.Wrapf(err, "failed to find by email %s", email)
	}

	if contextJSON.Valid && contextJSON.String != "" {
		sub.Context = &munch.Context{}
		if err := json.Unmarshal([]byte(contextJSON.String), sub.Context); err != nil {
			return nil, errors.Wrap(err, "failed to decode context")
		}
	}
	if verificationJSON.Valid && verificationJSON.String != "" {
		sub.Verifier = &munch.Verification{}
		if err := json.Unmarshal([]byte(verificationJSON.String), sub.Verifier); err != nil {
			return nil, errors.Wrap(err, "failed to decode verifier")
		}
	}

	return &sub, nil
}

// UpsertPending inserts or refreshes a subscriber in the pending-verification
// state inside a single transaction. ON CONFLICT keeps the first writer's id
// and created_at; everything else is overwritten on every call.
func (ss *subscriberService) UpsertPending(ctx context.Context, sub *munch.Subscriber) (munch.UpsertResult, error) {
	var contextJSON sql.NullString
	if sub.Context != nil {
		b, err := json.Marshal(sub.Context)
		if err != nil {
			return munch.UpsertResult{}, errors.Wrap(err, "failed to encode context")
		}
		contextJSON = sql.NullString{String: string(b), Valid: true}
	}

	tx, err := ss.db.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return munch.UpsertResult{}, errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscribers WHERE email = ?`, sub.Email).Scan(&n); err != nil {
		return munch.UpsertResult{}, errors.Wrap(err, "failed to count")
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO subscribers (id, email, status, profile, utm, source, context, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET
			status = excluded.status,
			profile = excluded.profile,
			utm = excluded.utm,
			source = excluded.source,
			context = excluded.context,
			updated_at = excluded.updated_at`,
		uuid.NewV4().String(), sub.Email, munch.StatusPendingVerification,
		sub.Profile, sub.UTM, sub.Source, contextJSON, now, now)
	if err != nil {
		return munch.UpsertResult{}, errors.Wrap(err, "failed to upsert")
	}

	if err := tx.Commit(); err != nil {
		return munch.UpsertResult{}, errors.Wrap(err, "failed to commit")
	}

	return munch.UpsertResult{Created: n == 0}, nil
}

// ApplyVerification stores the verification outcome and moves the subscriber
// to active or invalid. Re-verification overwrites the previous outcome.
func (ss *subscriberService) ApplyVerification(ctx context.Context, email string, v munch.Verification) (string, error) {
	status := munch.StatusInvalid
	if v.Deliverable {
		status = munch.StatusActive
	}

	b, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode verifier")
	}

	tx, err := ss.db.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE subscribers SET status = ?, verifier = ?, updated_at = ? WHERE email = ?`,
		status, string(b), time.Now().UTC(), email)
	if err != nil {
		return "", errors.Wrap(err, "failed to apply verification")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return "", errors.Wrap(err, "failed to read rows affected")
	}
	if rows == 0 {
		return "", &munch.Error{Code: munch.ErrNotFound, Message: "subscriber not found", Op: "sqlite.ApplyVerification"}
	}

	if err := tx.Commit(); err != nil {
		return "", errors.Wrap(err, "failed to commit")
	}

	return status, nil
}
