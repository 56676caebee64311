package mongo

import (
	"context"
	"time"

	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodrv "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

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
	var sub munch.Subscriber
	err := ss.db.subscribers().FindOne(ctx, bson.M{"email": email}).Decode(&sub)
	if err != nil {
		if errors.Is(err, mongodrv.ErrNoDocuments) {
			return nil, &munch.Error{Code: munch.ErrNotFound, Message: "subscriber not found", Op: "mongo.FindByEmail"}
		}
		return nil, errors.Wrapf(err, "failed to find by email %s", email)
	}

	return &sub, nil
}

// UpsertPending inserts or refreshes a subscriber in the pending-verification
// state. createdAt is written only on first insert; everything else is
// overwritten on every call. Two concurrent first-time inserts for the same
// email converge on a single document: the losing writer's duplicate-key
// error is recovered as AlreadyExisted, not surfaced.
func (ss *subscriberService) UpsertPending(ctx context.Context, sub *munch.Subscriber) (munch.UpsertResult, error) {
	var result munch.UpsertResult

	err := ss.db.withTxn(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()

		update := bson.M{
			"$setOnInsert": bson.M{
				"id":        uuid.NewV4().String(),
				"email":     sub.Email,
				"createdAt": now,
			},
			"$set": bson.M{
				"status":    munch.StatusPendingVerification,
				"profile":   sub.Profile,
				"utm":       sub.UTM,
				"source":    sub.Source,
				"context":   sub.Context,
				"updatedAt": now,
			},
		}

		res, err := ss.db.subscribers().UpdateOne(ctx, bson.M{"email": sub.Email}, update,
			options.UpdateOne().SetUpsert(true))
		if err != nil {
			if mongodrv.IsDuplicateKeyError(err) {
				result = munch.UpsertResult{Created: false}
				return nil
			}
			return errors.Wrap(err, "failed to upsert subscriber")
		}

		result = munch.UpsertResult{Created: res.UpsertedCount > 0}
		return nil
	})
	if err != nil {
		return munch.UpsertResult{}, err
	}

	return result, nil
}

// ApplyVerification stores the verification outcome and moves the subscriber
// to active or invalid. Re-running verification overwrites the previous
// outcome, so a subscriber can flip between active and invalid over time.
func (ss *subscriberService) ApplyVerification(ctx context.Context, email string, v munch.Verification) (string, error) {
	status := munch.StatusInvalid
	if v.Deliverable {
		status = munch.StatusActive
	}

	err := ss.db.withTxn(ctx, func(ctx context.Context) error {
		res, err := ss.db.subscribers().UpdateOne(ctx, bson.M{"email": email}, bson.M{
			"$set": bson.M{
				"status":    status,
				"verifier":  v,
				"updatedAt": time.Now().UTC(),
			},
		})
		if err != nil {
			return errors.Wrap(err, "failed to apply verification")
		}
		if res.MatchedCount == 0 {
			return &munch.Error{Code: munch.ErrNotFound, Message: "subscriber not found", Op: "mongo.ApplyVerification"}
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	return status, nil
}
