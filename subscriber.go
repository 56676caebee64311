package munch

import (
	"context"
	"time"
)

// SubscriberService is the interface that wraps methods related to subscriber storage
type SubscriberService interface {
	FindByEmail(ctx context.Context, email string) (*Subscriber, error)
	UpsertPending(ctx context.Context, sub *Subscriber) (UpsertResult, error)
	ApplyVerification(ctx context.Context, email string, v Verification) (string, error)
}

// Subscriber represents a newsletter signup, keyed uniquely by lowercased email.
type Subscriber struct {
	ID        string        `json:"id" bson:"id" storm:"unique"`
	Email     string        `json:"email" bson:"email" storm:"id"`
	Status    string        `json:"status" bson:"status" storm:"index"`
	Profile   string        `json:"profile,omitempty" bson:"profile,omitempty"`
	UTM       string        `json:"utm,omitempty" bson:"utm,omitempty"`
	Source    string        `json:"source,omitempty" bson:"source,omitempty"`
	Context   *Context      `json:"context,omitempty" bson:"context,omitempty"`
	Verifier  *Verification `json:"verifier,omitempty" bson:"verifier,omitempty"`
	CreatedAt time.Time     `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt" bson:"updatedAt"`
}

// Subscriber status
const (
	StatusPendingVerification = "pending-verification"
	StatusActive              = "active"
	StatusInvalid             = "invalid"
)

// NewSubscriber returns a new subscriber in the pending-verification state.
func NewSubscriber(email string) *Subscriber {
	return &Subscriber{
		Email:  email,
		Status: StatusPendingVerification,
	}
}

// UpsertResult reports whether an upsert inserted a new subscriber or
// converged on an existing one. A duplicate-key race between two first-time
// inserts for the same email resolves to AlreadyExisted, never an error.
type UpsertResult struct {
	Created bool
}

type SubscribeRequest struct {
	Email   string `json:"email"`
	Profile string `json:"profile,omitempty"`
	UTM     string `json:"utm,omitempty"`
	Source  string `json:"source,omitempty"`
}

type VerifyRequest struct {
	Email string `json:"email"`
}

type SubscribeResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type VerifyResponse struct {
	OK       bool          `json:"ok"`
	Status   string        `json:"status"`
	Verifier *Verification `json:"verifier"`
}
