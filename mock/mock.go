package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/themunch/munch"
)

type SubscriberService struct {
	mock.Mock
}

func (m *SubscriberService) FindByEmail(ctx context.Context, email string) (*munch.Subscriber, error) {
	args := m.Called(ctx, email)
	sub, _ := args.Get(0).(*munch.Subscriber)
	return sub, args.Error(1)
}

func (m *SubscriberService) UpsertPending(ctx context.Context, sub *munch.Subscriber) (munch.UpsertResult, error) {
	args := m.Called(ctx, sub)
	result, _ := args.Get(0).(munch.UpsertResult)
	return result, args.Error(1)
}

func (m *SubscriberService) ApplyVerification(ctx context.Context, email string, v munch.Verification) (string, error) {
	args := m.Called(ctx, email, v)
	return args.String(0), args.Error(1)
}

type VerifierService struct {
	mock.Mock
}

func (m *VerifierService) Verify(ctx context.Context, email string) munch.Verification {
	args := m.Called(ctx, email)
	v, _ := args.Get(0).(munch.Verification)
	return v
}

type RateLimitService struct {
	mock.Mock
}

func (m *RateLimitService) Allow(ctx context.Context, identifier string, limit munch.RateLimit) (*munch.RateLimitResult, error) {
	args := m.Called(ctx, identifier, limit)
	res, _ := args.Get(0).(*munch.RateLimitResult)
	return res, args.Error(1)
}
