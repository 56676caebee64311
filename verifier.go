package munch

import "context"

// VerifierService is the interface that wraps the deliverability check.
//
// Verify never returns an error for a well-formed request: DNS failures and
// timeouts collapse into a non-deliverable result instead.
type VerifierService interface {
	Verify(ctx context.Context, email string) Verification
}

// Verification is the outcome of the last deliverability check for an email.
type Verification struct {
	Deliverable bool   `json:"deliverable" bson:"deliverable"`
	Result      string `json:"result" bson:"result"`
	MX          bool   `json:"mx" bson:"mx"`
	Disposable  bool   `json:"disposable" bson:"disposable"`
}

// Verification results, in short-circuit order: the first failing check wins.
const (
	ResultInvalidFormat    = "invalid_format"
	ResultDisposableDomain = "disposable_domain"
	ResultNoMX             = "no_mx"
	ResultMXOK             = "mx_ok"
)
