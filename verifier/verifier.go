package verifier

import (
	"bufio"
	"context"
	_ "embed"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/themunch/munch"
)

//go:embed disposable_domains.txt
var disposableDomains string

const defaultDNSTimeout = 2500 * time.Millisecond

var emailRegexp = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]{2,}$`)

// Service performs best-effort deliverability checks: format, then
// disposable-domain membership, then a DNS MX lookup bounded by a timeout.
type Service struct {
	timeout    time.Duration
	disposable map[string]struct{}

	// lookupMX is swappable so tests do not hit real DNS.
	lookupMX func(ctx context.Context, domain string) ([]*net.MX, error)
}

// NewService returns a verifier with the disposable-domain set loaded once
// for the lifetime of the process.
func NewService(timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = defaultDNSTimeout
	}

	disposable := make(map[string]struct{})
	scanner := bufio.NewScanner(strings.NewReader(disposableDomains))
	for scanner.Scan() {
		domain := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if domain == "" || strings.HasPrefix(domain, "#") {
			continue
		}
		disposable[domain] = struct{}{}
	}

	return &Service{
		timeout:    timeout,
		disposable: disposable,
		lookupMX: func(ctx context.Context, domain string) ([]*net.MX, error) {
			return net.DefaultResolver.LookupMX(ctx, domain)
		},
	}
}

// Verify checks deliverability of the given email. The first failing check
// wins; DNS errors and timeouts are folded into a no_mx result so that
// verification never fails for a well-formed request.
func (s *Service) Verify(ctx context.Context, email string) munch.Verification {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailRegexp.MatchString(email) {
		return munch.Verification{Result: munch.ResultInvalidFormat}
	}

	domain := domainOf(email)
	if _, ok := s.disposable[domain]; ok {
		return munch.Verification{Result: munch.ResultDisposableDomain, Disposable: true}
	}

	if !s.hasMX(ctx, domain) {
		return munch.Verification{Result: munch.ResultNoMX}
	}

	return munch.Verification{Deliverable: true, Result: munch.ResultMXOK, MX: true}
}

func (s *Service) hasMX(ctx context.Context, domain string) bool {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	records, err := s.lookupMX(ctx, domain)
	if err != nil {
		return false
	}

	return len(records) > 0
}

func domainOf(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return email[at+1:]
}
