package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sandbox follows the gateway contract without any network calls, so the
// business logic above it is indistinguishable from the live path. Used in
// non-production environments and tests.
type Sandbox struct {
	secret string

	mu          sync.Mutex
	failRefunds bool
	failCapture bool
}

func NewSandbox(secret string) *Sandbox {
	return &Sandbox{secret: secret}
}

func (s *Sandbox) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (string, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return "", &Error{Op: "create_order", Err: errors.New("amount must be positive")}
	}
	return "order_" + uuid.NewString(), nil
}

func (s *Sandbox) Capture(ctx context.Context, paymentRef string, amount decimal.Decimal) error {
	s.mu.Lock()
	fail := s.failCapture
	s.mu.Unlock()

	if fail {
		return &Error{Op: "capture", Err: errors.New("simulated capture failure")}
	}
	return nil
}

func (s *Sandbox) Refund(ctx context.Context, paymentRef string, amount decimal.Decimal) (string, error) {
	s.mu.Lock()
	fail := s.failRefunds
	s.mu.Unlock()

	if fail {
		return "", &Error{Op: "refund", Err: errors.New("simulated refund failure")}
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return "", &Error{Op: "refund", Err: errors.New("amount must be positive")}
	}
	return "rfnd_" + uuid.NewString(), nil
}

func (s *Sandbox) VerifySignature(payload []byte, signature string) bool {
	return verifyHMAC(s.secret, payload, signature)
}

// Sign produces a valid signature for a payload, for exercising webhook
// verification against the sandbox.
func (s *Sandbox) Sign(payload []byte) string {
	return signHMAC(s.secret, payload)
}

// FailRefunds toggles simulated refund failures.
func (s *Sandbox) FailRefunds(fail bool) {
	s.mu.Lock()
	s.failRefunds = fail
	s.mu.Unlock()
}

// FailCaptures toggles simulated capture failures.
func (s *Sandbox) FailCaptures(fail bool) {
	s.mu.Lock()
	s.failCapture = fail
	s.mu.Unlock()
}
