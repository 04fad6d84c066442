package discount

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrRuleNotFound is returned by a RuleRepository when no rule carries
	// the requested code in the store.
	ErrRuleNotFound = errors.New("discount rule not found")
	// ErrInvalidCoupon marks a result whose explicitly supplied coupon code
	// failed validation.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrInvariantViolation is the root of every caller-bug error: a context
	// whose subtotal does not add up, or a contradictory rule.
	ErrInvariantViolation = errors.New("discount invariant violation")
)

// InvariantError describes a violated invariant.
type InvariantError struct {
	Detail string
}

func (e *InvariantError) Error() string {
	return "discount invariant violation: " + e.Detail
}

// Unwrap lets errors.Is match ErrInvariantViolation.
func (e *InvariantError) Unwrap() error {
	return ErrInvariantViolation
}

func invariantf(format string, args ...any) error {
	return &InvariantError{Detail: fmt.Sprintf(format, args...)}
}
