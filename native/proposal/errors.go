package proposal

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrUnauthorized is returned when the caller is not the participant the
	// transition requires.
	ErrUnauthorized = errors.New("proposal: unauthorized")
	// ErrInvalidReceiver is returned when the proposer addresses themselves.
	ErrInvalidReceiver = errors.New("proposal: the receiver cannot be the proposer")
	// ErrGiftFeeNotPaid is returned when a required gift denomination is
	// underpaid, overpaid, or missing.
	ErrGiftFeeNotPaid = errors.New("proposal: the gift fee was not paid")
	// ErrExtraFundsSent is returned when attached funds include a
	// denomination outside the required set, or exceed the required total.
	ErrExtraFundsSent = errors.New("proposal: additional funds were sent with proposal creation")
	// ErrNotFound is returned when no proposal exists under the given id.
	ErrNotFound = errors.New("proposal: proposal not found")
	// ErrArithmeticOverflow is returned when a checked addition exceeds the
	// amount bounds.
	ErrArithmeticOverflow = errors.New("proposal: amount overflow")
	// ErrArithmeticUnderflow is returned when a checked subtraction would go
	// negative.
	ErrArithmeticUnderflow = errors.New("proposal: amount underflow")

	errNilState  = errors.New("proposal engine: state not configured")
	errNilConfig = errors.New("proposal engine: config not initialised")
)

// InvalidCreationFeeError reports a mismatch between the fee-denomination
// amount attached to a creation request and the amount required.
type InvalidCreationFeeError struct {
	Amount   *big.Int
	Expected *big.Int
}

func (e *InvalidCreationFeeError) Error() string {
	return fmt.Sprintf("proposal: invalid creation fee, expected %s got %s", e.Expected, e.Amount)
}

// CancelInvalidStatusError reports a cancel attempt against a proposal that is
// no longer pending.
type CancelInvalidStatusError struct {
	CurrentStatus Status
}

func (e *CancelInvalidStatusError) Error() string {
	return fmt.Sprintf("proposal: can only cancel a pending proposal, current status %s", e.CurrentStatus)
}

// RespondInvalidStatusError reports an accept or decline attempt against a
// proposal that has already reached a terminal status.
type RespondInvalidStatusError struct {
	CurrentStatus Status
}

func (e *RespondInvalidStatusError) Error() string {
	return fmt.Sprintf("proposal: can only respond to a pending proposal, current status %s", e.CurrentStatus)
}
