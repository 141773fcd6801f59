package flywheel

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrInvalidCampaignStatus     = errors.New("flywheel: invalid campaign status")
	ErrCampaignNotFound          = errors.New("flywheel: campaign not found")
	ErrCampaignExists            = errors.New("flywheel: campaign already exists")
	ErrInsufficientCampaignFunds = errors.New("flywheel: insufficient campaign funds")
	ErrZeroPayoutAmount          = errors.New("flywheel: zero payout amount")
	ErrTokenMismatch             = errors.New("flywheel: token mismatch")
	ErrNonexistentPayment        = errors.New("flywheel: nonexistent payment")
	ErrPaymentAlreadyProcessed   = errors.New("flywheel: payment already processed")
	ErrUnauthorized              = errors.New("flywheel: unauthorized")
	ErrZeroAddress               = errors.New("flywheel: zero address")
	ErrUnsupportedOperation      = errors.New("flywheel: unsupported operation")
	ErrInvalidPayload            = errors.New("flywheel: invalid payload")
	ErrUnknownHook               = errors.New("flywheel: unknown hook")
)

// InsufficientAllocationError reports a settlement that exceeded the amount
// reserved under its key. It carries both values so batch callers can
// diagnose which distribution failed.
type InsufficientAllocationError struct {
	Requested *big.Int
	Available *big.Int
}

func (e *InsufficientAllocationError) Error() string {
	return fmt.Sprintf("flywheel: insufficient allocation: requested %s, available %s", e.Requested, e.Available)
}
