package events

import "math/big"

const (
	// TypeCodeRegistered is emitted when a referral code is registered.
	TypeCodeRegistered = "buildercodes.code.registered"
	// TypePayoutAddressUpdated is emitted when a code owner rotates the
	// payout destination.
	TypePayoutAddressUpdated = "buildercodes.payout.updated"
)

// CodeRegistered captures a successful code registration.
type CodeRegistered struct {
	Code      string
	TokenID   *big.Int
	Owner     [20]byte
	Payout    [20]byte
	Registrar [20]byte
}

// EventType implements the Event interface.
func (CodeRegistered) EventType() string { return TypeCodeRegistered }

// PayoutAddressUpdated captures a payout destination rotation.
type PayoutAddressUpdated struct {
	Code   string
	Payout [20]byte
}

// EventType implements the Event interface.
func (PayoutAddressUpdated) EventType() string { return TypePayoutAddressUpdated }
