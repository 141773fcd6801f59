package flywheel

import (
	"encoding/binary"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// CampaignStatus represents the lifecycle states of a campaign. The machine
// moves strictly forward except for the INACTIVE<->ACTIVE pair; FINALIZED is
// terminal and reachable only from FINALIZING.
type CampaignStatus uint8

const (
	StatusInactive CampaignStatus = iota
	StatusActive
	StatusFinalizing
	StatusFinalized
)

// Valid reports whether the status value is within the supported range.
func (s CampaignStatus) Valid() bool {
	switch s {
	case StatusInactive, StatusActive, StatusFinalizing, StatusFinalized:
		return true
	default:
		return false
	}
}

func (s CampaignStatus) String() string {
	switch s {
	case StatusInactive:
		return "inactive"
	case StatusActive:
		return "active"
	case StatusFinalizing:
		return "finalizing"
	case StatusFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// canTransition reports whether the state machine permits moving from s to
// next. Same-status transitions are always rejected by the engine before this
// check.
func (s CampaignStatus) canTransition(next CampaignStatus) bool {
	switch s {
	case StatusInactive:
		return next == StatusActive
	case StatusActive:
		return next == StatusInactive || next == StatusFinalizing
	case StatusFinalizing:
		return next == StatusFinalized
	default:
		return false
	}
}

// Campaign captures the identity and runtime status of a single reward
// campaign. The address is derived deterministically from the hook binding,
// a creation nonce and the initialisation payload, so the same inputs always
// produce the same campaign identity.
type Campaign struct {
	Address     [20]byte
	Hook        [20]byte
	Status      CampaignStatus
	MetadataURI string
	CreatedAt   int64
}

// Clone returns a copy the caller may mutate without affecting the stored
// instance.
func (c *Campaign) Clone() *Campaign {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Payout instructs the engine to move funds immediately and unconditionally.
type Payout struct {
	Recipient [20]byte
	Amount    *big.Int
	ExtraData []byte
}

// Allocation instructs the engine to reserve funds against an opaque key for
// a future distribution.
type Allocation struct {
	Key       [32]byte
	Amount    *big.Int
	ExtraData []byte
}

// Distribution instructs the engine to convert a prior allocation, matched by
// key, into an actual payout.
type Distribution struct {
	Recipient [20]byte
	Key       [32]byte
	Amount    *big.Int
	ExtraData []byte
}

// Fee earmarks a portion of a movement for a non-recipient party such as an
// attribution provider.
type Fee struct {
	Recipient [20]byte
	Amount    *big.Int
}

// SendResult is the instruction set a hook returns from OnSend.
type SendResult struct {
	Payouts []Payout
	Fee     *Fee
	// SendFeesNow transfers the fee portion immediately instead of
	// earmarking it for later collection.
	SendFeesNow bool
}

// DeriveCampaignAddress computes the content-addressed campaign identity for
// the given hook binding, nonce and initialisation payload. Identical inputs
// always yield the same address.
func DeriveCampaignAddress(hook [20]byte, nonce uint64, payload []byte) [20]byte {
	var nonceBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], nonce)
	digest := ethcrypto.Keccak256(hook[:], nonceBuf[:], ethcrypto.Keccak256(payload))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}
