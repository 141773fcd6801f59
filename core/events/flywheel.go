package events

import "math/big"

const (
	// TypeCampaignCreated is emitted when a campaign is registered with the
	// ledger engine.
	TypeCampaignCreated = "flywheel.campaign.created"
	// TypeCampaignStatusChanged is emitted on every committed lifecycle
	// transition.
	TypeCampaignStatusChanged = "flywheel.campaign.status_changed"
	// TypeCampaignDeposit is emitted when a campaign is funded.
	TypeCampaignDeposit = "flywheel.campaign.deposit"
	// TypeRewardPaid is emitted when an immediate payout batch settles.
	TypeRewardPaid = "flywheel.reward.paid"
	// TypePayoutAllocated is emitted when funds are reserved against a key.
	TypePayoutAllocated = "flywheel.payout.allocated"
	// TypePayoutDeallocated is emitted when a reservation is released.
	TypePayoutDeallocated = "flywheel.payout.deallocated"
	// TypePayoutDistributed is emitted when a reservation converts into an
	// actual transfer.
	TypePayoutDistributed = "flywheel.payout.distributed"
	// TypeFeeAccrued is emitted when a fee portion is earmarked.
	TypeFeeAccrued = "flywheel.fee.accrued"
	// TypeFeesCollected is emitted when a fee recipient pulls their balance.
	TypeFeesCollected = "flywheel.fee.collected"
	// TypeFundsWithdrawn is emitted on an owner withdrawal.
	TypeFundsWithdrawn = "flywheel.funds.withdrawn"
	// TypeMetadataUpdated is emitted when a campaign URI changes.
	TypeMetadataUpdated = "flywheel.metadata.updated"
)

// CampaignCreated captures the identity of a newly registered campaign.
type CampaignCreated struct {
	Campaign    [20]byte
	Hook        [20]byte
	Creator     [20]byte
	Nonce       uint64
	MetadataURI string
}

// EventType implements the Event interface.
func (CampaignCreated) EventType() string { return TypeCampaignCreated }

// CampaignStatusChanged captures a committed lifecycle transition.
type CampaignStatusChanged struct {
	Campaign [20]byte
	Caller   [20]byte
	Previous uint8
	Status   uint8
}

// EventType implements the Event interface.
func (CampaignStatusChanged) EventType() string { return TypeCampaignStatusChanged }

// CampaignDeposit captures an incoming funding transfer.
type CampaignDeposit struct {
	Campaign [20]byte
	Token    [20]byte
	From     [20]byte
	Amount   *big.Int
}

// EventType implements the Event interface.
func (CampaignDeposit) EventType() string { return TypeCampaignDeposit }

// RewardPaid captures the settled totals of an immediate payout batch.
type RewardPaid struct {
	Campaign     [20]byte
	Token        [20]byte
	Caller       [20]byte
	Payouts      uint32
	GrossAmount  *big.Int
	FeeAmount    *big.Int
	FeeRecipient [20]byte
}

// EventType implements the Event interface.
func (RewardPaid) EventType() string { return TypeRewardPaid }

// PayoutAllocated captures a single ledger reservation.
type PayoutAllocated struct {
	Campaign [20]byte
	Token    [20]byte
	Key      [32]byte
	Amount   *big.Int
}

// EventType implements the Event interface.
func (PayoutAllocated) EventType() string { return TypePayoutAllocated }

// PayoutDeallocated captures the release of a prior reservation.
type PayoutDeallocated struct {
	Campaign [20]byte
	Token    [20]byte
	Key      [32]byte
	Amount   *big.Int
}

// EventType implements the Event interface.
func (PayoutDeallocated) EventType() string { return TypePayoutDeallocated }

// PayoutDistributed captures the settlement of a reservation into a transfer.
type PayoutDistributed struct {
	Campaign  [20]byte
	Token     [20]byte
	Key       [32]byte
	Recipient [20]byte
	Amount    *big.Int
}

// EventType implements the Event interface.
func (PayoutDistributed) EventType() string { return TypePayoutDistributed }

// FeeAccrued captures a fee earmark in favour of a recipient.
type FeeAccrued struct {
	Campaign  [20]byte
	Token     [20]byte
	Recipient [20]byte
	Amount    *big.Int
}

// EventType implements the Event interface.
func (FeeAccrued) EventType() string { return TypeFeeAccrued }

// FeesCollected captures a fee recipient pulling their earmarked balance.
type FeesCollected struct {
	Campaign  [20]byte
	Token     [20]byte
	Recipient [20]byte
	Amount    *big.Int
}

// EventType implements the Event interface.
func (FeesCollected) EventType() string { return TypeFeesCollected }

// FundsWithdrawn captures an owner withdrawal outside the allocation system.
type FundsWithdrawn struct {
	Campaign  [20]byte
	Token     [20]byte
	Recipient [20]byte
	Amount    *big.Int
}

// EventType implements the Event interface.
func (FundsWithdrawn) EventType() string { return TypeFundsWithdrawn }

// MetadataUpdated captures a campaign URI change.
type MetadataUpdated struct {
	Campaign    [20]byte
	MetadataURI string
}

// EventType implements the Event interface.
func (MetadataUpdated) EventType() string { return TypeMetadataUpdated }
