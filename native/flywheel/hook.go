package flywheel

import "math/big"

// Hook is the pluggable policy capability set. Each reward-program variant
// decides, for a given lifecycle event, which payouts, fees and allocations
// result; it never moves tokens itself. Variants that do not implement a
// lifecycle stage return ErrUnsupportedOperation, which is distinct from
// succeeding with zero effect.
//
// The engine is the only caller of these methods. Manager- and owner-tier
// authorization lives inside the hook, since only the hook knows who those
// principals are for its campaigns.
type Hook interface {
	// OnCreateCampaign decodes the initialisation payload, persists any
	// per-campaign configuration keyed by the campaign address and returns
	// the initial metadata URI. Malformed payloads must be rejected.
	OnCreateCampaign(caller, campaign [20]byte, payload []byte) (string, error)

	// OnUpdateStatus validates policy-specific rules for a lifecycle
	// transition. The engine has already applied the state-machine rules.
	OnUpdateStatus(caller, campaign [20]byte, status CampaignStatus, payload []byte) error

	// OnSend resolves an immediate-payout payload into payouts plus an
	// optional fee portion.
	OnSend(caller, campaign, token [20]byte, payload []byte) (*SendResult, error)

	// OnAllocate resolves a reservation payload into allocations plus an
	// optional fee portion.
	OnAllocate(caller, campaign, token [20]byte, payload []byte) ([]Allocation, *Fee, error)

	// OnDeallocate resolves a reversal payload into the allocations to
	// release.
	OnDeallocate(caller, campaign, token [20]byte, payload []byte) ([]Allocation, error)

	// OnDistribute converts prior allocations into payouts.
	OnDistribute(caller, campaign, token [20]byte, payload []byte) ([]Distribution, error)

	// OnDistributeFees converts fee-flavoured allocations into payouts,
	// typically resolving referral codes to payout addresses. Unresolvable
	// codes degrade to an empty result rather than an error.
	OnDistributeFees(caller, campaign, token [20]byte, payload []byte) ([]Distribution, error)

	// OnWithdrawFunds authorizes an owner-tier withdrawal and returns the
	// payout to perform.
	OnWithdrawFunds(caller, campaign, token [20]byte, amount *big.Int, payload []byte) (*Payout, error)

	// OnUpdateMetadata returns the new metadata URI for the campaign.
	OnUpdateMetadata(caller, campaign [20]byte, payload []byte) (string, error)
}
