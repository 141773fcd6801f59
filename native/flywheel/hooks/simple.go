package hooks

import (
	"math/big"

	"flywheel/native/flywheel"
)

// SimpleRewards is the general-purpose policy: a designated manager pushes
// immediate payouts or reserves amounts per recipient, with a flat basis-point
// fee shaved off each payout in favour of a configured fee recipient.
type SimpleRewards struct {
	st KV
}

// NewSimpleRewards creates the policy backed by the provided hook state.
func NewSimpleRewards(st KV) *SimpleRewards {
	return &SimpleRewards{st: st}
}

// SimpleConfig is the rlp-encoded initialisation payload.
type SimpleConfig struct {
	Owner        [20]byte
	Manager      [20]byte
	FeeRecipient [20]byte
	FeeBps       uint32
	MetadataURI  string
}

// RewardEntry pairs a recipient with an amount inside batch payloads.
type RewardEntry struct {
	Recipient [20]byte
	Amount    *big.Int
}

// RewardBatch is the rlp-encoded payload for send, allocate, deallocate and
// distribute operations.
type RewardBatch struct {
	Entries []RewardEntry
}

// WithdrawPayload optionally redirects a withdrawal; a zero recipient pays
// the owner.
type WithdrawPayload struct {
	Recipient [20]byte
}

// MetadataPayload carries a new metadata URI.
type MetadataPayload struct {
	URI string
}

func (h *SimpleRewards) config(campaign [20]byte) (*SimpleConfig, error) {
	cfg := new(SimpleConfig)
	ok, err := h.st.KVGet(configKey("simple", campaign), cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, flywheel.ErrCampaignNotFound
	}
	return cfg, nil
}

// OnCreateCampaign implements the Hook interface.
func (h *SimpleRewards) OnCreateCampaign(caller, campaign [20]byte, payload []byte) (string, error) {
	cfg := new(SimpleConfig)
	if err := decodePayload(payload, cfg); err != nil {
		return "", err
	}
	if cfg.Owner == ([20]byte{}) || cfg.Manager == ([20]byte{}) {
		return "", flywheel.ErrZeroAddress
	}
	if cfg.FeeBps > bpsDenominator {
		return "", flywheel.ErrInvalidPayload
	}
	if cfg.FeeBps > 0 && cfg.FeeRecipient == ([20]byte{}) {
		return "", flywheel.ErrZeroAddress
	}
	if err := h.st.KVPut(configKey("simple", campaign), cfg); err != nil {
		return "", err
	}
	return cfg.MetadataURI, nil
}

// OnUpdateStatus implements the Hook interface. Transitions are manager- or
// owner-initiated.
func (h *SimpleRewards) OnUpdateStatus(caller, campaign [20]byte, status flywheel.CampaignStatus, payload []byte) error {
	cfg, err := h.config(campaign)
	if err != nil {
		return err
	}
	if caller != cfg.Manager && caller != cfg.Owner {
		return flywheel.ErrUnauthorized
	}
	return nil
}

func (h *SimpleRewards) decodeBatch(campaign [20]byte, caller [20]byte, payload []byte) (*SimpleConfig, []RewardEntry, error) {
	cfg, err := h.config(campaign)
	if err != nil {
		return nil, nil, err
	}
	if caller != cfg.Manager {
		return nil, nil, flywheel.ErrUnauthorized
	}
	batch := new(RewardBatch)
	if err := decodePayload(payload, batch); err != nil {
		return nil, nil, err
	}
	if len(batch.Entries) == 0 {
		return nil, nil, flywheel.ErrInvalidPayload
	}
	for _, entry := range batch.Entries {
		if entry.Recipient == ([20]byte{}) {
			return nil, nil, flywheel.ErrZeroAddress
		}
	}
	return cfg, batch.Entries, nil
}

// OnSend implements the Hook interface: each entry pays the recipient its
// amount minus the basis-point fee, which accumulates for the fee recipient.
func (h *SimpleRewards) OnSend(caller, campaign, token [20]byte, payload []byte) (*flywheel.SendResult, error) {
	cfg, entries, err := h.decodeBatch(campaign, caller, payload)
	if err != nil {
		return nil, err
	}
	payouts := make([]flywheel.Payout, 0, len(entries))
	feeTotal := big.NewInt(0)
	for _, entry := range entries {
		amt := cloneBigInt(entry.Amount)
		if amt.Sign() <= 0 {
			return nil, flywheel.ErrZeroPayoutAmount
		}
		fee := feePortion(amt, cfg.FeeBps)
		payout := new(big.Int).Sub(amt, fee)
		if payout.Sign() <= 0 {
			return nil, flywheel.ErrZeroPayoutAmount
		}
		feeTotal.Add(feeTotal, fee)
		payouts = append(payouts, flywheel.Payout{Recipient: entry.Recipient, Amount: payout})
	}
	result := &flywheel.SendResult{Payouts: payouts}
	if feeTotal.Sign() > 0 {
		result.Fee = &flywheel.Fee{Recipient: cfg.FeeRecipient, Amount: feeTotal}
	}
	return result, nil
}

// OnAllocate implements the Hook interface: reservations are keyed by the
// final recipient.
func (h *SimpleRewards) OnAllocate(caller, campaign, token [20]byte, payload []byte) ([]flywheel.Allocation, *flywheel.Fee, error) {
	_, entries, err := h.decodeBatch(campaign, caller, payload)
	if err != nil {
		return nil, nil, err
	}
	allocations := make([]flywheel.Allocation, 0, len(entries))
	for _, entry := range entries {
		allocations = append(allocations, flywheel.Allocation{Key: RecipientKey(entry.Recipient), Amount: cloneBigInt(entry.Amount)})
	}
	return allocations, nil, nil
}

// OnDeallocate implements the Hook interface.
func (h *SimpleRewards) OnDeallocate(caller, campaign, token [20]byte, payload []byte) ([]flywheel.Allocation, error) {
	_, entries, err := h.decodeBatch(campaign, caller, payload)
	if err != nil {
		return nil, err
	}
	allocations := make([]flywheel.Allocation, 0, len(entries))
	for _, entry := range entries {
		allocations = append(allocations, flywheel.Allocation{Key: RecipientKey(entry.Recipient), Amount: cloneBigInt(entry.Amount)})
	}
	return allocations, nil
}

// OnDistribute implements the Hook interface: distributions settle against
// the recipient-derived allocation keys.
func (h *SimpleRewards) OnDistribute(caller, campaign, token [20]byte, payload []byte) ([]flywheel.Distribution, error) {
	_, entries, err := h.decodeBatch(campaign, caller, payload)
	if err != nil {
		return nil, err
	}
	distributions := make([]flywheel.Distribution, 0, len(entries))
	for _, entry := range entries {
		distributions = append(distributions, flywheel.Distribution{
			Recipient: entry.Recipient,
			Key:       RecipientKey(entry.Recipient),
			Amount:    cloneBigInt(entry.Amount),
		})
	}
	return distributions, nil
}

// OnDistributeFees implements the Hook interface. SimpleRewards has no
// fee-distribution concept.
func (h *SimpleRewards) OnDistributeFees(caller, campaign, token [20]byte, payload []byte) ([]flywheel.Distribution, error) {
	return nil, flywheel.ErrUnsupportedOperation
}

// OnWithdrawFunds implements the Hook interface. Owner tier only.
func (h *SimpleRewards) OnWithdrawFunds(caller, campaign, token [20]byte, amount *big.Int, payload []byte) (*flywheel.Payout, error) {
	cfg, err := h.config(campaign)
	if err != nil {
		return nil, err
	}
	if caller != cfg.Owner {
		return nil, flywheel.ErrUnauthorized
	}
	recipient := cfg.Owner
	if len(payload) > 0 {
		override := new(WithdrawPayload)
		if err := decodePayload(payload, override); err != nil {
			return nil, err
		}
		if override.Recipient != ([20]byte{}) {
			recipient = override.Recipient
		}
	}
	return &flywheel.Payout{Recipient: recipient, Amount: cloneBigInt(amount)}, nil
}

// OnUpdateMetadata implements the Hook interface. Manager tier.
func (h *SimpleRewards) OnUpdateMetadata(caller, campaign [20]byte, payload []byte) (string, error) {
	cfg, err := h.config(campaign)
	if err != nil {
		return "", err
	}
	if caller != cfg.Manager && caller != cfg.Owner {
		return "", flywheel.ErrUnauthorized
	}
	meta := new(MetadataPayload)
	if err := decodePayload(payload, meta); err != nil {
		return "", err
	}
	cfg.MetadataURI = meta.URI
	if err := h.st.KVPut(configKey("simple", campaign), cfg); err != nil {
		return "", err
	}
	return meta.URI, nil
}
