package hooks

import (
	"math/big"

	"flywheel/native/buildercodes"
	"flywheel/native/flywheel"
)

// CodeResolver resolves a referral code to its payout destination. The
// buildercodes registry satisfies it.
type CodeResolver interface {
	PayoutAddress(code string) ([20]byte, bool)
}

// BridgeReferralFees accumulates referral fees per code and distributes them
// to the payout address each code resolves to. Codes that fail to resolve
// during fee distribution are skipped rather than blocking the batch, so one
// lapsed registration never holds the remaining fees hostage.
type BridgeReferralFees struct {
	st       KV
	resolver CodeResolver
}

// NewBridgeReferralFees creates the policy backed by the provided hook state
// and code resolver.
func NewBridgeReferralFees(st KV, resolver CodeResolver) *BridgeReferralFees {
	return &BridgeReferralFees{st: st, resolver: resolver}
}

// BridgeConfig is the rlp-encoded initialisation payload.
type BridgeConfig struct {
	Owner       [20]byte
	Manager     [20]byte
	MetadataURI string
}

// CodeEntry pairs a referral code with an amount inside batch payloads.
type CodeEntry struct {
	Code   string
	Amount *big.Int
}

// CodeBatch is the rlp-encoded payload for allocate, deallocate and
// fee-distribution operations.
type CodeBatch struct {
	Entries []CodeEntry
}

func (h *BridgeReferralFees) config(campaign [20]byte) (*BridgeConfig, error) {
	cfg := new(BridgeConfig)
	ok, err := h.st.KVGet(configKey("bridge", campaign), cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, flywheel.ErrCampaignNotFound
	}
	return cfg, nil
}

// OnCreateCampaign implements the Hook interface.
func (h *BridgeReferralFees) OnCreateCampaign(caller, campaign [20]byte, payload []byte) (string, error) {
	cfg := new(BridgeConfig)
	if err := decodePayload(payload, cfg); err != nil {
		return "", err
	}
	if cfg.Owner == ([20]byte{}) || cfg.Manager == ([20]byte{}) {
		return "", flywheel.ErrZeroAddress
	}
	if err := h.st.KVPut(configKey("bridge", campaign), cfg); err != nil {
		return "", err
	}
	return cfg.MetadataURI, nil
}

// OnUpdateStatus implements the Hook interface.
func (h *BridgeReferralFees) OnUpdateStatus(caller, campaign [20]byte, status flywheel.CampaignStatus, payload []byte) error {
	cfg, err := h.config(campaign)
	if err != nil {
		return err
	}
	if caller != cfg.Manager && caller != cfg.Owner {
		return flywheel.ErrUnauthorized
	}
	return nil
}

// OnSend implements the Hook interface. Bridge fees accrue through the
// allocation path; there is no immediate-payout stage.
func (h *BridgeReferralFees) OnSend(caller, campaign, token [20]byte, payload []byte) (*flywheel.SendResult, error) {
	return nil, flywheel.ErrUnsupportedOperation
}

func (h *BridgeReferralFees) decodeBatch(campaign, caller [20]byte, payload []byte) ([]CodeEntry, error) {
	cfg, err := h.config(campaign)
	if err != nil {
		return nil, err
	}
	if caller != cfg.Manager {
		return nil, flywheel.ErrUnauthorized
	}
	batch := new(CodeBatch)
	if err := decodePayload(payload, batch); err != nil {
		return nil, err
	}
	if len(batch.Entries) == 0 {
		return nil, flywheel.ErrInvalidPayload
	}
	return batch.Entries, nil
}

// OnAllocate implements the Hook interface: referral fees are reserved per
// code. The code only needs to be well-formed at accrual time; registration
// is checked at distribution.
func (h *BridgeReferralFees) OnAllocate(caller, campaign, token [20]byte, payload []byte) ([]flywheel.Allocation, *flywheel.Fee, error) {
	entries, err := h.decodeBatch(campaign, caller, payload)
	if err != nil {
		return nil, nil, err
	}
	allocations := make([]flywheel.Allocation, 0, len(entries))
	for _, entry := range entries {
		if !buildercodes.ValidCode(entry.Code) {
			return nil, nil, flywheel.ErrInvalidPayload
		}
		allocations = append(allocations, flywheel.Allocation{Key: CodeKey(entry.Code), Amount: cloneBigInt(entry.Amount)})
	}
	return allocations, nil, nil
}

// OnDeallocate implements the Hook interface.
func (h *BridgeReferralFees) OnDeallocate(caller, campaign, token [20]byte, payload []byte) ([]flywheel.Allocation, error) {
	entries, err := h.decodeBatch(campaign, caller, payload)
	if err != nil {
		return nil, err
	}
	allocations := make([]flywheel.Allocation, 0, len(entries))
	for _, entry := range entries {
		allocations = append(allocations, flywheel.Allocation{Key: CodeKey(entry.Code), Amount: cloneBigInt(entry.Amount)})
	}
	return allocations, nil
}

// OnDistribute implements the Hook interface. The bridge variant distributes
// through the fee path only.
func (h *BridgeReferralFees) OnDistribute(caller, campaign, token [20]byte, payload []byte) ([]flywheel.Distribution, error) {
	return nil, flywheel.ErrUnsupportedOperation
}

// OnDistributeFees implements the Hook interface: each code resolves through
// the registry to its payout address. Invalid or unregistered codes are
// dropped from the result instead of failing the batch.
func (h *BridgeReferralFees) OnDistributeFees(caller, campaign, token [20]byte, payload []byte) ([]flywheel.Distribution, error) {
	entries, err := h.decodeBatch(campaign, caller, payload)
	if err != nil {
		return nil, err
	}
	distributions := make([]flywheel.Distribution, 0, len(entries))
	for _, entry := range entries {
		if h.resolver == nil {
			continue
		}
		payout, ok := h.resolver.PayoutAddress(entry.Code)
		if !ok {
			continue
		}
		distributions = append(distributions, flywheel.Distribution{
			Recipient: payout,
			Key:       CodeKey(entry.Code),
			Amount:    cloneBigInt(entry.Amount),
		})
	}
	return distributions, nil
}

// OnWithdrawFunds implements the Hook interface. Owner tier only.
func (h *BridgeReferralFees) OnWithdrawFunds(caller, campaign, token [20]byte, amount *big.Int, payload []byte) (*flywheel.Payout, error) {
	cfg, err := h.config(campaign)
	if err != nil {
		return nil, err
	}
	if caller != cfg.Owner {
		return nil, flywheel.ErrUnauthorized
	}
	return &flywheel.Payout{Recipient: cfg.Owner, Amount: cloneBigInt(amount)}, nil
}

// OnUpdateMetadata implements the Hook interface. Manager tier.
func (h *BridgeReferralFees) OnUpdateMetadata(caller, campaign [20]byte, payload []byte) (string, error) {
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
	if err := h.st.KVPut(configKey("bridge", campaign), cfg); err != nil {
		return "", err
	}
	return meta.URI, nil
}
