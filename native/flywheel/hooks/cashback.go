package hooks

import (
	"math/big"

	"flywheel/native/flywheel"
)

// CashbackRewards pays customers a basis-point share of each reported
// purchase, optionally capped per transaction. It is an immediate-payout-only
// policy: allocation and distribution stages are unsupported.
type CashbackRewards struct {
	st KV
}

// NewCashbackRewards creates the policy backed by the provided hook state.
func NewCashbackRewards(st KV) *CashbackRewards {
	return &CashbackRewards{st: st}
}

// CashbackConfig is the rlp-encoded initialisation payload.
type CashbackConfig struct {
	Owner        [20]byte
	Manager      [20]byte
	FeeRecipient [20]byte
	RateBps      uint32
	FeeBps       uint32
	CapPerTx     *big.Int
	MetadataURI  string
}

// Purchase reports a customer spend inside a send payload.
type Purchase struct {
	Customer [20]byte
	Spend    *big.Int
}

// PurchaseBatch is the rlp-encoded payload for the send operation.
type PurchaseBatch struct {
	Purchases []Purchase
}

func (h *CashbackRewards) config(campaign [20]byte) (*CashbackConfig, error) {
	cfg := new(CashbackConfig)
	ok, err := h.st.KVGet(configKey("cashback", campaign), cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, flywheel.ErrCampaignNotFound
	}
	return cfg, nil
}

// OnCreateCampaign implements the Hook interface.
func (h *CashbackRewards) OnCreateCampaign(caller, campaign [20]byte, payload []byte) (string, error) {
	cfg := new(CashbackConfig)
	if err := decodePayload(payload, cfg); err != nil {
		return "", err
	}
	if cfg.Owner == ([20]byte{}) || cfg.Manager == ([20]byte{}) {
		return "", flywheel.ErrZeroAddress
	}
	if cfg.RateBps == 0 || cfg.RateBps > bpsDenominator || cfg.FeeBps > bpsDenominator {
		return "", flywheel.ErrInvalidPayload
	}
	if cfg.FeeBps > 0 && cfg.FeeRecipient == ([20]byte{}) {
		return "", flywheel.ErrZeroAddress
	}
	if cfg.CapPerTx != nil && cfg.CapPerTx.Sign() < 0 {
		return "", flywheel.ErrInvalidPayload
	}
	if err := h.st.KVPut(configKey("cashback", campaign), cfg); err != nil {
		return "", err
	}
	return cfg.MetadataURI, nil
}

// OnUpdateStatus implements the Hook interface.
func (h *CashbackRewards) OnUpdateStatus(caller, campaign [20]byte, status flywheel.CampaignStatus, payload []byte) error {
	cfg, err := h.config(campaign)
	if err != nil {
		return err
	}
	if caller != cfg.Manager && caller != cfg.Owner {
		return flywheel.ErrUnauthorized
	}
	return nil
}

// OnSend implements the Hook interface: each purchase yields
// spend*rate/10_000 cashback, capped per transaction, with the fee portion
// shaved off in favour of the fee recipient.
func (h *CashbackRewards) OnSend(caller, campaign, token [20]byte, payload []byte) (*flywheel.SendResult, error) {
	cfg, err := h.config(campaign)
	if err != nil {
		return nil, err
	}
	if caller != cfg.Manager {
		return nil, flywheel.ErrUnauthorized
	}
	batch := new(PurchaseBatch)
	if err := decodePayload(payload, batch); err != nil {
		return nil, err
	}
	if len(batch.Purchases) == 0 {
		return nil, flywheel.ErrInvalidPayload
	}
	payouts := make([]flywheel.Payout, 0, len(batch.Purchases))
	feeTotal := big.NewInt(0)
	for _, purchase := range batch.Purchases {
		if purchase.Customer == ([20]byte{}) {
			return nil, flywheel.ErrZeroAddress
		}
		spend := cloneBigInt(purchase.Spend)
		if spend.Sign() <= 0 {
			return nil, flywheel.ErrZeroPayoutAmount
		}
		cashback := feePortion(spend, cfg.RateBps)
		if cfg.CapPerTx != nil && cfg.CapPerTx.Sign() > 0 && cashback.Cmp(cfg.CapPerTx) > 0 {
			cashback = cloneBigInt(cfg.CapPerTx)
		}
		if cashback.Sign() == 0 {
			continue
		}
		fee := feePortion(cashback, cfg.FeeBps)
		payout := new(big.Int).Sub(cashback, fee)
		if payout.Sign() <= 0 {
			continue
		}
		feeTotal.Add(feeTotal, fee)
		payouts = append(payouts, flywheel.Payout{Recipient: purchase.Customer, Amount: payout})
	}
	result := &flywheel.SendResult{Payouts: payouts}
	if feeTotal.Sign() > 0 {
		result.Fee = &flywheel.Fee{Recipient: cfg.FeeRecipient, Amount: feeTotal}
	}
	return result, nil
}

// OnAllocate implements the Hook interface. Cashback pays immediately only.
func (h *CashbackRewards) OnAllocate(caller, campaign, token [20]byte, payload []byte) ([]flywheel.Allocation, *flywheel.Fee, error) {
	return nil, nil, flywheel.ErrUnsupportedOperation
}

// OnDeallocate implements the Hook interface.
func (h *CashbackRewards) OnDeallocate(caller, campaign, token [20]byte, payload []byte) ([]flywheel.Allocation, error) {
	return nil, flywheel.ErrUnsupportedOperation
}

// OnDistribute implements the Hook interface.
func (h *CashbackRewards) OnDistribute(caller, campaign, token [20]byte, payload []byte) ([]flywheel.Distribution, error) {
	return nil, flywheel.ErrUnsupportedOperation
}

// OnDistributeFees implements the Hook interface.
func (h *CashbackRewards) OnDistributeFees(caller, campaign, token [20]byte, payload []byte) ([]flywheel.Distribution, error) {
	return nil, flywheel.ErrUnsupportedOperation
}

// OnWithdrawFunds implements the Hook interface. Owner tier only.
func (h *CashbackRewards) OnWithdrawFunds(caller, campaign, token [20]byte, amount *big.Int, payload []byte) (*flywheel.Payout, error) {
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
func (h *CashbackRewards) OnUpdateMetadata(caller, campaign [20]byte, payload []byte) (string, error) {
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
	if err := h.st.KVPut(configKey("cashback", campaign), cfg); err != nil {
		return "", err
	}
	return meta.URI, nil
}
