package hooks

import (
	"encoding/hex"
	"math/big"

	"flywheel/native/flywheel"
)

// AdvertisementConversion pays attributed conversions reported by a
// designated attribution provider. Every conversion carries an event
// identifier, used for idempotency, and a log reference proving the on-chain
// action it attributes. The policy is immediate-payout only.
type AdvertisementConversion struct {
	st KV
}

// NewAdvertisementConversion creates the policy backed by the provided hook
// state.
func NewAdvertisementConversion(st KV) *AdvertisementConversion {
	return &AdvertisementConversion{st: st}
}

// ConversionConfig is the rlp-encoded initialisation payload.
type ConversionConfig struct {
	Owner       [20]byte
	Provider    [20]byte
	FeeBps      uint32
	MetadataURI string
}

// Conversion reports a single attributed event.
type Conversion struct {
	EventID   [32]byte
	Recipient [20]byte
	Amount    *big.Int
	// LogRef encodes the on-chain log the conversion is attributed to.
	LogRef []byte
}

// ConversionBatch is the rlp-encoded payload for the send operation.
type ConversionBatch struct {
	Conversions []Conversion
}

func conversionSeenKey(campaign [20]byte, eventID [32]byte) []byte {
	return []byte("hook/conversion/seen/" + hex.EncodeToString(campaign[:]) + "/" + hex.EncodeToString(eventID[:]))
}

func (h *AdvertisementConversion) config(campaign [20]byte) (*ConversionConfig, error) {
	cfg := new(ConversionConfig)
	ok, err := h.st.KVGet(configKey("conversion", campaign), cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, flywheel.ErrCampaignNotFound
	}
	return cfg, nil
}

// OnCreateCampaign implements the Hook interface.
func (h *AdvertisementConversion) OnCreateCampaign(caller, campaign [20]byte, payload []byte) (string, error) {
	cfg := new(ConversionConfig)
	if err := decodePayload(payload, cfg); err != nil {
		return "", err
	}
	if cfg.Owner == ([20]byte{}) || cfg.Provider == ([20]byte{}) {
		return "", flywheel.ErrZeroAddress
	}
	if cfg.FeeBps > bpsDenominator {
		return "", flywheel.ErrInvalidPayload
	}
	if err := h.st.KVPut(configKey("conversion", campaign), cfg); err != nil {
		return "", err
	}
	return cfg.MetadataURI, nil
}

// OnUpdateStatus implements the Hook interface. Activation is reserved for
// the attribution provider; the owner drives every other transition.
func (h *AdvertisementConversion) OnUpdateStatus(caller, campaign [20]byte, status flywheel.CampaignStatus, payload []byte) error {
	cfg, err := h.config(campaign)
	if err != nil {
		return err
	}
	if status == flywheel.StatusActive {
		if caller != cfg.Provider && caller != cfg.Owner {
			return flywheel.ErrUnauthorized
		}
		return nil
	}
	if caller != cfg.Owner {
		return flywheel.ErrUnauthorized
	}
	return nil
}

// OnSend implements the Hook interface: the provider submits attributed
// conversions, each settled immediately with the provider's fee shaved off.
// Replayed event identifiers and conversions without proof material are
// rejected.
func (h *AdvertisementConversion) OnSend(caller, campaign, token [20]byte, payload []byte) (*flywheel.SendResult, error) {
	cfg, err := h.config(campaign)
	if err != nil {
		return nil, err
	}
	if caller != cfg.Provider {
		return nil, flywheel.ErrUnauthorized
	}
	batch := new(ConversionBatch)
	if err := decodePayload(payload, batch); err != nil {
		return nil, err
	}
	if len(batch.Conversions) == 0 {
		return nil, flywheel.ErrInvalidPayload
	}
	payouts := make([]flywheel.Payout, 0, len(batch.Conversions))
	feeTotal := big.NewInt(0)
	for _, conv := range batch.Conversions {
		if len(conv.LogRef) == 0 {
			return nil, flywheel.ErrNonexistentPayment
		}
		if conv.Recipient == ([20]byte{}) {
			return nil, flywheel.ErrZeroAddress
		}
		amt := cloneBigInt(conv.Amount)
		if amt.Sign() <= 0 {
			return nil, flywheel.ErrZeroPayoutAmount
		}
		seenKey := conversionSeenKey(campaign, conv.EventID)
		var seen bool
		if ok, err := h.st.KVGet(seenKey, &seen); err != nil {
			return nil, err
		} else if ok && seen {
			return nil, flywheel.ErrPaymentAlreadyProcessed
		}
		if err := h.st.KVPut(seenKey, true); err != nil {
			return nil, err
		}
		fee := feePortion(amt, cfg.FeeBps)
		payout := new(big.Int).Sub(amt, fee)
		if payout.Sign() <= 0 {
			return nil, flywheel.ErrZeroPayoutAmount
		}
		feeTotal.Add(feeTotal, fee)
		payouts = append(payouts, flywheel.Payout{Recipient: conv.Recipient, Amount: payout, ExtraData: conv.LogRef})
	}
	result := &flywheel.SendResult{Payouts: payouts}
	if feeTotal.Sign() > 0 {
		result.Fee = &flywheel.Fee{Recipient: cfg.Provider, Amount: feeTotal}
	}
	return result, nil
}

// OnAllocate implements the Hook interface. Conversion rewards settle
// immediately; there is no reservation stage.
func (h *AdvertisementConversion) OnAllocate(caller, campaign, token [20]byte, payload []byte) ([]flywheel.Allocation, *flywheel.Fee, error) {
	return nil, nil, flywheel.ErrUnsupportedOperation
}

// OnDeallocate implements the Hook interface.
func (h *AdvertisementConversion) OnDeallocate(caller, campaign, token [20]byte, payload []byte) ([]flywheel.Allocation, error) {
	return nil, flywheel.ErrUnsupportedOperation
}

// OnDistribute implements the Hook interface.
func (h *AdvertisementConversion) OnDistribute(caller, campaign, token [20]byte, payload []byte) ([]flywheel.Distribution, error) {
	return nil, flywheel.ErrUnsupportedOperation
}

// OnDistributeFees implements the Hook interface.
func (h *AdvertisementConversion) OnDistributeFees(caller, campaign, token [20]byte, payload []byte) ([]flywheel.Distribution, error) {
	return nil, flywheel.ErrUnsupportedOperation
}

// OnWithdrawFunds implements the Hook interface. Owner tier only.
func (h *AdvertisementConversion) OnWithdrawFunds(caller, campaign, token [20]byte, amount *big.Int, payload []byte) (*flywheel.Payout, error) {
	cfg, err := h.config(campaign)
	if err != nil {
		return nil, err
	}
	if caller != cfg.Owner {
		return nil, flywheel.ErrUnauthorized
	}
	return &flywheel.Payout{Recipient: cfg.Owner, Amount: cloneBigInt(amount)}, nil
}

// OnUpdateMetadata implements the Hook interface. The variant has no
// metadata-manager role; the owner controls the URI.
func (h *AdvertisementConversion) OnUpdateMetadata(caller, campaign [20]byte, payload []byte) (string, error) {
	cfg, err := h.config(campaign)
	if err != nil {
		return "", err
	}
	if caller != cfg.Owner {
		return "", flywheel.ErrUnauthorized
	}
	meta := new(MetadataPayload)
	if err := decodePayload(payload, meta); err != nil {
		return "", err
	}
	cfg.MetadataURI = meta.URI
	if err := h.st.KVPut(configKey("conversion", campaign), cfg); err != nil {
		return "", err
	}
	return meta.URI, nil
}
