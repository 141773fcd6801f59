package flywheel

import (
	"errors"
	"math/big"
)

var errNilLedgerState = errors.New("flywheel ledger: state not configured")

// ledgerState describes the persistence the token ledger needs from the
// surrounding state implementation. Absent entries read as zero.
type ledgerState interface {
	LedgerBalance(campaign, token [20]byte) (*big.Int, error)
	SetLedgerBalance(campaign, token [20]byte, amount *big.Int) error
	LedgerAllocation(campaign, token [20]byte, key [32]byte) (*big.Int, error)
	SetLedgerAllocation(campaign, token [20]byte, key [32]byte, amount *big.Int) error
	LedgerAllocatedTotal(campaign, token [20]byte) (*big.Int, error)
	SetLedgerAllocatedTotal(campaign, token [20]byte, amount *big.Int) error
	LedgerDistributedTotal(campaign, token [20]byte) (*big.Int, error)
	SetLedgerDistributedTotal(campaign, token [20]byte, amount *big.Int) error
	LedgerFee(campaign, token, recipient [20]byte) (*big.Int, error)
	SetLedgerFee(campaign, token, recipient [20]byte, amount *big.Int) error
	LedgerFeeTotal(campaign, token [20]byte) (*big.Int, error)
	SetLedgerFeeTotal(campaign, token [20]byte, amount *big.Int) error
}

// Ledger tracks, per (campaign, token) pair, how much of the campaign's
// on-hand balance is free, reserved against future distributions, or
// earmarked as fees. Every mutation re-validates sufficiency against the
// balance it is about to commit, so no operation can earmark more than the
// campaign actually holds.
type Ledger struct {
	st ledgerState
}

// NewLedger creates a ledger backed by the provided state.
func NewLedger(st ledgerState) *Ledger {
	return &Ledger{st: st}
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// FreeBalance returns the portion of the on-hand balance that is neither
// reserved nor fee-earmarked.
func (l *Ledger) FreeBalance(campaign, token [20]byte) (*big.Int, error) {
	if l == nil || l.st == nil {
		return nil, errNilLedgerState
	}
	balance, err := l.st.LedgerBalance(campaign, token)
	if err != nil {
		return nil, err
	}
	allocated, err := l.st.LedgerAllocatedTotal(campaign, token)
	if err != nil {
		return nil, err
	}
	fees, err := l.st.LedgerFeeTotal(campaign, token)
	if err != nil {
		return nil, err
	}
	free := cloneBigInt(balance)
	free.Sub(free, allocated)
	free.Sub(free, fees)
	return free, nil
}

// Balance returns the campaign's gross on-hand balance for the token.
func (l *Ledger) Balance(campaign, token [20]byte) (*big.Int, error) {
	if l == nil || l.st == nil {
		return nil, errNilLedgerState
	}
	return l.st.LedgerBalance(campaign, token)
}

// Allocated returns the amount currently reserved under the key.
func (l *Ledger) Allocated(campaign, token [20]byte, key [32]byte) (*big.Int, error) {
	if l == nil || l.st == nil {
		return nil, errNilLedgerState
	}
	return l.st.LedgerAllocation(campaign, token, key)
}

// FeeBalance returns the amount currently earmarked for the recipient.
func (l *Ledger) FeeBalance(campaign, token, recipient [20]byte) (*big.Int, error) {
	if l == nil || l.st == nil {
		return nil, errNilLedgerState
	}
	return l.st.LedgerFee(campaign, token, recipient)
}

// DistributedTotal returns the cumulative amount settled out of allocations.
func (l *Ledger) DistributedTotal(campaign, token [20]byte) (*big.Int, error) {
	if l == nil || l.st == nil {
		return nil, errNilLedgerState
	}
	return l.st.LedgerDistributedTotal(campaign, token)
}

// Credit raises the campaign's on-hand balance, mirroring an incoming
// transfer. Zero amounts are accepted as no-ops; negative amounts are
// rejected.
func (l *Ledger) Credit(campaign, token [20]byte, amount *big.Int) error {
	if l == nil || l.st == nil {
		return errNilLedgerState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() < 0 {
		return ErrInvalidPayload
	}
	if amt.Sign() == 0 {
		return nil
	}
	balance, err := l.st.LedgerBalance(campaign, token)
	if err != nil {
		return err
	}
	return l.st.SetLedgerBalance(campaign, token, new(big.Int).Add(balance, amt))
}

// Reserve raises the allocation for the key, failing when the amount exceeds
// the campaign's free balance.
func (l *Ledger) Reserve(campaign, token [20]byte, key [32]byte, amount *big.Int) error {
	if l == nil || l.st == nil {
		return errNilLedgerState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return ErrZeroPayoutAmount
	}
	free, err := l.FreeBalance(campaign, token)
	if err != nil {
		return err
	}
	if free.Cmp(amt) < 0 {
		return ErrInsufficientCampaignFunds
	}
	allocated, err := l.st.LedgerAllocation(campaign, token, key)
	if err != nil {
		return err
	}
	if err := l.st.SetLedgerAllocation(campaign, token, key, new(big.Int).Add(allocated, amt)); err != nil {
		return err
	}
	total, err := l.st.LedgerAllocatedTotal(campaign, token)
	if err != nil {
		return err
	}
	return l.st.SetLedgerAllocatedTotal(campaign, token, new(big.Int).Add(total, amt))
}

// Release lowers the allocation for the key without paying out.
func (l *Ledger) Release(campaign, token [20]byte, key [32]byte, amount *big.Int) error {
	if l == nil || l.st == nil {
		return errNilLedgerState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return ErrZeroPayoutAmount
	}
	allocated, err := l.st.LedgerAllocation(campaign, token, key)
	if err != nil {
		return err
	}
	if allocated.Cmp(amt) < 0 {
		return &InsufficientAllocationError{Requested: amt, Available: cloneBigInt(allocated)}
	}
	if err := l.st.SetLedgerAllocation(campaign, token, key, new(big.Int).Sub(allocated, amt)); err != nil {
		return err
	}
	total, err := l.st.LedgerAllocatedTotal(campaign, token)
	if err != nil {
		return err
	}
	return l.st.SetLedgerAllocatedTotal(campaign, token, new(big.Int).Sub(total, amt))
}

// Settle converts an allocation into an outgoing transfer: the key's
// allocation and the on-hand balance drop by the amount while the cumulative
// distributed meter rises. The caller performs the actual transfer after all
// bookkeeping has been committed.
func (l *Ledger) Settle(campaign, token [20]byte, key [32]byte, amount *big.Int) error {
	if l == nil || l.st == nil {
		return errNilLedgerState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return ErrZeroPayoutAmount
	}
	allocated, err := l.st.LedgerAllocation(campaign, token, key)
	if err != nil {
		return err
	}
	if allocated.Cmp(amt) < 0 {
		return &InsufficientAllocationError{Requested: amt, Available: cloneBigInt(allocated)}
	}
	if err := l.st.SetLedgerAllocation(campaign, token, key, new(big.Int).Sub(allocated, amt)); err != nil {
		return err
	}
	total, err := l.st.LedgerAllocatedTotal(campaign, token)
	if err != nil {
		return err
	}
	if err := l.st.SetLedgerAllocatedTotal(campaign, token, new(big.Int).Sub(total, amt)); err != nil {
		return err
	}
	balance, err := l.st.LedgerBalance(campaign, token)
	if err != nil {
		return err
	}
	if balance.Cmp(amt) < 0 {
		return ErrInsufficientCampaignFunds
	}
	if err := l.st.SetLedgerBalance(campaign, token, new(big.Int).Sub(balance, amt)); err != nil {
		return err
	}
	distributed, err := l.st.LedgerDistributedTotal(campaign, token)
	if err != nil {
		return err
	}
	return l.st.SetLedgerDistributedTotal(campaign, token, new(big.Int).Add(distributed, amt))
}

// EarmarkFee raises the fee entry for the recipient, subject to the same
// free-balance constraint as Reserve.
func (l *Ledger) EarmarkFee(campaign, token, recipient [20]byte, amount *big.Int) error {
	if l == nil || l.st == nil {
		return errNilLedgerState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return ErrZeroPayoutAmount
	}
	free, err := l.FreeBalance(campaign, token)
	if err != nil {
		return err
	}
	if free.Cmp(amt) < 0 {
		return ErrInsufficientCampaignFunds
	}
	fee, err := l.st.LedgerFee(campaign, token, recipient)
	if err != nil {
		return err
	}
	if err := l.st.SetLedgerFee(campaign, token, recipient, new(big.Int).Add(fee, amt)); err != nil {
		return err
	}
	total, err := l.st.LedgerFeeTotal(campaign, token)
	if err != nil {
		return err
	}
	return l.st.SetLedgerFeeTotal(campaign, token, new(big.Int).Add(total, amt))
}

// CollectFee zeroes the recipient's fee entry, lowers the on-hand balance by
// the collected amount and returns it. Collecting an empty entry yields zero
// rather than an error, so back-to-back collections are safe.
func (l *Ledger) CollectFee(campaign, token, recipient [20]byte) (*big.Int, error) {
	if l == nil || l.st == nil {
		return nil, errNilLedgerState
	}
	fee, err := l.st.LedgerFee(campaign, token, recipient)
	if err != nil {
		return nil, err
	}
	amount := cloneBigInt(fee)
	if amount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if err := l.st.SetLedgerFee(campaign, token, recipient, big.NewInt(0)); err != nil {
		return nil, err
	}
	total, err := l.st.LedgerFeeTotal(campaign, token)
	if err != nil {
		return nil, err
	}
	if err := l.st.SetLedgerFeeTotal(campaign, token, new(big.Int).Sub(total, amount)); err != nil {
		return nil, err
	}
	balance, err := l.st.LedgerBalance(campaign, token)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amount) < 0 {
		return nil, ErrInsufficientCampaignFunds
	}
	if err := l.st.SetLedgerBalance(campaign, token, new(big.Int).Sub(balance, amount)); err != nil {
		return nil, err
	}
	return amount, nil
}

// Debit lowers the on-hand balance outside the allocation and fee systems,
// checked against the free balance. Used for immediate payouts and owner
// withdrawals.
func (l *Ledger) Debit(campaign, token [20]byte, amount *big.Int) error {
	if l == nil || l.st == nil {
		return errNilLedgerState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return ErrZeroPayoutAmount
	}
	free, err := l.FreeBalance(campaign, token)
	if err != nil {
		return err
	}
	if free.Cmp(amt) < 0 {
		return ErrInsufficientCampaignFunds
	}
	balance, err := l.st.LedgerBalance(campaign, token)
	if err != nil {
		return err
	}
	return l.st.SetLedgerBalance(campaign, token, new(big.Int).Sub(balance, amt))
}
