package flywheel

import (
	"errors"
	"math/big"
	"time"

	"flywheel/core/events"
	nativecommon "flywheel/native/common"
)

const moduleName = "flywheel"

var (
	errNilState = errors.New("flywheel engine: state not configured")
	errNilBank  = errors.New("flywheel engine: bank not configured")
)

// engineState describes the campaign persistence the engine needs from the
// surrounding state implementation.
type engineState interface {
	ledgerState
	CampaignPut(c *Campaign) error
	CampaignGet(addr [20]byte) (*Campaign, bool, error)
}

// transactionalState is implemented by state backends that can stage writes
// in memory and either commit or drop them as a unit.
type transactionalState interface {
	Begin()
	Commit() error
	Discard()
}

// Bank moves token balances between principals. The engine is the only
// component that invokes transfers for campaign funds.
type Bank interface {
	Transfer(token, from, to [20]byte, amount *big.Int) error
	BalanceOf(token, addr [20]byte) (*big.Int, error)
}

// transfer is an outgoing movement queued during an operation and flushed
// only after every ledger mutation has been committed, keeping the
// effects-before-interactions ordering.
type transfer struct {
	token  [20]byte
	from   [20]byte
	to     [20]byte
	amount *big.Int
}

// Engine orchestrates the campaign lifecycle: it validates status and
// authorization, dispatches lifecycle events to the campaign's bound hook,
// applies the returned instructions to the token ledger and performs the
// actual transfers.
type Engine struct {
	state   engineState
	ledger  *Ledger
	bank    Bank
	emitter events.Emitter
	pauses  nativecommon.PauseView
	hooks   map[[20]byte]Hook
	nowFn   func() int64
}

// NewEngine creates an engine with a no-op emitter. Callers wire state, bank
// and hooks before use.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		hooks:   make(map[[20]byte]Hook),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine and its ledger.
func (e *Engine) SetState(st engineState) {
	e.state = st
	e.ledger = NewLedger(st)
}

// SetBank configures the token transfer backend.
func (e *Engine) SetBank(b Bank) { e.bank = b }

// SetPauses configures the module pause view.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// RegisterHook binds a hook policy implementation to its address. Campaigns
// reference hooks by address at creation and the binding is immutable
// afterwards.
func (e *Engine) RegisterHook(addr [20]byte, hook Hook) {
	if hook == nil {
		delete(e.hooks, addr)
		return
	}
	e.hooks[addr] = hook
}

// Ledger exposes read access to the token ledger.
func (e *Engine) Ledger() *Ledger { return e.ledger }

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(event)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil || e.ledger == nil {
		return errNilState
	}
	if e.bank == nil {
		return errNilBank
	}
	return nativecommon.Guard(e.pauses, moduleName)
}

func (e *Engine) loadCampaign(addr [20]byte) (*Campaign, error) {
	campaign, ok, err := e.state.CampaignGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCampaignNotFound
	}
	return campaign, nil
}

func (e *Engine) hookFor(campaign *Campaign) (Hook, error) {
	hook, ok := e.hooks[campaign.Hook]
	if !ok {
		return nil, ErrUnknownHook
	}
	return hook, nil
}

func (e *Engine) flush(transfers []transfer) error {
	for _, t := range transfers {
		if err := e.bank.Transfer(t.token, t.from, t.to, t.amount); err != nil {
			return err
		}
	}
	return nil
}

// withTx runs fn inside a state transaction when the backend supports
// staging, so an operation that fails partway through a batch leaves no
// writes behind. Hook state shares the same backend, so its writes revert
// with the ledger's.
func (e *Engine) withTx(fn func() error) error {
	tx, ok := e.state.(transactionalState)
	if !ok {
		return fn()
	}
	tx.Begin()
	if err := fn(); err != nil {
		tx.Discard()
		return err
	}
	return tx.Commit()
}

// CampaignAddress predicts the identity CreateCampaign will assign for the
// given inputs. It is a pure function of its arguments.
func (e *Engine) CampaignAddress(hook [20]byte, nonce uint64, payload []byte) [20]byte {
	return DeriveCampaignAddress(hook, nonce, payload)
}

// CreateCampaign derives the content-addressed campaign identity, dispatches
// the initialisation payload to the hook and persists the campaign in the
// INACTIVE state.
func (e *Engine) CreateCampaign(caller, hookAddr [20]byte, nonce uint64, payload []byte) ([20]byte, error) {
	var zero [20]byte
	if err := e.ready(); err != nil {
		return zero, err
	}
	var addr [20]byte
	err := e.withTx(func() error {
		var err error
		addr, err = e.createCampaign(caller, hookAddr, nonce, payload)
		return err
	})
	if err != nil {
		return zero, err
	}
	return addr, nil
}

func (e *Engine) createCampaign(caller, hookAddr [20]byte, nonce uint64, payload []byte) ([20]byte, error) {
	var zero [20]byte
	hook, ok := e.hooks[hookAddr]
	if !ok {
		return zero, ErrUnknownHook
	}
	addr := DeriveCampaignAddress(hookAddr, nonce, payload)
	if _, exists, err := e.state.CampaignGet(addr); err != nil {
		return zero, err
	} else if exists {
		return zero, ErrCampaignExists
	}
	uri, err := hook.OnCreateCampaign(caller, addr, payload)
	if err != nil {
		return zero, err
	}
	campaign := &Campaign{
		Address:     addr,
		Hook:        hookAddr,
		Status:      StatusInactive,
		MetadataURI: uri,
		CreatedAt:   e.nowFn(),
	}
	if err := e.state.CampaignPut(campaign); err != nil {
		return zero, err
	}
	e.emit(events.CampaignCreated{Campaign: addr, Hook: hookAddr, Creator: caller, Nonce: nonce, MetadataURI: uri})
	return addr, nil
}

// GetCampaign returns a copy of the stored campaign.
func (e *Engine) GetCampaign(addr [20]byte) (*Campaign, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	campaign, err := e.loadCampaign(addr)
	if err != nil {
		return nil, err
	}
	return campaign.Clone(), nil
}

// UpdateStatus moves the campaign through its lifecycle state machine. Same-
// status transitions and any transition out of FINALIZED are rejected.
func (e *Engine) UpdateStatus(caller, campaignAddr [20]byte, status CampaignStatus, payload []byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.withTx(func() error {
		return e.updateStatus(caller, campaignAddr, status, payload)
	})
}

func (e *Engine) updateStatus(caller, campaignAddr [20]byte, status CampaignStatus, payload []byte) error {
	campaign, err := e.loadCampaign(campaignAddr)
	if err != nil {
		return err
	}
	if !status.Valid() || status == campaign.Status || !campaign.Status.canTransition(status) {
		return ErrInvalidCampaignStatus
	}
	hook, err := e.hookFor(campaign)
	if err != nil {
		return err
	}
	if err := hook.OnUpdateStatus(caller, campaignAddr, status, payload); err != nil {
		return err
	}
	previous := campaign.Status
	campaign.Status = status
	if err := e.state.CampaignPut(campaign); err != nil {
		return err
	}
	e.emit(events.CampaignStatusChanged{Campaign: campaignAddr, Caller: caller, Previous: uint8(previous), Status: uint8(status)})
	return nil
}

// Deposit funds the campaign: the amount moves from the caller to the
// campaign address and the ledger records the credit. Zero amounts are
// accepted as no-ops.
func (e *Engine) Deposit(caller, campaignAddr, token [20]byte, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.withTx(func() error {
		return e.deposit(caller, campaignAddr, token, amount)
	})
}

func (e *Engine) deposit(caller, campaignAddr, token [20]byte, amount *big.Int) error {
	campaign, err := e.loadCampaign(campaignAddr)
	if err != nil {
		return err
	}
	if campaign.Status == StatusFinalized {
		return ErrInvalidCampaignStatus
	}
	amt := cloneBigInt(amount)
	if amt.Sign() < 0 {
		return ErrInvalidPayload
	}
	if amt.Sign() == 0 {
		return nil
	}
	// The bank transfer goes first: a failed funding attempt must never
	// leave a credit the campaign cannot back.
	if err := e.bank.Transfer(token, caller, campaignAddr, amt); err != nil {
		return err
	}
	if err := e.ledger.Credit(campaignAddr, token, amt); err != nil {
		return err
	}
	e.emit(events.CampaignDeposit{Campaign: campaignAddr, Token: token, From: caller, Amount: amt})
	return nil
}

// Reward is the immediate-payout entrypoint: the hook resolves the payload
// into payouts plus an optional fee. Payouts are debited from the free
// balance and transferred; the fee portion is earmarked for later collection
// unless the hook requested immediate settlement.
func (e *Engine) Reward(caller, campaignAddr, token [20]byte, payload []byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.withTx(func() error {
		return e.reward(caller, campaignAddr, token, payload)
	})
}

func (e *Engine) reward(caller, campaignAddr, token [20]byte, payload []byte) error {
	campaign, err := e.loadCampaign(campaignAddr)
	if err != nil {
		return err
	}
	if campaign.Status != StatusActive {
		return ErrInvalidCampaignStatus
	}
	hook, err := e.hookFor(campaign)
	if err != nil {
		return err
	}
	result, err := hook.OnSend(caller, campaignAddr, token, payload)
	if err != nil {
		return err
	}
	if result == nil || len(result.Payouts) == 0 {
		return ErrZeroPayoutAmount
	}
	transfers := make([]transfer, 0, len(result.Payouts)+1)
	gross := big.NewInt(0)
	for _, payout := range result.Payouts {
		amt := cloneBigInt(payout.Amount)
		if amt.Sign() <= 0 {
			return ErrZeroPayoutAmount
		}
		if err := e.ledger.Debit(campaignAddr, token, amt); err != nil {
			return err
		}
		gross.Add(gross, amt)
		transfers = append(transfers, transfer{token: token, from: campaignAddr, to: payout.Recipient, amount: amt})
	}
	feeAmount := big.NewInt(0)
	var feeRecipient [20]byte
	if result.Fee != nil && result.Fee.Amount != nil && result.Fee.Amount.Sign() > 0 {
		feeAmount = cloneBigInt(result.Fee.Amount)
		feeRecipient = result.Fee.Recipient
		gross.Add(gross, feeAmount)
		if result.SendFeesNow {
			if err := e.ledger.Debit(campaignAddr, token, feeAmount); err != nil {
				return err
			}
			transfers = append(transfers, transfer{token: token, from: campaignAddr, to: feeRecipient, amount: feeAmount})
		} else {
			if err := e.ledger.EarmarkFee(campaignAddr, token, feeRecipient, feeAmount); err != nil {
				return err
			}
			e.emit(events.FeeAccrued{Campaign: campaignAddr, Token: token, Recipient: feeRecipient, Amount: feeAmount})
		}
	}
	if err := e.flush(transfers); err != nil {
		return err
	}
	e.emit(events.RewardPaid{
		Campaign:     campaignAddr,
		Token:        token,
		Caller:       caller,
		Payouts:      uint32(len(result.Payouts)),
		GrossAmount:  gross,
		FeeAmount:    feeAmount,
		FeeRecipient: feeRecipient,
	})
	return nil
}

// Allocate reserves funds for future distribution according to the hook's
// returned allocations. The whole batch applies or none of it does.
func (e *Engine) Allocate(caller, campaignAddr, token [20]byte, payload []byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.withTx(func() error {
		return e.allocate(caller, campaignAddr, token, payload)
	})
}

func (e *Engine) allocate(caller, campaignAddr, token [20]byte, payload []byte) error {
	campaign, err := e.loadCampaign(campaignAddr)
	if err != nil {
		return err
	}
	if campaign.Status != StatusActive {
		return ErrInvalidCampaignStatus
	}
	hook, err := e.hookFor(campaign)
	if err != nil {
		return err
	}
	allocations, fee, err := hook.OnAllocate(caller, campaignAddr, token, payload)
	if err != nil {
		return err
	}
	if len(allocations) == 0 {
		return ErrZeroPayoutAmount
	}
	for _, alloc := range allocations {
		if err := e.ledger.Reserve(campaignAddr, token, alloc.Key, alloc.Amount); err != nil {
			return err
		}
		e.emit(events.PayoutAllocated{Campaign: campaignAddr, Token: token, Key: alloc.Key, Amount: cloneBigInt(alloc.Amount)})
	}
	if fee != nil && fee.Amount != nil && fee.Amount.Sign() > 0 {
		if err := e.ledger.EarmarkFee(campaignAddr, token, fee.Recipient, fee.Amount); err != nil {
			return err
		}
		e.emit(events.FeeAccrued{Campaign: campaignAddr, Token: token, Recipient: fee.Recipient, Amount: cloneBigInt(fee.Amount)})
	}
	return nil
}

// Deallocate releases prior reservations according to the hook's returned
// allocations.
func (e *Engine) Deallocate(caller, campaignAddr, token [20]byte, payload []byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.withTx(func() error {
		return e.deallocate(caller, campaignAddr, token, payload)
	})
}

func (e *Engine) deallocate(caller, campaignAddr, token [20]byte, payload []byte) error {
	campaign, err := e.loadCampaign(campaignAddr)
	if err != nil {
		return err
	}
	if campaign.Status != StatusActive && campaign.Status != StatusFinalizing {
		return ErrInvalidCampaignStatus
	}
	hook, err := e.hookFor(campaign)
	if err != nil {
		return err
	}
	allocations, err := hook.OnDeallocate(caller, campaignAddr, token, payload)
	if err != nil {
		return err
	}
	for _, alloc := range allocations {
		if err := e.ledger.Release(campaignAddr, token, alloc.Key, alloc.Amount); err != nil {
			return err
		}
		e.emit(events.PayoutDeallocated{Campaign: campaignAddr, Token: token, Key: alloc.Key, Amount: cloneBigInt(alloc.Amount)})
	}
	return nil
}

func (e *Engine) settleDistributions(campaignAddr, token [20]byte, distributions []Distribution) error {
	transfers := make([]transfer, 0, len(distributions))
	for _, dist := range distributions {
		amt := cloneBigInt(dist.Amount)
		if err := e.ledger.Settle(campaignAddr, token, dist.Key, amt); err != nil {
			return err
		}
		transfers = append(transfers, transfer{token: token, from: campaignAddr, to: dist.Recipient, amount: amt})
		e.emit(events.PayoutDistributed{Campaign: campaignAddr, Token: token, Key: dist.Key, Recipient: dist.Recipient, Amount: amt})
	}
	return e.flush(transfers)
}

// Distribute converts prior allocations into payouts according to the hook's
// returned distributions. A distribution exceeding its key's reservation
// fails with InsufficientAllocationError for that entry and aborts the batch.
func (e *Engine) Distribute(caller, campaignAddr, token [20]byte, payload []byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.withTx(func() error {
		return e.distribute(caller, campaignAddr, token, payload)
	})
}

func (e *Engine) distribute(caller, campaignAddr, token [20]byte, payload []byte) error {
	campaign, err := e.loadCampaign(campaignAddr)
	if err != nil {
		return err
	}
	if campaign.Status != StatusActive && campaign.Status != StatusFinalizing {
		return ErrInvalidCampaignStatus
	}
	hook, err := e.hookFor(campaign)
	if err != nil {
		return err
	}
	distributions, err := hook.OnDistribute(caller, campaignAddr, token, payload)
	if err != nil {
		return err
	}
	if len(distributions) == 0 {
		return ErrZeroPayoutAmount
	}
	return e.settleDistributions(campaignAddr, token, distributions)
}

// DistributeFees settles fee-flavoured allocations. Hooks resolve referral
// codes to payout addresses here; an empty distribution set is a successful
// no-op so unresolvable codes never block unrelated fee flows.
func (e *Engine) DistributeFees(caller, campaignAddr, token [20]byte, payload []byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.withTx(func() error {
		return e.distributeFees(caller, campaignAddr, token, payload)
	})
}

func (e *Engine) distributeFees(caller, campaignAddr, token [20]byte, payload []byte) error {
	campaign, err := e.loadCampaign(campaignAddr)
	if err != nil {
		return err
	}
	if campaign.Status != StatusActive && campaign.Status != StatusFinalizing {
		return ErrInvalidCampaignStatus
	}
	hook, err := e.hookFor(campaign)
	if err != nil {
		return err
	}
	distributions, err := hook.OnDistributeFees(caller, campaignAddr, token, payload)
	if err != nil {
		return err
	}
	if len(distributions) == 0 {
		return nil
	}
	return e.settleDistributions(campaignAddr, token, distributions)
}

// CollectFees transfers the caller's earmarked fee balance to them and zeroes
// the entry. Collecting twice in a row yields zero the second time.
func (e *Engine) CollectFees(caller, campaignAddr, token [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var amount *big.Int
	err := e.withTx(func() error {
		var err error
		amount, err = e.collectFees(caller, campaignAddr, token)
		return err
	})
	if err != nil {
		return nil, err
	}
	return amount, nil
}

func (e *Engine) collectFees(caller, campaignAddr, token [20]byte) (*big.Int, error) {
	if _, err := e.loadCampaign(campaignAddr); err != nil {
		return nil, err
	}
	amount, err := e.ledger.CollectFee(campaignAddr, token, caller)
	if err != nil {
		return nil, err
	}
	if amount.Sign() > 0 {
		if err := e.bank.Transfer(token, campaignAddr, caller, amount); err != nil {
			return nil, err
		}
	}
	e.emit(events.FeesCollected{Campaign: campaignAddr, Token: token, Recipient: caller, Amount: amount})
	return amount, nil
}

// WithdrawFunds debits the campaign's free balance outside the allocation and
// fee systems. The hook enforces the owner tier and may redirect the payout.
func (e *Engine) WithdrawFunds(caller, campaignAddr, token [20]byte, amount *big.Int, payload []byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.withTx(func() error {
		return e.withdrawFunds(caller, campaignAddr, token, amount, payload)
	})
}

func (e *Engine) withdrawFunds(caller, campaignAddr, token [20]byte, amount *big.Int, payload []byte) error {
	campaign, err := e.loadCampaign(campaignAddr)
	if err != nil {
		return err
	}
	hook, err := e.hookFor(campaign)
	if err != nil {
		return err
	}
	payout, err := hook.OnWithdrawFunds(caller, campaignAddr, token, amount, payload)
	if err != nil {
		return err
	}
	if payout == nil || payout.Amount == nil || payout.Amount.Sign() <= 0 {
		return ErrZeroPayoutAmount
	}
	amt := cloneBigInt(payout.Amount)
	if err := e.ledger.Debit(campaignAddr, token, amt); err != nil {
		return err
	}
	if err := e.bank.Transfer(token, campaignAddr, payout.Recipient, amt); err != nil {
		return err
	}
	e.emit(events.FundsWithdrawn{Campaign: campaignAddr, Token: token, Recipient: payout.Recipient, Amount: amt})
	return nil
}

// UpdateMetadata stores the URI returned by the hook for the campaign.
func (e *Engine) UpdateMetadata(caller, campaignAddr [20]byte, payload []byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.withTx(func() error {
		return e.updateMetadata(caller, campaignAddr, payload)
	})
}

func (e *Engine) updateMetadata(caller, campaignAddr [20]byte, payload []byte) error {
	campaign, err := e.loadCampaign(campaignAddr)
	if err != nil {
		return err
	}
	hook, err := e.hookFor(campaign)
	if err != nil {
		return err
	}
	uri, err := hook.OnUpdateMetadata(caller, campaignAddr, payload)
	if err != nil {
		return err
	}
	campaign.MetadataURI = uri
	if err := e.state.CampaignPut(campaign); err != nil {
		return err
	}
	e.emit(events.MetadataUpdated{Campaign: campaignAddr, MetadataURI: uri})
	return nil
}
