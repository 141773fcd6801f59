package flywheel

import (
	"fmt"
	"math/big"

	"flywheel/core/events"
)

type mockState struct {
	campaigns        map[[20]byte]*Campaign
	balances         map[string]*big.Int
	allocations      map[string]*big.Int
	allocatedTotals  map[string]*big.Int
	distributedTotal map[string]*big.Int
	fees             map[string]*big.Int
	feeTotals        map[string]*big.Int

	snapshot *mockState
}

func newMockState() *mockState {
	return &mockState{
		campaigns:        make(map[[20]byte]*Campaign),
		balances:         make(map[string]*big.Int),
		allocations:      make(map[string]*big.Int),
		allocatedTotals:  make(map[string]*big.Int),
		distributedTotal: make(map[string]*big.Int),
		fees:             make(map[string]*big.Int),
		feeTotals:        make(map[string]*big.Int),
	}
}

func cloneAmounts(src map[string]*big.Int) map[string]*big.Int {
	out := make(map[string]*big.Int, len(src))
	for k, v := range src {
		out[k] = new(big.Int).Set(v)
	}
	return out
}

func (m *mockState) clone() *mockState {
	c := newMockState()
	for k, v := range m.campaigns {
		c.campaigns[k] = v.Clone()
	}
	c.balances = cloneAmounts(m.balances)
	c.allocations = cloneAmounts(m.allocations)
	c.allocatedTotals = cloneAmounts(m.allocatedTotals)
	c.distributedTotal = cloneAmounts(m.distributedTotal)
	c.fees = cloneAmounts(m.fees)
	c.feeTotals = cloneAmounts(m.feeTotals)
	return c
}

// Begin, Commit and Discard mirror the staging transaction the production
// state manager provides: Discard restores the snapshot taken at Begin.
func (m *mockState) Begin() { m.snapshot = m.clone() }

func (m *mockState) Commit() error {
	m.snapshot = nil
	return nil
}

func (m *mockState) Discard() {
	if m.snapshot == nil {
		return
	}
	s := m.snapshot
	m.snapshot = nil
	m.campaigns = s.campaigns
	m.balances = s.balances
	m.allocations = s.allocations
	m.allocatedTotals = s.allocatedTotals
	m.distributedTotal = s.distributedTotal
	m.fees = s.fees
	m.feeTotals = s.feeTotals
}

func pairKey(campaign, token [20]byte) string {
	return fmt.Sprintf("%x/%x", campaign, token)
}

func allocKey(campaign, token [20]byte, key [32]byte) string {
	return fmt.Sprintf("%x/%x/%x", campaign, token, key)
}

func feeKey(campaign, token, recipient [20]byte) string {
	return fmt.Sprintf("%x/%x/%x", campaign, token, recipient)
}

func readAmount(m map[string]*big.Int, key string) *big.Int {
	if v, ok := m[key]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

func writeAmount(m map[string]*big.Int, key string, amount *big.Int) {
	m[key] = new(big.Int).Set(amount)
}

func (m *mockState) CampaignPut(c *Campaign) error {
	m.campaigns[c.Address] = c.Clone()
	return nil
}

func (m *mockState) CampaignGet(addr [20]byte) (*Campaign, bool, error) {
	c, ok := m.campaigns[addr]
	if !ok {
		return nil, false, nil
	}
	return c.Clone(), true, nil
}

func (m *mockState) LedgerBalance(campaign, token [20]byte) (*big.Int, error) {
	return readAmount(m.balances, pairKey(campaign, token)), nil
}

func (m *mockState) SetLedgerBalance(campaign, token [20]byte, amount *big.Int) error {
	writeAmount(m.balances, pairKey(campaign, token), amount)
	return nil
}

func (m *mockState) LedgerAllocation(campaign, token [20]byte, key [32]byte) (*big.Int, error) {
	return readAmount(m.allocations, allocKey(campaign, token, key)), nil
}

func (m *mockState) SetLedgerAllocation(campaign, token [20]byte, key [32]byte, amount *big.Int) error {
	writeAmount(m.allocations, allocKey(campaign, token, key), amount)
	return nil
}

func (m *mockState) LedgerAllocatedTotal(campaign, token [20]byte) (*big.Int, error) {
	return readAmount(m.allocatedTotals, pairKey(campaign, token)), nil
}

func (m *mockState) SetLedgerAllocatedTotal(campaign, token [20]byte, amount *big.Int) error {
	writeAmount(m.allocatedTotals, pairKey(campaign, token), amount)
	return nil
}

func (m *mockState) LedgerDistributedTotal(campaign, token [20]byte) (*big.Int, error) {
	return readAmount(m.distributedTotal, pairKey(campaign, token)), nil
}

func (m *mockState) SetLedgerDistributedTotal(campaign, token [20]byte, amount *big.Int) error {
	writeAmount(m.distributedTotal, pairKey(campaign, token), amount)
	return nil
}

func (m *mockState) LedgerFee(campaign, token, recipient [20]byte) (*big.Int, error) {
	return readAmount(m.fees, feeKey(campaign, token, recipient)), nil
}

func (m *mockState) SetLedgerFee(campaign, token, recipient [20]byte, amount *big.Int) error {
	writeAmount(m.fees, feeKey(campaign, token, recipient), amount)
	return nil
}

func (m *mockState) LedgerFeeTotal(campaign, token [20]byte) (*big.Int, error) {
	return readAmount(m.feeTotals, pairKey(campaign, token)), nil
}

func (m *mockState) SetLedgerFeeTotal(campaign, token [20]byte, amount *big.Int) error {
	writeAmount(m.feeTotals, pairKey(campaign, token), amount)
	return nil
}

type bankTransfer struct {
	token  [20]byte
	from   [20]byte
	to     [20]byte
	amount *big.Int
}

type mockBank struct {
	balances  map[string]*big.Int
	transfers []bankTransfer
}

func newMockBank() *mockBank {
	return &mockBank{balances: make(map[string]*big.Int)}
}

func (b *mockBank) fund(token, addr [20]byte, amount int64) {
	writeAmount(b.balances, pairKey(token, addr), big.NewInt(amount))
}

func (b *mockBank) Transfer(token, from, to [20]byte, amount *big.Int) error {
	fromBal := readAmount(b.balances, pairKey(token, from))
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("bank: insufficient balance")
	}
	writeAmount(b.balances, pairKey(token, from), fromBal.Sub(fromBal, amount))
	toBal := readAmount(b.balances, pairKey(token, to))
	writeAmount(b.balances, pairKey(token, to), toBal.Add(toBal, amount))
	b.transfers = append(b.transfers, bankTransfer{token: token, from: from, to: to, amount: new(big.Int).Set(amount)})
	return nil
}

func (b *mockBank) BalanceOf(token, addr [20]byte) (*big.Int, error) {
	return readAmount(b.balances, pairKey(token, addr)), nil
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(event events.Event) {
	c.events = append(c.events, event)
}

func (c *capturingEmitter) typed(eventType string) []events.Event {
	var out []events.Event
	for _, evt := range c.events {
		if evt.EventType() == eventType {
			out = append(out, evt)
		}
	}
	return out
}

func addr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

func key32(b byte) [32]byte {
	var k [32]byte
	k[31] = b
	return k
}
