// Package state persists all protocol state (campaigns, ledger entries,
// code records, token balances, roles) as rlp-encoded records in a generic
// key-value database. Every module mutates state exclusively through the
// manager's methods; nothing writes to the underlying database directly.
package state

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"flywheel/native/buildercodes"
	"flywheel/native/flywheel"
	"flywheel/storage"
)

// ErrInsufficientBalance reports a bank transfer exceeding the sender's
// balance.
var ErrInsufficientBalance = errors.New("state: insufficient balance")

// Manager provides typed access to the protocol's persistent state.
type Manager struct {
	db storage.Database

	txMu    sync.Mutex
	mu      sync.RWMutex
	overlay map[string][]byte
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens a staging transaction: subsequent writes collect in an
// in-memory overlay that reads observe, and nothing reaches the database
// until Commit. Transactions serialize; a second Begin blocks until the
// first commits or discards. Begin must be paired with exactly one Commit
// or Discard.
func (m *Manager) Begin() {
	m.txMu.Lock()
	m.mu.Lock()
	m.overlay = make(map[string][]byte)
	m.mu.Unlock()
}

// Commit flushes the overlay to the database and closes the transaction.
func (m *Manager) Commit() error {
	m.mu.Lock()
	overlay := m.overlay
	m.overlay = nil
	m.mu.Unlock()
	defer m.txMu.Unlock()
	for key, value := range overlay {
		if err := m.db.Put([]byte(key), value); err != nil {
			return err
		}
	}
	return nil
}

// Discard drops the overlay without writing anything and closes the
// transaction.
func (m *Manager) Discard() {
	m.mu.Lock()
	m.overlay = nil
	m.mu.Unlock()
	m.txMu.Unlock()
}

func (m *Manager) getRaw(key []byte) ([]byte, error) {
	m.mu.RLock()
	if m.overlay != nil {
		if value, ok := m.overlay[string(key)]; ok {
			m.mu.RUnlock()
			return value, nil
		}
	}
	m.mu.RUnlock()
	return m.db.Get(key)
}

func (m *Manager) putRaw(key, value []byte) error {
	m.mu.Lock()
	if m.overlay != nil {
		m.overlay[string(key)] = value
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	return m.db.Put(key, value)
}

var (
	campaignPrefix   = []byte("flywheel/campaign/")
	campaignIndexRaw = []byte("flywheel/campaign-index")
	balancePrefix    = []byte("flywheel/ledger/balance/")
	allocPrefix      = []byte("flywheel/ledger/alloc/")
	allocTotalPrefix = []byte("flywheel/ledger/alloc-total/")
	distTotalPrefix  = []byte("flywheel/ledger/dist-total/")
	feePrefix        = []byte("flywheel/ledger/fee/")
	feeTotalPrefix   = []byte("flywheel/ledger/fee-total/")
	bankPrefix       = []byte("bank/")
	rolePrefix       = []byte("role/")
	codePrefix       = []byte("codes/record/")
	codeNoncePrefix  = []byte("codes/nonce/")
	hookKVPrefix     = []byte("kv/")
	pausePrefix      = []byte("pause/")
)

func hashKey(parts ...[]byte) []byte {
	return ethcrypto.Keccak256(parts...)
}

func (m *Manager) get(key []byte, out interface{}) (bool, error) {
	data, err := m.getRaw(key)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) put(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.putRaw(key, encoded)
}

func (m *Manager) getAmount(key []byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := m.get(key, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func (m *Manager) putAmount(key []byte, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative amount")
	}
	return m.put(key, amount)
}

// --- Campaigns ---

// storedCampaign is the rlp wire form of a campaign record.
type storedCampaign struct {
	Address     [20]byte
	Hook        [20]byte
	Status      uint8
	MetadataURI string
	CreatedAt   uint64
}

func campaignKey(addr [20]byte) []byte {
	return hashKey(campaignPrefix, addr[:])
}

// CampaignPut persists the campaign and, on first write, records it in the
// campaign index.
func (m *Manager) CampaignPut(c *flywheel.Campaign) error {
	if c == nil {
		return fmt.Errorf("state: nil campaign")
	}
	key := campaignKey(c.Address)
	existing := new(storedCampaign)
	exists, err := m.get(key, existing)
	if err != nil {
		return err
	}
	stored := &storedCampaign{
		Address:     c.Address,
		Hook:        c.Hook,
		Status:      uint8(c.Status),
		MetadataURI: c.MetadataURI,
		CreatedAt:   uint64(c.CreatedAt),
	}
	if err := m.put(key, stored); err != nil {
		return err
	}
	if !exists {
		return m.KVAppend(campaignIndexRaw, c.Address[:])
	}
	return nil
}

// CampaignGet loads a campaign by address.
func (m *Manager) CampaignGet(addr [20]byte) (*flywheel.Campaign, bool, error) {
	stored := new(storedCampaign)
	ok, err := m.get(campaignKey(addr), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &flywheel.Campaign{
		Address:     stored.Address,
		Hook:        stored.Hook,
		Status:      flywheel.CampaignStatus(stored.Status),
		MetadataURI: stored.MetadataURI,
		CreatedAt:   int64(stored.CreatedAt),
	}, true, nil
}

// CampaignList returns the addresses of all campaigns in creation order.
func (m *Manager) CampaignList() ([][20]byte, error) {
	var raw [][]byte
	if err := m.KVGetList(campaignIndexRaw, &raw); err != nil {
		return nil, err
	}
	addrs := make([][20]byte, 0, len(raw))
	for _, b := range raw {
		var addr [20]byte
		copy(addr[:], b)
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// --- Token ledger ---

func (m *Manager) LedgerBalance(campaign, token [20]byte) (*big.Int, error) {
	return m.getAmount(hashKey(balancePrefix, campaign[:], token[:]))
}

func (m *Manager) SetLedgerBalance(campaign, token [20]byte, amount *big.Int) error {
	return m.putAmount(hashKey(balancePrefix, campaign[:], token[:]), amount)
}

func (m *Manager) LedgerAllocation(campaign, token [20]byte, key [32]byte) (*big.Int, error) {
	return m.getAmount(hashKey(allocPrefix, campaign[:], token[:], key[:]))
}

func (m *Manager) SetLedgerAllocation(campaign, token [20]byte, key [32]byte, amount *big.Int) error {
	return m.putAmount(hashKey(allocPrefix, campaign[:], token[:], key[:]), amount)
}

func (m *Manager) LedgerAllocatedTotal(campaign, token [20]byte) (*big.Int, error) {
	return m.getAmount(hashKey(allocTotalPrefix, campaign[:], token[:]))
}

func (m *Manager) SetLedgerAllocatedTotal(campaign, token [20]byte, amount *big.Int) error {
	return m.putAmount(hashKey(allocTotalPrefix, campaign[:], token[:]), amount)
}

func (m *Manager) LedgerDistributedTotal(campaign, token [20]byte) (*big.Int, error) {
	return m.getAmount(hashKey(distTotalPrefix, campaign[:], token[:]))
}

func (m *Manager) SetLedgerDistributedTotal(campaign, token [20]byte, amount *big.Int) error {
	return m.putAmount(hashKey(distTotalPrefix, campaign[:], token[:]), amount)
}

func (m *Manager) LedgerFee(campaign, token, recipient [20]byte) (*big.Int, error) {
	return m.getAmount(hashKey(feePrefix, campaign[:], token[:], recipient[:]))
}

func (m *Manager) SetLedgerFee(campaign, token, recipient [20]byte, amount *big.Int) error {
	return m.putAmount(hashKey(feePrefix, campaign[:], token[:], recipient[:]), amount)
}

func (m *Manager) LedgerFeeTotal(campaign, token [20]byte) (*big.Int, error) {
	return m.getAmount(hashKey(feeTotalPrefix, campaign[:], token[:]))
}

func (m *Manager) SetLedgerFeeTotal(campaign, token [20]byte, amount *big.Int) error {
	return m.putAmount(hashKey(feeTotalPrefix, campaign[:], token[:]), amount)
}

// --- Token bank ---

func bankKey(token, addr [20]byte) []byte {
	return hashKey(bankPrefix, token[:], addr[:])
}

// BalanceOf returns the token balance held by the address.
func (m *Manager) BalanceOf(token, addr [20]byte) (*big.Int, error) {
	return m.getAmount(bankKey(token, addr))
}

// SetTokenBalance overwrites the token balance for an address. Intended for
// genesis initialisation and tests.
func (m *Manager) SetTokenBalance(token, addr [20]byte, amount *big.Int) error {
	return m.putAmount(bankKey(token, addr), amount)
}

// Transfer moves a token amount between principals.
func (m *Manager) Transfer(token, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: invalid transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBalance, err := m.BalanceOf(token, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance, err := m.BalanceOf(token, to)
	if err != nil {
		return err
	}
	if err := m.putAmount(bankKey(token, from), new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return m.putAmount(bankKey(token, to), new(big.Int).Add(toBalance, amount))
}

// --- Roles ---

func roleKey(role string, addr []byte) []byte {
	return hashKey(rolePrefix, []byte(role), addr)
}

// HasRole reports whether the address holds the role.
func (m *Manager) HasRole(role string, addr []byte) bool {
	var granted bool
	ok, err := m.get(roleKey(role, addr), &granted)
	if err != nil || !ok {
		return false
	}
	return granted
}

// GrantRole grants the role to the address.
func (m *Manager) GrantRole(role string, addr []byte) error {
	return m.put(roleKey(role, addr), true)
}

// RevokeRole removes the role from the address.
func (m *Manager) RevokeRole(role string, addr []byte) error {
	return m.put(roleKey(role, addr), false)
}

// --- Builder codes ---

// storedRecord is the rlp wire form of a code record.
type storedRecord struct {
	Code         string
	Owner        [20]byte
	Payout       [20]byte
	RegisteredAt uint64
}

func codeRecordKey(id *big.Int) []byte {
	return hashKey(codePrefix, id.Bytes())
}

// CodeGet loads a code record by its numeric identifier.
func (m *Manager) CodeGet(id *big.Int) (*buildercodes.Record, bool, error) {
	if id == nil {
		return nil, false, fmt.Errorf("state: nil code id")
	}
	stored := new(storedRecord)
	ok, err := m.get(codeRecordKey(id), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &buildercodes.Record{
		Code:         stored.Code,
		Owner:        stored.Owner,
		Payout:       stored.Payout,
		RegisteredAt: int64(stored.RegisteredAt),
	}, true, nil
}

// CodePut persists a code record under its numeric identifier.
func (m *Manager) CodePut(id *big.Int, rec *buildercodes.Record) error {
	if id == nil || rec == nil {
		return fmt.Errorf("state: nil code record")
	}
	return m.put(codeRecordKey(id), &storedRecord{
		Code:         rec.Code,
		Owner:        rec.Owner,
		Payout:       rec.Payout,
		RegisteredAt: uint64(rec.RegisteredAt),
	})
}

// RegistrarNonce returns the monotonic nonce for a delegated registrar.
func (m *Manager) RegistrarNonce(addr [20]byte) (uint64, error) {
	var nonce uint64
	ok, err := m.get(hashKey(codeNoncePrefix, addr[:]), &nonce)
	if err != nil || !ok {
		return 0, err
	}
	return nonce, nil
}

// SetRegistrarNonce stores the registrar nonce.
func (m *Manager) SetRegistrarNonce(addr [20]byte, nonce uint64) error {
	return m.put(hashKey(codeNoncePrefix, addr[:]), nonce)
}

// --- Module pauses ---

// SetPaused toggles the administrative pause for a module.
func (m *Manager) SetPaused(module string, paused bool) error {
	return m.put(hashKey(pausePrefix, []byte(module)), paused)
}

// IsPaused implements the native common PauseView interface.
func (m *Manager) IsPaused(module string) bool {
	var paused bool
	ok, err := m.get(hashKey(pausePrefix, []byte(module)), &paused)
	if err != nil || !ok {
		return false
	}
	return paused
}

// --- Generic hook state ---

// KVGet decodes the value stored under the key into out, reporting whether
// the key exists.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	return m.get(hashKey(hookKVPrefix, key), out)
}

// KVPut encodes and stores the value under the key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	return m.put(hashKey(hookKVPrefix, key), value)
}

// KVAppend appends a raw byte entry to the list stored under the key.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	var list [][]byte
	if _, err := m.get(hashKey(hookKVPrefix, key), &list); err != nil {
		return err
	}
	entry := make([]byte, len(value))
	copy(entry, value)
	list = append(list, entry)
	return m.put(hashKey(hookKVPrefix, key), list)
}

// KVGetList decodes the list stored under the key into out; a missing key
// yields an empty list.
func (m *Manager) KVGetList(key []byte, out *[][]byte) error {
	ok, err := m.get(hashKey(hookKVPrefix, key), out)
	if err != nil {
		return err
	}
	if !ok {
		*out = [][]byte{}
	}
	return nil
}
