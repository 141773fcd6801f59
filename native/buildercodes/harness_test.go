package buildercodes

import "math/big"

type mockRegistryState struct {
	roles   map[string]map[string]bool
	records map[string]*Record
	nonces  map[[20]byte]uint64
}

func newMockRegistryState() *mockRegistryState {
	return &mockRegistryState{
		roles:   make(map[string]map[string]bool),
		records: make(map[string]*Record),
		nonces:  make(map[[20]byte]uint64),
	}
}

func (m *mockRegistryState) grant(role string, addr [20]byte) {
	if m.roles[role] == nil {
		m.roles[role] = make(map[string]bool)
	}
	m.roles[role][string(addr[:])] = true
}

func (m *mockRegistryState) HasRole(role string, addr []byte) bool {
	return m.roles[role][string(addr)]
}

func (m *mockRegistryState) CodeGet(id *big.Int) (*Record, bool, error) {
	rec, ok := m.records[id.String()]
	if !ok {
		return nil, false, nil
	}
	return rec.Clone(), true, nil
}

func (m *mockRegistryState) CodePut(id *big.Int, rec *Record) error {
	m.records[id.String()] = rec.Clone()
	return nil
}

func (m *mockRegistryState) RegistrarNonce(addr [20]byte) (uint64, error) {
	return m.nonces[addr], nil
}

func (m *mockRegistryState) SetRegistrarNonce(addr [20]byte, nonce uint64) error {
	m.nonces[addr] = nonce
	return nil
}

func testAddr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}
