package buildercodes

import (
	"errors"
	"testing"
)

func newTestRandomRegistrar(t *testing.T) (*RandomRegistrar, *Registry, *mockRegistryState, [20]byte) {
	t.Helper()
	reg, st := newTestRegistry(t)
	self := testAddr(0xFE)
	st.grant(RoleRegistrar, self)
	return NewRandomRegistrar(reg, st, self), reg, st, self
}

func TestRandomRegistrarRegisters(t *testing.T) {
	rr, reg, st, self := newTestRandomRegistrar(t)
	caller, payout := testAddr(1), testAddr(2)

	code, err := rr.Register(caller, payout)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if code != CandidateCode(payout, 0) {
		t.Fatalf("code %q does not match the deterministic candidate", code)
	}
	if len(code) != 8 || !ValidCode(code) {
		t.Fatalf("generated code %q is malformed", code)
	}
	rec, ok := reg.Resolve(code)
	if !ok {
		t.Fatalf("generated code not registered")
	}
	if rec.Owner != caller || rec.Payout != payout {
		t.Fatalf("record mismatch: %+v", rec)
	}
	nonce, _ := st.RegistrarNonce(self)
	if nonce != 1 {
		t.Fatalf("nonce after register: %d", nonce)
	}
}

func TestRandomRegistrarRetriesOnCollision(t *testing.T) {
	rr, reg, st, self := newTestRandomRegistrar(t)
	caller, payout := testAddr(1), testAddr(2)

	// Occupy the first candidate so the registrar has to advance its nonce.
	first := CandidateCode(payout, 0)
	if err := reg.Register(self, first, testAddr(8), testAddr(9)); err != nil {
		t.Fatalf("occupy candidate: %v", err)
	}

	code, err := rr.Register(caller, payout)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if code == first {
		t.Fatalf("collided candidate was returned")
	}
	if code != CandidateCode(payout, 1) {
		t.Fatalf("expected the nonce-1 candidate, got %q", code)
	}
	nonce, _ := st.RegistrarNonce(self)
	if nonce != 2 {
		t.Fatalf("nonce after collision retry: %d", nonce)
	}
}

func TestRandomRegistrarRejectsZeroAddresses(t *testing.T) {
	rr, _, _, _ := newTestRandomRegistrar(t)
	if _, err := rr.Register([20]byte{}, testAddr(2)); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("zero caller: got %v", err)
	}
	if _, err := rr.Register(testAddr(1), [20]byte{}); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("zero payout: got %v", err)
	}
}
