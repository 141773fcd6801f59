package buildercodes

import (
	"encoding/binary"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	// randomCodeLength is the length of generated candidate codes.
	randomCodeLength = 8
	// maxRegisterAttempts bounds the collision-retry loop. An adversary
	// would have to pre-register every candidate in the window to exhaust
	// it, and the nonce keeps advancing across calls so retries never
	// revisit a collided candidate.
	maxRegisterAttempts = 64
)

// Generated codes stick to the letter/digit subset of the charset.
const randomCodeAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// ErrRegistrarExhausted reports that the retry window was consumed without
// finding an unregistered candidate.
var ErrRegistrarExhausted = errors.New("buildercodes: registrar attempts exhausted")

// registrarState persists the monotonic nonce the registrar derives candidate
// codes from.
type registrarState interface {
	RegistrarNonce(addr [20]byte) (uint64, error)
	SetRegistrarNonce(addr [20]byte, nonce uint64) error
}

// RandomRegistrar registers deterministic pseudo-random codes on behalf of
// callers that only supply a payout address. It is a convenience layer over
// Register: on a code collision it increments its persisted nonce and derives
// a fresh candidate, guaranteeing forward progress.
type RandomRegistrar struct {
	registry *Registry
	st       registrarState
	// self is the principal holding the registrar role that this component
	// acts as.
	self [20]byte
}

// NewRandomRegistrar creates a registrar acting as the supplied principal.
func NewRandomRegistrar(registry *Registry, st registrarState, self [20]byte) *RandomRegistrar {
	return &RandomRegistrar{registry: registry, st: st, self: self}
}

// CandidateCode derives the deterministic candidate for a payout address and
// nonce.
func CandidateCode(payout [20]byte, nonce uint64) string {
	var nonceBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], nonce)
	digest := ethcrypto.Keccak256(payout[:], nonceBuf[:])
	code := make([]byte, randomCodeLength)
	for i := 0; i < randomCodeLength; i++ {
		code[i] = randomCodeAlphabet[int(digest[i])%len(randomCodeAlphabet)]
	}
	return string(code)
}

// Register derives candidate codes until one is unregistered and registers it
// with the caller as owner. The nonce strictly increases on every attempt, so
// a collided candidate is never retried within or across calls.
func (rr *RandomRegistrar) Register(caller, payout [20]byte) (string, error) {
	if rr == nil || rr.registry == nil || rr.st == nil {
		return "", fmt.Errorf("buildercodes: random registrar not configured")
	}
	if caller == ([20]byte{}) || payout == ([20]byte{}) {
		return "", ErrZeroAddress
	}
	nonce, err := rr.st.RegistrarNonce(rr.self)
	if err != nil {
		return "", err
	}
	for attempt := 0; attempt < maxRegisterAttempts; attempt++ {
		candidate := CandidateCode(payout, nonce)
		nonce++
		if err := rr.st.SetRegistrarNonce(rr.self, nonce); err != nil {
			return "", err
		}
		err := rr.registry.Register(rr.self, candidate, caller, payout)
		if err == nil {
			return candidate, nil
		}
		if errors.Is(err, ErrCodeTaken) {
			continue
		}
		return "", err
	}
	return "", ErrRegistrarExhausted
}
