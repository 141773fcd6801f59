package buildercodes

import (
	"math/big"
	"time"

	"flywheel/core/events"
	nativecommon "flywheel/native/common"
)

const (
	// RoleRegistrar gates the direct registration path, e.g. for a trusted
	// backend or the pseudo-random registrar.
	RoleRegistrar = "ROLE_CODE_REGISTRAR"

	moduleName = "buildercodes"
)

// Record captures the ownership and payout metadata of a registered code.
type Record struct {
	Code         string
	Owner        [20]byte
	Payout       [20]byte
	RegisteredAt int64
}

// Clone returns a copy the caller may mutate safely.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// registryState describes the persistence and role checks the registry needs
// from the surrounding state implementation.
type registryState interface {
	HasRole(role string, addr []byte) bool
	CodeGet(id *big.Int) (*Record, bool, error)
	CodePut(id *big.Int, rec *Record) error
}

// SignatureVerifier is the capability a contract principal exposes to
// validate signatures with its own logic instead of a raw key pair.
type SignatureVerifier interface {
	VerifySignature(digest [32]byte, sig []byte) bool
}

// Registry is the content-addressed referral code ledger. A code is either
// unregistered or registered; there is no unregistration path.
type Registry struct {
	st              registryState
	emitter         events.Emitter
	pauses          nativecommon.PauseView
	contractSigners map[[20]byte]SignatureVerifier
	chainID         uint64
	baseURI         string
	nowFn           func() int64
}

// NewRegistry creates a registry backed by the provided state.
func NewRegistry(st registryState, chainID uint64) *Registry {
	return &Registry{
		st:              st,
		emitter:         events.NoopEmitter{},
		contractSigners: make(map[[20]byte]SignatureVerifier),
		chainID:         chainID,
		nowFn:           func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetPauses configures the module pause view.
func (r *Registry) SetPauses(p nativecommon.PauseView) { r.pauses = p }

// SetBaseURI configures the prefix used when rendering token metadata URIs.
func (r *Registry) SetBaseURI(uri string) { r.baseURI = uri }

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (r *Registry) SetNowFunc(now func() int64) {
	if now == nil {
		r.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	r.nowFn = now
}

// RegisterContractSigner binds a signature-verification capability to a
// contract principal so delegated registrations can be authorized by
// contract logic rather than a key pair.
func (r *Registry) RegisterContractSigner(addr [20]byte, verifier SignatureVerifier) {
	if verifier == nil {
		delete(r.contractSigners, addr)
		return
	}
	r.contractSigners[addr] = verifier
}

func (r *Registry) emit(event events.Event) {
	if r.emitter == nil {
		return
	}
	r.emitter.Emit(event)
}

func (r *Registry) store(code string, owner, payout, registrar [20]byte) error {
	id, err := ToTokenID(code)
	if err != nil {
		return err
	}
	if owner == ([20]byte{}) || payout == ([20]byte{}) {
		return ErrZeroAddress
	}
	if _, exists, err := r.st.CodeGet(id); err != nil {
		return err
	} else if exists {
		return ErrCodeTaken
	}
	rec := &Record{Code: code, Owner: owner, Payout: payout, RegisteredAt: r.nowFn()}
	if err := r.st.CodePut(id, rec); err != nil {
		return err
	}
	r.emit(events.CodeRegistered{Code: code, TokenID: id, Owner: owner, Payout: payout, Registrar: registrar})
	return nil
}

// Register writes a new code record. The caller must hold the registrar
// role; a code, once registered, is never re-registrable.
func (r *Registry) Register(caller [20]byte, code string, owner, payout [20]byte) error {
	if err := nativecommon.Guard(r.pauses, moduleName); err != nil {
		return err
	}
	if !r.st.HasRole(RoleRegistrar, caller[:]) {
		return ErrUnauthorized
	}
	return r.store(code, owner, payout, caller)
}

// RegisterWithSignature consumes an off-chain-signed authorization from the
// registrar principal covering exactly this (code, owner, payout, deadline)
// tuple. Expired authorizations fail with RegistrationDeadlineError even when
// the signature itself is valid; all verification failures collapse into the
// uniform ErrUnauthorized.
func (r *Registry) RegisterWithSignature(code string, owner, payout [20]byte, deadline int64, registrar [20]byte, sig []byte) error {
	if err := nativecommon.Guard(r.pauses, moduleName); err != nil {
		return err
	}
	if r.nowFn() > deadline {
		return &RegistrationDeadlineError{Deadline: deadline}
	}
	if !ValidCode(code) {
		return ErrInvalidCode
	}
	if !r.st.HasRole(RoleRegistrar, registrar[:]) {
		return ErrUnauthorized
	}
	digest := r.RegistrationDigest(code, owner, payout, deadline)
	if !r.verifySigner(registrar, digest, sig) {
		return ErrUnauthorized
	}
	return r.store(code, owner, payout, registrar)
}

// UpdatePayoutAddress rotates the payout destination for a registered code.
// Only the code's owner may update it and the destination must not be the
// zero address.
func (r *Registry) UpdatePayoutAddress(caller [20]byte, code string, payout [20]byte) error {
	if err := nativecommon.Guard(r.pauses, moduleName); err != nil {
		return err
	}
	if payout == ([20]byte{}) {
		return ErrZeroAddress
	}
	id, err := ToTokenID(code)
	if err != nil {
		return err
	}
	rec, ok, err := r.st.CodeGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnregistered
	}
	if rec.Owner != caller {
		return ErrUnauthorized
	}
	rec.Payout = payout
	if err := r.st.CodePut(id, rec); err != nil {
		return err
	}
	r.emit(events.PayoutAddressUpdated{Code: code, Payout: payout})
	return nil
}

// Resolve returns the record for a code, if registered.
func (r *Registry) Resolve(code string) (*Record, bool) {
	id, err := ToTokenID(code)
	if err != nil {
		return nil, false
	}
	rec, ok, err := r.st.CodeGet(id)
	if err != nil || !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// PayoutAddress resolves a code to its payout destination. It satisfies the
// hook-side resolver interface used during fee distribution.
func (r *Registry) PayoutAddress(code string) ([20]byte, bool) {
	rec, ok := r.Resolve(code)
	if !ok {
		return [20]byte{}, false
	}
	return rec.Payout, true
}

// TokenURI renders the metadata URI for a registered identifier.
func (r *Registry) TokenURI(id *big.Int) (string, error) {
	code, err := ToCode(id)
	if err != nil {
		return "", err
	}
	if _, ok, err := r.st.CodeGet(id); err != nil {
		return "", err
	} else if !ok {
		return "", ErrUnregistered
	}
	return r.baseURI + code, nil
}
