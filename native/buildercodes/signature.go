package buildercodes

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const signingDomain = "FlywheelBuilderCodes"

var registrationTypeHash = ethcrypto.Keccak256([]byte("Registration(string code,address owner,address payout,int64 deadline)"))

// DomainSeparator binds registration signatures to this registry deployment.
func (r *Registry) DomainSeparator() [32]byte {
	var chainBuf [8]byte
	binary.BigEndian.PutUint64(chainBuf[:], r.chainID)
	digest := ethcrypto.Keccak256(
		ethcrypto.Keccak256([]byte("Domain(string name,uint64 chainId)")),
		ethcrypto.Keccak256([]byte(signingDomain)),
		chainBuf[:],
	)
	var out [32]byte
	copy(out[:], digest)
	return out
}

// RegistrationDigest computes the typed digest a registrar signs to authorize
// a delegated registration of exactly this (code, owner, payout, deadline)
// tuple.
func (r *Registry) RegistrationDigest(code string, owner, payout [20]byte, deadline int64) [32]byte {
	var deadlineBuf [8]byte
	binary.BigEndian.PutUint64(deadlineBuf[:], uint64(deadline))
	structHash := ethcrypto.Keccak256(
		registrationTypeHash,
		ethcrypto.Keccak256([]byte(code)),
		owner[:],
		payout[:],
		deadlineBuf[:],
	)
	domain := r.DomainSeparator()
	digest := ethcrypto.Keccak256([]byte{0x19, 0x01}, domain[:], structHash)
	var out [32]byte
	copy(out[:], digest)
	return out
}

// verifySigner checks the signature against the registrar principal. A
// contract principal verifies through its registered capability; anything
// else is treated as a key-pair signer and recovered with ecrecover. Both
// paths report only success or failure so callers cannot distinguish a bad
// signature from a wrong signer.
func (r *Registry) verifySigner(registrar [20]byte, digest [32]byte, sig []byte) bool {
	if verifier, ok := r.contractSigners[registrar]; ok {
		return verifier.VerifySignature(digest, sig)
	}
	if len(sig) != 65 {
		return false
	}
	pubKey, err := ethcrypto.SigToPub(digest[:], sig)
	if err != nil {
		return false
	}
	recovered := ethcrypto.PubkeyToAddress(*pubKey)
	var addr [20]byte
	copy(addr[:], recovered[:])
	return addr == registrar
}
