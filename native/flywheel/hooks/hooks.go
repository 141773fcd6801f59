// Package hooks contains the concrete reward-policy variants dispatched by
// the flywheel campaign ledger engine. Each variant persists its per-campaign
// configuration through the generic hook key-value state and decodes the
// opaque payload bytes the engine forwards.
package hooks

import (
	"encoding/hex"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"flywheel/native/flywheel"
)

const bpsDenominator = 10_000

// KV is the persistence surface hooks use for per-campaign state.
type KV interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

func configKey(hook string, campaign [20]byte) []byte {
	return []byte("hook/" + hook + "/config/" + hex.EncodeToString(campaign[:]))
}

func decodePayload(payload []byte, out interface{}) error {
	if err := rlp.DecodeBytes(payload, out); err != nil {
		return flywheel.ErrInvalidPayload
	}
	return nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// feePortion computes amount*bps/10_000.
func feePortion(amount *big.Int, bps uint32) *big.Int {
	fee := new(big.Int).Mul(cloneBigInt(amount), new(big.Int).SetUint64(uint64(bps)))
	return fee.Quo(fee, big.NewInt(bpsDenominator))
}

func keccak(data []byte) [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(data))
	return out
}

// RecipientKey derives the allocation key for a payout recipient.
func RecipientKey(recipient [20]byte) [32]byte {
	return keccak(recipient[:])
}

// CodeKey derives the allocation key for a referral code.
func CodeKey(code string) [32]byte {
	return keccak([]byte(code))
}
