package buildercodes

import (
	"math/big"
	"strings"
)

// Codes are short human-readable strings over a closed charset. The numeric
// identifier is an invertible positional packing, not a hash: each character
// maps to a non-zero digit and the code is read as a little-endian base-39
// number. Zero never appears as a digit inside a code, which is what makes
// the decoding side able to reject identifiers that were not produced from a
// valid code.
const (
	codeAlphabet  = "abcdefghijklmnopqrstuvwxyz0123456789-_"
	codeRadix     = int64(len(codeAlphabet) + 1)
	MaxCodeLength = 32
)

// ValidCode reports whether the code satisfies the registry's validity
// predicate: non-empty, at most 32 characters, all from the allowed charset.
func ValidCode(code string) bool {
	if len(code) == 0 || len(code) > MaxCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(codeAlphabet, rune(code[i])) {
			return false
		}
	}
	return true
}

// ToTokenID derives the numeric identifier for a code. It rejects invalid
// codes.
func ToTokenID(code string) (*big.Int, error) {
	if !ValidCode(code) {
		return nil, ErrInvalidCode
	}
	radix := big.NewInt(codeRadix)
	id := big.NewInt(0)
	weight := big.NewInt(1)
	for i := 0; i < len(code); i++ {
		digit := int64(strings.IndexByte(codeAlphabet, code[i])) + 1
		term := new(big.Int).Mul(weight, big.NewInt(digit))
		id.Add(id, term)
		weight.Mul(weight, radix)
	}
	return id, nil
}

// ToCode recovers the code a numeric identifier was derived from. It rejects
// identifiers that do not decode to a valid code, so the two functions are
// mutually inverse over the valid-code domain.
func ToCode(id *big.Int) (string, error) {
	if id == nil || id.Sign() <= 0 {
		return "", ErrInvalidCode
	}
	radix := big.NewInt(codeRadix)
	rest := new(big.Int).Set(id)
	digit := new(big.Int)
	var sb strings.Builder
	for rest.Sign() > 0 {
		if sb.Len() >= MaxCodeLength {
			return "", ErrInvalidCode
		}
		rest.DivMod(rest, radix, digit)
		d := digit.Int64()
		if d == 0 {
			// A zero digit cannot appear in a packed code.
			return "", ErrInvalidCode
		}
		sb.WriteByte(codeAlphabet[d-1])
	}
	return sb.String(), nil
}
