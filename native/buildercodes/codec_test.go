package buildercodes

import (
	"errors"
	"math/big"
	"strings"
	"testing"
)

func TestCodecRoundTrip(t *testing.T) {
	codes := []string{
		"a",
		"z",
		"ab",
		"builder",
		"code-123",
		"under_score",
		"0",
		"-",
		"_",
		strings.Repeat("z", MaxCodeLength),
	}
	for _, code := range codes {
		id, err := ToTokenID(code)
		if err != nil {
			t.Fatalf("ToTokenID(%q): %v", code, err)
		}
		if id.Sign() <= 0 {
			t.Fatalf("ToTokenID(%q) produced non-positive id %s", code, id)
		}
		back, err := ToCode(id)
		if err != nil {
			t.Fatalf("ToCode(%s): %v", id, err)
		}
		if back != code {
			t.Fatalf("round trip mismatch: %q -> %s -> %q", code, id, back)
		}
	}
}

func TestCodecKnownValues(t *testing.T) {
	// "a" is digit 1 with weight 1.
	id, err := ToTokenID("a")
	if err != nil {
		t.Fatalf("ToTokenID: %v", err)
	}
	if id.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf(`ToTokenID("a") = %s, want 1`, id)
	}
	// "ab" is 1 + 2*39 read little-endian.
	id, err = ToTokenID("ab")
	if err != nil {
		t.Fatalf("ToTokenID: %v", err)
	}
	if id.Cmp(big.NewInt(79)) != 0 {
		t.Fatalf(`ToTokenID("ab") = %s, want 79`, id)
	}
}

func TestValidCodeRejectsBadInput(t *testing.T) {
	invalid := []string{
		"",
		strings.Repeat("a", MaxCodeLength+1),
		"UPPER",
		"with space",
		"ümlaut",
		"dot.",
	}
	for _, code := range invalid {
		if ValidCode(code) {
			t.Fatalf("ValidCode(%q) = true, want false", code)
		}
		if _, err := ToTokenID(code); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("ToTokenID(%q): got %v want ErrInvalidCode", code, err)
		}
	}
}

func TestToCodeRejectsForeignIdentifiers(t *testing.T) {
	cases := []*big.Int{
		nil,
		big.NewInt(0),
		big.NewInt(-5),
		// 39 decodes to a zero digit, which no packed code produces.
		big.NewInt(39),
	}
	for _, id := range cases {
		if _, err := ToCode(id); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("ToCode(%v): got %v want ErrInvalidCode", id, err)
		}
	}

	// An identifier longer than the packing of a 32-character code is
	// rejected rather than decoded into an oversized string.
	huge := new(big.Int).Exp(big.NewInt(39), big.NewInt(MaxCodeLength+1), nil)
	if _, err := ToCode(huge); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("oversized id: got %v want ErrInvalidCode", err)
	}
}
