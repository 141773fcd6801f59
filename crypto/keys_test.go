package crypto

import (
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	var raw [20]byte
	raw[0], raw[19] = 0xAB, 0xCD
	addr := NewAddress(raw)

	encoded := addr.String()
	if !strings.HasPrefix(encoded, AddressPrefix+"1") {
		t.Fatalf("encoded address %q lacks prefix", encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Bytes() != raw {
		t.Fatalf("round trip mismatch: %x", decoded.Bytes())
	}
}

func TestDecodeAddressRejectsForeignPrefix(t *testing.T) {
	if _, err := DecodeAddress("bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"); err == nil {
		t.Fatalf("expected prefix rejection")
	}
	if _, err := DecodeAddress("not bech32"); err == nil {
		t.Fatalf("expected parse failure")
	}
}

func TestKeySerializationRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.PubKey().Address() != key.PubKey().Address() {
		t.Fatalf("address changed across serialization")
	}
}

func TestSignProducesRecoverableSignature(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	var digest [32]byte
	copy(digest[:], []byte("0123456789abcdef0123456789abcdef"))
	sig, err := key.Sign(digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length: %d", len(sig))
	}
}
