package hooks

import (
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
)

// memKV mirrors the production key-value state: values round-trip through rlp.
type memKV struct {
	data map[string][]byte
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte)}
}

func (kv *memKV) KVGet(key []byte, out interface{}) (bool, error) {
	raw, ok := kv.data[string(key)]
	if !ok {
		return false, nil
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (kv *memKV) KVPut(key []byte, value interface{}) error {
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	kv.data[string(key)] = raw
	return nil
}

func encodePayload(t *testing.T, value interface{}) []byte {
	t.Helper()
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	return raw
}

func hookAddr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}
