package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/corevm/corevm/core/types"
)

// Storage trie values are RLP strings of the word's minimal big-endian
// bytes; zero words are never stored, a zero write deletes the slot.

func encodeStorageValue(value types.Hash) ([]byte, error) {
	trimmed := value.Bytes()
	for len(trimmed) > 0 && trimmed[0] == 0 {
		trimmed = trimmed[1:]
	}
	return rlp.EncodeToBytes(trimmed)
}

func decodeStorageValue(data []byte) (types.Hash, error) {
	var b []byte
	if err := rlp.DecodeBytes(data, &b); err != nil {
		return types.Hash{}, fmt.Errorf("state: decode storage value: %w", err)
	}
	if len(b) > types.HashLength {
		return types.Hash{}, errors.New("state: storage value exceeds 32 bytes")
	}
	return types.BytesToHash(b), nil
}
