// Package crypto provides the hashing primitives used by the state layer.
package crypto

import (
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"

	"github.com/corevm/corevm/core/types"
)

// Keccak256 calculates the Keccak-256 hash of the given data.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Keccak256Hash calculates Keccak-256 and returns it as a types.Hash.
func Keccak256Hash(data ...[]byte) types.Hash {
	return types.BytesToHash(Keccak256(data...))
}

// CreateAddress derives the address of a contract created by sender with the
// given nonce: Keccak256(RLP([sender, nonce]))[12:].
func CreateAddress(sender types.Address, nonce uint64) types.Address {
	addr := gethcrypto.CreateAddress(gethcommonAddress(sender), nonce)
	return types.BytesToAddress(addr.Bytes())
}
