package vm

import (
	"crypto/sha256"
	"math/big"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160"

	"github.com/corevm/corevm/core/types"
)

// Gas schedule for the fixed precompile set.
const (
	ecrecoverGas     uint64 = 3000
	sha256BaseGas    uint64 = 60
	sha256WordGas    uint64 = 12
	ripemd160BaseGas uint64 = 600
	ripemd160WordGas uint64 = 120
	identityBaseGas  uint64 = 15
	identityWordGas  uint64 = 3
)

// PrecompiledContract is a natively implemented contract at a fixed address.
type PrecompiledContract interface {
	RequiredGas(input []byte) uint64
	Run(input []byte) ([]byte, error)
}

// PrecompiledContracts maps the fixed precompile addresses 0x01..0x04.
var PrecompiledContracts = map[types.Address]PrecompiledContract{
	types.BytesToAddress([]byte{1}): &ecrecover{},
	types.BytesToAddress([]byte{2}): &sha256hash{},
	types.BytesToAddress([]byte{3}): &ripemd160hash{},
	types.BytesToAddress([]byte{4}): &dataCopy{},
}

// Precompiled returns the native contract at addr, if any.
func Precompiled(addr types.Address) (PrecompiledContract, bool) {
	p, ok := PrecompiledContracts[addr]
	return p, ok
}

// IsPrecompiled checks whether addr belongs to the fixed precompile set.
func IsPrecompiled(addr types.Address) bool {
	_, ok := PrecompiledContracts[addr]
	return ok
}

// wordCount rounds the input length up to 32-byte words.
func wordCount(input []byte) uint64 {
	return (uint64(len(input)) + 31) / 32
}

// padRight pads input with zeros to at least n bytes.
func padRight(input []byte, n int) []byte {
	if len(input) >= n {
		return input
	}
	out := make([]byte, n)
	copy(out, input)
	return out
}

// --- ecrecover (address 0x01) ---

type ecrecover struct{}

func (c *ecrecover) RequiredGas(input []byte) uint64 {
	return ecrecoverGas
}

func (c *ecrecover) Run(input []byte) ([]byte, error) {
	input = padRight(input, 128)

	hash := input[0:32]
	v := new(big.Int).SetBytes(input[32:64])
	r := new(big.Int).SetBytes(input[64:96])
	s := new(big.Int).SetBytes(input[96:128])

	// v must be 27 or 28; anything else yields empty output, not an error.
	if v.BitLen() > 8 {
		return nil, nil
	}
	vByte := byte(v.Uint64())
	if vByte != 27 && vByte != 28 {
		return nil, nil
	}
	if !gethcrypto.ValidateSignatureValues(vByte-27, r, s, false) {
		return nil, nil
	}

	sig := make([]byte, 65)
	rBytes := r.Bytes()
	sBytes := s.Bytes()
	copy(sig[32-len(rBytes):32], rBytes)
	copy(sig[64-len(sBytes):64], sBytes)
	sig[64] = vByte - 27

	pub, err := gethcrypto.Ecrecover(hash, sig)
	if err != nil {
		return nil, nil
	}

	// Address is Keccak256(pubkey[1:])[12:], left-padded to 32 bytes.
	addr := gethcrypto.Keccak256(pub[1:])
	result := make([]byte, 32)
	copy(result[12:], addr[12:])
	return result, nil
}

// --- sha256 (address 0x02) ---

type sha256hash struct{}

func (c *sha256hash) RequiredGas(input []byte) uint64 {
	return sha256BaseGas + sha256WordGas*wordCount(input)
}

func (c *sha256hash) Run(input []byte) ([]byte, error) {
	h := sha256.Sum256(input)
	return h[:], nil
}

// --- ripemd160 (address 0x03) ---

type ripemd160hash struct{}

func (c *ripemd160hash) RequiredGas(input []byte) uint64 {
	return ripemd160BaseGas + ripemd160WordGas*wordCount(input)
}

func (c *ripemd160hash) Run(input []byte) ([]byte, error) {
	h := ripemd160.New()
	h.Write(input)
	// 20-byte digest, left-padded to 32 bytes.
	return padLeft(h.Sum(nil), 32), nil
}

// --- identity (address 0x04) ---

type dataCopy struct{}

func (c *dataCopy) RequiredGas(input []byte) uint64 {
	return identityBaseGas + identityWordGas*wordCount(input)
}

func (c *dataCopy) Run(input []byte) ([]byte, error) {
	out := make([]byte, len(input))
	copy(out, input)
	return out, nil
}

// padLeft pads input with leading zeros to n bytes; input of n bytes or
// more is returned unchanged.
func padLeft(input []byte, n int) []byte {
	if len(input) >= n {
		return input
	}
	out := make([]byte, n)
	copy(out[n-len(input):], input)
	return out
}
