package core

import "github.com/corevm/corevm/core/types"

// Blockchain resolves historical blocks for BLOCKHASH lookups.
type Blockchain interface {
	GetBlockByNumber(number uint64) *types.Block
}

// zeroChain is the stub chain: every lookup misses, so BLOCKHASH reads as
// the zero hash.
type zeroChain struct{}

// NewZeroChain returns a Blockchain stub resolving every number to nothing.
func NewZeroChain() Blockchain {
	return zeroChain{}
}

func (zeroChain) GetBlockByNumber(uint64) *types.Block { return nil }
