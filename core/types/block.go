package types

import "github.com/holiman/uint256"

// Header holds the block context fields the execution core reads. All
// fields are read-only inside the core.
type Header struct {
	Coinbase   Address
	Number     uint64
	GasLimit   uint64
	Time       uint64
	Difficulty *uint256.Int
}

// Block wraps a header and its hash for BLOCKHASH lookups.
type Block struct {
	header *Header
	hash   Hash
}

// NewBlock creates a block from a header and a precomputed hash.
func NewBlock(header *Header, hash Hash) *Block {
	return &Block{header: header, hash: hash}
}

// Header returns the block header.
func (b *Block) Header() *Header { return b.header }

// Hash returns the block hash.
func (b *Block) Hash() Hash { return b.hash }

// defaultBlockGasLimit is used for synthesised blocks: 2^52 - 1, a value
// exceeding any transaction gas limit.
const defaultBlockGasLimit = 1<<52 - 1

// DefaultBlock synthesises a block for transactions executed without an
// explicit block context.
func DefaultBlock() *Block {
	return NewBlock(&Header{
		GasLimit:   defaultBlockGasLimit,
		Difficulty: new(uint256.Int),
	}, Hash{})
}
