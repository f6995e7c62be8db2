package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// Account is the state record stored for each address: the canonical
// [nonce, balance, storageRoot, codeHash] tuple.
type Account struct {
	Nonce    uint64
	Balance  *uint256.Int
	Root     Hash   // storage trie root (EmptyRootHash for no storage)
	CodeHash []byte // keccak256 of code (EmptyCodeHash for EOAs)
}

// NewAccount creates a fresh account with zero balance, empty storage and
// no code.
func NewAccount() *Account {
	return &Account{
		Balance:  new(uint256.Int),
		Root:     EmptyRootHash,
		CodeHash: EmptyCodeHash.Bytes(),
	}
}

// IsContract reports whether the account carries code.
func (a *Account) IsContract() bool {
	if len(a.CodeHash) == 0 {
		return false
	}
	return BytesToHash(a.CodeHash) != EmptyCodeHash
}

// Copy returns a deep copy of the account.
func (a *Account) Copy() *Account {
	cp := &Account{
		Nonce: a.Nonce,
		Root:  a.Root,
	}
	if a.Balance != nil {
		cp.Balance = new(uint256.Int).Set(a.Balance)
	} else {
		cp.Balance = new(uint256.Int)
	}
	if a.CodeHash != nil {
		cp.CodeHash = make([]byte, len(a.CodeHash))
		copy(cp.CodeHash, a.CodeHash)
	}
	return cp
}

// rlpAccount is the serialised trie representation of an account.
type rlpAccount struct {
	Nonce    uint64
	Balance  *uint256.Int
	Root     Hash
	CodeHash []byte
}

// EncodeAccount returns the RLP encoding [nonce, balance, storageRoot,
// codeHash] stored under the address key in the outer trie.
func EncodeAccount(a *Account) ([]byte, error) {
	balance := a.Balance
	if balance == nil {
		balance = new(uint256.Int)
	}
	codeHash := a.CodeHash
	if len(codeHash) == 0 {
		codeHash = EmptyCodeHash.Bytes()
	}
	return rlp.EncodeToBytes(&rlpAccount{
		Nonce:    a.Nonce,
		Balance:  balance,
		Root:     a.Root,
		CodeHash: codeHash,
	})
}

// DecodeAccount decodes the RLP trie representation. Empty input decodes to
// a fresh zero account: a missing trie key and an untouched account are the
// same thing.
func DecodeAccount(data []byte) (*Account, error) {
	if len(data) == 0 {
		return NewAccount(), nil
	}
	var dec rlpAccount
	if err := rlp.DecodeBytes(data, &dec); err != nil {
		return nil, fmt.Errorf("types: decode account: %w", err)
	}
	acc := &Account{
		Nonce:    dec.Nonce,
		Balance:  dec.Balance,
		Root:     dec.Root,
		CodeHash: dec.CodeHash,
	}
	if acc.Balance == nil {
		acc.Balance = new(uint256.Int)
	}
	if len(acc.CodeHash) == 0 {
		acc.CodeHash = EmptyCodeHash.Bytes()
	}
	return acc, nil
}
