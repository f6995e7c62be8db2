package state

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/corevm/corevm/core/types"
	"github.com/corevm/corevm/trie"
)

// ChainReader resolves historical blocks for BLOCKHASH lookups.
type ChainReader interface {
	GetBlockByNumber(number uint64) *types.Block
}

// frame is one open savepoint: the storage-trie registry snapshot plus the
// revert callbacks registered while the savepoint was on top.
type frame struct {
	active   map[types.Address]*trie.Trie
	onRevert []func()
}

// StateManager is the unified facade over the account cache, the outer
// account trie, the per-contract storage tries and the code region.
// Checkpoint, Commit and Revert treat cache, trie and storage tries as one
// transactional unit: a revert rolls back cache contents, trie root,
// storage-trie roots and registered callbacks together. The code region is
// content-addressed and stays outside savepoints.
//
// A StateManager serves one transaction at a time; callers serialise.
type StateManager struct {
	trie  *trie.Trie
	cache *AccountCache
	codes *CodeStore

	// committed holds each contract's storage trie as of the last
	// CommitContracts; active holds the working copies touched by the
	// current transaction.
	committed map[types.Address]*trie.Trie
	active    map[types.Address]*trie.Trie

	frames []*frame
	chain  ChainReader
}

// NewManager creates a state manager over a fresh, empty world state.
func NewManager(chain ChainReader) *StateManager {
	tr := trie.New()
	return &StateManager{
		trie:      tr,
		cache:     NewAccountCache(tr),
		codes:     NewCodeStore(),
		committed: make(map[types.Address]*trie.Trie),
		active:    make(map[types.Address]*trie.Trie),
		chain:     chain,
	}
}

// Cache exposes the underlying account cache.
func (s *StateManager) Cache() *AccountCache { return s.cache }

// GetAccount returns the account at addr, loading it on demand. A missing
// key yields a fresh zero account, never an error.
func (s *StateManager) GetAccount(addr types.Address) (*types.Account, error) {
	return s.cache.GetOrLoad(addr)
}

// PutAccount writes the account into the cache as dirty.
func (s *StateManager) PutAccount(addr types.Address, acct *types.Account) {
	s.cache.Put(addr, acct)
}

// DeleteAccount marks the account deleted; the flush removes its trie key.
func (s *StateManager) DeleteAccount(addr types.Address) {
	s.cache.Delete(addr)
}

// IncrementNonce bumps the account nonce by one.
func (s *StateManager) IncrementNonce(addr types.Address) error {
	acct, err := s.cache.GetOrLoad(addr)
	if err != nil {
		return err
	}
	acct.Nonce++
	s.cache.Put(addr, acct)
	return nil
}

// AddBalance credits amount to the account at addr.
func (s *StateManager) AddBalance(addr types.Address, amount *uint256.Int) error {
	acct, err := s.cache.GetOrLoad(addr)
	if err != nil {
		return err
	}
	acct.Balance.Add(acct.Balance, amount)
	s.cache.Put(addr, acct)
	return nil
}

// SubBalance debits amount from the account at addr. The debit is rejected
// with ErrBalanceUnderflow when the balance does not cover it.
func (s *StateManager) SubBalance(addr types.Address, amount *uint256.Int) error {
	acct, err := s.cache.GetOrLoad(addr)
	if err != nil {
		return err
	}
	if acct.Balance.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrBalanceUnderflow, addr, acct.Balance, amount)
	}
	acct.Balance.Sub(acct.Balance, amount)
	s.cache.Put(addr, acct)
	return nil
}

// GetCode returns the contract code for the account at addr; nil for
// code-less accounts.
func (s *StateManager) GetCode(addr types.Address) ([]byte, error) {
	acct, err := s.cache.GetOrLoad(addr)
	if err != nil {
		return nil, err
	}
	return s.CodeByHash(types.BytesToHash(acct.CodeHash)), nil
}

// CodeByHash reads a code blob straight from the code region.
func (s *StateManager) CodeByHash(hash types.Hash) []byte {
	return s.codes.Get(hash)
}

// SetCode installs code for the account at addr: the blob goes into the
// code region keyed by its hash, and the account's codeHash is updated in
// the cache.
func (s *StateManager) SetCode(addr types.Address, code []byte) error {
	acct, err := s.cache.GetOrLoad(addr)
	if err != nil {
		return err
	}
	hash := s.codes.Put(code)
	acct.CodeHash = hash.Bytes()
	s.cache.Put(addr, acct)
	return nil
}

// GetStorage reads one word of contract storage. Unset slots read as zero.
func (s *StateManager) GetStorage(addr types.Address, key types.Hash) (types.Hash, error) {
	tr := s.storageTrie(addr)
	if tr == nil {
		return types.Hash{}, nil
	}
	data, err := tr.Get(key.Bytes())
	if err != nil {
		if errors.Is(err, trie.ErrNotFound) {
			return types.Hash{}, nil
		}
		return types.Hash{}, fmt.Errorf("state: storage read %s: %w", addr, err)
	}
	return decodeStorageValue(data)
}

// SetStorage writes one word of contract storage. A zero value deletes the
// slot. The account is read fresh from the cache at the write site and its
// storage root updated in the same step, so the cached root always matches
// the working trie.
func (s *StateManager) SetStorage(addr types.Address, key, value types.Hash) error {
	acct, err := s.cache.GetOrLoad(addr)
	if err != nil {
		return err
	}
	tr := s.activateStorageTrie(addr)
	if value.IsZero() {
		err = tr.Delete(key.Bytes())
	} else {
		var data []byte
		data, err = encodeStorageValue(value)
		if err == nil {
			err = tr.Put(key.Bytes(), data)
		}
	}
	if err != nil {
		return fmt.Errorf("state: storage write %s: %w", addr, err)
	}
	acct.Root = tr.Root()
	s.cache.Put(addr, acct)
	return nil
}

// storageTrie returns the trie serving reads for addr: the working copy if
// the contract was touched this transaction, the committed trie otherwise.
func (s *StateManager) storageTrie(addr types.Address) *trie.Trie {
	if tr, ok := s.active[addr]; ok {
		return tr
	}
	return s.committed[addr]
}

// activateStorageTrie returns the working storage trie for addr, creating
// it on first mutation as a copy of the committed trie.
func (s *StateManager) activateStorageTrie(addr types.Address) *trie.Trie {
	if tr, ok := s.active[addr]; ok {
		return tr
	}
	var tr *trie.Trie
	if base, ok := s.committed[addr]; ok {
		tr = base.Copy()
	} else {
		tr = trie.New()
	}
	s.active[addr] = tr
	return tr
}

// CommitContracts folds every working storage trie into the committed set,
// refreshing the owning account's storage root in the cache first so the
// outer flush writes matching roots. Deleted accounts are skipped.
func (s *StateManager) CommitContracts() error {
	for addr, tr := range s.active {
		if !s.cache.isDeleted(addr) {
			acct, err := s.cache.GetOrLoad(addr)
			if err != nil {
				return err
			}
			acct.Root = tr.Root()
			s.cache.Put(addr, acct)
		}
		s.committed[addr] = tr
		delete(s.active, addr)
	}
	return nil
}

// RevertContracts discards every working storage trie without committing.
func (s *StateManager) RevertContracts() {
	s.active = make(map[types.Address]*trie.Trie)
}

// BlockHash resolves a block number through the chain collaborator. Without
// one, or for unknown blocks, it returns the zero hash.
func (s *StateManager) BlockHash(number uint64) types.Hash {
	if s.chain == nil {
		return types.Hash{}
	}
	blk := s.chain.GetBlockByNumber(number)
	if blk == nil {
		return types.Hash{}
	}
	return blk.Hash()
}

// Checkpoint opens a savepoint spanning cache, outer trie, storage-trie
// registry and revert callbacks.
func (s *StateManager) Checkpoint() {
	s.cache.Checkpoint()
	s.trie.Checkpoint()
	snap := make(map[types.Address]*trie.Trie, len(s.active))
	for addr, tr := range s.active {
		snap[addr] = tr.Copy()
	}
	s.frames = append(s.frames, &frame{active: snap})
}

// Commit closes the newest savepoint, keeping its writes. Its revert
// callbacks migrate to the enclosing savepoint so an outer revert still
// undoes inner effects.
func (s *StateManager) Commit() error {
	if len(s.frames) == 0 {
		return ErrNoCheckpoint
	}
	if err := s.cache.Commit(); err != nil {
		return err
	}
	if err := s.trie.Commit(); err != nil {
		return err
	}
	top := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	if len(s.frames) > 0 {
		parent := s.frames[len(s.frames)-1]
		parent.onRevert = append(parent.onRevert, top.onRevert...)
	}
	return nil
}

// Revert closes the newest savepoint, rolling back cache, trie and storage
// registry, and invoking the savepoint's revert callbacks in reverse order.
func (s *StateManager) Revert() error {
	if len(s.frames) == 0 {
		return ErrNoCheckpoint
	}
	if err := s.cache.Revert(); err != nil {
		return err
	}
	if err := s.trie.Revert(); err != nil {
		return err
	}
	top := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	for i := len(top.onRevert) - 1; i >= 0; i-- {
		top.onRevert[i]()
	}
	s.active = top.active
	return nil
}

// OnRevert registers a callback to run if the current savepoint reverts.
// Without an open savepoint the callback can never fire and is dropped.
func (s *StateManager) OnRevert(fn func()) {
	if len(s.frames) == 0 {
		return
	}
	top := s.frames[len(s.frames)-1]
	top.onRevert = append(top.onRevert, fn)
}

// Warm bulk pre-loads addresses into the cache as warm, clean entries.
func (s *StateManager) Warm(addrs ...types.Address) error {
	return s.cache.Warm(addrs...)
}

// Flush writes dirty cache entries through to the outer trie.
func (s *StateManager) Flush() error {
	return s.cache.Flush()
}

// Clear drops the account cache.
func (s *StateManager) Clear() {
	s.cache.Clear()
}

// StateRoot flushes the cache and returns the outer trie root.
func (s *StateManager) StateRoot() (types.Hash, error) {
	if err := s.cache.Flush(); err != nil {
		return types.Hash{}, err
	}
	return s.trie.Root(), nil
}
