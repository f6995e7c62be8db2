// Package state implements the layered, checkpointable world-state: a
// write-back account cache and per-contract storage tries in front of an
// authenticated trie, coordinated by the StateManager facade.
package state

import (
	"errors"
	"fmt"

	"github.com/corevm/corevm/core/types"
	"github.com/corevm/corevm/trie"
)

var (
	// ErrCacheMiss is returned by Get for an address that was neither
	// warmed nor loaded.
	ErrCacheMiss = errors.New("state: account not in cache")

	// ErrNoCheckpoint is returned by Commit/Revert with no open savepoint.
	ErrNoCheckpoint = errors.New("state: no open checkpoint")

	// ErrBalanceUnderflow is returned when a debit would make a balance
	// negative.
	ErrBalanceUnderflow = errors.New("state: balance underflow")
)

// cacheEntry is one cached account record.
type cacheEntry struct {
	account *types.Account
	dirty   bool
	deleted bool
	warm    bool
}

func (e *cacheEntry) copy() *cacheEntry {
	cp := *e
	if e.account != nil {
		cp.account = e.account.Copy()
	}
	return &cp
}

// AccountCache is a write-back layer in front of the account trie. Entries
// are keyed by address; dirty entries reach the trie on Flush, deleted
// entries remove their key. The checkpoint stack snapshots the whole entry
// table so nested frames can roll back.
type AccountCache struct {
	trie    *trie.Trie
	entries map[types.Address]*cacheEntry
	snaps   []map[types.Address]*cacheEntry
}

// NewAccountCache creates a cache backed by the given account trie.
func NewAccountCache(tr *trie.Trie) *AccountCache {
	return &AccountCache{
		trie:    tr,
		entries: make(map[types.Address]*cacheEntry),
	}
}

// Get returns the cached account. The address must have been warmed or
// loaded first; otherwise ErrCacheMiss. A deleted entry reads as a fresh
// zero account.
func (c *AccountCache) Get(addr types.Address) (*types.Account, error) {
	e, ok := c.entries[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCacheMiss, addr)
	}
	if e.deleted || e.account == nil {
		return types.NewAccount(), nil
	}
	return e.account.Copy(), nil
}

// GetOrLoad returns the cached account, loading it from the trie on a miss.
// A missing trie key yields a fresh zero account.
func (c *AccountCache) GetOrLoad(addr types.Address) (*types.Account, error) {
	if e, ok := c.entries[addr]; ok {
		if e.deleted || e.account == nil {
			return types.NewAccount(), nil
		}
		return e.account.Copy(), nil
	}
	acct, err := c.load(addr)
	if err != nil {
		return nil, err
	}
	c.entries[addr] = &cacheEntry{account: acct.Copy(), warm: true}
	return acct, nil
}

// load reads and decodes an account from the trie. Absent keys decode to a
// fresh zero account.
func (c *AccountCache) load(addr types.Address) (*types.Account, error) {
	data, err := c.trie.Get(addr.Bytes())
	if err != nil {
		if errors.Is(err, trie.ErrNotFound) {
			return types.NewAccount(), nil
		}
		return nil, fmt.Errorf("state: load %s: %w", addr, err)
	}
	return types.DecodeAccount(data)
}

// Put writes an account into the cache as dirty; Flush will persist it.
func (c *AccountCache) Put(addr types.Address, acct *types.Account) {
	c.entries[addr] = &cacheEntry{account: acct.Copy(), dirty: true}
}

// PutWarm stores an account as warm and clean: readable without a trie
// round-trip, never flushed unless later dirtied.
func (c *AccountCache) PutWarm(addr types.Address, acct *types.Account) {
	if e, ok := c.entries[addr]; ok && (e.dirty || e.deleted) {
		// Never let a warm pre-load clobber pending writes.
		return
	}
	c.entries[addr] = &cacheEntry{account: acct.Copy(), warm: true}
}

// Delete marks the address deleted; Flush will remove the key from the trie.
func (c *AccountCache) Delete(addr types.Address) {
	c.entries[addr] = &cacheEntry{deleted: true, dirty: true}
}

// isDeleted reports whether the cache holds a pending deletion for addr.
func (c *AccountCache) isDeleted(addr types.Address) bool {
	e, ok := c.entries[addr]
	return ok && e.deleted
}

// Warm bulk-loads addresses from the trie as warm, clean entries.
func (c *AccountCache) Warm(addrs ...types.Address) error {
	for _, addr := range addrs {
		acct, err := c.load(addr)
		if err != nil {
			return err
		}
		c.PutWarm(addr, acct)
	}
	return nil
}

// Checkpoint snapshots the entry table.
func (c *AccountCache) Checkpoint() {
	snap := make(map[types.Address]*cacheEntry, len(c.entries))
	for addr, e := range c.entries {
		snap[addr] = e.copy()
	}
	c.snaps = append(c.snaps, snap)
}

// Commit discards the most recent snapshot, keeping all writes.
func (c *AccountCache) Commit() error {
	if len(c.snaps) == 0 {
		return ErrNoCheckpoint
	}
	c.snaps = c.snaps[:len(c.snaps)-1]
	return nil
}

// Revert restores the entry table to the most recent snapshot.
func (c *AccountCache) Revert() error {
	if len(c.snaps) == 0 {
		return ErrNoCheckpoint
	}
	c.entries = c.snaps[len(c.snaps)-1]
	c.snaps = c.snaps[:len(c.snaps)-1]
	return nil
}

// Flush writes every dirty entry through to the trie: deletions remove the
// key, the rest store the serialised account. Warm entries that stayed
// clean are never written.
func (c *AccountCache) Flush() error {
	for addr, e := range c.entries {
		if !e.dirty {
			continue
		}
		if e.deleted {
			if err := c.trie.Delete(addr.Bytes()); err != nil {
				return fmt.Errorf("state: flush delete %s: %w", addr, err)
			}
			delete(c.entries, addr)
			continue
		}
		data, err := types.EncodeAccount(e.account)
		if err != nil {
			return fmt.Errorf("state: flush %s: %w", addr, err)
		}
		if err := c.trie.Put(addr.Bytes(), data); err != nil {
			return fmt.Errorf("state: flush %s: %w", addr, err)
		}
		e.dirty = false
	}
	return nil
}

// Clear drops every entry and snapshot.
func (c *AccountCache) Clear() {
	c.entries = make(map[types.Address]*cacheEntry)
	c.snaps = nil
}

// Len returns the number of cached entries.
func (c *AccountCache) Len() int {
	return len(c.entries)
}
