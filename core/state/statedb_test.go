package state

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"github.com/corevm/corevm/core/types"
)

func newTestManager(t *testing.T) *StateManager {
	t.Helper()
	return NewManager(nil)
}

func seedAccount(t *testing.T, sm *StateManager, addr types.Address, nonce, balance uint64) {
	t.Helper()
	sm.PutAccount(addr, testAccount(nonce, balance))
	if err := sm.Flush(); err != nil {
		t.Fatalf("seed flush: %v", err)
	}
}

func TestManagerGetAccountMissing(t *testing.T) {
	sm := newTestManager(t)
	acct, err := sm.GetAccount(testAddress(1))
	if err != nil {
		t.Fatalf("getAccount: %v", err)
	}
	if acct.Nonce != 0 || acct.Balance.Sign() != 0 {
		t.Error("missing account must read as zero")
	}
}

func TestManagerPutGetRoundTrip(t *testing.T) {
	sm := newTestManager(t)
	addr := testAddress(1)
	want := testAccount(4, 1234)
	sm.PutAccount(addr, want)

	got, err := sm.GetAccount(addr)
	if err != nil {
		t.Fatal(err)
	}
	if got.Nonce != want.Nonce || got.Balance.Cmp(want.Balance) != 0 ||
		got.Root != want.Root || types.BytesToHash(got.CodeHash) != types.BytesToHash(want.CodeHash) {
		t.Error("round trip must preserve every field")
	}
}

func TestManagerBalances(t *testing.T) {
	sm := newTestManager(t)
	addr := testAddress(1)
	seedAccount(t, sm, addr, 0, 100)

	if err := sm.AddBalance(addr, uint256.NewInt(50)); err != nil {
		t.Fatal(err)
	}
	if err := sm.SubBalance(addr, uint256.NewInt(30)); err != nil {
		t.Fatal(err)
	}
	acct, _ := sm.GetAccount(addr)
	if acct.Balance.Uint64() != 120 {
		t.Errorf("balance: got %s, want 120", acct.Balance)
	}

	err := sm.SubBalance(addr, uint256.NewInt(121))
	if !errors.Is(err, ErrBalanceUnderflow) {
		t.Errorf("expected ErrBalanceUnderflow, got %v", err)
	}
	acct, _ = sm.GetAccount(addr)
	if acct.Balance.Uint64() != 120 {
		t.Error("failed debit must not change the balance")
	}
}

func TestManagerIncrementNonce(t *testing.T) {
	sm := newTestManager(t)
	addr := testAddress(2)
	if err := sm.IncrementNonce(addr); err != nil {
		t.Fatal(err)
	}
	if err := sm.IncrementNonce(addr); err != nil {
		t.Fatal(err)
	}
	acct, _ := sm.GetAccount(addr)
	if acct.Nonce != 2 {
		t.Errorf("nonce: got %d, want 2", acct.Nonce)
	}
}

func TestManagerCode(t *testing.T) {
	sm := newTestManager(t)
	addr := testAddress(3)
	code := []byte{0x60, 0x00, 0x60, 0x00, 0xf3}

	if err := sm.SetCode(addr, code); err != nil {
		t.Fatal(err)
	}
	acct, _ := sm.GetAccount(addr)
	if !acct.IsContract() {
		t.Fatal("account must become a contract")
	}
	got, err := sm.GetCode(addr)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(code) {
		t.Errorf("code: got %x, want %x", got, code)
	}

	// Code-less accounts read as nil.
	if c, _ := sm.GetCode(testAddress(4)); c != nil {
		t.Error("expected nil code for EOA")
	}
}

func TestManagerStorageRoundTrip(t *testing.T) {
	sm := newTestManager(t)
	addr := testAddress(5)
	key := types.BytesToHash([]byte{0x01})
	val := types.BytesToHash([]byte{0xaa, 0xbb})

	if err := sm.SetStorage(addr, key, val); err != nil {
		t.Fatal(err)
	}
	got, err := sm.GetStorage(addr, key)
	if err != nil {
		t.Fatal(err)
	}
	if got != val {
		t.Errorf("storage: got %s, want %s", got, val)
	}

	// Unset slots read as zero.
	if got, _ := sm.GetStorage(addr, types.BytesToHash([]byte{0x02})); !got.IsZero() {
		t.Error("unset slot must read as zero")
	}
}

func TestManagerStorageZeroWriteDeletes(t *testing.T) {
	sm := newTestManager(t)
	addr := testAddress(5)
	key := types.BytesToHash([]byte{0x01})

	if err := sm.SetStorage(addr, key, types.BytesToHash([]byte{0x01})); err != nil {
		t.Fatal(err)
	}
	if err := sm.SetStorage(addr, key, types.Hash{}); err != nil {
		t.Fatal(err)
	}
	acct, _ := sm.GetAccount(addr)
	if acct.Root != types.EmptyRootHash {
		t.Error("deleting the only slot must restore the empty storage root")
	}
}

func TestManagerStorageRootMatchesAccount(t *testing.T) {
	sm := newTestManager(t)
	addr := testAddress(6)
	if err := sm.SetStorage(addr, types.BytesToHash([]byte{1}), types.BytesToHash([]byte{2})); err != nil {
		t.Fatal(err)
	}
	acct, _ := sm.GetAccount(addr)
	if acct.Root == types.EmptyRootHash || acct.Root.IsZero() {
		t.Fatal("account root must track the storage trie")
	}
	if acct.Root != sm.storageTrie(addr).Root() {
		t.Error("cached storage root diverged from the working trie")
	}
}

func TestManagerCommitContracts(t *testing.T) {
	sm := newTestManager(t)
	addr := testAddress(7)
	key := types.BytesToHash([]byte{1})
	val := types.BytesToHash([]byte{9})

	if err := sm.SetStorage(addr, key, val); err != nil {
		t.Fatal(err)
	}
	if err := sm.CommitContracts(); err != nil {
		t.Fatal(err)
	}
	if len(sm.active) != 0 {
		t.Error("commit must empty the registry")
	}
	// Reads after commit resolve through the committed trie.
	got, err := sm.GetStorage(addr, key)
	if err != nil {
		t.Fatal(err)
	}
	if got != val {
		t.Error("committed storage lost")
	}
}

func TestManagerRevertContracts(t *testing.T) {
	sm := newTestManager(t)
	addr := testAddress(7)
	if err := sm.SetStorage(addr, types.BytesToHash([]byte{1}), types.BytesToHash([]byte{9})); err != nil {
		t.Fatal(err)
	}
	sm.RevertContracts()
	got, _ := sm.GetStorage(addr, types.BytesToHash([]byte{1}))
	if !got.IsZero() {
		t.Error("reverted storage must be gone")
	}
}

func TestManagerCheckpointRevertSpansLayers(t *testing.T) {
	sm := newTestManager(t)
	addr := testAddress(8)
	seedAccount(t, sm, addr, 1, 1000)
	key := types.BytesToHash([]byte{1})
	if err := sm.SetStorage(addr, key, types.BytesToHash([]byte{5})); err != nil {
		t.Fatal(err)
	}

	root, err := sm.StateRoot()
	if err != nil {
		t.Fatal(err)
	}
	acctBefore, _ := sm.GetAccount(addr)

	sm.Checkpoint()
	if err := sm.AddBalance(addr, uint256.NewInt(500)); err != nil {
		t.Fatal(err)
	}
	if err := sm.SetStorage(addr, key, types.BytesToHash([]byte{6})); err != nil {
		t.Fatal(err)
	}
	sm.PutAccount(testAddress(9), testAccount(0, 7))

	if err := sm.Revert(); err != nil {
		t.Fatalf("revert: %v", err)
	}

	acct, _ := sm.GetAccount(addr)
	if acct.Balance.Cmp(acctBefore.Balance) != 0 {
		t.Error("balance change must roll back")
	}
	if acct.Root != acctBefore.Root {
		t.Error("storage root must roll back")
	}
	if got, _ := sm.GetStorage(addr, key); got != types.BytesToHash([]byte{5}) {
		t.Error("storage write must roll back")
	}

	after, err := sm.StateRoot()
	if err != nil {
		t.Fatal(err)
	}
	if after != root {
		t.Errorf("state root after revert: got %s, want %s", after, root)
	}
}

func TestManagerCheckpointCommitKeepsWrites(t *testing.T) {
	sm := newTestManager(t)
	addr := testAddress(8)

	sm.Checkpoint()
	if err := sm.AddBalance(addr, uint256.NewInt(5)); err != nil {
		t.Fatal(err)
	}
	if err := sm.Commit(); err != nil {
		t.Fatal(err)
	}
	acct, _ := sm.GetAccount(addr)
	if acct.Balance.Uint64() != 5 {
		t.Error("committed write lost")
	}
}

func TestManagerOnRevert(t *testing.T) {
	sm := newTestManager(t)

	var order []int
	sm.Checkpoint()
	sm.OnRevert(func() { order = append(order, 1) })
	sm.OnRevert(func() { order = append(order, 2) })
	if err := sm.Revert(); err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Errorf("callbacks must run in reverse order, got %v", order)
	}
}

func TestManagerOnRevertSurvivesInnerCommit(t *testing.T) {
	sm := newTestManager(t)
	called := false

	sm.Checkpoint() // outer
	sm.Checkpoint() // inner
	sm.OnRevert(func() { called = true })
	if err := sm.Commit(); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Fatal("commit must not fire revert callbacks")
	}
	if err := sm.Revert(); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("outer revert must fire callbacks of committed inner savepoints")
	}
}

func TestManagerWarmThenFlushKeepsRoot(t *testing.T) {
	sm := newTestManager(t)
	seedAccount(t, sm, testAddress(1), 1, 10)
	root, err := sm.StateRoot()
	if err != nil {
		t.Fatal(err)
	}
	sm.Clear()

	if err := sm.Warm(testAddress(1), testAddress(2), testAddress(3)); err != nil {
		t.Fatal(err)
	}
	after, err := sm.StateRoot()
	if err != nil {
		t.Fatal(err)
	}
	if after != root {
		t.Error("warming then flushing must leave the trie root unchanged")
	}
}

func TestManagerBlockHash(t *testing.T) {
	sm := newTestManager(t)
	if !sm.BlockHash(1).IsZero() {
		t.Error("manager without a chain must resolve zero hashes")
	}

	want := types.BytesToHash([]byte{0xbb})
	sm2 := NewManager(chainStub{hash: want})
	if sm2.BlockHash(5) != want {
		t.Error("block hash must come from the chain collaborator")
	}
}

type chainStub struct {
	hash types.Hash
}

func (c chainStub) GetBlockByNumber(number uint64) *types.Block {
	return types.NewBlock(&types.Header{Number: number}, c.hash)
}
