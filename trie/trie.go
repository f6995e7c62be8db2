package trie

import (
	"errors"

	"github.com/corevm/corevm/core/types"
	"github.com/corevm/corevm/crypto"
)

var (
	// ErrNotFound is returned when a key is not in the trie.
	ErrNotFound = errors.New("trie: key not found")

	// ErrNoCheckpoint is returned by Commit/Revert with no open savepoint.
	ErrNoCheckpoint = errors.New("trie: no open checkpoint")
)

// emptyRoot is the root hash of the empty trie: Keccak256(RLP("")).
var emptyRoot = crypto.Keccak256Hash([]byte{0x80})

// Trie is a Merkle Patricia Trie supporting nested savepoints.
type Trie struct {
	root  node
	snaps []node
}

// New creates an empty trie.
func New() *Trie {
	return &Trie{}
}

// Copy returns a clone sharing the backing node structure. The clone has no
// open checkpoints; further writes to either trie do not affect the other.
func (t *Trie) Copy() *Trie {
	return &Trie{root: t.root}
}

// Checkpoint opens a savepoint covering all subsequent writes.
func (t *Trie) Checkpoint() {
	t.snaps = append(t.snaps, t.root)
}

// Commit closes the most recent savepoint, keeping its writes.
func (t *Trie) Commit() error {
	if len(t.snaps) == 0 {
		return ErrNoCheckpoint
	}
	t.snaps = t.snaps[:len(t.snaps)-1]
	return nil
}

// Revert closes the most recent savepoint, discarding every write made
// since it was opened.
func (t *Trie) Revert() error {
	if len(t.snaps) == 0 {
		return ErrNoCheckpoint
	}
	t.root = t.snaps[len(t.snaps)-1]
	t.snaps = t.snaps[:len(t.snaps)-1]
	return nil
}

// Get retrieves the value stored under key, or ErrNotFound.
func (t *Trie) Get(key []byte) ([]byte, error) {
	v, found := lookup(t.root, keybytesToHex(key), 0)
	if !found {
		return nil, ErrNotFound
	}
	return v, nil
}

func lookup(n node, key []byte, pos int) ([]byte, bool) {
	switch n := n.(type) {
	case nil:
		return nil, false
	case valueNode:
		return []byte(n), true
	case *shortNode:
		if len(key)-pos < len(n.Key) || !bytesEqual(n.Key, key[pos:pos+len(n.Key)]) {
			return nil, false
		}
		return lookup(n.Val, key, pos+len(n.Key))
	case *fullNode:
		if pos >= len(key) {
			return lookup(n.Children[16], key, pos)
		}
		return lookup(n.Children[key[pos]], key, pos+1)
	default:
		return nil, false
	}
}

// Put inserts or updates a key-value pair. An empty value deletes the key.
func (t *Trie) Put(key, value []byte) error {
	if len(value) == 0 {
		return t.Delete(key)
	}
	n, err := insert(t.root, keybytesToHex(key), valueNode(value))
	if err != nil {
		return err
	}
	t.root = n
	return nil
}

// insert adds value under the nibble key, building new nodes along the path
// and leaving every existing node untouched.
func insert(n node, key []byte, value node) (node, error) {
	if len(key) == 0 {
		return value, nil
	}
	switch n := n.(type) {
	case nil:
		return &shortNode{Key: key, Val: value, flags: nodeFlag{dirty: true}}, nil

	case *shortNode:
		matchLen := prefixLen(key, n.Key)
		if matchLen == len(n.Key) {
			child, err := insert(n.Val, key[matchLen:], value)
			if err != nil {
				return nil, err
			}
			return &shortNode{Key: n.Key, Val: child, flags: nodeFlag{dirty: true}}, nil
		}
		// Diverging keys: split into a branch.
		branch := &fullNode{flags: nodeFlag{dirty: true}}
		existing, err := insert(nil, n.Key[matchLen+1:], n.Val)
		if err != nil {
			return nil, err
		}
		branch.Children[n.Key[matchLen]] = existing
		added, err := insert(nil, key[matchLen+1:], value)
		if err != nil {
			return nil, err
		}
		branch.Children[key[matchLen]] = added
		if matchLen > 0 {
			return &shortNode{Key: key[:matchLen], Val: branch, flags: nodeFlag{dirty: true}}, nil
		}
		return branch, nil

	case *fullNode:
		nn := n.copy()
		nn.flags = nodeFlag{dirty: true}
		child, err := insert(n.Children[key[0]], key[1:], value)
		if err != nil {
			return nil, err
		}
		nn.Children[key[0]] = child
		return nn, nil

	default:
		return nil, errors.New("trie: unexpected node type on insert path")
	}
}

// Delete removes a key. Deleting a missing key is a no-op.
func (t *Trie) Delete(key []byte) error {
	n, err := remove(t.root, keybytesToHex(key))
	if err != nil {
		return err
	}
	t.root = n
	return nil
}

func remove(n node, key []byte) (node, error) {
	switch n := n.(type) {
	case nil:
		return nil, nil

	case *shortNode:
		matchLen := prefixLen(key, n.Key)
		if matchLen < len(n.Key) {
			return n, nil // key absent
		}
		if matchLen == len(key) {
			return nil, nil // exact match, drop the leaf
		}
		child, err := remove(n.Val, key[len(n.Key):])
		if err != nil {
			return nil, err
		}
		switch child := child.(type) {
		case nil:
			return nil, nil
		case *shortNode:
			return &shortNode{Key: concat(n.Key, child.Key), Val: child.Val, flags: nodeFlag{dirty: true}}, nil
		default:
			return &shortNode{Key: n.Key, Val: child, flags: nodeFlag{dirty: true}}, nil
		}

	case *fullNode:
		nn := n.copy()
		nn.flags = nodeFlag{dirty: true}
		child, err := remove(n.Children[key[0]], key[1:])
		if err != nil {
			return nil, err
		}
		nn.Children[key[0]] = child

		remaining := -1
		for i := 0; i < 17; i++ {
			if nn.Children[i] == nil {
				continue
			}
			if remaining >= 0 {
				return nn, nil // branch still has multiple children
			}
			remaining = i
		}
		if remaining < 0 {
			return nil, nil
		}
		// Collapse a single-child branch.
		if remaining == 16 {
			return &shortNode{Key: []byte{terminatorNibble}, Val: nn.Children[16], flags: nodeFlag{dirty: true}}, nil
		}
		if cn, ok := nn.Children[remaining].(*shortNode); ok {
			return &shortNode{Key: concat([]byte{byte(remaining)}, cn.Key), Val: cn.Val, flags: nodeFlag{dirty: true}}, nil
		}
		return &shortNode{Key: []byte{byte(remaining)}, Val: nn.Children[remaining], flags: nodeFlag{dirty: true}}, nil

	case valueNode:
		if len(key) == 0 {
			return nil, nil
		}
		return n, nil

	default:
		return nil, errors.New("trie: unexpected node type on delete path")
	}
}

// Root computes the Keccak-256 root hash of the trie.
func (t *Trie) Root() types.Hash {
	if t.root == nil {
		return emptyRoot
	}
	hashed, cached := hashRoot(t.root, true)
	t.root = cached
	if h, ok := hashed.(hashNode); ok {
		return types.BytesToHash(h)
	}
	return crypto.Keccak256Hash(encodeNode(hashed))
}

// Empty reports whether the trie holds no entries.
func (t *Trie) Empty() bool {
	return t.root == nil
}

// Len counts the stored key-value pairs. O(n).
func (t *Trie) Len() int {
	return countValues(t.root)
}

func countValues(n node) int {
	switch n := n.(type) {
	case valueNode:
		return 1
	case *shortNode:
		return countValues(n.Val)
	case *fullNode:
		count := 0
		for _, c := range n.Children {
			if c != nil {
				count += countValues(c)
			}
		}
		return count
	default:
		return 0
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
