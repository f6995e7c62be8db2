package state

import (
	"github.com/VictoriaMetrics/fastcache"

	"github.com/corevm/corevm/core/types"
	"github.com/corevm/corevm/crypto"
)

// codeCacheSize bounds the hot-read cache in front of the code region.
const codeCacheSize = 16 * 1024 * 1024

// CodeStore is the auxiliary code region: contract code blobs keyed by
// their Keccak256 hash. Content addressing makes writes idempotent, so the
// store sits outside checkpoint scope. A fastcache front absorbs hot reads.
type CodeStore struct {
	codes map[types.Hash][]byte
	hot   *fastcache.Cache
}

// NewCodeStore creates an empty code store.
func NewCodeStore() *CodeStore {
	return &CodeStore{
		codes: make(map[types.Hash][]byte),
		hot:   fastcache.New(codeCacheSize),
	}
}

// Put stores a code blob and returns its hash.
func (s *CodeStore) Put(code []byte) types.Hash {
	hash := crypto.Keccak256Hash(code)
	cp := make([]byte, len(code))
	copy(cp, code)
	s.codes[hash] = cp
	s.hot.Set(hash.Bytes(), cp)
	return hash
}

// Get returns the code blob for hash, or nil when unknown or empty.
func (s *CodeStore) Get(hash types.Hash) []byte {
	if hash == types.EmptyCodeHash || hash.IsZero() {
		return nil
	}
	if v, ok := s.hot.HasGet(nil, hash.Bytes()); ok {
		return v
	}
	return s.codes[hash]
}
