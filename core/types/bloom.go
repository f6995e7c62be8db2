package types

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// BloomBitLength is the number of bits in a log bloom filter (2048).
const BloomBitLength = 8 * BloomLength

// bloom9 computes the 3 bit positions for a bloom filter entry.
// It takes the first 6 bytes of keccak256(data), splits them into 3 pairs
// of 2 bytes each, and interprets each pair as a big-endian uint16 mod 2048.
func bloom9(data []byte) [3]uint {
	d := sha3.NewLegacyKeccak256()
	d.Write(data)
	h := d.Sum(nil)
	var bits [3]uint
	for i := 0; i < 3; i++ {
		bits[i] = uint(binary.BigEndian.Uint16(h[2*i:])) & 0x7FF // mod 2048
	}
	return bits
}

// Add inserts data (a 20-byte address or 32-byte topic) into the bloom
// filter by setting the 3 bit positions derived from its hash.
func (b *Bloom) Add(data []byte) {
	bits := bloom9(data)
	for _, bit := range bits {
		// bit is 0..2047; bit 0 lives in the last byte of the array.
		byteIdx := BloomLength - 1 - bit/8
		b[byteIdx] |= 1 << (bit % 8)
	}
}

// Test checks whether data might be present in the bloom filter.
// Returns true if all 3 bits for the data are set (may be a false positive).
func (b Bloom) Test(data []byte) bool {
	bits := bloom9(data)
	for _, bit := range bits {
		byteIdx := BloomLength - 1 - bit/8
		if b[byteIdx]&(1<<(bit%8)) == 0 {
			return false
		}
	}
	return true
}

// Or folds another bloom filter into the receiver.
func (b *Bloom) Or(other Bloom) {
	for i := range b {
		b[i] |= other[i]
	}
}

// Bytes returns a copy of the bloom filter as a byte slice.
func (b Bloom) Bytes() []byte {
	out := make([]byte, BloomLength)
	copy(out, b[:])
	return out
}

// LogsBloom computes the bloom filter for a set of logs. For each log, the
// log address and every topic are inserted; the data payload is not.
func LogsBloom(logs []*Log) Bloom {
	var bloom Bloom
	for _, log := range logs {
		bloom.Add(log.Address.Bytes())
		for _, topic := range log.Topics {
			bloom.Add(topic.Bytes())
		}
	}
	return bloom
}
