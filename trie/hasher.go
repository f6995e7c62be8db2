package trie

import (
	"github.com/corevm/corevm/crypto"
)

// hashRoot computes the root reference of n, caching intermediate hashes on
// the returned node structure. force makes the root hash even when its
// encoding is shorter than 32 bytes.
func hashRoot(n node, force bool) (node, node) {
	if hash, dirty := n.cache(); hash != nil && !dirty {
		return hash, n
	}
	collapsed, cached := collapseChildren(n)
	hashed := storeNode(collapsed, force)
	if h, ok := hashed.(hashNode); ok {
		switch cn := cached.(type) {
		case *shortNode:
			cn.flags = nodeFlag{hash: h}
		case *fullNode:
			cn.flags = nodeFlag{hash: h}
		}
	}
	return hashed, cached
}

// collapseChildren replaces every child with its hash (or inline encoding)
// and compact-encodes short-node keys. It returns the collapsed node for
// serialisation and a cached twin that keeps the full children for further
// trie use.
func collapseChildren(original node) (node, node) {
	switch n := original.(type) {
	case *shortNode:
		collapsed, cached := n.copy(), n.copy()
		collapsed.Key = hexToCompact(n.Key)
		if _, ok := n.Val.(valueNode); !ok {
			childH, childC := hashRoot(n.Val, false)
			collapsed.Val = childH
			cached.Val = childC
		}
		return collapsed, cached
	case *fullNode:
		collapsed, cached := n.copy(), n.copy()
		for i := 0; i < 16; i++ {
			if n.Children[i] != nil {
				childH, childC := hashRoot(n.Children[i], false)
				collapsed.Children[i] = childH
				cached.Children[i] = childC
			}
		}
		return collapsed, cached
	default:
		return n, n
	}
}

// storeNode encodes a node and returns its reference: the keccak hash when
// the encoding is 32 bytes or longer, the node itself otherwise.
func storeNode(n node, force bool) node {
	switch n.(type) {
	case hashNode, valueNode:
		return n
	}
	enc := encodeNode(n)
	if len(enc) < 32 && !force {
		return n
	}
	return hashNode(crypto.Keccak256(enc))
}

// encodeNode serialises a collapsed node:
// shortNode => 2-element list [compactKey, val]
// fullNode  => 17-element list [child0..child15, value]
func encodeNode(n node) []byte {
	switch n := n.(type) {
	case *shortNode:
		payload := encodeBytes(n.Key)
		payload = append(payload, encodeRef(n.Val)...)
		return wrapList(payload)
	case *fullNode:
		var payload []byte
		for i := 0; i < 17; i++ {
			payload = append(payload, encodeRef(n.Children[i])...)
		}
		return wrapList(payload)
	case hashNode:
		return []byte(n)
	case valueNode:
		return encodeBytes(n)
	default:
		return nil
	}
}

// encodeRef encodes a node for inclusion in its parent's serialisation.
func encodeRef(n node) []byte {
	switch n := n.(type) {
	case nil:
		return []byte{0x80}
	case valueNode:
		return encodeBytes(n)
	case hashNode:
		return encodeBytes(n)
	default:
		// Inline node: shorter than 32 bytes, embedded verbatim.
		return encodeNode(n)
	}
}

// encodeBytes RLP-encodes a byte string.
func encodeBytes(b []byte) []byte {
	if len(b) == 1 && b[0] < 0x80 {
		return b
	}
	if len(b) < 56 {
		return append([]byte{byte(0x80 + len(b))}, b...)
	}
	lenBytes := putUintBE(uint64(len(b)))
	out := make([]byte, 0, 1+len(lenBytes)+len(b))
	out = append(out, 0xb7+byte(len(lenBytes)))
	out = append(out, lenBytes...)
	return append(out, b...)
}

// wrapList wraps payload bytes in an RLP list header.
func wrapList(payload []byte) []byte {
	n := len(payload)
	if n <= 55 {
		buf := make([]byte, 1+n)
		buf[0] = 0xc0 + byte(n)
		copy(buf[1:], payload)
		return buf
	}
	lenBytes := putUintBE(uint64(n))
	buf := make([]byte, 0, 1+len(lenBytes)+n)
	buf = append(buf, 0xf7+byte(len(lenBytes)))
	buf = append(buf, lenBytes...)
	return append(buf, payload...)
}

// putUintBE encodes u big-endian with no leading zeros.
func putUintBE(u uint64) []byte {
	var b []byte
	for shift := 56; shift >= 0; shift -= 8 {
		if byte(u>>shift) != 0 || len(b) > 0 {
			b = append(b, byte(u>>shift))
		}
	}
	if b == nil {
		b = []byte{0}
	}
	return b
}
