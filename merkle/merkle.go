// Package merkle builds and verifies binary Merkle trees over ordered leaf
// hashes.
//
// Odd-node rule: when a level has an odd node count, the last node is paired
// with itself (duplicate-last padding), never promoted unhashed. Build,
// ProofAt, and Verify all apply the same rule; mixing rules makes proofs fail
// silently, so the rule is fixed here and is part of the wire contract.
package merkle

import (
	"errors"

	"github.com/kojibai/sigil-ledger/canonical"
)

// Proof is an inclusion proof for one leaf: the sibling hash at each level
// from leaf to root, bottom-up. Index is the leaf's position in the original
// window; it determines whether each recomputed node is a left or right child.
type Proof struct {
	Index    int      `json:"index"`
	Siblings []string `json:"siblings"`
}

var ErrIndexOutOfRange = errors.New("merkle: leaf index out of range")

func pair(left, right string) string {
	return canonical.HashHex([]byte(left + right))
}

// BuildRoot folds leaves bottom-up into a single root hash.
// An empty window has the well-defined sentinel root canonical.EmptyHash();
// a single leaf is its own root.
func BuildRoot(leaves []string) string {
	if len(leaves) == 0 {
		return canonical.EmptyHash()
	}
	level := append([]string(nil), leaves...)
	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, pair(level[i], level[i+1]))
			} else {
				next = append(next, pair(level[i], level[i]))
			}
		}
		level = next
	}
	return level[0]
}

// ProofAt returns the inclusion proof for leaves[index].
// A single-leaf window yields an empty proof, which trivially verifies.
func ProofAt(leaves []string, index int) (Proof, error) {
	if index < 0 || index >= len(leaves) {
		return Proof{}, ErrIndexOutOfRange
	}
	p := Proof{Index: index}
	level := append([]string(nil), leaves...)
	pos := index
	for len(level) > 1 {
		var sibling string
		if pos%2 == 0 {
			if pos+1 < len(level) {
				sibling = level[pos+1]
			} else {
				sibling = level[pos] // duplicate-last
			}
		} else {
			sibling = level[pos-1]
		}
		p.Siblings = append(p.Siblings, sibling)

		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, pair(level[i], level[i+1]))
			} else {
				next = append(next, pair(level[i], level[i]))
			}
		}
		level = next
		pos /= 2
	}
	return p, nil
}

// Verify recomputes upward from leafHash through the proof siblings and
// compares the result to root.
func Verify(root, leafHash string, p Proof) bool {
	if p.Index < 0 {
		return false
	}
	h := leafHash
	pos := p.Index
	for _, sib := range p.Siblings {
		if pos%2 == 0 {
			h = pair(h, sib)
		} else {
			h = pair(sib, h)
		}
		pos /= 2
	}
	return h == root
}
