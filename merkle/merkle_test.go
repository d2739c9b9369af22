package merkle

import (
	"fmt"
	"testing"

	"github.com/kojibai/sigil-ledger/canonical"
)

func leavesN(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = canonical.HashHex([]byte(fmt.Sprintf("leaf-%d", i)))
	}
	return out
}

func TestBuildRoot_EmptyIsSentinel(t *testing.T) {
	if got := BuildRoot(nil); got != canonical.EmptyHash() {
		t.Fatalf("empty root = %s, want sentinel %s", got, canonical.EmptyHash())
	}
}

func TestBuildRoot_SingleLeafIsLeaf(t *testing.T) {
	l := leavesN(1)
	if got := BuildRoot(l); got != l[0] {
		t.Fatalf("single-leaf root = %s, want %s", got, l[0])
	}
	p, err := ProofAt(l, 0)
	if err != nil {
		t.Fatalf("ProofAt: %v", err)
	}
	if len(p.Siblings) != 0 {
		t.Fatalf("single-leaf proof should be empty, got %d siblings", len(p.Siblings))
	}
	if !Verify(l[0], l[0], p) {
		t.Fatalf("empty proof must trivially verify")
	}
}

func TestRoundTrip_AllSizesAllIndices(t *testing.T) {
	for n := 1; n <= 17; n++ {
		l := leavesN(n)
		root := BuildRoot(l)
		for i := 0; i < n; i++ {
			p, err := ProofAt(l, i)
			if err != nil {
				t.Fatalf("n=%d i=%d ProofAt: %v", n, i, err)
			}
			if !Verify(root, l[i], p) {
				t.Fatalf("n=%d i=%d: proof does not verify", n, i)
			}
		}
	}
}

func TestVerify_RejectsWrongLeaf(t *testing.T) {
	l := leavesN(7)
	root := BuildRoot(l)
	p, err := ProofAt(l, 3)
	if err != nil {
		t.Fatalf("ProofAt: %v", err)
	}
	if Verify(root, l[4], p) {
		t.Fatalf("proof for index 3 must not verify leaf 4")
	}
	if Verify(root, canonical.HashHex([]byte("forged")), p) {
		t.Fatalf("forged leaf must not verify")
	}
}

func TestTamperDetection_AnyLeafChangesRoot(t *testing.T) {
	l := leavesN(9)
	root := BuildRoot(l)
	for i := range l {
		mutated := append([]string(nil), l...)
		mutated[i] = canonical.HashHex([]byte(fmt.Sprintf("tampered-%d", i)))
		if BuildRoot(mutated) == root {
			t.Fatalf("mutating leaf %d did not change the root", i)
		}
	}
}

func TestProofAt_IndexOutOfRange(t *testing.T) {
	l := leavesN(3)
	if _, err := ProofAt(l, -1); err != ErrIndexOutOfRange {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	if _, err := ProofAt(l, 3); err != ErrIndexOutOfRange {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestDuplicateLastPadding_ConsistentBuildAndProve(t *testing.T) {
	// Odd count exercises the duplicate-last rule at the bottom level; the
	// last leaf's sibling must be itself.
	l := leavesN(5)
	p, err := ProofAt(l, 4)
	if err != nil {
		t.Fatalf("ProofAt: %v", err)
	}
	if p.Siblings[0] != l[4] {
		t.Fatalf("last odd leaf must be its own sibling, got %s", p.Siblings[0])
	}
	if !Verify(BuildRoot(l), l[4], p) {
		t.Fatalf("duplicate-last proof does not verify")
	}
}
