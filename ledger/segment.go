package ledger

import (
	"github.com/kojibai/sigil-ledger/canonical"
	"github.com/kojibai/sigil-ledger/cidutil"
	"github.com/kojibai/sigil-ledger/merkle"
)

// EncodeSegment serializes a segment document canonically. The segment's CID
// is derived from exactly these bytes, so export and verification must agree
// on them byte for byte.
func EncodeSegment(s *Segment) ([]byte, error) {
	if s == nil {
		return nil, newError(KindStructural, "LDG-STR-050", "nil segment")
	}
	b, err := canonical.Canonicalize(s)
	if err != nil {
		return nil, wrapError(KindStructural, "LDG-STR-051", "segment canonicalization failed", err)
	}
	return b, nil
}

// rollWindow archives the live window of m (already a clone owned by the
// caller) into an immutable segment. Steps 4-8 of the rollover are atomic as
// a unit here: either every field is updated and the window cleared, or m is
// discarded by the caller on error.
func rollWindow(m *Metadata) (*Segment, error) {
	count := len(m.Transfers)
	if count == 0 {
		return nil, policyError(StateReadySend, "LDG-POL-030", "live window is empty; nothing to seal")
	}
	if m.lastTransfer().Open() {
		return nil, policyError(StateReadyReceive, "LDG-POL-031", "cannot seal a segment while the last transfer is open")
	}

	leaves, err := legacyLeaves(m)
	if err != nil {
		return nil, err
	}
	root := merkle.BuildRoot(leaves)

	// Snapshot the full metadata hash before the window is cleared; the
	// segment pins the exact state it was carved out of.
	headHash, err := canonical.HashValue(m)
	if err != nil {
		return nil, wrapError(KindStructural, "LDG-STR-052", "head hash snapshot failed", err)
	}

	first := 0
	if n := len(m.Segments); n > 0 {
		first = m.Segments[n-1].Range[1] + 1
	}
	seg := &Segment{
		Version:        SegmentFileVersion,
		SegmentIndex:   len(m.Segments),
		SegmentRange:   [2]int{first, first + count - 1},
		SegmentRoot:    root,
		HeadHashAtSeal: headHash,
		LeafHash:       "sha256",
		Transfers:      append([]Transfer(nil), m.Transfers...),
	}
	segBytes, err := EncodeSegment(seg)
	if err != nil {
		return nil, err
	}

	m.Segments = append(m.Segments, SegmentEntry{
		Index: seg.SegmentIndex,
		Range: seg.SegmentRange,
		Root:  root,
		CID:   cidutil.SegmentCID(segBytes),
		Count: count,
	})

	roots := make([]string, 0, len(m.Segments))
	for _, e := range m.Segments {
		roots = append(roots, e.Root)
	}
	m.SegmentsMerkleRoot = merkle.BuildRoot(roots)

	// cumulativeTransfers already counted these at send time; rolling moves
	// them from the live window into the segment without changing the total.
	m.HeadHashAtSeal = headHash
	m.Transfers = nil

	return seg, nil
}

// SealSegment rolls the live window into a segment regardless of the cap.
// It is the explicit "manual seal" operation; the automatic rollover on
// receive goes through the same rollWindow path.
func SealSegment(m *Metadata) (*Metadata, *Segment, error) {
	if m == nil {
		return nil, nil, newError(KindStructural, "LDG-STR-002", "nil metadata")
	}
	state := Evaluate(m, EvalOptions{})
	switch state {
	case StateComplete, StateVerified:
	default:
		return nil, nil, policyError(state, "LDG-POL-032", "segment seal is not legal in state "+string(state))
	}

	out := m.Clone()
	seg, err := rollWindow(out)
	if err != nil {
		return nil, nil, err
	}
	if err := updateWindowRoots(out); err != nil {
		return nil, nil, err
	}
	return out, seg, nil
}

// VerifySegment checks an exported segment document against its metadata
// entry: leaf recomputation, Merkle root, and content hash.
func VerifySegment(seg *Segment, entry SegmentEntry) error {
	if seg == nil {
		return newError(KindStructural, "LDG-STR-050", "nil segment")
	}
	if seg.SegmentIndex != entry.Index {
		return newError(KindStructural, "LDG-STR-053", "segment index does not match metadata entry")
	}
	if len(seg.Transfers) != entry.Count {
		return newError(KindStructural, "LDG-STR-054", "segment transfer count does not match metadata entry")
	}

	leaves := make([]string, 0, len(seg.Transfers))
	for i := range seg.Transfers {
		h, err := canonical.HashValue(&seg.Transfers[i])
		if err != nil {
			return wrapError(KindStructural, "LDG-STR-040", "legacy leaf hash failed", err)
		}
		leaves = append(leaves, h)
	}
	if root := merkle.BuildRoot(leaves); root != entry.Root || root != seg.SegmentRoot {
		return newError(KindCrypto, "LDG-CRY-040", "segment merkle root mismatch")
	}

	segBytes, err := EncodeSegment(seg)
	if err != nil {
		return err
	}
	if !cidutil.Matches(entry.CID, segBytes) {
		return newError(KindCrypto, "LDG-CRY-041", "segment cid mismatch")
	}
	return nil
}
