package ledger

import (
	"fmt"
	"testing"

	"github.com/kojibai/sigil-ledger/cidutil"
	"github.com/kojibai/sigil-ledger/storage/testkit"
)

// runCycles performs n full legacy send/receive cycles, returning the final
// metadata and every segment rolled along the way.
func runCycles(t *testing.T, m *Metadata, n int) (*Metadata, []*Segment) {
	t.Helper()
	var segments []*Segment
	owner := m.OwnerKey
	for i := 0; i < n; i++ {
		next := fmt.Sprintf("phi-owner-%d", i)
		m2, err := SendLegacy(m, Party{OwnerKey: owner, Proof: fmt.Sprintf("send-%d", i)}, 100+10*i, nil)
		if err != nil {
			t.Fatalf("SendLegacy(%d): %v", i, err)
		}
		m3, seg, err := ReceiveLegacy(m2, Party{OwnerKey: next, Proof: fmt.Sprintf("recv-%d", i)}, 105+10*i)
		if err != nil {
			t.Fatalf("ReceiveLegacy(%d): %v", i, err)
		}
		if seg != nil {
			segments = append(segments, seg)
		}
		m, owner = m3, next
	}
	return m, segments
}

func TestSegmentation_Conservation(t *testing.T) {
	m := sealedArtifact(t, 3)
	m, segments := runCycles(t, m, 10)

	total := 0
	for _, e := range m.Segments {
		total += e.Count
	}
	if m.CumulativeTransfers != total+len(m.Transfers) {
		t.Fatalf("conservation violated: cumulative=%d segments=%d live=%d", m.CumulativeTransfers, total, len(m.Transfers))
	}
	if m.CumulativeTransfers != 10 {
		t.Fatalf("cumulativeTransfers = %d, want 10", m.CumulativeTransfers)
	}
	if len(segments) != len(m.Segments) {
		t.Fatalf("rolled %d segments but metadata records %d", len(segments), len(m.Segments))
	}
	for i, seg := range segments {
		if err := VerifySegment(seg, m.Segments[i]); err != nil {
			t.Fatalf("VerifySegment(%d): %v", i, err)
		}
	}

	// Segment ranges tile the global transfer index space.
	next := 0
	for _, e := range m.Segments {
		if e.Range[0] != next {
			t.Fatalf("segment %d starts at %d, want %d", e.Index, e.Range[0], next)
		}
		next = e.Range[1] + 1
	}
}

func TestSealSegment_ManualRollBeforeCap(t *testing.T) {
	m := sealedArtifact(t, 1000)
	m, _ = runCycles(t, m, 2)

	out, seg, err := SealSegment(m)
	if err != nil {
		t.Fatalf("SealSegment: %v", err)
	}
	if seg == nil || seg.SegmentIndex != 0 || len(seg.Transfers) != 2 {
		t.Fatalf("unexpected segment: %+v", seg)
	}
	if len(out.Transfers) != 0 {
		t.Fatalf("live window not cleared after manual seal")
	}
	if out.CumulativeTransfers != 2 {
		t.Fatalf("cumulativeTransfers = %d, want 2", out.CumulativeTransfers)
	}
	// Input untouched on success too: copy-on-write discipline.
	if len(m.Transfers) != 2 {
		t.Fatalf("input metadata was mutated")
	}
}

func TestSealSegment_RejectedWhileOpenOrEmpty(t *testing.T) {
	m := sealedArtifact(t, 1000)
	if _, _, err := SealSegment(m); !IsKind(err, KindPolicy) {
		t.Fatalf("expected policy error on empty window, got %v", err)
	}

	m2, err := SendLegacy(m, Party{OwnerKey: "phi-owner-alpha", Proof: "s1"}, 100, nil)
	if err != nil {
		t.Fatalf("SendLegacy: %v", err)
	}
	if _, _, err := SealSegment(m2); !IsKind(err, KindPolicy) {
		t.Fatalf("expected policy error with open transfer, got %v", err)
	}
}

func TestSegment_ArchiveRoundTrip(t *testing.T) {
	m := sealedArtifact(t, 2)
	m, segments := runCycles(t, m, 2)
	if len(segments) != 1 {
		t.Fatalf("expected one rolled segment, got %d", len(segments))
	}

	segBytes, err := EncodeSegment(segments[0])
	if err != nil {
		t.Fatalf("EncodeSegment: %v", err)
	}
	arc := testkit.NewMem()
	id, err := arc.Put(segBytes)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if id.String() != m.Segments[0].CID {
		t.Fatalf("archived CID %s does not match metadata entry %s", id, m.Segments[0].CID)
	}
	if !cidutil.Matches(m.Segments[0].CID, segBytes) {
		t.Fatalf("cidutil.Matches should accept the canonical segment bytes")
	}
}

func TestVerifySegment_DetectsTampering(t *testing.T) {
	m := sealedArtifact(t, 2)
	m, segments := runCycles(t, m, 2)
	seg := segments[0]

	tampered := *seg
	tampered.Transfers = append([]Transfer(nil), seg.Transfers...)
	tampered.Transfers[0].SenderKaiPulse = 777777
	if err := VerifySegment(&tampered, m.Segments[0]); !IsKind(err, KindCrypto) {
		t.Fatalf("expected crypto error for tampered segment, got %v", err)
	}

	short := *seg
	short.Transfers = seg.Transfers[:1]
	if err := VerifySegment(&short, m.Segments[0]); !IsKind(err, KindStructural) {
		t.Fatalf("expected structural error for truncated segment, got %v", err)
	}
}
