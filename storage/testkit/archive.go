// Package testkit provides archive test doubles and a conformance suite that
// every Archive implementation in this repo is run against.
package testkit

import (
	"bytes"
	"sync"
	"testing"

	"github.com/ipfs/go-cid"

	"github.com/kojibai/sigil-ledger/cidutil"
	"github.com/kojibai/sigil-ledger/storage"
)

// Mem is an in-memory Archive for tests.
type Mem struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMem() *Mem {
	return &Mem{objects: make(map[string][]byte)}
}

func (m *Mem) Put(b []byte) (cid.Cid, error) {
	if !storage.ValidDocument(b) {
		return cid.Undef, storage.ErrNotDocument
	}
	id, err := cidutil.SegmentCIDv1(b)
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.objects[id.String()]; ok {
		if !bytes.Equal(existing, b) {
			return cid.Undef, storage.ErrImmutable
		}
		return id, nil
	}
	m.objects[id.String()] = append([]byte(nil), b...)
	return id, nil
}

func (m *Mem) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[id.String()]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *Mem) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[id.String()]
	return ok
}

// NewArchive constructs a fresh, empty Archive isolated from other tests.
type NewArchive func(t *testing.T) storage.Archive

// RunArchiveConformance exercises the Archive contract against an implementation.
func RunArchiveConformance(t *testing.T, newArchive NewArchive) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		arc := newArchive(t)
		want := []byte(`{"version":1,"segmentIndex":0}`)

		id, err := arc.Put(want)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		wantID, err := cidutil.SegmentCIDv1(want)
		if err != nil {
			t.Fatalf("SegmentCIDv1 failed: %v", err)
		}
		if id != wantID {
			t.Fatalf("Put CID mismatch: got %s want %s", id, wantID)
		}

		got, err := arc.Get(id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		arc := newArchive(t)
		b := []byte(`{"version":1,"segmentIndex":3,"transfers":[]}`)

		id1, err := arc.Put(b)
		if err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		id2, err := arc.Put(b)
		if err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		if id1 != id2 {
			t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		arc := newArchive(t)
		b := []byte(`{"version":1,"segmentIndex":9}`)
		id, err := cidutil.SegmentCIDv1(b)
		if err != nil {
			t.Fatalf("SegmentCIDv1 failed: %v", err)
		}

		if arc.Has(id) {
			t.Fatalf("Has returned true for missing CID")
		}
		if _, err := arc.Get(id); !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}

		if _, err := arc.Put(b); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !arc.Has(id) {
			t.Fatalf("Has returned false after Put")
		}
	})

	t.Run("RejectNonDocument", func(t *testing.T) {
		arc := newArchive(t)
		for _, payload := range [][]byte{nil, []byte("not json"), []byte(`{"truncated":`)} {
			if _, err := arc.Put(payload); err != storage.ErrNotDocument {
				t.Fatalf("Put(%q): got err=%v want ErrNotDocument", payload, err)
			}
		}
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		arc := newArchive(t)
		var undef cid.Cid
		if arc.Has(undef) {
			t.Fatalf("Has should be false for undefined CID")
		}
		if _, err := arc.Get(undef); err == nil {
			t.Fatalf("Get should fail for undefined CID")
		}
	})
}
