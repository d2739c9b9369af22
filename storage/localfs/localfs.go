// Package localfs archives ledger documents (segment files, verifying keys)
// on the local filesystem, keyed strictly by CID. It is the default archive
// for an exported artifact: fully offline, deterministic, and immutable once
// written.
package localfs

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"

	"github.com/kojibai/sigil-ledger/cidutil"
	"github.com/kojibai/sigil-ledger/storage"
)

// Archive is a filesystem-backed content-addressed document store.
//
// Documents land as read-only <cid>.json files sharded by the CID's trailing
// characters. Publication is two-phase: bytes are written and synced to a
// temp file, then hard-linked to the final name, so a crash mid-write can
// never leave a partial document at a resolvable path.
type Archive struct {
	root string
}

// New constructs an Archive rooted at root, creating the directory if needed.
func New(root string) (*Archive, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Archive{root: root}, nil
}

func (a *Archive) Put(data []byte) (cid.Cid, error) {
	if !storage.ValidDocument(data) {
		return cid.Undef, storage.ErrNotDocument
	}
	id, err := cidutil.SegmentCIDv1(data)
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}

	path := a.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cid.Undef, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return cid.Undef, err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return cid.Undef, err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return cid.Undef, err
	}
	if err := tmp.Close(); err != nil {
		return cid.Undef, err
	}
	if err := os.Chmod(tmpName, 0o444); err != nil {
		return cid.Undef, err
	}

	// Link publishes atomically and fails on an existing name, which is the
	// immutability check: a colliding write must carry identical bytes.
	if err := os.Link(tmpName, path); err != nil {
		if os.IsExist(err) {
			existing, rerr := a.Get(id)
			if rerr != nil || !bytes.Equal(existing, data) {
				return cid.Undef, storage.ErrImmutable
			}
			return id, nil
		}
		return cid.Undef, err
	}
	return id, nil
}

func (a *Archive) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	b, err := os.ReadFile(a.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	// Reads re-derive the CID so silent on-disk corruption surfaces as a
	// typed error instead of a bad document.
	got, err := cidutil.SegmentCIDv1(b)
	if err != nil {
		return nil, err
	}
	if got != id {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (a *Archive) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := os.Stat(a.pathFor(id))
	return err == nil
}

// pathFor shards by the CID's trailing characters: CIDv1 strings share a
// constant multibase/codec prefix, so leading characters do not distribute.
func (a *Archive) pathFor(id cid.Cid) string {
	s := id.String()
	if len(s) < 2 {
		return filepath.Join(a.root, s+".json")
	}
	return filepath.Join(a.root, s[len(s)-2:], s+".json")
}
