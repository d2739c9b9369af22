// Package storage defines the content-addressed archive surface the ledger
// uses for exported segment files and verifying-key objects.
package storage

import (
	"encoding/json"

	"github.com/ipfs/go-cid"
)

// Archive is a minimal content-addressable store for ledger documents.
//
// Contract:
// - Stored objects are JSON documents (segment files, verifying keys);
//   Put MUST reject anything else with ErrNotDocument.
// - Put MUST be idempotent.
// - Stored objects MUST be immutable; segments are archived exactly once.
// - CIDs MUST be derived from the bytes written (callers supply canonical bytes).
// - Get MUST return ErrNotFound when the CID is absent.
type Archive interface {
	Put(bytes []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}

// ValidDocument reports whether b is an acceptable archive payload: a
// non-empty JSON document. Every Archive implementation enforces this at Put.
func ValidDocument(b []byte) bool {
	return len(b) > 0 && json.Valid(b)
}
