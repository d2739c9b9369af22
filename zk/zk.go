// Package zk binds optional zero-knowledge proof bundles to lineage entries.
//
// The binding (hashes of proof, public signals, and verifying key) is always
// computed and stored, so a bundle is tamper-evident even when no verifier is
// available. Actually checking the proof is a capability the ledger queries
// at verification time: absence of a verifier resolves to StatusUnknown,
// never StatusFailed.
package zk

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ipfs/go-cid"

	"github.com/kojibai/sigil-ledger/canonical"
	"github.com/kojibai/sigil-ledger/storage"
)

// Status is the outcome of a ZK check.
type Status string

const (
	// StatusUnknown means no verifier or verifying key was available.
	// It is explicitly distinct from StatusFailed.
	StatusUnknown Status = "unknown"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
)

// Bundle is a full proof object kept alongside a hardened transfer for
// offline re-verification.
type Bundle struct {
	Scheme        string          `json:"scheme"`
	Proof         json.RawMessage `json:"proof"`
	PublicSignals json.RawMessage `json:"publicSignals"`

	// VerifyingKey is optional inline key material.
	VerifyingKey json.RawMessage `json:"verifyingKey,omitempty"`

	// VerifyingKeyCID optionally names an archived verifying key.
	VerifyingKeyCID string `json:"verifyingKeyCid,omitempty"`
}

// Stamp is the compact, always-present binding of a bundle to its entry.
type Stamp struct {
	Scheme     string `json:"scheme"`
	PublicHash string `json:"publicHash"`
	ProofHash  string `json:"proofHash"`
	VkeyHash   string `json:"vkeyHash,omitempty"`

	// Verified caches the last verifier result. Nil means never checked
	// (or no verifier was available at the time).
	Verified *bool `json:"verified,omitempty"`

	// Degraded records why the last check stayed unknown (verifier backend
	// or key-resolution failure). Empty on a clean check.
	Degraded string `json:"degraded,omitempty"`
}

// Verifier checks one proof against its public signals and verifying key.
type Verifier interface {
	Verify(ctx context.Context, proof, publicSignals, vkey json.RawMessage) (bool, error)
}

// Provider is a maybe-present verifier capability.
// Implementations report ok=false when no verifier is loaded; callers must
// treat that as "unknown", not as a failure.
type Provider interface {
	Verifier() (Verifier, bool)
}

// NoProvider is the degenerate Provider with no verifier.
type NoProvider struct{}

func (NoProvider) Verifier() (Verifier, bool) { return nil, false }

// StaticProvider wraps a fixed Verifier.
type StaticProvider struct{ V Verifier }

func (p StaticProvider) Verifier() (Verifier, bool) {
	if p.V == nil {
		return nil, false
	}
	return p.V, true
}

var ErrNilBundle = errors.New("zk: nil bundle")

// StampBundle computes the tamper-evident binding for b. The hashes are
// derived from canonical serializations so they are reproducible offline.
func StampBundle(b *Bundle) (*Stamp, error) {
	if b == nil {
		return nil, ErrNilBundle
	}
	publicHash, err := hashRaw(b.PublicSignals)
	if err != nil {
		return nil, err
	}
	proofHash, err := hashRaw(b.Proof)
	if err != nil {
		return nil, err
	}
	st := &Stamp{Scheme: b.Scheme, PublicHash: publicHash, ProofHash: proofHash}
	if len(b.VerifyingKey) > 0 {
		vkeyHash, err := hashRaw(b.VerifyingKey)
		if err != nil {
			return nil, err
		}
		st.VkeyHash = vkeyHash
	}
	return st, nil
}

func hashRaw(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return canonical.EmptyHash(), nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	return canonical.HashValue(v)
}

// VKeySource resolves a verifying key for a bundle.
type VKeySource interface {
	VerifyingKey(ctx context.Context, b *Bundle) (json.RawMessage, error)
}

// InlineVKeys resolves only keys carried inline on the bundle.
type InlineVKeys struct{}

func (InlineVKeys) VerifyingKey(_ context.Context, b *Bundle) (json.RawMessage, error) {
	if b == nil || len(b.VerifyingKey) == 0 {
		return nil, nil
	}
	return b.VerifyingKey, nil
}

// StaticVKeys resolves verifying keys from a preconfigured per-scheme map,
// falling back to inline key material. Useful when a deployment pins the
// verifying keys it trusts.
type StaticVKeys struct {
	Keys map[string]json.RawMessage // scheme -> verifying key
}

func (s StaticVKeys) VerifyingKey(_ context.Context, b *Bundle) (json.RawMessage, error) {
	if b == nil {
		return nil, nil
	}
	if len(b.VerifyingKey) > 0 {
		return b.VerifyingKey, nil
	}
	return s.Keys[b.Scheme], nil
}

// ArchiveVKeys resolves verifying keys from a content-addressed archive by
// CID, falling back to inline key material. Resolution is fail-soft: a
// missing key yields (nil, nil), which downgrades the check to unknown.
type ArchiveVKeys struct {
	Archive storage.Archive
}

func (s ArchiveVKeys) VerifyingKey(_ context.Context, b *Bundle) (json.RawMessage, error) {
	if b == nil {
		return nil, nil
	}
	if len(b.VerifyingKey) > 0 {
		return b.VerifyingKey, nil
	}
	if b.VerifyingKeyCID == "" || s.Archive == nil {
		return nil, nil
	}
	id, err := cid.Decode(b.VerifyingKeyCID)
	if err != nil || !id.Defined() {
		return nil, nil
	}
	raw, err := s.Archive.Get(id)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return raw, nil
}

// Check stamps b and, when a verifier and a verifying key are both available,
// verifies the proof and caches the boolean result on the stamp.
//
// Verifier errors are availability problems, not proof failures: the check
// resolves to StatusUnknown and the error is returned for the caller to log.
func Check(ctx context.Context, b *Bundle, p Provider, vkeys VKeySource) (Status, *Stamp, error) {
	st, err := StampBundle(b)
	if err != nil {
		return StatusUnknown, nil, err
	}
	if p == nil {
		return StatusUnknown, st, nil
	}
	v, ok := p.Verifier()
	if !ok {
		return StatusUnknown, st, nil
	}
	if vkeys == nil {
		vkeys = InlineVKeys{}
	}
	vkey, err := vkeys.VerifyingKey(ctx, b)
	if err != nil {
		st.Degraded = err.Error()
		return StatusUnknown, st, err
	}
	if len(vkey) == 0 {
		return StatusUnknown, st, nil
	}
	if st.VkeyHash == "" {
		vkeyHash, err := hashRaw(vkey)
		if err != nil {
			return StatusUnknown, st, err
		}
		st.VkeyHash = vkeyHash
	}

	okProof, err := v.Verify(ctx, b.Proof, b.PublicSignals, vkey)
	if err != nil {
		st.Degraded = err.Error()
		return StatusUnknown, st, err
	}
	st.Verified = &okProof
	st.Degraded = ""
	if okProof {
		return StatusPassed, st, nil
	}
	return StatusFailed, st, nil
}
