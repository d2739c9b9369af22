package ledger

import "github.com/kojibai/sigil-ledger/canonical"

// ComputeContentSignature derives Σ, the hash binding the artifact's
// identity coordinates. It is recomputed on every verification pass and
// compared to the stored value; a mismatch means an identity field was
// flipped after sealing.
func ComputeContentSignature(m *Metadata) (string, error) {
	return canonical.HashValue(map[string]any{
		"pulse":     m.Pulse,
		"beat":      m.Beat,
		"stepIndex": m.StepIndex,
		"chakraDay": m.ChakraDay,
	})
}

// Seal computes and stores the content signature, binding the identity
// coordinates and the claimant. Sealing is required before any transfer and
// is legal exactly once: the gate is the controller's unsigned state.
//
// ownerKey (Φ) identifies the claimant; creatorPublicKey optionally anchors
// the creator's portable public key into the artifact.
func Seal(m *Metadata, ownerKey, creatorPublicKey string) (*Metadata, error) {
	if m == nil {
		return nil, newError(KindStructural, "LDG-STR-002", "nil metadata")
	}
	state := Evaluate(m, EvalOptions{})
	if state != StateUnsigned {
		return nil, policyError(state, "LDG-POL-001", "seal is only legal in the unsigned state")
	}
	if ownerKey == "" {
		return nil, newError(KindStructural, "LDG-STR-010", "ownerKey is required to seal")
	}

	out := m.Clone()
	if out.Context == "" {
		out.Context = MetaContext
	}
	if out.Type == "" {
		out.Type = MetaType
	}
	sigma, err := ComputeContentSignature(out)
	if err != nil {
		return nil, wrapError(KindStructural, "LDG-STR-011", "content signature derivation failed", err)
	}
	out.ContentSignature = sigma
	out.OwnerKey = ownerKey
	if creatorPublicKey != "" {
		out.CreatorPublicKey = creatorPublicKey
	}
	if out.SegmentSize == 0 {
		out.SegmentSize = DefaultSegmentSize
	}
	if err := updateWindowRoots(out); err != nil {
		return nil, err
	}
	return out, nil
}
