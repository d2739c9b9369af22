package ledger

// State is the controller's derived, UI-facing status. It gates the four
// mutating operations: seal, send, receive, and manual segment seal.
type State string

const (
	StateInvalid        State = "invalid"
	StateStructMismatch State = "structMismatch"
	StateSigMismatch    State = "sigMismatch"
	StateNotOwner       State = "notOwner"
	StateUnsigned       State = "unsigned"
	StateReadySend      State = "readySend"
	StateReadyReceive   State = "readyReceive"
	StateComplete       State = "complete"
	StateVerified       State = "verified"
)

// EvalOptions carries the live claimant identity, when one is available, so
// ownership can be checked against the recorded holder.
type EvalOptions struct {
	// OwnerKey is the claimant's derived identity (Φ). Empty skips the
	// ownership check.
	OwnerKey string
}

// Evaluate derives the current state. Checks run in priority order and the
// first match wins, so the result always reflects the most severe known
// issue.
func Evaluate(m *Metadata, opts EvalOptions) State {
	if m == nil {
		return StateInvalid
	}

	// 1. Context/type markers. Empty markers belong to a not-yet-sealed
	// artifact; only a wrong value is invalid.
	if (m.Context != "" && m.Context != MetaContext) || (m.Type != "" && m.Type != MetaType) {
		return StateInvalid
	}

	// 2. Required identity fields.
	if m.ChakraDay == "" || m.Pulse < 0 || m.Beat < 0 || m.StepIndex < 0 {
		return StateStructMismatch
	}

	// 3. Stored content signature must match its recomputation.
	if m.ContentSignature != "" {
		sigma, err := ComputeContentSignature(m)
		if err != nil || sigma != m.ContentSignature {
			return StateSigMismatch
		}
	}

	// 4. Live identity proof against the recorded holder.
	if opts.OwnerKey != "" && m.OwnerKey != "" && opts.OwnerKey != m.OwnerKey {
		return StateNotOwner
	}

	// 5. Sealing is required before any transfer.
	if m.ContentSignature == "" {
		return StateUnsigned
	}

	// 6-7. Transfer progress.
	last := m.lastTransfer()
	if last == nil {
		return StateReadySend
	}
	if last.Open() {
		return StateReadyReceive
	}

	// 8. Complete; upgraded to verified once the head-proof and chain
	// checks also pass.
	if _, err := RefreshHeadWindow(m); err != nil {
		return StateComplete
	}
	if err := VerifyHardenedChain(m); err != nil {
		return StateComplete
	}
	return StateVerified
}
