package ledger

import (
	"strconv"

	"github.com/kojibai/sigil-ledger/canonical"
)

// Party identifies one side of a transfer on the legacy track.
// Proof is a live identity proof (a signature over current state) supplied by
// the caller; OwnerKey is the party's derived identity (Φ).
type Party struct {
	OwnerKey string
	Proof    string
}

// stamp derives the sender/receiver stamp binding a live identity proof to
// the artifact's pulse and the moment of the operation.
func stamp(proof string, pulse, nowPulse int) string {
	return canonical.HashHex([]byte(proof + "|" + strconv.Itoa(pulse) + "|" + strconv.Itoa(nowPulse)))
}

// SendLegacy opens a new legacy transfer. Legal only when no transfer is
// pending: sending while the last transfer is still open is a policy
// violation, reported with the rejecting state.
func SendLegacy(m *Metadata, sender Party, nowPulse int, payload *TransferPayload) (*Metadata, error) {
	if m == nil {
		return nil, newError(KindStructural, "LDG-STR-002", "nil metadata")
	}
	if sender.Proof == "" {
		return nil, newError(KindStructural, "LDG-STR-020", "sender identity proof is required")
	}
	state := Evaluate(m, EvalOptions{OwnerKey: sender.OwnerKey})
	switch state {
	case StateReadySend, StateComplete, StateVerified:
	default:
		return nil, policyError(state, "LDG-POL-010", "send is not legal in state "+string(state))
	}

	out := m.Clone()
	out.Transfers = append(out.Transfers, Transfer{
		SenderSignature: sender.Proof,
		SenderStamp:     stamp(sender.Proof, out.Pulse, nowPulse),
		SenderKaiPulse:  nowPulse,
		Payload:         payload,
	})
	// Conservation invariant: cumulativeTransfers always equals the archived
	// segment counts plus the live window, so it grows when the window does.
	out.CumulativeTransfers++
	if err := updateWindowRoots(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReceiveLegacy closes the last open legacy transfer and hands custody to
// the receiver. Only the last transfer may be open; once closed it is
// immutable and a second receive is a chain-consistency violation.
//
// When closing fills the live window to its cap, the window is rolled into
// an immutable segment atomically with the receive; the rolled Segment is
// returned for export alongside the artifact.
func ReceiveLegacy(m *Metadata, receiver Party, nowPulse int) (*Metadata, *Segment, error) {
	if m == nil {
		return nil, nil, newError(KindStructural, "LDG-STR-002", "nil metadata")
	}
	if receiver.Proof == "" {
		return nil, nil, newError(KindStructural, "LDG-STR-021", "receiver identity proof is required")
	}
	last := m.lastTransfer()
	if last != nil && !last.Open() {
		// Distinguish a duplicate receive from a plain wrong-state call: the
		// former is a consistency signal the caller must investigate.
		return nil, nil, newError(KindChain, "LDG-CHAIN-020", "last transfer already closed; duplicate receive")
	}
	state := Evaluate(m, EvalOptions{})
	if state != StateReadyReceive {
		return nil, nil, policyError(state, "LDG-POL-011", "receive is not legal in state "+string(state))
	}

	out := m.Clone()
	t := out.lastTransfer()
	t.ReceiverSignature = receiver.Proof
	t.ReceiverStamp = stamp(receiver.Proof, out.Pulse, nowPulse)
	t.ReceiverKaiPulse = nowPulse
	if receiver.OwnerKey != "" {
		out.OwnerKey = receiver.OwnerKey
	}

	var rolled *Segment
	if len(out.Transfers) >= out.segmentCap() {
		var err error
		rolled, err = rollWindow(out)
		if err != nil {
			return nil, nil, err
		}
	}
	if err := updateWindowRoots(out); err != nil {
		return nil, nil, err
	}
	return out, rolled, nil
}
