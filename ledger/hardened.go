package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/kojibai/sigil-ledger/canonical"
	"github.com/kojibai/sigil-ledger/keys"
	"github.com/kojibai/sigil-ledger/zk"
)

// HeadRoot recomputes the rolling hash-chain head over the first n hardened
// entries. The construction is order-sensitive by design:
//
//	head_0 = hash(canonical identity tuple + content signature)
//	head_i = hash(head_{i-1} || hash(canonical entry_i))
//
// Every hardened entry records the head as it stood before the entry was
// appended, so HeadRoot(m, i) must reproduce entry i's previousHeadRoot.
func HeadRoot(m *Metadata, n int) (string, error) {
	if n < 0 || n > len(m.HardenedTransfers) {
		return "", newError(KindStructural, "LDG-STR-030", "hardened entry count out of range")
	}
	head, err := canonical.HashValue(map[string]any{
		"pulse":            m.Pulse,
		"beat":             m.Beat,
		"stepIndex":        m.StepIndex,
		"chakraDay":        m.ChakraDay,
		"contentSignature": m.ContentSignature,
	})
	if err != nil {
		return "", wrapError(KindStructural, "LDG-STR-031", "genesis head derivation failed", err)
	}
	for i := 0; i < n; i++ {
		leaf, err := canonical.HashValue(&m.HardenedTransfers[i])
		if err != nil {
			return "", wrapError(KindStructural, "LDG-STR-032", "hardened leaf hash failed", err)
		}
		head = canonical.HashHex([]byte(head + leaf))
	}
	return head, nil
}

func sendLeafHash(prevHead, senderPubKey string, senderKaiPulse int, nonce string) (string, error) {
	return canonical.HashValue(map[string]any{
		"previousHeadRoot": prevHead,
		"senderPubKey":     senderPubKey,
		"senderKaiPulse":   senderKaiPulse,
		"nonce":            nonce,
	})
}

func sendMessage(h *HardenedTransfer) ([]byte, error) {
	return canonical.Canonicalize(map[string]any{
		"previousHeadRoot":     h.PreviousHeadRoot,
		"senderPubKey":         h.SenderPubKey,
		"senderKaiPulse":       h.SenderKaiPulse,
		"nonce":                h.Nonce,
		"transferLeafHashSend": h.TransferLeafHashSend,
	})
}

func receiveLeafHash(h *HardenedTransfer, receiverPubKey string, receiverKaiPulse int) (string, error) {
	return canonical.HashValue(map[string]any{
		"previousHeadRoot":     h.PreviousHeadRoot,
		"senderPubKey":         h.SenderPubKey,
		"senderSig":            h.SenderSig,
		"senderKaiPulse":       h.SenderKaiPulse,
		"nonce":                h.Nonce,
		"transferLeafHashSend": h.TransferLeafHashSend,
		"receiverPubKey":       receiverPubKey,
		"receiverKaiPulse":     receiverKaiPulse,
	})
}

func receiveMessage(h *HardenedTransfer) ([]byte, error) {
	return canonical.Canonicalize(map[string]any{
		"previousHeadRoot":        h.PreviousHeadRoot,
		"senderSig":               h.SenderSig,
		"receiverKaiPulse":        h.ReceiverKaiPulse,
		"receiverPubKey":          h.ReceiverPubKey,
		"transferLeafHashReceive": h.TransferLeafHashReceive,
	})
}

func newNonce() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", wrapError(KindCrypto, "LDG-CRY-001", "nonce generation failed", err)
	}
	return hex.EncodeToString(b[:]), nil
}

// ZkOptions configures optional proof binding on a hardened operation.
// A nil Bundle means no binding; a missing Provider downgrades verification
// to unknown without blocking the transfer.
type ZkOptions struct {
	Bundle   *zk.Bundle
	Provider zk.Provider
	VKeys    zk.VKeySource
}

func (o ZkOptions) stamp(ctx context.Context) (*zk.Stamp, error) {
	if o.Bundle == nil {
		return nil, nil
	}
	provider := o.Provider
	if provider == nil {
		provider = zk.NoProvider{}
	}
	_, st, err := zk.Check(ctx, o.Bundle, provider, o.VKeys)
	if err != nil && st == nil {
		return nil, wrapError(KindAvailability, "LDG-AVL-001", "zk bundle could not be stamped", err)
	}
	// Availability problems never block the transfer; the stamp records the
	// degraded check and its hashes keep the binding tamper-evident for
	// later re-checks.
	return st, nil
}

// SendHardened appends a signed, hash-chained hardened transfer.
// The previous entry (if any) must already be countersigned, and the chain
// must verify end to end before a new link is added.
func SendHardened(ctx context.Context, m *Metadata, sender *keys.Identity, nowPulse int, zkOpts ZkOptions) (*Metadata, error) {
	if m == nil {
		return nil, newError(KindStructural, "LDG-STR-002", "nil metadata")
	}
	if sender == nil {
		return nil, newError(KindStructural, "LDG-STR-033", "sender identity is required")
	}
	switch state := Evaluate(m, EvalOptions{}); state {
	case StateReadySend, StateComplete, StateVerified:
	default:
		return nil, policyError(state, "LDG-POL-020", "hardened send is not legal in state "+string(state))
	}
	if last := m.lastHardened(); last != nil && !last.Accepted() {
		return nil, policyError(StateReadyReceive, "LDG-POL-021", "previous hardened transfer still awaits its receiver")
	}
	if err := VerifyHardenedChain(m); err != nil {
		return nil, err
	}

	out := m.Clone()
	prevHead, err := HeadRoot(out, len(out.HardenedTransfers))
	if err != nil {
		return nil, err
	}
	senderPub, err := keys.PublicKeyString(sender.Public)
	if err != nil {
		return nil, wrapError(KindCrypto, "LDG-CRY-010", "sender public key export failed", err)
	}
	// Once custody has moved to a portable key (a prior hardened receive),
	// only that keyholder may open the next transfer.
	if _, _, perr := keys.ParsePublicKey(out.OwnerKey); perr == nil && out.OwnerKey != senderPub {
		return nil, policyError(StateNotOwner, "LDG-POL-024", "sender key does not hold custody")
	}
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	leafSend, err := sendLeafHash(prevHead, senderPub, nowPulse, nonce)
	if err != nil {
		return nil, wrapError(KindStructural, "LDG-STR-034", "send leaf hash failed", err)
	}

	entry := HardenedTransfer{
		PreviousHeadRoot:     prevHead,
		SenderPubKey:         senderPub,
		SenderKaiPulse:       nowPulse,
		Nonce:                nonce,
		TransferLeafHashSend: leafSend,
	}
	msg, err := sendMessage(&entry)
	if err != nil {
		return nil, wrapError(KindStructural, "LDG-STR-035", "send message canonicalization failed", err)
	}
	entry.SenderSig = keys.SignEd25519SHA256(msg, sender.Private)

	if zkOpts.Bundle != nil {
		st, err := zkOpts.stamp(ctx)
		if err != nil {
			return nil, err
		}
		entry.ZkSend = st
		entry.ZkSendBundle = zkOpts.Bundle
	}

	out.HardenedTransfers = append(out.HardenedTransfers, entry)
	if err := updateWindowRoots(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReceiveHardened countersigns the last hardened transfer, sealing it.
// Entries are append-only at the list level; only the last entry's receiver
// fields may be filled, and exactly once.
func ReceiveHardened(ctx context.Context, m *Metadata, receiver *keys.Identity, nowPulse int, zkOpts ZkOptions) (*Metadata, error) {
	if m == nil {
		return nil, newError(KindStructural, "LDG-STR-002", "nil metadata")
	}
	if receiver == nil {
		return nil, newError(KindStructural, "LDG-STR-036", "receiver identity is required")
	}
	switch state := Evaluate(m, EvalOptions{}); state {
	case StateReadySend, StateReadyReceive, StateComplete, StateVerified:
	default:
		return nil, policyError(state, "LDG-POL-023", "hardened receive is not legal in state "+string(state))
	}
	last := m.lastHardened()
	if last == nil {
		return nil, policyError(StateReadySend, "LDG-POL-022", "no hardened transfer to receive")
	}
	if last.Accepted() {
		return nil, newError(KindChain, "LDG-CHAIN-021", "last hardened transfer already countersigned; duplicate receive")
	}
	if err := VerifyHardenedChain(m); err != nil {
		return nil, err
	}

	out := m.Clone()
	entry := out.lastHardened()
	receiverPub, err := keys.PublicKeyString(receiver.Public)
	if err != nil {
		return nil, wrapError(KindCrypto, "LDG-CRY-011", "receiver public key export failed", err)
	}
	leafReceive, err := receiveLeafHash(entry, receiverPub, nowPulse)
	if err != nil {
		return nil, wrapError(KindStructural, "LDG-STR-037", "receive leaf hash failed", err)
	}
	entry.ReceiverPubKey = receiverPub
	entry.ReceiverKaiPulse = nowPulse
	entry.TransferLeafHashReceive = leafReceive

	msg, err := receiveMessage(entry)
	if err != nil {
		return nil, wrapError(KindStructural, "LDG-STR-038", "receive message canonicalization failed", err)
	}
	entry.ReceiverSig = keys.SignEd25519SHA256(msg, receiver.Private)
	// Custody moves to the countersigning key.
	out.OwnerKey = receiverPub

	if zkOpts.Bundle != nil {
		st, err := zkOpts.stamp(ctx)
		if err != nil {
			return nil, err
		}
		entry.ZkReceive = st
		entry.ZkReceiveBundle = zkOpts.Bundle
	}

	if err := updateWindowRoots(out); err != nil {
		return nil, err
	}
	return out, nil
}

// VerifyHardenedChain checks every hardened entry: its chain link against
// the recomputed head, its sender signature, its receiver signature when
// present, and the structural rule that only the last entry may be open.
//
// A broken link fails the entry it is found on and everything after it;
// earlier entries keep verifying, so a caller can localize the damage.
func VerifyHardenedChain(m *Metadata) error {
	if m == nil {
		return newError(KindStructural, "LDG-STR-002", "nil metadata")
	}
	for i := range m.HardenedTransfers {
		entry := &m.HardenedTransfers[i]

		expected, err := HeadRoot(m, i)
		if err != nil {
			return err
		}
		if entry.PreviousHeadRoot != expected {
			return newError(KindChain, "LDG-CHAIN-001", "hardened chain link mismatch at entry "+itoa(i))
		}

		if !entry.Accepted() && i != len(m.HardenedTransfers)-1 {
			return newError(KindChain, "LDG-CHAIN-002", "non-last hardened entry "+itoa(i)+" is missing its receiver signature")
		}

		msg, err := sendMessage(entry)
		if err != nil {
			return wrapError(KindStructural, "LDG-STR-035", "send message canonicalization failed", err)
		}
		if !keys.VerifyPortable(entry.SenderPubKey, msg, entry.SenderSig) {
			return newError(KindCrypto, "LDG-CRY-020", "sender signature invalid on hardened entry "+itoa(i))
		}

		if entry.Accepted() {
			rmsg, err := receiveMessage(entry)
			if err != nil {
				return wrapError(KindStructural, "LDG-STR-038", "receive message canonicalization failed", err)
			}
			if !keys.VerifyPortable(entry.ReceiverPubKey, rmsg, entry.ReceiverSig) {
				return newError(KindCrypto, "LDG-CRY-021", "receiver signature invalid on hardened entry "+itoa(i))
			}
		}
	}
	return nil
}

// VerifyHardenedEntry checks a single hardened entry in isolation: its chain
// link and its signatures. Used to demonstrate that corruption is localized.
func VerifyHardenedEntry(m *Metadata, i int) error {
	if m == nil {
		return newError(KindStructural, "LDG-STR-002", "nil metadata")
	}
	if i < 0 || i >= len(m.HardenedTransfers) {
		return newError(KindStructural, "LDG-STR-030", "hardened entry count out of range")
	}
	entry := &m.HardenedTransfers[i]
	expected, err := HeadRoot(m, i)
	if err != nil {
		return err
	}
	if entry.PreviousHeadRoot != expected {
		return newError(KindChain, "LDG-CHAIN-001", "hardened chain link mismatch at entry "+itoa(i))
	}
	msg, err := sendMessage(entry)
	if err != nil {
		return wrapError(KindStructural, "LDG-STR-035", "send message canonicalization failed", err)
	}
	if !keys.VerifyPortable(entry.SenderPubKey, msg, entry.SenderSig) {
		return newError(KindCrypto, "LDG-CRY-020", "sender signature invalid on hardened entry "+itoa(i))
	}
	if entry.Accepted() {
		rmsg, err := receiveMessage(entry)
		if err != nil {
			return wrapError(KindStructural, "LDG-STR-038", "receive message canonicalization failed", err)
		}
		if !keys.VerifyPortable(entry.ReceiverPubKey, rmsg, entry.ReceiverSig) {
			return newError(KindCrypto, "LDG-CRY-021", "receiver signature invalid on hardened entry "+itoa(i))
		}
	}
	return nil
}
