package ledger

import (
	"testing"
)

func newArtifact() *Metadata {
	return &Metadata{
		Pulse:     5412031,
		Beat:      27,
		StepIndex: 11,
		ChakraDay: "Throat",
	}
}

func sealedArtifact(t *testing.T, segmentSize int) *Metadata {
	t.Helper()
	m := newArtifact()
	m.SegmentSize = segmentSize
	out, err := Seal(m, "phi-owner-alpha", "")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	return out
}

func TestSeal_SetsSignatureAndMarkers(t *testing.T) {
	m := sealedArtifact(t, 0)
	if m.ContentSignature == "" {
		t.Fatalf("content signature not set")
	}
	if m.Context != MetaContext || m.Type != MetaType {
		t.Fatalf("markers not set: %q %q", m.Context, m.Type)
	}
	if m.SegmentSize != DefaultSegmentSize {
		t.Fatalf("segment size default not applied: %d", m.SegmentSize)
	}

	sigma, err := ComputeContentSignature(m)
	if err != nil {
		t.Fatalf("ComputeContentSignature: %v", err)
	}
	if sigma != m.ContentSignature {
		t.Fatalf("stored signature does not match recomputation")
	}
}

func TestSeal_IsCopyOnWrite(t *testing.T) {
	m := newArtifact()
	out, err := Seal(m, "phi-owner-alpha", "")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if m.ContentSignature != "" {
		t.Fatalf("input metadata was mutated")
	}
	if out == m {
		t.Fatalf("Seal must return a fresh value")
	}
}

func TestSeal_RejectedOutsideUnsignedState(t *testing.T) {
	m := sealedArtifact(t, 0)
	_, err := Seal(m, "phi-owner-beta", "")
	if err == nil {
		t.Fatalf("expected policy error for double seal")
	}
	if !IsKind(err, KindPolicy) {
		t.Fatalf("expected KindPolicy, got %v", err)
	}
}

func TestScenarioA_SendReceiveRollover(t *testing.T) {
	m := sealedArtifact(t, 2)
	alice := Party{OwnerKey: "phi-owner-alpha", Proof: "sig-alice-1"}
	bob := Party{OwnerKey: "phi-owner-beta", Proof: "sig-bob-1"}

	if got := Evaluate(m, EvalOptions{}); got != StateReadySend {
		t.Fatalf("fresh sealed artifact state = %s, want readySend", got)
	}

	m2, err := SendLegacy(m, alice, 100, nil)
	if err != nil {
		t.Fatalf("SendLegacy: %v", err)
	}
	if got := Evaluate(m2, EvalOptions{}); got != StateReadyReceive {
		t.Fatalf("after send state = %s, want readyReceive", got)
	}

	m3, seg, err := ReceiveLegacy(m2, bob, 110)
	if err != nil {
		t.Fatalf("ReceiveLegacy: %v", err)
	}
	if seg != nil {
		t.Fatalf("window of 1 must not roll at cap 2")
	}
	if got := Evaluate(m3, EvalOptions{}); got != StateVerified && got != StateComplete {
		t.Fatalf("after receive state = %s, want complete/verified", got)
	}
	if m3.OwnerKey != "phi-owner-beta" {
		t.Fatalf("custody did not move to receiver: %s", m3.OwnerKey)
	}

	// Second cycle fills the window to the cap and rolls it.
	m4, err := SendLegacy(m3, Party{OwnerKey: "phi-owner-beta", Proof: "sig-bob-2"}, 120, nil)
	if err != nil {
		t.Fatalf("SendLegacy(2): %v", err)
	}
	m5, seg, err := ReceiveLegacy(m4, Party{OwnerKey: "phi-owner-gamma", Proof: "sig-carol-1"}, 130)
	if err != nil {
		t.Fatalf("ReceiveLegacy(2): %v", err)
	}
	if seg == nil {
		t.Fatalf("expected automatic rollover at cap")
	}
	if len(m5.Segments) != 1 || m5.Segments[0].Index != 0 || m5.Segments[0].Count != 2 {
		t.Fatalf("segments after rollover: %+v", m5.Segments)
	}
	if m5.CumulativeTransfers != 2 {
		t.Fatalf("cumulativeTransfers = %d, want 2", m5.CumulativeTransfers)
	}
	if len(m5.Transfers) != 0 {
		t.Fatalf("live window not cleared: %d", len(m5.Transfers))
	}
	if m5.SegmentsMerkleRoot == "" || m5.HeadHashAtSeal == "" {
		t.Fatalf("segment roots not recorded")
	}

	if err := VerifySegment(seg, m5.Segments[0]); err != nil {
		t.Fatalf("VerifySegment: %v", err)
	}
}

func TestScenarioB_FlippedIdentityFieldIsSigMismatch(t *testing.T) {
	m := sealedArtifact(t, 0)
	m.Beat++

	if got := Evaluate(m, EvalOptions{}); got != StateSigMismatch {
		t.Fatalf("state = %s, want sigMismatch", got)
	}
	if _, err := RefreshHeadWindow(m); err != nil {
		// Window roots are independent of the identity fields; the refresh
		// itself still passes. The status check above is what reports it.
		t.Fatalf("RefreshHeadWindow: %v", err)
	}

	if _, err := SendLegacy(m, Party{Proof: "sig"}, 100, nil); !IsKind(err, KindPolicy) {
		t.Fatalf("send on sigMismatch: want policy error, got %v", err)
	}
	if _, _, err := ReceiveLegacy(m, Party{Proof: "sig"}, 100); err == nil {
		t.Fatalf("receive on sigMismatch must be rejected")
	}
}

func TestSendLegacy_RejectedWhileOpen(t *testing.T) {
	m := sealedArtifact(t, 0)
	m2, err := SendLegacy(m, Party{OwnerKey: "phi-owner-alpha", Proof: "s1"}, 100, nil)
	if err != nil {
		t.Fatalf("SendLegacy: %v", err)
	}
	_, err = SendLegacy(m2, Party{OwnerKey: "phi-owner-alpha", Proof: "s2"}, 101, nil)
	if !IsKind(err, KindPolicy) {
		t.Fatalf("expected policy error sending while open, got %v", err)
	}
	if StateOf(err) != StateReadyReceive {
		t.Fatalf("policy error state = %s, want readyReceive", StateOf(err))
	}
}

func TestReceiveLegacy_DuplicateReceiveIsChainError(t *testing.T) {
	m := sealedArtifact(t, 0)
	m2, err := SendLegacy(m, Party{OwnerKey: "phi-owner-alpha", Proof: "s1"}, 100, nil)
	if err != nil {
		t.Fatalf("SendLegacy: %v", err)
	}
	m3, _, err := ReceiveLegacy(m2, Party{OwnerKey: "phi-owner-beta", Proof: "r1"}, 110)
	if err != nil {
		t.Fatalf("ReceiveLegacy: %v", err)
	}
	_, _, err = ReceiveLegacy(m3, Party{OwnerKey: "phi-owner-gamma", Proof: "r2"}, 120)
	if !IsKind(err, KindChain) {
		t.Fatalf("expected chain error for duplicate receive, got %v", err)
	}
}

func TestReceiveLegacy_NoOpenTransfer(t *testing.T) {
	m := sealedArtifact(t, 0)
	_, _, err := ReceiveLegacy(m, Party{Proof: "r"}, 100)
	if !IsKind(err, KindPolicy) {
		t.Fatalf("expected policy error receiving with no open transfer, got %v", err)
	}
}

func TestEvaluate_PriorityOrder(t *testing.T) {
	bad := newArtifact()
	bad.Context = "https://example.com/other"
	bad.ChakraDay = "" // would be structMismatch, but invalid wins
	if got := Evaluate(bad, EvalOptions{}); got != StateInvalid {
		t.Fatalf("state = %s, want invalid", got)
	}

	missing := newArtifact()
	missing.ChakraDay = ""
	if got := Evaluate(missing, EvalOptions{}); got != StateStructMismatch {
		t.Fatalf("state = %s, want structMismatch", got)
	}

	m := sealedArtifact(t, 0)
	if got := Evaluate(m, EvalOptions{OwnerKey: "phi-somebody-else"}); got != StateNotOwner {
		t.Fatalf("state = %s, want notOwner", got)
	}

	unsigned := newArtifact()
	if got := Evaluate(unsigned, EvalOptions{}); got != StateUnsigned {
		t.Fatalf("state = %s, want unsigned", got)
	}
}

func TestRefreshHeadWindow_Idempotent(t *testing.T) {
	m := sealedArtifact(t, 0)
	m2, err := SendLegacy(m, Party{OwnerKey: "phi-owner-alpha", Proof: "s1"}, 100, nil)
	if err != nil {
		t.Fatalf("SendLegacy: %v", err)
	}
	m3, _, err := ReceiveLegacy(m2, Party{OwnerKey: "phi-owner-beta", Proof: "r1"}, 110)
	if err != nil {
		t.Fatalf("ReceiveLegacy: %v", err)
	}

	first, err := RefreshHeadWindow(m3)
	if err != nil {
		t.Fatalf("RefreshHeadWindow(1): %v", err)
	}
	second, err := RefreshHeadWindow(m3)
	if err != nil {
		t.Fatalf("RefreshHeadWindow(2): %v", err)
	}
	if first.WindowRoot != second.WindowRoot || first.WindowRootV14 != second.WindowRootV14 {
		t.Fatalf("refresh not idempotent: %+v vs %+v", first, second)
	}
	if first.LastLeaf != second.LastLeaf || len(first.LastProof.Siblings) != len(second.LastProof.Siblings) {
		t.Fatalf("proof re-derivation not stable")
	}
}

func TestRefreshHeadWindow_DetectsStoredRootTampering(t *testing.T) {
	m := sealedArtifact(t, 0)
	m2, err := SendLegacy(m, Party{OwnerKey: "phi-owner-alpha", Proof: "s1"}, 100, nil)
	if err != nil {
		t.Fatalf("SendLegacy: %v", err)
	}
	m2.TransfersWindowRoot = "deadbeef"
	if _, err := RefreshHeadWindow(m2); !IsKind(err, KindCrypto) {
		t.Fatalf("expected crypto error for tampered stored root, got %v", err)
	}
}

func TestMetadata_ParseToleratesUnknownFields(t *testing.T) {
	raw := []byte(`{"pulse":1,"beat":2,"stepIndex":3,"chakraDay":"Root","futureField":{"x":1}}`)
	m, err := ParseMetadata(raw)
	if err != nil {
		t.Fatalf("ParseMetadata: %v", err)
	}
	if m.Pulse != 1 || m.ChakraDay != "Root" {
		t.Fatalf("fields not decoded: %+v", m)
	}
	if _, err := ParseMetadata([]byte("not json")); !IsKind(err, KindStructural) {
		t.Fatalf("expected structural error for malformed metadata")
	}
}
