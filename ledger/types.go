// Package ledger implements the offline verifiable transfer ledger embedded
// in an exported sigil artifact: the legacy stamp track, the hardened
// hash-chained track, bounded-growth segmentation, and the state machine
// that gates every mutating operation.
//
// The package is a pure value-in/value-out module: no ambient global state,
// no network dependency. Mutating operations never modify their input; they
// return a fresh Metadata so a caller observing a failure still holds the
// untouched original.
package ledger

import (
	"encoding/json"
	"strconv"

	"github.com/kojibai/sigil-ledger/zk"
)

// Context and type markers expected on a well-formed artifact.
const (
	MetaContext = "https://kai-klok.com/sigil/v1"
	MetaType    = "KaiSigil"
)

// DefaultSegmentSize bounds the live transfer window before rollover.
const DefaultSegmentSize = 2000

// SegmentFileVersion is the schema version written into exported segment files.
const SegmentFileVersion = 1

// Metadata is the single persisted ledger record embedded in an exported
// artifact. Identity coordinates (pulse, beat, stepIndex, chakraDay) are
// immutable once sealed; everything else evolves through the gated
// operations in this package.
//
// Readers must tolerate unknown fields: decode with encoding/json, which
// ignores anything it does not recognize.
type Metadata struct {
	Context string `json:"@context,omitempty"`
	Type    string `json:"type,omitempty"`

	Pulse     int    `json:"pulse"`
	Beat      int    `json:"beat"`
	StepIndex int    `json:"stepIndex"`
	ChakraDay string `json:"chakraDay"`

	// ContentSignature (Σ) binds the identity coordinates; OwnerKey (Φ) is
	// the derived identity of the current claimant.
	ContentSignature string `json:"contentSignature,omitempty"`
	OwnerKey         string `json:"ownerKey,omitempty"`

	// CreatorPublicKey optionally anchors the creator's portable public key.
	CreatorPublicKey string `json:"creatorPublicKey,omitempty"`

	Transfers         []Transfer         `json:"transfers,omitempty"`
	HardenedTransfers []HardenedTransfer `json:"hardenedTransfers,omitempty"`

	Segments           []SegmentEntry `json:"segments,omitempty"`
	SegmentsMerkleRoot string         `json:"segmentsMerkleRoot,omitempty"`

	TransfersWindowRoot    string `json:"transfersWindowRoot,omitempty"`
	TransfersWindowRootV14 string `json:"transfersWindowRootV14,omitempty"`

	CumulativeTransfers int    `json:"cumulativeTransfers,omitempty"`
	SegmentSize         int    `json:"segmentSize,omitempty"`
	HeadHashAtSeal      string `json:"headHashAtSeal,omitempty"`
}

// TransferPayload is an optional attachment carried by a legacy transfer.
type TransferPayload struct {
	Name string `json:"name"`
	Mime string `json:"mime"`
	Size int    `json:"size"`
	Data string `json:"data"` // base64 bytes
}

// Transfer is a legacy stamp-and-signature transfer.
// It is "open" while only the sender fields are set and becomes immutable
// once the receiver fields are filled.
type Transfer struct {
	SenderSignature string           `json:"senderSignature"`
	SenderStamp     string           `json:"senderStamp"`
	SenderKaiPulse  int              `json:"senderKaiPulse"`
	Payload         *TransferPayload `json:"payload,omitempty"`

	ReceiverSignature string `json:"receiverSignature,omitempty"`
	ReceiverStamp     string `json:"receiverStamp,omitempty"`
	ReceiverKaiPulse  int    `json:"receiverKaiPulse,omitempty"`
}

// Open reports whether the transfer still awaits its receiver.
func (t *Transfer) Open() bool { return t.ReceiverSignature == "" }

// HardenedTransfer is a cryptographically chained transfer record.
// PreviousHeadRoot of entry i+1 must equal the head root recomputed from
// entries 0..i; a violation signals tampering or a fork.
type HardenedTransfer struct {
	PreviousHeadRoot     string `json:"previousHeadRoot"`
	SenderPubKey         string `json:"senderPubKey"`
	SenderSig            string `json:"senderSig"`
	SenderKaiPulse       int    `json:"senderKaiPulse"`
	Nonce                string `json:"nonce"`
	TransferLeafHashSend string `json:"transferLeafHashSend"`

	ReceiverPubKey          string `json:"receiverPubKey,omitempty"`
	ReceiverSig             string `json:"receiverSig,omitempty"`
	ReceiverKaiPulse        int    `json:"receiverKaiPulse,omitempty"`
	TransferLeafHashReceive string `json:"transferLeafHashReceive,omitempty"`

	ZkSend    *zk.Stamp `json:"zkSend,omitempty"`
	ZkReceive *zk.Stamp `json:"zkReceive,omitempty"`

	// Full bundles are kept for offline re-verification; they are bound to
	// the entry through the stamps above.
	ZkSendBundle    *zk.Bundle `json:"zkSendBundle,omitempty"`
	ZkReceiveBundle *zk.Bundle `json:"zkReceiveBundle,omitempty"`
}

// Accepted reports whether the entry has been countersigned by its receiver.
func (h *HardenedTransfer) Accepted() bool { return h.ReceiverSig != "" }

// SegmentEntry is the in-metadata record of an archived segment.
// The referenced Segment file is immutable; its CID is the only durable
// reference other systems should keep.
type SegmentEntry struct {
	Index int    `json:"index"`
	Range [2]int `json:"range"` // global transfer index span, [first, last]
	Root  string `json:"root"`
	CID   string `json:"cid"`
	Count int    `json:"count"`
}

// Segment is the exported archive document for one rolled window.
type Segment struct {
	Version        int        `json:"version"`
	SegmentIndex   int        `json:"segmentIndex"`
	SegmentRange   [2]int     `json:"segmentRange"`
	SegmentRoot    string     `json:"segmentRoot"`
	HeadHashAtSeal string     `json:"headHashAtSeal"`
	LeafHash       string     `json:"leafHash"` // digest algorithm, always "sha256"
	Transfers      []Transfer `json:"transfers"`
}

// Clone returns a deep copy of m. All mutating operations work on a clone so
// failure never leaves the caller with partially mutated metadata.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		// Metadata is a closed struct of JSON-encodable fields; marshal
		// cannot fail for a value constructed through this package.
		panic("ledger: metadata not encodable: " + err.Error())
	}
	var out Metadata
	if err := json.Unmarshal(raw, &out); err != nil {
		panic("ledger: metadata clone round-trip failed: " + err.Error())
	}
	return &out
}

// ParseMetadata decodes an embedded metadata document. Unknown fields are
// tolerated for forward compatibility.
func ParseMetadata(raw []byte) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, wrapError(KindStructural, "LDG-STR-001", "metadata is not valid JSON", err)
	}
	return &m, nil
}

// EncodeMetadata serializes m for embedding back into the artifact.
func EncodeMetadata(m *Metadata) ([]byte, error) {
	if m == nil {
		return nil, newError(KindStructural, "LDG-STR-002", "nil metadata")
	}
	return json.Marshal(m)
}

func (m *Metadata) segmentCap() int {
	if m.SegmentSize > 0 {
		return m.SegmentSize
	}
	return DefaultSegmentSize
}

func (m *Metadata) lastTransfer() *Transfer {
	if len(m.Transfers) == 0 {
		return nil
	}
	return &m.Transfers[len(m.Transfers)-1]
}

func (m *Metadata) lastHardened() *HardenedTransfer {
	if len(m.HardenedTransfers) == 0 {
		return nil
	}
	return &m.HardenedTransfers[len(m.HardenedTransfers)-1]
}

func itoa(i int) string { return strconv.Itoa(i) }
