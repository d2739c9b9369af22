package ledger

import (
	"encoding/base64"
	"encoding/json"
)

// compactRecord is one lineage entry in the shareable-link encoding.
// Field names are deliberately terse; the payload rides inside URLs.
type compactRecord struct {
	S string `json:"s"`           // sender signature
	R string `json:"r,omitempty"` // receiver signature, absent while open
	P int    `json:"p"`           // sender kai pulse
}

// EncodeCompactHistory packs the legacy lineage into a URL-safe base64
// string for embedding into shareable links without the full metadata.
func EncodeCompactHistory(m *Metadata) (string, error) {
	if m == nil {
		return "", newError(KindStructural, "LDG-STR-002", "nil metadata")
	}
	records := make([]compactRecord, 0, len(m.Transfers))
	for i := range m.Transfers {
		t := &m.Transfers[i]
		records = append(records, compactRecord{
			S: t.SenderSignature,
			R: t.ReceiverSignature,
			P: t.SenderKaiPulse,
		})
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return "", wrapError(KindStructural, "LDG-STR-060", "compact history encode failed", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// CompactEntry is one decoded shareable-history record.
type CompactEntry struct {
	SenderSignature   string
	ReceiverSignature string
	Pulse             int
}

// DecodeCompactHistory unpacks a shareable-link lineage string.
func DecodeCompactHistory(s string) ([]CompactEntry, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		// Tolerate padded input from older encoders.
		raw, err = base64.URLEncoding.DecodeString(s)
		if err != nil {
			return nil, wrapError(KindStructural, "LDG-STR-061", "compact history is not base64url", err)
		}
	}
	var records []compactRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, wrapError(KindStructural, "LDG-STR-062", "compact history payload malformed", err)
	}
	out := make([]CompactEntry, 0, len(records))
	for _, r := range records {
		out = append(out, CompactEntry{
			SenderSignature:   r.S,
			ReceiverSignature: r.R,
			Pulse:             r.P,
		})
	}
	return out, nil
}
