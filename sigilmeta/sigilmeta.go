// Package sigilmeta reads and writes the ledger metadata container embedded
// in an exported sigil artifact (an SVG document).
//
// The canonical container is a <metadata> element carrying
// data-role="sigil-ledger"; artifacts may additionally carry display-oriented
// metadata blocks, which are never authoritative. A missing container or a
// duplicated canonical container is a parse error, never a silent pick.
package sigilmeta

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// CanonicalRole is the data-role attribute value of the authoritative block.
const CanonicalRole = "sigil-ledger"

var (
	ErrNoContainer        = errors.New("sigilmeta: no metadata container in artifact")
	ErrDuplicateContainer = errors.New("sigilmeta: duplicate canonical metadata container")
	ErrAmbiguousContainer = errors.New("sigilmeta: multiple metadata containers and none canonical")
	ErrNoLedgerBlock      = errors.New("sigilmeta: no canonical ledger block to replace")
)

type block struct {
	role       string
	content    []byte
	innerStart int64
	innerEnd   int64
}

// selfClosed reports whether the block came from a `<metadata .../>`
// element: the decoder synthesizes its end token at the same offset, so
// there is no interior between the offsets.
func (b block) selfClosed(artifact []byte) bool {
	return b.innerStart == b.innerEnd &&
		b.innerStart >= 2 &&
		string(artifact[b.innerStart-2:b.innerStart]) == "/>"
}

func scan(artifact []byte) ([]block, error) {
	dec := xml.NewDecoder(bytes.NewReader(artifact))
	var blocks []block

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return blocks, nil
		}
		if err != nil {
			return nil, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "metadata" {
			continue
		}

		b := block{innerStart: dec.InputOffset()}
		for _, attr := range se.Attr {
			if attr.Name.Local == "data-role" {
				b.role = attr.Value
			}
		}

		depth := 0
		var content bytes.Buffer
		done := false
		for !done {
			before := dec.InputOffset()
			inner, err := dec.Token()
			if err != nil {
				return nil, err
			}
			switch t := inner.(type) {
			case xml.StartElement:
				depth++
			case xml.EndElement:
				if depth == 0 {
					b.innerEnd = before
					b.content = content.Bytes()
					blocks = append(blocks, b)
					done = true
				} else {
					depth--
				}
			case xml.CharData:
				if depth == 0 {
					content.Write([]byte(t))
				}
			}
		}
	}
}

func pick(blocks []block) (block, error) {
	var canonical []block
	for _, b := range blocks {
		if b.role == CanonicalRole {
			canonical = append(canonical, b)
		}
	}
	switch {
	case len(canonical) == 1:
		return canonical[0], nil
	case len(canonical) > 1:
		return block{}, ErrDuplicateContainer
	case len(blocks) == 1:
		// Legacy artifacts carry a single untagged container.
		return blocks[0], nil
	case len(blocks) == 0:
		return block{}, ErrNoContainer
	default:
		return block{}, ErrAmbiguousContainer
	}
}

// Extract returns the raw ledger JSON from the artifact's canonical
// metadata container.
func Extract(artifact []byte) ([]byte, error) {
	blocks, err := scan(artifact)
	if err != nil {
		return nil, err
	}
	b, err := pick(blocks)
	if err != nil {
		return nil, err
	}
	content := bytes.TrimSpace(b.content)
	if len(content) == 0 {
		return nil, ErrNoContainer
	}
	return content, nil
}

// Embed writes metaJSON into the artifact's canonical container, replacing
// its previous content, or appends a fresh canonical container before the
// closing svg tag when none exists. The rest of the artifact's bytes are
// left untouched.
func Embed(artifact, metaJSON []byte) ([]byte, error) {
	blocks, err := scan(artifact)
	if err != nil {
		return nil, err
	}

	b, perr := pick(blocks)
	if perr == nil && (b.role == CanonicalRole || len(blocks) == 1) {
		out := make([]byte, 0, len(artifact)+len(metaJSON))
		if b.selfClosed(artifact) {
			// `<metadata .../>` has no interior to splice into; reopen it.
			out = append(out, artifact[:b.innerStart-2]...)
			out = append(out, '>')
			out = append(out, escapeContent(metaJSON)...)
			out = append(out, "</metadata>"...)
			out = append(out, artifact[b.innerStart:]...)
			return out, nil
		}
		out = append(out, artifact[:b.innerStart]...)
		out = append(out, escapeContent(metaJSON)...)
		out = append(out, artifact[b.innerEnd:]...)
		return out, nil
	}
	if perr == ErrDuplicateContainer {
		return nil, perr
	}

	// No usable container: insert one before </svg>.
	idx := bytes.LastIndex(artifact, []byte("</svg>"))
	if idx < 0 {
		return nil, ErrNoLedgerBlock
	}
	var buf bytes.Buffer
	buf.Write(artifact[:idx])
	buf.WriteString(`<metadata data-role="` + CanonicalRole + `">`)
	buf.Write(escapeContent(metaJSON))
	buf.WriteString("</metadata>")
	buf.Write(artifact[idx:])
	return buf.Bytes(), nil
}

// escapeContent makes JSON safe as XML character data. JSON rarely contains
// the offending characters outside of string values, but string values may.
func escapeContent(raw []byte) []byte {
	s := string(raw)
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	return []byte(s)
}
