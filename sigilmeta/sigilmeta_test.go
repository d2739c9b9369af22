package sigilmeta

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

const ledgerJSON = `{"@context":"https://kai-klok.com/sigil/v1","pulse":12,"name":"a<b"}`

func svgWith(body string) []byte {
	return []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 64 64">` + body + `</svg>`)
}

func TestExtract_Canonical(t *testing.T) {
	art := svgWith(`<metadata data-role="sigil-ledger">{"pulse":7}</metadata>`)
	got, err := Extract(art)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if string(got) != `{"pulse":7}` {
		t.Fatalf("unexpected content: %s", got)
	}
}

func TestExtract_PrefersCanonicalOverDisplay(t *testing.T) {
	art := svgWith(`<metadata data-role="display">shown to humans</metadata>` +
		`<metadata data-role="sigil-ledger">{"pulse":7}</metadata>`)
	got, err := Extract(art)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if string(got) != `{"pulse":7}` {
		t.Fatalf("picked the wrong block: %s", got)
	}
}

func TestExtract_SingleUntaggedBlock(t *testing.T) {
	art := svgWith(`<metadata>{"pulse":7}</metadata>`)
	got, err := Extract(art)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if string(got) != `{"pulse":7}` {
		t.Fatalf("unexpected content: %s", got)
	}
}

func TestExtract_Errors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want error
	}{
		{"missing", `<rect width="64" height="64"/>`, ErrNoContainer},
		{"empty", `<metadata data-role="sigil-ledger">  </metadata>`, ErrNoContainer},
		{"duplicate canonical", `<metadata data-role="sigil-ledger">{"a":1}</metadata>` +
			`<metadata data-role="sigil-ledger">{"a":2}</metadata>`, ErrDuplicateContainer},
		{"ambiguous untagged", `<metadata>{"a":1}</metadata><metadata>{"a":2}</metadata>`, ErrAmbiguousContainer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Extract(svgWith(tc.body))
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestEmbed_ReplacesCanonical(t *testing.T) {
	art := svgWith(`<rect width="64" height="64"/>` +
		`<metadata data-role="sigil-ledger">{"old":true}</metadata>`)
	out, err := Embed(art, []byte(ledgerJSON))
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	got, err := Extract(out)
	if err != nil {
		t.Fatalf("Extract after Embed: %v", err)
	}
	if string(got) != ledgerJSON {
		t.Fatalf("round trip mismatch:\n got %s\nwant %s", got, ledgerJSON)
	}
	if !bytes.Contains(out, []byte(`<rect width="64" height="64"/>`)) {
		t.Fatalf("embed disturbed unrelated bytes: %s", out)
	}
	if bytes.Contains(out, []byte(`{"old":true}`)) {
		t.Fatalf("old content survived: %s", out)
	}
}

func TestEmbed_InsertsWhenMissing(t *testing.T) {
	art := svgWith(`<rect width="64" height="64"/>`)
	out, err := Embed(art, []byte(ledgerJSON))
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	got, err := Extract(out)
	if err != nil {
		t.Fatalf("Extract after Embed: %v", err)
	}
	if string(got) != ledgerJSON {
		t.Fatalf("round trip mismatch: %s", got)
	}
}

func TestEmbed_EscapesAndRecovers(t *testing.T) {
	out, err := Embed(svgWith(""), []byte(ledgerJSON))
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	// The artifact must stay parseable and the JSON must survive untouched.
	got, err := Extract(out)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(got, &decoded); err != nil {
		t.Fatalf("embedded JSON no longer parses: %v", err)
	}
	if decoded["name"] != "a<b" {
		t.Fatalf("escaped value corrupted: %v", decoded["name"])
	}
}

func TestEmbed_ReopensSelfClosedContainer(t *testing.T) {
	art := svgWith(`<rect width="64" height="64"/><metadata data-role="sigil-ledger"/>`)
	out, err := Embed(art, []byte(ledgerJSON))
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	got, err := Extract(out)
	if err != nil {
		t.Fatalf("Extract after Embed: %v", err)
	}
	if string(got) != ledgerJSON {
		t.Fatalf("round trip mismatch: %s", got)
	}
	if !bytes.Contains(out, []byte(`<rect width="64" height="64"/>`)) {
		t.Fatalf("embed disturbed unrelated bytes: %s", out)
	}
}

func TestEmbed_RejectsDuplicateCanonical(t *testing.T) {
	art := svgWith(`<metadata data-role="sigil-ledger">{"a":1}</metadata>` +
		`<metadata data-role="sigil-ledger">{"a":2}</metadata>`)
	if _, err := Embed(art, []byte(`{}`)); !errors.Is(err, ErrDuplicateContainer) {
		t.Fatalf("got %v, want ErrDuplicateContainer", err)
	}
}
