// Package canonical implements the deterministic serialization and hashing
// primitives every leaf hash and signature message in the ledger is built on.
//
// Canonical form is JSON with object keys sorted lexicographically at every
// depth, arrays in their original order, and no insignificant whitespace.
// Two structurally equal values always canonicalize to identical bytes, so
// verification is reproducible bit-for-bit across implementations.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Canonicalize is the mandatory serialization choke point for the ledger.
//
// All hashing and signing MUST go through this function. It accepts any
// JSON-encodable value; non-finite numbers and cyclic structures are rejected
// by the underlying encoder rather than silently normalized.
func Canonicalize(v any) ([]byte, error) {
	// Round-trip through the encoder so struct tags, omitempty, and number
	// representation are resolved once, here, and nowhere else.
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: value is not JSON-encodable: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("canonical: re-decode failed: %w", err)
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(t.String())
	case string:
		enc, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("canonical: string encode: %w", err)
		}
		buf.Write(enc)
	case []any:
		buf.WriteByte('[')
		for i, el := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, el); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			enc, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("canonical: key encode: %w", err)
			}
			buf.Write(enc)
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return errors.New("canonical: unexpected decoded type")
	}
	return nil
}

// HashHex returns the lowercase hex sha256 digest of b.
func HashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashValue canonicalizes v and returns its HashHex digest.
func HashValue(v any) (string, error) {
	b, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return HashHex(b), nil
}

// EmptyHash is HashHex of the empty byte string. It is the sentinel root of
// an empty Merkle window.
func EmptyHash() string {
	return HashHex(nil)
}
