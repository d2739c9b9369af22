package keys

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// PublicKeyString encodes an Ed25519 public key in the portable,
// self-describing form embedded as creatorPublicKey: "ed25519:" + base64.
func PublicKeyString(pub ed25519.PublicKey) (string, error) {
	if l := len(pub); l != ed25519.PublicKeySize {
		return "", fmt.Errorf("keys: ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, l)
	}
	return "ed25519:" + base64.StdEncoding.EncodeToString(pub), nil
}

// Dilithium3PublicKeyString encodes a Dilithium3 public key the same way.
func Dilithium3PublicKeyString(pub *mode3.PublicKey) (string, error) {
	if pub == nil {
		return "", fmt.Errorf("keys: nil dilithium3 public key")
	}
	raw, err := pub.MarshalBinary()
	if err != nil {
		return "", err
	}
	return "dilithium3:" + base64.StdEncoding.EncodeToString(raw), nil
}

// ParsePublicKey decodes a portable public key string.
// Supported encodings:
//   - ed25519:<base64>
//   - dilithium3:<base64>
func ParsePublicKey(s string) (alg string, raw []byte, err error) {
	alg, enc, ok := strings.Cut(s, ":")
	if !ok {
		return "", nil, fmt.Errorf("keys: invalid public key encoding")
	}
	raw, err = decodeBase64(enc)
	if err != nil {
		return "", nil, fmt.Errorf("keys: invalid public key base64: %w", err)
	}
	switch alg {
	case "ed25519":
		if len(raw) != ed25519.PublicKeySize {
			return "", nil, fmt.Errorf("keys: invalid ed25519 public key length")
		}
	case "dilithium3":
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(raw); err != nil {
			return "", nil, fmt.Errorf("keys: invalid dilithium3 public key: %w", err)
		}
	default:
		return "", nil, fmt.Errorf("keys: unsupported public key encoding %q", alg)
	}
	return alg, raw, nil
}

// VerifyPortable checks sigB64 over message against a portable public key
// string, dispatching on its algorithm prefix.
func VerifyPortable(pubString string, message []byte, sigB64 string) bool {
	alg, raw, err := ParsePublicKey(pubString)
	if err != nil {
		return false
	}
	switch alg {
	case "ed25519":
		return VerifyEd25519SHA256(message, sigB64, ed25519.PublicKey(raw))
	case "dilithium3":
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(raw); err != nil {
			return false
		}
		return VerifyDilithium3(message, "sha256", sigB64, &pk)
	default:
		return false
	}
}
