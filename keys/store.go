package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOrphanedIdentity is returned when a public anchor exists on disk but the
// private seed is gone. Regenerating here would orphan every lineage entry
// already bound to the old key, so the store refuses and leaves resolution to
// the caller.
var ErrOrphanedIdentity = errors.New("keys: public anchor present but seed missing; refusing to regenerate")

// Store is a filesystem-backed keystore holding sovereign identities.
//
// Layout: <dir>/<name>.seed (hex ed25519 seed, 0600) and <dir>/<name>.pub
// (portable public key string, 0644). The .pub file doubles as the anchor
// that LoadOrCreate checks before it will ever generate a fresh key.
type Store struct {
	Directory string
}

// Identity is a loaded sovereign keypair.
type Identity struct {
	Name    string
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
}

// DefaultDirectory returns the per-user keystore location.
func DefaultDirectory() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".sigil", "keys"), nil
}

// Open constructs a Store rooted at directory, defaulting to DefaultDirectory.
func Open(directory string) (*Store, error) {
	if directory == "" {
		var err error
		directory, err = DefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &Store{Directory: directory}, nil
}

func checkName(name string) error {
	if name == "" {
		return errors.New("keys: identity name cannot be empty")
	}
	for _, char := range name {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("keys: invalid character %q in identity name", char)
	}
	return nil
}

func (s *Store) seedPath(name string) string {
	return filepath.Join(s.Directory, name+".seed")
}

func (s *Store) pubPath(name string) string {
	return filepath.Join(s.Directory, name+".pub")
}

// LoadOrCreate returns the persisted identity for name, generating and
// persisting a fresh Ed25519 keypair only when neither half exists yet.
//
// If the public anchor file survives without its seed, ErrOrphanedIdentity is
// returned: a key that may already have lineage entries bound to it must not
// be silently replaced.
func (s *Store) LoadOrCreate(name string) (*Identity, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}

	seed, err := s.loadSeed(name)
	switch {
	case err == nil:
		return identityFromSeed(name, seed)
	case os.IsNotExist(err):
		if _, perr := os.Stat(s.pubPath(name)); perr == nil {
			return nil, ErrOrphanedIdentity
		}
		return s.generate(name)
	default:
		return nil, err
	}
}

// Load returns the persisted identity for name or an error when absent.
func (s *Store) Load(name string) (*Identity, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	seed, err := s.loadSeed(name)
	if err != nil {
		if os.IsNotExist(err) {
			if _, perr := os.Stat(s.pubPath(name)); perr == nil {
				return nil, ErrOrphanedIdentity
			}
		}
		return nil, err
	}
	return identityFromSeed(name, seed)
}

func (s *Store) generate(name string) (*Identity, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	id, err := identityFromSeed(name, seed)
	if err != nil {
		return nil, err
	}
	if err := s.saveSeed(name, seed); err != nil {
		return nil, err
	}
	anchor, err := PublicKeyString(id.Public)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(s.pubPath(name), []byte(anchor+"\n"), 0o644); err != nil {
		return nil, err
	}
	return id, nil
}

func identityFromSeed(name string, seed []byte) (*Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("keys: expected seed length of %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Identity{
		Name:    name,
		Private: priv,
		Public:  priv.Public().(ed25519.PublicKey),
	}, nil
}

func (s *Store) saveSeed(name string, seed []byte) error {
	path := s.seedPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	// O_EXCL: a concurrent or earlier create wins; never truncate an existing seed.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		return err
	}
	return f.Close()
}

func (s *Store) loadSeed(name string) ([]byte, error) {
	data, err := os.ReadFile(s.seedPath(name))
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(string(data))
}

// ParseSeedHex decodes a 32-byte ed25519 seed from hex, tolerating
// surrounding whitespace and an optional 0x prefix.
func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimSpace(seedHex)
	seedHex = strings.TrimPrefix(seedHex, "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != ed25519.SeedSize {
		return nil, fmt.Errorf("keys: expected seed length of %d bytes, got %d", ed25519.SeedSize, len(data))
	}
	return data, nil
}

// List returns the names of all identities persisted in the store, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".seed") {
			names = append(names, strings.TrimSuffix(e.Name(), ".seed"))
		}
	}
	return names, nil
}
