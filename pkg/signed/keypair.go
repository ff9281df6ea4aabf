package signed

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// KeyPair is an Ed25519 signing identity, persisted as a small
// human-readable file (base64url-no-pad public/secret fields).
type KeyPair struct {
	Public ed25519.PublicKey
	Secret ed25519.PrivateKey
}

// keyPairFile is the on-disk yaml shape: {public, secret}, both
// base64url-no-pad, matching the disk-layout contract for secret/*.
type keyPairFile struct {
	Public string `yaml:"public"`
	Secret string `yaml:"secret"`
}

// Generate creates a fresh random Ed25519 KeyPair.
func Generate() (KeyPair, error) {
	pub, sec, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("signed: generate key: %w", err)
	}
	return KeyPair{Public: pub, Secret: sec}, nil
}

// LoadKeyPair reads a previously persisted KeyPair from path.
func LoadKeyPair(path string) (KeyPair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return KeyPair{}, fmt.Errorf("signed: read key file %s: %w", path, err)
	}
	var file keyPairFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return KeyPair{}, fmt.Errorf("signed: parse key file %s: %w", path, err)
	}
	pub, err := base64.RawURLEncoding.DecodeString(file.Public)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return KeyPair{}, fmt.Errorf("signed: key file %s has malformed public key", path)
	}
	sec, err := base64.RawURLEncoding.DecodeString(file.Secret)
	if err != nil || len(sec) != ed25519.PrivateKeySize {
		return KeyPair{}, fmt.Errorf("signed: key file %s has malformed secret key", path)
	}
	return KeyPair{Public: ed25519.PublicKey(pub), Secret: ed25519.PrivateKey(sec)}, nil
}

// Save persists kp to path atomically, creating parent directories with
// owner-only permissions (the secret material lives under secret/).
func (kp KeyPair) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("signed: mkdir for key file %s: %w", path, err)
	}
	file := keyPairFile{
		Public: base64.RawURLEncoding.EncodeToString(kp.Public),
		Secret: base64.RawURLEncoding.EncodeToString(kp.Secret),
	}
	raw, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("signed: encode key file %s: %w", path, err)
	}
	return writeThenRename(path, raw, 0o600)
}

// LoadOrGenerate loads the KeyPair persisted at path, generating and
// saving a new one if path does not yet exist. This mirrors the
// teacher's load-or-generate key bootstrap, used here for the root key
// and the websocket key. Per-stream keys are made with Generate by the
// verifier map and stored inside each stream's own file.
func LoadOrGenerate(path string) (KeyPair, error) {
	if _, err := os.Stat(path); err == nil {
		return LoadKeyPair(path)
	} else if !os.IsNotExist(err) {
		return KeyPair{}, fmt.Errorf("signed: stat key file %s: %w", path, err)
	}
	kp, err := Generate()
	if err != nil {
		return KeyPair{}, err
	}
	if err := kp.Save(path); err != nil {
		return KeyPair{}, err
	}
	return kp, nil
}

// writeThenRename durably writes data to a temporary sibling of path and
// renames it into place, so a crash mid-write never corrupts an existing
// file at path. Grounded on original_source/src/main.rs's
// write_then_rename helper, used for block files (FSBackend), key files,
// and verifier files.
func writeThenRename(path string, data []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("signed: create temp file for %s: %w", path, err)
	}
	tmp := f.Name()
	if err := f.Chmod(perm); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("signed: chmod temp file %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("signed: write temp file %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("signed: sync temp file %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("signed: close temp file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("signed: rename temp file into %s: %w", path, err)
	}
	return nil
}

// WriteThenRename is exported so other packages (block, verifiermap) share
// the same atomic-write primitive rather than reimplementing it.
func WriteThenRename(path string, data []byte, perm os.FileMode) error {
	return writeThenRename(path, data, perm)
}
