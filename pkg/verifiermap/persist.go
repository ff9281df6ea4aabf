package verifiermap

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/hashtree/verifier/pkg/blockhash"
	"github.com/hashtree/verifier/pkg/signed"
)

// verifierFile is the human-readable on-disk shape of a single verifier:
// {keypair, allowed: [PublicKey...], latest: Option<BlockHash>}, matching
// the disk layout this system documents for secret/streams/<name>.
type verifierFile struct {
	Public  string   `yaml:"public"`
	Secret  string   `yaml:"secret"`
	Allowed []string `yaml:"allowed"`
	Latest  *string  `yaml:"latest,omitempty"`
}

func encodeFile(kp signed.KeyPair, allowed signed.AllowedKeys, latest *blockhash.Hash) verifierFile {
	allowedStrs := make([]string, 0, 4)
	for _, pk := range allowed.Slice() {
		allowedStrs = append(allowedStrs, base64.RawURLEncoding.EncodeToString(pk))
	}
	var latestStr *string
	if latest != nil {
		s := latest.String()
		latestStr = &s
	}
	return verifierFile{
		Public:  base64.RawURLEncoding.EncodeToString(kp.Public),
		Secret:  base64.RawURLEncoding.EncodeToString(kp.Secret),
		Allowed: allowedStrs,
		Latest:  latestStr,
	}
}

func (f verifierFile) decode() (signed.KeyPair, signed.AllowedKeys, *blockhash.Hash, error) {
	pub, err := base64.RawURLEncoding.DecodeString(f.Public)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return signed.KeyPair{}, signed.AllowedKeys{}, nil, fmt.Errorf("verifiermap: malformed public key")
	}
	sec, err := base64.RawURLEncoding.DecodeString(f.Secret)
	if err != nil || len(sec) != ed25519.PrivateKeySize {
		return signed.KeyPair{}, signed.AllowedKeys{}, nil, fmt.Errorf("verifiermap: malformed secret key")
	}
	kp := signed.KeyPair{Public: ed25519.PublicKey(pub), Secret: ed25519.PrivateKey(sec)}

	allowedKeys := make([]ed25519.PublicKey, 0, len(f.Allowed))
	for _, s := range f.Allowed {
		raw, err := base64.RawURLEncoding.DecodeString(s)
		if err != nil || len(raw) != ed25519.PublicKeySize {
			return signed.KeyPair{}, signed.AllowedKeys{}, nil, fmt.Errorf("verifiermap: malformed allowed key %q", s)
		}
		allowedKeys = append(allowedKeys, ed25519.PublicKey(raw))
	}
	allowed := signed.NewAllowedKeys(allowedKeys...)

	var latest *blockhash.Hash
	if f.Latest != nil {
		h, err := blockhash.Parse(*f.Latest)
		if err != nil {
			return signed.KeyPair{}, signed.AllowedKeys{}, nil, fmt.Errorf("verifiermap: malformed latest hash: %w", err)
		}
		latest = &h
	}
	return kp, allowed, latest, nil
}

func writeVerifierFile(dir, name string, kp signed.KeyPair, allowed signed.AllowedKeys, latest *blockhash.Hash) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("verifiermap: mkdir %s: %w", dir, err)
	}
	raw, err := yaml.Marshal(encodeFile(kp, allowed, latest))
	if err != nil {
		return fmt.Errorf("verifiermap: encode %s: %w", name, err)
	}
	return signed.WriteThenRename(filepath.Join(dir, name), raw, 0o600)
}

func readVerifierFile(dir, name string) (signed.KeyPair, signed.AllowedKeys, *blockhash.Hash, error) {
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return signed.KeyPair{}, signed.AllowedKeys{}, nil, fmt.Errorf("verifiermap: read %s: %w", name, err)
	}
	var f verifierFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return signed.KeyPair{}, signed.AllowedKeys{}, nil, fmt.Errorf("verifiermap: parse %s: %w", name, err)
	}
	return f.decode()
}
