package signed

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type testPayload struct {
	Value uint64 `msgpack:"Value"`
}

func mustKeyPair(t *testing.T) KeyPair {
	t.Helper()
	kp, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	return kp
}

func TestSignVerifyRoundTrip(t *testing.T) {
	kp := mustKeyPair(t)
	allowed := NewAllowedKeys(kp.Public)

	env, err := Sign(kp, testPayload{Value: 42})
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	got, err := Verify[testPayload](env, allowed)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if got.Value != 42 {
		t.Fatalf("Verify() value = %d, want 42", got.Value)
	}
}

func TestVerifyRejectsDisallowedKey(t *testing.T) {
	kp := mustKeyPair(t)
	other := mustKeyPair(t)
	allowed := NewAllowedKeys(other.Public)

	env, err := Sign(kp, testPayload{Value: 1})
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if _, err := Verify[testPayload](env, allowed); !errors.Is(err, ErrDisallowedKey) {
		t.Fatalf("Verify() error = %v, want ErrDisallowedKey", err)
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	kp := mustKeyPair(t)
	allowed := NewAllowedKeys(kp.Public)

	env, err := Sign(kp, testPayload{Value: 1})
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	env.Data[0] ^= 0xFF
	if _, err := Verify[testPayload](env, allowed); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("Verify() error = %v, want ErrBadSignature", err)
	}
}

func TestKeyPairLoadOrGenerate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret", "root_key")

	first, err := LoadOrGenerate(path)
	if err != nil {
		t.Fatalf("LoadOrGenerate() error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected key file to be written: %v", err)
	}

	second, err := LoadOrGenerate(path)
	if err != nil {
		t.Fatalf("LoadOrGenerate() second call error: %v", err)
	}
	if !first.Public.Equal(second.Public) {
		t.Fatalf("LoadOrGenerate() did not persist the same identity across calls")
	}
}
