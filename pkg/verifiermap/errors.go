// Package verifiermap implements a named directory of Verifiers, all
// hosting the same NamedHash/NamedHashCommand stream family, persisted
// one human-readable file per verifier under a single directory.
package verifiermap

import "errors"

var (
	// ErrNotFound is returned by FromDir when the backing directory does
	// not exist or holds no verifier files: both mean a fresh install,
	// and the caller should provision a new map.
	ErrNotFound = errors.New("verifiermap: directory not found")

	// ErrAlreadyExists is returned by AddNew for a name already present.
	ErrAlreadyExists = errors.New("verifiermap: verifier already exists")

	// ErrNoVerifier is returned by Verify/Latest for a name with no
	// registered verifier.
	ErrNoVerifier = errors.New("verifiermap: no such verifier")
)
