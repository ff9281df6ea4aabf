package update

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashtree/verifier/pkg/blockhash"
)

// NamedHash is a persistent string-to-BlockHash map: every Set returns a
// new NamedHash that shares no mutable state with its predecessor. Each
// stream revision retains the value it had at that revision (reachable
// through the Update chain), so the map must never be mutated in place.
//
// This is a full-copy persistent map rather than a structurally-shared
// trie; see DESIGN.md for why that tradeoff is acceptable here.
type NamedHash struct {
	entries map[string]blockhash.Hash
}

// NewNamedHash returns the empty map, the root value of any NamedHash
// stream.
func NewNamedHash() NamedHash {
	return NamedHash{entries: map[string]blockhash.Hash{}}
}

// Get looks up name, reporting whether it was present.
func (n NamedHash) Get(name string) (blockhash.Hash, bool) {
	h, ok := n.entries[name]
	return h, ok
}

// Set returns a new NamedHash with name bound to hash, leaving the
// receiver untouched.
func (n NamedHash) Set(name string, hash blockhash.Hash) NamedHash {
	next := make(map[string]blockhash.Hash, len(n.entries)+1)
	for k, v := range n.entries {
		next[k] = v
	}
	next[name] = hash
	return NamedHash{entries: next}
}

// Len returns the number of bindings.
func (n NamedHash) Len() int {
	return len(n.entries)
}

// String renders a stable, human-readable dump, mirroring the pretty
// Debug implementation in the original prototype.
func (n NamedHash) String() string {
	names := make([]string, 0, len(n.entries))
	for k := range n.entries {
		names = append(names, k)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("NamedHash{")
	for i, name := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", name, n.entries[name])
	}
	b.WriteString("}")
	return b.String()
}

// MarshalMsgpack encodes the map as a plain msgpack map so the wire form
// matches NamedHash's conceptual shape directly.
func (n NamedHash) MarshalMsgpack() ([]byte, error) {
	return marshalNamedHashMap(n.entries)
}

// UnmarshalMsgpack decodes a plain msgpack map into a fresh NamedHash.
func (n *NamedHash) UnmarshalMsgpack(b []byte) error {
	entries, err := unmarshalNamedHashMap(b)
	if err != nil {
		return err
	}
	n.entries = entries
	return nil
}

// NamedHashCommand is the sole command family over NamedHash: bind a name
// to a block hash, overwriting any prior binding.
type NamedHashCommand struct {
	Set NamedHashSet `msgpack:"Set"`
}

// NamedHashSet names the (name, hash) pair a NamedHashCommand binds.
type NamedHashSet struct {
	Name string         `msgpack:"Name"`
	Hash blockhash.Hash `msgpack:"Hash"`
}

// Process applies the binding. It never fails.
func (c NamedHashCommand) Process(input NamedHash) (NamedHash, error) {
	return input.Set(c.Set.Name, c.Set.Hash), nil
}
