// Package view implements the interactive block-navigation CLI: given a
// stream type and a starting hash, walk the stream backward, printing
// each tip's decoded value, signer, and embedded update.
package view

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/hashtree/verifier/pkg/block"
	"github.com/hashtree/verifier/pkg/blockhash"
	"github.com/hashtree/verifier/pkg/signed"
	"github.com/hashtree/verifier/pkg/update"
	"github.com/hashtree/verifier/pkg/verify"
)

// KnownKinds lists the stream value types the view CLI can decode.
var KnownKinds = []string{"test", "namedhash"}

// Navigate walks the stream rooted at the given kind, starting from
// hash, printing each step to out and reading menu choices from in.
func Navigate(store *block.Store, kind string, hash blockhash.Hash, in io.Reader, out io.Writer) error {
	switch kind {
	case "test":
		return navigate[update.TestObject](store, hash, in, out)
	case "namedhash":
		return navigate[update.NamedHash](store, hash, in, out)
	default:
		return fmt.Errorf("view: unknown kind %q, want one of %v", kind, KnownKinds)
	}
}

func navigate[T any](store *block.Store, hash blockhash.Hash, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	current := hash
	for {
		raw, ok, err := store.Get(current)
		if err != nil {
			return fmt.Errorf("view: fetch %s: %w", current, err)
		}
		if !ok {
			return fmt.Errorf("view: block %s not found", current)
		}
		var env signed.Envelope
		if err := msgpack.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("view: decode envelope at %s: %w", current, err)
		}
		var data verify.VerifiedData[T]
		if err := msgpack.Unmarshal(env.Data, &data); err != nil {
			return fmt.Errorf("view: decode value at %s: %w", current, err)
		}

		fmt.Fprintf(out, "block %s\n", current)
		fmt.Fprintf(out, "  signer: %s\n", signerName(env.User))
		fmt.Fprintf(out, "  value:  %+v\n", data.Value)

		if data.Update == nil {
			fmt.Fprintln(out, "  this is a root block")
			fmt.Fprintln(out, "(end of history)")
			return nil
		}

		var upd rawUpdate
		if err := msgpack.Unmarshal(data.Update.Data, &upd); err != nil {
			return fmt.Errorf("view: decode embedded update at %s: %w", current, err)
		}
		fmt.Fprintf(out, "  update author: %s\n", signerName(data.Update.User))
		fmt.Fprintf(out, "  update time:   %d\n", upd.Timestamp)

		fmt.Fprintln(out, "1) go to previous block")
		fmt.Fprintln(out, "2) stop")
		fmt.Fprint(out, "> ")

		line, err := reader.ReadString('\n')
		if err != nil {
			return nil
		}
		switch strings.TrimSpace(line) {
		case "1":
			current = upd.Last
		default:
			return nil
		}
	}
}

// rawUpdate decodes just the fields common to every update.Update[C]
// instantiation, since the navigator does not know C at compile time.
type rawUpdate struct {
	Timestamp uint64         `msgpack:"Timestamp"`
	Last      blockhash.Hash `msgpack:"Last"`
}

func signerName(pub []byte) string {
	return base64.RawURLEncoding.EncodeToString(pub)
}
