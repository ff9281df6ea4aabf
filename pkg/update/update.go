// Package update defines the client-authored transition vocabulary:
// a Command is a pure, total, deterministic function from one stream
// value to the next, and an Update pairs a Command with the timestamp and
// prior-tip hash it was authored against.
package update

import (
	"github.com/hashtree/verifier/pkg/blockhash"
	"github.com/hashtree/verifier/pkg/ltime"
)

// Command transitions a stream's value of type T. Process must be pure,
// total, and deterministic: no wall-clock reads, no randomness, no
// observation of anything but input and the command's own fields, so
// that replaying a stream's update history always reproduces the same
// sequence of values.
type Command[T any] interface {
	Process(input T) (T, error)
}

// Update is the client-authored envelope a Verifier consumes: a command
// to apply, stamped with the time it was authored and the tip it was
// authored against.
type Update[C any] struct {
	Timestamp ltime.Seconds  `msgpack:"Timestamp"`
	Command   C              `msgpack:"Command"`
	Last      blockhash.Hash `msgpack:"Last"`
}
