package update

import (
	"github.com/hashtree/verifier/pkg/blockhash"
	"github.com/vmihailenco/msgpack/v5"
)

func marshalNamedHashMap(entries map[string]blockhash.Hash) ([]byte, error) {
	return msgpack.Marshal(entries)
}

func unmarshalNamedHashMap(b []byte) (map[string]blockhash.Hash, error) {
	entries := map[string]blockhash.Hash{}
	if err := msgpack.Unmarshal(b, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
