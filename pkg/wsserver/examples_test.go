package wsserver

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteExampleMessages(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "examples")
	if err := WriteExampleMessages(dir); err != nil {
		t.Fatalf("WriteExampleMessages() error: %v", err)
	}

	for _, name := range []string{
		"AuthChallenge.msgpack",
		"AuthRequest.msgpack",
		"AuthResponse.msgpack",
		"UploadRaw.msgpack",
		"UploadResponse.msgpack",
		"MapLatestRequest.msgpack",
		"MapUpdateRequest.msgpack",
		"MapLatestResponse.msgpack",
		"MapVerifierResultResponse.msgpack",
		"UpdateNotification.msgpack",
	} {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat %s: %v", name, err)
		}
		if info.Size() == 0 {
			t.Fatalf("%s is empty", name)
		}
	}
}
