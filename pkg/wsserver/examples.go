package wsserver

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashtree/verifier/pkg/blockhash"
	"github.com/hashtree/verifier/pkg/ltime"
	"github.com/hashtree/verifier/pkg/signed"
	"github.com/hashtree/verifier/pkg/update"
)

// WriteExampleMessages writes one MessagePack-encoded sample of each
// tagged wire message this protocol exchanges to dir, one file per
// message kind, for the benefit of client implementers who want a
// concrete reference without standing up a server. Grounded on
// original_source/src/websocket.rs's write_example_messages.
func WriteExampleMessages(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("wsserver: make example dir: %w", err)
	}

	serverKP, err := signed.Generate()
	if err != nil {
		return fmt.Errorf("wsserver: generate example server key: %w", err)
	}
	clientKP, err := signed.Generate()
	if err != nil {
		return fmt.Errorf("wsserver: generate example client key: %w", err)
	}

	challenge := ServerAuthChallenge{Timestamp: ltime.Now(), Challenge: [ChallengeSize]byte{}}
	challengeEnv, err := signed.Sign(serverKP, challenge)
	if err != nil {
		return fmt.Errorf("wsserver: sign example challenge: %w", err)
	}

	authResp := struct {
		Ok  bool   `msgpack:"Ok"`
		Err string `msgpack:"Err,omitempty"`
	}{Ok: true}

	authReqEnv, err := signed.Sign(clientKP, ClientAuthResponse{
		Timestamp: ltime.Now(),
		Response:  challenge.Challenge,
	})
	if err != nil {
		return fmt.Errorf("wsserver: sign example auth response: %w", err)
	}

	exampleHash := blockhash.Of([]byte("example block contents"))

	updateCmd := update.NamedHashCommand{Set: update.NamedHashSet{Name: "asset", Hash: exampleHash}}
	updateEnv, err := signed.Sign(clientKP, update.Update[update.NamedHashCommand]{
		Timestamp: ltime.Now(),
		Command:   updateCmd,
		Last:      exampleHash,
	})
	if err != nil {
		return fmt.Errorf("wsserver: sign example update: %w", err)
	}

	examples := []struct {
		label   string
		cmd     string
		payload any
	}{
		{"AuthChallenge", "AuthChallenge", challengeEnv},
		{"AuthRequest", "Auth", authReqEnv},
		{"AuthResponse", "Auth", authResp},
		{"UploadRaw", "UploadRaw", UploadRaw{Data: []byte("example payload bytes")}},
		{"UploadResponse", "UploadResponse", UploadResponse{Ok: &exampleHash}},
		{"MapLatestRequest", "Map", MapRequest{Stream: "main", Request: VerifierRequest{Latest: true}}},
		{"MapUpdateRequest", "Map", MapRequest{Stream: "main", Request: VerifierRequest{Update: &updateEnv}}},
		{"MapLatestResponse", "MapResponse", MapResponse{Latest: &exampleHash}},
		{"MapVerifierResultResponse", "MapResponse", MapResponse{VerifierResult: &VerifierResult{Ok: &exampleHash}}},
		{"UpdateNotification", "UpdateNotification", UpdateNotification{Stream: "main", Hash: exampleHash}},
	}

	for _, ex := range examples {
		body, err := encodeTagged(ex.cmd, ex.payload)
		if err != nil {
			return fmt.Errorf("wsserver: encode example %s: %w", ex.label, err)
		}
		path := filepath.Join(dir, ex.label+".msgpack")
		if err := os.WriteFile(path, body, 0o600); err != nil {
			return fmt.Errorf("wsserver: write example %s: %w", ex.label, err)
		}
	}
	return nil
}
