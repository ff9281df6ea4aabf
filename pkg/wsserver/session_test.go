package wsserver

import (
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gwebsocket "github.com/gorilla/websocket"

	"github.com/hashtree/verifier/pkg/block"
	"github.com/hashtree/verifier/pkg/blockhash"
	"github.com/hashtree/verifier/pkg/ltime"
	"github.com/hashtree/verifier/pkg/signed"
	"github.com/hashtree/verifier/pkg/update"
	"github.com/hashtree/verifier/pkg/verifiermap"
)

func newTestServer(t *testing.T) (*httptest.Server, *Server) {
	t.Helper()
	backend, err := block.NewFSBackend(filepath.Join(t.TempDir(), "blocks"))
	if err != nil {
		t.Fatalf("NewFSBackend() error: %v", err)
	}
	store := block.NewStore(backend, nil, nil)
	streams := verifiermap.NewDir(filepath.Join(t.TempDir(), "streams"), store)
	serverKey, err := signed.Generate()
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	srv := NewServer(serverKey, store, streams, 2, nil, nil, nil)
	ts := httptest.NewServer(srv)
	return ts, srv
}

func dialAndAuth(t *testing.T, ts *httptest.Server) *gwebsocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/"
	conn, _, err := gwebsocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read challenge: %v", err)
	}
	msg, err := decodeTagged(raw)
	if err != nil {
		t.Fatalf("decode challenge: %v", err)
	}
	if msg.Cmd != "AuthChallenge" {
		t.Fatalf("got Cmd %q, want AuthChallenge", msg.Cmd)
	}
	var challengeEnv signed.Envelope
	if err := decodeData(msg.Data, &challengeEnv); err != nil {
		t.Fatalf("decode challenge envelope: %v", err)
	}
	challenge, err := signed.Verify[ServerAuthChallenge](challengeEnv, signed.NewAllowedKeys(challengeEnv.User))
	if err != nil {
		t.Fatalf("verify challenge: %v", err)
	}

	clientKP, err := signed.Generate()
	if err != nil {
		t.Fatalf("Generate() client key error: %v", err)
	}
	resp := ClientAuthResponse{Timestamp: ltime.Now(), Response: challenge.Challenge}
	env, err := signed.Sign(clientKP, resp)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	body, err := encodeTagged("Auth", env)
	if err != nil {
		t.Fatalf("encodeTagged() error: %v", err)
	}
	if err := conn.WriteMessage(gwebsocket.BinaryMessage, body); err != nil {
		t.Fatalf("write auth response: %v", err)
	}

	_, raw, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read auth result: %v", err)
	}
	msg, err = decodeTagged(raw)
	if err != nil {
		t.Fatalf("decode auth result: %v", err)
	}
	if msg.Cmd != "Auth" {
		t.Fatalf("got Cmd %q, want Auth", msg.Cmd)
	}
	return conn
}

func TestHandshakeThenUploadRaw(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()
	conn := dialAndAuth(t, ts)
	defer conn.Close()

	body, err := encodeTagged("UploadRaw", UploadRaw{Data: []byte("some content")})
	if err != nil {
		t.Fatalf("encodeTagged() error: %v", err)
	}
	if err := conn.WriteMessage(gwebsocket.BinaryMessage, body); err != nil {
		t.Fatalf("write UploadRaw: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read UploadResponse: %v", err)
	}
	msg, err := decodeTagged(raw)
	if err != nil {
		t.Fatalf("decode UploadResponse: %v", err)
	}
	if msg.Cmd != "UploadResponse" {
		t.Fatalf("got Cmd %q, want UploadResponse", msg.Cmd)
	}
	var resp UploadResponse
	if err := decodeData(msg.Data, &resp); err != nil {
		t.Fatalf("decode UploadResponse payload: %v", err)
	}
	if resp.Err != nil {
		t.Fatalf("UploadResponse.Err = %q, want nil", *resp.Err)
	}
	if resp.Ok == nil {
		t.Fatalf("UploadResponse.Ok = nil, want a hash")
	}
}

func TestMapAcceptPublishesNotification(t *testing.T) {
	ts, srv := newTestServer(t)
	defer ts.Close()

	clientKP, err := signed.Generate()
	if err != nil {
		t.Fatalf("Generate() client key error: %v", err)
	}
	stream, err := srv.streams.AddNew("main", signed.NewAllowedKeys(clientKP.Public))
	if err != nil {
		t.Fatalf("AddNew() error: %v", err)
	}
	rootHash, err := stream.Force(update.NewNamedHash())
	if err != nil {
		t.Fatalf("Force() error: %v", err)
	}

	topic := srv.Notifications().Attach("main")
	defer topic.Detach()

	conn := dialAndAuth(t, ts)
	defer conn.Close()

	cmd := update.NamedHashCommand{Set: update.NamedHashSet{Name: "asset", Hash: blockhash.Of([]byte("some block"))}}
	env, err := signed.Sign(clientKP, update.Update[update.NamedHashCommand]{
		Timestamp: ltime.Now(),
		Command:   cmd,
		Last:      rootHash,
	})
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	body, err := encodeTagged("Map", MapRequest{Stream: "main", Request: VerifierRequest{Update: &env}})
	if err != nil {
		t.Fatalf("encodeTagged() error: %v", err)
	}
	if err := conn.WriteMessage(gwebsocket.BinaryMessage, body); err != nil {
		t.Fatalf("write Map: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read MapResponse: %v", err)
	}
	msg, err := decodeTagged(raw)
	if err != nil {
		t.Fatalf("decode MapResponse: %v", err)
	}
	if msg.Cmd != "MapResponse" {
		t.Fatalf("got Cmd %q, want MapResponse", msg.Cmd)
	}

	select {
	case notification := <-topic.Messages:
		if notification.Stream != "main" {
			t.Fatalf("notification.Stream = %q, want %q", notification.Stream, "main")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for UpdateNotification")
	}
}
