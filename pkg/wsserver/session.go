package wsserver

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hashtree/verifier/pkg/auditlog"
	"github.com/hashtree/verifier/pkg/block"
	"github.com/hashtree/verifier/pkg/ltime"
	"github.com/hashtree/verifier/pkg/pubsub"
	"github.com/hashtree/verifier/pkg/signed"
	"github.com/hashtree/verifier/pkg/verifiermap"
)

// sessionState is the session's position in AwaitingAuth -> Ready ->
// Closed.
type sessionState int

const (
	stateAwaitingAuth sessionState = iota
	stateReady
	stateClosed
)

// AuthStaleSeconds bounds the age of the auth challenge a client may
// reply to, applied to both the server's own clock drift and the
// client's claimed timestamp.
const AuthStaleSeconds = 5

// Session drives one authenticated websocket connection through its
// state machine. It owns no shared state: the BlockStore, VerifierMap,
// and Deferrer it's given are shared across every Session in the
// process.
type Session struct {
	conn      *websocket.Conn
	connID    uuid.UUID
	serverKey signed.KeyPair
	store     *block.Store
	streams   *verifiermap.Map
	defer_        *Deferrer
	logger        *log.Logger
	metrics       *metrics
	audit         *auditlog.Logger
	notifications *pubsub.PubSub[UpdateNotification]

	state     sessionState
	challenge ServerAuthChallenge
	userKey   ed25519.PublicKey
}

// NewSession constructs a session for an already-upgraded connection.
// audit may be nil. notifications is the shared router every accepted Map
// update is published to, topic-keyed by stream name.
func NewSession(conn *websocket.Conn, serverKey signed.KeyPair, store *block.Store, streams *verifiermap.Map, defer_ *Deferrer, logger *log.Logger, m *metrics, audit *auditlog.Logger, notifications *pubsub.PubSub[UpdateNotification]) *Session {
	return &Session{
		conn:          conn,
		connID:        uuid.New(),
		serverKey:     serverKey,
		store:         store,
		streams:       streams,
		defer_:        defer_,
		logger:        logger,
		metrics:       m,
		audit:         audit,
		notifications: notifications,
		state:         stateAwaitingAuth,
	}
}

// Run sends the opening auth challenge and then services messages until
// the connection closes.
func (s *Session) Run() {
	s.metrics.sessionsOpened.Inc()
	defer s.metrics.sessionsClosed.Inc()

	if err := s.sendChallenge(); err != nil {
		s.logger.Printf("session %s: send challenge: %v", s.connID, err)
		return
	}

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Printf("session %s: read: %v", s.connID, err)
			}
			return
		}
		if s.state == stateClosed {
			return
		}
		msg, err := decodeTagged(raw)
		if err != nil {
			s.logger.Printf("session %s: decode: %v", s.connID, err)
			s.closeWithViolation("malformed message")
			return
		}
		switch s.state {
		case stateAwaitingAuth:
			s.handleAuth(msg)
		case stateReady:
			s.handleCommand(msg)
		}
	}
}

func (s *Session) sendChallenge() error {
	var challenge [ChallengeSize]byte
	if _, err := rand.Read(challenge[:]); err != nil {
		return fmt.Errorf("generate challenge: %w", err)
	}
	s.challenge = ServerAuthChallenge{Timestamp: ltime.Now(), Challenge: challenge}

	// Signed so a client can confirm it's talking to the key it expects,
	// though this alone doesn't rule out a replaying man in the middle.
	env, err := signed.Sign(s.serverKey, s.challenge)
	if err != nil {
		return fmt.Errorf("sign challenge: %w", err)
	}
	body, err := encodeTagged("AuthChallenge", env)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, body)
}

func (s *Session) handleAuth(msg tagged) {
	if msg.Cmd != "Auth" {
		s.sendAuthResult(errors.New("expected Auth message"))
		s.closeWithViolation("expected Auth message")
		return
	}
	var env signed.Envelope
	if err := decodeData(msg.Data, &env); err != nil {
		s.sendAuthResult(err)
		s.closeWithViolation("malformed auth envelope")
		return
	}

	// The client's signature is checked against the key it claims in the
	// envelope itself: the signature is what proves control of that key,
	// not membership in a pre-shared allow-list.
	allowed := signed.NewAllowedKeys(env.User)
	resp, err := signed.Verify[ClientAuthResponse](env, allowed)
	if err != nil {
		s.sendAuthResult(err)
		s.closeWithViolation("auth signature invalid")
		return
	}

	now := ltime.Now()
	if drift := s.challenge.Timestamp.Since(now); drift > AuthStaleSeconds || drift < -AuthStaleSeconds {
		s.sendAuthResult(errors.New("challenge expired"))
		s.closeWithViolation("challenge expired")
		return
	}
	if drift := s.challenge.Timestamp.Since(resp.Timestamp); drift > AuthStaleSeconds || drift < -AuthStaleSeconds {
		s.sendAuthResult(errors.New("response timestamp too far from challenge"))
		s.closeWithViolation("response timestamp too far from challenge")
		return
	}
	if subtle.ConstantTimeCompare(resp.Response[:], s.challenge.Challenge[:]) != 1 {
		s.sendAuthResult(errors.New("response does not match challenge"))
		s.closeWithViolation("response does not match challenge")
		return
	}

	s.userKey = env.User
	s.state = stateReady
	s.sendAuthResult(nil)
}

func (s *Session) sendAuthResult(cause error) {
	errMsg := ""
	ok := cause == nil
	if cause != nil {
		errMsg = cause.Error()
	}
	type authResult struct {
		Ok  bool   `msgpack:"Ok"`
		Err string `msgpack:"Err,omitempty"`
	}
	body, err := encodeTagged("Auth", authResult{Ok: ok, Err: errMsg})
	if err != nil {
		s.logger.Printf("session %s: encode auth result: %v", s.connID, err)
		return
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, body); err != nil {
		s.logger.Printf("session %s: write auth result: %v", s.connID, err)
	}
}

func (s *Session) closeWithViolation(reason string) {
	s.state = stateClosed
	closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = s.conn.WriteMessage(websocket.CloseMessage, closeMsg)
	_ = s.conn.Close()
}

func (s *Session) handleCommand(msg tagged) {
	switch msg.Cmd {
	case "UploadRaw":
		var cmd UploadRaw
		if err := decodeData(msg.Data, &cmd); err != nil {
			s.reply("UploadResponse", errStr(err))
			return
		}
		s.defer_.Submit(func() {
			hash, err := s.store.Set(cmd.Data)
			if err != nil {
				s.reply("UploadResponse", UploadResponse{Err: strPtr(err.Error())})
				return
			}
			s.reply("UploadResponse", UploadResponse{Ok: &hash})
		})

	case "Map":
		var req MapRequest
		if err := decodeData(msg.Data, &req); err != nil {
			s.reply("MapResponse", MapResponse{})
			return
		}
		s.defer_.Submit(func() { s.handleMap(req) })

	default:
		s.logger.Printf("session %s: unknown command %q", s.connID, msg.Cmd)
	}
}

func (s *Session) handleMap(req MapRequest) {
	if req.Request.Latest {
		latest, err := s.streams.Latest(req.Stream)
		if err != nil {
			s.reply("MapResponse", MapResponse{VerifierResult: &VerifierResult{Err: strPtr(err.Error())}})
			return
		}
		s.reply("MapResponse", MapResponse{Latest: latest})
		return
	}
	if req.Request.Update == nil {
		s.reply("MapResponse", MapResponse{VerifierResult: &VerifierResult{Err: strPtr("missing update envelope")}})
		return
	}
	hash, err := s.streams.Verify(req.Stream, *req.Request.Update)
	if err != nil {
		s.reply("MapResponse", MapResponse{VerifierResult: &VerifierResult{Err: strPtr(err.Error())}})
		return
	}
	s.audit.RecordAccepted(req.Stream, hash, req.Request.Update.User, ltime.Now())
	s.notifications.Send(req.Stream, UpdateNotification{Stream: req.Stream, Hash: hash})
	s.reply("MapResponse", MapResponse{VerifierResult: &VerifierResult{Ok: &hash}})
}

func (s *Session) reply(cmd string, payload any) {
	body, err := encodeTagged(cmd, payload)
	if err != nil {
		s.logger.Printf("session %s: encode %s: %v", s.connID, cmd, err)
		return
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, body); err != nil {
		s.logger.Printf("session %s: write %s: %v", s.connID, cmd, err)
	}
}

func decodeData(raw []byte, v any) error {
	return decodeMsgpack(raw, v)
}

func strPtr(s string) *string { return &s }

func errStr(err error) UploadResponse {
	msg := err.Error()
	return UploadResponse{Err: &msg}
}
