package wsserver

import (
	"log"
	"net/http"
	"os"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hashtree/verifier/pkg/auditlog"
	"github.com/hashtree/verifier/pkg/block"
	"github.com/hashtree/verifier/pkg/pubsub"
	"github.com/hashtree/verifier/pkg/signed"
	"github.com/hashtree/verifier/pkg/verifiermap"
)

// upgrader accepts any origin: this server authenticates at the
// application layer (the signed challenge-response handshake), not via
// browser same-origin checks.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server listens for websocket connections and spins up a Session for
// each one accepted.
type Server struct {
	store         *block.Store
	streams       *verifiermap.Map
	serverKey     signed.KeyPair
	defer_        *Deferrer
	logger        *log.Logger
	metrics       *metrics
	audit         *auditlog.Logger
	notifications *pubsub.PubSub[UpdateNotification]
}

// NewServer constructs a Server. workers sizes the shared Deferrer pool
// that every Session's slow command handling runs through. audit may be
// nil, disabling the external audit log. Every accepted Map update is
// published on notifications, topic-keyed by stream name, so observers
// can subscribe for asynchronous tip-advance notifications.
func NewServer(serverKey signed.KeyPair, store *block.Store, streams *verifiermap.Map, workers int, logger *log.Logger, reg prometheus.Registerer, audit *auditlog.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stderr, "[wsserver] ", log.LstdFlags)
	}
	return &Server{
		store:         store,
		streams:       streams,
		serverKey:     serverKey,
		defer_:        NewDeferrer(workers),
		logger:        logger,
		metrics:       newMetrics(reg),
		audit:         audit,
		notifications: pubsub.New[UpdateNotification](log.New(os.Stderr, "[pubsub] ", log.LstdFlags)),
	}
}

// Notifications returns the shared router that every accepted Map update
// is published to, topic-keyed by stream name.
func (s *Server) Notifications() *pubsub.PubSub[UpdateNotification] {
	return s.notifications
}

// ServeHTTP upgrades the connection and runs its session to completion.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("upgrade: %v", err)
		return
	}
	session := NewSession(conn, s.serverKey, s.store, s.streams, s.defer_, s.logger, s.metrics, s.audit, s.notifications)
	session.Run()
}

// ListenAndServe starts the websocket listener on addr. It blocks until
// the listener stops (normally never, outside of a fatal error).
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/", s)
	s.logger.Printf("listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
