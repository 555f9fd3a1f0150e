// Package server coordinates session lifetimes, the shared room registry,
// and graceful shutdown via the Hub type.
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomrelay/internal/relay"
)

// Hub owns the room registry and the broadcaster and runs one relay.Session
// per accepted WebSocket connection. Sessions share nothing but the
// registry.
type Hub struct {
	cfg      Config
	log      *slog.Logger
	obs      Observer
	origins  *originPolicy
	upgrader websocket.Upgrader

	registry    *relay.Registry
	broadcaster *relay.Broadcaster

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// NewHub creates a Hub with its own registry. A nil logger discards output
// and a nil observer ignores events.
func NewHub(cfg Config, logger *slog.Logger, obs Observer) *Hub {
	cfg = cfg.Sanitize()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if obs == nil {
		obs = nopObserver{}
	}

	reg := relay.NewRegistry(relay.WithLogger(logger), relay.WithObserver(obs))
	ctx, cancel := context.WithCancel(context.Background())
	origins := newOriginPolicy(cfg.AllowedOrigins, logger)

	return &Hub{
		cfg:     cfg,
		log:     logger,
		obs:     obs,
		origins: origins,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
		registry:    reg,
		broadcaster: relay.NewBroadcaster(reg, relay.WithLogger(logger), relay.WithObserver(obs)),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Registry returns the hub's room registry.
func (h *Hub) Registry() *relay.Registry { return h.registry }

// track reserves a slot for a new session. It fails once shutdown began.
func (h *Hub) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closing {
		return false
	}
	h.wg.Add(1)
	return true
}

// ServeChat upgrades GET /chat/{room_id}/{client_id} and runs the session on
// the handler goroutine until the client goes away.
func (h *Hub) ServeChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. Chat endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	vars := mux.Vars(r)
	roomID := vars["room_id"]
	clientID := vars["client_id"]
	if h.cfg.RejectEmptyIDs && (roomID == "" || clientID == "") {
		h.log.Info("ws.rejected_empty_id", "room", roomID, "client", clientID)
		http.Error(w, "room and client identifiers are required", http.StatusBadRequest)
		return
	}

	if !h.track() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.wg.Done()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.log.Info("ws.upgrade_failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	client := NewClient(conn, r.RemoteAddr, h.cfg, h.log)
	defer func() { _ = client.Close() }()

	sess := relay.NewSession(relay.SessionParams{
		RoomID:         roomID,
		ClientID:       clientID,
		Conn:           client,
		Registry:       h.registry,
		Broadcaster:    h.broadcaster,
		Duplicates:     h.cfg.DuplicatePolicy,
		RejectEmptyIDs: h.cfg.RejectEmptyIDs,
		Logger:         h.log,
	})

	h.obs.SessionStarted()
	err = sess.Run(h.ctx)
	h.obs.SessionEnded(sessionOutcome(err))
}

// Shutdown stops accepting sessions, closes every joined connection, and
// waits for the session goroutines to finish or for timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("hub.shutdown.start")

	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()

	h.cancel()
	closed := h.registry.CloseAll()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub.shutdown.complete", "closed", closed)
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub.shutdown.timeout", "closed", closed)
		return context.DeadlineExceeded
	}
}
