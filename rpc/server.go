// Package rpc implements a debug HTTP+websocket surface over a running
// slab: /health, /status, and /subscribe?subject=<id> (spec.md §6
// "Environment" debug surface). Grounded on rpc/core/health.go's
// Health-returns-empty-200 shape and rpc/jsonrpc/test/main.go's
// mux/logger/listener wiring, swapping the teacher's generic
// rpc/jsonrpc/server RPCFunc registry (not present in the retrieved set)
// for a small fixed set of routes — gorilla/websocket for /subscribe,
// rs/cors for the same cross-origin debug-client convenience tendermint's
// own RPC server provides.
package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/dnorman/unbase-sub001/dispatch"
	"github.com/dnorman/unbase-sub001/id"
	"github.com/dnorman/unbase-sub001/libs/log"
	"github.com/dnorman/unbase-sub001/memo"
	"github.com/dnorman/unbase-sub001/slab"
)

// StatusProvider is the narrow capability this package needs from a slab,
// kept local per spec.md §6's capability-surface guidance even though
// *slab.Slab's concrete BootState return type means this package ends up
// importing slab anyway (unlike dispatch.Sender/context.Host, nothing
// requires avoiding the import here — there's no cycle in this direction —
// but keeping the surface narrow still avoids coupling this package to the
// rest of Slab's method set).
type StatusProvider interface {
	ID() id.SlabID
	BootState() slab.BootState
	RootIndexSeed() (memo.MemoRefHead, bool)
	SubscribeSubject(subjectID id.SubjectID, fn dispatch.SubjectSubscriberFunc) func()
}

// Server serves the debug HTTP+websocket surface for one slab.
type Server struct {
	slab     StatusProvider
	logger   log.Logger
	upgrader websocket.Upgrader
}

// NewServer constructs a Server over slab. A nil logger installs a no-op.
func NewServer(slab StatusProvider, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Server{
		slab:   slab,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the CORS-wrapped HTTP handler serving /health, /status,
// and /subscribe.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/subscribe", s.handleSubscribe)
	return cors.AllowAll().Handler(mux)
}

// ListenAndServe blocks serving Handler() on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{Addr: addr, Handler: s.Handler()}
	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return httpServer.Close()
	}
}

// handleHealth returns empty 200 OK on success (rpc/core/health.go:
// "Returns empty result (200 OK) on success, no response - in case of an
// error").
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type statusResponse struct {
	SlabID             id.SlabID `json:"slab_id"`
	BootState          string    `json:"boot_state"`
	RootIndexSeedKnown bool      `json:"root_index_seed_known"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	_, haveSeed := s.slab.RootIndexSeed()
	resp := statusResponse{
		SlabID:             s.slab.ID(),
		BootState:          s.slab.BootState().String(),
		RootIndexSeedKnown: haveSeed,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("rpc: encoding status response failed", "err", err)
	}
}

type subscribeMessage struct {
	SubjectID id.SubjectID `json:"subject_id"`
	MemoIDs   []id.MemoID  `json:"memo_ids"`
}

// handleSubscribe upgrades to a websocket and streams each subsequent head
// applied to ?subject=<id> until the client disconnects. Heads are buffered
// 64 deep; a head that arrives while the buffer is full is dropped.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("subject")
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		http.Error(w, "missing or invalid subject query parameter", http.StatusBadRequest)
		return
	}
	subjectID := id.SubjectID(n)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("rpc: websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	messages := make(chan subscribeMessage, 64)
	unsubscribe := s.slab.SubscribeSubject(subjectID, func(_ context.Context, sid id.SubjectID, head memo.MemoRefHead) {
		select {
		case messages <- subscribeMessage{SubjectID: sid, MemoIDs: head.MemoIDs()}:
		default:
			s.logger.Debug("rpc: dropping subscribe message, client too slow", "subject_id", sid)
		}
	})
	defer unsubscribe()

	// Detect client disconnects by discarding whatever they send.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg := <-messages:
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
