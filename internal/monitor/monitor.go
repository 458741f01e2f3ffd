// Package monitor exposes a running training job over HTTP: health and
// config probes, the accumulated metrics log, and a WebSocket feed of
// per-window diagnostics.
package monitor

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"vectorized-ppo/internal/metrics"
	"vectorized-ppo/internal/ppo"
)

// WindowUpdate is one frame of the live feed.
type WindowUpdate struct {
	Step        int                `json:"step"`
	Diagnostics map[string]float64 `json:"diagnostics"`
}

// Server serves the monitoring endpoints. Broadcast is safe to call from
// the training thread while connections come and go.
type Server struct {
	cfg      ppo.Config
	log      *metrics.Log
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

func New(cfg ppo.Config, log *metrics.Log, logger zerolog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		log:    log,
		logger: logger.With().Str("component", "monitor").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: make(map[*websocket.Conn]bool),
	}
}

// Handler returns the monitoring mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/config", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, s.cfg)
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, s.log.Snapshot())
	})
	mux.HandleFunc("/live", s.handleLive)
	return mux
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.mu.Lock()
	s.conns[conn] = true
	s.mu.Unlock()
	s.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("live client connected")

	// Drain control frames; drop the connection once the client goes
	// away.
	go func() {
		defer s.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast pushes one window's diagnostics to every live client.
func (s *Server) Broadcast(step int, diagnostics map[string]float64) {
	payload, err := json.Marshal(WindowUpdate{Step: step, Diagnostics: diagnostics})
	if err != nil {
		s.logger.Warn().Err(err).Msg("encode live update")
		return
	}
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.drop(conn)
		}
	}
}

func (s *Server) drop(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}
