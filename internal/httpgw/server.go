package httpgw

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/OmarEhab007/wiregate/internal/supervisor"
)

// PingFunc checks connectivity to a backing collaborator. nil means the
// service was never configured.
type PingFunc func(ctx context.Context) error

// Config wires the three ambient HTTP endpoints.
type Config struct {
	Path                string // WebSocket upgrade path, e.g. "/ws"
	AllowedOrigins      []string
	HeartbeatIntervalMs int64
	Version             string
	Pings               map[string]PingFunc // e.g. {"store": store.Ping, "rateLimiter": ...}
	Logger              *slog.Logger
}

// Server is the gorilla/mux router fronting one Supervisor.
type Server struct {
	mux        *mux.Router
	supervisor *supervisor.Supervisor
	cfg        Config
	upgrader   websocket.Upgrader
}

// New builds the HTTP surface: GET /healthz, GET /stats, and the WebSocket
// upgrade route, each wrapped by the same Origin allowlist the upgrader's
// CheckOrigin enforces.
func New(sup *supervisor.Supervisor, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}

	check := originAllowed(cfg.AllowedOrigins)
	s := &Server{
		mux:        mux.NewRouter(),
		supervisor: sup,
		cfg:        cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return check(r.Header.Get("Origin"))
			},
		},
	}

	s.mux.Use(CORSMiddleware(cfg.AllowedOrigins))
	s.mux.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet, http.MethodOptions)
	s.mux.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet, http.MethodOptions)
	s.mux.HandleFunc(cfg.Path, s.handleUpgrade).Methods(http.MethodGet, http.MethodOptions)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// handleUpgrade refuses new accepts with 1001 while the supervisor is
// draining, otherwise upgrades and registers the connection.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !s.supervisor.Accepting() {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		msg := websocket.FormatCloseMessage(1001, "server_shutting_down")
		_ = conn.WriteMessage(websocket.CloseMessage, msg)
		_ = conn.Close()
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.cfg.Logger.Error("websocket upgrade failed", "error", err)
		return
	}

	s.supervisor.Add(conn, remoteAddr(r), s.cfg.HeartbeatIntervalMs)
}

func remoteAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	return r.RemoteAddr
}

type serviceStatus struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latencyMs,omitempty"`
	Error     string `json:"error,omitempty"`
}

type healthResponse struct {
	Status   string                   `json:"status"`
	Version  string                   `json:"version"`
	Services map[string]serviceStatus `json:"services"`
}

// handleHealthz pings every configured collaborator concurrently and
// reports per-service status.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	services := make(map[string]serviceStatus)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for name, ping := range s.cfg.Pings {
		if ping == nil {
			continue
		}
		wg.Add(1)
		go func(name string, ping PingFunc) {
			defer wg.Done()
			start := time.Now()
			err := ping(ctx)
			latency := time.Since(start).Milliseconds()

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				services[name] = serviceStatus{Status: "unhealthy", LatencyMS: latency, Error: err.Error()}
			} else {
				services[name] = serviceStatus{Status: "healthy", LatencyMS: latency}
			}
		}(name, ping)
	}
	wg.Wait()

	healthy := true
	for _, svc := range services {
		if svc.Status == "unhealthy" {
			healthy = false
			break
		}
	}

	resp := healthResponse{Version: s.cfg.Version, Services: services}
	status := http.StatusOK
	resp.Status = "healthy"
	if !healthy {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleStats reports the protocol version and live connection count (the
// same fields server.stats returns, without its uptimeMs), useful for
// scraping without opening a WebSocket.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":     s.cfg.Version,
		"connections": s.supervisor.Count(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
