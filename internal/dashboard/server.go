// Package dashboard exposes the running simulation over HTTP: a minimal
// status page and JSON endpoints for the latest snapshot, trade history,
// and session statistics.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/solsim/solsim/internal/models"
	"github.com/solsim/solsim/internal/storage"
)

// Config holds the dashboard server settings.
type Config struct {
	Port      int
	AuthToken string
}

// Server serves the simulation dashboard. It keeps the latest tick
// snapshot in memory and reads history and statistics from storage.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	storage   storage.Interface
	logger    *logrus.Logger
	port      int
	authToken string

	mu       sync.RWMutex
	snapshot *models.Snapshot
}

// NewServer builds the dashboard router over the given storage backend.
func NewServer(cfg Config, store storage.Interface, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		storage:   store,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/", s.handleIndex)
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/snapshot", s.handleGetSnapshot)
	s.router.Get("/api/portfolio", s.handleGetPortfolio)
	s.router.Get("/api/trades", s.handleGetTrades)
	s.router.Get("/api/stats", s.handleGetStats)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start runs the HTTP server until Shutdown or a listener error.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting dashboard server on port %d", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Name implements the snapshot consumer contract.
func (s *Server) Name() string {
	return "dashboard"
}

// OnSnapshot stores the latest tick snapshot for the API handlers.
func (s *Server) OnSnapshot(snap models.Snapshot) {
	s.mu.Lock()
	s.snapshot = &snap
	s.mu.Unlock()
}

func (s *Server) latestSnapshot() (models.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return models.Snapshot{}, false
	}
	return *s.snapshot, true
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>Simulator</title><meta http-equiv="refresh" content="15"></head>
<body>
<h1>Mean Reversion Simulator</h1>
{{if .HasSnapshot}}
<p>Tick {{.Snapshot.Tick}} ({{.Snapshot.Status}}) at {{.Snapshot.Timestamp.Format "15:04:05 MST"}}</p>
<p>Price: {{printf "%.4f" .Snapshot.Price}} | MA: {{printf "%.4f" .Snapshot.MovingAverage}} | Signal: {{.Snapshot.Signal.Side}}</p>
<p>Cash: {{printf "%.2f" .Snapshot.Portfolio.Cash}} | Holdings: {{printf "%.6f" .Snapshot.Portfolio.Position.Quantity}} | Realized P&amp;L: {{printf "%.2f" .Snapshot.Portfolio.RealizedPnL}}</p>
{{else}}
<p>No ticks yet.</p>
{{end}}
<p>Trades: {{.Stats.TotalTrades}} | Win rate: {{printf "%.1f%%" .WinRatePct}} | Max drawdown: {{printf "%.1f%%" .DrawdownPct}}</p>
</body>
</html>
`))

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.latestSnapshot()
	stats := s.storage.GetStatistics()

	data := struct {
		HasSnapshot bool
		Snapshot    models.Snapshot
		Stats       storage.Statistics
		WinRatePct  float64
		DrawdownPct float64
	}{
		HasSnapshot: ok,
		Snapshot:    snap,
		Stats:       stats,
		WinRatePct:  stats.WinRate * 100,
		DrawdownPct: stats.MaxDrawdown * 100,
	}

	if err := indexTemplate.Execute(w, data); err != nil {
		s.logger.WithError(err).Error("Failed to render index page")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, _ *http.Request) {
	if snap, ok := s.latestSnapshot(); ok {
		s.writeJSON(w, snap)
		return
	}

	// Fall back to the persisted snapshot so a restarted dashboard still
	// shows the last session state.
	snap, err := s.storage.GetLatestSnapshot()
	if errors.Is(err, storage.ErrNoSnapshot) {
		http.Error(w, "No snapshot yet", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to load snapshot")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, snap)
}

func (s *Server) handleGetPortfolio(w http.ResponseWriter, _ *http.Request) {
	if snap, ok := s.latestSnapshot(); ok {
		s.writeJSON(w, snap.Portfolio)
		return
	}
	s.writeJSON(w, s.storage.GetPortfolio())
}

func (s *Server) handleGetTrades(w http.ResponseWriter, _ *http.Request) {
	trades := s.storage.GetTrades()
	if trades == nil {
		trades = []models.Trade{}
	}
	s.writeJSON(w, trades)
}

func (s *Server) handleGetStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.storage.GetStatistics())
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
