package metrics

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rxtech-lab/indicator-bot/internal/logger"
	"github.com/rxtech-lab/indicator-bot/internal/types"
	"github.com/rxtech-lab/indicator-bot/pkg/errors"
	"go.uber.org/zap"
)

// StatusSource supplies the current bot status.
type StatusSource interface {
	Status() types.BotStatus
}

// ServerConfig configures the status server.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":9090".
	Addr string
	// StaleAfter is how long without a loop tick before /healthz reports unhealthy.
	StaleAfter time.Duration
}

// Server exposes /metrics, /healthz and /status.
type Server struct {
	config  ServerConfig
	metrics *Metrics
	source  StatusSource
	log     *logger.Logger
	now     func() time.Time
	srv     *http.Server
}

// NewServer creates a status server. Call Start to listen.
func NewServer(config ServerConfig, metrics *Metrics, source StatusSource, log *logger.Logger) *Server {
	if config.StaleAfter <= 0 {
		config.StaleAfter = 5 * time.Minute
	}

	s := &Server{
		config:  config,
		metrics: metrics,
		source:  source,
		log:     log,
		now:     time.Now,
		srv:     nil,
	}

	s.srv = &http.Server{
		Addr:              config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the router. It is exposed for tests.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	return router
}

// Start listens on the configured address and serves in the background.
// It returns the bound address, which differs from Addr when Addr uses port 0.
func (s *Server) Start() (string, error) {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return "", errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to listen on %s", s.config.Addr)
	}

	go func() {
		if err := s.srv.Serve(listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.log.Error("Status server stopped", zap.Error(err))
		}
	}()

	s.log.Info("Status server listening", zap.String("addr", listener.Addr().String()))

	return listener.Addr().String(), nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type healthResponse struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime"`
	LastTickAt string `json:"last_tick_at"`
	TickAge    string `json:"tick_age"`
	Breaker    string `json:"breaker"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := s.source.Status()
	now := s.now()

	resp := healthResponse{
		Status:     "healthy",
		Uptime:     "",
		LastTickAt: "",
		TickAge:    "",
		Breaker:    status.BreakerState,
	}
	code := http.StatusOK

	if !status.StartedAt.IsZero() {
		resp.Uptime = now.Sub(status.StartedAt).Round(time.Second).String()
	}

	switch {
	case status.LastTickAt.IsZero():
		resp.Status = "starting"
		code = http.StatusServiceUnavailable
	case now.Sub(status.LastTickAt) > s.config.StaleAfter:
		resp.Status = "stale"
		code = http.StatusServiceUnavailable
	}

	if !status.LastTickAt.IsZero() {
		resp.LastTickAt = status.LastTickAt.UTC().Format(time.RFC3339)
		resp.TickAge = now.Sub(status.LastTickAt).Round(time.Second).String()
	}

	writeJSON(w, code, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.source.Status())
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
