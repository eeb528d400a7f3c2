package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"SignalSentinel/internal/config"
	"SignalSentinel/internal/dispatcher"
	"SignalSentinel/internal/model"
	"SignalSentinel/internal/predictor"
)

// maxBody bounds request documents.
const maxBody = 1 << 20

// Operator is the read side of the running engine plus manual scans.
type Operator interface {
	Active() []model.ActiveTrade
	Quota() model.QuotaState
	Regime(ctx context.Context) (model.MacroRegime, model.RegimeSignal)
	Stats(ctx context.Context) (predictor.Stats, error)
	RunScan(ctx context.Context, class model.TradeClass) (dispatcher.ScanReport, error)
}

// TunablesStore is the live tunables accessor.
type TunablesStore interface {
	Get() *config.Tunables
	Replace(t *config.Tunables) error
	ApplyTuning(sg config.Suggestion) ([]string, error)
}

// Server serves the status and tuning API.
type Server struct {
	router   *mux.Router
	server   *http.Server
	op       Operator
	tunables TunablesStore
	metrics  http.Handler

	scanTimeout time.Duration
}

// NewServer builds the router. metrics may be nil.
func NewServer(addr string, op Operator, tunables TunablesStore, metrics http.Handler) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		op:          op,
		tunables:    tunables,
		metrics:     metrics,
		scanTimeout: 5 * time.Minute,
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: s.scanTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)

	s.router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/tunables", s.getTunables).Methods(http.MethodGet)
	v1.HandleFunc("/tunables", s.putTunables).Methods(http.MethodPut)
	v1.HandleFunc("/tunables/suggestion", s.applySuggestion).Methods(http.MethodPost)
	v1.HandleFunc("/trades", s.trades).Methods(http.MethodGet)
	v1.HandleFunc("/regime", s.regime).Methods(http.MethodGet)
	v1.HandleFunc("/quota", s.quota).Methods(http.MethodGet)
	v1.HandleFunc("/stats", s.stats).Methods(http.MethodGet)
	v1.HandleFunc("/scan/{class}", s.scan).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, fmt.Errorf("no route for %s %s", r.Method, r.URL.Path))
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("http api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http api: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type requestIDKey struct{}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		id, _ := r.Context().Value(requestIDKey{}).(string)
		log.Debug().
			Str("component", "api").
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.status).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getTunables(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.tunables.Get())
}

func (s *Server) putTunables(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read tunables: %w", err))
		return
	}
	// merged into the live values so a partial document keeps every other key
	next, err := s.tunables.Get().Merge(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode tunables: %w", err))
		return
	}
	if err := s.tunables.Replace(next); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, config.ErrInvalidTunables) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err)
		return
	}
	log.Info().Str("component", "api").Msg("tunables replaced")
	writeJSON(w, http.StatusOK, s.tunables.Get())
}

func (s *Server) applySuggestion(w http.ResponseWriter, r *http.Request) {
	var sg config.Suggestion
	if err := json.NewDecoder(r.Body).Decode(&sg); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode suggestion: %w", err))
		return
	}
	changes, err := s.tunables.ApplyTuning(sg)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	if changes == nil {
		changes = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"changes": changes})
}

func (s *Server) trades(w http.ResponseWriter, _ *http.Request) {
	trades := s.op.Active()
	if trades == nil {
		trades = []model.ActiveTrade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) regime(w http.ResponseWriter, r *http.Request) {
	macro, fast := s.op.Regime(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"macro": macro, "fast": fast})
}

func (s *Server) quota(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.op.Quota())
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.op.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) scan(w http.ResponseWriter, r *http.Request) {
	class, err := model.ParseClass(mux.Vars(r)["class"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.scanTimeout)
	defer cancel()
	report, err := s.op.RunScan(ctx, class)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Str("component", "api").Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
