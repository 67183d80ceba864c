package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/bandit/internal/logging"
	"github.com/aretw0/bandit/pkg/domain"
	"github.com/aretw0/bandit/pkg/ports"
)

// SessionHeader carries the session id for server-side sticky assignment.
const SessionHeader = "X-Bandit-Session"

// maxIngestBytes bounds the body of POST /api/metrics.
const maxIngestBytes = 1 << 20

// Assigner resolves a variant for a session synchronously.
type Assigner interface {
	Assign(ctx context.Context, sessionID, siteName, variant string) (domain.Snapshot, error)
}

// Server serves site definitions, assignments and metric ingestion.
type Server struct {
	Sites    ports.SiteProvider
	Assigner Assigner
	Events   ports.EventWriter
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Option configures the handler.
type Option func(*Server)

// WithAssigner enables POST /api/sites/{site}/assign.
func WithAssigner(a Assigner) Option {
	return func(s *Server) {
		s.Assigner = a
	}
}

// WithEventWriter enables POST /api/metrics.
func WithEventWriter(w ports.EventWriter) Option {
	return func(s *Server) {
		s.Events = w
	}
}

// WithGatherer enables GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.Gatherer = g
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.Logger = logger
	}
}

// NewHandler creates the HTTP handler. Routes whose dependency is not
// configured are not mounted.
func NewHandler(sites ports.SiteProvider, opts ...Option) http.Handler {
	server := &Server{Sites: sites, Logger: logging.NewNop()}
	for _, opt := range opts {
		opt(server)
	}

	r := chi.NewRouter()
	r.Use(enableCORS)

	r.Get("/healthz", server.GetHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/sites", server.ListSites)
		r.Get("/sites/{site}", server.GetSite)
		if server.Assigner != nil {
			r.Post("/sites/{site}/assign", server.Assign)
		}
		if server.Events != nil {
			r.Post("/metrics", server.IngestMetrics)
		}
	})
	if server.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(server.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+SessionHeader)
		w.Header().Set("Access-Control-Expose-Headers", SessionHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles GET /healthz.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListSites handles GET /api/sites.
func (s *Server) ListSites(w http.ResponseWriter, r *http.Request) {
	lister, ok := s.Sites.(ports.SiteLister)
	if !ok {
		writeError(w, http.StatusNotImplemented, "site listing not supported")
		return
	}
	names, err := lister.ListSites(r.Context())
	if err != nil {
		s.Logger.Error("list sites failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list sites")
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

// GetSite handles GET /api/sites/{site}.
func (s *Server) GetSite(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "site")
	site, err := s.Sites.Fetch(r.Context(), name)
	if err != nil {
		s.writeSiteError(w, name, err)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

// Assign handles POST /api/sites/{site}/assign?variant=name.
// The session comes from SessionHeader and is generated when absent.
func (s *Server) Assign(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "site")
	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	snap, err := s.Assigner.Assign(r.Context(), sessionID, name, r.URL.Query().Get("variant"))
	if err != nil && !snap.Ready {
		s.writeSiteError(w, name, err)
		return
	}
	if err != nil {
		s.Logger.Warn("assignment degraded", "site", name, "session_id", sessionID, "err", err)
	}

	w.Header().Set(SessionHeader, sessionID)
	writeJSON(w, http.StatusOK, snap)
}

// IngestMetrics handles POST /api/metrics with a JSON array of events.
func (s *Server) IngestMetrics(w http.ResponseWriter, r *http.Request) {
	var events []domain.MetricEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBytes)).Decode(&events); err != nil {
		s.Logger.Warn("invalid metrics body", "err", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for i := range events {
		if events[i].Name == "" {
			writeError(w, http.StatusBadRequest, "event name is required")
			return
		}
		// A missing value counts the event once.
		if events[i].Value == 0 {
			events[i].Value = 1
		}
	}

	if err := s.Events.WriteEvents(r.Context(), events); err != nil {
		s.Logger.Error("write events failed", "count", len(events), "err", err)
		writeError(w, http.StatusInternalServerError, "failed to store events")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) writeSiteError(w http.ResponseWriter, name string, err error) {
	switch {
	case errors.Is(err, domain.ErrSiteNotFound):
		writeError(w, http.StatusNotFound, "site not found")
	case errors.Is(err, domain.ErrInvalidSite):
		s.Logger.Warn("invalid site definition", "site", name, "err", err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.Logger.Error("site fetch failed", "site", name, "err", err)
		writeError(w, http.StatusBadGateway, "site unavailable")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
