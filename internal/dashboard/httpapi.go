package dashboard

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/mrz1836/furu/internal/config"
)

// apiVersion is reported by the health endpoint; bumped whenever the JSON
// response shapes below change in a backward-incompatible way.
const apiVersion = "1"

// Server is the read-only HTTP surface over ScanExperiments, GetExperimentDetail
// and GetStats (original_source/src/huldra/dashboard/api.py's FastAPI routes,
// re-expressed over stdlib net/http since the pack carries no HTTP framework).
type Server struct {
	cfg    config.Config
	logger zerolog.Logger
}

// NewServer builds a Server scanning cfg's storage roots.
func NewServer(cfg config.Config, logger zerolog.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// Handler returns the routed mux: GET /api/health, GET /api/experiments,
// GET /api/experiments/{namespace}/{hash}, GET /api/stats.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/experiments", s.handleListExperiments)
	mux.HandleFunc("GET /api/experiments/{namespace...}", s.handleExperimentDetail)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	return s.withLogging(mux)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		s.logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": apiVersion,
	})
}

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{
		ResultStatus:    q.Get("result_status"),
		AttemptStatus:   q.Get("attempt_status"),
		NamespacePrefix: q.Get("namespace"),
	}

	experiments, err := ScanExperiments(s.cfg, filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	total := len(experiments)
	experiments = paginate(experiments, q.Get("limit"), q.Get("offset"))

	writeJSON(w, http.StatusOK, map[string]any{
		"experiments": experiments,
		"total":       total,
	})
}

func (s *Server) handleExperimentDetail(w http.ResponseWriter, r *http.Request) {
	// PathValue("namespace") captures everything after /api/experiments/,
	// including the trailing /<hash> segment; split it back apart.
	rest := r.PathValue("namespace")
	namespace, hash, ok := splitNamespaceAndHash(rest)
	if !ok {
		s.writeDetail(w, http.StatusNotFound, "Experiment not found")
		return
	}

	detail, err := GetExperimentDetail(s.cfg, namespace, hash)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if detail == nil {
		s.writeDetail(w, http.StatusNotFound, "Experiment not found")
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats, err := GetStats(s.cfg)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Error().Err(err).Msg("dashboard api error")
	s.writeDetail(w, status, err.Error())
}

func (s *Server) writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// splitNamespaceAndHash recovers namespace and hash from the trailing
// "{namespace}/{hash}" path segment; the hash is always the last
// slash-delimited component.
func splitNamespaceAndHash(rest string) (namespace, hash string, ok bool) {
	idx := lastSlash(rest)
	if idx < 0 || idx == len(rest)-1 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}

// paginate applies the limit/offset query parameters (original_source's
// FastAPI route accepted both); malformed or absent values leave the full
// slice untouched.
func paginate(experiments []ExperimentSummary, rawLimit, rawOffset string) []ExperimentSummary {
	offset, err := strconv.Atoi(rawOffset)
	if err != nil || offset < 0 {
		offset = 0
	}
	if offset > len(experiments) {
		offset = len(experiments)
	}
	experiments = experiments[offset:]

	limit, err := strconv.Atoi(rawLimit)
	if err != nil || limit < 0 {
		return experiments
	}
	if limit < len(experiments) {
		experiments = experiments[:limit]
	}
	return experiments
}
