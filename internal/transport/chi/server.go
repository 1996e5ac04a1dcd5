// Package chi exposes the query engine over HTTP.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/loupe-data/loupe/internal/domain"
	"github.com/loupe-data/loupe/internal/domain/dataset/path"
	"github.com/loupe-data/loupe/internal/repository/concepts"
	"github.com/loupe-data/loupe/internal/repository/dataset"
	conceptuc "github.com/loupe-data/loupe/internal/usecase/conceptmgr"
	embedindexuc "github.com/loupe-data/loupe/internal/usecase/embedindex"
	groupsuc "github.com/loupe-data/loupe/internal/usecase/groups"
	healthuc "github.com/loupe-data/loupe/internal/usecase/health"
	rowsuc "github.com/loupe-data/loupe/internal/usecase/rows"
	signalsuc "github.com/loupe-data/loupe/internal/usecase/signals"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API server.
type Server struct {
	datasets      *dataset.Registry
	rows          *rowsuc.Service
	groups        *groupsuc.Service
	signals       *signalsuc.Service
	indexes       *embedindexuc.Service
	concepts      *conceptuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	datasets *dataset.Registry,
	rows *rowsuc.Service,
	groups *groupsuc.Service,
	signals *signalsuc.Service,
	indexes *embedindexuc.Service,
	conceptSvc *conceptuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		datasets: datasets,
		rows:     rows,
		groups:   groups,
		signals:  signals,
		indexes:  indexes,
		concepts: conceptSvc,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrDatasetNotFound, http.StatusNotFound, codeDatasetNotFound),
		sentinelHandler(domain.ErrSignalNotFound, http.StatusNotFound, codeSignalNotFound),
		sentinelHandler(domain.ErrConceptMissing, http.StatusNotFound, codeConceptMissing),
		sentinelHandler(domain.ErrUnknownPath, http.StatusBadRequest, codeUnknownPath),
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, codeInvalidQuery),
		sentinelHandler(domain.ErrGroupingNotSupported, http.StatusBadRequest, codeGroupingNotSupported),
		sentinelHandler(domain.ErrIndexMissing, http.StatusPreconditionFailed, codeIndexMissing),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProviderErr),
	}
	return s
}

// RegisterRoutes mounts every endpoint on the router.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/datasets", s.ListDatasets)
		r.Route("/datasets/{dataset}", func(r chi.Router) {
			r.Get("/schema", s.GetSchema)
			r.Post("/select_rows", s.SelectRows)
			r.Post("/select_groups", s.SelectGroups)
			r.Post("/signals", s.ComputeSignal)
			r.Post("/embeddings", s.BuildIndex)
		})
		r.Put("/concepts/{namespace}/{name}", s.UpsertConcept)
		r.Get("/concepts/{namespace}/{name}", s.GetConcept)
	})
}

// ListDatasets handles GET /api/v1/datasets.
func (s *Server) ListDatasets(w http.ResponseWriter, r *http.Request) {
	names := s.datasets.List()
	items := make([]DatasetSummary, 0, len(names))
	for _, name := range names {
		ds, err := s.datasets.Get(name)
		if err != nil {
			continue
		}
		items = append(items, DatasetSummary{Name: name, NumRows: ds.NumRows()})
	}
	writeJSON(w, http.StatusOK, DatasetListResponse{Items: items})
}

// GetSchema handles GET /api/v1/datasets/{dataset}/schema. The rendered
// schema includes every signal overlay currently applied.
func (s *Server) GetSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "dataset")
	ds, err := s.datasets.Get(name)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	root := ds.Schema().Root()
	fields := make(map[string]FieldDTO, len(root.Fields))
	for childName, child := range root.Fields {
		fields[childName] = fieldToDTO(child)
	}
	writeJSON(w, http.StatusOK, SchemaResponse{Dataset: name, Fields: fields})
}

// SelectRows handles POST /api/v1/datasets/{dataset}/select_rows.
func (s *Server) SelectRows(w http.ResponseWriter, r *http.Request) {
	var req SelectRowsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	domReq, err := rowsRequestFromDTO(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	page, err := s.rows.SelectRows(r.Context(), chi.URLParam(r, "dataset"), &domReq)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rowPageToDTO(page))
}

// SelectGroups handles POST /api/v1/datasets/{dataset}/select_groups.
func (s *Server) SelectGroups(w http.ResponseWriter, r *http.Request) {
	var req SelectGroupsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	domReq, err := groupsRequestFromDTO(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	res, err := s.groups.SelectGroups(r.Context(), chi.URLParam(r, "dataset"), &domReq)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groupsToDTO(res))
}

// ComputeSignal handles POST /api/v1/datasets/{dataset}/signals.
func (s *Server) ComputeSignal(w http.ResponseWriter, r *http.Request) {
	var req ComputeSignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Signal == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "signal is required")
		return
	}
	srcPath, err := path.Parse(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "path: "+err.Error())
		return
	}

	res, err := s.signals.Compute(r.Context(), chi.URLParam(r, "dataset"), srcPath, req.Signal)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ComputeSignalResponse{
		Signal:     res.Signal,
		Path:       res.SourcePath.String(),
		RowCount:   res.RowCount,
		DurationMs: res.Duration.Milliseconds(),
	})
}

// BuildIndex handles POST /api/v1/datasets/{dataset}/embeddings.
func (s *Server) BuildIndex(w http.ResponseWriter, r *http.Request) {
	var req BuildIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	srcPath, err := path.Parse(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "path: "+err.Error())
		return
	}

	res, err := s.indexes.Build(r.Context(), chi.URLParam(r, "dataset"), srcPath)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, BuildIndexResponse{
		Namespace:  res.Namespace,
		Path:       res.SourcePath.String(),
		RowCount:   res.RowCount,
		SpanCount:  res.SpanCount,
		DurationMs: res.Duration.Milliseconds(),
	})
}

// UpsertConcept handles PUT /api/v1/concepts/{namespace}/{name}. The
// body carries an externally trained probe; training itself happens
// out of band.
func (s *Server) UpsertConcept(w http.ResponseWriter, r *http.Request) {
	var req UpsertConceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	model, err := s.concepts.UpsertModel(&concepts.Model{
		Namespace: chi.URLParam(r, "namespace"),
		Name:      chi.URLParam(r, "name"),
		Embedding: req.Embedding,
		Weights:   req.Weights,
		Bias:      req.Bias,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if model.Version > 1 {
		status = http.StatusOK
	}
	writeJSON(w, status, conceptToDTO(model))
}

// GetConcept handles GET /api/v1/concepts/{namespace}/{name}.
func (s *Server) GetConcept(w http.ResponseWriter, r *http.Request) {
	model, err := s.concepts.Get(
		chi.URLParam(r, "namespace"), chi.URLParam(r, "name"), r.URL.Query().Get("embedding"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conceptToDTO(model))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func conceptToDTO(m *concepts.Model) ConceptResponse {
	return ConceptResponse{
		Namespace:  m.Namespace,
		Name:       m.Name,
		Embedding:  m.Embedding,
		Dimensions: len(m.Weights),
		Version:    m.Version,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrDatasetNotFound,
		domain.ErrUnknownPath,
		domain.ErrInvalidQuery,
		domain.ErrIndexMissing,
		domain.ErrConceptMissing,
		domain.ErrSignalNotFound,
		domain.ErrGroupingNotSupported,
		domain.ErrEmbeddingProviderError,
		domain.ErrRateLimited,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
