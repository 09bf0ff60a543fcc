// Package http exposes flows and sessions over a JSON API. Chat-provider
// webhooks post inbound messages to /v1/inbound; operators publish flows,
// inspect sessions and follow them live over server-sent events.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/runner"
	"github.com/aretw0/parley/pkg/schema"
	"github.com/aretw0/parley/pkg/session"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves the Parley API on top of a Runner.
type Server struct {
	runner   *runner.Runner
	streams  *StreamManager
	spec     *openapi3.T
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

type Option func(*Server)

// WithStreams shares a stream manager, typically one the runner also feeds
// through runner.WithDiffListener.
func WithStreams(m *StreamManager) Option {
	return func(s *Server) {
		s.streams = m
	}
}

// WithGatherer serves /metrics from g.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler builds the router.
func NewHandler(ctx context.Context, r *runner.Runner, opts ...Option) (http.Handler, error) {
	spec, err := LoadSpec(ctx)
	if err != nil {
		return nil, err
	}
	s := &Server{
		runner: r,
		spec:   spec,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.streams == nil {
		s.streams = NewStreamManager()
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(enableCORS)

	router.Get("/health", s.getHealth)
	router.Get("/info", s.getInfo)
	router.Get("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(rawSpec)
	})
	if s.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.route(router, http.MethodGet, "/v1/flows", s.listFlows)
	s.route(router, http.MethodPost, "/v1/flows", s.publishFlow)
	s.route(router, http.MethodGet, "/v1/flows/{flowID}", s.getFlow)
	s.route(router, http.MethodPost, "/v1/inbound", s.inbound)
	s.route(router, http.MethodGet, "/v1/sessions", s.listSessions)
	s.route(router, http.MethodGet, "/v1/sessions/{key}", s.getSession)
	s.route(router, http.MethodDelete, "/v1/sessions/{key}", s.deleteSession)
	s.route(router, http.MethodPost, "/v1/sessions/{key}/resume", s.resumeSession)
	s.route(router, http.MethodPost, "/v1/sessions/{key}/cancel", s.cancelSession)
	s.route(router, http.MethodGet, "/v1/sessions/{key}/events", s.sessionEvents)
	return router, nil
}

func (s *Server) route(r chi.Router, method, pattern string, h http.HandlerFunc) {
	r.With(s.validate(pattern)).Method(method, pattern, h)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	Error    string           `json:"error"`
	Problems []domain.Problem `json:"problems,omitempty"`
}

type publishResponse struct {
	FlowID  string `json:"flow_id"`
	Version int    `json:"version"`
}

type inboundRequest struct {
	FlowID string `json:"flow_id"`
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "err", err)
	}
}

// fail maps domain errors onto status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *domain.ValidationError
	var decode *schema.AggregateError
	status := http.StatusInternalServerError
	body := errorBody{Error: err.Error()}

	switch {
	case errors.As(err, &invalid):
		status = http.StatusUnprocessableEntity
		body.Problems = invalid.Problems
	case errors.As(err, &decode):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrFlowNotFound), errors.Is(err, domain.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrFlowVersionExists), errors.Is(err, session.ErrTooManyConflicts):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrReadOnly):
		status = http.StatusForbidden
	case errors.Is(err, runner.ErrInputTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, runner.ErrInvalidUTF8):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	} else {
		s.logger.Debug("request refused", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, body)
}

func (s *Server) getHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "parley",
		"version":     strings.TrimSpace(parley.Version),
		"api_version": s.spec.Info.Version,
	})
}

func (s *Server) listFlows(w http.ResponseWriter, r *http.Request) {
	flows, err := s.runner.Flows().List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flows)
}

func (s *Server) publishFlow(w http.ResponseWriter, r *http.Request) {
	var doc schema.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid flow document: " + err.Error()})
		return
	}
	g, err := schema.Decode(&doc)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	published, err := s.runner.Flows().Publish(r.Context(), g)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("flow published", "flow_id", published.FlowID, "version", published.Version)
	writeJSON(w, http.StatusCreated, publishResponse{FlowID: published.FlowID, Version: published.Version})
}

func (s *Server) getFlow(w http.ResponseWriter, r *http.Request) {
	flowID := chi.URLParam(r, "flowID")
	var (
		g   *domain.FlowGraph
		err error
	)
	var version *int
	if err := runtime.BindQueryParameter("form", true, false, "version", r.URL.Query(), &version); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if version != nil {
		g, err = s.runner.Flows().Get(r.Context(), flowID, *version)
	} else {
		g, err = s.runner.Flows().Latest(r.Context(), flowID)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schema.Encode(g))
}

func (s *Server) inbound(w http.ResponseWriter, r *http.Request) {
	var req inboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	res, err := s.runner.HandleInbound(r.Context(), req.FlowID, req.UserID, req.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	keys, err := s.runner.Sessions().List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, keys)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.runner.Sessions().Load(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if _, err := s.runner.Sessions().Load(r.Context(), key); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.runner.Sessions().Delete(r.Context(), key); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) resumeSession(w http.ResponseWriter, r *http.Request) {
	res, err := s.runner.Resume(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) cancelSession(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
			return
		}
	}
	res, err := s.runner.Cancel(r.Context(), chi.URLParam(r, "key"), req.Reason)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// sessionEvents streams the session's diffs as server-sent events.
func (s *Server) sessionEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	key := chi.URLParam(r, "key")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, cancel := s.streams.Subscribe(key)
	defer cancel()
	s.logger.Info("SSE client subscribed", "session_key", key)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE client disconnected", "session_key", key)
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
