package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/traceqa/backend/pkg/archive"
	"github.com/traceqa/backend/pkg/credentials"
	"github.com/traceqa/backend/pkg/notifier"
	"github.com/traceqa/backend/pkg/testcases"
)

const (
	Version = "1.0.0"

	bannerMessage = "Enterprise Requirements AI API"
	healthPath    = "/api/health"

	// DefaultMaxRequestBytes bounds the JSON body of the report endpoints.
	DefaultMaxRequestBytes = 10 << 20
)

// DefaultAllowedOrigins are the frontend origins allowed to call the API.
var DefaultAllowedOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}

// Dispatcher sends or prepares report emails.
type Dispatcher interface {
	State() credentials.State
	Send(ctx context.Context, records []testcases.Record, journey string) notifier.Outcome
	Prepare(ctx context.Context, records []testcases.Record, journey string) notifier.Outcome
}

// Reports serves previously archived reports.
type Reports interface {
	Load(name string) ([]byte, error)
}

type Server struct {
	dispatcher Dispatcher
	renderer   notifier.Renderer
	reports    Reports
	now        func() time.Time
	maxBody    int64
}

type Option func(*Server)

func WithReports(reports Reports) Option {
	return func(s *Server) {
		s.reports = reports
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

func WithMaxRequestBytes(limit int64) Option {
	return func(s *Server) {
		s.maxBody = limit
	}
}

func New(dispatcher Dispatcher, renderer notifier.Renderer, opts ...Option) *Server {
	s := &Server{dispatcher: dispatcher, renderer: renderer, now: time.Now, maxBody: DefaultMaxRequestBytes}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler routes the API and applies CORS for the allowed origins.
func (s *Server) Handler(allowedOrigins []string) http.Handler {
	routes := newRouter()
	routes.handle(http.MethodGet, "/", logged(bannerHandler))
	routes.handle(http.MethodGet, healthPath, logged(s.healthHandler))
	routes.handle(http.MethodPost, "/api/tests/email", withRequestLogger(s.emailHandler))
	routes.handle(http.MethodPost, "/api/tests/email/preview", withRequestLogger(s.previewHandler))
	routes.handle(http.MethodPost, "/api/tests/export", withRequestLogger(s.exportHandler))
	if s.reports != nil {
		routes.handle(http.MethodGet, "/api/reports/:name", withRequestLogger(s.reportHandler))
	}
	routes.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions, http.MethodHead},
		AllowedHeaders:   []string{"*"},
	}).Handler(routes)
}

func bannerHandler(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(logrus.NewEntry(logrus.StandardLogger()), w, http.StatusOK, map[string]string{
		"message": bannerMessage,
		"version": Version,
		"health":  healthPath,
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(logrus.NewEntry(logrus.StandardLogger()), w, http.StatusOK, map[string]string{
		"status": "ok",
		"email":  string(s.dispatcher.State()),
	})
}

type emailRequest struct {
	Journey string             `json:"journey"`
	Tests   []testcases.Record `json:"tests"`
}

func parseEmailRequest(r io.Reader) (*emailRequest, error) {
	var body emailRequest
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return nil, fmt.Errorf(`failed to decode request body: %w, expected format: {"journey": "name", "tests": [{...}]}`, err)
	}
	if strings.TrimSpace(body.Journey) == "" {
		return nil, errors.New("journey must not be empty")
	}
	return &body, nil
}

// decodeEmailRequest answers the request itself when the body is unusable.
func (s *Server) decodeEmailRequest(w http.ResponseWriter, r *http.Request) (*emailRequest, bool) {
	body, err := parseEmailRequest(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		http.Error(w, err.Error(), status)
		return nil, false
	}
	return body, true
}

func (s *Server) emailHandler(l *logrus.Entry, w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, ok := s.decodeEmailRequest(w, r)
	if !ok {
		return
	}
	outcome := s.dispatcher.Send(r.Context(), body.Tests, body.Journey)
	status := http.StatusOK
	switch {
	case outcome.Unauthenticated:
		status = http.StatusServiceUnavailable
	case !outcome.Success:
		status = http.StatusBadGateway
	}
	writeJSON(l.WithField("journey", body.Journey), w, status, outcome)
}

func (s *Server) previewHandler(l *logrus.Entry, w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, ok := s.decodeEmailRequest(w, r)
	if !ok {
		return
	}
	outcome := s.dispatcher.Prepare(r.Context(), body.Tests, body.Journey)
	status := http.StatusOK
	if !outcome.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(l.WithField("journey", body.Journey), w, status, outcome)
}

func (s *Server) exportHandler(l *logrus.Entry, w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, ok := s.decodeEmailRequest(w, r)
	if !ok {
		return
	}
	data, err := s.renderer.Build(body.Tests)
	if err != nil {
		l.WithError(err).Error("failed to render report")
		http.Error(w, fmt.Sprintf("failed to render report. RequestID: %s", l.Data["UID"]), http.StatusInternalServerError)
		return
	}
	writeAttachment(l, w, notifier.AttachmentName(body.Journey, s.now()), data)
}

func (s *Server) reportHandler(l *logrus.Entry, w http.ResponseWriter, _ *http.Request, params httprouter.Params) {
	name := params.ByName("name")
	data, err := s.reports.Load(name)
	if errors.Is(err, archive.ErrInvalidName) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if errors.Is(err, archive.ErrNotExist) {
		http.Error(w, fmt.Sprintf("report %q not found", name), http.StatusNotFound)
		return
	}
	if err != nil {
		l.WithError(err).WithField("report", name).Error("failed to load report")
		http.Error(w, fmt.Sprintf("failed to load report. RequestID: %s", l.Data["UID"]), http.StatusInternalServerError)
		return
	}
	writeAttachment(l, w, name, data)
}

func writeAttachment(l *logrus.Entry, w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", notifier.SpreadsheetContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		l.WithError(err).Error("failed to write response")
	}
}

func writeJSON(l *logrus.Entry, w http.ResponseWriter, status int, body interface{}) {
	serialized, err := json.Marshal(body)
	if err != nil {
		l.WithError(err).Error("failed to serialize")
		http.Error(w, "failed to serialize response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(serialized); err != nil {
		l.WithError(err).Error("failed to write response")
	}
}
