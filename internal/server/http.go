package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/sant470/loganalyzer/internal/config"
	"github.com/sant470/loganalyzer/internal/ingest"
	logpkg "github.com/sant470/loganalyzer/internal/log"
	"github.com/sant470/loganalyzer/internal/metrics"
)

// Config carries everything the HTTP front-end needs. Sink and Logger
// default to a LogSink over the loganalyzer logger; Metrics is optional.
type Config struct {
	Server  config.ServerConfig
	Sink    ingest.Sink
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.Logger == nil {
		out.Logger = zap.L().Named(logpkg.Name)
	}
	if out.Sink == nil {
		out.Sink = ingest.NewLogSink(out.Logger)
	}
	return &out
}

type httpServer struct {
	sink    ingest.Sink
	metrics *metrics.Metrics
	logger  *zap.Logger

	maxBodyBytes    int64
	bodyReadTimeout time.Duration
}

// NewHandler assembles the route table once and wraps it with the access
// log and panic recovery. The result is safe for concurrent use.
func NewHandler(cfg *Config) http.Handler {
	cfg = cfg.withDefaults()
	s := &httpServer{
		sink:            cfg.Sink,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
		maxBodyBytes:    cfg.Server.MaxBodyBytes,
		bodyReadTimeout: cfg.Server.BodyReadTimeout,
	}

	r := mux.NewRouter()
	r.SkipClean(true)
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/collect", s.handleCollect).Methods(http.MethodPost)
	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	r.Use(routeLabel)

	return accessLog(cfg.Logger, cfg.Metrics, recoverer(cfg.Logger, trimTrailingSlash(r)))
}

func NewHTTPServer(cfg *Config) *http.Server {
	cfg = cfg.withDefaults()
	errorLog, err := zap.NewStdLogAt(cfg.Logger, zap.ErrorLevel)
	if err != nil {
		errorLog = zap.NewStdLog(cfg.Logger)
	}
	return &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           NewHandler(cfg),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ErrorLog:          errorLog,
	}
}

func (s *httpServer) handleRoot(rw http.ResponseWriter, r *http.Request) {
	s.writeHTML(rw, r, "root")
}

func (s *httpServer) handleCollect(rw http.ResponseWriter, r *http.Request) {
	if err := ingest.CheckMediaType(r.Header.Get("Content-Type")); err != nil {
		s.fail(rw, r, err)
		return
	}

	rc := http.NewResponseController(rw)
	deadline := false
	if s.bodyReadTimeout > 0 {
		if err := rc.SetReadDeadline(time.Now().Add(s.bodyReadTimeout)); err == nil {
			deadline = true
		} else if !errors.Is(err, http.ErrNotSupported) {
			s.logger.Warn("cannot set body read deadline", zap.Error(err))
		}
	}

	body := r.Body
	if s.maxBodyBytes > 0 {
		body = http.MaxBytesReader(rw, body, s.maxBodyBytes)
	}
	event, err := ingest.Decode(body)
	if err != nil {
		// The deadline stays armed so net/http cannot block draining a
		// stalled body after the handler returns.
		s.fail(rw, r, err)
		return
	}
	if deadline {
		_ = rc.SetReadDeadline(time.Time{})
	}
	if err := s.sink.Append(r.Context(), event); err != nil {
		s.fail(rw, r, fmt.Errorf("append event: %w", err))
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveEvent(event.Size())
	}
	s.writeHTML(rw, r, "collect")
}

func (s *httpServer) writeHTML(rw http.ResponseWriter, r *http.Request, body string) {
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	rw.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(rw, body); err != nil {
		s.logger.Error("failed to write response", zap.String("target", r.RequestURI), zap.Error(err))
	}
}

// statusFor maps handler errors onto the response status: client mistakes
// are 4xx, anything unclassified is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ingest.ErrBodyTimeout):
		return http.StatusRequestTimeout
	case errors.Is(err, ingest.ErrEmptyBody),
		errors.Is(err, ingest.ErrInvalidJSON),
		errors.Is(err, ingest.ErrBodyTooLarge),
		errors.Is(err, ingest.ErrUnsupportedMediaType):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *httpServer) fail(rw http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("target", r.RequestURI), zap.Error(err))
	} else {
		s.logger.Info("request rejected", zap.String("target", r.RequestURI), zap.Int("status", code), zap.Error(err))
	}
	if code == http.StatusRequestTimeout {
		// Skip the post-handler discard of the unread body.
		rw.Header().Set("Connection", "close")
	}
	http.Error(rw, http.StatusText(code), code)
}

func notFound(rw http.ResponseWriter, r *http.Request) {
	http.Error(rw, http.StatusText(http.StatusNotFound), http.StatusNotFound)
}

func methodNotAllowed(rw http.ResponseWriter, r *http.Request) {
	http.Error(rw, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
