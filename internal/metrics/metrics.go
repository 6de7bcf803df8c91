package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "loganalyzer"

// Metrics groups the collectors updated by the HTTP front-end. Each value
// owns its registry so tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec
	EventsCollected prometheus.Counter
	EventBytes      prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests served",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "Size of HTTP response bodies",
				Buckets:   prometheus.ExponentialBuckets(8, 4, 8),
			},
			[]string{"method", "route"},
		),
		EventsCollected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_collected_total",
				Help:      "Total number of events accepted on /collect",
			},
		),
		EventBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "event_bytes",
				Help:      "Size of accepted event payloads",
				Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
			},
		),
	}
	m.Registry.MustRegister(
		m.Requests,
		m.RequestDuration,
		m.ResponseSize,
		m.EventsCollected,
		m.EventBytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRequest records one completed request. route is the matched route
// template, or a placeholder for unmatched requests.
func (m *Metrics) ObserveRequest(method, route string, status, size int, elapsed time.Duration) {
	m.Requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
	m.ResponseSize.WithLabelValues(method, route).Observe(float64(size))
}

// ObserveEvent records one event handed to the sink.
func (m *Metrics) ObserveEvent(size int) {
	m.EventsCollected.Inc()
	m.EventBytes.Observe(float64(size))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Server exposes /metrics on its own listener.
type Server struct {
	logger *zap.Logger
	server *http.Server
}

func NewServer(addr string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &Server{
		logger: zap.L().Named("metrics"),
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Serve blocks until l fails or Stop is called.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("serving metrics", zap.String("addr", l.Addr().String()))
	if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
