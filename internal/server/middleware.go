package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/sant470/loganalyzer/internal/metrics"
)

const unmatchedRoute = "unmatched"

// responseRecorder remembers what was sent so the access log can report it.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	size        int
	wroteHeader bool
	// net/http sends no body for HEAD, so nothing is counted.
	head bool
}

func (w *responseRecorder) WriteHeader(code int) {
	if !w.wroteHeader && code >= http.StatusOK {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	if !w.head {
		w.size += n
	}
	return n, err
}

// Unwrap lets http.ResponseController reach the connection.
func (w *responseRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

type routeKey struct{}

// routeLabel runs inside the router once a route matched and reports its
// path template back to accessLog.
func routeLabel(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if slot, ok := r.Context().Value(routeKey{}).(*string); ok {
			if tpl, err := mux.CurrentRoute(r).GetPathTemplate(); err == nil {
				*slot = tpl
			}
		}
		next.ServeHTTP(w, r)
	})
}

// accessLog emits exactly one record per request once the handler has
// returned, including when it unwinds with a panic.
func accessLog(logger *zap.Logger, m *metrics.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		route := unmatchedRoute
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK, head: r.Method == http.MethodHead}

		defer func() {
			elapsed := time.Since(start)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("target", r.RequestURI),
				zap.Int("status", rec.status),
				zap.Int("size", rec.size),
				zap.Duration("duration", elapsed),
				zap.String("remote_addr", r.RemoteAddr),
			)
			if m != nil {
				m.ObserveRequest(r.Method, route, rec.status, rec.size, elapsed)
			}
		}()

		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), routeKey{}, &route)))
	})
}

// recoverer turns a handler panic into a 500 when nothing has been sent
// yet. Otherwise the connection is aborted.
func recoverer(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			logger.Error("handler panicked",
				zap.String("target", r.RequestURI),
				zap.Any("panic", v),
				zap.Stack("stack"),
			)
			if rec, ok := w.(*responseRecorder); ok && rec.wroteHeader {
				panic(http.ErrAbortHandler)
			}
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}

// trimTrailingSlash makes "/collect/" route like "/collect".
func trimTrailingSlash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := r.URL.Path; len(p) > 1 && strings.HasSuffix(p, "/") {
			r2 := new(http.Request)
			*r2 = *r
			u := *r.URL
			u.Path = strings.TrimRight(p, "/")
			if u.Path == "" {
				u.Path = "/"
			}
			u.RawPath = ""
			r2.URL = &u
			r = r2
		}
		next.ServeHTTP(w, r)
	})
}
