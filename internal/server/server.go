package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sant470/loganalyzer/internal/metrics"
)

// ErrBind is wrapped by Run when a listener cannot be opened.
var ErrBind = errors.New("bind failed")

// Run binds the configured address, serves until ctx is cancelled and then
// drains in-flight requests for at most ShutdownTimeout.
func Run(ctx context.Context, cfg *Config) error {
	cfg = cfg.withDefaults()

	l, err := listen(cfg.Server.Addr())
	if err != nil {
		return err
	}
	var ml net.Listener
	if cfg.Server.MetricsAddr != "" {
		if ml, err = listen(cfg.Server.MetricsAddr); err != nil {
			l.Close()
			return err
		}
	}
	return Serve(ctx, cfg, l, ml)
}

func listen(addr string) (net.Listener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBind, err)
	}
	return l, nil
}

// Serve is Run over listeners the caller already owns. ml may be nil, in
// which case no metrics endpoint is exposed. Both listeners are closed on
// return.
func Serve(ctx context.Context, cfg *Config, l, ml net.Listener) error {
	cfg = cfg.withDefaults()
	logger := cfg.Logger
	defer l.Close()
	if ml != nil {
		defer ml.Close()
	}

	var msrv *metrics.Server
	if ml != nil {
		if cfg.Metrics == nil {
			cfg.Metrics = metrics.New()
		}
		msrv = metrics.NewServer(ml.Addr().String(), cfg.Metrics)
	}
	srv := NewHTTPServer(cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", l.Addr().String()))
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve %s: %w", l.Addr(), err)
		}
		return nil
	})
	if msrv != nil {
		g.Go(func() error {
			if err := msrv.Serve(ml); err != nil {
				return fmt.Errorf("serve metrics %s: %w", ml.Addr(), err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", zap.Duration("drain", cfg.Server.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("drain window elapsed, closing remaining connections", zap.Error(err))
			srv.Close()
		}
		if msrv != nil {
			if err := msrv.Stop(shutdownCtx); err != nil {
				logger.Warn("failed to stop metrics server", zap.Error(err))
			}
		}
		return nil
	})
	return g.Wait()
}
