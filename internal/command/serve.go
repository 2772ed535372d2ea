package command

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/maxmcd/nodehome/internal/config"
	"github.com/maxmcd/nodehome/internal/dashboard"
	"github.com/maxmcd/nodehome/internal/logger"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func serve(ctx context.Context, cfg config.Config, addr string) error {
	s, err := dashboard.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "error listening on %s", addr)
	}
	logger.Infow("dashboard listening", "addr", ln.Addr().String(),
		"fulcrum_stats", cfg.Fulcrum.StatsEnabled, "tail", cfg.Fulcrum.TailPath)
	return serveListener(ctx, ln, s.Handler())
}

// serveListener serves handler on ln until ctx is done, then shuts down.
func serveListener(ctx context.Context, ln net.Listener, handler http.Handler) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		logger.Infow("shutting down dashboard")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return group.Wait()
}
