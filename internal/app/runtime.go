package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const (
	testModeEnv   = "FACTURIA_TEST_MODE"
	shutdownGrace = 10 * time.Second
)

// InTestMode reports whether the binary should skip runtime side effects.
func InTestMode() bool {
	on, _ := strconv.ParseBool(os.Getenv(testModeEnv))
	return on
}

// NewServer builds the HTTP server for cfg.
func NewServer(cfg *Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           handler,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: cfg.AppReadTimeout,
		WriteTimeout:      cfg.AppWriteTimeout,
	}
}

// Serve runs server until ctx is done, then drains in-flight requests. A
// submission waiting on the authority finishes before the process exits.
func Serve(ctx context.Context, server *http.Server, logger zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("starting http server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
