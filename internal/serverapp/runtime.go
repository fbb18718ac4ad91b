package serverapp

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
)

// Start launches the HTTP server goroutine. It requires Init to have completed.
func (a *App) Start() (<-chan error, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if !a.initialized {
		return nil, fmt.Errorf("app is not initialized")
	}
	if a.started {
		return a.serverErrors, nil
	}

	a.serverErrors = a.serve()
	a.started = true
	return a.serverErrors, nil
}

func (a *App) serve() chan error {
	serverErrors := make(chan error, 1)
	srv := a.srv
	tlsEnabled := a.cfg.Server.TLSCertFile != "" && a.cfg.Server.TLSKeyFile != ""

	a.logger.Info("server starting",
		slog.String("address", a.serverAddr),
		slog.Bool("tls_enabled", tlsEnabled),
		slog.Bool("rest_enabled", a.cfg.Server.RESTEnabled),
		slog.Bool("metrics_enabled", a.cfg.Observability.MetricsEnabled),
		slog.Bool("rate_limit_enabled", a.cfg.Server.RateLimitEnabled),
	)

	go func() {
		var err error
		if tlsEnabled {
			err = srv.ListenAndServeTLS(a.cfg.Server.TLSCertFile, a.cfg.Server.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	return serverErrors
}

// WaitForStop blocks until a signal arrives on stop or the server fails.
// A nil serverErrors falls back to the channel returned by Start; a nil
// channel never fires.
func (a *App) WaitForStop(stop <-chan os.Signal, serverErrors <-chan error) (reason string, err error) {
	if serverErrors == nil {
		a.stateMu.Lock()
		if a.serverErrors != nil {
			serverErrors = a.serverErrors
		}
		a.stateMu.Unlock()
	}
	if stop == nil && serverErrors == nil {
		return "", fmt.Errorf("both stop and serverErrors channels are nil")
	}

	select {
	case err := <-serverErrors:
		if err == nil {
			return "server_error", fmt.Errorf("server stopped unexpectedly")
		}
		return "server_error", fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		a.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		return "signal", nil
	}
}
