package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/akudrin/lobbywire/internal/config"
	transporthttp "github.com/akudrin/lobbywire/internal/transport/http"
	"github.com/akudrin/lobbywire/internal/transport/tcp"
)

// App wires together the connection engine and the ops HTTP server.
type App struct {
	engine          *tcp.Engine
	opsServer       *stdhttp.Server
	shutdownTimeout time.Duration
	log             *zerolog.Logger
}

// New constructs the application with provided configuration. The lobby
// listener is bound here so startup failures surface before Run.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	engine := tcp.NewEngine(cfg, logger)
	if err := engine.Listen(); err != nil {
		return nil, fmt.Errorf("bind lobby listener: %w", err)
	}

	return &App{
		engine:          engine,
		opsServer:       transporthttp.NewServer(engine, cfg, logger),
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             logger,
	}, nil
}

// Run starts both servers and blocks until context cancellation or a
// fatal startup error.
func (a *App) Run(ctx context.Context) error {
	engineCtx, cancelEngine := context.WithCancel(ctx)
	defer cancelEngine()

	engineErr := make(chan error, 1)
	opsErr := make(chan error, 1)

	go func() {
		engineErr <- a.engine.Run(engineCtx)
	}()

	go func() {
		a.log.Info().Str("addr", a.opsServer.Addr).Msg("ops server listening")
		if err := a.opsServer.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			opsErr <- err
			return
		}
		opsErr <- nil
	}()

	select {
	case err := <-engineErr:
		a.stopOps()
		<-opsErr
		return err

	case err := <-opsErr:
		cancelEngine()
		<-engineErr
		return err

	case <-ctx.Done():
		a.log.Info().Msg("shutting down")
		a.stopOps()
		cancelEngine()
		<-opsErr
		return <-engineErr
	}
}

func (a *App) stopOps() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	if err := a.opsServer.Shutdown(shutdownCtx); err != nil {
		a.log.Warn().Err(err).Msg("ops server shutdown")
	}
}
