package blog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/johntipper/blog/plugin"
)

const shutdownTimeout = 10 * time.Second

type server struct {
	site   *Site
	cfg    ServeConfig
	echo   *echo.Echo
	outDir string
	logger zerolog.Logger
}

// Server builds the site into cfg.OutDir and returns an echo instance serving
// it, with every plugin route mounted. It does not start listening.
func (s *Site) Server(ctx context.Context, cfg ServeConfig) (*echo.Echo, error) {
	srv, err := s.newServer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return srv.echo, nil
}

func (s *Site) newServer(ctx context.Context, cfg ServeConfig) (*server, error) {
	cfg.setDefaults()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &server{
		site:   s,
		cfg:    cfg,
		echo:   e,
		outDir: cfg.OutDir,
		logger: s.logger.With().Str("component", "server").Logger(),
	}

	if _, err := s.build(ctx, cfg.OutDir, srv.rebuild); err != nil {
		return nil, err
	}

	srv.setupMiddleware()
	if err := srv.setupRoutes(ctx); err != nil {
		return nil, err
	}
	return srv, nil
}

func (srv *server) rebuild(ctx context.Context) error {
	_, err := srv.site.build(ctx, srv.outDir, srv.rebuild)
	return err
}

func (srv *server) setupRoutes(ctx context.Context) error {
	e := srv.echo
	s := srv.site

	e.GET("/api/hello", handleHello)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	api := s.newAPI(srv.outDir, s.logger, srv.rebuild)
	err := s.each(ctx, api, plugin.StageRoutes, func(p plugin.Plugin, api *plugin.API) error {
		if h, ok := p.(plugin.Routes); ok {
			return h.RegisterRoutes(e, api)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.GET("/*", srv.handleStatic)
	e.HEAD("/*", srv.handleStatic)
	return nil
}

// Serve builds the site and serves it on cfg.Addr until ctx is cancelled,
// then shuts the server down gracefully. With cfg.Watch set, content changes
// trigger a rebuild.
func (s *Site) Serve(ctx context.Context, cfg ServeConfig) error {
	srv, err := s.newServer(ctx, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if srv.cfg.Watch {
		go func() {
			if err := srv.watch(ctx, srv.rebuild); err != nil {
				srv.logger.Error().Err(err).Msg("Watcher stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		srv.logger.Info().Str("addr", srv.cfg.Addr).Str("out", srv.outDir).Msg("Serving site")
		errCh <- srv.echo.Start(srv.cfg.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	srv.logger.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	return srv.echo.Shutdown(shutdownCtx)
}
