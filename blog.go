// Package blog builds a static blog from a site configuration and the
// plugins it activates, and serves the result with live rebuilds.
//
// A Site resolves every activation once, when it is created. Each call to
// Build then runs the plugin lifecycle from scratch:
//
//	SourceNodes -> CreatePages -> HeadComponents -> render -> PostBuild
//
// Serve adds the plugin routes and rebuilds the output whenever content
// changes on disk.
package blog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/johntipper/blog/config"
	"github.com/johntipper/blog/metrics"
	"github.com/johntipper/blog/plugin"
)

// Site is a resolved site configuration ready to build.
type Site struct {
	Config *config.Config

	root     string
	logger   zerolog.Logger
	registry *plugin.Registry
	metrics  *metrics.Recorder
	env      func(string) (string, bool)
	plugins  []plugin.Resolved

	buildMu sync.Mutex
	// outMu guards reads of the served output against the swap at the end
	// of a build.
	outMu sync.RWMutex
}

// New validates cfg and resolves its plugin activations. An activation
// naming an unknown plugin, or a plugin rejecting its options, fails here
// before anything is built.
func New(cfg *config.Config, opts ...Option) (*Site, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	s := &Site{
		Config:   cfg,
		root:     ".",
		logger:   zerolog.Nop(),
		registry: DefaultRegistry(),
		env:      os.LookupEnv,
	}
	for _, opt := range opts {
		opt(s)
	}

	resolved, err := s.registry.Resolve(cfg.Plugins)
	if err != nil {
		return nil, fmt.Errorf("resolve plugins: %w", err)
	}
	s.plugins = resolved

	for _, r := range resolved {
		s.logger.Debug().Str("plugin", r.ID).Stringer("metadata", r.Plugin.Metadata()).Msg("Resolved plugin")
	}
	return s, nil
}

// Plugins returns the resolved plugins in activation order.
func (s *Site) Plugins() []plugin.Resolved {
	return s.plugins
}

// Root returns the project directory.
func (s *Site) Root() string {
	return s.root
}

// Close releases resources held by plugins.
func (s *Site) Close() error {
	var errs []error
	for _, r := range s.plugins {
		if c, ok := r.Plugin.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", r.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Site) newAPI(outDir string, logger zerolog.Logger, rebuild plugin.RebuildFunc) *plugin.API {
	api := plugin.NewAPI(s.Config.SiteMetadata, s.root, outDir, logger, s.plugins, rebuild)
	api.SetEnv(s.env)
	api.SetMetrics(s.metrics)
	return api
}
