package blog

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/johntipper/blog/metrics"
	"github.com/johntipper/blog/plugin"
)

// ServeConfig holds the settings of a running server.
type ServeConfig struct {
	Addr     string        // Listen address (default ":8000")
	OutDir   string        // Build output served to clients (default "public")
	Debounce time.Duration // Quiet period before a content change triggers a rebuild (default 300ms)
	Watch    bool          // Rebuild when files under the project root change
}

func (c *ServeConfig) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":8000"
	}
	if c.OutDir == "" {
		c.OutDir = "public"
	}
	if c.Debounce <= 0 {
		c.Debounce = 300 * time.Millisecond
	}
}

// Option configures additional Site behavior.
type Option func(*Site)

// WithRoot sets the project directory content paths are resolved against (default ".").
func WithRoot(dir string) Option {
	return func(s *Site) {
		s.root = dir
	}
}

// WithLogger sets the logger handed to plugins.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Site) {
		s.logger = l
	}
}

// WithRegistry replaces the plugin registry used to resolve activations.
func WithRegistry(r *plugin.Registry) Option {
	return func(s *Site) {
		s.registry = r
	}
}

// WithMetrics records build and editor activity on m.
func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Site) {
		s.metrics = m
	}
}

// WithEnv overrides how plugins read process settings such as editor
// credentials. The default is os.LookupEnv.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(s *Site) {
		s.env = lookup
	}
}
