package plugin

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/a-h/templ"
	"github.com/rs/zerolog"

	"github.com/johntipper/blog/config"
	"github.com/johntipper/blog/metrics"
)

// Page is one HTML document the host renders to <out>/<Path>/index.html.
type Page struct {
	Path      string
	Title     string
	Component templ.Component
	LastMod   time.Time
	// NoIndex keeps the page out of sitemaps and feeds.
	NoIndex bool
	// Owner is the plugin that created the page; set by CreatePage.
	Owner string
}

// RebuildFunc triggers a fresh build of the site.
type RebuildFunc func(ctx context.Context) error

// API is the host surface a plugin sees during a build. Each plugin gets its
// own view whose logger and page ownership carry the plugin identifier; the
// underlying node store, page set and output directory are shared.
type API struct {
	plugin string
	state  *buildState
}

type buildState struct {
	site    config.SiteMetadata
	root    string
	outDir  string
	logger  zerolog.Logger
	nodes   *NodeStore
	plugins []Resolved
	rebuild RebuildFunc
	env     func(string) (string, bool)
	metrics *metrics.Recorder

	mu    sync.Mutex
	pages map[string]Page
}

// NewAPI creates the shared state for one build.
func NewAPI(site config.SiteMetadata, root, outDir string, logger zerolog.Logger, plugins []Resolved, rebuild RebuildFunc) *API {
	return &API{state: &buildState{
		site:    site,
		root:    root,
		outDir:  outDir,
		logger:  logger,
		nodes:   NewNodeStore(),
		plugins: plugins,
		rebuild: rebuild,
		env:     os.LookupEnv,
		pages:   make(map[string]Page),
	}}
}

// For returns a view of the API scoped to the named plugin.
func (a *API) For(plugin string) *API {
	return &API{plugin: plugin, state: a.state}
}

// Site returns the site metadata.
func (a *API) Site() config.SiteMetadata {
	return a.state.site
}

// Logger returns a logger tagged with the calling plugin.
func (a *API) Logger() zerolog.Logger {
	if a.plugin == "" {
		return a.state.logger
	}
	return a.state.logger.With().Str("plugin", a.plugin).Logger()
}

// Nodes returns the shared content store.
func (a *API) Nodes() *NodeStore {
	return a.state.nodes
}

// CreateNode adds n to the node store owned by the calling plugin.
func (a *API) CreateNode(n Node) error {
	n.Owner = a.plugin
	return a.state.nodes.Add(n)
}

// Plugins returns every resolved plugin in activation order.
func (a *API) Plugins() []Resolved {
	return a.state.plugins
}

// Path resolves a project-relative path against the project root.
func (a *API) Path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(a.state.root, filepath.FromSlash(rel))
}

// OutDir returns the directory the build writes to.
func (a *API) OutDir() string {
	return a.state.outDir
}

// SetEnv replaces the lookup behind LookupEnv. Call it before the build starts.
func (a *API) SetEnv(lookup func(string) (string, bool)) {
	if lookup != nil {
		a.state.env = lookup
	}
}

// LookupEnv reads a process setting such as a credential.
func (a *API) LookupEnv(key string) (string, bool) {
	return a.state.env(key)
}

// SetMetrics attaches the process metrics. Call it before the build starts.
func (a *API) SetMetrics(m *metrics.Recorder) {
	a.state.metrics = m
}

// Metrics returns the process metrics; nil records nothing.
func (a *API) Metrics() *metrics.Recorder {
	return a.state.metrics
}

// Rebuild asks the host for a fresh build. It is a no-op when the host
// runs a one-shot build.
func (a *API) Rebuild(ctx context.Context) error {
	if a.state.rebuild == nil {
		return nil
	}
	return a.state.rebuild(ctx)
}

// CreatePage registers a page. Paths are normalized to a leading and
// trailing slash; registering the same path twice is an error.
func (a *API) CreatePage(p Page) error {
	if p.Component == nil {
		return fmt.Errorf("page %q has no component", p.Path)
	}
	p.Path = NormalizePagePath(p.Path)
	p.Owner = a.plugin

	a.state.mu.Lock()
	defer a.state.mu.Unlock()

	if existing, ok := a.state.pages[p.Path]; ok {
		return fmt.Errorf("page %s already created by %s", p.Path, existing.Owner)
	}
	a.state.pages[p.Path] = p
	return nil
}

// Pages returns every registered page sorted by path.
func (a *API) Pages() []Page {
	a.state.mu.Lock()
	defer a.state.mu.Unlock()

	pages := make([]Page, 0, len(a.state.pages))
	for _, p := range a.state.pages {
		pages = append(pages, p)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Path < pages[j].Path })
	return pages
}

// WriteFile writes data to a path relative to the output directory.
// Paths escaping the output directory are rejected.
func (a *API) WriteFile(rel string, data []byte) error {
	target, err := a.outputPath(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.WriteFile(target, data, 0o644)
}

// FileExists reports whether rel already exists in the output directory.
func (a *API) FileExists(rel string) bool {
	target, err := a.outputPath(rel)
	if err != nil {
		return false
	}
	_, err = os.Stat(target)
	return err == nil
}

func (a *API) outputPath(rel string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(rel))
	if clean == "/" {
		return "", fmt.Errorf("invalid output path %q", rel)
	}
	target := filepath.Join(a.state.outDir, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
	relToOut, err := filepath.Rel(a.state.outDir, target)
	if err != nil || strings.HasPrefix(relToOut, "..") {
		return "", fmt.Errorf("output path %q escapes %s", rel, a.state.outDir)
	}
	return target, nil
}

// NormalizePagePath cleans p and gives it a leading and trailing slash.
func NormalizePagePath(p string) string {
	p = path.Clean("/" + strings.TrimSpace(p))
	if p != "/" {
		p += "/"
	}
	return p
}
