package blog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/johntipper/blog/metrics"
	"github.com/johntipper/blog/plugin"
)

// StaticDir is copied verbatim into the output before any plugin runs.
const StaticDir = "static"

// Result summarises one build.
type Result struct {
	ID       string
	OutDir   string
	Pages    []string
	Duration time.Duration
}

// Build renders the site into outDir, replacing whatever was there. The new
// tree is written next to outDir and only moved into place once every stage
// succeeded, so a failed build leaves the previous output untouched. Builds
// are serialized; a second call waits for the first to finish.
func (s *Site) Build(ctx context.Context, outDir string) (*Result, error) {
	return s.build(ctx, outDir, nil)
}

func (s *Site) build(ctx context.Context, outDir string, rebuild plugin.RebuildFunc) (*Result, error) {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	start := time.Now()
	res := &Result{ID: uuid.NewString(), OutDir: outDir}
	logger := s.logger.With().Str("build", res.ID).Logger()
	logger.Info().Str("out", outDir).Msg("Build started")

	err := s.run(ctx, res, logger, rebuild)
	res.Duration = time.Since(start)

	if err != nil {
		s.metrics.ObserveBuild(res.Duration, metrics.OutcomeFailed)
		logger.Error().Err(err).Dur("duration", res.Duration).Msg("Build failed")
		return nil, err
	}
	s.metrics.ObserveBuild(res.Duration, metrics.OutcomeSuccess)
	s.metrics.AddPages(len(res.Pages))
	logger.Info().Int("pages", len(res.Pages)).Dur("duration", res.Duration).Msg("Build finished")
	return res, nil
}

func (s *Site) run(ctx context.Context, res *Result, logger zerolog.Logger, rebuild plugin.RebuildFunc) error {
	out, err := checkOutDir(s.root, res.OutDir)
	if err != nil {
		return err
	}
	staging, err := stageDir(out)
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	if err := copyDir(filepath.Join(s.root, StaticDir), staging); err != nil {
		return fmt.Errorf("copy %s: %w", StaticDir, err)
	}

	api := s.newAPI(staging, logger, rebuild)

	err = s.each(ctx, api, plugin.StageSourceNodes, func(p plugin.Plugin, api *plugin.API) error {
		if h, ok := p.(plugin.SourceNodes); ok {
			return h.SourceNodes(ctx, api)
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.Debug().Int("nodes", api.Nodes().Len()).Msg("Sourced nodes")

	err = s.each(ctx, api, plugin.StageCreatePages, func(p plugin.Plugin, api *plugin.API) error {
		if h, ok := p.(plugin.CreatePages); ok {
			return h.CreatePages(ctx, api)
		}
		return nil
	})
	if err != nil {
		return err
	}

	pages, err := s.render(ctx, api)
	if err != nil {
		return err
	}
	res.Pages = pages

	err = s.each(ctx, api, plugin.StagePostBuild, func(p plugin.Plugin, api *plugin.API) error {
		if h, ok := p.(plugin.PostBuild); ok {
			return h.PostBuild(ctx, api)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.writeRobots(api); err != nil {
		return err
	}
	return s.swapOutDir(staging, out)
}

// each calls fn for every plugin in activation order with an API scoped to
// that plugin. The first failure stops the build.
func (s *Site) each(ctx context.Context, api *plugin.API, stage plugin.Stage, fn func(plugin.Plugin, *plugin.API) error) error {
	for _, r := range s.plugins {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(r.Plugin, api.For(r.ID)); err != nil {
			return plugin.NewError(r.ID, stage, err)
		}
	}
	return nil
}

func (s *Site) headComponents(api *plugin.API) []templ.Component {
	var head []templ.Component
	for _, r := range s.plugins {
		if h, ok := r.Plugin.(plugin.HeadComponents); ok {
			head = append(head, h.HeadComponents(api.For(r.ID))...)
		}
	}
	return head
}

// render writes every page to <out>/<path>/index.html.
func (s *Site) render(ctx context.Context, api *plugin.API) ([]string, error) {
	ctx = plugin.WithHead(ctx, s.headComponents(api))

	pages := api.Pages()
	paths := make([]string, 0, len(pages))
	var buf bytes.Buffer
	for _, pg := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		buf.Reset()
		if err := pg.Component.Render(ctx, &buf); err != nil {
			return nil, plugin.NewError(pg.Owner, plugin.StageRender, fmt.Errorf("page %s: %w", pg.Path, err))
		}
		if err := api.WriteFile(path.Join(pg.Path, "index.html"), buf.Bytes()); err != nil {
			return nil, fmt.Errorf("write page %s: %w", pg.Path, err)
		}
		paths = append(paths, pg.Path)
	}
	return paths, nil
}

// writeRobots writes robots.txt from the rules plugins contribute, unless a
// plugin or the static folder already provided one.
func (s *Site) writeRobots(api *plugin.API) error {
	if api.FileExists("robots.txt") {
		return nil
	}
	var rules plugin.RobotsRules
	for _, r := range s.plugins {
		if h, ok := r.Plugin.(plugin.Robots); ok {
			got := h.Robots(api.For(r.ID))
			rules.Disallow = append(rules.Disallow, got.Disallow...)
			rules.Sitemaps = append(rules.Sitemaps, got.Sitemaps...)
		}
	}

	var b strings.Builder
	b.WriteString("User-agent: *\nAllow: /\n")
	for _, p := range rules.Disallow {
		fmt.Fprintf(&b, "Disallow: %s\n", p)
	}
	if len(rules.Sitemaps) > 0 {
		b.WriteString("\n")
	}
	for _, u := range rules.Sitemaps {
		fmt.Fprintf(&b, "Sitemap: %s\n", u)
	}
	return api.WriteFile("robots.txt", []byte(b.String()))
}

// checkOutDir resolves dir, refusing anything that would also replace the
// project itself.
func checkOutDir(root, dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", errors.New("output directory is required")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if rel, err := filepath.Rel(absDir, absRoot); err == nil && !strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("output directory %s contains the project root", dir)
	}
	return absDir, nil
}

// stageDir creates an empty hidden sibling of out for one build. Keeping it
// on the same filesystem lets swapOutDir rename it into place.
func stageDir(out string) (string, error) {
	parent := filepath.Dir(out)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", fmt.Errorf("create output parent: %w", err)
	}
	dir, err := os.MkdirTemp(parent, "."+filepath.Base(out)+"-build-*")
	if err != nil {
		return "", fmt.Errorf("create build directory: %w", err)
	}
	return dir, os.Chmod(dir, 0o755)
}

// swapOutDir replaces out with the finished build in staging. Readers
// holding outMu see either the old tree or the new one.
func (s *Site) swapOutDir(staging, out string) error {
	s.outMu.Lock()
	defer s.outMu.Unlock()

	old := staging + "-old"
	hadOld := true
	if err := os.Rename(out, old); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("move previous output aside: %w", err)
		}
		hadOld = false
	}
	if err := os.Rename(staging, out); err != nil {
		if hadOld {
			_ = os.Rename(old, out)
		}
		return fmt.Errorf("move build into place: %w", err)
	}
	if hadOld {
		if err := os.RemoveAll(old); err != nil {
			return fmt.Errorf("remove previous output: %w", err)
		}
	}
	return nil
}

// copyDir copies the tree under src into dst. A missing src is not an error.
func copyDir(src, dst string) error {
	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(p, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
