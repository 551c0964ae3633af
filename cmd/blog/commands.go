package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/johntipper/blog"
	"github.com/johntipper/blog/config"
	"github.com/johntipper/blog/deploy"
	"github.com/johntipper/blog/logging"
	"github.com/johntipper/blog/metrics"
	"github.com/johntipper/blog/plugins/netlifycms"
	"github.com/johntipper/blog/scaffold"

	prom "github.com/prometheus/client_golang/prometheus"
)

// CLI is the command tree.
type CLI struct {
	Globals

	Build    BuildCmd    `cmd:"" help:"Build the site into the output directory."`
	Serve    ServeCmd    `cmd:"" help:"Build and serve the site, rebuilding when content changes."`
	Validate ValidateCmd `cmd:"" help:"Check the site configuration and every plugin's options."`
	Convert  ConvertCmd  `cmd:"" help:"Rewrite the site configuration in another format."`
	New      NewCmd      `cmd:"" help:"Create a new project."`
	Plan     PlanCmd     `cmd:"" help:"Print the deployment plan as YAML."`
	Version  VersionCmd  `cmd:"" help:"Print the version."`
}

// Globals are flags shared by every command.
type Globals struct {
	Config string `short:"c" help:"Site configuration file (.yaml, .yml, .toml or .json)." default:"config.yaml" env:"BLOG_CONFIG"`
	Root   string `help:"Project directory content paths are resolved against. Defaults to the directory holding the configuration file."`
	Debug  bool   `help:"Enable debug logging." env:"BLOG_DEBUG"`

	Stdout io.Writer `kong:"-"`
	Stderr io.Writer `kong:"-"`
}

func (g *Globals) stdout() io.Writer {
	if g.Stdout != nil {
		return g.Stdout
	}
	return os.Stdout
}

func (g *Globals) logger() zerolog.Logger {
	if g.Stderr != nil {
		return logging.New(g.Stderr, g.Debug)
	}
	return logging.Setup(g.Debug)
}

func (g *Globals) root() string {
	if g.Root != "" {
		return g.Root
	}
	return filepath.Dir(g.Config)
}

// loadSite reads the configuration and resolves its plugins.
func (g *Globals) loadSite(logger zerolog.Logger, opts ...blog.Option) (*blog.Site, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	opts = append([]blog.Option{blog.WithRoot(g.root()), blog.WithLogger(logger)}, opts...)
	return blog.New(cfg, opts...)
}

// outPath resolves out against the project root unless it is absolute.
func (g *Globals) outPath(out string) string {
	if filepath.IsAbs(out) {
		return out
	}
	return filepath.Join(g.root(), out)
}

// BuildCmd renders the site once.
type BuildCmd struct {
	Out string `short:"o" help:"Output directory, relative to the project root." default:"public"`
}

func (c *BuildCmd) Run(g *Globals) error {
	logger := g.logger()
	site, err := g.loadSite(logger)
	if err != nil {
		return err
	}
	defer site.Close()

	res, err := site.Build(context.Background(), g.outPath(c.Out))
	if err != nil {
		return err
	}
	fmt.Fprintf(g.stdout(), "Built %d pages into %s in %s\n", len(res.Pages), res.OutDir, res.Duration.Round(time.Millisecond))
	return nil
}

// ServeCmd builds the site and serves it.
type ServeCmd struct {
	Listen        string        `short:"l" help:"Listen address." default:":8000" env:"BLOG_LISTEN"`
	Out           string        `short:"o" help:"Output directory, relative to the project root." default:"public"`
	Watch         bool          `help:"Rebuild when content changes." default:"true" negatable:""`
	Debounce      time.Duration `help:"Quiet period before a change triggers a rebuild." default:"300ms"`
	Metrics       bool          `help:"Expose Prometheus metrics on /metrics." default:"true" negatable:""`
	AdminPassword string        `help:"Editor login password." env:"CMS_ADMIN_PASSWORD"`
	SessionSecret string        `help:"Editor session signing secret." env:"CMS_SESSION_SECRET"`
}

// env lets the editor credentials given as flags take precedence over the
// process environment.
func (c *ServeCmd) env(key string) (string, bool) {
	switch key {
	case netlifycms.EnvAdminPassword:
		if c.AdminPassword != "" {
			return c.AdminPassword, true
		}
	case netlifycms.EnvSessionSecret:
		if c.SessionSecret != "" {
			return c.SessionSecret, true
		}
	}
	return os.LookupEnv(key)
}

func (c *ServeCmd) Run(g *Globals) error {
	logger := g.logger()
	opts := []blog.Option{blog.WithEnv(c.env)}
	if c.Metrics {
		opts = append(opts, blog.WithMetrics(metrics.NewRecorder(prom.NewRegistry())))
	}
	site, err := g.loadSite(logger, opts...)
	if err != nil {
		return err
	}
	defer site.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return site.Serve(ctx, blog.ServeConfig{
		Addr:     c.Listen,
		OutDir:   g.outPath(c.Out),
		Debounce: c.Debounce,
		Watch:    c.Watch,
	})
}

// ValidateCmd loads the configuration and resolves every plugin without building.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(g *Globals) error {
	site, err := g.loadSite(g.logger())
	if err != nil {
		return err
	}
	defer site.Close()

	w := g.stdout()
	fmt.Fprintf(w, "%s: OK\n", g.Config)
	for _, r := range site.Plugins() {
		fmt.Fprintf(w, "  %d. %s %s\n", r.Index+1, r.ID, r.Plugin.Metadata())
	}
	return nil
}

// ConvertCmd re-encodes the site configuration, e.g. a TOML file into YAML.
type ConvertCmd struct {
	Out   string `arg:"" help:"Target file; the extension picks the format (.yaml, .yml or .json)."`
	Force bool   `help:"Overwrite an existing target file."`
}

func (c *ConvertCmd) Run(g *Globals) error {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return err
	}
	if err := config.Write(cfg, c.Out, c.Force); err != nil {
		return err
	}
	fmt.Fprintf(g.stdout(), "wrote %s\n", c.Out)
	return nil
}

// NewCmd scaffolds a project.
type NewCmd struct {
	Name    string `arg:"" help:"Project directory to create."`
	SiteURL string `name:"site-url" help:"Canonical URL of the new site." default:"https://example.com"`
	Author  string `help:"Name of the first author." default:"Anonymous"`
}

func (c *NewCmd) Run(g *Globals) error {
	name := filepath.Base(filepath.Clean(c.Name))
	files, err := scaffold.Create(c.Name, scaffold.NewData(name, c.SiteURL, c.Author))
	if err != nil {
		return err
	}

	w := g.stdout()
	fmt.Fprintf(w, "Creating new blog project: %s\n\n", c.Name)
	for _, f := range files {
		fmt.Fprintf(w, "  created %s\n", filepath.Join(c.Name, f))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Done! Next steps:")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  cd %s\n", c.Name)
	fmt.Fprintln(w, "  cp .env.example .env")
	fmt.Fprintln(w, "  blog serve")
	return nil
}

// PlanCmd prints the infrastructure needed to host the built site.
type PlanCmd struct {
	DomainName     string `name:"domain-name" help:"Apex domain of the website." env:"BLOG_DOMAIN_NAME" required:""`
	APILambdaPath  string `name:"api-lambda-path" help:"Path to the API lambda bundle." env:"BLOG_API_LAMBDA_PATH" required:""`
	WebAssets      string `name:"web-assets" help:"Directory holding the built site." default:"public"`
	TargetAccount  string `name:"target-account" help:"AWS target account." env:"BLOG_TARGET_ACCOUNT" required:""`
	Region         string `help:"AWS region of the web stack." env:"AWS_REGION" required:""`
	EdgeLambdaPath string `name:"edge-lambda-path" help:"Path to the edge rewrite function bundle."`
	IncludeAPI     bool   `name:"include-api" help:"Route api/* to the API lambda."`
}

func (c *PlanCmd) Run(g *Globals) error {
	d, err := deploy.Plan(deploy.Config{
		DomainName:     c.DomainName,
		APILambdaPath:  c.APILambdaPath,
		WebAssets:      c.WebAssets,
		TargetAccount:  c.TargetAccount,
		Region:         c.Region,
		EdgeLambdaPath: c.EdgeLambdaPath,
		IncludeAPI:     c.IncludeAPI,
	})
	if err != nil {
		return err
	}
	out, err := d.YAML()
	if err != nil {
		return err
	}
	_, err = g.stdout().Write(out)
	return err
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	fmt.Fprintf(g.stdout(), "blog %s\n", version)
	return nil
}
