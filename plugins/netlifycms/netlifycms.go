// Package netlifycms is the content editor: it publishes an editor entry
// point with the build and, when the site is served, mounts a password
// protected dashboard that writes articles into the theme's content tree.
package netlifycms

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/johntipper/blog/plugin"
	"github.com/johntipper/blog/views"
)

// Plugin is the content editor.
type Plugin struct {
	opts Options

	mu      sync.Mutex
	store   *Store
	limiter *LoginLimiter
}

// New is the plugin factory.
func New(raw plugin.Options) (plugin.Plugin, error) {
	var opts Options
	if err := raw.Decode(&opts); err != nil {
		return nil, err
	}
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Plugin{opts: opts}, nil
}

// Metadata implements plugin.Plugin.
func (p *Plugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        "netlify-cms",
		Version:     "v1.0.0",
		Kind:        plugin.KindEditor,
		Description: "Browser based editor for articles",
	}
}

// Options returns the resolved options.
func (p *Plugin) Options() Options {
	return p.opts
}

// contentPaths returns the theme's posts and authors directories, relative
// to the project root.
func contentPaths(api *plugin.API) (posts, authors string, ok bool) {
	for _, r := range api.Plugins() {
		if cp, isTheme := r.Plugin.(plugin.ContentPaths); isTheme {
			posts, authors = cp.ContentPaths()
			return posts, authors, true
		}
	}
	return "", "", false
}

// PostBuild writes the editor configuration, the static entry page and the
// media folder.
func (p *Plugin) PostBuild(ctx context.Context, api *plugin.API) error {
	posts, authors, _ := contentPaths(api)
	cfg, err := NewCMSConfig(p.opts, filepath.ToSlash(posts), filepath.ToSlash(authors)).Marshal()
	if err != nil {
		return fmt.Errorf("encode config.yml: %w", err)
	}
	if err := api.WriteFile(path.Join(p.opts.PublicPath, "config.yml"), cfg); err != nil {
		return err
	}

	var shell bytes.Buffer
	data := views.EditorData{Title: p.opts.HTMLTitle, BasePath: p.opts.basePath(), AllowRobots: p.opts.IncludeRobots}
	if err := views.EditorShell(data).Render(ctx, &shell); err != nil {
		return err
	}
	if err := api.WriteFile(path.Join(p.opts.PublicPath, "index.html"), shell.Bytes()); err != nil {
		return err
	}
	return p.copyMedia(api)
}

// Robots implements plugin.Robots. The editor is never crawled.
func (p *Plugin) Robots(*plugin.API) plugin.RobotsRules {
	return plugin.RobotsRules{Disallow: []string{p.opts.basePath()}}
}

func (p *Plugin) copyMedia(api *plugin.API) error {
	dir := api.Path(p.opts.MediaFolder)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		if err := api.WriteFile(path.Join(p.opts.PublicFolder, e.Name()), data); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the editor database and limiter.
func (p *Plugin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.limiter != nil {
		p.limiter.Stop()
		p.limiter = nil
	}
	if p.store != nil {
		err := p.store.Close()
		p.store = nil
		return err
	}
	return nil
}

const loginWindow = 15 * time.Minute
