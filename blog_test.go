package blog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johntipper/blog/config"
	"github.com/johntipper/blog/metrics"
	"github.com/johntipper/blog/plugin"
	"github.com/johntipper/blog/plugins/netlifycms"

	prom "github.com/prometheus/client_golang/prometheus"
)

const authorsYAML = `authors:
  - name: John Tipper
    bio: Cloud and DevOps.
    featured: true
`

const firstPost = `---
title: First Post
author: John Tipper
date: 2020-05-01
---

Hello from the first post.
`

// typoPost names an author missing from authors.yml, which fails sourcing.
var typoPost = strings.NewReplacer("First Post", "Typo Post", "author: John Tipper", "author: Jon Tipper").Replace(firstPost)

func writeFile(t *testing.T, root, rel string, data []byte) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))
}

func pngBytes(t *testing.T, size int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for x := 0; x < size; x++ {
		for y := 0; y < size; y++ {
			img.Set(x, y, color.NRGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// newProject lays out a project matching config.Default().
func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "content/posts/first.md", []byte(firstPost))
	writeFile(t, root, "content/authors/authors.yml", []byte(authorsYAML))
	writeFile(t, root, "src/assets/favicon.png", pngBytes(t, 64))
	writeFile(t, root, "static/humans.txt", []byte("John Tipper\n"))
	return root
}

var cmsEnv = map[string]string{
	netlifycms.EnvAdminPassword: "secret",
	netlifycms.EnvSessionSecret: "0123456789abcdef0123456789abcdef",
}

func envFrom(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func newSite(t *testing.T, root string, opts ...Option) *Site {
	t.Helper()
	opts = append([]Option{WithRoot(root), WithLogger(zerolog.Nop()), WithEnv(envFrom(cmsEnv))}, opts...)
	s, err := New(config.Default(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func readOut(t *testing.T, out, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(out, filepath.FromSlash(rel)))
	require.NoError(t, err, rel)
	return string(data)
}

func TestNewResolvesDefaultPlugins(t *testing.T) {
	s := newSite(t, t.TempDir())
	ids := make([]string, 0, len(s.Plugins()))
	for _, r := range s.Plugins() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{
		config.PluginSitemap,
		config.PluginNovela,
		config.PluginManifest,
		config.PluginNetlifyCMS,
	}, ids)
}

func TestNewRejectsUnknownPlugin(t *testing.T) {
	cfg := config.Default()
	cfg.Plugins = append(cfg.Plugins, config.Bare("gatsby-plugin-offline"))
	_, err := New(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, plugin.ErrUnresolved)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.SiteMetadata.SiteURL = "not a url"
	_, err := New(cfg)
	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestNewRejectsBadPluginOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Plugins[0] = config.Activate(config.PluginSitemap, map[string]any{"output": "/sitemap.txt"})
	_, err := New(cfg)
	var perr *plugin.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, config.PluginSitemap, perr.Plugin)
	assert.Equal(t, plugin.StageOptions, perr.Stage)
}

func TestBuild(t *testing.T) {
	root := newProject(t)
	reg := prom.NewRegistry()
	s := newSite(t, root, WithMetrics(metrics.NewRecorder(reg)))
	out := filepath.Join(root, "public")

	res, err := s.Build(context.Background(), out)
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.Contains(t, res.Pages, "/")
	assert.Contains(t, res.Pages, "/first-post/")
	assert.Contains(t, res.Pages, "/404/")

	home := readOut(t, out, "index.html")
	assert.Contains(t, home, "First Post")
	assert.Contains(t, home, `<link rel="manifest" href="/manifest.webmanifest"`, "head components reach every page")

	assert.Contains(t, readOut(t, out, "first-post/index.html"), "Hello from the first post.")
	assert.Contains(t, readOut(t, out, "sitemap.xml"), "<loc>https://johntipper.org/first-post/</loc>")
	assert.Contains(t, readOut(t, out, "rss.xml"), "<title>First Post</title>")
	assert.Contains(t, readOut(t, out, "manifest.webmanifest"), `"name": "Novela by Narative"`)
	assert.Contains(t, readOut(t, out, "admin/config.yml"), "collections:")
	assert.Contains(t, readOut(t, out, "admin/index.html"), "Content Manager")
	assert.Equal(t, "John Tipper\n", readOut(t, out, "humans.txt"))
	assert.FileExists(t, filepath.Join(out, "icons", "icon-48x48.png"))
	assert.FileExists(t, filepath.Join(out, "favicon-32x32.png"))

	robots := readOut(t, out, "robots.txt")
	assert.Contains(t, robots, "Disallow: /admin/\n")
	assert.Contains(t, robots, "Sitemap: https://johntipper.org/sitemap.xml\n")

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["blog_builds_total"])
	assert.True(t, names["blog_pages_rendered_total"])
}

func TestBuildReplacesPreviousOutput(t *testing.T) {
	root := newProject(t)
	s := newSite(t, root)
	out := filepath.Join(root, "public")
	writeFile(t, out, "stale.html", []byte("old"))

	_, err := s.Build(context.Background(), out)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(out, "stale.html"))
}

func TestBuildKeepsStaticRobots(t *testing.T) {
	root := newProject(t)
	writeFile(t, root, "static/robots.txt", []byte("User-agent: *\nDisallow: /\n"))
	s := newSite(t, root)
	out := filepath.Join(root, "public")

	_, err := s.Build(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, "User-agent: *\nDisallow: /\n", readOut(t, out, "robots.txt"))
}

type extraRobots struct{}

func (extraRobots) Metadata() plugin.Metadata {
	return plugin.Metadata{Name: "extra-robots", Version: "v0.0.1", Kind: plugin.KindOutput}
}

func (extraRobots) Robots(*plugin.API) plugin.RobotsRules {
	return plugin.RobotsRules{Disallow: []string{"/drafts/"}, Sitemaps: []string{"https://johntipper.org/news.xml"}}
}

func TestBuildCollectsRobotsRules(t *testing.T) {
	root := newProject(t)
	reg := DefaultRegistry()
	require.NoError(t, reg.Register("extra-robots", func(plugin.Options) (plugin.Plugin, error) {
		return extraRobots{}, nil
	}))
	cfg := config.Default()
	cfg.Plugins = append(cfg.Plugins, config.PluginActivation{Resolve: "extra-robots"})
	s, err := New(cfg, WithRoot(root), WithLogger(zerolog.Nop()), WithEnv(envFrom(cmsEnv)), WithRegistry(reg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	out := filepath.Join(root, "public")

	_, err = s.Build(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, "User-agent: *\nAllow: /\nDisallow: /admin/\nDisallow: /drafts/\n\n"+
		"Sitemap: https://johntipper.org/sitemap.xml\nSitemap: https://johntipper.org/news.xml\n",
		readOut(t, out, "robots.txt"))
}

func TestBuildWrapsPluginErrors(t *testing.T) {
	root := newProject(t)
	require.NoError(t, os.Remove(filepath.Join(root, "src", "assets", "favicon.png")))
	s := newSite(t, root)

	_, err := s.Build(context.Background(), filepath.Join(root, "public"))
	var perr *plugin.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, config.PluginManifest, perr.Plugin)
	assert.Equal(t, plugin.StagePostBuild, perr.Stage)
}

func TestBuildMissingPostsDirectory(t *testing.T) {
	root := t.TempDir()
	s := newSite(t, root)

	_, err := s.Build(context.Background(), filepath.Join(root, "public"))
	var perr *plugin.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, config.PluginNovela, perr.Plugin)
	assert.Equal(t, plugin.StageSourceNodes, perr.Stage)
}

func TestFailedBuildKeepsPreviousOutput(t *testing.T) {
	root := newProject(t)
	s := newSite(t, root)
	out := filepath.Join(root, "public")
	_, err := s.Build(context.Background(), out)
	require.NoError(t, err)

	writeFile(t, root, "content/posts/typo.md", []byte(typoPost))
	_, err = s.Build(context.Background(), out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Jon Tipper")

	assert.Contains(t, readOut(t, out, "first-post/index.html"), "Hello from the first post.")
	leftovers, err := filepath.Glob(filepath.Join(root, ".public-build-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestBuildRefusesProjectRoot(t *testing.T) {
	root := newProject(t)
	s := newSite(t, root)

	_, err := s.Build(context.Background(), root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contains the project root")
	assert.FileExists(t, filepath.Join(root, "content", "posts", "first.md"))

	_, err = s.Build(context.Background(), "")
	assert.Error(t, err)
}

func TestBuildCancelled(t *testing.T) {
	root := newProject(t)
	s := newSite(t, root)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Build(ctx, filepath.Join(root, "public"))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDebouncerCoalesces(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)
	defer d.stop()
	for i := 0; i < 10; i++ {
		d.trigger()
	}

	select {
	case <-d.C:
	case <-time.After(time.Second):
		t.Fatal("no signal after quiet period")
	}
	select {
	case <-d.C:
		t.Fatal("burst produced more than one signal")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestIgnoreEvent(t *testing.T) {
	assert.True(t, ignoreEvent("/x/.first.md.swp"))
	assert.True(t, ignoreEvent("/x/first.md~"))
	assert.True(t, ignoreEvent("/x/#first.md#"))
	assert.False(t, ignoreEvent("/x/first.md"))
}

func TestWatchDirs(t *testing.T) {
	s := newSite(t, "/site")
	assert.Equal(t, []string{
		filepath.Join("/site", "static"),
		filepath.Join("/site", "content/posts"),
		filepath.Join("/site", "content/authors"),
	}, s.watchDirs())
}

type serverHarness struct {
	root string
	srv  *server
	ts   *httptest.Server
	http *http.Client
}

func newServerHarness(t *testing.T, opts ...Option) *serverHarness {
	t.Helper()
	root := newProject(t)
	s := newSite(t, root, opts...)
	srv, err := s.newServer(context.Background(), ServeConfig{OutDir: filepath.Join(root, "public")})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.echo)
	t.Cleanup(ts.Close)
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	return &serverHarness{root: root, srv: srv, ts: ts, http: client}
}

func (h *serverHarness) get(t *testing.T, p string) (*http.Response, string) {
	t.Helper()
	resp, err := h.http.Get(h.ts.URL + p)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestServeStaticOutput(t *testing.T) {
	h := newServerHarness(t)

	resp, body := h.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "First Post")
	assert.Equal(t, "public, max-age=300", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))

	resp, _ = h.get(t, "/first-post")
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, "/first-post/", resp.Header.Get("Location"))

	resp, body = h.get(t, "/first-post/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Hello from the first post.")

	resp, body = h.get(t, "/sitemap.xml")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<urlset")

	resp, body = h.get(t, "/missing/")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Page not found")

	resp, _ = h.get(t, "/../../etc/passwd")
	assert.NotEqual(t, http.StatusOK, resp.StatusCode)
}

func TestServeHelloAPI(t *testing.T) {
	h := newServerHarness(t)

	resp, body := h.get(t, "/api/hello")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var hello HelloResponse
	require.NoError(t, json.Unmarshal([]byte(body), &hello))
	assert.Equal(t, "Hello World!", hello.Message)
}

func TestServeMetrics(t *testing.T) {
	h := newServerHarness(t, WithMetrics(metrics.NewRecorder(prom.NewRegistry())))

	resp, body := h.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "blog_builds_total")
}

func TestServeMountsEditor(t *testing.T) {
	h := newServerHarness(t)

	resp, body := h.get(t, "/admin/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `action="/admin/login/"`)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
}

func TestServeRequiresEditorCredentials(t *testing.T) {
	root := newProject(t)
	s := newSite(t, root, WithEnv(envFrom(nil)))

	_, err := s.Server(context.Background(), ServeConfig{OutDir: filepath.Join(root, "public")})
	var perr *plugin.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, plugin.StageRoutes, perr.Stage)
	assert.Contains(t, err.Error(), netlifycms.EnvAdminPassword)
}

func TestServeKeepsSiteWhenRebuildFails(t *testing.T) {
	h := newServerHarness(t)
	writeFile(t, h.root, "content/posts/typo.md", []byte(typoPost))

	require.Error(t, h.srv.rebuild(context.Background()))

	resp, body := h.get(t, "/first-post/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Hello from the first post.")
	resp, _ = h.get(t, "/sitemap.xml")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServeRebuild(t *testing.T) {
	h := newServerHarness(t)
	writeFile(t, h.root, "content/posts/second.md", []byte(strings.Replace(firstPost, "First Post", "Second Post", 1)))

	require.NoError(t, h.srv.rebuild(context.Background()))

	resp, body := h.get(t, "/second-post/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Second Post")
}
