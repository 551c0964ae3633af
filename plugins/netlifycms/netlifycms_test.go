package netlifycms

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johntipper/blog/config"
	"github.com/johntipper/blog/imaging"
	"github.com/johntipper/blog/plugin"
	"github.com/johntipper/blog/plugins/novela"
)

func newPlugin(t *testing.T, opts plugin.Options) *Plugin {
	t.Helper()
	p, err := New(opts)
	require.NoError(t, err)
	return p.(*Plugin)
}

type harness struct {
	root       string
	api        *plugin.API
	cms        *Plugin
	rebuilds   int
	rebuildErr error
}

func newHarness(t *testing.T, opts plugin.Options, env map[string]string) *harness {
	t.Helper()
	theme, err := novela.New(nil)
	require.NoError(t, err)
	h := &harness{root: t.TempDir(), cms: newPlugin(t, opts)}
	t.Cleanup(func() { h.cms.Close() })
	h.write(t, "content/authors/authors.yml", "- name: John Tipper\n  bio: Writes things.\n")

	resolved := []plugin.Resolved{
		{ID: config.PluginNovela, Index: 0, Plugin: theme},
		{ID: config.PluginNetlifyCMS, Index: 1, Plugin: h.cms},
	}
	h.api = plugin.NewAPI(config.Default().SiteMetadata, h.root, filepath.Join(h.root, "public"), zerolog.Nop(), resolved,
		func(context.Context) error {
			h.rebuilds++
			return h.rebuildErr
		})
	h.api.SetEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	h.api = h.api.For(config.PluginNetlifyCMS)
	return h
}

func (h *harness) write(t *testing.T, rel, content string) {
	t.Helper()
	file := filepath.Join(h.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755))
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))
}

var credentials = map[string]string{
	EnvAdminPassword: "correct horse",
	EnvSessionSecret: "0123456789abcdef0123456789abcdef",
}

func TestDefaults(t *testing.T) {
	opts := newPlugin(t, nil).Options()
	assert.Equal(t, "admin", opts.PublicPath)
	assert.Equal(t, "Content Manager", opts.HTMLTitle)
	assert.False(t, opts.IncludeRobots)
	assert.Equal(t, BackendLocal, opts.Backend)
	assert.Equal(t, "data/cms.db", opts.DatabasePath)
	assert.Equal(t, "/admin/", opts.basePath())
	assert.Equal(t, plugin.KindEditor, newPlugin(t, nil).Metadata().Kind)

	opts = newPlugin(t, plugin.Options{"publicPath": "/cms/"}).Options()
	assert.Equal(t, "cms", opts.PublicPath)
}

func TestInvalidOptions(t *testing.T) {
	for name, opts := range map[string]plugin.Options{
		"root public path": {"publicPath": "/"},
		"unknown backend":  {"backend": "s3"},
		"escaping db":      {"databasePath": "../cms.db"},
		"bad attempts":     {"loginAttempts": -2},
	} {
		_, err := New(opts)
		assert.Error(t, err, name)
	}
}

func TestCMSConfig(t *testing.T) {
	local := NewCMSConfig(testOptions(BackendLocal), "content/posts", "content/authors")
	assert.Equal(t, "proxy", local.Backend.Name)
	assert.True(t, local.LocalBackend)
	require.Len(t, local.Collections, 2)
	assert.Equal(t, "content/posts", local.Collections[0].Folder)
	assert.Equal(t, "content/authors/authors.yml", local.Collections[1].Files[0].File)

	gitCfg := NewCMSConfig(testOptions(BackendGit), "content/posts", "")
	assert.Equal(t, CMSBackend{Name: "git-gateway", Branch: "main"}, gitCfg.Backend)
	assert.False(t, gitCfg.LocalBackend)
	assert.Len(t, gitCfg.Collections, 1)

	data, err := local.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "media_folder: static/uploads")
	assert.Contains(t, string(data), "public_folder: /uploads")
}

func TestPostBuild(t *testing.T) {
	h := newHarness(t, nil, nil)
	require.NoError(t, os.MkdirAll(filepath.Join(h.root, "static", "uploads"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(h.root, "static", "uploads", "cat.jpg"), []byte("jpeg"), 0o644))

	require.NoError(t, h.cms.PostBuild(context.Background(), h.api))

	cfg, err := os.ReadFile(filepath.Join(h.api.OutDir(), "admin", "config.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(cfg), "folder: content/posts")

	shell, err := os.ReadFile(filepath.Join(h.api.OutDir(), "admin", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(shell), "<title>Content Manager</title>")
	assert.Contains(t, string(shell), `content="noindex"`)

	media, err := os.ReadFile(filepath.Join(h.api.OutDir(), "uploads", "cat.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(media))
}

func TestPostBuildIncludeRobots(t *testing.T) {
	h := newHarness(t, plugin.Options{"includeRobots": true, "htmlTitle": "Editor"}, nil)
	require.NoError(t, h.cms.PostBuild(context.Background(), h.api))
	shell, err := os.ReadFile(filepath.Join(h.api.OutDir(), "admin", "index.html"))
	require.NoError(t, err)
	assert.NotContains(t, string(shell), "noindex")
	assert.Contains(t, string(shell), "<title>Editor</title>")
}

func TestRobots(t *testing.T) {
	rules := newPlugin(t, plugin.Options{"publicPath": "cms"}).Robots(nil)
	assert.Equal(t, []string{"/cms/"}, rules.Disallow)
	assert.Empty(t, rules.Sitemaps)
}

func TestRegisterRoutesRequiresCredentials(t *testing.T) {
	h := newHarness(t, nil, map[string]string{EnvSessionSecret: "s"})
	err := h.cms.RegisterRoutes(echo.New(), h.api)
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvAdminPassword)

	h = newHarness(t, nil, map[string]string{EnvAdminPassword: "p"})
	err = h.cms.RegisterRoutes(echo.New(), h.api)
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvSessionSecret)
}

var csrfField = regexp.MustCompile(`name="_csrf" value="([^"]+)"`)

type client struct {
	t    *testing.T
	base string
	http *http.Client
}

func newClient(t *testing.T, h *harness) *client {
	t.Helper()
	e := echo.New()
	require.NoError(t, h.cms.RegisterRoutes(e, h.api))
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{t: t, base: srv.URL, http: &http.Client{Jar: jar}}
}

func (c *client) get(p string) (int, string) {
	c.t.Helper()
	resp, err := c.http.Get(c.base + p)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp.StatusCode, string(body)
}

func (c *client) token() string {
	c.t.Helper()
	_, body := c.get("/admin/")
	m := csrfField.FindStringSubmatch(body)
	require.Len(c.t, m, 2, "csrf token in page")
	return m[1]
}

func (c *client) post(p string, form url.Values) (int, string) {
	c.t.Helper()
	form.Set("_csrf", c.token())
	resp, err := c.http.PostForm(c.base+p, form)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp.StatusCode, string(body)
}

func (c *client) login() {
	c.t.Helper()
	status, body := c.post("/admin/login/", url.Values{"password": {credentials[EnvAdminPassword]}})
	require.Equal(c.t, http.StatusOK, status)
	require.Contains(c.t, body, "Log out")
}

func TestLogin(t *testing.T) {
	h := newHarness(t, plugin.Options{"loginAttempts": 2}, credentials)
	c := newClient(t, h)

	status, body := c.get("/admin/")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `action="/admin/login/"`)

	status, body = c.post("/admin/login/", url.Values{"password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Contains(t, body, "Invalid password.")

	c.login()
	status, _ = c.post("/admin/logout/", url.Values{})
	assert.Equal(t, http.StatusOK, status)
	_, body = c.get("/admin/")
	assert.Contains(t, body, `action="/admin/login/"`)
}

func TestLoginRateLimited(t *testing.T) {
	h := newHarness(t, plugin.Options{"loginAttempts": 1}, credentials)
	c := newClient(t, h)

	status, _ := c.post("/admin/login/", url.Values{"password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = c.post("/admin/login/", url.Values{"password": {credentials[EnvAdminPassword]}})
	assert.Equal(t, http.StatusTooManyRequests, status)
}

func TestCSRFRequired(t *testing.T) {
	h := newHarness(t, nil, credentials)
	c := newClient(t, h)
	resp, err := c.http.PostForm(c.base+"/admin/login/", url.Values{"password": {credentials[EnvAdminPassword]}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestProtectedRoutesRedirect(t *testing.T) {
	h := newHarness(t, nil, credentials)
	c := newClient(t, h)
	c.http.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	status, body := c.post("/admin/save/", url.Values{"title": {"X"}})
	assert.Equal(t, http.StatusSeeOther, status, body)
	_, err := os.Stat(filepath.Join(h.root, "content", "posts", "x.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestConfigRoute(t *testing.T) {
	h := newHarness(t, nil, credentials)
	c := newClient(t, h)
	status, body := c.get("/admin/config.yml")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "folder: content/posts")
}

func TestPublishFlow(t *testing.T) {
	h := newHarness(t, nil, credentials)
	c := newClient(t, h)
	c.login()
	published := filepath.Join(h.root, "content", "posts", "hello-world.md")

	status, body := c.post("/admin/save/", url.Values{
		"title": {"Hello World"},
		"date":  {"2024-02-03"},
		"tags":  {"Go, AWS"},
		"body":  {"Draft body"},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Draft saved.")
	assert.Contains(t, body, `href="/admin/entries/hello-world/"`)
	_, err := os.Stat(published)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 0, h.rebuilds)

	status, body = c.post("/admin/save/", url.Values{
		"title":     {"Hello World"},
		"date":      {"2024-02-03"},
		"author":    {"John Tipper"},
		"body":      {"Published **body**"},
		"published": {"1"},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Published.")
	data, err := os.ReadFile(published)
	require.NoError(t, err)
	assert.Contains(t, string(data), "title: Hello World")
	assert.Contains(t, string(data), "Published **body**")
	assert.Equal(t, 1, h.rebuilds)

	status, body = c.get("/admin/entries/hello-world/")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "<strong>body</strong>")

	status, body = c.post("/admin/save/", url.Values{"title": {"Hello World"}, "date": {"2024-02-03"}, "body": {"x"}})
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Unpublished.")
	_, err = os.Stat(published)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 2, h.rebuilds)

	status, body = c.post("/admin/entries/hello-world/delete/", url.Values{})
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Deleted.")
	assert.Contains(t, body, "No entries yet.")

	status, _ = c.get("/admin/entries/hello-world/")
	assert.Equal(t, http.StatusNotFound, status)
}

func publishForm(author string) url.Values {
	return url.Values{
		"title":     {"Hello World"},
		"date":      {"2024-02-03"},
		"author":    {author},
		"body":      {"Body"},
		"published": {"1"},
	}
}

func TestPublishUnknownAuthor(t *testing.T) {
	h := newHarness(t, nil, credentials)
	c := newClient(t, h)
	c.login()

	status, body := c.post("/admin/save/", publishForm("Nobody"))
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, body, "Cannot publish:")
	assert.Contains(t, body, "unknown author")
	_, err := os.Stat(filepath.Join(h.root, "content", "posts", "hello-world.md"))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 0, h.rebuilds)
	_, err = h.cms.store.GetEntry("hello-world")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPublishTakenPermalink(t *testing.T) {
	h := newHarness(t, nil, credentials)
	h.write(t, "content/posts/hello-world/index.md", "---\ntitle: Hello World\ndate: 2020-01-01\nauthor: John Tipper\n---\n\nOlder.\n")
	c := newClient(t, h)
	c.login()

	status, body := c.post("/admin/save/", publishForm("John Tipper"))
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, body, "already uses the permalink")
	_, err := os.Stat(filepath.Join(h.root, "content", "posts", "hello-world.md"))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 0, h.rebuilds)
}

func TestPublishRevertedWhenRebuildFails(t *testing.T) {
	h := newHarness(t, nil, credentials)
	c := newClient(t, h)
	c.login()
	published := filepath.Join(h.root, "content", "posts", "hello-world.md")

	h.rebuildErr = errors.New("render failed")
	status, body := c.post("/admin/save/", publishForm("John Tipper"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, body, "the change was reverted: render failed")
	_, err := os.Stat(published)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 1, h.rebuilds)

	entry, err := h.cms.store.GetEntry("hello-world")
	require.NoError(t, err)
	assert.False(t, entry.Published)

	h.rebuildErr = nil
	status, _ = c.post("/admin/save/", publishForm("John Tipper"))
	require.Equal(t, http.StatusOK, status)
	before, err := os.ReadFile(published)
	require.NoError(t, err)

	// A failed unpublish puts the file back and keeps the entry live.
	h.rebuildErr = errors.New("render failed")
	status, body = c.post("/admin/entries/hello-world/delete/", url.Values{})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, body, "the change was reverted")
	after, err := os.ReadFile(published)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	entry, err = h.cms.store.GetEntry("hello-world")
	require.NoError(t, err)
	assert.True(t, entry.Published)
}

func TestSaveValidation(t *testing.T) {
	h := newHarness(t, nil, credentials)
	c := newClient(t, h)
	c.login()

	status, body := c.post("/admin/save/", url.Values{"title": {"A"}, "date": {"03/02/2024"}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "Invalid date format")

	status, body = c.post("/admin/save/", url.Values{"title": {"  "}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "Title is required.")
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func (c *client) upload(name string, data []byte) (int, string) {
	c.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(c.t, mw.WriteField("_csrf", c.token()))
	fw, err := mw.CreateFormFile("image", name)
	require.NoError(c.t, err)
	_, err = fw.Write(data)
	require.NoError(c.t, err)
	require.NoError(c.t, mw.Close())

	resp, err := c.http.Post(c.base+"/admin/uploads/", mw.FormDataContentType(), &buf)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp.StatusCode, string(body)
}

func TestUploads(t *testing.T) {
	h := newHarness(t, nil, credentials)
	c := newClient(t, h)
	c.login()

	status, body := c.upload("Holiday Snap.png", pngBytes(t, 1200, 600))
	require.Equal(t, http.StatusOK, status, body)
	assert.Contains(t, body, "Uploaded /uploads/holiday-snap.jpg")
	_, err := os.Stat(filepath.Join(h.root, "static", "uploads", "holiday-snap.jpg"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(h.api.OutDir(), "uploads", "holiday-snap.jpg"))
	require.NoError(t, err)

	status, body = c.upload("Holiday Snap.png", pngBytes(t, 10, 10))
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "holiday-snap-2.jpg")

	status, body = c.upload("notes.png", []byte("not an image"))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "Invalid image")

	status, body = c.post("/admin/uploads/holiday-snap.jpg/delete/", url.Values{})
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Deleted holiday-snap.jpg.")
	_, err = os.Stat(filepath.Join(h.root, "static", "uploads", "holiday-snap.jpg"))
	assert.True(t, os.IsNotExist(err))
	assert.True(t, strings.Contains(body, "holiday-snap-2.jpg"))
}

func TestUploadNameLookupError(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "cms.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	ed := &editor{store: store, mediaDir: t.TempDir()}
	_, err = imaging.UniqueName("a.jpg", ed.uploadExists)
	assert.Error(t, err)
}
