package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/a-h/templ"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johntipper/blog/config"
)

type stubPlugin struct {
	name string
	opts stubOptions
}

type stubOptions struct {
	Path  string `yaml:"path"`
	Count int    `yaml:"count"`
}

func (s *stubPlugin) Metadata() Metadata {
	return Metadata{Name: s.name, Version: "v0.0.1", Kind: KindOutput}
}

func stubFactory(name string) Factory {
	return func(raw Options) (Plugin, error) {
		p := &stubPlugin{name: name}
		if err := raw.Decode(&p.opts); err != nil {
			return nil, err
		}
		if p.opts.Count < 0 {
			return nil, errors.New("count must not be negative")
		}
		return p, nil
	}
}

func newRegistry(t *testing.T, ids ...string) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, id := range ids {
		require.NoError(t, r.Register(id, stubFactory(id)))
	}
	return r
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a", stubFactory("a")))
	assert.Error(t, r.Register("a", stubFactory("a")))
	assert.Error(t, r.Register(" ", stubFactory("blank")))
	assert.Error(t, r.Register("b", nil))

	_, ok := r.Lookup("a")
	assert.True(t, ok)
	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}

func TestRegistryIDsSorted(t *testing.T) {
	r := newRegistry(t, "zeta", "alpha", "mid")
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.IDs())
}

func TestResolvePreservesOrder(t *testing.T) {
	r := newRegistry(t, "first", "second", "third")
	resolved, err := r.Resolve([]config.PluginActivation{
		config.Bare("third"),
		config.Activate("first", map[string]any{"path": "x"}),
		config.Bare("second"),
	})
	require.NoError(t, err)
	require.Len(t, resolved, 3)

	assert.Equal(t, "third", resolved[0].ID)
	assert.Equal(t, "first", resolved[1].ID)
	assert.Equal(t, "second", resolved[2].ID)
	for i, res := range resolved {
		assert.Equal(t, i, res.Index)
	}
	assert.Equal(t, "x", resolved[1].Plugin.(*stubPlugin).opts.Path)
}

func TestResolveUnknown(t *testing.T) {
	r := newRegistry(t, "known")
	_, err := r.Resolve([]config.PluginActivation{config.Bare("known"), config.Bare("gatsby-plugin-missing")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnresolved)
	assert.Contains(t, err.Error(), "gatsby-plugin-missing")
}

func TestResolveDuplicate(t *testing.T) {
	r := newRegistry(t, "known")
	_, err := r.Resolve([]config.PluginActivation{config.Bare("known"), config.Bare("known")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestResolveOptionError(t *testing.T) {
	r := newRegistry(t, "known")
	_, err := r.Resolve([]config.PluginActivation{config.Activate("known", map[string]any{"count": -1})})
	require.Error(t, err)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "known", perr.Plugin)
	assert.Equal(t, StageOptions, perr.Stage)
	assert.Contains(t, err.Error(), "count must not be negative")
}

func TestOptionsDecode(t *testing.T) {
	var opts stubOptions
	require.NoError(t, Options{"path": "content/posts", "count": 3, "ignored": true}.Decode(&opts))
	assert.Equal(t, stubOptions{Path: "content/posts", Count: 3}, opts)

	var empty stubOptions
	require.NoError(t, Options(nil).Decode(&empty))
	assert.Equal(t, stubOptions{}, empty)

	assert.Error(t, Options{"count": "many"}.Decode(&opts))
}

func TestMetadataString(t *testing.T) {
	m := Metadata{Name: "sitemap", Version: "v1.0.0", Kind: KindOutput}
	assert.Equal(t, "sitemap@v1.0.0 (output)", m.String())
}

func newTestAPI(t *testing.T) *API {
	t.Helper()
	root := t.TempDir()
	return NewAPI(config.Default().SiteMetadata, root, filepath.Join(root, "public"), zerolog.Nop(), nil, nil)
}

func TestCreatePage(t *testing.T) {
	api := newTestAPI(t)
	theme := api.For("theme")
	other := api.For("other")

	require.NoError(t, theme.CreatePage(Page{Path: "hello", Component: templ.Raw("hi")}))
	require.NoError(t, theme.CreatePage(Page{Path: "/", Component: templ.Raw("home")}))

	err := other.CreatePage(Page{Path: "/hello/", Component: templ.Raw("again")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already created by theme")

	assert.Error(t, theme.CreatePage(Page{Path: "/empty/"}))

	pages := api.Pages()
	require.Len(t, pages, 2)
	assert.Equal(t, "/", pages[0].Path)
	assert.Equal(t, "/hello/", pages[1].Path)
	assert.Equal(t, "theme", pages[1].Owner)
}

func TestNormalizePagePath(t *testing.T) {
	tests := map[string]string{
		"":            "/",
		"/":           "/",
		"hello":       "/hello/",
		"/a/b":        "/a/b/",
		"/a//b/../c/": "/a/c/",
		" /spaced/ ":  "/spaced/",
		"/page/2/":    "/page/2/",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizePagePath(in), in)
	}
}

func TestWriteFile(t *testing.T) {
	api := newTestAPI(t)

	require.NoError(t, api.WriteFile("/icons/icon-48x48.png", []byte("png")))
	data, err := os.ReadFile(filepath.Join(api.OutDir(), "icons", "icon-48x48.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
	assert.True(t, api.FileExists("icons/icon-48x48.png"))
	assert.False(t, api.FileExists("missing.txt"))

	// Cleaning pins traversal to the output root.
	require.NoError(t, api.WriteFile("../../escape.txt", []byte("x")))
	_, err = os.Stat(filepath.Join(api.OutDir(), "escape.txt"))
	assert.NoError(t, err)

	assert.Error(t, api.WriteFile("/", []byte("x")))
}

func TestAPIPath(t *testing.T) {
	api := newTestAPI(t)
	assert.Equal(t, filepath.Join(api.state.root, "content", "posts"), api.Path("content/posts"))
	assert.Equal(t, "/abs/dir", api.Path("/abs/dir"))
}

func TestRebuild(t *testing.T) {
	api := newTestAPI(t)
	require.NoError(t, api.Rebuild(context.Background()))

	calls := 0
	withRebuild := NewAPI(config.SiteMetadata{}, t.TempDir(), t.TempDir(), zerolog.Nop(), nil, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, withRebuild.For("cms").Rebuild(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestNodeStore(t *testing.T) {
	api := newTestAPI(t).For("theme")

	require.NoError(t, api.CreateNode(Node{ID: "post-b", Type: "Article", Data: "b"}))
	require.NoError(t, api.CreateNode(Node{ID: "author-1", Type: "Author", Data: "j"}))
	require.NoError(t, api.CreateNode(Node{ID: "post-a", Type: "Article", Data: "a"}))

	assert.Error(t, api.CreateNode(Node{ID: "post-a", Type: "Article"}))
	assert.Error(t, api.CreateNode(Node{ID: "", Type: "Article"}))
	assert.Error(t, api.CreateNode(Node{ID: "x"}))

	store := api.Nodes()
	assert.Equal(t, 3, store.Len())

	articles := store.ByType("Article")
	require.Len(t, articles, 2)
	assert.Equal(t, "post-b", articles[0].ID)
	assert.Equal(t, "post-a", articles[1].ID)

	n, ok := store.Get("author-1")
	require.True(t, ok)
	assert.Equal(t, "theme", n.Owner)
	assert.Empty(t, store.ByType("Missing"))
}

func TestHeadContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, Head(ctx))

	ctx = WithHead(ctx, []templ.Component{templ.Raw("<meta>")})
	assert.Len(t, Head(ctx), 1)
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewError("sitemap", StagePostBuild, cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "plugin sitemap failed during postBuild: boom", err.Error())
}

func TestLookupEnv(t *testing.T) {
	api := newTestAPI(t)
	t.Setenv("BLOG_TEST_SETTING", "from-process")
	v, ok := api.LookupEnv("BLOG_TEST_SETTING")
	require.True(t, ok)
	assert.Equal(t, "from-process", v)

	api.SetEnv(func(key string) (string, bool) {
		return map[string]string{"CMS_ADMIN_PASSWORD": "secret"}[key], key == "CMS_ADMIN_PASSWORD"
	})
	v, ok = api.For("cms").LookupEnv("CMS_ADMIN_PASSWORD")
	require.True(t, ok)
	assert.Equal(t, "secret", v)
	_, ok = api.LookupEnv("BLOG_TEST_SETTING")
	assert.False(t, ok)

	assert.Nil(t, api.Metrics())
}
