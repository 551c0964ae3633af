package novela

import (
	"bytes"
	"context"
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johntipper/blog/config"
	"github.com/johntipper/blog/plugin"
)

const authorsYAML = `- name: John Tipper
  bio: Writes about cloud things.
  avatar: john.png
  featured: true
  social:
    - url: https://twitter.com/john_tipper
    - url: https://github.com/john-tipper
- name: Guest Writer
  slug: guest
`

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func post(title, author, date string, extra ...string) string {
	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("title: " + title + "\n")
	if author != "" {
		b.WriteString("author: " + author + "\n")
	}
	b.WriteString("date: " + date + "\n")
	for _, e := range extra {
		b.WriteString(e + "\n")
	}
	b.WriteString("---\n\nSome body text for " + title + ".\n")
	return b.String()
}

func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "content/authors/authors.yml", authorsYAML)
	writeFile(t, root, "content/authors/john.png", "avatar")
	writeFile(t, root, "content/posts/first.md", post("First Post", "John Tipper", "2020-01-10"))
	writeFile(t, root, "content/posts/second/index.mdx", post("Second Post", "John Tipper, Guest Writer", "2020-02-10", "hero: hero.jpg", "excerpt: Custom excerpt"))
	writeFile(t, root, "content/posts/second/hero.jpg", "jpeg")
	writeFile(t, root, "content/posts/hidden.md", post("Hidden Post", "John Tipper", "2020-03-10", "secret: true"))
	writeFile(t, root, "content/posts/_draft.md", post("Draft", "John Tipper", "2020-04-10"))
	writeFile(t, root, "content/posts/notes.txt", "not an article")
	return root
}

func newTheme(t *testing.T, opts plugin.Options) *Plugin {
	t.Helper()
	p, err := New(opts)
	require.NoError(t, err)
	return p.(*Plugin)
}

func runBuild(t *testing.T, p *Plugin, root string) *plugin.API {
	t.Helper()
	ctx := context.Background()
	api := plugin.NewAPI(config.Default().SiteMetadata, root, filepath.Join(root, "public"), zerolog.Nop(), nil, nil).For(config.PluginNovela)
	require.NoError(t, p.SourceNodes(ctx, api))
	require.NoError(t, p.CreatePages(ctx, api))
	require.NoError(t, p.PostBuild(ctx, api))
	return api
}

func pagePaths(api *plugin.API) []string {
	var out []string
	for _, pg := range api.Pages() {
		out = append(out, pg.Path)
	}
	return out
}

func render(t *testing.T, api *plugin.API, path string) string {
	t.Helper()
	for _, pg := range api.Pages() {
		if pg.Path == path {
			var buf bytes.Buffer
			require.NoError(t, pg.Component.Render(context.Background(), &buf))
			return buf.String()
		}
	}
	t.Fatalf("page %s not found", path)
	return ""
}

func TestDefaults(t *testing.T) {
	p := newTheme(t, nil)
	opts := p.Options()
	assert.Equal(t, "content/posts", opts.ContentPosts)
	assert.Equal(t, "content/authors", opts.ContentAuthors)
	assert.Equal(t, "/", opts.BasePath)
	assert.False(t, opts.AuthorsPage)
	assert.Equal(t, "/authors", opts.AuthorsPath)
	assert.Equal(t, ":slug", opts.ArticlePermalinkFormat)
	assert.Equal(t, 6, opts.PageLength)
	assert.True(t, opts.feedEnabled())
	assert.Equal(t, []Source{SourceLocal}, opts.Sources.Enabled())

	posts, authors := p.ContentPaths()
	assert.Equal(t, "content/posts", posts)
	assert.Equal(t, "content/authors", authors)
}

func TestDefaultSiteOptions(t *testing.T) {
	act, ok := config.Default().Plugin(config.PluginNovela)
	require.True(t, ok)
	p := newTheme(t, plugin.Options(act.Options))
	assert.True(t, p.Options().AuthorsPage)
	assert.Equal(t, ":slug/", p.Options().ArticlePermalinkFormat)
}

func TestSources(t *testing.T) {
	_, err := New(plugin.Options{"sources": map[string]any{"contentful": true}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)

	_, err = New(plugin.Options{"sources": map[string]any{"local": false, "contentful": false}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSourceUnavailable)

	_, err = New(plugin.Options{"sources": map[string]any{"local": true, "contentful": false}})
	assert.NoError(t, err)
}

func TestInvalidOptions(t *testing.T) {
	for name, opts := range map[string]plugin.Options{
		"absolute posts": {"contentPosts": "/etc/posts"},
		"escaping path":  {"contentAuthors": "../authors"},
		"no slug token":  {"articlePermalinkFormat": ":year/:month"},
		"negative page":  {"pageLength": -1},
		"root authors":   {"authorsPath": "/"},
	} {
		_, err := New(opts)
		assert.Error(t, err, name)
	}
}

func TestPermalink(t *testing.T) {
	date := time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		base, format, want string
	}{
		{"/", ":slug", "/hello/"},
		{"/", ":slug/", "/hello/"},
		{"/blog", ":slug", "/blog/hello/"},
		{"/", ":year/:month/:day/:slug", "/2021/03/04/hello/"},
		{"blog/", "posts/:year/:slug/", "/blog/posts/2021/hello/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Permalink(tt.base, tt.format, "hello", date), tt.format)
	}
	assert.Equal(t, "/", listingPath("/", 1))
	assert.Equal(t, "/page/3/", listingPath("/", 3))
	assert.Equal(t, "/blog/page/2/", listingPath("/blog", 2))
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"2020-01-10", "2020-01-10T08:00:00Z", "2020-01-10 08:00:00", "2020-01-10 08:00"} {
		d, err := ParseDate(s)
		require.NoError(t, err, s)
		assert.Equal(t, 2020, d.Year())
		assert.Equal(t, time.January, d.Month())
		assert.Equal(t, 10, d.Day())
	}
	_, err := ParseDate("yesterday")
	assert.Error(t, err)
}

func TestSourceNodes(t *testing.T) {
	root := newProject(t)
	p := newTheme(t, plugin.Options{"authorsPage": true})
	api := runBuild(t, p, root)

	articles := Articles(api.Nodes())
	require.Len(t, articles, 3)
	assert.Equal(t, "Hidden Post", articles[0].Title)
	assert.Equal(t, "Second Post", articles[1].Title)
	assert.Equal(t, "First Post", articles[2].Title)

	second := articles[1]
	assert.Equal(t, "second-post", second.Slug)
	assert.Equal(t, "/second-post/", second.Path)
	assert.Equal(t, []string{"John Tipper", "Guest Writer"}, second.Authors)
	assert.Equal(t, "Custom excerpt", second.Excerpt)
	assert.Equal(t, "/second-post/hero.jpg", second.Hero)
	assert.Equal(t, 1, second.TimeToRead)
	assert.Contains(t, second.HTML, "<p>Some body text for Second Post.</p>")

	first := articles[2]
	assert.Equal(t, "Some body text for First Post.", first.Excerpt)
	assert.True(t, articles[0].Secret)

	authors := Authors(api.Nodes())
	require.Len(t, authors, 2)
	assert.Equal(t, "john-tipper", authors[0].Slug)
	assert.Equal(t, "/authors/john-tipper/", authors[0].Path)
	assert.Equal(t, "/authors/john-tipper/john.png", authors[0].Avatar)
	assert.Equal(t, "guest", authors[1].Slug)

	n, ok := api.Nodes().Get("article:/first-post/")
	require.True(t, ok)
	assert.Equal(t, config.PluginNovela, n.Owner)
}

func TestSourceNodesErrors(t *testing.T) {
	ctx := context.Background()
	newAPI := func(root string) *plugin.API {
		return plugin.NewAPI(config.SiteMetadata{}, root, filepath.Join(root, "public"), zerolog.Nop(), nil, nil)
	}

	t.Run("missing posts directory", func(t *testing.T) {
		err := newTheme(t, nil).SourceNodes(ctx, newAPI(t.TempDir()))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "posts directory not found")
	})

	t.Run("unknown author", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "content/posts/a.md", post("A", "Nobody", "2020-01-01"))
		err := newTheme(t, nil).SourceNodes(ctx, newAPI(root))
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown author "Nobody"`)
	})

	t.Run("missing date", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "content/posts/a.md", "---\ntitle: A\n---\nbody\n")
		err := newTheme(t, nil).SourceNodes(ctx, newAPI(root))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "date is required")
	})

	t.Run("duplicate permalink", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "content/posts/a.md", post("Same", "", "2020-01-01"))
		writeFile(t, root, "content/posts/b.md", post("Same", "", "2020-01-02"))
		assert.Error(t, newTheme(t, nil).SourceNodes(ctx, newAPI(root)))
	})
}

func TestCheckArticle(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "content/authors/authors.yml", authorsYAML)
	writeFile(t, root, "content/posts/taken/index.md", post("Taken", "", "2020-01-01"))
	api := plugin.NewAPI(config.SiteMetadata{}, root, filepath.Join(root, "public"), zerolog.Nop(), nil, nil)
	theme := newTheme(t, nil)
	file := filepath.Join(root, "content", "posts", "new.md")

	assert.NoError(t, theme.CheckArticle(api, file, []byte(post("New", "John Tipper", "2024-01-01"))))

	err := theme.CheckArticle(api, file, []byte(post("New", "Nobody", "2024-01-01")))
	assert.ErrorContains(t, err, `unknown author "Nobody"`)

	err = theme.CheckArticle(api, file, []byte(post("Taken", "", "2024-01-01")))
	assert.ErrorContains(t, err, "already uses the permalink /taken/")

	existing := filepath.Join(root, "content", "posts", "taken", "index.md")
	assert.NoError(t, theme.CheckArticle(api, existing, []byte(post("Taken", "", "2024-01-01"))), "rewriting the owner")

	err = theme.CheckArticle(api, file, []byte("---\ntitle: X\n---\n"))
	assert.ErrorContains(t, err, "date is required")
}

func TestCheckArticleWithoutPostsDirectory(t *testing.T) {
	root := t.TempDir()
	api := plugin.NewAPI(config.SiteMetadata{}, root, filepath.Join(root, "public"), zerolog.Nop(), nil, nil)
	file := filepath.Join(root, "content", "posts", "first.md")
	assert.NoError(t, newTheme(t, nil).CheckArticle(api, file, []byte(post("First", "", "2024-01-01"))))
}

func TestCreatePages(t *testing.T) {
	root := newProject(t)
	api := runBuild(t, newTheme(t, plugin.Options{"authorsPage": true, "pageLength": 1}), root)

	assert.Equal(t, []string{
		"/",
		"/404/",
		"/authors/",
		"/authors/guest/",
		"/authors/john-tipper/",
		"/first-post/",
		"/hidden-post/",
		"/page/2/",
		"/second-post/",
	}, pagePaths(api))

	noIndex := map[string]bool{}
	for _, pg := range api.Pages() {
		noIndex[pg.Path] = pg.NoIndex
	}
	assert.True(t, noIndex["/404/"])
	assert.True(t, noIndex["/hidden-post/"])
	assert.False(t, noIndex["/first-post/"])

	home := render(t, api, "/")
	assert.Contains(t, home, "Second Post")
	assert.NotContains(t, home, "Hidden Post")
	assert.Contains(t, home, `href="/page/2/"`)
	assert.Contains(t, home, `<link rel="alternate" type="application/rss+xml"`)

	page2 := render(t, api, "/page/2/")
	assert.Contains(t, page2, "First Post")
	assert.Contains(t, page2, `rel="prev" href="/"`)

	article := render(t, api, "/second-post/")
	assert.Contains(t, article, `"@type":"BlogPosting"`)
	assert.Contains(t, article, `<link rel="canonical" href="https://johntipper.org/second-post/">`)
	assert.Contains(t, article, `href="/authors/john-tipper/"`)
	assert.Contains(t, article, "First Post")

	author := render(t, api, "/authors/john-tipper/")
	assert.Contains(t, author, "Writes about cloud things.")
	assert.Contains(t, author, "https://github.com/john-tipper")
	assert.NotContains(t, author, "Hidden Post")

	index := render(t, api, "/authors/")
	assert.Contains(t, index, `href="/authors/guest/"`)

	hero, err := os.ReadFile(filepath.Join(api.OutDir(), "second-post", "hero.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(hero))
	_, err = os.Stat(filepath.Join(api.OutDir(), "authors", "john-tipper", "john.png"))
	assert.NoError(t, err)
}

func TestCreatePagesWithoutAuthors(t *testing.T) {
	root := newProject(t)
	api := runBuild(t, newTheme(t, nil), root)

	for _, p := range pagePaths(api) {
		assert.False(t, strings.HasPrefix(p, "/authors/"), p)
	}
	assert.NotContains(t, render(t, api, "/"), `href="/authors/`)
}

func TestCanonicalOverride(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "content/posts/a.md", post("Moved", "", "2020-01-01", "canonical_url: https://elsewhere.example/moved"))
	api := runBuild(t, newTheme(t, nil), root)
	assert.Contains(t, render(t, api, "/moved/"), `<link rel="canonical" href="https://elsewhere.example/moved">`)
}

func TestFeed(t *testing.T) {
	root := newProject(t)
	api := runBuild(t, newTheme(t, plugin.Options{"basePath": "/blog"}), root)

	data, err := os.ReadFile(filepath.Join(api.OutDir(), "blog", "rss.xml"))
	require.NoError(t, err)

	var feed rssXML
	require.NoError(t, xml.Unmarshal(data, &feed))
	assert.Equal(t, "2.0", feed.Version)
	assert.Equal(t, "John Tipper's blog", feed.Channel.Title)
	assert.Equal(t, "https://johntipper.org/blog/", feed.Channel.Link)
	require.Len(t, feed.Channel.Items, 2)
	assert.Equal(t, "Second Post", feed.Channel.Items[0].Title)
	assert.Equal(t, "https://johntipper.org/blog/second-post/", feed.Channel.Items[0].Link)
	assert.Equal(t, "John Tipper", feed.Channel.Items[0].Author)
	assert.Equal(t, "First Post", feed.Channel.Items[1].Title)
}

func TestFeedDisabled(t *testing.T) {
	root := newProject(t)
	api := runBuild(t, newTheme(t, plugin.Options{"rss": false}), root)
	_, err := os.Stat(filepath.Join(api.OutDir(), "rss.xml"))
	assert.True(t, os.IsNotExist(err))
	assert.NotContains(t, render(t, api, "/"), "application/rss+xml")
}

func TestEmptySite(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "content", "posts"), 0o755))
	api := runBuild(t, newTheme(t, nil), root)
	assert.Equal(t, []string{"/", "/404/"}, pagePaths(api))
	assert.Contains(t, render(t, api, "/"), "No articles yet.")
}

func TestParseAuthorsShapes(t *testing.T) {
	list, err := parseAuthors([]byte("- name: A\n- name: B\n"))
	require.NoError(t, err)
	require.Len(t, list, 2)

	wrapped, err := parseAuthors([]byte("authors:\n  - name: C\n"))
	require.NoError(t, err)
	require.Len(t, wrapped, 1)
	assert.Equal(t, "C", wrapped[0].Name)

	empty, err := parseAuthors([]byte(""))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = parseAuthors([]byte("authors: [unclosed"))
	assert.Error(t, err)
}
