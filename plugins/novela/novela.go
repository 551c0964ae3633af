// Package novela is the blog theme: it reads articles and authors from the
// project tree, creates listing, article and author pages, and writes the
// RSS feed.
package novela

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/johntipper/blog/plugin"
)

// Plugin is the theme.
type Plugin struct {
	opts Options
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
		Name:        "novela",
		Version:     "v1.0.0",
		Kind:        plugin.KindTheme,
		Description: "Articles, authors and feed from local content",
	}
}

// Options returns the resolved options.
func (p *Plugin) Options() Options {
	return p.opts
}

// ContentPaths implements plugin.ContentPaths.
func (p *Plugin) ContentPaths() (posts, authors string) {
	return p.opts.ContentPosts, p.opts.ContentAuthors
}

// SourceNodes reads articles and authors into the node store.
func (p *Plugin) SourceNodes(ctx context.Context, api *plugin.API) error {
	authors, err := loadAuthors(api.Path(p.opts.ContentAuthors), p.opts)
	if err != nil {
		return err
	}
	known := authorNames(authors)
	for _, a := range authors {
		if err := api.CreateNode(plugin.Node{ID: "author:" + a.Slug, Type: TypeAuthor, Data: a}); err != nil {
			return err
		}
	}

	articles, err := loadArticles(api.Path(p.opts.ContentPosts), p.opts)
	if err != nil {
		return err
	}
	for _, a := range articles {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := checkAuthors(a, known); err != nil {
			return err
		}
		if err := api.CreateNode(plugin.Node{ID: "article:" + a.Path, Type: TypeArticle, Data: a}); err != nil {
			return fmt.Errorf("%s: %w", a.Source, err)
		}
	}

	logger := api.Logger()
	logger.Info().Int("articles", len(articles)).Int("authors", len(authors)).Msg("Sourced content")
	return nil
}

// CheckArticle implements plugin.ArticleChecker. It applies the rules
// SourceNodes applies: the article parses, its authors exist and no other
// article already owns its permalink.
func (p *Plugin) CheckArticle(api *plugin.API, file string, content []byte) error {
	a, err := parseArticle(file, content, p.opts)
	if err != nil {
		return err
	}
	authors, err := loadAuthors(api.Path(p.opts.ContentAuthors), p.opts)
	if err != nil {
		return err
	}
	if err := checkAuthors(a, authorNames(authors)); err != nil {
		return err
	}

	postsDir := api.Path(p.opts.ContentPosts)
	if _, err := os.Stat(postsDir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	existing, err := loadArticles(postsDir, p.opts)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if filepath.Clean(other.Source) == filepath.Clean(file) {
			continue
		}
		if other.Path == a.Path {
			return fmt.Errorf("%s already uses the permalink %s", other.Source, a.Path)
		}
	}
	return nil
}

func authorNames(authors []*Author) map[string]bool {
	known := make(map[string]bool, len(authors))
	for _, a := range authors {
		known[a.Name] = true
	}
	return known
}

func checkAuthors(a *Article, known map[string]bool) error {
	for _, name := range a.Authors {
		if !known[name] {
			return fmt.Errorf("%s: unknown author %q", a.Source, name)
		}
	}
	return nil
}

// CreatePages implements plugin.CreatePages.
func (p *Plugin) CreatePages(ctx context.Context, api *plugin.API) error {
	articles := Articles(api.Nodes())
	authors := Authors(api.Nodes())

	if err := p.publishAssets(api, articles, authors); err != nil {
		return err
	}
	b := newPageBuilder(p.opts, api.Site(), articles, authors)
	for _, pg := range b.pages() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := api.CreatePage(pg); err != nil {
			return err
		}
	}
	return nil
}

// PostBuild writes the feed.
func (p *Plugin) PostBuild(ctx context.Context, api *plugin.API) error {
	if !p.opts.feedEnabled() {
		return nil
	}
	articles := Articles(api.Nodes())
	data, err := Feed(api.Site(), feedPath(p.opts.BasePath), listed(articles))
	if err != nil {
		return err
	}
	return api.WriteFile(feedPath(p.opts.BasePath), data)
}

func (p *Plugin) publishAssets(api *plugin.API, articles []*Article, authors []*Author) error {
	copyAsset := func(src, dst string) error {
		if src == "" {
			return nil
		}
		data, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		return api.WriteFile(dst, data)
	}
	for _, a := range articles {
		if err := copyAsset(a.heroFile, a.Hero); err != nil {
			return err
		}
	}
	for _, a := range authors {
		if err := copyAsset(a.avatarFile, a.Avatar); err != nil {
			return err
		}
	}
	return nil
}

// Articles returns the sourced articles, newest first.
func Articles(nodes *plugin.NodeStore) []*Article {
	var out []*Article
	for _, n := range nodes.ByType(TypeArticle) {
		if a, ok := n.Data.(*Article); ok {
			out = append(out, a)
		}
	}
	sortArticles(out)
	return out
}

// Authors returns the sourced authors in file order.
func Authors(nodes *plugin.NodeStore) []*Author {
	var out []*Author
	for _, n := range nodes.ByType(TypeAuthor) {
		if a, ok := n.Data.(*Author); ok {
			out = append(out, a)
		}
	}
	return out
}

// listed drops secret articles.
func listed(articles []*Article) []*Article {
	out := make([]*Article, 0, len(articles))
	for _, a := range articles {
		if !a.Secret {
			out = append(out, a)
		}
	}
	return out
}
