package novela

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/johntipper/blog/markdown"
	"github.com/johntipper/blog/views"
)

// Node types stored by the theme.
const (
	TypeArticle = "Article"
	TypeAuthor  = "Author"
)

const excerptLength = 140

// Frontmatter is the YAML header of an article file.
type Frontmatter struct {
	Title        string   `yaml:"title"`
	Author       string   `yaml:"author,omitempty"`
	Date         string   `yaml:"date"`
	Slug         string   `yaml:"slug,omitempty"`
	Excerpt      string   `yaml:"excerpt,omitempty"`
	Hero         string   `yaml:"hero,omitempty"`
	Secret       bool     `yaml:"secret,omitempty"`
	CanonicalURL string   `yaml:"canonical_url,omitempty"`
	Tags         []string `yaml:"tags,omitempty"`
}

// Article is a post read from the content tree.
type Article struct {
	Slug         string
	Title        string
	Authors      []string
	Date         time.Time
	Excerpt      string
	Hero         string
	Secret       bool
	CanonicalURL string
	Tags         []string
	HTML         string
	TimeToRead   int
	Path         string
	Source       string

	heroFile string
}

// Author is one entry of the authors file.
type Author struct {
	Name     string   `yaml:"name"`
	Bio      string   `yaml:"bio"`
	Avatar   string   `yaml:"avatar"`
	Featured bool     `yaml:"featured"`
	Slug     string   `yaml:"slug"`
	Social   []Social `yaml:"social"`

	Path       string `yaml:"-"`
	avatarFile string
}

// Social is a link on an author profile.
type Social struct {
	URL string `yaml:"url"`
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseDate accepts the date forms found in article frontmatter.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func isArticleFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".md" || ext == ".mdx"
}

// loadArticles reads every article under dir, newest first.
func loadArticles(dir string, opts Options) ([]*Article, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("posts directory not found: %s", dir)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("posts path is not a directory: %s", dir)
	}

	var articles []*Article
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if p != dir && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !isArticleFile(name) {
			return nil
		}
		a, err := readArticle(p, opts)
		if err != nil {
			return err
		}
		articles = append(articles, a)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortArticles(articles)
	return articles, nil
}

func sortArticles(articles []*Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		if !articles[i].Date.Equal(articles[j].Date) {
			return articles[i].Date.After(articles[j].Date)
		}
		return articles[i].Title < articles[j].Title
	})
}

func readArticle(file string, opts Options) (*Article, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return parseArticle(file, content, opts)
}

// parseArticle builds an article from the content of file. Relative hero
// images are resolved next to file.
func parseArticle(file string, content []byte, opts Options) (*Article, error) {
	var fm Frontmatter
	body, err := markdown.Parse(content, &fm)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	if strings.TrimSpace(fm.Title) == "" {
		return nil, fmt.Errorf("%s: title is required", file)
	}
	if strings.TrimSpace(fm.Date) == "" {
		return nil, fmt.Errorf("%s: date is required", file)
	}
	date, err := ParseDate(fm.Date)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	slug := views.Slugify(fm.Slug)
	if slug == "" {
		slug = views.Slugify(fm.Title)
	}
	if slug == "" {
		return nil, fmt.Errorf("%s: cannot derive a slug", file)
	}

	html, err := markdown.Render(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	a := &Article{
		Slug:         slug,
		Title:        strings.TrimSpace(fm.Title),
		Authors:      splitAuthors(fm.Author),
		Date:         date,
		Excerpt:      strings.TrimSpace(fm.Excerpt),
		Secret:       fm.Secret,
		CanonicalURL: fm.CanonicalURL,
		Tags:         fm.Tags,
		HTML:         html,
		TimeToRead:   markdown.TimeToRead(body),
		Source:       file,
	}
	if a.Excerpt == "" {
		a.Excerpt = markdown.Excerpt(body, excerptLength)
	}
	a.Path = Permalink(opts.BasePath, opts.ArticlePermalinkFormat, a.Slug, a.Date)
	a.Hero, a.heroFile = localAsset(filepath.Dir(file), fm.Hero, a.Path)
	return a, nil
}

func splitAuthors(s string) []string {
	var out []string
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// localAsset resolves a file referenced from content. Relative references
// that exist next to the content file are published under sitePath; any
// other reference is used as written.
func localAsset(dir, ref, sitePath string) (href, file string) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "/") {
		return ref, ""
	}
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		return ref, ""
	}
	candidate := filepath.Join(dir, filepath.FromSlash(ref))
	if info, err := os.Stat(candidate); err != nil || info.IsDir() {
		return ref, ""
	}
	return path.Join(sitePath, path.Base(filepath.ToSlash(ref))), candidate
}

// loadAuthors reads authors.yml or authors.yaml from dir. A missing file
// means the site has no authors.
func loadAuthors(dir string, opts Options) ([]*Author, error) {
	var data []byte
	var file string
	for _, name := range []string{"authors.yml", "authors.yaml"} {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			data, file = b, filepath.Join(dir, name)
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	if file == "" {
		return nil, nil
	}

	authors, err := parseAuthors(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}

	seen := make(map[string]bool, len(authors))
	for i, a := range authors {
		if a == nil || strings.TrimSpace(a.Name) == "" {
			return nil, fmt.Errorf("%s: author %d has no name", file, i)
		}
		a.Name = strings.TrimSpace(a.Name)
		a.Slug = views.Slugify(a.Slug)
		if a.Slug == "" {
			a.Slug = views.Slugify(a.Name)
		}
		if seen[a.Slug] {
			return nil, fmt.Errorf("%s: duplicate author %q", file, a.Slug)
		}
		seen[a.Slug] = true
		a.Path = authorPath(opts.AuthorsPath, a.Slug)
		a.Avatar, a.avatarFile = localAsset(dir, a.Avatar, a.Path)
	}
	return authors, nil
}

// parseAuthors accepts a top-level list of authors or a mapping holding the
// list under "authors", the shape the editor writes.
func parseAuthors(data []byte) ([]*Author, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind == yaml.MappingNode {
		var wrapped struct {
			Authors []*Author `yaml:"authors"`
		}
		if err := root.Decode(&wrapped); err != nil {
			return nil, err
		}
		return wrapped.Authors, nil
	}
	var authors []*Author
	if err := root.Decode(&authors); err != nil {
		return nil, err
	}
	return authors, nil
}
