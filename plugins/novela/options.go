package novela

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ErrSourceUnavailable is returned when a content source is enabled that
// this build cannot read from.
var ErrSourceUnavailable = errors.New("content source unavailable")

// Source names a place articles and authors can be read from.
type Source string

const (
	SourceLocal      Source = "local"
	SourceContentful Source = "contentful"
)

// Sources is the enumerated set of content sources. Local is on unless
// explicitly disabled.
type Sources struct {
	Local      *bool `yaml:"local"`
	Contentful bool  `yaml:"contentful"`
}

// Enabled lists the enabled sources.
func (s Sources) Enabled() []Source {
	var out []Source
	if s.Local == nil || *s.Local {
		out = append(out, SourceLocal)
	}
	if s.Contentful {
		out = append(out, SourceContentful)
	}
	return out
}

// Options configure the theme.
type Options struct {
	ContentPosts           string  `yaml:"contentPosts"`
	ContentAuthors         string  `yaml:"contentAuthors"`
	BasePath               string  `yaml:"basePath"`
	AuthorsPage            bool    `yaml:"authorsPage"`
	AuthorsPath            string  `yaml:"authorsPath"`
	ArticlePermalinkFormat string  `yaml:"articlePermalinkFormat"`
	PageLength             int     `yaml:"pageLength"`
	Sources                Sources `yaml:"sources"`
	RSS                    *bool   `yaml:"rss"`
}

func (o *Options) setDefaults() {
	if o.ContentPosts == "" {
		o.ContentPosts = "content/posts"
	}
	if o.ContentAuthors == "" {
		o.ContentAuthors = "content/authors"
	}
	if o.BasePath == "" {
		o.BasePath = "/"
	}
	if o.AuthorsPath == "" {
		o.AuthorsPath = "/authors"
	}
	if o.ArticlePermalinkFormat == "" {
		o.ArticlePermalinkFormat = ":slug"
	}
	if o.PageLength == 0 {
		o.PageLength = 6
	}
	if o.RSS == nil {
		enabled := true
		o.RSS = &enabled
	}
	o.BasePath = cleanBase(o.BasePath)
	o.AuthorsPath = path.Clean("/" + strings.Trim(o.AuthorsPath, "/"))
}

func (o *Options) validate() error {
	for name, p := range map[string]string{"contentPosts": o.ContentPosts, "contentAuthors": o.ContentAuthors} {
		if filepath.IsAbs(p) {
			return fmt.Errorf("%s must be relative to the project root, got %q", name, p)
		}
		if strings.HasPrefix(filepath.ToSlash(filepath.Clean(p)), "../") {
			return fmt.Errorf("%s must stay inside the project root, got %q", name, p)
		}
	}
	if o.PageLength < 0 {
		return fmt.Errorf("pageLength must be positive, got %d", o.PageLength)
	}
	if o.AuthorsPath == "/" {
		return fmt.Errorf("authorsPath must not be the site root")
	}
	if !strings.Contains(o.ArticlePermalinkFormat, ":slug") {
		return fmt.Errorf("articlePermalinkFormat %q must contain :slug", o.ArticlePermalinkFormat)
	}

	enabled := o.Sources.Enabled()
	if len(enabled) == 0 {
		return fmt.Errorf("at least one content source must be enabled")
	}
	for _, s := range enabled {
		if s != SourceLocal {
			return fmt.Errorf("%w: %s", ErrSourceUnavailable, s)
		}
	}
	return nil
}

func (o *Options) feedEnabled() bool {
	return o.RSS == nil || *o.RSS
}

// cleanBase gives a base path a leading and trailing slash.
func cleanBase(p string) string {
	p = path.Clean("/" + strings.TrimSpace(p))
	if p != "/" {
		p += "/"
	}
	return p
}
