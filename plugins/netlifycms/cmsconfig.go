package netlifycms

import (
	"path"

	"gopkg.in/yaml.v3"
)

// CMSConfig is the collection description written to <publicPath>/config.yml.
type CMSConfig struct {
	Backend      CMSBackend   `yaml:"backend"`
	LocalBackend bool         `yaml:"local_backend,omitempty"`
	MediaFolder  string       `yaml:"media_folder"`
	PublicFolder string       `yaml:"public_folder"`
	Collections  []Collection `yaml:"collections"`
}

// CMSBackend names the storage backend.
type CMSBackend struct {
	Name   string `yaml:"name"`
	Branch string `yaml:"branch,omitempty"`
}

// Collection is one editable content type.
type Collection struct {
	Name   string           `yaml:"name"`
	Label  string           `yaml:"label"`
	Folder string           `yaml:"folder,omitempty"`
	Create bool             `yaml:"create,omitempty"`
	Slug   string           `yaml:"slug,omitempty"`
	Fields []Field          `yaml:"fields,omitempty"`
	Files  []CollectionFile `yaml:"files,omitempty"`
}

// CollectionFile is a single-file collection member.
type CollectionFile struct {
	Name   string  `yaml:"name"`
	Label  string  `yaml:"label"`
	File   string  `yaml:"file"`
	Fields []Field `yaml:"fields"`
}

// Field is an editor widget bound to a frontmatter key.
type Field struct {
	Label    string  `yaml:"label"`
	Name     string  `yaml:"name"`
	Widget   string  `yaml:"widget"`
	Required *bool   `yaml:"required,omitempty"`
	Fields   []Field `yaml:"fields,omitempty"`
}

func optional() *bool {
	f := false
	return &f
}

// NewCMSConfig describes the article and author collections found at the
// theme's content paths.
func NewCMSConfig(opts Options, postsDir, authorsDir string) CMSConfig {
	cfg := CMSConfig{
		Backend:      CMSBackend{Name: "git-gateway", Branch: opts.Branch},
		MediaFolder:  opts.MediaFolder,
		PublicFolder: opts.PublicFolder,
	}
	if opts.Backend == BackendLocal {
		cfg.Backend = CMSBackend{Name: "proxy"}
		cfg.LocalBackend = true
	}

	if postsDir != "" {
		cfg.Collections = append(cfg.Collections, Collection{
			Name:   "posts",
			Label:  "Posts",
			Folder: postsDir,
			Create: true,
			Slug:   "{{slug}}",
			Fields: []Field{
				{Label: "Title", Name: "title", Widget: "string"},
				{Label: "Author", Name: "author", Widget: "string"},
				{Label: "Date", Name: "date", Widget: "datetime"},
				{Label: "Slug", Name: "slug", Widget: "string", Required: optional()},
				{Label: "Excerpt", Name: "excerpt", Widget: "text", Required: optional()},
				{Label: "Hero", Name: "hero", Widget: "image", Required: optional()},
				{Label: "Tags", Name: "tags", Widget: "list", Required: optional()},
				{Label: "Secret", Name: "secret", Widget: "boolean", Required: optional()},
				{Label: "Body", Name: "body", Widget: "markdown"},
			},
		})
	}
	if authorsDir != "" {
		cfg.Collections = append(cfg.Collections, Collection{
			Name:  "authors",
			Label: "Authors",
			Files: []CollectionFile{{
				Name:  "authors",
				Label: "Authors",
				File:  path.Join(authorsDir, "authors.yml"),
				Fields: []Field{{
					Label:  "Authors",
					Name:   "authors",
					Widget: "list",
					Fields: []Field{
						{Label: "Name", Name: "name", Widget: "string"},
						{Label: "Bio", Name: "bio", Widget: "text", Required: optional()},
						{Label: "Avatar", Name: "avatar", Widget: "image", Required: optional()},
						{Label: "Featured", Name: "featured", Widget: "boolean", Required: optional()},
					},
				}},
			}},
		})
	}
	return cfg
}

// Marshal encodes the config as YAML.
func (c CMSConfig) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
