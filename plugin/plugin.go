// Package plugin defines how the build host talks to its extensions.
//
// A plugin is created by a Factory from the option bag of its activation and
// then takes part in the build by implementing any of the optional hook
// interfaces below. Hooks run in activation order.
package plugin

import (
	"context"
	"fmt"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"
)

// Kind groups plugins by the part of the build they take part in.
type Kind string

const (
	KindTheme  Kind = "theme"
	KindOutput Kind = "output"
	KindEditor Kind = "editor"
)

// Metadata describes a plugin.
type Metadata struct {
	Name        string
	Version     string
	Kind        Kind
	Description string
}

// String returns a human-readable representation of the plugin metadata.
func (m Metadata) String() string {
	return fmt.Sprintf("%s@%s (%s)", m.Name, m.Version, m.Kind)
}

// Plugin is the minimal contract every plugin satisfies.
type Plugin interface {
	Metadata() Metadata
}

// Factory builds a plugin from its option bag. Factories own option
// validation; a bad bag is reported here, before any hook runs.
type Factory func(opts Options) (Plugin, error)

// SourceNodes loads content into the node store.
type SourceNodes interface {
	SourceNodes(ctx context.Context, api *API) error
}

// CreatePages registers pages built from nodes.
type CreatePages interface {
	CreatePages(ctx context.Context, api *API) error
}

// HeadComponents contributes elements rendered into every page <head>.
type HeadComponents interface {
	HeadComponents(api *API) []templ.Component
}

// PostBuild runs after every page has been written.
type PostBuild interface {
	PostBuild(ctx context.Context, api *API) error
}

// Routes mounts handlers when the site is served rather than only built.
type Routes interface {
	RegisterRoutes(e *echo.Echo, api *API) error
}

// Robots contributes rules to the generated robots.txt. It is called after
// PostBuild, so a plugin can report files it has just written.
type Robots interface {
	Robots(api *API) RobotsRules
}

// RobotsRules are the lines a plugin adds to robots.txt. Disallow holds
// site paths, Sitemaps absolute URLs.
type RobotsRules struct {
	Disallow []string
	Sitemaps []string
}

// ArticleChecker is implemented by themes that can tell whether an article
// file would source cleanly before it is written into their content tree.
// file is the absolute path the content is going to be written to.
type ArticleChecker interface {
	CheckArticle(api *API, file string, content []byte) error
}

// ContentPaths is implemented by themes that read content from the project
// tree, so editors know where to write.
type ContentPaths interface {
	ContentPaths() (posts, authors string)
}

// Options is a plugin option bag as written in the site configuration.
type Options map[string]any

// Decode copies the bag into a typed struct using its yaml tags. Keys the
// struct does not declare are ignored.
func (o Options) Decode(target any) error {
	if len(o) == 0 {
		return nil
	}
	raw, err := yaml.Marshal(map[string]any(o))
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	if err := yaml.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode options: %w", err)
	}
	return nil
}
