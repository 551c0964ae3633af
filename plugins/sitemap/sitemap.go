// Package sitemap writes an XML sitemap of every indexable page once the
// site has been rendered.
package sitemap

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"path"
	"strings"

	"github.com/johntipper/blog/plugin"
	"github.com/johntipper/blog/views"
)

const (
	xmlns      = "http://www.sitemaps.org/schemas/sitemap/0.9"
	changeFreq = "daily"
	priority   = "0.7"
)

// DefaultExcludes are never listed, whatever the options say.
var DefaultExcludes = []string{
	"/dev-404-page/",
	"/404/",
	"/404.html",
	"/offline-plugin-app-shell-fallback/",
}

// Options configure the sitemap plugin.
type Options struct {
	Output  string   `yaml:"output"`
	Exclude []string `yaml:"exclude"`
}

func (o *Options) setDefaults() {
	if o.Output == "" {
		o.Output = "/sitemap.xml"
	}
}

// Plugin writes the sitemap in its PostBuild hook.
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
	if !strings.HasSuffix(opts.Output, ".xml") {
		return nil, fmt.Errorf("output %q must end in .xml", opts.Output)
	}
	for _, pattern := range opts.Exclude {
		if _, err := path.Match(pattern, "/"); err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", pattern, err)
		}
	}
	return &Plugin{opts: opts}, nil
}

// Metadata implements plugin.Plugin.
func (p *Plugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        "sitemap",
		Version:     "v1.0.0",
		Kind:        plugin.KindOutput,
		Description: "XML sitemap of rendered pages",
	}
}

// Output returns the site path of the generated sitemap.
func (p *Plugin) Output() string {
	return p.opts.Output
}

// Robots implements plugin.Robots, pointing crawlers at the sitemap once it
// has been written.
func (p *Plugin) Robots(api *plugin.API) plugin.RobotsRules {
	if !api.FileExists(p.opts.Output) {
		return plugin.RobotsRules{}
	}
	loc := strings.TrimRight(api.Site().SiteURL, "/") + "/" + strings.TrimLeft(p.opts.Output, "/")
	return plugin.RobotsRules{Sitemaps: []string{loc}}
}

type urlSet struct {
	XMLName xml.Name `xml:"urlset"`
	XMLNS   string   `xml:"xmlns,attr"`
	URLs    []url    `xml:"url"`
}

type url struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

// PostBuild implements plugin.PostBuild.
func (p *Plugin) PostBuild(ctx context.Context, api *plugin.API) error {
	base := api.Site().SiteURL
	if base == "" {
		return fmt.Errorf("siteMetadata.siteUrl is required")
	}

	set := urlSet{XMLNS: xmlns}
	for _, pg := range api.Pages() {
		if pg.NoIndex || p.excluded(pg.Path) {
			continue
		}
		entry := url{
			Loc:        views.BuildURL(base, pg.Path),
			ChangeFreq: changeFreq,
			Priority:   priority,
		}
		if !pg.LastMod.IsZero() {
			entry.LastMod = pg.LastMod.UTC().Format("2006-01-02")
		}
		set.URLs = append(set.URLs, entry)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		return fmt.Errorf("encode sitemap: %w", err)
	}
	buf.WriteByte('\n')

	if err := api.WriteFile(p.opts.Output, buf.Bytes()); err != nil {
		return err
	}
	logger := api.Logger()
	logger.Info().Int("urls", len(set.URLs)).Str("output", p.opts.Output).Msg("Wrote sitemap")
	return nil
}

func (p *Plugin) excluded(pagePath string) bool {
	for _, list := range [][]string{DefaultExcludes, p.opts.Exclude} {
		for _, pattern := range list {
			if pattern == pagePath {
				return true
			}
			if ok, _ := path.Match(pattern, pagePath); ok {
				return true
			}
		}
	}
	return false
}
