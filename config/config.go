// Package config describes a blog site: who it belongs to and which plugins
// build it. A Config is loaded once at process start and treated as read-only
// for the rest of the process.
package config

// Config is the site configuration consumed by the build host.
type Config struct {
	SiteMetadata SiteMetadata       `yaml:"siteMetadata" json:"siteMetadata"`
	Plugins      []PluginActivation `yaml:"plugins" json:"plugins"`
}

// SiteMetadata is passed verbatim to templates and SEO-related plugins.
type SiteMetadata struct {
	Title       string       `yaml:"title" json:"title"`
	Name        string       `yaml:"name" json:"name"`
	SiteURL     string       `yaml:"siteUrl" json:"siteUrl"`
	Description string       `yaml:"description" json:"description"`
	Hero        Hero         `yaml:"hero" json:"hero"`
	Social      []SocialLink `yaml:"social" json:"social"`
}

// Hero is a presentation hint for the landing banner.
type Hero struct {
	Heading  string `yaml:"heading" json:"heading"`
	MaxWidth int    `yaml:"maxWidth" json:"maxWidth"`
}

// SocialLink is a named profile link. Slice order is display order.
type SocialLink struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// Plugin returns the first activation whose identifier is id.
func (c *Config) Plugin(id string) (PluginActivation, bool) {
	for _, p := range c.Plugins {
		if p.Resolve == id {
			return p, true
		}
	}
	return PluginActivation{}, false
}
