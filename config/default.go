package config

// Identifiers of the plugins shipped with the host.
const (
	PluginSitemap    = "gatsby-plugin-sitemap"
	PluginNovela     = "@narative/gatsby-theme-novela"
	PluginManifest   = "gatsby-plugin-manifest"
	PluginNetlifyCMS = "gatsby-plugin-netlify-cms"
)

// Default returns the configuration of johntipper.org.
func Default() *Config {
	return &Config{
		SiteMetadata: SiteMetadata{
			Title:       "John Tipper's blog",
			Name:        "John Tipper",
			SiteURL:     "https://johntipper.org",
			Description: "John Tipper - Cloud, software engineering and DevOps.",
			Hero: Hero{
				Heading:  "Cloud, software engineering, DevOps.",
				MaxWidth: 960,
			},
			Social: []SocialLink{
				{Name: "twitter", URL: "https://twitter.com/john_tipper"},
				{Name: "github", URL: "https://github.com/john-tipper"},
				{Name: "linkedin", URL: "https://www.linkedin.com/in/john-tipper-5076395"},
			},
		},
		Plugins: []PluginActivation{
			Bare(PluginSitemap),
			Activate(PluginNovela, map[string]any{
				"contentPosts":           "content/posts",
				"contentAuthors":         "content/authors",
				"basePath":               "/",
				"authorsPage":            true,
				"articlePermalinkFormat": ":slug/",
				"sources": map[string]any{
					"local":      true,
					"contentful": false,
				},
			}),
			Activate(PluginManifest, map[string]any{
				"name":             "Novela by Narative",
				"short_name":       "Novela",
				"start_url":        "/",
				"background_color": "#fff",
				"theme_color":      "#fff",
				"display":          "standalone",
				"icon":             "src/assets/favicon.png",
			}),
			Activate(PluginNetlifyCMS, map[string]any{}),
		},
	}
}
