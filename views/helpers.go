package views

import (
	"encoding/json"
	"net/url"
	"path"
	"strings"

	"github.com/johntipper/blog/config"
)

// Slugify converts a title to a URL-safe slug.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	prev := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prev = false
		default:
			if !prev && b.Len() > 0 {
				b.WriteByte('-')
				prev = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// BuildURL joins a base URL with path segments, ensuring a trailing slash.
func BuildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join(u.Path, path.Join(pathSegments...))
	if len(pathSegments) > 0 && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

// JoinTags formats a tag slice as a comma-separated string for form fields.
func JoinTags(tags []string) string {
	return strings.Join(tags, ", ")
}

// WebsiteJSONLD produces a Schema.org WebSite block for the site.
func WebsiteJSONLD(site config.SiteMetadata) string {
	data := map[string]any{
		"@context": "https://schema.org",
		"@type":    "WebSite",
		"name":     site.Title,
		"url":      BuildURL(site.SiteURL),
	}
	if site.Description != "" {
		data["description"] = site.Description
	}
	if site.Name != "" {
		data["author"] = person(site.Name, sameAs(site.Social))
	}
	return marshalJSONLD(data)
}

// BlogPostingJSONLD produces a Schema.org BlogPosting block for an article.
func BlogPostingJSONLD(site config.SiteMetadata, a ArticleCard) string {
	postURL := BuildURL(site.SiteURL, a.Path)
	data := map[string]any{
		"@context":      "https://schema.org",
		"@type":         "BlogPosting",
		"headline":      a.Title,
		"description":   a.Excerpt,
		"datePublished": a.Date,
		"url":           postURL,
		"publisher": map[string]string{
			"@type": "Organization",
			"name":  site.Title,
		},
		"mainEntityOfPage": map[string]string{
			"@type": "WebPage",
			"@id":   postURL,
		},
	}
	if a.Author != "" {
		data["author"] = person(a.Author, nil)
	}
	return marshalJSONLD(data)
}

// PersonJSONLD produces a Schema.org Person block for an author page.
func PersonJSONLD(name string, social []string) string {
	p := person(name, social)
	p["@context"] = "https://schema.org"
	return marshalJSONLD(p)
}

func person(name string, sameAs []string) map[string]any {
	p := map[string]any{"@type": "Person", "name": name}
	if len(sameAs) > 0 {
		p["sameAs"] = sameAs
	}
	return p
}

func sameAs(links []config.SocialLink) []string {
	out := make([]string, 0, len(links))
	for _, l := range links {
		out = append(out, l.URL)
	}
	return out
}

func marshalJSONLD(data map[string]any) string {
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}
