package views

import "github.com/johntipper/blog/config"

// Layout carries per-page metadata into the shared <head> and chrome.
type Layout struct {
	Site        config.SiteMetadata
	Title       string
	Description string
	Canonical   string // canonical + og:url
	OGType      string // "website" or "article"
	JSONLD      string // trusted JSON, embedded verbatim
	BasePath    string
	AuthorsPath string // empty when author pages are disabled
	FeedPath    string // empty when the feed is disabled
}

// ArticleCard is the summary of an article shown in listings.
type ArticleCard struct {
	Title      string
	Path       string
	Excerpt    string
	Date       string
	TimeToRead int
	Author     string
	AuthorPath string
	Hero       string
}

// HomeData feeds the paginated article listing.
type HomeData struct {
	Layout
	Articles []ArticleCard
	Page     int
	Pages    int
	PrevPath string
	NextPath string
}

// ArticleData feeds a single article page.
type ArticleData struct {
	Layout
	Article ArticleCard
	Body    string // rendered HTML
	Next    []ArticleCard
}

// AuthorData feeds an author page.
type AuthorData struct {
	Layout
	Name     string
	Bio      string
	Avatar   string
	Social   []string
	Articles []ArticleCard
}

// AuthorCard is the summary of an author shown on the authors index.
type AuthorCard struct {
	Name     string
	Path     string
	Avatar   string
	Bio      string
	Featured bool
}

// AuthorsData feeds the authors index.
type AuthorsData struct {
	Layout
	Authors []AuthorCard
}

// Entry is a post as the content editor sees it.
type Entry struct {
	Slug      string
	Title     string
	Date      string
	Author    string
	Tags      []string
	Excerpt   string
	Body      string
	Published bool
	UpdatedAt string
}

// Upload is an image stored by the content editor.
type Upload struct {
	Filename string
	URL      string
	Width    int
	Height   int
}

// EditorData feeds the content editor pages.
type EditorData struct {
	Title       string
	BasePath    string
	CSRFToken   string
	Message     string
	ShowError   bool
	AllowRobots bool
	Entries     []Entry
	Entry       Entry
	Preview     string // rendered HTML
	Uploads     []Upload
}
