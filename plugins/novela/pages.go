package novela

import (
	"strings"

	"github.com/johntipper/blog/config"
	"github.com/johntipper/blog/plugin"
	"github.com/johntipper/blog/views"
)

const nextArticles = 2

type pageBuilder struct {
	opts     Options
	site     config.SiteMetadata
	articles []*Article
	listed   []*Article
	authors  []*Author
	byName   map[string]*Author
}

func newPageBuilder(opts Options, site config.SiteMetadata, articles []*Article, authors []*Author) *pageBuilder {
	b := &pageBuilder{
		opts:     opts,
		site:     site,
		articles: articles,
		listed:   listed(articles),
		authors:  authors,
		byName:   make(map[string]*Author, len(authors)),
	}
	for _, a := range authors {
		b.byName[a.Name] = a
	}
	return b
}

func (b *pageBuilder) pages() []plugin.Page {
	var out []plugin.Page
	out = append(out, b.listingPages()...)
	for _, a := range b.articles {
		out = append(out, b.articlePage(a))
	}
	if b.opts.AuthorsPage {
		out = append(out, b.authorPages()...)
	}
	out = append(out, plugin.Page{
		Path:      "/404/",
		Title:     "Page not found",
		Component: views.NotFound(b.layout("Page not found", "", "")),
		NoIndex:   true,
	})
	return out
}

func (b *pageBuilder) layout(title, description, pagePath string) views.Layout {
	l := views.Layout{
		Site:        b.site,
		Title:       title,
		Description: description,
		BasePath:    b.opts.BasePath,
	}
	if pagePath != "" {
		l.Canonical = views.BuildURL(b.site.SiteURL, pagePath)
	}
	if b.opts.AuthorsPage {
		l.AuthorsPath = b.opts.AuthorsPath + "/"
	}
	if b.opts.feedEnabled() {
		l.FeedPath = feedPath(b.opts.BasePath)
	}
	return l
}

func (b *pageBuilder) card(a *Article) views.ArticleCard {
	c := views.ArticleCard{
		Title:      a.Title,
		Path:       a.Path,
		Excerpt:    a.Excerpt,
		Date:       a.Date.Format("2006-01-02"),
		TimeToRead: a.TimeToRead,
		Author:     strings.Join(a.Authors, ", "),
		Hero:       a.Hero,
	}
	if b.opts.AuthorsPage && len(a.Authors) > 0 {
		if author, ok := b.byName[a.Authors[0]]; ok {
			c.AuthorPath = author.Path
		}
	}
	return c
}

func (b *pageBuilder) cards(articles []*Article) []views.ArticleCard {
	out := make([]views.ArticleCard, 0, len(articles))
	for _, a := range articles {
		out = append(out, b.card(a))
	}
	return out
}

func (b *pageBuilder) listingPages() []plugin.Page {
	size := b.opts.PageLength
	total := (len(b.listed) + size - 1) / size
	if total == 0 {
		total = 1
	}

	out := make([]plugin.Page, 0, total)
	for n := 1; n <= total; n++ {
		start := (n - 1) * size
		end := min(start+size, len(b.listed))

		p := listingPath(b.opts.BasePath, n)
		data := views.HomeData{
			Layout:   b.layout("", "", p),
			Articles: b.cards(b.listed[start:end]),
			Page:     n,
			Pages:    total,
		}
		data.JSONLD = views.WebsiteJSONLD(b.site)
		if n > 1 {
			data.PrevPath = listingPath(b.opts.BasePath, n-1)
		}
		if n < total {
			data.NextPath = listingPath(b.opts.BasePath, n+1)
		}

		pg := plugin.Page{Path: p, Component: views.Home(data)}
		if len(b.listed) > start {
			pg.LastMod = b.listed[start].Date
		}
		out = append(out, pg)
	}
	return out
}

func (b *pageBuilder) articlePage(a *Article) plugin.Page {
	card := b.card(a)
	data := views.ArticleData{
		Layout:  b.layout(a.Title, a.Excerpt, a.Path),
		Article: card,
		Body:    a.HTML,
		Next:    b.cards(b.next(a)),
	}
	data.OGType = "article"
	data.JSONLD = views.BlogPostingJSONLD(b.site, card)
	if a.CanonicalURL != "" {
		data.Canonical = a.CanonicalURL
	}
	return plugin.Page{
		Path:      a.Path,
		Title:     a.Title,
		Component: views.Article(data),
		LastMod:   a.Date,
		NoIndex:   a.Secret,
	}
}

// next returns the articles that follow a in the listing, wrapping around.
func (b *pageBuilder) next(a *Article) []*Article {
	if len(b.listed) == 0 {
		return nil
	}
	pos := -1
	for i, l := range b.listed {
		if l == a {
			pos = i
			break
		}
	}
	var out []*Article
	for i := 1; i <= len(b.listed) && len(out) < nextArticles; i++ {
		cand := b.listed[(pos+i+len(b.listed))%len(b.listed)]
		if cand != a {
			out = append(out, cand)
		}
	}
	return out
}

func (b *pageBuilder) authorPages() []plugin.Page {
	index := views.AuthorsData{Layout: b.layout("Authors", "", b.opts.AuthorsPath+"/")}
	out := make([]plugin.Page, 0, len(b.authors)+1)

	for _, author := range b.authors {
		index.Authors = append(index.Authors, views.AuthorCard{
			Name:     author.Name,
			Path:     author.Path,
			Avatar:   author.Avatar,
			Bio:      author.Bio,
			Featured: author.Featured,
		})

		var written []*Article
		for _, a := range b.listed {
			for _, name := range a.Authors {
				if name == author.Name {
					written = append(written, a)
					break
				}
			}
		}
		social := make([]string, 0, len(author.Social))
		for _, s := range author.Social {
			social = append(social, s.URL)
		}

		data := views.AuthorData{
			Layout:   b.layout(author.Name, author.Bio, author.Path),
			Name:     author.Name,
			Bio:      author.Bio,
			Avatar:   author.Avatar,
			Social:   social,
			Articles: b.cards(written),
		}
		data.OGType = "profile"
		data.JSONLD = views.PersonJSONLD(author.Name, social)
		pg := plugin.Page{Path: author.Path, Title: author.Name, Component: views.Author(data)}
		if len(written) > 0 {
			pg.LastMod = written[0].Date
		}
		out = append(out, pg)
	}

	out = append(out, plugin.Page{
		Path:      b.opts.AuthorsPath + "/",
		Title:     "Authors",
		Component: views.Authors(index),
	})
	return out
}
