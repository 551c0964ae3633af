package novela

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"path"
	"time"

	"github.com/johntipper/blog/config"
	"github.com/johntipper/blog/views"
)

type rssXML struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	LastBuildDate string    `xml:"lastBuildDate,omitempty"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description"`
	Author      string   `xml:"author,omitempty"`
	Categories  []string `xml:"category,omitempty"`
	PubDate     string   `xml:"pubDate"`
	GUID        string   `xml:"guid"`
}

func feedPath(basePath string) string {
	return path.Join(cleanBase(basePath), "rss.xml")
}

// Feed renders an RSS 2.0 document for articles, which are expected newest
// first.
func Feed(site config.SiteMetadata, feedPath string, articles []*Article) ([]byte, error) {
	base := site.SiteURL
	items := make([]rssItem, 0, len(articles))
	for _, a := range articles {
		postURL := views.BuildURL(base, a.Path)
		item := rssItem{
			Title:       a.Title,
			Link:        postURL,
			Description: a.Excerpt,
			Categories:  a.Tags,
			PubDate:     a.Date.Format(time.RFC1123Z),
			GUID:        postURL,
		}
		if len(a.Authors) > 0 {
			item.Author = a.Authors[0]
		}
		items = append(items, item)
	}

	feed := rssXML{
		Version: "2.0",
		Channel: rssChannel{
			Title:       site.Title,
			Link:        views.BuildURL(base, path.Dir(feedPath)),
			Description: site.Description,
			Items:       items,
		},
	}
	if len(articles) > 0 {
		feed.Channel.LastBuildDate = articles[0].Date.Format(time.RFC1123Z)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(feed); err != nil {
		return nil, fmt.Errorf("encode feed: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
