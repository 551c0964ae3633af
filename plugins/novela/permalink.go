package novela

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// Permalink expands format for one article and joins it under basePath.
// Supported tokens are :slug, :year, :month and :day. The result always
// ends in a slash.
func Permalink(basePath, format, slug string, date time.Time) string {
	r := strings.NewReplacer(
		":slug", slug,
		":year", fmt.Sprintf("%04d", date.Year()),
		":month", fmt.Sprintf("%02d", int(date.Month())),
		":day", fmt.Sprintf("%02d", date.Day()),
	)
	p := path.Join(cleanBase(basePath), r.Replace(format))
	if p != "/" {
		p += "/"
	}
	return p
}

// listingPath returns the path of page n (1-based) of the article listing.
func listingPath(basePath string, n int) string {
	if n <= 1 {
		return cleanBase(basePath)
	}
	return path.Join(cleanBase(basePath), "page", fmt.Sprint(n)) + "/"
}

func authorPath(authorsPath, slug string) string {
	return path.Join(authorsPath, slug) + "/"
}
