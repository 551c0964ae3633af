// Package views renders the theme and editor pages as templ components.
//
// Pages live in the .templ files next to this one; run go generate after
// editing them. The few fragments templ markup cannot express are written by
// hand below.
package views

//go:generate go run github.com/a-h/templ/cmd/templ@v0.3.960 generate

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/johntipper/blog/config"
	"github.com/johntipper/blog/plugin"
)

// head renders the elements plugins contributed for every page <head>.
func head() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		for _, c := range plugin.Head(ctx) {
			if err := c.Render(ctx, w); err != nil {
				return err
			}
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		return nil
	})
}

// jsonLD embeds a structured data block. data comes from json.Marshal, which
// escapes <, > and &, so it cannot end the script element early.
func jsonLD(data string) templ.Component {
	return templ.Raw(`<script type="application/ld+json">` + data + `</script>`)
}

func heroStyle(h config.Hero) string {
	return fmt.Sprintf("max-width: %dpx", h.MaxWidth)
}

func pageTitle(l Layout) string {
	if l.Title == "" {
		return l.Site.Title
	}
	return l.Title + " | " + l.Site.Title
}

func pageDescription(l Layout) string {
	if l.Description != "" {
		return l.Description
	}
	return l.Site.Description
}

func ogType(l Layout) string {
	if l.OGType != "" {
		return l.OGType
	}
	return "website"
}

func ogTitle(l Layout) string {
	if l.Title != "" {
		return l.Title
	}
	return l.Site.Title
}

func entryStatus(e Entry) string {
	if e.Published {
		return "published"
	}
	return "draft"
}
