// Package scaffold lays out a new blog project from embedded templates.
package scaffold

import (
	"embed"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/johntipper/blog/imaging"
)

// Templates contains all scaffold template files.
// Files use Go text/template syntax and have a .tmpl suffix.
//
//go:embed all:templates
var Templates embed.FS

const (
	templateRoot = "templates"
	// FaviconPath is the manifest icon written into every new project.
	FaviconPath = "src/assets/favicon.png"
	faviconSize = 512
)

// Data holds the template variables passed to every scaffold template.
type Data struct {
	ProjectName string
	SiteName    string
	SiteURL     string
	Author      string
	Date        string
}

// NewData derives template data from a project name, e.g. "my-blog".
func NewData(name, siteURL, author string) Data {
	if siteURL == "" {
		siteURL = "https://example.com"
	}
	if author == "" {
		author = "Anonymous"
	}
	return Data{
		ProjectName: name,
		SiteName:    toTitle(name),
		SiteURL:     siteURL,
		Author:      author,
		Date:        time.Now().Format("2006-01-02"),
	}
}

// Create writes a new project into dir, which must not exist yet, and
// returns the files it created relative to dir.
func Create(dir string, data Data) ([]string, error) {
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("directory %q already exists", dir)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	var created []string
	err := fs.WalkDir(Templates, templateRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(p, templateRoot), "/")
		rel = outputName(rel)
		outPath := filepath.Join(dir, filepath.FromSlash(rel))

		if d.IsDir() {
			return os.MkdirAll(outPath, 0o755)
		}

		content, err := Templates.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		tmpl, err := template.New(path.Base(p)).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return fmt.Errorf("parse template %s: %w", p, err)
		}

		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", outPath, err)
		}
		defer f.Close()

		if err := tmpl.Execute(f, data); err != nil {
			return fmt.Errorf("execute template %s: %w", p, err)
		}
		created = append(created, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := writeFavicon(filepath.Join(dir, filepath.FromSlash(FaviconPath))); err != nil {
		return nil, err
	}
	created = append(created, FaviconPath)
	return created, nil
}

// outputName strips the .tmpl suffix and restores dotfiles, which embed
// cannot carry under their real names.
func outputName(rel string) string {
	rel = strings.TrimSuffix(rel, ".tmpl")
	switch path.Base(rel) {
	case "dotenv":
		return path.Join(path.Dir(rel), ".env.example")
	case "gitignore":
		return path.Join(path.Dir(rel), ".gitignore")
	}
	return rel
}

// writeFavicon draws a plain square icon so the manifest plugin has a
// source image from the first build.
func writeFavicon(target string) error {
	img := image.NewNRGBA(image.Rect(0, 0, faviconSize, faviconSize))
	fill := color.NRGBA{R: 0x1f, G: 0x6f, B: 0xeb, A: 0xff}
	for y := 0; y < faviconSize; y++ {
		for x := 0; x < faviconSize; x++ {
			img.SetNRGBA(x, y, fill)
		}
	}
	data, err := imaging.EncodePNG(img)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.WriteFile(target, data, 0o644)
}

// toTitle converts a hyphenated or lowercase name to a title-case string.
// e.g. "my-blog" -> "My Blog", "myblog" -> "Myblog"
func toTitle(s string) string {
	parts := strings.Split(s, "-")
	for i, p := range parts {
		if len(p) > 0 {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}
