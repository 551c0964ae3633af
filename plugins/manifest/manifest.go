// Package manifest writes a web app manifest and its icon set.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/a-h/templ"

	"github.com/johntipper/blog/imaging"
	"github.com/johntipper/blog/plugin"
)

// IconSizes are the square sizes generated from the source icon.
var IconSizes = []int{48, 72, 96, 144, 192, 256, 384, 512}

const (
	manifestFile   = "/manifest.webmanifest"
	faviconFile    = "/favicon-32x32.png"
	appleTouchFile = "/apple-touch-icon.png"
	appleTouchSize = 180
)

var (
	displayModes = map[string]bool{"fullscreen": true, "standalone": true, "minimal-ui": true, "browser": true}
	hexColor     = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
)

// Icon is one entry of the manifest icons list.
type Icon struct {
	Src     string `yaml:"src" json:"src"`
	Sizes   string `yaml:"sizes" json:"sizes"`
	Type    string `yaml:"type" json:"type"`
	Purpose string `yaml:"purpose,omitempty" json:"purpose,omitempty"`
}

// Options configure the manifest. Field names follow the manifest members.
type Options struct {
	Name            string `yaml:"name"`
	ShortName       string `yaml:"short_name"`
	StartURL        string `yaml:"start_url"`
	BackgroundColor string `yaml:"background_color"`
	ThemeColor      string `yaml:"theme_color"`
	Display         string `yaml:"display"`
	Icon            string `yaml:"icon"`
	Icons           []Icon `yaml:"icons"`
	Lang            string `yaml:"lang"`
	Description     string `yaml:"description"`
}

func (o *Options) setDefaults() {
	if o.StartURL == "" {
		o.StartURL = "/"
	}
	if o.Display == "" {
		o.Display = "standalone"
	}
	if o.ShortName == "" {
		o.ShortName = o.Name
	}
}

func (o *Options) validate() error {
	if strings.TrimSpace(o.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if !displayModes[o.Display] {
		return fmt.Errorf("display %q must be one of fullscreen, standalone, minimal-ui, browser", o.Display)
	}
	for field, c := range map[string]string{"background_color": o.BackgroundColor, "theme_color": o.ThemeColor} {
		if c != "" && !hexColor.MatchString(c) {
			return fmt.Errorf("%s %q is not a hex colour", field, c)
		}
	}
	for i, icon := range o.Icons {
		if icon.Src == "" || icon.Sizes == "" {
			return fmt.Errorf("icons[%d] needs src and sizes", i)
		}
	}
	return nil
}

// Manifest is the document written to manifest.webmanifest.
type Manifest struct {
	Name            string `json:"name"`
	ShortName       string `json:"short_name"`
	Description     string `json:"description,omitempty"`
	StartURL        string `json:"start_url"`
	BackgroundColor string `json:"background_color,omitempty"`
	ThemeColor      string `json:"theme_color,omitempty"`
	Display         string `json:"display"`
	Lang            string `json:"lang,omitempty"`
	Icons           []Icon `json:"icons"`
}

// Plugin writes the manifest and icons after the build.
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
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Plugin{opts: opts}, nil
}

// Metadata implements plugin.Plugin.
func (p *Plugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        "manifest",
		Version:     "v1.0.0",
		Kind:        plugin.KindOutput,
		Description: "Web app manifest and icons",
	}
}

// Manifest returns the manifest document for the configured options.
func (p *Plugin) Manifest() Manifest {
	m := Manifest{
		Name:            p.opts.Name,
		ShortName:       p.opts.ShortName,
		Description:     p.opts.Description,
		StartURL:        p.opts.StartURL,
		BackgroundColor: p.opts.BackgroundColor,
		ThemeColor:      p.opts.ThemeColor,
		Display:         p.opts.Display,
		Lang:            p.opts.Lang,
		Icons:           p.opts.Icons,
	}
	if len(m.Icons) == 0 && p.opts.Icon != "" {
		for _, size := range IconSizes {
			m.Icons = append(m.Icons, Icon{
				Src:   iconPath(size),
				Sizes: fmt.Sprintf("%dx%d", size, size),
				Type:  "image/png",
			})
		}
	}
	if m.Icons == nil {
		m.Icons = []Icon{}
	}
	return m
}

func iconPath(size int) string {
	return path.Join("/icons", fmt.Sprintf("icon-%dx%d.png", size, size))
}

// HeadComponents implements plugin.HeadComponents.
func (p *Plugin) HeadComponents(api *plugin.API) []templ.Component {
	var b strings.Builder
	fmt.Fprintf(&b, `<link rel="manifest" href="%s" crossorigin="anonymous">`, manifestFile)
	if p.opts.ThemeColor != "" {
		fmt.Fprintf(&b, `<meta name="theme-color" content="%s">`, p.opts.ThemeColor)
	}
	out := []templ.Component{templ.Raw(b.String())}
	if p.opts.Icon != "" {
		out = append(out,
			templ.Raw(fmt.Sprintf(`<link rel="icon" href="%s" type="image/png">`, faviconFile)),
			templ.Raw(fmt.Sprintf(`<link rel="apple-touch-icon" sizes="%dx%d" href="%s">`, appleTouchSize, appleTouchSize, appleTouchFile)),
		)
	}
	return out
}

// PostBuild implements plugin.PostBuild.
func (p *Plugin) PostBuild(ctx context.Context, api *plugin.API) error {
	if p.opts.Icon != "" {
		if err := p.writeIcons(ctx, api); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(p.Manifest(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return api.WriteFile(manifestFile, append(data, '\n'))
}

func (p *Plugin) writeIcons(ctx context.Context, api *plugin.API) error {
	f, err := os.Open(api.Path(p.opts.Icon))
	if err != nil {
		return fmt.Errorf("open icon: %w", err)
	}
	defer f.Close()

	src, err := imaging.Decode(f)
	if err != nil {
		return fmt.Errorf("%s: %w", p.opts.Icon, err)
	}
	if b := src.Bounds(); b.Dx() != b.Dy() {
		logger := api.Logger()
		logger.Warn().Int("width", b.Dx()).Int("height", b.Dy()).Msg("Icon is not square, letterboxing")
	}

	targets := map[string]int{faviconFile: 32, appleTouchFile: appleTouchSize}
	for _, size := range IconSizes {
		targets[iconPath(size)] = size
	}
	for name, size := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := imaging.EncodePNG(imaging.Square(src, size))
		if err != nil {
			return err
		}
		if err := api.WriteFile(name, data); err != nil {
			return err
		}
	}
	return nil
}
