package blog

import (
	"github.com/johntipper/blog/config"
	"github.com/johntipper/blog/plugin"
	"github.com/johntipper/blog/plugins/manifest"
	"github.com/johntipper/blog/plugins/netlifycms"
	"github.com/johntipper/blog/plugins/novela"
	"github.com/johntipper/blog/plugins/sitemap"
)

// DefaultRegistry returns a registry holding every plugin shipped with the host.
func DefaultRegistry() *plugin.Registry {
	r := plugin.NewRegistry()
	builtins := []struct {
		id      string
		factory plugin.Factory
	}{
		{config.PluginSitemap, sitemap.New},
		{config.PluginNovela, novela.New},
		{config.PluginManifest, manifest.New},
		{config.PluginNetlifyCMS, netlifycms.New},
	}
	for _, b := range builtins {
		if err := r.Register(b.id, b.factory); err != nil {
			panic(err)
		}
	}
	return r
}
