// Command blog builds, serves and deploys a config-driven static blog.
package main

import (
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	// A missing .env is fine; flags and the real environment still apply.
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("blog"),
		kong.Description("Build and serve a blog from a site configuration file."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
