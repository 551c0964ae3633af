package blog

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/johntipper/blog/deploy"
	"github.com/johntipper/blog/plugin"
	"github.com/johntipper/blog/views"
)

// HelloResponse is the body of GET /api/hello.
type HelloResponse struct {
	Message string `json:"message"`
}

func handleHello(c echo.Context) error {
	return c.JSON(http.StatusOK, HelloResponse{Message: "Hello World!"})
}

// handleStatic serves the build output with the same rewrite the CDN edge
// function applies: directory requests resolve to their index.html.
func (srv *server) handleStatic(c echo.Context) error {
	srv.site.outMu.RLock()
	defer srv.site.outMu.RUnlock()

	target := filepath.Join(srv.outDir, filepath.FromSlash(path.Clean(deploy.RewriteURI(c.Request().URL.Path))))
	info, err := os.Stat(target)
	if err != nil || info.IsDir() {
		return echo.ErrNotFound
	}
	return c.File(target)
}

func (srv *server) layout() views.Layout {
	site := srv.site.Config.SiteMetadata
	return views.Layout{Site: site, Title: site.Title, BasePath: "/"}
}

func (srv *server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	ok := errors.As(err, &he)
	if ok && he.Code == http.StatusNotFound {
		srv.site.outMu.RLock()
		page, readErr := os.ReadFile(filepath.Join(srv.outDir, "404", "index.html"))
		srv.site.outMu.RUnlock()
		if readErr == nil {
			_ = c.HTMLBlob(http.StatusNotFound, page)
			return
		} else if !errors.Is(readErr, fs.ErrNotExist) {
			srv.logger.Warn().Err(readErr).Msg("Read 404 page")
		}
		_ = plugin.Respond(c, http.StatusNotFound, views.NotFound(srv.layout()))
		return
	}
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	if code >= 500 {
		srv.logger.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("Server error")
		_ = plugin.Respond(c, code, views.ServerError(srv.layout()))
		return
	}
	srv.echo.DefaultHTTPErrorHandler(err, c)
}

// isFileRequest reports whether p names a file rather than a directory page.
func isFileRequest(p string) bool {
	return !strings.HasSuffix(p, "/") && path.Ext(p) != ""
}
