package plugin

import (
	"bytes"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// Respond renders cmp into a buffer and writes it as an HTML response with
// status. A component that fails to render yields an error and nothing is
// written, so the error handler can still send its own page.
func Respond(c echo.Context, status int, cmp templ.Component) error {
	var buf bytes.Buffer
	if err := cmp.Render(c.Request().Context(), &buf); err != nil {
		return err
	}
	return c.HTMLBlob(status, buf.Bytes())
}
