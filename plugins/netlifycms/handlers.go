package netlifycms

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/johntipper/blog/imaging"
	"github.com/johntipper/blog/markdown"
	"github.com/johntipper/blog/plugin"
	"github.com/johntipper/blog/views"
)

// editor serves the dashboard for one running site.
type editor struct {
	opts      Options
	api       *plugin.API
	store     *Store
	limiter   *LoginLimiter
	publisher *Publisher
	password  string
	mediaDir  string
	config    []byte
}

// RegisterRoutes implements plugin.Routes. It needs the admin password and
// session secret from the environment and a theme that reads local content.
func (p *Plugin) RegisterRoutes(e *echo.Echo, api *plugin.API) error {
	password, _ := api.LookupEnv(EnvAdminPassword)
	if password == "" {
		return fmt.Errorf("%s is required to serve the editor", EnvAdminPassword)
	}
	secret, _ := api.LookupEnv(EnvSessionSecret)
	if secret == "" {
		return fmt.Errorf("%s is required to serve the editor", EnvSessionSecret)
	}
	posts, authors, ok := contentPaths(api)
	if !ok {
		return fmt.Errorf("no active theme provides content paths")
	}
	cfg, err := NewCMSConfig(p.opts, filepath.ToSlash(posts), filepath.ToSlash(authors)).Marshal()
	if err != nil {
		return err
	}

	store, err := NewStore(api.Path(p.opts.DatabasePath))
	if err != nil {
		return fmt.Errorf("open editor database: %w", err)
	}
	limiter := NewLoginLimiter(p.opts.LoginAttempts, loginWindow)

	p.mu.Lock()
	p.store, p.limiter = store, limiter
	p.mu.Unlock()

	ed := &editor{
		opts:      p.opts,
		api:       api,
		store:     store,
		limiter:   limiter,
		publisher: NewPublisher(api.Path(posts), p.opts),
		password:  password,
		mediaDir:  api.Path(p.opts.MediaFolder),
		config:    cfg,
	}
	ed.mount(e, newSessionStoreMiddleware(secret, p.opts))

	logger := api.Logger()
	logger.Info().Str("path", p.opts.basePath()).Str("backend", string(p.opts.Backend)).Msg("Editor mounted")
	return nil
}

func newSessionStoreMiddleware(secret string, opts Options) echo.MiddlewareFunc {
	return session.Middleware(newSessionStore(secret, opts.basePath(), opts.CookieSecure))
}

func (ed *editor) mount(e *echo.Echo, sessions echo.MiddlewareFunc) {
	base := ed.opts.basePath()
	g := e.Group(strings.TrimSuffix(base, "/"),
		noStore,
		sessions,
		middleware.CSRFWithConfig(middleware.CSRFConfig{
			TokenLookup:    "header:X-CSRF-Token,form:_csrf",
			CookieName:     "_csrf",
			CookiePath:     base,
			CookieSameSite: http.SameSiteLaxMode,
			CookieSecure:   ed.opts.CookieSecure,
			CookieHTTPOnly: true,
			ErrorHandler: func(err error, c echo.Context) error {
				return c.String(http.StatusForbidden, "Forbidden")
			},
		}),
	)

	g.GET("/", ed.handleDashboard)
	g.GET("/config.yml", ed.handleConfig)
	g.POST("/login/", ed.handleLogin)
	g.POST("/logout/", ed.handleLogout)
	g.POST("/save/", ed.requireAdmin(ed.handleSave))
	g.GET("/entries/:slug/", ed.requireAdmin(ed.handleEntry))
	g.POST("/entries/:slug/delete/", ed.requireAdmin(ed.handleDelete))
	g.POST("/uploads/", ed.requireAdmin(ed.handleUpload))
	g.POST("/uploads/:filename/delete/", ed.requireAdmin(ed.handleUploadDelete))
}

func noStore(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set("Cache-Control", "no-store")
		return next(c)
	}
}

func (ed *editor) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !IsAdmin(c) {
			return c.Redirect(http.StatusSeeOther, ed.opts.basePath())
		}
		return next(c)
	}
}

func (ed *editor) data(c echo.Context) views.EditorData {
	return views.EditorData{
		Title:     ed.opts.HTMLTitle,
		BasePath:  ed.opts.basePath(),
		CSRFToken: CsrfToken(c),
	}
}

func (ed *editor) handleConfig(c echo.Context) error {
	return c.Blob(http.StatusOK, "text/yaml; charset=utf-8", ed.config)
}

func (ed *editor) handleDashboard(c echo.Context) error {
	if !IsAdmin(c) {
		return plugin.Respond(c, http.StatusOK, views.EditorLogin(ed.data(c)))
	}
	return ed.renderDashboard(c, http.StatusOK, c.QueryParam("msg"))
}

func (ed *editor) renderDashboard(c echo.Context, status int, msg string) error {
	entries, err := ed.store.ListEntries()
	if err != nil {
		return err
	}
	uploads, err := ed.store.ListUploads()
	if err != nil {
		return err
	}

	d := ed.data(c)
	d.Message = msg
	d.Entry = views.Entry{Date: time.Now().Format("2006-01-02")}
	for _, e := range entries {
		d.Entries = append(d.Entries, toView(e))
	}
	for _, u := range uploads {
		d.Uploads = append(d.Uploads, views.Upload{
			Filename: u.Filename,
			URL:      path.Join(ed.opts.PublicFolder, u.Filename),
			Width:    u.Width,
			Height:   u.Height,
		})
	}
	return plugin.Respond(c, status, views.EditorDashboard(d))
}

func toView(e Entry) views.Entry {
	return views.Entry{
		Slug:      e.Slug,
		Title:     e.Title,
		Date:      e.Date,
		Author:    e.Author,
		Tags:      e.Tags,
		Excerpt:   e.Excerpt,
		Body:      e.Body,
		Published: e.Published,
		UpdatedAt: e.UpdatedAt.Format(time.RFC3339),
	}
}

func (ed *editor) handleLogin(c echo.Context) error {
	ip := c.RealIP()
	if !ed.limiter.Check(ip) {
		return c.String(http.StatusTooManyRequests, "Too many login attempts. Try again later.")
	}
	pass := c.FormValue("password")
	if subtle.ConstantTimeCompare([]byte(pass), []byte(ed.password)) != 1 {
		ed.limiter.Record(ip)
		d := ed.data(c)
		d.ShowError = true
		return plugin.Respond(c, http.StatusUnauthorized, views.EditorLogin(d))
	}
	ed.limiter.Reset(ip)
	if err := setAdminSession(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, ed.opts.basePath())
}

func (ed *editor) handleLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, ed.opts.basePath())
}

func (ed *editor) handleEntry(c echo.Context) error {
	entry, err := ed.store.GetEntry(c.Param("slug"))
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "entry not found")
	}
	if err != nil {
		return err
	}
	d := ed.data(c)
	d.Entry = toView(entry)
	if html, err := markdown.Render([]byte(entry.Body)); err == nil {
		d.Preview = html
	}
	return plugin.Respond(c, http.StatusOK, views.EditorForm(d))
}

// entryFromForm reads and validates the editor form.
func entryFromForm(c echo.Context) (Entry, string) {
	title := strings.TrimSpace(c.FormValue("title"))
	if title == "" {
		return Entry{}, "Title is required."
	}
	slug := views.Slugify(c.FormValue("slug"))
	if slug == "" {
		slug = views.Slugify(title)
	}
	if slug == "" {
		return Entry{}, "Slug is required. Add a title or slug."
	}
	date := strings.TrimSpace(c.FormValue("date"))
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return Entry{}, "Invalid date format. Use YYYY-MM-DD."
	}
	var tags []string
	for _, t := range strings.Split(c.FormValue("tags"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return Entry{
		Slug:      slug,
		Title:     title,
		Date:      date,
		Author:    strings.TrimSpace(c.FormValue("author")),
		Tags:      tags,
		Excerpt:   strings.TrimSpace(c.FormValue("excerpt")),
		Body:      c.FormValue("body"),
		Published: c.FormValue("published") != "",
	}, ""
}

func (ed *editor) handleSave(c echo.Context) error {
	entry, problem := entryFromForm(c)
	if problem != "" {
		return ed.renderDashboard(c, http.StatusBadRequest, problem)
	}
	if entry.Published {
		if err := ed.checkArticle(entry); err != nil {
			return ed.renderDashboard(c, http.StatusUnprocessableEntity, "Cannot publish: "+err.Error())
		}
	}

	msg := "Draft saved."
	action := ""
	changed, problem, err := ed.apply(c, entry.Slug, func() (bool, error) {
		if entry.Published {
			action = "publish"
			return true, ed.publisher.Publish(entry)
		}
		action = "unpublish"
		return ed.publisher.Unpublish(entry.Slug)
	})
	if err != nil {
		return err
	}
	if problem != "" {
		// The content tree went back to its previous state; the draft keeps
		// the edit but no longer claims to be live.
		entry.Published = !entry.Published
		msg = problem
	} else if changed {
		ed.api.Metrics().IncCMSAction(action)
		msg = "Published."
		if !entry.Published {
			msg = "Unpublished."
		}
	}
	if err := ed.store.SaveEntry(entry); err != nil {
		return err
	}
	ed.api.Metrics().IncCMSAction("save")
	if problem != "" {
		return ed.renderDashboard(c, http.StatusInternalServerError, msg)
	}
	return ed.renderDashboard(c, http.StatusOK, msg)
}

func (ed *editor) handleDelete(c echo.Context) error {
	slug := c.Param("slug")
	_, problem, err := ed.apply(c, slug, func() (bool, error) {
		return ed.publisher.Unpublish(slug)
	})
	if err != nil {
		return err
	}
	if problem != "" {
		return ed.renderDashboard(c, http.StatusInternalServerError, problem)
	}
	if err := ed.store.DeleteEntry(slug); err != nil {
		return err
	}
	ed.api.Metrics().IncCMSAction("delete")
	return ed.renderDashboard(c, http.StatusOK, "Deleted.")
}

// checkArticle asks every plugin that validates articles whether the rendered
// entry would build.
func (ed *editor) checkArticle(e Entry) error {
	data, err := Render(e)
	if err != nil {
		return err
	}
	file := ed.publisher.File(e.Slug)
	for _, r := range ed.api.Plugins() {
		checker, ok := r.Plugin.(plugin.ArticleChecker)
		if !ok {
			continue
		}
		if err := checker.CheckArticle(ed.api.For(r.ID), file, data); err != nil {
			return err
		}
	}
	return nil
}

// apply runs change against the published file of slug and rebuilds the site
// when the file changed. A failed rebuild puts the previous file back and
// returns a message for the dashboard instead of an error.
func (ed *editor) apply(c echo.Context, slug string, change func() (bool, error)) (bool, string, error) {
	prev, err := ed.publisher.Read(slug)
	if err != nil {
		return false, "", err
	}
	changed, err := change()
	if err != nil || !changed {
		return changed, "", err
	}
	rebuildErr := ed.api.Rebuild(c.Request().Context())
	if rebuildErr == nil {
		return true, "", nil
	}
	logger := ed.api.Logger()
	logger.Error().Err(rebuildErr).Str("slug", slug).Msg("Rebuild after edit failed, reverting")
	if err := ed.publisher.Restore(slug, prev); err != nil {
		return true, "", fmt.Errorf("revert %s: %w", slug, err)
	}
	return false, "The site failed to rebuild, so the change was reverted: " + rebuildErr.Error(), nil
}

func (ed *editor) uploadExists(name string) (bool, error) {
	if _, err := os.Stat(filepath.Join(ed.mediaDir, name)); err == nil {
		return true, nil
	}
	return ed.store.HasUpload(name)
}

func (ed *editor) handleUpload(c echo.Context) error {
	file, err := c.FormFile("image")
	if err != nil {
		return ed.renderDashboard(c, http.StatusBadRequest, "No image file provided.")
	}
	if file.Size > imaging.MaxUploadSize {
		return ed.renderDashboard(c, http.StatusBadRequest, "File too large (max 10MB).")
	}
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	up, data, err := imaging.ProcessUpload(src, file.Filename, views.Slugify)
	if err != nil {
		return ed.renderDashboard(c, http.StatusBadRequest, "Invalid image: "+err.Error())
	}
	if up.Filename, err = imaging.UniqueName(up.Filename, ed.uploadExists); err != nil {
		return err
	}

	if err := os.MkdirAll(ed.mediaDir, 0o755); err != nil {
		return fmt.Errorf("create media folder: %w", err)
	}
	if err := os.WriteFile(filepath.Join(ed.mediaDir, up.Filename), data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	if err := ed.api.WriteFile(path.Join(ed.opts.PublicFolder, up.Filename), data); err != nil {
		return err
	}
	if err := ed.store.SaveUpload(Upload{
		Filename:     up.Filename,
		OriginalName: up.OriginalName,
		Width:        up.Width,
		Height:       up.Height,
		Size:         up.Size,
	}); err != nil {
		return err
	}
	ed.api.Metrics().IncCMSAction("upload")
	return ed.renderDashboard(c, http.StatusOK, "Uploaded "+path.Join(ed.opts.PublicFolder, up.Filename))
}

func (ed *editor) handleUploadDelete(c echo.Context) error {
	name := filepath.Base(c.Param("filename"))
	if name == "." || name == "/" || strings.HasPrefix(name, ".") {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid filename")
	}
	if err := os.Remove(filepath.Join(ed.mediaDir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Remove(filepath.Join(ed.api.OutDir(), filepath.FromSlash(strings.TrimPrefix(ed.opts.PublicFolder, "/")), name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := ed.store.DeleteUpload(name); err != nil {
		return err
	}
	ed.api.Metrics().IncCMSAction("delete_upload")
	return ed.renderDashboard(c, http.StatusOK, "Deleted "+name+".")
}
