package netlifycms

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Backend names where published entries go.
type Backend string

const (
	// BackendLocal writes entries into the content tree.
	BackendLocal Backend = "local"
	// BackendGit also commits every change to the repository holding the
	// project.
	BackendGit Backend = "git"
)

// Environment settings read when the editor is served.
const (
	EnvAdminPassword = "CMS_ADMIN_PASSWORD"
	EnvSessionSecret = "CMS_SESSION_SECRET"
)

// Options configure the editor.
type Options struct {
	PublicPath     string  `yaml:"publicPath"`
	HTMLTitle      string  `yaml:"htmlTitle"`
	IncludeRobots  bool    `yaml:"includeRobots"`
	Backend        Backend `yaml:"backend"`
	Branch         string  `yaml:"branch"`
	DatabasePath   string  `yaml:"databasePath"`
	MediaFolder    string  `yaml:"mediaFolder"`
	PublicFolder   string  `yaml:"publicFolder"`
	CookieSecure   bool    `yaml:"cookieSecure"`
	GitAuthorName  string  `yaml:"gitAuthorName"`
	GitAuthorEmail string  `yaml:"gitAuthorEmail"`
	LoginAttempts  int     `yaml:"loginAttempts"`
}

func (o *Options) setDefaults() {
	if o.PublicPath == "" {
		o.PublicPath = "admin"
	}
	if o.HTMLTitle == "" {
		o.HTMLTitle = "Content Manager"
	}
	if o.Backend == "" {
		o.Backend = BackendLocal
	}
	if o.Branch == "" {
		o.Branch = "main"
	}
	if o.DatabasePath == "" {
		o.DatabasePath = "data/cms.db"
	}
	if o.MediaFolder == "" {
		o.MediaFolder = "static/uploads"
	}
	if o.PublicFolder == "" {
		o.PublicFolder = "/uploads"
	}
	if o.GitAuthorName == "" {
		o.GitAuthorName = "Content Manager"
	}
	if o.GitAuthorEmail == "" {
		o.GitAuthorEmail = "cms@localhost"
	}
	if o.LoginAttempts == 0 {
		o.LoginAttempts = 5
	}
	o.PublicPath = strings.Trim(path.Clean("/"+o.PublicPath), "/")
	o.PublicFolder = path.Clean("/" + o.PublicFolder)
}

func (o *Options) validate() error {
	if o.PublicPath == "" {
		return fmt.Errorf("publicPath must not be the site root")
	}
	switch o.Backend {
	case BackendLocal, BackendGit:
	default:
		return fmt.Errorf("backend %q must be %q or %q", o.Backend, BackendLocal, BackendGit)
	}
	for name, p := range map[string]string{"databasePath": o.DatabasePath, "mediaFolder": o.MediaFolder} {
		if strings.HasPrefix(filepath.ToSlash(filepath.Clean(p)), "../") {
			return fmt.Errorf("%s must stay inside the project root, got %q", name, p)
		}
	}
	if o.LoginAttempts < 0 {
		return fmt.Errorf("loginAttempts must be positive, got %d", o.LoginAttempts)
	}
	return nil
}

// basePath is the site path the editor is mounted at, with both slashes.
func (o *Options) basePath() string {
	return "/" + o.PublicPath + "/"
}
