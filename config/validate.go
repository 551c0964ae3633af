package config

import (
	"fmt"
	"net/url"
	"strings"
)

// FieldError describes a single invalid field.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Message
}

// ValidationError collects every problem found in a configuration.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.String()
	}
	return "invalid site configuration: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks the structural invariants of cfg. Plugin option bags are
// not inspected; each plugin validates its own.
func Validate(cfg *Config) error {
	if cfg == nil {
		return &ValidationError{Errors: []FieldError{{Field: "config", Message: "is nil"}}}
	}
	verr := &ValidationError{}

	md := cfg.SiteMetadata
	if err := checkAbsoluteURL(md.SiteURL); err != "" {
		verr.add("siteMetadata.siteUrl", "%s", err)
	}
	if md.Hero.MaxWidth < 0 {
		verr.add("siteMetadata.hero.maxWidth", "must not be negative")
	}
	for i, s := range md.Social {
		field := fmt.Sprintf("siteMetadata.social[%d]", i)
		if strings.TrimSpace(s.Name) == "" {
			verr.add(field+".name", "is required")
		}
		if err := checkAbsoluteURL(s.URL); err != "" {
			verr.add(field+".url", "%s", err)
		}
	}

	if len(cfg.Plugins) == 0 {
		verr.add("plugins", "at least one plugin must be activated")
	}
	for i, p := range cfg.Plugins {
		if strings.TrimSpace(p.Resolve) == "" {
			verr.add(fmt.Sprintf("plugins[%d].resolve", i), "is required")
		}
	}

	if len(verr.Errors) > 0 {
		return verr
	}
	return nil
}

func checkAbsoluteURL(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "is required"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "is not a valid URL"
	}
	if !u.IsAbs() || u.Host == "" {
		return "must be an absolute URL"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Sprintf("unsupported scheme %q", u.Scheme)
	}
	return ""
}
