package plugin

import (
	"errors"
	"fmt"
)

var (
	// ErrUnresolved is returned when an activation names a plugin the host cannot locate.
	ErrUnresolved = errors.New("plugin not found")

	// ErrDuplicate is returned when the same plugin is activated more than once.
	ErrDuplicate = errors.New("plugin activated more than once")
)

// Stage names the point of the lifecycle a plugin failed in.
type Stage string

const (
	StageOptions     Stage = "options"
	StageSourceNodes Stage = "sourceNodes"
	StageCreatePages Stage = "createPages"
	StageRender      Stage = "render"
	StagePostBuild   Stage = "postBuild"
	StageRoutes      Stage = "routes"
)

// Error represents an error that occurred within a plugin.
type Error struct {
	Plugin string
	Stage  Stage
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("plugin %s failed during %s: %v", e.Plugin, e.Stage, e.Err)
}

// Unwrap returns the underlying error for error inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with the plugin and stage it came from.
func NewError(plugin string, stage Stage, err error) *Error {
	return &Error{Plugin: plugin, Stage: stage, Err: err}
}
