package plugin

import (
	"context"

	"github.com/a-h/templ"
)

type headKey struct{}

// WithHead attaches the head components contributed by plugins to ctx.
func WithHead(ctx context.Context, components []templ.Component) context.Context {
	return context.WithValue(ctx, headKey{}, components)
}

// Head returns the head components attached to ctx.
func Head(ctx context.Context) []templ.Component {
	c, _ := ctx.Value(headKey{}).([]templ.Component)
	return c
}
