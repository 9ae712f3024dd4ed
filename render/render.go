package render

import (
	"context"
	"fmt"

	"github.com/byte4ever/pagetmpl/templating"
)

// Renderer is the render half of a template engine.
type Renderer interface {
	Render(
		ctx context.Context,
		markup string,
		data any,
		options map[string]any,
		cb templating.Callback,
	) (string, error)
}

// Request is one page render. It lives for a single
// transform.
type Request struct {
	// PagePath is the "/"-prefixed root-relative path.
	PagePath string

	// Markup is the raw page source.
	Markup string

	// Data is the resolved render data.
	Data any

	// Options are the global engine options.
	Options map[string]any

	// Callback, when set, is passed to the engine.
	Callback templating.Callback
}

// Run renders req with eng. On failure the returned text is
// always empty, whatever the engine or callback produced.
func Run(
	ctx context.Context,
	eng Renderer,
	req Request,
) (string, error) {
	const errCtx = "rendering"

	out, err := eng.Render(
		ctx, req.Markup, req.Data, req.Options, req.Callback,
	)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", errCtx, req.PagePath, err)
	}

	return out, nil
}
