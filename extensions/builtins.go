package extensions

import (
	"bytes"
	"fmt"
	"html/template"

	json "github.com/goccy/go-json"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Builtins returns the default filter set:
//
//	markdown  renders GitHub-flavoured Markdown to HTML
//	json      encodes any value as JSON
func Builtins() Set {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
	)

	return Set{
		Filters: map[string]any{
			"markdown": func(src string) (template.HTML, error) {
				return markdown(md, src)
			},
			"json": toJSON,
		},
	}
}

func markdown(md goldmark.Markdown, src string) (template.HTML, error) {
	var buf bytes.Buffer

	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}

	//nolint:gosec // markdown comes from the site sources
	return template.HTML(buf.String()), nil
}

func toJSON(v any) (string, error) {
	by, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding json: %w", err)
	}

	return string(by), nil
}
