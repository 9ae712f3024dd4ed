package templating

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"reflect"
	"sync"
	"unicode"
)

// pageTemplateName names the per-render page template. It
// cannot collide with a fragment because logical names are
// file paths.
const pageTemplateName = "@page"

// GoEngine renders with html/template. Filters and helpers
// share the single template function namespace, so a later
// definition with the same name wins across both.
type GoEngine struct {
	mu      sync.RWMutex
	base    *template.Template
	filters map[string]any
	helpers map[string]any
}

// NewGoEngine returns an engine with an empty template set.
func NewGoEngine() *GoEngine {
	return &GoEngine{
		base:    template.New(""),
		filters: map[string]any{},
		helpers: map[string]any{},
	}
}

// goCompiled wraps a parsed html/template.
type goCompiled struct {
	tpl *template.Template
}

// Name returns the template name.
func (gc *goCompiled) Name() string {
	return gc.tpl.Name()
}

// Config decodes options.
func (e *GoEngine) Config(options map[string]any) (Config, error) {
	return DecodeConfig(options)
}

// DefineFilter registers fn as a template function usable
// in pipelines ({{ .title | shout }}).
func (e *GoEngine) DefineFilter(name string, fn any) error {
	const errCtx = "defining filter"

	if err := e.define(e.filters, name, fn); err != nil {
		return fmt.Errorf("%s %q: %w", errCtx, name, err)
	}

	return nil
}

// DefineHelper registers fn as a template function usable
// as a call ({{ shout .title }}).
func (e *GoEngine) DefineHelper(name string, fn any) error {
	const errCtx = "defining helper"

	if err := e.define(e.helpers, name, fn); err != nil {
		return fmt.Errorf("%s %q: %w", errCtx, name, err)
	}

	return nil
}

func (e *GoEngine) define(
	ns map[string]any,
	name string,
	fn any,
) error {
	if !IsCallable(fn) {
		return ErrNotCallable
	}

	if !validFuncName(name) {
		return fmt.Errorf("%q is not a valid identifier", name)
	}

	if err := validFuncSignature(reflect.TypeOf(fn)); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ns[name] = fn
	e.base.Funcs(template.FuncMap{name: fn})

	return nil
}

// funcMap merges filters and helpers, helpers last.
func (e *GoEngine) funcMap() template.FuncMap {
	fm := make(template.FuncMap, len(e.filters)+len(e.helpers))

	for name, fn := range e.filters {
		fm[name] = fn
	}

	for name, fn := range e.helpers {
		fm[name] = fn
	}

	return fm
}

// Compile parses source as a standalone template named
// name. Functions referenced by source must already be
// defined.
func (e *GoEngine) Compile(
	name string,
	source string,
	cfg Config,
) (Compiled, error) {
	const errCtx = "compiling template"

	e.mu.RLock()
	fm := e.funcMap()
	e.mu.RUnlock()

	tpl, err := template.New(name).
		Delims(cfg.LeftDelim, cfg.RightDelim).
		Option(missingKeyOption(cfg.MissingKey)).
		Funcs(fm).
		Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", errCtx, name, err)
	}

	return &goCompiled{tpl: tpl}, nil
}

// DefineTemplate adds the compiled tree to the base set
// under name, along with any {{define}} blocks it carries.
func (e *GoEngine) DefineTemplate(name string, tpl Compiled) error {
	const errCtx = "defining template"

	gc, ok := tpl.(*goCompiled)
	if !ok {
		return fmt.Errorf(
			"%s %q: foreign compiled template %T",
			errCtx, name, tpl,
		)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, assoc := range gc.tpl.Templates() {
		if assoc.Tree == nil {
			continue
		}

		target := assoc.Name()
		if assoc == gc.tpl {
			target = name
		}

		if _, err := e.base.AddParseTree(
			target, assoc.Tree,
		); err != nil {
			return fmt.Errorf("%s %q: %w", errCtx, name, err)
		}
	}

	return nil
}

// Templates returns the names of all defined templates.
func (e *GoEngine) Templates() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var names []string

	for _, tpl := range e.base.Templates() {
		if tpl.Name() == "" {
			continue
		}

		names = append(names, tpl.Name())
	}

	return names
}

// Render parses markup into a clone of the base set and
// executes it against data.
func (e *GoEngine) Render(
	ctx context.Context,
	markup string,
	data any,
	options map[string]any,
	cb Callback,
) (string, error) {
	const errCtx = "rendering page"

	out, err := e.render(ctx, markup, data, options)
	if err != nil {
		err = fmt.Errorf("%s: %w", errCtx, err)
		out = ""
	}

	if cb != nil {
		return cb(out, err)
	}

	return out, err
}

func (e *GoEngine) render(
	ctx context.Context,
	markup string,
	data any,
	options map[string]any,
) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	cfg, err := e.Config(options)
	if err != nil {
		return "", err
	}

	e.mu.RLock()
	set, err := e.base.Clone()
	e.mu.RUnlock()

	if err != nil {
		return "", fmt.Errorf("cloning template set: %w", err)
	}

	page, err := set.New(pageTemplateName).
		Delims(cfg.LeftDelim, cfg.RightDelim).
		Option(missingKeyOption(cfg.MissingKey)).
		Parse(markup)
	if err != nil {
		return "", fmt.Errorf("parsing page: %w", err)
	}

	var buf bytes.Buffer

	if err := page.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing page: %w", err)
	}

	return buf.String(), nil
}

func missingKeyOption(policy string) string {
	if policy == "" {
		policy = MissingKeyDefault
	}

	return "missingkey=" + policy
}

// validFuncName mirrors the identifier rule text/template
// enforces in Funcs, which panics instead of erroring.
func validFuncName(name string) bool {
	if name == "" {
		return false
	}

	for idx, r := range name {
		switch {
		case r == '_':
		case idx == 0 && !unicode.IsLetter(r):
			return false
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			return false
		}
	}

	return true
}

// validFuncSignature mirrors the result rule of
// text/template: one result, or two with an error last.
func validFuncSignature(ft reflect.Type) error {
	switch {
	case ft.NumOut() == 1:
		return nil
	case ft.NumOut() == 2 && ft.Out(1) == errorType:
		return nil
	default:
		return fmt.Errorf(
			"function %s must return one value,"+
				" or a value and an error",
			ft,
		)
	}
}
