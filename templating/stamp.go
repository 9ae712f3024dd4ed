package templating

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/valyala/fasttemplate"
)

// ErrUnknownKey is returned by StampEngine when a tag names
// a missing data key and missingKey is "error".
var ErrUnknownKey = errors.New("unknown key")

// StampEngine expands tags with valyala/fasttemplate.
// Filters and helpers live in separate namespaces.
type StampEngine struct {
	mu        sync.RWMutex
	templates map[string]*stampCompiled
	filters   map[string]any
	helpers   map[string]any
}

// NewStampEngine returns an empty engine.
func NewStampEngine() *StampEngine {
	return &StampEngine{
		templates: map[string]*stampCompiled{},
		filters:   map[string]any{},
		helpers:   map[string]any{},
	}
}

// stampCompiled is a parsed fasttemplate together with the
// tags it was parsed with.
type stampCompiled struct {
	name string
	tpl  *fasttemplate.Template
	cfg  Config
}

// Name returns the template name.
func (sc *stampCompiled) Name() string {
	return sc.name
}

// Config decodes options.
func (e *StampEngine) Config(options map[string]any) (Config, error) {
	return DecodeConfig(options)
}

// DefineFilter registers fn for use after a pipe
// ({{title|shout}}). fn receives the current value.
func (e *StampEngine) DefineFilter(name string, fn any) error {
	return e.define(e.filters, "defining filter", name, fn)
}

// DefineHelper registers fn for call-style tags
// ({{shout title}}).
func (e *StampEngine) DefineHelper(name string, fn any) error {
	return e.define(e.helpers, "defining helper", name, fn)
}

func (e *StampEngine) define(
	ns map[string]any,
	errCtx string,
	name string,
	fn any,
) error {
	if !IsCallable(fn) {
		return fmt.Errorf("%s %q: %w", errCtx, name, ErrNotCallable)
	}

	if name == "" || strings.ContainsAny(name, " \t|>\"") {
		return fmt.Errorf(
			"%s %q: invalid name", errCtx, name,
		)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ns[name] = fn

	return nil
}

// Compile parses source with the configured tags.
func (e *StampEngine) Compile(
	name string,
	source string,
	cfg Config,
) (Compiled, error) {
	const errCtx = "compiling template"

	tpl, err := fasttemplate.NewTemplate(
		source, cfg.LeftDelim, cfg.RightDelim,
	)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", errCtx, name, err)
	}

	return &stampCompiled{name: name, tpl: tpl, cfg: cfg}, nil
}

// DefineTemplate registers tpl for {{> name}} inclusion.
func (e *StampEngine) DefineTemplate(name string, tpl Compiled) error {
	const errCtx = "defining template"

	sc, ok := tpl.(*stampCompiled)
	if !ok {
		return fmt.Errorf(
			"%s %q: foreign compiled template %T",
			errCtx, name, tpl,
		)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.templates[name] = sc

	return nil
}

// Render expands markup against data.
func (e *StampEngine) Render(
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

func (e *StampEngine) render(
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

	tpl, err := fasttemplate.NewTemplate(
		markup, cfg.LeftDelim, cfg.RightDelim,
	)
	if err != nil {
		return "", fmt.Errorf("parsing page: %w", err)
	}

	st := &stampState{
		engine: e,
		data:   data,
		cfg:    cfg,
	}

	return tpl.ExecuteFuncStringWithErr(st.tagFunc(0))
}

// stampState carries one render's inputs through nested
// partial expansion.
type stampState struct {
	engine *StampEngine
	data   any
	cfg    Config
}

func (st *stampState) tagFunc(depth int) fasttemplate.TagFunc {
	return func(w io.Writer, tag string) (int, error) {
		expr := strings.TrimSpace(tag)

		if name, ok := strings.CutPrefix(expr, ">"); ok {
			return st.include(w, strings.TrimSpace(name), depth)
		}

		val, found, err := st.eval(expr)
		if err != nil {
			return 0, fmt.Errorf("tag %q: %w", expr, err)
		}

		if !found {
			return st.missing(w, tag)
		}

		if val == nil {
			return 0, nil
		}

		return io.WriteString(w, fmt.Sprint(val))
	}
}

func (st *stampState) include(
	w io.Writer,
	name string,
	depth int,
) (int, error) {
	if depth >= st.cfg.MaxIncludeDepth {
		return 0, fmt.Errorf(
			"including %q: depth limit %d exceeded",
			name, st.cfg.MaxIncludeDepth,
		)
	}

	st.engine.mu.RLock()
	sc, ok := st.engine.templates[name]
	st.engine.mu.RUnlock()

	if !ok {
		return 0, fmt.Errorf("including %q: no such template", name)
	}

	out, err := sc.tpl.ExecuteFuncStringWithErr(st.tagFunc(depth + 1))
	if err != nil {
		return 0, fmt.Errorf("including %q: %w", name, err)
	}

	return io.WriteString(w, out)
}

func (st *stampState) missing(w io.Writer, tag string) (int, error) {
	switch st.cfg.MissingKey {
	case MissingKeyZero:
		return 0, nil
	case MissingKeyError:
		return 0, fmt.Errorf(
			"%w: %q", ErrUnknownKey, strings.TrimSpace(tag),
		)
	default:
		return io.WriteString(
			w, st.cfg.LeftDelim+tag+st.cfg.RightDelim,
		)
	}
}

// eval evaluates "head|filter|filter". The head is either
// a helper call or a data key.
func (st *stampState) eval(expr string) (any, bool, error) {
	stages := strings.Split(expr, "|")

	val, found, err := st.evalHead(strings.TrimSpace(stages[0]))
	if err != nil || !found {
		return nil, found, err
	}

	for _, stage := range stages[1:] {
		name := strings.TrimSpace(stage)

		st.engine.mu.RLock()
		fn, ok := st.engine.filters[name]
		st.engine.mu.RUnlock()

		if !ok {
			return nil, false, fmt.Errorf("no such filter %q", name)
		}

		val, err = callFunc(fn, val)
		if err != nil {
			return nil, false, fmt.Errorf("filter %q: %w", name, err)
		}
	}

	return val, true, nil
}

func (st *stampState) evalHead(head string) (any, bool, error) {
	fields, err := splitArgs(head)
	if err != nil {
		return nil, false, err
	}

	if len(fields) == 0 {
		return nil, false, nil
	}

	st.engine.mu.RLock()
	helper, isHelper := st.engine.helpers[fields[0]]
	st.engine.mu.RUnlock()

	if !isHelper {
		if len(fields) > 1 {
			return nil, false, fmt.Errorf(
				"no such helper %q", fields[0],
			)
		}

		if lit, ok := literal(fields[0]); ok {
			return lit, true, nil
		}

		val, found := Lookup(st.data, fields[0])

		return val, found, nil
	}

	args := make([]any, 0, len(fields)-1)

	for _, field := range fields[1:] {
		if lit, ok := literal(field); ok {
			args = append(args, lit)
			continue
		}

		val, found := Lookup(st.data, field)
		if !found && st.cfg.MissingKey == MissingKeyError {
			return nil, false, fmt.Errorf(
				"%w: %q", ErrUnknownKey, field,
			)
		}

		args = append(args, val)
	}

	val, err := callFunc(helper, args...)
	if err != nil {
		return nil, false, fmt.Errorf("helper %q: %w", fields[0], err)
	}

	return val, true, nil
}

// literal reports whether field is a quoted string.
func literal(field string) (string, bool) {
	if len(field) < 2 || field[0] != '"' {
		return "", false
	}

	s, err := strconv.Unquote(field)
	if err != nil {
		return "", false
	}

	return s, true
}

// splitArgs splits on whitespace, keeping double-quoted
// strings (with escapes) as single fields.
func splitArgs(s string) ([]string, error) {
	var (
		fields  []string
		cur     strings.Builder
		quoted  bool
		escaped bool
	)

	flush := func() {
		if cur.Len() > 0 {
			fields = append(fields, cur.String())
			cur.Reset()
		}
	}

	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case quoted && r == '\\':
			cur.WriteRune(r)
			escaped = true
		case r == '"':
			cur.WriteRune(r)
			quoted = !quoted
		case !quoted && (r == ' ' || r == '\t' || r == '\n'):
			flush()
		default:
			cur.WriteRune(r)
		}
	}

	if quoted {
		return nil, fmt.Errorf("unterminated string in %q", s)
	}

	flush()

	return fields, nil
}

// Lookup resolves a dotted key against nested maps, slices
// and structs. A top-level map entry whose key literally
// contains dots ("variables.NAME") wins over traversal.
func Lookup(data any, key string) (any, bool) {
	if key == "." {
		return data, data != nil
	}

	if m, ok := data.(map[string]any); ok {
		if val, ok := m[key]; ok {
			return val, true
		}
	}

	cur := data

	for _, part := range strings.Split(key, ".") {
		next, ok := step(cur, part)
		if !ok {
			return nil, false
		}

		cur = next
	}

	return cur, true
}

func step(cur any, part string) (any, bool) {
	switch typed := cur.(type) {
	case nil:
		return nil, false
	case map[string]any:
		val, ok := typed[part]
		return val, ok
	case map[string]string:
		val, ok := typed[part]
		return val, ok
	}

	rv := reflect.ValueOf(cur)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}

		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}

		val := rv.MapIndex(reflect.ValueOf(part).Convert(rv.Type().Key()))
		if !val.IsValid() {
			return nil, false
		}

		return val.Interface(), true
	case reflect.Slice, reflect.Array:
		idx, err := strconv.Atoi(part)
		if err != nil || idx < 0 || idx >= rv.Len() {
			return nil, false
		}

		return rv.Index(idx).Interface(), true
	case reflect.Struct:
		field := rv.FieldByName(part)
		if !field.IsValid() || !field.CanInterface() {
			return nil, false
		}

		return field.Interface(), true
	default:
		return nil, false
	}
}
