package templating

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// Missing key policies understood by both engines.
const (
	MissingKeyDefault = "default"
	MissingKeyZero    = "zero"
	MissingKeyError   = "error"
)

const defaultMaxIncludeDepth = 16

// ErrNotCallable is returned when a filter or helper value
// is not a function.
var ErrNotCallable = errors.New("value is not callable")

// ErrFuncPanicked is returned when a filter or helper
// panics during a render.
var ErrFuncPanicked = errors.New("function panicked")

// Callback observes the outcome of a render and returns the
// final output. The engine calls it exactly once; on
// failure out is always empty.
type Callback func(out string, err error) (string, error)

// Compiled is an engine-owned compiled template handle.
type Compiled interface {
	Name() string
}

// Engine is the template engine contract. Filters and
// helpers must be defined before any Compile call. After
// discovery the engine is only read from, and Render is
// safe for concurrent use.
type Engine interface {
	// Config decodes opaque engine options.
	Config(options map[string]any) (Config, error)

	// Compile parses source under name.
	Compile(name string, source string, cfg Config) (Compiled, error)

	// DefineTemplate registers a compiled template so
	// pages can include it by name. A later definition
	// with the same name replaces the earlier one.
	DefineTemplate(name string, tpl Compiled) error

	// DefineFilter registers fn in the filter namespace.
	DefineFilter(name string, fn any) error

	// DefineHelper registers fn in the helper namespace.
	DefineHelper(name string, fn any) error

	// Render executes markup against data. When cb is
	// not nil its return value is the render result.
	Render(
		ctx context.Context,
		markup string,
		data any,
		options map[string]any,
		cb Callback,
	) (string, error)
}

// Config holds decoded engine options.
type Config struct {
	// LeftDelim opens a template action.
	LeftDelim string `mapstructure:"leftDelim"`

	// RightDelim closes a template action.
	RightDelim string `mapstructure:"rightDelim"`

	// MissingKey is one of default, zero or error.
	MissingKey string `mapstructure:"missingKey"`

	// MaxIncludeDepth bounds nested partial inclusion
	// for engines that resolve partials themselves.
	MaxIncludeDepth int `mapstructure:"maxIncludeDepth"`
}

// DefaultConfig returns the options used when none are
// given: double-brace delimiters, the default missing key
// policy and an include depth of 16.
func DefaultConfig() Config {
	return Config{
		LeftDelim:       "{{",
		RightDelim:      "}}",
		MissingKey:      MissingKeyDefault,
		MaxIncludeDepth: defaultMaxIncludeDepth,
	}
}

// DecodeConfig decodes options over DefaultConfig. Input is
// weakly typed so values read from YAML or flags ("8",
// 8.0) decode into their field types. Unrelated keys are
// ignored because options are shared with the caller.
func DecodeConfig(options map[string]any) (Config, error) {
	const errCtx = "decoding engine options"

	cfg := DefaultConfig()

	if len(options) == 0 {
		return cfg, nil
	}

	dec, err := mapstructure.NewDecoder(
		&mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			TagName:          "mapstructure",
		},
	)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := dec.Decode(options); err != nil {
		return Config{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	if cfg.LeftDelim == "" {
		cfg.LeftDelim = "{{"
	}

	if cfg.RightDelim == "" {
		cfg.RightDelim = "}}"
	}

	switch cfg.MissingKey {
	case "":
		cfg.MissingKey = MissingKeyDefault
	case MissingKeyDefault, MissingKeyZero, MissingKeyError:
	default:
		return Config{}, fmt.Errorf(
			"%s: unknown missingKey %q",
			errCtx, cfg.MissingKey,
		)
	}

	if cfg.MaxIncludeDepth <= 0 {
		cfg.MaxIncludeDepth = defaultMaxIncludeDepth
	}

	return cfg, nil
}

// IsCallable reports whether v is a non-nil function.
func IsCallable(v any) bool {
	if v == nil {
		return false
	}

	rv := reflect.ValueOf(v)

	return rv.Kind() == reflect.Func && !rv.IsNil()
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// callFunc invokes fn with args, converting each argument
// to the parameter type when possible. fn may return a
// value, a value and an error, or only an error. A panic
// in fn is returned as ErrFuncPanicked.
func callFunc(fn any, args ...any) (result any, retErr error) {
	const errCtx = "calling function"

	defer func() {
		if r := recover(); r != nil {
			result = nil
			retErr = fmt.Errorf("%s: %w: %v", errCtx, ErrFuncPanicked, r)
		}
	}()

	fv := reflect.ValueOf(fn)
	ft := fv.Type()

	if ft.IsVariadic() {
		if len(args) < ft.NumIn()-1 {
			return nil, fmt.Errorf(
				"%s: want at least %d arguments, got %d",
				errCtx, ft.NumIn()-1, len(args),
			)
		}
	} else if len(args) != ft.NumIn() {
		return nil, fmt.Errorf(
			"%s: want %d arguments, got %d",
			errCtx, ft.NumIn(), len(args),
		)
	}

	in := make([]reflect.Value, len(args))

	for idx, arg := range args {
		var pt reflect.Type
		if ft.IsVariadic() && idx >= ft.NumIn()-1 {
			pt = ft.In(ft.NumIn() - 1).Elem()
		} else {
			pt = ft.In(idx)
		}

		av, err := convertArg(arg, pt)
		if err != nil {
			return nil, fmt.Errorf(
				"%s: argument %d: %w", errCtx, idx, err,
			)
		}

		in[idx] = av
	}

	out := fv.Call(in)

	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if ft.Out(0) == errorType {
			return nil, asError(out[0])
		}

		return out[0].Interface(), nil
	default:
		return out[0].Interface(), asError(out[len(out)-1])
	}
}

func convertArg(arg any, pt reflect.Type) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(pt), nil
	}

	av := reflect.ValueOf(arg)

	switch {
	case av.Type().AssignableTo(pt):
		return av, nil
	case av.Type().ConvertibleTo(pt) &&
		av.Kind() != reflect.String &&
		pt.Kind() != reflect.String:
		return av.Convert(pt), nil
	case av.Kind() == reflect.String && pt.Kind() == reflect.String:
		return av.Convert(pt), nil
	case pt.Kind() == reflect.String:
		return reflect.ValueOf(fmt.Sprint(arg)).Convert(pt), nil
	default:
		return reflect.Value{}, fmt.Errorf(
			"cannot use %T as %s", arg, pt,
		)
	}
}

func asError(rv reflect.Value) error {
	if !rv.IsValid() {
		return nil
	}

	// A nil error interface yields a nil any, which fails
	// the assertion and leaves err nil.
	err, _ := rv.Interface().(error)

	return err
}
