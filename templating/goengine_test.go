package templating_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/pagetmpl/templating"
)

// defineGo compiles source and registers it under name.
func defineGo(
	tb testing.TB,
	en *templating.GoEngine,
	name string,
	source string,
) {
	tb.Helper()

	cfg, err := en.Config(nil)
	require.NoError(tb, err)

	tpl, err := en.Compile(name, source, cfg)
	require.NoError(tb, err)
	require.NoError(tb, en.DefineTemplate(name, tpl))
}

func TestGoEngine_filter_in_pipeline(t *testing.T) {
	t.Parallel()

	en := templating.NewGoEngine()
	require.NoError(t, en.DefineFilter("shout", strings.ToUpper))

	got, err := en.Render(
		context.Background(),
		`{{ "hi" | shout }}`,
		map[string]any{},
		nil,
		nil,
	)

	require.NoError(t, err)
	assert.Equal(t, "HI", got)
}

func TestGoEngine_helper_call(t *testing.T) {
	t.Parallel()

	en := templating.NewGoEngine()
	require.NoError(t, en.DefineHelper(
		"greet",
		func(name string) string { return "Hello " + name },
	))

	got, err := en.Render(
		context.Background(),
		`<p>{{ greet .user }}</p>`,
		map[string]any{"user": "Ada"},
		nil,
		nil,
	)

	require.NoError(t, err)
	assert.Equal(t, "<p>Hello Ada</p>", got)
}

func TestGoEngine_partial_inclusion(t *testing.T) {
	t.Parallel()

	en := templating.NewGoEngine()
	defineGo(t, en, "header/top", `<h1>{{ .title }}</h1>`)
	defineGo(t, en, "footer", `<footer>end</footer>`)

	got, err := en.Render(
		context.Background(),
		`{{ template "header/top" . }}body{{ template "footer" }}`,
		map[string]any{"title": "Home"},
		nil,
		nil,
	)

	require.NoError(t, err)
	assert.Equal(t, "<h1>Home</h1>body<footer>end</footer>", got)
	assert.ElementsMatch(
		t, []string{"header/top", "footer"}, en.Templates(),
	)
}

func TestGoEngine_layout_blocks(t *testing.T) {
	t.Parallel()

	en := templating.NewGoEngine()
	defineGo(
		t, en, "base",
		`<main>{{ block "content" . }}default{{ end }}</main>`,
	)

	got, err := en.Render(
		context.Background(),
		`{{ define "content" }}page {{ .n }}{{ end }}{{ template "base" . }}`,
		map[string]any{"n": 1},
		nil,
		nil,
	)

	require.NoError(t, err)
	assert.Equal(t, "<main>page 1</main>", got)

	// The override lived in the per-render clone only.
	got, err = en.Render(
		context.Background(),
		`{{ template "base" . }}`,
		nil,
		nil,
		nil,
	)

	require.NoError(t, err)
	assert.Equal(t, "<main>default</main>", got)
}

func TestGoEngine_redefinition_last_wins(t *testing.T) {
	t.Parallel()

	en := templating.NewGoEngine()
	defineGo(t, en, "footer", `first`)
	defineGo(t, en, "footer", `second`)

	got, err := en.Render(
		context.Background(),
		`{{ template "footer" }}`,
		nil,
		nil,
		nil,
	)

	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func TestGoEngine_escapes_html(t *testing.T) {
	t.Parallel()

	en := templating.NewGoEngine()

	got, err := en.Render(
		context.Background(),
		`<p>{{ .v }}</p>`,
		map[string]any{"v": "<b>"},
		nil,
		nil,
	)

	require.NoError(t, err)
	assert.Equal(t, "<p>&lt;b&gt;</p>", got)
}

func TestGoEngine_custom_delims(t *testing.T) {
	t.Parallel()

	en := templating.NewGoEngine()
	opts := map[string]any{"leftDelim": "[[", "rightDelim": "]]"}

	got, err := en.Render(
		context.Background(),
		`{{ keep }} [[ .name ]]`,
		map[string]any{"name": "x"},
		opts,
		nil,
	)

	require.NoError(t, err)
	assert.Equal(t, "{{ keep }} x", got)
}

func TestGoEngine_missing_key_error(t *testing.T) {
	t.Parallel()

	en := templating.NewGoEngine()

	_, err := en.Render(
		context.Background(),
		`{{ .absent }}`,
		map[string]any{},
		map[string]any{"missingKey": "error"},
		nil,
	)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "rendering page")
}

func TestGoEngine_parse_error(t *testing.T) {
	t.Parallel()

	en := templating.NewGoEngine()

	_, err := en.Render(
		context.Background(), `{{ if }}`, nil, nil, nil,
	)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing page")
}

func TestGoEngine_unknown_function_fails_compile(t *testing.T) {
	t.Parallel()

	en := templating.NewGoEngine()

	_, err := en.Compile(
		"p", `{{ nope . }}`, templating.DefaultConfig(),
	)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "compiling template")
}

func TestGoEngine_define_rejects_bad_functions(t *testing.T) {
	t.Parallel()

	en := templating.NewGoEngine()

	err := en.DefineFilter("notfunc", "value")
	require.ErrorIs(t, err, templating.ErrNotCallable)

	err = en.DefineFilter("bad-name", strings.ToUpper)
	require.Error(t, err)

	err = en.DefineHelper("noresult", func() {})
	require.Error(t, err)

	err = en.DefineHelper("badsecond", func() (string, int) {
		return "", 0
	})
	require.Error(t, err)
}

func TestGoEngine_callback_transforms_output(t *testing.T) {
	t.Parallel()

	en := templating.NewGoEngine()

	got, err := en.Render(
		context.Background(),
		`{{ .v }}`,
		map[string]any{"v": "body"},
		nil,
		func(out string, err error) (string, error) {
			return "<!-- built -->" + out, err
		},
	)

	require.NoError(t, err)
	assert.Equal(t, "<!-- built -->body", got)
}

func TestGoEngine_callback_gets_no_partial_output(t *testing.T) {
	t.Parallel()

	en := templating.NewGoEngine()
	boom := errors.New("boom")
	require.NoError(t, en.DefineHelper(
		"fail", func() (string, error) { return "", boom },
	))

	var (
		seenOut string
		seenErr error
	)

	_, err := en.Render(
		context.Background(),
		`partial {{ fail }}`,
		nil,
		nil,
		func(out string, err error) (string, error) {
			seenOut, seenErr = out, err
			return out, err
		},
	)

	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, seenErr, boom)
	assert.Empty(t, seenOut)
}

func TestGoEngine_cancelled_context(t *testing.T) {
	t.Parallel()

	en := templating.NewGoEngine()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := en.Render(ctx, `x`, nil, nil, nil)

	require.ErrorIs(t, err, context.Canceled)
}

func TestGoEngine_concurrent_renders(t *testing.T) {
	t.Parallel()

	en := templating.NewGoEngine()
	defineGo(t, en, "item", `<li>{{ . }}</li>`)

	var wg sync.WaitGroup

	errs := make(chan error, 32)

	for idx := range 32 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			got, err := en.Render(
				context.Background(),
				`{{ template "item" .n }}`,
				map[string]any{"n": idx},
				nil,
				nil,
			)
			if err != nil {
				errs <- err
				return
			}

			if got != fmt.Sprintf("<li>%d</li>", idx) {
				errs <- fmt.Errorf("unexpected output %q", got)
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
}
