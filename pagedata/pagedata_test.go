package pagedata_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/pagetmpl/pagedata"
)

// writeTemp creates a file (and its parent directories)
// under dir and returns its path.
func writeTemp(
	tb testing.TB,
	dir string,
	name string,
	content string,
) string {
	tb.Helper()

	pa := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(tb, os.MkdirAll(filepath.Dir(pa), 0o750))
	require.NoError(tb, os.WriteFile(pa, []byte(content), 0o600))

	return pa
}

func TestResolve_zero_source_is_empty_map(t *testing.T) {
	t.Parallel()

	got, err := pagedata.Source{}.Resolve(
		context.Background(), "/index.html", 0,
	)

	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, got)
}

func TestResolve_static_nil_is_empty_map(t *testing.T) {
	t.Parallel()

	got, err := pagedata.Static(nil).Resolve(
		context.Background(), "/index.html", 0,
	)

	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, got)
}

func TestResolve_static_value_unmodified(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"site": map[string]any{"title": "Docs"},
	}

	src := pagedata.Static(data)
	assert.False(t, src.IsProvider())

	got, err := src.Resolve(context.Background(), "/a.html", 0)
	require.NoError(t, err)

	// Same map, not a copy.
	gotMap, ok := got.(map[string]any)
	require.True(t, ok)
	gotMap["probe"] = true
	assert.Equal(t, true, data["probe"])
}

func TestResolve_provider_receives_page_path(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	src := pagedata.FromProvider(
		func(_ context.Context, pagePath string) (any, error) {
			calls.Add(1)
			return map[string]any{"path": pagePath}, nil
		},
	)
	assert.True(t, src.IsProvider())

	for range 2 {
		got, err := src.Resolve(
			context.Background(), "/blog/post.html", 0,
		)
		require.NoError(t, err)
		assert.Equal(
			t, map[string]any{"path": "/blog/post.html"}, got,
		)
	}

	// Never cached.
	assert.Equal(t, int32(2), calls.Load())
}

func TestResolve_provider_nil_result(t *testing.T) {
	t.Parallel()

	src := pagedata.FromProvider(
		func(context.Context, string) (any, error) {
			return nil, nil
		},
	)

	got, err := src.Resolve(context.Background(), "/", 0)

	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, got)
}

func TestResolve_provider_error(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	src := pagedata.FromProvider(
		func(context.Context, string) (any, error) {
			return nil, boom
		},
	)

	_, err := src.Resolve(context.Background(), "/x.html", 0)

	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "/x.html")
}

func TestResolve_provider_panic(t *testing.T) {
	t.Parallel()

	src := pagedata.FromProvider(
		func(context.Context, string) (any, error) {
			panic("provider bug")
		},
	)

	got, err := src.Resolve(context.Background(), "/x.html", 0)

	require.ErrorIs(t, err, pagedata.ErrProviderPanicked)
	assert.Contains(t, err.Error(), "provider bug")
	assert.Nil(t, got)
}

func TestResolve_provider_timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)

	src := pagedata.FromProvider(
		func(context.Context, string) (any, error) {
			// Ignores ctx on purpose.
			<-release
			return nil, nil
		},
	)

	_, err := src.Resolve(
		context.Background(), "/slow.html", 20*time.Millisecond,
	)

	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResolve_provider_slow_but_in_time(t *testing.T) {
	t.Parallel()

	src := pagedata.FromProvider(
		func(ctx context.Context, _ string) (any, error) {
			select {
			case <-time.After(5 * time.Millisecond):
				return "done", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	)

	got, err := src.Resolve(
		context.Background(), "/p.html", 5*time.Second,
	)

	require.NoError(t, err)
	assert.Equal(t, "done", got)
}

func TestLoadFile_yaml_and_json(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ya := writeTemp(t, dir, "site.yaml", "title: Docs\nnav:\n  home: /\n")
	js := writeTemp(t, dir, "site.json", `{"title":"Docs","nav":{"home":"/"}}`)

	for _, pa := range []string{ya, js} {
		got, err := pagedata.LoadFile(pa)
		require.NoError(t, err)
		assert.Equal(t, "Docs", got["title"])

		nav, ok := got["nav"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "/", nav["home"])
	}
}

func TestLoadFile_empty_file(t *testing.T) {
	t.Parallel()

	pa := writeTemp(t, t.TempDir(), "empty.yaml", "\n")

	got, err := pagedata.LoadFile(pa)

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadFile_invalid(t *testing.T) {
	t.Parallel()

	pa := writeTemp(t, t.TempDir(), "bad.json", "{not json")

	_, err := pagedata.LoadFile(pa)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading data file")
}

func TestLoadFile_missing(t *testing.T) {
	t.Parallel()

	_, err := pagedata.LoadFile("/nonexistent/data.yaml")

	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadEnv_later_overrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := writeTemp(t, dir, ".env", "MODE=dev\nNAME=site\n")
	second := writeTemp(t, dir, ".env.prod", "MODE=prod\n")

	got, err := pagedata.LoadEnv(first, second)

	require.NoError(t, err)
	assert.Equal(
		t,
		map[string]string{"MODE": "prod", "NAME": "site"},
		got,
	)
}

func TestLoadEnv_missing(t *testing.T) {
	t.Parallel()

	_, err := pagedata.LoadEnv("/nonexistent/.env")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading env files")
}

func TestFilesProvider(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTemp(t, dir, "blog/post.yaml", "title: Post\n")
	writeTemp(t, dir, "about.json", `{"title":"About"}`)
	writeTemp(t, dir, "index.yml", "title: Home\n")

	provider := pagedata.FilesProvider(dir)

	tests := []struct {
		page string
		want map[string]any
	}{
		{page: "/blog/post.html", want: map[string]any{"title": "Post"}},
		{page: "/about.html", want: map[string]any{"title": "About"}},
		{page: "/", want: map[string]any{"title": "Home"}},
		{page: "/missing.html", want: map[string]any{}},
	}

	for _, tc := range tests {
		got, err := provider(context.Background(), tc.page)
		require.NoError(t, err, tc.page)
		assert.Equal(t, tc.want, got, tc.page)
	}
}

func TestFilesProvider_rejects_escape(t *testing.T) {
	t.Parallel()

	provider := pagedata.FilesProvider(t.TempDir())

	for _, page := range []string{
		"/../secret.html",
		"/blog/../../secret.html",
	} {
		_, err := provider(context.Background(), page)

		require.Error(t, err, page)
		assert.Contains(t, err.Error(), "escapes data dir", page)
	}
}

func TestFilesProvider_dots_inside_name(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTemp(t, dir, "v1..2.yaml", "title: Release\n")
	writeTemp(t, dir, "docs.json", `{"title":"Docs"}`)

	provider := pagedata.FilesProvider(dir)

	got, err := provider(context.Background(), "/v1..2.html")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "Release"}, got)

	got, err = provider(context.Background(), "/blog/../docs.html")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "Docs"}, got)
}

func FuzzDecode(f *testing.F) {
	f.Add("data.yaml", "a: 1\n")
	f.Add("data.json", `{"a":1}`)
	f.Add("data.yml", "- 1\n- 2\n")
	f.Add("data.json", "")

	f.Fuzz(func(t *testing.T, name string, content string) {
		got, err := pagedata.Decode(name, []byte(content))
		if err != nil {
			return
		}

		assert.NotNil(t, got)
	})
}
