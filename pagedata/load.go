package pagedata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// dataExts are tried in order by FilesProvider.
var dataExts = []string{".yaml", ".yml", ".json"}

// LoadFile decodes a YAML or JSON file, chosen by
// extension, into a map.
func LoadFile(file string) (map[string]any, error) {
	const errCtx = "loading data file"

	content, err := os.ReadFile(file) //nolint:gosec // path from configuration
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	data, err := Decode(file, content)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", errCtx, file, err)
	}

	return data, nil
}

// Decode parses content as JSON when name ends in .json
// and as YAML otherwise. Empty content yields an empty map.
func Decode(name string, content []byte) (map[string]any, error) {
	data := map[string]any{}

	if len(strings.TrimSpace(string(content))) == 0 {
		return data, nil
	}

	var err error
	if strings.EqualFold(filepath.Ext(name), ".json") {
		err = json.Unmarshal(content, &data)
	} else {
		err = yaml.Unmarshal(content, &data)
	}

	if err != nil {
		return nil, err
	}

	if data == nil {
		data = map[string]any{}
	}

	return data, nil
}

// LoadEnv reads .env files; later files override earlier
// ones.
func LoadEnv(files ...string) (map[string]string, error) {
	const errCtx = "loading env files"

	env := map[string]string{}

	for _, fi := range files {
		vals, err := godotenv.Read(fi)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		for key, val := range vals {
			env[key] = val
		}
	}

	return env, nil
}

// FilesProvider returns a Provider reading the data file
// for each page from dir. The page "/blog/post.html" maps
// to "<dir>/blog/post.yaml", ".yml" or ".json", first
// match wins. The root page "/" maps to "<dir>/index.*".
// A page without a data file gets an empty map.
func FilesProvider(dir string) Provider {
	return func(ctx context.Context, pagePath string) (any, error) {
		const errCtx = "reading page data"

		base := strings.TrimPrefix(pagePath, "/")
		base = strings.TrimSuffix(base, filepath.Ext(base))

		if base == "" {
			base = "index"
		}

		base = path.Clean(base)

		if base == ".." || strings.HasPrefix(base, "../") {
			return nil, fmt.Errorf(
				"%s: page %q escapes data dir",
				errCtx, pagePath,
			)
		}

		for _, ext := range dataExts {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			pa := filepath.Join(dir, filepath.FromSlash(base)+ext)

			data, err := LoadFile(pa)
			if errors.Is(err, os.ErrNotExist) {
				continue
			}

			if err != nil {
				return nil, fmt.Errorf("%s: %w", errCtx, err)
			}

			return data, nil
		}

		return map[string]any{}, nil
	}
}
