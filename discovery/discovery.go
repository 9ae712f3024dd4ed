package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/byte4ever/pagetmpl/templating"
)

var (
	// ErrRead marks a fragment that could not be
	// enumerated or read.
	ErrRead = errors.New("reading fragment")

	// ErrCompile marks a fragment the engine rejected.
	ErrCompile = errors.New("compiling fragment")
)

// DefaultExtensions are the recognized template file
// extensions when none are configured.
var DefaultExtensions = []string{".html", ".htm", ".tmpl"}

// File is one discovered fragment.
type File struct {
	// Path is the absolute file path.
	Path string

	// Name is the path relative to the fragment root with
	// the extension removed, always "/"-separated.
	Name string

	// Content is the raw template source.
	Content string
}

// Registrar compiles and stores fragments.
type Registrar interface {
	Compile(
		name string,
		source string,
		cfg templating.Config,
	) (templating.Compiled, error)
	DefineTemplate(name string, tpl templating.Compiled) error
}

// Find returns every file under root whose extension
// matches one of exts (case-insensitive), in WalkDir
// order. Any enumeration or read failure is returned
// wrapped with ErrRead.
func Find(root string, exts []string) ([]File, error) {
	const errCtx = "finding fragments"

	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	var files []File

	err := filepath.WalkDir(
		root,
		func(pa string, de fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if de.IsDir() {
				return nil
			}

			ext, ok := matchExt(pa, exts)
			if !ok {
				return nil
			}

			content, err := os.ReadFile(pa) //nolint:gosec // walking a configured directory
			if err != nil {
				return err
			}

			files = append(files, File{
				Path:    pa,
				Name:    logicalName(root, pa, ext),
				Content: string(content),
			})

			return nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", errCtx, ErrRead, err)
	}

	return files, nil
}

// Register compiles each file with cfg and defines it under
// its logical name. Later files replace earlier ones with
// the same name. It returns the registered names in order,
// without duplicates.
func Register(
	reg Registrar,
	cfg templating.Config,
	files []File,
) ([]string, error) {
	const errCtx = "registering fragments"

	seen := make(map[string]string, len(files))
	names := make([]string, 0, len(files))

	for _, fi := range files {
		tpl, err := reg.Compile(fi.Name, fi.Content, cfg)
		if err != nil {
			return names, fmt.Errorf(
				"%s: %s: %w: %w",
				errCtx, fi.Path, ErrCompile, err,
			)
		}

		if err := reg.DefineTemplate(fi.Name, tpl); err != nil {
			return names, fmt.Errorf(
				"%s: %s: %w: %w",
				errCtx, fi.Path, ErrCompile, err,
			)
		}

		if prev, dup := seen[fi.Name]; dup {
			slog.Warn(
				"fragment name collision, last one wins",
				"name", fi.Name,
				"replaced", prev,
				"by", fi.Path,
			)
		} else {
			names = append(names, fi.Name)
		}

		seen[fi.Name] = fi.Path

		slog.Debug(
			"registered fragment",
			"name", fi.Name,
			"path", fi.Path,
		)
	}

	return names, nil
}

// Discover finds fragments under root and registers them.
func Discover(
	reg Registrar,
	cfg templating.Config,
	root string,
	exts []string,
) ([]string, error) {
	const errCtx = "discovering fragments"

	files, err := Find(root, exts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	names, err := Register(reg, cfg, files)
	if err != nil {
		return names, fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info(
		"discovered fragments",
		"dir", root,
		"count", len(names),
	)

	return names, nil
}

// matchExt returns the file's actual extension when it
// matches one of exts, ignoring case.
func matchExt(pa string, exts []string) (string, bool) {
	ext := filepath.Ext(pa)
	if ext == "" {
		return "", false
	}

	for _, want := range exts {
		if !strings.HasPrefix(want, ".") {
			want = "." + want
		}

		if strings.EqualFold(ext, want) {
			return ext, true
		}
	}

	return "", false
}

func logicalName(root string, pa string, ext string) string {
	rel, err := filepath.Rel(root, pa)
	if err != nil {
		rel = filepath.Base(pa)
	}

	return filepath.ToSlash(strings.TrimSuffix(rel, ext))
}
