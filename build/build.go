package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/natefinch/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/byte4ever/pagetmpl/pagepath"
)

// ErrOutDirIsRoot is returned when the output directory
// would overwrite the sources.
var ErrOutDirIsRoot = errors.New("output directory is the site root")

// Transformer is the plugin surface the host drives.
type Transformer interface {
	OnRootResolved(root string) error
	Matches(assetID string) bool
	Transform(
		ctx context.Context,
		content string,
		assetID string,
	) (string, error)
}

// Options configures one build.
type Options struct {
	// Root is the site root. Relative paths resolve
	// against the working directory.
	Root string

	// OutDir receives the rendered pages.
	OutDir string

	// SkipDirs are excluded from the page walk; relative
	// entries resolve against Root.
	SkipDirs []string

	// Parallelism bounds concurrent transforms; zero means
	// GOMAXPROCS.
	Parallelism int

	// KeepGoing renders every page and reports all
	// failures at the end instead of stopping at the
	// first one.
	KeepGoing bool
}

// Run builds the site and returns the written pages as
// slash separated paths relative to OutDir, sorted.
func Run(
	ctx context.Context,
	opts Options,
	tr Transformer,
) ([]string, error) {
	const errCtx = "building site"

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	root = pagepath.Normalize(root)

	outDir, err := filepath.Abs(opts.OutDir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if outDir == root {
		return nil, fmt.Errorf("%s: %w", errCtx, ErrOutDirIsRoot)
	}

	if err := tr.OnRootResolved(root); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	skip := map[string]bool{outDir: true}

	for _, dir := range opts.SkipDirs {
		if dir == "" {
			continue
		}

		pa, err := pagepath.FragmentRoot(root, dir)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		skip[pa] = true
	}

	pages, err := findPages(root, skip, tr.Matches)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info(
		"building pages",
		"root", root,
		"out", outDir,
		"pages", len(pages),
	)

	written, err := buildAll(ctx, opts, tr, root, outDir, pages)
	if err != nil {
		return written, fmt.Errorf("%s: %w", errCtx, err)
	}

	return written, nil
}

func buildAll(
	ctx context.Context,
	opts Options,
	tr Transformer,
	root string,
	outDir string,
	pages []string,
) ([]string, error) {
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(parallelism)

	var (
		mu       sync.Mutex
		written  []string
		failures *multierror.Error
	)

	for _, page := range pages {
		grp.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			rel, err := buildPage(gctx, tr, root, outDir, page)
			if err != nil {
				if !opts.KeepGoing {
					return err
				}

				slog.Warn("page failed", "page", page, "error", err)

				mu.Lock()
				failures = multierror.Append(failures, err)
				mu.Unlock()

				return nil
			}

			mu.Lock()
			written = append(written, rel)
			mu.Unlock()

			return nil
		})
	}

	err := grp.Wait()

	slices.Sort(written)

	if err != nil {
		return written, err
	}

	return written, failures.ErrorOrNil()
}

func buildPage(
	ctx context.Context,
	tr Transformer,
	root string,
	outDir string,
	page string,
) (string, error) {
	content, err := os.ReadFile(page) //nolint:gosec // walked from root
	if err != nil {
		return "", err
	}

	out, err := tr.Transform(ctx, string(content), page)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(root, page)
	if err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, rel)

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}

	if err := atomic.WriteFile(dst, strings.NewReader(out)); err != nil {
		return "", fmt.Errorf("writing %s: %w", dst, err)
	}

	rel = filepath.ToSlash(rel)

	slog.Info("page built", "page", rel)

	return rel, nil
}

// findPages walks root in lexical order and returns the
// files accepted by match.
func findPages(
	root string,
	skip map[string]bool,
	match func(string) bool,
) ([]string, error) {
	var pages []string

	err := filepath.WalkDir(
		root,
		func(pa string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if d.IsDir() {
				if pa != root && skip[pa] {
					return filepath.SkipDir
				}

				return nil
			}

			if d.Type().IsRegular() && match(pa) {
				pages = append(pages, pa)
			}

			return nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	return pages, nil
}
