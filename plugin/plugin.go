package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/byte4ever/pagetmpl/discovery"
	"github.com/byte4ever/pagetmpl/extensions"
	"github.com/byte4ever/pagetmpl/pagedata"
	"github.com/byte4ever/pagetmpl/pagepath"
	"github.com/byte4ever/pagetmpl/render"
	"github.com/byte4ever/pagetmpl/templating"
)

// Name is the plugin name reported to the host.
const Name = "pagetmpl"

// DefaultPageExtensions are the asset extensions handled
// when Config.PageExtensions is empty.
var DefaultPageExtensions = []string{".html"}

// Config holds all settings for one build session.
type Config struct {
	// Data is the render data: static or per-page.
	Data pagedata.Source

	// Options are passed to the engine untouched.
	Options map[string]any

	// PartialsDir is searched for fragments; empty means
	// no partials. Relative paths resolve against root.
	PartialsDir string

	// LayoutsDir is searched after PartialsDir, so a
	// layout replaces a same-named partial.
	LayoutsDir string

	// Filters and Helpers are registered at New. Entries
	// that are not functions are skipped.
	Filters map[string]any
	Helpers map[string]any

	// RenderCallback is handed to every render.
	RenderCallback templating.Callback

	// FragmentExtensions are the template file extensions
	// recognized during discovery.
	FragmentExtensions []string

	// PageExtensions select the assets Matches accepts.
	PageExtensions []string

	// DataTimeout bounds each data provider call; zero
	// means no bound.
	DataTimeout time.Duration
}

// Plugin is one build session.
type Plugin struct {
	cfg    Config
	engine templating.Engine

	mu        sync.Mutex
	root      string
	resolved  bool
	failed    bool
	fragments []string
}

// New creates a session and registers the configured
// filters and helpers with engine.
func New(engine templating.Engine, cfg Config) (*Plugin, error) {
	const errCtx = "creating plugin"

	if engine == nil {
		return nil, fmt.Errorf(
			"%s: %w: nil engine", errCtx, ErrConfiguration,
		)
	}

	if _, err := engine.Config(cfg.Options); err != nil {
		return nil, fmt.Errorf(
			"%s: %w: %w", errCtx, ErrConfiguration, err,
		)
	}

	n, err := extensions.Register(engine, extensions.Set{
		Filters: cfg.Filters,
		Helpers: cfg.Helpers,
	})
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %w: %w", errCtx, ErrConfiguration, err,
		)
	}

	if len(cfg.PageExtensions) == 0 {
		cfg.PageExtensions = DefaultPageExtensions
	}

	slog.Debug("registered extensions", "count", n)

	return &Plugin{cfg: cfg, engine: engine}, nil
}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return Name
}

// Enforce reports that the plugin runs before the host's
// own transforms.
func (p *Plugin) Enforce() string {
	return "pre"
}

// Root returns the normalized build root, or "" before
// OnRootResolved.
func (p *Plugin) Root() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.root
}

// Fragments returns the registered fragment names.
func (p *Plugin) Fragments() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.fragments...)
}

// OnRootResolved records the build root and discovers
// fragments. It must be called exactly once, before any
// Transform. A discovery failure may leave fragments
// registered on the engine, so the session is then
// unusable and must be discarded along with its engine.
func (p *Plugin) OnRootResolved(root string) error {
	const errCtx = "resolving build root"

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failed {
		return fmt.Errorf(
			"%s: %w: session failed during an earlier discovery",
			errCtx, ErrConfiguration,
		)
	}

	if p.resolved {
		return fmt.Errorf(
			"%s: %w: root already resolved to %s",
			errCtx, ErrConfiguration, p.root,
		)
	}

	if root == "" || !filepath.IsAbs(root) {
		return fmt.Errorf(
			"%s: %w: root %q must be an absolute path",
			errCtx, ErrConfiguration, root,
		)
	}

	root = pagepath.Normalize(root)

	cfg, err := p.engine.Config(p.cfg.Options)
	if err != nil {
		return fmt.Errorf(
			"%s: %w: %w", errCtx, ErrConfiguration, err,
		)
	}

	var fragments []string

	for _, dir := range []string{p.cfg.PartialsDir, p.cfg.LayoutsDir} {
		if dir == "" {
			continue
		}

		names, err := p.discover(root, dir, cfg)
		if err != nil {
			p.failed = true

			return fmt.Errorf("%s: %w", errCtx, err)
		}

		fragments = appendUnique(fragments, names)
	}

	p.root = root
	p.fragments = fragments
	p.resolved = true

	slog.Info(
		"build root resolved",
		"root", root,
		"fragments", len(fragments),
	)

	return nil
}

func (p *Plugin) discover(
	root string,
	dir string,
	cfg templating.Config,
) ([]string, error) {
	fragRoot, err := pagepath.FragmentRoot(root, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	names, err := discovery.Discover(
		p.engine, cfg, fragRoot, p.cfg.FragmentExtensions,
	)

	switch {
	case errors.Is(err, discovery.ErrRead):
		return nil, fmt.Errorf("%w: %w", ErrDiscoveryIO, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	return names, nil
}

// Matches reports whether assetID names a page asset.
func (p *Plugin) Matches(assetID string) bool {
	if idx := strings.IndexByte(assetID, '?'); idx >= 0 {
		assetID = assetID[:idx]
	}

	ext := filepath.Ext(assetID)

	for _, want := range p.cfg.PageExtensions {
		if strings.EqualFold(ext, want) {
			return true
		}
	}

	return false
}

// Transform renders content, the source of assetID, and
// returns the final markup. On failure nothing is
// returned.
func (p *Plugin) Transform(
	ctx context.Context,
	content string,
	assetID string,
) (string, error) {
	const errCtx = "transforming"

	root := p.Root()
	if root == "" {
		return "", fmt.Errorf(
			"%s %s: %w: build root not resolved",
			errCtx, assetID, ErrConfiguration,
		)
	}

	pagePath := pagepath.ToRootRelative(root, assetID)

	data, err := p.cfg.Data.Resolve(ctx, pagePath, p.cfg.DataTimeout)
	if err != nil {
		return "", fmt.Errorf(
			"%s %s: %w: %w",
			errCtx, assetID, ErrDataResolution, err,
		)
	}

	out, err := render.Run(ctx, p.engine, render.Request{
		PagePath: pagePath,
		Markup:   content,
		Data:     data,
		Options:  p.cfg.Options,
		Callback: p.cfg.RenderCallback,
	})
	if err != nil {
		return "", fmt.Errorf(
			"%s %s: %w: %w", errCtx, assetID, ErrRender, err,
		)
	}

	slog.Debug("transformed page", "page", pagePath)

	return out, nil
}

func appendUnique(dst []string, names []string) []string {
	for _, name := range names {
		if !slices.Contains(dst, name) {
			dst = append(dst, name)
		}
	}

	return dst
}
