// Command pagetmpl renders the HTML pages of a site
// through the page templating plugin. Partials and layouts
// are discovered once, then every page is rendered with
// the configured data and written under the output
// directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/byte4ever/pagetmpl/build"
	"github.com/byte4ever/pagetmpl/config"
	"github.com/byte4ever/pagetmpl/extensions"
	"github.com/byte4ever/pagetmpl/pagedata"
	"github.com/byte4ever/pagetmpl/plugin"
	"github.com/byte4ever/pagetmpl/stamper"
	"github.com/byte4ever/pagetmpl/templating"
)

// sliceFlag implements flag.Value for multi-value
// string flags (repeated --flag=val usage).
type sliceFlag []string

// String returns the flag value as a comma-separated
// string representation.
func (s *sliceFlag) String() string {
	if s == nil {
		return ""
	}

	return strings.Join(*s, ",")
}

// Set appends a value to the slice.
func (s *sliceFlag) Set(val string) error {
	*s = append(*s, val)

	return nil
}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// cliFlags holds the parsed command line. Empty, zero and
// false values leave the config file untouched.
type cliFlags struct {
	configPath     string
	root           string
	outDir         string
	partials       string
	layouts        string
	engine         string
	dataFile       string
	dataDir        string
	banner         string
	dataTimeout    string
	builtins       bool
	keepGoing      bool
	verbose        bool
	parallelism    int
	envFiles       sliceFlag
	stampInfoFiles sliceFlag
	pageExts       sliceFlag
}

//nolint:funlen // CLI flag setup is inherently long
func run() error {
	const errCtx = "running pagetmpl"

	var fl cliFlags

	flag.StringVar(
		&fl.configPath, "config", "",
		"YAML or JSON configuration file",
	)
	flag.StringVar(&fl.root, "root", "", "site root directory")
	flag.StringVar(&fl.outDir, "out", "", "output directory")
	flag.StringVar(
		&fl.partials, "partials", "",
		"partials directory, relative to root",
	)
	flag.StringVar(
		&fl.layouts, "layouts", "",
		"layouts directory, relative to root",
	)
	flag.StringVar(
		&fl.engine, "engine", "",
		`template engine: "go" or "stamp"`,
	)
	flag.StringVar(
		&fl.dataFile, "data-file", "",
		"YAML or JSON file of data shared by every page",
	)
	flag.StringVar(
		&fl.dataDir, "data-dir", "",
		"directory of per-page YAML or JSON data files",
	)
	flag.StringVar(
		&fl.banner, "banner", "",
		"stamped text prepended to every page",
	)
	flag.BoolVar(
		&fl.builtins, "builtins", false,
		"register the builtin markdown and json filters",
	)
	flag.IntVar(
		&fl.parallelism, "parallelism", 0,
		"maximum concurrent page renders (0 = GOMAXPROCS)",
	)
	flag.BoolVar(
		&fl.keepGoing, "keep-going", false,
		"render every page and report all failures",
	)
	flag.StringVar(
		&fl.dataTimeout, "data-timeout", "",
		"bound on each per-page data lookup (e.g. 5s)",
	)
	flag.BoolVar(&fl.verbose, "verbose", false, "enable debug logging")
	flag.Var(
		&fl.envFiles, "env-file",
		"dotenv file exposed as .env (repeatable)",
	)
	flag.Var(
		&fl.stampInfoFiles, "stamp-info-file",
		"Bazel stamp info file exposed as .stamp (repeatable)",
	)
	flag.Var(
		&fl.pageExts, "page-ext",
		"page file extension (repeatable, default .html)",
	)

	flag.Parse()

	level := slog.LevelInfo
	if fl.verbose {
		level = slog.LevelDebug
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(
		os.Stderr,
		&slog.HandlerOptions{Level: level},
	)))

	cfg, err := loadConfig(fl)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	pl, err := newPlugin(cfg)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt,
	)
	defer stop()

	opts, err := buildOptions(cfg)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	written, err := build.Run(ctx, opts, pl)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info("build complete", "pages", len(written))

	return nil
}

// loadConfig reads the config file named by the flags, or
// the defaults, and applies the flags over it.
func loadConfig(fl cliFlags) (config.File, error) {
	const errCtx = "loading configuration"

	cfg := config.Default()

	if fl.configPath != "" {
		var err error

		cfg, err = config.Load(fl.configPath)
		if err != nil {
			return config.File{}, fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	cfg = mergeFlags(cfg, fl)

	if err := cfg.Validate(); err != nil {
		return config.File{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	return cfg, nil
}

// mergeFlags overrides cfg with every flag that was given;
// repeatable flags append.
func mergeFlags(cfg config.File, fl cliFlags) config.File {
	overrideString(&cfg.Root, fl.root)
	overrideString(&cfg.OutDir, fl.outDir)
	overrideString(&cfg.PartialsDir, fl.partials)
	overrideString(&cfg.LayoutsDir, fl.layouts)
	overrideString(&cfg.Engine, fl.engine)
	overrideString(&cfg.DataFile, fl.dataFile)
	overrideString(&cfg.DataDir, fl.dataDir)
	overrideString(&cfg.Banner, fl.banner)
	overrideString(&cfg.DataTimeout, fl.dataTimeout)

	cfg.EnvFiles = append(cfg.EnvFiles, fl.envFiles...)
	cfg.StampInfoFiles = append(cfg.StampInfoFiles, fl.stampInfoFiles...)
	cfg.PageExtensions = append(cfg.PageExtensions, fl.pageExts...)
	cfg.Builtins = cfg.Builtins || fl.builtins
	cfg.KeepGoing = cfg.KeepGoing || fl.keepGoing

	if fl.parallelism > 0 {
		cfg.Parallelism = fl.parallelism
	}

	return cfg
}

func overrideString(dst *string, val string) {
	if val != "" {
		*dst = val
	}
}

// buildOptions maps cfg to host options. Fragment and data
// directories are never rendered as pages.
func buildOptions(cfg config.File) (build.Options, error) {
	skip := []string{cfg.PartialsDir, cfg.LayoutsDir}

	if cfg.DataDir != "" {
		abs, err := filepath.Abs(cfg.DataDir)
		if err != nil {
			return build.Options{}, fmt.Errorf(
				"resolving data dir: %w", err,
			)
		}

		skip = append(skip, abs)
	}

	return build.Options{
		Root:        cfg.Root,
		OutDir:      cfg.OutDir,
		SkipDirs:    skip,
		Parallelism: cfg.Parallelism,
		KeepGoing:   cfg.KeepGoing,
	}, nil
}

// newPlugin wires the engine, data source, extensions and
// banner described by cfg into a build session.
func newPlugin(cfg config.File) (*plugin.Plugin, error) {
	const errCtx = "creating build session"

	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	stamps, err := stamper.Load(cfg.StampInfoFiles)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	data, err := newDataSource(cfg, stamps)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	var set extensions.Set
	if cfg.Builtins {
		set = extensions.Builtins()
	}

	pcfg := plugin.Config{
		Data:               data,
		Options:            cfg.Options,
		PartialsDir:        cfg.PartialsDir,
		LayoutsDir:         cfg.LayoutsDir,
		Filters:            set.Filters,
		Helpers:            set.Helpers,
		FragmentExtensions: cfg.FragmentExtensions,
		PageExtensions:     cfg.PageExtensions,
		DataTimeout:        timeout,
	}

	if cfg.Banner != "" {
		pcfg.RenderCallback = bannerCallback(
			stamper.Expand(cfg.Banner, stamps),
		)
	}

	pl, err := plugin.New(newEngine(cfg.Engine), pcfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return pl, nil
}

func newEngine(name string) templating.Engine {
	if name == config.EngineStamp {
		return templating.NewStampEngine()
	}

	return templating.NewGoEngine()
}

// newDataSource builds static data from the config and
// data file, or a per-page provider when a data directory
// is set. Environment and stamp values are exposed under
// "env" and "stamp" unless the data defines those keys.
// Precedence, lowest first: env and stamp, config data,
// then the data file or the page's own data file.
func newDataSource(
	cfg config.File,
	stamps map[string]any,
) (pagedata.Source, error) {
	shared := map[string]any{"stamp": stamps}

	if len(cfg.EnvFiles) > 0 {
		env, err := pagedata.LoadEnv(cfg.EnvFiles...)
		if err != nil {
			return pagedata.Source{}, err
		}

		shared["env"] = env
	}

	if cfg.DataDir != "" {
		files := pagedata.FilesProvider(cfg.DataDir)

		base := maps.Clone(shared)
		maps.Copy(base, cfg.Data)

		return pagedata.FromProvider(
			func(ctx context.Context, pagePath string) (any, error) {
				page, err := files(ctx, pagePath)
				if err != nil {
					return nil, err
				}

				out := maps.Clone(base)

				if m, ok := page.(map[string]any); ok {
					maps.Copy(out, m)
				}

				return out, nil
			},
		), nil
	}

	static := maps.Clone(cfg.Data)
	if static == nil {
		static = map[string]any{}
	}

	if cfg.DataFile != "" {
		loaded, err := pagedata.LoadFile(cfg.DataFile)
		if err != nil {
			return pagedata.Source{}, err
		}

		maps.Copy(static, loaded)
	}

	for key, val := range shared {
		if _, ok := static[key]; !ok {
			static[key] = val
		}
	}

	return pagedata.Static(static), nil
}

func bannerCallback(banner string) templating.Callback {
	return func(out string, err error) (string, error) {
		if err != nil {
			return "", err
		}

		return banner + "\n" + out, nil
	}
}
