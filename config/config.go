package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/goccy/go-yaml"
)

// Engines understood by the CLI.
const (
	EngineGo    = "go"
	EngineStamp = "stamp"
)

// File is the on-disk configuration.
type File struct {
	// Root is the site root; relative paths resolve
	// against the config file's directory.
	Root string `json:"root" yaml:"root"`

	// OutDir receives rendered pages.
	OutDir string `json:"outDir" yaml:"outDir"`

	// Engine is "go" (html/template) or "stamp".
	Engine string `json:"engine" yaml:"engine"`

	// PartialsDir and LayoutsDir are fragment roots;
	// relative values resolve against Root.
	PartialsDir string `json:"partialsDir" yaml:"partialsDir"`
	LayoutsDir  string `json:"layoutsDir" yaml:"layoutsDir"`

	// Options are passed to the engine untouched.
	Options map[string]any `json:"options" yaml:"options"`

	// Data is static render data merged under the loaded
	// data file's keys.
	Data map[string]any `json:"data" yaml:"data"`

	// DataFile is a YAML or JSON file of static data.
	DataFile string `json:"dataFile" yaml:"dataFile"`

	// DataDir switches to per-page data files.
	DataDir string `json:"dataDir" yaml:"dataDir"`

	// EnvFiles are exposed to pages under "env".
	EnvFiles []string `json:"envFiles" yaml:"envFiles"`

	// StampInfoFiles are exposed to pages under "stamp".
	StampInfoFiles []string `json:"stampInfoFiles" yaml:"stampInfoFiles"`

	// Banner is stamped and prepended to every page.
	Banner string `json:"banner" yaml:"banner"`

	// PageExtensions select page assets.
	PageExtensions []string `json:"pageExtensions" yaml:"pageExtensions"`

	// FragmentExtensions select fragment files.
	FragmentExtensions []string `json:"fragmentExtensions" yaml:"fragmentExtensions"`

	// Builtins registers the builtin filter set.
	Builtins bool `json:"builtins" yaml:"builtins"`

	// Parallelism bounds concurrent transforms.
	Parallelism int `json:"parallelism" yaml:"parallelism"`

	// KeepGoing renders every page even after failures.
	KeepGoing bool `json:"keepGoing" yaml:"keepGoing"`

	// DataTimeout is a Go duration ("5s").
	DataTimeout string `json:"dataTimeout" yaml:"dataTimeout"`
}

// Default returns the configuration used without a file.
func Default() File {
	return File{
		Root:   ".",
		OutDir: "dist",
		Engine: EngineGo,
	}
}

// Load reads path over Default. Relative Root, OutDir,
// DataFile, DataDir, EnvFiles and StampInfoFiles are
// resolved against the file's directory.
func Load(path string) (File, error) {
	const errCtx = "loading config"

	content, err := os.ReadFile(path) //nolint:gosec // path from CLI flag
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	cfg, err := Parse(path, content)
	if err != nil {
		return File{}, fmt.Errorf("%s: %s: %w", errCtx, path, err)
	}

	cfg.rebase(filepath.Dir(path))

	return cfg, nil
}

// Parse decodes content over Default and validates it.
func Parse(name string, content []byte) (File, error) {
	cfg := Default()

	var err error
	if strings.EqualFold(filepath.Ext(name), ".json") {
		err = json.Unmarshal(content, &cfg)
	} else {
		err = yaml.Unmarshal(content, &cfg)
	}

	if err != nil {
		return File{}, err
	}

	if err := cfg.Validate(); err != nil {
		return File{}, err
	}

	return cfg, nil
}

// Validate checks field values.
func (f File) Validate() error {
	switch f.Engine {
	case "", EngineGo, EngineStamp:
	default:
		return fmt.Errorf("unknown engine %q", f.Engine)
	}

	if f.Parallelism < 0 {
		return fmt.Errorf("parallelism must not be negative")
	}

	if f.DataFile != "" && f.DataDir != "" {
		return fmt.Errorf("only one of dataFile or dataDir may be set")
	}

	if _, err := f.Timeout(); err != nil {
		return err
	}

	return nil
}

// Timeout parses DataTimeout; empty means no timeout.
func (f File) Timeout() (time.Duration, error) {
	if f.DataTimeout == "" {
		return 0, nil
	}

	dur, err := time.ParseDuration(f.DataTimeout)
	if err != nil {
		return 0, fmt.Errorf("parsing dataTimeout: %w", err)
	}

	if dur < 0 {
		return 0, fmt.Errorf("dataTimeout must not be negative")
	}

	return dur, nil
}

func (f *File) rebase(dir string) {
	f.Root = rebasePath(dir, f.Root)
	f.OutDir = rebasePath(dir, f.OutDir)
	f.DataFile = rebasePath(dir, f.DataFile)
	f.DataDir = rebasePath(dir, f.DataDir)

	for idx := range f.EnvFiles {
		f.EnvFiles[idx] = rebasePath(dir, f.EnvFiles[idx])
	}

	for idx := range f.StampInfoFiles {
		f.StampInfoFiles[idx] = rebasePath(dir, f.StampInfoFiles[idx])
	}
}

func rebasePath(dir string, pa string) string {
	if pa == "" || filepath.IsAbs(pa) {
		return pa
	}

	return filepath.Join(dir, pa)
}
