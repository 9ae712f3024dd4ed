// Binary render_page renders one template file with
// explicit variables, stamp info and named imports, outside
// of a site build.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/byte4ever/pagetmpl/stamper"
	"github.com/byte4ever/pagetmpl/templating"
)

type arrayFlags []string

func (af *arrayFlags) String() string {
	return ""
}

func (af *arrayFlags) Set(value string) error {
	*af = append(*af, value)
	return nil
}

func main() {
	var (
		stampInfoFile arrayFlags
		variable      arrayFlags
		imports       arrayFlags
		output        string
		tpl           string
		engine        string
		executable    bool
		startTag      string
		endTag        string
	)

	flag.Var(
		&stampInfoFile,
		"stamp_info_file",
		"Stamp info file path (repeatable)",
	)

	flag.Var(
		&variable,
		"variable",
		"Variable in NAME=VALUE format (repeatable)",
	)

	flag.Var(
		&imports,
		"imports",
		"Partial in NAME=filename format (repeatable)",
	)

	flag.StringVar(
		&output, "output", "",
		"Output file path (stdout if empty)",
	)

	flag.StringVar(
		&tpl, "template", "",
		"Input template file path",
	)

	flag.StringVar(
		&engine, "engine", "stamp",
		`Template engine: "stamp" or "go"`,
	)

	flag.BoolVar(
		&executable, "executable", false,
		"Set executable bit on output file",
	)

	flag.StringVar(
		&startTag, "start_tag", "{{",
		"Start tag for template placeholders",
	)

	flag.StringVar(
		&endTag, "end_tag", "}}",
		"End tag for template placeholders",
	)

	flag.Parse()

	if err := renderPage(pageArgs{
		stampInfoFiles: stampInfoFile,
		variables:      variable,
		imports:        imports,
		output:         output,
		template:       tpl,
		engine:         engine,
		executable:     executable,
		options: map[string]any{
			"leftDelim":  startTag,
			"rightDelim": endTag,
		},
	}); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

type pageArgs struct {
	stampInfoFiles []string
	variables      []string
	imports        []string
	output         string
	template       string
	engine         string
	executable     bool
	options        map[string]any
}

func renderPage(args pageArgs) error {
	const errCtx = "rendering page"

	var en templating.Engine = templating.NewStampEngine()
	if args.engine == "go" {
		en = templating.NewGoEngine()
	}

	cfg, err := en.Config(args.options)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	data, err := stamper.Load(args.stampInfoFiles)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	for _, v := range args.variables {
		name, value, ok := strings.Cut(v, "=")
		if !ok {
			return fmt.Errorf(
				"%s: variable %q: expected NAME=VALUE",
				errCtx, v,
			)
		}

		data[name] = value
	}

	for _, imp := range args.imports {
		name, file, ok := strings.Cut(imp, "=")
		if !ok {
			return fmt.Errorf(
				"%s: import %q: expected NAME=filename",
				errCtx, imp,
			)
		}

		if err := definePartial(en, cfg, name, file); err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	markup, err := os.ReadFile(args.template)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	out, err := en.Render(
		context.Background(), string(markup), data, args.options, nil,
	)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", errCtx, args.template, err)
	}

	if args.output == "" {
		_, err = os.Stdout.WriteString(out)

		return err
	}

	if err := atomic.WriteFile(
		args.output, strings.NewReader(out),
	); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	mode := os.FileMode(0o644)
	if args.executable {
		mode = 0o755
	}

	if err := os.Chmod(args.output, mode); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

func definePartial(
	en templating.Engine,
	cfg templating.Config,
	name string,
	file string,
) error {
	source, err := os.ReadFile(file) //nolint:gosec // path from CLI flag
	if err != nil {
		return err
	}

	compiled, err := en.Compile(name, string(source), cfg)
	if err != nil {
		return err
	}

	return en.DefineTemplate(name, compiled)
}
