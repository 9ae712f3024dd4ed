package extensions

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/byte4ever/pagetmpl/templating"
)

// Definer is the part of a template engine the registry
// needs.
type Definer interface {
	DefineFilter(name string, fn any) error
	DefineHelper(name string, fn any) error
}

// Set holds named functions in two namespaces. Values that
// are not functions are ignored at registration.
type Set struct {
	Filters map[string]any
	Helpers map[string]any
}

// Merge returns a new Set holding base overlaid with over.
// Entries in over replace same-named entries in base.
func Merge(base Set, over Set) Set {
	return Set{
		Filters: mergeMaps(base.Filters, over.Filters),
		Helpers: mergeMaps(base.Helpers, over.Helpers),
	}
}

func mergeMaps(base, over map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(over))

	for name, fn := range base {
		out[name] = fn
	}

	for name, fn := range over {
		out[name] = fn
	}

	return out
}

// Register defines every callable filter and helper in set
// on def, filters first, each namespace in name order.
// Non-callable entries are skipped. It returns the number
// of functions registered.
func Register(def Definer, set Set) (int, error) {
	const errCtx = "registering extensions"

	filters, err := register(
		set.Filters, def.DefineFilter, "filter",
	)
	if err != nil {
		return filters, fmt.Errorf("%s: %w", errCtx, err)
	}

	helpers, err := register(
		set.Helpers, def.DefineHelper, "helper",
	)
	if err != nil {
		return filters + helpers, fmt.Errorf("%s: %w", errCtx, err)
	}

	return filters + helpers, nil
}

func register(
	ns map[string]any,
	define func(name string, fn any) error,
	kind string,
) (int, error) {
	names := make([]string, 0, len(ns))
	for name := range ns {
		names = append(names, name)
	}

	sort.Strings(names)

	count := 0

	for _, name := range names {
		fn := ns[name]

		if !templating.IsCallable(fn) {
			slog.Debug(
				"skipping non-callable extension",
				"kind", kind,
				"name", name,
			)

			continue
		}

		if err := define(name, fn); err != nil {
			return count, err
		}

		count++
	}

	return count, nil
}
