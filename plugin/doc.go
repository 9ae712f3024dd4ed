// Package plugin is the build-tool integration session. A Plugin owns one
// template engine (and with it the fragment registry and the filter and
// helper namespaces), so several build sessions in one process never share
// state.
//
// The lifecycle mirrors the host build tool's hooks:
//
//  1. New registers filters and helpers.
//  2. OnRootResolved, called once with the build root, discovers partials
//     and layouts. After it returns the engine is read-only.
//  3. Transform, called once per page asset and possibly concurrently,
//     resolves the page data and renders the markup.
//
// Errors are classified with ErrConfiguration, ErrDiscoveryIO,
// ErrDataResolution and ErrRender; use errors.Is to tell them apart.
package plugin
