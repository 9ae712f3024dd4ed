// Package build is a minimal asset pipeline host for the
// page templating plugin.
//
// Run resolves the site root, lets the plugin discover its
// fragments, then walks the root for page assets and
// transforms them concurrently. Rendered pages are written
// atomically under the output directory, preserving their
// paths relative to the root. Fragment directories and the
// output directory are never treated as pages.
package build
