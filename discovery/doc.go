// Package discovery finds template fragments (partials and layouts) under a
// directory tree, derives a logical name for each one and registers the
// compiled fragment with a template engine.
//
// Files are enumerated with filepath.WalkDir, so the order is lexical within
// each directory. Two files that map to the same logical name (for example
// "footer.html" and "footer.tmpl") are both registered; the one enumerated
// last replaces the other and a warning is logged.
package discovery
