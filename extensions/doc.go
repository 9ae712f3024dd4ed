// Package extensions registers user-supplied filters and helpers with a
// template engine. Entries whose value is not a function are skipped, so a
// mixed metadata map can be passed as-is. Builtins provides a small default
// filter set (markdown via yuin/goldmark, json via goccy/go-json).
package extensions
