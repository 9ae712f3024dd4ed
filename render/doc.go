// Package render runs the per-asset render step: it hands the page markup,
// the resolved data, the global engine options and the optional completion
// callback to the template engine unchanged and returns the final text.
package render
