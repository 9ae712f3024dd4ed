// Package config loads the pagetmpl configuration file. The format is chosen
// by extension: ".json" is decoded with goccy/go-json, anything else with
// goccy/go-yaml. Command-line flags override file values.
package config
