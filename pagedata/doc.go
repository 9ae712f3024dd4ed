// Package pagedata resolves the data a page is rendered against.
//
// A Source is either a static value, used as-is for every page, or a
// Provider called with the page path on every render. Nothing is cached.
// Loaders read static data from YAML or JSON files (goccy/go-yaml,
// goccy/go-json) and from .env files (joho/godotenv); FilesProvider looks up
// one data file per page.
package pagedata
