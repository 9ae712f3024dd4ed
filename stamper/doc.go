// Package stamper turns Bazel workspace status files into render data and
// expands single-brace {VAR} placeholders against them. Load parses one or
// more status files ("KEY VALUE" per line) into a map exposed to pages under
// the "stamp" key; Expand substitutes placeholders in a format string such
// as a build banner.
package stamper
