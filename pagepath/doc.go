// Package pagepath normalizes build root directories and computes the
// root-relative page paths used as keys when resolving per-page render data.
// Page paths always use forward slashes, carry exactly one leading "/" and
// never a trailing one (the root itself maps to "/").
package pagepath
