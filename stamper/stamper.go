package stamper

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/valyala/fasttemplate"
)

// Parse reads a status stream. Each line is "KEY VALUE"
// split at the first space; lines without a space are
// skipped. A trailing carriage return is dropped.
func Parse(r io.Reader) (map[string]string, error) {
	const errCtx = "parsing status"

	status := map[string]string{}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")

		key, val, ok := strings.Cut(line, " ")
		if !ok || key == "" {
			continue
		}

		status[key] = val
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return status, nil
}

// Load reads status files in order and merges them; a key
// in a later file replaces the same key from an earlier
// one.
func Load(infoFiles []string) (map[string]any, error) {
	const errCtx = "loading stamps"

	stamps := make(map[string]any)

	for _, sf := range infoFiles {
		status, err := parseFile(sf)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		for key, val := range status {
			stamps[key] = val
		}
	}

	return stamps, nil
}

func parseFile(path string) (map[string]string, error) {
	fi, err := os.Open(path) //nolint:gosec // paths from CLI flags
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = fi.Close() //nolint:errcheck // read-only file
	}()

	return Parse(fi)
}

// Expand substitutes {VAR} placeholders in format with
// stamps. Unknown variables are preserved as-is.
func Expand(format string, stamps map[string]any) string {
	return fasttemplate.ExecuteStringStd(format, "{", "}", stamps)
}
