package gopath

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// DefaultVariable is the search-path variable consulted by the go tool.
const DefaultVariable = "GOPATH"

// ErrMarkerNotFound is returned when the working directory does not contain
// the path marker.
var ErrMarkerNotFound = errors.New("path marker not found")

// Match describes where a marker was found in a directory path.
type Match struct {
	// Root is the part of the path before the marker, with trailing
	// separators trimmed. For a marker of "src/launchpad.net/goose" this is
	// the GOPATH root that holds the checkout.
	Root string

	// Through is the part of the path up to and including the marker, with
	// trailing separators trimmed.
	Through string
}

// Locate finds the last occurrence of marker in dir.
//
// The marker is matched as a plain substring, the same way the path was
// written when the checkout was created. Anything after the marker (for
// example the package subdirectory the runner was started from) is ignored.
func Locate(dir, marker string) (Match, error) {
	if marker == "" {
		return Match{}, fmt.Errorf("%w: empty marker", ErrMarkerNotFound)
	}
	offset := strings.LastIndex(dir, marker)
	if offset == -1 {
		return Match{}, fmt.Errorf("%w: %q not in %s", ErrMarkerNotFound, marker, dir)
	}
	return Match{
		Root:    trimSeparators(dir[:offset]),
		Through: trimSeparators(dir[:offset+len(marker)]),
	}, nil
}

// Resolve returns the path of dir up to and including marker.
func Resolve(dir, marker string) (string, error) {
	m, err := Locate(dir, marker)
	if err != nil {
		return "", err
	}
	return m.Through, nil
}

// Prepend puts prefix in front of the existing search-path value.
//
// When prefix already occurs anywhere in existing the value is returned as
// is and changed is false, so applying Prepend repeatedly never duplicates
// an entry. An empty existing value yields prefix alone.
func Prepend(prefix, existing string) (value string, changed bool) {
	if prefix == "" {
		return existing, false
	}
	if existing == "" {
		return prefix, true
	}
	if strings.Contains(existing, prefix) {
		return existing, false
	}
	return prefix + string(os.PathListSeparator) + existing, true
}

// trimSeparators strips trailing path separators but keeps a lone root
// separator intact.
func trimSeparators(p string) string {
	trimmed := strings.TrimRight(p, `/`+string(os.PathSeparator))
	if trimmed == "" && p != "" {
		return p[:1]
	}
	return trimmed
}
