package extract

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingRegion is wrapped by every MissingRegionError.
var ErrMissingRegion = errors.New("monitor collection not found")

// Position is a 1-based line and byte column inside the source text.
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("line %d, column %d", p.Line, p.Column)
}

// MissingRegionError reports that the collection marker or its balancing
// closer could not be found.
type MissingRegionError struct {
	Key    string
	Reason string
	// Pos is zero when the marker itself is absent.
	Pos Position
}

func (e *MissingRegionError) Error() string {
	if e.Pos.Line > 0 {
		return fmt.Sprintf("monitor collection %q at %s: %s", e.Key, e.Pos, e.Reason)
	}
	return fmt.Sprintf("monitor collection %q: %s", e.Key, e.Reason)
}

func (e *MissingRegionError) Unwrap() error {
	return ErrMissingRegion
}

func positionAt(text string, offset int) Position {
	if offset > len(text) {
		offset = len(text)
	}
	if offset < 0 {
		offset = 0
	}
	before := text[:offset]
	line := strings.Count(before, "\n") + 1
	col := offset - strings.LastIndexByte(before, '\n')
	return Position{Line: line, Column: col}
}
