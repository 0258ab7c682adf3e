package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/uptimeflare/monitorsync/internal/config"
	"github.com/uptimeflare/monitorsync/internal/patch"
)

type target struct {
	path string
	cfg  config.TemplateConfig
}

// expandTargets resolves every configured template path. Literal paths must
// exist and patterns must match at least one file. A file matched by more
// than one entry keeps the settings of the first.
func expandTargets(templates []config.TemplateConfig) ([]target, error) {
	var (
		out  []target
		seen = make(map[string]struct{})
	)
	add := func(path string, cfg config.TemplateConfig) {
		if _, dup := seen[path]; dup {
			return
		}
		seen[path] = struct{}{}
		out = append(out, target{path: path, cfg: cfg})
	}

	for _, tmpl := range templates {
		pattern := filepath.Clean(tmpl.Path)
		if !isPattern(pattern) {
			info, err := os.Stat(pattern)
			switch {
			case errors.Is(err, fs.ErrNotExist):
				return nil, &patch.MissingTargetError{Path: pattern, Reason: "file does not exist"}
			case err != nil:
				return nil, fmt.Errorf("stat template %q: %w", pattern, err)
			case info.IsDir():
				return nil, &patch.MissingTargetError{Path: pattern, Reason: "path is a directory"}
			}
			add(pattern, tmpl)
			continue
		}

		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expand template pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, &patch.MissingTargetError{Path: pattern, Reason: "pattern matched no files"}
		}
		sort.Strings(matches)
		for _, match := range matches {
			add(match, tmpl)
		}
	}
	return out, nil
}

func isPattern(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}
