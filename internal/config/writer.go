package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/natefinch/atomic"
)

// WriteTemplate replaces the file at path with data in a single rename, so
// readers never observe a partially written template. The target must
// already exist: templates are patched in place, never created.
func WriteTemplate(path string, data []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("template %q does not exist: %w", path, err)
		}
		return fmt.Errorf("stat template %q: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("template %q is a directory", path)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("commit template %q: %w", path, err)
	}
	// atomic.WriteFile creates a fresh file; keep the original permissions.
	if err := os.Chmod(path, info.Mode().Perm()); err != nil {
		return fmt.Errorf("restore mode of template %q: %w", path, err)
	}
	return nil
}
