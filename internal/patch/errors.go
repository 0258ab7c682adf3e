package patch

import (
	"errors"
	"fmt"
)

// ErrMissingTarget is wrapped by every MissingTargetError.
var ErrMissingTarget = errors.New("options target not found")

// MissingTargetError reports a template that cannot be patched: the file is
// absent, or it has no options region under the expected marker.
type MissingTargetError struct {
	Path   string
	Marker string
	Reason string
}

func (e *MissingTargetError) Error() string {
	switch {
	case e.Path != "" && e.Marker != "":
		return fmt.Sprintf("template %q: %s (marker %q)", e.Path, e.Reason, e.Marker)
	case e.Path != "":
		return fmt.Sprintf("template %q: %s", e.Path, e.Reason)
	case e.Marker != "":
		return fmt.Sprintf("template: %s (marker %q)", e.Reason, e.Marker)
	default:
		return "template: " + e.Reason
	}
}

func (e *MissingTargetError) Unwrap() error {
	return ErrMissingTarget
}
