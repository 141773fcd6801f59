package common

import (
	"errors"
	"fmt"
)

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a native module has been administratively paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects operations against paused modules. A nil view never pauses.
// The returned error names the module and matches ErrModulePaused under
// errors.Is.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}
