package model

import (
	"errors"
	"strings"
)

// unsupportedFlavorError signals an artifact no backend in this binary can run.
type unsupportedFlavorError struct{ flavors []string }

func (e unsupportedFlavorError) Error() string {
	if len(e.flavors) == 0 {
		return "unsupported model artifact: no flavors declared"
	}
	return "unsupported model flavor(s): " + strings.Join(e.flavors, ", ")
}

// IsUnsupportedFlavor reports whether err indicates an unknown artifact flavor.
func IsUnsupportedFlavor(err error) bool {
	var e unsupportedFlavorError
	return errors.As(err, &e)
}

// dependencyUnavailableError signals a runtime that was not compiled in or
// could not be initialized (e.g. ONNX Runtime shared library).
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var e dependencyUnavailableError
	return errors.As(err, &e)
}
