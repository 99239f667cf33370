package registry

import (
	"errors"
	"fmt"
)

// APIError is a non-2xx response from the tracking server.
type APIError struct {
	Status  int
	Code    string
	Message string
	Path    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("mlflow %s: %d %s: %s", e.Path, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("mlflow %s: %d: %s", e.Path, e.Status, e.Message)
}

// IsNotFound reports whether err is a RESOURCE_DOES_NOT_EXIST or 404 response.
func IsNotFound(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.Status == 404 || ae.Code == "RESOURCE_DOES_NOT_EXIST"
}

// unsupportedURIError signals an artifact store this client cannot read.
type unsupportedURIError struct{ uri string }

func (e unsupportedURIError) Error() string { return "unsupported artifact uri: " + e.uri }
