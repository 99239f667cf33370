package features

import (
	"encoding/json"
	"errors"
	"fmt"

	"fraudd/pkg/types"
)

// FieldError reports a missing or non-numeric transaction field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string { return fmt.Sprintf("field %q: %s", e.Field, e.Reason) }

// IsFieldError reports whether err is a transaction validation failure.
func IsFieldError(err error) bool {
	var fe *FieldError
	return errors.As(err, &fe)
}

// ParseTransaction validates the decoded JSON object of a /predict body.
// Every transaction column must be present and numeric; unknown keys are
// ignored.
func ParseTransaction(body map[string]json.RawMessage) (types.TransactionRequest, error) {
	var tx types.TransactionRequest
	targets := []struct {
		name string
		dst  **types.Number
	}{
		{ColAmount, &tx.Amount},
		{ColFeature1, &tx.Feature1},
		{ColFeature2, &tx.Feature2},
	}
	for _, t := range targets {
		raw, ok := body[t.name]
		if !ok || string(raw) == "null" {
			return tx, &FieldError{Field: t.name, Reason: "field required"}
		}
		var n types.Number
		if err := n.UnmarshalJSON(raw); err != nil {
			return tx, &FieldError{Field: t.name, Reason: "value is not a valid number"}
		}
		*t.dst = &n
	}
	return tx, nil
}
