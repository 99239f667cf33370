// Package features implements the feature pipeline contract shared by
// serving and batch scoring: keep numeric fields only and zero-fill any
// missing numeric column before a row reaches a model.
package features

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"fraudd/pkg/types"
)

// Transaction column names, in training order.
const (
	ColAmount   = "amount"
	ColFeature1 = "feature_1"
	ColFeature2 = "feature_2"
)

// LabelColumn is the training target; it is never a feature.
const LabelColumn = "is_fraud"

// DefaultColumns is the column order used when a model does not name its own.
var DefaultColumns = []string{ColAmount, ColFeature1, ColFeature2}

// Record is a single numeric row keyed by column name.
type Record map[string]float64

// Vector projects the record onto columns, zero-filling missing ones.
func (r Record) Vector(columns []string) []float64 {
	out := make([]float64, len(columns))
	for i, c := range columns {
		out[i] = r[c] // zero if absent
	}
	return out
}

// Select drops every non-numeric value from raw. Numeric strings are kept.
func Select(raw map[string]any) Record {
	rec := make(Record, len(raw))
	for k, v := range raw {
		if f, ok := numeric(v); ok {
			rec[k] = f
		}
	}
	return rec
}

func numeric(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		var err error
		if f, err = x.Float64(); err != nil {
			return 0, false
		}
	case string:
		var err error
		if f, err = strconv.ParseFloat(strings.TrimSpace(x), 64); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FromTransaction converts a validated transaction into a Record. Nil fields
// are left out and therefore zero-filled by Vector.
func FromTransaction(tx types.TransactionRequest) Record {
	rec := make(Record, 3)
	if tx.Amount != nil {
		rec[ColAmount] = tx.Amount.Float64()
	}
	if tx.Feature1 != nil {
		rec[ColFeature1] = tx.Feature1.Float64()
	}
	if tx.Feature2 != nil {
		rec[ColFeature2] = tx.Feature2.Float64()
	}
	return rec
}
