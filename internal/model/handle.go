package model

import (
	"context"
	"errors"
	"fmt"
	"math"

	"fraudd/internal/features"
)

// LabelOnlyInference is the generic inference capability every backend has.
// Output rows may hold a single value or one value per class.
type LabelOnlyInference interface {
	Predict(rows [][]float64) ([][]float64, error)
}

// ProbabilisticInference is implemented by backends that can emit class
// probabilities, one column per class with column 1 the positive class.
type ProbabilisticInference interface {
	LabelOnlyInference
	PredictProba(rows [][]float64) ([][]float64, error)
}

// Kind names the inference capability selected for a Handle.
type Kind string

const (
	KindProbabilistic Kind = "probabilistic"
	KindLabelOnly     Kind = "label_only"
)

// Meta describes where a handle came from.
type Meta struct {
	Source  string
	Flavor  string
	Columns []string
}

// variant is the capability chosen once at construction.
type variant interface {
	scores(rows [][]float64) ([][]float64, error)
	kind() Kind
}

type probabilistic struct{ m ProbabilisticInference }

func (p probabilistic) scores(rows [][]float64) ([][]float64, error) { return p.m.PredictProba(rows) }
func (probabilistic) kind() Kind                                    { return KindProbabilistic }

type labelOnly struct{ m LabelOnlyInference }

func (l labelOnly) scores(rows [][]float64) ([][]float64, error) { return l.m.Predict(rows) }
func (labelOnly) kind() Kind                                    { return KindLabelOnly }

// Handle wraps a loaded backend behind one inference entry point.
type Handle struct {
	meta    Meta
	variant variant
}

// NewHandle selects the inference variant for backend. Backends that expose
// probabilities use them; all others fall back to raw Predict output, which
// for classifiers is a class label rather than a calibrated probability.
func NewHandle(meta Meta, backend LabelOnlyInference) *Handle {
	if len(meta.Columns) == 0 {
		meta.Columns = append([]string(nil), features.DefaultColumns...)
	}
	h := &Handle{meta: meta}
	if p, ok := backend.(ProbabilisticInference); ok {
		h.variant = probabilistic{m: p}
	} else {
		h.variant = labelOnly{m: backend}
	}
	return h
}

func (h *Handle) Source() string    { return h.meta.Source }
func (h *Handle) Flavor() string    { return h.meta.Flavor }
func (h *Handle) Kind() Kind        { return h.variant.kind() }
func (h *Handle) Columns() []string { return append([]string(nil), h.meta.Columns...) }

// Predict scores a single record and returns the positive-class value.
func (h *Handle) Predict(ctx context.Context, rec features.Record) (p float64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model panicked: %v", r)
		}
	}()
	out, err := h.variant.scores([][]float64{rec.Vector(h.meta.Columns)})
	if err != nil {
		return 0, err
	}
	return PositiveClass(out)
}

// PositiveClass applies the output shape rule to the first row: more than one
// column yields column 1, a single column is used unchanged.
func PositiveClass(out [][]float64) (float64, error) {
	if len(out) == 0 || len(out[0]) == 0 {
		return 0, errors.New("model returned empty output")
	}
	row := out[0]
	v := row[0]
	if len(row) > 1 {
		v = row[1]
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("model returned non-finite value %v", v)
	}
	return v, nil
}
