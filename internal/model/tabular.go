package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"fraudd/internal/features"
)

// FlavorTabular is the MLmodel flavor key for JSON-encoded tabular classifiers.
const FlavorTabular = "tabular_json"

// tabularSpec is the on-disk format of a tabular_json model file.
type tabularSpec struct {
	Type         string    `json:"type"` // logistic | threshold
	Features     []string  `json:"features"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
	// threshold classifier
	Feature   string  `json:"feature"`
	Threshold float64 `json:"threshold"`
}

// loadTabular reads a tabular_json model file and returns its backend and
// feature column order.
func loadTabular(path string) (LabelOnlyInference, []string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read tabular model: %w", err)
	}
	var spec tabularSpec
	if err := json.Unmarshal(b, &spec); err != nil {
		return nil, nil, fmt.Errorf("decode tabular model %s: %w", path, err)
	}
	switch spec.Type {
	case "logistic":
		if len(spec.Coefficients) == 0 {
			return nil, nil, fmt.Errorf("logistic model %s: no coefficients", path)
		}
		if len(spec.Features) != 0 && len(spec.Features) != len(spec.Coefficients) {
			return nil, nil, fmt.Errorf("logistic model %s: %d features but %d coefficients", path, len(spec.Features), len(spec.Coefficients))
		}
		// without a feature list the model scores the default transaction columns
		if len(spec.Features) == 0 && len(spec.Coefficients) != len(features.DefaultColumns) {
			return nil, nil, fmt.Errorf("logistic model %s: %d coefficients need a features list (default columns are %d)",
				path, len(spec.Coefficients), len(features.DefaultColumns))
		}
		return &Logistic{Coefficients: spec.Coefficients, Intercept: spec.Intercept}, spec.Features, nil
	case "threshold":
		if spec.Feature == "" {
			return nil, nil, fmt.Errorf("threshold model %s: feature is required", path)
		}
		return &Threshold{Threshold: spec.Threshold}, []string{spec.Feature}, nil
	default:
		return nil, nil, fmt.Errorf("tabular model %s: unknown type %q", path, spec.Type)
	}
}

// Logistic is a binary logistic-regression classifier.
type Logistic struct {
	Coefficients []float64
	Intercept    float64
}

func (m *Logistic) positive(row []float64) (float64, error) {
	if len(row) != len(m.Coefficients) {
		return 0, fmt.Errorf("logistic: got %d features, want %d", len(row), len(m.Coefficients))
	}
	z := m.Intercept
	for i, x := range row {
		z += m.Coefficients[i] * x
	}
	return 1 / (1 + math.Exp(-z)), nil
}

// PredictProba returns [p(legit), p(fraud)] per row.
func (m *Logistic) PredictProba(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		p, err := m.positive(row)
		if err != nil {
			return nil, err
		}
		out[i] = []float64{1 - p, p}
	}
	return out, nil
}

// Predict returns the 0/1 class label per row, cut at 0.5.
func (m *Logistic) Predict(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		p, err := m.positive(row)
		if err != nil {
			return nil, err
		}
		out[i] = []float64{label(p >= 0.5)}
	}
	return out, nil
}

// Threshold flags a row as fraud when its single feature reaches Threshold.
// It has no probabilistic output.
type Threshold struct {
	Threshold float64
}

func (m *Threshold) Predict(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		if len(row) != 1 {
			return nil, fmt.Errorf("threshold: got %d features, want 1", len(row))
		}
		out[i] = []float64{label(row[0] >= m.Threshold)}
	}
	return out, nil
}

func label(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
