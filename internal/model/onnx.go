//go:build onnx

package model

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"fraudd/internal/features"
)

var (
	ortOnce sync.Once
	ortErr  error
)

func initORT() error {
	ortOnce.Do(func() {
		onnxMu.Lock()
		lib := onnxLibrary
		onnxMu.Unlock()
		if lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			ortErr = ErrDependencyUnavailable("onnxruntime init: " + err.Error())
		}
	})
	return ortErr
}

// onnxLabelModel runs the label output of an ONNX classifier.
type onnxLabelModel struct {
	session   *ort.DynamicAdvancedSession
	cfg       onnxConfig
	nFeatures int
}

// onnxProbModel additionally exposes the probability output.
type onnxProbModel struct{ *onnxLabelModel }

func loadONNX(path string, cfg onnxConfig) (LabelOnlyInference, []string, error) {
	if err := initORT(); err != nil {
		return nil, nil, err
	}
	columns := cfg.Features
	if len(columns) == 0 {
		columns = append([]string(nil), features.DefaultColumns...)
	}
	outputs := []string{cfg.LabelOutput}
	if cfg.ProbabilityOutput != "" {
		outputs = append(outputs, cfg.ProbabilityOutput)
	}
	sess, err := ort.NewDynamicAdvancedSession(path, []string{cfg.InputName}, outputs, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("onnx session %s: %w", path, err)
	}
	m := &onnxLabelModel{session: sess, cfg: cfg, nFeatures: len(columns)}
	if cfg.ProbabilityOutput == "" {
		return m, columns, nil
	}
	return onnxProbModel{m}, columns, nil
}

func (m *onnxLabelModel) input(rows [][]float64) (*ort.Tensor[float32], error) {
	data := make([]float32, 0, len(rows)*m.nFeatures)
	for _, row := range rows {
		if len(row) != m.nFeatures {
			return nil, fmt.Errorf("onnx: got %d features, want %d", len(row), m.nFeatures)
		}
		for _, x := range row {
			data = append(data, float32(x))
		}
	}
	return ort.NewTensor(ort.NewShape(int64(len(rows)), int64(m.nFeatures)), data)
}

// run executes the graph and returns every declared output, in order.
func (m *onnxLabelModel) run(rows [][]float64) (*ort.Tensor[int64], *ort.Tensor[float32], error) {
	in, err := m.input(rows)
	if err != nil {
		return nil, nil, err
	}
	defer in.Destroy()
	n := int64(len(rows))
	labels, err := ort.NewEmptyTensor[int64](ort.NewShape(n))
	if err != nil {
		return nil, nil, err
	}
	outs := []ort.Value{labels}
	var probs *ort.Tensor[float32]
	if m.cfg.ProbabilityOutput != "" {
		probs, err = ort.NewEmptyTensor[float32](ort.NewShape(n, int64(m.cfg.NumClasses)))
		if err != nil {
			labels.Destroy()
			return nil, nil, err
		}
		outs = append(outs, probs)
	}
	if err := m.session.Run([]ort.Value{in}, outs); err != nil {
		for _, o := range outs {
			o.Destroy()
		}
		return nil, nil, fmt.Errorf("onnx run: %w", err)
	}
	return labels, probs, nil
}

func (m *onnxLabelModel) Predict(rows [][]float64) ([][]float64, error) {
	labels, probs, err := m.run(rows)
	if err != nil {
		return nil, err
	}
	defer labels.Destroy()
	if probs != nil {
		defer probs.Destroy()
	}
	data := labels.GetData()
	out := make([][]float64, len(data))
	for i, v := range data {
		out[i] = []float64{float64(v)}
	}
	return out, nil
}

func (m onnxProbModel) PredictProba(rows [][]float64) ([][]float64, error) {
	labels, probs, err := m.run(rows)
	if err != nil {
		return nil, err
	}
	defer labels.Destroy()
	defer probs.Destroy()
	k := m.cfg.NumClasses
	data := probs.GetData()
	out := make([][]float64, len(rows))
	for i := range rows {
		row := make([]float64, k)
		for j := 0; j < k; j++ {
			row[j] = float64(data[i*k+j])
		}
		out[i] = row
	}
	return out, nil
}
