package model

import "sync"

// FlavorONNX is the MLmodel flavor key for ONNX graphs.
const FlavorONNX = "onnx"

// onnxConfig is read from the onnx flavor block of MLmodel.
type onnxConfig struct {
	InputName         string
	LabelOutput       string
	ProbabilityOutput string
	NumClasses        int
	Features          []string
}

// Defaults match skl2onnx exports with zipmap disabled.
func onnxConfigFrom(conf map[string]any) onnxConfig {
	c := onnxConfig{
		InputName:         "float_input",
		LabelOutput:       "label",
		ProbabilityOutput: "probabilities",
		NumClasses:        2,
	}
	if v, ok := conf["input_name"].(string); ok && v != "" {
		c.InputName = v
	}
	if v, ok := conf["label_output"].(string); ok && v != "" {
		c.LabelOutput = v
	}
	// an explicit empty string disables probabilistic inference
	if v, ok := conf["probability_output"].(string); ok {
		c.ProbabilityOutput = v
	}
	if v, ok := conf["num_classes"].(int); ok && v > 0 {
		c.NumClasses = v
	}
	if list, ok := conf["features"].([]any); ok {
		for _, f := range list {
			if s, ok := f.(string); ok {
				c.Features = append(c.Features, s)
			}
		}
	}
	return c
}

var (
	onnxMu      sync.Mutex
	onnxLibrary string
)

// SetONNXLibrary sets the ONNX Runtime shared library path used on first
// ONNX load. Empty keeps the platform default lookup.
func SetONNXLibrary(path string) {
	onnxMu.Lock()
	onnxLibrary = path
	onnxMu.Unlock()
}
