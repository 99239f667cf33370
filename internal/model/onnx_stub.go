//go:build !onnx

package model

// loadONNX is unavailable without the onnx build tag.
func loadONNX(path string, _ onnxConfig) (LabelOnlyInference, []string, error) {
	return nil, nil, ErrDependencyUnavailable("onnx flavor requires a binary built with -tags=onnx: " + path)
}
