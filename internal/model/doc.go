// Package model loads trained fraud classifiers and exposes them through a
// single Handle with one inference entry point.
//
//   - handle.go: Handle, the two inference capabilities and output normalization.
//   - errors.go: error types and helpers (IsUnsupportedFlavor, IsDependencyUnavailable).
//   - mlmodel.go: artifact directory loading driven by the MLmodel descriptor.
//   - tabular.go: tabular_json flavor (logistic and threshold classifiers).
//   - onnx.go / onnx_stub.go: onnx flavor. Real ONNX Runtime support is enabled
//     with `-tags=onnx`; without the tag the flavor reports a dependency error.
//
// Handles are read-only after Load and safe for concurrent Predict calls.
package model
