package model

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DescriptorFile is the MLflow model descriptor inside an artifact directory.
const DescriptorFile = "MLmodel"

// Descriptor is the subset of an MLmodel file used to pick a backend.
type Descriptor struct {
	ArtifactPath string                    `yaml:"artifact_path"`
	RunID        string                    `yaml:"run_id"`
	Flavors      map[string]map[string]any `yaml:"flavors"`
}

// flavorPriority lists the flavors this binary can run, best first.
var flavorPriority = []string{FlavorTabular, FlavorONNX}

// ReadDescriptor parses dir/MLmodel.
func ReadDescriptor(dir string) (Descriptor, error) {
	var d Descriptor
	b, err := os.ReadFile(filepath.Join(dir, DescriptorFile))
	if err != nil {
		return d, err
	}
	if err := yaml.Unmarshal(b, &d); err != nil {
		return d, fmt.Errorf("parse %s: %w", DescriptorFile, err)
	}
	return d, nil
}

// Load opens a model artifact at path and returns a Handle labeled with source.
// path is either an artifact directory holding an MLmodel descriptor, or a
// bare model file (*.json for tabular_json, *.onnx for onnx).
func Load(path, source string) (*Handle, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open model artifact: %w", err)
	}
	if !fi.IsDir() {
		return loadFile(path, source)
	}
	d, err := ReadDescriptor(path)
	if err != nil {
		return nil, fmt.Errorf("model artifact %s: %w", path, err)
	}
	for _, flavor := range flavorPriority {
		conf, ok := d.Flavors[flavor]
		if !ok {
			continue
		}
		data, _ := conf["data"].(string)
		if data == "" {
			return nil, fmt.Errorf("flavor %s: missing data path", flavor)
		}
		return loadFlavor(flavor, filepath.Join(path, data), conf, source)
	}
	names := make([]string, 0, len(d.Flavors))
	for k := range d.Flavors {
		names = append(names, k)
	}
	sort.Strings(names)
	return nil, unsupportedFlavorError{flavors: names}
}

func loadFile(path, source string) (*Handle, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return loadFlavor(FlavorTabular, path, nil, source)
	case ".onnx":
		return loadFlavor(FlavorONNX, path, nil, source)
	default:
		return nil, unsupportedFlavorError{flavors: []string{filepath.Ext(path)}}
	}
}

func loadFlavor(flavor, dataPath string, conf map[string]any, source string) (*Handle, error) {
	var (
		backend LabelOnlyInference
		columns []string
		err     error
	)
	switch flavor {
	case FlavorTabular:
		backend, columns, err = loadTabular(dataPath)
	case FlavorONNX:
		backend, columns, err = loadONNX(dataPath, onnxConfigFrom(conf))
	default:
		err = unsupportedFlavorError{flavors: []string{flavor}}
	}
	if err != nil {
		return nil, err
	}
	return NewHandle(Meta{Source: source, Flavor: flavor, Columns: columns}, backend), nil
}
