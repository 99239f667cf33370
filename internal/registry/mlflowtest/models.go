package mlflowtest

import (
	"encoding/json"
	"strings"
)

// LogisticModel returns the artifact files of a tabular_json logistic model
// stored under dir (e.g. "model"). Extra coefficients beyond the three
// transaction columns are ignored.
func LogisticModel(dir string, intercept float64, coefficients ...float64) map[string]string {
	for len(coefficients) < 3 {
		coefficients = append(coefficients, 0)
	}
	spec, _ := json.Marshal(map[string]any{
		"type":         "logistic",
		"features":     []string{"amount", "feature_1", "feature_2"},
		"coefficients": coefficients[:3],
		"intercept":    intercept,
	})
	return map[string]string{
		join(dir, "MLmodel"):    "artifact_path: " + dir + "\nflavors:\n  tabular_json:\n    data: model.json\n",
		join(dir, "model.json"): string(spec),
	}
}

// SklearnModel returns the artifact files of a pickled scikit-learn model,
// a flavor the Go loader cannot run.
func SklearnModel(dir string) map[string]string {
	return map[string]string{
		join(dir, "MLmodel"):   "artifact_path: " + dir + "\nflavors:\n  python_function:\n    loader_module: mlflow.sklearn\n  sklearn:\n    pickled_model: model.pkl\n",
		join(dir, "model.pkl"): "\x80\x04pickle",
	}
}

// Merge combines artifact maps.
func Merge(maps ...map[string]string) map[string]string {
	out := map[string]string{}
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func join(dir, name string) string {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
