package app

import (
	"fmt"
	"strings"

	"tamcal/domain/core"

	"github.com/tidwall/gjson"
)

// ParamsFromCombined extracts one problem's numeric parameters from a
// combined_params.json document. Ratio predictions (keys ending in "_hat")
// are skipped.
func ParamsFromCombined(doc []byte, problem string) (map[string]float64, error) {
	if !gjson.ValidBytes(doc) {
		return nil, core.NewDataShapeError("combined parameters", "valid JSON")
	}
	section := gjson.GetBytes(doc, gjson.Escape(problem))
	if !section.Exists() || !section.IsObject() {
		return nil, fmt.Errorf("%w: problem %q in combined parameters", core.ErrNotFound, problem)
	}

	out := make(map[string]float64)
	section.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if value.Type == gjson.Number && !strings.HasSuffix(name, "_hat") {
			out[name] = value.Float()
		}
		return true
	})
	return out, nil
}

// MergeParams overlays explicit values on base; explicit values win
func MergeParams(base, explicit map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(base)+len(explicit))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range explicit {
		out[k] = v
	}
	return out
}
