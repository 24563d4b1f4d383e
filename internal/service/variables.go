package service

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/kordant/loom/internal/domain"
)

// ErrMissingVariable is returned when a prompt placeholder has no binding in
// any layer and no declared default.
var ErrMissingVariable = errors.New("missing template variable")

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// MergeVariables flattens ordered layers into one map; later layers override
// earlier ones. Nil layers are skipped.
func MergeVariables(layers ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	return merged
}

// RenderPrompt substitutes {{name}} placeholders in text. Bindings come from
// the merged layers; a variable absent from every layer falls back to its
// declared default. Rendering is pure: same inputs always produce the same
// output.
func RenderPrompt(text string, declared map[string]domain.VariableSpec, layers ...map[string]string) (string, error) {
	merged := MergeVariables(layers...)

	var missing error
	rendered := placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if v, ok := merged[name]; ok {
			return v
		}
		if spec, ok := declared[name]; ok && !spec.Required {
			return spec.Default
		}
		if missing == nil {
			missing = fmt.Errorf("%w: %s", ErrMissingVariable, name)
		}
		return match
	})
	if missing != nil {
		return "", missing
	}
	return rendered, nil
}
