package dispatch

import (
	"math"
	"strings"

	"github.com/abdhe/essay-forge/pkg/provider"
)

// ParamOverride adds provider-specific request parameters to every model it
// matches. Empty match fields match anything.
type ParamOverride struct {
	Provider      string         `yaml:"provider"`
	ModelContains string         `yaml:"model_contains,omitempty"`
	Temperature   *float64       `yaml:"temperature,omitempty"`
	Params        map[string]any `yaml:"params"`
}

// Matches reports whether the override applies to m.
func (o ParamOverride) Matches(m provider.ModelConfig) bool {
	if o.Provider != "" && provider.Normalize(o.Provider) != provider.Normalize(m.Provider) {
		return false
	}
	if o.ModelContains != "" && !strings.Contains(strings.ToLower(m.Model), strings.ToLower(o.ModelContains)) {
		return false
	}
	if o.Temperature != nil && math.Abs(*o.Temperature-m.Temperature) > 1e-9 {
		return false
	}
	return true
}

// Overrides is an ordered override table; later entries win on key clashes.
type Overrides []ParamOverride

// DefaultOverrides requests low reasoning effort from Claude 3.7 when it runs
// at temperature 1.0 and from every Gemini model.
func DefaultOverrides() Overrides {
	one := 1.0
	return Overrides{
		{
			Provider:      provider.Anthropic,
			ModelContains: "claude-3-7",
			Temperature:   &one,
			Params:        map[string]any{"reasoning_effort": "low"},
		},
		{
			Provider: provider.Gemini,
			Params:   map[string]any{"reasoning_effort": "low"},
		},
	}
}

// Resolve merges the params of every matching override. It returns nil when
// nothing matches.
func (o Overrides) Resolve(m provider.ModelConfig) map[string]any {
	var params map[string]any
	for _, ov := range o {
		if !ov.Matches(m) {
			continue
		}
		if params == nil {
			params = make(map[string]any, len(ov.Params))
		}
		for k, v := range ov.Params {
			params[k] = v
		}
	}
	return params
}
