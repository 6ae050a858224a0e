package domain

import (
	"strconv"
	"strings"
)

// Size bounds applied to every request before it reaches a provider adapter.
const (
	MinTargetSize     = 256
	MaxTargetSize     = 1440
	DefaultTargetSize = 1024
)

// Params is the open key-value parameter map carried by a request. Values
// arrive from JSON, so accessors coerce the usual cross-type encodings
// (bool-ish strings, float64 numbers) instead of trusting the dynamic type.
type Params map[string]any

// Clone returns a shallow copy so the orchestrator can normalize values
// without mutating the caller's map.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Int returns the named parameter coerced to int, or fallback.
func (p Params) Int(key string, fallback int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

// Bool returns the named parameter coerced to bool, or fallback. String
// values accept the usual truthy spellings.
func (p Params) Bool(key string, fallback bool) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case int:
		return v != 0
	case float64:
		return v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return fallback
}

// String returns the named parameter as a trimmed string, or fallback.
func (p Params) String(key, fallback string) string {
	if v, ok := p[key].(string); ok {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return fallback
}

// Float returns the named parameter coerced to float64, or fallback.
func (p Params) Float(key string, fallback float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

// StringList returns the named parameter as a list of non-empty strings. A
// scalar string is split on commas; a JSON array is flattened element-wise.
func (p Params) StringList(key string) []string {
	var out []string
	appendItem := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	switch v := p[key].(type) {
	case string:
		for _, part := range strings.Split(v, ",") {
			appendItem(part)
		}
	case []string:
		for _, part := range v {
			appendItem(part)
		}
	case []any:
		for _, part := range v {
			if s, ok := part.(string); ok {
				appendItem(s)
			}
		}
	}
	return out
}

// Mode returns the normalized generation mode.
func (p Params) Mode() GenerationMode {
	return NormalizeGenerationMode(p.String("generationMode", string(ModeStandard)))
}

// Size returns the requested target size clamped into [MinTargetSize,
// MaxTargetSize].
func (p Params) Size() int {
	return ClampSize(p.Int("size", DefaultTargetSize))
}

// QualityAssessmentEnabled reports whether the nested
// qualityAssessment.enabled flag is set.
func (p Params) QualityAssessmentEnabled() bool {
	nested, ok := p["qualityAssessment"].(map[string]any)
	if !ok {
		return false
	}
	return Params(nested).Bool("enabled", false)
}

// WantsQualityAssessment combines the mode-based rule with the explicit
// opt-in flags.
func (p Params) WantsQualityAssessment() bool {
	if p.Mode().QualitySensitive() {
		return true
	}
	if p.Bool("evaluateQuality", false) {
		return true
	}
	return p.QualityAssessmentEnabled()
}

// ClampSize bounds a requested edge length into the supported interval.
func ClampSize(size int) int {
	if size < MinTargetSize {
		return MinTargetSize
	}
	if size > MaxTargetSize {
		return MaxTargetSize
	}
	return size
}
