package image

import (
	"fmt"
	"strings"
)

// EnrichPrompt appends icon-design guidance derived from the requested
// symbol motifs. Symbol names are folded into descriptive English phrases so
// remote models receive style direction instead of bare identifiers.
func EnrichPrompt(prompt string, symbols []string) string {
	prompt = strings.TrimSpace(prompt)
	descriptions := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		descriptions = append(descriptions, "symbolic elements inspired by "+symbol)
	}
	if len(descriptions) == 0 {
		return prompt
	}
	return fmt.Sprintf(
		"%s, following Apple SF Symbols design principles, incorporating %s, with clean lines, balanced proportions, symbolic meaning, geometric shapes and clear visual hierarchy suitable for app icons",
		prompt, strings.Join(descriptions, ", "),
	)
}

// QualityHintSuffix translates regeneration hint parameters into prompt
// text. Remote providers have no structured quality knobs, so retry passes
// steer the model through wording instead.
func QualityHintSuffix(qualityLevel float64, higCompliance, multiAspect, qualityFocused bool) string {
	var hints []string
	if qualityLevel > 1 {
		hints = append(hints, fmt.Sprintf("render at elevated quality (level %.1f)", qualityLevel))
	}
	if higCompliance {
		hints = append(hints, "strictly follow Apple Human Interface Guidelines")
	}
	if multiAspect {
		hints = append(hints, "optimize composition for multiple aspect ratios")
	}
	if qualityFocused {
		hints = append(hints, "prioritize sharpness, contrast and fine detail")
	}
	if len(hints) == 0 {
		return ""
	}
	return ", " + strings.Join(hints, ", ")
}
