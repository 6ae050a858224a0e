package image

import (
	"strings"
	"testing"
)

func TestEnrichPromptWithSymbols(t *testing.T) {
	got := EnrichPrompt("weather app icon", []string{"cloud.sun", "wind"})
	if !strings.HasPrefix(got, "weather app icon, following Apple SF Symbols design principles") {
		t.Fatalf("unexpected prefix: %q", got)
	}
	if !strings.Contains(got, "symbolic elements inspired by cloud.sun") {
		t.Fatalf("missing first symbol description: %q", got)
	}
	if !strings.Contains(got, "symbolic elements inspired by wind") {
		t.Fatalf("missing second symbol description: %q", got)
	}
}

func TestEnrichPromptWithoutSymbols(t *testing.T) {
	if got := EnrichPrompt("plain icon", nil); got != "plain icon" {
		t.Fatalf("prompt should pass through unchanged, got %q", got)
	}
	if got := EnrichPrompt("plain icon", []string{"  ", ""}); got != "plain icon" {
		t.Fatalf("blank symbols should be ignored, got %q", got)
	}
}

func TestQualityHintSuffix(t *testing.T) {
	if got := QualityHintSuffix(0, false, false, false); got != "" {
		t.Fatalf("expected empty suffix, got %q", got)
	}
	got := QualityHintSuffix(1.3, true, true, true)
	for _, want := range []string{
		"elevated quality (level 1.3)",
		"Human Interface Guidelines",
		"multiple aspect ratios",
		"sharpness, contrast and fine detail",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("suffix %q missing %q", got, want)
		}
	}
	if !strings.HasPrefix(got, ", ") {
		t.Fatalf("suffix should start with a comma separator: %q", got)
	}
}
