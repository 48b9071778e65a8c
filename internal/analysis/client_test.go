package analysis

import (
	"strings"
	"testing"
)

func TestParseResult_PlainJSON(t *testing.T) {
	text := `{"best_guess": {"label": "quartz", "confidence": 0.92, "category": "mineral"}, "summary": "clear hexagonal crystal"}`

	result, err := parseResult(text)
	if err != nil {
		t.Fatalf("parseResult() failed: %v", err)
	}
	if result.BestGuess.Label != "quartz" {
		t.Errorf("Label = %q, want quartz", result.BestGuess.Label)
	}
	if result.BestGuess.Confidence != 0.92 {
		t.Errorf("Confidence = %v, want 0.92", result.BestGuess.Confidence)
	}
	if result.Summary != "clear hexagonal crystal" {
		t.Errorf("Summary = %q", result.Summary)
	}
}

func TestParseResult_ToleratesFencesAndProse(t *testing.T) {
	text := "Here is the identification:\n```json\n" +
		`{"best_guess": {"label": "basalt", "confidence": 0.7, "category": "rock"}}` +
		"\n```\nLet me know if you need more detail."

	result, err := parseResult(text)
	if err != nil {
		t.Fatalf("parseResult() failed: %v", err)
	}
	if result.BestGuess.Label != "basalt" {
		t.Errorf("Label = %q, want basalt", result.BestGuess.Label)
	}
}

func TestParseResult_KeepsDetailsOpaque(t *testing.T) {
	text := `{
		"best_guess": {"label": "trilobite", "confidence": 0.8, "category": "fossil"},
		"alternatives": [{"label": "brachiopod", "confidence": 0.15, "category": "fossil"}],
		"details": {"fossil": {"era": "Cambrian", "genus_candidates": ["Elrathia"]}}
	}`

	result, err := parseResult(text)
	if err != nil {
		t.Fatalf("parseResult() failed: %v", err)
	}
	if len(result.Alternatives) != 1 {
		t.Fatalf("Alternatives = %d, want 1", len(result.Alternatives))
	}
	raw, ok := result.Details["fossil"]
	if !ok {
		t.Fatal("details.fossil block was dropped")
	}
	if !strings.Contains(string(raw), "Cambrian") {
		t.Errorf("details.fossil = %s, want raw block preserved", raw)
	}
}

func TestParseResult_Errors(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"no json", "I could not identify this specimen."},
		{"malformed", `{"best_guess": {`},
		{"missing label", `{"best_guess": {"confidence": 0.5, "category": "rock"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseResult(tc.text); err == nil {
				t.Errorf("parseResult(%q) succeeded, want error", tc.text)
			}
		})
	}
}

func TestBuildPrompt_AppendsContext(t *testing.T) {
	c := &Client{}

	prompt := c.buildPrompt(Request{
		LocationHint:   "41.88000, -87.63000",
		SessionContext: "Morning dig at north quarry",
		ContextNotes:   "heavy for its size",
	})

	if !strings.HasPrefix(prompt, promptTemplate) {
		t.Error("prompt does not start with the fixed template")
	}
	for _, want := range []string{"41.88000", "Morning dig at north quarry", "heavy for its size"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing context %q", want)
		}
	}

	// No context: the prompt is exactly the template.
	if got := c.buildPrompt(Request{}); got != promptTemplate {
		t.Errorf("bare prompt = %q, want template only", got)
	}
}

func TestMimeForExt(t *testing.T) {
	cases := map[string]string{
		".png":  "image/png",
		".PNG":  "image/png",
		".webp": "image/webp",
		".jpg":  "image/jpeg",
		".heic": "image/jpeg",
		"":      "image/jpeg",
	}
	for ext, want := range cases {
		if got := mimeForExt(ext); got != want {
			t.Errorf("mimeForExt(%q) = %q, want %q", ext, got, want)
		}
	}
}
