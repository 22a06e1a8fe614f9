package prompts

import (
	"strings"
	"testing"
)

func TestBuildScoreBatchPrompt(t *testing.T) {
	schema := `{"type":"object","properties":{"score":{"type":"integer"}}}`

	prompt, err := BuildScoreBatchPrompt(ScoreBatchPrompt{
		Count:      3,
		Categories: `"Urgent", "Informational", "Promotional", "Social", "Other"`,
		Schema:     schema,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Logf("Generated prompt:\n%s", prompt)

	if !strings.Contains(prompt, "3 emails") {
		t.Errorf("expected prompt to contain email count")
	}
	if !strings.Contains(prompt, "exactly 3 objects") {
		t.Errorf("expected prompt to pin the array length")
	}
	if !strings.Contains(prompt, "Urgent") {
		t.Errorf("expected prompt to contain categories")
	}
	if !strings.Contains(prompt, schema) {
		t.Errorf("expected prompt to contain response schema")
	}
	if !strings.Contains(prompt, "JSON array") {
		t.Errorf("expected prompt to demand a JSON array")
	}
}

func TestBuildScoreBatchInput(t *testing.T) {
	input, err := BuildScoreBatchInput(ScoreBatchInput{
		Emails: []ScoreBatchEmail{
			{Index: 1, Sender: "alice@example.com", Subject: "Lunch?", Excerpt: "Are you free tomorrow?"},
			{Index: 2, Sender: "deals@shop.io", Subject: "50% off", Excerpt: "Today only."},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Logf("Generated input:\n%s", input)

	if !strings.Contains(input, "Email 1") || !strings.Contains(input, "Email 2") {
		t.Errorf("expected numbered email blocks")
	}
	if !strings.Contains(input, "alice@example.com") {
		t.Errorf("expected sender in block")
	}
	if !strings.Contains(input, "50% off") {
		t.Errorf("expected subject in block")
	}
	if strings.Index(input, "Email 1") > strings.Index(input, "Email 2") {
		t.Errorf("expected blocks in input order")
	}
}
