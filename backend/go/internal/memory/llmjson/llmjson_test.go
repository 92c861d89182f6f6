package llmjson

import (
	"errors"
	"testing"

	"memory_orchestrator/backend/go/internal/models"
)

type payload struct {
	Summary string   `json:"summary"`
	Topics  []string `json:"topics"`
}

func TestDecodeStrict(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"plain", `{"summary":"s","topics":["a"]}`, false},
		{"fenced", "```json\n{\"summary\":\"s\"}\n```", false},
		{"prose around", `Here you go: {"summary":"s"} hope it helps`, false},
		{"unknown field", `{"summary":"s","mood":"happy"}`, true},
		{"no object", `I cannot summarize this.`, true},
		{"truncated", `{"summary":"s"`, true},
		{"wrong type", `{"summary":["s"]}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p payload
			err := DecodeStrict(tt.raw, &p)
			if tt.wantErr {
				if !errors.Is(err, models.ErrParse) {
					t.Fatalf("err = %v, want ErrParse", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeStrict() error = %v", err)
			}
			if p.Summary != "s" {
				t.Errorf("Summary = %q", p.Summary)
			}
		})
	}
}
