package soap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/tjfontaine/nurseiq/internal/domain"
	"github.com/tjfontaine/nurseiq/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAgent_GenerateSOAP(t *testing.T) {
	gen := &testutil.StubGenerator{
		Reply: "```json\n" + `{"patientName":"Mr. Ahmed, Bed 4B","subjective":"Chest pain","objective":"BP 158/94","assessment":"Query ACS","plan":"ECG"}` + "\n```",
	}
	agent := New(gen, quietLogger())

	got := agent.GenerateSOAP(context.Background(), "Mr. Ahmed bed 4B chest pain")

	want := domain.SoapRecord{
		PatientName: "Mr. Ahmed, Bed 4B",
		Subjective:  "Chest pain",
		Objective:   "BP 158/94",
		Assessment:  "Query ACS",
		Plan:        "ECG",
	}
	if got != want {
		t.Errorf("GenerateSOAP() = %+v, want %+v", got, want)
	}

	if gen.Calls() != 1 {
		t.Fatalf("generator calls = %d, want 1", gen.Calls())
	}
	req := gen.Requests[0]
	if req.MaxTokens != 800 || req.Temperature != 0.3 {
		t.Errorf("request bounds = %d/%v, want 800/0.3", req.MaxTokens, req.Temperature)
	}
	if req.Messages[0].Role != "system" || !strings.Contains(req.Messages[0].Content, "ONLY a valid JSON object") {
		t.Errorf("system message = %+v", req.Messages[0])
	}
	if !strings.HasSuffix(req.Messages[1].Content, "Mr. Ahmed bed 4B chest pain") {
		t.Errorf("user message = %q", req.Messages[1].Content)
	}
}

func TestAgent_GenerateSOAP_Fallback(t *testing.T) {
	tests := []struct {
		name string
		gen  *testutil.StubGenerator
	}{
		{
			name: "not configured",
			gen:  &testutil.StubGenerator{Err: domain.NewCollaboratorError("azure-openai", domain.ErrorTypeNotConfigured, "missing key")},
		},
		{
			name: "transport failure",
			gen:  &testutil.StubGenerator{Err: errors.New("connection refused")},
		},
		{
			name: "prose reply",
			gen:  &testutil.StubGenerator{Reply: "I'm sorry, I cannot help with that."},
		},
		{
			name: "array reply",
			gen:  &testutil.StubGenerator{Reply: `["subjective"]`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.gen, quietLogger()).GenerateSOAP(context.Background(), "note")
			if got != FallbackSOAP() {
				t.Errorf("GenerateSOAP() = %+v, want fallback", got)
			}
		})
	}
}

func TestFallbackSOAP_AllFieldsPresent(t *testing.T) {
	f := FallbackSOAP()
	for name, v := range map[string]string{
		"patientName": f.PatientName,
		"subjective":  f.Subjective,
		"objective":   f.Objective,
		"assessment":  f.Assessment,
		"plan":        f.Plan,
	} {
		if v == "" {
			t.Errorf("fallback %s is empty", name)
		}
	}
	if f.PatientName != "Patient (AI Unavailable)" {
		t.Errorf("PatientName = %q", f.PatientName)
	}
}

func TestParseSOAP(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  domain.SoapRecord
	}{
		{
			name:  "missing and blank fields",
			reply: `{"subjective":"Pain","plan":"   ","assessment":null}`,
			want: domain.SoapRecord{
				PatientName: NotDocumented,
				Subjective:  "Pain",
				Objective:   NotDocumented,
				Assessment:  NotDocumented,
				Plan:        NotDocumented,
			},
		},
		{
			name:  "non string values kept as json",
			reply: `{"patientName":"Unknown Patient","subjective":"s","objective":{"hr":102},"assessment":"a","plan":["ECG","bloods"]}`,
			want: domain.SoapRecord{
				PatientName: "Unknown Patient",
				Subjective:  "s",
				Objective:   `{"hr":102}`,
				Assessment:  "a",
				Plan:        `["ECG","bloods"]`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSOAP(tt.reply)
			if err != nil {
				t.Fatalf("ParseSOAP() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseSOAP() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
