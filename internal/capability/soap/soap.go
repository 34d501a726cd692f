// Package soap turns a handover note into a SOAP record using the
// text-generation collaborator.
package soap

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/tjfontaine/nurseiq/internal/capability"
	"github.com/tjfontaine/nurseiq/internal/domain"
)

const (
	maxTokens   = 800
	temperature = 0.3

	// NotDocumented fills SOAP fields the generator left out.
	NotDocumented = "Not documented"
)

const systemPrompt = `You are a clinical documentation specialist. Convert nurse handover notes into structured SOAP notes.

Always respond with ONLY a valid JSON object in this exact format, no other text:
{
  "patientName": "extract name and bed from note, or Unknown Patient",
  "subjective": "patient own words, complaints, symptoms",
  "objective": "vital signs, observations, measurements, medications given",
  "assessment": "clinical judgment, diagnosis impression",
  "plan": "nursing interventions, medications, monitoring, referrals"
}`

// FallbackSOAP is returned whenever the generator cannot produce a usable record.
func FallbackSOAP() domain.SoapRecord {
	return domain.SoapRecord{
		PatientName: "Patient (AI Unavailable)",
		Subjective:  "AI text generation service not reachable. Check AZURE_OPENAI_ENDPOINT and AZURE_OPENAI_KEY configuration.",
		Objective:   "N/A",
		Assessment:  "N/A",
		Plan:        "Fix AI service configuration to enable real AI processing.",
	}
}

// Agent is the documentation capability.
type Agent struct {
	generator domain.TextGenerator
	logger    *slog.Logger
}

// New creates a documentation agent.
func New(generator domain.TextGenerator, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{generator: generator, logger: logger}
}

// BuildRequest returns the completion request sent for note.
func BuildRequest(note string) *domain.CompletionRequest {
	return &domain.CompletionRequest{
		Messages: []domain.ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Convert this handover note to a SOAP note:\n\n" + note},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

// GenerateSOAP returns the SOAP record for note. It never fails; collaborator
// errors and unparseable replies yield FallbackSOAP.
func (a *Agent) GenerateSOAP(ctx context.Context, note string) domain.SoapRecord {
	reply, err := a.generator.Generate(ctx, BuildRequest(note))
	if err != nil {
		a.logger.Warn("documentation generation failed, using fallback",
			slog.String("error", err.Error()))
		return FallbackSOAP()
	}

	record, err := ParseSOAP(reply)
	if err != nil {
		a.logger.Warn("documentation reply not parseable, using fallback",
			slog.String("error", err.Error()))
		return FallbackSOAP()
	}

	return record
}

// ParseSOAP decodes a generator reply. Non-string values are kept as their
// JSON text and missing fields become NotDocumented.
func ParseSOAP(reply string) (domain.SoapRecord, error) {
	var fields map[string]json.RawMessage
	if err := capability.DecodeReply(reply, &fields); err != nil {
		return domain.SoapRecord{}, err
	}

	return domain.SoapRecord{
		PatientName: field(fields, "patientName"),
		Subjective:  field(fields, "subjective"),
		Objective:   field(fields, "objective"),
		Assessment:  field(fields, "assessment"),
		Plan:        field(fields, "plan"),
	}, nil
}

func field(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return NotDocumented
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	if strings.TrimSpace(s) == "" {
		return NotDocumented
	}
	return s
}
