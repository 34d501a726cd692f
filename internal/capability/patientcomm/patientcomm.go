// Package patientcomm produces a plain-language discharge summary from a
// SOAP record.
package patientcomm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tjfontaine/nurseiq/internal/capability"
	"github.com/tjfontaine/nurseiq/internal/domain"
)

const (
	maxTokens   = 800
	temperature = 0.3

	systemPrompt = "You are a patient communication specialist in healthcare. Always respond with valid JSON only."
)

const promptTemplate = `You are a healthcare communication specialist. Based on the clinical information below, generate a patient-friendly discharge summary.

CLINICAL SOAP NOTE:
Subjective: %s
Objective: %s
Assessment: %s
Plan: %s

Generate a JSON response with these exact fields:
{
  "patientInstructions": "Simple, clear instructions for the patient in plain English (no medical jargon)",
  "medications": "List of medications the patient needs to take, with simple instructions",
  "warningSigns": "Warning signs that should prompt the patient to return to hospital",
  "followUp": "Follow-up appointment and next steps",
  "dietActivity": "Any diet or activity restrictions"
}

Use simple language a patient with no medical background can understand.`

// DefaultDischargeSummary is the safe content used when generation fails.
func DefaultDischargeSummary() domain.DischargeSummary {
	return domain.DischargeSummary{
		Success:             false,
		PatientInstructions: "Please follow your doctor's instructions carefully.",
		Medications:         "Take all prescribed medications as directed.",
		WarningSigns:        "Return to hospital if symptoms worsen.",
		FollowUp:            "Attend all scheduled follow-up appointments.",
		DietActivity:        "Follow any dietary advice given by your care team.",
	}
}

// reply is the generator's JSON object. warningSign is an alias some
// replies use for warningSigns.
type reply struct {
	PatientInstructions string `json:"patientInstructions"`
	Medications         string `json:"medications"`
	WarningSign         string `json:"warningSign"`
	WarningSigns        string `json:"warningSigns"`
	FollowUp            string `json:"followUp"`
	DietActivity        string `json:"dietActivity"`
}

// Agent is the patient communication capability.
type Agent struct {
	generator domain.TextGenerator
	logger    *slog.Logger
}

// New creates a patient communication agent.
func New(generator domain.TextGenerator, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{generator: generator, logger: logger}
}

// BuildRequest embeds the clinical SOAP fields, not the raw note.
func BuildRequest(soap domain.SoapRecord) *domain.CompletionRequest {
	return &domain.CompletionRequest{
		Messages: []domain.ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf(promptTemplate, soap.Subjective, soap.Objective, soap.Assessment, soap.Plan)},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

// GenerateDischargeSummary returns the patient-facing summary. The note is
// accepted for symmetry with the other capabilities; only soap reaches the
// generator. It never fails; errors yield DefaultDischargeSummary.
func (a *Agent) GenerateDischargeSummary(ctx context.Context, note string, soap domain.SoapRecord) domain.DischargeSummary {
	text, err := a.generator.Generate(ctx, BuildRequest(soap))
	if err != nil {
		a.logger.Warn("discharge summary generation failed, using default",
			slog.String("error", err.Error()))
		return DefaultDischargeSummary()
	}

	var r reply
	if err := capability.DecodeReply(text, &r); err != nil {
		a.logger.Warn("discharge summary reply not parseable, using default",
			slog.String("error", err.Error()))
		return DefaultDischargeSummary()
	}

	return domain.DischargeSummary{
		Success:             true,
		PatientInstructions: r.PatientInstructions,
		Medications:         r.Medications,
		WarningSigns:        capability.FirstNonEmpty(r.WarningSign, r.WarningSigns),
		FollowUp:            r.FollowUp,
		DietActivity:        r.DietActivity,
	}
}
