// Package orchestrator sequences the handover capabilities for one note and
// merges their outputs.
//
// The flow is a fixed state machine:
//
//	Idle → DetectingTriggers → RunningDocumentation → (RunningMedicationSafety)? →
//	(RunningPatientCommunication)? → RunningComplianceAudit → Done
//
// Every stage runs to completion before the next starts. Capabilities degrade
// to fallback values on their own; anything they panic with propagates to the
// caller.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/nurseiq/internal/domain"
)

const tracerName = "github.com/tjfontaine/nurseiq/internal/orchestrator"

// TriggerDetector derives trigger flags from a note.
type TriggerDetector interface {
	Detect(note string) domain.TriggerFlags
}

// Documenter produces the SOAP record.
type Documenter interface {
	GenerateSOAP(ctx context.Context, note string) domain.SoapRecord
}

// SafetyChecker produces the medication safety report.
type SafetyChecker interface {
	CheckSafety(ctx context.Context, note string) domain.MedicationSafetyReport
}

// DischargeWriter produces the patient-facing discharge summary.
type DischargeWriter interface {
	GenerateDischargeSummary(ctx context.Context, note string, soap domain.SoapRecord) domain.DischargeSummary
}

// Auditor records the compliance audit trail.
type Auditor interface {
	AuditNoteProcessing(note string, activated []string) domain.AuditReport
}

// Capabilities are the collaborators of one orchestration run.
type Capabilities struct {
	Detector      TriggerDetector
	Documentation Documenter
	Medication    SafetyChecker
	PatientComm   DischargeWriter
	Compliance    Auditor
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithObserver sets the progress observer.
func WithObserver(observer Observer) Option {
	return func(o *Orchestrator) {
		o.observer = observer
	}
}

// WithTracer sets the tracer used for stage spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

// Orchestrator runs the capabilities for a single note. Instances hold
// per-run logs and must not be shared between requests; use a Factory.
type Orchestrator struct {
	caps     Capabilities
	logger   *slog.Logger
	observer Observer
	tracer   trace.Tracer
	now      func() time.Time

	state    State
	logs     []string
	progress *progressQueue
}

// New creates an orchestrator.
func New(caps Capabilities, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		caps:   caps,
		logger: slog.Default(),
		now:    time.Now,
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	return o
}

// State returns the current state.
func (o *Orchestrator) State() State {
	return o.state
}

// Wait blocks until the observer has received every progress update accepted
// during the last Process call. Process itself never waits on the observer.
func (o *Orchestrator) Wait() {
	o.progress.wait()
}

// Process runs the full flow for note. The only error is domain.ErrEmptyNote.
func (o *Orchestrator) Process(ctx context.Context, note string) (*domain.OrchestrationResult, error) {
	if strings.TrimSpace(note) == "" {
		return nil, domain.ErrEmptyNote
	}

	if o.observer != nil {
		o.progress = startProgress(o.observer)
		defer o.progress.close()
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.process")
	defer span.End()

	result := &domain.OrchestrationResult{
		ActivatedAgents: []string{},
	}

	o.transition(StateDetectingTriggers, "Received handover note input")
	var flags domain.TriggerFlags
	o.stage(ctx, "detect_triggers", func(ctx context.Context) {
		flags = o.caps.Detector.Detect(note)
	})
	span.SetAttributes(flagAttributes(flags)...)
	o.record(fmt.Sprintf("Triggers: medication=%t, discharge=%t", flags.MedicationRelevant, flags.DischargeRelevant))

	o.transition(StateRunningDocumentation, "Activating "+domain.CapabilityDocumentation)
	result.ActivatedAgents = append(result.ActivatedAgents, domain.CapabilityDocumentation)
	o.stage(ctx, "documentation", func(ctx context.Context) {
		result.SoapRecord = o.caps.Documentation.GenerateSOAP(ctx, note)
	}, flagAttributes(flags)...)
	o.record(domain.CapabilityDocumentation + " completed")

	if flags.MedicationRelevant {
		o.transition(StateRunningMedicationSafety, "Medications mentioned - activating "+domain.CapabilityMedicationSafety)
		result.ActivatedAgents = append(result.ActivatedAgents, domain.CapabilityMedicationSafety)
		o.stage(ctx, "medication_safety", func(ctx context.Context) {
			report := o.caps.Medication.CheckSafety(ctx, note)
			result.MedicationSafety = &report
		}, flagAttributes(flags)...)
		o.record(fmt.Sprintf("%s completed (%d medications, severity %s)",
			domain.CapabilityMedicationSafety, len(result.MedicationSafety.MedicationsDetected), result.MedicationSafety.OverallSeverity))
	}

	if flags.DischargeRelevant {
		o.transition(StateRunningPatientCommunication, "Discharge mentioned - activating "+domain.CapabilityPatientCommunication)
		result.ActivatedAgents = append(result.ActivatedAgents, domain.CapabilityPatientCommunication)
		o.stage(ctx, "patient_communication", func(ctx context.Context) {
			summary := o.caps.PatientComm.GenerateDischargeSummary(ctx, note, result.SoapRecord)
			result.PatientCommunication = &summary
		}, flagAttributes(flags)...)
		o.record(domain.CapabilityPatientCommunication + " completed")
	}

	o.transition(StateRunningComplianceAudit, "Activating "+domain.CapabilityComplianceAudit)
	result.ActivatedAgents = append(result.ActivatedAgents, domain.CapabilityComplianceAudit)
	activated := make([]string, len(result.ActivatedAgents))
	copy(activated, result.ActivatedAgents)
	o.stage(ctx, "compliance_audit", func(ctx context.Context) {
		result.AuditResult = o.caps.Compliance.AuditNoteProcessing(note, activated)
	}, flagAttributes(flags)...)
	o.record(domain.CapabilityComplianceAudit + " completed")

	o.transition(StateDone, "Processing complete")

	span.SetAttributes(attribute.StringSlice("activated_agents", result.ActivatedAgents))

	result.Logs = make([]string, len(o.logs))
	copy(result.Logs, o.logs)
	return result, nil
}

// stage runs fn inside a span named orchestrator.<name>.
func (o *Orchestrator) stage(ctx context.Context, name string, fn func(context.Context), attrs ...attribute.KeyValue) {
	ctx, span := o.tracer.Start(ctx, "orchestrator."+name, trace.WithAttributes(attrs...))
	defer span.End()
	fn(ctx)
}

// transition moves to state and records message.
func (o *Orchestrator) transition(state State, message string) {
	o.state = state
	o.record(message)
}

// record appends a timestamped log line and notifies the observer.
func (o *Orchestrator) record(message string) {
	now := o.now().UTC()
	o.logs = append(o.logs, fmt.Sprintf("%s: %s", now.Format(time.RFC3339Nano), message))
	o.logger.Info(message, slog.String("state", string(o.state)))
	o.progress.send(Progress{State: o.state, Message: message, Time: now})
}

func flagAttributes(flags domain.TriggerFlags) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool("medication_relevant", flags.MedicationRelevant),
		attribute.Bool("discharge_relevant", flags.DischargeRelevant),
	}
}
