package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tjfontaine/nurseiq/internal/capability/patientcomm"
	"github.com/tjfontaine/nurseiq/internal/capability/soap"
	"github.com/tjfontaine/nurseiq/internal/catalog"
	"github.com/tjfontaine/nurseiq/internal/domain"
	"github.com/tjfontaine/nurseiq/internal/testutil"
)

const ahmedNote = "Mr. Ahmed, 67 years old, bed 4B. Central chest pain radiating to left arm since 0300. " +
	"BP 158/94, HR 102. Given aspirin 300mg and GTN spray, pain now 4/10. For cardiology review."

func newFactory(gen domain.TextGenerator) *Factory {
	return &Factory{
		Generator: gen,
		Labels:    &testutil.StubLabels{},
		Catalogs:  catalog.NewStore(catalog.Default()),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func unavailable() *testutil.StubGenerator {
	return &testutil.StubGenerator{Err: domain.NewCollaboratorError("azure-openai", domain.ErrorTypeNotConfigured, "missing key")}
}

func TestOrchestrator_ActivationOrder(t *testing.T) {
	tests := []struct {
		name string
		note string
		want []string
	}{
		{
			name: "no triggers",
			note: "Comfortable overnight, slept well.",
			want: []string{domain.CapabilityDocumentation, domain.CapabilityComplianceAudit},
		},
		{
			name: "medication only",
			note: "Given paracetamol 1g at 0600.",
			want: []string{domain.CapabilityDocumentation, domain.CapabilityMedicationSafety, domain.CapabilityComplianceAudit},
		},
		{
			name: "discharge only",
			note: "Going home today with family.",
			want: []string{domain.CapabilityDocumentation, domain.CapabilityPatientCommunication, domain.CapabilityComplianceAudit},
		},
		{
			name: "medication and discharge",
			note: "Ready for discharge, continue metformin.",
			want: []string{
				domain.CapabilityDocumentation,
				domain.CapabilityMedicationSafety,
				domain.CapabilityPatientCommunication,
				domain.CapabilityComplianceAudit,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := newFactory(unavailable()).New(nil).Process(context.Background(), tt.note)
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}

			if !reflect.DeepEqual(result.ActivatedAgents, tt.want) {
				t.Errorf("ActivatedAgents = %v, want %v", result.ActivatedAgents, tt.want)
			}
			if !reflect.DeepEqual(result.AuditResult.AgentsUsed, tt.want) {
				t.Errorf("AgentsUsed = %v, want %v", result.AuditResult.AgentsUsed, tt.want)
			}
			if (result.MedicationSafety != nil) != contains(tt.want, domain.CapabilityMedicationSafety) {
				t.Errorf("MedicationSafety = %+v", result.MedicationSafety)
			}
			if (result.PatientCommunication != nil) != contains(tt.want, domain.CapabilityPatientCommunication) {
				t.Errorf("PatientCommunication = %+v", result.PatientCommunication)
			}
		})
	}
}

func TestOrchestrator_AhmedNote(t *testing.T) {
	result, err := newFactory(unavailable()).New(nil).Process(context.Background(), ahmedNote)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if result.SoapRecord != soap.FallbackSOAP() {
		t.Errorf("SoapRecord = %+v, want fallback", result.SoapRecord)
	}

	safety := result.MedicationSafety
	if safety == nil {
		t.Fatal("MedicationSafety = nil")
	}
	wantDetected := []domain.DrugMention{"ASPIRIN", "GTN"}
	if !reflect.DeepEqual(safety.MedicationsDetected, wantDetected) {
		t.Errorf("MedicationsDetected = %v, want %v", safety.MedicationsDetected, wantDetected)
	}

	found := false
	for _, f := range safety.Interactions {
		if reflect.DeepEqual(f.Drugs, []string{"ASPIRIN", "GTN"}) && f.Severity == domain.SeverityMedium {
			found = true
		}
	}
	if !found {
		t.Errorf("Interactions = %+v, want aspirin+GTN Medium", safety.Interactions)
	}

	if !result.AuditResult.ContainsPHI {
		t.Error("ContainsPHI = false, want true")
	}
	if result.PatientCommunication != nil {
		t.Error("PatientCommunication should not run without a discharge cue")
	}
}

func TestOrchestrator_Logs(t *testing.T) {
	o := newFactory(unavailable()).New(nil)

	result, err := o.Process(context.Background(), "Ready for discharge, continue metformin.")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if o.State() != StateDone {
		t.Errorf("State() = %v, want Done", o.State())
	}
	if len(result.Logs) < 2 {
		t.Fatalf("Logs = %v", result.Logs)
	}

	for _, line := range result.Logs {
		ts, _, ok := strings.Cut(line, ": ")
		if !ok {
			t.Fatalf("log line %q has no timestamp separator", line)
		}
		if _, err := time.Parse(time.RFC3339Nano, ts); err != nil {
			t.Errorf("log line %q timestamp: %v", line, err)
		}
	}

	if !strings.HasSuffix(result.Logs[0], "Received handover note input") {
		t.Errorf("first log = %q", result.Logs[0])
	}
	if !strings.HasSuffix(result.Logs[len(result.Logs)-1], "Processing complete") {
		t.Errorf("last log = %q", result.Logs[len(result.Logs)-1])
	}

	var medIdx, commIdx, auditIdx int
	for i, line := range result.Logs {
		switch {
		case strings.Contains(line, "activating "+domain.CapabilityMedicationSafety):
			medIdx = i
		case strings.Contains(line, "activating "+domain.CapabilityPatientCommunication):
			commIdx = i
		case strings.Contains(line, "Activating "+domain.CapabilityComplianceAudit):
			auditIdx = i
		}
	}
	if !(medIdx > 0 && medIdx < commIdx && commIdx < auditIdx) {
		t.Errorf("stage log order wrong: %v", result.Logs)
	}
}

func TestOrchestrator_EmptyNote(t *testing.T) {
	for _, note := range []string{"", "   \n\t"} {
		_, err := newFactory(unavailable()).New(nil).Process(context.Background(), note)
		if !errors.Is(err, domain.ErrEmptyNote) {
			t.Errorf("Process(%q) error = %v, want ErrEmptyNote", note, err)
		}
	}
}

func TestOrchestrator_DischargeUsesDocumentationOutput(t *testing.T) {
	gen := &testutil.StubGenerator{
		Reply: `{"patientName":"Mrs. Lee","subjective":"Wants to go home","objective":"Afebrile","assessment":"Cellulitis resolving","plan":"Oral antibiotics"}`,
	}

	result, err := newFactory(gen).New(nil).Process(context.Background(), "Ready for discharge today.")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if gen.Calls() != 2 {
		t.Fatalf("generator calls = %d, want 2", gen.Calls())
	}
	prompt := gen.Requests[1].Messages[1].Content
	if !strings.Contains(prompt, "Cellulitis resolving") {
		t.Errorf("discharge prompt does not embed the SOAP assessment: %q", prompt)
	}

	// The stub returns a SOAP object to the discharge prompt too, which has
	// none of the summary keys; decoding still succeeds with empty fields.
	if result.PatientCommunication == nil || !result.PatientCommunication.Success {
		t.Errorf("PatientCommunication = %+v", result.PatientCommunication)
	}
}

func TestOrchestrator_DischargeFallback(t *testing.T) {
	result, err := newFactory(unavailable()).New(nil).Process(context.Background(), "Patient going home this afternoon.")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if result.PatientCommunication == nil || *result.PatientCommunication != patientcomm.DefaultDischargeSummary() {
		t.Errorf("PatientCommunication = %+v, want default summary", result.PatientCommunication)
	}
}

func TestOrchestrator_Observer(t *testing.T) {
	updates := make(chan Progress, 32)
	observer := ObserverFunc(func(p Progress) { updates <- p })

	if _, err := newFactory(unavailable()).New(observer).Process(context.Background(), "Comfortable overnight."); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	var states []State
	timeout := time.After(2 * time.Second)
	for {
		select {
		case p := <-updates:
			states = append(states, p.State)
			if p.State != StateDone {
				continue
			}
		case <-timeout:
			t.Fatalf("timed out waiting for Done, got %v", states)
		}
		break
	}

	if states[0] != StateDetectingTriggers {
		t.Errorf("first state = %v, want DetectingTriggers", states[0])
	}
	for _, s := range states {
		if s == StateRunningMedicationSafety || s == StateRunningPatientCommunication {
			t.Errorf("unexpected state %v for a note without triggers", s)
		}
	}
}

func TestOrchestrator_SlowObserverDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	observer := ObserverFunc(func(Progress) { <-release })

	done := make(chan struct{})
	go func() {
		defer close(done)
		newFactory(unavailable()).New(observer).Process(context.Background(), "Ready for discharge, continue metformin.")
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Process blocked on a slow observer")
	}
}

func TestOrchestrator_WaitDeliversQueuedProgress(t *testing.T) {
	var states []State
	observer := ObserverFunc(func(p Progress) {
		time.Sleep(5 * time.Millisecond)
		states = append(states, p.State)
	})

	o := newFactory(unavailable()).New(observer)
	result, err := o.Process(context.Background(), "Ready for discharge, continue metformin.")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	o.Wait()

	if len(states) != len(result.Logs) {
		t.Fatalf("delivered %d updates, want %d", len(states), len(result.Logs))
	}
	if last := states[len(states)-1]; last != StateDone {
		t.Errorf("last state = %v, want Done", last)
	}
}

func TestOrchestrator_WaitWithoutObserver(t *testing.T) {
	o := newFactory(unavailable()).New(nil)
	if _, err := o.Process(context.Background(), "Stable."); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	o.Wait()
}

func TestOrchestrator_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	f := newFactory(unavailable())
	f.Tracer = tp.Tracer("test")

	if _, err := f.New(nil).Process(context.Background(), "Comfortable overnight."); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}

	want := []string{
		"orchestrator.detect_triggers",
		"orchestrator.documentation",
		"orchestrator.compliance_audit",
		"orchestrator.process",
	}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("spans = %v, want %v", names, want)
	}

	for _, s := range recorder.Ended() {
		if s.Name() != "orchestrator.documentation" {
			continue
		}
		for _, attr := range s.Attributes() {
			if string(attr.Key) == "medication_relevant" && attr.Value.AsBool() {
				t.Error("medication_relevant = true, want false")
			}
		}
	}
}

func TestFactory_SessionPerRequest(t *testing.T) {
	f := newFactory(unavailable())

	first, err := f.New(nil).Process(context.Background(), "Comfortable overnight.")
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.New(nil).Process(context.Background(), "Comfortable overnight.")
	if err != nil {
		t.Fatal(err)
	}

	if len(second.AuditResult.AuditEntries) != 2 {
		t.Errorf("second run entries = %d, want 2 (logs must not leak across requests)", len(second.AuditResult.AuditEntries))
	}
	if first.AuditResult.AuditEntries[0].SessionID == second.AuditResult.AuditEntries[0].SessionID {
		t.Error("requests share a session id")
	}
}

type panickingDocumenter struct{}

func (panickingDocumenter) GenerateSOAP(context.Context, string) domain.SoapRecord {
	panic("boom")
}

func TestOrchestrator_PanicsPropagate(t *testing.T) {
	f := newFactory(unavailable())
	o := New(Capabilities{
		Detector:      f.New(nil).caps.Detector,
		Documentation: panickingDocumenter{},
	}, WithLogger(f.Logger))

	defer func() {
		if recover() == nil {
			t.Error("expected panic to propagate")
		}
	}()
	o.Process(context.Background(), "Comfortable overnight.")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
