package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tjfontaine/nurseiq/internal/capability/compliance"
	"github.com/tjfontaine/nurseiq/internal/catalog"
	"github.com/tjfontaine/nurseiq/internal/domain"
	"github.com/tjfontaine/nurseiq/internal/orchestrator"
	"github.com/tjfontaine/nurseiq/internal/testutil"
)

const ahmedNote = "Mr. Ahmed, 67 years old, bed 4B. Given aspirin 300mg and GTN spray."

func newTestFactory(gen *testutil.StubGenerator) *orchestrator.Factory {
	return &orchestrator.Factory{
		Generator: gen,
		Labels: &testutil.StubLabels{
			Generic: map[string]*domain.DrugLabel{
				"aspirin": {Warnings: "Reye's syndrome warning."},
			},
		},
		Catalogs: catalog.NewStore(catalog.Default()),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func newTestHandler(f *orchestrator.Factory) *Handler {
	return NewHandler(Tools{
		Documentation: f.Documentation(),
		Medication:    f.Medication(),
		PatientComm:   f.PatientComm(),
		Compliance: func() orchestrator.Auditor {
			return f.Compliance(compliance.NewSession())
		},
	}, f.Logger)
}

func call(t *testing.T, h *Handler, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp/call", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleCall(rec, req)

	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec, resp
}

func TestHandleInfo(t *testing.T) {
	h := newTestHandler(newTestFactory(&testutil.StubGenerator{}))

	rec := httptest.NewRecorder()
	h.HandleInfo(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))

	var resp struct {
		Name  string   `json:"name"`
		Tools []string `json:"tools"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{ToolGenerateSOAPNote, ToolCheckMedicationSafety, ToolGenerateDischargeSummary, ToolAuditCompliance}
	if strings.Join(resp.Tools, ",") != strings.Join(want, ",") {
		t.Errorf("tools = %v, want %v", resp.Tools, want)
	}
}

func TestHandleListTools(t *testing.T) {
	h := newTestHandler(newTestFactory(&testutil.StubGenerator{}))

	rec := httptest.NewRecorder()
	h.HandleListTools(rec, httptest.NewRequest(http.MethodGet, "/mcp/tools", nil))

	var resp struct {
		Tools []struct {
			Name        string         `json:"name"`
			Description string         `json:"description"`
			InputSchema map[string]any `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Tools) != 4 {
		t.Fatalf("tools = %d, want 4", len(resp.Tools))
	}
	for _, tool := range resp.Tools {
		if tool.Description == "" || tool.InputSchema["type"] != "object" {
			t.Errorf("tool %s descriptor = %+v", tool.Name, tool)
		}
	}
}

func TestHandleCall_UnknownTool(t *testing.T) {
	h := newTestHandler(newTestFactory(&testutil.StubGenerator{}))

	rec, resp := call(t, h, `{"tool":"prescribe","arguments":{"handover_note":"x"}}`)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if resp["error"] != "Unknown tool: prescribe" {
		t.Errorf("error = %v", resp["error"])
	}
	if tools, _ := resp["available_tools"].([]any); len(tools) != 4 {
		t.Errorf("available_tools = %v", resp["available_tools"])
	}
}

func TestHandleCall_MissingNote(t *testing.T) {
	h := newTestHandler(newTestFactory(&testutil.StubGenerator{}))

	rec, resp := call(t, h, `{"tool":"generate_soap_note","arguments":{}}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp["error"] != errMissingNote {
		t.Errorf("error = %v", resp["error"])
	}
}

func TestHandleCall_GenerateSOAPNote(t *testing.T) {
	gen := &testutil.StubGenerator{Err: errors.New("unreachable")}
	h := newTestHandler(newTestFactory(gen))

	rec, resp := call(t, h, `{"tool":"generate_soap_note","arguments":{"handover_note":"Comfortable overnight."}}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp["status"] != "success" || resp["tool"] != ToolGenerateSOAPNote {
		t.Errorf("response = %v", resp)
	}
	if _, ok := resp["timestamp"].(string); !ok {
		t.Errorf("timestamp = %v", resp["timestamp"])
	}
	result := resp["result"].(map[string]any)
	if result["patientName"] != "Patient (AI Unavailable)" {
		t.Errorf("result = %v, want fallback SOAP", result)
	}
}

func TestHandleCall_CheckMedicationSafetyMatchesOrchestrator(t *testing.T) {
	f := newTestFactory(&testutil.StubGenerator{Err: errors.New("unreachable")})
	h := newTestHandler(f)

	rec, resp := call(t, h, `{"tool":"check_medication_safety","arguments":{"handover_note":"`+ahmedNote+`"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	full, err := f.New(nil).Process(context.Background(), ahmedNote)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	got, _ := json.Marshal(resp["result"])
	var normalized any
	want, _ := json.Marshal(full.MedicationSafety)
	_ = json.Unmarshal(want, &normalized)
	want, _ = json.Marshal(normalized)

	if string(got) != string(want) {
		t.Errorf("tool result = %s\norchestrator = %s", got, want)
	}
}

func TestHandleCall_GenerateDischargeSummary(t *testing.T) {
	gen := &testutil.StubGenerator{
		Reply: `{"patientName":"P","subjective":"S","objective":"O","assessment":"A","plan":"P","patientInstructions":"Rest.","warningSigns":"Fever."}`,
	}
	h := newTestHandler(newTestFactory(gen))

	rec, resp := call(t, h, `{"tool":"generate_discharge_summary","arguments":{"handover_note":"Going home today."}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	if gen.Calls() != 2 {
		t.Errorf("generator calls = %d, want SOAP then summary", gen.Calls())
	}
	result := resp["result"].(map[string]any)
	if result["success"] != true || result["warningSigns"] != "Fever." {
		t.Errorf("result = %v", result)
	}
}

func TestHandleCall_AuditComplianceAndResources(t *testing.T) {
	h := newTestHandler(newTestFactory(&testutil.StubGenerator{}))

	for i := 0; i < 2; i++ {
		rec, resp := call(t, h, `{"tool":"audit_compliance","arguments":{"handover_note":"DOB: 04/12/1958","agents_used":["DocumentationAgent"]}}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		result := resp["result"].(map[string]any)
		if result["containsPHI"] != true {
			t.Errorf("containsPHI = %v", result["containsPHI"])
		}
	}

	rec := httptest.NewRecorder()
	h.HandleResources(rec, httptest.NewRequest(http.MethodGet, "/mcp/resources", nil))

	var resp struct {
		Resources []struct {
			URI      string              `json:"uri"`
			Contents domain.AuditSummary `json:"contents"`
		} `json:"resources"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Resources) != 1 || resp.Resources[0].URI != auditSummaryURI {
		t.Fatalf("resources = %+v", resp.Resources)
	}
	if got := resp.Resources[0].Contents.TotalActions; got != 6 {
		t.Errorf("totalActions = %d, want 6", got)
	}
}

func TestHandleCall_AuditComplianceIsolatesCallers(t *testing.T) {
	h := newTestHandler(newTestFactory(&testutil.StubGenerator{}))

	decodeReport := func(resp map[string]any) domain.AuditReport {
		t.Helper()
		raw, _ := json.Marshal(resp["result"])
		var report domain.AuditReport
		if err := json.Unmarshal(raw, &report); err != nil {
			t.Fatalf("decode report: %v", err)
		}
		return report
	}

	_, first := call(t, h, `{"tool":"audit_compliance","arguments":{"handover_note":"Mr. Ahmed DOB: 04/12/1958"}}`)
	_, second := call(t, h, `{"tool":"audit_compliance","arguments":{"handover_note":"Comfortable overnight."}}`)

	a, b := decodeReport(first), decodeReport(second)
	if len(a.AuditEntries) != 3 {
		t.Errorf("first caller entries = %d, want 3", len(a.AuditEntries))
	}
	if b.ContainsPHI {
		t.Error("second caller should not be flagged")
	}
	if len(b.AuditEntries) != 2 {
		t.Fatalf("second caller entries = %d, want only its own 2", len(b.AuditEntries))
	}
	for _, e := range b.AuditEntries {
		if e.Action == compliance.ActionPHIDetected {
			t.Errorf("second caller sees another caller's entry: %+v", e)
		}
		if e.SessionID == a.AuditEntries[0].SessionID {
			t.Errorf("callers share session %s", e.SessionID)
		}
	}
}

type panickingChecker struct{}

func (panickingChecker) CheckSafety(context.Context, string) domain.MedicationSafetyReport {
	panic("label table corrupted")
}

func TestHandleCall_Failure(t *testing.T) {
	f := newTestFactory(&testutil.StubGenerator{})
	h := NewHandler(Tools{
		Documentation: f.Documentation(),
		Medication:    panickingChecker{},
		PatientComm:   f.PatientComm(),
		Compliance:    func() orchestrator.Auditor { return f.Compliance(nil) },
	}, f.Logger)

	rec, resp := call(t, h, `{"tool":"check_medication_safety","arguments":{"handover_note":"aspirin"}}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if resp["status"] != "failed" || resp["tool"] != ToolCheckMedicationSafety {
		t.Errorf("response = %v", resp)
	}
	if !strings.Contains(resp["error"].(string), "label table corrupted") {
		t.Errorf("error = %v", resp["error"])
	}
}
