// Package mcp exposes each capability as a directly invocable tool, outside
// the orchestrated flow.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tjfontaine/nurseiq/internal/capability/compliance"
	"github.com/tjfontaine/nurseiq/internal/domain"
	"github.com/tjfontaine/nurseiq/internal/frontdoor"
	"github.com/tjfontaine/nurseiq/internal/orchestrator"
	"github.com/tjfontaine/nurseiq/internal/server"
)

const (
	serverName    = "nurseiq-mcp"
	serverVersion = "1.0.0"

	ToolGenerateSOAPNote         = "generate_soap_note"
	ToolCheckMedicationSafety    = "check_medication_safety"
	ToolGenerateDischargeSummary = "generate_discharge_summary"
	ToolAuditCompliance          = "audit_compliance"

	auditSummaryURI = "audit://session/summary"
	statusSuccess   = "success"
	statusFailed    = "failed"
	errMissingNote  = "handover_note is required"
)

// Tools are the capabilities behind the tool endpoints. Compliance returns a
// fresh auditor, with its own session, for every audit_compliance call; the
// entries it records are copied into Journal for the summary resource.
type Tools struct {
	Documentation orchestrator.Documenter
	Medication    orchestrator.SafetyChecker
	PatientComm   orchestrator.DischargeWriter
	Compliance    func() orchestrator.Auditor
	Journal       *compliance.Journal
}

// Arguments is the fixed argument shape of every tool.
type Arguments struct {
	HandoverNote string   `json:"handover_note"`
	AgentsUsed   []string `json:"agents_used,omitempty"`
}

type toolFunc func(ctx context.Context, args Arguments) (any, error)

type tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
	run         toolFunc
}

type Handler struct {
	tools   []tool
	summary func() domain.AuditSummary
	logger  *slog.Logger
	now     func() time.Time
}

func NewHandler(t Tools, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	journal := t.Journal
	if journal == nil {
		journal = compliance.NewJournal(compliance.DefaultJournalSize)
	}
	h := &Handler{logger: logger, now: time.Now}
	h.tools = []tool{
		{
			Name:        ToolGenerateSOAPNote,
			Description: "Convert a nurse handover note into a structured SOAP note.",
			InputSchema: inputSchema(false),
			run: func(ctx context.Context, args Arguments) (any, error) {
				return t.Documentation.GenerateSOAP(ctx, args.HandoverNote), nil
			},
		},
		{
			Name:        ToolCheckMedicationSafety,
			Description: "Detect medications in a handover note and check FDA label warnings and known interactions.",
			InputSchema: inputSchema(false),
			run: func(ctx context.Context, args Arguments) (any, error) {
				return t.Medication.CheckSafety(ctx, args.HandoverNote), nil
			},
		},
		{
			Name:        ToolGenerateDischargeSummary,
			Description: "Generate a patient-friendly discharge summary. A SOAP note is generated first.",
			InputSchema: inputSchema(false),
			run: func(ctx context.Context, args Arguments) (any, error) {
				soap := t.Documentation.GenerateSOAP(ctx, args.HandoverNote)
				return t.PatientComm.GenerateDischargeSummary(ctx, args.HandoverNote, soap), nil
			},
		},
		{
			Name:        ToolAuditCompliance,
			Description: "Record an audit trail for a handover note and flag patient identifiers.",
			InputSchema: inputSchema(true),
			run: func(ctx context.Context, args Arguments) (any, error) {
				agents := args.AgentsUsed
				if agents == nil {
					agents = []string{}
				}
				report := t.Compliance().AuditNoteProcessing(args.HandoverNote, agents)
				journal.Record(report.AuditEntries...)
				return report, nil
			},
		},
	}
	h.summary = journal.Summary
	return h
}

func inputSchema(withAgents bool) map[string]any {
	props := map[string]any{
		"handover_note": map[string]any{
			"type":        "string",
			"description": "Free-text nurse handover note",
		},
	}
	if withAgents {
		props["agents_used"] = map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "Capabilities that processed the note",
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   []string{"handover_note"},
	}
}

// Handlers returns the routes served by this frontdoor.
func (h *Handler) Handlers() []frontdoor.HandlerRegistration {
	return []frontdoor.HandlerRegistration{
		{Path: "/mcp", Method: http.MethodGet, Handler: h.HandleInfo},
		{Path: "/mcp/tools", Method: http.MethodGet, Handler: h.HandleListTools},
		{Path: "/mcp/call", Method: http.MethodPost, Handler: h.HandleCall},
		{Path: "/mcp/resources", Method: http.MethodGet, Handler: h.HandleResources},
	}
}

func (h *Handler) toolNames() []string {
	names := make([]string, len(h.tools))
	for i, t := range h.tools {
		names[i] = t.Name
	}
	return names
}

func (h *Handler) lookup(name string) (tool, bool) {
	for _, t := range h.tools {
		if t.Name == name {
			return t, true
		}
	}
	return tool{}, false
}

func (h *Handler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	frontdoor.WriteJSON(w, http.StatusOK, map[string]any{
		"name":        serverName,
		"version":     serverVersion,
		"description": "NurseIQ clinical handover capabilities as callable tools",
		"tools":       h.toolNames(),
		"endpoints": map[string]string{
			"tools":     "GET /mcp/tools",
			"call":      "POST /mcp/call",
			"resources": "GET /mcp/resources",
		},
	})
}

func (h *Handler) HandleListTools(w http.ResponseWriter, r *http.Request) {
	frontdoor.WriteJSON(w, http.StatusOK, map[string]any{"tools": h.tools})
}

type callRequest struct {
	Tool      string    `json:"tool"`
	Arguments Arguments `json:"arguments"`
}

type callResponse struct {
	Tool      string    `json:"tool"`
	Result    any       `json:"result"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type failedResponse struct {
	Error  string `json:"error"`
	Tool   string `json:"tool"`
	Status string `json:"status"`
}

func (h *Handler) HandleCall(w http.ResponseWriter, r *http.Request) {
	var req callRequest
	if err := frontdoor.DecodeJSON(w, r, &req); err != nil {
		server.AddError(r.Context(), err)
		frontdoor.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, ok := h.lookup(req.Tool)
	if !ok {
		frontdoor.WriteJSON(w, http.StatusNotFound, map[string]any{
			"error":           fmt.Sprintf("Unknown tool: %s", req.Tool),
			"available_tools": h.toolNames(),
		})
		return
	}
	server.AddLogField(r.Context(), "tool", t.Name)

	if strings.TrimSpace(req.Arguments.HandoverNote) == "" {
		frontdoor.WriteError(w, http.StatusBadRequest, errMissingNote)
		return
	}

	result, err := h.invoke(r.Context(), t, req.Arguments)
	if err != nil {
		server.AddError(r.Context(), err)
		h.logger.Error("tool call failed", slog.String("tool", t.Name), slog.String("error", err.Error()))
		frontdoor.WriteJSON(w, http.StatusInternalServerError, failedResponse{
			Error:  err.Error(),
			Tool:   t.Name,
			Status: statusFailed,
		})
		return
	}

	frontdoor.WriteJSON(w, http.StatusOK, callResponse{
		Tool:      t.Name,
		Result:    result,
		Status:    statusSuccess,
		Timestamp: h.now().UTC(),
	})
}

// invoke runs the tool, converting a panic into an error.
func (h *Handler) invoke(ctx context.Context, t tool, args Arguments) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s: %v", t.Name, rec)
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.run(ctx, args)
}

func (h *Handler) HandleResources(w http.ResponseWriter, r *http.Request) {
	frontdoor.WriteJSON(w, http.StatusOK, map[string]any{
		"resources": []map[string]any{
			{
				"uri":         auditSummaryURI,
				"name":        "Audit summary",
				"description": "Most recent audit entries recorded by audit_compliance calls",
				"mimeType":    "application/json",
				"contents":    h.summary(),
			},
		},
	})
}
