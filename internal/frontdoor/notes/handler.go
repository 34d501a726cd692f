// Package notes serves the browser-facing API: handover note processing,
// speech credentials and liveness.
package notes

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tjfontaine/nurseiq/internal/capability"
	"github.com/tjfontaine/nurseiq/internal/domain"
	"github.com/tjfontaine/nurseiq/internal/frontdoor"
	"github.com/tjfontaine/nurseiq/internal/server"
)

const (
	errNoNote        = "No patient note provided"
	errProcessFailed = "Failed to process note"
)

// Processor runs the full orchestration for one note.
type Processor interface {
	Process(ctx context.Context, note string) (*domain.OrchestrationResult, error)
}

// ProcessorFactory returns a fresh Processor per request.
type ProcessorFactory func() Processor

// SpeechConfig holds the speech-to-text credentials handed to the browser.
type SpeechConfig struct {
	Key    string
	Region string
}

// Collaborators reports which external services are configured.
type Collaborators struct {
	TextGeneration bool `json:"textGeneration"`
	Speech         bool `json:"speech"`
	DrugLabels     bool `json:"drugLabels"`
}

type Handler struct {
	newProcessor  ProcessorFactory
	speech        SpeechConfig
	collaborators Collaborators
	logger        *slog.Logger
	started       time.Time
}

func NewHandler(newProcessor ProcessorFactory, speech SpeechConfig, collaborators Collaborators, logger *slog.Logger) *Handler {
	if speech.Region == "" {
		speech.Region = "eastus"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		newProcessor:  newProcessor,
		speech:        speech,
		collaborators: collaborators,
		logger:        logger,
		started:       time.Now(),
	}
}

// Handlers returns the routes served by this frontdoor.
func (h *Handler) Handlers() []frontdoor.HandlerRegistration {
	return []frontdoor.HandlerRegistration{
		{Path: "/api/process-note", Method: http.MethodPost, Handler: h.HandleProcessNote},
		{Path: "/api/speech-config", Method: http.MethodGet, Handler: h.HandleSpeechConfig},
		{Path: "/healthz", Method: http.MethodGet, Handler: h.HandleHealth},
	}
}

// processNoteRequest accepts the note under any of the field names the
// browser frontend has used.
type processNoteRequest struct {
	PatientNote string `json:"patientNote"`
	Text        string `json:"text"`
	Message     string `json:"message"`
}

func (h *Handler) HandleProcessNote(w http.ResponseWriter, r *http.Request) {
	defer frontdoor.Recover(w, h.logger, errProcessFailed)

	var req processNoteRequest
	if err := frontdoor.DecodeJSON(w, r, &req); err != nil {
		server.AddError(r.Context(), err)
		frontdoor.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	note := capability.FirstNonEmpty(req.PatientNote, req.Text, req.Message)
	if strings.TrimSpace(note) == "" {
		frontdoor.WriteError(w, http.StatusBadRequest, errNoNote)
		return
	}

	result, err := h.newProcessor().Process(r.Context(), note)
	if err != nil {
		server.AddError(r.Context(), err)
		if errors.Is(err, domain.ErrEmptyNote) {
			frontdoor.WriteError(w, http.StatusBadRequest, errNoNote)
			return
		}
		frontdoor.WriteJSON(w, http.StatusInternalServerError, frontdoor.ErrorBody{Error: errProcessFailed, Details: err.Error()})
		return
	}

	server.AddLogField(r.Context(), "activated_agents", strings.Join(result.ActivatedAgents, ","))
	frontdoor.WriteJSON(w, http.StatusOK, result)
}

type speechConfigResponse struct {
	Key    *string `json:"key"`
	Region string  `json:"region"`
}

func (h *Handler) HandleSpeechConfig(w http.ResponseWriter, r *http.Request) {
	resp := speechConfigResponse{Region: h.speech.Region}
	if h.speech.Key == "" {
		h.logger.Warn("speech key not configured")
	} else {
		key := h.speech.Key
		resp.Key = &key
	}
	frontdoor.WriteJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Status        string        `json:"status"`
	Uptime        string        `json:"uptime"`
	Collaborators Collaborators `json:"collaborators"`
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	frontdoor.WriteJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Uptime:        time.Since(h.started).Round(time.Second).String(),
		Collaborators: h.collaborators,
	})
}
