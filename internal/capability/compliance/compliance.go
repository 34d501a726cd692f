// Package compliance records the audit trail for note processing and flags
// notes that carry patient identifiers. It makes no external calls.
package compliance

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/nurseiq/internal/domain"
)

// Audit actions.
const (
	ActionNoteProcessed   = "NOTE_PROCESSED"
	ActionAgentsActivated = "AGENTS_ACTIVATED"
	ActionPHIDetected     = "PHI_DETECTED"
)

const (
	// DefaultUserID is recorded when no user is configured.
	DefaultUserID = "nurse-user"

	statusLogged     = "LOGGED"
	statusCompliant  = "COMPLIANT"
	phiWarning       = "Note contains patient identifiable information — ensure secure handling"
	phiDetectedEntry = "Note contains patient identifiers — handle per data protection policy"
)

// phiPatterns flag a note as carrying patient identifiers. Any match is enough.
var phiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}\b`), // dates
	regexp.MustCompile(`(?i)bed\s+\w+\d+`),                    // bed numbers
	regexp.MustCompile(`(?i)\b(mr|mrs|ms|dr)\.?\s+\w+`),       // titled names
	regexp.MustCompile(`\b\d{2,3}/\d{2,3}\b`),                 // blood pressure
	regexp.MustCompile(`(?i)\byears?\s+old\b`),                // ages
}

// Session scopes an audit log.
type Session struct {
	ID string
}

// NewSession creates a session with a fresh identifier.
func NewSession() *Session {
	return &Session{ID: "session-" + uuid.NewString()}
}

// Auditor appends entries to the audit log of one session. Create one per
// request; it is safe for concurrent use.
type Auditor struct {
	session *Session
	userID  string
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries []domain.AuditEntry
}

// New creates an auditor for session. An empty userID uses DefaultUserID.
func New(session *Session, userID string, logger *slog.Logger) *Auditor {
	if session == nil {
		session = NewSession()
	}
	if userID == "" {
		userID = DefaultUserID
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		session: session,
		userID:  userID,
		logger:  logger.WithGroup("audit"),
		now:     time.Now,
	}
}

// SessionID returns the identifier recorded in every entry.
func (a *Auditor) SessionID() string {
	return a.session.ID
}

// AuditNoteProcessing records the processing of note by the activated
// capabilities and returns the accumulated log. complianceStatus is always
// COMPLIANT; PHI is flagged, never blocked.
func (a *Auditor) AuditNoteProcessing(note string, activated []string) domain.AuditReport {
	wordCount := WordCount(note)
	containsPHI := ContainsPHI(note)

	a.logAction(ActionNoteProcessed, fmt.Sprintf("Handover note received (%d words)", wordCount))
	a.logAction(ActionAgentsActivated, "Agents used: "+strings.Join(activated, ", "))
	if containsPHI {
		a.logAction(ActionPHIDetected, phiDetectedEntry)
	}

	warnings := []string{}
	if containsPHI {
		warnings = append(warnings, phiWarning)
	}

	agents := make([]string, len(activated))
	copy(agents, activated)

	return domain.AuditReport{
		AuditEntries:     a.snapshot(),
		WordCount:        wordCount,
		ContainsPHI:      containsPHI,
		AgentsUsed:       agents,
		ComplianceStatus: statusCompliant,
		Timestamp:        a.now().UTC(),
		Warnings:         warnings,
	}
}

// Summary describes the session's audit log.
func (a *Auditor) Summary() domain.AuditSummary {
	entries := a.snapshot()
	return domain.AuditSummary{
		TotalActions: len(entries),
		SessionID:    a.session.ID,
		AuditLog:     entries,
	}
}

func (a *Auditor) logAction(action, details string) {
	entry := domain.AuditEntry{
		Timestamp: a.now().UTC(),
		Action:    action,
		Details:   details,
		UserID:    a.userID,
		SessionID: a.session.ID,
		Status:    statusLogged,
	}

	a.mu.Lock()
	a.entries = append(a.entries, entry)
	a.mu.Unlock()

	a.logger.Info("audit entry",
		slog.String("action", action),
		slog.String("details", details),
		slog.String("user_id", entry.UserID),
		slog.String("session_id", entry.SessionID))
}

func (a *Auditor) snapshot() []domain.AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.AuditEntry, len(a.entries))
	copy(out, a.entries)
	return out
}

// WordCount counts single-space separated fields. Runs of spaces count empty
// fields, so an empty note has one word.
func WordCount(note string) int {
	return len(strings.Split(note, " "))
}

// ContainsPHI reports whether note matches any patient identifier pattern.
func ContainsPHI(note string) bool {
	for _, p := range phiPatterns {
		if p.MatchString(note) {
			return true
		}
	}
	return false
}
