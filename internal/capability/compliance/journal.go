package compliance

import (
	"sync"

	"github.com/tjfontaine/nurseiq/internal/domain"
)

// DefaultJournalSize is the number of entries a Journal keeps.
const DefaultJournalSize = 200

// Journal keeps the most recent audit entries across sessions for the audit
// summary resource. Sessions never read from it.
type Journal struct {
	limit int

	mu          sync.Mutex
	entries     []domain.AuditEntry
	total       int
	lastSession string
}

// NewJournal creates a journal holding at most limit entries. A non-positive
// limit uses DefaultJournalSize.
func NewJournal(limit int) *Journal {
	if limit <= 0 {
		limit = DefaultJournalSize
	}
	return &Journal{limit: limit}
}

// Record appends entries, dropping the oldest beyond the limit.
func (j *Journal) Record(entries ...domain.AuditEntry) {
	if len(entries) == 0 {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries = append(j.entries, entries...)
	if over := len(j.entries) - j.limit; over > 0 {
		j.entries = append([]domain.AuditEntry(nil), j.entries[over:]...)
	}
	j.total += len(entries)
	j.lastSession = entries[len(entries)-1].SessionID
}

// Summary reports every entry recorded so far in TotalActions and the
// retained tail in AuditLog. SessionID is the most recent session.
func (j *Journal) Summary() domain.AuditSummary {
	j.mu.Lock()
	defer j.mu.Unlock()

	tail := make([]domain.AuditEntry, len(j.entries))
	copy(tail, j.entries)
	return domain.AuditSummary{
		TotalActions: j.total,
		SessionID:    j.lastSession,
		AuditLog:     tail,
	}
}
