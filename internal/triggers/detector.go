// Package triggers decides which optional capabilities a handover note needs.
package triggers

import (
	"strings"

	"github.com/tjfontaine/nurseiq/internal/catalog"
	"github.com/tjfontaine/nurseiq/internal/domain"
)

// CatalogSource returns the active keyword tables. *catalog.Store satisfies it.
type CatalogSource interface {
	Load() *catalog.Catalog
}

// Detector matches a note against the cue tables of the active catalog.
type Detector struct {
	source CatalogSource
}

// NewDetector creates a detector reading tables from source.
func NewDetector(source CatalogSource) *Detector {
	return &Detector{source: source}
}

// Detect reports the trigger flags for note. Matching is a case-insensitive
// substring test; there is no tokenisation, so "drug" also matches "drugstore".
func (d *Detector) Detect(note string) domain.TriggerFlags {
	c := d.source.Load()
	lower := strings.ToLower(note)

	return domain.TriggerFlags{
		MedicationRelevant: containsAny(lower, c.MedicationCues) || containsAny(lower, c.Drugs),
		DischargeRelevant:  containsAny(lower, c.DischargeCues),
	}
}

func containsAny(text string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(text, cue) {
			return true
		}
	}
	return false
}
