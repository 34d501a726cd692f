// Package catalog holds the ordered lookup tables that drive trigger
// detection, drug extraction and interaction evaluation. The tables are plain
// configuration data so they can be extended from config.yaml and swapped at
// runtime without touching control flow.
package catalog

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/tjfontaine/nurseiq/internal/domain"
)

// InteractionRule fires when every drug in Requires was detected in a note.
type InteractionRule struct {
	Requires []string        `koanf:"requires" json:"requires"`
	Risk     string          `koanf:"risk" json:"risk"`
	Severity domain.Severity `koanf:"severity" json:"severity"`
}

// Catalog is the full set of lexical tables. Slices are ordered; order is
// observable in extraction and rule evaluation results.
type Catalog struct {
	// MedicationCues flag a note as medication relevant. Every entry of
	// Drugs is also a medication cue.
	MedicationCues []string `koanf:"medication_cues" json:"medication_cues"`

	// DischargeCues flag a note as discharge relevant.
	DischargeCues []string `koanf:"discharge_cues" json:"discharge_cues"`

	// Drugs is the nursing-shorthand drug vocabulary.
	Drugs []string `koanf:"drugs" json:"drugs"`

	// CanonicalNames maps shorthand to the label lookup name.
	CanonicalNames map[string]string `koanf:"canonical_names" json:"canonical_names"`

	// InteractionRules are evaluated in order, independently of each other.
	InteractionRules []InteractionRule `koanf:"interaction_rules" json:"interaction_rules"`
}

// Default returns the compiled-in tables.
func Default() *Catalog {
	return &Catalog{
		MedicationCues: []string{
			"medication", "drug", "prescribe",
			"mg", "mcg", "ml", "tablet", "units",
			"spray",
		},
		DischargeCues: []string{
			"discharge", "going home", "released", "send home", "ready for discharge",
		},
		Drugs: []string{
			"aspirin", "gtn", "metformin", "insulin", "warfarin",
			"paracetamol", "ibuprofen", "morphine", "heparin", "enoxaparin",
			"furosemide", "amoxicillin", "salbutamol", "atorvastatin", "bisoprolol",
			"ramipril", "omeprazole", "digoxin",
		},
		CanonicalNames: map[string]string{
			"gtn":         "nitroglycerin",
			"paracetamol": "acetaminophen",
			"salbutamol":  "albuterol",
		},
		InteractionRules: []InteractionRule{
			{
				Requires: []string{"aspirin", "gtn"},
				Risk:     "Aspirin + GTN: risk of hypotension. Monitor blood pressure closely.",
				Severity: domain.SeverityMedium,
			},
			{
				Requires: []string{"warfarin", "aspirin"},
				Risk:     "Warfarin + Aspirin: significantly increased bleeding risk. Review anticoagulation plan.",
				Severity: domain.SeverityHigh,
			},
			{
				Requires: []string{"metformin"},
				Risk:     "Metformin: withhold before iodinated contrast imaging (risk of lactic acidosis).",
				Severity: domain.SeverityMedium,
			},
			{
				Requires: []string{"insulin", "metformin"},
				Risk:     "Insulin + Metformin: additive glucose lowering. Monitor for hypoglycaemia.",
				Severity: domain.SeverityMedium,
			},
		},
	}
}

// Normalize lower-cases and trims every table entry in place and drops blanks.
func (c *Catalog) Normalize() {
	c.MedicationCues = normalizeList(c.MedicationCues)
	c.DischargeCues = normalizeList(c.DischargeCues)
	c.Drugs = normalizeList(c.Drugs)

	names := make(map[string]string, len(c.CanonicalNames))
	for k, v := range c.CanonicalNames {
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.ToLower(strings.TrimSpace(v))
		if k != "" && v != "" {
			names[k] = v
		}
	}
	c.CanonicalNames = names

	for i := range c.InteractionRules {
		c.InteractionRules[i].Requires = normalizeList(c.InteractionRules[i].Requires)
	}
}

// Validate reports table entries that could never behave sensibly.
func (c *Catalog) Validate() error {
	if len(c.Drugs) == 0 {
		return fmt.Errorf("catalog: drug vocabulary is empty")
	}
	for i, rule := range c.InteractionRules {
		if len(rule.Requires) == 0 {
			return fmt.Errorf("catalog: interaction rule %d requires no drugs", i)
		}
		switch rule.Severity {
		case domain.SeverityHigh, domain.SeverityMedium, domain.SeverityLow:
		default:
			return fmt.Errorf("catalog: interaction rule %d has invalid severity %q", i, rule.Severity)
		}
		if strings.TrimSpace(rule.Risk) == "" {
			return fmt.Errorf("catalog: interaction rule %d has no risk text", i)
		}
	}
	return nil
}

// CanonicalName resolves a shorthand drug name; unmapped names pass through.
func (c *Catalog) CanonicalName(drug string) string {
	if name, ok := c.CanonicalNames[drug]; ok {
		return name
	}
	return drug
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Store holds the active catalog and allows lock-free replacement on reload.
type Store struct {
	current atomic.Pointer[Catalog]
}

// NewStore creates a store holding c.
func NewStore(c *Catalog) *Store {
	s := &Store{}
	s.current.Store(c)
	return s
}

// Load returns the active catalog. Callers must treat it as read-only.
func (s *Store) Load() *Catalog {
	return s.current.Load()
}

// Replace swaps in a new catalog after normalizing and validating it.
func (s *Store) Replace(c *Catalog) error {
	c.Normalize()
	if err := c.Validate(); err != nil {
		return err
	}
	s.current.Store(c)
	return nil
}
