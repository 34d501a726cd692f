// Package medication extracts drug mentions from a handover note, looks up
// their regulator labels and evaluates the interaction rule table.
package medication

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tjfontaine/nurseiq/internal/catalog"
	"github.com/tjfontaine/nurseiq/internal/domain"
)

const (
	maxWarningLen      = 300
	maxBoxedWarningLen = 200
	ellipsis           = "..."

	noWarnings = "No specific FDA warnings found."
)

// CatalogSource returns the active drug tables. *catalog.Store satisfies it.
type CatalogSource interface {
	Load() *catalog.Catalog
}

// Agent is the medication safety capability.
type Agent struct {
	labels   domain.LabelSource
	catalogs CatalogSource
	logger   *slog.Logger
}

// New creates a medication safety agent.
func New(labels domain.LabelSource, catalogs CatalogSource, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{labels: labels, catalogs: catalogs, logger: logger}
}

// CheckSafety builds the safety report for note. Lookup failures become
// Unknown alerts; the method itself never fails.
func (a *Agent) CheckSafety(ctx context.Context, note string) domain.MedicationSafetyReport {
	c := a.catalogs.Load()
	drugs := ExtractDrugs(c, note)

	report := domain.MedicationSafetyReport{
		MedicationsDetected: make([]domain.DrugMention, 0, len(drugs)),
		Alerts:              make([]domain.MedicationAlert, 0, len(drugs)),
	}

	for _, drug := range drugs {
		report.MedicationsDetected = append(report.MedicationsDetected, domain.DrugMention(displayName(drug)))
		report.Alerts = append(report.Alerts, a.lookup(ctx, c, drug))
	}

	report.Interactions = EvaluateInteractions(c, drugs)
	report.OverallSeverity = OverallSeverity(report.Alerts, report.Interactions)

	return report
}

// lookup searches by canonical generic name, then once by brand using the
// shorthand as written in the vocabulary.
func (a *Agent) lookup(ctx context.Context, c *catalog.Catalog, drug string) domain.MedicationAlert {
	resolved := c.CanonicalName(drug)
	alert := domain.MedicationAlert{
		Medication:   displayName(drug),
		ResolvedName: resolved,
	}

	label, err := a.labels.SearchGeneric(ctx, resolved)
	if err != nil || label == nil {
		a.logger.Debug("generic label lookup failed, trying brand name",
			slog.String("drug", drug),
			slog.String("resolved", resolved),
			slog.Any("error", err))
		label, err = a.labels.SearchBrand(ctx, drug)
	}
	if err != nil || label == nil {
		a.logger.Warn("label lookup failed",
			slog.String("drug", drug),
			slog.Any("error", err))
		alert.Warning = fmt.Sprintf("Could not retrieve FDA data for %s", alert.Medication)
		alert.Severity = domain.SeverityUnknown
		return alert
	}

	alert.Warning = truncate(label.Warnings, maxWarningLen)
	if alert.Warning == "" {
		alert.Warning = noWarnings
	}
	alert.BoxedWarning = truncate(label.BoxedWarning, maxBoxedWarningLen)
	if alert.BoxedWarning != "" {
		alert.Severity = domain.SeverityHigh
	} else {
		alert.Severity = domain.SeverityLow
	}
	return alert
}

// ExtractDrugs returns the vocabulary drugs mentioned in note, deduplicated
// and in vocabulary order.
func ExtractDrugs(c *catalog.Catalog, note string) []string {
	lower := strings.ToLower(note)
	var drugs []string
	for _, drug := range c.Drugs {
		if strings.Contains(lower, drug) {
			drugs = append(drugs, drug)
		}
	}
	return drugs
}

// EvaluateInteractions applies every rule whose required drugs were all
// detected. Rules are independent; several may fire for one note.
func EvaluateInteractions(c *catalog.Catalog, drugs []string) []domain.InteractionFinding {
	present := make(map[string]bool, len(drugs))
	for _, d := range drugs {
		present[d] = true
	}

	findings := make([]domain.InteractionFinding, 0)
	for _, rule := range c.InteractionRules {
		if !requiresAll(rule.Requires, present) {
			continue
		}
		names := make([]string, len(rule.Requires))
		for i, d := range rule.Requires {
			names[i] = displayName(d)
		}
		findings = append(findings, domain.InteractionFinding{
			Drugs:    names,
			Risk:     rule.Risk,
			Severity: rule.Severity,
		})
	}
	return findings
}

// OverallSeverity is High if any alert is High, else Medium if any
// interaction fired, else Low.
func OverallSeverity(alerts []domain.MedicationAlert, interactions []domain.InteractionFinding) domain.Severity {
	for _, a := range alerts {
		if a.Severity == domain.SeverityHigh {
			return domain.SeverityHigh
		}
	}
	if len(interactions) > 0 {
		return domain.SeverityMedium
	}
	return domain.SeverityLow
}

func requiresAll(required []string, present map[string]bool) bool {
	for _, d := range required {
		if !present[d] {
			return false
		}
	}
	return len(required) > 0
}

func displayName(drug string) string {
	return strings.ToUpper(drug)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + ellipsis
}
