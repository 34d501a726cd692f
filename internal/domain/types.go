package domain

import "time"

// Capability names as reported in activatedAgents and agentsUsed.
const (
	CapabilityDocumentation        = "DocumentationAgent"
	CapabilityMedicationSafety     = "MedicationSafetyAgent"
	CapabilityPatientCommunication = "PatientCommunicationAgent"
	CapabilityComplianceAudit      = "ComplianceAuditAgent"
)

// Severity grades medication alerts, interaction findings and the overall report.
type Severity string

const (
	SeverityHigh   Severity = "High"
	SeverityMedium Severity = "Medium"
	SeverityLow    Severity = "Low"
	// SeverityUnknown means the label lookup failed. It is not the same as Low.
	SeverityUnknown Severity = "Unknown"
)

// TriggerFlags are derived from the note text on every request.
type TriggerFlags struct {
	MedicationRelevant bool `json:"medicationRelevant"`
	DischargeRelevant  bool `json:"dischargeRelevant"`
}

// SoapRecord is a Subjective/Objective/Assessment/Plan clinical note.
// All five fields are always populated.
type SoapRecord struct {
	PatientName string `json:"patientName"`
	Subjective  string `json:"subjective"`
	Objective   string `json:"objective"`
	Assessment  string `json:"assessment"`
	Plan        string `json:"plan"`
}

// DrugMention is a vocabulary drug name recognised in a note.
type DrugMention string

// MedicationAlert is the per-drug result of a label lookup.
type MedicationAlert struct {
	Medication   string   `json:"medication"`
	ResolvedName string   `json:"resolvedName"`
	Warning      string   `json:"warning"`
	Severity     Severity `json:"severity"`
	BoxedWarning string   `json:"boxedWarning,omitempty"`
}

// InteractionFinding is produced by the interaction rule table.
type InteractionFinding struct {
	Drugs    []string `json:"drugs"`
	Risk     string   `json:"risk"`
	Severity Severity `json:"severity"`
}

// MedicationSafetyReport aggregates alerts and interaction findings for one note.
type MedicationSafetyReport struct {
	MedicationsDetected []DrugMention        `json:"medicationsDetected"`
	Alerts              []MedicationAlert    `json:"alerts"`
	Interactions        []InteractionFinding `json:"interactions"`
	OverallSeverity     Severity             `json:"severityLevel"`
}

// DischargeSummary is the patient-facing summary. Success is false when the
// safe default content was substituted.
type DischargeSummary struct {
	Success             bool   `json:"success"`
	PatientInstructions string `json:"patientInstructions"`
	Medications         string `json:"medications"`
	WarningSigns        string `json:"warningSigns"`
	FollowUp            string `json:"followUp"`
	DietActivity        string `json:"dietActivity"`
}

// AuditEntry is one append-only audit log record.
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	UserID    string    `json:"userId"`
	SessionID string    `json:"sessionId"`
	Status    string    `json:"status"`
}

// AuditReport is returned by the compliance audit capability.
type AuditReport struct {
	AuditEntries     []AuditEntry `json:"auditEntries"`
	WordCount        int          `json:"wordCount"`
	ContainsPHI      bool         `json:"containsPHI"`
	AgentsUsed       []string     `json:"agentsUsed"`
	ComplianceStatus string       `json:"complianceStatus"`
	Timestamp        time.Time    `json:"timestamp"`
	Warnings         []string     `json:"warnings"`
}

// AuditSummary describes a set of recorded audit entries.
type AuditSummary struct {
	TotalActions int          `json:"totalActions"`
	SessionID    string       `json:"sessionId"`
	AuditLog     []AuditEntry `json:"auditLog"`
}

// OrchestrationResult is the merged response of a full orchestration run.
// The SOAP fields are flattened into the top level of the JSON object.
type OrchestrationResult struct {
	ActivatedAgents []string `json:"activatedAgents"`
	Logs            []string `json:"logs"`
	SoapRecord
	MedicationSafety     *MedicationSafetyReport `json:"medicationSafety"`
	PatientCommunication *DischargeSummary       `json:"patientCommunication"`
	AuditResult          AuditReport             `json:"auditResult"`
}
