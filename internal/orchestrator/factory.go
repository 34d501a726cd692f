package orchestrator

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/nurseiq/internal/capability/compliance"
	"github.com/tjfontaine/nurseiq/internal/capability/medication"
	"github.com/tjfontaine/nurseiq/internal/capability/patientcomm"
	"github.com/tjfontaine/nurseiq/internal/capability/soap"
	"github.com/tjfontaine/nurseiq/internal/catalog"
	"github.com/tjfontaine/nurseiq/internal/domain"
	"github.com/tjfontaine/nurseiq/internal/triggers"
)

// Factory builds a fresh Orchestrator, with its own capabilities and audit
// session, for every request.
type Factory struct {
	Generator domain.TextGenerator
	Labels    domain.LabelSource
	Catalogs  *catalog.Store
	// UserID is recorded in audit entries.
	UserID string
	Logger *slog.Logger
	// Tracer is optional; the global tracer provider is used when nil.
	Tracer trace.Tracer
}

func (f *Factory) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}

// Documentation returns a documentation capability.
func (f *Factory) Documentation() *soap.Agent {
	return soap.New(f.Generator, f.logger())
}

// Medication returns a medication safety capability.
func (f *Factory) Medication() *medication.Agent {
	return medication.New(f.Labels, f.Catalogs, f.logger())
}

// PatientComm returns a patient communication capability.
func (f *Factory) PatientComm() *patientcomm.Agent {
	return patientcomm.New(f.Generator, f.logger())
}

// Compliance returns an auditor bound to session.
func (f *Factory) Compliance(session *compliance.Session) *compliance.Auditor {
	return compliance.New(session, f.UserID, f.logger())
}

// New returns an orchestrator for one request. observer may be nil.
func (f *Factory) New(observer Observer) *Orchestrator {
	session := compliance.NewSession()
	logger := f.logger().With(slog.String("session_id", session.ID))

	caps := Capabilities{
		Detector:      triggers.NewDetector(f.Catalogs),
		Documentation: f.Documentation(),
		Medication:    f.Medication(),
		PatientComm:   f.PatientComm(),
		Compliance:    f.Compliance(session),
	}

	opts := []Option{WithLogger(logger)}
	if observer != nil {
		opts = append(opts, WithObserver(observer))
	}
	if f.Tracer != nil {
		opts = append(opts, WithTracer(f.Tracer))
	}
	return New(caps, opts...)
}
