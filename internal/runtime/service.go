// Package runtime provides the Service struct that wires configuration,
// collaborators, capabilities and the HTTP server, and manages their lifecycle.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/tjfontaine/nurseiq/internal/api/chat"
	"github.com/tjfontaine/nurseiq/internal/api/openfda"
	"github.com/tjfontaine/nurseiq/internal/capability/compliance"
	"github.com/tjfontaine/nurseiq/internal/catalog"
	"github.com/tjfontaine/nurseiq/internal/config"
	"github.com/tjfontaine/nurseiq/internal/domain"
	"github.com/tjfontaine/nurseiq/internal/frontdoor/mcp"
	"github.com/tjfontaine/nurseiq/internal/frontdoor/notes"
	"github.com/tjfontaine/nurseiq/internal/orchestrator"
	"github.com/tjfontaine/nurseiq/internal/server"
	"github.com/tjfontaine/nurseiq/internal/tokens"
)

// Service is the main entry point for running NurseIQ. It can serve HTTP or
// be used directly to process notes.
type Service struct {
	// Dependencies (injected via options)
	cfg        *config.Config
	configPath string
	generator  domain.TextGenerator
	labels     domain.LabelSource
	logger     *slog.Logger

	// Internal state
	catalogs      *catalog.Store
	factory       *orchestrator.Factory
	collaborators notes.Collaborators
	server        *server.Server
	watcher       *config.Watcher

	// Lifecycle management
	cancel context.CancelFunc
	mu     sync.Mutex
}

// New creates a Service. Without WithConfig the configuration is loaded from
// the WithConfigPath file (if any) and the environment.
func New(opts ...Option) (*Service, error) {
	s := &Service{logger: slog.Default()}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if s.cfg == nil {
		cfg, err := config.Load(s.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		s.cfg = cfg
	}

	s.initCollaborators()
	s.catalogs = catalog.NewStore(&s.cfg.Catalog)
	s.factory = &orchestrator.Factory{
		Generator: s.generator,
		Labels:    s.labels,
		Catalogs:  s.catalogs,
		UserID:    s.cfg.Audit.UserID,
		Logger:    s.logger,
	}
	s.initServer()

	return s, nil
}

// initCollaborators builds the outbound clients that were not injected.
func (s *Service) initCollaborators() {
	s.collaborators = notes.Collaborators{
		TextGeneration: s.cfg.AI.Configured(),
		Speech:         s.cfg.Speech.Key != "",
		DrugLabels:     true,
	}

	if s.generator == nil {
		s.generator = chat.NewClient(chat.Config{
			Endpoint:   s.cfg.AI.Endpoint,
			APIKey:     s.cfg.AI.APIKey,
			Deployment: s.cfg.AI.Deployment,
			APIVersion: s.cfg.AI.APIVersion,
			Model:      s.cfg.AI.Model,
			Timeout:    s.cfg.AI.Timeout,
		},
			chat.WithTokenBudget(tokens.NewCounter(), s.cfg.AI.MaxPromptTokens),
			chat.WithLogger(s.logger))
	} else {
		s.collaborators.TextGeneration = true
	}

	if s.labels == nil {
		s.labels = openfda.NewClient(openfda.Config{
			BaseURL: s.cfg.FDA.BaseURL,
			APIKey:  s.cfg.FDA.APIKey,
			Timeout: s.cfg.FDA.Timeout,
		})
	}
}

// initServer builds the router and registers both frontdoors.
func (s *Service) initServer() {
	s.server = server.New(server.Config{
		Port:           s.cfg.Server.Port,
		RequestTimeout: s.cfg.Server.RequestTimeout,
	}, s.logger)

	notesHandler := notes.NewHandler(
		func() notes.Processor { return s.factory.New(nil) },
		notes.SpeechConfig{Key: s.cfg.Speech.Key, Region: s.cfg.Speech.Region},
		s.collaborators,
		s.logger)
	s.server.Register(notesHandler.Handlers())

	mcpHandler := mcp.NewHandler(mcp.Tools{
		Documentation: s.factory.Documentation(),
		Medication:    s.factory.Medication(),
		PatientComm:   s.factory.PatientComm(),
		Compliance: func() orchestrator.Auditor {
			return s.factory.Compliance(compliance.NewSession())
		},
		Journal: compliance.NewJournal(compliance.DefaultJournalSize),
	}, s.logger)
	s.server.Register(mcpHandler.Handlers())

	if dir := s.cfg.Server.StaticDir; dir != "" {
		s.server.Mount(dir)
	}
}

// Config returns the active configuration.
func (s *Service) Config() *config.Config {
	return s.cfg
}

// Handler returns the HTTP handler with all routes registered.
func (s *Service) Handler() http.Handler {
	return s.server.Router
}

// Process runs one orchestration outside of HTTP. It returns once observer
// has received every progress update.
func (s *Service) Process(ctx context.Context, note string, observer orchestrator.Observer) (*domain.OrchestrationResult, error) {
	o := s.factory.New(observer)
	defer o.Wait()
	return o.Process(ctx, note)
}

// Start begins serving HTTP and, when a config file is in use, watches it
// for catalog changes.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, s.cancel = context.WithCancel(ctx)

	if err := s.watchConfig(ctx); err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	s.server.Start()

	s.logger.Info("nurseiq started",
		slog.Int("port", s.cfg.Server.Port),
		slog.Bool("text_generation", s.collaborators.TextGeneration),
		slog.Bool("speech", s.collaborators.Speech),
		slog.String("drug_labels", s.cfg.FDA.BaseURL),
		slog.Int("catalog_drugs", len(s.catalogs.Load().Drugs)))

	if !s.collaborators.TextGeneration {
		s.logger.Warn("text generation not configured, SOAP and discharge output will use fallbacks")
	}

	return nil
}

// watchConfig starts the file watcher. A missing or unset file is not an error.
func (s *Service) watchConfig(ctx context.Context) error {
	if s.configPath == "" {
		return nil
	}
	if _, err := os.Stat(s.configPath); errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("config file not found, hot reload disabled", slog.String("path", s.configPath))
		return nil
	}

	watcher, err := config.NewWatcher(s.configPath, s.logger)
	if err != nil {
		return err
	}
	if err := watcher.Watch(ctx, s.reload); err != nil {
		return err
	}
	s.watcher = watcher
	return nil
}

// reload swaps in the catalog from a changed config file. Collaborator
// settings take effect on restart.
func (s *Service) reload(cfg *config.Config) {
	if err := s.catalogs.Replace(&cfg.Catalog); err != nil {
		s.logger.Error("failed to reload catalog", slog.String("error", err.Error()))
		return
	}
	s.logger.Info("catalog reloaded",
		slog.Int("drugs", len(cfg.Catalog.Drugs)),
		slog.Int("interaction_rules", len(cfg.Catalog.InteractionRules)))
}

// Shutdown gracefully stops the service.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("shutting down nurseiq")

	if s.cancel != nil {
		s.cancel()
	}

	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			s.logger.Error("failed to close config watcher", slog.String("error", err.Error()))
		}
	}

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
		return err
	}

	s.logger.Info("nurseiq shutdown complete")
	return nil
}
