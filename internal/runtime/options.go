package runtime

import (
	"fmt"
	"log/slog"

	"github.com/tjfontaine/nurseiq/internal/config"
	"github.com/tjfontaine/nurseiq/internal/domain"
)

// Option is a functional option for configuring a Service.
type Option func(*Service) error

// WithConfigPath loads configuration from a YAML file and watches it for
// catalog changes.
func WithConfigPath(path string) Option {
	return func(s *Service) error {
		s.configPath = path
		return nil
	}
}

// WithConfig uses an already loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) error {
		if cfg == nil {
			return fmt.Errorf("config cannot be nil")
		}
		s.cfg = cfg
		return nil
	}
}

// WithTextGenerator replaces the chat completions client.
func WithTextGenerator(gen domain.TextGenerator) Option {
	return func(s *Service) error {
		s.generator = gen
		return nil
	}
}

// WithLabelSource replaces the openFDA client.
func WithLabelSource(labels domain.LabelSource) Option {
	return func(s *Service) error {
		s.labels = labels
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}
