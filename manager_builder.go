package imagestudio

import (
	"log/slog"
)

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithLogger sets a structured logger for the manager.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithDefaultModel sets the default model used when config.Model is empty.
func WithDefaultModel(model Model) ManagerOption {
	return func(m *Manager) {
		m.defaultModel = model
	}
}

// WithGenerateConfig sets the options applied to every generation call.
// A nil config restores DefaultConfig.
func WithGenerateConfig(config *GenerateConfig) ManagerOption {
	return func(m *Manager) {
		if config == nil {
			config = DefaultConfig()
		}
		m.config = *config
	}
}

// WithTokenEstimator replaces the estimator used for rate limiting.
func WithTokenEstimator(estimator TokenEstimator) ManagerOption {
	return func(m *Manager) {
		m.tokenEstimator = estimator
	}
}

// NewManager creates a Manager serving the models of the given provider.
//
// Example:
//
//	gen, err := gemini.NewWithAPIKey(ctx, apiKey)
//	if err != nil {
//	    return err
//	}
//	manager := imagestudio.NewManager(gen)
//	submitter := imagestudio.NewSubmitter(manager)
//
// With options:
//
//	manager := imagestudio.NewManager(gen,
//	    imagestudio.WithLogger(slog.Default()),
//	    imagestudio.WithDefaultModel(imagestudio.ModelNanoBanana2),
//	)
func NewManager(defaultProvider ImageGenerator, opts ...ManagerOption) *Manager {
	m := New()
	m.RegisterProvider(defaultProvider)

	for _, opt := range opts {
		opt(m)
	}

	return m
}
