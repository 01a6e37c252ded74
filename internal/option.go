package internal

import (
	"log/slog"

	"github.com/starford/folio/internal/upload"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	logger *slog.Logger
	runner upload.Runner
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogger replaces the JSON stdout logger built from the config.
func WithLogger(l *slog.Logger) Option {
	return func(a *application) {
		a.logger = l
	}
}

// WithCommandRunner sets the runner used for AWS CLI invocations.
func WithCommandRunner(r upload.Runner) Option {
	return func(a *application) {
		a.runner = r
	}
}
