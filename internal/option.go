package internal

import "github.com/starford/postwriter/internal/storage"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config   *Config
	provider storage.Provider
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithProvider replaces the storage provider selected by the configuration.
func WithProvider(p storage.Provider) Option {
	return func(a *application) {
		a.provider = p
	}
}
