package worker

import (
	"github.com/niavasha/greenledger/pkg/logger"
)

// Option applies a configuration option to the IntakeWorker.
type Option func(*IntakeWorker)

// WithName sets the worker name used in logs.
func WithName(name string) Option {
	return func(w *IntakeWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *IntakeWorker) {
		if l != nil {
			w.logger = l
		}
	}
}
