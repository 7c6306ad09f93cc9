package worker

import "github.com/pokearena/scoresync/pkg/logger"

// Option applies a configuration option to a Worker.
type Option func(*Worker)

// WithName sets the worker's name used for its logger.
func WithName(name string) Option {
	return func(w *Worker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}
