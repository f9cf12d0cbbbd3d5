// Package worker applies committed vote events to the leaderboard projection.
package worker

import (
	"sync/atomic"

	"github.com/okian/versus/pkg/logger"
)

// Option configures an InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName labels the worker in logs. Pool workers are named worker-N.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger replaces the worker's base logger.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// withBusy shares an in-flight counter with the owning pool.
func withBusy(n *atomic.Int64) Option {
	return func(w *InMemoryWorker) {
		if n != nil {
			w.busy = n
		}
	}
}
