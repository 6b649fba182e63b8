package eventqueue

import "log/slog"

type options struct {
	logger  *slog.Logger
	metrics MetricsRecorder
	words   WordQueue
}

func defaultOptions() options {
	return options{
		logger:  slog.Default(),
		metrics: NoopMetrics{},
	}
}

// Option configures a Queue.
type Option func(*options)

// WithLogger sets the sink for errors and warnings.
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
// Default: NoopMetrics{}
func WithMetrics(m MetricsRecorder) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithWordQueue replaces the built-in Ring. Config.Capacity is then ignored.
// The given queue must keep FIFO order across producers.
func WithWordQueue(words WordQueue) Option {
	return func(o *options) {
		if words != nil {
			o.words = words
		}
	}
}
