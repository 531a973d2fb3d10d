package job

import (
	"log/slog"
	"slices"
	"time"
)

const (
	// DefaultPollInterval is how often Wait checks a process with a timeout.
	DefaultPollInterval = 500 * time.Millisecond
	// DefaultMPILauncher is the binary prefixed to MPI jobs.
	DefaultMPILauncher = "mpirun"
)

type options struct {
	launcher     Launcher
	logger       *slog.Logger
	pollInterval time.Duration
	mpiLauncher  string
	killAfter    bool
	capabilities []Attribute
}

func defaultOptions() options {
	return options{
		launcher:     ExecLauncher{},
		pollInterval: DefaultPollInterval,
		mpiLauncher:  DefaultMPILauncher,
		capabilities: LocalCapabilities,
	}
}

// Option configures a Service.
type Option func(*options)

// WithLauncher replaces the launcher used to start processes.
func WithLauncher(l Launcher) Option {
	return func(o *options) {
		if l != nil {
			o.launcher = l
		}
	}
}

// WithLogger sets a logger, slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithMPILauncher sets the name or path of the MPI launcher binary.
func WithMPILauncher(binary string) Option {
	return func(o *options) {
		if binary != "" {
			o.mpiLauncher = binary
		}
	}
}

// WithKillEscalation makes Cancel send SIGKILL to the process group when
// it has not exited within the Cancel timeout.
func WithKillEscalation(enabled bool) Option {
	return func(o *options) {
		o.killAfter = enabled
	}
}

// WithCapabilities overrides the set of supported Description attributes.
func WithCapabilities(attrs ...Attribute) Option {
	return func(o *options) {
		o.capabilities = slices.Clone(attrs)
	}
}
