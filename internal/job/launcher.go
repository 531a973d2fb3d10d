package job

import (
	"context"
	"syscall"
)

// LaunchSpec is a fully resolved request to start a process.
type LaunchSpec struct {
	Argv   []string // Argv[0] is an absolute path or a path relative to Dir
	Env    []string // nil inherits the environment of the caller
	Dir    string   // empty means current directory
	Stdin  string   // file to read, empty means /dev/null
	Stdout string   // file to create or truncate, empty means /dev/null
	Stderr string   // file to create or truncate, empty means /dev/null
}

// Launcher starts processes. It is the only dependency of a Job on the
// operating system.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (Process, error)
}

// Process is a handle of a started process which leads its own
// process group.
type Process interface {
	// Pid returns the native process id.
	Pid() int
	// Poll returns the exit code if the process has exited, it never blocks.
	Poll() (code int, exited bool, err error)
	// Wait blocks until the process exits and returns its exit code.
	Wait() (code int, err error)
	// SignalGroup sends sig to the whole process group.
	SignalGroup(sig syscall.Signal) error
}
