package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"syscall"
	"time"
)

// WaitForever passed as a Wait timeout blocks until the process exits.
const WaitForever time.Duration = -1

// Job is one unit of work of a Service. It can be run only once.
type Job struct {
	svc    *Service
	desc   Description
	logger *slog.Logger

	mx       sync.Mutex
	state    State
	id       ID
	proc     Process
	argv     []string
	exitCode int
	hasExit  bool

	// set while Cancel reaps the process, Cancel commits the final state
	canceling bool
}

func newJob(s *Service, d Description) *Job {
	return &Job{
		svc:    s,
		desc:   d,
		logger: s.jobLogger,
		state:  StateNew,
	}
}

// Service returns the service which created the job.
func (j *Job) Service() *Service {
	return j.svc
}

// Description returns a copy of the job description.
func (j *Job) Description() Description {
	return j.desc.clone()
}

// ID returns the job id, which is known only after a successful Run.
func (j *Job) ID() (ID, bool) {
	j.mx.Lock()
	defer j.mx.Unlock()
	return j.id, j.id != ""
}

// ExitCode returns the exit code once the process has exited. A process
// killed by a signal reports the negated signal number.
func (j *Job) ExitCode() (int, bool) {
	j.mx.Lock()
	defer j.mx.Unlock()
	return j.exitCode, j.hasExit
}

// CommandLine returns the command line joined by single spaces. Before Run
// the executable is not resolved yet.
func (j *Job) CommandLine() string {
	j.mx.Lock()
	defer j.mx.Unlock()
	if j.argv != nil {
		return strings.Join(j.argv, " ")
	}
	var mpirun string
	if j.desc.IsMPI() {
		mpirun = j.svc.opts.mpiLauncher
	}
	return strings.Join(argv(j.desc.Executable, mpirun, j.desc), " ")
}

// State returns the state of the job. A running job checks its process
// and moves to StateDone or StateFailed once it has exited.
func (j *Job) State() State {
	j.mx.Lock()
	defer j.mx.Unlock()
	if j.state != StateRunning {
		return j.state
	}
	code, exited, err := j.proc.Poll()
	if err != nil {
		j.logger.Warn("polling process failed", "job_id", j.id, "error", err)
		return j.state
	}
	if exited {
		j.setExit(code)
	}
	return j.state
}

// Run starts the process. The job must be in StateNew, a failed Run leaves
// it there.
func (j *Job) Run(ctx context.Context) error {
	j.mx.Lock()
	defer j.mx.Unlock()
	if j.state != StateNew {
		return newError("run", j.id, ErrIllegalState, fmt.Errorf("job is %s", j.state))
	}

	spec, err := j.launchSpec(ctx)
	if err != nil {
		return err
	}

	cmdline := strings.Join(spec.Argv, " ")
	j.logger.DebugContext(ctx, "trying to execute", "cmdline", cmdline)
	proc, err := j.svc.opts.launcher.Launch(ctx, spec)
	if err != nil {
		j.logger.ErrorContext(ctx, "launching job failed", "cmdline", cmdline, "error", err)
		return newError("run", "", ErrLaunch, err)
	}

	j.proc = proc
	j.argv = spec.Argv
	j.id = FormatID(j.svc.endpoint, proc.Pid())
	j.state = StateRunning
	j.svc.assign(j, j.id)
	j.logger.InfoContext(ctx, "job started", "job_id", j.id, "pid", proc.Pid(), "cmdline", cmdline)
	return nil
}

// Wait waits for the process to exit. WaitForever blocks until it does,
// any other timeout polls the process until it exits or the timeout
// elapses; a timeout is not an error and other negative values poll once.
// Once the exit code is captured, the state is updated as State would do.
func (j *Job) Wait(ctx context.Context, timeout time.Duration) error {
	proc, err := j.process("wait")
	if err != nil {
		return err
	}

	if timeout == WaitForever {
		code, err := proc.Wait()
		if err != nil {
			return j.errorf("wait", nil, err)
		}
		j.exited(code)
		return nil
	}

	start := time.Now()
	for {
		code, exited, err := proc.Poll()
		if err != nil {
			return j.errorf("wait", nil, err)
		}
		if exited {
			j.exited(code)
			return nil
		}
		if time.Since(start) > timeout {
			j.logger.DebugContext(ctx, "wait timed out", "job_id", j.currentID(), "timeout", timeout)
			return nil
		}
		if err := sleep(ctx, j.svc.opts.pollInterval); err != nil {
			return j.errorf("wait", nil, err)
		}
	}
}

// Cancel sends SIGTERM to the process group of a running job, reaps the
// process and moves the job to StateCanceled. With kill escalation enabled
// and a timeout other than WaitForever, the group gets SIGKILL when it is
// still alive after timeout. On failure the state is not changed.
//
// The job stays in StateRunning while the process is reaped, other methods
// do not block on a slow cancel.
func (j *Job) Cancel(ctx context.Context, timeout time.Duration) error {
	j.mx.Lock()
	if j.proc == nil {
		j.mx.Unlock()
		return newError("cancel", "", ErrIllegalState, errors.New("job has not been started"))
	}
	if j.state != StateRunning {
		defer j.mx.Unlock()
		return newError("cancel", j.id, ErrIllegalState, fmt.Errorf("job is %s", j.state))
	}
	if j.canceling {
		defer j.mx.Unlock()
		return newError("cancel", j.id, ErrIllegalState, errors.New("job is being canceled"))
	}
	id, proc := j.id, j.proc
	if err := proc.SignalGroup(syscall.SIGTERM); err != nil {
		j.mx.Unlock()
		j.logger.ErrorContext(ctx, "couldn't cancel job", "job_id", id, "error", err)
		return newError("cancel", id, ErrCancellation, err)
	}
	j.canceling = true
	j.mx.Unlock()

	code, err := j.reap(ctx, proc, id, timeout)

	j.mx.Lock()
	defer j.mx.Unlock()
	j.canceling = false
	if err != nil && !j.hasExit {
		j.logger.ErrorContext(ctx, "couldn't cancel job", "job_id", id, "error", err)
		return newError("cancel", id, ErrCancellation, err)
	}
	if j.hasExit {
		// captured by a concurrent Wait or State
		code = j.exitCode
	}
	j.exitCode = code
	j.hasExit = true
	j.state = StateCanceled
	j.logger.InfoContext(ctx, "job canceled", "job_id", id, "exit_code", code)
	return nil
}

// reap runs without j.mx held.
func (j *Job) reap(ctx context.Context, proc Process, id ID, timeout time.Duration) (int, error) {
	if !j.svc.opts.killAfter || timeout == WaitForever {
		return proc.Wait()
	}
	deadline := time.Now().Add(timeout)
	for {
		code, exited, err := proc.Poll()
		if err != nil {
			return 0, err
		}
		if exited {
			return code, nil
		}
		left := time.Until(deadline)
		if left <= 0 {
			j.logger.WarnContext(ctx, "job ignored SIGTERM: killing", "job_id", id, "timeout", timeout)
			if err := proc.SignalGroup(syscall.SIGKILL); err != nil {
				// the group is gone once a concurrent Wait reaped it
				if code, exited, perr := proc.Poll(); perr == nil && exited {
					return code, nil
				}
				return 0, err
			}
			return proc.Wait()
		}
		time.Sleep(min(left, j.svc.opts.pollInterval))
	}
}

// process returns the handle of a started job.
func (j *Job) process(op string) (Process, error) {
	j.mx.Lock()
	defer j.mx.Unlock()
	if j.proc == nil {
		j.logger.Warn("job has not been started", "op", op)
		return nil, newError(op, "", ErrIllegalState, errors.New("job has not been started"))
	}
	return j.proc, nil
}

func (j *Job) exited(code int) {
	j.mx.Lock()
	defer j.mx.Unlock()
	j.setExit(code)
}

// setExit records the exit code; j.mx must be held.
func (j *Job) setExit(code int) {
	if !j.hasExit {
		j.exitCode = code
		j.hasExit = true
	}
	if j.state == StateRunning && !j.canceling {
		j.state = exitState(code)
		j.logger.Info("job finished", "job_id", j.id, "state", j.state.String(), "exit_code", code)
	}
}

func (j *Job) currentID() ID {
	id, _ := j.ID()
	return id
}

func (j *Job) errorf(op string, kind, err error) error {
	return newError(op, j.currentID(), kind, err)
}
