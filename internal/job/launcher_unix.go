//go:build unix

package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// ExecLauncher starts every process as the leader of a new process group.
// The processes are reaped by the returned handle only, so it must be the
// single owner of the child.
type ExecLauncher struct{}

func (ExecLauncher) Launch(_ context.Context, spec LaunchSpec) (Process, error) {
	if len(spec.Argv) == 0 {
		return nil, errors.New("empty command line")
	}

	var r redirects
	stdin, stdout, stderr, err := r.open(spec)
	if err != nil {
		r.abort()
		return nil, err
	}
	// child has own copies after Start
	defer r.close()

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Env = spec.Env
	cmd.Dir = spec.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if stdin != nil {
		cmd.Stdin = stdin
	}
	if stdout != nil {
		cmd.Stdout = stdout
	}
	if stderr != nil {
		cmd.Stderr = stderr
	}

	if err := cmd.Start(); err != nil {
		r.abort()
		return nil, err
	}
	return &unixProcess{proc: cmd.Process, pid: cmd.Process.Pid}, nil
}

// redirects tracks the files opened for one launch. Outputs are truncated
// only once every file has been opened, and files created here are
// removed again when the launch fails.
type redirects struct {
	files   []*os.File
	created []string
}

func (r *redirects) open(spec LaunchSpec) (stdin, stdout, stderr *os.File, err error) {
	if stdin, err = r.openFile(spec.Stdin, os.O_RDONLY); err != nil {
		return nil, nil, nil, fmt.Errorf("opening input: %w", err)
	}
	if stdout, err = r.openFile(spec.Stdout, os.O_WRONLY|os.O_CREATE); err != nil {
		return nil, nil, nil, fmt.Errorf("opening output: %w", err)
	}
	if stderr, err = r.openFile(spec.Stderr, os.O_WRONLY|os.O_CREATE); err != nil {
		return nil, nil, nil, fmt.Errorf("opening error: %w", err)
	}
	for _, f := range []*os.File{stdout, stderr} {
		if f == nil {
			continue
		}
		if err := f.Truncate(0); err != nil {
			return nil, nil, nil, fmt.Errorf("truncating %s: %w", f.Name(), err)
		}
	}
	return stdin, stdout, stderr, nil
}

func (r *redirects) openFile(path string, flag int) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, err
	}
	if flag&os.O_CREATE != 0 && errors.Is(statErr, os.ErrNotExist) {
		r.created = append(r.created, path)
	}
	r.files = append(r.files, f)
	return f, nil
}

func (r *redirects) close() {
	for _, f := range r.files {
		_ = f.Close()
	}
	r.files = nil
}

func (r *redirects) abort() {
	r.close()
	for _, path := range r.created {
		_ = os.Remove(path)
	}
}

type unixProcess struct {
	proc *os.Process
	pid  int

	// reap is held by the single caller inside wait4
	reap sync.Mutex

	mx   sync.Mutex
	done bool
	code int
}

func (p *unixProcess) Pid() int {
	return p.pid
}

// Poll does not block: while another caller is reaping the process, it
// reports the process as running.
func (p *unixProcess) Poll() (int, bool, error) {
	if code, ok := p.exitCode(); ok {
		return code, true, nil
	}
	if !p.reap.TryLock() {
		return 0, false, nil
	}
	defer p.reap.Unlock()
	return p.wait4(unix.WNOHANG)
}

func (p *unixProcess) Wait() (int, error) {
	if code, ok := p.exitCode(); ok {
		return code, nil
	}
	p.reap.Lock()
	defer p.reap.Unlock()
	code, _, err := p.wait4(0)
	return code, err
}

func (p *unixProcess) SignalGroup(sig syscall.Signal) error {
	if err := unix.Kill(-p.pid, sig); err != nil {
		return fmt.Errorf("signal %s to process group %d: %w", sig, p.pid, err)
	}
	return nil
}

// wait4 must be called with p.reap held.
func (p *unixProcess) wait4(options int) (int, bool, error) {
	// the previous holder may have reaped it
	if code, ok := p.exitCode(); ok {
		return code, true, nil
	}
	for {
		var ws unix.WaitStatus
		wpid, err := unix.Wait4(p.pid, &ws, options, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, false, fmt.Errorf("wait for pid %d: %w", p.pid, err)
		}
		if wpid == 0 {
			return 0, false, nil
		}
		return p.reaped(ws), true, nil
	}
}

func (p *unixProcess) exitCode() (int, bool) {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.code, p.done
}

func (p *unixProcess) reaped(ws unix.WaitStatus) int {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.done = true
	p.code = waitStatusCode(ws)
	_ = p.proc.Release()
	return p.code
}

// waitStatusCode returns the exit status, or the negated signal number for
// a process killed by a signal.
func waitStatusCode(ws unix.WaitStatus) int {
	switch {
	case ws.Exited():
		return ws.ExitStatus()
	case ws.Signaled():
		return -int(ws.Signal())
	default:
		return -1
	}
}
