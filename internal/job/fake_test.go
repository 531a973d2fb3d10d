package job_test

import (
	"context"
	"sync"
	"syscall"

	"github.com/CZERTAINLY/localjob/internal/job"
)

// fakeLauncher records launch requests and hands out fakeProcesses with
// increasing pids.
type fakeLauncher struct {
	mx       sync.Mutex
	err      error
	pid      int
	specs    []job.LaunchSpec
	procs    []*fakeProcess
	stubborn bool // processes ignore SIGTERM
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{pid: 1000}
}

func (l *fakeLauncher) Launch(_ context.Context, spec job.LaunchSpec) (job.Process, error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.pid++
	p := &fakeProcess{
		pid:      l.pid,
		done:     make(chan struct{}),
		stubborn: l.stubborn,
	}
	l.specs = append(l.specs, spec)
	l.procs = append(l.procs, p)
	return p, nil
}

func (l *fakeLauncher) last() (job.LaunchSpec, *fakeProcess) {
	l.mx.Lock()
	defer l.mx.Unlock()
	if len(l.procs) == 0 {
		return job.LaunchSpec{}, nil
	}
	return l.specs[len(l.specs)-1], l.procs[len(l.procs)-1]
}

type fakeProcess struct {
	pid      int
	stubborn bool
	done     chan struct{}

	mx        sync.Mutex
	exited    bool
	code      int
	signals   []syscall.Signal
	signalErr error
}

func (p *fakeProcess) Pid() int {
	return p.pid
}

func (p *fakeProcess) Poll() (int, bool, error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.code, p.exited, nil
}

func (p *fakeProcess) Wait() (int, error) {
	<-p.done
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.code, nil
}

func (p *fakeProcess) SignalGroup(sig syscall.Signal) error {
	p.mx.Lock()
	if p.signalErr != nil {
		err := p.signalErr
		p.mx.Unlock()
		return err
	}
	p.signals = append(p.signals, sig)
	p.mx.Unlock()
	if sig == syscall.SIGKILL || !p.stubborn {
		p.exit(-int(sig))
	}
	return nil
}

func (p *fakeProcess) exit(code int) {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.exited {
		return
	}
	p.exited = true
	p.code = code
	close(p.done)
}

func (p *fakeProcess) received() []syscall.Signal {
	p.mx.Lock()
	defer p.mx.Unlock()
	return append([]syscall.Signal(nil), p.signals...)
}

func (p *fakeProcess) failSignals(err error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.signalErr = err
}
