package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/CZERTAINLY/localjob/internal/session"
)

// Supported endpoint schemes.
const (
	SchemeFork  = "fork"
	SchemeLocal = "local"
)

// WaitMode selects the semantics of ContainerWait.
type WaitMode int

const (
	// WaitAll waits for every job, one after another.
	WaitAll WaitMode = iota
	// WaitAny returns once any of the jobs reaches a terminal state.
	WaitAny
)

// Service creates and tracks the Jobs of one local endpoint.
type Service struct {
	endpoint  *url.URL
	session   session.Session
	opts      options
	logger    *slog.Logger
	jobLogger *slog.Logger

	mx   sync.Mutex
	jobs map[*Job]ID // empty ID: not run yet
}

// NewService binds a service to the endpoint rawURL, which must use the fork
// or local scheme and point to localhost or to the hostname of this machine.
// A zero sess is replaced by a new session.
func NewService(rawURL string, sess session.Session, opts ...Option) (*Service, error) {
	if sess.IsZero() {
		sess = session.New()
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	endpoint, err := parseEndpoint(rawURL)
	if err != nil {
		logger.Warn("unsupported endpoint", "kind", KindService, "endpoint", rawURL, "error", err)
		return nil, newError("new_service", "", ErrValidation, err)
	}

	logger = logger.With(slog.String("endpoint", endpoint.String()), slog.Any("session", sess))
	return &Service{
		endpoint:  endpoint,
		session:   sess,
		opts:      o,
		logger:    logger.With(slog.String("kind", string(KindService))),
		jobLogger: logger.With(slog.String("kind", string(KindJob))),
		jobs:      make(map[*Job]ID),
	}, nil
}

func parseEndpoint(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(u.Scheme) {
	case SchemeFork, SchemeLocal:
	default:
		return nil, fmt.Errorf("scheme %q is not supported, expected %s or %s", u.Scheme, SchemeFork, SchemeLocal)
	}

	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return u, nil
	}
	fqhn, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("getting hostname: %w", err)
	}
	if host == "" || !strings.EqualFold(host, fqhn) {
		return nil, fmt.Errorf("only 'localhost' and '%s' hostnames are supported, got %q", fqhn, host)
	}
	return u, nil
}

// URL returns a copy of the endpoint url.
func (s *Service) URL() *url.URL {
	u := *s.endpoint
	return &u
}

func (s *Service) Session() session.Session {
	return s.session
}

// Capabilities returns the Description attributes accepted by CreateJob.
func (s *Service) Capabilities() []Attribute {
	return slices.Clone(s.opts.capabilities)
}

// CreateJob validates d and returns a new Job in StateNew. The job is
// registered with the service, but it is not started.
func (s *Service) CreateJob(ctx context.Context, d Description) (*Job, error) {
	if err := d.Validate(s.opts.capabilities); err != nil {
		s.logger.WarnContext(ctx, "invalid job description", "error", err)
		return nil, newError("create_job", "", ErrValidation, err)
	}

	j := newJob(s, d.clone())
	s.mx.Lock()
	s.jobs[j] = ""
	s.mx.Unlock()
	s.logger.DebugContext(ctx, "job created", "executable", d.Executable)
	return j, nil
}

// GetJob returns the job started under id.
func (s *Service) GetJob(id ID) (*Job, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if id != "" {
		for j, jid := range s.jobs {
			if jid == id {
				return j, nil
			}
		}
	}
	s.logger.Error("job not known", "job_id", id)
	return nil, newError("get_job", id, ErrNotFound, fmt.Errorf("service %s does not know the job", s.endpoint))
}

// List returns the ids of all jobs which have been started.
func (s *Service) List() []ID {
	s.mx.Lock()
	defer s.mx.Unlock()
	ret := make([]ID, 0, len(s.jobs))
	for _, id := range s.jobs {
		if id != "" {
			ret = append(ret, id)
		}
	}
	return ret
}

func (s *Service) assign(j *Job, id ID) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.jobs[j] = id
}

// ContainerRun is not implemented for local jobs and always fails.
func (s *Service) ContainerRun(ctx context.Context, jobs []*Job) error {
	s.logger.DebugContext(ctx, "container run", "jobs", len(jobs))
	return newError("container_run", "", ErrUnsupported, errors.New("batch submission is not implemented"))
}

// ContainerCancel is not implemented for local jobs and always fails.
func (s *Service) ContainerCancel(ctx context.Context, jobs []*Job, _ time.Duration) error {
	s.logger.DebugContext(ctx, "container cancel", "jobs", len(jobs))
	return newError("container_cancel", "", ErrUnsupported, errors.New("batch cancellation is not implemented"))
}

// ContainerWait waits for jobs according to mode. Every job must have
// been started.
func (s *Service) ContainerWait(ctx context.Context, jobs []*Job, mode WaitMode) error {
	s.logger.DebugContext(ctx, "container wait", "jobs", len(jobs), "mode", mode)
	switch mode {
	case WaitAll:
		var errs []error
		for _, j := range jobs {
			if err := j.Wait(ctx, WaitForever); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	case WaitAny:
		return s.waitAny(ctx, jobs)
	default:
		return newError("container_wait", "", ErrUnsupported, fmt.Errorf("wait mode %d", mode))
	}
}

func (s *Service) waitAny(ctx context.Context, jobs []*Job) error {
	if len(jobs) == 0 {
		return nil
	}
	var errs []error
	for _, j := range jobs {
		if _, err := j.process("container_wait"); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	for {
		for _, j := range jobs {
			if j.State().Final() {
				return nil
			}
		}
		if err := sleep(ctx, s.opts.pollInterval); err != nil {
			return newError("container_wait", "", nil, err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (m WaitMode) String() string {
	switch m {
	case WaitAll:
		return "all"
	case WaitAny:
		return "any"
	default:
		return "unknown"
	}
}
