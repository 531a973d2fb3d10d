package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/CZERTAINLY/localjob/internal/job"
)

// Runner starts descriptions on one service, waits for them and reports
// the outcome of every job.
type Runner struct {
	svc           *job.Service
	timeout       time.Duration // <= 0: no limit
	cancelTimeout time.Duration // passed to job.Job.Cancel
}

type outcome struct {
	job *job.Job
	err error // CreateJob or Run failed
}

func NewRunner(svc *job.Service, timeout, cancelTimeout time.Duration) Runner {
	return Runner{
		svc:           svc,
		timeout:       timeout,
		cancelTimeout: cancelTimeout,
	}
}

// Do runs all descriptions and writes one line per job to w. It fails
// when any job did not end in job.StateDone.
func (r Runner) Do(ctx context.Context, descs []job.Description, w io.Writer) error {
	outcomes := make([]outcome, len(descs))
	var started []*job.Job
	for i, d := range descs {
		j, err := r.svc.CreateJob(ctx, d)
		if err == nil {
			err = j.Run(ctx)
		}
		outcomes[i] = outcome{job: j, err: err}
		if err == nil {
			started = append(started, j)
		}
	}

	if err := r.wait(ctx, started); err != nil {
		slog.WarnContext(ctx, "waiting for jobs interrupted: canceling", "error", err)
		r.cancel(context.WithoutCancel(ctx), started)
	}

	if err := report(w, outcomes); err != nil {
		return err
	}

	var failed int
	for _, o := range outcomes {
		if o.err != nil || o.job.State() != job.StateDone {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d jobs did not finish successfully", failed, len(outcomes))
	}
	return nil
}

// wait returns once every job has reached a final state, or when ctx is
// done or the timeout has elapsed.
func (r Runner) wait(ctx context.Context, jobs []*job.Job) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	for {
		pending := running(jobs)
		if len(pending) == 0 {
			return nil
		}
		if err := r.svc.ContainerWait(ctx, pending, job.WaitAny); err != nil {
			return err
		}
	}
}

func (r Runner) cancel(ctx context.Context, jobs []*job.Job) {
	var errs []error
	for _, j := range running(jobs) {
		if err := j.Cancel(ctx, r.cancelTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		slog.ErrorContext(ctx, "canceling jobs failed", "error", err)
	}
}

func running(jobs []*job.Job) []*job.Job {
	var ret []*job.Job
	for _, j := range jobs {
		if !j.State().Final() {
			ret = append(ret, j)
		}
	}
	return ret
}

func report(w io.Writer, outcomes []outcome) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSTATE\tEXIT\tCOMMAND")
	for _, o := range outcomes {
		if o.job == nil {
			_, _ = fmt.Fprintf(tw, "-\t-\t-\t%s\n", o.err)
			continue
		}
		id, ok := o.job.ID()
		if !ok {
			id = "-"
		}
		exit := "-"
		if code, ok := o.job.ExitCode(); ok {
			exit = strconv.Itoa(code)
		}
		cmdline := o.job.CommandLine()
		if o.err != nil {
			cmdline += ": " + o.err.Error()
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", id, o.job.State(), exit, cmdline)
	}
	return tw.Flush()
}
