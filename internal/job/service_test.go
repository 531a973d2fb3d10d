package job_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/CZERTAINLY/localjob/internal/job"
	"github.com/CZERTAINLY/localjob/internal/session"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestNewService(t *testing.T) {
	t.Parallel()
	hostname, err := os.Hostname()
	require.NoError(t, err)

	var testCases = []struct {
		scenario string
		given    string
		then     bool
	}{
		{"fork localhost", "fork://localhost", true},
		{"local localhost", "local://localhost", true},
		{"uppercase host", "fork://LOCALHOST", true},
		{"hostname", "fork://" + hostname, true},
		{"with port", "local://localhost:1234", true},
		{"ssh scheme", "ssh://localhost", false},
		{"remote host", "fork://remote.example.com", false},
		{"no host", "fork://", false},
		{"no scheme", "localhost", false},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			svc, err := job.NewService(tt.given, session.New(), job.WithLogger(discard))
			if tt.then {
				require.NoError(t, err)
				require.Equal(t, tt.given, svc.URL().String())
				return
			}
			require.Error(t, err)
			require.ErrorIs(t, err, job.ErrValidation)
			require.Nil(t, svc)
		})
	}
}

func TestServiceAccessors(t *testing.T) {
	t.Parallel()
	sess := session.New()
	svc, err := job.NewService("fork://localhost", sess, job.WithLogger(discard))
	require.NoError(t, err)

	require.Equal(t, sess, svc.Session())
	require.ElementsMatch(t, job.LocalCapabilities, svc.Capabilities())

	u := svc.URL()
	u.Host = "elsewhere"
	require.Equal(t, "fork://localhost", svc.URL().String())
}

func TestServiceZeroSession(t *testing.T) {
	t.Parallel()
	svc, err := job.NewService("fork://localhost", session.Session{}, job.WithLogger(discard))
	require.NoError(t, err)
	require.False(t, svc.Session().IsZero())
}

func TestCreateJob(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	var testCases = []struct {
		scenario string
		given    job.Description
	}{
		{"queue", job.Description{Executable: "sh", Queue: "batch"}},
		{"wall time", job.Description{Executable: "sh", WallTimeLimit: time.Minute}},
		{"candidate hosts", job.Description{Executable: "sh", CandidateHosts: []string{"a"}}},
		{"interactive", job.Description{Executable: "sh", Interactive: true}},
		{"no executable", job.Description{Arguments: []string{"x"}}},
		{"negative processes", job.Description{Executable: "sh", NumberOfProcesses: -1}},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			svc, _ := fakeService(t)
			j, err := svc.CreateJob(ctx, tt.given)
			require.ErrorIs(t, err, job.ErrValidation)
			require.Nil(t, j)
			require.Empty(t, svc.List())
		})
	}

	t.Run("capabilities override", func(t *testing.T) {
		t.Parallel()
		caps := append([]job.Attribute{job.AttrQueue}, job.LocalCapabilities...)
		svc, _ := fakeService(t, job.WithCapabilities(caps...))
		j, err := svc.CreateJob(ctx, job.Description{Executable: "sh", Queue: "batch"})
		require.NoError(t, err)
		require.Equal(t, job.StateNew, j.State())
	})
}

func TestServiceRegistry(t *testing.T) {
	t.Parallel()
	lookPath(t, "sh")
	svc, _ := fakeService(t)
	ctx := t.Context()

	jobs := make([]*job.Job, 3)
	for i := range jobs {
		var err error
		jobs[i], err = svc.CreateJob(ctx, job.Description{Executable: "sh"})
		require.NoError(t, err)
	}
	require.Empty(t, svc.List())

	require.NoError(t, jobs[0].Run(ctx))
	require.NoError(t, jobs[2].Run(ctx))

	id0, _ := jobs[0].ID()
	id2, _ := jobs[2].ID()
	require.ElementsMatch(t, []job.ID{id0, id2}, svc.List())

	t.Run("get job", func(t *testing.T) {
		j, err := svc.GetJob(id2)
		require.NoError(t, err)
		require.Same(t, jobs[2], j)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := svc.GetJob("[fork://localhost]-[1]")
		require.ErrorIs(t, err, job.ErrNotFound)
		require.Contains(t, err.Error(), "[fork://localhost]-[1]")

		_, err = svc.GetJob("")
		require.ErrorIs(t, err, job.ErrNotFound)
	})

	t.Run("id of other service", func(t *testing.T) {
		other, _ := fakeService(t)
		_, err := other.GetJob(id0)
		require.ErrorIs(t, err, job.ErrNotFound)
	})

	t.Run("id round trip", func(t *testing.T) {
		endpoint, pid, err := id0.Parse()
		require.NoError(t, err)
		require.Equal(t, svc.URL().String(), endpoint)
		require.Equal(t, id0, job.FormatID(svc.URL(), pid))
	})
}

func TestServiceConcurrent(t *testing.T) {
	t.Parallel()
	lookPath(t, "sh")
	svc, _ := fakeService(t)

	const n = 32
	var mx sync.Mutex
	ids := make(map[job.ID]struct{}, n)
	g, ctx := errgroup.WithContext(t.Context())
	for range n {
		g.Go(func() error {
			j, err := svc.CreateJob(ctx, job.Description{Executable: "sh"})
			if err != nil {
				return err
			}
			if err := j.Run(ctx); err != nil {
				return err
			}
			id, ok := j.ID()
			if !ok {
				return fmt.Errorf("job has no id after run")
			}
			mx.Lock()
			ids[id] = struct{}{}
			mx.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Len(t, ids, n)
	require.Len(t, svc.List(), n)
}

func TestContainerUnsupported(t *testing.T) {
	t.Parallel()
	svc, launcher := fakeService(t)
	ctx := t.Context()

	j, err := svc.CreateJob(ctx, job.Description{Executable: "sh"})
	require.NoError(t, err)
	jobs := []*job.Job{j}

	err = svc.ContainerRun(ctx, jobs)
	require.ErrorIs(t, err, job.ErrUnsupported)
	err = svc.ContainerCancel(ctx, jobs, time.Second)
	require.ErrorIs(t, err, job.ErrUnsupported)

	require.Equal(t, job.StateNew, j.State())
	require.Empty(t, launcher.procs)
}

func TestContainerWait(t *testing.T) {
	t.Parallel()
	lookPath(t, "sh")
	ctx := t.Context()

	start := func(t *testing.T, svc *job.Service, n int) []*job.Job {
		t.Helper()
		jobs := make([]*job.Job, n)
		for i := range jobs {
			j, err := svc.CreateJob(ctx, job.Description{Executable: "sh"})
			require.NoError(t, err)
			require.NoError(t, j.Run(ctx))
			jobs[i] = j
		}
		return jobs
	}

	t.Run("all", func(t *testing.T) {
		t.Parallel()
		svc, launcher := fakeService(t)
		jobs := start(t, svc, 3)
		for i, p := range launcher.procs {
			p.exit(i)
		}
		err := svc.ContainerWait(ctx, jobs, job.WaitAll)
		require.NoError(t, err)
		require.Equal(t, job.StateDone, jobs[0].State())
		require.Equal(t, job.StateFailed, jobs[1].State())
		require.Equal(t, job.StateFailed, jobs[2].State())
	})

	t.Run("any", func(t *testing.T) {
		t.Parallel()
		svc, launcher := fakeService(t)
		jobs := start(t, svc, 3)
		timer := time.AfterFunc(20*time.Millisecond, func() { launcher.procs[1].exit(0) })
		t.Cleanup(func() { timer.Stop() })

		err := svc.ContainerWait(ctx, jobs, job.WaitAny)
		require.NoError(t, err)
		require.Equal(t, job.StateRunning, jobs[0].State())
		require.Equal(t, job.StateDone, jobs[1].State())
		require.Equal(t, job.StateRunning, jobs[2].State())
	})

	t.Run("any canceled", func(t *testing.T) {
		t.Parallel()
		svc, _ := fakeService(t)
		jobs := start(t, svc, 2)
		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		t.Cleanup(cancel)
		err := svc.ContainerWait(cctx, jobs, job.WaitAny)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("not started", func(t *testing.T) {
		t.Parallel()
		svc, _ := fakeService(t)
		j, err := svc.CreateJob(ctx, job.Description{Executable: "sh"})
		require.NoError(t, err)

		err = svc.ContainerWait(ctx, []*job.Job{j}, job.WaitAll)
		require.ErrorIs(t, err, job.ErrIllegalState)
		err = svc.ContainerWait(ctx, []*job.Job{j}, job.WaitAny)
		require.ErrorIs(t, err, job.ErrIllegalState)
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		svc, _ := fakeService(t)
		require.NoError(t, svc.ContainerWait(ctx, nil, job.WaitAll))
		require.NoError(t, svc.ContainerWait(ctx, nil, job.WaitAny))
	})
}
