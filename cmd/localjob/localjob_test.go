package main

import (
	"bytes"
	"log/slog"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/CZERTAINLY/localjob/internal/job"
	"github.com/CZERTAINLY/localjob/internal/session"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T, timeout time.Duration) Runner {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skipf("skipped, binary %s not available: %v", "sh", err)
	}
	svc, err := job.NewService("fork://localhost", session.New(),
		job.WithLogger(slog.New(slog.DiscardHandler)),
		job.WithPollInterval(10*time.Millisecond),
	)
	require.NoError(t, err)
	return NewRunner(svc, timeout, job.WaitForever)
}

func sh(script string) job.Description {
	return job.Description{Executable: "sh", Arguments: []string{"-c", script}}
}

func TestRunner(t *testing.T) {
	t.Parallel()

	t.Run("all done", func(t *testing.T) {
		t.Parallel()
		r := newTestRunner(t, 0)
		var out bytes.Buffer
		err := r.Do(t.Context(), []job.Description{sh("exit 0"), sh("sleep 0.1")}, &out)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 3)
		require.True(t, strings.HasPrefix(lines[0], "ID"))
		for _, l := range lines[1:] {
			require.Contains(t, l, "[fork://localhost]-[")
			require.Contains(t, l, " Done ")
		}
	})

	t.Run("failure", func(t *testing.T) {
		t.Parallel()
		r := newTestRunner(t, 0)
		var out bytes.Buffer
		descs := []job.Description{
			sh("exit 0"),
			sh("exit 2"),
			{Executable: "localjob-does-not-exist"},
			{Executable: "sh", Queue: "batch"},
		}
		err := r.Do(t.Context(), descs, &out)
		require.EqualError(t, err, "3 of 4 jobs did not finish successfully")
		require.Contains(t, out.String(), " Failed ")
		require.Contains(t, out.String(), "resolution error")
		require.Contains(t, out.String(), "validation error")
	})

	t.Run("timeout cancels", func(t *testing.T) {
		t.Parallel()
		r := newTestRunner(t, 100*time.Millisecond)
		var out bytes.Buffer
		start := time.Now()
		err := r.Do(t.Context(), []job.Description{sh("exit 0"), sh("sleep 30")}, &out)
		require.Error(t, err)
		require.Less(t, time.Since(start), 10*time.Second)
		require.Contains(t, out.String(), " Canceled ")
		require.Contains(t, out.String(), " Done ")
	})
}

func TestCallerSession(t *testing.T) {
	t.Parallel()

	sess, err := callerSession("")
	require.NoError(t, err)
	require.False(t, sess.IsZero())
	require.False(t, sess.Created().IsZero())

	given := session.New()
	sess, err = callerSession(given.ID())
	require.NoError(t, err)
	require.Equal(t, given.ID(), sess.ID())

	_, err = callerSession("not-a-uuid")
	require.ErrorContains(t, err, "LOCALJOBSESSION")
}
