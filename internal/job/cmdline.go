package job

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// launchSpec resolves the description into a LaunchSpec. The executable and
// the MPI launcher are looked up once here, the argv is built only from the
// resolved paths.
func (j *Job) launchSpec(ctx context.Context) (LaunchSpec, error) {
	d := j.desc
	exe, err := resolveExecutable(d.Executable, d.WorkingDirectory)
	if err != nil {
		j.logger.ErrorContext(ctx, "executable doesn't exist or is not in the path", "executable", d.Executable, "error", err)
		return LaunchSpec{}, newError("run", "", ErrResolution,
			fmt.Errorf("executable %q doesn't exist or is not in the path: %w", d.Executable, err))
	}

	var mpirun string
	switch {
	case d.IsMPI():
		mpirun, err = resolveExecutable(j.svc.opts.mpiLauncher, "")
		if err != nil {
			j.logger.ErrorContext(ctx, "can't find mpi launcher", "mpi_launcher", j.svc.opts.mpiLauncher, "error", err)
			return LaunchSpec{}, newError("run", "", ErrResolution,
				fmt.Errorf("spmd variation %s set, but can't find %q executable: %w", d.SPMDVariation, j.svc.opts.mpiLauncher, err))
		}
		j.logger.InfoContext(ctx, "job will execute via mpi launcher", "mpi_launcher", mpirun, "np", d.NumberOfProcesses)
	case strings.EqualFold(d.SPMDVariation, SPMDMPI):
		j.logger.WarnContext(ctx, "spmd variation mpi without number of processes: executing directly")
	case d.SPMDVariation != "":
		j.logger.WarnContext(ctx, "unsupported spmd variation: ignoring", "spmd_variation", d.SPMDVariation)
	}

	return LaunchSpec{
		Argv:   argv(exe, mpirun, d),
		Env:    environ(d.Environment),
		Dir:    d.WorkingDirectory,
		Stdin:  resolvePath(d.WorkingDirectory, d.Input),
		Stdout: resolvePath(d.WorkingDirectory, d.Output),
		Stderr: resolvePath(d.WorkingDirectory, d.Error),
	}, nil
}

// argv returns [mpirun -np N] exe args...
func argv(exe, mpirun string, d Description) []string {
	ret := make([]string, 0, len(d.Arguments)+4)
	if mpirun != "" {
		ret = append(ret, mpirun, "-np", strconv.Itoa(d.NumberOfProcesses))
	}
	ret = append(ret, exe)
	return append(ret, d.Arguments...)
}

// resolveExecutable looks name up in PATH. A relative path containing a
// separator is taken relative to dir, where the process is going to run.
func resolveExecutable(name, dir string) (string, error) {
	if dir != "" && strings.ContainsRune(name, os.PathSeparator) && !filepath.IsAbs(name) {
		name = filepath.Join(dir, name)
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", err
	}
	return filepath.Abs(path)
}

// resolvePath returns path unchanged when absolute, otherwise relative to
// dir if set. Empty stays empty.
func resolvePath(dir, path string) string {
	if path == "" || filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}

// environ converts the environment mapping into a sorted KEY=value list;
// a nil mapping means the environment is inherited.
func environ(env map[string]string) []string {
	if env == nil {
		return nil
	}
	ret := make([]string, 0, len(env))
	for k, v := range env {
		ret = append(ret, k+"="+v)
	}
	slices.Sort(ret)
	return ret
}
