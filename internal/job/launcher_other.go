//go:build !unix

package job

import (
	"context"
	"errors"
)

// ExecLauncher needs process groups, it is available on unix systems only.
type ExecLauncher struct{}

func (ExecLauncher) Launch(context.Context, LaunchSpec) (Process, error) {
	return nil, newError("launch", "", ErrUnsupported, errors.New("local processes are supported on unix only"))
}
