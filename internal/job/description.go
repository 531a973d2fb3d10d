package job

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Attribute names a Description field.
type Attribute string

const (
	AttrExecutable        Attribute = "executable"
	AttrArguments         Attribute = "arguments"
	AttrEnvironment       Attribute = "environment"
	AttrWorkingDirectory  Attribute = "working_directory"
	AttrInput             Attribute = "input"
	AttrOutput            Attribute = "output"
	AttrError             Attribute = "error"
	AttrSPMDVariation     Attribute = "spmd_variation"
	AttrNumberOfProcesses Attribute = "number_of_processes"

	// not supported by the local backend
	AttrQueue            Attribute = "queue"
	AttrProject          Attribute = "project"
	AttrWallTimeLimit    Attribute = "wall_time_limit"
	AttrTotalCPUCount    Attribute = "total_cpu_count"
	AttrProcessesPerHost Attribute = "processes_per_host"
	AttrCandidateHosts   Attribute = "candidate_hosts"
	AttrInteractive      Attribute = "interactive"
)

// SPMDMPI is the SPMDVariation value requesting an MPI launcher.
const SPMDMPI = "mpi"

// LocalCapabilities lists the Description attributes a local service supports.
var LocalCapabilities = []Attribute{
	AttrExecutable,
	AttrArguments,
	AttrEnvironment,
	AttrWorkingDirectory,
	AttrInput,
	AttrOutput,
	AttrError,
	AttrSPMDVariation,
	AttrNumberOfProcesses,
}

// Description says what to run. It is shared with non-local backends, so
// it carries attributes the local service rejects at CreateJob.
type Description struct {
	Executable        string            `mapstructure:"executable"`
	Arguments         []string          `mapstructure:"arguments"`
	Environment       map[string]string `mapstructure:"environment"`
	WorkingDirectory  string            `mapstructure:"working_directory"`
	Input             string            `mapstructure:"input"`
	Output            string            `mapstructure:"output"`
	Error             string            `mapstructure:"error"`
	SPMDVariation     string            `mapstructure:"spmd_variation"`
	NumberOfProcesses int               `mapstructure:"number_of_processes"`

	Queue            string        `mapstructure:"queue"`
	Project          string        `mapstructure:"project"`
	WallTimeLimit    time.Duration `mapstructure:"wall_time_limit"`
	TotalCPUCount    int           `mapstructure:"total_cpu_count"`
	ProcessesPerHost int           `mapstructure:"processes_per_host"`
	CandidateHosts   []string      `mapstructure:"candidate_hosts"`
	Interactive      bool          `mapstructure:"interactive"`
}

// Attributes returns the attributes set to a non-zero value.
func (d Description) Attributes() []Attribute {
	var ret []Attribute
	add := func(a Attribute, set bool) {
		if set {
			ret = append(ret, a)
		}
	}
	add(AttrExecutable, d.Executable != "")
	add(AttrArguments, len(d.Arguments) > 0)
	add(AttrEnvironment, d.Environment != nil)
	add(AttrWorkingDirectory, d.WorkingDirectory != "")
	add(AttrInput, d.Input != "")
	add(AttrOutput, d.Output != "")
	add(AttrError, d.Error != "")
	add(AttrSPMDVariation, d.SPMDVariation != "")
	add(AttrNumberOfProcesses, d.NumberOfProcesses != 0)
	add(AttrQueue, d.Queue != "")
	add(AttrProject, d.Project != "")
	add(AttrWallTimeLimit, d.WallTimeLimit != 0)
	add(AttrTotalCPUCount, d.TotalCPUCount != 0)
	add(AttrProcessesPerHost, d.ProcessesPerHost != 0)
	add(AttrCandidateHosts, len(d.CandidateHosts) > 0)
	add(AttrInteractive, d.Interactive)
	return ret
}

// IsMPI reports whether the description asks for an MPI launch with a
// known process count.
func (d Description) IsMPI() bool {
	return strings.EqualFold(d.SPMDVariation, SPMDMPI) && d.NumberOfProcesses > 0
}

// Validate checks d against a capability set.
func (d Description) Validate(capabilities []Attribute) error {
	var unsupported []string
	for _, a := range d.Attributes() {
		if !slices.Contains(capabilities, a) {
			unsupported = append(unsupported, string(a))
		}
	}
	if len(unsupported) > 0 {
		return fmt.Errorf("attributes not supported: %s", strings.Join(unsupported, ","))
	}
	if d.Executable == "" {
		return fmt.Errorf("%s is required", AttrExecutable)
	}
	if d.NumberOfProcesses < 0 {
		return fmt.Errorf("%s must be positive, got %d", AttrNumberOfProcesses, d.NumberOfProcesses)
	}
	return nil
}

func (d Description) clone() Description {
	ret := d
	ret.Arguments = slices.Clone(d.Arguments)
	ret.Environment = maps.Clone(d.Environment)
	ret.CandidateHosts = slices.Clone(d.CandidateHosts)
	return ret
}
