package model

import (
	"fmt"
	"io"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	"github.com/CZERTAINLY/localjob/internal/job"
	"github.com/CZERTAINLY/localjob/internal/log"

	_ "embed"
)

const (
	DefaultEndpoint = "fork://localhost"

	LogStderr  = log.Stderr
	LogStdout  = log.Stdout
	LogDiscard = log.Discard
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version int     `json:"version" yaml:"version"` // fixed 0 for now
	Service Service `json:"service" yaml:"service"`
}

// Service configures the local job service and the logging of the tool.
type Service struct {
	Endpoint     string  `json:"endpoint" yaml:"endpoint"`
	Verbose      bool    `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	Log          string  `json:"log" yaml:"log"` // "stderr"|"stdout"|"discard"|path
	PollInterval string  `json:"poll_interval" yaml:"poll_interval"`
	MPILauncher  string  `json:"mpi_launcher" yaml:"mpi_launcher"`
	KillAfter    *string `json:"kill_after,omitempty" yaml:"kill_after,omitempty"` // enables SIGKILL escalation
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		Version: 0,
		Service: Service{
			Endpoint:     DefaultEndpoint,
			Log:          LogStderr,
			PollInterval: job.DefaultPollInterval.String(),
			MPILauncher:  job.DefaultMPILauncher,
		},
	}
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}
	if _, err := out.ServiceOptions(); err != nil {
		return Config{}, err
	}
	return out, nil
}

// ServiceOptions maps the service section to job.Service options.
func (c Config) ServiceOptions() ([]job.Option, error) {
	poll, err := time.ParseDuration(c.Service.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("service.poll_interval: %w", err)
	}
	opts := []job.Option{
		job.WithPollInterval(poll),
		job.WithMPILauncher(c.Service.MPILauncher),
	}
	if c.Service.KillAfter != nil {
		if _, err := time.ParseDuration(*c.Service.KillAfter); err != nil {
			return nil, fmt.Errorf("service.kill_after: %w", err)
		}
		opts = append(opts, job.WithKillEscalation(true))
	}
	return opts, nil
}

// CancelTimeout is the timeout passed to job.Job.Cancel. Without kill_after
// the cancel waits for the process group to exit.
func (c Config) CancelTimeout() time.Duration {
	if c.Service.KillAfter == nil {
		return job.WaitForever
	}
	d, err := time.ParseDuration(*c.Service.KillAfter)
	if err != nil {
		return job.WaitForever
	}
	return d
}
