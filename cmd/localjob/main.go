package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/CZERTAINLY/localjob/internal/job"
	"github.com/CZERTAINLY/localjob/internal/jobfile"
	"github.com/CZERTAINLY/localjob/internal/log"
	"github.com/CZERTAINLY/localjob/internal/model"
	"github.com/CZERTAINLY/localjob/internal/session"
	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"
)

var (
	userConfigPath string // /default/config/path/localjob on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config
	closeLog       = func() error { return nil }

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
	flagTimeout        time.Duration

	execDesc job.Description
	flagMPI  bool
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "localjob")
}

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is localjob.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initLocaljob

	for _, cmd := range []*cobra.Command{runCmd, execCmd} {
		cmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "cancel jobs still running after timeout, 0 waits forever")
	}

	f := execCmd.Flags()
	f.StringVar(&execDesc.WorkingDirectory, "cwd", "", "working directory of the job")
	f.StringVar(&execDesc.Input, "input", "", "file connected to standard input")
	f.StringVar(&execDesc.Output, "output", "", "file receiving standard output")
	f.StringVar(&execDesc.Error, "error", "", "file receiving standard error")
	f.StringToStringVar(&execDesc.Environment, "env", nil, "environment of the job, replaces the inherited one (KEY=VALUE)")
	f.IntVar(&execDesc.NumberOfProcesses, "np", 0, "number of processes for an mpi launch")
	f.BoolVar(&flagMPI, "mpi", false, "start the job via the mpi launcher")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = closeLog()
	if err != nil {
		slog.Error("localjob failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "localjob",
	Short:        "Tool running job descriptions as local processes",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run FILE...",
	Short: "run reads job description files and executes the jobs",
	Args:  cobra.MinimumNArgs(1),
	RunE:  doRun,
}

var execCmd = &cobra.Command{
	Use:   "exec [flags] -- CMD [ARGS...]",
	Short: "exec runs a single command as a job",
	Args:  cobra.MinimumNArgs(1),
	RunE:  doExec,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of a localjob",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("localjob: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config:   %s\n", configPath)
		}
		fmt.Printf("localjob: %s\n", info.Main.Version)
		fmt.Printf("go:       %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:   %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:     %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:    %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func doRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	attrs := slog.Group("localjob",
		slog.String("cmd", "run"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	descs, err := jobfile.LoadAll(ctx, args)
	if err != nil {
		return err
	}
	runner, err := newRunner()
	if err != nil {
		return err
	}
	return runner.Do(ctx, descs, cmd.OutOrStdout())
}

func doExec(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	attrs := slog.Group("localjob",
		slog.String("cmd", "exec"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	d := execDesc
	d.Executable = args[0]
	d.Arguments = args[1:]
	if flagMPI {
		d.SPMDVariation = job.SPMDMPI
	}
	runner, err := newRunner()
	if err != nil {
		return err
	}
	return runner.Do(ctx, []job.Description{d}, cmd.OutOrStdout())
}

func newRunner() (Runner, error) {
	opts, err := config.ServiceOptions()
	if err != nil {
		return Runner{}, err
	}
	opts = append(opts, job.WithLogger(slog.Default()))
	sess, err := callerSession(os.Getenv("LOCALJOBSESSION"))
	if err != nil {
		return Runner{}, err
	}
	svc, err := job.NewService(config.Service.Endpoint, sess, opts...)
	if err != nil {
		return Runner{}, err
	}
	return NewRunner(svc, flagTimeout, config.CancelTimeout()), nil
}

// callerSession joins the session id passed by the caller, or opens a new one.
func callerSession(id string) (session.Session, error) {
	if id == "" {
		sess := session.New()
		slog.Debug("new session", "session", sess, "created", sess.Created())
		return sess, nil
	}
	sess, err := session.Parse(id)
	if err != nil {
		return session.Session{}, fmt.Errorf("LOCALJOBSESSION: %w", err)
	}
	slog.Debug("joined session", "session", sess)
	return sess, nil
}

func initLocaljob(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("LOCALJOBCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{".", userConfigPath} {
			path := filepath.Join(d, "localjob.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	// store default configuration
	if configPath == "" {
		config = model.DefaultConfig()
		configPath = filepath.Join(userConfigPath, "localjob.yaml")
		err := os.MkdirAll(filepath.Dir(configPath), 0755)
		if err != nil {
			return fmt.Errorf("creating directory %s: %w", filepath.Dir(configPath), err)
		}

		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("creating file %s: %w", configPath, err)
		}
		defer func() {
			_ = f.Close()
		}()
		enc := yaml.NewEncoder(f)
		err = enc.Encode(config)
		if err != nil {
			return fmt.Errorf("storing configuration: %w", err)
		}
	} else {
		f, err := os.Open(configPath)
		if err != nil {
			return fmt.Errorf("opening config file: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		config, err = model.LoadConfig(f)
		if err != nil {
			for _, d := range model.CueErrDetails(err) {
				slog.Error("invalid config", d.Attr("detail"))
			}
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	// --verbose has a precedence over config file
	if flagVerbose {
		config.Service.Verbose = true
	}

	// initialize logging
	w, closeFn, err := log.Open(config.Service.Log)
	if err != nil {
		return err
	}
	closeLog = closeFn
	slog.SetDefault(log.New(w, config.Service.Verbose))

	slog.Debug("localjob run", "configPath", configPath)
	slog.Debug("localjob run", "config", config)
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
