package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"framesched/internal/host"
	"framesched/internal/logging"
	"framesched/internal/sched"
)

var (
	flagConfig    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	cfg    sched.Config
	logger *slog.Logger
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "framesched",
		Short: "Frame-aligned cooperative task scheduler",
		Long: "framesched runs prioritized work in slices that fit between display refreshes.\n" +
			"Use \"run\" for a self-terminating demo and \"serve\" for the HTTP debug surface.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = sched.Load(flagConfig); err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = flagLogLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Log.Format = flagLogFormat
			}
			if flagDebug {
				cfg.Log.Level = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "config.yml", "Path to the YAML config (missing file means defaults)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Shorthand for --log-level=debug")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newServeCmd(),
	)
	return root
}

// loopHost is a realtime host the command owns: the scheduler's environment
// plus the loop that drives it.
type loopHost interface {
	host.Host
	Run(ctx context.Context) error
	Call(ctx context.Context, fn func() error) error
}

// newHost returns a display-backed loop, or a bare loop when refresh_hz is 0.
func newHost(cfg sched.Config, logger *slog.Logger) loopHost {
	loop := host.NewLoop(logger)
	if cfg.Frame.RefreshHz > 0 {
		return host.NewDisplay(loop, cfg.Frame.RefreshHz)
	}
	return loop
}

// newScheduler builds the scheduler for h and opens the CSV trace when one is
// configured. The caller must Close the scheduler.
func newScheduler(h host.Host, tracePath string, opts ...sched.Option) (*sched.Scheduler, error) {
	opts = append([]sched.Option{sched.WithLogger(logger)}, opts...)
	s := sched.New(h, cfg, opts...)
	if tracePath == "" {
		tracePath = cfg.TraceCSV
	}
	if tracePath != "" {
		if err := s.EnableCSVLogging(tracePath); err != nil {
			return nil, err
		}
		logger.Info("tracing scheduler events", "path", tracePath)
	}
	return s, nil
}
