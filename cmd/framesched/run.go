package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"framesched/internal/expiration"
	"framesched/internal/job"
	"framesched/internal/priority"
	"framesched/internal/render"
	"framesched/internal/sched"
)

type demoOptions struct {
	jobs             int
	units            int
	unit             time.Duration
	interactiveAfter time.Duration
	timeout          time.Duration
	trace            string
}

func newRunCmd() *cobra.Command {
	var opts demoOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run demo jobs and a render root through the scheduler, then print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.jobs <= 0 || opts.units <= 0 {
				return errors.New("--jobs and --units must be positive")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDemo(ctx, cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().IntVar(&opts.jobs, "jobs", 5, "Number of chunked jobs, cycling through the priority levels")
	cmd.Flags().IntVar(&opts.units, "units", 20, "Units of work per job")
	cmd.Flags().DurationVar(&opts.unit, "unit", 2*time.Millisecond, "Time each unit sleeps")
	cmd.Flags().DurationVar(&opts.interactiveAfter, "interactive-after", 50*time.Millisecond, "Delay before the interactive render update")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Give up if the work has not finished by then")
	cmd.Flags().StringVar(&opts.trace, "trace", "", "Write a CSV event trace to this path (overrides trace_csv)")
	return cmd
}

type jobRecord struct {
	id       sched.TaskID
	level    priority.Level
	progress *job.Progress
}

func runDemo(parent context.Context, out io.Writer, opts demoOptions) error {
	ctx, cancel := context.WithTimeout(parent, opts.timeout)
	defer cancel()

	h := newHost(cfg, logger)
	root := render.NewRoot("demo")
	var (
		records         []jobRecord
		interactiveSent bool
	)
	finished := func() bool {
		if !interactiveSent || root.Pending() > 0 {
			return false
		}
		for _, r := range records {
			if !r.progress.Finished() {
				return false
			}
		}
		return true
	}

	s, err := newScheduler(h, opts.trace, sched.WithObserver(func(ev sched.StatusEvent) {
		if ev.Kind == sched.StatusIdle && finished() {
			cancel()
		}
	}))
	if err != nil {
		return err
	}
	defer s.Close()

	renderer := render.NewRenderer(s, expiration.New(cfg.ExpirationModel()), func(*render.Root) error {
		time.Sleep(opts.unit)
		return nil
	}, logger)

	h.Post(func() error {
		for i := 0; i < opts.jobs; i++ {
			level := priority.Levels[i%len(priority.Levels)]
			cb, p := job.Chunked(s, opts.units, job.SleepWork(opts.unit))
			t := s.ScheduleTask(level, cb)
			records = append(records, jobRecord{id: t.ID, level: level, progress: p})
		}
		renderer.ScheduleUpdate(root, opts.units, false)
		h.After(opts.interactiveAfter, func() error {
			interactiveSent = true
			renderer.ScheduleUpdate(root, opts.units/2+1, true)
			return nil
		})
		return nil
	})

	start := time.Now()
	err = h.Run(ctx)
	elapsed := time.Since(start)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("work did not finish within %v", opts.timeout)
	case parent.Err() != nil:
		logger.Warn("interrupted", "elapsed", elapsed)
	}

	fmt.Fprintf(out, "%-6s %-13s %7s %7s\n", "TASK", "PRIORITY", "UNITS", "SLICES")
	for _, r := range records {
		fmt.Fprintf(out, "%-6d %-13s %3d/%-3d %7d\n", r.id, r.level, r.progress.Done, r.progress.Total, r.progress.Slices)
	}
	fmt.Fprintf(out, "render root %q: %d units in %d commit(s)\n", root.Name, root.Rendered(), root.Commits())

	st := s.Stats()
	fmt.Fprintf(out, "scheduled=%d completed=%d yielded=%d cancelled=%d failed=%d flushes=%d frame=%v elapsed=%v\n",
		st.Scheduled, st.Completed, st.Yielded, st.Cancelled, st.Failed, st.Flushes, st.FrameTime, elapsed.Round(time.Millisecond))
	return nil
}
