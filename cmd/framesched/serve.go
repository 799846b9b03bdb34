package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"framesched/internal/debugsrv"
)

func newServeCmd() *cobra.Command {
	var (
		addr  string
		trace string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler with an HTTP debug surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, addr, trace)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8090", "Listen address")
	cmd.Flags().StringVar(&trace, "trace", "", "Write a CSV event trace to this path (overrides trace_csv)")
	return cmd
}

func serve(ctx context.Context, addr, trace string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h := newHost(cfg, logger)
	s, err := newScheduler(h, trace)
	if err != nil {
		return err
	}
	defer s.Close()

	loopDone := make(chan error, 1)
	go func() { loopDone <- h.Run(ctx) }()

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           debugsrv.New(s, h, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("debug server listening", "addr", addr)
		serveErr <- httpSrv.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
		cancel()
	case <-ctx.Done():
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		err = httpSrv.Shutdown(shutdownCtx)
	}
	<-loopDone
	logger.Info("debug server stopped")

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
