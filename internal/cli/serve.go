package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the analysis queues and the device poller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := rootOpts.load(os.Stdout)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()
			return a.run(ctx)
		},
	}
}

// run serves until ctx ends, then shuts down in dependency order: the HTTP
// server stops taking punches, the analysis queues drain, and the notify
// queue drains last because analysis still feeds it while draining.
func (a *app) run(ctx context.Context) error {
	queueCtx, stopQueues := context.WithCancel(context.WithoutCancel(ctx))
	defer stopQueues()
	notifyCtx, stopNotify := context.WithCancel(context.WithoutCancel(ctx))
	defer stopNotify()

	analysis := new(errgroup.Group)
	analysis.Go(func() error { return a.securityQueue.Run(queueCtx, a.security.Handle) })
	analysis.Go(func() error { return a.anomalyQueue.Run(queueCtx, a.anomaly.Handle) })
	notifyDone := make(chan error, 1)
	go func() {
		notifyDone <- a.notifyQueue.Run(notifyCtx, a.fanout.Handle)
	}()

	g, gctx := errgroup.WithContext(ctx)
	if a.poller != nil {
		g.Go(func() error { return a.poller.Run(gctx) })
	}
	srv := a.server()
	g.Go(func() error {
		a.logger.Info("starting timekeep", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	err := g.Wait()

	stopQueues()
	_ = analysis.Wait()
	stopNotify()
	<-notifyDone
	a.hub.Close()

	a.logger.Info("timekeep stopped")
	return err
}

// drain handles whatever a one-shot command queued and returns once every
// queue is empty or past its drain deadline.
func (a *app) drain() {
	done, cancel := context.WithCancel(context.Background())
	cancel()
	analysis := new(errgroup.Group)
	analysis.Go(func() error { return a.securityQueue.Run(done, a.security.Handle) })
	analysis.Go(func() error { return a.anomalyQueue.Run(done, a.anomaly.Handle) })
	_ = analysis.Wait()
	_ = a.notifyQueue.Run(done, a.fanout.Handle)
}
