package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/FolioPipe/internal/api"
	"github.com/BTreeMap/FolioPipe/internal/config"
	"github.com/BTreeMap/FolioPipe/internal/lockfile"
	"github.com/BTreeMap/FolioPipe/internal/messaging"
	"github.com/BTreeMap/FolioPipe/internal/scheduler"
	"github.com/BTreeMap/FolioPipe/internal/store"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the assistant on the enabled chat platforms and the HTTP API",
		Long: `Starts the conversation engine, the HTTP API and every chat platform
enabled in the configuration (whatsapp, twilio, telegram, discord).

The state directory is locked for the lifetime of the process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts.cfg)
		},
	}

	cmd.Flags().String("addr", "", "API server address (overrides $FOLIOPIPE_API_ADDR)")
	cmd.Flags().Int("workers", 0, "number of conversation workers (overrides $FOLIOPIPE_WORKERS)")
	cmd.Flags().String("qr-output", "", "path to write the WhatsApp login QR code")
	cmd.Flags().Bool("numeric-code", false, "use a numeric WhatsApp login code instead of a QR code")
	return cmd
}

// runServe blocks until ctx is cancelled or the API server fails.
func runServe(ctx context.Context, cfg *config.Config) error {
	platforms := cfg.Platforms()
	slog.Info("Bootstrapping FolioPipe", "version", Version, "platforms", platforms)

	lock, err := lockfile.AcquireLock(cfg.StateDir, lockOwner(platforms))
	if err != nil {
		return err
	}
	defer lock.Release()

	sessions, err := openSessionStore(cfg)
	if err != nil {
		return err
	}
	defer sessions.Close()

	records, closeRecords, err := openRecords(cfg)
	if err != nil {
		return err
	}
	defer closeRecords()

	engine := newEngine(cfg, sessions, records)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if p, ok := sessions.(store.Purger); ok {
		if err := sched.AddPurgeJob(cfg.Session.PurgeSchedule, p); err != nil {
			return fmt.Errorf("invalid session purge schedule %q: %w", cfg.Session.PurgeSchedule, err)
		}
	}

	dopts := []messaging.DispatcherOption{
		messaging.WithWorkers(cfg.Workers),
		messaging.WithButtonTTL(cfg.Session.TTL),
	}
	if dedup, ok := sessions.(store.DedupRepo); ok {
		dopts = append(dopts, messaging.WithDedup(dedup))
	}
	dispatcher := messaging.NewDispatcher(engine, dopts...)
	if err := sched.AddPurgeJob(cfg.Session.PurgeSchedule, dispatcher.Buttons()); err != nil {
		return fmt.Errorf("invalid session purge schedule %q: %w", cfg.Session.PurgeSchedule, err)
	}

	tr, err := buildTransports(ctx, cfg)
	if err != nil {
		return err
	}
	defer tr.close()

	for _, svc := range tr.services {
		dispatcher.Register(svc)
	}
	dispatcher.Start(ctx)

	stopServices := func() {
		for _, svc := range tr.services {
			if err := svc.Stop(); err != nil {
				slog.Warn("Failed to stop service", "platform", svc.Platform(), "error", err)
			}
		}
		dispatcher.Wait()
	}

	for _, svc := range tr.services {
		if err := svc.Start(ctx); err != nil {
			stopServices()
			return fmt.Errorf("failed to start %s service: %w", svc.Platform(), err)
		}
		slog.Info("Service started", "platform", svc.Platform())
	}

	server := api.NewServer(engine, records, append(tr.apiOpts, api.WithAddr(cfg.APIAddr))...)
	apiErr := make(chan error, 1)
	go func() { apiErr <- server.Run(ctx) }()

	var runErr error
	select {
	case <-ctx.Done():
		runErr = <-apiErr
	case runErr = <-apiErr:
	}

	slog.Info("FolioPipe shutting down")
	stopServices()
	if runErr != nil {
		return runErr
	}
	slog.Info("FolioPipe exited successfully")
	return nil
}
