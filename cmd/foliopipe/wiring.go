package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/FolioPipe/internal/api"
	"github.com/BTreeMap/FolioPipe/internal/config"
	"github.com/BTreeMap/FolioPipe/internal/flow"
	"github.com/BTreeMap/FolioPipe/internal/messaging"
	"github.com/BTreeMap/FolioPipe/internal/store"
	"github.com/BTreeMap/FolioPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/FolioPipe/internal/views"
	"github.com/BTreeMap/FolioPipe/internal/whatsapp"
)

// recordStore is a service repository that can also be seeded.
type recordStore interface {
	flow.ServiceRepository
	store.ServiceWriter
}

// openSessionStore opens the configured session backend. The SQL backends
// apply their migrations on open.
func openSessionStore(cfg *config.Config) (store.SessionStore, error) {
	opts := []store.Option{store.WithTTL(cfg.Session.TTL)}
	slog.Debug("Opening session store", "backend", cfg.Session.Backend, "ttl", cfg.Session.TTL)

	switch cfg.Session.Backend {
	case config.BackendMemory:
		return store.NewInMemoryStore(opts...), nil
	case config.BackendSQLite:
		s, err := store.NewSQLiteStore(append(opts, store.WithSQLiteDSN(cfg.Session.DSN))...)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite session store: %w", err)
		}
		return s, nil
	case config.BackendPostgres:
		s, err := store.NewPostgresStore(append(opts, store.WithPostgresDSN(cfg.Session.DSN))...)
		if err != nil {
			return nil, fmt.Errorf("failed to open Postgres session store: %w", err)
		}
		return s, nil
	case config.BackendRedis:
		s, err := store.NewRedisStore(append(opts, store.WithRedisURL(cfg.Session.DSN))...)
		if err != nil {
			return nil, fmt.Errorf("failed to open Redis session store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}
}

// openRecords opens the service repository and migrates its table. The
// special DSN "memory" serves the demo records from process memory.
func openRecords(cfg *config.Config) (recordStore, func() error, error) {
	if cfg.RecordsDSN == config.RecordsMemory {
		slog.Info("Using in-memory demo service records")
		repo := store.NewInMemoryServiceRepository(store.DemoRecords(time.Now())...)
		return repo, func() error { return nil }, nil
	}

	repo, err := store.OpenServiceRepository(cfg.RecordsDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := repo.AutoMigrate(); err != nil {
		repo.Close()
		return nil, nil, err
	}
	return repo, repo.Close, nil
}

func newRenderer(cfg *config.Config) *views.Renderer {
	return views.NewRenderer(cfg.Vocabulary, cfg.Support)
}

func newEngine(cfg *config.Config, sessions flow.SessionStore, records flow.ServiceRepository) *flow.Engine {
	return flow.NewEngine(sessions, records, newRenderer(cfg), flow.WithCallTimeout(cfg.CallTimeout))
}

// lockOwner describes what a serve process uses the state directory for.
func lockOwner(platforms []messaging.Platform) string {
	if len(platforms) == 0 {
		return "serve"
	}
	names := make([]string, len(platforms))
	for i, p := range platforms {
		names[i] = string(p)
	}
	return "serve " + strings.Join(names, ",")
}

// transports holds the services built for the enabled platforms and the API
// options they need.
type transports struct {
	services []messaging.Service
	apiOpts  []api.Option
	cleanup  []func()
}

func (t *transports) close() {
	for i := len(t.cleanup) - 1; i >= 0; i-- {
		t.cleanup[i]()
	}
}

// buildTransports connects every enabled platform. On error the transports
// built so far are closed.
func buildTransports(ctx context.Context, cfg *config.Config) (*transports, error) {
	t := &transports{}

	if cfg.WhatsApp.Enabled {
		waOpts := []whatsapp.Option{
			whatsapp.WithDBDSN(cfg.WhatsApp.DSN),
			whatsapp.WithLogLevel(cfg.WhatsApp.LogLevel),
		}
		if cfg.WhatsApp.QROutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(cfg.WhatsApp.QROutput))
		}
		if cfg.WhatsApp.NumericCode {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(ctx, waOpts...)
		if err != nil {
			t.close()
			return nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		t.cleanup = append(t.cleanup, client.Disconnect)
		t.services = append(t.services, messaging.NewWhatsAppService(client))
	}

	if cfg.Twilio.Enabled {
		client, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(cfg.Twilio.AccountSID),
			twiliowhatsapp.WithAuthToken(cfg.Twilio.AuthToken),
			twiliowhatsapp.WithFromWhats(cfg.Twilio.FromNumber),
		)
		if err != nil {
			t.close()
			return nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		var twOpts []messaging.TwilioOption
		if cfg.Twilio.WebhookURL != "" {
			twOpts = append(twOpts, messaging.WithSignatureValidation(cfg.Twilio.AuthToken, cfg.Twilio.WebhookURL))
		} else {
			slog.Warn("Twilio webhook signatures are not validated; set twilio.webhook_url to enable validation")
		}
		svc := messaging.NewTwilioService(client, twOpts...)
		t.services = append(t.services, svc)
		t.apiOpts = append(t.apiOpts, api.WithTwilioWebhook(svc.WebhookHandler))
	}

	if cfg.Telegram.Enabled {
		bot, err := messaging.NewTelegramBot(cfg.Telegram.Token)
		if err != nil {
			t.close()
			return nil, err
		}
		t.services = append(t.services, messaging.NewTelegramService(bot))
	}

	if cfg.Discord.Enabled {
		session, err := messaging.NewDiscordSession(cfg.Discord.Token)
		if err != nil {
			t.close()
			return nil, err
		}
		t.services = append(t.services, messaging.NewDiscordService(session))
	}

	return t, nil
}
