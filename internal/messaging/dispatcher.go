package messaging

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/FolioPipe/internal/models"
	"github.com/BTreeMap/FolioPipe/internal/store"
)

// DefaultWorkers is the default size of the dispatcher worker pool.
const DefaultWorkers = 8

// TurnHandler runs one conversation turn. *flow.Engine implements it.
type TurnHandler interface {
	HandleTurn(ctx context.Context, msg models.InboundMessage) models.BotResponse
}

// DispatcherOpts holds configuration options for the Dispatcher.
type DispatcherOpts struct {
	Workers   int
	Dedup     store.DedupRepo
	ButtonTTL time.Duration
}

// DispatcherOption defines a configuration option for the Dispatcher.
type DispatcherOption func(*DispatcherOpts)

// WithWorkers sets the number of workers processing turns.
func WithWorkers(n int) DispatcherOption {
	return func(o *DispatcherOpts) {
		o.Workers = n
	}
}

// WithDedup drops inbound messages whose id was already recorded in repo.
func WithDedup(repo store.DedupRepo) DispatcherOption {
	return func(o *DispatcherOpts) {
		o.Dedup = repo
	}
}

// WithButtonTTL sets how long a numbered menu shown on a text-only platform
// stays resolvable.
func WithButtonTTL(ttl time.Duration) DispatcherOption {
	return func(o *DispatcherOpts) {
		o.ButtonTTL = ttl
	}
}

type job struct {
	svc Service
	in  Inbound
}

// Dispatcher fans in messages from every registered service and runs the
// engine on a worker pool. Messages are sharded to workers by user, so one
// user's turns are handled in arrival order while different users run in
// parallel.
type Dispatcher struct {
	engine   TurnHandler
	dedup    store.DedupRepo
	buttons  *ButtonMemory
	services []Service
	queues   []chan job

	feeders sync.WaitGroup
	workers sync.WaitGroup
}

// NewDispatcher creates a Dispatcher for the given engine.
func NewDispatcher(engine TurnHandler, opts ...DispatcherOption) *Dispatcher {
	cfg := DispatcherOpts{Workers: DefaultWorkers}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}

	d := &Dispatcher{
		engine:  engine,
		dedup:   cfg.Dedup,
		buttons: NewButtonMemory(cfg.ButtonTTL),
		queues:  make([]chan job, cfg.Workers),
	}
	for i := range d.queues {
		d.queues[i] = make(chan job, DefaultChannelBufferSize)
	}
	slog.Debug("Dispatcher created", "workers", cfg.Workers, "dedup", cfg.Dedup != nil)
	return d
}

// Buttons returns the dispatcher's numbered-menu memory.
func (d *Dispatcher) Buttons() *ButtonMemory {
	return d.buttons
}

// Register adds a service whose inbound messages will be dispatched.
// Register must be called before Start.
func (d *Dispatcher) Register(svc Service) {
	d.services = append(d.services, svc)
	slog.Debug("Dispatcher registered service", "platform", svc.Platform())
}

// Start launches the workers and one feeder per registered service. Feeders
// stop when their service's inbound channel closes or ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	slog.Info("Dispatcher starting", "services", len(d.services), "workers", len(d.queues))

	for i, q := range d.queues {
		d.workers.Add(1)
		go d.work(ctx, i, q)
	}
	for _, svc := range d.services {
		d.feeders.Add(1)
		go d.feed(ctx, svc)
	}

	go func() {
		d.feeders.Wait()
		for _, q := range d.queues {
			close(q)
		}
	}()
}

// Wait blocks until every feeder has stopped and the queued turns are drained.
func (d *Dispatcher) Wait() {
	d.workers.Wait()
	slog.Info("Dispatcher stopped")
}

func (d *Dispatcher) feed(ctx context.Context, svc Service) {
	defer d.feeders.Done()
	for {
		select {
		case in, ok := <-svc.Inbound():
			if !ok {
				slog.Debug("Dispatcher inbound channel closed", "platform", svc.Platform())
				return
			}
			d.queues[d.shard(in)] <- job{svc: svc, in: in}
		case <-ctx.Done():
			slog.Debug("Dispatcher feeder stopping due to context cancellation", "platform", svc.Platform())
			return
		}
	}
}

func (d *Dispatcher) work(ctx context.Context, id int, q <-chan job) {
	defer d.workers.Done()
	for j := range q {
		if err := d.Process(ctx, j.svc, j.in); err != nil {
			slog.Error("Dispatcher failed to process message", "error", err, "worker", id,
				"platform", j.in.Platform, "userID", j.in.UserID)
		}
	}
}

func (d *Dispatcher) shard(in Inbound) int {
	h := fnv.New32a()
	h.Write([]byte(in.conversationKey()))
	return int(h.Sum32() % uint32(len(d.queues)))
}

// Process handles a single inbound message synchronously: deduplicate, map a
// numeric reply to its button label, run the turn and send the reply.
func (d *Dispatcher) Process(ctx context.Context, svc Service, in Inbound) error {
	if strings.TrimSpace(in.Text) == "" {
		slog.Debug("Dispatcher ignoring empty message", "platform", in.Platform, "userID", in.UserID)
		return nil
	}

	if d.dedup != nil && in.MessageID != "" {
		fresh, err := d.dedup.RecordInbound(ctx, in.dedupKey(), in.UserID)
		if err != nil {
			// A failed dedup check never drops the message.
			slog.Warn("Dispatcher dedup check failed", "error", err, "messageID", in.MessageID)
		} else if !fresh {
			slog.Debug("Dispatcher dropping duplicate message", "platform", in.Platform, "messageID", in.MessageID)
			return nil
		}
	}

	key := in.conversationKey()
	msg := in.Message()
	if !svc.NativeButtons() {
		msg.Text = d.buttons.Resolve(key, msg.Text)
	}

	resp := d.engine.HandleTurn(ctx, msg)

	if !svc.NativeButtons() {
		d.buttons.Remember(key, resp.Buttons)
	}

	if err := svc.SendResponse(ctx, in.ReplyTo, resp); err != nil {
		return fmt.Errorf("failed to send response via %s: %w", svc.Platform(), err)
	}

	if d.dedup != nil && in.MessageID != "" {
		if err := d.dedup.MarkProcessed(ctx, in.dedupKey()); err != nil {
			slog.Warn("Dispatcher failed to mark message processed", "error", err, "messageID", in.MessageID)
		}
	}
	slog.Debug("Dispatcher turn delivered", "platform", in.Platform, "userID", in.UserID, "buttons", len(resp.Buttons))
	return nil
}
