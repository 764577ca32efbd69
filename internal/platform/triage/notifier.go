package triage

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Notifier delivers fire-and-forget signals to the AI service off the
// request path. Delivery is best-effort: a saturated queue drops the task
// with a warning rather than blocking a clinician's request.
type Notifier struct {
	tasks   chan task
	retries int
	logger  zerolog.Logger
	done    chan struct{}
}

type task struct {
	name string
	send func(ctx context.Context) error
}

func NewNotifier(logger zerolog.Logger) *Notifier {
	return &Notifier{
		tasks:   make(chan task, 64),
		retries: 3,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Enqueue schedules a delivery. It reports whether the task was accepted;
// callers translate false into a soft "queued/offline" status, never an
// error on the durable path.
func (n *Notifier) Enqueue(name string, send func(ctx context.Context) error) bool {
	select {
	case n.tasks <- task{name: name, send: send}:
		return true
	default:
		n.logger.Warn().Str("task", name).Msg("notifier queue full, dropping signal")
		return false
	}
}

// Start runs the delivery loop until ctx is cancelled, then drains what is
// already queued.
func (n *Notifier) Start(ctx context.Context) {
	defer close(n.done)
	for {
		select {
		case t := <-n.tasks:
			n.deliver(ctx, t)
		case <-ctx.Done():
			for {
				select {
				case t := <-n.tasks:
					n.deliver(context.Background(), t)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until the delivery loop has exited.
func (n *Notifier) Wait() { <-n.done }

func (n *Notifier) deliver(ctx context.Context, t task) {
	var err error
	for attempt := 1; attempt <= n.retries; attempt++ {
		if err = t.send(ctx); err == nil {
			return
		}
		n.logger.Warn().
			Err(err).
			Str("task", t.name).
			Int("attempt", attempt).
			Msg("signal delivery failed")
		select {
		case <-time.After(time.Duration(attempt) * time.Second):
		case <-ctx.Done():
		}
	}
	n.logger.Error().Err(err).Str("task", t.name).Msg("signal dropped after retries")
}
