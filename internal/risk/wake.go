package risk

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

const notifyChannel = "worksafe_triggers"

// NotifyingEnqueuer wraps a queue so every enqueue also fires a Postgres
// NOTIFY. Reactor workers on other nodes wake on it instead of waiting out
// their poll tick. Notification failures are ignored; the poll tick is the
// guarantee, the notify is the shortcut.
type NotifyingEnqueuer struct {
	Enqueuer
	db *sql.DB
}

func NewNotifyingEnqueuer(next Enqueuer, db *sql.DB) *NotifyingEnqueuer {
	return &NotifyingEnqueuer{Enqueuer: next, db: db}
}

func (n *NotifyingEnqueuer) Enqueue(ctx context.Context, t Trigger) error {
	if err := n.Enqueuer.Enqueue(ctx, t); err != nil {
		return err
	}
	_, _ = n.db.ExecContext(ctx, "SELECT pg_notify($1, '')", notifyChannel)
	return nil
}

// WakeListener turns Postgres notifications into wake signals for the
// reactor.
type WakeListener struct {
	listener *pq.Listener
	logger   *slog.Logger
	ch       chan struct{}
}

func NewWakeListener(connInfo string, logger *slog.Logger) *WakeListener {
	w := &WakeListener{
		logger: logger,
		ch:     make(chan struct{}, 1),
	}
	w.listener = pq.NewListener(connInfo, 10*time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				logger.Warn("trigger listener event", "event", ev, "error", err)
			}
		})
	return w
}

// C is the wake channel to hand the reactor via WithWake.
func (w *WakeListener) C() <-chan struct{} { return w.ch }

// Run forwards notifications until ctx ends.
func (w *WakeListener) Run(ctx context.Context) error {
	if err := w.listener.Listen(notifyChannel); err != nil {
		return err
	}
	defer w.listener.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.listener.Notify:
			select {
			case w.ch <- struct{}{}:
			default:
			}
		case <-time.After(90 * time.Second):
			// Connection health probe while idle.
			go func() {
				if err := w.listener.Ping(); err != nil {
					w.logger.Warn("trigger listener ping", "error", err)
				}
			}()
		}
	}
}
