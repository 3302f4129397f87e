// Package syncqueue reconciles local writes with the remote store. Pending
// mutations live in a durable FIFO that survives restarts; draining applies
// them strictly in enqueue order and stops at the first failure.
package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/droplog/droplog/internal/domain"
	"github.com/droplog/droplog/internal/infra/observability"
	"github.com/droplog/droplog/internal/infra/sqlite"
)

// Queue is the durable FIFO of pending remote mutations.
//
// All methods are serialized by an internal mutex: items are applied to the
// remote store in strict enqueue order, one at a time, with no parallel
// dispatch.
type Queue struct {
	mu     sync.Mutex
	db     *sqlite.DB
	remote domain.RemoteStore
	clock  domain.Clock

	items   []domain.QueueItem
	session domain.Session
}

// New creates a queue over an opened database and restores any pending
// items persisted by a previous run.
func New(db *sqlite.DB, remote domain.RemoteStore, clock domain.Clock) (*Queue, error) {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	q := &Queue{db: db, remote: remote, clock: clock}

	payloads, err := db.ListQueueItems()
	if err != nil {
		return nil, fmt.Errorf("restore sync queue: %w", err)
	}
	for _, p := range payloads {
		item, err := domain.DecodeQueueItem([]byte(p))
		if err != nil {
			// A malformed row cannot ever be applied; dropping it beats
			// wedging the whole queue behind it.
			log.Printf("syncqueue: dropping malformed item: %v", err)
			continue
		}
		q.items = append(q.items, item)
	}
	observability.QueueDepth.Set(float64(len(q.items)))
	return q, nil
}

// SetSession updates the connectivity/auth view the queue drains under.
// The session manager calls this on every transition.
func (q *Queue) SetSession(s domain.Session) {
	q.mu.Lock()
	q.session = s
	q.mu.Unlock()
}

// Len returns the number of pending items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a copy of the pending items in FIFO order.
func (q *Queue) Items() []domain.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.QueueItem(nil), q.items...)
}

// ─── Enqueue ────────────────────────────────────────────────────────────────

// EnqueueRecord queues an intake record for remote append.
func (q *Queue) EnqueueRecord(ctx context.Context, p domain.RecordPayload) error {
	return q.enqueue(ctx, domain.QueueItem{Type: domain.QueueRecord, Record: &p})
}

// EnqueueProgress queues a progress upsert.
func (q *Queue) EnqueueProgress(ctx context.Context, p domain.ProgressPayload) error {
	return q.enqueue(ctx, domain.QueueItem{Type: domain.QueueProgress, Progress: &p})
}

// EnqueueAchievement queues an achievement unlock.
func (q *Queue) EnqueueAchievement(ctx context.Context, p domain.AchievementPayload) error {
	return q.enqueue(ctx, domain.QueueItem{Type: domain.QueueAchievement, Achievement: &p})
}

// enqueue persists the item at the tail, then drains immediately when the
// device is online with a signed-in user.
func (q *Queue) enqueue(ctx context.Context, item domain.QueueItem) error {
	q.mu.Lock()
	item.ID = "op_" + uuid.NewString()
	item.EnqueuedAt = q.clock.Now()

	payload, err := domain.EncodeQueueItem(item)
	if err != nil {
		q.mu.Unlock()
		return err
	}
	if err := q.db.AppendQueueItem(item.ID, string(item.Type), string(payload), item.EnqueuedAt); err != nil {
		q.mu.Unlock()
		return &domain.StorageError{Kind: domain.StorageUnavailable, Err: err}
	}
	q.items = append(q.items, item)
	observability.QueueDepth.Set(float64(len(q.items)))
	drainNow := q.session.Online && q.session.Authenticated()
	q.mu.Unlock()

	if drainNow {
		q.Drain(ctx)
	}
	return nil
}

// ─── Drain ──────────────────────────────────────────────────────────────────

// Drain applies pending items to the remote store in FIFO order. It stops
// entirely at the first failure, leaving the failed item and everything
// behind it queued; it never skips and continues. Draining an empty queue
// is a no-op.
//
// Returns the number of items applied (duplicates count as applied).
func (q *Queue) Drain(ctx context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return 0
	}
	if !q.session.Online || !q.session.Authenticated() {
		return 0
	}

	applied := 0
	for len(q.items) > 0 {
		item := q.items[0]
		if err := q.apply(ctx, item); err != nil {
			log.Printf("syncqueue: drain stopped at %s (%s): %v", item.ID, item.Type, err)
			observability.DrainItems.WithLabelValues("failed").Inc()
			observability.Drains.WithLabelValues("stopped").Inc()
			observability.QueueDepth.Set(float64(len(q.items)))
			return applied
		}
		// The row is removed only after the remote accepted the item, so a
		// crash between apply and delete re-sends it (at-least-once).
		if err := q.db.DeleteQueueItem(item.ID); err != nil {
			log.Printf("syncqueue: persist after drain: %v", err)
		}
		q.items = q.items[1:]
		applied++
	}
	observability.Drains.WithLabelValues("complete").Inc()
	observability.QueueDepth.Set(float64(len(q.items)))
	return applied
}

// apply dispatches one item to the remote adapter. The switch is exhaustive
// over the mutation kinds; Validate guarantees the payload is present.
func (q *Queue) apply(ctx context.Context, item domain.QueueItem) error {
	userID := q.session.UserID
	switch item.Type {
	case domain.QueueRecord:
		// No dedupe key exists for records: a retry after a lost response
		// can duplicate the remote row (at-least-once semantics).
		if err := q.remote.InsertRecord(ctx, userID, *item.Record); err != nil {
			return err
		}
	case domain.QueueProgress:
		if err := q.remote.UpsertProgress(ctx, userID, *item.Progress); err != nil {
			return err
		}
	case domain.QueueAchievement:
		err := q.remote.UnlockAchievement(ctx, userID, *item.Achievement)
		if errors.Is(err, domain.ErrConflict) {
			// The achievement id is an idempotency key: already unlocked
			// remotely means this item is done.
			observability.DrainItems.WithLabelValues("duplicate").Inc()
			return nil
		}
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown queue type %q", item.Type)
	}
	observability.DrainItems.WithLabelValues("applied").Inc()
	return nil
}

// Clear discards every pending item without applying them. Used by the
// destructive sign-out reset; queued local-only progress is lost.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.db.ClearQueue(); err != nil {
		return &domain.StorageError{Kind: domain.StorageUnavailable, Err: err}
	}
	q.items = nil
	observability.QueueDepth.Set(0)
	return nil
}
