package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ─── Sync Queue Items ───────────────────────────────────────────────────────
// A QueueItem is a closed tagged union: exactly one payload field is set,
// matching Type. Dispatch is exhaustive over QueueType — adding a case means
// touching every switch, which is the point.

// QueueType enumerates the remote mutation kinds.
type QueueType string

const (
	QueueRecord      QueueType = "record"
	QueueProgress    QueueType = "progress_update"
	QueueAchievement QueueType = "achievement_unlock"
)

// RecordPayload appends one intake record to the remote ledger.
type RecordPayload struct {
	Amount     int       `json:"amount"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ProgressPayload upserts the user's progress row.
type ProgressPayload struct {
	Level       int `json:"level"`
	Exp         int `json:"exp"`
	MaxExp      int `json:"max_exp"`
	TotalAmount int `json:"total_amount"`
	DailyGoal   int `json:"daily_goal"`
}

// AchievementPayload inserts an achievement unlock. The achievement id is a
// natural idempotency key: a duplicate response is success.
type AchievementPayload struct {
	AchievementID string `json:"achievement_id"`
}

// QueueItem is one pending remote mutation. Items are owned exclusively by
// the sync queue and destroyed on successful remote application.
type QueueItem struct {
	ID          string              `json:"id"`
	Type        QueueType           `json:"type"`
	Record      *RecordPayload      `json:"record,omitempty"`
	Progress    *ProgressPayload    `json:"progress,omitempty"`
	Achievement *AchievementPayload `json:"achievement,omitempty"`
	EnqueuedAt  time.Time           `json:"enqueued_at"`
}

// Validate checks that exactly the payload matching Type is present.
func (q *QueueItem) Validate() error {
	switch q.Type {
	case QueueRecord:
		if q.Record == nil {
			return fmt.Errorf("queue item %s: missing record payload", q.ID)
		}
	case QueueProgress:
		if q.Progress == nil {
			return fmt.Errorf("queue item %s: missing progress payload", q.ID)
		}
	case QueueAchievement:
		if q.Achievement == nil {
			return fmt.Errorf("queue item %s: missing achievement payload", q.ID)
		}
	default:
		return fmt.Errorf("queue item %s: unknown type %q", q.ID, q.Type)
	}
	return nil
}

// EncodeQueueItem serializes an item for durable storage.
func EncodeQueueItem(item QueueItem) ([]byte, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(item)
}

// DecodeQueueItem restores an item from durable storage.
func DecodeQueueItem(data []byte) (QueueItem, error) {
	var item QueueItem
	if err := json.Unmarshal(data, &item); err != nil {
		return QueueItem{}, fmt.Errorf("decode queue item: %w", err)
	}
	if err := item.Validate(); err != nil {
		return QueueItem{}, err
	}
	return item, nil
}
