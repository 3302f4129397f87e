package domain

import (
	"context"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application services depend on them.

// RemoteStore abstracts the authoritative remote backend. It may be
// unreachable at any time; callers queue mutations on failure instead of
// surfacing errors to the user.
//
// Aggregate queries (today's total, streak, recent stats) are remote-side
// computed procedures — they are never reimplemented locally.
type RemoteStore interface {
	// SignIn authenticates and returns the user id.
	SignIn(ctx context.Context, email, password string) (string, error)

	// SignOut invalidates the current session token.
	SignOut(ctx context.Context) error

	// LoadSnapshot fetches the user's progress, settings, today's records,
	// and achievements in one pass.
	LoadSnapshot(ctx context.Context, userID string) (*RemoteSnapshot, error)

	// InsertRecord appends one intake record.
	InsertRecord(ctx context.Context, userID string, p RecordPayload) error

	// UpsertProgress writes the user's progress row.
	UpsertProgress(ctx context.Context, userID string, p ProgressPayload) error

	// UnlockAchievement inserts an achievement row. A duplicate insert
	// returns ErrConflict, which idempotent callers treat as success.
	UnlockAchievement(ctx context.Context, userID string, p AchievementPayload) error

	// TodayAmount returns the remote-computed total for today.
	TodayAmount(ctx context.Context, userID string) (int, error)

	// StreakDays returns the remote-computed consecutive-goal-days count.
	StreakDays(ctx context.Context, userID string) (int, error)

	// RecentStats returns per-day totals for the last N days.
	RecentStats(ctx context.Context, userID string, days int) ([]DayTotal, error)
}

// Clock supplies the current time. Injected so day-boundary and
// future-timestamp rules are testable.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Today formats a time as the calendar-day key used by the day archive and
// the last-active-day marker.
func Today(t time.Time) string {
	return t.Format(time.DateOnly)
}

// SameDay reports whether two instants fall on the same calendar day in
// their respective locations.
func SameDay(a, b time.Time) bool {
	return Today(a) == Today(b)
}
