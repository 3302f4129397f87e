// Package ledger owns the in-memory game state and every mutation of it:
// recording, editing, and deleting intake entries, leveling, achievement
// checks, and the day rollover. All mutations are serialized, persisted
// before events fire, and mirrored into the sync queue.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/droplog/droplog/internal/app/syncqueue"
	"github.com/droplog/droplog/internal/domain"
	"github.com/droplog/droplog/internal/infra/observability"
	"github.com/droplog/droplog/internal/store"
)

// Ledger serializes all game-state mutations behind one mutex. Callers only
// ever receive deep copies of the state; entries inside the ledger are never
// shared.
type Ledger struct {
	mu     sync.Mutex
	store  *store.Store
	queue  *syncqueue.Queue
	events domain.Events
	clock  domain.Clock

	state *domain.GameState

	// streakDays is the last remote-reported consecutive-goal-days count.
	// Zero while offline, which keeps the streak achievement locked.
	streakDays int
}

// New loads the persisted state, performs the day rollover if the calendar
// day changed since the last run, and returns a ready ledger.
func New(st *store.Store, queue *syncqueue.Queue, events domain.Events, clock domain.Clock) (*Ledger, error) {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if events == nil {
		events = domain.NopEvents{}
	}
	l := &Ledger{store: st, queue: queue, events: events, clock: clock}

	load := st.Load()
	l.state = load.State
	if load.Recovered {
		log.Printf("ledger: snapshot was corrupt, starting from defaults")
	}

	if err := l.rolloverLocked(clock.Now()); err != nil {
		return nil, err
	}
	l.publishGauges()
	return l, nil
}

// State returns a deep copy of the current game state.
func (l *Ledger) State() *domain.GameState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Clone()
}

// SetStreakDays updates the remote streak count used by achievement checks.
func (l *Ledger) SetStreakDays(days int) {
	l.mu.Lock()
	l.streakDays = days
	l.mu.Unlock()
}

// ─── Insert ─────────────────────────────────────────────────────────────────

// Insert records a new intake entry and returns a copy of it. The amount
// must be within the entry bounds; the timestamp must fall on the current
// day and not in the future. A zero timestamp means "now".
//
// On success the entry is in the history at its timestamp-ordered position,
// todayAmount and totalAmount include it, experience is awarded, newly
// earned achievements are unlocked, and the record plus a progress update
// are queued for the remote.
func (l *Ledger) Insert(ctx context.Context, amount int, at time.Time) (*domain.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if err := l.rolloverLocked(now); err != nil {
		return nil, err
	}

	if at.IsZero() {
		at = now
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if err := validateTimestamp(at, now); err != nil {
		return nil, err
	}

	entry := domain.Entry{
		ID:        domain.NewEntryID(now),
		Timestamp: at,
		Amount:    amount,
		Exp:       domain.EntryExp(amount),
	}

	prev := l.state.Clone()
	l.state.History = append(l.state.History, entry)
	l.state.SortHistory()
	l.state.TodayAmount += amount
	l.state.TotalAmount += amount

	progress, levels := domain.AwardExp(domain.Progress{
		Level:  l.state.Level,
		Exp:    l.state.Exp,
		MaxExp: l.state.MaxExp,
	}, entry.Exp)
	l.state.Level = progress.Level
	l.state.Exp = progress.Exp
	l.state.MaxExp = progress.MaxExp

	earned := domain.CheckAchievements(l.state, l.streakDays)
	for _, a := range earned {
		l.state.Achievements = append(l.state.Achievements, a.ID)
	}

	if err := l.store.Save(l.state); err != nil {
		// A failed save must not leave phantom progress in memory.
		l.state = prev
		observability.StorageErrors.WithLabelValues(storageKind(err)).Inc()
		return nil, err
	}

	observability.EntriesRecorded.WithLabelValues("insert").Inc()
	l.publishGauges()

	l.events.DataChanged(*l.state.Clone())
	for i := 0; i < levels; i++ {
		l.events.LevelUp(l.state.Level - levels + i + 1)
	}
	for _, a := range earned {
		observability.AchievementsUnlocked.Inc()
		l.events.AchievementUnlocked(a)
	}
	if prev.TodayAmount < l.state.DailyGoal && l.state.TodayAmount >= l.state.DailyGoal {
		l.events.DailyGoalComplete(l.state.TodayAmount, l.state.DailyGoal)
	}

	l.enqueueRecord(ctx, entry)
	l.enqueueProgress(ctx)
	for _, a := range earned {
		l.enqueueAchievement(ctx, a.ID)
	}

	out := entry
	return &out, nil
}

// ─── Edit ───────────────────────────────────────────────────────────────────

// Edit changes an existing entry's amount and timestamp, retaining the
// previous values in its edit history. Today's total is recomputed from the
// ledger and achievements are re-checked against it; experience, level, and
// the lifetime total are not revised downward. Progression only moves
// forward.
func (l *Ledger) Edit(ctx context.Context, id string, amount int, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if err := l.rolloverLocked(now); err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	if err := validateTimestamp(at, now); err != nil {
		return err
	}

	idx := l.findEntry(id)
	if idx < 0 {
		return domain.ErrEntryNotFound
	}

	prev := l.state.Clone()
	e := &l.state.History[idx]
	e.EditHistory = append(e.EditHistory, domain.EditRecord{
		Timestamp:         now,
		PreviousAmount:    e.Amount,
		PreviousTimestamp: e.Timestamp,
	})
	e.Amount = amount
	e.Timestamp = at
	e.Exp = domain.EntryExp(amount)
	e.Edited = true

	l.state.SortHistory()
	// Only today's total is recomputed. TotalAmount is lifetime intake and
	// never moves backward; it grows on insert only.
	l.state.TodayAmount = l.state.SumHistory()

	earned := domain.CheckAchievements(l.state, l.streakDays)
	for _, a := range earned {
		l.state.Achievements = append(l.state.Achievements, a.ID)
	}

	if err := l.store.Save(l.state); err != nil {
		l.state = prev
		observability.StorageErrors.WithLabelValues(storageKind(err)).Inc()
		return err
	}

	observability.EntriesRecorded.WithLabelValues("edit").Inc()
	l.publishGauges()
	l.events.DataChanged(*l.state.Clone())
	for _, a := range earned {
		observability.AchievementsUnlocked.Inc()
		l.events.AchievementUnlocked(a)
	}
	if prev.TodayAmount < l.state.DailyGoal && l.state.TodayAmount >= l.state.DailyGoal {
		l.events.DailyGoalComplete(l.state.TodayAmount, l.state.DailyGoal)
	}
	l.enqueueProgress(ctx)
	for _, a := range earned {
		l.enqueueAchievement(ctx, a.ID)
	}
	return nil
}

// ─── Delete ─────────────────────────────────────────────────────────────────

// Delete removes an entry. Today's total is recomputed and achievements are
// re-checked; experience, level, and the lifetime total keep their values.
func (l *Ledger) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if err := l.rolloverLocked(now); err != nil {
		return err
	}

	idx := l.findEntry(id)
	if idx < 0 {
		return domain.ErrEntryNotFound
	}

	prev := l.state.Clone()
	l.state.History = append(l.state.History[:idx], l.state.History[idx+1:]...)
	// TotalAmount keeps the removed entry: lifetime intake never decreases.
	l.state.TodayAmount = l.state.SumHistory()

	earned := domain.CheckAchievements(l.state, l.streakDays)
	for _, a := range earned {
		l.state.Achievements = append(l.state.Achievements, a.ID)
	}

	if err := l.store.Save(l.state); err != nil {
		l.state = prev
		observability.StorageErrors.WithLabelValues(storageKind(err)).Inc()
		return err
	}

	observability.EntriesRecorded.WithLabelValues("delete").Inc()
	l.publishGauges()
	l.events.DataChanged(*l.state.Clone())
	for _, a := range earned {
		observability.AchievementsUnlocked.Inc()
		l.events.AchievementUnlocked(a)
	}
	l.enqueueProgress(ctx)
	for _, a := range earned {
		l.enqueueAchievement(ctx, a.ID)
	}
	return nil
}

// ─── Day Rollover ───────────────────────────────────────────────────────────

// Rollover archives the previous day and resets today's ledger if the
// calendar day changed. Safe to call at any time; it is also run before
// every mutation.
func (l *Ledger) Rollover() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.rolloverLocked(l.clock.Now()); err != nil {
		return err
	}
	l.publishGauges()
	return nil
}

func (l *Ledger) rolloverLocked(now time.Time) error {
	today := domain.Today(now)
	last := l.store.LastActiveDay()
	if last == today {
		return nil
	}

	if last != "" {
		// Archive the day the marker names, not literally "yesterday" — the
		// device may have been off for several days.
		if err := l.store.ArchiveDay(last, l.state.TodayAmount); err != nil {
			return fmt.Errorf("archive %s: %w", last, err)
		}
		l.state.TodayAmount = 0
		l.state.History = []domain.Entry{}
		if err := l.store.Save(l.state); err != nil {
			return fmt.Errorf("save after rollover: %w", err)
		}
		l.events.DataChanged(*l.state.Clone())
	}
	return l.store.SetLastActiveDay(today)
}

// ─── Settings / Session Hooks ───────────────────────────────────────────────

// SetDailyGoal updates the goal on the live state and persists it.
func (l *Ledger) SetDailyGoal(ctx context.Context, goal int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if goal < domain.MinDailyGoal || goal > domain.MaxDailyGoal {
		return &domain.ValidationError{
			Field:  "dailyGoal",
			Reason: fmt.Sprintf("%d outside %d..%d", goal, domain.MinDailyGoal, domain.MaxDailyGoal),
		}
	}
	l.state.DailyGoal = goal
	if err := l.store.Save(l.state); err != nil {
		observability.StorageErrors.WithLabelValues(storageKind(err)).Inc()
		return err
	}
	l.events.DataChanged(*l.state.Clone())
	l.enqueueProgress(ctx)
	return nil
}

// Replace swaps in a new state wholesale. Used by the session manager after
// merging a remote snapshot and by backup restore.
func (l *Ledger) Replace(gs *domain.GameState) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.Save(gs); err != nil {
		observability.StorageErrors.WithLabelValues(storageKind(err)).Inc()
		return err
	}
	l.state = gs.Clone()
	l.publishGauges()
	l.events.DataChanged(*l.state.Clone())
	return nil
}

// Reset returns the ledger to a fresh default state. Used by the destructive
// sign-out; the caller wipes the store first.
func (l *Ledger) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	fresh := domain.DefaultGameState(now)
	if err := l.store.Save(fresh); err != nil {
		observability.StorageErrors.WithLabelValues(storageKind(err)).Inc()
		return err
	}
	if err := l.store.SetLastActiveDay(domain.Today(now)); err != nil {
		return err
	}
	l.state = fresh
	l.streakDays = 0
	l.publishGauges()
	l.events.DataChanged(*l.state.Clone())
	return nil
}

// ─── Internals ──────────────────────────────────────────────────────────────

func (l *Ledger) findEntry(id string) int {
	for i := range l.state.History {
		if l.state.History[i].ID == id {
			return i
		}
	}
	return -1
}

func (l *Ledger) enqueueRecord(ctx context.Context, e domain.Entry) {
	err := l.queue.EnqueueRecord(ctx, domain.RecordPayload{
		Amount:     e.Amount,
		RecordedAt: e.Timestamp,
	})
	if err != nil {
		log.Printf("ledger: queue record: %v", err)
	}
}

func (l *Ledger) enqueueProgress(ctx context.Context) {
	err := l.queue.EnqueueProgress(ctx, domain.ProgressPayload{
		Level:       l.state.Level,
		Exp:         l.state.Exp,
		MaxExp:      l.state.MaxExp,
		TotalAmount: l.state.TotalAmount,
		DailyGoal:   l.state.DailyGoal,
	})
	if err != nil {
		log.Printf("ledger: queue progress: %v", err)
	}
}

func (l *Ledger) enqueueAchievement(ctx context.Context, id string) {
	err := l.queue.EnqueueAchievement(ctx, domain.AchievementPayload{AchievementID: id})
	if err != nil {
		log.Printf("ledger: queue achievement: %v", err)
	}
}

func (l *Ledger) publishGauges() {
	observability.CurrentLevel.Set(float64(l.state.Level))
	observability.TodayAmount.Set(float64(l.state.TodayAmount))
}

func validateAmount(amount int) error {
	if amount < domain.MinEntryAmount || amount > domain.MaxEntryAmount {
		return &domain.ValidationError{
			Field:  "amount",
			Reason: fmt.Sprintf("%d outside %d..%d", amount, domain.MinEntryAmount, domain.MaxEntryAmount),
		}
	}
	return nil
}

func validateTimestamp(at, now time.Time) error {
	if at.After(now) {
		return &domain.ValidationError{Field: "timestamp", Reason: "in the future"}
	}
	if !domain.SameDay(at, now) {
		return &domain.ValidationError{Field: "timestamp", Reason: "not on the current day"}
	}
	return nil
}

func storageKind(err error) string {
	var se *domain.StorageError
	if errors.As(err, &se) && se.Kind == domain.StorageQuotaExceeded {
		return "quota"
	}
	return "unavailable"
}
