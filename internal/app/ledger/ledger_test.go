package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/droplog/droplog/internal/app/syncqueue"
	"github.com/droplog/droplog/internal/domain"
	"github.com/droplog/droplog/internal/infra/sqlite"
	"github.com/droplog/droplog/internal/store"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

// eventLog records every notification for assertions.
type eventLog struct {
	changes      int
	levelUps     []int
	achievements []string
	goalHits     int
}

func (e *eventLog) DataChanged(domain.GameState) { e.changes++ }
func (e *eventLog) LevelUp(level int)            { e.levelUps = append(e.levelUps, level) }
func (e *eventLog) AchievementUnlocked(a domain.Achievement) {
	e.achievements = append(e.achievements, a.ID)
}
func (e *eventLog) DailyGoalComplete(amount, goal int) { e.goalHits++ }

type env struct {
	ledger *Ledger
	store  *store.Store
	queue  *syncqueue.Queue
	clock  *fakeClock
	events *eventLog
	db     *sqlite.DB
}

// nullRemote fails every mutation, so queued items stay queued.
type nullRemote struct{}

func (nullRemote) SignIn(ctx context.Context, email, password string) (string, error) {
	return "", errors.New("offline")
}
func (nullRemote) SignOut(ctx context.Context) error { return nil }
func (nullRemote) LoadSnapshot(ctx context.Context, userID string) (*domain.RemoteSnapshot, error) {
	return nil, errors.New("offline")
}
func (nullRemote) InsertRecord(ctx context.Context, userID string, p domain.RecordPayload) error {
	return errors.New("offline")
}
func (nullRemote) UpsertProgress(ctx context.Context, userID string, p domain.ProgressPayload) error {
	return errors.New("offline")
}
func (nullRemote) UnlockAchievement(ctx context.Context, userID string, p domain.AchievementPayload) error {
	return errors.New("offline")
}
func (nullRemote) TodayAmount(ctx context.Context, userID string) (int, error) { return 0, nil }
func (nullRemote) StreakDays(ctx context.Context, userID string) (int, error)  { return 0, nil }
func (nullRemote) RecentStats(ctx context.Context, userID string, days int) ([]domain.DayTotal, error) {
	return nil, nil
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clock := &fakeClock{now: time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)}
	st := store.New(db, clock)
	q, err := syncqueue.New(db, nullRemote{}, clock)
	if err != nil {
		t.Fatalf("syncqueue.New() error = %v", err)
	}
	events := &eventLog{}
	l, err := New(st, q, events, clock)
	if err != nil {
		t.Fatalf("ledger.New() error = %v", err)
	}
	return &env{ledger: l, store: st, queue: q, clock: clock, events: events, db: db}
}

func at(h, m int) time.Time {
	return time.Date(2026, 9, 1, h, m, 0, 0, time.UTC)
}

// ─── Insert Tests ───────────────────────────────────────────────────────────

func TestInsert_RecordsTwoEntries(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.clock.now = at(9, 0)
	if _, err := e.ledger.Insert(ctx, 500, time.Time{}); err != nil {
		t.Fatalf("Insert(500) error = %v", err)
	}
	e.clock.now = at(10, 0)
	if _, err := e.ledger.Insert(ctx, 250, time.Time{}); err != nil {
		t.Fatalf("Insert(250) error = %v", err)
	}

	gs := e.ledger.State()
	if gs.TodayAmount != 750 {
		t.Errorf("TodayAmount = %d, want 750", gs.TodayAmount)
	}
	if gs.TotalAmount != 750 {
		t.Errorf("TotalAmount = %d, want 750", gs.TotalAmount)
	}
	if gs.Exp != 75 {
		t.Errorf("Exp = %d, want 75", gs.Exp)
	}
	if len(gs.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(gs.History))
	}
	// Newest first.
	if gs.History[0].Amount != 250 || gs.History[1].Amount != 500 {
		t.Errorf("history order = [%d, %d], want [250, 500]",
			gs.History[0].Amount, gs.History[1].Amount)
	}
}

func TestInsert_AmountBounds(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for _, amount := range []int{0, -1, 10001} {
		if _, err := e.ledger.Insert(ctx, amount, time.Time{}); !domain.IsValidation(err) {
			t.Errorf("Insert(%d) error = %v, want ValidationError", amount, err)
		}
	}
	if _, err := e.ledger.Insert(ctx, 10000, time.Time{}); err != nil {
		t.Errorf("Insert(10000) error = %v, want accepted", err)
	}
	if _, err := e.ledger.Insert(ctx, 1, time.Time{}); err != nil {
		t.Errorf("Insert(1) error = %v, want accepted", err)
	}
}

func TestInsert_TimestampRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.clock.now = at(12, 0)

	if _, err := e.ledger.Insert(ctx, 100, at(13, 0)); !domain.IsValidation(err) {
		t.Errorf("future timestamp: error = %v, want ValidationError", err)
	}
	yesterday := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	if _, err := e.ledger.Insert(ctx, 100, yesterday); !domain.IsValidation(err) {
		t.Errorf("previous day: error = %v, want ValidationError", err)
	}
	if _, err := e.ledger.Insert(ctx, 100, at(9, 30)); err != nil {
		t.Errorf("earlier today: error = %v, want accepted", err)
	}
}

func TestInsert_RejectedInputLeavesStateUntouched(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	before := e.ledger.State()
	e.ledger.Insert(ctx, 20000, time.Time{})
	after := e.ledger.State()

	if after.TodayAmount != before.TodayAmount || len(after.History) != len(before.History) {
		t.Error("rejected insert must not change state")
	}
	if e.queue.Len() != 0 {
		t.Errorf("rejected insert queued %d items, want 0", e.queue.Len())
	}
}

func TestInsert_LevelUpAndEvents(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// 1000ml → 100 exp → exactly one level-up from the starting threshold.
	if _, err := e.ledger.Insert(ctx, 1000, time.Time{}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	gs := e.ledger.State()
	if gs.Level != 2 || gs.Exp != 0 || gs.MaxExp != 120 {
		t.Errorf("after 100 exp: level %d exp %d maxExp %d, want 2/0/120",
			gs.Level, gs.Exp, gs.MaxExp)
	}
	if len(e.events.levelUps) != 1 || e.events.levelUps[0] != 2 {
		t.Errorf("levelUps = %v, want [2]", e.events.levelUps)
	}
	if e.events.changes == 0 {
		t.Error("DataChanged never fired")
	}
}

func TestInsert_UnlocksAchievements(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.ledger.Insert(ctx, 250, time.Time{}); err != nil {
		t.Fatal(err)
	}
	gs := e.ledger.State()
	if !gs.HasAchievement(domain.AchFirstDrink) {
		t.Error("first insert should unlock first_drink")
	}
	if len(e.events.achievements) != 1 || e.events.achievements[0] != domain.AchFirstDrink {
		t.Errorf("achievement events = %v", e.events.achievements)
	}

	// Second insert must not re-unlock.
	e.ledger.Insert(ctx, 250, time.Time{})
	if len(e.events.achievements) != 1 {
		t.Errorf("achievement re-fired: %v", e.events.achievements)
	}
}

func TestInsert_DailyGoalCrossedOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.ledger.Insert(ctx, 1500, time.Time{})
	if e.events.goalHits != 0 {
		t.Fatalf("goal fired below threshold, hits = %d", e.events.goalHits)
	}
	e.ledger.Insert(ctx, 600, time.Time{}) // 2100 >= 2000
	if e.events.goalHits != 1 {
		t.Errorf("goalHits = %d, want 1", e.events.goalHits)
	}
	e.ledger.Insert(ctx, 300, time.Time{})
	if e.events.goalHits != 1 {
		t.Errorf("goal fired again past threshold, hits = %d", e.events.goalHits)
	}
}

func TestInsert_QueuesRecordAndProgress(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.ledger.Insert(ctx, 300, time.Time{})
	items := e.queue.Items()
	// record + progress + first_drink achievement
	if len(items) != 3 {
		t.Fatalf("queued %d items, want 3", len(items))
	}
	if items[0].Type != domain.QueueRecord || items[0].Record.Amount != 300 {
		t.Errorf("first item = %+v, want record 300", items[0])
	}
	if items[1].Type != domain.QueueProgress {
		t.Errorf("second item type = %s, want progress_update", items[1].Type)
	}
	if items[2].Type != domain.QueueAchievement || items[2].Achievement.AchievementID != domain.AchFirstDrink {
		t.Errorf("third item = %+v, want first_drink unlock", items[2])
	}
}

// ─── Edit Tests ─────────────────────────────────────────────────────────────

func TestEdit_RecomputesTodayKeepsProgress(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	entry, err := e.ledger.Insert(ctx, 1000, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	levelBefore := e.ledger.State().Level
	expBefore := e.ledger.State().Exp

	e.clock.now = at(11, 0)
	if err := e.ledger.Edit(ctx, entry.ID, 200, at(10, 0)); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}

	gs := e.ledger.State()
	if gs.TodayAmount != 200 {
		t.Errorf("TodayAmount = %d, want 200", gs.TodayAmount)
	}
	// Lifetime intake never moves backward; the original 1000ml stays counted.
	if gs.TotalAmount != 1000 {
		t.Errorf("TotalAmount = %d, want 1000", gs.TotalAmount)
	}
	// Progression never moves backward on edit.
	if gs.Level != levelBefore || gs.Exp != expBefore {
		t.Errorf("edit revised progress: level %d exp %d, want %d/%d",
			gs.Level, gs.Exp, levelBefore, expBefore)
	}

	got := gs.History[0]
	if !got.Edited || len(got.EditHistory) != 1 {
		t.Fatalf("entry = %+v, want edited with one edit record", got)
	}
	rec := got.EditHistory[0]
	if rec.PreviousAmount != 1000 {
		t.Errorf("PreviousAmount = %d, want 1000", rec.PreviousAmount)
	}
	if got.Exp != 20 {
		t.Errorf("entry exp = %d, want 20", got.Exp)
	}
}

func TestEdit_GoalCrossingUnlocksAchievement(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	entry, err := e.ledger.Insert(ctx, 100, time.Time{})
	if err != nil {
		t.Fatal(err)
	}

	// Correcting the amount to the full goal must unlock daily_goal right
	// away, not on the next insert.
	e.clock.now = at(10, 0)
	if err := e.ledger.Edit(ctx, entry.ID, 2000, at(9, 0)); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}

	gs := e.ledger.State()
	if !gs.HasAchievement(domain.AchDailyGoal) {
		t.Error("edit to goal amount should unlock daily_goal")
	}
	if len(e.events.achievements) != 2 || e.events.achievements[1] != domain.AchDailyGoal {
		t.Errorf("achievement events = %v, want [first_drink, daily_goal]", e.events.achievements)
	}
	if e.events.goalHits != 1 {
		t.Errorf("goalHits = %d, want 1", e.events.goalHits)
	}

	items := e.queue.Items()
	last := items[len(items)-1]
	if last.Type != domain.QueueAchievement || last.Achievement.AchievementID != domain.AchDailyGoal {
		t.Errorf("last queued item = %+v, want daily_goal unlock", last)
	}
}

func TestEdit_ReordersHistory(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.clock.now = at(9, 0)
	first, _ := e.ledger.Insert(ctx, 100, time.Time{})
	e.clock.now = at(10, 0)
	e.ledger.Insert(ctx, 200, time.Time{})

	// Move the 09:00 entry to 11:00: it becomes the newest.
	e.clock.now = at(12, 0)
	if err := e.ledger.Edit(ctx, first.ID, 100, at(11, 0)); err != nil {
		t.Fatal(err)
	}
	gs := e.ledger.State()
	if gs.History[0].ID != first.ID {
		t.Errorf("history head = %s, want moved entry %s", gs.History[0].ID, first.ID)
	}
	for i := 0; i < len(gs.History)-1; i++ {
		if gs.History[i].Timestamp.Before(gs.History[i+1].Timestamp) {
			t.Errorf("history not descending at %d", i)
		}
	}
}

func TestEdit_UnknownEntry(t *testing.T) {
	e := newEnv(t)
	err := e.ledger.Edit(context.Background(), "entry_missing", 100, e.clock.now)
	if !errors.Is(err, domain.ErrEntryNotFound) {
		t.Errorf("Edit(missing) error = %v, want ErrEntryNotFound", err)
	}
}

// ─── Delete Tests ───────────────────────────────────────────────────────────

func TestDelete_RecomputesTodayKeepsProgress(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	entry, _ := e.ledger.Insert(ctx, 1000, time.Time{})
	e.ledger.Insert(ctx, 500, time.Time{})
	levelBefore := e.ledger.State().Level

	if err := e.ledger.Delete(ctx, entry.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	gs := e.ledger.State()
	if gs.TodayAmount != 500 || len(gs.History) != 1 {
		t.Errorf("after delete: today %d, %d entries", gs.TodayAmount, len(gs.History))
	}
	// Lifetime intake keeps the deleted entry.
	if gs.TotalAmount != 1500 {
		t.Errorf("TotalAmount = %d, want 1500", gs.TotalAmount)
	}
	if gs.Level != levelBefore {
		t.Errorf("delete revised level to %d", gs.Level)
	}

	if err := e.ledger.Delete(ctx, entry.ID); !errors.Is(err, domain.ErrEntryNotFound) {
		t.Errorf("second delete error = %v, want ErrEntryNotFound", err)
	}
}

func TestDelete_LifetimeTotalNeverDecreases(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	entry, err := e.ledger.Insert(ctx, 1000, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.ledger.Delete(ctx, entry.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	gs := e.ledger.State()
	if gs.TodayAmount != 0 || len(gs.History) != 0 {
		t.Errorf("after delete: today %d, %d entries, want 0 and 0", gs.TodayAmount, len(gs.History))
	}
	if gs.TotalAmount != 1000 {
		t.Errorf("TotalAmount = %d, want 1000 (lifetime intake only grows)", gs.TotalAmount)
	}
	if gs.Level != 2 || gs.Exp != 0 {
		t.Errorf("delete revised progress: level %d exp %d, want 2/0", gs.Level, gs.Exp)
	}
}

// ─── Invariant Tests ────────────────────────────────────────────────────────

func TestTodayAmountAlwaysEqualsHistorySum(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	check := func(step string) {
		t.Helper()
		gs := e.ledger.State()
		if gs.TodayAmount != gs.SumHistory() {
			t.Errorf("%s: TodayAmount %d != history sum %d", step, gs.TodayAmount, gs.SumHistory())
		}
	}

	a, _ := e.ledger.Insert(ctx, 300, time.Time{})
	check("insert a")
	b, _ := e.ledger.Insert(ctx, 400, time.Time{})
	check("insert b")
	e.ledger.Edit(ctx, a.ID, 150, e.clock.now)
	check("edit a")
	e.ledger.Delete(ctx, b.ID)
	check("delete b")
}

// ─── Rollover Tests ─────────────────────────────────────────────────────────

func TestRollover_ArchivesAndResets(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.ledger.Insert(ctx, 1200, time.Time{})
	e.ledger.Insert(ctx, 900, time.Time{})

	// Next calendar day: first mutation triggers the rollover.
	e.clock.now = time.Date(2026, 9, 2, 7, 0, 0, 0, time.UTC)
	if _, err := e.ledger.Insert(ctx, 500, time.Time{}); err != nil {
		t.Fatalf("Insert() after midnight error = %v", err)
	}

	gs := e.ledger.State()
	if gs.TodayAmount != 500 || len(gs.History) != 1 {
		t.Errorf("after rollover: today %d, %d entries, want 500 and 1", gs.TodayAmount, len(gs.History))
	}
	if gs.TotalAmount != 2600 {
		t.Errorf("TotalAmount = %d, want 2600 (lifetime survives rollover)", gs.TotalAmount)
	}

	archived, err := e.store.DayTotal("2026-09-01")
	if err != nil || archived != 2100 {
		t.Errorf("archived total = %d, err %v, want 2100", archived, err)
	}
	if e.store.LastActiveDay() != "2026-09-02" {
		t.Errorf("day marker = %q, want 2026-09-02", e.store.LastActiveDay())
	}
}

func TestRollover_FirstRunOnlySetsMarker(t *testing.T) {
	e := newEnv(t)
	if e.store.LastActiveDay() != "2026-09-01" {
		t.Errorf("marker after first run = %q, want today", e.store.LastActiveDay())
	}
	if days, _ := e.store.ArchivedDays(); len(days) != 0 {
		t.Errorf("first run archived %d days, want 0", len(days))
	}
}

func TestRollover_MultiDayGapArchivesMarkedDay(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.ledger.Insert(ctx, 800, time.Time{})

	// Device off for three days; the total belongs to the marker day.
	e.clock.now = time.Date(2026, 9, 4, 9, 0, 0, 0, time.UTC)
	if err := e.ledger.Rollover(); err != nil {
		t.Fatalf("Rollover() error = %v", err)
	}
	if got, _ := e.store.DayTotal("2026-09-01"); got != 800 {
		t.Errorf("archived 2026-09-01 = %d, want 800", got)
	}
	if e.ledger.State().TodayAmount != 0 {
		t.Errorf("TodayAmount = %d, want 0", e.ledger.State().TodayAmount)
	}
}

// ─── Settings / Reset Tests ─────────────────────────────────────────────────

func TestSetDailyGoal(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if err := e.ledger.SetDailyGoal(ctx, 2500); err != nil {
		t.Fatalf("SetDailyGoal(2500) error = %v", err)
	}
	if e.ledger.State().DailyGoal != 2500 {
		t.Errorf("DailyGoal = %d, want 2500", e.ledger.State().DailyGoal)
	}
	if err := e.ledger.SetDailyGoal(ctx, 600); !domain.IsValidation(err) {
		t.Errorf("SetDailyGoal(600) error = %v, want ValidationError", err)
	}
}

func TestReset_ReturnsToDefaults(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.ledger.Insert(ctx, 1000, time.Time{})
	if err := e.ledger.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	gs := e.ledger.State()
	if gs.Level != 1 || gs.TodayAmount != 0 || len(gs.History) != 0 {
		t.Errorf("after reset: %+v", gs)
	}
}

func TestLedger_PersistsAcrossRestart(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.ledger.Insert(ctx, 750, time.Time{})

	l2, err := New(e.store, e.queue, &eventLog{}, e.clock)
	if err != nil {
		t.Fatalf("New() after restart error = %v", err)
	}
	gs := l2.State()
	if gs.TodayAmount != 750 || len(gs.History) != 1 {
		t.Errorf("restarted state: today %d, %d entries", gs.TodayAmount, len(gs.History))
	}
}
