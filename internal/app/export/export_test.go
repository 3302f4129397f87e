package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/droplog/droplog/internal/app/ledger"
	"github.com/droplog/droplog/internal/app/syncqueue"
	"github.com/droplog/droplog/internal/domain"
	"github.com/droplog/droplog/internal/infra/sqlite"
	"github.com/droplog/droplog/internal/store"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type offlineRemote struct{}

func (offlineRemote) SignIn(ctx context.Context, email, password string) (string, error) {
	return "", errors.New("offline")
}
func (offlineRemote) SignOut(ctx context.Context) error { return nil }
func (offlineRemote) LoadSnapshot(ctx context.Context, userID string) (*domain.RemoteSnapshot, error) {
	return nil, errors.New("offline")
}
func (offlineRemote) InsertRecord(ctx context.Context, userID string, p domain.RecordPayload) error {
	return errors.New("offline")
}
func (offlineRemote) UpsertProgress(ctx context.Context, userID string, p domain.ProgressPayload) error {
	return errors.New("offline")
}
func (offlineRemote) UnlockAchievement(ctx context.Context, userID string, p domain.AchievementPayload) error {
	return errors.New("offline")
}
func (offlineRemote) TodayAmount(ctx context.Context, userID string) (int, error) { return 0, nil }
func (offlineRemote) StreakDays(ctx context.Context, userID string) (int, error)  { return 0, nil }
func (offlineRemote) RecentStats(ctx context.Context, userID string, days int) ([]domain.DayTotal, error) {
	return nil, nil
}

type env struct {
	svc    *Service
	ledger *ledger.Ledger
	store  *store.Store
	clock  *fakeClock
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clock := &fakeClock{now: time.Date(2026, 9, 1, 14, 0, 0, 0, time.UTC)}
	st := store.New(db, clock)
	q, err := syncqueue.New(db, offlineRemote{}, clock)
	if err != nil {
		t.Fatal(err)
	}
	l, err := ledger.New(st, q, nil, clock)
	if err != nil {
		t.Fatal(err)
	}
	return &env{svc: New(l, st, clock), ledger: l, store: st, clock: clock}
}

// ─── Backup Tests ───────────────────────────────────────────────────────────

func TestBackup_RoundTrip(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.ledger.Insert(ctx, 500, time.Time{})
	e.ledger.Insert(ctx, 300, time.Time{})
	e.store.ArchiveDay("2026-08-31", 2200)
	settings := domain.DefaultSettings()
	settings.DailyGoal = 3000
	e.store.SaveSettings(settings)

	var buf bytes.Buffer
	if err := e.svc.WriteBackup(&buf); err != nil {
		t.Fatalf("WriteBackup() error = %v", err)
	}

	var doc Backup
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("backup is not valid JSON: %v", err)
	}
	if doc.Version != "2.0" {
		t.Errorf("version = %q, want 2.0", doc.Version)
	}
	if doc.Metadata.TotalDays != 1 || doc.Metadata.TotalAmount != 800 {
		t.Errorf("metadata = %+v", doc.Metadata)
	}
	if doc.Metadata.AchievementsCount == 0 {
		t.Error("metadata should count unlocked achievements")
	}

	// Restore into a fresh environment.
	e2 := newEnv(t)
	if err := e2.svc.Restore(buf.Bytes()); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	gs := e2.ledger.State()
	if gs.TodayAmount != 800 || len(gs.History) != 2 {
		t.Errorf("restored today %d with %d entries, want 800 and 2", gs.TodayAmount, len(gs.History))
	}
	if e2.store.LoadSettings().DailyGoal != 3000 {
		t.Errorf("restored goal = %d, want 3000", e2.store.LoadSettings().DailyGoal)
	}
	if got, _ := e2.store.DayTotal("2026-08-31"); got != 2200 {
		t.Errorf("restored archive = %d, want 2200", got)
	}
	if e2.store.LastActiveDay() != "2026-09-01" {
		t.Errorf("day marker = %q, want reset to today", e2.store.LastActiveDay())
	}
}

func TestRestore_RejectsNewerVersion(t *testing.T) {
	e := newEnv(t)
	doc := `{"version":"3.0","gameData":{"level":1,"exp":0,"maxExp":100,"todayAmount":0,"dailyGoal":2000,"totalAmount":0}}`
	if err := e.svc.Restore([]byte(doc)); !errors.Is(err, domain.ErrBackupVersion) {
		t.Errorf("Restore(v3.0) error = %v, want ErrBackupVersion", err)
	}
}

func TestRestore_RejectsMalformed(t *testing.T) {
	e := newEnv(t)

	cases := map[string]string{
		"not json":          `{broken`,
		"missing version":   `{"gameData":{"level":1,"maxExp":100}}`,
		"missing game data": `{"version":"2.0"}`,
		"invalid game data": `{"version":"2.0","gameData":{"level":0,"maxExp":100}}`,
	}
	for name, doc := range cases {
		if err := e.svc.Restore([]byte(doc)); !domain.IsValidation(err) {
			t.Errorf("%s: error = %v, want ValidationError", name, err)
		}
	}
}

func TestRestore_FailureLeavesStateIntact(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.ledger.Insert(ctx, 650, time.Time{})

	e.svc.Restore([]byte(`{broken`))

	if got := e.ledger.State().TodayAmount; got != 650 {
		t.Errorf("TodayAmount after failed restore = %d, want 650", got)
	}
}

// ─── CSV Tests ──────────────────────────────────────────────────────────────

func TestWriteCSV(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.clock.now = time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	e.ledger.Insert(ctx, 500, time.Time{})
	e.clock.now = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	e.ledger.Insert(ctx, 1600, time.Time{}) // crosses the goal: two achievements
	e.clock.now = time.Date(2026, 9, 1, 14, 0, 0, 0, time.UTC)
	e.store.ArchiveDay("2026-08-31", 2100)
	e.store.ArchiveDay("2026-08-20", 1800) // outside a 7-day range

	var buf bytes.Buffer
	if err := e.svc.WriteCSV(&buf, 7); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	out := buf.String()

	if !strings.HasPrefix(out, "\uFEFF") {
		t.Error("CSV must start with a UTF-8 BOM")
	}
	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(out, "\uFEFF")), "\n")
	if lines[0] != "date,time,amount,exp,level,achievements" {
		t.Errorf("header = %q", lines[0])
	}
	// Header + two entry rows (newest first) + one archived day in range.
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[1], "2026-09-01,10:00,1600,160,2,") {
		t.Errorf("first entry row = %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "2026-09-01,09:00,500,50,2,") {
		t.Errorf("second entry row = %q", lines[2])
	}
	if !strings.HasPrefix(lines[3], "2026-08-31,,2100,") {
		t.Errorf("archived row = %q", lines[3])
	}
	if strings.Contains(out, "2026-08-20") {
		t.Error("day outside the range must be excluded")
	}
	// Two unlocked achievements join with a comma, forcing quoting.
	if !strings.Contains(lines[1], `"`) {
		t.Errorf("achievements column should be quoted: %q", lines[1])
	}
}
