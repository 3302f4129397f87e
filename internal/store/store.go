// Package store implements the durable local snapshot of user progress:
// load with default-merge upgrade, validated save, the last-active-day
// marker, per-date archives, settings, and the destructive wipe used at
// sign-out.
package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/droplog/droplog/internal/domain"
	"github.com/droplog/droplog/internal/infra/sqlite"
)

// Persisted keys, namespaced so a wipe can clear them by prefix.
const (
	keyPrefix        = "droplog."
	keyGameState     = keyPrefix + "game_state"
	keyLastActiveDay = keyPrefix + "last_active_day"
	keySettings      = keyPrefix + "settings"
	keyOnboarding    = keyPrefix + "onboarding_complete"
)

// Store persists a single user's state. Load never fails to the caller:
// missing or corrupt data yields a freshly defaulted state.
type Store struct {
	db    *sqlite.DB
	clock domain.Clock
}

// New creates a store over an opened database.
func New(db *sqlite.DB, clock domain.Clock) *Store {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Store{db: db, clock: clock}
}

// ─── Game State ─────────────────────────────────────────────────────────────

// Load returns the persisted game state, upgraded with defaults for any
// missing fields. Corrupt or invalid snapshots are replaced by defaults —
// the worst outcome is lost progress, never a crash.
func (s *Store) Load() *GameStateLoad {
	now := s.clock.Now()
	fresh := domain.DefaultGameState(now)

	raw, ok, err := s.db.GetValue(keyGameState)
	if err != nil || !ok {
		return &GameStateLoad{State: fresh, Fresh: true}
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return &GameStateLoad{State: fresh, Fresh: true, Recovered: true}
	}

	// Forward-compatible upgrade: start from defaults, overlay whatever
	// fields the old snapshot carries. New fields gain default values; old
	// data is never dropped.
	merged, err := json.Marshal(fresh)
	if err != nil {
		return &GameStateLoad{State: fresh, Fresh: true, Recovered: true}
	}
	var doc map[string]json.RawMessage
	json.Unmarshal(merged, &doc)
	for k, v := range data {
		doc[k] = v
	}
	final, _ := json.Marshal(doc)

	var gs domain.GameState
	if err := json.Unmarshal(final, &gs); err != nil {
		return &GameStateLoad{State: fresh, Fresh: true, Recovered: true}
	}
	if err := Validate(&gs); err != nil {
		return &GameStateLoad{State: fresh, Fresh: true, Recovered: true}
	}
	if gs.History == nil {
		gs.History = []domain.Entry{}
	}
	if gs.Achievements == nil {
		gs.Achievements = []string{}
	}
	return &GameStateLoad{State: &gs}
}

// GameStateLoad is the result of Load.
type GameStateLoad struct {
	State *domain.GameState
	// Fresh is set when no usable snapshot existed.
	Fresh bool
	// Recovered is set when a snapshot existed but was corrupt or invalid.
	Recovered bool
}

// Save validates and persists the game state, stamping lastUpdated.
// Storage failures are surfaced as StorageError; the in-memory state is
// untouched by a failed save.
func (s *Store) Save(gs *domain.GameState) error {
	if err := Validate(gs); err != nil {
		return err
	}
	gs.Metadata.LastUpdated = s.clock.Now()
	if gs.Metadata.Version == "" {
		gs.Metadata.Version = domain.SchemaVersion
	}

	data, err := json.Marshal(gs)
	if err != nil {
		return &domain.StorageError{Kind: domain.StorageUnavailable, Err: err}
	}
	if err := s.db.SetValue(keyGameState, string(data)); err != nil {
		return storageErr(err)
	}
	return nil
}

// Validate enforces the snapshot shape: all required fields present with
// sane numeric ranges, history and achievements as sequences.
func Validate(gs *domain.GameState) error {
	if gs == nil {
		return &domain.ValidationError{Field: "gameState", Reason: "missing"}
	}
	if gs.Level < 1 || gs.Level > 100 {
		return &domain.ValidationError{Field: "level", Reason: fmt.Sprintf("%d outside 1..100", gs.Level)}
	}
	if gs.Exp < 0 {
		return &domain.ValidationError{Field: "exp", Reason: "negative"}
	}
	if gs.MaxExp < 1 {
		return &domain.ValidationError{Field: "maxExp", Reason: "below 1"}
	}
	if gs.TodayAmount < 0 {
		return &domain.ValidationError{Field: "todayAmount", Reason: "negative"}
	}
	if gs.TotalAmount < 0 {
		return &domain.ValidationError{Field: "totalAmount", Reason: "negative"}
	}
	return nil
}

// ─── Last Active Day ────────────────────────────────────────────────────────

// LastActiveDay returns the stored day marker (YYYY-MM-DD), or "" on first run.
func (s *Store) LastActiveDay() string {
	day, _, err := s.db.GetValue(keyLastActiveDay)
	if err != nil {
		return ""
	}
	return day
}

// SetLastActiveDay updates the day marker.
func (s *Store) SetLastActiveDay(day string) error {
	if err := s.db.SetValue(keyLastActiveDay, day); err != nil {
		return storageErr(err)
	}
	return nil
}

// ─── Day Archive ────────────────────────────────────────────────────────────

// ArchiveDay stores a finished day's total.
func (s *Store) ArchiveDay(day string, amount int) error {
	if err := s.db.UpsertDayTotal(day, amount); err != nil {
		return storageErr(err)
	}
	return nil
}

// DayTotal returns the archived total for a day, zero when absent.
func (s *Store) DayTotal(day string) (int, error) {
	amount, err := s.db.GetDayTotal(day)
	if err != nil {
		return 0, storageErr(err)
	}
	return amount, nil
}

// ArchivedDays returns every archived day, newest first.
func (s *Store) ArchivedDays() ([]domain.DayTotal, error) {
	rows, err := s.db.ListDayTotals()
	if err != nil {
		return nil, storageErr(err)
	}
	out := make([]domain.DayTotal, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.DayTotal{Date: r.Day, Amount: r.Amount})
	}
	return out, nil
}

// ─── Settings ───────────────────────────────────────────────────────────────

// LoadSettings returns persisted settings, or defaults when absent/corrupt.
func (s *Store) LoadSettings() *domain.Settings {
	raw, ok, err := s.db.GetValue(keySettings)
	if err != nil || !ok {
		return domain.DefaultSettings()
	}
	settings := domain.DefaultSettings()
	if err := json.Unmarshal([]byte(raw), settings); err != nil {
		return domain.DefaultSettings()
	}
	return settings
}

// SaveSettings validates and persists user preferences.
func (s *Store) SaveSettings(settings *domain.Settings) error {
	if settings.DailyGoal < domain.MinDailyGoal || settings.DailyGoal > domain.MaxDailyGoal {
		return &domain.ValidationError{
			Field:  "dailyGoal",
			Reason: fmt.Sprintf("%d outside %d..%d", settings.DailyGoal, domain.MinDailyGoal, domain.MaxDailyGoal),
		}
	}
	if len(settings.Notifications.Schedule) > domain.MaxNotificationSlots {
		return &domain.ValidationError{
			Field:  "notifications.schedule",
			Reason: fmt.Sprintf("more than %d slots", domain.MaxNotificationSlots),
		}
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return &domain.StorageError{Kind: domain.StorageUnavailable, Err: err}
	}
	if err := s.db.SetValue(keySettings, string(data)); err != nil {
		return storageErr(err)
	}
	return nil
}

// ─── Onboarding Flag ────────────────────────────────────────────────────────

// OnboardingComplete reports whether the first-run walkthrough finished.
func (s *Store) OnboardingComplete() bool {
	v, ok, err := s.db.GetValue(keyOnboarding)
	return err == nil && ok && v == "true"
}

// SetOnboardingComplete records walkthrough completion.
func (s *Store) SetOnboardingComplete() error {
	if err := s.db.SetValue(keyOnboarding, "true"); err != nil {
		return storageErr(err)
	}
	return nil
}

// ─── Wipe ───────────────────────────────────────────────────────────────────

// Wipe destroys the persisted snapshot, markers, settings, and the whole
// day archive. Used by the destructive sign-out reset.
func (s *Store) Wipe() error {
	if err := s.db.DeleteValuesWithPrefix(keyPrefix); err != nil {
		return storageErr(err)
	}
	if err := s.db.ClearDayArchive(); err != nil {
		return storageErr(err)
	}
	return nil
}

// storageErr classifies a driver failure into the two user-visible kinds.
func storageErr(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "full") || strings.Contains(msg, "quota") {
		return &domain.StorageError{Kind: domain.StorageQuotaExceeded, Err: err}
	}
	return &domain.StorageError{Kind: domain.StorageUnavailable, Err: err}
}
