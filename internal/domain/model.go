// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of the application — it depends on nothing.
package domain

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"time"
)

// SchemaVersion is stamped into every persisted snapshot and backup document.
const SchemaVersion = "2.0"

// ─── Game State ─────────────────────────────────────────────────────────────

// GameState is the single per-user aggregate of progress, goals, and today's
// ledger. One instance exists per device; every mutation goes through the
// ledger service so the aggregates stay consistent.
type GameState struct {
	Level        int      `json:"level"`
	Exp          int      `json:"exp"`
	MaxExp       int      `json:"maxExp"`
	TodayAmount  int      `json:"todayAmount"`
	DailyGoal    int      `json:"dailyGoal"`
	TotalAmount  int      `json:"totalAmount"`
	History      []Entry  `json:"history"`
	Achievements []string `json:"achievements"`
	Metadata     Metadata `json:"metadata"`
}

// Metadata carries snapshot bookkeeping.
type Metadata struct {
	Version     string    `json:"version"`
	CreatedAt   time.Time `json:"createdAt"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// DefaultGameState returns a freshly initialized state for a new user.
func DefaultGameState(now time.Time) *GameState {
	return &GameState{
		Level:        1,
		Exp:          0,
		MaxExp:       100,
		TodayAmount:  0,
		DailyGoal:    2000,
		TotalAmount:  0,
		History:      []Entry{},
		Achievements: []string{},
		Metadata: Metadata{
			Version:     SchemaVersion,
			CreatedAt:   now,
			LastUpdated: now,
		},
	}
}

// Clone returns a deep copy. Callers outside the ledger only ever see copies.
func (g *GameState) Clone() *GameState {
	out := *g
	out.History = make([]Entry, len(g.History))
	for i, e := range g.History {
		out.History[i] = e
		if len(e.EditHistory) > 0 {
			out.History[i].EditHistory = append([]EditRecord(nil), e.EditHistory...)
		}
	}
	out.Achievements = append([]string(nil), g.Achievements...)
	return &out
}

// SumHistory returns the sum of all entry amounts in the ledger.
func (g *GameState) SumHistory() int {
	var total int
	for _, e := range g.History {
		total += e.Amount
	}
	return total
}

// SortHistory restores the descending-timestamp invariant. The sort is
// stable so entries with equal timestamps keep their insertion order.
func (g *GameState) SortHistory() {
	sort.SliceStable(g.History, func(i, j int) bool {
		return g.History[i].Timestamp.After(g.History[j].Timestamp)
	})
}

// HasAchievement reports whether the given achievement id is unlocked.
func (g *GameState) HasAchievement(id string) bool {
	for _, a := range g.Achievements {
		if a == id {
			return true
		}
	}
	return false
}

// ─── Entries ────────────────────────────────────────────────────────────────

// Amount bounds for a single intake entry, in milliliters.
const (
	MinEntryAmount = 1
	MaxEntryAmount = 10000
)

// Entry is one recorded intake event. Entries are owned exclusively by
// GameState.History; they are mutated in place on edit with the prior
// values retained in EditHistory.
type Entry struct {
	ID          string       `json:"id"`
	Timestamp   time.Time    `json:"timestamp"`
	Amount      int          `json:"amount"`
	Exp         int          `json:"exp"`
	Edited      bool         `json:"edited"`
	EditHistory []EditRecord `json:"editHistory,omitempty"`
}

// EditRecord is a snapshot of an entry's pre-edit values.
type EditRecord struct {
	Timestamp         time.Time `json:"timestamp"`
	PreviousAmount    int       `json:"previousAmount"`
	PreviousTimestamp time.Time `json:"previousTimestamp"`
}

// EntryExp derives experience from an intake amount: floor(amount/10).
func EntryExp(amount int) int {
	return amount / 10
}

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewEntryID generates an opaque unique entry id from the millisecond
// timestamp plus a random suffix.
func NewEntryID(now time.Time) string {
	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = idAlphabet[rand.IntN(len(idAlphabet))]
	}
	return fmt.Sprintf("entry_%d_%s", now.UnixMilli(), suffix)
}

// ─── Settings ───────────────────────────────────────────────────────────────

// Settings are user preferences persisted alongside the game snapshot.
type Settings struct {
	DailyGoal     int                  `json:"dailyGoal"`
	QuickButtons  []int                `json:"quickButtons"`
	Notifications NotificationSettings `json:"notifications"`
	Theme         string               `json:"theme"`
	Language      string               `json:"language"`
}

// NotificationSettings configures reminder scheduling. The schedule holds at
// most MaxNotificationSlots HH:MM entries.
type NotificationSettings struct {
	Enabled  bool     `json:"enabled"`
	Schedule []string `json:"schedule"`
}

// Daily goal bounds and notification slot limit, from the product rules.
const (
	MinDailyGoal         = 1000
	MaxDailyGoal         = 5000
	MaxNotificationSlots = 8
)

// DefaultSettings returns the initial preference set.
func DefaultSettings() *Settings {
	return &Settings{
		DailyGoal:    2000,
		QuickButtons: []int{250, 500, 100},
		Notifications: NotificationSettings{
			Enabled:  false,
			Schedule: []string{},
		},
		Theme:    "auto",
		Language: "zh-TW",
	}
}

// ─── Session ────────────────────────────────────────────────────────────────

// Session tracks authentication and connectivity. It is never persisted; it
// is rebuilt at process start from the remote handshake and the runtime's
// connectivity signal.
type Session struct {
	UserID string `json:"user_id,omitempty"`
	Online bool   `json:"online"`
}

// Authenticated reports whether a user is signed in.
func (s Session) Authenticated() bool { return s.UserID != "" }

// ─── Remote Snapshot ────────────────────────────────────────────────────────

// RemoteSnapshot is what the remote store returns for a user on sign-in.
// Any field may be nil/empty when the remote has no data yet.
type RemoteSnapshot struct {
	Progress     *ProgressPayload `json:"progress,omitempty"`
	Settings     *Settings        `json:"settings,omitempty"`
	TodayRecords []RecordPayload  `json:"today_records,omitempty"`
	Achievements []string         `json:"achievements,omitempty"`
}

// DayTotal is one archived day's aggregate, used by exports and the remote
// recent-stats RPC.
type DayTotal struct {
	Date   string `json:"date"` // YYYY-MM-DD
	Amount int    `json:"amount"`
}
