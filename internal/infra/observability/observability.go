// Package observability holds the Prometheus metrics for the local-first
// core: ledger mutations, sync queue health, and storage failures.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Ledger Metrics ─────────────────────────────────────────────────────────

// EntriesRecorded tracks total intake entries by mutation kind.
var EntriesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "droplog",
	Subsystem: "ledger",
	Name:      "mutations_total",
	Help:      "Total ledger mutations by kind (insert, edit, delete).",
}, []string{"kind"})

// CurrentLevel tracks the user's current level.
var CurrentLevel = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "droplog",
	Subsystem: "ledger",
	Name:      "level",
	Help:      "Current user level.",
})

// TodayAmount tracks today's recorded intake in milliliters.
var TodayAmount = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "droplog",
	Subsystem: "ledger",
	Name:      "today_amount_ml",
	Help:      "Today's total recorded intake in milliliters.",
})

// AchievementsUnlocked tracks total achievement unlocks.
var AchievementsUnlocked = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "droplog",
	Subsystem: "ledger",
	Name:      "achievements_unlocked_total",
	Help:      "Total achievements unlocked on this device.",
})

// ─── Sync Queue Metrics ─────────────────────────────────────────────────────

// QueueDepth tracks the number of pending remote mutations.
var QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "droplog",
	Subsystem: "sync",
	Name:      "queue_depth",
	Help:      "Current number of pending remote mutations.",
})

// DrainItems tracks drained items by outcome.
var DrainItems = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "droplog",
	Subsystem: "sync",
	Name:      "drain_items_total",
	Help:      "Queue items processed during drains by outcome (applied, duplicate, failed).",
}, []string{"outcome"})

// Drains tracks drain runs by result.
var Drains = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "droplog",
	Subsystem: "sync",
	Name:      "drains_total",
	Help:      "Total drain runs by result (complete, stopped).",
}, []string{"result"})

// ─── Storage Metrics ────────────────────────────────────────────────────────

// StorageErrors tracks persistence failures by kind.
var StorageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "droplog",
	Subsystem: "storage",
	Name:      "errors_total",
	Help:      "Total storage failures by kind (quota, unavailable).",
}, []string{"kind"})
