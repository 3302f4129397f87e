// Package session manages authentication and connectivity: the sign-in
// merge of remote data into the local state, the destructive sign-out
// reset, and the offline-to-online transition that drains the sync queue.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/droplog/droplog/internal/app/ledger"
	"github.com/droplog/droplog/internal/app/syncqueue"
	"github.com/droplog/droplog/internal/domain"
	"github.com/droplog/droplog/internal/store"
)

// Manager owns the session and pushes every transition into the sync queue
// so drain gating always reflects the current auth and connectivity state.
type Manager struct {
	mu     sync.Mutex
	remote domain.RemoteStore
	ledger *ledger.Ledger
	store  *store.Store
	queue  *syncqueue.Queue
	clock  domain.Clock

	session domain.Session
}

// New creates a manager. The session starts anonymous; connectivity starts
// in the given state.
func New(remote domain.RemoteStore, l *ledger.Ledger, st *store.Store, q *syncqueue.Queue, clock domain.Clock, online bool) *Manager {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	m := &Manager{
		remote:  remote,
		ledger:  l,
		store:   st,
		queue:   q,
		clock:   clock,
		session: domain.Session{Online: online},
	}
	q.SetSession(m.session)
	return m
}

// Current returns the session.
func (m *Manager) Current() domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// SetOnline updates connectivity. The offline-to-online transition drains
// the queue when a user is signed in.
func (m *Manager) SetOnline(ctx context.Context, online bool) {
	m.mu.Lock()
	wasOnline := m.session.Online
	m.session.Online = online
	m.queue.SetSession(m.session)
	drain := !wasOnline && online && m.session.Authenticated()
	m.mu.Unlock()

	if drain {
		m.queue.Drain(ctx)
	}
}

// ─── Sign In ────────────────────────────────────────────────────────────────

// SignIn authenticates, merges the remote snapshot into the local state,
// and drains any queued mutations.
//
// Merge rules: remote progress overwrites local progress; achievements are
// the union of both sides; today's history is replaced by the remote
// records for today; remote settings, when present, replace local ones.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID, err := m.remote.SignIn(ctx, email, password)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	m.session.UserID = userID
	m.queue.SetSession(m.session)

	snap, err := m.remote.LoadSnapshot(ctx, userID)
	if err != nil {
		// Signed in but the snapshot fetch failed: keep local state, the
		// queue will reconcile once the remote is reachable.
		log.Printf("session: snapshot load failed, continuing local-first: %v", err)
		m.drainLocked(ctx)
		return nil
	}

	merged := m.mergeSnapshot(snap)
	if err := m.ledger.Replace(merged); err != nil {
		return fmt.Errorf("apply remote snapshot: %w", err)
	}
	if snap.Settings != nil {
		if err := m.store.SaveSettings(snap.Settings); err != nil {
			log.Printf("session: save remote settings: %v", err)
		}
	}

	if days, err := m.remote.StreakDays(ctx, userID); err == nil {
		m.ledger.SetStreakDays(days)
	}

	m.drainLocked(ctx)
	return nil
}

// mergeSnapshot folds the remote snapshot into a copy of the local state.
func (m *Manager) mergeSnapshot(snap *domain.RemoteSnapshot) *domain.GameState {
	gs := m.ledger.State()
	now := m.clock.Now()

	if p := snap.Progress; p != nil {
		gs.Level = p.Level
		gs.Exp = p.Exp
		gs.MaxExp = p.MaxExp
		gs.TotalAmount = p.TotalAmount
		if p.DailyGoal != 0 {
			gs.DailyGoal = p.DailyGoal
		}
	}

	for _, id := range snap.Achievements {
		if !gs.HasAchievement(id) {
			gs.Achievements = append(gs.Achievements, id)
		}
	}

	if snap.TodayRecords != nil {
		history := make([]domain.Entry, 0, len(snap.TodayRecords))
		today := 0
		for _, r := range snap.TodayRecords {
			history = append(history, domain.Entry{
				ID:        domain.NewEntryID(now),
				Timestamp: r.RecordedAt,
				Amount:    r.Amount,
				Exp:       domain.EntryExp(r.Amount),
			})
			today += r.Amount
		}
		gs.History = history
		gs.SortHistory()
		gs.TodayAmount = today
	}

	return gs
}

func (m *Manager) drainLocked(ctx context.Context) {
	if m.session.Online {
		m.queue.Drain(ctx)
	}
}

// ─── Sign Out ───────────────────────────────────────────────────────────────

// SignOut ends the session and destroys all local data: the snapshot, the
// day archive, settings, and every queued mutation. Unsynced local progress
// is gone after this call; the next user starts from defaults.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.session.Authenticated() {
		return domain.ErrNotAuthenticated
	}

	// Token invalidation is best effort: a dead network must not block the
	// local wipe.
	if err := m.remote.SignOut(ctx); err != nil {
		log.Printf("session: remote sign-out: %v", err)
	}

	if err := m.queue.Clear(); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	if err := m.store.Wipe(); err != nil {
		return fmt.Errorf("wipe store: %w", err)
	}
	if err := m.ledger.Reset(); err != nil {
		return fmt.Errorf("reset ledger: %w", err)
	}

	m.session.UserID = ""
	m.queue.SetSession(m.session)
	return nil
}
