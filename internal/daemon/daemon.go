package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/droplog/droplog/internal/api"
	"github.com/droplog/droplog/internal/app/export"
	"github.com/droplog/droplog/internal/app/ledger"
	"github.com/droplog/droplog/internal/app/session"
	"github.com/droplog/droplog/internal/app/syncqueue"
	"github.com/droplog/droplog/internal/domain"
	"github.com/droplog/droplog/internal/infra/sqlite"
	"github.com/droplog/droplog/internal/infra/supabase"
	"github.com/droplog/droplog/internal/store"
)

// Daemon is the assembled application: storage, services, and HTTP server.
type Daemon struct {
	cfg     *Config
	db      *sqlite.DB
	Store   *store.Store
	Queue   *syncqueue.Queue
	Ledger  *ledger.Ledger
	Session *session.Manager
	Export  *export.Service
	server  *http.Server
}

// New wires the daemon from configuration.
func New(cfg *Config) (*Daemon, error) {
	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return nil, err
	}
	db, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	clock := domain.SystemClock{}
	st := store.New(db, clock)

	var remote domain.RemoteStore
	if cfg.Remote.Enabled {
		remote = supabase.New(cfg.SupabaseConfig(), clock)
	} else {
		remote = disabledRemote{}
	}

	queue, err := syncqueue.New(db, remote, clock)
	if err != nil {
		db.Close()
		return nil, err
	}

	events := &domain.Multicaster{}
	events.Subscribe(logEvents{})

	led, err := ledger.New(st, queue, events, clock)
	if err != nil {
		db.Close()
		return nil, err
	}

	// Fresh profiles pick up the configured goal.
	if gs := led.State(); len(gs.History) == 0 && gs.TotalAmount == 0 &&
		cfg.Game.DailyGoal != gs.DailyGoal &&
		cfg.Game.DailyGoal >= domain.MinDailyGoal && cfg.Game.DailyGoal <= domain.MaxDailyGoal {
		if err := led.SetDailyGoal(context.Background(), cfg.Game.DailyGoal); err != nil {
			log.Printf("daemon: apply configured goal: %v", err)
		}
	}

	mgr := session.New(remote, led, st, queue, clock, cfg.Remote.Enabled)
	exp := export.New(led, st, clock)

	d := &Daemon{
		cfg:     cfg,
		db:      db,
		Store:   st,
		Queue:   queue,
		Ledger:  led,
		Session: mgr,
		Export:  exp,
	}
	return d, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	srv := api.NewServer(d.Ledger, d.Queue, d.Session, d.Export, d.Store)
	if d.cfg.API.Metrics {
		srv.EnableMetrics()
	}

	addr := fmt.Sprintf("%s:%d", d.cfg.API.Host, d.cfg.API.Port)
	d.server = &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("daemon: listening on http://%s", addr)
		errCh <- d.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		d.server.Shutdown(shutdownCtx)
		d.db.Close()
		return nil
	case err := <-errCh:
		d.db.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Close releases the database. Only for daemons that never Run.
func (d *Daemon) Close() error {
	return d.db.Close()
}

// disabledRemote stands in when sync is not configured. Mutations queue up
// and stay queued; enabling sync later drains them.
type disabledRemote struct{}

var errSyncDisabled = errors.New("remote sync is not configured")

func (disabledRemote) SignIn(ctx context.Context, email, password string) (string, error) {
	return "", errSyncDisabled
}
func (disabledRemote) SignOut(ctx context.Context) error { return errSyncDisabled }
func (disabledRemote) LoadSnapshot(ctx context.Context, userID string) (*domain.RemoteSnapshot, error) {
	return nil, errSyncDisabled
}
func (disabledRemote) InsertRecord(ctx context.Context, userID string, p domain.RecordPayload) error {
	return errSyncDisabled
}
func (disabledRemote) UpsertProgress(ctx context.Context, userID string, p domain.ProgressPayload) error {
	return errSyncDisabled
}
func (disabledRemote) UnlockAchievement(ctx context.Context, userID string, p domain.AchievementPayload) error {
	return errSyncDisabled
}
func (disabledRemote) TodayAmount(ctx context.Context, userID string) (int, error) {
	return 0, errSyncDisabled
}
func (disabledRemote) StreakDays(ctx context.Context, userID string) (int, error) {
	return 0, errSyncDisabled
}
func (disabledRemote) RecentStats(ctx context.Context, userID string, days int) ([]domain.DayTotal, error) {
	return nil, errSyncDisabled
}

// logEvents mirrors notable events into the process log.
type logEvents struct{}

func (logEvents) DataChanged(domain.GameState) {}
func (logEvents) LevelUp(level int) {
	stage := domain.StageForLevel(level)
	log.Printf("level up: %d (%s %s)", level, stage.Emoji, stage.Name)
}
func (logEvents) AchievementUnlocked(a domain.Achievement) {
	log.Printf("achievement unlocked: %s %s", a.Icon, a.Name)
}
func (logEvents) DailyGoalComplete(amount, goal int) {
	log.Printf("daily goal reached: %d/%d ml", amount, goal)
}
