package domain

// ─── Typed Events ───────────────────────────────────────────────────────────
// The ledger and session emit typed events; presentation layers subscribe.
// Nothing in the core ever reaches into a UI callback.

// Events receives state-change notifications. Implementations must be fast:
// they run synchronously inside the mutation that produced the event.
type Events interface {
	// DataChanged fires after any successful mutation, with a copy of the
	// new state.
	DataChanged(gs GameState)

	// LevelUp fires once per level gained.
	LevelUp(level int)

	// AchievementUnlocked fires when a locked achievement is earned.
	AchievementUnlocked(a Achievement)

	// DailyGoalComplete fires on the mutation that first crosses the goal.
	DailyGoalComplete(amount, goal int)
}

// NopEvents discards all notifications.
type NopEvents struct{}

func (NopEvents) DataChanged(GameState)          {}
func (NopEvents) LevelUp(int)                    {}
func (NopEvents) AchievementUnlocked(Achievement) {}
func (NopEvents) DailyGoalComplete(int, int)     {}

// Multicaster fans events out to every subscriber in subscription order.
type Multicaster struct {
	subs []Events
}

// Subscribe registers a listener. Not safe for concurrent use with event
// delivery; subscribe during setup.
func (m *Multicaster) Subscribe(e Events) {
	m.subs = append(m.subs, e)
}

func (m *Multicaster) DataChanged(gs GameState) {
	for _, s := range m.subs {
		s.DataChanged(gs)
	}
}

func (m *Multicaster) LevelUp(level int) {
	for _, s := range m.subs {
		s.LevelUp(level)
	}
}

func (m *Multicaster) AchievementUnlocked(a Achievement) {
	for _, s := range m.subs {
		s.AchievementUnlocked(a)
	}
}

func (m *Multicaster) DailyGoalComplete(amount, goal int) {
	for _, s := range m.subs {
		s.DailyGoalComplete(amount, goal)
	}
}
