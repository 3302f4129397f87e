package domain

// ─── Leveling ───────────────────────────────────────────────────────────────

// Progress is the leveling triple threaded through AwardExp.
type Progress struct {
	Level  int
	Exp    int
	MaxExp int
}

// AwardExp applies gained experience and resolves any level-ups. Each
// level-up consumes MaxExp and grows the next threshold to floor(MaxExp*1.2).
// Returns the new progress and how many levels were gained.
//
// This is a pure function; achievement thresholds depend on its exact floor
// semantics.
func AwardExp(p Progress, gained int) (Progress, int) {
	p.Exp += gained
	levels := 0
	for p.Exp >= p.MaxExp {
		p.Exp -= p.MaxExp
		p.Level++
		p.MaxExp = p.MaxExp * 12 / 10
		levels++
	}
	return p, levels
}

// ─── Character Stages ───────────────────────────────────────────────────────

// Stage is one step of the character's evolution.
type Stage struct {
	Emoji string
	Name  string
}

var characterStages = []Stage{
	{Emoji: "🌱", Name: "小水滴"},
	{Emoji: "🌿", Name: "水苗"},
	{Emoji: "🌊", Name: "水精靈"},
	{Emoji: "🐉", Name: "水龍"},
	{Emoji: "👑", Name: "水之王"},
}

// StageForLevel maps a level to its evolution stage. Levels past the last
// stage stay at the final form.
func StageForLevel(level int) Stage {
	idx := level - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(characterStages) {
		idx = len(characterStages) - 1
	}
	return characterStages[idx]
}

// ─── Achievements ───────────────────────────────────────────────────────────

// Achievement ids. The set is closed; the remote achievements table treats
// the id as its idempotency key.
const (
	AchFirstDrink      = "first_drink"
	AchDailyGoal       = "daily_goal"
	AchWaterWarrior    = "water_warrior"
	AchHydrationMaster = "hydration_master"
	AchLevel5          = "level_5"
	AchConsistent      = "consistent"
)

// Achievement describes one unlockable.
type Achievement struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// AchievementDefinitions lists every achievement in display order.
func AchievementDefinitions() []Achievement {
	return []Achievement{
		{ID: AchFirstDrink, Name: "第一滴水", Description: "記錄第一次喝水", Icon: "💧"},
		{ID: AchDailyGoal, Name: "今日達標", Description: "完成每日目標", Icon: "🎯"},
		{ID: AchWaterWarrior, Name: "水之戰士", Description: "累計喝水5000ml", Icon: "⚔️"},
		{ID: AchHydrationMaster, Name: "水分大師", Description: "累計喝水10000ml", Icon: "🏆"},
		{ID: AchLevel5, Name: "五級水精靈", Description: "達到5級", Icon: "⭐"},
		{ID: AchConsistent, Name: "堅持不懈", Description: "連續7天達標", Icon: "🔥"},
	}
}

// CheckAchievements evaluates every locked achievement against the current
// state and returns the ones newly earned, in definition order. It does not
// mutate gs. streakDays comes from the remote streak RPC and is zero when
// offline, which leaves the streak achievement locked — the same behavior
// the device has without connectivity.
func CheckAchievements(gs *GameState, streakDays int) []Achievement {
	var unlocked []Achievement
	for _, def := range AchievementDefinitions() {
		if gs.HasAchievement(def.ID) {
			continue
		}
		earned := false
		switch def.ID {
		case AchFirstDrink:
			earned = gs.TotalAmount >= 1
		case AchDailyGoal:
			earned = gs.TodayAmount >= gs.DailyGoal
		case AchWaterWarrior:
			earned = gs.TotalAmount >= 5000
		case AchHydrationMaster:
			earned = gs.TotalAmount >= 10000
		case AchLevel5:
			earned = gs.Level >= 5
		case AchConsistent:
			earned = streakDays >= 7
		}
		if earned {
			unlocked = append(unlocked, def)
		}
	}
	return unlocked
}
