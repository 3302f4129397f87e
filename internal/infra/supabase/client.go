// Package supabase implements the remote store over the Supabase REST and
// auth endpoints. Every call can fail at any time; callers queue mutations
// for retry rather than surfacing transport errors to the user.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/droplog/droplog/internal/domain"
)

// Postgres error code for a unique constraint violation.
const codeDuplicateKey = "23505"

// Config locates a Supabase project.
type Config struct {
	ProjectURL string `toml:"project_url"`
	AnonKey    string `toml:"anon_key"`
}

// Client talks to the Supabase auth and PostgREST endpoints. It holds the
// access token of the signed-in user; anonymous calls carry only the anon
// key and are rejected by row-level security.
type Client struct {
	cfg   Config
	http  *http.Client
	clock domain.Clock

	mu    sync.Mutex
	token string
}

// New creates a client.
func New(cfg Config, clock domain.Clock) *Client {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: 15 * time.Second},
		clock: clock,
	}
}

// ─── Auth ───────────────────────────────────────────────────────────────────

type authResponse struct {
	AccessToken string `json:"access_token"`
	User        struct {
		ID string `json:"id"`
	} `json:"user"`
}

// SignIn performs the password grant and stores the access token.
func (c *Client) SignIn(ctx context.Context, email, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.ProjectURL+"/auth/v1/token?grant_type=password", bytes.NewReader(body))
	if err != nil {
		return "", &domain.NetworkError{Op: "sign in", Err: err}
	}
	req.Header.Set("apikey", c.cfg.AnonKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &domain.NetworkError{Op: "sign in", Err: err}
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return "", &domain.NetworkError{Op: "sign in", Err: apiError(resp.StatusCode, data)}
	}

	var auth authResponse
	if err := json.Unmarshal(data, &auth); err != nil {
		return "", &domain.NetworkError{Op: "sign in", Err: err}
	}
	if auth.AccessToken == "" || auth.User.ID == "" {
		return "", &domain.NetworkError{Op: "sign in", Err: fmt.Errorf("incomplete auth response")}
	}

	c.mu.Lock()
	c.token = auth.AccessToken
	c.mu.Unlock()
	return auth.User.ID, nil
}

// SignOut invalidates the token server-side and forgets it locally. The
// local token is cleared even when the remote call fails.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	token := c.token
	c.token = ""
	c.mu.Unlock()
	if token == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.ProjectURL+"/auth/v1/logout", nil)
	if err != nil {
		return &domain.NetworkError{Op: "sign out", Err: err}
	}
	req.Header.Set("apikey", c.cfg.AnonKey)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.NetworkError{Op: "sign out", Err: err}
	}
	resp.Body.Close()
	return nil
}

// ─── Tables ─────────────────────────────────────────────────────────────────

type progressRow struct {
	UserID      string `json:"user_id"`
	Level       int    `json:"level"`
	Exp         int    `json:"exp"`
	MaxExp      int    `json:"max_exp"`
	TotalAmount int    `json:"total_amount"`
	DailyGoal   int    `json:"daily_goal"`
}

type settingsRow struct {
	UserID   string          `json:"user_id"`
	Settings domain.Settings `json:"settings"`
}

type recordRow struct {
	UserID     string    `json:"user_id"`
	Amount     int       `json:"amount"`
	RecordedAt time.Time `json:"recorded_at"`
}

type achievementRow struct {
	UserID        string `json:"user_id"`
	AchievementID string `json:"achievement_id"`
}

// LoadSnapshot gathers the user's remote rows in one pass. Tables with no
// rows yet simply leave the corresponding field empty.
func (c *Client) LoadSnapshot(ctx context.Context, userID string) (*domain.RemoteSnapshot, error) {
	snap := &domain.RemoteSnapshot{}

	var progress []progressRow
	if err := c.get(ctx, "user_progress", "user_id=eq."+userID, &progress); err != nil {
		return nil, err
	}
	if len(progress) > 0 {
		p := progress[0]
		snap.Progress = &domain.ProgressPayload{
			Level:       p.Level,
			Exp:         p.Exp,
			MaxExp:      p.MaxExp,
			TotalAmount: p.TotalAmount,
			DailyGoal:   p.DailyGoal,
		}
	}

	var settings []settingsRow
	if err := c.get(ctx, "user_settings", "user_id=eq."+userID, &settings); err != nil {
		return nil, err
	}
	if len(settings) > 0 {
		s := settings[0].Settings
		snap.Settings = &s
	}

	midnight := domain.Today(c.clock.Now()) + "T00:00:00Z"
	var records []recordRow
	query := "user_id=eq." + userID + "&recorded_at=gte." + url.QueryEscape(midnight) + "&order=recorded_at.asc"
	if err := c.get(ctx, "water_records", query, &records); err != nil {
		return nil, err
	}
	for _, r := range records {
		snap.TodayRecords = append(snap.TodayRecords, domain.RecordPayload{
			Amount:     r.Amount,
			RecordedAt: r.RecordedAt,
		})
	}

	var achievements []achievementRow
	if err := c.get(ctx, "achievements", "user_id=eq."+userID, &achievements); err != nil {
		return nil, err
	}
	for _, a := range achievements {
		snap.Achievements = append(snap.Achievements, a.AchievementID)
	}

	return snap, nil
}

// InsertRecord appends one intake record.
func (c *Client) InsertRecord(ctx context.Context, userID string, p domain.RecordPayload) error {
	return c.post(ctx, "insert record", "/rest/v1/water_records", recordRow{
		UserID:     userID,
		Amount:     p.Amount,
		RecordedAt: p.RecordedAt,
	}, "")
}

// UpsertProgress writes the user's progress row, merging on the user id.
func (c *Client) UpsertProgress(ctx context.Context, userID string, p domain.ProgressPayload) error {
	return c.post(ctx, "upsert progress", "/rest/v1/user_progress", progressRow{
		UserID:      userID,
		Level:       p.Level,
		Exp:         p.Exp,
		MaxExp:      p.MaxExp,
		TotalAmount: p.TotalAmount,
		DailyGoal:   p.DailyGoal,
	}, "resolution=merge-duplicates")
}

// UnlockAchievement inserts an achievement row. The (user, achievement)
// unique constraint turns a repeat unlock into ErrConflict.
func (c *Client) UnlockAchievement(ctx context.Context, userID string, p domain.AchievementPayload) error {
	return c.post(ctx, "unlock achievement", "/rest/v1/achievements", achievementRow{
		UserID:        userID,
		AchievementID: p.AchievementID,
	}, "")
}

// ─── RPCs ───────────────────────────────────────────────────────────────────
// Aggregates are computed by database functions, never locally.

// TodayAmount returns the server-computed total for today.
func (c *Client) TodayAmount(ctx context.Context, userID string) (int, error) {
	var amount int
	err := c.rpc(ctx, "get_today_water_amount", map[string]any{"p_user_id": userID}, &amount)
	return amount, err
}

// StreakDays returns the server-computed consecutive-goal-days count.
func (c *Client) StreakDays(ctx context.Context, userID string) (int, error) {
	var days int
	err := c.rpc(ctx, "get_streak_days", map[string]any{"p_user_id": userID}, &days)
	return days, err
}

// RecentStats returns per-day totals for the last N days.
func (c *Client) RecentStats(ctx context.Context, userID string, days int) ([]domain.DayTotal, error) {
	var out []domain.DayTotal
	err := c.rpc(ctx, "get_recent_stats", map[string]any{"p_user_id": userID, "p_days": days}, &out)
	return out, err
}

// ─── HTTP Plumbing ──────────────────────────────────────────────────────────

func (c *Client) get(ctx context.Context, table, query string, out any) error {
	op := "load " + table
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.ProjectURL+"/rest/v1/"+table+"?select=*&"+query, nil)
	if err != nil {
		return &domain.NetworkError{Op: op, Err: err}
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return &domain.NetworkError{Op: op, Err: apiError(resp.StatusCode, data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &domain.NetworkError{Op: op, Err: err}
	}
	return nil
}

func (c *Client) post(ctx context.Context, op, path string, row any, resolution string) error {
	body, err := json.Marshal(row)
	if err != nil {
		return &domain.NetworkError{Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.ProjectURL+path, bytes.NewReader(body))
	if err != nil {
		return &domain.NetworkError{Op: op, Err: err}
	}
	c.setHeaders(req)
	prefer := "return=minimal"
	if resolution != "" {
		prefer += "," + resolution
	}
	req.Header.Set("Prefer", prefer)

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		apiErr := apiError(resp.StatusCode, data)
		if isDuplicate(resp.StatusCode, data) {
			return fmt.Errorf("%s: %w (%v)", op, domain.ErrConflict, apiErr)
		}
		return &domain.NetworkError{Op: op, Err: apiErr}
	}
	return nil
}

func (c *Client) rpc(ctx context.Context, fn string, args map[string]any, out any) error {
	op := "rpc " + fn
	body, err := json.Marshal(args)
	if err != nil {
		return &domain.NetworkError{Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.ProjectURL+"/rest/v1/rpc/"+fn, bytes.NewReader(body))
	if err != nil {
		return &domain.NetworkError{Op: op, Err: err}
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return &domain.NetworkError{Op: op, Err: apiError(resp.StatusCode, data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &domain.NetworkError{Op: op, Err: err}
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token == "" {
		token = c.cfg.AnonKey
	}
	req.Header.Set("apikey", c.cfg.AnonKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
}

type pgError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func apiError(status int, body []byte) error {
	var pe pgError
	if err := json.Unmarshal(body, &pe); err == nil && pe.Message != "" {
		return fmt.Errorf("status %d: %s (%s)", status, pe.Message, pe.Code)
	}
	return fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(body)))
}

func isDuplicate(status int, body []byte) bool {
	if status == http.StatusConflict {
		return true
	}
	var pe pgError
	return json.Unmarshal(body, &pe) == nil && pe.Code == codeDuplicateKey
}
