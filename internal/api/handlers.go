package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/droplog/droplog/internal/domain"
)

// ─── State ──────────────────────────────────────────────────────────────────

type stateResponse struct {
	*domain.GameState
	Stage domain.Stage `json:"stage"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	gs := s.ledger.State()
	writeJSON(w, http.StatusOK, stateResponse{
		GameState: gs,
		Stage:     domain.StageForLevel(gs.Level),
	})
}

type achievementView struct {
	domain.Achievement
	Unlocked bool `json:"unlocked"`
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	gs := s.ledger.State()
	out := make([]achievementView, 0, 6)
	for _, def := range domain.AchievementDefinitions() {
		out = append(out, achievementView{
			Achievement: def,
			Unlocked:    gs.HasAchievement(def.ID),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"achievements": out})
}

// ─── Entries ────────────────────────────────────────────────────────────────

type entryRequest struct {
	Amount    int        `json:"amount"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	at := time.Time{}
	if req.Timestamp != nil {
		at = *req.Timestamp
	}
	entry, err := s.ledger.Insert(r.Context(), req.Amount, at)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleEditEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Timestamp == nil {
		writeError(w, http.StatusBadRequest, "timestamp is required")
		return
	}
	if err := s.ledger.Edit(r.Context(), id, req.Amount, *req.Timestamp); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.ledger.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ─── Settings ───────────────────────────────────────────────────────────────

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.LoadSettings())
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var settings domain.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.store.SaveSettings(&settings); err != nil {
		writeDomainError(w, err)
		return
	}
	// Keep the live goal in step with the saved preference.
	if err := s.ledger.SetDailyGoal(r.Context(), settings.DailyGoal); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &settings)
}

// ─── Sync / Session ─────────────────────────────────────────────────────────

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	sess := s.session.Current()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"online":        sess.Online,
		"authenticated": sess.Authenticated(),
		"pending":       s.queue.Len(),
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	if err := s.session.SignIn(r.Context(), req.Email, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.session.Current())
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.session.SignOut(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

type onlineRequest struct {
	Online bool `json:"online"`
}

func (s *Server) handleOnline(w http.ResponseWriter, r *http.Request) {
	var req onlineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.session.SetOnline(r.Context(), req.Online)
	writeJSON(w, http.StatusOK, s.session.Current())
}

// ─── Export / Restore ───────────────────────────────────────────────────────

func (s *Server) handleExportBackup(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="droplog-backup.json"`)
	if err := s.export.WriteBackup(w); err != nil {
		writeDomainError(w, err)
	}
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="droplog-report.csv"`)
	if err := s.export.WriteCSV(w, days); err != nil {
		writeDomainError(w, err)
	}
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 16<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	if err := s.export.Restore(data); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}
