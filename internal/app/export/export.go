// Package export builds and restores backup documents and renders the
// spreadsheet-friendly CSV report.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/droplog/droplog/internal/app/ledger"
	"github.com/droplog/droplog/internal/domain"
	"github.com/droplog/droplog/internal/store"
)

// Backup is the portable full-state document. Version gates restore: a file
// produced by a newer schema is refused rather than half-applied.
type Backup struct {
	Version        string            `json:"version"`
	ExportDate     time.Time         `json:"exportDate"`
	GameData       *domain.GameState `json:"gameData"`
	Settings       *domain.Settings  `json:"settings"`
	HistoricalData []domain.DayTotal `json:"historicalData"`
	Metadata       BackupMetadata    `json:"metadata"`
}

// BackupMetadata summarizes the document contents for display before restore.
type BackupMetadata struct {
	TotalDays         int `json:"totalDays"`
	TotalAmount       int `json:"totalAmount"`
	CurrentLevel      int `json:"currentLevel"`
	AchievementsCount int `json:"achievementsCount"`
}

// Service renders exports from the live ledger and the archive.
type Service struct {
	ledger *ledger.Ledger
	store  *store.Store
	clock  domain.Clock
}

// New creates an export service.
func New(l *ledger.Ledger, st *store.Store, clock domain.Clock) *Service {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Service{ledger: l, store: st, clock: clock}
}

// ─── Backup ─────────────────────────────────────────────────────────────────

// BuildBackup snapshots the full local state into a backup document.
func (s *Service) BuildBackup() (*Backup, error) {
	gs := s.ledger.State()
	days, err := s.store.ArchivedDays()
	if err != nil {
		return nil, fmt.Errorf("collect archive: %w", err)
	}
	return &Backup{
		Version:        domain.SchemaVersion,
		ExportDate:     s.clock.Now(),
		GameData:       gs,
		Settings:       s.store.LoadSettings(),
		HistoricalData: days,
		Metadata: BackupMetadata{
			TotalDays:         len(days),
			TotalAmount:       gs.TotalAmount,
			CurrentLevel:      gs.Level,
			AchievementsCount: len(gs.Achievements),
		},
	}, nil
}

// WriteBackup serializes a backup document as indented JSON.
func (s *Service) WriteBackup(w io.Writer) error {
	doc, err := s.BuildBackup()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Restore replaces the entire local state with the backup's contents. The
// document is validated before anything is touched; a failed restore leaves
// the current state intact. The day marker is reset to today so the next
// mutation does not archive restored data under the wrong date.
func (s *Service) Restore(data []byte) error {
	var doc Backup
	if err := json.Unmarshal(data, &doc); err != nil {
		return &domain.ValidationError{Field: "backup", Reason: "not a valid backup document"}
	}
	if err := checkVersion(doc.Version); err != nil {
		return err
	}
	if doc.GameData == nil {
		return &domain.ValidationError{Field: "gameData", Reason: "missing"}
	}
	if err := store.Validate(doc.GameData); err != nil {
		return err
	}

	if doc.GameData.History == nil {
		doc.GameData.History = []domain.Entry{}
	}
	if doc.GameData.Achievements == nil {
		doc.GameData.Achievements = []string{}
	}
	if err := s.ledger.Replace(doc.GameData); err != nil {
		return err
	}
	if doc.Settings != nil {
		if err := s.store.SaveSettings(doc.Settings); err != nil {
			return err
		}
	}
	for _, d := range doc.HistoricalData {
		if err := s.store.ArchiveDay(d.Date, d.Amount); err != nil {
			return err
		}
	}
	return s.store.SetLastActiveDay(domain.Today(s.clock.Now()))
}

// checkVersion refuses documents from a newer schema. Only the major number
// matters: a 2.x document restores into any 2.y application.
func checkVersion(v string) error {
	if v == "" {
		return &domain.ValidationError{Field: "version", Reason: "missing"}
	}
	docMajor, err := major(v)
	if err != nil {
		return &domain.ValidationError{Field: "version", Reason: fmt.Sprintf("unparseable %q", v)}
	}
	curMajor, _ := major(domain.SchemaVersion)
	if docMajor > curMajor {
		return domain.ErrBackupVersion
	}
	return nil
}

func major(v string) (int, error) {
	head, _, _ := strings.Cut(v, ".")
	return strconv.Atoi(head)
}

// ─── CSV ────────────────────────────────────────────────────────────────────

// csvBOM lets spreadsheet software detect UTF-8, which the achievement
// names need.
const csvBOM = "\uFEFF"

// WriteCSV renders a report of today's entries plus the archived totals of
// the preceding days, limited to the given range. Today's entries carry one
// row each; archived days collapse into a single full-day row.
func (s *Service) WriteCSV(w io.Writer, days int) error {
	if days < 1 {
		days = 1
	}
	if _, err := io.WriteString(w, csvBOM); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "time", "amount", "exp", "level", "achievements"}); err != nil {
		return err
	}

	gs := s.ledger.State()
	now := s.clock.Now()
	achievements := achievementNames(gs)

	for _, e := range gs.History {
		row := []string{
			domain.Today(e.Timestamp),
			e.Timestamp.Format("15:04"),
			strconv.Itoa(e.Amount),
			strconv.Itoa(e.Exp),
			strconv.Itoa(gs.Level),
			achievements,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cutoff := domain.Today(now.AddDate(0, 0, -(days - 1)))
	archived, err := s.store.ArchivedDays()
	if err != nil {
		return fmt.Errorf("collect archive: %w", err)
	}
	for _, d := range archived {
		if d.Date < cutoff || d.Date >= domain.Today(now) {
			continue
		}
		if err := cw.Write([]string{d.Date, "", strconv.Itoa(d.Amount), "", "", ""}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// achievementNames joins the display names of unlocked achievements. The
// comma-separated value forces CSV quoting for this column.
func achievementNames(gs *domain.GameState) string {
	var names []string
	for _, def := range domain.AchievementDefinitions() {
		if gs.HasAchievement(def.ID) {
			names = append(names, def.Name)
		}
	}
	return strings.Join(names, ", ")
}
