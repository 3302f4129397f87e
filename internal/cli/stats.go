package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/droplog/droplog/internal/domain"
)

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().Int("days", 7, "How many archived days to list")
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show progress, today's ledger, and recent days",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	gs := d.Ledger.State()
	stage := domain.StageForLevel(gs.Level)

	fmt.Fprintf(os.Stdout, "%s %s — Level %d (%d/%d exp)\n",
		stage.Emoji, stage.Name, gs.Level, gs.Exp, gs.MaxExp)
	fmt.Fprintf(os.Stdout, "Today: %d / %d ml · Lifetime: %d ml\n",
		gs.TodayAmount, gs.DailyGoal, gs.TotalAmount)

	if len(gs.History) > 0 {
		fmt.Fprintln(os.Stdout, "\nToday's entries:")
		for _, e := range gs.History {
			edited := ""
			if e.Edited {
				edited = " (edited)"
			}
			fmt.Fprintf(os.Stdout, "  %s  %5d ml%s\n", e.Timestamp.Format("15:04"), e.Amount, edited)
		}
	}

	unlocked := 0
	for _, def := range domain.AchievementDefinitions() {
		if gs.HasAchievement(def.ID) {
			unlocked++
		}
	}
	fmt.Fprintf(os.Stdout, "\nAchievements: %d/%d", unlocked, len(domain.AchievementDefinitions()))
	for _, def := range domain.AchievementDefinitions() {
		if gs.HasAchievement(def.ID) {
			fmt.Fprintf(os.Stdout, "  %s", def.Icon)
		}
	}
	fmt.Fprintln(os.Stdout)

	days, _ := cmd.Flags().GetInt("days")
	archived, err := d.Store.ArchivedDays()
	if err != nil {
		return err
	}
	if len(archived) > 0 {
		fmt.Fprintln(os.Stdout, "\nRecent days:")
		for i, day := range archived {
			if i >= days {
				break
			}
			fmt.Fprintf(os.Stdout, "  %s  %5d ml\n", day.Date, day.Amount)
		}
	}

	if pending := d.Queue.Len(); pending > 0 {
		fmt.Fprintf(os.Stdout, "\n%d mutation(s) waiting for sync\n", pending)
	}
	return nil
}
