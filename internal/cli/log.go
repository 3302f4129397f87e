package cli

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/droplog/droplog/internal/domain"
)

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().String("at", "", "Time of the entry today as HH:MM (default now)")
}

var logCmd = &cobra.Command{
	Use:   "log AMOUNT_ML",
	Short: "Record a water intake entry",
	Long: `Record drinking AMOUNT_ML milliliters. The entry lands in today's
ledger, awards experience, and is queued for cloud sync.`,
	Args: cobra.ExactArgs(1),
	RunE: runLog,
}

func runLog(cmd *cobra.Command, args []string) error {
	amount, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("amount %q is not a number", args[0])
	}

	at := time.Time{}
	if v, _ := cmd.Flags().GetString("at"); v != "" {
		clock, err := time.Parse("15:04", v)
		if err != nil {
			return fmt.Errorf("--at %q is not HH:MM", v)
		}
		now := time.Now()
		at = time.Date(now.Year(), now.Month(), now.Day(),
			clock.Hour(), clock.Minute(), 0, 0, now.Location())
	}

	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	entry, err := d.Ledger.Insert(cmd.Context(), amount, at)
	if err != nil {
		return err
	}

	gs := d.Ledger.State()
	stage := domain.StageForLevel(gs.Level)
	fmt.Fprintf(os.Stdout, "Recorded %d ml at %s (+%d exp)\n",
		entry.Amount, entry.Timestamp.Format("15:04"), entry.Exp)
	fmt.Fprintf(os.Stdout, "Today: %d / %d ml · Level %d %s %s\n",
		gs.TodayAmount, gs.DailyGoal, gs.Level, stage.Emoji, stage.Name)
	return nil
}
