package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportBackupCmd)
	exportCmd.AddCommand(exportCSVCmd)
	rootCmd.AddCommand(restoreCmd)

	exportBackupCmd.Flags().StringP("output", "o", "droplog-backup.json", "Output file")
	exportCSVCmd.Flags().StringP("output", "o", "droplog-report.csv", "Output file")
	exportCSVCmd.Flags().Int("days", 7, "How many days to include")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export your data",
}

// ─── export backup ──────────────────────────────────────────────────────────

var exportBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a full backup document",
	Long: `Write the complete local state — progress, today's ledger, archived
days, and settings — as a JSON document that 'droplog restore' accepts.`,
	RunE: runExportBackup,
}

func runExportBackup(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	out, _ := cmd.Flags().GetString("output")
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := d.Export.WriteBackup(f); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Backup written to %s\n", out)
	return nil
}

// ─── export csv ─────────────────────────────────────────────────────────────

var exportCSVCmd = &cobra.Command{
	Use:   "csv",
	Short: "Write a spreadsheet-friendly CSV report",
	RunE:  runExportCSV,
}

func runExportCSV(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	out, _ := cmd.Flags().GetString("output")
	days, _ := cmd.Flags().GetInt("days")
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := d.Export.WriteCSV(f, days); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Report written to %s\n", out)
	return nil
}

// ─── restore ────────────────────────────────────────────────────────────────

var restoreCmd = &cobra.Command{
	Use:   "restore BACKUP_FILE",
	Short: "Restore local state from a backup document",
	Long: `Replace the entire local state with the contents of a backup file.
Current local data is overwritten.`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

func runRestore(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Export.Restore(data); err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, "Restore complete")
	return nil
}
