package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	loginCmd.Flags().String("email", "", "Account email")
	loginCmd.Flags().String("password", "", "Account password (prompted when omitted)")
}

// ─── login ──────────────────────────────────────────────────────────────────

var loginCmd = &cobra.Command{
	Use:   "login [EMAIL]",
	Short: "Sign in and sync with the cloud backend",
	Long: `Sign in to the configured backend. Remote progress is merged into
the local state and any queued mutations are pushed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

func runLogin(cmd *cobra.Command, args []string) error {
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")
	if email == "" && len(args) == 1 {
		email = args[0]
	}

	reader := bufio.NewReader(os.Stdin)
	if email == "" {
		fmt.Fprint(os.Stdout, "Email: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		email = strings.TrimSpace(line)
	}
	if password == "" {
		fmt.Fprint(os.Stdout, "Password: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		password = strings.TrimSpace(line)
	}

	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Session.SignIn(cmd.Context(), email, password); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Signed in as %s\n", email)
	if pending := d.Queue.Len(); pending > 0 {
		fmt.Fprintf(os.Stdout, "%d mutation(s) still waiting for sync\n", pending)
	}
	return nil
}

// ─── logout ─────────────────────────────────────────────────────────────────

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and wipe local data",
	Long: `Sign out of the backend. ALL local data is destroyed: progress,
today's ledger, archived days, settings, and unsynced mutations.`,
	RunE: runLogout,
}

func runLogout(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	if pending := d.Queue.Len(); pending > 0 {
		fmt.Fprintf(os.Stdout, "Warning: discarding %d unsynced mutation(s)\n", pending)
	}
	// One-shot processes start anonymous, so skip the remote token step and
	// go straight to the local wipe.
	if err := d.Queue.Clear(); err != nil {
		return err
	}
	if err := d.Store.Wipe(); err != nil {
		return err
	}
	if err := d.Ledger.Reset(); err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, "Signed out. Local data wiped.")
	return nil
}
