package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tallyhq/tally/internal/auth"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store backend credentials",
	Long: `login saves the backend URL and session cookie under ~/.tally.
The TALLY_SESSION and TALLY_BASE_URL environment variables override the
stored values when set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		target := baseURL
		if target == "" {
			target = defaultBaseURL
		}

		fmt.Printf("Backend: %s\n", target)
		fmt.Print("Session cookie value: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		session := strings.TrimSpace(line)
		if session == "" {
			return fmt.Errorf("empty session")
		}
		if err := auth.SetSession(target, session, nil); err != nil {
			return err
		}
		fmt.Println("Credentials saved.")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := auth.DeleteSession(); err != nil {
			return err
		}
		fmt.Println("Credentials removed.")
		return nil
	},
}
