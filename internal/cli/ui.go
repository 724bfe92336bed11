package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tallyhq/tally/internal/api"
	"github.com/tallyhq/tally/internal/auth"
	"github.com/tallyhq/tally/internal/tui"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Open the interactive terminal UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUI(cmd.Context())
	},
}

// newClient resolves the backend location and credentials: the --base-url
// flag wins, then stored credentials, then the local default.
func newClient() (*api.Client, error) {
	si, err := auth.GetSession()
	if err != nil {
		return nil, err
	}

	target := baseURL
	if target == "" && si != nil {
		target = si.BaseURL
	}
	if target == "" {
		target = defaultBaseURL
	}

	var opts []api.Option
	if si != nil && si.Session != "" {
		opts = append(opts, api.WithSessionCookie("tally_session", si.Session))
	}
	c, err := api.New(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	return c, nil
}

func runUI(ctx context.Context) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	return tui.Run(ctx, client)
}
