package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/ghcrm/internal/tui"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	Aliases: []string{"ui"},
	Short:   "Open the interactive dashboard",
	Long: `Open a full-screen dashboard to browse, add, refresh and remove tracked
repositories. Starts on the login screen when no session is stored.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return dashboardRun(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

func dashboardRun(ctx context.Context) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctrl, err := newController()
	if err != nil {
		return err
	}

	logPath := filepath.Join(viper.GetString("state_dir"), "ghcrm.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	restoreLog := logOutput.swap(f)
	defer restoreLog()

	nav := &tui.Navigator{}
	restoreNav := navigator.route(nav)
	defer restoreNav()

	return tui.Run(ctxOrBackground(ctx), svc, ctrl, nav)
}
