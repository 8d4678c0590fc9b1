package cmd

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/ghcrm/internal/dashboard"
	"github.com/joescharf/ghcrm/internal/models"
	"github.com/joescharf/ghcrm/internal/output"
	"github.com/joescharf/ghcrm/internal/service"
)

var projectYes bool

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage tracked repositories",
	Long:  "List, add, refresh, and remove the GitHub repositories you track.",
}

var projectListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tracked repositories",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectListRun(cmd.Context())
	},
}

var projectAddCmd = &cobra.Command{
	Use:   "add <owner/repo>",
	Short: "Start tracking a repository",
	Long:  "Start tracking a GitHub repository. Accepts owner/repo, a github.com URL, or an SSH remote.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectAddRun(cmd.Context(), args[0])
	},
}

var projectRefreshCmd = &cobra.Command{
	Use:   "refresh <id>",
	Short: "Refresh a repository's stars, forks and issues",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseProjectID(args[0])
		if err != nil {
			return err
		}
		return projectRefreshRun(cmd.Context(), id)
	},
}

var projectRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Stop tracking a repository",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseProjectID(args[0])
		if err != nil {
			return err
		}
		return projectRemoveRun(cmd.Context(), id)
	},
}

func init() {
	projectRemoveCmd.Flags().BoolVarP(&projectYes, "yes", "y", false, "Do not ask for confirmation")

	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectRefreshCmd)
	projectCmd.AddCommand(projectRemoveCmd)
	rootCmd.AddCommand(projectCmd)
}

func parseProjectID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid project id: %q", s)
	}
	return id, nil
}

// printProjects renders the controller's snapshot, or an empty-state hint.
func printProjects(st dashboard.State) error {
	if st.Loaded && st.LoadErr != nil {
		ui.Warning("Could not reload the list: %s", service.Message(st.LoadErr))
	}
	if len(st.Projects) == 0 {
		ui.Info("No projects tracked. Use 'ghcrm project add <owner/repo>' to get started.")
		return nil
	}
	return ui.Projects(st.Projects)
}

func projectListRun(ctx context.Context) error {
	ctrl, err := newController()
	if err != nil {
		return err
	}
	if err := ctrl.Load(ctx); err != nil {
		return err
	}
	return printProjects(ctrl.State())
}

func projectAddRun(ctx context.Context, raw string) error {
	ctrl, err := newController()
	if err != nil {
		return err
	}

	path := models.NormalizeRepoPath(raw)
	if path != strings.TrimSpace(raw) {
		ui.VerboseLog("Normalized %s to %s", raw, path)
	}

	if dryRun {
		ui.DryRunMsg("Would add project: %s", path)
		return nil
	}

	if err := ctrl.OpenAdd(); err != nil {
		return err
	}
	if err := ctrl.SetInput(path); err != nil {
		return err
	}
	if err := ctrl.ConfirmAdd(ctx); err != nil {
		return err
	}

	ui.Success("Added project: %s", output.Cyan(path))
	return printProjects(ctrl.State())
}

func projectRefreshRun(ctx context.Context, id int) error {
	ctrl, err := newController()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would refresh project %d", id)
		return nil
	}

	if err := ctrl.Update(ctx, id); err != nil {
		return err
	}

	if p, ok := ctrl.Project(id); ok {
		ui.Success("Refreshed project: %s", output.Cyan(p.FullName()))
		ui.Project(p)
		return nil
	}
	ui.Success("Refreshed project %d", id)
	return printProjects(ctrl.State())
}

func projectRemoveRun(ctx context.Context, id int) error {
	ctrl, err := newController()
	if err != nil {
		return err
	}

	// Load first so the confirmation can name the repository. An id missing
	// from the list is still sent; the server reports it as not found.
	if err := ctrl.Load(ctx); err != nil {
		return err
	}
	target, ok := ctrl.Project(id)
	if !ok {
		target = models.Project{ID: id}
	}
	label := target.FullName()
	if !ok {
		label = fmt.Sprintf("project %d", id)
	}

	if err := ctrl.OpenDelete(target); err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would remove %s", label)
		ctrl.CancelDialog()
		return nil
	}

	if !projectYes {
		answer, err := promptLine(bufio.NewReader(stdin), fmt.Sprintf("Stop tracking %s? [y/N] ", label))
		if err != nil {
			return err
		}
		if a := strings.ToLower(answer); a != "y" && a != "yes" {
			ctrl.CancelDialog()
			ui.Info("Cancelled")
			return nil
		}
	}

	if err := ctrl.ConfirmDelete(ctx); err != nil {
		return err
	}

	ui.Success("Removed %s", output.Cyan(label))
	return printProjects(ctrl.State())
}
