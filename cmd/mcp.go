package cmd

import (
	"github.com/spf13/cobra"

	ghcrmmcp "github.com/joescharf/ghcrm/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets MCP clients list and manage your tracked repositories using the
stored session. Configure it with:

  {
    "mcpServers": {
      "ghcrm": { "command": "ghcrm", "args": ["mcp"] }
    }
  }

Available tools: ghcrm_list_projects, ghcrm_add_project,
ghcrm_refresh_project, ghcrm_delete_project, ghcrm_profile`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := getService()
		if err != nil {
			return err
		}
		return ghcrmmcp.NewServer(svc, buildVersion).ServeStdio(ctxOrBackground(cmd.Context()))
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
