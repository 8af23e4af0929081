package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/maint/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for assistant integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

The server acts as the configured user (user.* settings), so role and
location scoping apply to every tool. Configure your MCP client with:

  {
    "mcpServers": {
      "maint": { "command": "maint", "args": ["mcp"] }
    }
  }

Available tools: maint_list_issues, maint_create_issue, maint_add_comment,
maint_set_status, maint_schedule_issue, maint_list_events, maint_calendar`,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := getTracker()
		if err != nil {
			return err
		}
		return mcp.NewServer(t, currentCaller()).ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
