package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iammorganparry/claude-mem/internal/config"
	"github.com/iammorganparry/claude-mem/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP stdio server",
	Long:  `Run the MCP server over standard streams, exposing search, timeline, and get_observations tools backed by the worker's HTTP API.`,
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	server := mcp.NewServer(fmt.Sprintf("http://127.0.0.1:%d", cfg.Port))
	return server.Run()
}
