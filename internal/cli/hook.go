package cli

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iammorganparry/claude-mem/internal/config"
)

var hookCmd = &cobra.Command{
	Use:   "hook <event>",
	Short: "Forward a host lifecycle event to the worker",
	Long: `Read a platform-normalized JSON event from stdin and post it to the
worker. Hooks always exit 0 so a worker outage never disrupts the host;
failures are logged to stderr.`,
	Args: cobra.ExactArgs(1),
	Run:  runHook,
}

func runHook(cmd *cobra.Command, args []string) {
	// Never propagate a failure exit code to the host.
	if err := forwardHook(args[0]); err != nil {
		fmt.Fprintln(os.Stderr, "claude-mem hook:", err)
	}
}

func forwardHook(event string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	payload, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read event: %w", err)
	}

	url := fmt.Sprintf("http://127.0.0.1:%d/hooks/claude/%s", cfg.Port, event)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("post %s: %w", event, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("worker returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
