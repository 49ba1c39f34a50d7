package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iammorganparry/claude-mem/internal/config"
	"github.com/iammorganparry/claude-mem/internal/exporter"
)

var (
	gitSyncRemote string
	gitSyncFull   bool
)

var gitSyncCmd = &cobra.Command{
	Use:   "git-sync {status|init|push|pull}",
	Short: "Replicate database snapshots through the versioned export workspace",
	Args:  cobra.ExactArgs(1),
	RunE:  runGitSync,
}

func init() {
	gitSyncCmd.Flags().StringVar(&gitSyncRemote, "remote", "", "remote URL (init)")
	gitSyncCmd.Flags().BoolVar(&gitSyncFull, "full", false, "include the relational database (push)")
}

func runGitSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closeLog := config.SetupLogger(cfg.LogDir, cfg.LogLevel)
	defer func() { _ = closeLog() }()

	remoteURL := cfg.SyncRemoteURL
	if gitSyncRemote != "" {
		remoteURL = gitSyncRemote
	}
	exp := exporter.New(cfg.ExportDir, cfg.SyncRemoteName, remoteURL, cfg.SyncAutoPush, cfg.SyncIdleSeconds, logger)

	switch args[0] {
	case "status":
		status, err := exp.Status()
		if err != nil {
			return err
		}
		fmt.Println(status)
		return nil

	case "init":
		if _, err := exp.EnsureWorkspace(); err != nil {
			return err
		}
		fmt.Println("replication workspace ready at", exp.Dir())
		return nil

	case "push":
		// push auto-initializes the workspace if needed
		fullPath := ""
		if gitSyncFull {
			fullPath = cfg.DBPath
		}
		if err := exp.Snapshot(cfg.VectorDBPath, fullPath, true); err != nil {
			return err
		}
		fmt.Println("snapshot pushed")
		return nil

	case "pull":
		if err := exp.Pull(); err != nil {
			return err
		}
		fmt.Println("workspace up to date")
		return nil

	default:
		return fmt.Errorf("unknown git-sync action %q", args[0])
	}
}
