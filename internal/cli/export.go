package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/iammorganparry/claude-mem/internal/config"
	"github.com/iammorganparry/claude-mem/internal/store"
)

var (
	exportFormat    string
	exportOutput    string
	exportProject   string
	exportNoVectors bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the memory databases",
	Long: `Export the memory databases to a portable file.

Formats:
  sqlite  copy of the vector database
  full    copies of both the vector and relational databases
  json    JSON dump of observations and summaries`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "sqlite", "export format: sqlite|full|json")
	exportCmd.Flags().StringVar(&exportOutput, "output", "", "output directory (default <state-dir>/exports)")
	exportCmd.Flags().StringVar(&exportProject, "project", "", "restrict JSON export to one project")
	exportCmd.Flags().BoolVar(&exportNoVectors, "no-vectors", false, "skip the vector database")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	outDir := exportOutput
	if outDir == "" {
		outDir = filepath.Join(cfg.BaseDir, "exports")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	stamp := time.Now().Format("20060102-150405")

	switch exportFormat {
	case "sqlite":
		if exportNoVectors {
			return fmt.Errorf("--no-vectors makes no sense with --format=sqlite")
		}
		dst := filepath.Join(outDir, fmt.Sprintf("vectors-%s.db", stamp))
		if err := copyDBFile(cfg.VectorDBPath, dst); err != nil {
			return err
		}
		fmt.Println(dst)

	case "full":
		dst := filepath.Join(outDir, fmt.Sprintf("claude-mem-%s.db", stamp))
		if err := copyDBFile(cfg.DBPath, dst); err != nil {
			return err
		}
		fmt.Println(dst)
		if !exportNoVectors {
			vecDst := filepath.Join(outDir, fmt.Sprintf("vectors-%s.db", stamp))
			if err := copyDBFile(cfg.VectorDBPath, vecDst); err != nil {
				return err
			}
			fmt.Println(vecDst)
		}

	case "json":
		dst := filepath.Join(outDir, fmt.Sprintf("claude-mem-%s.json", stamp))
		if err := exportJSON(cfg, exportProject, dst); err != nil {
			return err
		}
		fmt.Println(dst)

	default:
		return fmt.Errorf("unknown export format %q", exportFormat)
	}
	return nil
}

func exportJSON(cfg *config.Config, project, dst string) error {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	observations, err := store.NewObservationStore(db).ListRecent(project, 1_000_000)
	if err != nil {
		return err
	}
	summaries, err := store.NewSummaryStore(db).ListRecent(project, 1_000_000)
	if err != nil {
		return err
	}

	dump := map[string]any{
		"exportedAt":   time.Now().UTC().Format(time.RFC3339),
		"project":      project,
		"observations": observations,
		"summaries":    summaries,
	}
	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}
	return os.WriteFile(dst, data, 0o644)
}

func copyDBFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return out.Sync()
}
