package cli

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/iammorganparry/claude-mem/internal/adapter"
	"github.com/iammorganparry/claude-mem/internal/config"
	"github.com/iammorganparry/claude-mem/internal/store"
)

var (
	migrateSource          string
	migrateProject         string
	migrateAdapterPath     string
	migrateTimestampFormat string
	migrateFields          map[string]string
	migrateDryRun          bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Import externally-shaped observation records",
	Long: `Import observation records from another memory system. The schema
adapter maps foreign field names onto the internal shape; deduplication is
delegated to the store.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateSource, "source", "", "source file path or URL holding a JSON array of records")
	migrateCmd.Flags().StringVar(&migrateProject, "project", "", "target project name")
	migrateCmd.Flags().StringVar(&migrateAdapterPath, "adapter", "", "adapter config YAML file")
	migrateCmd.Flags().StringVar(&migrateTimestampFormat, "timestamp-format", "", "timestamp format: epoch_ms|epoch_s|iso8601")
	migrateCmd.Flags().StringToStringVar(&migrateFields, "field", nil, "field mapping, e.g. --field title=heading --field timestamp=meta.created")
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "transform without writing")
	_ = migrateCmd.MarkFlagRequired("source")
	_ = migrateCmd.MarkFlagRequired("project")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closeLog := config.SetupLogger(cfg.LogDir, cfg.LogLevel)
	defer func() { _ = closeLog() }()

	adapterCfg, err := buildAdapterConfig()
	if err != nil {
		return err
	}

	records, err := loadRecords(migrateSource)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	migrator := adapter.NewMigrator(adapterCfg,
		store.NewSessionStore(db), store.NewObservationStore(db), logger)

	result, err := migrator.MigrateBatch(records, adapter.MigrateOptions{
		TargetProject:   migrateProject,
		ContinueOnError: true,
		DryRun:          migrateDryRun,
		OnProgress: func(done, total int) {
			fmt.Fprintf(os.Stderr, "\rmigrated %d/%d", done, total)
		},
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	fmt.Printf("total=%d imported=%d duplicates=%d errors=%d duration=%dms\n",
		result.Total, result.Imported, result.Duplicates, result.Errors, result.DurationMs)
	if result.Errors > 0 {
		return fmt.Errorf("%d record(s) failed", result.Errors)
	}
	return nil
}

func buildAdapterConfig() (*adapter.Config, error) {
	var cfg *adapter.Config
	if migrateAdapterPath != "" {
		loaded, err := adapter.LoadConfig(migrateAdapterPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = &adapter.Config{
			ID:   "cli",
			Name: "command line mapping",
			Fields: adapter.FieldMap{
				ID:        "id",
				Title:     "title",
				Subtitle:  "subtitle",
				Narrative: "narrative",
				Facts:     "facts",
				Type:      "type",
				Project:   "project",
				Timestamp: "timestamp",
				Embedding: "embedding",
			},
		}
	}

	for key, path := range migrateFields {
		switch key {
		case "id":
			cfg.Fields.ID = path
		case "title":
			cfg.Fields.Title = path
		case "subtitle":
			cfg.Fields.Subtitle = path
		case "narrative":
			cfg.Fields.Narrative = path
		case "facts":
			cfg.Fields.Facts = path
		case "type":
			cfg.Fields.Type = path
		case "project":
			cfg.Fields.Project = path
		case "timestamp":
			cfg.Fields.Timestamp = path
		case "embedding":
			cfg.Fields.Embedding = path
		default:
			return nil, fmt.Errorf("unknown field %q", key)
		}
	}
	if migrateTimestampFormat != "" {
		cfg.Transforms.Timestamp = migrateTimestampFormat
	}
	return cfg, nil
}

func loadRecords(source string) ([]string, error) {
	var data []byte
	var err error

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		resp, httpErr := http.Get(source)
		if httpErr != nil {
			return nil, fmt.Errorf("fetch source: %w", httpErr)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch source: status %d", resp.StatusCode)
		}
		data, err = io.ReadAll(resp.Body)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	parsed := gjson.ParseBytes(data)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("source must be a JSON array of records")
	}

	var records []string
	parsed.ForEach(func(_, v gjson.Result) bool {
		records = append(records, v.Raw)
		return true
	})
	return records, nil
}
