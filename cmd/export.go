package cmd

import (
	"alsolved/internal/config"
	"alsolved/internal/export"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the most recent grants from the ingestion database as bandi.json",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("db")
		out, _ := cmd.Flags().GetString("out")
		limit, _ := cmd.Flags().GetInt("limit")
		if dbPath == "" {
			dbPath = config.Cfg.ExportDB
		}
		if limit <= 0 {
			limit = config.Cfg.ExportLimit
		}

		var w io.Writer = os.Stdout
		if out != "" && out != "-" {
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return err
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}

		n, err := export.Export(context.Background(), dbPath, w, limit)
		if err != nil {
			return err
		}
		if w != os.Stdout {
			fmt.Printf("Exported %d grants to %s\n", n, out)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().String("db", "", "SQLite database path (default from EXPORT_DB)")
	exportCmd.Flags().String("out", "public/bandi.json", "Output file, - for stdout")
	exportCmd.Flags().Int("limit", 0, "Maximum grants, newest first (default from EXPORT_LIMIT)")
	rootCmd.AddCommand(exportCmd)
}
