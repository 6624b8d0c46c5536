package cmd

import (
	"alsolved/internal/catalog"
	"alsolved/internal/config"
	"alsolved/internal/content"
	"alsolved/internal/datasource"
	"alsolved/internal/handlers"
	"alsolved/internal/sitegen"
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Render the whole site as static files",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		workers, _ := cmd.Flags().GetInt("workers")
		if data, _ := cmd.Flags().GetString("data"); data != "" {
			config.Cfg.DataSource = data
		}
		if base, _ := cmd.Flags().GetString("base-path"); cmd.Flags().Changed("base-path") {
			config.Cfg.BasePath = config.NormalizeBasePath(base)
		}

		if err := content.LoadEmbedded(); err != nil {
			return fmt.Errorf("content: %w", err)
		}
		ctx := context.Background()
		cache, err := datasource.Open(ctx, config.Cfg)
		if err != nil {
			return err
		}
		sum, err := sitegen.Build(ctx, handlers.NewSite(catalog.New(cache)), sitegen.Options{OutDir: out, Workers: workers})
		if err != nil {
			return err
		}
		fmt.Printf("Wrote %d files to %s (%d grants, %d catalog pages) in %s\n",
			sum.Files, out, sum.Grants, sum.CatalogPages, sum.Duration.Round(time.Millisecond))
		return nil
	},
}

func init() {
	buildCmd.Flags().String("out", "dist", "Output directory")
	buildCmd.Flags().Int("workers", 0, "Concurrent grant renders (default GOMAXPROCS)")
	buildCmd.Flags().String("data", "", "Grant document: local path or http(s) URL (default from DATA_SOURCE)")
	buildCmd.Flags().String("base-path", "", "Deployment base path, e.g. /AlSolved_Bandi (default from BASE_PATH)")
	rootCmd.AddCommand(buildCmd)
}
