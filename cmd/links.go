package cmd

import (
	"alsolved/internal/catalog"
	"alsolved/internal/config"
	"alsolved/internal/datasource"
	"alsolved/internal/linkcheck"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "Check the official page of every grant",
	RunE: func(cmd *cobra.Command, args []string) error {
		if data, _ := cmd.Flags().GetString("data"); data != "" {
			config.Cfg.DataSource = data
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		workers, _ := cmd.Flags().GetInt("workers")
		noWayback, _ := cmd.Flags().GetBool("no-wayback")

		ctx := context.Background()
		cache, err := datasource.Open(ctx, config.Cfg)
		if err != nil {
			return err
		}
		all, err := catalog.New(cache).All(ctx)
		if err != nil {
			return err
		}

		checker := linkcheck.New()
		checker.Concurrency = workers
		if noWayback {
			checker.Wayback = nil
		}
		results := checker.CheckAll(ctx, all)

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tURL\tARCHIVIO")
		broken := 0
		for _, r := range results {
			if r.OK {
				continue
			}
			broken++
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", r.ID, r.StatusCode, r.URL, r.WaybackURL)
		}
		tw.Flush()
		fmt.Printf("\n%d link controllati, %d non raggiungibili\n", len(results), broken)
		return nil
	},
}

func init() {
	linksCmd.Flags().String("data", "", "Grant document: local path or http(s) URL (default from DATA_SOURCE)")
	linksCmd.Flags().Bool("json", false, "Print every result as JSON")
	linksCmd.Flags().Int("workers", 5, "Concurrent checks")
	linksCmd.Flags().Bool("no-wayback", false, "Skip the archive lookup for broken links")
	rootCmd.AddCommand(linksCmd)
}
