package cmd

import (
	"alsolved/internal/catalog"
	"alsolved/internal/config"
	"alsolved/internal/datasource"
	"alsolved/internal/filter"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run one catalog query and print the page as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, _ := cmd.Flags().GetString("q")
		region, _ := cmd.Flags().GetString("regione")
		status, _ := cmd.Flags().GetString("stato")
		page, _ := cmd.Flags().GetInt("page")
		size, _ := cmd.Flags().GetInt("size")
		if data, _ := cmd.Flags().GetString("data"); data != "" {
			config.Cfg.DataSource = data
		}
		if size <= 0 {
			size = config.Cfg.PageSize
		}

		ctx := context.Background()
		cache, err := datasource.Open(ctx, config.Cfg)
		if err != nil {
			return err
		}
		pipe := catalog.New(cache)
		st := catalog.NewState(size).
			WithQuery(q).
			WithRegion(region).
			WithStatus(filter.ParseStatus(status)).
			WithPage(page)
		res := pipe.Run(ctx, st)
		if res.Failed {
			return fmt.Errorf("query: grant document unavailable")
		}

		if table, _ := cmd.Flags().GetBool("table"); !table {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(res)
		}

		now := time.Now()
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATO\tSCADENZA\tTITOLO")
		for _, g := range res.Items {
			exp := filter.Classify(g, now)
			state := "attivo"
			switch {
			case exp.Expired:
				state = "scaduto"
			case exp.ExpiringSoon:
				state = "in scadenza"
			}
			deadline := exp.Label
			if deadline == "" {
				deadline = "N/A"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", g.ID, state, deadline, g.DisplayTitle())
		}
		tw.Flush()
		fmt.Printf("\nPagina %d, %d risultati totali, altre pagine: %v\n", res.Page, res.Total, res.HasMore)
		return nil
	},
}

func init() {
	queryCmd.Flags().String("q", "", "Text search on title and marketing text")
	queryCmd.Flags().String("regione", "", "Region filter, e.g. Lombardia or Nazionale")
	queryCmd.Flags().String("stato", "", "Status filter: attivi, scaduti")
	queryCmd.Flags().Int("page", 1, "Page number")
	queryCmd.Flags().Int("size", 0, "Page size (default from PAGE_SIZE)")
	queryCmd.Flags().Bool("table", false, "Print a table instead of the JSON page")
	queryCmd.Flags().String("data", "", "Grant document: local path or http(s) URL (default from DATA_SOURCE)")
	rootCmd.AddCommand(queryCmd)
}
