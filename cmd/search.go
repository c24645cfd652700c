package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/config"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/model"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search <city>",
	Short: "List psychologists around a city",
	Long: `Resolves a city query such as "La Rochelle (17000)" and lists the visible psychologists within the ` +
		`configured radius, nearest first. With --suggest, prints city suggestions for a partial query instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate(config.RequireDatabase); err != nil {
			return err
		}
		audience, _ := cmd.Flags().GetString("public")
		visio, _ := cmd.Flags().GetBool("visio")
		suggest, _ := cmd.Flags().GetBool("suggest")
		limit, _ := cmd.Flags().GetInt("limit")

		store, pool, err := openCatalog(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		svc := search.NewService(store, cfg.Search.RadiusKm)
		query := strings.Join(args, " ")
		out := cmd.OutOrStdout()

		if suggest {
			suggestions, err := svc.Suggest(ctx, query)
			if err != nil {
				return err
			}
			for _, s := range suggestions {
				fmt.Fprintln(out, s)
			}
			return nil
		}

		resp, err := svc.Search(ctx, search.Request{City: query, Audience: audience, Teleconsultation: visio})
		if err != nil {
			return eris.Wrap(err, "search")
		}

		t := table.NewWriter()
		t.SetOutputMirror(out)
		t.SetTitle(fmt.Sprintf("%s: %d psychologists within %.0f km", search.Suggestion(resp.City), len(resp.Results), resp.RadiusKm))
		t.AppendHeader(table.Row{"Km", "Name", "Address", "Public", "Visio"})
		for i, n := range resp.Results {
			if limit > 0 && i == limit {
				break
			}
			t.AppendRow(nearbyRow(n))
		}
		t.Render()
		return nil
	},
}

func nearbyRow(n model.Nearby) table.Row {
	p := n.Psychologist
	visio := ""
	if p.Teleconsultation {
		visio = "yes"
	}
	return table.Row{
		fmt.Sprintf("%.1f", n.DistanceKm),
		strings.TrimSpace(p.FirstName + " " + p.LastName),
		p.Address,
		strings.Join(p.Audiences, ", "),
		visio,
	}
}

func init() {
	searchCmd.Flags().String("public", "", "audience filter: Adultes, Adolescents or Enfants")
	searchCmd.Flags().Bool("visio", false, "only psychologists offering teleconsultation")
	searchCmd.Flags().Bool("suggest", false, "print city suggestions instead of searching")
	searchCmd.Flags().Int("limit", 50, "maximum rows printed, 0 for all")
	rootCmd.AddCommand(searchCmd)
}
