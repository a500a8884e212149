package commands

import (
	"database/sql"
	"fmt"
	"os"

	"cruiseledger-backend/lib/osutil"
	"cruiseledger-backend/services/extraction"
	"cruiseledger-backend/services/extraction/records"
	"cruiseledger-backend/services/healer"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

var healDb *string

func init() {
	healDb = healCmd.Flags().String("db", "results.db", "The database holding extraction results.")
	rootCmd.AddCommand(healCmd)
}

var healCmd = &cobra.Command{
	Use:   "heal [--db <path/to/results.db>]",
	Short: "Re-runs the healing pass over stored records and prints the report.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		sqlite, err := sql.Open("sqlite", *healDb)
		if err != nil {
			osutil.Fatal("failed to open results database", err)
		}
		store := extraction.NewStore(sqlite)

		cruises, err := store.Cruises(ctx)
		if err != nil {
			osutil.Fatal("failed to load cruises", err)
		}
		offers, err := store.Offers(ctx)
		if err != nil {
			osutil.Fatal("failed to load offers", err)
		}
		loyalty, err := store.LatestLoyalty(ctx)
		if err != nil {
			osutil.Fatal("failed to load loyalty snapshot", err)
		}

		set := &records.Set{Cruises: cruises, Offers: offers, Loyalty: loyalty}
		report := healer.Heal(ctx, set)

		err = store.Save(ctx, set, report)
		if err != nil {
			osutil.Fatal("failed to persist healed records", err)
		}

		printReport(set, report)
	},
}

func printReport(set *records.Set, report records.HealingReport) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Entity", "Id", "Field", "New Value"})
	for _, fix := range report.FieldsFixed {
		t.AppendRow(table.Row{fix.Entity, fix.Id, fix.Field, fix.New})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()

	fmt.Printf(
		"cruises: %d, offers: %d, loyalty points: %d (%s)\n",
		len(set.Cruises), len(set.Offers), set.Loyalty.Points, set.Loyalty.Tier,
	)
	fmt.Printf(
		"fields fixed: %d, orphan cruises: %d, orphan offers: %d\n",
		len(report.FieldsFixed), report.OrphanCruises, report.OrphanOffers,
	)
}
