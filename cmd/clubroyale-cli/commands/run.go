package commands

import (
	"context"
	"database/sql"
	"os"
	"strings"

	"cruiseledger-backend/lib/configutil"
	"cruiseledger-backend/lib/osutil"
	"cruiseledger-backend/lib/restyutil"
	"cruiseledger-backend/lib/scrapers/clubroyale"
	"cruiseledger-backend/services/extraction"
	"cruiseledger-backend/services/extraction/db"
	"cruiseledger-backend/services/extraction/records"
	"cruiseledger-backend/services/healer"

	"github.com/chromedp/chromedp"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

type Config struct {
	// path of a file holding the persisted member session blob
	SessionFile string `json:"session_file"`
	// the member-site host the session was captured on, selects the
	// storefront
	PageHost string `json:"page_host"`
	// member-site url opened by the browser page driver
	MemberSiteUrl string `json:"member_site_url"`
	// skip the browser-driven dom steps when true
	ApiOnly bool `json:"api_only"`
}

var runDb *string
var runDebugHttp *string

func init() {
	runDb = runCmd.Flags().String("db", "results.db", "The database to write extraction results to.")
	runDebugHttp = runCmd.Flags().String("debug-http", "", "Dumps every api exchange to the given directory.")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [--db <path/to/output.db>]",
	Short: "Runs a full extraction, heals the records and persists them.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := configutil.ReadConfig[Config]("config.json5")
		if err != nil {
			osutil.Fatal("failed to read config.json5", err)
		}

		blob, err := os.ReadFile(cfg.SessionFile)
		if err != nil {
			osutil.Fatal("failed to read session file", err)
		}

		ctx := osutil.SignalContext()

		sink := extraction.NewChannelSink()
		service := &extraction.Service{
			Sink:        sink,
			Session:     extraction.NewSession(),
			SessionBlob: strings.TrimSpace(string(blob)),
			PageHost:    cfg.PageHost,
		}
		if *runDebugHttp != "" {
			output := restyutil.NewFilesystemOutput(*runDebugHttp)
			service.NewClient = func(opts clubroyale.ClientOptions) (*clubroyale.Client, error) {
				client, err := clubroyale.NewClient(opts)
				if err != nil {
					return nil, err
				}
				restyutil.SetDebugOutput(client.Http, output)
				return client, nil
			}
		}
		if !cfg.ApiOnly {
			browserCtx, cancel := chromedp.NewContext(ctx)
			defer cancel()
			service.Page = clubroyale.NewChromePage(browserCtx, cfg.MemberSiteUrl)
		}

		aggregator := extraction.NewAggregator()
		done := make(chan struct{})
		go func() {
			defer close(done)
			aggregator.Drain(sink)
		}()

		var report records.HealingReport
		var healed bool
		service.Heal = func(ctx context.Context) error {
			// every batch is already on the wire, wait for the
			// receiver to catch up before reading the accumulated set
			sink.Flush()
			report = healer.Heal(ctx, aggregator.Result())
			healed = true
			return nil
		}

		runErr := service.Run(ctx)
		close(sink)
		<-done

		set := aggregator.Result()
		if !healed {
			// the run failed or stopped before the healing phase,
			// salvage whatever was streamed anyway
			report = healer.Heal(ctx, set)
		}

		sqlite, err := sql.Open("sqlite", *runDb)
		if err != nil {
			osutil.Fatal("failed to open results database", err)
		}
		_, err = sqlite.Exec(db.Schema)
		if err != nil {
			osutil.Fatal("failed to apply schema", err)
		}
		store := extraction.NewStore(sqlite)
		err = store.Save(ctx, set, report)
		if err != nil {
			osutil.Fatal("failed to persist records", err)
		}

		printReport(set, report)

		if runErr != nil {
			osutil.Fatal("extraction did not complete", runErr)
		}
	},
}
