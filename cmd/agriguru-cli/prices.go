package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shivas758/agriguru/internal/domain"
	"github.com/shivas758/agriguru/internal/storage"
)

type priceFlags struct {
	commodity, state, district, market string
	xlsx                               string
}

func (f *priceFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.commodity, "commodity", "", "commodity name")
	cmd.Flags().StringVarP(&f.state, "state", "s", "", "state name")
	cmd.Flags().StringVarP(&f.district, "district", "d", "", "district name")
	cmd.Flags().StringVarP(&f.market, "market", "m", "", "market name")
	cmd.Flags().StringVar(&f.xlsx, "xlsx", "", "also write the rows to this Excel file")
}

func (f *priceFlags) filter() storage.PriceFilter {
	return storage.PriceFilter{Commodity: f.commodity, State: f.state, District: f.district, Market: f.market}
}

// newLatestCmd creates the latest subcommand.
func newLatestCmd() *cobra.Command {
	var (
		f     priceFlags
		limit int
	)

	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the most recent stored prices",
		Long: `Latest reads the price store directly, without calling the live source.
Each market and variety is shown once, at its most recent date.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := f.filter()
			if filter.Location().IsEmpty() && filter.Commodity == "" {
				return fmt.Errorf("at least one of --commodity, --state, --district or --market is required")
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if limit <= 0 {
				limit = cfg.Resolution.ResultLimit
			}
			recs, err := a.Prices.GetLatest(ctx, filter, limit)
			if err != nil {
				return fmt.Errorf("read prices: %w", err)
			}

			if f.xlsx != "" {
				if err := writeRecordsWorkbook(f.xlsx, recs); err != nil {
					return err
				}
			}

			if outputJSON {
				if recs == nil {
					recs = []domain.PriceRecord{}
				}
				return printJSON(cmd, recs)
			}

			ui := newUI(cmd)
			if len(recs) == 0 {
				ui.Warning("No stored prices match")
				return nil
			}
			ui.Table([]string{"Date", "Market", "District", "Commodity", "Variety", "Min", "Max", "Modal"}, recordRows(recs))
			if f.xlsx != "" {
				ui.Success("Wrote %d rows to %s", len(recs), f.xlsx)
			}
			return nil
		},
	}

	f.bind(cmd)
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum rows (default from config)")
	return cmd
}

// newTrendCmd creates the trend subcommand.
func newTrendCmd() *cobra.Command {
	var (
		f     priceFlags
		days  int
		until string
	)

	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Show day-by-day price trends for a commodity",
		Example: `  agriguru trend --commodity Onion --state Karnataka --days 30
  agriguru trend --commodity Cotton --market Adoni --xlsx cotton.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.commodity == "" {
				return fmt.Errorf("--commodity is required")
			}
			var end time.Time
			if until != "" {
				var err error
				if end, err = domain.ParseDay(until); err != nil {
					return fmt.Errorf("--until must be YYYY-MM-DD: %w", err)
				}
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if days <= 0 {
				days = cfg.Resolution.TrendDays
			}
			if end.IsZero() {
				end = a.Pipeline.Today().AddDate(0, 0, 1)
			}
			series, err := a.Prices.GetTrend(ctx, storage.TrendQuery{
				Commodity: f.commodity,
				State:     f.state,
				District:  f.district,
				Market:    f.market,
				Days:      days,
				Until:     end,
			})
			if err != nil {
				return fmt.Errorf("read trend: %w", err)
			}

			if f.xlsx != "" {
				if err := writeTrendWorkbook(f.xlsx, series); err != nil {
					return err
				}
			}

			if outputJSON {
				if series == nil {
					series = []domain.TrendSeries{}
				}
				return printJSON(cmd, series)
			}

			ui := newUI(cmd)
			if len(series) == 0 {
				ui.Warning("No %s prices in the last %d days", f.commodity, days)
				return nil
			}
			ui.Table([]string{"Commodity", "Date", "Avg modal", "Min", "Max", "Samples"}, trendRows(series))
			if f.xlsx != "" {
				ui.Success("Wrote trend to %s", f.xlsx)
			}
			return nil
		},
	}

	f.bind(cmd)
	cmd.Flags().IntVar(&days, "days", 0, "window length in days (default from config)")
	cmd.Flags().StringVar(&until, "until", "", "exclusive end day (YYYY-MM-DD, default today)")
	return cmd
}
