package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shivas758/agriguru/internal/domain"
	"github.com/shivas758/agriguru/internal/intent"
)

type resolveFlags struct {
	text       string
	commodity  string
	market     string
	district   string
	state      string
	date       string
	year       int
	historical bool
	queryType  string
	lat        float64
	lon        float64
}

// newResolveCmd creates the resolve subcommand.
func newResolveCmd() *cobra.Command {
	var f resolveFlags

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a price question through the full cascade",
		Long: `Resolve runs the same tiered lookup as the API: today's cache, the live
source, stored history, source history, then nearby markets.

Give the question either as flags or as free text with --text (requires
an LLM key).`,
		Example: `  agriguru resolve --commodity Onion --market Kurnool
  agriguru resolve --commodity Tomato --district Ballari --date 2024-11-02
  agriguru resolve --text "cotton price in adoni yesterday"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			useText := strings.TrimSpace(f.text) != ""

			var in domain.QueryIntent
			if !useText {
				var err error
				if in, err = intentFromFlags(f, cmd.Flags().Changed("lat"), cmd.Flags().Changed("lon")); err != nil {
					return err
				}
			}

			a, err := openApp(ctx, useText)
			if err != nil {
				return err
			}
			defer a.Close()
			if useText && a.Extractor == nil {
				return fmt.Errorf("--text needs llm.enabled and an LLM API key")
			}

			spin := NewSpinner(spinnerWriter(), "Resolving prices...")
			spin.Start()
			defer spin.Stop()

			if useText {
				spin.UpdateMessage("Understanding question...")
				in, err = a.Extractor.Extract(ctx, intent.Request{Text: f.text})
				if err != nil {
					return fmt.Errorf("extract intent: %w", err)
				}
				spin.UpdateMessage("Resolving prices...")
			}

			start := time.Now()
			res, err := a.Pipeline.Resolve(ctx, in)
			spin.Stop()
			if err != nil {
				return fmt.Errorf("resolve: %w", err)
			}
			today := a.Pipeline.Today()

			if outputJSON {
				return printJSON(cmd, map[string]interface{}{
					"intent":    in,
					"result":    res,
					"stale":     res.IsStale(today),
					"latencyMs": time.Since(start).Milliseconds(),
				})
			}

			ui := newUI(cmd)
			renderResult(ui, in, res, today)
			ui.Newline()
			ui.Info("Resolved in %s", FormatDuration(time.Since(start)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.text, "text", "t", "", "free-text question (uses the LLM)")
	cmd.Flags().StringVar(&f.commodity, "commodity", "", "commodity name; empty asks for every commodity")
	cmd.Flags().StringVarP(&f.market, "market", "m", "", "market (mandi) name")
	cmd.Flags().StringVarP(&f.district, "district", "d", "", "district name")
	cmd.Flags().StringVarP(&f.state, "state", "s", "", "state name")
	cmd.Flags().StringVar(&f.date, "date", "", "specific day (YYYY-MM-DD)")
	cmd.Flags().IntVar(&f.year, "year", 0, "latest data within a year")
	cmd.Flags().BoolVar(&f.historical, "historical", false, "skip today's tiers")
	cmd.Flags().StringVar(&f.queryType, "type", "", "price_inquiry, market_overview, trend or nearby_markets")
	cmd.Flags().Float64Var(&f.lat, "lat", 0, "latitude of the asker")
	cmd.Flags().Float64Var(&f.lon, "lon", 0, "longitude of the asker")
	return cmd
}

// intentFromFlags builds the intent for a flag-driven question.
func intentFromFlags(f resolveFlags, hasLat, hasLon bool) (domain.QueryIntent, error) {
	in := domain.QueryIntent{
		Commodity: strings.TrimSpace(f.commodity),
		Location: domain.Location{
			State:    strings.TrimSpace(f.state),
			District: strings.TrimSpace(f.district),
			Market:   strings.TrimSpace(f.market),
		},
		Date:         domain.LatestDate(),
		IsHistorical: f.historical,
		Confidence:   1,
	}
	in.HasMarket = in.Location.Market != ""

	switch {
	case f.date != "" && f.year != 0:
		return in, fmt.Errorf("--date and --year are mutually exclusive")
	case f.date != "":
		day, err := domain.ParseDay(f.date)
		if err != nil {
			return in, fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
		}
		in.Date = domain.OnDay(day)
	case f.year != 0:
		in.Date = domain.InYear(f.year)
		in.IsHistorical = true
	}

	if hasLat != hasLon {
		return in, fmt.Errorf("--lat and --lon must be given together")
	}
	if hasLat {
		point := domain.Coordinates{Latitude: f.lat, Longitude: f.lon}
		if !point.Valid() {
			return in, fmt.Errorf("coordinates out of range")
		}
		in.Coordinates = &point
	}

	switch qt := domain.QueryType(f.queryType); qt {
	case "":
		in.QueryType = domain.QueryPriceInquiry
		if in.Commodity == "" {
			in.QueryType = domain.QueryMarketOverview
		}
	case domain.QueryPriceInquiry, domain.QueryMarketOverview, domain.QueryTrend, domain.QueryNearbyMarkets:
		in.QueryType = qt
	default:
		return in, fmt.Errorf("unknown --type %q", f.queryType)
	}

	if !in.HasLocation() {
		return in, fmt.Errorf("a market, district, state or --lat/--lon is required")
	}
	return in, nil
}

func renderResult(ui *UI, in domain.QueryIntent, res *domain.ResolutionResult, today time.Time) {
	switch res.Outcome {
	case domain.OutcomeSuggestions:
		ui.Warning("Market %q was not found. Did you mean:", in.Location.Market)
		rows := make([][]string, 0, len(res.Suggestions))
		for _, s := range res.Suggestions {
			rows = append(rows, []string{s.Market.Market, s.Market.District, s.Market.State, fmt.Sprintf("%.2f", s.Score)})
		}
		ui.Table([]string{"Market", "District", "State", "Score"}, rows)
		return

	case domain.OutcomeEmpty:
		if res.TimedOut {
			ui.Error("The lookup timed out before any prices were found")
		} else {
			ui.Warning("No prices found for %s (%s)", describe(in), res.Reason)
		}
		if len(res.NearbyMarkets) > 0 {
			ui.Section("Nearby markets")
			ui.Table([]string{"Market", "District", "State", "Distance", "Strategy"}, nearbyRows(res.NearbyMarkets))
		}
		return
	}

	ui.Section("Prices")
	ui.KeyValue("Location", res.ResolvedLocation.String())
	ui.KeyValue("Source", res.Tier)
	if !res.DataDate.IsZero() {
		ui.KeyValue("Data date", res.DataDate.Format(domain.DateLayout))
	}
	if res.AutoCorrected {
		ui.Info("Showing results for %s instead of %s", res.ResolvedLocation.Market, res.RequestedLocation.Market)
	}
	if res.CommodityUsed != "" && !strings.EqualFold(res.CommodityUsed, in.Commodity) {
		ui.Info("Listed as %s", res.CommodityUsed)
	}
	if len(res.SubstitutedMarkets) > 0 {
		ui.Info("No data for the requested market; showing %s", strings.Join(res.SubstitutedMarkets, ", "))
	}
	if res.IsStale(today) {
		ui.Warning("Today's prices are not available yet; showing the latest known")
	}
	ui.Newline()

	if len(res.Trend) > 0 {
		ui.Table([]string{"Commodity", "Date", "Avg modal", "Min", "Max", "Samples"}, trendRows(res.Trend))
		return
	}
	ui.Table([]string{"Date", "Market", "District", "Commodity", "Variety", "Min", "Max", "Modal"}, recordRows(res.Records))
}

func describe(in domain.QueryIntent) string {
	what := in.Commodity
	if what == "" {
		what = "all commodities"
	}
	where := in.Location.String()
	if where == "" && in.Coordinates != nil {
		where = fmt.Sprintf("%.4f, %.4f", in.Coordinates.Latitude, in.Coordinates.Longitude)
	}
	return what + " in " + where
}

func recordRows(recs []domain.PriceRecord) [][]string {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			r.Date.Format(domain.DateLayout),
			r.Market,
			r.District,
			r.Commodity,
			r.Variety,
			r.MinPrice.StringFixed(0),
			r.MaxPrice.StringFixed(0),
			r.ModalPrice.StringFixed(0),
		})
	}
	return rows
}

func trendRows(series []domain.TrendSeries) [][]string {
	var rows [][]string
	for _, s := range series {
		for _, p := range s.Points {
			rows = append(rows, []string{
				s.Commodity,
				p.Date.Format(domain.DateLayout),
				p.AvgModal.StringFixed(2),
				p.MinPrice.StringFixed(0),
				p.MaxPrice.StringFixed(0),
				fmt.Sprint(p.Samples),
			})
		}
	}
	return rows
}

func nearbyRows(markets []domain.NearbyMarket) [][]string {
	rows := make([][]string, 0, len(markets))
	for _, n := range markets {
		dist := "-"
		if n.DistanceKm != nil {
			dist = fmt.Sprintf("%.1f km", *n.DistanceKm)
		}
		rows = append(rows, []string{n.Market.Market, n.Market.District, n.Market.State, dist, n.Strategy})
	}
	return rows
}

// spinnerWriter returns where spinners draw, or nil when they should not.
func spinnerWriter() io.Writer {
	if outputJSON || !IsTerminal() {
		return nil
	}
	return os.Stderr
}
