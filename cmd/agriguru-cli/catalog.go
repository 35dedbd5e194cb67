package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shivas758/agriguru/internal/domain"
	"github.com/shivas758/agriguru/internal/geo"
	"github.com/shivas758/agriguru/internal/matcher"
)

type validateOutput struct {
	Kind        string                    `json:"kind"`
	Match       *domain.MarketEntry       `json:"match,omitempty"`
	Score       float64                   `json:"score"`
	Suggestions []domain.MarketSuggestion `json:"suggestions,omitempty"`
}

// newValidateMarketCmd creates the validate-market subcommand.
func newValidateMarketCmd() *cobra.Command {
	var state, district string

	cmd := &cobra.Command{
		Use:   "validate-market <name>",
		Short: "Check a market name against the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.Matcher.Validate(ctx, args[0], state, district, matcher.Signal{})
			if err != nil {
				return fmt.Errorf("validate market: %w", err)
			}

			if outputJSON {
				resp := validateOutput{Kind: string(out.Kind), Match: out.Match, Score: out.Score}
				for _, c := range out.Candidates {
					resp.Suggestions = append(resp.Suggestions, domain.MarketSuggestion{Market: c.Market, Score: c.Score})
				}
				return printJSON(cmd, resp)
			}

			ui := newUI(cmd)
			switch out.Kind {
			case matcher.KindExact:
				ui.Success("%s is a known market (%s)", out.Match.Market, out.Match.Location())
			case matcher.KindAutoCorrected:
				ui.Info("Corrected to %s (%s), score %.2f", out.Match.Market, out.Match.Location(), out.Score)
			case matcher.KindSuggestions:
				ui.Warning("%q is ambiguous or misspelled. Candidates:", args[0])
			default:
				ui.Error("%q is not in the catalog", args[0])
			}
			if len(out.Candidates) > 0 && !out.Accepted() {
				rows := make([][]string, 0, len(out.Candidates))
				for _, c := range out.Candidates {
					rows = append(rows, []string{c.Market.Market, c.Market.District, c.Market.State, fmt.Sprintf("%.2f", c.Score)})
				}
				ui.Table([]string{"Market", "District", "State", "Score"}, rows)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&state, "state", "s", "", "restrict to a state")
	cmd.Flags().StringVarP(&district, "district", "d", "", "restrict to a district")
	return cmd
}

// newNearbyCmd creates the nearby subcommand.
func newNearbyCmd() *cobra.Command {
	var (
		state, district, market string
		lat, lon, radius        float64
		limit                   int
	)

	cmd := &cobra.Command{
		Use:   "nearby",
		Short: "List markets close to a place or a point",
		Example: `  agriguru nearby --market Siruguppa --district Ballari --state Karnataka
  agriguru nearby --lat 15.14 --lon 76.92 --radius 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			origin := geo.Origin{Location: domain.Location{State: state, District: district, Market: market}}

			hasLat, hasLon := cmd.Flags().Changed("lat"), cmd.Flags().Changed("lon")
			if hasLat != hasLon {
				return fmt.Errorf("--lat and --lon must be given together")
			}
			if hasLat {
				point := domain.Coordinates{Latitude: lat, Longitude: lon}
				if !point.Valid() {
					return fmt.Errorf("coordinates out of range")
				}
				origin.Coordinates = &point
			}
			if origin.Location.IsEmpty() && origin.Coordinates == nil {
				return fmt.Errorf("a place or --lat/--lon is required")
			}

			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if radius <= 0 {
				radius = cfg.Resolution.NearbyRadiusKm
			}
			if limit <= 0 {
				limit = cfg.Resolution.NearbyMaxMarkets
			}
			markets, err := a.Nearby.NearbyMarkets(ctx, origin, radius, limit)
			if err != nil {
				return fmt.Errorf("find nearby markets: %w", err)
			}

			if outputJSON {
				if markets == nil {
					markets = []domain.NearbyMarket{}
				}
				return printJSON(cmd, markets)
			}

			ui := newUI(cmd)
			if len(markets) == 0 {
				ui.Warning("No markets found near %s", originLabel(origin))
				return nil
			}
			ui.Section("Markets near " + originLabel(origin))
			ui.Table([]string{"Market", "District", "State", "Distance", "Strategy"}, nearbyRows(markets))
			return nil
		},
	}

	cmd.Flags().StringVarP(&state, "state", "s", "", "state name")
	cmd.Flags().StringVarP(&district, "district", "d", "", "district name")
	cmd.Flags().StringVarP(&market, "market", "m", "", "market name")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude")
	cmd.Flags().Float64Var(&radius, "radius", 0, "search radius in km (default from config)")
	cmd.Flags().IntVar(&limit, "max", 0, "maximum markets (default from config)")
	return cmd
}

func originLabel(o geo.Origin) string {
	if s := o.Location.String(); s != "" {
		return s
	}
	return fmt.Sprintf("%.4f, %.4f", o.Coordinates.Latitude, o.Coordinates.Longitude)
}
