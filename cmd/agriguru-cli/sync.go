package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shivas758/agriguru/internal/domain"
	"github.com/shivas758/agriguru/internal/ingest"
)

var errNoSource = errors.New("price sync needs source.api_key (or DATA_GOV_API_KEY)")

// newSyncCmd creates the sync subcommand.
func newSyncCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch one day's prices from the open-data source into the store",
		Long: `Sync fetches every configured commodity and state for a day (today by
default), stores the rows, and adds newly seen markets to the catalog.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Syncer == nil {
				return errNoSource
			}

			day := a.Pipeline.Today()
			if date != "" {
				if day, err = domain.ParseDay(date); err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
			}

			ui := newUI(cmd)
			ui.Step("Syncing prices for %s", day.Format(domain.DateLayout))
			bar := ui.ProgressBar("jobs", int64(syncJobs()))
			if bar != nil {
				a.Syncer.OnProgress(func(done, total int) {
					bar.SetCurrent(int64(done))
				})
			}

			res, err := a.Syncer.Run(ctx, day)
			if bar != nil && !bar.Completed() {
				bar.Abort(false)
			}
			ui.Close()
			if err != nil && res == nil {
				return fmt.Errorf("sync: %w", err)
			}

			if outputJSON {
				if jerr := printJSON(cmd, res); jerr != nil {
					return jerr
				}
				return err
			}
			printSyncResult(ui, res)
			if err != nil {
				return fmt.Errorf("sync: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "day to sync (YYYY-MM-DD, default today)")
	return cmd
}

// backfillSummary totals a multi-day sync.
type backfillSummary struct {
	From       time.Time            `json:"from"`
	To         time.Time            `json:"to"`
	Days       int                  `json:"days"`
	FailedDays int                  `json:"failedDays"`
	Records    int                  `json:"records"`
	NewMarkets int64                `json:"newMarkets"`
	Runs       []*ingest.SyncResult `json:"runs"`
}

// newBackfillCmd creates the backfill subcommand.
func newBackfillCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Sync the days before today, oldest first",
		Long: `Backfill runs the daily sync for each of the given number of days before
today. Days on which the source returned nothing usable are counted and
skipped. The run stops on interrupt or a configuration error.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 || days > 365 {
				return fmt.Errorf("--days must be between 1 and 365")
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Syncer == nil {
				return errNoSource
			}

			ui := newUI(cmd)
			var barOut io.Writer = io.Discard
			if !outputJSON && IsTerminal() {
				barOut = os.Stderr
			}
			bar := NewDayBar(barOut, days, "backfill")

			sum, err := backfill(ctx, a.Syncer, a.Pipeline.Today(), days, func(day time.Time) {
				bar.Describe(day.Format(domain.DateLayout))
			}, bar.Add)
			bar.Finish()

			if outputJSON {
				if jerr := printJSON(cmd, sum); jerr != nil {
					return jerr
				}
				return err
			}
			ui.Success("Backfilled %s to %s: %d records, %d new markets",
				sum.From.Format(domain.DateLayout), sum.To.Format(domain.DateLayout), sum.Records, sum.NewMarkets)
			if sum.FailedDays > 0 {
				ui.Warning("%d of %d days returned no usable data", sum.FailedDays, sum.Days)
			}
			return err
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "number of days before today")
	return cmd
}

type dayRunner interface {
	Run(ctx context.Context, date time.Time) (*ingest.SyncResult, error)
}

// backfill syncs the days days before today, oldest first.
func backfill(ctx context.Context, runner dayRunner, today time.Time, days int, starting func(time.Time), finished func()) (*backfillSummary, error) {
	sum := &backfillSummary{
		From: today.AddDate(0, 0, -days),
		To:   today.AddDate(0, 0, -1),
		Days: days,
	}
	for i := days; i >= 1; i-- {
		day := today.AddDate(0, 0, -i)
		starting(day)
		res, err := runner.Run(ctx, day)
		finished()
		if res != nil {
			sum.Runs = append(sum.Runs, res)
			sum.Records += res.Records
			sum.NewMarkets += res.NewMarkets
		}
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrCancelled), domain.IsConfiguration(err):
			return sum, fmt.Errorf("backfill stopped at %s: %w", day.Format(domain.DateLayout), err)
		default:
			sum.FailedDays++
			if logger != nil {
				logger.Warn().Err(err).Day("date", day).Msg("backfill day failed")
			}
		}
	}
	return sum, nil
}

func syncJobs() int {
	c, s := len(cfg.Ingestion.Commodities), len(cfg.Ingestion.States)
	if c == 0 {
		c = 1
	}
	if s == 0 {
		s = 1
	}
	return c * s
}

func printSyncResult(ui *UI, res *ingest.SyncResult) {
	ui.Section("Sync")
	ui.KeyValue("Run", res.RunID)
	ui.KeyValue("Date", res.Date.Format(domain.DateLayout))
	ui.KeyValue("Jobs", fmt.Sprintf("%d (%d failed)", res.Jobs, res.Failed))
	ui.KeyValue("Records", res.Records)
	ui.KeyValue("New markets", res.NewMarkets)
	ui.KeyValue("Duration", FormatDuration(res.Duration))
	for _, e := range res.Errors {
		ui.Warning("%s", e)
	}
	if res.Failed == 0 {
		ui.Success("Sync complete")
	}
}
