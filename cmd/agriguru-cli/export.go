package main

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/shivas758/agriguru/internal/domain"
)

const (
	recordsSheet = "Prices"
	trendSheet   = "Trend"
)

var (
	recordHeader = []interface{}{"Date", "State", "District", "Market", "Commodity", "Variety", "Grade", "Min price", "Max price", "Modal price", "Arrivals"}
	trendHeader  = []interface{}{"Commodity", "Date", "Avg modal price", "Min price", "Max price", "Samples"}
)

// writeRecordsWorkbook saves price records to an .xlsx file, one row each.
// Prices are written as numbers so the sheet can chart them.
func writeRecordsWorkbook(path string, recs []domain.PriceRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", recordsSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	if err := f.SetSheetRow(recordsSheet, "A1", &recordHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range recs {
		var arrivals interface{}
		if r.ArrivalQuantity.Valid {
			arrivals = r.ArrivalQuantity.Decimal.InexactFloat64()
		}
		row := []interface{}{
			r.Date.Format(domain.DateLayout), r.State, r.District, r.Market, r.Commodity, r.Variety, r.Grade,
			r.MinPrice.InexactFloat64(), r.MaxPrice.InexactFloat64(), r.ModalPrice.InexactFloat64(), arrivals,
		}
		if err := f.SetSheetRow(recordsSheet, cell(i+2), &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	return save(f, path, recordsSheet)
}

// writeTrendWorkbook saves trend series to an .xlsx file, one row per
// commodity per day.
func writeTrendWorkbook(path string, series []domain.TrendSeries) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", trendSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	if err := f.SetSheetRow(trendSheet, "A1", &trendHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	n := 2
	for _, s := range series {
		for _, p := range s.Points {
			row := []interface{}{
				s.Commodity, p.Date.Format(domain.DateLayout),
				p.AvgModal.Round(2).InexactFloat64(), p.MinPrice.InexactFloat64(), p.MaxPrice.InexactFloat64(), p.Samples,
			}
			if err := f.SetSheetRow(trendSheet, cell(n), &row); err != nil {
				return fmt.Errorf("write row %d: %w", n, err)
			}
			n++
		}
	}
	return save(f, path, trendSheet)
}

func cell(row int) string {
	name, _ := excelize.CoordinatesToCellName(1, row)
	return name
}

func save(f *excelize.File, path, sheet string) error {
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
