// Package export renders leaderboards as Excel workbooks.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/okian/versus/internal/domain/model"
)

// ErrEmptyList is returned when a list has no approved items to export.
var ErrEmptyList = errors.New("list has no ranked items")

// Source reads a ranked list.
type Source interface {
	RankedList(ctx context.Context, list model.ListID, limit int) ([]model.Item, error)
}

// Header is the first row of every exported sheet.
var Header = []string{"Rank", "Name", "Category", "Rating", "Wins", "Losses", "Matches", "Last played"}

const lastPlayedLayout = "2006-01-02 15:04"

// SheetName returns the sheet title used for list.
func SheetName(list model.ListID) string { return fmt.Sprintf("List %d", list) }

// Leaderboard builds a workbook holding the top limit items of list.
// Timestamps are rendered in loc.
func Leaderboard(ctx context.Context, src Source, list model.ListID, limit int, loc *time.Location) (*excelize.File, error) {
	items, err := src.RankedList(ctx, list, limit)
	if err != nil {
		return nil, fmt.Errorf("load list %d: %w", list, err)
	}
	if len(items) == 0 {
		return nil, ErrEmptyList
	}
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	sheet := SheetName(list)
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := writeSheet(f, sheet, items, loc); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func writeSheet(f *excelize.File, sheet string, items []model.Item, loc *time.Location) error {
	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", "H1", bold); err != nil {
		return err
	}

	for i, it := range items {
		played := ""
		if it.LastPlayed != nil {
			played = it.LastPlayed.In(loc).Format(lastPlayedLayout)
		}
		row := []any{i + 1, it.Name, it.Category, it.Rating, it.Wins, it.Losses, it.Matches, played}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	rating, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(4, len(items)+1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "D2", last, rating); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "B", "B", 36); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "H", "H", 18); err != nil {
		return err
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// Write renders the workbook for list into w.
func Write(ctx context.Context, w io.Writer, src Source, list model.ListID, limit int, loc *time.Location) (int, error) {
	f, err := Leaderboard(ctx, src, list, limit, loc)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(SheetName(list))
	if err != nil {
		return 0, err
	}
	if _, err := f.WriteTo(w); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}
	return len(rows) - 1, nil
}

// WriteFile saves the workbook for list to path.
func WriteFile(ctx context.Context, path string, src Source, list model.ListID, limit int, loc *time.Location) (int, error) {
	f, err := Leaderboard(ctx, src, list, limit, loc)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()
	if err := f.SaveAs(path); err != nil {
		return 0, fmt.Errorf("save %s: %w", path, err)
	}
	rows, err := f.GetRows(SheetName(list))
	if err != nil {
		return 0, err
	}
	return len(rows) - 1, nil
}
