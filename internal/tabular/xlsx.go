package tabular

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"
)

// Sheet is one named worksheet read back from a workbook.
type Sheet struct {
	Name  string
	Table Table
}

// MaxSheetTitle is the longest worksheet title accepted by spreadsheet services.
const MaxSheetTitle = 100

// WriteXLSX writes t to path as a single-sheet workbook with a header row.
func WriteXLSX(path, sheet string, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet = workbookSheetName(sheet)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	if err := writeRow(f, sheet, 1, t.Columns); err != nil {
		return err
	}
	for i, r := range t.Rows {
		if err := writeRow(f, sheet, i+2, r); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	vals := make([]interface{}, len(values))
	for i, v := range values {
		vals[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

// ReadXLSX reads every worksheet of a workbook. The first row of each sheet
// is the header; short rows are padded with nulls.
func ReadXLSX(path string) ([]Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var sheets []Sheet
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", name, err)
		}
		var t Table
		if len(rows) > 0 {
			t = FromRows(rows[1:], rows[0])
		}
		sheets = append(sheets, Sheet{Name: name, Table: t})
	}
	return sheets, nil
}

// WriteCSV writes t with a header row.
func WriteCSV(w io.Writer, t Table) error {
	cw := gocsv.DefaultCSVWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	for _, r := range t.Rows {
		if err := cw.Write(r); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SheetTitle trims a worksheet title to MaxSheetTitle runes.
func SheetTitle(s string) string {
	if s == "" {
		return "Sheet1"
	}
	if utf8.RuneCountInString(s) <= MaxSheetTitle {
		return s
	}
	return string([]rune(s)[:MaxSheetTitle])
}

// workbookSheetName fits a title to the xlsx worksheet naming rules.
func workbookSheetName(s string) string {
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return '_'
		}
		return r
	}, strings.Trim(s, "'"))
	if s == "" {
		return "Sheet1"
	}
	if r := []rune(s); len(r) > excelize.MaxSheetNameLength {
		s = string(r[:excelize.MaxSheetNameLength])
	}
	return s
}
