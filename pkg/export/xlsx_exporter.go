package export

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const (
	defaultSheet  = "Sheet1"
	minColumnSize = 10.0
	maxColumnSize = 60.0
)

// XLSXExporter renders datasets into a single sheet workbook with a bold,
// filterable header row.
type XLSXExporter struct{}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// Render writes the dataset to a workbook and returns its bytes.
func (e *XLSXExporter) Render(data Dataset) ([]byte, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	sheet := sheetName(data.Title)
	if sheet != defaultSheet {
		if err := f.SetSheetName(defaultSheet, sheet); err != nil {
			return nil, fmt.Errorf("rename sheet: %w", err)
		}
	}

	widths := make([]float64, len(data.Headers))
	write := func(rowIdx int, cells []string) error {
		for c, value := range cells {
			cell := fmt.Sprintf("%s%d", columnName(c+1), rowIdx)
			if err := f.SetCellStr(sheet, cell, value); err != nil {
				return fmt.Errorf("set cell %s: %w", cell, err)
			}
			if w := float64(utf8.RuneCountInString(value)) * 1.1; w > widths[c] {
				widths[c] = w
			}
		}
		return nil
	}
	if err := write(1, data.Headers); err != nil {
		return nil, err
	}
	for r, row := range data.Rows {
		if err := write(r+2, row); err != nil {
			return nil, err
		}
	}

	last := columnName(len(data.Headers))
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(sheet, "A1", last+"1", style)
	}
	_ = f.AutoFilter(sheet, fmt.Sprintf("A1:%s1", last), nil)
	for i, w := range widths {
		w = min(max(w+1.5, minColumnSize), maxColumnSize)
		col := columnName(i + 1)
		_ = f.SetColWidth(sheet, col, col, w)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	return bytes.Clone(buf.Bytes()), nil
}

// columnName converts a 1-based column index to its letters (1 -> A, 27 -> AA).
func columnName(n int) string {
	s := ""
	for n > 0 {
		n--
		s = string(rune('A'+(n%26))) + s
		n /= 26
	}
	return s
}

// sheetName trims a title to a legal sheet name.
func sheetName(title string) string {
	if title == "" {
		return defaultSheet
	}
	invalid := map[rune]bool{':': true, '\\': true, '/': true, '?': true, '*': true, '[': true, ']': true}
	out := make([]rune, 0, 31)
	for _, r := range title {
		if invalid[r] {
			r = '_'
		}
		out = append(out, r)
		if len(out) == 31 {
			break
		}
	}
	return string(out)
}
