package tabular

import (
	"bytes"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/xuri/excelize/v2"
)

const (
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeZip  = "application/zip"
	mimeText = "text/plain"
)

// detectFormat picks an adapter from the extension, then checks the content.
// A spreadsheet extension on plain text is parsed as delimited text, and a
// workbook saved with a text extension is opened as a workbook.
func detectFormat(f RawFile) (Format, error) {
	mt := mimetype.Detect(f.Data)
	isWorkbook := mt.Is(mimeXLSX) || mt.Is(mimeZip)
	isText := false
	for m := mt; m != nil; m = m.Parent() {
		if m.Is(mimeText) {
			isText = true
			break
		}
	}

	switch f.Ext() {
	case ".csv", ".txt":
		if isWorkbook {
			return FormatSpreadsheet, nil
		}
		return FormatDelimited, nil
	case ".xlsx", ".xls":
		if isWorkbook {
			return FormatSpreadsheet, nil
		}
		if isText {
			return FormatDelimited, nil
		}
		return "", malformed(fmt.Sprintf("unsupported workbook format %s; save the file as .xlsx or .csv", mt.String()), nil)
	}
	return "", malformed(fmt.Sprintf("unsupported file type %q", f.Ext()), nil)
}

// ParseSpreadsheet reads the first sheet of an .xlsx workbook. Blank cells
// become empty strings.
func ParseSpreadsheet(data []byte, opts Options) (*Data, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, malformed("could not open workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, emptyFile("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, malformed(fmt.Sprintf("could not read sheet %q", sheets[0]), err)
	}

	return build(rows, opts.HasHeader)
}

// WriteSpreadsheet writes headers and rows to a single-sheet workbook.
func WriteSpreadsheet(w io.Writer, sheet string, headers []string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Sheet1"
	}
	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	}

	if err := writeRow(f, sheet, 1, headers); err != nil {
		return err
	}
	for i, r := range rows {
		if err := writeRow(f, sheet, i+2, r); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, rowNum int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("row %d: %w", rowNum, err)
	}
	vals := make([]any, len(cells))
	for i, c := range cells {
		vals[i] = c
	}
	if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
		return fmt.Errorf("row %d: %w", rowNum, err)
	}
	return nil
}
