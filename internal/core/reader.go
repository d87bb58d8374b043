package core

// reader.go turns an uploaded spreadsheet into header-keyed rows.
//
// Only the first sheet of a workbook is read. The first row is the header row;
// blank headers are dropped and rows with no value under any kept header are
// discarded. Rows beyond the cap are counted but not kept.

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// DefaultMaxRows is the row cap applied when the caller passes zero.
const DefaultMaxRows = 5000

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

var (
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
	zipMagic = []byte{'P', 'K', 0x03, 0x04}
)

// SheetData is the decoded content of a spreadsheet.
type SheetData struct {
	Headers  []string
	Rows     []map[string]string
	Metadata SheetMetadata
}

// ReadSpreadsheet decodes r and returns at most maxRows non-blank data rows.
// maxRows <= 0 means DefaultMaxRows.
func ReadSpreadsheet(r io.Reader, fileName string, maxRows int) (*SheetData, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &EmptyFileError{Reason: "file has no content"}
	}

	format, err := DetectFormat(fileName, data)
	if err != nil {
		return nil, err
	}

	var records [][]string
	switch format {
	case FormatXLSX:
		records, err = decodeXLSX(data)
	default:
		records, err = decodeCSV(data)
	}
	if err != nil {
		return nil, err
	}

	sheet, err := buildSheet(records, maxRows)
	if err != nil {
		return nil, err
	}
	sheet.Metadata.FileName = fileName
	sheet.Metadata.Format = format
	return sheet, nil
}

// DetectFormat picks a decoder by extension, sniffing the content for unknown ones.
func DetectFormat(fileName string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".csv", ".txt", ".tsv":
		return FormatCSV, nil
	case ".xls", ".ods", ".numbers", ".pdf", ".doc", ".docx":
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(fileName))
	}

	if bytes.HasPrefix(data, zipMagic) {
		return FormatXLSX, nil
	}
	if !utf8.Valid(data[:min(len(data), 4096)]) && bytes.IndexByte(data, 0) >= 0 {
		return "", fmt.Errorf("%w: binary content", ErrUnsupportedFormat)
	}
	return FormatCSV, nil
}

func decodeXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &EmptyFileError{Reason: "workbook has no sheets"}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("invalid xlsx: read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func decodeCSV(data []byte) ([][]string, error) {
	data = sanitizeUTF8(bytes.TrimPrefix(data, utf8BOM))

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("invalid csv: %w", err)
	}
	return records, nil
}

// sniffDelimiter picks the most frequent of comma, semicolon and tab in the header line.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}

	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// sanitizeUTF8 replaces invalid UTF-8 sequences with the replacement character.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('\uFFFD')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}

type sheetColumn struct {
	pos  int
	name string
}

func buildSheet(records [][]string, maxRows int) (*SheetData, error) {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	if len(records) == 0 {
		return nil, &EmptyFileError{Reason: "no header row"}
	}

	columns := headerColumns(records[0])
	if len(columns) == 0 {
		return nil, &EmptyFileError{Reason: "no column headers found"}
	}

	sheet := &SheetData{Headers: make([]string, len(columns))}
	for i, c := range columns {
		sheet.Headers[i] = c.name
	}

	total := 0
	for _, rec := range records[1:] {
		if isEmptyRow(rec, columns) {
			continue
		}
		total++
		if len(sheet.Rows) >= maxRows {
			continue
		}

		row := make(map[string]string, len(columns))
		for _, c := range columns {
			if c.pos < len(rec) {
				row[c.name] = rec[c.pos]
			} else {
				row[c.name] = ""
			}
		}
		sheet.Rows = append(sheet.Rows, row)
	}

	if total == 0 {
		return nil, &EmptyFileError{Reason: "no data rows found"}
	}

	sheet.Metadata.TotalRows = total
	sheet.Metadata.IsLargeDataset = total > maxRows
	return sheet, nil
}

// headerColumns trims the header row, drops blanks and disambiguates repeats
// as "Name (2)", "Name (3)" so every kept column has a distinct key.
func headerColumns(header []string) []sheetColumn {
	var columns []sheetColumn
	seen := make(map[string]int)

	for pos, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))
		if name == "" {
			continue
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s (%d)", name, n)
		}
		columns = append(columns, sheetColumn{pos: pos, name: name})
	}
	return columns
}

// isEmptyRow reports whether every cell under a kept header is blank.
func isEmptyRow(rec []string, columns []sheetColumn) bool {
	for _, c := range columns {
		if c.pos < len(rec) && strings.TrimSpace(rec[c.pos]) != "" {
			return false
		}
	}
	return true
}
