package core

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// TemplateSheetName is the worksheet name of generated import templates.
const TemplateSheetName = "Import"

// TemplateHeaders returns the header row of an import template. Individually
// required fields and fields of the identifying set are suffixed with " *".
func TemplateHeaders(fields []ImportField, requiredFields []string) []string {
	identifying := make(map[string]bool, len(requiredFields))
	for _, key := range requiredFields {
		identifying[key] = true
	}

	headers := make([]string, len(fields))
	for i, f := range fields {
		headers[i] = f.Label
		if f.Required || identifying[f.Key] {
			headers[i] += " *"
		}
	}
	return headers
}

// TemplateRows orders example values, keyed by field key or label, into rows
// that line up with TemplateHeaders.
func TemplateRows(fields []ImportField, examples []map[string]string) [][]string {
	rows := make([][]string, 0, len(examples))
	for _, ex := range examples {
		row := make([]string, len(fields))
		for i, f := range fields {
			if v, ok := ex[f.Key]; ok {
				row[i] = v
			} else {
				row[i] = ex[f.Label]
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteTemplate writes an .xlsx workbook with one header row followed by the example rows.
func WriteTemplate(w io.Writer, headers []string, examples [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), TemplateSheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]interface{}, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(TemplateSheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, ex := range examples {
		row := make([]interface{}, len(ex))
		for j, v := range ex {
			row[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(TemplateSheetName, cell, &row); err != nil {
			return fmt.Errorf("write example row %d: %w", i+1, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write template: %w", err)
	}
	return nil
}
