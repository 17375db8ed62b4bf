package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
)

const utf8BOM = "\ufeff"

// WriteCSV writes the grid as UTF-8 CSV with a byte order mark so
// spreadsheet applications pick the right encoding. Formula cells carry
// their formula text.
func WriteCSV(grid *Grid) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(utf8BOM)

	writer := csv.NewWriter(&buf)
	header := make([]string, len(grid.Headers))
	for i, h := range grid.Headers {
		header[i] = h.Label
	}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, cells := range grid.Rows {
		record := make([]string, len(cells))
		for j, cell := range cells {
			if cell.IsFormula() {
				record[j] = cell.Formula
				continue
			}
			record[j] = cellText(cell.Value)
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cellText(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case bool:
		return strconv.FormatBool(value)
	}
	return fmt.Sprint(v)
}
