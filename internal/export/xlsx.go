package export

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"catty/api/internal/checklist"
)

const (
	sheetData      = "Datos"
	sheetChecklist = "Checklist"

	// dataWidth is the number of columns the Datos title rows span.
	dataWidth = 11

	defaultWorkbookTitle = "Checklist para evaluación de usabilidad en etapas iniciales de desarrollo de software"
	defaultWorkbookNote  = "Los datos recopilados mediante este instrumento serán utilizados exclusivamente con fines académicos y de investigación."
)

// metaFields are the respondent fields printed on the Datos sheet. A nil
// entry is a blank separator row.
var metaFields = []*struct{ label, key string }{
	{"Nombre", "name"},
	{"Correo", "email"},
	{"Nombre de la empresa", "company"},
	{"Empresa actual", "company_current"},
	nil,
	{"Industria", "industry"},
	{"Tamaño", "size"},
	{"Experiencia (años)", "experience"},
	nil,
}

// WriteXLSX renders the workbook: a Datos sheet with merged title rows,
// the respondent meta and the scale legend, then the Checklist grid where
// formula columns hold live formulas.
func WriteXLSX(doc *checklist.Document, grid *Grid) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetData); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeDataSheet(f, doc); err != nil {
		return nil, fmt.Errorf("datos sheet: %w", err)
	}
	if _, err := f.NewSheet(sheetChecklist); err != nil {
		return nil, fmt.Errorf("add sheet: %w", err)
	}
	if err := writeChecklistSheet(f, grid); err != nil {
		return nil, fmt.Errorf("checklist sheet: %w", err)
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeDataSheet(f *excelize.File, doc *checklist.Document) error {
	title := doc.MetaString("title")
	if title == "" {
		title = defaultWorkbookTitle
	}
	note := doc.MetaString("note")
	if note == "" {
		note = defaultWorkbookNote
	}

	row := 1
	put := func(values ...any) error {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		row++
		return f.SetSheetRow(sheetData, cell, &values)
	}

	if err := put(title); err != nil {
		return err
	}
	if err := put(note); err != nil {
		return err
	}
	for _, r := range []int{1, 2} {
		if err := f.MergeCell(sheetData, CellAddress(1, r), CellAddress(dataWidth, r)); err != nil {
			return err
		}
	}
	row++

	for _, field := range metaFields {
		if field == nil {
			row++
			continue
		}
		if err := put(field.label, doc.MetaString(field.key)); err != nil {
			return err
		}
	}

	if err := put("Escala de Importancia", "Valor (VI)", "", "Escala de Cumplimiento", "Valor (VC)"); err != nil {
		return err
	}
	vi, vc := doc.Scales.VI, doc.Scales.VC
	for i := 0; i < max(len(vi), len(vc)); i++ {
		values := []any{"", "", "", "", ""}
		if i < len(vi) {
			values[0], values[1] = vi[i].Label, vi[i].Value
		}
		if i < len(vc) {
			values[3], values[4] = vc[i].Label, vc[i].Value
		}
		if err := put(values...); err != nil {
			return err
		}
	}
	return f.SetColWidth(sheetData, "A", "A", 28)
}

func writeChecklistSheet(f *excelize.File, grid *Grid) error {
	labels := make([]any, len(grid.Headers))
	for i, h := range grid.Headers {
		labels[i] = h.Label
	}
	if err := f.SetSheetRow(sheetChecklist, "A1", &labels); err != nil {
		return err
	}
	for i, cells := range grid.Rows {
		for j, cell := range cells {
			addr := CellAddress(j+1, i+2)
			var err error
			if cell.IsFormula() {
				err = f.SetCellFormula(sheetChecklist, addr, strings.TrimPrefix(cell.Formula, "="))
			} else {
				err = f.SetCellValue(sheetChecklist, addr, cell.Value)
			}
			if err != nil {
				return fmt.Errorf("cell %s: %w", addr, err)
			}
		}
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheetChecklist, "A1", CellAddress(len(grid.Headers), 1), style)
}
