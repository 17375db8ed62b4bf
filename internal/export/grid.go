package export

import (
	"strconv"
	"strings"

	"catty/api/internal/checklist"
)

// Header is one spreadsheet column. Column is set for dynamic columns.
type Header struct {
	Key    string
	Label  string
	Column *checklist.Column
}

// Cell holds either a literal value or a formula. Formula carries the
// leading "=" and is never evaluated here.
type Cell struct {
	Value   any
	Formula string
}

func (c Cell) IsFormula() bool { return c.Formula != "" }

// Grid is the Checklist sheet: a header row and one row per node in tree
// order. Row i of Rows sits on spreadsheet row i+2.
type Grid struct {
	Headers []Header
	Rows    [][]Cell
	Nodes   []checklist.Node
}

var baseHeaders = []Header{
	{Key: "ID", Label: "ID"},
	{Key: "CODE", Label: "Código"},
	{Key: "TITLE", Label: "Enunciado"},
	{Key: "TYPE", Label: "Tipo"},
	{Key: "PARENT_CODE", Label: "Padre"},
	{Key: "VI_LABEL", Label: "VI (texto)"},
	{Key: "VI", Label: "VI (valor)"},
	{Key: "VC_LABEL", Label: "VC (texto)"},
	{Key: "VC", Label: "VC (valor)"},
	{Key: "PESO", Label: "Peso"},
	{Key: "REQ", Label: "Req."},
	{Key: "ACTIVO", Label: "Activo"},
}

var trailingHeaders = []Header{
	{Key: "ORDEN", Label: "Orden"},
	{Key: "DESC", Label: "Descripción"},
}

// placeholderAliases point alternate placeholder names at base columns.
var placeholderAliases = map[string]string{
	"VI_VALUE": "VI",
	"VC_VALUE": "VC",
	"WEIGHT":   "PESO",
}

// BuildGrid lays the document out as the Checklist sheet. Dynamic columns
// that do not apply to a node's type stay blank on that row; formula
// columns get their template rewritten with this row's cell addresses.
func BuildGrid(doc *checklist.Document) *Grid {
	headers := make([]Header, 0, len(baseHeaders)+len(doc.Columns)+len(trailingHeaders))
	headers = append(headers, baseHeaders...)
	for i := range doc.Columns {
		column := &doc.Columns[i]
		label := column.Label
		if column.Type == checklist.ColumnFormula {
			label = "ƒ " + label
		}
		headers = append(headers, Header{Key: strings.ToUpper(column.Key), Label: label, Column: column})
	}
	headers = append(headers, trailingHeaders...)

	keys := make([]string, len(headers))
	for i, h := range headers {
		keys[i] = h.Key
	}

	nodes := checklist.OrderedNodes(doc.Nodes)
	byID := make(map[checklist.NodeID]checklist.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	grid := &Grid{Headers: headers, Rows: make([][]Cell, 0, len(nodes)), Nodes: nodes}
	for i, n := range nodes {
		cells := placeholderCells(keys, i+2)
		row := make([]Cell, len(headers))
		for j, h := range headers {
			if h.Column != nil {
				row[j] = customCell(h.Column, n, cells)
				continue
			}
			row[j] = Cell{Value: baseValue(h.Key, n, byID, doc.Scales)}
		}
		grid.Rows = append(grid.Rows, row)
	}
	return grid
}

func baseValue(key string, n checklist.Node, byID map[checklist.NodeID]checklist.Node, scales checklist.Scales) any {
	switch key {
	case "ID":
		return n.ID.Value()
	case "CODE":
		return n.Code
	case "TITLE":
		return n.Title
	case "TYPE":
		return string(n.Type)
	case "PARENT_CODE":
		if parent, ok := byID[n.ParentID]; ok && !n.ParentID.IsZero() {
			return parent.Code
		}
		return ""
	case "VI_LABEL":
		return scales.Label(checklist.ScaleVI, n.VIKey)
	case "VI":
		return scaleValue(scales, checklist.ScaleVI, n.VIKey)
	case "VC_LABEL":
		return scales.Label(checklist.ScaleVC, n.VCKey)
	case "VC":
		return scaleValue(scales, checklist.ScaleVC, n.VCKey)
	case "PESO":
		return n.Weight
	case "REQ":
		return flag(n.Required)
	case "ACTIVO":
		return flag(n.Active)
	case "ORDEN":
		return n.Order
	case "DESC":
		return n.Desc
	}
	return ""
}

func scaleValue(scales checklist.Scales, kind checklist.ScaleKind, key string) any {
	if v, ok := scales.Value(kind, key); ok {
		return v
	}
	return ""
}

func customCell(column *checklist.Column, n checklist.Node, cells map[string]string) Cell {
	if !column.AppliesToNode(n.Type) {
		return Cell{Value: ""}
	}
	if column.Type == checklist.ColumnFormula {
		return Cell{Formula: column.Formula.Substitute(cells)}
	}
	v, ok := n.Custom[column.Key]
	if column.Type == checklist.ColumnBoolean {
		return Cell{Value: flag(ok && v.Kind == checklist.KindBoolean && v.Bool)}
	}
	if !ok {
		return Cell{Value: ""}
	}
	return Cell{Value: v.Raw()}
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// placeholderCells maps every header key to its cell address on row,
// plus the alias names.
func placeholderCells(keys []string, row int) map[string]string {
	cells := make(map[string]string, len(keys)+len(placeholderAliases))
	for i, key := range keys {
		if _, taken := cells[key]; !taken {
			cells[key] = CellAddress(i+1, row)
		}
	}
	for alias, target := range placeholderAliases {
		if _, taken := cells[alias]; taken {
			continue
		}
		if addr, ok := cells[target]; ok {
			cells[alias] = addr
		}
	}
	return cells
}

// ColumnLetter converts a 1-based column index to its letters: 1 is "A",
// 27 is "AA".
func ColumnLetter(n int) string {
	var b []byte
	for n > 0 {
		r := (n - 1) % 26
		b = append([]byte{byte('A' + r)}, b...)
		n = (n - 1) / 26
	}
	return string(b)
}

// CellAddress returns the A1 reference for a 1-based column and row.
func CellAddress(col, row int) string {
	return ColumnLetter(col) + strconv.Itoa(row)
}
