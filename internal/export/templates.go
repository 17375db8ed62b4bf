package export

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"catty/api/internal/checklist"
)

//go:embed templates/*.html
var templateFS embed.FS

var checklistTemplate = template.Must(
	template.New("checklist.html").Funcs(template.FuncMap{
		"indent": func(depth int) string {
			if depth < 1 {
				depth = 1
			}
			return fmt.Sprintf("%.1frem", float64(depth-1)*1.5)
		},
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
		"severityClass": severityClass,
	}).ParseFS(templateFS, "templates/checklist.html"),
)

// TemplateData holds data for the printable checklist.
type TemplateData struct {
	Title       string
	Meta        []TemplateField
	Scales      checklist.Scales
	Columns     []string
	Rows        []TemplateRow
	GeneratedAt time.Time
}

type TemplateField struct {
	Label string
	Value string
}

// TemplateRow is one node. Severity and Priority are set for items only.
type TemplateRow struct {
	Code     string
	Title    string
	Desc     string
	Type     string
	Depth    int
	IsItem   bool
	VI       string
	VC       string
	Severity int
	Priority string
	Custom   []string
}

// BuildTemplateData flattens the document in tree order with the derived
// severity and priority of every item.
func BuildTemplateData(doc *checklist.Document, title string, levels []checklist.PriorityLevel, closeFinal bool, now time.Time) TemplateData {
	assessed := checklist.Assess(doc.Nodes, doc.Scales, levels, closeFinal)
	depths := checklist.Depths(doc.Nodes)

	data := TemplateData{Title: title, Scales: doc.Scales, GeneratedAt: now}
	for _, field := range metaFields {
		if field == nil {
			continue
		}
		if v := doc.MetaString(field.key); v != "" {
			data.Meta = append(data.Meta, TemplateField{Label: field.label, Value: v})
		}
	}

	printable := make([]checklist.Column, 0, len(doc.Columns))
	for _, column := range doc.Columns {
		if column.Type == checklist.ColumnFormula {
			continue
		}
		printable = append(printable, column)
		data.Columns = append(data.Columns, column.Label)
	}

	for _, n := range checklist.OrderedNodes(doc.Nodes) {
		row := TemplateRow{
			Code:   n.Code,
			Title:  n.Title,
			Desc:   n.Desc,
			Type:   string(n.Type),
			Depth:  depths[n.ID],
			IsItem: n.Type == checklist.TypeItem,
		}
		if row.IsItem {
			row.VI = doc.Scales.Label(checklist.ScaleVI, n.VIKey)
			row.VC = doc.Scales.Label(checklist.ScaleVC, n.VCKey)
			row.Severity = assessed[n.ID].Severity
			row.Priority = assessed[n.ID].Priority
		}
		for _, column := range printable {
			cell := ""
			if v, ok := n.Custom[column.Key]; ok && column.AppliesToNode(n.Type) {
				cell = v.String()
			}
			row.Custom = append(row.Custom, cell)
		}
		data.Rows = append(data.Rows, row)
	}
	return data
}

func severityClass(severity int) string {
	switch {
	case severity >= 66:
		return "sev-high"
	case severity >= 33:
		return "sev-medium"
	default:
		return "sev-low"
	}
}

// RenderChecklistHTML renders the printable checklist page.
func RenderChecklistHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := checklistTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
