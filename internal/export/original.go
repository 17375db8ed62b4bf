package export

import (
	"maps"
	"strconv"

	"catty/api/internal/checklist"
)

// hierarchyDepth is the number of numeric code parts written per node.
const hierarchyDepth = 5

type OriginalOptions struct {
	// PreserveScales writes the document scales; set it when the source
	// file carried its own.
	PreserveScales bool
}

// ToOriginal builds the backend document shape. Every node keeps the
// legacy fields (numeric hierarchy parts, tipo, codigo, agrupacion_*,
// nivel_*) next to the canonical ones, so older readers keep working and
// re-ingesting the output restores the same tree. Levels are recomputed
// from the current scales.
func ToOriginal(doc *checklist.Document, opts OriginalOptions) map[string]any {
	levels := checklist.AggregateLevels(doc.Nodes, doc.Scales)

	nodes := make([]map[string]any, 0, len(doc.Nodes))
	for _, n := range doc.Nodes {
		nodes = append(nodes, originalNode(n, levels[n.ID]))
	}

	columns := make([]checklist.Column, len(doc.Columns))
	copy(columns, doc.Columns)

	ui := doc.UI
	if ui == nil {
		ui = map[string]any{"showMeta": true}
	}
	out := map[string]any{
		"meta":      nonNilMap(doc.Meta),
		"intro":     nonNilList(doc.Intro),
		"questions": nonNilMap(doc.Questions),
		"ui":        ui,
		"columns":   columns,
		"nodes":     nodes,
	}
	if len(doc.PriorityLevels) > 0 {
		out["priorityLevels"] = doc.PriorityLevels
	}
	if !doc.SelectedID.IsZero() {
		out["selectedId"] = doc.SelectedID
	}
	if opts.PreserveScales {
		out["scales"] = doc.Scales
	}
	return out
}

func originalNode(n checklist.Node, lv checklist.Levels) map[string]any {
	code := checklist.NormalizeCode(n.Code)
	out := map[string]any{
		"id":                n.ID,
		"tipo":              originalType(n.Type),
		"codigo":            code,
		"descripcion":       n.Desc,
		"agrupacion_en":     n.Title,
		"agrupacion_es":     textOrNil(n.AltTitle),
		"observaciones":     textOrNil(n.Notes),
		"nivel_aplicacion":  floatOrNil(lv.Application),
		"nivel_importancia": floatOrNil(lv.Importance),
		"parentId":          n.ParentID,
		"parent":            n.ParentID,

		"type":     n.Type,
		"title":    n.Title,
		"viKey":    n.VIKey,
		"vcKey":    n.VCKey,
		"weight":   n.Weight,
		"required": n.Required,
		"active":   n.Active,
		"order":    n.Order,
		"custom":   nonNilCustom(n.Custom),
	}
	for i, part := range HierarchyParts(code) {
		out[strconv.Itoa(i+1)] = part
	}
	return out
}

// HierarchyParts splits a code into five numeric parts. Missing or
// non-numeric segments are nil: "1.2.x" gives [1 2 nil nil nil].
func HierarchyParts(code string) []any {
	parts := make([]any, hierarchyDepth)
	for i, segment := range checklist.CodeSegments(code) {
		if i == hierarchyDepth {
			break
		}
		if n, err := strconv.ParseFloat(segment, 64); err == nil {
			parts[i] = n
		}
	}
	return parts
}

// originalType maps GROUP and LEVEL to "G" and ITEM to "A".
func originalType(t checklist.NodeType) string {
	switch t {
	case checklist.TypeItem:
		return "A"
	case checklist.TypeGroup, checklist.TypeLevel:
		return "G"
	}
	return string(t)
}

// Wrap re-applies the {data: ...} envelopes recorded at ingestion,
// outermost first, keeping each layer's sibling keys.
func Wrap(body map[string]any, envelopes []map[string]any) map[string]any {
	current := body
	for i := len(envelopes) - 1; i >= 0; i-- {
		layer := maps.Clone(envelopes[i])
		if layer == nil {
			layer = map[string]any{}
		}
		layer["data"] = current
		current = layer
	}
	return current
}

func textOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func floatOrNil(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nonNilList(l []any) []any {
	if l == nil {
		return []any{}
	}
	return l
}

func nonNilCustom(c checklist.CustomValues) checklist.CustomValues {
	if c == nil {
		return checklist.CustomValues{}
	}
	return c
}
