package export

import (
	"encoding/json"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catty/api/internal/checklist"
	"catty/api/internal/ingest"
)

func TestHierarchyParts(t *testing.T) {
	assert.Equal(t, []any{1.0, 2.0, nil, nil, nil}, HierarchyParts("1.2.x"))
	assert.Equal(t, []any{1.0, 1.0, 2.0, 3.0, nil}, HierarchyParts("1.1.2.3."))
	assert.Equal(t, []any{1.0, 2.0, 3.0, 4.0, 5.0}, HierarchyParts("1.2.3.4.5.6"))
	assert.Equal(t, []any{nil, nil, nil, nil, nil}, HierarchyParts(""))
}

func TestToOriginalNodes(t *testing.T) {
	doc := sampleDocument()
	doc.Nodes[0].Notes = "revisar"
	out := ToOriginal(doc, OriginalOptions{})

	_, hasScales := out["scales"]
	assert.False(t, hasScales)
	assert.Equal(t, doc.Meta, out["meta"])
	assert.Equal(t, map[string]any{"showMeta": true}, out["ui"])

	nodes := out["nodes"].([]map[string]any)
	require.Len(t, nodes, 4)
	byCode := map[string]map[string]any{}
	for _, n := range nodes {
		byCode[n["codigo"].(string)] = n
	}

	level := byCode["1"]
	assert.Equal(t, "G", level["tipo"])
	assert.Equal(t, checklist.TypeLevel, level["type"])
	assert.Equal(t, 1.0, level["1"])
	assert.Nil(t, level["2"])
	assert.Equal(t, 1.0, level["nivel_aplicacion"], "minimum VC below the level")
	assert.Equal(t, 5.0, level["nivel_importancia"], "maximum VI below the level")

	item := byCode["1.1.2"]
	assert.Equal(t, "A", item["tipo"])
	assert.Equal(t, "Migas de pan", item["agrupacion_en"])
	assert.Equal(t, checklist.NumericID(2), item["parentId"])
	assert.Equal(t, item["parentId"], item["parent"])
	assert.Equal(t, 2.0, item["nivel_aplicacion"])
	assert.Equal(t, 3.0, item["nivel_importancia"])
	assert.Equal(t, "revisar", item["observaciones"])
	assert.Nil(t, item["agrupacion_es"])
	assert.Equal(t, []any{1.0, 1.0, 2.0, nil, nil}, []any{item["1"], item["2"], item["3"], item["4"], item["5"]})

	encoded, err := json.Marshal(item)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"parentId":2`)
	assert.Contains(t, string(encoded), `"id":4`)
}

func TestToOriginalLevelsFollowScales(t *testing.T) {
	doc := sampleDocument()
	doc.Scales.VC[2].Value = 0
	out := ToOriginal(doc, OriginalOptions{PreserveScales: true})

	assert.Equal(t, doc.Scales, out["scales"])
	for _, n := range out["nodes"].([]map[string]any) {
		if n["codigo"] == "1.1" {
			assert.Equal(t, 0.0, n["nivel_aplicacion"])
		}
	}
}

func TestWrap(t *testing.T) {
	body := map[string]any{"nodes": []any{}}
	assert.Equal(t, body, Wrap(body, nil))

	wrapped := Wrap(body, []map[string]any{
		{"template": map[string]any{"code": "TPL-BASE-001"}},
		{},
	})
	assert.Equal(t, map[string]any{
		"template": map[string]any{"code": "TPL-BASE-001"},
		"data":     map[string]any{"data": body},
	}, wrapped)
}

// relations summarizes a document as "TYPE code title <- parentCode" lines.
func relations(doc *checklist.Document) []string {
	byID := map[checklist.NodeID]checklist.Node{}
	for _, n := range doc.Nodes {
		byID[n.ID] = n
	}
	var out []string
	for _, n := range doc.Nodes {
		out = append(out, fmt.Sprintf("%s %s %s <- %s (%s)", n.Type, n.Code, n.Title, byID[n.ParentID].Code, n.ID))
	}
	sort.Strings(out)
	return out
}

func roundTrip(t *testing.T, raw string) (*ingest.Result, *ingest.Result) {
	t.Helper()
	first := ingest.Parse([]byte(raw), ingest.Options{})
	require.NotEmpty(t, first.Document.Nodes, first.Warning())

	body := ToOriginal(first.Document, OriginalOptions{PreserveScales: first.HadScales})
	data, err := json.Marshal(Wrap(body, first.Envelopes))
	require.NoError(t, err)

	second := ingest.Parse(data, ingest.Options{})
	require.Empty(t, second.Warnings)
	return first, second
}

func TestRoundTripFlatNodes(t *testing.T) {
	first, second := roundTrip(t, `{
		"columns": [{"key": "evidencia", "label": "Evidencia", "type": "text"}],
		"nodes": [
			{"id": 1, "tipo": "NIVEL", "codigo": "1", "título": "Nivel"},
			{"id": 2, "tipo": "G", "codigo": "1.1", "título": "Grupo", "padre": 1},
			{"id": 3, "tipo": "A", "codigo": "1.1.1", "título": "Ítem", "padre": 2, "vi": 5, "vc": 0.5, "evidencia": "acta"}
		]
	}`)

	assert.Equal(t, relations(first.Document), relations(second.Document))
	item := second.Document.Nodes[2]
	assert.Equal(t, "VI_5", item.VIKey)
	assert.Equal(t, "VC_05", item.VCKey)
	assert.Equal(t, checklist.TextValue("acta"), item.Custom["EVIDENCIA"])
	assert.Equal(t, first.Document.Columns, second.Document.Columns)
}

func TestRoundTripNestedTree(t *testing.T) {
	first, second := roundTrip(t, `{
		"scales": {"VI": [{"key": "VI_1", "label": "Baja", "value": 1}, {"key": "VI_2", "label": "Alta", "value": 2}],
		           "VC": [{"key": "VC_1", "label": "Sí", "value": 1}, {"key": "VC_0", "label": "No", "value": 0}]},
		"tree": [
			{"code": "1", "title": "Nivel", "children": [
				{"code": "1.1", "title": "Grupo", "children": [
					{"code": "1.1.1", "title": "Uno", "viKey": "VI_2"},
					{"code": "1.1.2", "title": "Dos"}
				]}
			]},
			{"code": "2", "title": "Otro nivel"}
		]
	}`)

	assert.Equal(t, ingest.ShapeTree, first.Shape)
	assert.Equal(t, ingest.ShapeNodes, second.Shape)
	assert.Equal(t, relations(first.Document), relations(second.Document))
	assert.True(t, second.HadScales)
	assert.Equal(t, first.Document.Scales, second.Document.Scales)
}

func TestRoundTripRowsInEnvelope(t *testing.T) {
	first, second := roundTrip(t, `{
		"template": {"code": "TPL-BASE-001", "version": 1},
		"data": {
			"meta": {"name": ""},
			"rows": [
				{"codigo": "1", "enunciado": "Principios"},
				{"codigo": "1.1", "enunciado": "Visibilidad"},
				{"codigo": "1.1.1", "enunciado": "Estado del sistema", "observaciones": "ver guía"}
			]
		}
	}`)

	assert.Equal(t, ingest.ShapeRows, first.Shape)
	require.Len(t, second.Envelopes, 1)
	assert.Equal(t, map[string]any{"code": "TPL-BASE-001", "version": json.Number("1")}, second.Envelopes[0]["template"])
	assert.Equal(t, relations(first.Document), relations(second.Document))
	assert.Equal(t, "ver guía", second.Document.Nodes[2].Desc)
}

func TestTrailingDotCodesCollideBeforeExport(t *testing.T) {
	res := ingest.Parse([]byte(`{"nodes": [
		{"id": 1, "type": "GROUP", "code": "1", "title": "Nivel"},
		{"id": 2, "type": "ITEM", "code": "1.1", "title": "Uno", "parentId": 1},
		{"id": 3, "type": "ITEM", "code": "1.1.", "title": "Dos", "parentId": 1}
	]}`), ingest.Options{})
	require.Len(t, res.Document.Nodes, 3)

	var verr *checklist.ValidationError
	require.ErrorAs(t, res.Document.Validate(), &verr)
	require.Len(t, verr.Violations, 1)
	assert.Equal(t, checklist.ViolationDuplicateCode, verr.Violations[0].Kind)

	// once exported both rows would carry the same codigo
	codes := map[any]int{}
	for _, n := range ToOriginal(res.Document, OriginalOptions{})["nodes"].([]map[string]any) {
		codes[n["codigo"]]++
	}
	assert.Equal(t, 2, codes["1.1"])
}
