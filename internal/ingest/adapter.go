// Package ingest turns loosely shaped checklist JSON into a canonical
// checklist.Document. Input may be a flat node list, a nested tree or a
// spreadsheet-like row list, with English, Spanish or ad hoc field names.
// Adapting never fails: anything unrecognizable degrades to defaults and a
// warning on the Result.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"catty/api/internal/checklist"
)

// NoNodesWarning is reported when no node container could be found.
const NoNodesWarning = "no nodes found in the JSON payload (check its shape)"

const maxEnvelopeDepth = 3

// Shape names the container the nodes were read from.
type Shape string

const (
	ShapeNone  Shape = ""
	ShapeNodes Shape = "nodes"
	ShapeTree  Shape = "tree"
	ShapeRows  Shape = "rows"
)

type Options struct {
	// Scales apply when the payload carries none; empty means the defaults.
	Scales checklist.Scales
}

type Result struct {
	Document  *checklist.Document
	Allocator *checklist.IDAllocator
	Shape     Shape
	// HadScales is true when the payload supplied its own usable scales.
	HadScales bool
	// Envelopes keeps the sibling keys of every unwrapped {data: ...}
	// layer, outermost first, so a save can wrap the document the same way.
	Envelopes []map[string]any
	Warnings  []string
}

func (r *Result) Enveloped() bool { return len(r.Envelopes) > 0 }

// Warning joins all warnings into one status line.
func (r *Result) Warning() string { return strings.Join(r.Warnings, "; ") }

// Store opens a node store over the adapted nodes with the adapted
// selection, continuing the id sequence used during ingestion.
func (r *Result) Store() *checklist.Store {
	store := checklist.NewStore(r.Document.Nodes, r.Allocator)
	_ = store.Select(r.Document.SelectedID)
	return store
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Parse decodes data as JSON and adapts it.
func Parse(data []byte, opts Options) *Result {
	raw, err := decodeJSON(data)
	if err != nil {
		res := Adapt(nil, opts)
		res.Warnings = append([]string{fmt.Sprintf("input is not valid JSON: %v", err)}, res.Warnings...)
		return res
	}
	return Adapt(raw, opts)
}

func decodeJSON(data []byte) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Adapt converts an already decoded value. A string is decoded as JSON
// first; a bare array is read as a flat node list.
func Adapt(raw any, opts Options) *Result {
	res := &Result{}
	fallback := opts.Scales
	if len(fallback.VI) == 0 || len(fallback.VC) == 0 {
		fallback = checklist.DefaultScales()
	}

	payload := res.unwrap(res.decodeString(raw))
	a := &adapter{res: res, doc: checklist.NewDocument()}

	a.doc.Scales = fallback.Clone()
	if rec, ok := firstRecord(payload, scalesKeys...); ok {
		if scales, ok := a.scales(rec, fallback); ok {
			a.doc.Scales = scales
			res.HadScales = true
		}
	}
	if list, ok := firstList(payload, priorityKeys...); ok {
		a.doc.PriorityLevels = priorityLevels(list)
	}
	if meta, ok := firstRecord(payload, metaKeys...); ok {
		a.doc.Meta = meta
	}
	if intro, ok := firstList(payload, introKeys...); ok {
		a.doc.Intro = intro
	}
	if questions, ok := firstRecord(payload, questionsKeys...); ok {
		a.doc.Questions = questions
	}
	if ui, ok := firstRecord(payload, "ui"); ok {
		a.doc.UI = ui
	}
	if list, ok := firstList(payload, columnsKeys...); ok {
		a.doc.Columns = columns(list)
	}

	var drafts []draft
	if list, ok := firstList(payload, flatKeys...); ok {
		res.Shape = ShapeNodes
		drafts = a.flat(list)
	} else if list, ok := firstList(payload, treeKeys...); ok {
		res.Shape = ShapeTree
		drafts = a.tree(list)
	}
	if len(drafts) == 0 {
		if list, ok := firstList(payload, rowsKeys...); ok && len(list) > 0 {
			res.Shape = ShapeRows
			drafts = a.rows(list)
		}
	}

	a.doc.Nodes = a.link(drafts)
	if len(a.doc.Nodes) == 0 {
		res.Shape = ShapeNone
		res.Warnings = append(res.Warnings, NoNodesWarning)
	}
	a.doc.SelectedID = a.selection(payload)

	res.Document = a.doc
	return res
}

func (r *Result) decodeString(raw any) any {
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		return raw
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}
	}
	decoded, err := decodeJSON(data)
	if err != nil {
		r.warnf("input is not valid JSON: %v", err)
		return nil
	}
	return decoded
}

// unwrap peels up to three {data: {...}} layers. A data value that is not
// an object stays in place so rows stored under "data" remain reachable.
func (r *Result) unwrap(v any) Record {
	if list, ok := v.([]any); ok {
		return Record{"nodes": list}
	}
	current, ok := asRecord(v)
	if !ok {
		return Record{}
	}
	for i := 0; i < maxEnvelopeDepth; i++ {
		inner, ok := asRecord(current["data"])
		if !ok {
			break
		}
		rest := make(map[string]any, len(current))
		for k, val := range current {
			if k != "data" {
				rest[k] = val
			}
		}
		r.Envelopes = append(r.Envelopes, rest)
		current = inner
	}
	return current
}

type adapter struct {
	res *Result
	doc *checklist.Document
}

// draft is a node whose id and parent are not final yet.
type draft struct {
	node       checklist.Node
	rawID      checklist.NodeID
	parentIdx  int
	parentRef  checklist.NodeID
	parentCode string
}

func (a *adapter) scales(rec Record, fallback checklist.Scales) (checklist.Scales, bool) {
	out := checklist.Scales{
		VI: scaleEntries(scaleVIRules.Value(rec)),
		VC: scaleEntries(scaleVCRules.Value(rec)),
	}
	switch {
	case len(out.VI) == 0 && len(out.VC) == 0:
		a.res.warnf("scales ignored: no usable entries")
		return checklist.Scales{}, false
	case len(out.VI) == 0:
		a.res.warnf("scales: VI missing, using defaults")
		out.VI = fallback.Clone().VI
	case len(out.VC) == 0:
		a.res.warnf("scales: VC missing, using defaults")
		out.VC = fallback.Clone().VC
	}
	return out, true
}

func scaleEntries(v any) []checklist.ScaleEntry {
	list, _ := v.([]any)
	var out []checklist.ScaleEntry
	for _, item := range list {
		rec, ok := asRecord(item)
		if !ok {
			continue
		}
		key := strings.TrimSpace(text(rec["key"]))
		if key == "" {
			continue
		}
		value, _ := number(rec["value"])
		out = append(out, checklist.ScaleEntry{
			Key:   key,
			Label: strings.TrimSpace(text(rec["label"])),
			Value: value,
		})
	}
	return out
}

func priorityLevels(list []any) []checklist.PriorityLevel {
	var out []checklist.PriorityLevel
	for i, item := range list {
		rec, ok := asRecord(item)
		if !ok {
			continue
		}
		lo, okLo := number(priorityMinRules.Value(rec))
		hi, okHi := number(priorityMaxRules.Value(rec))
		if !okLo || !okHi {
			continue
		}
		id := strings.TrimSpace(text(rec["id"]))
		if id == "" {
			id = fmt.Sprintf("level_%d", i+1)
		}
		out = append(out, checklist.PriorityLevel{
			ID:   id,
			Name: strings.TrimSpace(text(priorityNameRules.Value(rec))),
			Min:  lo,
			Max:  hi,
		})
	}
	return out
}

// columns normalizes column definitions, dropping ones without a key.
func columns(list []any) []checklist.Column {
	out := make([]checklist.Column, 0, len(list))
	for _, item := range list {
		rec, ok := asRecord(item)
		if !ok {
			continue
		}
		label := strings.TrimSpace(text(columnLabelRules.Value(rec)))
		if label == "" {
			label = strings.TrimSpace(text(rec["key"]))
		}
		keySource := text(columnKeyRules.Value(rec))
		if strings.TrimSpace(keySource) == "" {
			keySource = label
		}
		key := checklist.NormalizeColumnKey(FoldDiacritics(keySource))
		if key == "" {
			continue
		}
		var options []string
		if raw, ok := columnOptionsRules.Value(rec).([]any); ok {
			for _, opt := range raw {
				options = append(options, text(opt))
			}
		}
		id := strings.TrimSpace(text(rec["id"]))
		if id == "" {
			id = key
		}
		column := checklist.Column{
			ID:        id,
			Key:       key,
			Label:     label,
			Type:      checklist.ColumnType(strings.ToLower(strings.TrimSpace(text(columnTypeRules.Value(rec))))),
			AppliesTo: checklist.AppliesTo(strings.ToUpper(strings.TrimSpace(text(columnAppliesRules.Value(rec))))),
			Editable:  coerceBool(columnEditableRules.Value(rec), true),
			Options:   options,
			Formula:   checklist.TemplateString(text(columnFormulaRules.Value(rec))),
		}
		out = append(out, column.Normalize())
	}
	return out
}

// base reads the fields every shape shares.
func (a *adapter) base(rec Record, desc Rules) draft {
	n := checklist.NewNode(checklist.NodeID{}, checklist.TypeItem, checklist.NodeID{})
	n.Code = strings.TrimSpace(text(codeRules.Value(rec)))
	n.Title = strings.TrimSpace(text(titleRules.Value(rec)))
	n.Desc = text(desc.Value(rec))
	n.VIKey = coerceVIKey(a.doc.Scales, viRules.Value(rec))
	n.VCKey = coerceVCKey(a.doc.Scales, vcRules.Value(rec))
	n.Weight = coerceNumber(weightRules.Value(rec), 1)
	n.Required = coerceBool(requiredRules.Value(rec), true)
	n.Active = coerceBool(activeRules.Value(rec), true)
	n.AltTitle = strings.TrimSpace(text(altTitleRules.Value(rec)))
	rawID := checklist.ParseNodeID(scalarOrNil(idRules.Value(rec)))
	n.Custom = a.custom(rec, nodeLabel(n, rawID))
	return draft{
		node:      n,
		rawID:     rawID,
		parentIdx: -1,
	}
}

func scalarOrNil(v any) any {
	switch v.(type) {
	case string, json.Number, float64, int, int64:
		return v
	}
	return nil
}

func (a *adapter) flat(list []any) []draft {
	out := make([]draft, 0, len(list))
	skipped := 0
	for idx, item := range list {
		rec, ok := asRecord(item)
		if !ok {
			skipped++
			continue
		}
		d := a.base(rec, descRules)
		d.node.Notes = text(notesRules.Value(rec))
		d.node.Type = coerceType(typeRules.Value(rec), checklist.CodeDepth(d.node.Code), false)
		d.node.Order = coerceNumber(orderRules.Value(rec), float64((idx+1)*10))
		d.parentRef = parentRef(parentRules.Value(rec))
		out = append(out, d)
	}
	a.reportSkipped(skipped)
	return out
}

// tree flattens nested nodes depth-first; parents come from the walk.
func (a *adapter) tree(roots []any) []draft {
	type frame struct {
		value  any
		parent int
		depth  int
	}
	stack := make([]frame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{value: roots[i], parent: -1, depth: 1})
	}
	var out []draft
	skipped := 0
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		rec, ok := asRecord(f.value)
		if !ok {
			skipped++
			continue
		}
		kids, _ := childrenRules.Value(rec).([]any)
		d := a.base(rec, descRules)
		d.node.Notes = text(notesRules.Value(rec))
		d.node.Type = coerceType(typeRules.Value(rec), f.depth, len(kids) > 0)
		d.node.Order = coerceNumber(orderRules.Value(rec), float64(len(out)*10))
		d.parentIdx = f.parent
		out = append(out, d)
		self := len(out) - 1
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, frame{value: kids[i], parent: self, depth: f.depth + 1})
		}
	}
	a.reportSkipped(skipped)
	return out
}

// rows reads a row list; parents are rebuilt from the codes.
func (a *adapter) rows(list []any) []draft {
	out := make([]draft, 0, len(list))
	skipped := 0
	for idx, item := range list {
		rec, ok := asRecord(item)
		if !ok {
			skipped++
			continue
		}
		d := a.base(rec, rowDescRules)
		d.node.Type = coerceType(typeRules.Value(rec), checklist.CodeDepth(d.node.Code), false)
		d.node.Order = coerceNumber(orderRules.Value(rec), float64((idx+1)*10))
		d.parentCode = checklist.ParentCode(d.node.Code)
		a.mergeCells(rec, &d.node, nodeLabel(d.node, d.rawID))
		out = append(out, d)
	}
	a.reportSkipped(skipped)
	return out
}

func (a *adapter) reportSkipped(n int) {
	if n > 0 {
		a.res.warnf("skipped %d entries that are not objects", n)
	}
}

// link assigns final ids and resolves parents. Numeric ids found in the
// input are reserved first; records without an id, or repeating one, get
// the next free number.
func (a *adapter) link(drafts []draft) []checklist.Node {
	ids := checklist.NewIDAllocator(1)
	for _, d := range drafts {
		ids.Observe(d.rawID)
	}
	a.res.Allocator = ids

	known := make(map[checklist.NodeID]bool, len(drafts))
	for i := range drafts {
		id := drafts[i].rawID
		if id.IsZero() || known[id] {
			if !id.IsZero() {
				a.res.warnf("duplicate node id %s reassigned", id)
			}
			id = ids.Next()
		}
		known[id] = true
		drafts[i].node.ID = id
	}

	byCode := make(map[string]checklist.NodeID, len(drafts))
	for _, d := range drafts {
		if code := checklist.NormalizeCode(d.node.Code); code != "" {
			byCode[code] = d.node.ID
		}
	}

	nodes := make([]checklist.Node, len(drafts))
	for i, d := range drafts {
		n := d.node
		switch {
		case d.parentIdx >= 0:
			n.ParentID = drafts[d.parentIdx].node.ID
		case d.parentCode != "":
			n.ParentID = byCode[checklist.NormalizeCode(d.parentCode)]
		case d.parentRef.IsZero():
		case known[d.parentRef]:
			n.ParentID = d.parentRef
		default:
			if id, ok := byCode[checklist.NormalizeCode(d.parentRef.String())]; ok {
				n.ParentID = id
			} else {
				n.ParentID = d.parentRef
				a.res.warnf("node %s: parent %s not found", n.Label(), d.parentRef)
			}
		}
		nodes[i] = n
	}
	return nodes
}

func (a *adapter) selection(payload Record) checklist.NodeID {
	if len(a.doc.Nodes) == 0 {
		return checklist.NodeID{}
	}
	wanted := checklist.ParseNodeID(scalarOrNil(selectedRules.Value(payload)))
	if !wanted.IsZero() {
		for _, n := range a.doc.Nodes {
			if n.ID == wanted {
				return wanted
			}
		}
	}
	return a.doc.Nodes[0].ID
}
