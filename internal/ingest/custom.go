package ingest

import "catty/api/internal/checklist"

// reservedFields are canonical node fields; a column never captures them
// from the top level of a record.
var reservedFields = map[string]bool{
	"id": true, "parentid": true, "order": true, "type": true, "code": true,
	"title": true, "desc": true, "vikey": true, "vckey": true, "weight": true,
	"required": true, "active": true, "custom": true, "children": true, "cells": true,
}

func (a *adapter) column(key string) *checklist.Column {
	normalized := checklist.NormalizeColumnKey(FoldDiacritics(key))
	for i := range a.doc.Columns {
		column := &a.doc.Columns[i]
		if column.Key == key || column.Key == normalized || (column.ID != "" && column.ID == key) {
			return column
		}
	}
	return nil
}

// custom builds the node's custom map from its "custom" object, then fills
// in declared columns found as top-level record fields. Values already in
// "custom" win.
func (a *adapter) custom(rec Record, label string) checklist.CustomValues {
	out := checklist.CustomValues{}
	if nested, ok := asRecord(rec["custom"]); ok {
		for _, k := range nested.keys() {
			column := a.column(k)
			key := k
			if column != nil {
				if column.Type == checklist.ColumnFormula {
					continue
				}
				key = column.Key
			}
			if v, ok := a.customValue(label, column, nested[k]); ok {
				out[key] = v
			}
		}
	}

	for i := range a.doc.Columns {
		column := &a.doc.Columns[i]
		if column.Type == checklist.ColumnFormula {
			continue
		}
		if _, exists := out[column.Key]; exists {
			continue
		}
		raw, ok := topLevel(rec, column.Key)
		if !ok {
			continue
		}
		if v, ok := a.customValue(label, column, raw); ok {
			out[column.Key] = v
		}
	}
	return out
}

// customValue stores a value that does not fit its declared column as a
// plain value and records a warning naming the node and the column.
func (a *adapter) customValue(label string, column *checklist.Column, raw any) (checklist.CustomValue, bool) {
	v, ok, err := customValue(column, raw)
	if err != nil && ok {
		a.res.warnf("node %s: %v; kept as entered", label, err)
	}
	return v, ok
}

// nodeLabel names a node in warnings by code, title or source id.
func nodeLabel(n checklist.Node, rawID checklist.NodeID) string {
	switch {
	case n.Code != "":
		return n.Code
	case n.Title != "":
		return n.Title
	case !rawID.IsZero():
		return "#" + rawID.String()
	}
	return "(unnamed)"
}

func topLevel(rec Record, key string) (any, bool) {
	if v, ok := rec[key]; ok && v != nil {
		return v, true
	}
	want := NormalizeFieldName(key)
	if reservedFields[want] {
		return nil, false
	}
	for _, k := range rec.keys() {
		normalized := NormalizeFieldName(k)
		if normalized == want && !reservedFields[normalized] && rec[k] != nil {
			return rec[k], true
		}
	}
	return nil, false
}

// mergeCells reads spreadsheet-style rows that keep their values in a
// "cells" object keyed by column id or key.
func (a *adapter) mergeCells(rec Record, n *checklist.Node, label string) {
	cells, ok := asRecord(rec["cells"])
	if !ok {
		return
	}
	for _, k := range cells.keys() {
		column := a.column(k)
		if column == nil || column.Type == checklist.ColumnFormula {
			continue
		}
		if _, exists := n.Custom[column.Key]; exists {
			continue
		}
		if v, ok := a.customValue(label, column, cells[k]); ok {
			n.Custom[column.Key] = v
		}
	}
}
