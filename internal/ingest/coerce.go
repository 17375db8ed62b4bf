package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"catty/api/internal/checklist"
)

// number reads numeric JSON, YAML and string values. Empty strings are not
// numbers.
func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		trimmed := strings.TrimSpace(n)
		if trimmed == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func coerceNumber(v any, fallback float64) float64 {
	if n, ok := number(v); ok {
		return n
	}
	return fallback
}

// coerceBool accepts booleans, "true"/"false", and 1/0 as numbers or
// strings. Anything else yields fallback.
func coerceBool(v any, fallback bool) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1":
			return true
		case "false", "0":
			return false
		}
		return fallback
	}
	if n, ok := number(v); ok && (n == 0 || n == 1) {
		return n == 1
	}
	return fallback
}

// text renders scalars as strings; objects and arrays become "".
func text(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	case bool:
		return strconv.FormatBool(s)
	}
	if n, ok := number(v); ok {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return ""
}

func coerceType(raw any, depth int, hasChildren bool) checklist.NodeType {
	switch strings.ToUpper(FoldDiacritics(strings.TrimSpace(text(raw)))) {
	case "LEVEL", "NIVEL", "N":
		return checklist.TypeLevel
	case "GROUP", "GRUPO", "AGRUPACION", "G":
		return checklist.TypeGroup
	case "ITEM", "ITEMS", "I", "A", "CRITERIO", "PREGUNTA":
		return checklist.TypeItem
	}
	switch {
	case depth == 1:
		return checklist.TypeLevel
	case hasChildren:
		return checklist.TypeGroup
	default:
		return checklist.TypeItem
	}
}

var (
	viKeyPattern = regexp.MustCompile(`(?i)^VI_\d+$`)
	vcKeyPattern = regexp.MustCompile(`(?i)^VC_\d+$`)
)

// coerceVIKey accepts "VI_<n>" as written; numbers are rounded, clamped to
// 1..5 and kept only when the active scale has that key.
func coerceVIKey(scales checklist.Scales, raw any) string {
	fallback := fallbackKey(scales.VI, checklist.DefaultVIKey)
	s := strings.TrimSpace(text(raw))
	if s == "" {
		return fallback
	}
	if viKeyPattern.MatchString(s) {
		return strings.ToUpper(s)
	}
	if n, ok := number(raw); ok {
		key := fmt.Sprintf("VI_%d", int(math.Max(1, math.Min(5, math.Round(n)))))
		if _, found := scales.Find(checklist.ScaleVI, key); found {
			return key
		}
	}
	return fallback
}

// coerceVCKey accepts "VC_<n>" as written and maps 1, 0.5 and 0 to their
// keys.
func coerceVCKey(scales checklist.Scales, raw any) string {
	fallback := fallbackKey(scales.VC, checklist.DefaultVCKey)
	s := strings.TrimSpace(text(raw))
	if s == "" {
		return fallback
	}
	if vcKeyPattern.MatchString(s) {
		return strings.ToUpper(s)
	}
	if n, ok := number(raw); ok {
		switch n {
		case 1:
			return "VC_1"
		case 0.5:
			return "VC_05"
		case 0:
			return "VC_0"
		}
	}
	return fallback
}

// fallbackKey is preferred when the scale has it (or is empty), otherwise
// the scale's middle entry.
func fallbackKey(entries []checklist.ScaleEntry, preferred string) string {
	if len(entries) == 0 {
		return preferred
	}
	for _, entry := range entries {
		if entry.Key == preferred {
			return preferred
		}
	}
	return entries[len(entries)/2].Key
}

// customValue types raw for column when it fits, otherwise keeps a plain
// typed copy so no data is lost and returns the coercion error alongside.
// Empty strings and composites are dropped.
func customValue(column *checklist.Column, raw any) (checklist.CustomValue, bool, error) {
	if raw == nil {
		return checklist.CustomValue{}, false, nil
	}
	var coerceErr error
	if column != nil && column.Type != checklist.ColumnFormula {
		v, err := column.Coerce(raw)
		if err == nil {
			return v, true, nil
		}
		coerceErr = err
	}
	v, ok := plainValue(raw)
	return v, ok, coerceErr
}

func plainValue(raw any) (checklist.CustomValue, bool) {
	switch v := raw.(type) {
	case bool:
		return checklist.BoolValue(v), true
	case string:
		if v == "" {
			return checklist.CustomValue{}, false
		}
		return checklist.TextValue(v), true
	}
	if n, ok := number(raw); ok {
		return checklist.NumberValue(n), true
	}
	return checklist.CustomValue{}, false
}

// parentRef reads a parent reference; only strings and numbers count.
func parentRef(raw any) checklist.NodeID {
	switch raw.(type) {
	case string, json.Number, float64, int, int64:
		return checklist.ParseNodeID(raw)
	}
	return checklist.NodeID{}
}
