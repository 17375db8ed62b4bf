package checklist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

type ColumnType string

const (
	ColumnText    ColumnType = "text"
	ColumnNumber  ColumnType = "number"
	ColumnSelect  ColumnType = "select"
	ColumnBoolean ColumnType = "boolean"
	ColumnFormula ColumnType = "formula"
)

func (t ColumnType) Valid() bool {
	switch t {
	case ColumnText, ColumnNumber, ColumnSelect, ColumnBoolean, ColumnFormula:
		return true
	}
	return false
}

type AppliesTo string

const (
	AppliesAll   AppliesTo = "ALL"
	AppliesLevel AppliesTo = "LEVEL"
	AppliesGroup AppliesTo = "GROUP"
	AppliesItem  AppliesTo = "ITEM"
)

func (a AppliesTo) Valid() bool {
	switch a {
	case AppliesAll, AppliesLevel, AppliesGroup, AppliesItem:
		return true
	}
	return false
}

// Column is a user-defined field attached to nodes of matching type.
type Column struct {
	ID        string         `json:"id,omitempty"`
	Key       string         `json:"key"`
	Label     string         `json:"label"`
	Type      ColumnType     `json:"type"`
	AppliesTo AppliesTo      `json:"appliesTo"`
	Editable  bool           `json:"editable"`
	Options   []string       `json:"options"`
	Formula   TemplateString `json:"formula"`
}

func (c Column) AppliesToNode(t NodeType) bool {
	return c.AppliesTo == AppliesAll || string(c.AppliesTo) == string(t)
}

// Normalize upper-cases the key, fills defaults and forces formula
// columns to be read-only.
func (c Column) Normalize() Column {
	c.Key = NormalizeColumnKey(c.Key)
	c.Label = strings.TrimSpace(c.Label)
	if c.Label == "" {
		c.Label = c.Key
	}
	if !c.Type.Valid() {
		c.Type = ColumnText
	}
	if !c.AppliesTo.Valid() {
		c.AppliesTo = AppliesAll
	}
	if c.Type == ColumnFormula {
		c.Editable = false
	}
	c.Formula = TemplateString(strings.TrimSpace(string(c.Formula)))
	if c.Options == nil {
		c.Options = []string{}
	}
	return c
}

// Check enforces the per-type requirements of a column definition.
func (c Column) Check() error {
	if c.Key == "" {
		return ErrColumnKeyRequired
	}
	if c.Label == "" {
		return ErrColumnLabelRequired
	}
	if c.Type == ColumnSelect && len(c.Options) == 0 {
		return ErrSelectOptionsRequired
	}
	if c.Type == ColumnFormula && strings.TrimSpace(string(c.Formula)) == "" {
		return ErrFormulaRequired
	}
	return nil
}

var (
	columnKeySpace   = regexp.MustCompile(`\s+`)
	columnKeyInvalid = regexp.MustCompile(`[^A-Z0-9_]`)
)

// NormalizeColumnKey upper-cases s, turns whitespace runs into "_" and
// drops anything outside [A-Z0-9_].
func NormalizeColumnKey(s string) string {
	key := strings.ToUpper(strings.TrimSpace(s))
	key = columnKeySpace.ReplaceAllString(key, "_")
	return columnKeyInvalid.ReplaceAllString(key, "")
}

// Coerce converts a raw decoded value into a typed value for this column.
func (c Column) Coerce(raw any) (CustomValue, error) {
	switch c.Type {
	case ColumnFormula:
		return CustomValue{}, fmt.Errorf("%s: %w", c.Key, ErrColumnReadOnly)
	case ColumnNumber:
		if n, ok := toFloat(raw); ok {
			return NumberValue(n), nil
		}
	case ColumnBoolean:
		if b, ok := toBool(raw); ok {
			return BoolValue(b), nil
		}
	case ColumnSelect:
		s, ok := toText(raw)
		if ok && (s == "" || len(c.Options) == 0 || slices.Contains(c.Options, s)) {
			return SelectValue(s), nil
		}
	default:
		if s, ok := toText(raw); ok {
			return TextValue(s), nil
		}
	}
	return CustomValue{}, fmt.Errorf("%s (%s): %w", c.Key, c.Type, ErrInvalidCustomValue)
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	case CustomValue:
		if v.Kind == KindNumber {
			return v.Number, true
		}
		return toFloat(v.Raw())
	}
	return 0, false
}

func toBool(raw any) (bool, bool) {
	switch v := raw.(type) {
	case bool:
		return v, true
	case string:
		switch strings.TrimSpace(strings.ToLower(v)) {
		case "true", "1":
			return true, true
		case "false", "0":
			return false, true
		}
	case CustomValue:
		return toBool(v.Raw())
	default:
		if n, ok := toFloat(raw); ok && (n == 0 || n == 1) {
			return n == 1, true
		}
	}
	return false, false
}

func toText(raw any) (string, bool) {
	switch v := raw.(type) {
	case nil:
		return "", true
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case CustomValue:
		return v.String(), true
	default:
		if n, ok := toFloat(raw); ok {
			return strconv.FormatFloat(n, 'f', -1, 64), true
		}
	}
	return "", false
}

type ValueKind uint8

const (
	KindText ValueKind = iota
	KindNumber
	KindBoolean
	KindSelect
)

// CustomValue is a tagged value stored for one dynamic column.
type CustomValue struct {
	Kind   ValueKind
	Text   string
	Number float64
	Bool   bool
}

func TextValue(s string) CustomValue    { return CustomValue{Kind: KindText, Text: s} }
func NumberValue(n float64) CustomValue { return CustomValue{Kind: KindNumber, Number: n} }
func BoolValue(b bool) CustomValue      { return CustomValue{Kind: KindBoolean, Bool: b} }
func SelectValue(s string) CustomValue  { return CustomValue{Kind: KindSelect, Text: s} }

// Raw returns the plain Go value: string, float64 or bool.
func (v CustomValue) Raw() any {
	switch v.Kind {
	case KindNumber:
		return v.Number
	case KindBoolean:
		return v.Bool
	default:
		return v.Text
	}
}

func (v CustomValue) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(v.Bool)
	default:
		return v.Text
	}
}

func (v CustomValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Raw())
}

func (v *CustomValue) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return err
	}
	switch value := raw.(type) {
	case bool:
		*v = BoolValue(value)
	case json.Number:
		f, err := value.Float64()
		if err != nil {
			return err
		}
		*v = NumberValue(f)
	case string:
		*v = TextValue(value)
	case nil:
		*v = TextValue("")
	default:
		return fmt.Errorf("custom value: unsupported JSON %s", string(data))
	}
	return nil
}

// CustomValues maps a column key to its typed value.
type CustomValues map[string]CustomValue

func (c CustomValues) Clone() CustomValues {
	out := make(CustomValues, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// TemplateString is a spreadsheet formula with {KEY} placeholders. It is
// never evaluated here, only rewritten with cell addresses.
type TemplateString string

var placeholderPattern = regexp.MustCompile(`\{([A-Z0-9_]+)\}`)

// Placeholders lists the keys referenced by the template in order of
// first appearance.
func (t TemplateString) Placeholders() []string {
	var keys []string
	for _, match := range placeholderPattern.FindAllStringSubmatch(string(t), -1) {
		if !slices.Contains(keys, match[1]) {
			keys = append(keys, match[1])
		}
	}
	return keys
}

// Substitute replaces every {KEY} with cells[KEY] and guarantees a leading
// "=". Unknown placeholders are left untouched.
func (t TemplateString) Substitute(cells map[string]string) string {
	formula := strings.TrimSpace(string(t))
	if formula == "" {
		return ""
	}
	if !strings.HasPrefix(formula, "=") {
		formula = "=" + formula
	}
	return placeholderPattern.ReplaceAllStringFunc(formula, func(token string) string {
		key := token[1 : len(token)-1]
		if cell, ok := cells[key]; ok {
			return cell
		}
		return token
	})
}
