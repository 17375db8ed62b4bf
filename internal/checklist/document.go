package checklist

import "strings"

// Document is the unit persisted to the backend and exported.
type Document struct {
	Meta           map[string]any  `json:"meta"`
	Intro          []any           `json:"intro"`
	Questions      map[string]any  `json:"questions"`
	Scales         Scales          `json:"scales"`
	Columns        []Column        `json:"columns"`
	Nodes          []Node          `json:"nodes"`
	UI             map[string]any  `json:"ui"`
	PriorityLevels []PriorityLevel `json:"priorityLevels,omitempty"`
	SelectedID     NodeID          `json:"selectedId"`
}

func NewDocument() *Document {
	return &Document{
		Meta:      map[string]any{},
		Intro:     []any{},
		Questions: map[string]any{},
		Scales:    DefaultScales(),
		Columns:   []Column{},
		Nodes:     []Node{},
		UI:        map[string]any{"showMeta": true},
	}
}

func (d *Document) Column(key string) (Column, bool) {
	for _, column := range d.Columns {
		if column.Key == key {
			return column, true
		}
	}
	return Column{}, false
}

// ColumnKeys returns the declared column keys in order.
func (d *Document) ColumnKeys() []string {
	keys := make([]string, 0, len(d.Columns))
	for _, column := range d.Columns {
		keys = append(keys, column.Key)
	}
	return keys
}

// Validate runs every structural check and returns a *ValidationError when
// at least one violation exists.
func (d *Document) Validate() error {
	violations := Validate(d.Columns, d.Nodes)
	if len(violations) == 0 {
		return nil
	}
	return &ValidationError{Violations: violations}
}

// MetaString reads a meta value as text.
func (d *Document) MetaString(key string) string {
	value, ok := d.Meta[key]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s)
	}
	text, _ := toText(value)
	return text
}
