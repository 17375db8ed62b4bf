package checklist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type NodeType string

const (
	TypeLevel NodeType = "LEVEL"
	TypeGroup NodeType = "GROUP"
	TypeItem  NodeType = "ITEM"
)

func (t NodeType) Valid() bool {
	return t == TypeLevel || t == TypeGroup || t == TypeItem
}

// NodeID is a node identifier that is either numeric or an opaque string.
// The zero value means "no node" and doubles as the root key.
type NodeID struct {
	num int64
	str string
}

func NumericID(n int64) NodeID { return NodeID{num: n} }

// StringID keeps s verbatim. Use ParseNodeID to get numeric coercion.
func StringID(s string) NodeID {
	if s == "" {
		return NodeID{}
	}
	return NodeID{str: s}
}

// ParseNodeID converts a decoded JSON value into a NodeID. Integral numbers
// and numeric-like strings become numeric ids; other strings are kept as is.
// nil, "", and 0 yield the zero id.
func ParseNodeID(v any) NodeID {
	switch value := v.(type) {
	case nil:
		return NodeID{}
	case NodeID:
		return value
	case int:
		return NumericID(int64(value))
	case int64:
		return NumericID(value)
	case float64:
		if n, ok := exactInt64(value); ok {
			return NumericID(n)
		}
		return StringID(strconv.FormatFloat(value, 'f', -1, 64))
	case json.Number:
		return ParseNodeID(string(value))
	case string:
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return NodeID{}
		}
		if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return NumericID(n)
		}
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			if n, ok := exactInt64(f); ok {
				return NumericID(n)
			}
		}
		return StringID(value)
	default:
		return NodeID{}
	}
}

// exactInt64 reports whether f is integral and inside the int64 range.
func exactInt64(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func (id NodeID) IsZero() bool    { return id.num == 0 && id.str == "" }
func (id NodeID) IsNumeric() bool { return id.str == "" && id.num != 0 }

func (id NodeID) Int() (int64, bool) {
	return id.num, id.IsNumeric()
}

func (id NodeID) String() string {
	if id.str != "" {
		return id.str
	}
	if id.num == 0 {
		return ""
	}
	return strconv.FormatInt(id.num, 10)
}

// Value returns the JSON-ready representation: int64, string or nil.
func (id NodeID) Value() any {
	switch {
	case id.str != "":
		return id.str
	case id.num != 0:
		return id.num
	default:
		return nil
	}
}

func (id NodeID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.Value())
}

func (id *NodeID) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return fmt.Errorf("node id: %w", err)
	}
	*id = ParseNodeID(raw)
	return nil
}

// Node is one element of the checklist tree.
type Node struct {
	ID       NodeID       `json:"id"`
	Type     NodeType     `json:"type"`
	ParentID NodeID       `json:"parentId"`
	Code     string       `json:"code"`
	Title    string       `json:"title"`
	Desc     string       `json:"desc"`
	VIKey    string       `json:"viKey"`
	VCKey    string       `json:"vcKey"`
	Weight   float64      `json:"weight"`
	Required bool         `json:"required"`
	Active   bool         `json:"active"`
	Order    float64      `json:"order"`
	Custom   CustomValues `json:"custom"`
	Notes    string       `json:"observaciones,omitempty"`
	AltTitle string       `json:"agrupacion_es,omitempty"`
}

// NewNode returns a node carrying the standard defaults.
func NewNode(id NodeID, nodeType NodeType, parent NodeID) Node {
	return Node{
		ID:       id,
		Type:     nodeType,
		ParentID: parent,
		VIKey:    DefaultVIKey,
		VCKey:    DefaultVCKey,
		Weight:   1,
		Required: true,
		Active:   true,
		Custom:   CustomValues{},
	}
}

func (n Node) Clone() Node {
	n.Custom = n.Custom.Clone()
	return n
}

// Label is the human reference used in messages: code and title, or the id.
func (n Node) Label() string {
	label := strings.TrimSpace(strings.TrimSpace(n.Code) + " " + strings.TrimSpace(n.Title))
	if label == "" {
		return n.ID.String()
	}
	return label
}

// NodePatch carries the fields to overwrite; nil fields are left alone.
// A non-nil Parent is routed through the same guards as SetParent.
type NodePatch struct {
	Type     *NodeType
	Code     *string
	Title    *string
	Desc     *string
	VIKey    *string
	VCKey    *string
	Weight   *float64
	Required *bool
	Active   *bool
	Notes    *string
	AltTitle *string
	Parent   *NodeID
}

func (p NodePatch) apply(n *Node) {
	if p.Type != nil && p.Type.Valid() {
		n.Type = *p.Type
	}
	if p.Code != nil {
		n.Code = strings.TrimSpace(*p.Code)
	}
	if p.Title != nil {
		n.Title = strings.TrimSpace(*p.Title)
	}
	if p.Desc != nil {
		n.Desc = *p.Desc
	}
	if p.VIKey != nil {
		n.VIKey = *p.VIKey
	}
	if p.VCKey != nil {
		n.VCKey = *p.VCKey
	}
	if p.Weight != nil {
		n.Weight = *p.Weight
	}
	if p.Required != nil {
		n.Required = *p.Required
	}
	if p.Active != nil {
		n.Active = *p.Active
	}
	if p.Notes != nil {
		n.Notes = *p.Notes
	}
	if p.AltTitle != nil {
		n.AltTitle = *p.AltTitle
	}
}

// NormalizeCode trims, collapses inner whitespace and strips trailing dots
// ("1.1." becomes "1.1").
func NormalizeCode(code string) string {
	collapsed := strings.Join(strings.Fields(code), " ")
	return strings.TrimRight(collapsed, ".")
}

// CodeSegments splits a normalized code on dots, dropping empty segments.
func CodeSegments(code string) []string {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil
	}
	parts := strings.Split(normalized, ".")
	out := parts[:0]
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func CodeDepth(code string) int {
	return len(CodeSegments(code))
}

// ParentCode strips the last segment: "1.2.3" gives "1.2", "1" gives "".
func ParentCode(code string) string {
	segments := CodeSegments(code)
	if len(segments) <= 1 {
		return ""
	}
	return strings.Join(segments[:len(segments)-1], ".")
}
