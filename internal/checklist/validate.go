package checklist

import "fmt"

type ViolationKind string

const (
	ViolationDuplicateColumn ViolationKind = "duplicate_column_key"
	ViolationDuplicateCode   ViolationKind = "duplicate_code"
	ViolationCycle           ViolationKind = "cycle"
	ViolationItemUnderItem   ViolationKind = "item_under_item"
)

type Violation struct {
	Kind    ViolationKind `json:"kind"`
	NodeID  NodeID        `json:"nodeId,omitempty"`
	Column  string        `json:"column,omitempty"`
	Message string        `json:"message"`
}

// ValidationError carries every violation found in a document.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string { return e.Summary() }

// Summary is the first violation plus a count of the rest.
func (e *ValidationError) Summary() string {
	if e == nil || len(e.Violations) == 0 {
		return ""
	}
	summary := e.Violations[0].Message
	if rest := len(e.Violations) - 1; rest > 0 {
		summary += fmt.Sprintf(" (+%d more)", rest)
	}
	return summary
}

func (e *ValidationError) Messages() []string {
	out := make([]string, len(e.Violations))
	for i, violation := range e.Violations {
		out[i] = violation.Message
	}
	return out
}

// Validate collects all structural violations: duplicate column keys,
// duplicate non-empty codes, parent cycles and ITEM nodes parented by an
// ITEM.
func Validate(columns []Column, nodes []Node) []Violation {
	var out []Violation

	keys := make(map[string]bool, len(columns))
	for _, column := range columns {
		if keys[column.Key] {
			out = append(out, Violation{
				Kind:    ViolationDuplicateColumn,
				Column:  column.Key,
				Message: fmt.Sprintf("duplicate column key: %s", column.Key),
			})
		}
		keys[column.Key] = true
	}

	codes := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		code := NormalizeCode(node.Code)
		if code == "" {
			continue
		}
		if codes[code] {
			ref := node.Title
			if ref == "" {
				ref = node.ID.String()
			}
			out = append(out, Violation{
				Kind:    ViolationDuplicateCode,
				NodeID:  node.ID,
				Message: fmt.Sprintf("duplicate code: %q (%s)", code, ref),
			})
			continue
		}
		codes[code] = true
	}

	byID := make(map[NodeID]Node, len(nodes))
	for _, node := range nodes {
		byID[node.ID] = node
	}

	reported := make(map[NodeID]bool)
	for _, node := range nodes {
		if reported[node.ID] || node.ParentID.IsZero() {
			continue
		}
		cycle := cycleThrough(node, byID)
		if len(cycle) == 0 {
			continue
		}
		for _, id := range cycle {
			reported[id] = true
		}
		out = append(out, Violation{
			Kind:    ViolationCycle,
			NodeID:  node.ID,
			Message: fmt.Sprintf("invalid hierarchy: cycle detected at %s", node.Label()),
		})
	}

	for _, node := range nodes {
		if node.Type != TypeItem || node.ParentID.IsZero() {
			continue
		}
		parent, ok := byID[node.ParentID]
		if !ok || parent.Type != TypeItem {
			continue
		}
		out = append(out, Violation{
			Kind:    ViolationItemUnderItem,
			NodeID:  node.ID,
			Message: fmt.Sprintf("invalid hierarchy: an ITEM cannot have an ITEM parent: %s", node.Label()),
		})
	}
	return out
}

// cycleThrough returns the members of the parent cycle containing start,
// or nil when start's ancestor chain reaches a root or a missing parent.
func cycleThrough(start Node, byID map[NodeID]Node) []NodeID {
	seen := map[NodeID]bool{start.ID: true}
	chain := []NodeID{start.ID}
	for current := start.ParentID; !current.IsZero(); {
		if current == start.ID {
			return chain
		}
		if seen[current] {
			// a cycle further up that start is not part of
			return nil
		}
		seen[current] = true
		chain = append(chain, current)
		parent, ok := byID[current]
		if !ok {
			return nil
		}
		current = parent.ParentID
	}
	return nil
}
