package checklist

import "math"

// Severity returns the 0..100 severity score for an item rated viKey/vcKey
// against the live scale values:
//
//	vi * (vcMax - vc) / (viMax * (vcMax - vcMin)) * 100
//
// clamped and rounded. It is 0 when a scale is empty, a key is unknown or
// the denominator is not positive.
func Severity(scales Scales, viKey, vcKey string) int {
	_, viMax, okVI := bounds(scales.VI)
	vcMin, vcMax, okVC := bounds(scales.VC)
	if !okVI || !okVC {
		return 0
	}
	vi, ok := scales.Value(ScaleVI, viKey)
	if !ok {
		return 0
	}
	vc, ok := scales.Value(ScaleVC, vcKey)
	if !ok {
		return 0
	}
	denominator := viMax * (vcMax - vcMin)
	if denominator <= 0 {
		return 0
	}
	pct := vi * (vcMax - vc) / denominator * 100
	return int(math.Round(math.Max(0, math.Min(100, pct))))
}

// Assessment is the derived view of one item.
type Assessment struct {
	Severity int    `json:"severity"`
	Priority string `json:"priority"`
}

// Assess computes severity and priority for every ITEM node.
func Assess(nodes []Node, scales Scales, levels []PriorityLevel, closeFinal bool) map[NodeID]Assessment {
	out := make(map[NodeID]Assessment)
	for _, node := range nodes {
		if node.Type != TypeItem {
			continue
		}
		severity := Severity(scales, node.VIKey, node.VCKey)
		out[node.ID] = Assessment{
			Severity: severity,
			Priority: Classify(levels, float64(severity), closeFinal),
		}
	}
	return out
}

// Levels holds the application (VC) and importance (VI) levels of a node.
// Nil means no value: unknown scale key, or no item below a container.
type Levels struct {
	Application *float64 `json:"nivel_aplicacion"`
	Importance  *float64 `json:"nivel_importancia"`
}

// AggregateLevels computes levels for every node. Items report their own
// VC and VI values. Groups and levels report the minimum application and
// the maximum importance over their direct item children; a node with no
// direct items takes the same aggregate over its non-item children. Each
// node is computed once, bottom-up, with an explicit stack, so a parent
// cycle cannot loop.
func AggregateLevels(nodes []Node, scales Scales) map[NodeID]Levels {
	children := make(map[NodeID][]NodeID, len(nodes))
	byID := make(map[NodeID]Node, len(nodes))
	for _, node := range nodes {
		byID[node.ID] = node
		children[node.ParentID] = append(children[node.ParentID], node.ID)
	}

	memo := make(map[NodeID]Levels, len(nodes))
	const (
		unvisited = iota
		open
		done
	)
	state := make(map[NodeID]int, len(nodes))

	for _, start := range nodes {
		if state[start.ID] != unvisited {
			continue
		}
		stack := []NodeID{start.ID}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			node := byID[id]
			switch state[id] {
			case unvisited:
				state[id] = open
				if node.Type == TypeItem {
					continue
				}
				for _, child := range children[id] {
					if state[child] == unvisited && byID[child].Type != TypeItem {
						stack = append(stack, child)
					}
				}
				continue
			case open:
				stack = stack[:len(stack)-1]
				state[id] = done
				memo[id] = levelsOf(node, children[id], byID, memo, scales)
			default:
				stack = stack[:len(stack)-1]
			}
		}
	}
	return memo
}

func levelsOf(node Node, kids []NodeID, byID map[NodeID]Node, memo map[NodeID]Levels, scales Scales) Levels {
	if node.Type == TypeItem {
		return itemLevels(node, scales)
	}
	var items, groups []Levels
	for _, childID := range kids {
		child := byID[childID]
		if child.Type == TypeItem {
			items = append(items, itemLevels(child, scales))
		} else {
			// empty while the child is still open on a parent cycle
			groups = append(groups, memo[childID])
		}
	}
	if len(items) > 0 {
		return mergeLevels(items)
	}
	return mergeLevels(groups)
}

func mergeLevels(all []Levels) Levels {
	var out Levels
	for _, sub := range all {
		if sub.Application != nil && (out.Application == nil || *sub.Application < *out.Application) {
			v := *sub.Application
			out.Application = &v
		}
		if sub.Importance != nil && (out.Importance == nil || *sub.Importance > *out.Importance) {
			v := *sub.Importance
			out.Importance = &v
		}
	}
	return out
}

func itemLevels(node Node, scales Scales) Levels {
	var out Levels
	if vc, ok := scales.Value(ScaleVC, node.VCKey); ok {
		out.Application = &vc
	}
	if vi, ok := scales.Value(ScaleVI, node.VIKey); ok {
		out.Importance = &vi
	}
	return out
}
