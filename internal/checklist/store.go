package checklist

import (
	"errors"
	"fmt"
	"sort"
)

var ErrInvalidNodeType = errors.New("invalid node type")

// IDAllocator hands out numeric node ids. It is seeded past the largest
// numeric id observed so synthesized ids never collide with loaded ones.
type IDAllocator struct {
	next int64
}

func NewIDAllocator(start int64) *IDAllocator {
	if start < 1 {
		start = 1
	}
	return &IDAllocator{next: start}
}

func (a *IDAllocator) Next() NodeID {
	id := NumericID(a.next)
	a.next++
	return id
}

// Observe advances the allocator past id when id is numeric.
func (a *IDAllocator) Observe(id NodeID) {
	if n, ok := id.Int(); ok && n >= a.next {
		a.next = n + 1
	}
}

func (a *IDAllocator) Peek() int64 { return a.next }

// Store owns the node collection of one open document. All operations are
// synchronous; guard failures leave the collection untouched.
type Store struct {
	nodes    []Node
	index    map[NodeID]int
	ids      *IDAllocator
	selected NodeID
}

func NewStore(nodes []Node, ids *IDAllocator) *Store {
	if ids == nil {
		ids = NewIDAllocator(1)
	}
	s := &Store{nodes: make([]Node, 0, len(nodes)), ids: ids}
	for _, node := range nodes {
		ids.Observe(node.ID)
		s.nodes = append(s.nodes, node.Clone())
	}
	s.reindex()
	return s
}

func (s *Store) reindex() {
	s.index = make(map[NodeID]int, len(s.nodes))
	for i, node := range s.nodes {
		s.index[node.ID] = i
	}
}

func (s *Store) Len() int { return len(s.nodes) }
func (s *Store) Allocator() *IDAllocator { return s.ids }
func (s *Store) Selected() NodeID { return s.selected }
func (s *Store) SelectedNode() (Node, bool) { return s.Get(s.selected) }

// Nodes returns a copy of the collection in insertion order.
func (s *Store) Nodes() []Node {
	out := make([]Node, len(s.nodes))
	for i, node := range s.nodes {
		out[i] = node.Clone()
	}
	return out
}

func (s *Store) Get(id NodeID) (Node, bool) {
	i, ok := s.index[id]
	if !ok || id.IsZero() {
		return Node{}, false
	}
	return s.nodes[i].Clone(), true
}

// Select sets the current selection; the zero id clears it.
func (s *Store) Select(id NodeID) error {
	if id.IsZero() {
		s.selected = NodeID{}
		return nil
	}
	if _, ok := s.index[id]; !ok {
		return fmt.Errorf("select %s: %w", id, ErrNodeNotFound)
	}
	s.selected = id
	return nil
}

// siblingIndices returns the positions of parent's children sorted by
// order, ties kept in insertion order.
func (s *Store) siblingIndices(parent NodeID) []int {
	var out []int
	for i, node := range s.nodes {
		if node.ParentID == parent {
			out = append(out, i)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return s.nodes[out[a]].Order < s.nodes[out[b]].Order
	})
	return out
}

// Children lists parent's children sorted by order. The zero id lists roots.
func (s *Store) Children(parent NodeID) []Node {
	indices := s.siblingIndices(parent)
	out := make([]Node, len(indices))
	for i, idx := range indices {
		out[i] = s.nodes[idx].Clone()
	}
	return out
}

func (s *Store) Roots() []Node { return s.Children(NodeID{}) }

// Tree groups nodes by parent id, each group sorted by order. Roots are
// under the zero id.
func (s *Store) Tree() map[NodeID][]Node {
	return GroupByParent(s.nodes)
}

// GroupByParent groups nodes by parent id with each group sorted by order.
func GroupByParent(nodes []Node) map[NodeID][]Node {
	groups := make(map[NodeID][]Node)
	for _, node := range nodes {
		groups[node.ParentID] = append(groups[node.ParentID], node)
	}
	for _, group := range groups {
		sort.SliceStable(group, func(a, b int) bool { return group[a].Order < group[b].Order })
	}
	return groups
}

// NextOrder is the order for a node appended under parent.
func (s *Store) NextOrder(parent NodeID) float64 {
	highest := 0.0
	for _, node := range s.nodes {
		if node.ParentID == parent && node.Order > highest {
			highest = node.Order
		}
	}
	return highest + 10
}

// IsDescendant reports whether candidate is nodeID itself or lies below it,
// by walking candidate's ancestor chain to the root.
func (s *Store) IsDescendant(nodeID, candidate NodeID) bool {
	seen := make(map[NodeID]bool)
	for current := candidate; !current.IsZero(); {
		if current == nodeID {
			return true
		}
		if seen[current] {
			return false
		}
		seen[current] = true
		i, ok := s.index[current]
		if !ok {
			return false
		}
		current = s.nodes[i].ParentID
	}
	return false
}

// AddNode creates a node of type t. LEVEL nodes are roots; GROUP and ITEM
// nodes go under the selection when it is a LEVEL or GROUP, otherwise
// beside it. The new node becomes the selection.
func (s *Store) AddNode(t NodeType) (Node, error) {
	if !t.Valid() {
		return Node{}, fmt.Errorf("add %q: %w", t, ErrInvalidNodeType)
	}
	var parent NodeID
	if t != TypeLevel {
		if selected, ok := s.Get(s.selected); ok {
			if selected.Type == TypeLevel || selected.Type == TypeGroup {
				parent = selected.ID
			} else {
				parent = selected.ParentID
			}
		}
	}
	node := NewNode(s.ids.Next(), t, parent)
	node.Order = s.NextOrder(parent)
	s.nodes = append(s.nodes, node)
	s.index[node.ID] = len(s.nodes) - 1
	s.selected = node.ID
	return node.Clone(), nil
}

// Duplicate copies a single node under a fresh id at the end of its
// sibling group and selects the copy.
func (s *Store) Duplicate(id NodeID) (Node, error) {
	source, ok := s.Get(id)
	if !ok {
		return Node{}, fmt.Errorf("duplicate %s: %w", id, ErrNodeNotFound)
	}
	dup := source.Clone()
	dup.ID = s.ids.Next()
	if dup.Code != "" {
		dup.Code += "_copy"
	}
	if dup.Title != "" {
		dup.Title += " (copia)"
	}
	dup.Order = s.NextOrder(dup.ParentID)
	s.nodes = append(s.nodes, dup)
	s.index[dup.ID] = len(s.nodes) - 1
	s.selected = dup.ID
	return dup.Clone(), nil
}

// DeleteCascade removes id and all of its descendants as one batch and
// returns the removed ids in collection order.
func (s *Store) DeleteCascade(id NodeID) ([]NodeID, error) {
	if _, ok := s.Get(id); !ok {
		return nil, fmt.Errorf("delete %s: %w", id, ErrNodeNotFound)
	}
	doomed := map[NodeID]bool{}
	stack := []NodeID{id}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if doomed[current] {
			continue
		}
		doomed[current] = true
		for _, node := range s.nodes {
			if node.ParentID == current && !doomed[node.ID] {
				stack = append(stack, node.ID)
			}
		}
	}

	removed := make([]NodeID, 0, len(doomed))
	kept := s.nodes[:0]
	for _, node := range s.nodes {
		if doomed[node.ID] {
			removed = append(removed, node.ID)
			continue
		}
		kept = append(kept, node)
	}
	s.nodes = kept
	s.reindex()
	if doomed[s.selected] {
		s.selected = NodeID{}
	}
	return removed, nil
}

// SetParent moves id under parent (zero id for root) and gives it a fresh
// order at the end of the new sibling group.
func (s *Store) SetParent(id, parent NodeID) error {
	i, ok := s.index[id]
	if !ok {
		return fmt.Errorf("set parent of %s: %w", id, ErrNodeNotFound)
	}
	if parent == id {
		return ErrSelfParent
	}
	if !parent.IsZero() {
		if _, ok := s.index[parent]; !ok {
			return fmt.Errorf("set parent of %s to %s: %w", id, parent, ErrParentNotFound)
		}
		if s.IsDescendant(id, parent) {
			return ErrCycle
		}
	}
	order := s.NextOrder(parent)
	s.nodes[i].ParentID = parent
	s.nodes[i].Order = order
	return nil
}

// Move swaps id's order with the adjacent sibling in direction dir (sign
// only). It reports false when id is already at that end.
func (s *Store) Move(id NodeID, dir int) (bool, error) {
	i, ok := s.index[id]
	if !ok {
		return false, fmt.Errorf("move %s: %w", id, ErrNodeNotFound)
	}
	step := 0
	switch {
	case dir > 0:
		step = 1
	case dir < 0:
		step = -1
	default:
		return false, nil
	}
	siblings := s.siblingIndices(s.nodes[i].ParentID)
	pos := -1
	for k, idx := range siblings {
		if idx == i {
			pos = k
			break
		}
	}
	target := pos + step
	if pos < 0 || target < 0 || target >= len(siblings) {
		return false, nil
	}
	a, b := siblings[pos], siblings[target]
	if s.nodes[a].Order == s.nodes[b].Order {
		// equal orders cannot be swapped meaningfully; spread the group first
		for k, idx := range siblings {
			s.nodes[idx].Order = float64((k + 1) * 10)
		}
	}
	s.nodes[a].Order, s.nodes[b].Order = s.nodes[b].Order, s.nodes[a].Order
	return true, nil
}

// Update merges patch into the node. A parent change goes through the
// SetParent guards first; on rejection nothing is modified.
func (s *Store) Update(id NodeID, patch NodePatch) error {
	i, ok := s.index[id]
	if !ok {
		return fmt.Errorf("update %s: %w", id, ErrNodeNotFound)
	}
	if patch.Parent != nil && *patch.Parent != s.nodes[i].ParentID {
		if err := s.SetParent(id, *patch.Parent); err != nil {
			return err
		}
	}
	patch.apply(&s.nodes[i])
	return nil
}

// SetCustomValue stores raw for column on node id after checking the
// column's type, editability and applicability. A nil raw clears it.
func (s *Store) SetCustomValue(id NodeID, column Column, raw any) error {
	i, ok := s.index[id]
	if !ok {
		return fmt.Errorf("set %s on %s: %w", column.Key, id, ErrNodeNotFound)
	}
	if column.Type == ColumnFormula || !column.Editable {
		return fmt.Errorf("set %s: %w", column.Key, ErrColumnReadOnly)
	}
	if !column.AppliesToNode(s.nodes[i].Type) {
		return fmt.Errorf("set %s on %s: %w", column.Key, s.nodes[i].Type, ErrColumnNotApplicable)
	}
	if raw == nil {
		delete(s.nodes[i].Custom, column.Key)
		return nil
	}
	value, err := column.Coerce(raw)
	if err != nil {
		return err
	}
	if s.nodes[i].Custom == nil {
		s.nodes[i].Custom = CustomValues{}
	}
	s.nodes[i].Custom[column.Key] = value
	return nil
}

// RenameCustomKey moves every node's value from one column key to another
// and returns how many nodes changed.
func (s *Store) RenameCustomKey(from, to string) int {
	if from == to {
		return 0
	}
	changed := 0
	for i := range s.nodes {
		value, ok := s.nodes[i].Custom[from]
		if !ok {
			continue
		}
		delete(s.nodes[i].Custom, from)
		s.nodes[i].Custom[to] = value
		changed++
	}
	return changed
}

// DropCustomKey removes key from every node.
func (s *Store) DropCustomKey(key string) int {
	changed := 0
	for i := range s.nodes {
		if _, ok := s.nodes[i].Custom[key]; ok {
			delete(s.nodes[i].Custom, key)
			changed++
		}
	}
	return changed
}

// Recoerce re-checks stored values against column and drops the ones that
// no longer fit its type or applicability.
func (s *Store) Recoerce(column Column) int {
	dropped := 0
	for i := range s.nodes {
		value, ok := s.nodes[i].Custom[column.Key]
		if !ok {
			continue
		}
		if column.Type == ColumnFormula || !column.AppliesToNode(s.nodes[i].Type) {
			delete(s.nodes[i].Custom, column.Key)
			dropped++
			continue
		}
		coerced, err := column.Coerce(value)
		if err != nil {
			delete(s.nodes[i].Custom, column.Key)
			dropped++
			continue
		}
		s.nodes[i].Custom[column.Key] = coerced
	}
	return dropped
}

// Ordered returns nodes in depth-first tree order (roots and siblings by
// order). Nodes unreachable from the roots, such as orphans or members of
// a cycle, follow in insertion order.
func (s *Store) Ordered() []Node {
	return OrderedNodes(s.nodes)
}

// OrderedNodes is the depth-first ordering used for display and export.
func OrderedNodes(nodes []Node) []Node {
	groups := GroupByParent(nodes)
	seen := make(map[NodeID]bool, len(nodes))
	out := make([]Node, 0, len(nodes))

	roots := groups[NodeID{}]
	stack := make([]Node, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, roots[i])
	}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[node.ID] {
			continue
		}
		seen[node.ID] = true
		out = append(out, node.Clone())
		children := groups[node.ID]
		for i := len(children) - 1; i >= 0; i-- {
			if !seen[children[i].ID] {
				stack = append(stack, children[i])
			}
		}
	}
	for _, node := range nodes {
		if !seen[node.ID] {
			seen[node.ID] = true
			out = append(out, node.Clone())
		}
	}
	return out
}

// Depths maps each node reachable from the roots to its depth (roots are 1).
func Depths(nodes []Node) map[NodeID]int {
	groups := GroupByParent(nodes)
	depths := make(map[NodeID]int, len(nodes))
	type frame struct {
		id    NodeID
		depth int
	}
	var queue []frame
	for _, root := range groups[NodeID{}] {
		queue = append(queue, frame{id: root.ID, depth: 1})
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if _, done := depths[current.id]; done {
			continue
		}
		depths[current.id] = current.depth
		for _, child := range groups[current.id] {
			queue = append(queue, frame{id: child.ID, depth: current.depth + 1})
		}
	}
	return depths
}
