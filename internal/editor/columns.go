package editor

import (
	"fmt"
	"slices"

	"catty/api/internal/checklist"
)

func (s *Session) columnIndex(key string) int {
	return slices.IndexFunc(s.doc.Columns, func(c checklist.Column) bool { return c.Key == key })
}

// SaveColumn adds column, or replaces the column currently keyed
// previousKey. A renamed key carries every node's value over; values that
// no longer fit a changed type are dropped.
func (s *Session) SaveColumn(column checklist.Column, previousKey string) (checklist.Column, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	column = column.Normalize()
	if err := column.Check(); err != nil {
		return checklist.Column{}, s.fail(err)
	}

	if previousKey == "" {
		if s.columnIndex(column.Key) >= 0 {
			return checklist.Column{}, s.fail(fmt.Errorf("%s: %w", column.Key, checklist.ErrColumnKeyTaken))
		}
		if column.ID == "" {
			column.ID = column.Key
		}
		s.doc.Columns = append(s.doc.Columns, column)
		s.changed("column %s added", column.Key)
		return column, nil
	}

	previousKey = checklist.NormalizeColumnKey(previousKey)
	i := s.columnIndex(previousKey)
	if i < 0 {
		return checklist.Column{}, s.fail(fmt.Errorf("%s: %w", previousKey, checklist.ErrColumnNotFound))
	}
	if j := s.columnIndex(column.Key); j >= 0 && j != i {
		return checklist.Column{}, s.fail(fmt.Errorf("%s: %w", column.Key, checklist.ErrColumnKeyTaken))
	}
	if column.ID == "" {
		column.ID = s.doc.Columns[i].ID
	}
	s.store.RenameCustomKey(previousKey, column.Key)
	dropped := s.store.Recoerce(column)
	s.doc.Columns[i] = column

	if dropped > 0 {
		s.changed("column %s updated, %d values dropped", column.Key, dropped)
	} else {
		s.changed("column %s updated", column.Key)
	}
	return column, nil
}

// DeleteColumn removes the column and every node's value for it.
func (s *Session) DeleteColumn(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key = checklist.NormalizeColumnKey(key)
	i := s.columnIndex(key)
	if i < 0 {
		return s.fail(fmt.Errorf("%s: %w", key, checklist.ErrColumnNotFound))
	}
	s.doc.Columns = slices.Delete(s.doc.Columns, i, i+1)
	s.store.DropCustomKey(key)
	s.changed("column %s deleted", key)
	return nil
}

// SetCustomValue writes a dynamic column value on a node; nil clears it.
func (s *Session) SetCustomValue(id checklist.NodeID, key string, raw any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.columnIndex(checklist.NormalizeColumnKey(key))
	if i < 0 {
		return s.fail(fmt.Errorf("%s: %w", key, checklist.ErrColumnNotFound))
	}
	if err := s.store.SetCustomValue(id, s.doc.Columns[i], raw); err != nil {
		return s.fail(err)
	}
	s.changed("%s updated", s.doc.Columns[i].Label)
	return nil
}
