// Package checklist holds the canonical checklist model: rating scales,
// nodes, dynamic columns, the in-memory node store, derived values and
// structural validation.
package checklist

import "fmt"

const (
	DefaultVIKey = "VI_3"
	DefaultVCKey = "VC_1"
)

// ScaleKind selects one of the two rating scales.
type ScaleKind string

const (
	ScaleVI ScaleKind = "VI"
	ScaleVC ScaleKind = "VC"
)

type ScaleEntry struct {
	Key   string  `json:"key" toml:"key"`
	Label string  `json:"label" toml:"label"`
	Value float64 `json:"value" toml:"value"`
}

// Scales pairs the importance (VI) and compliance (VC) scales. Both are
// ordered lists; order is display order only.
type Scales struct {
	VI []ScaleEntry `json:"VI" toml:"vi"`
	VC []ScaleEntry `json:"VC" toml:"vc"`
}

func DefaultScales() Scales {
	return Scales{
		VI: []ScaleEntry{
			{Key: "VI_5", Label: "Muy importante / Crítico", Value: 5},
			{Key: "VI_4", Label: "Importante", Value: 4},
			{Key: "VI_3", Label: "Neutro", Value: 3},
			{Key: "VI_2", Label: "Poco importante", Value: 2},
			{Key: "VI_1", Label: "No importante", Value: 1},
		},
		VC: []ScaleEntry{
			{Key: "VC_1", Label: "Aplica", Value: 3},
			{Key: "VC_05", Label: "Parcialmente", Value: 2},
			{Key: "VC_0", Label: "No aplica", Value: 1},
		},
	}
}

func (s Scales) Clone() Scales {
	return Scales{
		VI: append([]ScaleEntry(nil), s.VI...),
		VC: append([]ScaleEntry(nil), s.VC...),
	}
}

func (s Scales) IsEmpty() bool {
	return len(s.VI) == 0 && len(s.VC) == 0
}

func (s Scales) entries(kind ScaleKind) []ScaleEntry {
	if kind == ScaleVC {
		return s.VC
	}
	return s.VI
}

func (s Scales) Find(kind ScaleKind, key string) (ScaleEntry, bool) {
	for _, entry := range s.entries(kind) {
		if entry.Key == key {
			return entry, true
		}
	}
	return ScaleEntry{}, false
}

// Value returns the numeric value for key, or false when the key is not
// part of the scale.
func (s Scales) Value(kind ScaleKind, key string) (float64, bool) {
	entry, ok := s.Find(kind, key)
	return entry.Value, ok
}

func (s Scales) Label(kind ScaleKind, key string) string {
	entry, _ := s.Find(kind, key)
	return entry.Label
}

// Put inserts or replaces the entry with the same key.
func (s *Scales) Put(kind ScaleKind, entry ScaleEntry) error {
	if entry.Key == "" {
		return fmt.Errorf("scale %s: %w", kind, ErrScaleKeyRequired)
	}
	list := s.entries(kind)
	replaced := false
	for i := range list {
		if list[i].Key == entry.Key {
			list[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, entry)
	}
	if kind == ScaleVC {
		s.VC = list
	} else {
		s.VI = list
	}
	return nil
}

func (s *Scales) Remove(kind ScaleKind, key string) bool {
	list := s.entries(kind)
	for i := range list {
		if list[i].Key != key {
			continue
		}
		list = append(list[:i:i], list[i+1:]...)
		if kind == ScaleVC {
			s.VC = list
		} else {
			s.VI = list
		}
		return true
	}
	return false
}

func bounds(entries []ScaleEntry) (lo, hi float64, ok bool) {
	if len(entries) == 0 {
		return 0, 0, false
	}
	lo, hi = entries[0].Value, entries[0].Value
	for _, entry := range entries[1:] {
		if entry.Value < lo {
			lo = entry.Value
		}
		if entry.Value > hi {
			hi = entry.Value
		}
	}
	return lo, hi, true
}
