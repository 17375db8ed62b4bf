package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"catty/api/internal/checklist"
)

var ErrInvalidChecklistConfig = errors.New("invalid checklist config")

// Checklist holds the server-wide checklist defaults: the scales applied to
// files that carry none, and the priority bands.
type Checklist struct {
	Scales         checklist.Scales          `toml:"scales"`
	PriorityLevels []checklist.PriorityLevel `toml:"priority_levels"`
	CloseFinalBand bool                      `toml:"close_final_band"`
}

func DefaultChecklist() Checklist {
	return Checklist{
		Scales:         checklist.DefaultScales(),
		PriorityLevels: checklist.DefaultPriorityLevels(),
	}
}

// LoadChecklist reads the TOML file at path. An empty path gives the
// defaults; a scale or band list missing from the file keeps its default.
func LoadChecklist(path string) (Checklist, error) {
	cfg := DefaultChecklist()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var file Checklist
	meta, err := toml.DecodeFile(path, &file)
	if err != nil {
		return Checklist{}, fmt.Errorf("read checklist config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Checklist{}, fmt.Errorf("%w: unknown key %s", ErrInvalidChecklistConfig, undecoded[0])
	}

	if len(file.Scales.VI) > 0 {
		cfg.Scales.VI = file.Scales.VI
	}
	if len(file.Scales.VC) > 0 {
		cfg.Scales.VC = file.Scales.VC
	}
	if len(file.PriorityLevels) > 0 {
		cfg.PriorityLevels = file.PriorityLevels
	}
	cfg.CloseFinalBand = file.CloseFinalBand

	if err := cfg.check(); err != nil {
		return Checklist{}, err
	}
	return cfg, nil
}

func (c Checklist) check() error {
	for _, kind := range []checklist.ScaleKind{checklist.ScaleVI, checklist.ScaleVC} {
		entries := c.Scales.VI
		if kind == checklist.ScaleVC {
			entries = c.Scales.VC
		}
		seen := map[string]bool{}
		for _, entry := range entries {
			if entry.Key == "" {
				return fmt.Errorf("%w: scale %s entry without key", ErrInvalidChecklistConfig, kind)
			}
			if seen[entry.Key] {
				return fmt.Errorf("%w: scale %s repeats key %s", ErrInvalidChecklistConfig, kind, entry.Key)
			}
			seen[entry.Key] = true
		}
	}
	for _, level := range c.PriorityLevels {
		if level.Name == "" {
			return fmt.Errorf("%w: priority level %q without name", ErrInvalidChecklistConfig, level.ID)
		}
		if level.Min >= level.Max {
			return fmt.Errorf("%w: priority level %s needs min < max", ErrInvalidChecklistConfig, level.Name)
		}
	}
	return nil
}
