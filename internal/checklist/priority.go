package checklist

// PriorityLevel is a named severity band [Min, Max).
type PriorityLevel struct {
	ID   string  `json:"id" toml:"id"`
	Name string  `json:"name" toml:"name"`
	Min  float64 `json:"min" toml:"min"`
	Max  float64 `json:"max" toml:"max"`
}

func DefaultPriorityLevels() []PriorityLevel {
	return []PriorityLevel{
		{ID: "low", Name: "Baja", Min: 0, Max: 33},
		{ID: "medium", Name: "Media", Min: 33, Max: 66},
		{ID: "high", Name: "Alta", Min: 66, Max: 100},
	}
}

// Classify returns the name of the first band containing pct, or "" when
// none does. Bands are half-open; with closeFinal the last band in the list
// also accepts pct == Max, so a severity of exactly 100 lands in it.
func Classify(levels []PriorityLevel, pct float64, closeFinal bool) string {
	for i, level := range levels {
		if pct < level.Min {
			continue
		}
		if pct < level.Max || (closeFinal && i == len(levels)-1 && pct == level.Max) {
			return level.Name
		}
	}
	return ""
}
