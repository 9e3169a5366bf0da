// Package search provides name-based lookup over decoded tidal stations:
// exact substring matching and fuzzy (Jaro-Winkler) ranking for
// misspelled or partial station names.
package search

import (
	"strings"

	"github.com/samber/lo"
	"github.com/xrash/smetrics"

	"github.com/jpr5/tcd"
)

// ScoredStation pairs a station with its similarity score against a query
// name, in [0, 1]; 1 is an exact match.
type ScoredStation struct {
	Station tcd.Station
	Score   float64
}

// FindByName returns every station whose name contains substr,
// case-insensitively.
func FindByName(stations []tcd.Station, substr string) []tcd.Station {
	needle := strings.ToLower(substr)
	return lo.Filter(stations, func(s tcd.Station, _ int) bool {
		return strings.Contains(strings.ToLower(s.Name), needle)
	})
}

// FindFuzzy ranks every station by Jaro-Winkler similarity of its name to
// name, keeping only those at or above threshold, sorted best match first.
func FindFuzzy(stations []tcd.Station, name string, threshold float64) []ScoredStation {
	target := strings.ToLower(name)

	out := make([]ScoredStation, 0, len(stations))
	for _, s := range stations {
		score := smetrics.JaroWinkler(strings.ToLower(s.Name), target, 0.7, 4)
		if score >= threshold {
			out = append(out, ScoredStation{Station: s, Score: score})
		}
	}

	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Score > out[j-1].Score; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}

	return out
}
