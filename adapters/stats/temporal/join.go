package temporal

import (
	"strings"
	"time"

	"mmmstudio/domain/modeling"
)

// Timestamp labels arrive from the statistics service in whatever shape the
// dataset index had. Normalizing them lets "2024-01-01" and
// "2024-01-01T00:00:00" join, which an exact string match would miss.

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// NormalizeKey maps a raw timestamp label to its join key. Midnight instants
// collapse to a date key; other instants become RFC3339 in UTC. Labels that
// do not parse are joined on their trimmed text.
func NormalizeKey(raw string) string {
	s := strings.TrimSpace(raw)
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		t = t.UTC()
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format(time.RFC3339)
	}
	return s
}

// Indexed is a series keyed by normalized timestamp, in first-seen order
type Indexed struct {
	Keys   []string
	Values map[string]float64
}

// Index normalizes a series. When two points share a key the first one wins.
func Index(points []modeling.SeriesPoint) Indexed {
	idx := Indexed{
		Keys:   make([]string, 0, len(points)),
		Values: make(map[string]float64, len(points)),
	}
	for _, p := range points {
		key := NormalizeKey(p.Timestamp)
		if _, seen := idx.Values[key]; seen {
			continue
		}
		idx.Keys = append(idx.Keys, key)
		idx.Values[key] = p.Value
	}
	return idx
}

// Len returns the number of distinct keys
func (i Indexed) Len() int {
	return len(i.Keys)
}

// Join pairs the values of a and b on shared keys, in a's key order
func Join(a, b Indexed) (xs, ys []float64) {
	n := min(a.Len(), b.Len())
	xs = make([]float64, 0, n)
	ys = make([]float64, 0, n)
	for _, key := range a.Keys {
		y, ok := b.Values[key]
		if !ok {
			continue
		}
		xs = append(xs, a.Values[key])
		ys = append(ys, y)
	}
	return xs, ys
}
