// Package metrics is an append-only log of named training series, keyed
// by global transition count.
package metrics

import "sync"

// Point is one logged value of a series.
type Point struct {
	Step  int     `json:"step"`
	Value float64 `json:"value"`
}

// Log maps metric names to ordered (step, value) sequences. Appends keep
// first-seen name order so reports are stable across runs.
type Log struct {
	mu     sync.Mutex
	order  []string
	series map[string][]Point
}

func NewLog() *Log {
	return &Log{series: make(map[string][]Point)}
}

// Append records one value for the named series.
func (l *Log) Append(name string, step int, value float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.series[name]; !ok {
		l.order = append(l.order, name)
	}
	l.series[name] = append(l.series[name], Point{Step: step, Value: value})
}

// Names returns the series names in first-seen order.
func (l *Log) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.order...)
}

// Series returns a copy of the named series, or nil if it was never
// appended to.
func (l *Log) Series(name string) []Point {
	l.mu.Lock()
	defer l.mu.Unlock()

	points, ok := l.series[name]
	if !ok {
		return nil
	}
	return append([]Point(nil), points...)
}

// Last returns the most recent point of the named series.
func (l *Log) Last(name string) (Point, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	points := l.series[name]
	if len(points) == 0 {
		return Point{}, false
	}
	return points[len(points)-1], true
}

// Snapshot copies every series at once.
func (l *Log) Snapshot() map[string][]Point {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string][]Point, len(l.series))
	for name, points := range l.series {
		out[name] = append([]Point(nil), points...)
	}
	return out
}
