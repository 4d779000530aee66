package model

import "sort"

// Tally counts detections for one (category, subject) pair.
type Tally struct {
	Category Category `json:"category"`
	Subject  string   `json:"subject"`
	Count    int      `json:"count"`
}

// SortTallies orders by count desc, then subject asc, then category asc.
func SortTallies(ts []Tally) {
	sort.Slice(ts, func(i, j int) bool {
		a, b := ts[i], ts[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		return a.Category < b.Category
	})
}
