package crawler

import "sync"

// Stats aggregates the outcome of a crawl run.
type Stats struct {
	PagesVisited int `json:"pages_visited"`
	LinksFound   int `json:"links_found"`
	Inserted     int `json:"inserted"`
	Updated      int `json:"updated"`
	Skipped      int `json:"skipped"`
	Failed       int `json:"failed"`
}

// Merge returns the field-wise sum of s and o.
func (s Stats) Merge(o Stats) Stats {
	return Stats{
		PagesVisited: s.PagesVisited + o.PagesVisited,
		LinksFound:   s.LinksFound + o.LinksFound,
		Inserted:     s.Inserted + o.Inserted,
		Updated:      s.Updated + o.Updated,
		Skipped:      s.Skipped + o.Skipped,
		Failed:       s.Failed + o.Failed,
	}
}

// Processed is the number of articles written, inserted or updated.
func (s Stats) Processed() int {
	return s.Inserted + s.Updated
}

// Accumulator merges Stats deltas from concurrent producers.
type Accumulator struct {
	mu    sync.Mutex
	total Stats
}

// Add merges delta into the running total.
func (a *Accumulator) Add(delta Stats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total = a.total.Merge(delta)
}

// Snapshot returns the current total.
func (a *Accumulator) Snapshot() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}
