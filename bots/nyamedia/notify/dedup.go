package notify

import "sync"

// DedupSet remembers which library items were already announced during
// this process lifetime.
type DedupSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDedupSet returns an empty set.
func NewDedupSet() *DedupSet {
	return &DedupSet{seen: make(map[string]struct{})}
}

// Add inserts key and reports whether it was absent. Check and insert
// happen under one lock, so exactly one concurrent caller wins.
func (d *DedupSet) Add(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return false
	}
	d.seen[key] = struct{}{}
	return true
}

// Len returns the number of remembered keys.
func (d *DedupSet) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
