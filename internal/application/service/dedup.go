package service

import "github.com/turtacn/contentsdk/internal/domain/models"

// dedupFilter tracks recently delivered event ids. The events API may repeat an
// event across adjacent pages, and occasionally within one page.
type dedupFilter struct {
	ids  map[string]struct{}
	size int
}

func newDedupFilter(size int) *dedupFilter {
	return &dedupFilter{ids: make(map[string]struct{}), size: size}
}

// filter returns the events not seen before, in order, and marks them as seen.
// Events without an id cannot be tracked and always pass.
func (d *dedupFilter) filter(events []models.Event) (fresh []models.Event, dropped int) {
	for _, ev := range events {
		if ev.EventID == "" {
			fresh = append(fresh, ev)
			continue
		}
		if _, seen := d.ids[ev.EventID]; seen {
			dropped++
			continue
		}
		d.ids[ev.EventID] = struct{}{}
		fresh = append(fresh, ev)
	}
	return fresh, dropped
}

// prune forgets every id not present in page once the filter reaches capacity.
// Older events have left the API's own repeat window and need no tracking.
func (d *dedupFilter) prune(page []models.Event) bool {
	if len(d.ids) < d.size {
		return false
	}
	keep := make(map[string]struct{}, len(page))
	for _, ev := range page {
		if ev.EventID != "" {
			keep[ev.EventID] = struct{}{}
		}
	}
	d.ids = keep
	return true
}

func (d *dedupFilter) count() int { return len(d.ids) }

func (d *dedupFilter) has(id string) bool {
	_, ok := d.ids[id]
	return ok
}
