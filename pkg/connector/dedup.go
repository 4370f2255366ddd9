// Copyright 2024-2026 Aiku AI

package connector

import (
	"sync"

	"maunium.net/go/mautrix/id"
)

// dedupCapacity is the number of recent event IDs remembered.
const dedupCapacity = 20

// EventDedupFilter remembers the most recent Matrix event IDs so that events
// redelivered by the homeserver are processed only once.
type EventDedupFilter struct {
	mu     sync.Mutex
	recent [dedupCapacity]id.EventID
	next   int
}

// NewEventDedupFilter returns an empty filter.
func NewEventDedupFilter() *EventDedupFilter {
	return &EventDedupFilter{}
}

// Observe records evtID and reports whether it was already seen. A duplicate
// is moved into the most recently written slot and the entry previously held
// there takes its place, so the ring keeps one copy of each ID.
func (f *EventDedupFilter) Observe(evtID id.EventID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if evtID != "" {
		for i, seen := range f.recent {
			if seen == evtID {
				f.recent[i] = f.recent[f.next]
				f.recent[f.next] = evtID
				return true
			}
		}
	}
	f.next = (f.next + 1) % dedupCapacity
	f.recent[f.next] = evtID
	return false
}
