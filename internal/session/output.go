package session

import (
	"sort"
	"sync"

	"github.com/streamcast/streamcast/internal/core"
)

// Output is the composite stream presented to the caller: exactly one
// track per currently subscribed, still-live producer. It only ever gains
// or loses individual tracks; the stream itself is never replaced, so
// concurrently arriving tracks cannot clobber each other.
type Output struct {
	mu     sync.RWMutex
	tracks map[string]core.Track
}

func newOutput() *Output {
	return &Output{tracks: make(map[string]core.Track)}
}

func (o *Output) add(producerID string, t core.Track) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tracks[producerID] = t
}

func (o *Output) remove(producerID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.tracks, producerID)
}

func (o *Output) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.tracks)
}

// Tracks returns a snapshot in stable producer-id order.
func (o *Output) Tracks() []core.Track {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ids := make([]string, 0, len(o.tracks))
	for id := range o.tracks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]core.Track, 0, len(ids))
	for _, id := range ids {
		out = append(out, o.tracks[id])
	}
	return out
}

// Has reports whether a track for the producer is merged in.
func (o *Output) Has(producerID string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.tracks[producerID]
	return ok
}
