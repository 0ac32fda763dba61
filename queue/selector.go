package queue

import (
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/xraph/warden/event"
)

var _ event.Handler = (*Selector)(nil)

// Selector computes the per-cycle queue order. Safe for concurrent use.
type Selector struct {
	queues []string
	unique []string
	strict bool

	mu     sync.RWMutex
	paused map[string]struct{}
}

// NewSelector creates a selector over queues. strict is honoured only
// when queues has no duplicates.
func NewSelector(queues []string, strict bool) *Selector {
	unique := dedupe(queues)
	return &Selector{
		queues: append([]string(nil), queues...),
		unique: unique,
		strict: strict && len(unique) == len(queues),
		paused: make(map[string]struct{}),
	}
}

// Strict reports whether the selector orders queues by priority.
func (s *Selector) Strict() bool { return s.strict }

// Queues returns the configured queue names without duplicates.
func (s *Selector) Queues() []string { return append([]string(nil), s.unique...) }

// Notify applies a pause or unpause broadcast. Other verbs are ignored.
func (s *Selector) Notify(verb, queue string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch verb {
	case event.VerbPause:
		s.paused[queue] = struct{}{}
	case event.VerbUnpause:
		delete(s.paused, queue)
	}
}

// SetPaused replaces the paused set, typically with the store's view at
// startup.
func (s *Selector) SetPaused(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = make(map[string]struct{}, len(names))
	for _, n := range names {
		s.paused[n] = struct{}{}
	}
}

// Paused returns the paused queue names, sorted.
func (s *Selector) Paused() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.paused))
	for n := range s.paused {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Active returns the configured list, duplicates included, minus paused
// queues.
func (s *Selector) Active() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.queues))
	for _, q := range s.queues {
		if _, ok := s.paused[q]; !ok {
			out = append(out, q)
		}
	}
	return out
}

// Next returns the order to probe this cycle. The result may be empty
// when every queue is paused.
func (s *Selector) Next() []string {
	active := s.Active()
	if s.strict {
		return active
	}
	return Shuffle(active, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))) //nolint:gosec // fairness, not security
}

// Shuffle returns a uniformly shuffled copy of queues with duplicates
// removed, keeping each name's first position after the shuffle.
func Shuffle(queues []string, rng *rand.Rand) []string {
	cp := append([]string(nil), queues...)
	rng.Shuffle(len(cp), func(i, j int) { cp[i], cp[j] = cp[j], cp[i] })
	return dedupe(cp)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, q := range in {
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out
}
