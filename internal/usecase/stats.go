package usecase

import (
	"sort"
	"sync"

	"PriceScanner/internal/domain"
)

// Stats accumulates per-account observability counters. Read-only reporting
// state, not authoritative for any pipeline decision.
type Stats struct {
	mu sync.Mutex

	channelsClaimed  int
	messagesSeen     int
	priceRowsCreated int
	perSource        map[string]*sourceCounters
}

type sourceCounters struct {
	messages  int
	priceRows int
}

// SourceBreakdown is one source's share of the account counters.
type SourceBreakdown struct {
	Source    string
	Messages  int
	PriceRows int
}

// Snapshot is a point-in-time copy of the account counters.
// ChannelsClaimed covers the current pass only; the rest are totals.
type Snapshot struct {
	ChannelsClaimed  int
	MessagesSeen     int
	PriceRowsCreated int
	PerSource        []SourceBreakdown
}

// NewStats returns an empty counter set.
func NewStats() *Stats {
	return &Stats{perSource: map[string]*sourceCounters{}}
}

// BeginPass resets the pass-scoped counters; message and price-row totals
// survive across passes.
func (s *Stats) BeginPass() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelsClaimed = 0
}

// NoteClaimed counts a channel claimed during the current pass.
func (s *Stats) NoteClaimed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelsClaimed++
}

// NoteMessage counts one processed text message for a source.
func (s *Stats) NoteMessage(sourceName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messagesSeen++
	s.counters(sourceName).messages++
}

// NoteOutcome counts catalog effects of one listing.
func (s *Stats) NoteOutcome(sourceName string, outcome domain.Outcome) {
	if outcome != domain.OutcomeCreated && outcome != domain.OutcomeExisting {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.priceRowsCreated++
	s.counters(sourceName).priceRows++
}

func (s *Stats) counters(sourceName string) *sourceCounters {
	c, ok := s.perSource[sourceName]
	if !ok {
		c = &sourceCounters{}
		s.perSource[sourceName] = c
	}
	return c
}

// SnapshotNow copies the counters for external reporting.
func (s *Stats) SnapshotNow() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ChannelsClaimed:  s.channelsClaimed,
		MessagesSeen:     s.messagesSeen,
		PriceRowsCreated: s.priceRowsCreated,
		PerSource:        make([]SourceBreakdown, 0, len(s.perSource)),
	}
	for name, c := range s.perSource {
		snap.PerSource = append(snap.PerSource, SourceBreakdown{
			Source:    name,
			Messages:  c.messages,
			PriceRows: c.priceRows,
		})
	}
	sort.Slice(snap.PerSource, func(i, j int) bool {
		return snap.PerSource[i].Source < snap.PerSource[j].Source
	})
	return snap
}
