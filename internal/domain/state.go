package domain

import (
	"database/sql/driver"
	"time"
)

// Phase is a pipeline stage every item passes through.
type Phase string

const (
	PhasePartitioning Phase = "PARTITIONING"
	PhaseProcessing   Phase = "PROCESSING"
	PhaseDelivering   Phase = "DELIVERING"
)

// Phases lists the phases in pipeline order.
var Phases = []Phase{PhasePartitioning, PhaseProcessing, PhaseDelivering}

// ItemCounts aggregates item outcomes.
type ItemCounts struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Ignored   int `json:"ignored"`
}

// Total returns the number of items counted.
func (c ItemCounts) Total() int {
	return c.Succeeded + c.Failed + c.Ignored
}

// Add counts one item outcome.
func (c *ItemCounts) Add(status ItemStatus) {
	switch status {
	case ItemStatusSuccess:
		c.Succeeded++
	case ItemStatusFailure:
		c.Failed++
	case ItemStatusIgnore:
		c.Ignored++
	}
}

// CountItems aggregates the outcomes of items.
func CountItems(items []ChunkItem) ItemCounts {
	var c ItemCounts
	for _, item := range items {
		c.Add(item.Status)
	}
	return c
}

// PhaseState tracks the progress of one phase of a job.
type PhaseState struct {
	ItemCounts
	Chunks    int        `json:"chunks"`
	Done      bool       `json:"done"`
	BeginDate *time.Time `json:"beginDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

// State holds the per-phase progress of a job.
type State struct {
	Phases map[Phase]*PhaseState `json:"phases"`
}

// NewState returns a state with all phases untouched.
func NewState() State {
	s := State{Phases: make(map[Phase]*PhaseState, len(Phases))}
	for _, p := range Phases {
		s.Phases[p] = &PhaseState{}
	}
	return s
}

// Phase returns the state of p, creating it when missing.
func (s *State) Phase(p Phase) *PhaseState {
	if s.Phases == nil {
		s.Phases = make(map[Phase]*PhaseState, len(Phases))
	}
	ps, ok := s.Phases[p]
	if !ok {
		ps = &PhaseState{}
		s.Phases[p] = ps
	}
	return ps
}

// Record adds the outcome of one chunk to phase p and recomputes its done flag.
// Addition is commutative, so chunks may be recorded in any order.
// It reports whether the phase became done with this chunk.
func (s *State) Record(p Phase, counts ItemCounts, numberOfChunks, numberOfItems int, now time.Time) bool {
	ps := s.Phase(p)
	if ps.BeginDate == nil {
		begin := now
		ps.BeginDate = &begin
	}
	ps.Succeeded += counts.Succeeded
	ps.Failed += counts.Failed
	ps.Ignored += counts.Ignored
	ps.Chunks++
	return s.refresh(p, numberOfChunks, numberOfItems, now)
}

// Refresh recomputes every done flag. A job with no chunks and no items is trivially done.
func (s *State) Refresh(numberOfChunks, numberOfItems int, now time.Time) {
	for _, p := range Phases {
		s.refresh(p, numberOfChunks, numberOfItems, now)
	}
}

func (s *State) refresh(p Phase, numberOfChunks, numberOfItems int, now time.Time) bool {
	ps := s.Phase(p)
	if ps.Done {
		return false
	}
	if ps.Chunks != numberOfChunks || ps.Total() != numberOfItems {
		return false
	}
	ps.Done = true
	end := now
	ps.EndDate = &end
	return true
}

// IsDone reports whether phase p is done.
func (s State) IsDone(p Phase) bool {
	ps, ok := s.Phases[p]
	return ok && ps.Done
}

// AllDone reports whether every phase is done.
func (s State) AllDone() bool {
	for _, p := range Phases {
		if !s.IsDone(p) {
			return false
		}
	}
	return true
}

// Value implements the driver.Valuer interface.
func (s State) Value() (driver.Value, error) {
	return jsonValue(s)
}

// Scan implements the sql.Scanner interface.
func (s *State) Scan(value interface{}) error {
	*s = State{}
	return scanJSON(value, s, "State")
}
