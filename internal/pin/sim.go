package pin

import (
	"sort"
	"sync"
)

// SimInput is an input line driven from software: a front-panel simulator,
// a remote panel, or a test script. Edges carry timestamps from the clock,
// and edges scheduled in the future stay invisible until the clock reaches
// them.
type SimInput struct {
	mu    sync.Mutex
	clock Clock
	edges []Edge
}

func NewSimInput(clock Clock) *SimInput {
	return &SimInput{clock: clock}
}

// Set records an edge at the current clock time if level differs from the
// current level.
func (s *SimInput) Set(level bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.NowMillis()
	if s.levelAt(now) == level {
		return
	}
	s.insert(Edge{Level: level, At: now})
}

// Toggle inverts the current level and returns the new one.
func (s *SimInput) Toggle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.NowMillis()
	level := !s.levelAt(now)
	s.insert(Edge{Level: level, At: now})
	return level
}

// AddEdge schedules a raw edge at an absolute time.
func (s *SimInput) AddEdge(level bool, at int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insert(Edge{Level: level, At: at})
}

// Press schedules a press starting at at and lasting duration ms.
func (s *SimInput) Press(at, duration int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insert(Edge{Level: true, At: at})
	s.insert(Edge{Level: false, At: at + duration})
}

func (s *SimInput) ReadTransition() Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edgeAt(s.clock.NowMillis())
}

func (s *SimInput) Level() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levelAt(s.clock.NowMillis())
}

func (s *SimInput) insert(e Edge) {
	i := sort.Search(len(s.edges), func(i int) bool { return s.edges[i].At > e.At })
	s.edges = append(s.edges, Edge{})
	copy(s.edges[i+1:], s.edges[i:])
	s.edges[i] = e
}

func (s *SimInput) edgeAt(now int64) Edge {
	i := sort.Search(len(s.edges), func(i int) bool { return s.edges[i].At > now })
	if i == 0 {
		return Edge{}
	}
	return s.edges[i-1]
}

func (s *SimInput) levelAt(now int64) bool {
	return s.edgeAt(now).Level
}

// SimOutput is an output line that keeps its write history.
type SimOutput struct {
	mu      sync.Mutex
	clock   Clock
	level   bool
	history []Edge
}

// NewSimOutput creates an output line; clock may be nil when timestamps are
// not needed.
func NewSimOutput(clock Clock) *SimOutput {
	return &SimOutput{clock: clock}
}

func (s *SimOutput) Write(level bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var at int64
	if s.clock != nil {
		at = s.clock.NowMillis()
	}
	s.level = level
	s.history = append(s.history, Edge{Level: level, At: at})
}

func (s *SimOutput) Level() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// History returns a copy of every write, redundant ones included.
func (s *SimOutput) History() []Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Edge, len(s.history))
	copy(out, s.history)
	return out
}

// Pulses counts low-to-high transitions since the last Reset.
func (s *SimOutput) Pulses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	prev := false
	for _, e := range s.history {
		if e.Level && !prev {
			count++
		}
		prev = e.Level
	}
	return count
}

// Reset clears the history, keeping the current level.
func (s *SimOutput) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}
