package worker

import (
	"sync"
	"time"
)

// StatusSnapshot is an immutable copy of scheduler counters.
type StatusSnapshot struct {
	Ticks     int64      `json:"ticks"`
	Skipped   int64      `json:"skipped"`
	Executed  int64      `json:"executed"`
	Failed    int64      `json:"failed"`
	LastJobID int64      `json:"lastJobId,omitempty"`
	LastError string     `json:"lastError,omitempty"`
	LastRunAt *time.Time `json:"lastRunAt,omitempty"`

	lastErr error
}

// Status tracks scheduler activity. It is safe for concurrent use.
type Status struct {
	mu sync.RWMutex

	ticks, skipped, runs, failed int64
	lastJobID                    int64
	lastErr                      error
	lastRunAt                    time.Time
}

// NewStatus returns zeroed counters.
func NewStatus() *Status {
	return &Status{}
}

func (s *Status) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks++
}

func (s *Status) skip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped++
}

func (s *Status) record(jobID int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	s.lastJobID = jobID
	s.lastErr = err
	s.lastRunAt = time.Now()
	if err != nil {
		s.failed++
	}
}

// Snapshot returns the current counters.
func (s *Status) Snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := StatusSnapshot{
		Ticks:     s.ticks,
		Skipped:   s.skipped,
		Executed:  s.runs,
		Failed:    s.failed,
		LastJobID: s.lastJobID,
		lastErr:   s.lastErr,
	}
	if s.lastErr != nil {
		snap.LastError = SafeMessage(s.lastErr)
	}
	if !s.lastRunAt.IsZero() {
		t := s.lastRunAt
		snap.LastRunAt = &t
	}
	return snap
}

// Err returns the error of the last executed job, if any.
func (s StatusSnapshot) Err() error {
	return s.lastErr
}
