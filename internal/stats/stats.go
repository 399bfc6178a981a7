package stats

import (
	"sync"
	"time"
)

// Store counts request outcomes since process start.
type Store struct {
	mu        sync.RWMutex
	started   time.Time
	succeeded int
	failed    map[string]int
	totalTime time.Duration
}

type Snapshot struct {
	UptimeSec     int64          `json:"uptime_sec"`
	Total         int            `json:"total"`
	Succeeded     int            `json:"succeeded"`
	Failed        int            `json:"failed"`
	FailedByKind  map[string]int `json:"failed_by_kind"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

func NewStore() *Store {
	return &Store{started: time.Now(), failed: make(map[string]int)}
}

func (s *Store) RecordSuccess(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.succeeded++
	s.totalTime += d
}

func (s *Store) RecordFailure(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[kind]++
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		UptimeSec:    int64(time.Since(s.started).Seconds()),
		Succeeded:    s.succeeded,
		FailedByKind: make(map[string]int, len(s.failed)),
	}
	for k, v := range s.failed {
		snap.FailedByKind[k] = v
		snap.Failed += v
	}
	snap.Total = snap.Succeeded + snap.Failed
	if s.succeeded > 0 {
		snap.AvgDurationMS = float64(s.totalTime.Milliseconds()) / float64(s.succeeded)
	}
	return snap
}
