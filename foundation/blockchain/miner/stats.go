package miner

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// statsWindow is the number of recent solve durations kept.
const statsWindow = 16

// DefaultTargetBlockTime is the solve duration the retarget hint aims for.
const DefaultTargetBlockTime = 10 * time.Second

// Set of retarget hints reported with the mining statistics.
const (
	RetargetUp   = "increase"
	RetargetDown = "decrease"
	RetargetKeep = "keep"
)

// Stats represents the statistics for recently mined blocks. The retarget
// hint is informational only, difficulty is fixed by the genesis.
type Stats struct {
	Blocks   int           `json:"blocks"`
	Mean     time.Duration `json:"mean"`
	StdDev   time.Duration `json:"std_dev"`
	Target   time.Duration `json:"target"`
	Retarget string        `json:"retarget"`
}

// stats keeps a window of solve durations.
type stats struct {
	target time.Duration

	mu        sync.Mutex
	durations []float64
}

func newStats(target time.Duration) *stats {
	if target <= 0 {
		target = DefaultTargetBlockTime
	}

	return &stats{target: target}
}

// record adds the duration to the window and logs the new statistics.
func (s *stats) record(d time.Duration, ev EventHandler) {
	s.mu.Lock()
	s.durations = append(s.durations, float64(d))
	if len(s.durations) > statsWindow {
		s.durations = s.durations[len(s.durations)-statsWindow:]
	}
	s.mu.Unlock()

	st := s.snapshot()
	ev("miner: stats: blocks[%d]: mean[%v]: stddev[%v]: retarget[%s]", st.Blocks, st.Mean, st.StdDev, st.Retarget)
}

// snapshot computes the statistics over the current window.
func (s *stats) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Blocks:   len(s.durations),
		Target:   s.target,
		Retarget: RetargetKeep,
	}

	switch len(s.durations) {
	case 0:
		return st
	case 1:
		st.Mean = time.Duration(s.durations[0])
	default:
		mean, std := stat.MeanStdDev(s.durations, nil)
		st.Mean = time.Duration(mean)
		st.StdDev = time.Duration(std)
	}

	switch {
	case st.Mean < s.target/2:
		st.Retarget = RetargetUp
	case st.Mean > s.target*2:
		st.Retarget = RetargetDown
	}

	return st
}
