package control

import (
	"sync"
	"time"

	"github.com/montanaflynn/stats"
)

// latencyWindow is how many recent cycle durations feed the latency percentiles.
const latencyWindow = 256

// Statistics accumulates from the moment the loop starts and resets on the next start.
type Statistics struct {
	Frames            uint64 `json:"frames"`
	Detections        uint64 `json:"detections"`
	Poses             uint64 `json:"poses"`
	PoseFailures      uint64 `json:"pose_failures"`
	CaptureFailures   uint64 `json:"capture_failures"`
	ReconnectAttempts uint64 `json:"reconnect_attempts"`
	Reconnects        uint64 `json:"reconnects"`
	VehicleAttempts   uint64 `json:"vehicle_attempts"`
	VehicleReconnects uint64 `json:"vehicle_reconnects"`
	Sends             uint64 `json:"sends"`
	SendFailures      uint64 `json:"send_failures"`
	UnexpectedErrors  uint64 `json:"unexpected_errors"`

	Elapsed         time.Duration `json:"elapsed"`
	FPS             float64       `json:"fps"`
	DetectionRate   float64       `json:"detection_rate"`
	PoseSuccessRate float64       `json:"pose_success_rate"`
	Latency         Latency       `json:"latency"`
}

// Latency summarizes recent cycle durations.
type Latency struct {
	P50 time.Duration `json:"p50"`
	P95 time.Duration `json:"p95"`
	Max time.Duration `json:"max"`
}

// cycleStats is written by the loop goroutines and read by anyone holding the loop.
type cycleStats struct {
	mu        sync.Mutex
	counts    Statistics
	startedAt time.Time
	latencies []float64
	next      int
}

func (s *cycleStats) reset(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = Statistics{}
	s.startedAt = now
	s.latencies = make([]float64, 0, latencyWindow)
	s.next = 0
}

func (s *cycleStats) add(fn func(c *Statistics)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.counts)
}

func (s *cycleStats) observeCycle(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.latencies) < latencyWindow {
		s.latencies = append(s.latencies, float64(d))
		return
	}
	s.latencies[s.next] = float64(d)
	s.next = (s.next + 1) % latencyWindow
}

// snapshot derives the rates as of now.
func (s *cycleStats) snapshot(now time.Time) Statistics {
	s.mu.Lock()
	out := s.counts
	data := stats.Float64Data(append([]float64(nil), s.latencies...))
	startedAt := s.startedAt
	s.mu.Unlock()

	if !startedAt.IsZero() {
		out.Elapsed = now.Sub(startedAt)
	}
	if secs := out.Elapsed.Seconds(); secs > 0 {
		out.FPS = float64(out.Frames) / secs
	}
	if out.Frames > 0 {
		out.DetectionRate = float64(out.Detections) / float64(out.Frames)
	}
	if attempts := out.Poses + out.PoseFailures; attempts > 0 {
		out.PoseSuccessRate = float64(out.Poses) / float64(attempts)
	}
	if data.Len() > 0 {
		p50, _ := data.Percentile(50)
		p95, _ := data.Percentile(95)
		maxLatency, _ := data.Max()
		out.Latency = Latency{P50: time.Duration(p50), P95: time.Duration(p95), Max: time.Duration(maxLatency)}
	}
	return out
}
