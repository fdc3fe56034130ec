package observability

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Stage is one timed step of answering a panel query.
type Stage int

const (
	StageCompletion Stage = iota
	StageRender
	StageQueryTotal
	StageFirstSegment
	numStages
)

// p95 budgets; render runs in-process, the rest include the round trip.
var stageTable = [numStages]struct {
	name     string
	targetMS float64
}{
	StageCompletion:   {"completion", 3000},
	StageRender:       {"render", 5},
	StageQueryTotal:   {"query_total", 3500},
	StageFirstSegment: {"answer_to_first_segment", 100},
}

func (s Stage) String() string {
	if s < 0 || s >= numStages {
		return "unknown"
	}
	return stageTable[s].name
}

// TargetP95MS is the latency budget the panel aims to stay under.
func (s Stage) TargetP95MS() float64 {
	if s < 0 || s >= numStages {
		return 0
	}
	return stageTable[s].targetMS
}

type StageStats struct {
	Stage        string  `json:"stage"`
	Samples      int     `json:"samples"`
	LastMS       float64 `json:"last_ms"`
	P50MS        float64 `json:"p50_ms"`
	P95MS        float64 `json:"p95_ms"`
	P99MS        float64 `json:"p99_ms"`
	TargetP95MS  float64 `json:"target_p95_ms"`
	OverTarget   int     `json:"over_target"`
	WithinTarget bool    `json:"within_target"`
}

type StageSnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
}

// stageWindow keeps the last size samples of every stage.
type stageWindow struct {
	mu    sync.Mutex
	size  int
	rings [numStages]ring
}

type ring struct {
	samples []float64
	head    int
	last    float64
}

func (r *ring) add(v float64, size int) {
	r.last = v
	if len(r.samples) < size {
		r.samples = append(r.samples, v)
		return
	}
	r.samples[r.head] = v
	r.head = (r.head + 1) % size
}

func newStageWindow(size int) *stageWindow {
	if size <= 0 {
		size = 256
	}
	return &stageWindow{size: size}
}

func (w *stageWindow) observe(stage Stage, ms float64) {
	if stage < 0 || stage >= numStages || ms < 0 {
		return
	}
	w.mu.Lock()
	w.rings[stage].add(ms, w.size)
	w.mu.Unlock()
}

// snapshot lists stages in declaration order and omits stages without samples.
func (w *stageWindow) snapshot() StageSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := StageSnapshot{GeneratedAt: time.Now().UTC(), WindowSize: w.size, Stages: []StageStats{}}
	for stage := Stage(0); stage < numStages; stage++ {
		r := &w.rings[stage]
		if len(r.samples) == 0 {
			continue
		}
		sorted := append([]float64(nil), r.samples...)
		sort.Float64s(sorted)

		target := stage.TargetP95MS()
		over := len(sorted) - sort.Search(len(sorted), func(i int) bool { return sorted[i] > target })
		p95 := nearestRank(sorted, 0.95)
		out.Stages = append(out.Stages, StageStats{
			Stage:        stage.String(),
			Samples:      len(sorted),
			LastMS:       round2(r.last),
			P50MS:        round2(nearestRank(sorted, 0.50)),
			P95MS:        round2(p95),
			P99MS:        round2(nearestRank(sorted, 0.99)),
			TargetP95MS:  target,
			OverTarget:   over,
			WithinTarget: p95 <= target,
		})
	}
	return out
}

func (w *stageWindow) reset() {
	w.mu.Lock()
	w.rings = [numStages]ring{}
	w.mu.Unlock()
}

// nearestRank matches the percentile the perfpanel client prints.
func nearestRank(sorted []float64, q float64) float64 {
	idx := int(q*float64(len(sorted))+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
