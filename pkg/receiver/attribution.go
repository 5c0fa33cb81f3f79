package receiver

import (
	"time"

	"github.com/GoAskAway/rill-sub003/pkg/proto"
)

const (
	// defaultAttributionWindow is how far back AttributionWindow's live
	// summary looks by default.
	defaultAttributionWindow = 5 * time.Second
	// defaultHistoryWindow is how long a sample stays in the ring buffer
	// at all, regardless of whether a particular call asked for a
	// narrower window.
	defaultHistoryWindow = 60 * time.Second
	// defaultHistoryCap bounds the ring buffer by count as well as by
	// time, so a burst of zero-duration batches cannot grow it without
	// bound within the time window.
	defaultHistoryCap = 200
)

// sample pairs one ApplyStats with the wall-clock time it was recorded,
// since ApplyStats itself carries no timestamp.
type sample struct {
	at    time.Time
	stats ApplyStats
}

// attributionHistory is a time-and-count-bounded ring buffer of
// ApplyStats: a slice trimmed from the front on every append once it
// exceeds a cap, additionally trimmed by age so a quiet Receiver's
// history drains on its own instead of holding onto samples older than
// historyWindow forever.
type attributionHistory struct {
	samples       []sample
	historyWindow time.Duration
	sampleCap     int
}

func newAttributionHistory(historyWindow time.Duration, sampleCap int) *attributionHistory {
	return &attributionHistory{historyWindow: historyWindow, sampleCap: sampleCap}
}

func (h *attributionHistory) record(stats ApplyStats) {
	now := time.Now()
	h.samples = append(h.samples, sample{at: now, stats: stats})
	h.prune(now)
}

func (h *attributionHistory) prune(now time.Time) {
	cutoff := now.Add(-h.historyWindow)
	i := 0
	for i < len(h.samples) && h.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		h.samples = h.samples[i:]
	}
	if len(h.samples) > h.sampleCap {
		h.samples = h.samples[len(h.samples)-h.sampleCap:]
	}
}

func (h *attributionHistory) last() ApplyStats {
	if len(h.samples) == 0 {
		return ApplyStats{}
	}
	return h.samples[len(h.samples)-1].stats
}

// AttributionWindow summarizes the samples recorded within the live
// attribution window: aggregate op/duration/delta totals plus four
// worst-batch exemplars, each the single sample that maximizes one
// dimension of "what is the tree doing right now."
type AttributionWindow struct {
	SampleCount     int
	TotalOps        int
	TotalApplied    int
	TotalSkipped    int
	TotalFailed     int
	TotalDurationMs float64
	NodeDelta       int

	Largest     *ApplyStats
	Slowest     *ApplyStats
	MostSkipped *ApplyStats
	MostGrowth  *ApplyStats
}

// window computes an AttributionWindow over samples recorded within
// defaultAttributionWindow of now, in one pass tracking four running
// maxima so the whole window is a single scan over samples regardless
// of how many stats fields it summarizes.
func (h *attributionHistory) window() AttributionWindow {
	now := time.Now()
	h.prune(now)
	cutoff := now.Add(-defaultAttributionWindow)

	var w AttributionWindow
	for i := range h.samples {
		s := h.samples[i]
		if s.at.Before(cutoff) {
			continue
		}
		st := s.stats
		w.SampleCount++
		w.TotalOps += st.Total
		w.TotalApplied += st.Applied
		w.TotalSkipped += st.Skipped
		w.TotalFailed += st.Failed
		w.TotalDurationMs += st.DurationMs
		w.NodeDelta += st.NodeDelta

		if w.Largest == nil || st.Total > w.Largest.Total {
			stCopy := st
			w.Largest = &stCopy
		}
		if w.Slowest == nil || st.DurationMs > w.Slowest.DurationMs {
			stCopy := st
			w.Slowest = &stCopy
		}
		if w.MostSkipped == nil || st.Skipped > w.MostSkipped.Skipped {
			stCopy := st
			w.MostSkipped = &stCopy
		}
		if w.MostGrowth == nil || abs(st.NodeDelta) > abs(w.MostGrowth.NodeDelta) {
			stCopy := st
			w.MostGrowth = &stCopy
		}
	}
	return w
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// exportSnapshot is the serializable shape Export/ExportSanitized emit:
// the tree's current contents plus the live attribution window, so a
// snapshot is self-contained evidence of "what the tree looked like and
// how it got there."
type exportSnapshot struct {
	RootChildren []proto.NodeId
	Nodes        []proto.NodeInstance
	Attribution  AttributionWindow
}
