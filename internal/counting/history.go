package counting

import (
	"sort"
	"time"
)

// Reporting windows for the stats page.
var Windows = []time.Duration{5 * time.Minute, 15 * time.Minute, 60 * time.Minute}

// HistoryHorizon is the longest reporting window. Older entries are pruned.
const HistoryHorizon = 60 * time.Minute

// HistoryLog keeps the timestamps of counts and opened reviews inside the
// reporting horizon. Timestamps are expected in non-decreasing order.
type HistoryLog struct {
	counts  []time.Time
	reviews []time.Time
	first   time.Time
}

// RecordCount appends a confirmed count at t.
func (h *HistoryLog) RecordCount(t time.Time) {
	if h.first.IsZero() {
		h.first = t
	}
	h.counts = append(h.counts, t)
	h.Prune(t)
}

// RecordReview appends an opened review at t.
func (h *HistoryLog) RecordReview(t time.Time) {
	h.reviews = append(h.reviews, t)
	h.Prune(t)
}

// Prune drops entries older than the horizon relative to now.
func (h *HistoryLog) Prune(now time.Time) {
	cutoff := now.Add(-HistoryHorizon)
	h.counts = dropBefore(h.counts, cutoff)
	h.reviews = dropBefore(h.reviews, cutoff)
}

func dropBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := sort.Search(len(ts), func(i int) bool { return !ts[i].Before(cutoff) })
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}

func countSince(ts []time.Time, since time.Time) int {
	i := sort.Search(len(ts), func(i int) bool { return ts[i].After(since) })
	return len(ts) - i
}

// CountsWithin returns the number of counts in (now-window, now].
func (h *HistoryLog) CountsWithin(now time.Time, window time.Duration) int {
	return countSince(h.counts, now.Add(-window))
}

// ReviewsWithin returns the number of opened reviews in (now-window, now].
func (h *HistoryLog) ReviewsWithin(now time.Time, window time.Duration) int {
	return countSince(h.reviews, now.Add(-window))
}

// RestartFirst forgets the first count so the next one starts a new run.
// Windowed history is kept.
func (h *HistoryLog) RestartFirst() { h.first = time.Time{} }

// FirstCount is the time of the first count since start or reset.
func (h *HistoryLog) FirstCount() (time.Time, bool) {
	return h.first, !h.first.IsZero()
}

// Intervals returns the gaps between consecutive counts within window, in seconds.
func (h *HistoryLog) Intervals(now time.Time, window time.Duration) []float64 {
	since := now.Add(-window)
	i := sort.Search(len(h.counts), func(i int) bool { return h.counts[i].After(since) })
	ts := h.counts[i:]
	if len(ts) < 2 {
		return nil
	}
	out := make([]float64, 0, len(ts)-1)
	for j := 1; j < len(ts); j++ {
		out = append(out, ts[j].Sub(ts[j-1]).Seconds())
	}
	return out
}

// PerMinute buckets the counts of the last n minutes. Index n-1 is the
// minute ending at now.
func (h *HistoryLog) PerMinute(now time.Time, n int) []int {
	out := make([]int, n)
	for _, t := range h.counts {
		age := now.Sub(t)
		if age < 0 {
			continue
		}
		idx := n - 1 - int(age/time.Minute)
		if idx >= 0 && idx < n {
			out[idx]++
		}
	}
	return out
}
