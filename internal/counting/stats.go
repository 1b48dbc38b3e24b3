package counting

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds the counts seen in one reporting window.
type WindowStats struct {
	Minutes int `json:"minutes"`
	Counts  int `json:"counts"`
	Reviews int `json:"reviews"`
}

// Stats is the read-only view the presentation layer renders.
type Stats struct {
	Count      int           `json:"count"`
	Sampled    int           `json:"sampled"`
	Percentage float64       `json:"percentage"`
	Windows    []WindowStats `json:"windows"`
	Rolling60  float64       `json:"rolling_60_percentage"`
	FirstCount *time.Time    `json:"first_count,omitempty"`
	// Inter-arrival of counts over the last hour, in seconds.
	MeanInterval   float64 `json:"mean_interval_s"`
	StdDevInterval float64 `json:"stddev_interval_s"`
	PerMinute      []int   `json:"per_minute"`
}

// StatsReporter derives Stats. It never mutates the components it reads.
type StatsReporter struct {
	history *HistoryLog
	counter *Counter
	review  *ReviewController
}

// NewStatsReporter wires a reporter over the engine components.
func NewStatsReporter(history *HistoryLog, counter *Counter, review *ReviewController) *StatsReporter {
	return &StatsReporter{history: history, counter: counter, review: review}
}

func percent(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den) * 100
}

// Report computes Stats as of now.
func (s *StatsReporter) Report(now time.Time) Stats {
	count := s.counter.Count()
	sampled := s.review.Sampled()

	st := Stats{
		Count:      count,
		Sampled:    sampled,
		Percentage: percent(sampled, count),
		Windows:    make([]WindowStats, 0, len(Windows)),
		PerMinute:  s.history.PerMinute(now, int(HistoryHorizon/time.Minute)),
	}
	for _, w := range Windows {
		st.Windows = append(st.Windows, WindowStats{
			Minutes: int(w / time.Minute),
			Counts:  s.history.CountsWithin(now, w),
			Reviews: s.history.ReviewsWithin(now, w),
		})
	}
	st.Rolling60 = percent(
		s.history.ReviewsWithin(now, HistoryHorizon),
		s.history.CountsWithin(now, HistoryHorizon),
	)
	if first, ok := s.history.FirstCount(); ok {
		st.FirstCount = &first
	}

	gaps := s.history.Intervals(now, HistoryHorizon)
	switch len(gaps) {
	case 0:
	case 1:
		st.MeanInterval = gaps[0]
	default:
		st.MeanInterval, st.StdDevInterval = stat.MeanStdDev(gaps, nil)
	}
	return st
}
