package controller

import "time"

type powerSample struct {
	at    time.Time
	watts float64
}

// Smoother produces a time-windowed moving average of raw power samples.
// The mean is unweighted over wall-clock-recent samples, not a fixed-count
// buffer, so bursty sampling does not bias the average. With a zero window
// (smoothing disabled) or no samples in range, Current returns the last raw
// reading.
type Smoother struct {
	window  time.Duration
	samples []powerSample
	last    float64
}

func NewSmoother(window time.Duration) *Smoother {
	return &Smoother{window: window}
}

// Record appends a sample and evicts readings older than the window.
func (s *Smoother) Record(now time.Time, watts float64) {
	s.last = watts
	if s.window <= 0 {
		return
	}
	s.samples = append(s.samples, powerSample{at: now, watts: watts})
	s.evict(now)
}

// Current returns the mean over samples within the window, evicting stale
// samples first. Values are not rounded here; rounding happens only at the
// presentation boundary.
func (s *Smoother) Current(now time.Time) float64 {
	if s.window <= 0 {
		return s.last
	}
	s.evict(now)
	if len(s.samples) == 0 {
		return s.last
	}
	var total float64
	for _, sample := range s.samples {
		total += sample.watts
	}
	return total / float64(len(s.samples))
}

func (s *Smoother) evict(now time.Time) {
	cutoff := now.Add(-s.window)
	i := 0
	for i < len(s.samples) && s.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.samples = append(s.samples[:0], s.samples[i:]...)
	}
}
