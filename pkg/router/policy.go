package router

import "dbrouter/pkg/config"

// Outcome is the result of one monitor evaluation.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeUnknown
	OutcomeHealthy
	OutcomeWarning
	OutcomeSwitched
	OutcomeSwitchFailed
	OutcomeNoCandidate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeUnknown:
		return "unknown"
	case OutcomeHealthy:
		return "healthy"
	case OutcomeWarning:
		return "warning"
	case OutcomeSwitched:
		return "switched"
	case OutcomeSwitchFailed:
		return "switch_failed"
	case OutcomeNoCandidate:
		return "no_candidate"
	}
	return "invalid"
}

type capacityLevel int

const (
	levelUnknown capacityLevel = iota
	levelHealthy
	levelWarning
	levelFull
)

// classify places a probed size against the thresholds. A negative size
// is unknown, never empty.
func classify(size int64, thresholds config.Thresholds) capacityLevel {
	switch {
	case size < 0:
		return levelUnknown
	case size >= thresholds.LimitBytes:
		return levelFull
	case size >= thresholds.WarnBytes:
		return levelWarning
	}
	return levelHealthy
}

// firstFit scans backends in ascending index order, skipping active, and
// returns the first one whose known size is under limit. sizeOf may
// connect and probe lazily; it reports false for unusable backends.
func firstFit(count, active int, limit int64, sizeOf func(index int) (int64, bool)) (int, bool) {
	for index := 0; index < count; index++ {
		if index == active {
			continue
		}
		size, ok := sizeOf(index)
		if ok && size >= 0 && size < limit {
			return index, true
		}
	}
	return -1, false
}
