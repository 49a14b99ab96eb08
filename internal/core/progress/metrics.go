package progress

import (
	"time"
)

// saveRecord holds timing data for a persisted checkpoint.
type saveRecord struct {
	NextChapter int
	SavedAt     time.Time
}

// Metrics holds checkpoint throughput data.
type Metrics struct {
	ChaptersPerHour    float64
	AverageChapterTime time.Duration
	LastSavedAt        *time.Time
	SavesRecorded      int
}

// MetricsCollector tracks checkpoint saves over a sliding window.
type MetricsCollector struct {
	windowSize int          // number of saves to track
	saves      []saveRecord // ring buffer of save records
}

// RecordSave records a persisted checkpoint.
func (mc *MetricsCollector) RecordSave(next int, savedAt time.Time) {
	record := saveRecord{
		NextChapter: next,
		SavedAt:     savedAt,
	}

	if len(mc.saves) >= mc.windowSize {
		// Shift elements left, drop oldest
		copy(mc.saves, mc.saves[1:])
		mc.saves[len(mc.saves)-1] = record
	} else {
		mc.saves = append(mc.saves, record)
	}
}

// GetMetrics returns current metrics.
func (mc *MetricsCollector) GetMetrics() Metrics {
	m := Metrics{SavesRecorded: len(mc.saves)}
	if len(mc.saves) == 0 {
		return m
	}

	last := mc.saves[len(mc.saves)-1]
	savedAt := last.SavedAt
	m.LastSavedAt = &savedAt

	if len(mc.saves) >= 2 {
		first := mc.saves[0]
		duration := last.SavedAt.Sub(first.SavedAt)
		chapters := float64(last.NextChapter - first.NextChapter)

		if duration > 0 && chapters > 0 {
			m.ChaptersPerHour = chapters / duration.Hours()
			m.AverageChapterTime = time.Duration(float64(duration) / chapters)
		}
	}

	return m
}

// Reset clears all collected metrics.
func (mc *MetricsCollector) Reset() {
	mc.saves = mc.saves[:0]
}
