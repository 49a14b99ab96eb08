package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/autowriter/internal/writing/runner"
)

const cacheTTL = 5 * time.Second

// StatusSource exposes the run snapshot.
type StatusSource interface {
	Status() runner.Status
}

// FailedCounter counts pending failed chapters.
type FailedCounter interface {
	Count(ctx context.Context, project string) (int, error)
}

// Monitor derives health from the runner snapshot and the failed-chapter ledger.
type Monitor struct {
	project string
	source  StatusSource
	failed  FailedCounter

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport Report
}

// NewMonitor creates a monitor. failed may be nil.
func NewMonitor(project string, source StatusSource, failed FailedCounter) *Monitor {
	return &Monitor{project: project, source: source, failed: failed}
}

// CheckHealth builds a report. Ledger lookups are cached briefly.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := Report{
		Status:         StatusHealthy,
		Run:            m.source.Status(),
		StorageHealthy: true,
	}

	if m.failed != nil {
		if !m.lastCheck.IsZero() && time.Since(m.lastCheck) < cacheTTL {
			report.PendingFailed = m.lastReport.PendingFailed
			report.StorageHealthy = m.lastReport.StorageHealthy
		} else {
			count, err := m.failed.Count(ctx, m.project)
			report.PendingFailed = count
			report.StorageHealthy = err == nil
			m.lastCheck = time.Now()
		}
	}

	switch {
	case !report.StorageHealthy:
		report.Status = StatusCritical
	case len(report.Run.Skipped) > 0 || report.PendingFailed > 0:
		report.Status = StatusDegraded
	}

	m.lastReport = report
	return report
}
