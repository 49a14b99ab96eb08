// Package health reports run health and progress over HTTP.
package health

import "github.com/vietddude/autowriter/internal/writing/runner"

// SystemStatus represents the overall health state of the run.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Report contains the full health report.
type Report struct {
	Status         SystemStatus  `json:"status"`
	Run            runner.Status `json:"run"`
	PendingFailed  int           `json:"pending_failed_chapters"`
	StorageHealthy bool          `json:"storage_healthy"`
}
