package domain

import "time"

// FailedChapter is a chapter abandoned by the skip policy.
type FailedChapter struct {
	ID          string              `json:"id"           db:"id"`
	Project     string              `json:"project"      db:"project"`
	Chapter     int                 `json:"chapter"      db:"chapter"`
	Stage       Stage               `json:"stage"        db:"stage"`
	Attempts    int                 `json:"attempts"     db:"attempts"`
	Error       string              `json:"error_msg"    db:"error_msg"`
	RetryCount  int                 `json:"retry_count"  db:"retry_count"`
	Status      FailedChapterStatus `json:"status"       db:"status"`
	LastAttempt time.Time           `json:"last_attempt" db:"last_attempt"`
	CreatedAt   time.Time           `json:"created_at"   db:"created_at"`
}

type FailedChapterStatus string

const (
	FailedChapterStatusPending  FailedChapterStatus = "pending"
	FailedChapterStatusResolved FailedChapterStatus = "resolved"
)
