package domain

import "time"

// ProgressRecord is the persisted checkpoint of a run.
type ProgressRecord struct {
	Project       string    `json:"project"        yaml:"project"`
	NextChapter   int       `json:"next_chapter"   yaml:"next_chapter"`
	TotalChapters int       `json:"total_chapters" yaml:"total_chapters"`
	UpdatedAt     time.Time `json:"updated_at"     yaml:"updated_at"`
}

// Complete reports whether every chapter has been finalized.
func (p ProgressRecord) Complete() bool {
	return p.NextChapter > p.TotalChapters
}

// InRange reports whether NextChapter lies in [1, TotalChapters+1].
func (p ProgressRecord) InRange() bool {
	return p.NextChapter >= 1 && p.NextChapter <= p.TotalChapters+1
}
