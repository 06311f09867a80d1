package cron

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Job re-runs one research query on a cron schedule.
type Job struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Schedule     string     `json:"schedule"` // 6-field cron, seconds first
	Query        string     `json:"query"`
	Enabled      bool       `json:"enabled"`
	CreatedAt    time.Time  `json:"created_at"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	LastReportID int64      `json:"last_report_id,omitempty"`
	// Changed is set when the last run's insights differ from the run before it.
	Changed bool `json:"changed"`

	insightsHash string
	EntryID      cron.EntryID `json:"-"`
}

// Clone creates a copy safe to hand out of the scheduler lock.
func (j *Job) Clone() *Job {
	clone := *j
	if j.LastRun != nil {
		lastRun := *j.LastRun
		clone.LastRun = &lastRun
	}
	return &clone
}
