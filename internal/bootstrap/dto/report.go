package dto

import "time"

type State string

const (
	StateNotStarted State = "not_started"
	StateFetching   State = "fetching"
	StateMapping    State = "mapping"
	StateUpserting  State = "upserting"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	// StateSkipped marks a run rejected because another one was in progress.
	StateSkipped State = "skipped"
)

type RunReport struct {
	RunID string `json:"run_id"`
	State State  `json:"state"`
	// FailedStage is set when State is StateFailed.
	FailedStage State `json:"failed_stage,omitempty"`
	Fetched     int   `json:"fetched"`
	Mapped      int   `json:"mapped"`
	Inserted    int   `json:"inserted"`
	Updated     int   `json:"updated"`
	// Empty is true when the mapped catalog was empty and nothing was written.
	Empty     bool          `json:"empty"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`

	Err error `json:"-"`
}

func (r RunReport) TotalSaved() int {
	return r.Inserted + r.Updated
}
