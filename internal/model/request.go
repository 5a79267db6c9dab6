package model

import "time"

// Request status constants.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRejected  = "rejected"
	StatusAbandoned = "abandoned"
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusQueued: {
		StatusRunning:   true,
		StatusFailed:    true,
		StatusAbandoned: true,
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusAbandoned: true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether no further transition is possible from status.
func IsTerminal(status string) bool {
	_, ok := validTransitions[status]
	return !ok
}

// ProgressLine is one informational value reported while a request ran.
type ProgressLine struct {
	ID        int64     `json:"-"`
	RequestID string    `json:"-"`
	Seq       int       `json:"Seq"`
	Line      string    `json:"Line"`
	CreatedAt time.Time `json:"CreatedAt"`
}

// Request is the journal record of one accepted connection.
type Request struct {
	ID         string     `json:"ID"`
	TraceID    string     `json:"TraceID,omitempty"`
	Route      string     `json:"Route"`
	Path       string     `json:"Path"`
	RemoteHost string     `json:"RemoteHost"`
	Status     string     `json:"Status"`
	Error      string     `json:"Error,omitempty"`
	DurationMS *int       `json:"DurationMS,omitempty"`
	CreatedAt  time.Time  `json:"CreatedAt"`
	StartedAt  *time.Time `json:"StartedAt,omitempty"`
	FinishedAt *time.Time `json:"FinishedAt,omitempty"`
}

// RequestStats aggregates the request journal.
type RequestStats struct {
	Total         int            `json:"Total"`
	ByStatus      map[string]int `json:"ByStatus"`
	ByRoute       map[string]int `json:"ByRoute"`
	AvgDurationMS float64        `json:"AvgDurationMS"`
}

// VersionInfo is the version metadata reported by the host.
type VersionInfo struct {
	Version     string `json:"Version"`
	HostVersion string `json:"HostVersion,omitempty"`
}
