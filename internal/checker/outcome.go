package checker

import "time"

// Outcome is the terminal state of one subscription's task within a cycle.
type Outcome int

const (
	// Success means a price was extracted and persisted.
	Success Outcome = iota
	// ExtractionMiss means the page was fetched but carried no parsable price.
	ExtractionMiss
	// FetchFailed means the page could not be fetched.
	FetchFailed
	// StorageFailed means persisting the observation failed.
	StorageFailed
	// InternalError covers panics and limiter failures inside the task.
	InternalError
)

var outcomeNames = [...]string{
	Success:        "success",
	ExtractionMiss: "extraction_miss",
	FetchFailed:    "fetch_failed",
	StorageFailed:  "storage_failed",
	InternalError:  "internal_error",
}

func (o Outcome) String() string {
	if o >= 0 && int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "unknown"
}

// Result is the tagged per-subscription outcome of one cycle attempt.
type Result struct {
	SubscriptionID uint
	Outcome        Outcome
	Price          float64 // set when Outcome == Success
	Notified       bool    // a decrease notification was delivered
	Err            error   // cause; on Success a delivery failure or late panic
}

// CycleReport summarizes one completed cycle.
//
// Fields:
//   - Outcomes: task count keyed by Outcome.String(); absent keys mean 0.
//   - Notified: decrease notifications delivered.
//   - NotifyFailed: Success tasks whose notification was attempted and failed.
//   - MaxInFlight: limiter peak during the cycle, never above its cap.
//   - Results: one entry per input subscription, in input order; not
//     serialized.
type CycleReport struct {
	ID           string         `json:"id"`
	Started      time.Time      `json:"started"`
	Finished     time.Time      `json:"finished"`
	Total        int            `json:"total"`
	Outcomes     map[string]int `json:"outcomes"`
	Notified     int            `json:"notified"`
	NotifyFailed int            `json:"notify_failed"`
	MaxInFlight  int            `json:"max_in_flight"`
	Results      []Result       `json:"-"`
}

// Duration returns Finished - Started.
func (r CycleReport) Duration() time.Duration { return r.Finished.Sub(r.Started) }

// Count returns the number of tasks that ended with o.
func (r CycleReport) Count(o Outcome) int { return r.Outcomes[o.String()] }
