package crawlkit

import "time"

// OutcomeStatus classifies a dispatched URL's final state.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeCanceled  OutcomeStatus = "canceled"
)

// DispatchOutcome is the record produced for every URL of a batch.
type DispatchOutcome struct {
	TaskID    string        `json:"taskId"`
	URL       string        `json:"url"`
	Result    *CrawlResult  `json:"result,omitempty"`
	Status    OutcomeStatus `json:"status"`
	ErrorCode string        `json:"errorCode,omitempty"`
	Error     string        `json:"error,omitempty"`

	StartedAt   time.Time `json:"startedAt"`
	EndedAt     time.Time `json:"endedAt"`
	RetriesUsed int       `json:"retriesUsed"`

	// MemoryPressure is the pressure reading taken when the task finished.
	MemoryPressure float64 `json:"memoryPressure"`
}

// Duration returns how long the task ran.
func (o DispatchOutcome) Duration() time.Duration {
	return o.EndedAt.Sub(o.StartedAt)
}

// MemoryMonitor samples memory pressure as a fraction of the available budget.
type MemoryMonitor interface {
	MemoryPressure() float64
}
