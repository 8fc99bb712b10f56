package api

import "time"

// TaskStatus is the per-task lifecycle state.
type TaskStatus string

const (
	TaskStatusCreated         TaskStatus = "created"
	TaskStatusDispatching     TaskStatus = "dispatching"
	TaskStatusAwaitingEngines TaskStatus = "awaiting_engines"
	TaskStatusMerging         TaskStatus = "merging"
	TaskStatusCompleted       TaskStatus = "completed"
	TaskStatusDegraded        TaskStatus = "degraded"
	TaskStatusFailed          TaskStatus = "failed"
	TaskStatusTimedOut        TaskStatus = "timed_out"
)

// Terminal reports whether the status allows no further transitions.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusDegraded, TaskStatusFailed, TaskStatusTimedOut:
		return true
	}
	return false
}

// EngineName identifies one backing engine in a CoordinationResult.
type EngineName string

const (
	EngineRouter    EngineName = "router"
	EngineRecall    EngineName = "recall"
	EnginePool      EngineName = "pool"
	EngineGenerator EngineName = "generator"
)

// EngineResult is one engine's contribution to a coordination.
// Exactly one of Completion/Recall/Parallel/Creative is set on
// success; Err is set on failure.
type EngineResult struct {
	Engine  EngineName    `json:"engine"`
	Latency time.Duration `json:"latency"`
	Err     *CoordError   `json:"error,omitempty"`

	Completion *CompletionResult `json:"completion,omitempty"`
	Recall     *RecallResult     `json:"recall,omitempty"`
	Parallel   *ParallelResult   `json:"parallel,omitempty"`
	Creative   *CreativeResult   `json:"creative,omitempty"`
}

// CompletionResult is the routed completion outcome.
type CompletionResult struct {
	Text       string  `json:"text"`
	ProviderID string  `json:"provider_id"`
	Model      string  `json:"model,omitempty"`
	TokensIn   int     `json:"tokens_in"`
	TokensOut  int     `json:"tokens_out"`
	Cost       float64 `json:"cost"`
}

// RecallEntry is one retrieved memory item.
type RecallEntry struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Payload string  `json:"payload"`
}

// RecallResult is an ordered retrieval result. Degraded marks a
// partial answer returned at the latency budget.
type RecallResult struct {
	Entries  []RecallEntry `json:"entries"`
	Latency  time.Duration `json:"latency"`
	Degraded bool          `json:"degraded"`
}

// ParallelResult collects per-sub-task outcomes from the worker pool.
type ParallelResult struct {
	Outputs []SubTaskResult `json:"outputs"`
}

// SubTaskResult is one pool sub-task outcome.
type SubTaskResult struct {
	Index  int    `json:"index"`
	Output string `json:"output,omitempty"`
	Err    string `json:"error,omitempty"`
}

// CreativeCandidate is one generated and ranked solution.
type CreativeCandidate struct {
	ID          string  `json:"id"`
	Content     string  `json:"content"`
	Novelty     float64 `json:"novelty"`
	Feasibility float64 `json:"feasibility"`
	Rank        float64 `json:"rank"`
}

// CreativeResult is a ranked candidate batch. Partial marks a batch
// cut short by the generation timeout.
type CreativeResult struct {
	Candidates []CreativeCandidate `json:"candidates"`
	Partial    bool                `json:"partial"`
}

// CoordinationResult is the always-produced outcome of one task.
type CoordinationResult struct {
	TaskID           string                        `json:"task_id"`
	Status           TaskStatus                    `json:"status"`
	Engines          map[EngineName]*EngineResult  `json:"engines"`
	ProviderUsed     string                        `json:"provider_used,omitempty"`
	CostIncurred     float64                       `json:"cost_incurred"`
	TotalLatency     time.Duration                 `json:"total_latency"`
	LatencyBreakdown map[EngineName]time.Duration  `json:"latency_breakdown,omitempty"`
	Errors           []*CoordError                 `json:"errors,omitempty"`
}
