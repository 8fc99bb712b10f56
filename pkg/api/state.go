package api

import "fmt"

// ValidateTaskTransition checks whether a task status transition is
// valid. An empty "from" status represents the initial state before
// any status has been set. Terminal states allow no outgoing
// transitions.
func ValidateTaskTransition(from, to TaskStatus) *CoordError {
	valid := map[TaskStatus][]TaskStatus{
		"":                {TaskStatusCreated},
		TaskStatusCreated: {TaskStatusDispatching, TaskStatusFailed},
		TaskStatusDispatching: {
			TaskStatusAwaitingEngines,
			TaskStatusFailed,
		},
		TaskStatusAwaitingEngines: {
			TaskStatusMerging,
			TaskStatusTimedOut,
		},
		TaskStatusMerging: {
			TaskStatusCompleted,
			TaskStatusDegraded,
			TaskStatusFailed,
			TaskStatusTimedOut,
		},
	}

	allowed, exists := valid[from]
	if !exists {
		return NewInvalidTaskError("status",
			fmt.Sprintf("invalid transition from %s to %s", from, to))
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return NewInvalidTaskError("status",
		fmt.Sprintf("invalid transition from %s to %s", from, to))
}
