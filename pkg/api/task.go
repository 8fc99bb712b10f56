package api

import "time"

// TaskKind selects the engine subset a task requires.
type TaskKind string

const (
	TaskKindCompletion TaskKind = "completion"
	TaskKindRecall     TaskKind = "recall"
	TaskKindParallel   TaskKind = "parallel"
	TaskKindCreative   TaskKind = "creative"
	TaskKindComposite  TaskKind = "composite"
)

// Task is one inbound unit of work. It is a tagged variant: exactly
// one payload field matching Kind must be set. A Task exists from the
// moment a request is accepted until its CoordinationResult is emitted.
type Task struct {
	ID        string    `json:"id"`
	Kind      TaskKind  `json:"kind"`
	Deadline  time.Time `json:"deadline,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// PriorityHint biases scheduling of the task's pool work: hinted
	// tasks may use queue headroom ordinary submissions cannot. Zero is
	// the neutral default; negative values are rejected.
	PriorityHint int `json:"priority_hint,omitempty"`

	Completion *CompletionSpec `json:"completion,omitempty"`
	Recall     *RecallSpec     `json:"recall,omitempty"`
	Parallel   *ParallelSpec   `json:"parallel,omitempty"`
	Creative   *CreativeSpec   `json:"creative,omitempty"`
	Composite  *CompositeSpec  `json:"composite,omitempty"`
}

// CompletionSpec asks for a single model completion routed through the
// provider chain.
type CompletionSpec struct {
	Model     string `json:"model,omitempty"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// RecallSpec asks for a memory lookup.
type RecallSpec struct {
	Key    string    `json:"key,omitempty"`
	Vector []float32 `json:"vector,omitempty"`
	TopK   int       `json:"top_k,omitempty"`
}

// ParallelSpec asks for a batch of independent sub-prompts executed on
// the worker pool.
type ParallelSpec struct {
	Prompts []string `json:"prompts"`
}

// CreativeSpec asks for ranked candidate generation.
type CreativeSpec struct {
	Prompt string `json:"prompt"`
	Count  int    `json:"count,omitempty"`
}

// CompositeSpec combines a completion with optional recall context and
// creative alternatives.
type CompositeSpec struct {
	Completion CompletionSpec `json:"completion"`
	Recall     *RecallSpec    `json:"recall,omitempty"`
	Creative   *CreativeSpec  `json:"creative,omitempty"`
}

// Validate checks that the task is well formed: a known kind, and the
// payload field matching the kind set with all others empty.
func (t *Task) Validate() *CoordError {
	if t.ID != "" && !ValidateTaskID(t.ID) {
		return NewInvalidTaskError("id", "malformed task ID")
	}
	if t.PriorityHint < 0 {
		return NewInvalidTaskError("priority_hint", "must be >= 0")
	}

	set := 0
	if t.Completion != nil {
		set++
	}
	if t.Recall != nil {
		set++
	}
	if t.Parallel != nil {
		set++
	}
	if t.Creative != nil {
		set++
	}
	if t.Composite != nil {
		set++
	}
	if set != 1 {
		return NewInvalidTaskError("kind", "exactly one payload must be set")
	}

	switch t.Kind {
	case TaskKindCompletion:
		if t.Completion == nil {
			return NewInvalidTaskError("completion", "payload does not match kind")
		}
		if t.Completion.Prompt == "" {
			return NewInvalidTaskError("completion.prompt", "prompt is required")
		}
	case TaskKindRecall:
		if t.Recall == nil {
			return NewInvalidTaskError("recall", "payload does not match kind")
		}
		if t.Recall.Key == "" && len(t.Recall.Vector) == 0 {
			return NewInvalidTaskError("recall", "key or vector is required")
		}
	case TaskKindParallel:
		if t.Parallel == nil {
			return NewInvalidTaskError("parallel", "payload does not match kind")
		}
		if len(t.Parallel.Prompts) == 0 {
			return NewInvalidTaskError("parallel.prompts", "at least one prompt is required")
		}
	case TaskKindCreative:
		if t.Creative == nil {
			return NewInvalidTaskError("creative", "payload does not match kind")
		}
		if t.Creative.Prompt == "" {
			return NewInvalidTaskError("creative.prompt", "prompt is required")
		}
	case TaskKindComposite:
		if t.Composite == nil {
			return NewInvalidTaskError("composite", "payload does not match kind")
		}
		if t.Composite.Completion.Prompt == "" {
			return NewInvalidTaskError("composite.completion.prompt", "prompt is required")
		}
	default:
		return NewInvalidTaskError("kind", "unknown task kind: "+string(t.Kind))
	}

	return nil
}
