package types

// Tool status values tracked by the registry.
const (
	StatusActive   = "active"
	StatusDegraded = "degraded"
	StatusOffline  = "offline"
)

// Result status values.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// Workflow run states.
const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunAborted   = "aborted"
)

// ToolDescriptor describes a registered tool adapter. The registry owns
// descriptors exclusively; capabilities never change after registration,
// status does.
type ToolDescriptor struct {
	Name          string   `json:"name"`
	Capabilities  []string `json:"capabilities"`
	Endpoint      string   `json:"endpoint,omitempty"`
	Status        string   `json:"status"`
	LastHeartbeat int64    `json:"last_heartbeat,omitempty"`
}

// HasCapability reports whether the descriptor declares the capability.
func (d ToolDescriptor) HasCapability(capability string) bool {
	for _, c := range d.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// ToolRequest is a single tool invocation. RequestID is unique per call and
// is the only correlation handle across concurrent invocations.
type ToolRequest struct {
	ToolName  string                 `json:"toolName"`
	Operation string                 `json:"operation"`
	Arguments map[string]interface{} `json:"arguments"`
	RequestID string                 `json:"requestId"`
}

// ToolResult is the immutable outcome of one invocation or workflow step.
// Exactly one of Payload or Error is set for ok/error results; skipped
// results carry neither.
type ToolResult struct {
	RequestID string                 `json:"requestId"`
	Status    string                 `json:"status"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Error     *Error                 `json:"error,omitempty"`
}

// OK reports whether the result completed successfully.
func (r ToolResult) OK() bool { return r.Status == ResultOK }

// Skipped reports whether the step was skipped by its condition.
func (r ToolResult) Skipped() bool { return r.Status == ResultSkipped }

// StepSpec is one step of a workflow definition.
//
// InputBindings maps argument names to literals, except that a string value
// of the form "$stepN.field.sub" is resolved against step N's recorded
// payload before dispatch. TimeoutSec and MaxRetries override the gateway
// defaults when non-zero.
type StepSpec struct {
	ToolName      string                 `json:"toolName"`
	Operation     string                 `json:"operation"`
	InputBindings map[string]interface{} `json:"inputBindings,omitempty"`
	Condition     string                 `json:"condition,omitempty"`
	Optional      bool                   `json:"optional,omitempty"`
	TimeoutSec    int                    `json:"timeout_sec,omitempty"`
	MaxRetries    int                    `json:"max_retries,omitempty"`
}

// WorkflowDefinition is the static plan: an ordered sequence of steps.
// Immutable once submitted.
type WorkflowDefinition struct {
	Name  string     `json:"name,omitempty"`
	Steps []StepSpec `json:"steps"`
}

// WorkflowRun is the live execution of a definition. Mutated only by the
// workflow engine; terminal once State is completed, failed or aborted.
// Invariant: len(StepResults) == CurrentStepIndex.
type WorkflowRun struct {
	ID               uint64             `json:"runId"`
	Definition       WorkflowDefinition `json:"definition"`
	State            string             `json:"state"`
	CurrentStepIndex int                `json:"currentStepIndex"`
	StepResults      []ToolResult       `json:"stepResults"`
	CreatedAt        int64              `json:"created_at"`
	UpdatedAt        int64              `json:"updated_at"`
}

// Terminal reports whether the run can no longer change state.
func (r WorkflowRun) Terminal() bool {
	switch r.State {
	case RunCompleted, RunFailed, RunAborted:
		return true
	}
	return false
}
