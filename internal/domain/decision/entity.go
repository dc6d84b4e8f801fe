package decision

import (
	"time"

	"taskpilot/pkg/errors"
)

// MaxMessageLength is the longest user message the engine accepts.
const MaxMessageLength = 4000

// IntentType classifies the purpose of a user message.
type IntentType string

const (
	IntentCreateTask   IntentType = "CREATE_TASK"
	IntentListTasks    IntentType = "LIST_TASKS"
	IntentCompleteTask IntentType = "COMPLETE_TASK"
	IntentUpdateTask   IntentType = "UPDATE_TASK"
	IntentDeleteTask   IntentType = "DELETE_TASK"
	IntentGeneralChat  IntentType = "GENERAL_CHAT"
	IntentAmbiguous    IntentType = "AMBIGUOUS"
	IntentMultiIntent  IntentType = "MULTI_INTENT"
	IntentConfirmYes   IntentType = "CONFIRM_YES"
	IntentConfirmNo    IntentType = "CONFIRM_NO"
)

// DecisionType is the action the engine decided to take.
type DecisionType string

const (
	DecisionInvokeTool          DecisionType = "INVOKE_TOOL"
	DecisionRespondOnly         DecisionType = "RESPOND_ONLY"
	DecisionAskClarification    DecisionType = "ASK_CLARIFICATION"
	DecisionRequestConfirmation DecisionType = "REQUEST_CONFIRMATION"
	DecisionExecutePending      DecisionType = "EXECUTE_PENDING"
	DecisionCancelPending       DecisionType = "CANCEL_PENDING"
)

// ToolName identifies a task tool the engine can invoke.
type ToolName string

const (
	ToolAddTask      ToolName = "add_task"
	ToolListTasks    ToolName = "list_tasks"
	ToolUpdateTask   ToolName = "update_task"
	ToolCompleteTask ToolName = "complete_task"
	ToolDeleteTask   ToolName = "delete_task"
)

// Valid reports whether the name is in the tool whitelist.
func (t ToolName) Valid() bool {
	switch t {
	case ToolAddTask, ToolListTasks, ToolUpdateTask, ToolCompleteTask, ToolDeleteTask:
		return true
	}
	return false
}

// HistoryMessage is a single prior message in the conversation.
type HistoryMessage struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// PendingAction is a destructive action awaiting user confirmation.
// Only task deletion requires confirmation.
type PendingAction struct {
	ActionType      IntentType `json:"action_type"`
	TaskID          string     `json:"task_id"`
	TaskDescription string     `json:"task_description"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
}

// NewPendingAction creates a delete confirmation with the given timeout.
func NewPendingAction(taskID, taskDescription string, timeout time.Duration) *PendingAction {
	now := time.Now()
	return &PendingAction{
		ActionType:      IntentDeleteTask,
		TaskID:          taskID,
		TaskDescription: taskDescription,
		CreatedAt:       now,
		ExpiresAt:       now.Add(timeout),
	}
}

// IsExpired reports whether the confirmation window has passed.
func (p *PendingAction) IsExpired() bool {
	return time.Now().After(p.ExpiresAt)
}

// Context is the complete input to a single engine decision.
// The engine is stateless; the same context produces the same decision.
type Context struct {
	UserID              string           `json:"user_id"`
	Message             string           `json:"message"`
	ConversationID      string           `json:"conversation_id"`
	History             []HistoryMessage `json:"message_history,omitempty"`
	PendingConfirmation *PendingAction   `json:"pending_confirmation,omitempty"`
}

// Validate checks the context is processable.
func (c *Context) Validate() error {
	if c.UserID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "user_id is required")
	}
	if c.Message == "" {
		return errors.Wrap(errors.ErrInvalidInput, "message is required")
	}
	if len(c.Message) > MaxMessageLength {
		return errors.Wrapf(errors.ErrInvalidInput, "message exceeds %d characters", MaxMessageLength)
	}
	if c.ConversationID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "conversation_id is required")
	}
	return nil
}

// ToolCall is a single tool invocation request.
type ToolCall struct {
	Name       ToolName               `json:"tool_name"`
	Parameters map[string]interface{} `json:"parameters"`
	Sequence   int                    `json:"sequence"` // 1-based execution order
}

// AgentDecision is the output of the engine for one user message.
type AgentDecision struct {
	DecisionID            string         `json:"decision_id"`
	DecisionType          DecisionType   `json:"decision_type"`
	ToolCalls             []ToolCall     `json:"tool_calls,omitempty"`
	ResponseText          string         `json:"response_text,omitempty"`
	ClarificationQuestion string         `json:"clarification_question,omitempty"`
	PendingAction         *PendingAction `json:"pending_action,omitempty"`
}

// Validate enforces decision consistency rules.
func (d *AgentDecision) Validate() error {
	switch d.DecisionType {
	case DecisionInvokeTool, DecisionExecutePending:
		if len(d.ToolCalls) == 0 {
			return errors.Wrapf(errors.ErrInvalidInput, "%s decision must include tool calls", d.DecisionType)
		}
	case DecisionRespondOnly, DecisionAskClarification, DecisionRequestConfirmation, DecisionCancelPending:
		if len(d.ToolCalls) > 0 {
			return errors.Wrapf(errors.ErrInvalidInput, "%s decision must not include tool calls", d.DecisionType)
		}
	default:
		return errors.Wrapf(errors.ErrInvalidInput, "unknown decision type: %s", d.DecisionType)
	}

	if d.DecisionType == DecisionRequestConfirmation {
		if d.PendingAction == nil {
			return errors.Wrap(errors.ErrInvalidInput, "REQUEST_CONFIRMATION decision must include pending action")
		}
	} else if d.PendingAction != nil {
		return errors.Wrap(errors.ErrInvalidInput, "pending action is only valid for REQUEST_CONFIRMATION decisions")
	}

	return nil
}
