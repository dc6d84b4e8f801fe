package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskpilot/internal/adapters/ai"
	"taskpilot/internal/domain/decision"
	"taskpilot/internal/domain/observability"
	"taskpilot/internal/metrics"
	"taskpilot/internal/services/logging"
	"taskpilot/internal/tools"
	"taskpilot/pkg/errors"
	"taskpilot/pkg/logger"
)

// Fixed user-safe responses. Raw provider errors and tool internals
// never reach the user.
const (
	respRateLimited         = "I'm receiving too many requests right now. Please wait a moment and try again."
	respLLMTrouble          = "I'm having trouble processing your request. Please try again."
	respModelError          = "I had trouble processing that. Please try again."
	respUnexpected          = "Something went wrong. Please try again."
	respTooComplex          = "That request is a bit too complex. Could you break it into smaller steps?"
	respAuthRequired        = "I need you to be logged in to manage tasks."
	respDeleteCancelled     = "OK, I won't delete that task."
	respDeleteFailed        = "I couldn't delete that task. Please try again."
	respConfirmationExpired = "The confirmation request has expired. Please try again if you'd like to delete the task."
)

func deleteConfirmationText(description string) string {
	return fmt.Sprintf("Are you sure you want to delete '%s'? This cannot be undone. Reply 'yes' to confirm or 'no' to cancel.", description)
}

func taskDeletedText(description string) string {
	return fmt.Sprintf("'%s' has been deleted.", description)
}

// ToolExecutor runs whitelisted tools and never returns a raw error.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, params map[string]interface{}, userID string) *tools.Result
}

// Config holds the engine tunables.
type Config struct {
	Model               string
	MaxIterations       int
	Temperature         float64
	MaxTokens           int
	RequestTimeout      time.Duration
	ConfirmationTimeout time.Duration
}

// Engine is the LLM-driven decision engine. It is stateless: every
// decision is derived solely from the supplied context, and each
// processed message produces exactly one decision log.
type Engine struct {
	adapter      ai.ChatProvider
	executor     ToolExecutor
	logs         *logging.Service
	constitution string
	cfg          Config
	log          *logger.Logger
}

// NewEngine creates a decision engine.
func NewEngine(adapter ai.ChatProvider, executor ToolExecutor, logs *logging.Service, constitution string, cfg Config) *Engine {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 5
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.ConfirmationTimeout <= 0 {
		cfg.ConfirmationTimeout = 5 * time.Minute
	}
	if constitution == "" {
		constitution = DefaultConstitution
	}

	return &Engine{
		adapter:      adapter,
		executor:     executor,
		logs:         logs,
		constitution: constitution,
		cfg:          cfg,
		log:          logger.Get().With("service", "decision_engine"),
	}
}

// ProcessMessage processes one user message and returns the decision.
// It always returns a usable decision; failures are folded into fixed
// user-safe responses and reflected in the logged outcome category.
func (e *Engine) ProcessMessage(ctx context.Context, dctx decision.Context) *decision.AgentDecision {
	start := time.Now()
	decisionID := uuid.NewString()

	var (
		state       observability.OutcomeState
		invocations []observability.ToolInvocationLog
	)

	var dec *decision.AgentDecision
	if err := dctx.Validate(); err != nil {
		e.log.Warnw("Invalid decision context", "decision_id", decisionID, "error", err)
		state.UserInputError = true
		text := respUnexpected
		if dctx.UserID == "" {
			text = respAuthRequired
		}
		dec = respondOnly(text)
	} else {
		runCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
		dec = e.process(runCtx, &dctx, decisionID, &state, &invocations)
		cancel()
	}
	dec.DecisionID = decisionID

	if len(invocations) > 0 {
		state.ToolUsed = true
		succeeded := true
		for _, inv := range invocations {
			if !inv.Success {
				succeeded = false
				break
			}
		}
		state.ToolSucceeded = &succeeded
	}

	duration := time.Since(start)
	intent := deriveIntent(dec)
	outcome := observability.AssignOutcome(state)

	metrics.RecordDecision(string(dec.DecisionType), string(outcome), duration)
	e.log.Infow("Decision made",
		"decision_id", decisionID,
		"decision_type", dec.DecisionType,
		"intent", intent,
		"outcome", outcome,
		"tool_invocations", len(invocations),
		"duration_ms", duration.Milliseconds(),
	)

	e.persist(ctx, &dctx, dec, intent, outcome, invocations, start, duration)

	return dec
}

func (e *Engine) process(ctx context.Context, dctx *decision.Context, decisionID string, state *observability.OutcomeState, invocations *[]observability.ToolInvocationLog) *decision.AgentDecision {
	if dctx.PendingConfirmation != nil {
		if dec := e.handlePending(ctx, dctx, decisionID, invocations); dec != nil {
			return dec
		}
		// Any other message cancels the pending action and is
		// processed as a fresh request.
		e.log.Infow("Pending confirmation cancelled by new message", "decision_id", decisionID)
	}

	return e.runLoop(ctx, dctx, decisionID, state, invocations)
}

// handlePending resolves a message arriving while a delete
// confirmation is outstanding. Returns nil when the message is
// neither a confirmation nor a denial.
func (e *Engine) handlePending(ctx context.Context, dctx *decision.Context, decisionID string, invocations *[]observability.ToolInvocationLog) *decision.AgentDecision {
	pending := dctx.PendingConfirmation

	if pending.IsExpired() {
		e.log.Infow("Pending confirmation expired", "decision_id", decisionID, "task_id", pending.TaskID)
		return respondOnly(respConfirmationExpired)
	}

	if isConfirmYes(dctx.Message) {
		params := map[string]interface{}{"task_id": pending.TaskID}
		result := e.executor.Execute(ctx, string(decision.ToolDeleteTask), params, dctx.UserID)
		*invocations = append(*invocations,
			newInvocationRecord(decisionID, decision.ToolDeleteTask, params, dctx.UserID, result, len(*invocations)+1))

		text := taskDeletedText(pending.TaskDescription)
		if !result.Success {
			text = respDeleteFailed
		}

		return &decision.AgentDecision{
			DecisionType: decision.DecisionExecutePending,
			ToolCalls: []decision.ToolCall{{
				Name:       decision.ToolDeleteTask,
				Parameters: withUserID(params, dctx.UserID),
				Sequence:   1,
			}},
			ResponseText: text,
		}
	}

	if isConfirmNo(dctx.Message) {
		return &decision.AgentDecision{
			DecisionType: decision.DecisionCancelPending,
			ResponseText: respDeleteCancelled,
		}
	}

	return nil
}

// runLoop drives the bounded tool-calling conversation. The loop
// terminates within MaxIterations adapter calls regardless of model
// behavior.
func (e *Engine) runLoop(ctx context.Context, dctx *decision.Context, decisionID string, state *observability.OutcomeState, invocations *[]observability.ToolInvocationLog) *decision.AgentDecision {
	msgs := buildMessages(e.constitution, dctx)
	declarations := tools.Declarations()

	for iteration := 1; iteration <= e.cfg.MaxIterations; iteration++ {
		e.log.Debugw("Tool loop iteration",
			"decision_id", decisionID,
			"iteration", iteration,
			"max", e.cfg.MaxIterations,
		)

		resp, err := e.chat(ctx, msgs, declarations)
		if err != nil {
			return e.decisionForError(decisionID, err, state)
		}

		choice := resp.Choices[0]

		if choice.FinishReason == ai.FinishReasonError {
			e.log.Errorf("model returned error finish for decision %s", decisionID)
			state.ResponseError = true
			return respondOnly(respModelError)
		}

		if len(choice.Message.ToolCalls) == 0 {
			return e.buildResponseDecision(choice.Message.Content, dctx, state, *invocations)
		}

		// Carry the assistant turn forward so the model sees its own
		// calls next iteration.
		msgs = append(msgs, choice.Message)

		for _, tc := range choice.Message.ToolCalls {
			name := decision.ToolName(tc.Function.Name)

			args, perr := parseArgs(tc.Function.Arguments)
			if perr != nil {
				e.log.Warnw("Unparseable tool arguments", "decision_id", decisionID, "tool", tc.Function.Name)
				msgs = appendToolError(msgs, tc, "invalid tool arguments")
				continue
			}

			if !name.Valid() {
				e.log.Warnw("Unknown tool requested", "decision_id", decisionID, "tool", tc.Function.Name)
				msgs = appendToolError(msgs, tc, fmt.Sprintf("tool %q is not available", tc.Function.Name))
				continue
			}

			// Destructive tools stop the loop before execution; the
			// user must confirm first.
			if tools.IsDestructive(name) {
				pending := pendingFromArgs(args, e.cfg.ConfirmationTimeout)
				return &decision.AgentDecision{
					DecisionType:  decision.DecisionRequestConfirmation,
					ResponseText:  deleteConfirmationText(pending.TaskDescription),
					PendingAction: pending,
				}
			}

			if verr := tools.ValidateArgs(name, args); verr != nil {
				msgs = appendToolError(msgs, tc, verr.Error())
				continue
			}

			delete(args, "user_id")
			result := e.executor.Execute(ctx, string(name), args, dctx.UserID)
			*invocations = append(*invocations,
				newInvocationRecord(decisionID, name, args, dctx.UserID, result, len(*invocations)+1))
			msgs = appendToolResult(msgs, tc, result)
		}
	}

	e.log.Warnw("Max tool iterations reached", "decision_id", decisionID, "max", e.cfg.MaxIterations)
	return respondOnly(respTooComplex)
}

// chat invokes the adapter once and records provider metrics.
func (e *Engine) chat(ctx context.Context, msgs []ai.Message, declarations []ai.ToolDefinition) (*ai.ChatResponse, error) {
	start := time.Now()
	resp, err := e.adapter.Chat(ctx, ai.ChatRequest{
		Model:       e.cfg.Model,
		Messages:    msgs,
		Tools:       declarations,
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
	})
	latency := time.Since(start)

	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, errors.ErrRateLimited):
		status = "rate_limited"
	case errors.Is(err, errors.ErrLLMTimeout):
		status = "timeout"
	default:
		status = "error"
	}

	var inTokens, outTokens int
	if resp != nil {
		inTokens = resp.Usage.PromptTokens
		outTokens = resp.Usage.CompletionTokens
	}
	metrics.RecordLLMCall(e.adapter.Name(), status, latency, inTokens, outTokens)

	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidResponse, "no choices in response")
	}
	return resp, nil
}

func (e *Engine) decisionForError(decisionID string, err error, state *observability.OutcomeState) *decision.AgentDecision {
	switch {
	case errors.Is(err, errors.ErrRateLimited):
		e.log.Warnw("Rate limit exceeded", "decision_id", decisionID, "error", err)
		state.IsRateLimited = true
		return respondOnly(respRateLimited)

	case errors.Is(err, errors.ErrLLMTimeout), errors.Is(err, context.DeadlineExceeded):
		e.log.Errorf("model request timed out for decision %s: %v", decisionID, err)
		state.ResponseError = true
		return respondOnly(respLLMTrouble)

	case errors.Is(err, errors.ErrLLM), errors.Is(err, errors.ErrInvalidResponse):
		e.log.Errorf("model error for decision %s: %v", decisionID, err)
		state.ResponseError = true
		return respondOnly(respLLMTrouble)

	default:
		e.log.Errorf("unexpected error for decision %s: %v", decisionID, err)
		state.ResponseError = true
		return respondOnly(respUnexpected)
	}
}

// buildResponseDecision turns a final text response into a decision.
func (e *Engine) buildResponseDecision(content string, dctx *decision.Context, state *observability.OutcomeState, invocations []observability.ToolInvocationLog) *decision.AgentDecision {
	if len(invocations) > 0 {
		calls := make([]decision.ToolCall, len(invocations))
		for i, inv := range invocations {
			calls[i] = decision.ToolCall{
				Name:       decision.ToolName(inv.ToolName),
				Parameters: map[string]interface{}(inv.Parameters),
				Sequence:   inv.Sequence,
			}
		}
		return &decision.AgentDecision{
			DecisionType: decision.DecisionInvokeTool,
			ToolCalls:    calls,
			ResponseText: content,
		}
	}

	if isClarification(content) {
		state.IsAmbiguous = true
		return &decision.AgentDecision{
			DecisionType:          decision.DecisionAskClarification,
			ClarificationQuestion: content,
			ResponseText:          content,
		}
	}

	if answeredClarification(dctx) {
		state.IsClarification = true
	}

	return respondOnly(content)
}

// answeredClarification reports whether this message answers a
// clarification question the assistant asked last turn.
func answeredClarification(dctx *decision.Context) bool {
	for i := len(dctx.History) - 1; i >= 0; i-- {
		if dctx.History[i].Role == "assistant" {
			return isClarification(dctx.History[i].Content)
		}
	}
	return false
}

// persist writes the decision log and its buffered tool invocations.
// Logging failures never alter the returned decision.
func (e *Engine) persist(ctx context.Context, dctx *decision.Context, dec *decision.AgentDecision, intent decision.IntentType, outcome observability.Outcome, invocations []observability.ToolInvocationLog, start time.Time, duration time.Duration) {
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	row := &observability.DecisionLog{
		DecisionID:      dec.DecisionID,
		ConversationID:  dctx.ConversationID,
		UserID:          dctx.UserID,
		Message:         dctx.Message,
		IntentType:      string(intent),
		DecisionType:    string(dec.DecisionType),
		OutcomeCategory: outcome,
		ResponseText:    dec.ResponseText,
		CreatedAt:       start.UTC(),
		DurationMs:      duration.Milliseconds(),
	}

	if err := e.logs.WriteDecisionTrace(logCtx, row, invocations); err != nil {
		e.log.Errorf("failed to write decision trace for %s: %v", dec.DecisionID, err)
	}
}

func respondOnly(text string) *decision.AgentDecision {
	return &decision.AgentDecision{
		DecisionType: decision.DecisionRespondOnly,
		ResponseText: text,
	}
}

func parseArgs(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args, nil
}

func pendingFromArgs(args map[string]interface{}, timeout time.Duration) *decision.PendingAction {
	taskID, _ := args["task_id"].(string)
	description, _ := args["task_description"].(string)
	if description == "" {
		description, _ = args["description"].(string)
	}
	if description == "" {
		description = taskID
	}
	return decision.NewPendingAction(taskID, description, timeout)
}

func withUserID(params map[string]interface{}, userID string) map[string]interface{} {
	out := make(map[string]interface{}, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out["user_id"] = userID
	return out
}

func newInvocationRecord(decisionID string, name decision.ToolName, params map[string]interface{}, userID string, result *tools.Result, sequence int) observability.ToolInvocationLog {
	inv := observability.ToolInvocationLog{
		ID:         uuid.NewString(),
		DecisionID: decisionID,
		ToolName:   string(name),
		Parameters: observability.JSONMap(withUserID(params, userID)),
		Success:    result.Success,
		DurationMs: result.Duration.Milliseconds(),
		InvokedAt:  time.Now().UTC(),
		Sequence:   sequence,
	}
	if result.Data != nil {
		inv.Result = observability.JSONMap(result.Data)
	}
	if result.ErrorCode != "" {
		code := result.ErrorCode
		inv.ErrorCode = &code
	}
	if result.ErrorMessage != "" {
		msg := result.ErrorMessage
		inv.ErrorMessage = &msg
	}
	return inv
}

func appendToolResult(msgs []ai.Message, tc ai.ToolCall, result *tools.Result) []ai.Message {
	envelope := map[string]interface{}{"success": result.Success}
	if result.Data != nil {
		envelope["data"] = result.Data
	}
	if result.ErrorMessage != "" {
		envelope["error"] = result.ErrorMessage
	}
	if result.ErrorCode != "" {
		envelope["error_code"] = result.ErrorCode
	}
	return appendToolMessage(msgs, tc, envelope)
}

func appendToolError(msgs []ai.Message, tc ai.ToolCall, message string) []ai.Message {
	return appendToolMessage(msgs, tc, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

func appendToolMessage(msgs []ai.Message, tc ai.ToolCall, payload map[string]interface{}) []ai.Message {
	content, _ := json.Marshal(payload)
	return append(msgs, ai.Message{
		Role:       ai.RoleTool,
		Name:       tc.Function.Name,
		ToolCallID: tc.ID,
		Content:    string(content),
	})
}
