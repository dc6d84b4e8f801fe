package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskpilot/internal/adapters/ai"
	"taskpilot/internal/adapters/config"
	"taskpilot/internal/adapters/sqlite"
	"taskpilot/internal/domain/decision"
	"taskpilot/internal/domain/observability"
	sqliterepo "taskpilot/internal/repository/sqlite"
	"taskpilot/internal/services/logging"
	"taskpilot/internal/tools"
)

type scriptedStep struct {
	resp *ai.ChatResponse
	err  error
}

// scriptedProvider replays a fixed sequence of responses. The last
// step repeats once the script is exhausted.
type scriptedProvider struct {
	steps    []scriptedStep
	calls    int
	requests []ai.ChatRequest
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Chat(_ context.Context, req ai.ChatRequest) (*ai.ChatResponse, error) {
	p.requests = append(p.requests, req)
	idx := p.calls
	if idx >= len(p.steps) {
		idx = len(p.steps) - 1
	}
	p.calls++

	step := p.steps[idx]
	if step.err != nil {
		return nil, step.err
	}
	return step.resp, nil
}

func textResponse(content string) *ai.ChatResponse {
	return &ai.ChatResponse{
		Choices: []ai.Choice{{
			Message:      ai.Message{Role: ai.RoleAssistant, Content: content},
			FinishReason: ai.FinishReasonStop,
		}},
		Usage: ai.Usage{PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30},
	}
}

func toolCallResponse(name, arguments string) *ai.ChatResponse {
	return &ai.ChatResponse{
		Choices: []ai.Choice{{
			Message: ai.Message{
				Role: ai.RoleAssistant,
				ToolCalls: []ai.ToolCall{{
					ID:       "call_1",
					Type:     "function",
					Function: ai.FunctionCall{Name: name, Arguments: arguments},
				}},
			},
			FinishReason: ai.FinishReasonToolCalls,
		}},
	}
}

type harness struct {
	engine   *Engine
	repo     observability.Repository
	executor *tools.Executor
}

func newHarness(t *testing.T, provider ai.ChatProvider) *harness {
	t.Helper()

	db, err := sqlite.NewClient(config.DatabaseConfig{Path: ":memory:", MaxConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := sqliterepo.NewLogRepository(db.DB())

	registry := tools.NewRegistry()
	tools.RegisterTaskTools(registry, tools.NewTaskStore())
	executor := tools.NewExecutor(registry)

	engine := NewEngine(provider, executor, logging.New(repo), "", Config{
		Model:               "test-model",
		MaxIterations:       5,
		MaxTokens:           256,
		RequestTimeout:      5 * time.Second,
		ConfirmationTimeout: 5 * time.Minute,
	})

	return &harness{engine: engine, repo: repo, executor: executor}
}

func testContext(message string) decision.Context {
	return decision.Context{
		UserID:         "user-1",
		Message:        message,
		ConversationID: "conv-1",
	}
}

func (h *harness) loggedDecision(t *testing.T, decisionID string) *observability.DecisionLog {
	t.Helper()
	row, err := h.repo.GetDecisionByID(context.Background(), decisionID)
	require.NoError(t, err)
	return row
}

func (h *harness) loggedInvocations(t *testing.T, decisionID string) []observability.ToolInvocationLog {
	t.Helper()
	rows, err := h.repo.GetInvocationsByDecisionID(context.Background(), decisionID)
	require.NoError(t, err)
	return rows
}

func TestEngine_CreateTask(t *testing.T) {
	provider := &scriptedProvider{steps: []scriptedStep{
		{resp: toolCallResponse("add_task", `{"description":"buy groceries"}`)},
		{resp: textResponse("Added 'buy groceries' to your tasks.")},
	}}
	h := newHarness(t, provider)

	dec := h.engine.ProcessMessage(context.Background(), testContext("remind me to buy groceries"))

	assert.Equal(t, decision.DecisionInvokeTool, dec.DecisionType)
	require.Len(t, dec.ToolCalls, 1)
	assert.Equal(t, decision.ToolAddTask, dec.ToolCalls[0].Name)
	assert.Equal(t, 1, dec.ToolCalls[0].Sequence)
	assert.NotEmpty(t, dec.ResponseText)
	require.NoError(t, dec.Validate())

	row := h.loggedDecision(t, dec.DecisionID)
	assert.Equal(t, string(decision.IntentCreateTask), row.IntentType)
	assert.Equal(t, observability.OutcomeTaskCompleted, row.OutcomeCategory)
	assert.Equal(t, "remind me to buy groceries", row.Message)

	invocations := h.loggedInvocations(t, dec.DecisionID)
	require.Len(t, invocations, 1)
	assert.Equal(t, "add_task", invocations[0].ToolName)
	assert.True(t, invocations[0].Success)
	assert.Equal(t, 1, invocations[0].Sequence)
	assert.Equal(t, "user-1", invocations[0].Parameters["user_id"])
}

func TestEngine_GeneralChat(t *testing.T) {
	provider := &scriptedProvider{steps: []scriptedStep{
		{resp: textResponse("Hi! I can help you manage your tasks.")},
	}}
	h := newHarness(t, provider)

	dec := h.engine.ProcessMessage(context.Background(), testContext("hello"))

	assert.Equal(t, decision.DecisionRespondOnly, dec.DecisionType)
	assert.Empty(t, dec.ToolCalls)

	row := h.loggedDecision(t, dec.DecisionID)
	assert.Equal(t, string(decision.IntentGeneralChat), row.IntentType)
	assert.Equal(t, observability.OutcomeResponseGiven, row.OutcomeCategory)
	assert.Empty(t, h.loggedInvocations(t, dec.DecisionID))
}

func TestEngine_AmbiguousMessage(t *testing.T) {
	provider := &scriptedProvider{steps: []scriptedStep{
		{resp: textResponse("Would you like me to add a task for groceries, or update an existing one?")},
	}}
	h := newHarness(t, provider)

	dec := h.engine.ProcessMessage(context.Background(), testContext("groceries"))

	assert.Equal(t, decision.DecisionAskClarification, dec.DecisionType)
	assert.NotEmpty(t, dec.ClarificationQuestion)

	row := h.loggedDecision(t, dec.DecisionID)
	assert.Equal(t, string(decision.IntentAmbiguous), row.IntentType)
	assert.Equal(t, observability.OutcomeUnclearIntent, row.OutcomeCategory)
}

func TestEngine_ClarificationAnswered(t *testing.T) {
	provider := &scriptedProvider{steps: []scriptedStep{
		{resp: textResponse("Got it, I'll treat that as your grocery task.")},
	}}
	h := newHarness(t, provider)

	ctx := testContext("the grocery one")
	ctx.History = []decision.HistoryMessage{
		{Role: "user", Content: "complete it"},
		{Role: "assistant", Content: "Which task do you mean?"},
	}

	dec := h.engine.ProcessMessage(context.Background(), ctx)

	assert.Equal(t, decision.DecisionRespondOnly, dec.DecisionType)
	row := h.loggedDecision(t, dec.DecisionID)
	assert.Equal(t, observability.OutcomeClarificationAnswered, row.OutcomeCategory)
}

func TestEngine_DeleteRequiresConfirmation(t *testing.T) {
	provider := &scriptedProvider{steps: []scriptedStep{
		{resp: toolCallResponse("delete_task", `{"task_id":"task-1","task_description":"buy groceries"}`)},
	}}
	h := newHarness(t, provider)

	dec := h.engine.ProcessMessage(context.Background(), testContext("delete my grocery task"))

	assert.Equal(t, decision.DecisionRequestConfirmation, dec.DecisionType)
	require.NotNil(t, dec.PendingAction)
	assert.Equal(t, "task-1", dec.PendingAction.TaskID)
	assert.Equal(t, "buy groceries", dec.PendingAction.TaskDescription)
	assert.Contains(t, dec.ResponseText, "Are you sure")
	require.NoError(t, dec.Validate())

	// The destructive tool must not run before confirmation.
	assert.Empty(t, h.loggedInvocations(t, dec.DecisionID))
	assert.Equal(t, 1, provider.calls)

	row := h.loggedDecision(t, dec.DecisionID)
	assert.Equal(t, string(decision.IntentDeleteTask), row.IntentType)
	assert.Equal(t, observability.OutcomeResponseGiven, row.OutcomeCategory)
}

func TestEngine_ConfirmYesExecutesPending(t *testing.T) {
	provider := &scriptedProvider{steps: []scriptedStep{
		{resp: textResponse("unused")},
	}}
	h := newHarness(t, provider)

	// Seed a task so the delete succeeds.
	seeded := h.executor.Execute(context.Background(), "add_task",
		map[string]interface{}{"description": "buy groceries"}, "user-1")
	require.True(t, seeded.Success)
	taskID := seeded.Data["task_id"].(string)

	ctx := testContext("yes")
	ctx.PendingConfirmation = decision.NewPendingAction(taskID, "buy groceries", 5*time.Minute)

	dec := h.engine.ProcessMessage(context.Background(), ctx)

	assert.Equal(t, decision.DecisionExecutePending, dec.DecisionType)
	assert.Equal(t, "'buy groceries' has been deleted.", dec.ResponseText)
	assert.Zero(t, provider.calls, "confirmation must not consult the model")

	row := h.loggedDecision(t, dec.DecisionID)
	assert.Equal(t, string(decision.IntentConfirmYes), row.IntentType)
	assert.Equal(t, observability.OutcomeTaskCompleted, row.OutcomeCategory)

	invocations := h.loggedInvocations(t, dec.DecisionID)
	require.Len(t, invocations, 1)
	assert.Equal(t, "delete_task", invocations[0].ToolName)
	assert.True(t, invocations[0].Success)
}

func TestEngine_ConfirmNoCancelsPending(t *testing.T) {
	provider := &scriptedProvider{steps: []scriptedStep{{resp: textResponse("unused")}}}
	h := newHarness(t, provider)

	ctx := testContext("no")
	ctx.PendingConfirmation = decision.NewPendingAction("task-1", "buy groceries", 5*time.Minute)

	dec := h.engine.ProcessMessage(context.Background(), ctx)

	assert.Equal(t, decision.DecisionCancelPending, dec.DecisionType)
	assert.Equal(t, respDeleteCancelled, dec.ResponseText)
	assert.Zero(t, provider.calls)

	row := h.loggedDecision(t, dec.DecisionID)
	assert.Equal(t, string(decision.IntentConfirmNo), row.IntentType)
	assert.Empty(t, h.loggedInvocations(t, dec.DecisionID))
}

func TestEngine_ExpiredConfirmation(t *testing.T) {
	provider := &scriptedProvider{steps: []scriptedStep{{resp: textResponse("unused")}}}
	h := newHarness(t, provider)

	pending := decision.NewPendingAction("task-1", "buy groceries", 5*time.Minute)
	pending.ExpiresAt = time.Now().Add(-time.Minute)

	ctx := testContext("yes")
	ctx.PendingConfirmation = pending

	dec := h.engine.ProcessMessage(context.Background(), ctx)

	assert.Equal(t, decision.DecisionRespondOnly, dec.DecisionType)
	assert.Equal(t, respConfirmationExpired, dec.ResponseText)
	assert.Zero(t, provider.calls)
	assert.Empty(t, h.loggedInvocations(t, dec.DecisionID))
}

func TestEngine_UnrelatedMessageCancelsPending(t *testing.T) {
	provider := &scriptedProvider{steps: []scriptedStep{
		{resp: textResponse("Hi! I can help you manage your tasks.")},
	}}
	h := newHarness(t, provider)

	ctx := testContext("hello")
	ctx.PendingConfirmation = decision.NewPendingAction("task-1", "buy groceries", 5*time.Minute)

	dec := h.engine.ProcessMessage(context.Background(), ctx)

	assert.Equal(t, decision.DecisionRespondOnly, dec.DecisionType)
	assert.Equal(t, 1, provider.calls, "unrelated message is processed as a fresh request")
}

func TestEngine_RateLimited(t *testing.T) {
	provider := &scriptedProvider{steps: []scriptedStep{
		{err: &ai.RateLimitError{Provider: "scripted"}},
	}}
	h := newHarness(t, provider)

	dec := h.engine.ProcessMessage(context.Background(), testContext("remind me to buy groceries"))

	assert.Equal(t, decision.DecisionRespondOnly, dec.DecisionType)
	assert.Equal(t, respRateLimited, dec.ResponseText)

	row := h.loggedDecision(t, dec.DecisionID)
	assert.Equal(t, observability.OutcomeRateLimited, row.OutcomeCategory)
}

func TestEngine_ProviderTimeout(t *testing.T) {
	provider := &scriptedProvider{steps: []scriptedStep{
		{err: &ai.TimeoutError{Provider: "scripted"}},
	}}
	h := newHarness(t, provider)

	dec := h.engine.ProcessMessage(context.Background(), testContext("hello"))

	assert.Equal(t, decision.DecisionRespondOnly, dec.DecisionType)
	assert.Equal(t, respLLMTrouble, dec.ResponseText)

	row := h.loggedDecision(t, dec.DecisionID)
	assert.Equal(t, observability.OutcomeResponseGenerationError, row.OutcomeCategory)
}

func TestEngine_IterationCap(t *testing.T) {
	provider := &scriptedProvider{steps: []scriptedStep{
		{resp: toolCallResponse("list_tasks", `{}`)},
	}}
	h := newHarness(t, provider)

	dec := h.engine.ProcessMessage(context.Background(), testContext("show me everything repeatedly"))

	assert.Equal(t, decision.DecisionRespondOnly, dec.DecisionType)
	assert.Equal(t, respTooComplex, dec.ResponseText)
	assert.Equal(t, 5, provider.calls, "loop must stop at the iteration cap")

	invocations := h.loggedInvocations(t, dec.DecisionID)
	assert.Len(t, invocations, 5)
	for i, inv := range invocations {
		assert.Equal(t, i+1, inv.Sequence)
	}
}

func TestEngine_InvalidContext(t *testing.T) {
	provider := &scriptedProvider{steps: []scriptedStep{{resp: textResponse("unused")}}}
	h := newHarness(t, provider)

	t.Run("missing user", func(t *testing.T) {
		ctx := testContext("hello")
		ctx.UserID = ""
		dec := h.engine.ProcessMessage(context.Background(), ctx)

		assert.Equal(t, decision.DecisionRespondOnly, dec.DecisionType)
		assert.Equal(t, respAuthRequired, dec.ResponseText)
		assert.Zero(t, provider.calls)

		row := h.loggedDecision(t, dec.DecisionID)
		assert.Equal(t, observability.OutcomeUserInputError, row.OutcomeCategory)
	})

	t.Run("missing message", func(t *testing.T) {
		ctx := testContext("")
		dec := h.engine.ProcessMessage(context.Background(), ctx)

		assert.Equal(t, respUnexpected, dec.ResponseText)
		row := h.loggedDecision(t, dec.DecisionID)
		assert.Equal(t, observability.OutcomeUserInputError, row.OutcomeCategory)
	})
}

func TestEngine_ToolFailureOutcome(t *testing.T) {
	provider := &scriptedProvider{steps: []scriptedStep{
		{resp: toolCallResponse("complete_task", `{"task_id":"missing-task"}`)},
		{resp: textResponse("I couldn't find that task.")},
	}}
	h := newHarness(t, provider)

	dec := h.engine.ProcessMessage(context.Background(), testContext("mark my report task done"))

	assert.Equal(t, decision.DecisionInvokeTool, dec.DecisionType)

	row := h.loggedDecision(t, dec.DecisionID)
	assert.Equal(t, observability.OutcomeToolInvocationError, row.OutcomeCategory)

	invocations := h.loggedInvocations(t, dec.DecisionID)
	require.Len(t, invocations, 1)
	assert.False(t, invocations[0].Success)
	require.NotNil(t, invocations[0].ErrorCode)
	assert.Equal(t, string(observability.ErrorCodeToolExecution), *invocations[0].ErrorCode)
}

func TestEngine_UnknownToolIsReportedToModel(t *testing.T) {
	provider := &scriptedProvider{steps: []scriptedStep{
		{resp: toolCallResponse("drop_database", `{}`)},
		{resp: textResponse("I can only manage tasks.")},
	}}
	h := newHarness(t, provider)

	dec := h.engine.ProcessMessage(context.Background(), testContext("drop the database"))

	assert.Equal(t, decision.DecisionRespondOnly, dec.DecisionType)
	assert.Empty(t, h.loggedInvocations(t, dec.DecisionID))

	// The second request must carry the tool error back to the model.
	require.Equal(t, 2, provider.calls)
	last := provider.requests[1].Messages
	assert.Equal(t, ai.RoleTool, last[len(last)-1].Role)
	assert.Contains(t, last[len(last)-1].Content, "not available")
}

func TestEngine_ConstitutionInFirstMessage(t *testing.T) {
	provider := &scriptedProvider{steps: []scriptedStep{{resp: textResponse("Hello!")}}}
	h := newHarness(t, provider)

	h.engine.ProcessMessage(context.Background(), testContext("hello"))

	require.Equal(t, 1, provider.calls)
	msgs := provider.requests[0].Messages
	require.Len(t, msgs, 1)
	assert.Equal(t, ai.RoleUser, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "User message: hello")
	assert.NotEmpty(t, provider.requests[0].Tools)
}
