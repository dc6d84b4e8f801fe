package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskpilot/internal/domain/decision"
	"taskpilot/internal/domain/observability"
	"taskpilot/pkg/errors"
)

func TestExecutor_WhitelistAndRegistry(t *testing.T) {
	registry := NewRegistry()
	executor := NewExecutor(registry)

	t.Run("unknown tool", func(t *testing.T) {
		result := executor.Execute(context.Background(), "drop_database", nil, "user-1")
		assert.False(t, result.Success)
		assert.Equal(t, string(observability.ErrorCodeToolNotFound), result.ErrorCode)
	})

	t.Run("whitelisted but unregistered", func(t *testing.T) {
		result := executor.Execute(context.Background(), "add_task", nil, "user-1")
		assert.False(t, result.Success)
		assert.Equal(t, string(observability.ErrorCodeToolNotFound), result.ErrorCode)
	})
}

func TestExecutor_InjectsUserID(t *testing.T) {
	registry := NewRegistry()
	var seen map[string]interface{}
	registry.Register("add_task", New("add_task", "test", func(_ context.Context, args map[string]interface{}) (map[string]interface{}, error) {
		seen = args
		return map[string]interface{}{"task_id": "task-1"}, nil
	}))
	executor := NewExecutor(registry)

	params := map[string]interface{}{"description": "x", "user_id": "spoofed"}
	result := executor.Execute(context.Background(), "add_task", params, "user-1")

	require.True(t, result.Success)
	assert.Equal(t, "user-1", seen["user_id"], "caller-supplied user_id must be overridden")
	assert.Equal(t, "spoofed", params["user_id"], "caller params must not be mutated")
	assert.Equal(t, "task-1", result.Data["task_id"])
	assert.GreaterOrEqual(t, result.Duration.Nanoseconds(), int64(0))
}

func TestExecutor_HandlerErrorAndPanic(t *testing.T) {
	registry := NewRegistry()
	registry.Register("complete_task", New("complete_task", "test", func(_ context.Context, _ map[string]interface{}) (map[string]interface{}, error) {
		return nil, errors.Wrap(errors.ErrNotFound, "task missing-task not found")
	}))
	registry.Register("list_tasks", New("list_tasks", "test", func(_ context.Context, _ map[string]interface{}) (map[string]interface{}, error) {
		panic("boom")
	}))
	executor := NewExecutor(registry)

	t.Run("error result", func(t *testing.T) {
		result := executor.Execute(context.Background(), "complete_task", nil, "user-1")
		assert.False(t, result.Success)
		assert.Equal(t, string(observability.ErrorCodeToolExecution), result.ErrorCode)
		assert.Contains(t, result.ErrorMessage, "missing-task")
	})

	t.Run("panic is recovered", func(t *testing.T) {
		result := executor.Execute(context.Background(), "list_tasks", nil, "user-1")
		assert.False(t, result.Success)
		assert.Equal(t, string(observability.ErrorCodeToolExecution), result.ErrorCode)
		assert.Contains(t, result.ErrorMessage, "panicked")
	})
}

func TestValidateArgs(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, ValidateArgs(decision.ToolAddTask, map[string]interface{}{"description": "buy milk"}))
		assert.NoError(t, ValidateArgs(decision.ToolListTasks, map[string]interface{}{}))
		assert.NoError(t, ValidateArgs(decision.ToolUpdateTask, map[string]interface{}{"task_id": "t1", "description": "x"}))
	})

	t.Run("missing required", func(t *testing.T) {
		err := ValidateArgs(decision.ToolAddTask, map[string]interface{}{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidInput))
	})

	t.Run("empty string required", func(t *testing.T) {
		err := ValidateArgs(decision.ToolCompleteTask, map[string]interface{}{"task_id": ""})
		assert.Error(t, err)
	})

	t.Run("unknown tool", func(t *testing.T) {
		err := ValidateArgs(decision.ToolName("nope"), nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrToolNotFound))
	})
}

func TestIsDestructive(t *testing.T) {
	assert.True(t, IsDestructive(decision.ToolDeleteTask))
	assert.False(t, IsDestructive(decision.ToolAddTask))
	assert.False(t, IsDestructive(decision.ToolCompleteTask))
}

func TestDeclarations(t *testing.T) {
	declarations := Declarations()
	require.Len(t, declarations, 5)

	names := make(map[string]bool)
	for _, d := range declarations {
		assert.Equal(t, "function", d.Type)
		assert.NotEmpty(t, d.Function.Description)
		assert.Equal(t, "object", d.Function.Parameters["type"])
		names[d.Function.Name] = true
	}

	for _, name := range []decision.ToolName{
		decision.ToolAddTask, decision.ToolListTasks, decision.ToolUpdateTask,
		decision.ToolCompleteTask, decision.ToolDeleteTask,
	} {
		assert.True(t, names[string(name)], "missing declaration for %s", name)
	}
}
