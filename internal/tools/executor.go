package tools

import (
	"context"
	"fmt"
	"time"

	"taskpilot/internal/domain/decision"
	"taskpilot/internal/domain/observability"
	"taskpilot/internal/metrics"
	"taskpilot/pkg/logger"
)

// Result is the normalized outcome of a tool execution. Executions
// never surface raw errors to the engine; failures are folded into
// the result envelope.
type Result struct {
	Success      bool                   `json:"success"`
	Data         map[string]interface{} `json:"data,omitempty"`
	ErrorCode    string                 `json:"error_code,omitempty"`
	ErrorMessage string                 `json:"error,omitempty"`
	Duration     time.Duration          `json:"-"`
}

// Executor runs whitelisted tools on behalf of the engine.
type Executor struct {
	registry *Registry
	log      *logger.Logger
}

// NewExecutor creates a tool executor backed by the given registry.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{
		registry: registry,
		log:      logger.Get().With("service", "tool_executor"),
	}
}

// Execute runs a tool and normalizes its outcome. The authenticated
// user identity is injected server-side; any caller-supplied user_id
// is discarded.
func (e *Executor) Execute(ctx context.Context, name string, params map[string]interface{}, userID string) *Result {
	toolName := decision.ToolName(name)
	if !toolName.Valid() {
		e.log.Warnw("Tool not in whitelist", "tool", name)
		return &Result{
			Success:      false,
			ErrorCode:    string(observability.ErrorCodeToolNotFound),
			ErrorMessage: fmt.Sprintf("tool %q is not available", name),
		}
	}

	tool, ok := e.registry.Get(name)
	if !ok {
		e.log.Warnw("Tool not registered", "tool", name)
		return &Result{
			Success:      false,
			ErrorCode:    string(observability.ErrorCodeToolNotFound),
			ErrorMessage: fmt.Sprintf("tool %q is not available", name),
		}
	}

	args := make(map[string]interface{}, len(params)+1)
	for k, v := range params {
		args[k] = v
	}
	args["user_id"] = userID

	start := time.Now()
	result := e.run(ctx, tool, args)
	result.Duration = time.Since(start)

	metrics.RecordToolExecution(name, result.Duration, result.Success)
	e.log.Debugw("Tool executed",
		"tool", name,
		"success", result.Success,
		"duration_ms", result.Duration.Milliseconds(),
	)

	return result
}

// run invokes the tool and converts panics and errors into failed results.
func (e *Executor) run(ctx context.Context, tool Tool, args map[string]interface{}) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorw("Tool panicked", "tool", tool.Name(), "panic", r)
			result = &Result{
				Success:      false,
				ErrorCode:    string(observability.ErrorCodeToolExecution),
				ErrorMessage: fmt.Sprintf("tool %s panicked: %v", tool.Name(), r),
			}
		}
	}()

	data, err := tool.Execute(ctx, args)
	if err != nil {
		return &Result{
			Success:      false,
			ErrorCode:    string(observability.ErrorCodeToolExecution),
			ErrorMessage: err.Error(),
		}
	}

	return &Result{
		Success: true,
		Data:    data,
	}
}
