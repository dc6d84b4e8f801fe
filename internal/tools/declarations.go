package tools

import (
	"taskpilot/internal/adapters/ai"
	"taskpilot/internal/domain/decision"
	"taskpilot/pkg/errors"
)

// requiredParams lists the arguments the model must supply per tool.
// user_id is injected by the executor and never required from the model.
var requiredParams = map[decision.ToolName][]string{
	decision.ToolAddTask:      {"description"},
	decision.ToolListTasks:    {},
	decision.ToolUpdateTask:   {"task_id", "description"},
	decision.ToolCompleteTask: {"task_id"},
	decision.ToolDeleteTask:   {"task_id"},
}

// IsDestructive reports whether a tool needs explicit user confirmation.
func IsDestructive(name decision.ToolName) bool {
	return name == decision.ToolDeleteTask
}

// ValidateArgs checks that the required arguments for a tool are present.
func ValidateArgs(name decision.ToolName, args map[string]interface{}) error {
	required, ok := requiredParams[name]
	if !ok {
		return errors.Wrapf(errors.ErrToolNotFound, "%s", name)
	}

	for _, field := range required {
		value, present := args[field]
		if !present {
			return errors.Wrapf(errors.ErrInvalidInput, "%s requires %q parameter", name, field)
		}
		if s, isString := value.(string); isString && s == "" {
			return errors.Wrapf(errors.ErrInvalidInput, "%s parameter %q must not be empty", name, field)
		}
	}

	return nil
}

// Declarations returns the tool schemas advertised to the model.
func Declarations() []ai.ToolDefinition {
	return []ai.ToolDefinition{
		{
			Type: "function",
			Function: ai.FunctionDefinition{
				Name:        string(decision.ToolAddTask),
				Description: "Create a new task for the user",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"description": map[string]interface{}{
							"type":        "string",
							"description": "What the task is about",
						},
						"due_date": map[string]interface{}{
							"type":        "string",
							"description": "Optional due date in ISO 8601 format",
						},
					},
					"required": []string{"description"},
				},
			},
		},
		{
			Type: "function",
			Function: ai.FunctionDefinition{
				Name:        string(decision.ToolListTasks),
				Description: "List the user's tasks, optionally filtered by status",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"status": map[string]interface{}{
							"type":        "string",
							"enum":        []string{"pending", "completed", "all"},
							"description": "Filter tasks by status",
						},
					},
					"required": []string{},
				},
			},
		},
		{
			Type: "function",
			Function: ai.FunctionDefinition{
				Name:        string(decision.ToolUpdateTask),
				Description: "Update the description of an existing task",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"task_id": map[string]interface{}{
							"type":        "string",
							"description": "Identifier of the task to update",
						},
						"description": map[string]interface{}{
							"type":        "string",
							"description": "New task description",
						},
					},
					"required": []string{"task_id", "description"},
				},
			},
		},
		{
			Type: "function",
			Function: ai.FunctionDefinition{
				Name:        string(decision.ToolCompleteTask),
				Description: "Mark a task as completed",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"task_id": map[string]interface{}{
							"type":        "string",
							"description": "Identifier of the task to complete",
						},
					},
					"required": []string{"task_id"},
				},
			},
		},
		{
			Type: "function",
			Function: ai.FunctionDefinition{
				Name:        string(decision.ToolDeleteTask),
				Description: "Delete a task permanently. Requires user confirmation.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"task_id": map[string]interface{}{
							"type":        "string",
							"description": "Identifier of the task to delete",
						},
					},
					"required": []string{"task_id"},
				},
			},
		},
	}
}
