package agents

import (
	"os"
	"strings"

	"taskpilot/internal/adapters/ai"
	"taskpilot/internal/domain/decision"
	"taskpilot/pkg/logger"
)

// DefaultConstitution is the system prompt used when no constitution
// file is configured.
const DefaultConstitution = `You are a helpful task management assistant.

You help users manage their personal task list. You can create tasks,
list tasks, update task descriptions, mark tasks as completed, and
delete tasks, using only the tools provided to you.

Rules:
- Only use the provided tools for task operations. Never invent task data.
- If the user's request is unclear or could match several tasks, ask a
  short clarifying question instead of guessing.
- Deleting a task is permanent. The system will ask the user to confirm
  before any deletion; do not promise a deletion happened until it did.
- Keep responses short, friendly, and focused on the user's tasks.
- For anything unrelated to task management, answer briefly and steer
  the conversation back to tasks.`

// LoadConstitution reads the system prompt from a file, falling back
// to the default when the file is missing.
func LoadConstitution(path string) string {
	if path == "" {
		return DefaultConstitution
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Get().Warnw("Constitution file not found, using default", "path", path)
		return DefaultConstitution
	}

	return string(data)
}

// buildMessages turns a decision context into the initial LLM
// conversation. The constitution is prepended to the first user
// message; when history exists it is inserted as an instructions turn
// followed by an acknowledgment so providers without a system role
// still honor it.
func buildMessages(constitution string, ctx *decision.Context) []ai.Message {
	var messages []ai.Message

	for _, msg := range ctx.History {
		switch msg.Role {
		case "user":
			messages = append(messages, ai.Message{Role: ai.RoleUser, Content: msg.Content})
		case "assistant":
			messages = append(messages, ai.Message{Role: ai.RoleAssistant, Content: msg.Content})
		}
	}

	if len(messages) == 0 {
		combined := constitution + "\n\n---\n\nUser message: " + ctx.Message
		return []ai.Message{{Role: ai.RoleUser, Content: combined}}
	}

	messages = append(messages, ai.Message{Role: ai.RoleUser, Content: ctx.Message})

	prefix := []ai.Message{
		{Role: ai.RoleUser, Content: "System instructions:\n" + constitution},
		{Role: ai.RoleAssistant, Content: "I understand. I'll follow these instructions."},
	}
	return append(prefix, messages...)
}

// clarificationIndicators mark responses that ask the user for more
// information.
var clarificationIndicators = []string{
	"would you like",
	"do you want",
	"could you",
	"can you clarify",
	"what do you mean",
	"which task",
	"which one",
	"please specify",
	"not sure which",
	"are you referring to",
}

// isClarification reports whether a response appears to ask for
// clarification.
func isClarification(content string) bool {
	if content == "" {
		return false
	}

	lower := strings.ToLower(content)
	for _, indicator := range clarificationIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}
