package agents

import (
	"taskpilot/internal/domain/decision"
)

var toolIntents = map[decision.ToolName]decision.IntentType{
	decision.ToolAddTask:      decision.IntentCreateTask,
	decision.ToolListTasks:    decision.IntentListTasks,
	decision.ToolUpdateTask:   decision.IntentUpdateTask,
	decision.ToolCompleteTask: decision.IntentCompleteTask,
	decision.ToolDeleteTask:   decision.IntentDeleteTask,
}

// deriveIntent maps a terminal decision onto an intent type. The
// mapping is pure so repeated derivation over the same decision is
// stable, which the baseline and drift features depend on.
func deriveIntent(dec *decision.AgentDecision) decision.IntentType {
	switch dec.DecisionType {
	case decision.DecisionExecutePending:
		return decision.IntentConfirmYes
	case decision.DecisionCancelPending:
		return decision.IntentConfirmNo
	case decision.DecisionRequestConfirmation:
		return decision.IntentDeleteTask
	case decision.DecisionAskClarification:
		return decision.IntentAmbiguous
	}

	if len(dec.ToolCalls) > 0 {
		if intent, ok := toolIntents[dec.ToolCalls[0].Name]; ok {
			return intent
		}
	}

	return decision.IntentGeneralChat
}
