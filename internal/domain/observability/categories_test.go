package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func boolPtr(b bool) *bool { return &b }

func TestOutcome_Valid(t *testing.T) {
	for _, outcome := range AllOutcomes() {
		assert.True(t, outcome.Valid(), "expected %s to be valid", outcome)
	}

	assert.False(t, Outcome("SUCCESS:NOT_A_THING").Valid())
	assert.False(t, Outcome("SUCCESS").Valid())
	assert.False(t, Outcome("").Valid())
}

func TestOutcome_Parts(t *testing.T) {
	assert.Equal(t, CategorySuccess, OutcomeTaskCompleted.Category())
	assert.Equal(t, "TASK_COMPLETED", OutcomeTaskCompleted.Subcategory())
	assert.Equal(t, CategoryRefusal, OutcomeRateLimited.Category())
	assert.Equal(t, CategoryAmbiguity, OutcomeUnclearIntent.Category())

	assert.True(t, OutcomeResponseGiven.IsSuccess())
	assert.True(t, OutcomeToolInvocationError.IsError())
	assert.True(t, OutcomeOutOfScope.IsRefusal())
	assert.True(t, OutcomeMissingContext.IsAmbiguity())

	assert.Equal(t, Category(""), Outcome("malformed").Category())
	assert.Equal(t, "", Outcome("malformed").Subcategory())
}

func TestAssignOutcome(t *testing.T) {
	tests := []struct {
		name  string
		state OutcomeState
		want  Outcome
	}{
		{"default is response given", OutcomeState{}, OutcomeResponseGiven},
		{"tool success", OutcomeState{ToolUsed: true, ToolSucceeded: boolPtr(true)}, OutcomeTaskCompleted},
		{"tool failure", OutcomeState{ToolUsed: true, ToolSucceeded: boolPtr(false)}, OutcomeToolInvocationError},
		{"clarification answered", OutcomeState{IsClarification: true}, OutcomeClarificationAnswered},
		{"user input error", OutcomeState{UserInputError: true}, OutcomeUserInputError},
		{"intent error", OutcomeState{IntentError: true}, OutcomeIntentClassification},
		{"response error", OutcomeState{ResponseError: true}, OutcomeResponseGenerationError},
		{"out of scope", OutcomeState{IsOutOfScope: true}, OutcomeOutOfScope},
		{"missing permission", OutcomeState{IsMissingPermission: true}, OutcomeMissingPermission},
		{"rate limited", OutcomeState{IsRateLimited: true}, OutcomeRateLimited},
		{"ambiguous", OutcomeState{IsAmbiguous: true}, OutcomeUnclearIntent},
		{"multiple matches", OutcomeState{HasMultipleMatches: true}, OutcomeMultipleMatches},
		{"missing context", OutcomeState{HasMissingContext: true}, OutcomeMissingContext},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AssignOutcome(tt.state))
		})
	}
}

func TestAssignOutcome_Precedence(t *testing.T) {
	// Refusal wins over everything else.
	state := OutcomeState{
		IsRateLimited: true,
		IsAmbiguous:   true,
		ResponseError: true,
		ToolUsed:      true,
		ToolSucceeded: boolPtr(true),
	}
	assert.Equal(t, OutcomeRateLimited, AssignOutcome(state))

	// Ambiguity wins over errors and successes.
	state.IsRateLimited = false
	assert.Equal(t, OutcomeUnclearIntent, AssignOutcome(state))

	// Error wins over success.
	state.IsAmbiguous = false
	assert.Equal(t, OutcomeResponseGenerationError, AssignOutcome(state))

	// Clarification answered wins over plain tool success.
	assert.Equal(t, OutcomeClarificationAnswered, AssignOutcome(OutcomeState{
		IsClarification: true,
		ToolUsed:        true,
		ToolSucceeded:   boolPtr(true),
	}))
}

func TestAssignOutcome_Deterministic(t *testing.T) {
	state := OutcomeState{ToolUsed: true, ToolSucceeded: boolPtr(true)}
	first := AssignOutcome(state)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, AssignOutcome(state))
	}
}
