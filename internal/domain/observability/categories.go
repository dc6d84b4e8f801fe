package observability

import (
	"strings"
)

// Outcome categories form a two-level taxonomy stored as
// "CATEGORY:SUBCATEGORY" (e.g. "SUCCESS:TASK_COMPLETED").

// Category is the top-level outcome classification.
type Category string

const (
	CategorySuccess   Category = "SUCCESS"
	CategoryError     Category = "ERROR"
	CategoryRefusal   Category = "REFUSAL"
	CategoryAmbiguity Category = "AMBIGUITY"
)

// Outcome is a validated category:subcategory pair.
type Outcome string

const (
	OutcomeTaskCompleted         Outcome = "SUCCESS:TASK_COMPLETED"
	OutcomeResponseGiven         Outcome = "SUCCESS:RESPONSE_GIVEN"
	OutcomeClarificationAnswered Outcome = "SUCCESS:CLARIFICATION_ANSWERED"

	OutcomeUserInputError          Outcome = "ERROR:USER_INPUT"
	OutcomeIntentClassification    Outcome = "ERROR:INTENT_CLASSIFICATION"
	OutcomeToolInvocationError     Outcome = "ERROR:TOOL_INVOCATION"
	OutcomeResponseGenerationError Outcome = "ERROR:RESPONSE_GENERATION"

	OutcomeOutOfScope        Outcome = "REFUSAL:OUT_OF_SCOPE"
	OutcomeMissingPermission Outcome = "REFUSAL:MISSING_PERMISSION"
	OutcomeRateLimited       Outcome = "REFUSAL:RATE_LIMITED"

	OutcomeUnclearIntent   Outcome = "AMBIGUITY:UNCLEAR_INTENT"
	OutcomeMultipleMatches Outcome = "AMBIGUITY:MULTIPLE_MATCHES"
	OutcomeMissingContext  Outcome = "AMBIGUITY:MISSING_CONTEXT"
)

// ErrorCode classifies tool invocation failures.
type ErrorCode string

const (
	ErrorCodeValidation    ErrorCode = "VALIDATION_ERROR"
	ErrorCodeIntent        ErrorCode = "INTENT_ERROR"
	ErrorCodeToolNotFound  ErrorCode = "TOOL_NOT_FOUND"
	ErrorCodeToolExecution ErrorCode = "TOOL_EXECUTION_ERROR"
	ErrorCodeDatabase      ErrorCode = "DATABASE_ERROR"
	ErrorCodeTimeout       ErrorCode = "TIMEOUT_ERROR"
	ErrorCodeUnknown       ErrorCode = "UNKNOWN_ERROR"
)

var validOutcomes = map[Outcome]struct{}{
	OutcomeTaskCompleted:           {},
	OutcomeResponseGiven:           {},
	OutcomeClarificationAnswered:   {},
	OutcomeUserInputError:          {},
	OutcomeIntentClassification:    {},
	OutcomeToolInvocationError:     {},
	OutcomeResponseGenerationError: {},
	OutcomeOutOfScope:              {},
	OutcomeMissingPermission:       {},
	OutcomeRateLimited:             {},
	OutcomeUnclearIntent:           {},
	OutcomeMultipleMatches:         {},
	OutcomeMissingContext:          {},
}

// AllOutcomes returns every valid outcome in the taxonomy.
func AllOutcomes() []Outcome {
	outcomes := make([]Outcome, 0, len(validOutcomes))
	for o := range validOutcomes {
		outcomes = append(outcomes, o)
	}
	return outcomes
}

// Valid reports whether the outcome is part of the taxonomy.
func (o Outcome) Valid() bool {
	_, ok := validOutcomes[o]
	return ok
}

// String returns the stored representation.
func (o Outcome) String() string {
	return string(o)
}

// Category returns the top-level part, or "" when malformed.
func (o Outcome) Category() Category {
	before, _, found := strings.Cut(string(o), ":")
	if !found {
		return ""
	}
	return Category(before)
}

// Subcategory returns the second-level part, or "" when malformed.
func (o Outcome) Subcategory() string {
	_, after, found := strings.Cut(string(o), ":")
	if !found {
		return ""
	}
	return after
}

// IsSuccess reports whether the outcome is in the SUCCESS category.
func (o Outcome) IsSuccess() bool { return o.Category() == CategorySuccess }

// IsError reports whether the outcome is in the ERROR category.
func (o Outcome) IsError() bool { return o.Category() == CategoryError }

// IsRefusal reports whether the outcome is in the REFUSAL category.
func (o Outcome) IsRefusal() bool { return o.Category() == CategoryRefusal }

// IsAmbiguity reports whether the outcome is in the AMBIGUITY category.
func (o Outcome) IsAmbiguity() bool { return o.Category() == CategoryAmbiguity }

// OutcomeState captures the terminal flags of a decision used to
// assign its outcome category.
type OutcomeState struct {
	ToolUsed      bool
	ToolSucceeded *bool // nil when no tool ran

	IsClarification bool

	IsOutOfScope        bool
	IsMissingPermission bool
	IsRateLimited       bool

	IsAmbiguous        bool
	HasMultipleMatches bool
	HasMissingContext  bool

	UserInputError bool
	IntentError    bool
	ResponseError  bool
}

// AssignOutcome maps terminal decision state to an outcome category.
// Precedence: REFUSAL > AMBIGUITY > ERROR > SUCCESS. The function is
// pure; the same state always yields the same outcome.
func AssignOutcome(s OutcomeState) Outcome {
	switch {
	case s.IsOutOfScope:
		return OutcomeOutOfScope
	case s.IsMissingPermission:
		return OutcomeMissingPermission
	case s.IsRateLimited:
		return OutcomeRateLimited
	}

	switch {
	case s.IsAmbiguous:
		return OutcomeUnclearIntent
	case s.HasMultipleMatches:
		return OutcomeMultipleMatches
	case s.HasMissingContext:
		return OutcomeMissingContext
	}

	switch {
	case s.UserInputError:
		return OutcomeUserInputError
	case s.IntentError:
		return OutcomeIntentClassification
	case s.ResponseError:
		return OutcomeResponseGenerationError
	case s.ToolUsed && s.ToolSucceeded != nil && !*s.ToolSucceeded:
		return OutcomeToolInvocationError
	}

	switch {
	case s.IsClarification:
		return OutcomeClarificationAnswered
	case s.ToolUsed && s.ToolSucceeded != nil && *s.ToolSucceeded:
		return OutcomeTaskCompleted
	}

	return OutcomeResponseGiven
}
