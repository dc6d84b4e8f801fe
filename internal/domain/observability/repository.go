package observability

import (
	"context"
	"time"
)

// Repository is the persistence contract for the log store.
type Repository interface {
	// Write path
	InsertDecisionLog(ctx context.Context, log *DecisionLog) error
	InsertToolInvocationLog(ctx context.Context, log *ToolInvocationLog) error

	// Read path
	GetDecisionByID(ctx context.Context, decisionID string) (*DecisionLog, error)
	GetInvocationsByDecisionID(ctx context.Context, decisionID string) ([]ToolInvocationLog, error)
	QueryDecisions(ctx context.Context, filter QueryFilter) ([]DecisionLog, int, error)
	// ExportDecisions returns all decisions in the window ordered by
	// created_at ascending.
	ExportDecisions(ctx context.Context, start, end *time.Time) ([]DecisionLog, error)
	// LatestDecisionMatching returns the most recent decision whose
	// message contains the given substring, or ErrNotFound.
	LatestDecisionMatching(ctx context.Context, input string) (*DecisionLog, error)

	// Aggregates
	CountDecisions(ctx context.Context, start, end *time.Time) (int, error)
	OutcomeCounts(ctx context.Context, start, end *time.Time) (map[string]int, error)
	IntentCounts(ctx context.Context, start, end *time.Time) (map[string]int, error)
	ToolCounts(ctx context.Context, start, end *time.Time) (map[string]int, error)
	AvgDecisionDurationMs(ctx context.Context, start, end *time.Time) (float64, error)
	AvgToolDurationMs(ctx context.Context, start, end *time.Time) (float64, error)

	// Baselines
	InsertBaseline(ctx context.Context, snapshot *BaselineSnapshot) error
	GetBaselineByName(ctx context.Context, name string) (*BaselineSnapshot, error)
	ListBaselines(ctx context.Context) ([]BaselineSnapshot, error)

	// Validation reports
	InsertValidationReport(ctx context.Context, report *ValidationReport) error
	ListValidationReports(ctx context.Context, limit int) ([]ValidationReport, error)

	// Retention. Returns the number of decision logs removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
