package query

import (
	"context"
	"strings"
	"time"

	"taskpilot/internal/domain/observability"
	"taskpilot/pkg/errors"
	"taskpilot/pkg/logger"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// Export formats.
const (
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
)

// Service is the read path over the decision log store.
type Service struct {
	repo observability.Repository
	log  *logger.Logger
}

// New creates the query service.
func New(repo observability.Repository) *Service {
	return &Service{
		repo: repo,
		log:  logger.Get().With("service", "query"),
	}
}

// QueryDecisions returns a filtered page of decision logs, newest
// first. Limit is capped at 1000.
func (s *Service) QueryDecisions(ctx context.Context, filter observability.QueryFilter) (*observability.QueryResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.StartTime != nil && filter.EndTime != nil && filter.EndTime.Before(*filter.StartTime) {
		return nil, errors.Wrap(errors.ErrInvalidInput, "end_time is before start_time")
	}

	decisions, total, err := s.repo.QueryDecisions(ctx, filter)
	if err != nil {
		return nil, err
	}
	if decisions == nil {
		decisions = []observability.DecisionLog{}
	}

	return &observability.QueryResult{
		Decisions: decisions,
		Total:     total,
		Limit:     filter.Limit,
		Offset:    filter.Offset,
		HasMore:   filter.Offset+len(decisions) < total,
	}, nil
}

// GetDecisionTrace returns a decision with its tool invocations in
// execution order.
func (s *Service) GetDecisionTrace(ctx context.Context, decisionID string) (*observability.DecisionTrace, error) {
	if decisionID == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "decision_id is required")
	}

	dec, err := s.repo.GetDecisionByID(ctx, decisionID)
	if err != nil {
		return nil, err
	}

	invocations, err := s.repo.GetInvocationsByDecisionID(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if invocations == nil {
		invocations = []observability.ToolInvocationLog{}
	}

	return &observability.DecisionTrace{
		Decision:    *dec,
		Invocations: invocations,
	}, nil
}

// GetMetricsSummary aggregates decision logs over an optional time
// window. An empty window yields a zeroed summary, not an error.
func (s *Service) GetMetricsSummary(ctx context.Context, start, end *time.Time) (*observability.MetricsSummary, error) {
	if start != nil && end != nil && end.Before(*start) {
		return nil, errors.Wrap(errors.ErrInvalidInput, "end_time is before start_time")
	}

	summary := &observability.MetricsSummary{
		ErrorBreakdown:     map[string]int{},
		IntentDistribution: map[string]float64{},
		ToolUsage:          map[string]int{},
		WindowStart:        start,
		WindowEnd:          end,
	}

	total, err := s.repo.CountDecisions(ctx, start, end)
	if err != nil {
		return nil, err
	}
	summary.TotalDecisions = total
	if total == 0 {
		return summary, nil
	}

	outcomes, err := s.repo.OutcomeCounts(ctx, start, end)
	if err != nil {
		return nil, err
	}
	successes := 0
	for outcome, count := range outcomes {
		category, subcategory, _ := strings.Cut(outcome, ":")
		switch category {
		case string(observability.CategorySuccess):
			successes += count
		case string(observability.CategoryError):
			summary.ErrorBreakdown[subcategory] += count
		}
	}
	summary.SuccessRate = float64(successes) / float64(total)

	intents, err := s.repo.IntentCounts(ctx, start, end)
	if err != nil {
		return nil, err
	}
	for intent, count := range intents {
		summary.IntentDistribution[intent] = float64(count) / float64(total)
	}

	toolUsage, err := s.repo.ToolCounts(ctx, start, end)
	if err != nil {
		return nil, err
	}
	summary.ToolUsage = toolUsage

	if summary.AvgDecisionDurationMs, err = s.repo.AvgDecisionDurationMs(ctx, start, end); err != nil {
		return nil, err
	}
	if summary.AvgToolDurationMs, err = s.repo.AvgToolDurationMs(ctx, start, end); err != nil {
		return nil, err
	}

	return summary, nil
}

// ExportLogs returns all decisions in the window, oldest first, with
// tool invocations nested under each decision.
func (s *Service) ExportLogs(ctx context.Context, start, end *time.Time, format string) ([]observability.ExportedDecision, error) {
	switch format {
	case "", FormatJSON, FormatJSONL:
	default:
		return nil, errors.Wrapf(errors.ErrInvalidInput, "unsupported export format %q", format)
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, errors.Wrap(errors.ErrInvalidInput, "end_time is before start_time")
	}

	decisions, err := s.repo.ExportDecisions(ctx, start, end)
	if err != nil {
		return nil, err
	}

	exported := make([]observability.ExportedDecision, 0, len(decisions))
	for _, dec := range decisions {
		invocations, err := s.repo.GetInvocationsByDecisionID(ctx, dec.DecisionID)
		if err != nil {
			return nil, err
		}
		if invocations == nil {
			invocations = []observability.ToolInvocationLog{}
		}
		exported = append(exported, observability.ExportedDecision{
			DecisionLog: dec,
			Invocations: invocations,
		})
	}

	s.log.Debugw("Logs exported", "count", len(exported), "format", format)
	return exported, nil
}
