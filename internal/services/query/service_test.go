package query

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskpilot/internal/adapters/config"
	"taskpilot/internal/adapters/sqlite"
	"taskpilot/internal/domain/observability"
	sqliterepo "taskpilot/internal/repository/sqlite"
	"taskpilot/pkg/errors"
)

func newService(t *testing.T) (*Service, observability.Repository) {
	t.Helper()
	db, err := sqlite.NewClient(config.DatabaseConfig{Path: ":memory:", MaxConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := sqliterepo.NewLogRepository(db.DB())
	return New(repo), repo
}

func seed(t *testing.T, repo observability.Repository, createdAt time.Time, outcome observability.Outcome, intent string, durationMs int64) *observability.DecisionLog {
	t.Helper()
	row := &observability.DecisionLog{
		ID:              uuid.NewString(),
		DecisionID:      uuid.NewString(),
		ConversationID:  "conv-1",
		UserID:          "user-1",
		Message:         "hello",
		IntentType:      intent,
		DecisionType:    "RESPOND_ONLY",
		OutcomeCategory: outcome,
		ResponseText:    "Hi!",
		CreatedAt:       createdAt,
		DurationMs:      durationMs,
	}
	require.NoError(t, repo.InsertDecisionLog(context.Background(), row))
	return row
}

func TestQueryDecisions_Paging(t *testing.T) {
	svc, repo := newService(t)
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 7; i++ {
		seed(t, repo, base.Add(time.Duration(i)*time.Minute), observability.OutcomeResponseGiven, "GENERAL_CHAT", 50)
	}

	result, err := svc.QueryDecisions(context.Background(), observability.QueryFilter{Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 7, result.Total)
	assert.Len(t, result.Decisions, 3)
	assert.True(t, result.HasMore)

	last, err := svc.QueryDecisions(context.Background(), observability.QueryFilter{Limit: 3, Offset: 6})
	require.NoError(t, err)
	assert.Len(t, last.Decisions, 1)
	assert.False(t, last.HasMore)
}

func TestQueryDecisions_LimitRules(t *testing.T) {
	svc, repo := newService(t)
	seed(t, repo, time.Now().UTC(), observability.OutcomeResponseGiven, "GENERAL_CHAT", 50)

	t.Run("default limit", func(t *testing.T) {
		result, err := svc.QueryDecisions(context.Background(), observability.QueryFilter{})
		require.NoError(t, err)
		assert.Equal(t, defaultLimit, result.Limit)
	})

	t.Run("limit is capped", func(t *testing.T) {
		result, err := svc.QueryDecisions(context.Background(), observability.QueryFilter{Limit: 5000})
		require.NoError(t, err)
		assert.Equal(t, maxLimit, result.Limit)
	})

	t.Run("inverted window rejected", func(t *testing.T) {
		start := time.Now().UTC()
		end := start.Add(-time.Hour)
		_, err := svc.QueryDecisions(context.Background(), observability.QueryFilter{StartTime: &start, EndTime: &end})
		assert.True(t, errors.Is(err, errors.ErrInvalidInput))
	})
}

func TestGetDecisionTrace(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	row := seed(t, repo, time.Now().UTC(), observability.OutcomeTaskCompleted, "CREATE_TASK", 90)

	require.NoError(t, repo.InsertToolInvocationLog(ctx, &observability.ToolInvocationLog{
		ID: uuid.NewString(), DecisionID: row.DecisionID, ToolName: "add_task",
		Parameters: observability.JSONMap{}, Success: true, InvokedAt: time.Now().UTC(), Sequence: 1,
	}))

	trace, err := svc.GetDecisionTrace(ctx, row.DecisionID)
	require.NoError(t, err)
	assert.Equal(t, row.DecisionID, trace.Decision.DecisionID)
	require.Len(t, trace.Invocations, 1)

	_, err = svc.GetDecisionTrace(ctx, "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = svc.GetDecisionTrace(ctx, "")
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestGetMetricsSummary(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seed(t, repo, now, observability.OutcomeTaskCompleted, "CREATE_TASK", 100)
	seed(t, repo, now, observability.OutcomeResponseGiven, "GENERAL_CHAT", 200)
	seed(t, repo, now, observability.OutcomeToolInvocationError, "CREATE_TASK", 300)
	seed(t, repo, now, observability.OutcomeRateLimited, "GENERAL_CHAT", 100)

	summary, err := svc.GetMetricsSummary(ctx, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.TotalDecisions)
	assert.InDelta(t, 0.5, summary.SuccessRate, 0.001)
	assert.Equal(t, 1, summary.ErrorBreakdown["TOOL_INVOCATION"])
	assert.InDelta(t, 0.5, summary.IntentDistribution["CREATE_TASK"], 0.001)
	assert.InDelta(t, 175, summary.AvgDecisionDurationMs, 0.001)
}

func TestGetMetricsSummary_EmptyWindow(t *testing.T) {
	svc, _ := newService(t)

	summary, err := svc.GetMetricsSummary(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Zero(t, summary.TotalDecisions)
	assert.Zero(t, summary.SuccessRate)
	assert.Empty(t, summary.ErrorBreakdown)
}

func TestExportLogs(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	first := seed(t, repo, base, observability.OutcomeTaskCompleted, "CREATE_TASK", 100)
	seed(t, repo, base.Add(time.Minute), observability.OutcomeResponseGiven, "GENERAL_CHAT", 50)

	require.NoError(t, repo.InsertToolInvocationLog(ctx, &observability.ToolInvocationLog{
		ID: uuid.NewString(), DecisionID: first.DecisionID, ToolName: "add_task",
		Parameters: observability.JSONMap{}, Success: true, InvokedAt: base, Sequence: 1,
	}))

	exported, err := svc.ExportLogs(ctx, nil, nil, FormatJSON)
	require.NoError(t, err)
	require.Len(t, exported, 2)

	// Oldest first, invocations nested under their decision.
	assert.Equal(t, first.DecisionID, exported[0].DecisionID)
	assert.Len(t, exported[0].Invocations, 1)
	assert.Empty(t, exported[1].Invocations)

	_, err = svc.ExportLogs(ctx, nil, nil, "xml")
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}
