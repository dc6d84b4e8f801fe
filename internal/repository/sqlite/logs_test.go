package sqlite

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
	"taskpilot/pkg/errors"
)

func newTestRepo(t *testing.T) *LogRepository {
	t.Helper()
	db, err := sqlite.NewClient(config.DatabaseConfig{Path: ":memory:", MaxConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewLogRepository(db.DB())
}

func seedDecision(t *testing.T, repo *LogRepository, mutate func(*observability.DecisionLog)) *observability.DecisionLog {
	t.Helper()
	row := &observability.DecisionLog{
		ID:              uuid.NewString(),
		DecisionID:      uuid.NewString(),
		ConversationID:  "conv-1",
		UserID:          "user-1",
		Message:         "remind me to buy groceries",
		IntentType:      "CREATE_TASK",
		DecisionType:    "INVOKE_TOOL",
		OutcomeCategory: observability.OutcomeTaskCompleted,
		ResponseText:    "Added 'buy groceries' to your tasks.",
		CreatedAt:       time.Now().UTC(),
		DurationMs:      120,
	}
	if mutate != nil {
		mutate(row)
	}
	require.NoError(t, repo.InsertDecisionLog(context.Background(), row))
	return row
}

func seedInvocation(t *testing.T, repo *LogRepository, decisionID string, sequence int, success bool) {
	t.Helper()
	code := "TOOL_EXECUTION_ERROR"
	inv := &observability.ToolInvocationLog{
		ID:         uuid.NewString(),
		DecisionID: decisionID,
		ToolName:   "add_task",
		Parameters: observability.JSONMap{"description": "buy groceries", "user_id": "user-1"},
		Success:    success,
		DurationMs: 15,
		InvokedAt:  time.Now().UTC(),
		Sequence:   sequence,
	}
	if success {
		inv.Result = observability.JSONMap{"task_id": "task-1"}
	} else {
		inv.ErrorCode = &code
	}
	require.NoError(t, repo.InsertToolInvocationLog(context.Background(), inv))
}

func TestLogRepository_RoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	row := seedDecision(t, repo, nil)
	seedInvocation(t, repo, row.DecisionID, 1, true)

	got, err := repo.GetDecisionByID(ctx, row.DecisionID)
	require.NoError(t, err)
	assert.Equal(t, row.DecisionID, got.DecisionID)
	assert.Equal(t, observability.OutcomeTaskCompleted, got.OutcomeCategory)
	assert.Equal(t, row.Message, got.Message)

	invocations, err := repo.GetInvocationsByDecisionID(ctx, row.DecisionID)
	require.NoError(t, err)
	require.Len(t, invocations, 1)
	assert.Equal(t, "add_task", invocations[0].ToolName)
	assert.Equal(t, "buy groceries", invocations[0].Parameters["description"])
	assert.Equal(t, "task-1", invocations[0].Result["task_id"])
}

func TestLogRepository_GetDecisionByID_NotFound(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.GetDecisionByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestLogRepository_DuplicateSequenceRejected(t *testing.T) {
	repo := newTestRepo(t)
	row := seedDecision(t, repo, nil)
	seedInvocation(t, repo, row.DecisionID, 1, true)

	inv := &observability.ToolInvocationLog{
		ID:         uuid.NewString(),
		DecisionID: row.DecisionID,
		ToolName:   "list_tasks",
		Parameters: observability.JSONMap{},
		Success:    true,
		InvokedAt:  time.Now().UTC(),
		Sequence:   1,
	}
	err := repo.InsertToolInvocationLog(context.Background(), inv)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStorage))
}

func TestLogRepository_QueryDecisions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		i := i
		seedDecision(t, repo, func(d *observability.DecisionLog) {
			d.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			if i%2 == 0 {
				d.OutcomeCategory = observability.OutcomeResponseGiven
				d.DecisionType = "RESPOND_ONLY"
			}
			if i == 4 {
				d.UserID = "user-2"
				d.ConversationID = "conv-2"
			}
		})
	}

	t.Run("by user", func(t *testing.T) {
		rows, total, err := repo.QueryDecisions(ctx, observability.QueryFilter{UserID: "user-2", Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, rows, 1)
		assert.Equal(t, "conv-2", rows[0].ConversationID)
	})

	t.Run("by exact outcome", func(t *testing.T) {
		_, total, err := repo.QueryDecisions(ctx, observability.QueryFilter{
			Outcome: "SUCCESS:TASK_COMPLETED", Limit: 10,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
	})

	t.Run("by outcome category prefix", func(t *testing.T) {
		_, total, err := repo.QueryDecisions(ctx, observability.QueryFilter{Outcome: "SUCCESS", Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
	})

	t.Run("pagination newest first", func(t *testing.T) {
		rows, total, err := repo.QueryDecisions(ctx, observability.QueryFilter{Limit: 2, Offset: 0})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, rows, 2)
		assert.True(t, rows[0].CreatedAt.After(rows[1].CreatedAt))

		next, _, err := repo.QueryDecisions(ctx, observability.QueryFilter{Limit: 2, Offset: 4})
		require.NoError(t, err)
		assert.Len(t, next, 1)
	})

	t.Run("time window", func(t *testing.T) {
		start := base.Add(90 * time.Second)
		_, total, err := repo.QueryDecisions(ctx, observability.QueryFilter{StartTime: &start, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
	})
}

func TestLogRepository_ExportDecisionsAscending(t *testing.T) {
	repo := newTestRepo(t)
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		i := i
		seedDecision(t, repo, func(d *observability.DecisionLog) {
			d.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		})
	}

	rows, err := repo.ExportDecisions(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.True(t, rows[0].CreatedAt.Before(rows[1].CreatedAt))
	assert.True(t, rows[1].CreatedAt.Before(rows[2].CreatedAt))
}

func TestLogRepository_LatestDecisionMatching(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	seedDecision(t, repo, func(d *observability.DecisionLog) {
		d.Message = "remind me to buy groceries"
		d.CreatedAt = base
	})
	newest := seedDecision(t, repo, func(d *observability.DecisionLog) {
		d.Message = "please buy groceries tomorrow"
		d.CreatedAt = base.Add(time.Minute)
	})

	got, err := repo.LatestDecisionMatching(ctx, "buy groceries")
	require.NoError(t, err)
	assert.Equal(t, newest.DecisionID, got.DecisionID)

	_, err = repo.LatestDecisionMatching(ctx, "walk the dog")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestLogRepository_Aggregates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := seedDecision(t, repo, func(d *observability.DecisionLog) { d.DurationMs = 100 })
	seedDecision(t, repo, func(d *observability.DecisionLog) {
		d.IntentType = "GENERAL_CHAT"
		d.OutcomeCategory = observability.OutcomeResponseGiven
		d.DurationMs = 300
	})
	seedInvocation(t, repo, first.DecisionID, 1, true)
	seedInvocation(t, repo, first.DecisionID, 2, false)

	count, err := repo.CountDecisions(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	outcomes, err := repo.OutcomeCounts(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, outcomes["SUCCESS:TASK_COMPLETED"])
	assert.Equal(t, 1, outcomes["SUCCESS:RESPONSE_GIVEN"])

	intents, err := repo.IntentCounts(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, intents["CREATE_TASK"])
	assert.Equal(t, 1, intents["GENERAL_CHAT"])

	tools, err := repo.ToolCounts(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, tools["add_task"])

	avg, err := repo.AvgDecisionDurationMs(ctx, nil, nil)
	require.NoError(t, err)
	assert.InDelta(t, 200, avg, 0.001)

	// Empty window averages to zero rather than erroring.
	future := time.Now().UTC().Add(time.Hour)
	avg, err = repo.AvgDecisionDurationMs(ctx, &future, nil)
	require.NoError(t, err)
	assert.Zero(t, avg)
}

func TestLogRepository_Baselines(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	snapshot := &observability.BaselineSnapshot{
		ID:                 uuid.NewString(),
		SnapshotName:       "v1",
		CreatedAt:          time.Now().UTC(),
		SampleStart:        time.Now().UTC().Add(-time.Hour),
		SampleEnd:          time.Now().UTC(),
		IntentDistribution: observability.FloatMap{"CREATE_TASK": 0.6, "GENERAL_CHAT": 0.4},
		ToolFrequency:      observability.IntMap{"add_task": 6},
		ErrorRate:          0.1,
		SampleSize:         10,
	}
	require.NoError(t, repo.InsertBaseline(ctx, snapshot))

	got, err := repo.GetBaselineByName(ctx, "v1")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, got.IntentDistribution["CREATE_TASK"], 0.001)
	assert.Equal(t, 6, got.ToolFrequency["add_task"])
	assert.Equal(t, 10, got.SampleSize)

	dup := *snapshot
	dup.ID = uuid.NewString()
	err = repo.InsertBaseline(ctx, &dup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDuplicateName))

	_, err = repo.GetBaselineByName(ctx, "v2")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	list, err := repo.ListBaselines(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestLogRepository_ValidationReports(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	report := &observability.ValidationReport{
		ID:        uuid.NewString(),
		RunAt:     time.Now().UTC(),
		TestCount: 2,
		Passed:    1,
		Failed:    1,
		Details: observability.ReportDetails{
			Results: []observability.TestResult{
				{TestID: "a", Status: observability.TestStatusPass},
				{TestID: "b", Status: observability.TestStatusFail, Reason: "intent mismatch"},
			},
		},
	}
	require.NoError(t, repo.InsertValidationReport(ctx, report))

	reports, err := repo.ListValidationReports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 2, reports[0].TestCount)
	require.Len(t, reports[0].Details.Results, 2)
	assert.Equal(t, "intent mismatch", reports[0].Details.Results[1].Reason)
}

func TestLogRepository_DeleteOlderThan(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	cutoff := time.Now().UTC().Add(-24 * time.Hour)

	old := seedDecision(t, repo, func(d *observability.DecisionLog) {
		d.CreatedAt = cutoff.Add(-time.Hour)
	})
	seedInvocation(t, repo, old.DecisionID, 1, true)
	recent := seedDecision(t, repo, nil)

	deleted, err := repo.DeleteOlderThan(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.GetDecisionByID(ctx, old.DecisionID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	invocations, err := repo.GetInvocationsByDecisionID(ctx, old.DecisionID)
	require.NoError(t, err)
	assert.Empty(t, invocations)

	_, err = repo.GetDecisionByID(ctx, recent.DecisionID)
	assert.NoError(t, err)
}
