package workers

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

func seedAgedDecision(t *testing.T, repo observability.Repository, age time.Duration) string {
	t.Helper()
	row := &observability.DecisionLog{
		ID:              uuid.NewString(),
		DecisionID:      uuid.NewString(),
		ConversationID:  "conv-1",
		UserID:          "user-1",
		Message:         "hello",
		IntentType:      "GENERAL_CHAT",
		DecisionType:    "RESPOND_ONLY",
		OutcomeCategory: observability.OutcomeResponseGiven,
		ResponseText:    "Hi!",
		CreatedAt:       time.Now().UTC().Add(-age),
		DurationMs:      10,
	}
	require.NoError(t, repo.InsertDecisionLog(context.Background(), row))
	return row.DecisionID
}

func TestRetentionWorker_Run(t *testing.T) {
	db, err := sqlite.NewClient(config.DatabaseConfig{Path: ":memory:", MaxConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := sqliterepo.NewLogRepository(db.DB())

	oldID := seedAgedDecision(t, repo, 40*24*time.Hour)
	recentID := seedAgedDecision(t, repo, time.Hour)

	worker := NewRetentionWorker(repo, 30, time.Hour, true)
	require.NoError(t, worker.Run(context.Background()))

	_, err = repo.GetDecisionByID(context.Background(), oldID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = repo.GetDecisionByID(context.Background(), recentID)
	assert.NoError(t, err)

	health := worker.Health()
	assert.Equal(t, int64(1), health.RunCount)
	assert.Zero(t, health.ErrorCount)
}

func TestRetentionWorker_Defaults(t *testing.T) {
	worker := NewRetentionWorker(nil, 0, 0, true)
	assert.Equal(t, "retention_sweep", worker.Name())
	assert.Equal(t, 24*time.Hour, worker.Interval())
	assert.Equal(t, 30, worker.retentionDays)
}
