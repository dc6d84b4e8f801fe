package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"taskpilot/internal/domain/observability"
	"taskpilot/pkg/errors"
)

// Compile-time check
var _ observability.Repository = (*LogRepository)(nil)

// LogRepository implements observability.Repository using sqlx.
type LogRepository struct {
	db *sqlx.DB
}

// NewLogRepository creates a new log repository.
func NewLogRepository(db *sqlx.DB) *LogRepository {
	return &LogRepository{db: db}
}

// InsertDecisionLog appends a decision log row.
func (r *LogRepository) InsertDecisionLog(ctx context.Context, log *observability.DecisionLog) error {
	query := `
		INSERT INTO decision_logs (
			id, decision_id, conversation_id, user_id, message,
			intent_type, confidence, decision_type, outcome_category,
			response_text, created_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		log.ID, log.DecisionID, log.ConversationID, log.UserID, log.Message,
		log.IntentType, log.Confidence, log.DecisionType, log.OutcomeCategory,
		log.ResponseText, log.CreatedAt, log.DurationMs,
	)
	if err != nil {
		return wrapStorageErr(err)
	}
	return nil
}

// InsertToolInvocationLog appends a tool invocation row.
func (r *LogRepository) InsertToolInvocationLog(ctx context.Context, log *observability.ToolInvocationLog) error {
	query := `
		INSERT INTO tool_invocation_logs (
			id, decision_id, tool_name, parameters, result,
			success, error_code, error_message, duration_ms, invoked_at, sequence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		log.ID, log.DecisionID, log.ToolName, log.Parameters, log.Result,
		log.Success, log.ErrorCode, log.ErrorMessage, log.DurationMs, log.InvokedAt, log.Sequence,
	)
	if err != nil {
		return wrapStorageErr(err)
	}
	return nil
}

// GetDecisionByID retrieves a decision log by its decision identifier.
func (r *LogRepository) GetDecisionByID(ctx context.Context, decisionID string) (*observability.DecisionLog, error) {
	var log observability.DecisionLog

	query := `SELECT * FROM decision_logs WHERE decision_id = ?`

	err := r.db.GetContext(ctx, &log, query, decisionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(errors.ErrNotFound, "decision %s", decisionID)
		}
		return nil, wrapStorageErr(err)
	}

	return &log, nil
}

// GetInvocationsByDecisionID retrieves tool invocations in execution order.
func (r *LogRepository) GetInvocationsByDecisionID(ctx context.Context, decisionID string) ([]observability.ToolInvocationLog, error) {
	var logs []observability.ToolInvocationLog

	query := `
		SELECT * FROM tool_invocation_logs
		WHERE decision_id = ?
		ORDER BY sequence ASC`

	if err := r.db.SelectContext(ctx, &logs, query, decisionID); err != nil {
		return nil, wrapStorageErr(err)
	}

	return logs, nil
}

// QueryDecisions returns a filtered page of decision logs plus the
// total count of matching rows.
func (r *LogRepository) QueryDecisions(ctx context.Context, filter observability.QueryFilter) ([]observability.DecisionLog, int, error) {
	where, args := buildDecisionFilter(filter)

	var total int
	countQuery := `SELECT COUNT(*) FROM decision_logs` + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, wrapStorageErr(err)
	}

	query := `SELECT * FROM decision_logs` + where + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	var logs []observability.DecisionLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, wrapStorageErr(err)
	}

	return logs, total, nil
}

func buildDecisionFilter(filter observability.QueryFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if filter.ConversationID != "" {
		clauses = append(clauses, "conversation_id = ?")
		args = append(args, filter.ConversationID)
	}
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.StartTime != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, *filter.StartTime)
	}
	if filter.EndTime != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, *filter.EndTime)
	}
	if filter.DecisionType != "" {
		clauses = append(clauses, "decision_type = ?")
		args = append(args, filter.DecisionType)
	}
	if filter.Outcome != "" {
		if strings.Contains(filter.Outcome, ":") {
			clauses = append(clauses, "outcome_category = ?")
			args = append(args, filter.Outcome)
		} else {
			clauses = append(clauses, "outcome_category LIKE ?")
			args = append(args, filter.Outcome+":%")
		}
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ExportDecisions returns all decisions in the window, oldest first.
func (r *LogRepository) ExportDecisions(ctx context.Context, start, end *time.Time) ([]observability.DecisionLog, error) {
	where, args := buildWindowFilter("created_at", start, end)

	var logs []observability.DecisionLog
	query := `SELECT * FROM decision_logs` + where + ` ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, wrapStorageErr(err)
	}

	return logs, nil
}

// LatestDecisionMatching returns the newest decision whose message
// contains the given input.
func (r *LogRepository) LatestDecisionMatching(ctx context.Context, input string) (*observability.DecisionLog, error) {
	var log observability.DecisionLog

	query := `
		SELECT * FROM decision_logs
		WHERE message LIKE '%' || ? || '%'
		ORDER BY created_at DESC
		LIMIT 1`

	err := r.db.GetContext(ctx, &log, query, input)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(errors.ErrNotFound, "no decision matching %q", input)
		}
		return nil, wrapStorageErr(err)
	}

	return &log, nil
}

// CountDecisions returns the number of decisions in the window.
func (r *LogRepository) CountDecisions(ctx context.Context, start, end *time.Time) (int, error) {
	where, args := buildWindowFilter("created_at", start, end)

	var count int
	query := `SELECT COUNT(*) FROM decision_logs` + where
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, wrapStorageErr(err)
	}

	return count, nil
}

type labelCount struct {
	Label string `db:"label"`
	Count int    `db:"count"`
}

// OutcomeCounts returns decision counts grouped by outcome category.
func (r *LogRepository) OutcomeCounts(ctx context.Context, start, end *time.Time) (map[string]int, error) {
	return r.groupedCounts(ctx, "outcome_category", start, end)
}

// IntentCounts returns decision counts grouped by intent type.
func (r *LogRepository) IntentCounts(ctx context.Context, start, end *time.Time) (map[string]int, error) {
	return r.groupedCounts(ctx, "intent_type", start, end)
}

func (r *LogRepository) groupedCounts(ctx context.Context, column string, start, end *time.Time) (map[string]int, error) {
	where, args := buildWindowFilter("created_at", start, end)

	var rows []labelCount
	query := `SELECT ` + column + ` AS label, COUNT(*) AS count FROM decision_logs` + where + ` GROUP BY ` + column
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrapStorageErr(err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Label] = row.Count
	}
	return counts, nil
}

// ToolCounts returns invocation counts grouped by tool name.
func (r *LogRepository) ToolCounts(ctx context.Context, start, end *time.Time) (map[string]int, error) {
	where, args := buildWindowFilter("invoked_at", start, end)

	var rows []labelCount
	query := `SELECT tool_name AS label, COUNT(*) AS count FROM tool_invocation_logs` + where + ` GROUP BY tool_name`
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrapStorageErr(err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Label] = row.Count
	}
	return counts, nil
}

// AvgDecisionDurationMs returns the mean decision duration in the window.
func (r *LogRepository) AvgDecisionDurationMs(ctx context.Context, start, end *time.Time) (float64, error) {
	where, args := buildWindowFilter("created_at", start, end)

	var avg sql.NullFloat64
	query := `SELECT AVG(duration_ms) FROM decision_logs` + where
	if err := r.db.GetContext(ctx, &avg, query, args...); err != nil {
		return 0, wrapStorageErr(err)
	}

	return avg.Float64, nil
}

// AvgToolDurationMs returns the mean tool execution duration in the
// window, weighted by invocation count.
func (r *LogRepository) AvgToolDurationMs(ctx context.Context, start, end *time.Time) (float64, error) {
	where, args := buildWindowFilter("invoked_at", start, end)

	var avg sql.NullFloat64
	query := `SELECT AVG(duration_ms) FROM tool_invocation_logs` + where
	if err := r.db.GetContext(ctx, &avg, query, args...); err != nil {
		return 0, wrapStorageErr(err)
	}

	return avg.Float64, nil
}

func buildWindowFilter(column string, start, end *time.Time) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if start != nil {
		clauses = append(clauses, column+" >= ?")
		args = append(args, *start)
	}
	if end != nil {
		clauses = append(clauses, column+" <= ?")
		args = append(args, *end)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// InsertBaseline persists a baseline snapshot.
func (r *LogRepository) InsertBaseline(ctx context.Context, snapshot *observability.BaselineSnapshot) error {
	query := `
		INSERT INTO baseline_snapshots (
			id, snapshot_name, created_at, sample_start, sample_end,
			intent_distribution, tool_frequency, error_rate, sample_size
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		snapshot.ID, snapshot.SnapshotName, snapshot.CreatedAt,
		snapshot.SampleStart, snapshot.SampleEnd,
		snapshot.IntentDistribution, snapshot.ToolFrequency,
		snapshot.ErrorRate, snapshot.SampleSize,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return errors.Wrapf(errors.ErrDuplicateName, "baseline %q already exists", snapshot.SnapshotName)
		}
		return wrapStorageErr(err)
	}
	return nil
}

// GetBaselineByName retrieves a baseline snapshot by name.
func (r *LogRepository) GetBaselineByName(ctx context.Context, name string) (*observability.BaselineSnapshot, error) {
	var snapshot observability.BaselineSnapshot

	query := `SELECT * FROM baseline_snapshots WHERE snapshot_name = ?`

	err := r.db.GetContext(ctx, &snapshot, query, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(errors.ErrNotFound, "baseline %q", name)
		}
		return nil, wrapStorageErr(err)
	}

	return &snapshot, nil
}

// ListBaselines returns all baselines, newest first.
func (r *LogRepository) ListBaselines(ctx context.Context) ([]observability.BaselineSnapshot, error) {
	var snapshots []observability.BaselineSnapshot

	query := `SELECT * FROM baseline_snapshots ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &snapshots, query); err != nil {
		return nil, wrapStorageErr(err)
	}

	return snapshots, nil
}

// InsertValidationReport persists a validation run.
func (r *LogRepository) InsertValidationReport(ctx context.Context, report *observability.ValidationReport) error {
	query := `
		INSERT INTO validation_reports (
			id, run_at, test_count, passed, failed, drift_detected, details
		) VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		report.ID, report.RunAt, report.TestCount, report.Passed,
		report.Failed, report.DriftDetected, report.Details,
	)
	if err != nil {
		return wrapStorageErr(err)
	}
	return nil
}

// ListValidationReports returns recent validation runs, newest first.
func (r *LogRepository) ListValidationReports(ctx context.Context, limit int) ([]observability.ValidationReport, error) {
	var reports []observability.ValidationReport

	query := `SELECT * FROM validation_reports ORDER BY run_at DESC LIMIT ?`

	if err := r.db.SelectContext(ctx, &reports, query, limit); err != nil {
		return nil, wrapStorageErr(err)
	}

	return reports, nil
}

// DeleteOlderThan removes logs created before the cutoff. Tool
// invocations are removed first so the foreign key stays intact.
func (r *LogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM tool_invocation_logs
		WHERE decision_id IN (
			SELECT decision_id FROM decision_logs WHERE created_at < ?
		)`, cutoff)
	if err != nil {
		return 0, wrapStorageErr(err)
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM decision_logs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, wrapStorageErr(err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, wrapStorageErr(err)
	}

	return deleted, nil
}

func wrapStorageErr(err error) error {
	return errors.Wrap(errors.ErrStorage, err.Error())
}
