package observability

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DecisionLog is the immutable record of one engine decision.
// Exactly one row is written per processed user message.
type DecisionLog struct {
	ID              string    `db:"id" json:"id"`
	DecisionID      string    `db:"decision_id" json:"decision_id"`
	ConversationID  string    `db:"conversation_id" json:"conversation_id"`
	UserID          string    `db:"user_id" json:"user_id"`
	Message         string    `db:"message" json:"message"`
	IntentType      string    `db:"intent_type" json:"intent_type"`
	Confidence      *float64  `db:"confidence" json:"confidence,omitempty"`
	DecisionType    string    `db:"decision_type" json:"decision_type"`
	OutcomeCategory Outcome   `db:"outcome_category" json:"outcome_category"`
	ResponseText    string    `db:"response_text" json:"response_text"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	DurationMs      int64     `db:"duration_ms" json:"duration_ms"`
}

// ToolInvocationLog is the record of a single tool execution inside
// a decision. Sequence is 1-based and unique per decision.
type ToolInvocationLog struct {
	ID           string    `db:"id" json:"id"`
	DecisionID   string    `db:"decision_id" json:"decision_id"`
	ToolName     string    `db:"tool_name" json:"tool_name"`
	Parameters   JSONMap   `db:"parameters" json:"parameters"`
	Result       JSONMap   `db:"result" json:"result,omitempty"`
	Success      bool      `db:"success" json:"success"`
	ErrorCode    *string   `db:"error_code" json:"error_code,omitempty"`
	ErrorMessage *string   `db:"error_message" json:"error_message,omitempty"`
	DurationMs   int64     `db:"duration_ms" json:"duration_ms"`
	InvokedAt    time.Time `db:"invoked_at" json:"invoked_at"`
	Sequence     int       `db:"sequence" json:"sequence"`
}

// DecisionTrace is a decision with its tool invocations in execution order.
type DecisionTrace struct {
	Decision    DecisionLog         `json:"decision"`
	Invocations []ToolInvocationLog `json:"invocations"`
}

// BaselineSnapshot captures expected behavior over a sample window.
type BaselineSnapshot struct {
	ID                 string    `db:"id" json:"id"`
	SnapshotName       string    `db:"snapshot_name" json:"snapshot_name"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	SampleStart        time.Time `db:"sample_start" json:"sample_start"`
	SampleEnd          time.Time `db:"sample_end" json:"sample_end"`
	IntentDistribution FloatMap  `db:"intent_distribution" json:"intent_distribution"`
	ToolFrequency      IntMap    `db:"tool_frequency" json:"tool_frequency"`
	ErrorRate          float64   `db:"error_rate" json:"error_rate"`
	SampleSize         int       `db:"sample_size" json:"sample_size"`
}

// DriftReport is the result of comparing a window against a baseline.
type DriftReport struct {
	BaselineName      string             `json:"baseline_name"`
	WindowStart       time.Time          `json:"window_start"`
	WindowEnd         time.Time          `json:"window_end"`
	CurrentSampleSize int                `json:"current_sample_size"`
	IntentDeltas      map[string]float64 `json:"intent_deltas"`
	ToolDeltas        map[string]float64 `json:"tool_deltas"`
	ErrorRateDelta    float64            `json:"error_rate_delta"`
	MaxDrift          float64            `json:"max_drift"`
	Threshold         float64            `json:"threshold"`
	DriftExceeded     bool               `json:"drift_exceeded"`
	FlaggedMetrics    []string           `json:"flagged_metrics"`
}

// TestCase is one behavioral fixture loaded from YAML.
type TestCase struct {
	TestID          string `yaml:"test_id" json:"test_id"`
	Input           string `yaml:"input" json:"input"`
	ExpectedIntent  string `yaml:"expected_intent" json:"expected_intent"`
	ExpectedTool    string `yaml:"expected_tool" json:"expected_tool,omitempty"`
	ExpectedOutcome string `yaml:"expected_outcome" json:"expected_outcome"`
}

// TestResult is the evaluation of one fixture against the logs.
type TestResult struct {
	TestID         string `json:"test_id"`
	Status         string `json:"status"` // PASS or FAIL
	Reason         string `json:"reason,omitempty"`
	ActualIntent   string `json:"actual_intent,omitempty"`
	ActualTool     string `json:"actual_tool,omitempty"`
	ActualOutcome  string `json:"actual_outcome,omitempty"`
	MatchedMessage string `json:"matched_message,omitempty"`
}

// Test result statuses.
const (
	TestStatusPass = "PASS"
	TestStatusFail = "FAIL"
)

// ReportDetails is the JSON payload persisted with a validation report.
type ReportDetails struct {
	Results []TestResult `json:"results"`
	Drift   *DriftReport `json:"drift,omitempty"`
}

// Value implements driver.Valuer.
func (d ReportDetails) Value() (driver.Value, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (d *ReportDetails) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = ReportDetails{}
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("cannot scan %T into ReportDetails", src)
	}
}

// ValidationReport is the persisted outcome of one validation run.
// Passed + Failed always equals TestCount.
type ValidationReport struct {
	ID            string        `db:"id" json:"id"`
	RunAt         time.Time     `db:"run_at" json:"run_at"`
	TestCount     int           `db:"test_count" json:"test_count"`
	Passed        int           `db:"passed" json:"passed"`
	Failed        int           `db:"failed" json:"failed"`
	DriftDetected bool          `db:"drift_detected" json:"drift_detected"`
	Details       ReportDetails `db:"details" json:"details"`
}

// QueryFilter narrows decision log queries. Zero values mean "any".
type QueryFilter struct {
	ConversationID string
	UserID         string
	StartTime      *time.Time
	EndTime        *time.Time
	DecisionType   string
	// Outcome matches exactly when it contains ":", otherwise it is
	// treated as a category prefix.
	Outcome string
	Limit   int
	Offset  int
}

// QueryResult is a page of decision logs.
type QueryResult struct {
	Decisions []DecisionLog `json:"decisions"`
	Total     int           `json:"total"`
	Limit     int           `json:"limit"`
	Offset    int           `json:"offset"`
	HasMore   bool          `json:"has_more"`
}

// MetricsSummary aggregates decision logs over a window.
type MetricsSummary struct {
	TotalDecisions        int                `json:"total_decisions"`
	SuccessRate           float64            `json:"success_rate"`
	ErrorBreakdown        map[string]int     `json:"error_breakdown"`
	IntentDistribution    map[string]float64 `json:"intent_distribution"`
	ToolUsage             map[string]int     `json:"tool_usage"`
	AvgDecisionDurationMs float64            `json:"avg_decision_duration_ms"`
	AvgToolDurationMs     float64            `json:"avg_tool_duration_ms"`
	WindowStart           *time.Time         `json:"window_start,omitempty"`
	WindowEnd             *time.Time         `json:"window_end,omitempty"`
}

// ExportedDecision is a decision with nested invocations for export.
type ExportedDecision struct {
	DecisionLog
	Invocations []ToolInvocationLog `json:"invocations"`
}
