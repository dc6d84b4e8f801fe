package validation

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"taskpilot/internal/domain/observability"
	"taskpilot/internal/services/baseline"
	"taskpilot/pkg/errors"
	"taskpilot/pkg/logger"
)

// driftWindow is how far back the drift comparison looks when a
// validation run includes a baseline.
const driftWindow = 24 * time.Hour

// Config holds validation tunables.
type Config struct {
	FixturesPath string
}

// Service replays behavioral fixtures against recorded decision logs.
type Service struct {
	repo      observability.Repository
	baselines *baseline.Service
	cfg       Config
	log       *logger.Logger
}

// New creates the validation service.
func New(repo observability.Repository, baselines *baseline.Service, cfg Config) *Service {
	return &Service{
		repo:      repo,
		baselines: baselines,
		cfg:       cfg,
		log:       logger.Get().With("service", "validation"),
	}
}

type fixtureFile struct {
	Tests []observability.TestCase `yaml:"tests"`
}

// LoadFixtures parses the behavioral test cases from a YAML file.
func LoadFixtures(path string) ([]observability.TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "read fixtures %s: %v", path, err)
	}

	var file fixtureFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "parse fixtures %s: %v", path, err)
	}

	for i, tc := range file.Tests {
		if tc.TestID == "" || tc.Input == "" {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "fixture %d is missing test_id or input", i)
		}
	}
	return file.Tests, nil
}

// RunValidation evaluates every fixture against the most recent
// matching decision log, optionally folds in a drift comparison, and
// persists the resulting report.
func (s *Service) RunValidation(ctx context.Context, baselineName string) (*observability.ValidationReport, error) {
	fixtures, err := LoadFixtures(s.cfg.FixturesPath)
	if err != nil {
		return nil, err
	}

	report := &observability.ValidationReport{
		ID:    uuid.NewString(),
		RunAt: time.Now().UTC(),
	}

	for _, tc := range fixtures {
		result := s.evaluate(ctx, tc)
		report.Details.Results = append(report.Details.Results, result)
		if result.Status == observability.TestStatusPass {
			report.Passed++
		} else {
			report.Failed++
		}
	}
	report.TestCount = report.Passed + report.Failed

	if baselineName != "" {
		end := report.RunAt
		start := end.Add(-driftWindow)
		drift, err := s.baselines.CompareToBaseline(ctx, baselineName, start, end)
		if err != nil {
			return nil, err
		}
		report.Details.Drift = drift
		report.DriftDetected = drift.DriftExceeded
	}

	if err := s.repo.InsertValidationReport(ctx, report); err != nil {
		return nil, err
	}

	s.log.Infow("Validation run complete",
		"test_count", report.TestCount,
		"passed", report.Passed,
		"failed", report.Failed,
		"drift_detected", report.DriftDetected,
	)
	return report, nil
}

// ListReports returns the most recent validation reports.
func (s *Service) ListReports(ctx context.Context, limit int) ([]observability.ValidationReport, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.ListValidationReports(ctx, limit)
}

// evaluate checks one fixture against the latest decision log whose
// message contains the fixture input.
func (s *Service) evaluate(ctx context.Context, tc observability.TestCase) observability.TestResult {
	result := observability.TestResult{TestID: tc.TestID}

	dec, err := s.repo.LatestDecisionMatching(ctx, tc.Input)
	if err != nil {
		result.Status = observability.TestStatusFail
		if errors.Is(err, errors.ErrNotFound) {
			result.Reason = "no matching decision log"
		} else {
			result.Reason = "log store error: " + err.Error()
		}
		return result
	}

	result.ActualIntent = dec.IntentType
	result.ActualOutcome = string(dec.OutcomeCategory)
	result.MatchedMessage = dec.Message

	invocations, err := s.repo.GetInvocationsByDecisionID(ctx, dec.DecisionID)
	if err != nil {
		result.Status = observability.TestStatusFail
		result.Reason = "log store error: " + err.Error()
		return result
	}
	if len(invocations) > 0 {
		result.ActualTool = invocations[0].ToolName
	}

	var reasons []string
	if tc.ExpectedIntent != "" && dec.IntentType != tc.ExpectedIntent {
		reasons = append(reasons, "intent "+dec.IntentType+" != "+tc.ExpectedIntent)
	}
	if tc.ExpectedTool != "" && result.ActualTool != tc.ExpectedTool {
		reasons = append(reasons, "tool "+orNone(result.ActualTool)+" != "+tc.ExpectedTool)
	}
	if tc.ExpectedOutcome != "" && !outcomeMatches(dec.OutcomeCategory, tc.ExpectedOutcome) {
		reasons = append(reasons, "outcome "+string(dec.OutcomeCategory)+" != "+tc.ExpectedOutcome)
	}

	if len(reasons) > 0 {
		result.Status = observability.TestStatusFail
		result.Reason = strings.Join(reasons, "; ")
		return result
	}

	result.Status = observability.TestStatusPass
	return result
}

// outcomeMatches compares exactly for full "CATEGORY:SUBCATEGORY"
// expectations and by category prefix otherwise.
func outcomeMatches(actual observability.Outcome, expected string) bool {
	if strings.Contains(expected, ":") {
		return string(actual) == expected
	}
	return string(actual.Category()) == expected
}

func orNone(tool string) string {
	if tool == "" {
		return "(none)"
	}
	return tool
}
