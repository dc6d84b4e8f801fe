package baseline

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"taskpilot/internal/domain/observability"
	"taskpilot/pkg/errors"
	"taskpilot/pkg/logger"
)

// Config holds baseline and drift tunables.
type Config struct {
	// DriftThreshold is the strict cutoff: drift is flagged only when
	// a delta exceeds it.
	DriftThreshold float64
	// MinSampleSize is the minimum number of decisions a window must
	// contain to snapshot a baseline.
	MinSampleSize int
}

// Service manages behavioral baselines and drift comparisons.
type Service struct {
	repo observability.Repository
	cfg  Config
	log  *logger.Logger
}

// New creates the baseline service.
func New(repo observability.Repository, cfg Config) *Service {
	if cfg.DriftThreshold <= 0 {
		cfg.DriftThreshold = 0.10
	}
	if cfg.MinSampleSize <= 0 {
		cfg.MinSampleSize = 10
	}
	return &Service{
		repo: repo,
		cfg:  cfg,
		log:  logger.Get().With("service", "baseline"),
	}
}

// CreateBaseline snapshots behavioral statistics over a sample window.
// Snapshot names are unique; reusing one returns ErrDuplicateName.
func (s *Service) CreateBaseline(ctx context.Context, name string, start, end time.Time) (*observability.BaselineSnapshot, error) {
	if name == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "snapshot name is required")
	}
	if !end.After(start) {
		return nil, errors.Wrap(errors.ErrInvalidInput, "sample window is empty")
	}

	stats, err := s.windowStats(ctx, &start, &end)
	if err != nil {
		return nil, err
	}
	if stats.sampleSize < s.cfg.MinSampleSize {
		return nil, errors.Wrapf(errors.ErrInsufficientData,
			"window has %d decisions, need at least %d", stats.sampleSize, s.cfg.MinSampleSize)
	}

	snapshot := &observability.BaselineSnapshot{
		ID:                 uuid.NewString(),
		SnapshotName:       name,
		CreatedAt:          time.Now().UTC(),
		SampleStart:        start.UTC(),
		SampleEnd:          end.UTC(),
		IntentDistribution: stats.intentDistribution,
		ToolFrequency:      stats.toolFrequency,
		ErrorRate:          stats.errorRate,
		SampleSize:         stats.sampleSize,
	}

	if err := s.repo.InsertBaseline(ctx, snapshot); err != nil {
		return nil, err
	}

	s.log.Infow("Baseline created",
		"name", name,
		"sample_size", snapshot.SampleSize,
		"error_rate", snapshot.ErrorRate,
	)
	return snapshot, nil
}

// GetBaseline returns a snapshot by name.
func (s *Service) GetBaseline(ctx context.Context, name string) (*observability.BaselineSnapshot, error) {
	if name == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "snapshot name is required")
	}
	return s.repo.GetBaselineByName(ctx, name)
}

// ListBaselines returns all snapshots, newest first.
func (s *Service) ListBaselines(ctx context.Context) ([]observability.BaselineSnapshot, error) {
	return s.repo.ListBaselines(ctx)
}

// CompareToBaseline measures how a window of recent decisions drifted
// from a named baseline. Drift is exceeded only when a delta is
// strictly greater than the threshold. An empty window produces a
// zero-drift report.
func (s *Service) CompareToBaseline(ctx context.Context, name string, windowStart, windowEnd time.Time) (*observability.DriftReport, error) {
	snapshot, err := s.GetBaseline(ctx, name)
	if err != nil {
		return nil, err
	}
	if !windowEnd.After(windowStart) {
		return nil, errors.Wrap(errors.ErrInvalidInput, "comparison window is empty")
	}

	report := &observability.DriftReport{
		BaselineName:   name,
		WindowStart:    windowStart.UTC(),
		WindowEnd:      windowEnd.UTC(),
		IntentDeltas:   map[string]float64{},
		ToolDeltas:     map[string]float64{},
		Threshold:      s.cfg.DriftThreshold,
		FlaggedMetrics: []string{},
	}

	stats, err := s.windowStats(ctx, &windowStart, &windowEnd)
	if err != nil {
		return nil, err
	}
	report.CurrentSampleSize = stats.sampleSize
	if stats.sampleSize == 0 {
		return report, nil
	}

	// Intent deltas compare distribution fractions directly.
	for _, intent := range unionKeys(snapshot.IntentDistribution, toFloat(stats.intentDistribution)) {
		delta := stats.intentDistribution[intent] - snapshot.IntentDistribution[intent]
		report.IntentDeltas[intent] = delta
		s.flag(report, "intent", intent, delta)
	}

	// Tool frequencies are raw counts; normalize each side to shares
	// so windows of different sizes compare.
	baselineShares := normalize(snapshot.ToolFrequency)
	currentShares := normalize(stats.toolFrequency)
	for _, tool := range unionKeys(baselineShares, currentShares) {
		delta := currentShares[tool] - baselineShares[tool]
		report.ToolDeltas[tool] = delta
		s.flag(report, "tool", tool, delta)
	}

	report.ErrorRateDelta = stats.errorRate - snapshot.ErrorRate
	s.flag(report, "error_rate", "", report.ErrorRateDelta)

	report.DriftExceeded = report.MaxDrift > s.cfg.DriftThreshold

	if report.DriftExceeded {
		s.log.Warnw("Behavioral drift detected",
			"baseline", name,
			"max_drift", report.MaxDrift,
			"threshold", s.cfg.DriftThreshold,
			"flagged", report.FlaggedMetrics,
		)
	}
	return report, nil
}

// flag records the delta into MaxDrift and, when it strictly exceeds
// the threshold, appends a human-readable flag.
func (s *Service) flag(report *observability.DriftReport, kind, key string, delta float64) {
	abs := math.Abs(delta)
	if abs > report.MaxDrift {
		report.MaxDrift = abs
	}
	if abs <= s.cfg.DriftThreshold {
		return
	}

	direction := "increased"
	if delta < 0 {
		direction = "decreased"
	}
	metric := kind
	if key != "" {
		metric = kind + ":" + key
	}
	report.FlaggedMetrics = append(report.FlaggedMetrics,
		fmt.Sprintf("%s %s by %.1f%%", metric, direction, abs*100))
}

type windowStats struct {
	sampleSize         int
	intentDistribution observability.FloatMap
	toolFrequency      observability.IntMap
	errorRate          float64
}

func (s *Service) windowStats(ctx context.Context, start, end *time.Time) (*windowStats, error) {
	stats := &windowStats{
		intentDistribution: observability.FloatMap{},
		toolFrequency:      observability.IntMap{},
	}

	total, err := s.repo.CountDecisions(ctx, start, end)
	if err != nil {
		return nil, err
	}
	stats.sampleSize = total
	if total == 0 {
		return stats, nil
	}

	intents, err := s.repo.IntentCounts(ctx, start, end)
	if err != nil {
		return nil, err
	}
	for intent, count := range intents {
		stats.intentDistribution[intent] = float64(count) / float64(total)
	}

	tools, err := s.repo.ToolCounts(ctx, start, end)
	if err != nil {
		return nil, err
	}
	for tool, count := range tools {
		stats.toolFrequency[tool] = count
	}

	outcomes, err := s.repo.OutcomeCounts(ctx, start, end)
	if err != nil {
		return nil, err
	}
	errorCount := 0
	for outcome, count := range outcomes {
		if observability.Outcome(outcome).IsError() {
			errorCount += count
		}
	}
	stats.errorRate = float64(errorCount) / float64(total)

	return stats, nil
}

func normalize(counts observability.IntMap) map[string]float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	shares := make(map[string]float64, len(counts))
	if total == 0 {
		return shares
	}
	for k, c := range counts {
		shares[k] = float64(c) / float64(total)
	}
	return shares
}

func toFloat(m observability.FloatMap) map[string]float64 {
	return map[string]float64(m)
}

func unionKeys(a, b map[string]float64) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
