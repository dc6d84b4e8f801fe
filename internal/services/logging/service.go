package logging

import (
	"context"
	"time"

	"github.com/google/uuid"

	"taskpilot/internal/domain/observability"
	"taskpilot/internal/metrics"
	"taskpilot/pkg/errors"
	"taskpilot/pkg/logger"
)

// maxFieldLength bounds stored message and response text.
const maxFieldLength = 4000

// Service is the append-only write path for decision and tool logs.
type Service struct {
	repo observability.Repository
	log  *logger.Logger
}

// New creates the logging service.
func New(repo observability.Repository) *Service {
	return &Service{
		repo: repo,
		log:  logger.Get().With("service", "logging"),
	}
}

// WriteDecisionLog validates and persists a decision log.
func (s *Service) WriteDecisionLog(ctx context.Context, log *observability.DecisionLog) error {
	if log.DecisionID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "decision_id is required")
	}
	if !log.OutcomeCategory.Valid() {
		return errors.Wrapf(errors.ErrInvalidOutcome, "%s", log.OutcomeCategory)
	}

	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	log.Message = truncate(log.Message)
	log.ResponseText = truncate(log.ResponseText)

	err := s.repo.InsertDecisionLog(ctx, log)
	metrics.RecordLogWrite("decision", err)
	if err != nil {
		return err
	}

	s.log.Debugw("Decision logged",
		"decision_id", log.DecisionID,
		"decision_type", log.DecisionType,
		"outcome", log.OutcomeCategory,
	)
	return nil
}

// WriteToolInvocationLog validates and persists a tool invocation log.
func (s *Service) WriteToolInvocationLog(ctx context.Context, log *observability.ToolInvocationLog) error {
	if log.DecisionID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "decision_id is required")
	}
	if log.Sequence < 1 {
		return errors.Wrap(errors.ErrInvalidInput, "sequence must be 1-based")
	}

	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.InvokedAt.IsZero() {
		log.InvokedAt = time.Now().UTC()
	}

	err := s.repo.InsertToolInvocationLog(ctx, log)
	metrics.RecordLogWrite("tool_invocation", err)
	return err
}

// WriteDecisionTrace persists a decision with its invocations. The
// decision row is written first so the invocation foreign key always
// resolves. Invocation sequences must be strictly increasing from 1.
func (s *Service) WriteDecisionTrace(ctx context.Context, decision *observability.DecisionLog, invocations []observability.ToolInvocationLog) error {
	for i := range invocations {
		if invocations[i].Sequence != i+1 {
			return errors.Wrapf(errors.ErrInvalidInput,
				"invocation sequence %d at position %d", invocations[i].Sequence, i)
		}
	}

	if err := s.WriteDecisionLog(ctx, decision); err != nil {
		return err
	}

	for i := range invocations {
		invocations[i].DecisionID = decision.DecisionID
		if err := s.WriteToolInvocationLog(ctx, &invocations[i]); err != nil {
			return err
		}
	}

	return nil
}

func truncate(s string) string {
	if len(s) > maxFieldLength {
		return s[:maxFieldLength]
	}
	return s
}
