package api

import (
	"net/http"
	"strconv"
	"time"

	"taskpilot/internal/agents"
	"taskpilot/internal/domain/decision"
	"taskpilot/internal/domain/observability"
	"taskpilot/internal/services/baseline"
	"taskpilot/internal/services/query"
	"taskpilot/internal/services/validation"
	"taskpilot/pkg/errors"
	"taskpilot/pkg/logger"
)

// Handlers bundles the HTTP handlers over the engine and the
// observability services.
type Handlers struct {
	engine      *agents.Engine
	queries     *query.Service
	baselines   *baseline.Service
	validations *validation.Service
	log         *logger.Logger
}

// NewHandlers creates the API handler set.
func NewHandlers(engine *agents.Engine, queries *query.Service, baselines *baseline.Service, validations *validation.Service) *Handlers {
	return &Handlers{
		engine:      engine,
		queries:     queries,
		baselines:   baselines,
		validations: validations,
		log:         logger.Get().With("component", "api"),
	}
}

type chatRequest struct {
	UserID         string                    `json:"user_id"`
	ConversationID string                    `json:"conversation_id"`
	Message        string                    `json:"message"`
	History        []decision.HistoryMessage `json:"history,omitempty"`
	PendingAction  *decision.PendingAction   `json:"pending_action,omitempty"`
}

// HandleChat processes one user message through the decision engine.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	dec := h.engine.ProcessMessage(r.Context(), decision.Context{
		UserID:              req.UserID,
		Message:             req.Message,
		ConversationID:      req.ConversationID,
		History:             req.History,
		PendingConfirmation: req.PendingAction,
	})

	writeJSON(w, http.StatusOK, dec)
}

// HandleQueryDecisions returns a filtered page of decision logs.
func (h *Handlers) HandleQueryDecisions(w http.ResponseWriter, r *http.Request) {
	start, err := parseTimeParam(r, "start_time")
	if err != nil {
		writeError(w, err)
		return
	}
	end, err := parseTimeParam(r, "end_time")
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	filter := observability.QueryFilter{
		ConversationID: q.Get("conversation_id"),
		UserID:         q.Get("user_id"),
		StartTime:      start,
		EndTime:        end,
		DecisionType:   q.Get("decision_type"),
		Outcome:        q.Get("outcome"),
	}
	if raw := q.Get("limit"); raw != "" {
		if filter.Limit, err = strconv.Atoi(raw); err != nil {
			writeError(w, errors.Wrap(errors.ErrInvalidInput, "limit must be an integer"))
			return
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if filter.Offset, err = strconv.Atoi(raw); err != nil {
			writeError(w, errors.Wrap(errors.ErrInvalidInput, "offset must be an integer"))
			return
		}
	}

	result, err := h.queries.QueryDecisions(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleDecisionTrace returns a decision with its tool invocations.
func (h *Handlers) HandleDecisionTrace(w http.ResponseWriter, r *http.Request) {
	trace, err := h.queries.GetDecisionTrace(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

// HandleMetricsSummary returns aggregated statistics over a window.
func (h *Handlers) HandleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	start, err := parseTimeParam(r, "start_time")
	if err != nil {
		writeError(w, err)
		return
	}
	end, err := parseTimeParam(r, "end_time")
	if err != nil {
		writeError(w, err)
		return
	}

	summary, err := h.queries.GetMetricsSummary(r.Context(), start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// HandleExportLogs streams decisions with nested invocations as a
// JSON array or as JSON lines.
func (h *Handlers) HandleExportLogs(w http.ResponseWriter, r *http.Request) {
	start, err := parseTimeParam(r, "start_time")
	if err != nil {
		writeError(w, err)
		return
	}
	end, err := parseTimeParam(r, "end_time")
	if err != nil {
		writeError(w, err)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = query.FormatJSON
	}

	exported, err := h.queries.ExportLogs(r.Context(), start, end, format)
	if err != nil {
		writeError(w, err)
		return
	}

	if format == query.FormatJSONL {
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		writeJSONLines(w, exported)
		return
	}
	writeJSON(w, http.StatusOK, exported)
}

type createBaselineRequest struct {
	Name        string    `json:"name"`
	SampleStart time.Time `json:"sample_start"`
	SampleEnd   time.Time `json:"sample_end"`
}

// HandleCreateBaseline snapshots behavior over a sample window.
func (h *Handlers) HandleCreateBaseline(w http.ResponseWriter, r *http.Request) {
	var req createBaselineRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	snapshot, err := h.baselines.CreateBaseline(r.Context(), req.Name, req.SampleStart, req.SampleEnd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snapshot)
}

// HandleListBaselines returns all baseline snapshots.
func (h *Handlers) HandleListBaselines(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.baselines.ListBaselines(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if snapshots == nil {
		snapshots = []observability.BaselineSnapshot{}
	}
	writeJSON(w, http.StatusOK, snapshots)
}

type compareBaselineRequest struct {
	WindowStart *time.Time `json:"window_start,omitempty"`
	WindowEnd   *time.Time `json:"window_end,omitempty"`
}

// HandleCompareBaseline measures drift of a recent window against a
// named baseline. The window defaults to the last 24 hours.
func (h *Handlers) HandleCompareBaseline(w http.ResponseWriter, r *http.Request) {
	var req compareBaselineRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	end := time.Now().UTC()
	start := end.Add(-24 * time.Hour)
	if req.WindowEnd != nil {
		end = *req.WindowEnd
	}
	if req.WindowStart != nil {
		start = *req.WindowStart
	}

	report, err := h.baselines.CompareToBaseline(r.Context(), r.PathValue("name"), start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type runValidationRequest struct {
	Baseline string `json:"baseline,omitempty"`
}

// HandleRunValidation replays the behavioral fixtures and persists
// the resulting report.
func (h *Handlers) HandleRunValidation(w http.ResponseWriter, r *http.Request) {
	var req runValidationRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	report, err := h.validations.RunValidation(r.Context(), req.Baseline)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleListValidationReports returns recent validation reports.
func (h *Handlers) HandleListValidationReports(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		var err error
		if limit, err = strconv.Atoi(raw); err != nil {
			writeError(w, errors.Wrap(errors.ErrInvalidInput, "limit must be an integer"))
			return
		}
	}

	reports, err := h.validations.ListReports(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if reports == nil {
		reports = []observability.ValidationReport{}
	}
	writeJSON(w, http.StatusOK, reports)
}
