package opportunity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/woundcare-opportunities/internal/events"
	"github.com/wolfman30/woundcare-opportunities/internal/observability/metrics"
	"github.com/wolfman30/woundcare-opportunities/internal/patientctx"
	"github.com/wolfman30/woundcare-opportunities/internal/rules"
	"github.com/wolfman30/woundcare-opportunities/pkg/logging"
)

var tracer = otel.Tracer("woundcare.internal.opportunity")

const (
	msgIdentifyFailed = "unable to identify opportunities at this time"
	msgActionFailed   = "unable to complete the action at this time"

	defaultCacheTTL = 10 * time.Minute
)

// ContextBuilder produces the snapshot rules are evaluated against.
type ContextBuilder interface {
	Build(ctx context.Context, subjectID string, opts patientctx.BuildOptions) patientctx.Snapshot
}

// CandidateEvaluator turns a snapshot into rule candidates.
type CandidateEvaluator interface {
	Evaluate(snap patientctx.Snapshot) []rules.Candidate
}

// EventRecorder writes events outside an action transaction.
type EventRecorder interface {
	Insert(ctx context.Context, subjectID, eventType string, payload any) (uuid.UUID, error)
}

// Service runs the identification pipeline and the action flow.
type Service struct {
	builder   ContextBuilder
	evaluator CandidateEvaluator
	enricher  *Enricher
	store     Store
	cache     Cache
	cacheTTL  time.Duration
	enhancer  Enhancer
	events    EventRecorder
	handlers  map[string]ActionHandler
	metrics   *metrics.OpportunityMetrics
	logger    *logging.Logger
	now       func() time.Time
}

type ServiceOption func(*Service)

// WithCache enables read-through caching of identification results.
func WithCache(cache Cache, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.cache = cache
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func WithEnhancer(e Enhancer) ServiceOption {
	return func(s *Service) { s.enhancer = e }
}

func WithEnricher(e *Enricher) ServiceOption {
	return func(s *Service) {
		if e != nil {
			s.enricher = e
		}
	}
}

// WithHandlers overrides action handlers by type.
func WithHandlers(handlers map[string]ActionHandler) ServiceOption {
	return func(s *Service) {
		for k, h := range handlers {
			s.handlers[k] = h
		}
	}
}

func WithEventRecorder(r EventRecorder) ServiceOption {
	return func(s *Service) { s.events = r }
}

func WithMetrics(m *metrics.OpportunityMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(builder ContextBuilder, evaluator CandidateEvaluator, store Store, logger *logging.Logger, opts ...ServiceOption) *Service {
	if builder == nil {
		panic("opportunity: context builder required")
	}
	if evaluator == nil {
		panic("opportunity: evaluator required")
	}
	if store == nil {
		panic("opportunity: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		builder:   builder,
		evaluator: evaluator,
		enricher:  NewEnricher(nil),
		store:     store,
		cacheTTL:  defaultCacheTTL,
		handlers:  DefaultHandlers(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IdentifyOpportunities runs the pipeline for one subject. It never returns
// an error or panics; failures come back as Success=false with a safe message.
func (s *Service) IdentifyOpportunities(ctx context.Context, subjectID string, opts IdentifyOptions) (result IdentifyResult) {
	ctx, span := tracer.Start(ctx, "opportunity.identify")
	defer span.End()
	span.SetAttributes(
		attribute.String("woundcare.subject_id", subjectID),
		attribute.Bool("woundcare.force_refresh", opts.ForceRefresh),
	)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("opportunity pipeline panicked", "subject_id", subjectID, "error", fmt.Sprint(r))
			span.RecordError(fmt.Errorf("panic: %v", r))
			s.metrics.ObservePipelineRun("panic")
			result = failedIdentify(subjectID, s.now())
		}
	}()

	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return IdentifyResult{Error: "subject id is required", GeneratedAt: s.now()}
	}

	if s.cache != nil && !opts.ForceRefresh {
		cached, ok, err := s.cache.Get(ctx, subjectID)
		switch {
		case err != nil:
			s.logger.Warn("opportunity cache read failed", "subject_id", subjectID, "error", err)
			s.metrics.ObserveCacheLookup("error")
		case ok:
			s.metrics.ObserveCacheLookup("hit")
			s.metrics.ObservePipelineRun("cached")
			cached.Cached = true
			return applyOptions(cached, opts)
		default:
			s.metrics.ObserveCacheLookup("miss")
		}
	}

	full, err := s.run(ctx, subjectID)
	if err != nil {
		s.logger.Error("opportunity pipeline failed", "subject_id", subjectID, "error", err)
		span.RecordError(err)
		s.metrics.ObservePipelineRun("error")
		return failedIdentify(subjectID, s.now())
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, subjectID, full, s.cacheTTL); err != nil {
			s.logger.Warn("opportunity cache write failed", "subject_id", subjectID, "error", err)
		}
	}
	s.metrics.ObservePipelineRun("success")
	return applyOptions(full, opts)
}

// run produces the unfiltered result. Request filters are applied afterwards
// so the cached value serves every option set.
func (s *Service) run(ctx context.Context, subjectID string) (IdentifyResult, error) {
	started := time.Now()
	snap := s.builder.Build(ctx, subjectID, patientctx.BuildOptions{})
	s.metrics.ObserveStage("context", time.Since(started).Seconds())

	started = time.Now()
	candidates := s.evaluator.Evaluate(snap)
	s.metrics.ObserveStage("evaluate", time.Since(started).Seconds())

	var insights []string
	if s.enhancer != nil {
		started = time.Now()
		enh, err := s.enhancer.Enhance(ctx, snap, candidates)
		s.metrics.ObserveStage("enhance", time.Since(started).Seconds())
		if err != nil {
			s.logger.Warn("enhancement unavailable, using rule results only", "subject_id", subjectID, "error", err)
			s.metrics.ObserveEnhancementFallback()
		} else {
			candidates = append(candidates, enh.Candidates...)
			insights = enh.Insights
		}
	}

	ranked := Prioritize(s.enricher.Enrich(candidates, snap), PrioritizeOptions{})

	started = time.Now()
	stored := make([]Opportunity, 0, len(ranked))
	ids := make([]string, 0, len(ranked))
	for _, opp := range ranked {
		saved, err := s.store.Upsert(ctx, opp)
		if err != nil {
			return IdentifyResult{}, fmt.Errorf("persist %s: %w", opp.RuleID, err)
		}
		if saved.Status.Terminal() {
			continue
		}
		stored = append(stored, saved)
		ids = append(ids, saved.ID)
		s.metrics.ObserveIdentified(saved.Category)
	}
	s.metrics.ObserveStage("persist", time.Since(started).Seconds())

	result := IdentifyResult{
		Success:       true,
		SubjectID:     subjectID,
		Opportunities: stored,
		Insights:      insights,
		ContextDigest: snap.Digest(),
		Limited:       snap.Limited,
		GeneratedAt:   s.now(),
	}

	if s.events != nil && len(ids) > 0 {
		_, err := s.events.Insert(ctx, subjectID, events.TypeOpportunitiesIdentified, events.OpportunitiesIdentifiedV1{
			EventID:        uuid.NewString(),
			SubjectID:      subjectID,
			OpportunityIDs: ids,
			ContextDigest:  result.ContextDigest,
			Limited:        result.Limited,
			OccurredAt:     result.GeneratedAt,
		})
		if err != nil {
			s.logger.Warn("failed to record identification event", "subject_id", subjectID, "error", err)
		}
	}
	return result, nil
}

func failedIdentify(subjectID string, now time.Time) IdentifyResult {
	return IdentifyResult{
		Success:     false,
		Error:       msgIdentifyFailed,
		SubjectID:   subjectID,
		GeneratedAt: now,
	}
}

func applyOptions(result IdentifyResult, opts IdentifyOptions) IdentifyResult {
	result.Opportunities = Prioritize(result.Opportunities, PrioritizeOptions{
		Categories:    opts.Categories,
		MinConfidence: opts.MinConfidence,
		Limit:         opts.Limit,
	})
	result.Summary = Summarize(result.Opportunities)
	return result
}

// PriorityBand groups rule priorities: high >= 8, medium 5-7, low <= 4.
func PriorityBand(priority int) string {
	switch {
	case priority >= 8:
		return "high"
	case priority >= 5:
		return "medium"
	default:
		return "low"
	}
}

func Summarize(opps []Opportunity) Summary {
	s := Summary{
		Total:      len(opps),
		ByCategory: make(map[string]int),
		ByPriority: make(map[string]int),
	}
	total := 0.0
	for _, o := range opps {
		s.ByCategory[o.Category]++
		s.ByPriority[PriorityBand(o.Priority)]++
		total += o.Confidence
		s.TotalExpectedSavings += o.CostImpact.ExpectedSavings
	}
	if len(opps) > 0 {
		s.AverageConfidence = total / float64(len(opps))
	}
	return s
}

// rejection is a failure with a caller-facing code and message.
type rejection struct {
	code    string
	message string
	cause   error
}

func (r *rejection) Error() string { return r.message }
func (r *rejection) Unwrap() error { return r.cause }

// TakeAction executes an offered action atomically. Validation happens inside
// the locked transaction before any write; any failure leaves the
// opportunity unchanged.
func (s *Service) TakeAction(ctx context.Context, opportunityID string, req ActionRequest) (result ActionResult) {
	ctx, span := tracer.Start(ctx, "opportunity.take_action")
	defer span.End()
	span.SetAttributes(
		attribute.String("woundcare.opportunity_id", opportunityID),
		attribute.String("woundcare.action_type", req.ActionType),
	)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("take action panicked", "opportunity_id", opportunityID, "error", fmt.Sprint(r))
			result = ActionResult{Error: msgActionFailed, Code: CodeInternal}
		}
		s.metrics.ObserveAction(req.ActionType, result.Success)
	}()

	var (
		updated Opportunity
		record  ActionRecord
	)
	err := s.store.WithinTx(ctx, opportunityID, func(tx Tx) error {
		opp := tx.Opportunity()
		if opp.Status.Terminal() {
			return &rejection{
				code:    CodeTerminalStatus,
				message: fmt.Sprintf("opportunity is %s and accepts no further actions", opp.Status),
				cause:   ErrTerminalStatus,
			}
		}
		if !opp.Offers(req.ActionType) {
			return &rejection{
				code:    CodeInvalidAction,
				message: fmt.Sprintf("action %q is not valid for this opportunity; valid actions: %s", req.ActionType, strings.Join(opp.ValidActions(), ", ")),
				cause:   ErrInvalidAction,
			}
		}
		handler, ok := s.handlers[req.ActionType]
		if !ok {
			return &rejection{
				code:    CodeInvalidAction,
				message: fmt.Sprintf("action %q is not supported", req.ActionType),
				cause:   ErrInvalidAction,
			}
		}

		output, err := handler.Handle(ctx, opp, req.Input)
		if err != nil {
			return &rejection{
				code:    CodeActionFailed,
				message: fmt.Sprintf("action %q could not be completed; no changes were saved", req.ActionType),
				cause:   err,
			}
		}

		now := s.now()
		opp.Status = StatusActionTaken
		opp.ActionCount++
		opp.LastActionAt = &now
		if err := tx.Save(ctx, opp); err != nil {
			return err
		}
		record = ActionRecord{
			ID:            uuid.NewString(),
			OpportunityID: opp.ID,
			ActionType:    req.ActionType,
			Input:         req.Input,
			Result:        output,
			ActorID:       req.ActorID,
			CreatedAt:     now,
		}
		if err := tx.AppendAction(ctx, record); err != nil {
			return err
		}
		updated = tx.Opportunity()
		return tx.Emit(ctx, events.TypeOpportunityActionTaken, events.OpportunityActionTakenV1{
			EventID:       uuid.NewString(),
			OpportunityID: opp.ID,
			SubjectID:     opp.SubjectID,
			RuleID:        opp.RuleID,
			ActionID:      record.ID,
			ActionType:    req.ActionType,
			ActorID:       req.ActorID,
			Result:        output,
			ActionCount:   updated.ActionCount,
			OccurredAt:    now,
		})
	})
	if err != nil {
		span.RecordError(err)
		return s.actionFailure(opportunityID, err)
	}

	s.invalidate(ctx, updated.SubjectID)
	s.logger.Info("opportunity action taken", "opportunity_id", updated.ID, "subject_id", updated.SubjectID, "action_type", req.ActionType)
	return ActionResult{Success: true, Opportunity: &updated, Record: &record}
}

// Dismiss moves the opportunity to the terminal dismissed status and records why.
func (s *Service) Dismiss(ctx context.Context, opportunityID, reason, actorID string) (result ActionResult) {
	ctx, span := tracer.Start(ctx, "opportunity.dismiss")
	defer span.End()
	span.SetAttributes(attribute.String("woundcare.opportunity_id", opportunityID))

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("dismiss panicked", "opportunity_id", opportunityID, "error", fmt.Sprint(r))
			result = ActionResult{Error: msgActionFailed, Code: CodeInternal}
		}
		s.metrics.ObserveAction(ActionDismiss, result.Success)
	}()

	var (
		updated Opportunity
		record  ActionRecord
	)
	err := s.store.WithinTx(ctx, opportunityID, func(tx Tx) error {
		opp := tx.Opportunity()
		if opp.Status.Terminal() {
			return &rejection{
				code:    CodeTerminalStatus,
				message: fmt.Sprintf("opportunity is already %s", opp.Status),
				cause:   ErrTerminalStatus,
			}
		}
		now := s.now()
		opp.Status = StatusDismissed
		if err := tx.Save(ctx, opp); err != nil {
			return err
		}
		record = ActionRecord{
			ID:            uuid.NewString(),
			OpportunityID: opp.ID,
			ActionType:    ActionDismiss,
			Input:         map[string]any{"reason": reason},
			ActorID:       actorID,
			CreatedAt:     now,
		}
		if err := tx.AppendAction(ctx, record); err != nil {
			return err
		}
		updated = tx.Opportunity()
		return tx.Emit(ctx, events.TypeOpportunityDismissed, events.OpportunityDismissedV1{
			EventID:       uuid.NewString(),
			OpportunityID: opp.ID,
			SubjectID:     opp.SubjectID,
			RuleID:        opp.RuleID,
			Reason:        reason,
			ActorID:       actorID,
			OccurredAt:    now,
		})
	})
	if err != nil {
		span.RecordError(err)
		return s.actionFailure(opportunityID, err)
	}

	s.invalidate(ctx, updated.SubjectID)
	return ActionResult{Success: true, Opportunity: &updated, Record: &record}
}

func (s *Service) actionFailure(opportunityID string, err error) ActionResult {
	var rej *rejection
	switch {
	case errors.Is(err, ErrNotFound):
		return ActionResult{Error: "opportunity not found", Code: CodeNotFound}
	case errors.As(err, &rej):
		if rej.code == CodeActionFailed {
			s.logger.Error("action handler failed", "opportunity_id", opportunityID, "error", rej.cause)
		}
		return ActionResult{Error: rej.message, Code: rej.code}
	default:
		s.logger.Error("action transaction failed", "opportunity_id", opportunityID, "error", err)
		return ActionResult{Error: msgActionFailed, Code: CodeInternal}
	}
}

func (s *Service) invalidate(ctx context.Context, subjectID string) {
	if s.cache == nil || subjectID == "" {
		return
	}
	if err := s.cache.Invalidate(ctx, subjectID); err != nil {
		s.logger.Warn("opportunity cache invalidate failed", "subject_id", subjectID, "error", err)
	}
}

func (s *Service) ListForSubject(ctx context.Context, subjectID string) ([]Opportunity, error) {
	opps, err := s.store.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("opportunity: list for subject: %w", err)
	}
	return opps, nil
}

// History returns the action log for an opportunity, oldest first.
func (s *Service) History(ctx context.Context, opportunityID string) ([]ActionRecord, error) {
	if _, err := s.store.Get(ctx, opportunityID); err != nil {
		return nil, err
	}
	records, err := s.store.ListActions(ctx, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("opportunity: history: %w", err)
	}
	return records, nil
}
