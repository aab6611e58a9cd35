package patientctx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/woundcare-opportunities/internal/emr"
	"github.com/wolfman30/woundcare-opportunities/internal/observability/metrics"
	"github.com/wolfman30/woundcare-opportunities/pkg/logging"
)

var tracer = otel.Tracer("woundcare.internal.patientctx")

var errSkipped = errors.New("patientctx: source not configured")

// Fetch is the outcome of one sub-fetch. A failed fetch carries the zero
// value, so callers can use Value unconditionally.
type Fetch[T any] struct {
	Value T
	Err   error
}

func (f Fetch[T]) OK() bool { return f.Err == nil }

// BuildOptions tunes a single build.
type BuildOptions struct {
	SkipRisk bool
	SkipGaps bool
}

// Builder assembles Snapshots from the clinical and coverage providers.
type Builder struct {
	clinical     emr.ClinicalDataProvider
	coverage     emr.CoverageProvider
	risks        []RiskStrategy
	gaps         []GapDetector
	fetchTimeout time.Duration
	logger       *logging.Logger
	metrics      *metrics.OpportunityMetrics
	now          func() time.Time
}

type Option func(*Builder)

// WithRiskStrategies replaces the default risk strategies.
func WithRiskStrategies(strategies ...RiskStrategy) Option {
	return func(b *Builder) {
		b.risks = strategies
	}
}

// WithGapDetectors replaces the default gap detectors.
func WithGapDetectors(detectors ...GapDetector) Option {
	return func(b *Builder) {
		b.gaps = detectors
	}
}

func WithFetchTimeout(d time.Duration) Option {
	return func(b *Builder) {
		if d > 0 {
			b.fetchTimeout = d
		}
	}
}

func WithMetrics(m *metrics.OpportunityMetrics) Option {
	return func(b *Builder) {
		b.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBuilder wires a builder. coverage may be nil, in which case payer data
// is reported as skipped.
func NewBuilder(clinical emr.ClinicalDataProvider, coverage emr.CoverageProvider, logger *logging.Logger, opts ...Option) *Builder {
	if logger == nil {
		logger = logging.Default()
	}
	b := &Builder{
		clinical:     clinical,
		coverage:     coverage,
		risks:        DefaultRiskStrategies(),
		gaps:         DefaultGapDetectors(),
		fetchTimeout: 5 * time.Second,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build gathers everything known about subjectID. It never fails: a sub-fetch
// error leaves that section empty, and a build that cannot proceed at all
// returns Minimal.
func (b *Builder) Build(ctx context.Context, subjectID string, opts BuildOptions) (snap Snapshot) {
	now := b.now().UTC()
	ctx, span := tracer.Start(ctx, "patientctx.build")
	defer span.End()
	span.SetAttributes(attribute.String("woundcare.subject_id", subjectID))

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("patientctx: build panicked: %v", r)
			span.RecordError(err)
			b.logger.Error("context build failed, returning limited snapshot", "subject_id", subjectID, "error", err)
			snap = Minimal(subjectID, now)
		}
	}()

	if b.clinical == nil {
		b.logger.Warn("no clinical data provider configured", "subject_id", subjectID)
		return Minimal(subjectID, now)
	}

	var (
		g            errgroup.Group
		patient      Fetch[*emr.Patient]
		conditions   Fetch[[]emr.Condition]
		observations Fetch[[]emr.Observation]
		encounters   Fetch[[]emr.Encounter]
		wounds       Fetch[[]emr.WoundAssessment]
		coverage     = Fetch[[]emr.Coverage]{Err: errSkipped}
	)
	g.Go(func() error {
		patient = fetch(ctx, b.fetchTimeout, subjectID, emr.SourceDemographics, b.clinical.GetPatient)
		return nil
	})
	g.Go(func() error {
		conditions = fetch(ctx, b.fetchTimeout, subjectID, emr.SourceConditions, b.clinical.ListConditions)
		return nil
	})
	g.Go(func() error {
		observations = fetch(ctx, b.fetchTimeout, subjectID, emr.SourceObservations, b.clinical.ListObservations)
		return nil
	})
	g.Go(func() error {
		encounters = fetch(ctx, b.fetchTimeout, subjectID, emr.SourceEncounters, b.clinical.ListEncounters)
		return nil
	})
	g.Go(func() error {
		wounds = fetch(ctx, b.fetchTimeout, subjectID, emr.SourceWounds, b.clinical.ListWoundAssessments)
		return nil
	})
	if b.coverage != nil {
		g.Go(func() error {
			coverage = fetch(ctx, b.fetchTimeout, subjectID, emr.SourceCoverage, b.coverage.ListCoverage)
			return nil
		})
	}
	_ = g.Wait()

	sources := map[string]SourceStatus{
		emr.SourceDemographics: b.note(subjectID, emr.SourceDemographics, patient.Err),
		emr.SourceConditions:   b.note(subjectID, emr.SourceConditions, conditions.Err),
		emr.SourceObservations: b.note(subjectID, emr.SourceObservations, observations.Err),
		emr.SourceEncounters:   b.note(subjectID, emr.SourceEncounters, encounters.Err),
		emr.SourceWounds:       b.note(subjectID, emr.SourceWounds, wounds.Err),
		emr.SourceCoverage:     b.note(subjectID, emr.SourceCoverage, coverage.Err),
	}

	anyOK, partial := false, false
	for _, status := range sources {
		switch status {
		case SourceOK:
			anyOK = true
		case SourceFailed, SourceNotFound:
			partial = true
		}
	}
	if !anyOK {
		b.logger.Warn("no context sources returned data", "subject_id", subjectID)
		minimal := Minimal(subjectID, now)
		minimal.Sources = sources
		return minimal
	}

	snap = Snapshot{
		SubjectID:    subjectID,
		BuiltAt:      now,
		Partial:      partial,
		Conditions:   conditionFacts(conditions.Value),
		Measurements: measurementFacts(observations.Value),
		Wounds:       groupWounds(wounds.Value),
		Payer:        payerInfo(coverage.Value, now),
		Utilization:  utilization(encounters.Value, now),
		Risk:         make(map[string]float64, len(b.risks)),
		CareGaps:     make(map[string][]CareGap),
		Sources:      sources,
	}
	if p := patient.Value; p != nil {
		snap.Demographics = Demographics{
			Age:       ageAt(p.BirthDate, now),
			Gender:    p.Gender,
			BirthDate: p.BirthDate,
		}
	}

	data := ClinicalData{
		Now:          now,
		Demographics: snap.Demographics,
		Conditions:   snap.Conditions,
		Measurements: snap.Measurements,
		Wounds:       snap.Wounds,
		Encounters:   encounters.Value,
	}
	snap.Quality = quality(data)

	if !opts.SkipRisk {
		for _, strategy := range b.risks {
			snap.Risk[strategy.Name()] = b.score(subjectID, strategy, data)
		}
	}
	if !opts.SkipGaps {
		for _, detector := range b.gaps {
			for _, gap := range b.detect(subjectID, detector, data) {
				snap.CareGaps[gap.Type] = append(snap.CareGaps[gap.Type], gap)
			}
		}
	}
	return snap
}

// fetch runs fn under its own timeout. A provider that ignores ctx is
// abandoned when the timeout fires.
func fetch[T any](ctx context.Context, timeout time.Duration, subjectID, source string, fn func(context.Context, string) (T, error)) Fetch[T] {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "patientctx.fetch."+source)
	defer span.End()

	done := make(chan Fetch[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Fetch[T]{Err: fmt.Errorf("patientctx: %s fetch panicked: %v", source, r)}
			}
		}()
		v, err := fn(ctx, subjectID)
		done <- Fetch[T]{Value: v, Err: err}
	}()

	select {
	case out := <-done:
		if out.Err != nil {
			span.RecordError(out.Err)
			var zero T
			out.Value = zero
		}
		return out
	case <-ctx.Done():
		err := fmt.Errorf("patientctx: %s fetch: %w", source, ctx.Err())
		span.RecordError(err)
		return Fetch[T]{Err: err}
	}
}

func (b *Builder) note(subjectID, source string, err error) SourceStatus {
	switch {
	case err == nil:
		return SourceOK
	case errors.Is(err, errSkipped):
		return SourceSkipped
	case errors.Is(err, emr.ErrNotFound):
		b.logger.Debug("context source has no record", "subject_id", subjectID, "source", source)
		return SourceNotFound
	default:
		b.logger.Warn("context source failed", "subject_id", subjectID, "source", source, "error", err)
		b.metrics.ObserveFetchFailure(source)
		return SourceFailed
	}
}

func (b *Builder) score(subjectID string, strategy RiskStrategy, data ClinicalData) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("risk strategy panicked", "subject_id", subjectID, "metric", strategy.Name(), "error", fmt.Sprint(r))
			score = 0
		}
	}()
	v, ok := strategy.Score(data)
	if !ok {
		return 0
	}
	return clamp01(v)
}

func (b *Builder) detect(subjectID string, detector GapDetector, data ClinicalData) (gaps []CareGap) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("gap detector panicked", "subject_id", subjectID, "error", fmt.Sprint(r))
			gaps = nil
		}
	}()
	return detector.Detect(data)
}
