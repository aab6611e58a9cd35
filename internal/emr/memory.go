package emr

import (
	"context"
	"sync"
)

// Source names used for failure injection and fetch bookkeeping.
const (
	SourceDemographics = "demographics"
	SourceConditions   = "conditions"
	SourceObservations = "observations"
	SourceEncounters   = "encounters"
	SourceWounds       = "wounds"
	SourceCoverage     = "coverage"
)

// Record bundles everything known about one patient.
type Record struct {
	Patient      Patient
	Conditions   []Condition
	Observations []Observation
	Encounters   []Encounter
	Wounds       []WoundAssessment
	Coverage     []Coverage
}

// MemoryProvider is an in-memory ClinicalDataProvider and CoverageProvider.
type MemoryProvider struct {
	mu       sync.RWMutex
	records  map[string]Record
	failures map[string]error
}

var (
	_ ClinicalDataProvider = (*MemoryProvider)(nil)
	_ CoverageProvider     = (*MemoryProvider)(nil)
)

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		records:  make(map[string]Record),
		failures: make(map[string]error),
	}
}

// Put stores or replaces a patient record keyed by rec.Patient.ID.
func (p *MemoryProvider) Put(rec Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[rec.Patient.ID] = rec
}

// FailSource makes every call for the named source return err. A nil err clears it.
func (p *MemoryProvider) FailSource(source string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, source)
		return
	}
	p.failures[source] = err
}

func (p *MemoryProvider) lookup(ctx context.Context, source, patientID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err, ok := p.failures[source]; ok {
		return Record{}, err
	}
	rec, ok := p.records[patientID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (p *MemoryProvider) GetPatient(ctx context.Context, patientID string) (*Patient, error) {
	rec, err := p.lookup(ctx, SourceDemographics, patientID)
	if err != nil {
		return nil, err
	}
	cpy := rec.Patient
	return &cpy, nil
}

func (p *MemoryProvider) ListConditions(ctx context.Context, patientID string) ([]Condition, error) {
	rec, err := p.lookup(ctx, SourceConditions, patientID)
	if err != nil {
		return nil, err
	}
	return append([]Condition(nil), rec.Conditions...), nil
}

func (p *MemoryProvider) ListObservations(ctx context.Context, patientID string) ([]Observation, error) {
	rec, err := p.lookup(ctx, SourceObservations, patientID)
	if err != nil {
		return nil, err
	}
	return append([]Observation(nil), rec.Observations...), nil
}

func (p *MemoryProvider) ListEncounters(ctx context.Context, patientID string) ([]Encounter, error) {
	rec, err := p.lookup(ctx, SourceEncounters, patientID)
	if err != nil {
		return nil, err
	}
	return append([]Encounter(nil), rec.Encounters...), nil
}

func (p *MemoryProvider) ListWoundAssessments(ctx context.Context, patientID string) ([]WoundAssessment, error) {
	rec, err := p.lookup(ctx, SourceWounds, patientID)
	if err != nil {
		return nil, err
	}
	return append([]WoundAssessment(nil), rec.Wounds...), nil
}

func (p *MemoryProvider) ListCoverage(ctx context.Context, patientID string) ([]Coverage, error) {
	rec, err := p.lookup(ctx, SourceCoverage, patientID)
	if err != nil {
		return nil, err
	}
	return append([]Coverage(nil), rec.Coverage...), nil
}
