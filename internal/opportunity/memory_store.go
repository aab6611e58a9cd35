package opportunity

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EmittedEvent is an event committed by MemoryStore.
type EmittedEvent struct {
	SubjectID string
	Type      string
	Payload   json.RawMessage
}

// MemoryStore keeps opportunities in process. Transactions on the same
// opportunity serialize on a per-id mutex.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]Opportunity
	byKey   map[string]string
	actions map[string][]ActionRecord
	events  []EmittedEvent
	locks   map[string]*sync.Mutex
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]Opportunity),
		byKey:   make(map[string]string),
		actions: make(map[string][]ActionRecord),
		locks:   make(map[string]*sync.Mutex),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func storeKey(subjectID, ruleID string) string {
	return subjectID + "|" + ruleID
}

func (s *MemoryStore) Upsert(_ context.Context, opp Opportunity) (Opportunity, error) {
	key := storeKey(opp.SubjectID, opp.RuleID)

	// Wait for any open transaction on the existing row, as a row lock would.
	s.mu.RLock()
	existingID, found := s.byKey[key]
	s.mu.RUnlock()
	if found {
		l := s.lockFor(existingID)
		l.Lock()
		defer l.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if id, ok := s.byKey[key]; ok {
		existing := s.byID[id]
		opp.ID = existing.ID
		opp.Status = existing.Status
		opp.ActionCount = existing.ActionCount
		opp.LastActionAt = existing.LastActionAt
		opp.IdentifiedAt = existing.IdentifiedAt
		opp.Version = existing.Version + 1
	} else {
		opp.ID = uuid.NewString()
		if opp.Status == "" {
			opp.Status = StatusIdentified
		}
		opp.ActionCount = 0
		opp.LastActionAt = nil
		opp.IdentifiedAt = now
		opp.Version = 1
		s.byKey[key] = opp.ID
	}
	opp.UpdatedAt = now
	s.byID[opp.ID] = opp
	return opp, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	opp, ok := s.byID[id]
	if !ok {
		return Opportunity{}, ErrNotFound
	}
	return opp, nil
}

func (s *MemoryStore) ListBySubject(_ context.Context, subjectID string) ([]Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Opportunity
	for _, opp := range s.byID {
		if opp.SubjectID == subjectID {
			out = append(out, opp)
		}
	}
	sortStored(out)
	return out, nil
}

func (s *MemoryStore) ListActions(_ context.Context, opportunityID string) ([]ActionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ActionRecord(nil), s.actions[opportunityID]...), nil
}

// Events returns every committed event in order.
func (s *MemoryStore) Events() []EmittedEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]EmittedEvent(nil), s.events...)
}

func (s *MemoryStore) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *MemoryStore) WithinTx(ctx context.Context, id string, fn func(Tx) error) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	opp, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	tx := &memoryTx{opp: opp}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.saved != nil {
		s.byID[id] = *tx.saved
	}
	s.actions[id] = append(s.actions[id], tx.actions...)
	s.events = append(s.events, tx.events...)
	return nil
}

// memoryTx stages writes until WithinTx commits them.
type memoryTx struct {
	opp     Opportunity
	saved   *Opportunity
	actions []ActionRecord
	events  []EmittedEvent
}

func (t *memoryTx) Opportunity() Opportunity {
	if t.saved != nil {
		return *t.saved
	}
	return t.opp
}

func (t *memoryTx) Save(_ context.Context, opp Opportunity) error {
	opp.ID = t.opp.ID
	opp.Version = t.Opportunity().Version + 1
	t.saved = &opp
	return nil
}

func (t *memoryTx) AppendAction(_ context.Context, rec ActionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.OpportunityID = t.opp.ID
	t.actions = append(t.actions, rec)
	return nil
}

func (t *memoryTx) Emit(_ context.Context, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	t.events = append(t.events, EmittedEvent{SubjectID: t.opp.SubjectID, Type: eventType, Payload: data})
	return nil
}

// sortStored orders stored opportunities by score then priority then rule id.
func sortStored(opps []Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		if opps[i].CompositeScore != opps[j].CompositeScore {
			return opps[i].CompositeScore > opps[j].CompositeScore
		}
		if opps[i].Priority != opps[j].Priority {
			return opps[i].Priority > opps[j].Priority
		}
		return opps[i].RuleID < opps[j].RuleID
	})
}
