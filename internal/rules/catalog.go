package rules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wolfman30/woundcare-opportunities/pkg/logging"
)

// ErrInvalidCatalog wraps every catalog validation failure.
var ErrInvalidCatalog = errors.New("rules: invalid catalog")

// Catalog is a versioned, validated set of rules.
type Catalog struct {
	Version  string `yaml:"version"`
	Rules    []Rule `yaml:"rules"`
	Revision string `yaml:"-"`
}

// ParseCatalog decodes and validates a YAML catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Validate reports every problem in the catalog at once.
func (c *Catalog) Validate() error {
	var issues []string
	add := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.Version) == "" {
		add("catalog version is required")
	}
	if len(c.Rules) == 0 {
		add("catalog has no rules")
	}
	seen := make(map[string]bool, len(c.Rules))
	for i, r := range c.Rules {
		id := r.ID
		if strings.TrimSpace(id) == "" {
			add("rule %d: id is required", i)
			id = fmt.Sprintf("#%d", i)
		} else if seen[id] {
			add("rule %s: duplicate id", id)
		}
		seen[id] = true

		if r.Category == "" {
			add("rule %s: category is required", id)
		}
		if r.Type == "" {
			add("rule %s: type is required", id)
		}
		if r.Priority < 1 || r.Priority > 10 {
			add("rule %s: priority %d outside 1-10", id, r.Priority)
		}
		if len(r.Conditions) == 0 {
			add("rule %s: at least one condition is required", id)
		}
		if len(r.Actions) == 0 {
			add("rule %s: at least one action is required", id)
		}
		for j, cond := range r.Conditions {
			if msg := validateCondition(cond); msg != "" {
				add("rule %s condition %d: %s", id, j, msg)
			}
		}
		for j, a := range r.Actions {
			if !a.Type.Valid() {
				add("rule %s action %d: unknown action type %q", id, j, a.Type)
			}
		}
	}

	if len(issues) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidCatalog, strings.Join(issues, "; "))
}

// validateCondition returns a description of the problem, or "" when valid.
// Unknown kinds are accepted and simply never match.
func validateCondition(c Condition) string {
	switch c := c.(type) {
	case DiagnosisMatch:
		if len(c.Codes) == 0 && len(c.Categories) == 0 {
			return "diagnosis needs codes or categories"
		}
	case RiskThreshold:
		if c.Metric == "" {
			return "risk metric is required"
		}
		if c.Threshold < 0 || c.Threshold > 1 {
			return fmt.Sprintf("risk threshold %v outside 0-1", c.Threshold)
		}
	case GapPresent:
		if c.GapType == "" {
			return "gap_type is required"
		}
	case WoundCharacteristic:
		if c.MinAreaCm2 < 0 || c.MinDurationDays < 0 {
			return "wound thresholds must not be negative"
		}
	case UtilizationThreshold:
		if c.Metric == "" {
			return "utilization metric is required"
		}
		if !c.Operator.Valid() {
			return fmt.Sprintf("unknown operator %q", c.Operator)
		}
		if c.Value < 0 {
			return "utilization value must not be negative"
		}
	case QualityComparison:
		if c.Metric == "" {
			return "quality metric is required"
		}
		if !c.Operator.Valid() {
			return fmt.Sprintf("unknown operator %q", c.Operator)
		}
	case PayerMatch:
		if len(c.Payers) == 0 && len(c.PlanTypes) == 0 {
			return "payer needs payers or plan_types"
		}
	case UnknownCondition:
	}
	return ""
}

// Store serves the current catalog to concurrent readers and swaps it
// atomically on reload.
type Store struct {
	current atomic.Pointer[Catalog]
	source  Source
	logger  *logging.Logger
}

// NewStore creates a store backed by source. Call Reload before use.
func NewStore(source Source, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{source: source, logger: logger}
}

// NewStaticStore serves a fixed catalog.
func NewStaticStore(cat *Catalog) (*Store, error) {
	s := NewStore(nil, nil)
	if err := s.Replace(cat); err != nil {
		return nil, err
	}
	return s, nil
}

// Replace validates cat and makes it current.
func (s *Store) Replace(cat *Catalog) error {
	if cat == nil {
		return fmt.Errorf("%w: nil catalog", ErrInvalidCatalog)
	}
	if err := cat.Validate(); err != nil {
		return err
	}
	s.current.Store(cat)
	return nil
}

// Reload fetches the catalog from the source. On any failure the previous
// catalog stays in place.
func (s *Store) Reload(ctx context.Context) error {
	if s.source == nil {
		return errors.New("rules: store has no source")
	}
	doc, err := s.source.Read(ctx)
	if err != nil {
		return fmt.Errorf("rules: read catalog: %w", err)
	}
	if prev := s.current.Load(); prev != nil && doc.Revision != "" && prev.Revision == doc.Revision {
		return nil
	}
	cat, err := ParseCatalog(doc.Data)
	if err != nil {
		return err
	}
	cat.Revision = doc.Revision
	s.current.Store(cat)
	s.logger.Info("rule catalog loaded", "version", cat.Version, "revision", cat.Revision, "rules", len(cat.Rules))
	return nil
}

// Watch reloads on every tick until ctx is done. Reload errors are logged.
func (s *Store) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Reload(ctx); err != nil {
				s.logger.Warn("rule catalog reload failed, keeping previous catalog", "version", s.Version(), "error", err)
			}
		}
	}
}

func (s *Store) catalog() *Catalog {
	if cat := s.current.Load(); cat != nil {
		return cat
	}
	return &Catalog{}
}

// Rules returns the current rules. The slice must not be modified.
func (s *Store) Rules() []Rule {
	return s.catalog().Rules
}

func (s *Store) Version() string {
	return s.catalog().Version
}

func (s *Store) Get(id string) (Rule, bool) {
	for _, r := range s.catalog().Rules {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}

func (s *Store) ByCategory(category string) []Rule {
	var out []Rule
	for _, r := range s.catalog().Rules {
		if r.Category == category {
			out = append(out, r)
		}
	}
	return out
}

// Categories returns the distinct categories, sorted.
func (s *Store) Categories() []string {
	set := make(map[string]struct{})
	for _, r := range s.catalog().Rules {
		set[r.Category] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
