package opportunity

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/woundcare-opportunities/internal/rules"
)

// ActionHandler executes one action type against an external system.
type ActionHandler interface {
	Handle(ctx context.Context, opp Opportunity, input map[string]any) (map[string]any, error)
}

type ActionHandlerFunc func(ctx context.Context, opp Opportunity, input map[string]any) (map[string]any, error)

func (f ActionHandlerFunc) Handle(ctx context.Context, opp Opportunity, input map[string]any) (map[string]any, error) {
	return f(ctx, opp, input)
}

// DefaultHandlers returns stub handlers for every action type. Each one
// accepts the request and returns a reference id for the downstream system.
func DefaultHandlers() map[string]ActionHandler {
	return map[string]ActionHandler{
		string(rules.ActionOrderProduct): ActionHandlerFunc(func(_ context.Context, opp Opportunity, input map[string]any) (map[string]any, error) {
			skus := stringList(input["skus"])
			if len(skus) == 0 {
				for _, p := range opp.Recommendations {
					skus = append(skus, p.SKU)
				}
			}
			return accepted("ORD", map[string]any{"skus": skus}), nil
		}),
		string(rules.ActionScheduleAssessment): ActionHandlerFunc(func(_ context.Context, opp Opportunity, _ map[string]any) (map[string]any, error) {
			d := detailsFor(opp, rules.ActionScheduleAssessment)
			return accepted("APT", map[string]any{"urgency": d["urgency"], "within_days": d["within_days"]}), nil
		}),
		string(rules.ActionReferSpecialist): ActionHandlerFunc(func(_ context.Context, opp Opportunity, input map[string]any) (map[string]any, error) {
			specialty := detailsFor(opp, rules.ActionReferSpecialist)["specialty"]
			if s, ok := input["specialty"].(string); ok && s != "" {
				specialty = s
			}
			return accepted("REF", map[string]any{"specialty": specialty}), nil
		}),
		string(rules.ActionUpdateCarePlan): ActionHandlerFunc(func(_ context.Context, opp Opportunity, _ map[string]any) (map[string]any, error) {
			return accepted("CP", map[string]any{"focus_areas": detailsFor(opp, rules.ActionUpdateCarePlan)["focus_areas"]}), nil
		}),
		string(rules.ActionEnrollProgram): ActionHandlerFunc(func(_ context.Context, opp Opportunity, _ map[string]any) (map[string]any, error) {
			return accepted("ENR", map[string]any{"program_id": detailsFor(opp, rules.ActionEnrollProgram)["program_id"]}), nil
		}),
		string(rules.ActionDocumentGap): ActionHandlerFunc(func(_ context.Context, opp Opportunity, _ map[string]any) (map[string]any, error) {
			return accepted("GAP", map[string]any{"gaps": detailsFor(opp, rules.ActionDocumentGap)["gaps"]}), nil
		}),
	}
}

func accepted(prefix string, fields map[string]any) map[string]any {
	fields["status"] = "submitted"
	fields["reference_id"] = prefix + "-" + strings.ToUpper(uuid.NewString()[:8])
	return fields
}

func detailsFor(opp Opportunity, t rules.ActionType) map[string]any {
	for _, a := range opp.Actions {
		if a.Type == t && a.Details != nil {
			return a.Details
		}
	}
	return map[string]any{}
}
