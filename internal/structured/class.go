package structured

import "github.com/GradientHair/GradientHair/internal/providers/llm"

// Class is the kind of work a structured call performs. The Router turns it into a
// model tier so call sites never name a model.
type Class string

const (
	ClassTriage       Class = "triage"
	ClassDetection    Class = "detection"
	ClassAnalysis     Class = "analysis"
	ClassVerification Class = "verification"
	ClassReview       Class = "review"
)

type Router struct {
	table    map[Class]llm.Tier
	fallback llm.Tier
}

func DefaultRouter() *Router {
	return NewRouter(map[Class]llm.Tier{
		ClassTriage:       llm.TierFast,
		ClassDetection:    llm.TierFast,
		ClassAnalysis:     llm.TierStandard,
		ClassVerification: llm.TierReasoning,
		ClassReview:       llm.TierReasoning,
	}, llm.TierStandard)
}

// NewRouter copies table; later changes to the map do not affect the router.
func NewRouter(table map[Class]llm.Tier, fallback llm.Tier) *Router {
	t := make(map[Class]llm.Tier, len(table))
	for k, v := range table {
		t[k] = v
	}
	if fallback == "" {
		fallback = llm.TierStandard
	}
	return &Router{table: t, fallback: fallback}
}

// Override returns a copy of r with the given entries replaced.
func (r *Router) Override(overrides map[Class]llm.Tier) *Router {
	t := make(map[Class]llm.Tier, len(r.table)+len(overrides))
	for k, v := range r.table {
		t[k] = v
	}
	for k, v := range overrides {
		if v != "" {
			t[k] = v
		}
	}
	return &Router{table: t, fallback: r.fallback}
}

func (r *Router) Tier(c Class) llm.Tier {
	if t, ok := r.table[c]; ok {
		return t
	}
	return r.fallback
}
