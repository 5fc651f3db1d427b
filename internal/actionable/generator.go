// Package actionable turns a project summary into one coaching focus card.
package actionable

import (
	"fmt"

	"callfeedback/internal/aggregator"
	"callfeedback/internal/types"
)

const dominantShare = 0.35

type ActionCard struct {
	Insight string              `json:"insight"`
	Action  string              `json:"action"`
	Impact  string              `json:"impact"`
	Pattern types.CausalPattern `json:"pattern,omitempty"`
}

var actions = map[types.CausalPattern]string{
	types.PatternHearingInsufficient:  "Run a discovery drill on the hearing checklist before the next call block",
	types.PatternProposalInsufficient: "Review how proposals reuse what the customer said during hearing",
	types.PatternClosingInsufficient:  "Practice asking for a concrete next step before hanging up",
}

// Generate picks the causal pattern behind the largest share of analyzed
// calls. Below the threshold no single focus is recommended.
func Generate(s aggregator.Summary) ActionCard {
	var (
		worst types.CausalPattern
		count int
		total int
	)
	for p, n := range s.PatternCounts {
		total += n
		if p == types.PatternGeneral {
			continue
		}
		if n > count || (n == count && p < worst) {
			worst, count = p, n
		}
	}
	if total > 0 && worst != "" {
		share := float64(count) / float64(total)
		if share >= dominantShare {
			return ActionCard{
				Insight: fmt.Sprintf("%s in %.0f%% of analyzed calls", worst, share*100),
				Action:  actions[worst],
				Impact:  "Fixes the upstream phase that drags down the rest of the call",
				Pattern: worst,
			}
		}
	}
	return ActionCard{
		Insight: "No dominant weak phase detected",
		Action:  "Keep coaching call by call and collect more analyzed calls",
		Impact:  "Low immediate intervention",
	}
}
