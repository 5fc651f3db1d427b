// Package aggregator rolls a project's call records up into dashboard
// figures.
package aggregator

import "callfeedback/internal/types"

type Summary struct {
	TotalCalls    int                         `json:"total_calls"`
	StatusCounts  map[types.CallStatus]int    `json:"status_counts"`
	ReachByLength map[string]float64          `json:"reach_rate_by_length"`
	AnalyzedCalls int                         `json:"analyzed_calls"`
	AvgOverall    float64                     `json:"avg_overall_match"`
	AvgPhases     types.PhaseScores           `json:"avg_phase_match"`
	PatternCounts map[types.CausalPattern]int `json:"pattern_counts"`
	FeedbackCalls int                         `json:"feedback_calls"`
}

// Summarize counts outcomes, averages script-match scores over analyzed
// calls and computes the decision-maker reach rate per call-length bucket.
func Summarize(records []types.CallRecord) Summary {
	s := Summary{
		TotalCalls:    len(records),
		StatusCounts:  map[types.CallStatus]int{},
		ReachByLength: map[string]float64{},
		PatternCounts: map[types.CausalPattern]int{},
	}
	total := map[string]int{}
	reached := map[string]int{}
	var overall, opening, hearing, proposal, closing int
	for _, r := range records {
		if r.Status.Valid() {
			s.StatusCounts[r.Status]++
			b := LengthBucket(r.DurationSec)
			total[b]++
			if r.Status == types.StatusDecisionMakerReached {
				reached[b]++
			}
		}
		if m := r.ScriptMatch; m != nil {
			s.AnalyzedCalls++
			overall += m.Overall
			opening += m.Phases.Opening
			hearing += m.Phases.Hearing
			proposal += m.Phases.Proposal
			closing += m.Phases.Closing
		}
		if r.CausalPattern.Valid() {
			s.PatternCounts[r.CausalPattern]++
		}
		if r.Feedback != nil {
			s.FeedbackCalls++
		}
	}
	for b, n := range total {
		s.ReachByLength[b] = float64(reached[b]) / float64(n)
	}
	if n := s.AnalyzedCalls; n > 0 {
		s.AvgOverall = float64(overall) / float64(n)
		s.AvgPhases = types.PhaseScores{
			Opening:  opening / n,
			Hearing:  hearing / n,
			Proposal: proposal / n,
			Closing:  closing / n,
		}
	}
	return s
}

func LengthBucket(sec int) string {
	switch {
	case sec < 60:
		return "0-1m"
	case sec < 180:
		return "1-3m"
	case sec < 300:
		return "3-5m"
	default:
		return "5m+"
	}
}
