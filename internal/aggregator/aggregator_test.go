package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"callfeedback/internal/types"
)

func TestSummarize(t *testing.T) {
	fb := "x"
	records := []types.CallRecord{
		{DurationSec: 30, Status: types.StatusNoConversation},
		{DurationSec: 45, Status: types.StatusGatekeeperOnly},
		{DurationSec: 120, Status: types.StatusDecisionMakerReached, Feedback: &fb,
			ScriptMatch:   &types.ScriptMatch{Overall: 60, Phases: types.PhaseScores{Opening: 80, Hearing: 40, Proposal: 60, Closing: 60}},
			CausalPattern: types.PatternHearingInsufficient},
		{DurationSec: 150, Status: types.StatusGatekeeperOnly,
			ScriptMatch:   &types.ScriptMatch{Overall: 40, Phases: types.PhaseScores{Opening: 60, Hearing: 20, Proposal: 40, Closing: 40}},
			CausalPattern: types.PatternGeneral},
		{DurationSec: 400},
	}
	s := Summarize(records)
	assert.Equal(t, 5, s.TotalCalls)
	assert.Equal(t, 2, s.StatusCounts[types.StatusGatekeeperOnly])
	assert.Equal(t, 2, s.AnalyzedCalls)
	assert.InDelta(t, 50.0, s.AvgOverall, 1e-9)
	assert.Equal(t, types.PhaseScores{Opening: 70, Hearing: 30, Proposal: 50, Closing: 50}, s.AvgPhases)
	assert.InDelta(t, 0.0, s.ReachByLength["0-1m"], 1e-9)
	assert.InDelta(t, 0.5, s.ReachByLength["1-3m"], 1e-9)
	_, unclassified := s.ReachByLength["5m+"]
	assert.False(t, unclassified)
	assert.Equal(t, 1, s.PatternCounts[types.PatternHearingInsufficient])
	assert.Equal(t, 1, s.FeedbackCalls)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.TotalCalls)
	assert.Zero(t, s.AvgOverall)
	assert.Empty(t, s.StatusCounts)
}

func TestLengthBucket(t *testing.T) {
	assert.Equal(t, "0-1m", LengthBucket(59))
	assert.Equal(t, "1-3m", LengthBucket(60))
	assert.Equal(t, "3-5m", LengthBucket(180))
	assert.Equal(t, "5m+", LengthBucket(300))
}
