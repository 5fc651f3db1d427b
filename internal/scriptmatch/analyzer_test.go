package scriptmatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callfeedback/internal/llm"
	"callfeedback/internal/types"
)

func TestDeriveCausalPattern(t *testing.T) {
	cases := []struct {
		name string
		p    types.PhaseScores
		want types.CausalPattern
	}{
		{"weak hearing drags proposal", types.PhaseScores{Hearing: 40, Proposal: 20, Closing: 80}, types.PatternHearingInsufficient},
		{"weak hearing drags closing", types.PhaseScores{Hearing: 59, Proposal: 90, Closing: 29}, types.PatternHearingInsufficient},
		{"weak proposal", types.PhaseScores{Hearing: 70, Proposal: 40, Closing: 40}, types.PatternProposalInsufficient},
		{"weak closing", types.PhaseScores{Hearing: 70, Proposal: 70, Closing: 30}, types.PatternClosingInsufficient},
		{"all strong", types.PhaseScores{Hearing: 80, Proposal: 80, Closing: 80}, types.PatternGeneral},
		{"weak hearing alone", types.PhaseScores{Hearing: 40, Proposal: 50, Closing: 50}, types.PatternGeneral},
		{"proposal between thresholds", types.PhaseScores{Hearing: 60, Proposal: 55, Closing: 10}, types.PatternGeneral},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveCausalPattern(tc.p))
		})
	}
}

type fakeScripts struct {
	script *types.TalkScript
	err    error
}

func (f fakeScripts) ActiveTalkScript(context.Context, int64) (*types.TalkScript, error) {
	return f.script, f.err
}

type stubLLM struct {
	reply string
	err   error
	calls int
	last  llm.Request
}

func (s *stubLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	s.calls++
	s.last = req
	return s.reply, s.err
}

func sampleScript() *types.TalkScript {
	return &types.TalkScript{
		ID:       7,
		Opening:  "Introduce yourself and the company.",
		Proposal: "Propose the monthly plan.",
		Closing:  "Book a follow-up meeting.",
		HearingItems: []types.HearingItem{
			{Name: "budget", Script: "Ask about budget", DisplayOrder: 1},
			{Name: "timeline", Script: "Ask about timing", DisplayOrder: 2},
		},
	}
}

const goodReply = `{"overall":62,"phases":{"opening":90,"hearing":45,"proposal":20,"closing":70},
"items":[{"name":"budget","covered":true,"match_rate":80},{"name":"timeline","covered":false,"match_rate":10}]}`

func int64p(v int64) *int64 { return &v }

func TestAnalyzeSkipsWithoutProject(t *testing.T) {
	stub := &stubLLM{}
	res, err := New(fakeScripts{script: sampleScript()}, stub, "m").Analyze(context.Background(), nil, "text")
	require.NoError(t, err)
	assert.False(t, res.ShouldAnalyze)
	assert.Zero(t, stub.calls)
}

func TestAnalyzeSkipsWithoutScript(t *testing.T) {
	stub := &stubLLM{}
	res, err := New(fakeScripts{}, stub, "m").Analyze(context.Background(), int64p(1), "text")
	require.NoError(t, err)
	assert.False(t, res.ShouldAnalyze)
	assert.Equal(t, "project has no active talk script", res.SkipReason)
	assert.Zero(t, stub.calls)
}

func TestAnalyzeScoresCall(t *testing.T) {
	stub := &stubLLM{reply: goodReply}
	res, err := New(fakeScripts{script: sampleScript()}, stub, "analysis-model").Analyze(context.Background(), int64p(1), "we talked about budget")
	require.NoError(t, err)
	require.True(t, res.ShouldAnalyze)
	assert.Equal(t, 62, res.Match.Overall)
	assert.Equal(t, types.PhaseScores{Opening: 90, Hearing: 45, Proposal: 20, Closing: 70}, res.Match.Phases)
	assert.Equal(t, types.ItemScore{Covered: true, MatchRate: 80}, res.Match.Items["budget"])
	assert.Equal(t, types.PatternHearingInsufficient, res.Pattern)
	assert.EqualValues(t, 7, res.TalkScriptID)

	assert.Equal(t, "analysis-model", stub.last.Model)
	assert.Contains(t, stub.last.User, "1. budget: Ask about budget")
	assert.Contains(t, stub.last.User, "we talked about budget")
}

func TestAnalyzeRejectsMalformedReplies(t *testing.T) {
	replies := map[string]string{
		"not json":      "the call was fine",
		"missing phase": `{"overall":50,"phases":{"opening":1,"hearing":2,"proposal":3},"items":[{"name":"budget","covered":true,"match_rate":1},{"name":"timeline","covered":true,"match_rate":1}]}`,
		"missing item":  `{"overall":50,"phases":{"opening":1,"hearing":2,"proposal":3,"closing":4},"items":[{"name":"budget","covered":true,"match_rate":1}]}`,
		"out of range":  `{"overall":150,"phases":{"opening":1,"hearing":2,"proposal":3,"closing":4},"items":[{"name":"budget","covered":true,"match_rate":1},{"name":"timeline","covered":true,"match_rate":1}]}`,
		"no covered":    `{"overall":50,"phases":{"opening":1,"hearing":2,"proposal":3,"closing":4},"items":[{"name":"budget","match_rate":1},{"name":"timeline","covered":true,"match_rate":1}]}`,
	}
	for name, reply := range replies {
		t.Run(name, func(t *testing.T) {
			res, err := New(fakeScripts{script: sampleScript()}, &stubLLM{reply: reply}, "m").Analyze(context.Background(), int64p(1), "x")
			require.NoError(t, err)
			assert.False(t, res.ShouldAnalyze)
			assert.Nil(t, res.Match)
		})
	}
}

func TestAnalyzeModelErrorIsSkip(t *testing.T) {
	res, err := New(fakeScripts{script: sampleScript()}, &stubLLM{err: errors.New("429")}, "m").Analyze(context.Background(), int64p(1), "x")
	require.NoError(t, err)
	assert.False(t, res.ShouldAnalyze)
}

func TestAnalyzeScriptLookupErrorPropagates(t *testing.T) {
	_, err := New(fakeScripts{err: errors.New("db down")}, &stubLLM{}, "m").Analyze(context.Background(), int64p(1), "x")
	assert.Error(t, err)
}

func TestBuildUserPromptTruncatesTranscript(t *testing.T) {
	long := strings.Repeat("a", MaxTranscriptChars+500)
	prompt := BuildUserPrompt(sampleScript(), long)
	assert.Contains(t, prompt, "[transcript truncated]")
	assert.NotContains(t, prompt, strings.Repeat("a", MaxTranscriptChars+1))
}
