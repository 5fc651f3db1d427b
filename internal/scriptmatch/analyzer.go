// Package scriptmatch scores how closely a call followed the project's talk
// script.
package scriptmatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"callfeedback/internal/llm"
	"callfeedback/internal/logger"
	"callfeedback/internal/types"
)

// MaxTranscriptChars bounds the transcript pasted into the prompt.
const MaxTranscriptChars = 8000

// ScriptSource looks up the active talk script of a project. A nil script
// with a nil error means the project has none.
type ScriptSource interface {
	ActiveTalkScript(ctx context.Context, projectID int64) (*types.TalkScript, error)
}

type Result struct {
	ShouldAnalyze bool
	SkipReason    string
	Match         *types.ScriptMatch
	Pattern       types.CausalPattern
	TalkScriptID  int64
}

type Analyzer struct {
	scripts ScriptSource
	llm     llm.Completer
	model   string
}

func New(scripts ScriptSource, completer llm.Completer, model string) *Analyzer {
	return &Analyzer{scripts: scripts, llm: completer, model: model}
}

// Analyze compares the transcript with the project's active script. Missing
// preconditions and bad model output yield ShouldAnalyze=false; only a failed
// script lookup is returned as an error.
func (a *Analyzer) Analyze(ctx context.Context, projectID *int64, transcript string) (Result, error) {
	if projectID == nil {
		return Result{SkipReason: "call has no project"}, nil
	}
	log := logger.Component("scriptmatch").WithField("project_id", *projectID)

	script, err := a.scripts.ActiveTalkScript(ctx, *projectID)
	if err != nil {
		return Result{}, fmt.Errorf("load talk script for project %d: %w", *projectID, err)
	}
	if script == nil {
		return Result{SkipReason: "project has no active talk script"}, nil
	}

	content, err := a.llm.Complete(ctx, llm.Request{
		Model:  a.model,
		System: BuildSystemPrompt(),
		User:   BuildUserPrompt(script, transcript),
		JSON:   true,
	})
	if err != nil {
		log.WithField("error", err.Error()).Warn("script match llm call failed")
		return Result{SkipReason: "script match model call failed"}, nil
	}
	match, err := ParseMatch(content, script.HearingItems)
	if err != nil {
		log.WithField("error", err.Error()).Warn("script match response rejected")
		return Result{SkipReason: "script match response invalid"}, nil
	}
	pattern := DeriveCausalPattern(match.Phases)
	log.WithField("overall", match.Overall).WithField("pattern", pattern).Info("script match scored")
	return Result{ShouldAnalyze: true, Match: match, Pattern: pattern, TalkScriptID: script.ID}, nil
}

// BuildSystemPrompt describes the scoring task and the exact output schema.
func BuildSystemPrompt() string {
	return `You evaluate how closely a sales call followed a reference talk script.

Score SEMANTIC coverage, not keyword overlap: a phase or item counts as covered
when the rep conveyed the same intent or asked for the same information, even in
different words. Paraphrases count; reading unrelated text that shares words
does not.

Give integer scores from 0 to 100:
- "opening": how well the call's opening matches the opening script
- "hearing": how well the discovery questions were covered overall
- "proposal": how well the proposal matches the proposal script
- "closing": how well the closing matches the closing script
- "overall": your overall adherence score for the whole call
For every hearing item give "covered" (true when the topic was actually
discussed) and "match_rate" (0-100).

Return exactly one JSON object with this shape and no other text:
{"overall": 0,
 "phases": {"opening": 0, "hearing": 0, "proposal": 0, "closing": 0},
 "items": [{"name": "<hearing item name exactly as given>", "covered": false, "match_rate": 0}]}
Every hearing item listed in the input must appear exactly once in "items".`
}

func BuildUserPrompt(script *types.TalkScript, transcript string) string {
	var b strings.Builder
	b.WriteString("## Opening script\n")
	b.WriteString(strings.TrimSpace(script.Opening))
	b.WriteString("\n\n## Hearing items\n")
	for i, item := range script.HearingItems {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, item.Name, strings.TrimSpace(item.Script))
	}
	b.WriteString("\n## Proposal script\n")
	b.WriteString(strings.TrimSpace(script.Proposal))
	b.WriteString("\n\n## Closing script\n")
	b.WriteString(strings.TrimSpace(script.Closing))
	b.WriteString("\n\n## Call transcript\n")
	b.WriteString(TruncateTranscript(transcript, MaxTranscriptChars))
	return b.String()
}

// TruncateTranscript cuts s to at most maxChars runes.
func TruncateTranscript(s string, maxChars int) string {
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	return string([]rune(s)[:maxChars]) + "\n[transcript truncated]"
}

type matchResponse struct {
	Overall *int `json:"overall"`
	Phases  struct {
		Opening  *int `json:"opening"`
		Hearing  *int `json:"hearing"`
		Proposal *int `json:"proposal"`
		Closing  *int `json:"closing"`
	} `json:"phases"`
	Items []struct {
		Name      string `json:"name"`
		Covered   *bool  `json:"covered"`
		MatchRate *int   `json:"match_rate"`
	} `json:"items"`
}

var errIncomplete = errors.New("incomplete script match response")

// ParseMatch validates a model reply against the schema. Any missing or out
// of range value rejects the whole reply.
func ParseMatch(content string, items []types.HearingItem) (*types.ScriptMatch, error) {
	var resp matchResponse
	if err := llm.DecodeJSON(content, &resp); err != nil {
		return nil, err
	}
	scores := []*int{resp.Overall, resp.Phases.Opening, resp.Phases.Hearing, resp.Phases.Proposal, resp.Phases.Closing}
	for _, s := range scores {
		if s == nil {
			return nil, errIncomplete
		}
		if err := checkPercent(*s); err != nil {
			return nil, err
		}
	}

	byName := make(map[string]types.ItemScore, len(resp.Items))
	for _, it := range resp.Items {
		name := strings.TrimSpace(it.Name)
		if name == "" || it.Covered == nil || it.MatchRate == nil {
			return nil, errIncomplete
		}
		if err := checkPercent(*it.MatchRate); err != nil {
			return nil, err
		}
		byName[name] = types.ItemScore{Covered: *it.Covered, MatchRate: *it.MatchRate}
	}
	out := make(map[string]types.ItemScore, len(items))
	for _, item := range items {
		score, ok := byName[strings.TrimSpace(item.Name)]
		if !ok {
			return nil, fmt.Errorf("%w: hearing item %q missing", errIncomplete, item.Name)
		}
		out[item.Name] = score
	}

	return &types.ScriptMatch{
		Overall: *resp.Overall,
		Phases: types.PhaseScores{
			Opening:  *resp.Phases.Opening,
			Hearing:  *resp.Phases.Hearing,
			Proposal: *resp.Phases.Proposal,
			Closing:  *resp.Phases.Closing,
		},
		Items: out,
	}, nil
}

func checkPercent(v int) error {
	if v < 0 || v > 100 {
		return fmt.Errorf("score %d out of range", v)
	}
	return nil
}
