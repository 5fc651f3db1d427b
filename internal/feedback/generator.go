// Package feedback writes coaching feedback for calls that had a real
// conversation.
package feedback

import (
	"context"
	"fmt"

	"callfeedback/internal/llm"
	"callfeedback/internal/logger"
	"callfeedback/internal/types"
)

const minDecisionMakerSec = 60

// Skip reasons.
const (
	ReasonStatusNotEligible = "status not eligible for feedback"
	ReasonTooShort          = "decision-maker call shorter than 60s"
	ReasonNoActivePrompt    = "no active prompt"
	ReasonModelFailed       = "feedback model call failed"
	ReasonEmptyResponse     = "feedback model returned empty text"
)

// PromptSource resolves the active prompt for a project, falling back to
// the system default. A nil prompt with a nil error means neither exists.
type PromptSource interface {
	ResolvePrompt(ctx context.Context, projectID *int64, t types.PromptType) (*types.Prompt, error)
}

// Models selects the model tier per prompt type.
type Models struct {
	Primary string
	Light   string
}

func (m Models) For(t types.PromptType) string {
	if t == types.PromptPrimaryOutcome {
		return m.Primary
	}
	return m.Light
}

type Input struct {
	Status      types.CallStatus
	DurationSec int
	ProjectID   *int64
	Transcript  string
	Match       *types.ScriptMatch
	Pattern     types.CausalPattern
}

// Result separates "decided not to try" (ShouldGenerate=false) from "tried
// and got nothing" (ShouldGenerate=true, Text=nil).
type Result struct {
	ShouldGenerate bool
	Text           *string
	PromptID       *int64
	PromptType     types.PromptType
	Model          string
	SkipReason     string
}

type Generator struct {
	prompts PromptSource
	llm     llm.Completer
	models  Models
}

func New(prompts PromptSource, completer llm.Completer, models Models) *Generator {
	return &Generator{prompts: prompts, llm: completer, models: models}
}

// ShouldGenerate is the cost gate: real decision-maker conversations of at
// least a minute, and every gatekeeper-only call.
func ShouldGenerate(status types.CallStatus, durationSec int) (bool, string) {
	switch status {
	case types.StatusGatekeeperOnly:
		return true, ""
	case types.StatusDecisionMakerReached:
		if durationSec >= minDecisionMakerSec {
			return true, ""
		}
		return false, ReasonTooShort
	}
	return false, ReasonStatusNotEligible
}

func (g *Generator) Generate(ctx context.Context, in Input) (Result, error) {
	if ok, reason := ShouldGenerate(in.Status, in.DurationSec); !ok {
		return Result{SkipReason: reason}, nil
	}
	ptype, _ := types.PromptTypeFor(in.Status)
	log := logger.Component("feedback").WithField("prompt_type", ptype)

	prompt, err := g.prompts.ResolvePrompt(ctx, in.ProjectID, ptype)
	if err != nil {
		return Result{}, fmt.Errorf("resolve %s prompt: %w", ptype, err)
	}
	if prompt == nil {
		return Result{PromptType: ptype, SkipReason: ReasonNoActivePrompt}, nil
	}

	model := g.models.For(ptype)
	res := Result{ShouldGenerate: true, PromptID: &prompt.ID, PromptType: ptype, Model: model}
	text, err := g.llm.Complete(ctx, llm.Request{
		Model:       model,
		System:      BuildSystemPrompt(prompt.Content, in.Match, in.Pattern),
		User:        BuildUserPrompt(in),
		Temperature: 0.3,
	})
	if err != nil {
		log.WithField("error", err.Error()).WithField("model", model).Warn("feedback generation failed")
		res.SkipReason = ReasonModelFailed
		return res, nil
	}
	if text == "" {
		res.SkipReason = ReasonEmptyResponse
		return res, nil
	}
	res.Text = &text
	log.WithField("prompt_id", prompt.ID).WithField("model", model).WithField("chars", len(text)).Info("feedback generated")
	return res, nil
}
