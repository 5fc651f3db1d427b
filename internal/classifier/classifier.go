// Package classifier decides the three-way outcome of a call.
package classifier

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"callfeedback/internal/llm"
	"callfeedback/internal/logger"
	"callfeedback/internal/types"
)

const (
	minDurationSec     = 10
	minTranscriptChars = 20
	gatekeeperMaxSec   = 60
	fallbackCutoffSec  = 60
	maxPromptChars     = 12000
)

// Method records which rule produced a classification.
type Method string

const (
	MethodRule     Method = "rule"
	MethodLLM      Method = "llm"
	MethodFallback Method = "fallback"
)

// gatekeeperKeywords indicate reception or a transfer. Matched case-insensitively.
var gatekeeperKeywords = []string{
	"reception",
	"receptionist",
	"front desk",
	"transfer you",
	"put you through",
	"connect you",
	"受付",
	"おつなぎします",
	"お繋ぎします",
	"おつなぎいたします",
	"取り次ぎ",
	"取次",
}

type Result struct {
	Status     types.CallStatus `json:"status"`
	Confidence float64          `json:"confidence"`
	Reason     string           `json:"reason"`
	Evidence   []string         `json:"evidence,omitempty"`
	Method     Method           `json:"method"`
}

type Classifier struct {
	llm   llm.Completer
	model string
}

func New(completer llm.Completer, model string) *Classifier {
	return &Classifier{llm: completer, model: model}
}

// Classify never fails: rule hits short-circuit, and any LLM problem degrades
// to a duration-only heuristic.
func (c *Classifier) Classify(ctx context.Context, transcript string, durationSec int) Result {
	if res, ok := ApplyRules(transcript, durationSec); ok {
		return res
	}
	log := logger.Component("classifier").WithField("duration_sec", durationSec)

	res, err := c.classifyLLM(ctx, transcript, durationSec)
	if err != nil {
		fb := Fallback(durationSec)
		log.WithField("error", err.Error()).WithField("status", fb.Status).Warn("llm classification failed, using duration heuristic")
		return fb
	}
	log.WithField("status", res.Status).WithField("confidence", res.Confidence).Info("call classified")
	return res
}

// ApplyRules runs the pre-filter. ok is false when the LLM must decide.
func ApplyRules(transcript string, durationSec int) (Result, bool) {
	text := strings.TrimSpace(transcript)
	if durationSec < minDurationSec || utf8.RuneCountInString(text) < minTranscriptChars {
		return Result{
			Status:     types.StatusNoConversation,
			Confidence: 1.0,
			Reason:     fmt.Sprintf("too short to be a conversation (%ds, %d chars)", durationSec, utf8.RuneCountInString(text)),
			Method:     MethodRule,
		}, true
	}
	if kw := matchGatekeeper(text); kw != "" && durationSec < gatekeeperMaxSec {
		return Result{
			Status:     types.StatusGatekeeperOnly,
			Confidence: 0.9,
			Reason:     fmt.Sprintf("gatekeeper keyword %q in a %ds call", kw, durationSec),
			Evidence:   []string{kw},
			Method:     MethodRule,
		}, true
	}
	return Result{}, false
}

// Fallback classifies from duration alone.
func Fallback(durationSec int) Result {
	if durationSec >= fallbackCutoffSec {
		return Result{Status: types.StatusDecisionMakerReached, Confidence: 0.6, Reason: "duration heuristic", Method: MethodFallback}
	}
	return Result{Status: types.StatusNoConversation, Confidence: 0.6, Reason: "duration heuristic", Method: MethodFallback}
}

func matchGatekeeper(text string) string {
	lower := strings.ToLower(text)
	for _, kw := range gatekeeperKeywords {
		if strings.Contains(lower, kw) {
			return kw
		}
	}
	return ""
}

type llmAnswer struct {
	Status     string   `json:"status"`
	Confidence *float64 `json:"confidence"`
	Reason     string   `json:"reason"`
	Evidence   []string `json:"evidence"`
}

func (c *Classifier) classifyLLM(ctx context.Context, transcript string, durationSec int) (Result, error) {
	if c.llm == nil {
		return Result{}, fmt.Errorf("no llm configured")
	}
	user := fmt.Sprintf("Call duration: %d seconds\n\nTranscript:\n%s", durationSec, truncate(transcript, maxPromptChars))
	content, err := c.llm.Complete(ctx, llm.Request{
		Model:  c.model,
		System: systemPrompt,
		User:   user,
		JSON:   true,
	})
	if err != nil {
		return Result{}, err
	}
	var ans llmAnswer
	if err := llm.DecodeJSON(content, &ans); err != nil {
		return Result{}, err
	}
	status := types.CallStatus(strings.TrimSpace(ans.Status))
	if !status.Valid() {
		return Result{}, fmt.Errorf("unknown status %q", ans.Status)
	}
	if ans.Confidence == nil {
		return Result{}, fmt.Errorf("missing confidence")
	}
	conf := *ans.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return Result{
		Status:     status,
		Confidence: conf,
		Reason:     strings.TrimSpace(ans.Reason),
		Evidence:   ans.Evidence,
		Method:     MethodLLM,
	}, nil
}

func truncate(s string, maxChars int) string {
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	r := []rune(s)
	return string(r[:maxChars])
}
