package feedback

import (
	"fmt"
	"sort"
	"strings"

	"callfeedback/internal/types"
)

const maxTranscriptChars = 15000

var causalInstructions = map[types.CausalPattern]string{
	types.PatternHearingInsufficient: `## Root cause focus: hearing (discovery)
The script-match data shows weak discovery followed by a weak proposal or
closing. Treat insufficient hearing as the root cause. Lead the feedback with
what the rep failed to learn about the customer's situation, and explain how
those gaps made the later proposal or closing land poorly. Recommend concrete
discovery questions for the next call. Do not present the weak proposal or
closing as independent problems.`,

	types.PatternProposalInsufficient: `## Root cause focus: proposal
Discovery was adequate but both proposal and closing were weak. Treat the
proposal as the root cause: the rep had the information needed but did not
connect the offer to what the customer said. Lead with how the proposal should
have used the hearing results, and show how a stronger proposal would have made
closing easier.`,

	types.PatternClosingInsufficient: `## Root cause focus: closing
Discovery and proposal were solid but the call did not close. Treat closing as
the root cause. Lead with the missed moment to ask for a next step, and give
concrete closing phrases that fit this conversation.`,

	types.PatternGeneral: `## Structure
No single phase explains the result. Walk through the call in phase order
(opening, hearing, proposal, closing) with one strength and one improvement per
phase.`,
}

const causalGuard = `When a root cause is given above, do not simply rank phases by
their raw scores or lead with the lowest number; follow the causal story.`

// BuildSystemPrompt appends causal coaching instructions to the base prompt
// when script-match data is available.
func BuildSystemPrompt(base string, match *types.ScriptMatch, pattern types.CausalPattern) string {
	base = strings.TrimSpace(base)
	if match == nil {
		return base
	}
	if !pattern.Valid() {
		pattern = types.PatternGeneral
	}
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\n")
	b.WriteString(causalInstructions[pattern])
	if pattern != types.PatternGeneral {
		b.WriteString("\n\n")
		b.WriteString(causalGuard)
	}
	return b.String()
}

// BuildUserPrompt interleaves the script-match breakdown with the transcript.
func BuildUserPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Call outcome: %s\nDuration: %d seconds\n\n", in.Status.Label(), in.DurationSec)
	if m := in.Match; m != nil {
		b.WriteString("## Script match\n")
		fmt.Fprintf(&b, "Overall: %d%%\n", m.Overall)
		fmt.Fprintf(&b, "Opening: %d%%\nHearing: %d%%\nProposal: %d%%\nClosing: %d%%\n",
			m.Phases.Opening, m.Phases.Hearing, m.Phases.Proposal, m.Phases.Closing)
		if len(m.Items) > 0 {
			b.WriteString("\n### Hearing items\n")
			names := make([]string, 0, len(m.Items))
			for name := range m.Items {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				it := m.Items[name]
				mark := "not covered"
				if it.Covered {
					mark = "covered"
				}
				fmt.Fprintf(&b, "- %s: %s (%d%%)\n", name, mark, it.MatchRate)
			}
		}
		if in.Pattern.Valid() {
			fmt.Fprintf(&b, "\nDiagnosed pattern: %s\n", in.Pattern)
		}
		b.WriteString("\n")
	}
	b.WriteString("## Transcript\n")
	t := []rune(strings.TrimSpace(in.Transcript))
	if len(t) > maxTranscriptChars {
		t = t[:maxTranscriptChars]
	}
	b.WriteString(string(t))
	return b.String()
}
