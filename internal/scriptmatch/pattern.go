package scriptmatch

import "callfeedback/internal/types"

// DeriveCausalPattern picks the phase most likely responsible for weak
// downstream phases. Upstream causes are checked before downstream symptoms.
func DeriveCausalPattern(p types.PhaseScores) types.CausalPattern {
	switch {
	case p.Hearing < 60 && (p.Proposal < 30 || p.Closing < 30):
		return types.PatternHearingInsufficient
	case p.Hearing >= 60 && p.Proposal < 50 && p.Closing < 50:
		return types.PatternProposalInsufficient
	case p.Hearing >= 60 && p.Proposal >= 60 && p.Closing < 50:
		return types.PatternClosingInsufficient
	default:
		return types.PatternGeneral
	}
}
