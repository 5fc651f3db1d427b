package types

// CallStatus is the three-way outcome of a call.
type CallStatus string

const (
	StatusDecisionMakerReached CallStatus = "decision_maker_reached"
	StatusGatekeeperOnly       CallStatus = "gatekeeper_only"
	StatusNoConversation       CallStatus = "no_conversation"
)

func (s CallStatus) Valid() bool {
	switch s {
	case StatusDecisionMakerReached, StatusGatekeeperOnly, StatusNoConversation:
		return true
	}
	return false
}

// Label is the outcome text shown to sales staff.
func (s CallStatus) Label() string {
	switch s {
	case StatusDecisionMakerReached:
		return "Reached decision-maker"
	case StatusGatekeeperOnly:
		return "Gatekeeper only"
	case StatusNoConversation:
		return "No conversation"
	}
	return "Unknown"
}

// CausalPattern names the script phase most likely behind weak downstream phases.
type CausalPattern string

const (
	PatternHearingInsufficient  CausalPattern = "hearing_insufficient"
	PatternProposalInsufficient CausalPattern = "proposal_insufficient"
	PatternClosingInsufficient  CausalPattern = "closing_insufficient"
	PatternGeneral              CausalPattern = "general"
)

func (p CausalPattern) Valid() bool {
	switch p {
	case PatternHearingInsufficient, PatternProposalInsufficient, PatternClosingInsufficient, PatternGeneral:
		return true
	}
	return false
}

// PromptType selects which feedback prompt applies to a call.
type PromptType string

const (
	PromptPrimaryOutcome    PromptType = "primary_outcome"
	PromptGatekeeperOutcome PromptType = "gatekeeper_outcome"
)

func (t PromptType) Valid() bool {
	return t == PromptPrimaryOutcome || t == PromptGatekeeperOutcome
}

// PromptTypeFor maps a call outcome to the feedback prompt type. ok is false
// for outcomes that never get feedback.
func PromptTypeFor(s CallStatus) (PromptType, bool) {
	switch s {
	case StatusDecisionMakerReached:
		return PromptPrimaryOutcome, true
	case StatusGatekeeperOnly:
		return PromptGatekeeperOutcome, true
	}
	return "", false
}

// Stage tracks how far the pipeline got for a call record.
type Stage string

const (
	StageCreated           Stage = "created"
	StageTranscribed       Stage = "transcribed"
	StageClassified        Stage = "classified"
	StageAnalyzed          Stage = "analyzed"
	StageFeedbackGenerated Stage = "feedback_generated"
)

var stageOrder = map[Stage]int{
	StageCreated:           0,
	StageTranscribed:       1,
	StageClassified:        2,
	StageAnalyzed:          3,
	StageFeedbackGenerated: 4,
}

func (s Stage) Valid() bool {
	_, ok := stageOrder[s]
	return ok
}

// Before reports whether s precedes other in the pipeline.
func (s Stage) Before(other Stage) bool {
	return stageOrder[s] < stageOrder[other]
}

// Role is a project membership role.
type Role string

const (
	RoleDirector Role = "director"
	RoleUser     Role = "user"
)

func (r Role) Valid() bool {
	return r == RoleDirector || r == RoleUser
}
