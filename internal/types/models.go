package types

import "time"

// Recording is one finished recording as delivered by the phone system.
type Recording struct {
	ID            string `json:"id"`
	CallID        string `json:"call_id"`
	CallLogID     string `json:"call_log_id"`
	CallerNumber  string `json:"caller_number"`
	CalleeNumber  string `json:"callee_number"`
	Direction     string `json:"direction"`
	Duration      int    `json:"duration"`
	DownloadURL   string `json:"download_url"`
	DateTime      string `json:"date_time"`
	FileExtension string `json:"file_extension,omitempty"`
	OwnerID       string `json:"owner_id"`
}

type Segment struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type ItemScore struct {
	Covered   bool `json:"covered"`
	MatchRate int  `json:"match_rate"`
}

// PhaseScores holds 0-100 coverage per script phase.
type PhaseScores struct {
	Opening  int `json:"opening"`
	Hearing  int `json:"hearing"`
	Proposal int `json:"proposal"`
	Closing  int `json:"closing"`
}

type ScriptMatch struct {
	Overall int                  `json:"overall"`
	Phases  PhaseScores          `json:"phases"`
	Items   map[string]ItemScore `json:"items"`
}

// CallRecord is the persisted row for one recording, enriched stage by stage.
type CallRecord struct {
	ID           int64     `json:"id"`
	RecordingID  string    `json:"recording_id"`
	CallID       string    `json:"call_id"`
	CallLogID    string    `json:"call_log_id"`
	CallTime     time.Time `json:"call_time"`
	DurationSec  int       `json:"duration_sec"`
	Direction    string    `json:"direction"`
	CallerNumber string    `json:"caller_number"`
	CalleeNumber string    `json:"callee_number"`
	PhoneUserID  string    `json:"phone_user_id"`
	UserID       *int64    `json:"user_id,omitempty"`
	ProjectID    *int64    `json:"project_id,omitempty"`

	AudioPath      string    `json:"audio_path,omitempty"`
	AudioBytes     int64     `json:"audio_bytes,omitempty"`
	TranscriptPath string    `json:"transcript_path,omitempty"`
	Segments       []Segment `json:"segments,omitempty"`

	Status           CallStatus `json:"status,omitempty"`
	StatusConfidence float64    `json:"status_confidence,omitempty"`
	StatusReason     string     `json:"status_reason,omitempty"`

	ScriptMatch   *ScriptMatch  `json:"script_match,omitempty"`
	CausalPattern CausalPattern `json:"causal_pattern,omitempty"`
	Feedback      *string       `json:"feedback,omitempty"`
	PromptID      *int64        `json:"prompt_id,omitempty"`
	SkipReason    string        `json:"-"`

	Stage     Stage     `json:"stage"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Prompt is one version of a feedback prompt. A nil ProjectID is the
// system-wide default.
type Prompt struct {
	ID        int64      `json:"id"`
	ProjectID *int64     `json:"project_id,omitempty"`
	Type      PromptType `json:"type"`
	Version   int        `json:"version"`
	Content   string     `json:"content"`
	IsActive  bool       `json:"is_active"`
	CreatedBy *int64     `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type HearingItem struct {
	Name         string `json:"name" yaml:"name"`
	Script       string `json:"script" yaml:"script"`
	IsDefault    bool   `json:"is_default" yaml:"is_default"`
	DisplayOrder int    `json:"display_order" yaml:"display_order"`
}

// MaxHearingItems caps the hearing checklist of a talk script.
const MaxHearingItems = 10

type TalkScript struct {
	ID           int64         `json:"id"`
	ProjectID    int64         `json:"project_id"`
	Version      int           `json:"version"`
	Opening      string        `json:"opening"`
	Proposal     string        `json:"proposal"`
	Closing      string        `json:"closing"`
	HearingItems []HearingItem `json:"hearing_items"`
	IsActive     bool          `json:"is_active"`
	CreatedAt    time.Time     `json:"created_at"`
}

type Project struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

type User struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	PhoneUserID string `json:"phone_user_id,omitempty"`
}
