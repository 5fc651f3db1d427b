// Package notify announces finished decision-maker calls to a project's
// chat webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"callfeedback/internal/logger"
	"callfeedback/internal/types"
)

const (
	userAgent       = "callfeedback/1.0"
	excerptRunes    = 200
	defaultTimeout  = 10 * time.Second
	responseBodyCap = 2048
)

// Summary is everything the chat message needs about one call.
type Summary struct {
	RecordID       int64
	ProjectID      *int64
	ProjectName    string
	WebhookURL     string
	UserName       string
	CustomerNumber string
	Status         types.CallStatus
	Feedback       *string
}

// Eligible reports whether a call should be announced at all.
func Eligible(s Summary) bool {
	return s.Status == types.StatusDecisionMakerReached &&
		s.ProjectID != nil &&
		strings.TrimSpace(s.WebhookURL) != ""
}

type message struct {
	Text string `json:"text"`
}

// Notifier posts call summaries as {"text": ...} to chat webhooks.
type Notifier struct {
	dashboardURL string
	client       *http.Client
}

func New(dashboardURL string, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Notifier{
		dashboardURL: strings.TrimRight(dashboardURL, "/"),
		client:       &http.Client{Timeout: timeout},
	}
}

// NotifyCall sends the summary when it is eligible. Ineligible summaries are
// a no-op.
func (n *Notifier) NotifyCall(ctx context.Context, s Summary) error {
	if n == nil || n.client == nil || !Eligible(s) {
		return nil
	}
	if err := n.send(ctx, s.WebhookURL, message{Text: n.FormatMessage(s)}); err != nil {
		return err
	}
	logger.Component("notify").WithField("record_id", s.RecordID).Info("call notification sent")
	return nil
}

// FormatMessage renders the fixed-order plain text block.
func (n *Notifier) FormatMessage(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\n", orDash(s.ProjectName))
	fmt.Fprintf(&b, "Rep: %s\n", orDash(s.UserName))
	fmt.Fprintf(&b, "Call: %s/calls/%d\n", n.dashboardURL, s.RecordID)
	fmt.Fprintf(&b, "Customer: %s\n", orDash(s.CustomerNumber))
	fmt.Fprintf(&b, "Outcome: %s", s.Status.Label())
	if s.Feedback != nil {
		if text := excerpt(*s.Feedback); text != "" {
			fmt.Fprintf(&b, "\nFeedback: %s", text)
		}
	}
	return b.String()
}

func (n *Notifier) send(ctx context.Context, endpoint string, msg message) error {
	buf, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode chat message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send chat notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyCap))
		return fmt.Errorf("chat webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func excerpt(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= excerptRunes {
		return s
	}
	return string(r[:excerptRunes]) + "..."
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
