package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callfeedback/internal/notify"
	"callfeedback/internal/types"
)

func summary(url string) notify.Summary {
	pid := int64(3)
	fb := "Good discovery.\nAsk for the meeting earlier."
	return notify.Summary{
		RecordID:       42,
		ProjectID:      &pid,
		ProjectName:    "Alpha",
		WebhookURL:     url,
		UserName:       "Sato",
		CustomerNumber: "+81311112222",
		Status:         types.StatusDecisionMakerReached,
		Feedback:       &fb,
	}
}

func TestFormatMessageFieldOrder(t *testing.T) {
	n := notify.New("https://dash.example/", time.Second)
	msg := n.FormatMessage(summary("https://chat.example"))

	lines := strings.Split(msg, "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "Project: Alpha", lines[0])
	assert.Equal(t, "Rep: Sato", lines[1])
	assert.Equal(t, "Call: https://dash.example/calls/42", lines[2])
	assert.Equal(t, "Customer: +81311112222", lines[3])
	assert.Equal(t, "Outcome: Reached decision-maker", lines[4])
	assert.Equal(t, "Feedback: Good discovery. Ask for the meeting earlier.", lines[5])
}

func TestFormatMessageTruncatesFeedback(t *testing.T) {
	s := summary("")
	long := strings.Repeat("a", 500)
	s.Feedback = &long
	msg := notify.New("https://dash.example", time.Second).FormatMessage(s)
	assert.Contains(t, msg, "Feedback: "+strings.Repeat("a", 200)+"...")

	s.Feedback = nil
	msg = notify.New("https://dash.example", time.Second).FormatMessage(s)
	assert.NotContains(t, msg, "Feedback:")
}

func TestNotifyCallPostsText(t *testing.T) {
	var got map[string]string
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := notify.New("https://dash.example", time.Second)
	require.NoError(t, n.NotifyCall(context.Background(), summary(srv.URL)))
	assert.Equal(t, 1, hits)
	assert.True(t, strings.HasPrefix(got["text"], "Project: Alpha"))
}

func TestNotifyCallSkipsIneligible(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()
	n := notify.New("https://dash.example", time.Second)

	gk := summary(srv.URL)
	gk.Status = types.StatusGatekeeperOnly
	require.NoError(t, n.NotifyCall(context.Background(), gk))

	noProject := summary(srv.URL)
	noProject.ProjectID = nil
	require.NoError(t, n.NotifyCall(context.Background(), noProject))

	noHook := summary("  ")
	require.NoError(t, n.NotifyCall(context.Background(), noHook))

	assert.Zero(t, hits)
}

func TestNotifyCallReportsWebhookFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := notify.New("https://dash.example", time.Second).NotifyCall(context.Background(), summary(srv.URL))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestNotifyCallTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	err := notify.New("https://dash.example", 50*time.Millisecond).NotifyCall(context.Background(), summary(srv.URL))
	assert.Error(t, err)
}
