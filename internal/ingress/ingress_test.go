package ingress_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callfeedback/internal/ingress"
	"callfeedback/internal/pipeline"
	"callfeedback/internal/store"
	"callfeedback/internal/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []pipeline.Event
	ctxErr error
	panics bool
}

func (d *recordingDispatcher) ProcessEvent(ctx context.Context, ev pipeline.Event) (int, int) {
	d.mu.Lock()
	d.events = append(d.events, ev)
	d.ctxErr = ctx.Err()
	d.mu.Unlock()
	if d.panics {
		panic("boom")
	}
	return len(ev.Recordings), 0
}

func envelopeBody(t *testing.T, event any) []byte {
	t.Helper()
	inner, err := json.Marshal(event)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]any{
		"message": map[string]any{
			"data":      base64.StdEncoding.EncodeToString(inner),
			"messageId": "m-1",
		},
	})
	require.NoError(t, err)
	return body
}

func recordingEvent(name string) map[string]any {
	return map[string]any{
		"event": name,
		"payload": map[string]any{
			"object": map[string]any{
				"recordings": []map[string]any{{
					"id":            "rec-1",
					"call_id":       "c1",
					"download_url":  "https://phone.example/rec-1",
					"duration":      95,
					"callee_number": "+81311112222",
					"owner":         map[string]any{"id": "agent-1"},
				}},
			},
		},
	}
}

func post(t *testing.T, r http.Handler, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestDecodeEnvelope(t *testing.T) {
	for _, name := range []string{"phone.recording_completed", "recording.completed"} {
		ev, err := ingress.DecodeEnvelope(envelopeBody(t, recordingEvent(name)))
		require.NoError(t, err, name)
		assert.Equal(t, name, ev.Name)
		assert.Equal(t, "m-1", ev.MessageID)
		require.Len(t, ev.Recordings, 1)
		assert.Equal(t, "rec-1", ev.Recordings[0].ID)
		assert.Equal(t, "agent-1", ev.Recordings[0].OwnerID)
		assert.Equal(t, 95, ev.Recordings[0].Duration)
	}
}

func TestDecodeEnvelopeRejectsBadShapes(t *testing.T) {
	cases := map[string][]byte{
		"not json":        []byte("{"),
		"no message":      []byte(`{}`),
		"empty data":      []byte(`{"message":{"data":""}}`),
		"not base64":      []byte(`{"message":{"data":"***"}}`),
		"inner not json":  []byte(`{"message":{"data":"` + base64.StdEncoding.EncodeToString([]byte("nope")) + `"}}`),
		"missing payload": envelopeBody(t, map[string]any{"event": "recording.completed"}),
		"missing event":   envelopeBody(t, map[string]any{"payload": map[string]any{}}),
	}
	for name, body := range cases {
		_, err := ingress.DecodeEnvelope(body)
		assert.ErrorIs(t, err, ingress.ErrBadEnvelope, name)
	}
}

func TestWebhookDispatchesDetached(t *testing.T) {
	d := &recordingDispatcher{}
	srv := ingress.New(ingress.Options{Dispatcher: d, PipelineTimeout: time.Minute})

	w := post(t, srv.Router(), envelopeBody(t, recordingEvent("phone.recording_completed")))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"received"}`, w.Body.String())

	srv.Wait()
	d.mu.Lock()
	defer d.mu.Unlock()
	require.Len(t, d.events, 1)
	assert.Len(t, d.events[0].Recordings, 1)
	assert.NoError(t, d.ctxErr)
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	d := &recordingDispatcher{}
	srv := ingress.New(ingress.Options{Dispatcher: d})

	w := post(t, srv.Router(), envelopeBody(t, map[string]any{"event": "phone.callee_answered"}))
	assert.Equal(t, http.StatusOK, w.Code)
	srv.Wait()
	assert.Empty(t, d.events)
}

func TestWebhookRejectsBadEnvelope(t *testing.T) {
	d := &recordingDispatcher{}
	srv := ingress.New(ingress.Options{Dispatcher: d})
	w := post(t, srv.Router(), []byte(`{"message":{}}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, d.events)
}

func TestWebhookSurvivesPipelinePanic(t *testing.T) {
	d := &recordingDispatcher{panics: true}
	srv := ingress.New(ingress.Options{Dispatcher: d})
	w := post(t, srv.Router(), envelopeBody(t, recordingEvent("recording.completed")))
	assert.Equal(t, http.StatusOK, w.Code)
	srv.Wait()
}

func TestHealthz(t *testing.T) {
	srv := ingress.New(ingress.Options{})
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

type fakeBlobs struct{}

func (fakeBlobs) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://blobs.example/" + key + "?sig=1", nil
}

func (fakeBlobs) Download(_ context.Context, key string) ([]byte, error) {
	return []byte("transcript of " + key), nil
}

type adminFixture struct {
	router   http.Handler
	store    *store.Store
	project  types.Project
	director types.User
	rep      types.User
	outsider types.User
	callID   int64
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	f := &adminFixture{store: s}
	f.project, err = s.CreateProject(ctx, "Alpha", "")
	require.NoError(t, err)
	f.director, err = s.CreateUser(ctx, "Director", "")
	require.NoError(t, err)
	f.rep, err = s.CreateUser(ctx, "Rep", "agent-1")
	require.NoError(t, err)
	f.outsider, err = s.CreateUser(ctx, "Outsider", "")
	require.NoError(t, err)
	require.NoError(t, s.AddMember(ctx, f.project.ID, f.director.ID, types.RoleDirector))
	require.NoError(t, s.AddMember(ctx, f.project.ID, f.rep.ID, types.RoleUser))

	f.callID, err = s.UpsertCall(ctx, types.CallRecord{
		RecordingID: "rec-1", CallID: "c1", DurationSec: 120,
		UserID: &f.rep.ID, ProjectID: &f.project.ID, AudioPath: "audio/c1.mp3",
	})
	require.NoError(t, err)
	require.NoError(t, s.MarkTranscribed(ctx, f.callID, "transcript/c1.txt", nil))
	require.NoError(t, s.MarkClassified(ctx, f.callID, types.StatusDecisionMakerReached, 0.8, "owner"))

	f.router = ingress.New(ingress.Options{Admin: s, Blobs: fakeBlobs{}}).Router()
	return f
}

func (f *adminFixture) do(t *testing.T, method, path string, user int64, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(user, 10))
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestAdminRequiresUser(t *testing.T) {
	f := newAdminFixture(t)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/calls/1", 0, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/calls/1", 9999, nil).Code)
}

func TestGetCallAccess(t *testing.T) {
	f := newAdminFixture(t)
	path := "/calls/" + strconv.FormatInt(f.callID, 10)

	w := f.do(t, http.MethodGet, path, f.rep.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Call       types.CallRecord `json:"call"`
		AudioURL   string           `json:"audio_url"`
		Transcript string           `json:"transcript"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, types.StatusDecisionMakerReached, resp.Call.Status)
	assert.Equal(t, "https://blobs.example/audio/c1.mp3?sig=1", resp.AudioURL)
	assert.Equal(t, "transcript of transcript/c1.txt", resp.Transcript)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, path, f.director.ID, nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, path, f.outsider.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/calls/9999", f.rep.ID, nil).Code)
}

func TestPromptRoutes(t *testing.T) {
	f := newAdminFixture(t)
	path := "/projects/" + strconv.FormatInt(f.project.ID, 10) + "/prompts/primary_outcome"

	w := f.do(t, http.MethodPut, path, f.rep.ID, map[string]string{"content": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPut, path, f.director.ID, map[string]string{"content": "v1"})
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodPut, path, f.director.ID, map[string]string{"content": "v2"})
	require.Equal(t, http.StatusOK, w.Code)
	var saved types.Prompt
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &saved))
	assert.Equal(t, 2, saved.Version)
	require.NotNil(t, saved.CreatedBy)
	assert.Equal(t, f.director.ID, *saved.CreatedBy)

	w = f.do(t, http.MethodGet, path, f.rep.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Active   *types.Prompt  `json:"active"`
		Versions []types.Prompt `json:"versions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.NotNil(t, got.Active)
	assert.Equal(t, "v2", got.Active.Content)
	assert.Len(t, got.Versions, 2)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, path, f.director.ID, map[string]string{"content": " "}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/projects/1/prompts/other", f.director.ID, nil).Code)
}

func TestDefaultPromptNeedsDirector(t *testing.T) {
	f := newAdminFixture(t)
	path := "/projects/default/prompts/gatekeeper_outcome"

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPut, path, f.outsider.ID, map[string]string{"content": "x"}).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, path, f.director.ID, map[string]string{"content": "default"}).Code)

	p, err := f.store.ResolvePrompt(context.Background(), &f.project.ID, types.PromptGatekeeperOutcome)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Nil(t, p.ProjectID)
	assert.Equal(t, "default", p.Content)
}

func TestTalkScriptAndSummaryRoutes(t *testing.T) {
	f := newAdminFixture(t)
	base := "/projects/" + strconv.FormatInt(f.project.ID, 10)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, base+"/talk-script", f.rep.ID, nil).Code)

	body := map[string]any{
		"opening":  "hello",
		"proposal": "offer",
		"closing":  "meeting",
		"hearing_items": []map[string]any{
			{"name": "budget", "display_order": 1},
		},
	}
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPut, base+"/talk-script", f.rep.ID, body).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, base+"/talk-script", f.director.ID, body).Code)

	w := f.do(t, http.MethodGet, base+"/talk-script", f.rep.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var script types.TalkScript
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &script))
	assert.Equal(t, "hello", script.Opening)
	require.Len(t, script.HearingItems, 1)

	w = f.do(t, http.MethodGet, base+"/summary", f.rep.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sum struct {
		Summary struct {
			TotalCalls int `json:"total_calls"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.Equal(t, 1, sum.Summary.TotalCalls)

	w = f.do(t, http.MethodGet, base+"/export", f.director.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "project-")
	assert.NotZero(t, w.Body.Len())
}

func TestPutTalkScriptRejectsInvalidItems(t *testing.T) {
	f := newAdminFixture(t)
	path := "/projects/" + strconv.FormatInt(f.project.ID, 10) + "/talk-script"

	for name, items := range map[string][]map[string]any{
		"empty name": {{"name": " ", "display_order": 1}},
		"duplicate":  {{"name": "budget", "display_order": 1}, {"name": "budget", "display_order": 2}},
	} {
		w := f.do(t, http.MethodPut, path, f.director.ID, map[string]any{"opening": "hello", "hearing_items": items})
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
		assert.Contains(t, w.Body.String(), "invalid input", name)
	}

	script, err := f.store.ActiveTalkScript(context.Background(), f.project.ID)
	require.NoError(t, err)
	assert.Nil(t, script)
}
