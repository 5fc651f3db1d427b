package ingress

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"callfeedback/internal/pipeline"
	"callfeedback/internal/types"
)

// ErrBadEnvelope marks deliveries whose shape is wrong. They are answered
// with 400 and never reach the pipeline.
var ErrBadEnvelope = errors.New("bad envelope")

var recordingEvents = map[string]bool{
	"phone.recording_completed": true,
	"recording.completed":       true,
}

// IsRecordingEvent reports whether the event name means a finished recording.
func IsRecordingEvent(name string) bool {
	return recordingEvents[name]
}

type envelope struct {
	Message *struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
}

type eventBody struct {
	Event   string `json:"event"`
	Payload *struct {
		Object *struct {
			Recordings []wireRecording `json:"recordings"`
		} `json:"object"`
	} `json:"payload"`
}

// wireRecording accepts the agent id either flat or under owner.id.
type wireRecording struct {
	types.Recording
	Owner *struct {
		ID string `json:"id"`
	} `json:"owner"`
}

// DecodeEnvelope unwraps the push envelope and its base64 JSON payload.
// Events that are not recording events decode successfully with no
// recordings so the caller can acknowledge and drop them.
func DecodeEnvelope(body []byte) (pipeline.Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return pipeline.Event{}, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if env.Message == nil || strings.TrimSpace(env.Message.Data) == "" {
		return pipeline.Event{}, fmt.Errorf("%w: message.data missing", ErrBadEnvelope)
	}
	raw, err := decodeBase64(env.Message.Data)
	if err != nil {
		return pipeline.Event{}, fmt.Errorf("%w: data is not base64: %v", ErrBadEnvelope, err)
	}

	var ev eventBody
	if err := json.Unmarshal(raw, &ev); err != nil {
		return pipeline.Event{}, fmt.Errorf("%w: payload is not json: %v", ErrBadEnvelope, err)
	}
	if ev.Event == "" {
		return pipeline.Event{}, fmt.Errorf("%w: event name missing", ErrBadEnvelope)
	}
	out := pipeline.Event{Name: ev.Event, MessageID: env.Message.MessageID}
	if !IsRecordingEvent(ev.Event) {
		return out, nil
	}
	if ev.Payload == nil || ev.Payload.Object == nil {
		return pipeline.Event{}, fmt.Errorf("%w: payload.object missing", ErrBadEnvelope)
	}
	for _, wr := range ev.Payload.Object.Recordings {
		rec := wr.Recording
		if rec.OwnerID == "" && wr.Owner != nil {
			rec.OwnerID = wr.Owner.ID
		}
		out.Recordings = append(out.Recordings, rec)
	}
	return out, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
