// Package realtime provides the client side of OpenAI's Realtime API:
// ephemeral session issuance, the WebSocket dial, the wire events the
// bridge exchanges with the model, and a short-lived prefetch cache.
package realtime

import (
	"encoding/json"
	"strings"
)

// Server event types consumed by the bridge.
const (
	EventSessionCreated      = "session.created"
	EventAudioDelta          = "response.audio.delta"
	EventInputTranscriptDone = "conversation.item.input_audio_transcription.completed"
	EventAudioTranscriptDone = "response.audio_transcript.done"
	EventOutputTextDone      = "response.output_text.done"
	EventSpeechStarted       = "input_audio_buffer.speech_started"
	EventOutputItemDone      = "response.output_item.done"
	EventError               = "error"
)

// ServerEvent is the envelope for events arriving on the model socket.
// Only the fields the bridge consumes are decoded; everything else is
// opaque and ignored.
type ServerEvent struct {
	Type          string          `json:"type"`
	ItemID        string          `json:"item_id,omitempty"`
	Delta         string          `json:"delta,omitempty"`
	Transcript    string          `json:"transcript,omitempty"`
	Transcription string          `json:"transcription,omitempty"`
	OutputText    json.RawMessage `json:"output_text,omitempty"`
	Item          *OutputItem     `json:"item,omitempty"`
	Error         *APIError       `json:"error,omitempty"`
}

// OutputItem is a completed response item. Function-call items carry the
// tool name, call id and the raw argument JSON.
type OutputItem struct {
	Type      string `json:"type"`
	Name      string `json:"name,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// APIError is the error payload the Realtime API attaches to error events.
type APIError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ParseServerEvent decodes one model-socket message. A nil event with nil
// error means the payload was not valid JSON and should be dropped.
func ParseServerEvent(data []byte) (*ServerEvent, error) {
	var ev ServerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, nil
	}
	return &ev, nil
}

// JoinedOutputText flattens the output_text field, which the API emits
// either as a string or as an array of fragments.
func (e *ServerEvent) JoinedOutputText() string {
	if len(e.OutputText) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.OutputText, &s); err == nil {
		return s
	}
	var parts []string
	if err := json.Unmarshal(e.OutputText, &parts); err == nil {
		return strings.Join(parts, "")
	}
	return ""
}

// UserTranscript returns the caller-side transcript, tolerating both field
// names the API has used for it.
func (e *ServerEvent) UserTranscript() string {
	if e.Transcript != "" {
		return e.Transcript
	}
	return e.Transcription
}

// Client events sent to the model socket.

// SessionUpdate configures voice, audio formats, transcription and turn
// detection for a freshly opened model socket.
type SessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

// SessionConfig is the session.update payload.
type SessionConfig struct {
	Voice                   string              `json:"voice"`
	Modalities              []string            `json:"modalities"`
	InputAudioTranscription TranscriptionConfig `json:"input_audio_transcription"`
	InputAudioFormat        string              `json:"input_audio_format"`
	OutputAudioFormat       string              `json:"output_audio_format"`
	TurnDetection           TurnDetection       `json:"turn_detection"`
}

// TranscriptionConfig names the transcription model for caller audio.
type TranscriptionConfig struct {
	Model string `json:"model"`
}

// TurnDetection selects the voice-activity strategy.
type TurnDetection struct {
	Type string `json:"type"`
}

// NewSessionUpdate builds the session.update event for a phone call:
// mu-law in and out, whisper transcription, server-side VAD.
func NewSessionUpdate(voice string) SessionUpdate {
	if voice == "" {
		voice = "sage"
	}
	return SessionUpdate{
		Type: "session.update",
		Session: SessionConfig{
			Voice:                   voice,
			Modalities:              []string{"text", "audio"},
			InputAudioTranscription: TranscriptionConfig{Model: "whisper-1"},
			InputAudioFormat:        "g711_ulaw",
			OutputAudioFormat:       "g711_ulaw",
			TurnDetection:           TurnDetection{Type: "server_vad"},
		},
	}
}

// AudioAppend streams one base64 audio payload into the input buffer.
type AudioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// NewAudioAppend wraps a base64 mu-law payload for the input buffer.
func NewAudioAppend(payload string) AudioAppend {
	return AudioAppend{Type: "input_audio_buffer.append", Audio: payload}
}

// ItemTruncate tells the model how much of an utterance the caller heard.
type ItemTruncate struct {
	Type         string `json:"type"`
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMs   int64  `json:"audio_end_ms"`
}

// NewItemTruncate builds a conversation.item.truncate for the given item.
func NewItemTruncate(itemID string, audioEndMs int64) ItemTruncate {
	return ItemTruncate{
		Type:       "conversation.item.truncate",
		ItemID:     itemID,
		AudioEndMs: audioEndMs,
	}
}

// FunctionOutput returns a tool result to the model.
type FunctionOutput struct {
	Type string             `json:"type"`
	Item FunctionOutputItem `json:"item"`
}

// FunctionOutputItem carries the serialized result for one call id.
type FunctionOutputItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

// NewFunctionOutput builds a conversation.item.create carrying a
// function_call_output. The output is serialized JSON.
func NewFunctionOutput(callID string, output any) (FunctionOutput, error) {
	raw, err := json.Marshal(output)
	if err != nil {
		return FunctionOutput{}, err
	}
	return FunctionOutput{
		Type: "conversation.item.create",
		Item: FunctionOutputItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: string(raw),
		},
	}, nil
}

// ResponseCreate asks the model to resume generating a reply.
type ResponseCreate struct {
	Type string `json:"type"`
}

// NewResponseCreate builds a response.create event.
func NewResponseCreate() ResponseCreate {
	return ResponseCreate{Type: "response.create"}
}
