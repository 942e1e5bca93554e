// Package twilio covers the carrier side of the bridge: the media-stream
// wire events, TwiML responses for inbound calls, and the REST client used
// to place outbound calls.
package twilio

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Stream event names on the media-stream socket.
const (
	EventStart = "start"
	EventMedia = "media"
	EventStop  = "stop"
	EventClose = "close"
	EventMark  = "mark"
	EventClear = "clear"
)

// StreamEvent is the envelope for events arriving on the media-stream
// socket. Twilio sends one JSON object per message.
type StreamEvent struct {
	Event string      `json:"event"`
	Start *StartFrame `json:"start,omitempty"`
	Media *MediaFrame `json:"media,omitempty"`
}

// StartFrame identifies a freshly started media stream.
type StartFrame struct {
	StreamSid string `json:"streamSid"`
	CallSid   string `json:"callSid"`
}

// MediaFrame carries one chunk of base64 mu-law caller audio. Timestamp is
// the carrier-side playback clock in milliseconds.
type MediaFrame struct {
	Timestamp int64  `json:"timestamp"`
	Payload   string `json:"payload"`
}

// UnmarshalJSON tolerates Twilio's string-typed numerics: live media
// streams send timestamp (like sequenceNumber and chunk) as "160", not
// 160. Missing or malformed timestamps decode to 0.
func (m *MediaFrame) UnmarshalJSON(data []byte) error {
	var raw struct {
		Timestamp json.RawMessage `json:"timestamp"`
		Payload   string          `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Payload = raw.Payload
	m.Timestamp = looseInt64(raw.Timestamp)
	return nil
}

// looseInt64 parses a JSON value that may be a number or a numeric
// string. Anything else yields 0.
func looseInt64(raw json.RawMessage) int64 {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ParseStreamEvent decodes one media-stream message. A nil event with nil
// error means the payload was not valid JSON and should be dropped.
func ParseStreamEvent(data []byte) (*StreamEvent, error) {
	var ev StreamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, nil
	}
	return &ev, nil
}

// OutboundMedia is a synthesized-audio chunk sent back to the caller.
type OutboundMedia struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid"`
	Media     MediaPayload `json:"media"`
}

// MediaPayload wraps the base64 audio for an outbound media event.
type MediaPayload struct {
	Payload string `json:"payload"`
}

// NewMedia builds an outbound media event for the stream.
func NewMedia(streamSid, payload string) OutboundMedia {
	return OutboundMedia{
		Event:     EventMedia,
		StreamSid: streamSid,
		Media:     MediaPayload{Payload: payload},
	}
}

// StreamControl is a mark or clear instruction for the stream.
type StreamControl struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
}

// NewMark builds a playback-boundary marker for the stream.
func NewMark(streamSid string) StreamControl {
	return StreamControl{Event: EventMark, StreamSid: streamSid}
}

// NewClear builds an instruction to discard queued playback audio.
func NewClear(streamSid string) StreamControl {
	return StreamControl{Event: EventClear, StreamSid: streamSid}
}
