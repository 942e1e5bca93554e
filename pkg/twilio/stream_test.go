package twilio

import (
	"encoding/json"
	"testing"
)

func TestParseStreamEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantNil bool
		check   func(t *testing.T, ev *StreamEvent)
	}{
		{
			name:    "start frame",
			payload: `{"event":"start","start":{"streamSid":"MZ123","callSid":"CA123"}}`,
			check: func(t *testing.T, ev *StreamEvent) {
				if ev.Event != EventStart {
					t.Errorf("event = %q", ev.Event)
				}
				if ev.Start == nil || ev.Start.StreamSid != "MZ123" || ev.Start.CallSid != "CA123" {
					t.Errorf("start = %+v", ev.Start)
				}
			},
		},
		{
			name:    "media frame",
			payload: `{"event":"media","media":{"timestamp":1480,"payload":"AAAA"}}`,
			check: func(t *testing.T, ev *StreamEvent) {
				if ev.Media == nil || ev.Media.Timestamp != 1480 || ev.Media.Payload != "AAAA" {
					t.Errorf("media = %+v", ev.Media)
				}
			},
		},
		{
			// Live streams send the numerics as strings.
			name:    "media frame with string timestamp",
			payload: `{"event":"media","sequenceNumber":"4","media":{"track":"inbound","chunk":"2","timestamp":"160","payload":"AAAA"}}`,
			check: func(t *testing.T, ev *StreamEvent) {
				if ev.Media == nil || ev.Media.Timestamp != 160 || ev.Media.Payload != "AAAA" {
					t.Errorf("media = %+v", ev.Media)
				}
			},
		},
		{
			name:    "media frame without timestamp",
			payload: `{"event":"media","media":{"payload":"AAAA"}}`,
			check: func(t *testing.T, ev *StreamEvent) {
				if ev.Media == nil || ev.Media.Timestamp != 0 || ev.Media.Payload != "AAAA" {
					t.Errorf("media = %+v", ev.Media)
				}
			},
		},
		{
			name:    "media frame with malformed timestamp",
			payload: `{"event":"media","media":{"timestamp":"soon","payload":"AAAA"}}`,
			check: func(t *testing.T, ev *StreamEvent) {
				if ev.Media == nil || ev.Media.Timestamp != 0 || ev.Media.Payload != "AAAA" {
					t.Errorf("media = %+v", ev.Media)
				}
			},
		},
		{
			name:    "stop frame",
			payload: `{"event":"stop"}`,
			check: func(t *testing.T, ev *StreamEvent) {
				if ev.Event != EventStop {
					t.Errorf("event = %q", ev.Event)
				}
			},
		},
		{
			name:    "garbage dropped",
			payload: `not json at all`,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseStreamEvent([]byte(tt.payload))
			if err != nil {
				t.Fatalf("ParseStreamEvent() error = %v", err)
			}
			if (ev == nil) != tt.wantNil {
				t.Fatalf("nil = %v, want %v", ev == nil, tt.wantNil)
			}
			if tt.check != nil {
				tt.check(t, ev)
			}
		})
	}
}

func TestOutboundEvents(t *testing.T) {
	media, err := json.Marshal(NewMedia("MZ123", "BBBB"))
	if err != nil {
		t.Fatalf("marshal media: %v", err)
	}
	want := `{"event":"media","streamSid":"MZ123","media":{"payload":"BBBB"}}`
	if string(media) != want {
		t.Errorf("media = %s, want %s", media, want)
	}

	mark, _ := json.Marshal(NewMark("MZ123"))
	if string(mark) != `{"event":"mark","streamSid":"MZ123"}` {
		t.Errorf("mark = %s", mark)
	}

	clear, _ := json.Marshal(NewClear("MZ123"))
	if string(clear) != `{"event":"clear","streamSid":"MZ123"}` {
		t.Errorf("clear = %s", clear)
	}
}
