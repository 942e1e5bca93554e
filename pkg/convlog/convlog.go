// Package convlog records conversation events (transcripts, lifecycle
// milestones, summaries) to an external store. Recording is best-effort:
// callers log failures and move on.
package convlog

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// maxTextLen clamps stored text so a runaway transcript cannot blow up a
// document write.
const maxTextLen = 4000

// Event is one conversation event to persist.
type Event struct {
	ConversationID string
	Channel        string
	Role           string
	Text           string
	Kind           string
	Metadata       map[string]any
	// Timestamp is the client-side event time, when known.
	Timestamp time.Time
}

// Recorder persists conversation events.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Normalize fills defaults and clamps the text, returning the document id
// the event should land under.
func Normalize(ev *Event) string {
	if ev.Channel == "" {
		ev.Channel = "web"
	}
	if ev.Role == "" {
		ev.Role = "system"
	}
	if ev.Kind == "" {
		ev.Kind = "message"
	}
	ev.Text = SafeText(ev.Text)
	if ev.Metadata == nil {
		ev.Metadata = map[string]any{}
	}

	docID := SafeText(ev.ConversationID)
	if docID == "" {
		docID = fmt.Sprintf("session-%d", time.Now().UnixMilli())
	}
	return docID
}

// SafeText trims and clamps user-provided text.
func SafeText(s string) string {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) > maxTextLen {
		return trimmed[:maxTextLen]
	}
	return trimmed
}
