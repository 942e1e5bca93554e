package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/starshield/voicebridge/internal/log"
	"github.com/starshield/voicebridge/pkg/convlog"
)

// recordEvent offers a transcript or lifecycle event to the recorder.
// Events with identical (role, kind, trimmed text) are sent once per
// session, because the model can emit the same completion event more than
// once; empty text is never deduplicated. The write happens in a detached
// goroutine and its failure only gets logged.
func (b *Bridge) recordEvent(sess *Session, role, text, kind string, metadata map[string]any) {
	if b.recorder == nil {
		return
	}
	if role == "" {
		role = "unknown"
	}
	if kind == "" {
		kind = "event"
	}
	trimmed := strings.TrimSpace(text)

	sess.mu.Lock()
	conversationID := sess.conversationID
	if conversationID == "" {
		conversationID = sess.callSid
	}
	if conversationID == "" {
		conversationID = sess.streamSid
	}
	if conversationID == "" {
		sess.mu.Unlock()
		return
	}

	if trimmed != "" {
		key := fmt.Sprintf("%s|%s|%s", role, kind, trimmed)
		if _, seen := sess.loggedKeys[key]; seen {
			sess.mu.Unlock()
			return
		}
		sess.loggedKeys[key] = struct{}{}
	}
	callSid := sess.callSid
	streamSid := sess.streamSid
	sess.mu.Unlock()

	md := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		md[k] = v
	}
	md["callSid"] = callSid
	md["streamSid"] = streamSid

	go func() {
		err := b.recorder.Record(context.Background(), convlog.Event{
			ConversationID: conversationID,
			Channel:        "phone",
			Role:           role,
			Text:           trimmed,
			Kind:           kind,
			Metadata:       md,
		})
		if err != nil {
			log.Warn("conversation log write failed", "conversation_id", conversationID, "error", err)
		}
	}()
}
