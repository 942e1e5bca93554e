package bridge

import (
	"sync"

	"github.com/starshield/voicebridge/pkg/summary"
)

// utterance is the model response currently playing to the caller. The
// item id and its start on the caller's media clock live and die together:
// both are set when the first audio chunk is forwarded and cleared by
// truncation.
type utterance struct {
	itemID  string
	startTS int64
}

// Session is all state for one active phone call. Fields are guarded by
// mu because the telephony and model read loops both touch them.
type Session struct {
	mu sync.Mutex

	twilio *safeConn
	model  *safeConn // nil until the model socket attaches

	streamSid      string
	callSid        string
	conversationID string

	// connecting prevents concurrent model-attach attempts.
	connecting bool

	// latestMediaTS is the caller-side media clock in milliseconds,
	// non-decreasing for the life of the call.
	latestMediaTS int64
	current       *utterance

	leadID          string
	transcriptParts []summary.Part
	loggedKeys      map[string]struct{}
}

func newSession(conn Conn) *Session {
	return &Session{
		twilio:     newSafeConn(conn),
		loggedKeys: make(map[string]struct{}),
	}
}

// reset clears every mutable field. Called on teardown and before reuse
// is impossible anyway; the zero state keeps late background work inert.
func (s *Session) reset() *safeConn {
	s.mu.Lock()
	defer s.mu.Unlock()

	model := s.model
	s.model = nil
	s.streamSid = ""
	s.callSid = ""
	s.conversationID = ""
	s.connecting = false
	s.latestMediaTS = 0
	s.current = nil
	s.leadID = ""
	s.transcriptParts = nil
	s.loggedKeys = make(map[string]struct{})
	return model
}

// snapshotTranscript copies the transcript and ids needed for the
// end-of-call summary flush.
func (s *Session) snapshotTranscript() (conversationID, leadID string, parts []summary.Part) {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts = make([]summary.Part, len(s.transcriptParts))
	copy(parts, s.transcriptParts)
	return s.conversationID, s.leadID, parts
}
