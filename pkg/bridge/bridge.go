package bridge

import (
	"context"
	"strings"

	"github.com/starshield/voicebridge/internal/log"
	"github.com/starshield/voicebridge/pkg/convlog"
	"github.com/starshield/voicebridge/pkg/crm"
	"github.com/starshield/voicebridge/pkg/realtime"
	"github.com/starshield/voicebridge/pkg/search"
	"github.com/starshield/voicebridge/pkg/summary"
	"github.com/starshield/voicebridge/pkg/twilio"
)

// SessionSource acquires a fresh realtime session when no prefetched one
// is available.
type SessionSource interface {
	Create(ctx context.Context) (*realtime.Session, error)
}

// DialFunc opens the model WebSocket for an ephemeral credential.
type DialFunc func(ctx context.Context, clientSecret, model string) (Conn, error)

// DocSearcher answers the agent's document-lookup tool.
type DocSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]search.Result, error)
}

// CallInitiator places outbound calls for the agent.
type CallInitiator interface {
	InitiateCall(ctx context.Context, to string, opts twilio.CallOptions) (*twilio.Call, error)
}

// Summarizer generates and stores the post-call summary.
type Summarizer interface {
	GenerateAndStore(ctx context.Context, conversationID, leadID string, parts []summary.Part, channel string)
}

// Recorder persists conversation events.
type Recorder = convlog.Recorder

// Options wires the bridge's collaborators. Nil collaborators disable the
// corresponding feature; Dial defaults to the realtime dialer and Leads to
// the local stub backend.
type Options struct {
	Cache  *realtime.SessionCache
	Source SessionSource
	Dial   DialFunc
	Voice  string

	Searcher   DocSearcher
	Leads      crm.LeadCreator
	Calls      CallInitiator
	Recorder   Recorder
	Summarizer Summarizer
}

// Bridge relays one Twilio media stream per call to a realtime session.
type Bridge struct {
	cache  *realtime.SessionCache
	source SessionSource
	dial   DialFunc
	voice  string

	searcher   DocSearcher
	leads      crm.LeadCreator
	calls      CallInitiator
	recorder   Recorder
	summarizer Summarizer
}

// New creates a bridge from the given options.
func New(opts Options) *Bridge {
	dial := opts.Dial
	if dial == nil {
		dial = func(ctx context.Context, clientSecret, model string) (Conn, error) {
			return realtime.Dial(ctx, clientSecret, model)
		}
	}
	leads := opts.Leads
	if leads == nil {
		leads = crm.Stub{}
	}
	return &Bridge{
		cache:      opts.Cache,
		source:     opts.Source,
		dial:       dial,
		voice:      opts.Voice,
		searcher:   opts.Searcher,
		leads:      leads,
		calls:      opts.Calls,
		recorder:   opts.Recorder,
		summarizer: opts.Summarizer,
	}
}

// HandleStream owns one inbound media-stream connection for its whole
// life: it reads every telephony event, dispatches it, and tears the
// session down when the stream ends.
func (b *Bridge) HandleStream(conn Conn) {
	log.Info("twilio media stream connected")
	sess := newSession(conn)

	for {
		data, err := sess.twilio.read()
		if err != nil {
			break
		}
		ev, _ := twilio.ParseStreamEvent(data)
		if ev == nil {
			continue
		}
		if done := b.handleTwilioEvent(sess, ev); done {
			break
		}
	}

	log.Info("twilio media stream closed")
	b.teardown(sess)
	sess.twilio.close()
}

// handleTwilioEvent dispatches one carrier event. It reports true when
// the call is over and the read loop should stop.
func (b *Bridge) handleTwilioEvent(sess *Session, ev *twilio.StreamEvent) bool {
	switch ev.Event {
	case twilio.EventStart:
		b.handleStart(sess, ev.Start)
	case twilio.EventMedia:
		b.handleMedia(sess, ev.Media)
	case twilio.EventStop, twilio.EventClose:
		b.handleStop(sess)
		return true
	}
	return false
}

func (b *Bridge) handleStart(sess *Session, start *twilio.StartFrame) {
	sess.mu.Lock()
	if start != nil {
		sess.streamSid = start.StreamSid
		if start.CallSid != "" {
			sess.callSid = start.CallSid
		}
	}
	if sess.callSid != "" {
		sess.conversationID = sess.callSid
	} else if sess.streamSid != "" {
		sess.conversationID = sess.streamSid
	}
	sess.latestMediaTS = 0
	sess.current = nil
	sess.mu.Unlock()

	b.recordEvent(sess, "system", "Call started", "call_status", map[string]any{"status": "started"})

	go b.connectModel(sess)
}

func (b *Bridge) handleMedia(sess *Session, media *twilio.MediaFrame) {
	if media == nil {
		return
	}

	sess.mu.Lock()
	// The carrier clock never runs backwards; a frame without a usable
	// timestamp decodes to 0 and must not reset it.
	if media.Timestamp > sess.latestMediaTS {
		sess.latestMediaTS = media.Timestamp
	}
	model := sess.model
	sess.mu.Unlock()

	// Audio arriving before the model socket attaches is dropped, not
	// buffered; the greeting window is only a few hundred milliseconds.
	if model == nil || !model.open() {
		return
	}
	if err := model.sendJSON(realtime.NewAudioAppend(media.Payload)); err != nil {
		log.Warn("failed to forward caller audio", "error", err)
	}
}

func (b *Bridge) handleStop(sess *Session) {
	b.recordEvent(sess, "system", "Call ended", "call_status", map[string]any{"status": "ended"})

	conversationID, leadID, parts := sess.snapshotTranscript()
	if len(parts) > 0 && b.summarizer != nil {
		go b.summarizer.GenerateAndStore(context.Background(), conversationID, leadID, parts, "phone")
	}

	b.teardown(sess)
	sess.twilio.close()
}

// connectModel attaches the model socket: a prefetched session when one
// exists for the call, a fresh one otherwise. Any failure ends the call.
func (b *Bridge) connectModel(sess *Session) {
	sess.mu.Lock()
	if sess.connecting || sess.model != nil {
		sess.mu.Unlock()
		return
	}
	sess.connecting = true
	callSid := sess.callSid
	sess.mu.Unlock()

	ctx := context.Background()

	var session *realtime.Session
	if b.cache != nil {
		session = b.cache.Consume(callSid)
	}
	if session == nil {
		created, err := b.source.Create(ctx)
		if err != nil {
			b.failConnect(sess, "failed to start realtime session", err)
			return
		}
		session = created
	}

	conn, err := b.dial(ctx, session.ClientSecret, session.Model)
	if err != nil {
		b.failConnect(sess, "realtime connection failed", err)
		return
	}

	model := newSafeConn(conn)
	sess.mu.Lock()
	sess.model = model
	sess.connecting = false
	sess.mu.Unlock()

	b.configureModel(model)
	go b.modelReadLoop(sess, model)
}

func (b *Bridge) failConnect(sess *Session, msg string, err error) {
	log.Error(msg, "error", err)
	sess.mu.Lock()
	sess.connecting = false
	sess.mu.Unlock()
	sess.twilio.close()
}

// configureModel sends session.update for a phone call: selected voice,
// mu-law audio both ways, transcription, server-side VAD.
func (b *Bridge) configureModel(model *safeConn) {
	if err := model.sendJSON(realtime.NewSessionUpdate(b.voice)); err != nil {
		log.Warn("failed to configure realtime session", "error", err)
	}
}

// modelReadLoop consumes the model socket until it closes. A model-side
// close or error ends the call: the telephony socket is closed too.
func (b *Bridge) modelReadLoop(sess *Session, model *safeConn) {
	for {
		data, err := model.read()
		if err != nil {
			if model.open() {
				log.Warn("realtime socket error", "error", err)
			}
			break
		}
		ev, _ := realtime.ParseServerEvent(data)
		if ev == nil {
			continue
		}
		b.handleModelEvent(sess, ev)
	}

	model.close()
	sess.mu.Lock()
	if sess.model == model {
		sess.model = nil
	}
	sess.mu.Unlock()
	sess.twilio.close()
}

func (b *Bridge) handleModelEvent(sess *Session, ev *realtime.ServerEvent) {
	switch ev.Type {
	case realtime.EventAudioDelta:
		b.forwardAudio(sess, ev)

	case realtime.EventInputTranscriptDone:
		transcript := ev.UserTranscript()
		b.recordEvent(sess, "user", transcript, "user_transcript", map[string]any{"itemId": ev.ItemID})
		b.appendTranscript(sess, "user", transcript)

	case realtime.EventAudioTranscriptDone:
		transcript := ev.Transcript
		if transcript == "" {
			transcript = ev.JoinedOutputText()
		}
		b.recordEvent(sess, "assistant", transcript, "assistant_transcript", map[string]any{"itemId": ev.ItemID})
		b.appendTranscript(sess, "assistant", transcript)

	case realtime.EventOutputTextDone:
		b.recordEvent(sess, "assistant", ev.JoinedOutputText(), "assistant_text", map[string]any{"itemId": ev.ItemID})

	case realtime.EventSpeechStarted:
		b.truncate(sess)

	case realtime.EventOutputItemDone:
		if ev.Item != nil && ev.Item.Type == "function_call" {
			item := *ev.Item
			go b.dispatchFunctionCall(sess, &item)
		}

	case realtime.EventError:
		if ev.Error != nil {
			log.Warn("realtime API error", "code", ev.Error.Code, "message", ev.Error.Message)
		}
	}
}

// forwardAudio relays one synthesized chunk to the caller and marks the
// utterance start on the caller's media clock.
func (b *Bridge) forwardAudio(sess *Session, ev *realtime.ServerEvent) {
	sess.mu.Lock()
	streamSid := sess.streamSid
	if streamSid == "" {
		sess.mu.Unlock()
		return
	}
	if ev.ItemID != "" && (sess.current == nil || sess.current.itemID != ev.ItemID) {
		sess.current = &utterance{itemID: ev.ItemID, startTS: sess.latestMediaTS}
	}
	sess.mu.Unlock()

	if err := sess.twilio.sendJSON(twilio.NewMedia(streamSid, ev.Delta)); err != nil {
		log.Warn("failed to forward model audio", "error", err)
		return
	}
	if err := sess.twilio.sendJSON(twilio.NewMark(streamSid)); err != nil {
		log.Warn("failed to send playback mark", "error", err)
	}
}

// truncate handles barge-in: the caller started speaking while an
// utterance was playing. The model is told how much was actually heard so
// it can discard the tail, and the carrier clears its playback queue.
// No-op when nothing is in flight, so repeated speech-start events are
// harmless.
func (b *Bridge) truncate(sess *Session) {
	sess.mu.Lock()
	cur := sess.current
	if cur == nil {
		sess.mu.Unlock()
		return
	}
	audioEndMs := sess.latestMediaTS - cur.startTS
	if audioEndMs < 0 {
		audioEndMs = 0
	}
	streamSid := sess.streamSid
	model := sess.model
	sess.current = nil
	sess.mu.Unlock()

	if model != nil && model.open() {
		if err := model.sendJSON(realtime.NewItemTruncate(cur.itemID, audioEndMs)); err != nil {
			log.Warn("failed to truncate assistant item", "error", err)
		}
	}
	if streamSid != "" {
		if err := sess.twilio.sendJSON(twilio.NewClear(streamSid)); err != nil {
			log.Warn("failed to clear playback buffer", "error", err)
		}
	}
}

func (b *Bridge) appendTranscript(sess *Session, role, text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}
	sess.mu.Lock()
	sess.transcriptParts = append(sess.transcriptParts, summary.Part{Role: role, Text: trimmed})
	sess.mu.Unlock()
}

// teardown clears the session and closes the model socket if attached.
func (b *Bridge) teardown(sess *Session) {
	if model := sess.reset(); model != nil {
		model.close()
	}
}
