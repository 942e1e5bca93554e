package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starshield/voicebridge/pkg/convlog"
	"github.com/starshield/voicebridge/pkg/crm"
	"github.com/starshield/voicebridge/pkg/realtime"
	"github.com/starshield/voicebridge/pkg/search"
)

type stubSearcher struct {
	results []search.Result
	err     error

	gotQuery string
	gotTopK  int
}

func (s *stubSearcher) Search(ctx context.Context, query string, topK int) ([]search.Result, error) {
	s.gotQuery = query
	s.gotTopK = topK
	return s.results, s.err
}

type stubRecorder struct {
	mu     sync.Mutex
	events []convlog.Event
	err    error
}

func (r *stubRecorder) Record(ctx context.Context, ev convlog.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	return decoded
}

func TestHandleHealth(t *testing.T) {
	server := NewServer(Options{})
	resp, err := server.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decodeBody(t, resp)["ok"])
}

func TestHandleSearchDocs(t *testing.T) {
	searcher := &stubSearcher{results: []search.Result{{Title: "Doc", Snippet: "text"}}}
	server := NewServer(Options{Searcher: searcher})

	resp, err := server.App().Test(jsonRequest(http.MethodPost, "/tool/search_docs", `{"query":"pricing","top_k":2}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pricing", searcher.gotQuery)
	assert.Equal(t, 2, searcher.gotTopK)

	body := decodeBody(t, resp)
	require.Len(t, body["results"], 1)
}

func TestHandleSearchDocsValidation(t *testing.T) {
	server := NewServer(Options{Searcher: &stubSearcher{}})

	resp, err := server.App().Test(jsonRequest(http.MethodPost, "/tool/search_docs", `{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleSearchDocsNotConfigured(t *testing.T) {
	server := NewServer(Options{})

	resp, err := server.App().Test(jsonRequest(http.MethodPost, "/tool/search_docs", `{"query":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestHandleCreateLead(t *testing.T) {
	server := NewServer(Options{Leads: crm.Stub{}})

	resp, err := server.App().Test(jsonRequest(http.MethodPost, "/tool/create_lead",
		`{"name":"Ada Lovelace","phone":"+15550100","intent":"bulk order"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, true, body["ok"])
	assert.NotEmpty(t, body["lead_id"])
}

func TestHandleCreateLeadValidation(t *testing.T) {
	server := NewServer(Options{Leads: crm.Stub{}})

	resp, err := server.App().Test(jsonRequest(http.MethodPost, "/tool/create_lead", `{"name":"Ada"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleToolByNameUnknown(t *testing.T) {
	server := NewServer(Options{})

	resp, err := server.App().Test(jsonRequest(http.MethodPost, "/tool/teleport", `{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleLogEvent(t *testing.T) {
	recorder := &stubRecorder{}
	server := NewServer(Options{Recorder: recorder})

	resp, err := server.App().Test(jsonRequest(http.MethodPost, "/events/log",
		`{"sessionId":"web-1","role":"user","message":"hello","timestamp":"2025-06-01T12:00:00Z"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, recorder.events, 1)
	ev := recorder.events[0]
	assert.Equal(t, "web-1", ev.ConversationID)
	assert.Equal(t, "user", ev.Role)
	assert.Equal(t, "hello", ev.Text)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), ev.Timestamp)
}

func TestHandleLogEventMissingID(t *testing.T) {
	server := NewServer(Options{Recorder: &stubRecorder{}})

	resp, err := server.App().Test(jsonRequest(http.MethodPost, "/events/log", `{"text":"orphan"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleLogEventNoRecorder(t *testing.T) {
	server := NewServer(Options{})

	resp, err := server.App().Test(jsonRequest(http.MethodPost, "/events/log", `{"sessionId":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHandleLogEventRecorderFailure(t *testing.T) {
	server := NewServer(Options{Recorder: &stubRecorder{err: errors.New("store down")}})

	resp, err := server.App().Test(jsonRequest(http.MethodPost, "/events/log", `{"sessionId":"x","text":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHandleVoice(t *testing.T) {
	created := make(chan struct{}, 1)
	cache := realtime.NewSessionCache(func(ctx context.Context) (*realtime.Session, error) {
		created <- struct{}{}
		return &realtime.Session{ClientSecret: "ek"}, nil
	})
	server := NewServer(Options{
		TwilioEnabled: true,
		Cache:         cache,
		StreamURL:     "wss://voice.example.com/twilio/stream",
	})

	req := httptest.NewRequest(http.MethodPost, "/twilio/voice", strings.NewReader("CallSid=CA123"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := server.App().Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/xml")

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `url="wss://voice.example.com/twilio/stream"`)

	// The webhook warms the session cache for the incoming call.
	select {
	case <-created:
	case <-time.After(2 * time.Second):
		t.Fatal("prefetch not triggered")
	}
}

func TestHandleVoiceDerivedStreamURL(t *testing.T) {
	server := NewServer(Options{
		TwilioEnabled: true,
		Cache:         realtime.NewSessionCache(nil),
	})

	req := httptest.NewRequest(http.MethodPost, "http://voice.example.com/twilio/voice", nil)
	resp, err := server.App().Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "ws://voice.example.com/twilio/stream")
}

func TestHandleVoiceNotConfigured(t *testing.T) {
	server := NewServer(Options{})

	resp, err := server.App().Test(httptest.NewRequest(http.MethodPost, "/twilio/voice", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestHandleVoiceCompleted(t *testing.T) {
	cache := realtime.NewSessionCache(func(ctx context.Context) (*realtime.Session, error) {
		return &realtime.Session{ClientSecret: "ek"}, nil
	})
	cache.Prefetch(context.Background(), "CA123")
	server := NewServer(Options{TwilioEnabled: true, Cache: cache})

	req := httptest.NewRequest(http.MethodPost, "/twilio/voice/completed", strings.NewReader("CallSid=CA123"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := server.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Nil(t, cache.Consume("CA123"), "prefetched session not dropped")
}
