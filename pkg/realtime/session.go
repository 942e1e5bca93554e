package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/starshield/voicebridge/internal/httpc"
)

const (
	// RealtimeURL is the WebSocket endpoint for realtime conversations.
	RealtimeURL = "wss://api.openai.com/v1/realtime"

	// SessionsURL issues ephemeral session credentials.
	SessionsURL = "https://api.openai.com/v1/realtime/sessions"

	invalidAPIKeyCode = "invalid_api_key"
)

// ErrMissingClientSecret is returned when the sessions endpoint answered
// without a usable credential.
var ErrMissingClientSecret = errors.New("realtime: session response missing client secret")

// Session is an ephemeral realtime credential and the model it is bound to.
type Session struct {
	ClientSecret string
	Model        string
}

// ToolDef describes one function the model may call during a conversation.
type ToolDef struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// DefaultTools returns the functions exposed to the voice agent.
func DefaultTools() []ToolDef {
	return []ToolDef{
		{
			Type:        "function",
			Name:        "search_docs",
			Description: "Query StarShield documents using Azure Cognitive Search.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Search query describing the user's question.",
					},
					"top_k": map[string]any{
						"type":        "integer",
						"description": "Maximum number of documents to return (default 5).",
						"minimum":     1,
						"maximum":     20,
					},
				},
				"required":             []string{"query"},
				"additionalProperties": false,
			},
		},
		{
			Type:        "function",
			Name:        "create_lead",
			Description: "Capture a qualified sales lead for follow-up.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name": map[string]any{
						"type":        "string",
						"description": "Customer name to save with the lead.",
					},
					"phone": map[string]any{
						"type":        "string",
						"description": "Customer phone number in local or E.164 format.",
					},
					"email": map[string]any{
						"type":        "string",
						"description": "Customer email address if provided.",
					},
					"intent": map[string]any{
						"type":        "string",
						"description": "Summary of the customer's request or interest.",
					},
				},
				"required":             []string{"name", "phone", "intent"},
				"additionalProperties": false,
			},
		},
		{
			Type:        "function",
			Name:        "start_outbound_call",
			Description: "Place an outbound phone call to a customer.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"to": map[string]any{
						"type":        "string",
						"description": "Destination phone number in E.164 format.",
					},
				},
				"required":             []string{"to"},
				"additionalProperties": false,
			},
		},
	}
}

// SessionService issues ephemeral realtime sessions over REST.
type SessionService struct {
	apiKey        string
	modelID       string
	voice         string
	promptID      string
	promptVersion string

	// sessionsURL is overridable for tests.
	sessionsURL string
	client      *http.Client
}

// NewSessionService creates a session issuer for the given API key.
func NewSessionService(apiKey, modelID, voice, promptID, promptVersion string) *SessionService {
	return &SessionService{
		apiKey:        apiKey,
		modelID:       modelID,
		voice:         voice,
		promptID:      promptID,
		promptVersion: promptVersion,
		sessionsURL:   SessionsURL,
		client:        httpc.Client,
	}
}

type sessionRequest struct {
	Model      string     `json:"model"`
	Voice      string     `json:"voice"`
	Modalities []string   `json:"modalities"`
	Prompt     *promptRef `json:"prompt,omitempty"`
	Tools      []ToolDef  `json:"tools"`
}

type promptRef struct {
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
}

type sessionResponse struct {
	Model        string `json:"model"`
	ClientSecret struct {
		Value string `json:"value"`
	} `json:"client_secret"`
	Session struct {
		Model        string `json:"model"`
		DefaultModel string `json:"default_model"`
	} `json:"session"`
	Error *APIError `json:"error,omitempty"`
}

// CreateRaw requests an ephemeral session and returns the raw response
// body, which the /session route hands to browser clients untouched.
func (s *SessionService) CreateRaw(ctx context.Context) (json.RawMessage, error) {
	body := sessionRequest{
		Model:      s.modelID,
		Voice:      s.voice,
		Modalities: []string{"audio", "text"},
		Tools:      DefaultTools(),
	}
	if s.promptID != "" {
		body.Prompt = &promptRef{ID: s.promptID, Version: s.promptVersion}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("realtime: encode session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.sessionsURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("realtime: build session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OpenAI-Beta", "realtime=v1")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("realtime: create session: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("realtime: read session response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, sessionError(resp.StatusCode, raw)
	}
	return raw, nil
}

// Create requests an ephemeral session and extracts the credential
// and bound model, falling back to the configured model id.
func (s *SessionService) Create(ctx context.Context) (*Session, error) {
	raw, err := s.CreateRaw(ctx)
	if err != nil {
		return nil, err
	}

	var parsed sessionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("realtime: decode session response: %w", err)
	}
	if parsed.ClientSecret.Value == "" {
		return nil, ErrMissingClientSecret
	}

	model := parsed.Session.Model
	if model == "" {
		model = parsed.Session.DefaultModel
	}
	if model == "" {
		model = parsed.Model
	}
	if model == "" {
		model = s.modelID
	}

	return &Session{ClientSecret: parsed.ClientSecret.Value, Model: model}, nil
}

// sessionError turns a non-200 sessions response into an error without
// echoing the API key problem details verbatim.
func sessionError(status int, body []byte) error {
	var payload struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != nil {
		if payload.Error.Code == invalidAPIKeyCode {
			return fmt.Errorf("realtime: API key rejected (status %d)", status)
		}
	}
	return fmt.Errorf("realtime: failed to create session (status %d)", status)
}

// Dial opens the model WebSocket with the given ephemeral credential.
func Dial(ctx context.Context, clientSecret, model string) (*websocket.Conn, error) {
	endpoint := fmt.Sprintf("%s?model=%s", RealtimeURL, url.QueryEscape(model))

	header := make(http.Header)
	header.Set("Authorization", "Bearer "+clientSecret)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("realtime: failed to connect: %w", err)
	}
	return conn, nil
}
