// Package summary generates structured post-call summaries from a call
// transcript and stores them with the CRM lead and the conversation log.
package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"

	"github.com/starshield/voicebridge/internal/httpc"
	"github.com/starshield/voicebridge/internal/log"
	"github.com/starshield/voicebridge/pkg/convlog"
	"github.com/starshield/voicebridge/pkg/crm"
)

// ChatCompletionsURL is the endpoint used for summary generation.
const ChatCompletionsURL = "https://api.openai.com/v1/chat/completions"

const summaryModel = "gpt-4o-mini"

const systemPrompt = `You are a call summary assistant. Given a transcript of a voice call between a customer and the StarShield paints voice agent, produce a structured JSON summary with these fields:
- "topic": A one-line description of what the call was about
- "key_points": An array of 3-5 bullet points capturing the most important information discussed
- "action_items": An array of any follow-up actions mentioned or implied
- "outcome": A one-line description of how the call concluded (e.g., "Customer expressed interest in product X", "Lead captured for follow-up")

Return ONLY valid JSON, no markdown fences or extra text.`

// Part is one turn of the call transcript.
type Part struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Summary is the structured outcome of a call.
type Summary struct {
	Topic       string   `json:"topic"`
	KeyPoints   []string `json:"key_points"`
	ActionItems []string `json:"action_items"`
	Outcome     string   `json:"outcome"`
	Raw         string   `json:"-"`
}

// Service generates and stores call summaries. The note writer and
// recorder are optional; nil disables that storage path.
type Service struct {
	apiKey   string
	notes    crm.NoteWriter
	recorder convlog.Recorder

	// chatURL is overridable for tests.
	chatURL string
	http    *http.Client
}

// New creates a summary service.
func New(apiKey string, notes crm.NoteWriter, recorder convlog.Recorder) *Service {
	return &Service{
		apiKey:   apiKey,
		notes:    notes,
		recorder: recorder,
		chatURL:  ChatCompletionsURL,
		http:     httpc.Client,
	}
}

// FormatTranscript renders the transcript as speaker-labelled lines.
func FormatTranscript(parts []Part) string {
	lines := make([]string, 0, len(parts))
	for _, part := range parts {
		speaker := "Agent"
		if part.Role == "user" {
			speaker = "Customer"
		}
		lines = append(lines, speaker+": "+part.Text)
	}
	return strings.Join(lines, "\n")
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generate produces a structured summary from a transcript. Returns nil
// when there is nothing to summarize.
func (s *Service) Generate(ctx context.Context, parts []Part) (*Summary, error) {
	if len(parts) == 0 {
		return nil, nil
	}

	payload := chatRequest{
		Model: summaryModel,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Here is the call transcript:\n\n" + FormatTranscript(parts)},
		},
		Temperature: 0.3,
		MaxTokens:   800,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("summary: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.chatURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("summary: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("summary: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("summary: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("summary: generation failed (status %d): %s",
			resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &completion); err != nil {
		return nil, fmt.Errorf("summary: decode response: %w", err)
	}

	content := ""
	if len(completion.Choices) > 0 {
		content = completion.Choices[0].Message.Content
	}
	return parseSummary(content), nil
}

// parseSummary decodes the model's JSON, falling back to the raw text
// when it did not comply.
func parseSummary(content string) *Summary {
	var parsed Summary
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		log.Warn("summary JSON parse failed; using raw text")
		return &Summary{
			Topic:       "Call summary",
			KeyPoints:   []string{content},
			ActionItems: []string{},
			Outcome:     "See summary text",
			Raw:         content,
		}
	}
	if parsed.Topic == "" {
		parsed.Topic = "Call summary"
	}
	parsed.Raw = content
	return &parsed
}

// GenerateAndStore summarizes the transcript and stores the result as a
// CRM note (when a lead was captured) and a conversation event. All
// failures are logged and swallowed; summarization never affects a call.
func (s *Service) GenerateAndStore(ctx context.Context, conversationID, leadID string, parts []Part, channel string) {
	if len(parts) == 0 {
		log.Info("no transcript to summarize", "conversation_id", conversationID)
		return
	}

	log.Info("generating call summary", "conversation_id", conversationID, "parts", len(parts))

	result, err := s.Generate(ctx, parts)
	if err != nil {
		log.Warn("summary generation failed", "conversation_id", conversationID, "error", err)
		return
	}
	if result == nil {
		return
	}

	if leadID != "" && s.notes != nil {
		if err := s.notes.AddLeadNote(ctx, leadID, FormatHTML(result)); err != nil {
			log.Warn("failed to store summary with lead", "lead_id", leadID, "error", err)
		}
	}

	if s.recorder != nil {
		var lead any
		if leadID != "" {
			lead = leadID
		}
		err := s.recorder.Record(ctx, convlog.Event{
			ConversationID: conversationID,
			Channel:        channel,
			Role:           "system",
			Text:           result.Raw,
			Kind:           "call_summary",
			Metadata: map[string]any{
				"topic":       result.Topic,
				"keyPoints":   result.KeyPoints,
				"actionItems": result.ActionItems,
				"outcome":     result.Outcome,
				"leadId":      lead,
			},
		})
		if err != nil {
			log.Warn("failed to store summary event", "conversation_id", conversationID, "error", err)
		}
	}

	log.Info("summary stored", "conversation_id", conversationID)
}

// FormatHTML renders the summary as the HTML note attached to a lead.
func FormatHTML(s *Summary) string {
	var b strings.Builder
	b.WriteString("<h3>Call Summary</h3>\n")
	fmt.Fprintf(&b, "<p><strong>Topic:</strong> %s</p>\n", html.EscapeString(s.Topic))

	if len(s.KeyPoints) > 0 {
		b.WriteString("<p><strong>Key Points:</strong></p><ul>")
		for _, point := range s.KeyPoints {
			fmt.Fprintf(&b, "<li>%s</li>", html.EscapeString(point))
		}
		b.WriteString("</ul>\n")
	}
	if len(s.ActionItems) > 0 {
		b.WriteString("<p><strong>Action Items:</strong></p><ul>")
		for _, item := range s.ActionItems {
			fmt.Fprintf(&b, "<li>%s</li>", html.EscapeString(item))
		}
		b.WriteString("</ul>\n")
	}
	fmt.Fprintf(&b, "<p><strong>Outcome:</strong> %s</p>", html.EscapeString(s.Outcome))
	return b.String()
}
