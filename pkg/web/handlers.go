package web

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/starshield/voicebridge/internal/log"
	"github.com/starshield/voicebridge/pkg/convlog"
	"github.com/starshield/voicebridge/pkg/crm"
	"github.com/starshield/voicebridge/pkg/twilio"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ok": true})
}

// handleSession returns a fresh ephemeral realtime session, passed
// through untouched so browser clients see the upstream shape.
func (s *Server) handleSession(c *fiber.Ctx) error {
	raw, err := s.opts.Sessions.CreateRaw(c.Context())
	if err != nil {
		log.Error("session creation failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(raw)
}

type searchDocsRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (s *Server) handleSearchDocs(c *fiber.Ctx) error {
	if s.opts.Searcher == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"error": "Azure Search not configured. Set AZURE_SEARCH_ENDPOINT, AZURE_SEARCH_INDEX, AZURE_SEARCH_API_KEY to enable.",
		})
	}

	var req searchDocsRequest
	if err := c.BodyParser(&req); err != nil || req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "query is required"})
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 5
	}

	results, err := s.opts.Searcher.Search(c.Context(), req.Query, topK)
	if err != nil {
		log.Error("document search failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"results": results})
}

type createLeadRequest struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Email  string `json:"email"`
	Intent string `json:"intent"`
}

func (s *Server) handleCreateLead(c *fiber.Ctx) error {
	var req createLeadRequest
	if err := c.BodyParser(&req); err != nil || req.Name == "" || req.Phone == "" || req.Intent == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name, phone, intent are required"})
	}

	record, err := s.opts.Leads.CreateLead(c.Context(), crm.Lead{
		Name:   req.Name,
		Phone:  req.Phone,
		Email:  req.Email,
		Intent: req.Intent,
	})
	if err != nil {
		log.Error("lead creation failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(record)
}

func (s *Server) handleToolByName(c *fiber.Ctx) error {
	switch strings.TrimSpace(c.Params("toolName")) {
	case "search_docs":
		return s.handleSearchDocs(c)
	case "create_lead":
		return s.handleCreateLead(c)
	default:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Tool not found"})
	}
}

type logEventRequest struct {
	ConversationID  string         `json:"conversationId"`
	ConversationID2 string         `json:"conversation_id"`
	SessionID       string         `json:"sessionId"`
	CallSid         string         `json:"callSid"`
	Role            string         `json:"role"`
	Text            string         `json:"text"`
	Message         string         `json:"message"`
	Channel         string         `json:"channel"`
	Kind            string         `json:"kind"`
	Metadata        map[string]any `json:"metadata"`
	Timestamp       string         `json:"timestamp"`
}

// handleLogEvent ingests a conversation event from web clients. The
// field fallbacks tolerate the client shapes already in the wild.
func (s *Server) handleLogEvent(c *fiber.Ctx) error {
	if s.opts.Recorder == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Conversation logging is not configured on the server.",
		})
	}

	var req logEventRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
	}

	conversationID := firstNonEmpty(req.ConversationID, req.SessionID, req.CallSid, req.ConversationID2)
	if conversationID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "conversationId is required"})
	}

	text := req.Text
	if text == "" {
		text = req.Message
	}

	ev := convlog.Event{
		ConversationID: conversationID,
		Channel:        strings.TrimSpace(req.Channel),
		Role:           strings.TrimSpace(req.Role),
		Text:           text,
		Kind:           strings.TrimSpace(req.Kind),
		Metadata:       req.Metadata,
	}
	if ev.Role == "" {
		ev.Role = "unknown"
	}
	if req.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, req.Timestamp); err == nil {
			ev.Timestamp = ts
		}
	}

	if err := s.opts.Recorder.Record(c.Context(), ev); err != nil {
		log.Warn("conversation event write failed", "conversation_id", conversationID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to persist conversation event"})
	}
	return c.JSON(fiber.Map{"ok": true, "conversation_id": conversationID})
}

// handleVoice answers Twilio's inbound-call webhook: it prefetches a
// realtime session for the call so the model socket is warm by the time
// the media stream opens, then returns TwiML pointing at the stream.
func (s *Server) handleVoice(c *fiber.Ctx) error {
	if !s.opts.TwilioEnabled {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"error": "Twilio is not configured on the server.",
		})
	}

	callSid := strings.TrimSpace(firstNonEmpty(c.FormValue("CallSid"), c.Query("CallSid")))
	if callSid != "" {
		go s.opts.Cache.Prefetch(context.Background(), callSid)
	}

	streamURL, err := s.resolveStreamURL(c)
	if err != nil {
		return err
	}
	log.Info("responding with TwiML stream URL", "url", streamURL)

	twiml, err := twilio.StreamTwiML(streamURL)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	c.Set(fiber.HeaderContentType, "text/xml")
	return c.SendString(twiml)
}

// handleVoiceCompleted drops any unused prefetched session for the call.
func (s *Server) handleVoiceCompleted(c *fiber.Ctx) error {
	if callSid := strings.TrimSpace(c.FormValue("CallSid")); callSid != "" {
		s.opts.Cache.Clear(callSid)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// resolveStreamURL prefers the configured stream URL and otherwise
// derives wss://<host>/twilio/stream from the request.
func (s *Server) resolveStreamURL(c *fiber.Ctx) (string, error) {
	if explicit := strings.TrimSpace(s.opts.StreamURL); explicit != "" {
		return explicit, nil
	}

	host := c.Hostname()
	if host == "" {
		return "", fiber.NewError(fiber.StatusInternalServerError, "Unable to determine host for Twilio Stream URL")
	}
	scheme := "ws"
	if c.Protocol() == "https" {
		scheme = "wss"
	}
	return scheme + "://" + host + "/twilio/stream", nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
