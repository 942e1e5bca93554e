package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/starshield/voicebridge/internal/log"
	"github.com/starshield/voicebridge/pkg/crm"
	"github.com/starshield/voicebridge/pkg/realtime"
	"github.com/starshield/voicebridge/pkg/twilio"
)

// dispatchFunctionCall executes one model-issued tool call. The model
// must receive exactly one function_call_output per call id — including
// on bad arguments, unknown tools, and collaborator failures — followed
// by a response.create so it resumes speaking.
func (b *Bridge) dispatchFunctionCall(sess *Session, item *realtime.OutputItem) {
	callID := item.CallID
	toolName := strings.TrimSpace(item.Name)

	args := map[string]any{}
	if item.Arguments != "" {
		if err := json.Unmarshal([]byte(item.Arguments), &args); err != nil {
			log.Error("failed to parse function call arguments", "tool", toolName, "error", err)
			b.sendFunctionResult(sess, callID, map[string]any{"error": "Invalid JSON arguments"})
			return
		}
	}

	label := toolName
	if label == "" {
		label = "unknown"
	}
	b.recordEvent(sess, "system", "Tool call: "+label, "tool_call", map[string]any{"callId": callID, "args": args})

	result, err := b.runTool(context.Background(), sess, toolName, args)
	if err != nil {
		log.Error("tool failed", "tool", toolName, "error", err)
		b.sendFunctionResult(sess, callID, map[string]any{"error": err.Error()})
		return
	}
	b.sendFunctionResult(sess, callID, result)
}

// runTool dispatches by tool name. Unknown names produce an error result,
// not a dropped call.
func (b *Bridge) runTool(ctx context.Context, sess *Session, toolName string, args map[string]any) (any, error) {
	switch toolName {
	case "search_docs":
		return b.runSearchDocs(ctx, args)
	case "create_lead":
		return b.runCreateLead(ctx, sess, args)
	case "start_outbound_call":
		return b.runOutboundCall(ctx, args)
	default:
		log.Warn("received unsupported tool call", "tool", toolName)
		return map[string]any{"error": "Unknown tool: " + toolName}, nil
	}
}

func (b *Bridge) runSearchDocs(ctx context.Context, args map[string]any) (any, error) {
	query := strings.TrimSpace(stringArg(args, "query"))
	if query == "" {
		return nil, errors.New("query is required")
	}
	if b.searcher == nil {
		return nil, errors.New("document search is not configured")
	}

	topK := intArg(args, "top_k")
	if topK <= 0 {
		topK = 5
	}

	results, err := b.searcher.Search(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	return map[string]any{"results": results}, nil
}

func (b *Bridge) runCreateLead(ctx context.Context, sess *Session, args map[string]any) (any, error) {
	lead := crm.Lead{
		Name:   stringArg(args, "name"),
		Phone:  stringArg(args, "phone"),
		Email:  stringArg(args, "email"),
		Intent: stringArg(args, "intent"),
	}
	if lead.Name == "" || lead.Phone == "" || lead.Intent == "" {
		return nil, errors.New("name, phone, intent are required")
	}

	record, err := b.leads.CreateLead(ctx, lead)
	if err != nil {
		return nil, err
	}
	if record.LeadID != "" {
		sess.mu.Lock()
		sess.leadID = record.LeadID
		sess.mu.Unlock()
	}
	return record, nil
}

func (b *Bridge) runOutboundCall(ctx context.Context, args map[string]any) (any, error) {
	to := strings.TrimSpace(stringArg(args, "to"))
	if to == "" {
		return nil, errors.New("to is required")
	}
	if b.calls == nil {
		return nil, errors.New("outbound calling is not configured")
	}

	call, err := b.calls.InitiateCall(ctx, to, twilio.CallOptions{})
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "call_sid": call.Sid, "status": call.Status}, nil
}

// sendFunctionResult returns the tool output to the model and asks it to
// continue the response.
func (b *Bridge) sendFunctionResult(sess *Session, callID string, output any) {
	sess.mu.Lock()
	model := sess.model
	sess.mu.Unlock()
	if model == nil || !model.open() {
		return
	}

	ev, err := realtime.NewFunctionOutput(callID, output)
	if err != nil {
		log.Error("failed to encode tool result", "error", err)
		return
	}
	if err := model.sendJSON(ev); err != nil {
		log.Warn("failed to send tool result", "error", err)
		return
	}
	if err := model.sendJSON(realtime.NewResponseCreate()); err != nil {
		log.Warn("failed to request response after tool result", "error", err)
	}
}

func stringArg(args map[string]any, key string) string {
	value, _ := args[key].(string)
	return value
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return 0
}
