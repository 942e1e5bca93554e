package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/starshield/voicebridge/internal/httpc"
	"github.com/starshield/voicebridge/internal/log"
)

// Odoo persists leads in an Odoo CRM instance over its REST API.
type Odoo struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewOdoo creates an Odoo backend for the given instance.
func NewOdoo(baseURL, apiKey string) *Odoo {
	return &Odoo{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpc.Client,
	}
}

// CreateLead writes the lead into Odoo's crm.lead model.
func (o *Odoo) CreateLead(ctx context.Context, lead Lead) (*LeadRecord, error) {
	name := lead.Intent
	if name == "" {
		name = "Website voice agent lead"
	}
	contact := strings.TrimSpace(lead.Name)
	if contact == "" {
		contact = "Customer"
	}

	payload := map[string]any{
		"name":         name,
		"contact_name": contact,
		"description":  description(lead.Intent),
		"type":         "lead",
	}
	if lead.Phone != "" {
		payload["phone"] = lead.Phone
		payload["mobile"] = lead.Phone
	}
	if lead.Email != "" {
		payload["email_from"] = lead.Email
	}

	body, err := o.post(ctx, "/api/crm.lead", payload)
	if err != nil {
		return nil, fmt.Errorf("crm: odoo lead creation failed: %w", err)
	}

	leadID := parseOdooID(body)
	log.Info("odoo CRM lead created", "lead_id", leadID)
	return &LeadRecord{OK: true, LeadID: leadID, Source: "odoo"}, nil
}

// AddLeadNote attaches an HTML chatter note to a lead. Used to store the
// post-call summary.
func (o *Odoo) AddLeadNote(ctx context.Context, leadID, htmlBody string) error {
	if leadID == "" {
		log.Warn("odoo note requested without lead id; skipping")
		return nil
	}

	// Odoo wants a numeric res_id; fall back to the raw string for
	// adapters that accept either.
	var resID any = leadID
	if n, err := strconv.Atoi(leadID); err == nil {
		resID = n
	}

	payload := map[string]any{
		"model":         "crm.lead",
		"res_id":        resID,
		"body":          htmlBody,
		"message_type":  "comment",
		"subtype_xmlid": "mail.mt_note",
	}
	if _, err := o.post(ctx, "/api/mail.message", payload); err != nil {
		return fmt.Errorf("crm: odoo note failed: %w", err)
	}

	log.Info("odoo chatter note added", "lead_id", leadID)
	return nil
}

// post sends an authorized JSON POST and returns the response body.
func (o *Odoo) post(ctx context.Context, path string, payload map[string]any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

// parseOdooID tolerates the id shapes Odoo REST adapters return:
// {"id": 7}, {"result": {"id": 7}} or {"result": 7}.
func parseOdooID(body []byte) string {
	var parsed struct {
		ID     json.Number     `json:"id"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	if parsed.ID.String() != "" {
		return parsed.ID.String()
	}
	if len(parsed.Result) > 0 {
		var nested struct {
			ID json.Number `json:"id"`
		}
		if err := json.Unmarshal(parsed.Result, &nested); err == nil && nested.ID.String() != "" {
			return nested.ID.String()
		}
		var direct json.Number
		if err := json.Unmarshal(parsed.Result, &direct); err == nil {
			return direct.String()
		}
	}
	return ""
}
