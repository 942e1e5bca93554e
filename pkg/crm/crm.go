// Package crm persists sales leads captured during calls. Two backends
// are interchangeable behind LeadCreator: Dynamics 365 and Odoo. A stub
// backend keeps lead capture working when neither CRM is configured.
package crm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Lead is the contact information the agent captured on a call.
type Lead struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Email  string `json:"email,omitempty"`
	Intent string `json:"intent"`
}

// LeadRecord is the outcome of persisting a lead.
type LeadRecord struct {
	OK     bool   `json:"ok"`
	LeadID string `json:"lead_id"`
	Source string `json:"source,omitempty"`
	Stored *Lead  `json:"stored,omitempty"`
}

// LeadCreator persists a lead and returns its backend identifier.
type LeadCreator interface {
	CreateLead(ctx context.Context, lead Lead) (*LeadRecord, error)
}

// NoteWriter attaches a free-form note to an existing lead. Backends that
// cannot store notes simply don't implement it.
type NoteWriter interface {
	AddLeadNote(ctx context.Context, leadID, htmlBody string) error
}

// Stub generates local lead ids without persisting anywhere. Used when no
// CRM backend is configured so the conversation flow stays intact.
type Stub struct{}

// CreateLead assigns a local id of the form LS-<year>-<suffix>.
func (Stub) CreateLead(_ context.Context, lead Lead) (*LeadRecord, error) {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	record := &LeadRecord{
		OK:     true,
		LeadID: fmt.Sprintf("LS-%d-%s", time.Now().Year(), suffix),
		Stored: &lead,
	}
	return record, nil
}

// splitName separates a display name into first/last parts the way CRM
// contact schemas expect.
func splitName(full string) (first, last string) {
	normalized := strings.TrimSpace(full)
	if normalized == "" {
		return "", "Customer"
	}
	parts := strings.Fields(normalized)
	if len(parts) == 1 {
		return "", parts[0]
	}
	return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
}

// description renders the lead's intent for CRM description fields.
func description(intent string) string {
	if intent == "" {
		return "Captured via voice assistant"
	}
	return "Voice assistant captured intent: " + intent
}
