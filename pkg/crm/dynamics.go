package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/starshield/voicebridge/internal/httpc"
	"github.com/starshield/voicebridge/internal/log"
)

var entityIDPattern = regexp.MustCompile(`\(([^)]+)\)`)

// Dynamics persists leads in Dynamics 365 using the Web API.
type Dynamics struct {
	resourceURL string
	apiVersion  string
	http        *http.Client
}

// NewDynamics creates a Dynamics backend. Token acquisition and refresh
// go through the client-credentials flow against the tenant's token
// endpoint; oauth2 caches tokens across requests.
func NewDynamics(tenantID, clientID, clientSecret, resourceURL, apiVersion string) *Dynamics {
	resource := strings.TrimRight(resourceURL, "/")
	conf := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID),
		Scopes:       []string{resource + "/.default"},
	}

	client := conf.Client(context.Background())
	client.Timeout = httpc.DefaultTimeout

	if apiVersion == "" {
		apiVersion = "v9.2"
	}

	return &Dynamics{
		resourceURL: resource,
		apiVersion:  apiVersion,
		http:        client,
	}
}

type dynamicsLead struct {
	Subject     string `json:"subject"`
	FirstName   string `json:"firstname"`
	LastName    string `json:"lastname"`
	MobilePhone string `json:"mobilephone"`
	Telephone1  string `json:"telephone1"`
	Email       string `json:"emailaddress1,omitempty"`
	Description string `json:"description"`
}

// CreateLead writes the lead into Dynamics and extracts the new id from
// the OData-EntityId header.
func (d *Dynamics) CreateLead(ctx context.Context, lead Lead) (*LeadRecord, error) {
	first, last := splitName(lead.Name)
	if last == "" {
		last = "Lead"
	}

	subject := lead.Intent
	if subject == "" {
		subject = "Website voice agent lead"
	}

	payload := dynamicsLead{
		Subject:     subject,
		FirstName:   first,
		LastName:    last,
		MobilePhone: lead.Phone,
		Telephone1:  lead.Phone,
		Email:       lead.Email,
		Description: description(lead.Intent),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("crm: encode dynamics lead: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/data/%s/leads", d.resourceURL, d.apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("crm: build dynamics request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("OData-Version", "4.0")
	req.Header.Set("OData-MaxVersion", "4.0")

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crm: create dynamics lead: %w", err)
	}
	defer resp.Body.Close()

	if !dynamicsCreated(resp.StatusCode) {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("crm: dynamics lead creation failed (status %d): %s",
			resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	leadID := parseEntityID(resp.Header.Get("OData-EntityId"))
	if leadID == "" && resp.StatusCode != http.StatusNoContent {
		var created struct {
			LeadID string `json:"leadid"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			log.Warn("dynamics lead created but response body unreadable", "error", err)
		} else {
			leadID = created.LeadID
		}
	}

	log.Info("dynamics 365 lead created", "lead_id", leadID)
	return &LeadRecord{OK: true, LeadID: leadID, Source: "dynamics365"}, nil
}

func dynamicsCreated(status int) bool {
	return status >= 200 && status < 300
}

// parseEntityID extracts the GUID from an OData-EntityId header value,
// e.g. ".../leads(11111111-...)" -> "11111111-...".
func parseEntityID(header string) string {
	if header == "" {
		return ""
	}
	if match := entityIDPattern.FindStringSubmatch(header); match != nil {
		return match[1]
	}
	return header
}
