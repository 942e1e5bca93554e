package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/starshield/voicebridge/internal/httpc"
	"github.com/starshield/voicebridge/internal/log"
)

// DefaultAPIBaseURL is the Twilio REST API base URL.
const DefaultAPIBaseURL = "https://api.twilio.com/2010-04-01"

// ErrNoTwiMLURL is returned when neither the call options nor the client
// configuration name a TwiML webhook for the outbound call.
var ErrNoTwiMLURL = errors.New("twilio: no TwiML URL configured")

// Client places calls through the Twilio REST API.
type Client struct {
	accountSID        string
	authToken         string
	number            string
	twimlURL          string
	statusCallbackURL string

	baseURL string
	http    *http.Client
}

// NewClient creates a Twilio REST client for the given account.
func NewClient(accountSID, authToken, number, twimlURL, statusCallbackURL string) *Client {
	return &Client{
		accountSID:        accountSID,
		authToken:         authToken,
		number:            number,
		twimlURL:          twimlURL,
		statusCallbackURL: statusCallbackURL,
		baseURL:           DefaultAPIBaseURL,
		http:              httpc.Client,
	}
}

// Call is the subset of Twilio's call resource the bridge cares about.
type Call struct {
	Sid    string `json:"sid"`
	Status string `json:"status"`
	To     string `json:"to"`
	From   string `json:"from"`
}

// CallOptions tunes one outbound call.
type CallOptions struct {
	// TwiMLURL overrides the client's configured webhook for this call.
	TwiMLURL string
}

// InitiateCall starts an outbound call to the given number. The TwiML
// webhook drives the call once answered.
func (c *Client) InitiateCall(ctx context.Context, to string, opts CallOptions) (*Call, error) {
	twimlURL := strings.TrimSpace(opts.TwiMLURL)
	if twimlURL == "" {
		twimlURL = strings.TrimSpace(c.twimlURL)
	}
	if twimlURL == "" {
		return nil, ErrNoTwiMLURL
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.number)
	form.Set("Url", twimlURL)
	if c.statusCallbackURL != "" {
		form.Set("StatusCallback", c.statusCallbackURL)
		for _, event := range []string{"initiated", "ringing", "answered", "completed"} {
			form.Add("StatusCallbackEvent", event)
		}
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("twilio: build call request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	log.Info("starting outbound call", "to", to, "from", c.number)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twilio: create call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("twilio: read call response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("twilio: call creation failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var call Call
	if err := json.Unmarshal(body, &call); err != nil {
		return nil, fmt.Errorf("twilio: decode call response: %w", err)
	}
	return &call, nil
}
