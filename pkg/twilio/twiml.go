package twilio

import (
	"encoding/xml"
	"fmt"
)

type voiceResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

type sayVerb struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type connectVerb struct {
	XMLName xml.Name   `xml:"Connect"`
	Stream  streamNoun `xml:"Stream"`
}

type streamNoun struct {
	URL string `xml:"url,attr"`
}

// StreamTwiML renders the TwiML answer for an inbound call: a greeting,
// a bidirectional media stream to streamURL, and a sign-off once the
// stream ends.
func StreamTwiML(streamURL string) (string, error) {
	response := voiceResponse{
		Verbs: []any{
			sayVerb{Text: "Connecting you to the StarShield voice agent."},
			connectVerb{Stream: streamNoun{URL: streamURL}},
			sayVerb{Text: "The call has ended."},
		},
	}

	body, err := xml.Marshal(response)
	if err != nil {
		return "", fmt.Errorf("twilio: render TwiML: %w", err)
	}
	return xml.Header + string(body), nil
}
