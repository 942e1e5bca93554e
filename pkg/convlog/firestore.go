package convlog

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"

	"github.com/starshield/voicebridge/internal/log"
)

// FirestoreRecorder stores conversation events under
// <collection>/<conversationId>/events and keeps a last-message summary on
// the parent document.
type FirestoreRecorder struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreRecorder connects to Firestore with an inline service
// account key.
func NewFirestoreRecorder(ctx context.Context, projectID, credentialsJSON, collection string) (*FirestoreRecorder, error) {
	client, err := firestore.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credentialsJSON)))
	if err != nil {
		return nil, fmt.Errorf("convlog: init firestore: %w", err)
	}
	log.Info("conversation logging enabled", "project", projectID, "collection", collection)
	return &FirestoreRecorder{client: client, collection: collection}, nil
}

// Record writes the event and refreshes the conversation's summary doc.
func (r *FirestoreRecorder) Record(ctx context.Context, ev Event) error {
	docID := Normalize(&ev)

	payload := map[string]any{
		"channel":   ev.Channel,
		"role":      ev.Role,
		"text":      ev.Text,
		"kind":      ev.Kind,
		"metadata":  ev.Metadata,
		"createdAt": firestore.ServerTimestamp,
	}
	if !ev.Timestamp.IsZero() {
		payload["clientTimestamp"] = ev.Timestamp.UTC().Format(time.RFC3339)
	}

	doc := r.client.Collection(r.collection).Doc(docID)
	if _, _, err := doc.Collection("events").Add(ctx, payload); err != nil {
		return fmt.Errorf("convlog: write event: %w", err)
	}

	var lastMessage any
	if ev.Text != "" {
		lastMessage = ev.Text
	}
	if _, err := doc.Set(ctx, map[string]any{
		"channel":     ev.Channel,
		"lastRole":    ev.Role,
		"lastMessage": lastMessage,
		"updatedAt":   firestore.ServerTimestamp,
	}, firestore.MergeAll); err != nil {
		return fmt.Errorf("convlog: update conversation doc: %w", err)
	}
	return nil
}

// Close releases the Firestore client.
func (r *FirestoreRecorder) Close() error {
	return r.client.Close()
}
