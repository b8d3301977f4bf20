package gcp

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
)

// NewFirestoreClient creates and returns a new Firestore client for the given
// project ID. It centralizes client creation for all services.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// RunLedger records scrape runs and per-order processing attempts in a
// Firestore collection for traceability. Every write is best-effort: a
// ledger failure is logged and never fails the pipeline.
type RunLedger struct {
	client     *firestore.Client
	collection string
}

// NewRunLedger wraps an existing Firestore client.
func NewRunLedger(client *firestore.Client, collection string) *RunLedger {
	return &RunLedger{client: client, collection: collection}
}

// Record creates a new ledger document and returns its ID, or "" on failure.
func (l *RunLedger) Record(ctx context.Context, doc any) string {
	ref, _, err := l.client.Collection(l.collection).Add(ctx, doc)
	if err != nil {
		slog.Warn("failed to create ledger document", "collection", l.collection, "error", err)
		return ""
	}
	return ref.ID
}

// Update applies field updates to an existing ledger document.
func (l *RunLedger) Update(ctx context.Context, id string, fields map[string]any) {
	if id == "" {
		return
	}
	updates := make([]firestore.Update, 0, len(fields))
	for path, value := range fields {
		updates = append(updates, firestore.Update{Path: path, Value: value})
	}
	if _, err := l.client.Collection(l.collection).Doc(id).Update(ctx, updates); err != nil {
		slog.Warn("failed to update ledger document", "collection", l.collection, "id", id, "error", err)
	}
}
