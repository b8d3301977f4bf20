package services

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/NathnaelYimer/historical-bill/internal/gcp"
)

// The services consume their collaborators through these narrow interfaces
// so the entry points own client lifecycles and tests can substitute fakes
// without touching global state.

// ObjectStore is the blob-storage surface the pipeline needs.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
	ListPrefix(ctx context.Context, bucket, prefix string) ([]gcp.ObjectInfo, error)
	Latest(ctx context.Context, bucket, prefix string) (string, error)
}

// OCRBackend submits and polls asynchronous text-detection jobs.
type OCRBackend interface {
	StartTextDetection(ctx context.Context, bucket, inputKey, outputPrefix string) (string, error)
	PollTextDetection(ctx context.Context, jobID string) (bool, error)
	CollectText(ctx context.Context, bucket, outputPrefix string) (string, error)
}

// Persistence is the relational write surface.
type Persistence interface {
	Upsert(ctx context.Context, schema, table string, row map[string]any, conflictCols []string) error
	InsertOrUpdate(ctx context.Context, schema, table string, row map[string]any, keyCol string) error
}

// Ledger records run documents for traceability. Implementations must be
// best-effort; ledger calls never fail the pipeline.
type Ledger interface {
	Record(ctx context.Context, doc any) string
	Update(ctx context.Context, id string, fields map[string]any)
}

// OrchestrationTrigger starts the downstream per-order workflow.
type OrchestrationTrigger interface {
	Trigger(ctx context.Context, argument any) (string, error)
}

// NewHTTPClient builds the retrying HTTP client used for the page fetch and
// PDF downloads: bounded retries with exponential backoff on transport
// errors, 429 and 5xx.
func NewHTTPClient(timeout time.Duration) *resty.Client {
	return resty.New().
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		})
}
