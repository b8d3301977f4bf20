package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NathnaelYimer/historical-bill/internal/models"
)

type fakeExtractor struct {
	text  string
	calls int
}

func (f *fakeExtractor) Extract(_ context.Context, _, _ string) string {
	f.calls++
	return f.text
}

func pdfServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write([]byte("%PDF-1.4 body"))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func testOrder(pdfURL string) models.OrderDescriptor {
	return models.OrderDescriptor{
		OrderNum:   "147.28",
		Title:      "Disaster Emergency",
		SignedDate: "2019-10-04",
		PDFUrl:     pdfURL,
		Src:        models.SrcValue,
		Governor:   "Governor Andrew M. Cuomo",
	}
}

func TestProcessHappyPath(t *testing.T) {
	server := pdfServer(t, http.StatusOK)
	db := &fakeDB{}
	extractor := &fakeExtractor{text: "order body text"}
	ledger := &fakeLedger{}
	p := NewProcessor(NewHTTPClient(5*time.Second), db, extractor, ledger, ProcessorConfig{Bucket: "test-bucket"})

	ok := p.Process(context.Background(), "NYORDER147_28", testOrder(server.URL+"/eo.pdf"))
	require.True(t, ok)

	// Metadata row carries the numeric order number and the full audit set.
	require.Len(t, db.upserts, 1)
	meta := db.upserts[0]
	require.Equal(t, "NYORDER147_28", meta["order_id"])
	require.Equal(t, 147.28, meta["order_num"])
	require.Equal(t, "Disaster Emergency", meta["title"])
	require.Equal(t, models.AuditUser, meta["row_ct_user"])

	// Text row holds the extracted text.
	require.Equal(t, 1, extractor.calls)
	require.Len(t, db.writes, 1)
	require.Equal(t, "order body text", db.writes[0]["text"])
	require.Equal(t, "NYORDER147_28", db.writes[0]["order_id"])

	require.Equal(t, "SUCCEEDED", ledger.updates[0]["status"])
	require.Equal(t, len("order body text"), ledger.updates[0]["textLength"])
}

func TestProcessMetadataFailureAborts(t *testing.T) {
	server := pdfServer(t, http.StatusOK)
	db := &fakeDB{upsertErr: errConnRefused{}}
	extractor := &fakeExtractor{}
	p := NewProcessor(NewHTTPClient(5*time.Second), db, extractor, nil, ProcessorConfig{Bucket: "test-bucket"})

	ok := p.Process(context.Background(), "NYORDER1", testOrder(server.URL+"/eo.pdf"))
	require.False(t, ok)
	require.Zero(t, extractor.calls)
	require.Zero(t, db.writeAttempts)
}

type errConnRefused struct{}

func (errConnRefused) Error() string { return "connection refused" }

func TestProcessDownloadFailureKeepsMetadata(t *testing.T) {
	server := pdfServer(t, http.StatusNotFound)
	db := &fakeDB{}
	extractor := &fakeExtractor{}
	ledger := &fakeLedger{}
	p := NewProcessor(NewHTTPClient(5*time.Second), db, extractor, ledger, ProcessorConfig{Bucket: "test-bucket"})

	ok := p.Process(context.Background(), "NYORDER1", testOrder(server.URL+"/missing.pdf"))
	require.False(t, ok)

	// The metadata row survives even though the order failed overall.
	require.Len(t, db.upserts, 1)
	require.Zero(t, extractor.calls)
	require.Equal(t, "FAILED", ledger.updates[0]["status"])
}

func TestProcessTextWriteRetries(t *testing.T) {
	server := pdfServer(t, http.StatusOK)
	// Two transient failures, then success.
	db := &fakeDB{writeFailures: 2}
	extractor := &fakeExtractor{text: "text"}
	p := NewProcessor(NewHTTPClient(5*time.Second), db, extractor, nil, ProcessorConfig{Bucket: "test-bucket"})
	p.textBackoff = time.Millisecond

	ok := p.Process(context.Background(), "NYORDER2", testOrder(server.URL+"/eo.pdf"))
	require.True(t, ok)
	require.Equal(t, 3, db.writeAttempts)
	require.Len(t, db.writes, 1)
}

func TestProcessTextWriteExhaustsRetries(t *testing.T) {
	server := pdfServer(t, http.StatusOK)
	db := &fakeDB{writeFailures: textWriteAttempts}
	extractor := &fakeExtractor{text: "text"}
	ledger := &fakeLedger{}
	p := NewProcessor(NewHTTPClient(5*time.Second), db, extractor, ledger, ProcessorConfig{Bucket: "test-bucket"})
	p.textBackoff = time.Millisecond

	ok := p.Process(context.Background(), "NYORDER3", testOrder(server.URL+"/eo.pdf"))
	require.False(t, ok)
	require.Equal(t, textWriteAttempts, db.writeAttempts)
	require.Empty(t, db.writes)
	require.Equal(t, "FAILED", ledger.updates[0]["status"])
}

func TestProcessInvalidOrderNumDefaultsToZero(t *testing.T) {
	server := pdfServer(t, http.StatusOK)
	db := &fakeDB{}
	p := NewProcessor(NewHTTPClient(5*time.Second), db, &fakeExtractor{}, nil, ProcessorConfig{Bucket: "test-bucket"})

	order := testOrder(server.URL + "/eo.pdf")
	order.OrderNum = "not-a-number"
	ok := p.Process(context.Background(), "NYORDERX", order)
	require.True(t, ok)
	require.Equal(t, float64(0), db.upserts[0]["order_num"])
}
