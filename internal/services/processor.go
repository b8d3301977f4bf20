package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/NathnaelYimer/historical-bill/internal/models"
)

const (
	dbSchema    = "ny"
	ordersTable = "executive_orders"
	textsTable  = "order_texts"

	// The text write gets its own coarse retry layer on top of whatever the
	// persistence adapter does internally: it is the stage most prone to
	// transient contention, with large payloads and a table that forces a
	// read-then-write pattern.
	textWriteAttempts = 3
)

// TextExtractor is the extraction surface the processor consumes.
type TextExtractor interface {
	Extract(ctx context.Context, pdfPath, bucket string) string
}

// ProcessorConfig holds all configuration for the order processor.
type ProcessorConfig struct {
	// Bucket is used for OCR staging during extraction.
	Bucket string
}

// Processor handles one order end to end: metadata upsert, PDF download,
// text extraction and the text write.
type Processor struct {
	http        *resty.Client
	db          Persistence
	extractor   TextExtractor
	ledger      Ledger
	config      ProcessorConfig
	textBackoff time.Duration
}

// NewProcessor wires the processor with its collaborators. ledger may be
// nil.
func NewProcessor(http *resty.Client, db Persistence, extractor TextExtractor, ledger Ledger, config ProcessorConfig) *Processor {
	return &Processor{
		http:        http,
		db:          db,
		extractor:   extractor,
		ledger:      ledger,
		config:      config,
		textBackoff: time.Second,
	}
}

// Process runs the full pipeline for one order. It reports false when any
// stage failed; re-queueing is the orchestrating scheduler's concern, never
// retried at this level.
func (p *Processor) Process(ctx context.Context, orderID string, order models.OrderDescriptor) bool {
	slog.Info("processing order", "order_id", orderID)

	var runID string
	if p.ledger != nil {
		runID = p.ledger.Record(ctx, models.OrderRun{OrderID: orderID, Status: "RUNNING", StartedAt: time.Now().UTC()})
	}
	ok, detail, textLen := p.process(ctx, orderID, order)
	if p.ledger != nil {
		status := "SUCCEEDED"
		if !ok {
			status = "FAILED"
		}
		p.ledger.Update(ctx, runID, map[string]any{
			"status":       status,
			"errorDetails": detail,
			"textLength":   textLen,
			"finishedAt":   time.Now().UTC(),
		})
	}
	return ok
}

func (p *Processor) process(ctx context.Context, orderID string, order models.OrderDescriptor) (ok bool, detail string, textLen int) {
	orderNum, defaulted := normalizeOrderNum(order.OrderNum)
	if defaulted {
		slog.Warn("invalid order_num format, defaulting to 0", "order_id", orderID, "order_num", order.OrderNum)
	}

	// Metadata persistence is mandatory; a failure here aborts the order.
	if err := p.db.Upsert(ctx, dbSchema, ordersTable, models.OrderEntry(orderID, order, orderNum), []string{"order_id"}); err != nil {
		slog.Error("failed to upsert order metadata", "order_id", orderID, "error", err)
		return false, err.Error(), 0
	}
	slog.Info("upserted order metadata", "order_id", orderID)

	tempDir, err := os.MkdirTemp("", "order-processor-*")
	if err != nil {
		slog.Error("failed to create temp dir", "order_id", orderID, "error", err)
		return false, err.Error(), 0
	}
	defer os.RemoveAll(tempDir)

	// A failed download leaves the metadata row behind; a storable record
	// beats a missing one.
	pdfPath, err := p.downloadPDF(ctx, order.PDFUrl, tempDir)
	if err != nil {
		slog.Error("failed to download PDF, skipping text extraction", "order_id", orderID, "url", order.PDFUrl, "error", err)
		return false, err.Error(), 0
	}

	text := p.extractor.Extract(ctx, pdfPath, p.config.Bucket)
	if err := p.writeText(ctx, orderID, order.Src, text); err != nil {
		slog.Error("max retries reached for order text write", "order_id", orderID, "error", err)
		return false, err.Error(), len(text)
	}
	slog.Info("order fully processed", "order_id", orderID, "text_length", len(text))
	return true, "", len(text)
}

// downloadPDF fetches the order's PDF into dir and returns its local path.
func (p *Processor) downloadPDF(ctx context.Context, pdfURL, dir string) (string, error) {
	pdfPath := filepath.Join(dir, "order.pdf")
	resp, err := p.http.R().SetContext(ctx).SetOutput(pdfPath).Get(pdfURL)
	if err != nil {
		return "", fmt.Errorf("failed to download PDF %s: %w", pdfURL, err)
	}
	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("failed to download PDF %s: unexpected status %d", pdfURL, resp.StatusCode())
	}
	slog.Info("downloaded PDF", "url", pdfURL)
	return pdfPath, nil
}

// writeText upserts the text row with its own bounded retry loop.
func (p *Processor) writeText(ctx context.Context, orderID, src, text string) error {
	entry := models.OrderTextEntry(orderID, text, src)
	var lastErr error
	backoff := p.textBackoff
	for attempt := 1; attempt <= textWriteAttempts; attempt++ {
		if lastErr = p.db.InsertOrUpdate(ctx, dbSchema, textsTable, entry, "order_id"); lastErr == nil {
			slog.Info("saved order text", "order_id", orderID, "length", len(text))
			return nil
		}
		slog.Warn("order text write failed", "order_id", orderID, "attempt", attempt, "max_attempts", textWriteAttempts, "error", lastErr)
		if attempt == textWriteAttempts {
			break
		}
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
