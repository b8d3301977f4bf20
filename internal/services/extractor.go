package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const (
	// ocrPageLimit is the hard page ceiling imposed by the OCR backend;
	// documents over it cannot be OCR'd, so work on them stops immediately.
	ocrPageLimit = 3000

	ocrPollInterval = 5 * time.Second
	ocrTimeout      = 600 * time.Second

	stagingPrefix = "textract-input/"
	outputPrefix  = "textract-output/"
)

// Extractor produces the best-effort plain-text transcription of a PDF. It
// prefers the cheap direct text layer and falls back to an asynchronous OCR
// job for scanned documents. It never fails: every irrecoverable condition
// collapses to an empty string so the calling pipeline stays free of
// extraction-specific error branching.
type Extractor struct {
	objects ObjectStore
	ocr     OCRBackend

	pollInterval time.Duration
	timeout      time.Duration

	// The PDF-handling steps are injectable so tests can drive the control
	// flow without binary fixtures.
	readTextLayer func(path string, maxPages int) (text string, pageCount int, err error)
	validatePDF   func(path string) error
	reformatPDF   func(inPath, outPath string) error
}

// NewExtractor wires the extractor with its default PDF handling.
func NewExtractor(objects ObjectStore, ocr OCRBackend) *Extractor {
	return &Extractor{
		objects:       objects,
		ocr:           ocr,
		pollInterval:  ocrPollInterval,
		timeout:       ocrTimeout,
		readTextLayer: readTextLayer,
		validatePDF:   validatePDF,
		reformatPDF:   reformatPDF,
	}
}

// Extract returns the text of the PDF at pdfPath, or "" when no text is
// available. bucket is used for OCR staging.
func (e *Extractor) Extract(ctx context.Context, pdfPath, bucket string) string {
	text, pageCount, err := e.readTextLayer(pdfPath, ocrPageLimit)
	switch {
	case errors.Is(err, pdf.ErrInvalidPassword):
		slog.Error("skipping encrypted PDF", "path", pdfPath)
		return ""
	case err != nil:
		slog.Info("text layer unreadable, treating as scanned", "path", pdfPath, "error", err)
	case pageCount > ocrPageLimit:
		slog.Error("PDF exceeds OCR page limit", "path", pdfPath, "pages", pageCount)
		return ""
	case strings.TrimSpace(text) != "":
		slog.Info("extracted text from PDF text layer", "path", pdfPath, "pages", pageCount)
		return text
	}

	slog.Info("PDF appears to be scanned", "path", pdfPath, "pages", pageCount)
	if err := e.validatePDF(pdfPath); err != nil {
		slog.Error("skipping invalid PDF", "path", pdfPath, "error", err)
		return ""
	}

	// Rewrite the document page by page to normalize structural quirks
	// that can make OCR ingestion fail. A failed rewrite falls back to the
	// original file.
	reformatted := filepath.Join(filepath.Dir(pdfPath), "reformatted.pdf")
	uploadPath := pdfPath
	if err := e.reformatPDF(pdfPath, reformatted); err != nil {
		slog.Warn("failed to reformat PDF, uploading original", "path", pdfPath, "error", err)
	} else {
		uploadPath = reformatted
	}

	return e.runOCR(ctx, uploadPath, bucket)
}

// runOCR stages the PDF in the object store, runs the asynchronous
// text-detection job to completion or timeout, and cleans up the staged
// objects regardless of outcome.
func (e *Extractor) runOCR(ctx context.Context, pdfPath, bucket string) string {
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		slog.Error("failed to read PDF for OCR staging", "path", pdfPath, "error", err)
		return ""
	}

	// The time suffix keeps keys unique across concurrent invocations.
	base := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	stamp := fmt.Sprintf("%s_%d", base, time.Now().Unix())
	stagingKey := stagingPrefix + stamp + ".pdf"
	resultPrefix := outputPrefix + stamp + "/"

	if err := e.objects.Put(ctx, bucket, stagingKey, data, "application/pdf"); err != nil {
		slog.Error("failed to stage PDF for OCR", "key", stagingKey, "error", err)
		return ""
	}
	defer e.cleanup(ctx, bucket, stagingKey, resultPrefix)

	jobID, err := e.ocr.StartTextDetection(ctx, bucket, stagingKey, resultPrefix)
	if err != nil {
		slog.Error("failed to start text detection", "key", stagingKey, "error", err)
		return ""
	}
	slog.Info("started text detection job", "job_id", jobID)

	deadline := time.Now().Add(e.timeout)
	for {
		done, err := e.ocr.PollTextDetection(ctx, jobID)
		if err != nil {
			slog.Error("text detection job failed", "job_id", jobID, "error", err)
			return ""
		}
		if done {
			break
		}
		if time.Now().After(deadline) {
			// The job is abandoned, not cancelled; cleanup of the staged
			// object still runs.
			slog.Error("text detection job timed out", "job_id", jobID, "timeout", e.timeout.String())
			return ""
		}
		slog.Info("waiting for text detection job", "job_id", jobID)
		select {
		case <-time.After(e.pollInterval):
		case <-ctx.Done():
			slog.Error("context cancelled while waiting for text detection", "job_id", jobID, "error", ctx.Err())
			return ""
		}
	}

	text, err := e.ocr.CollectText(ctx, bucket, resultPrefix)
	if err != nil {
		slog.Error("failed to collect text detection output", "job_id", jobID, "error", err)
		return ""
	}
	slog.Info("extracted text via OCR", "job_id", jobID, "length", len(text))
	return text
}

// cleanup deletes the staged input and any result shards. Best effort;
// failures are logged, never propagated.
func (e *Extractor) cleanup(ctx context.Context, bucket, stagingKey, resultPrefix string) {
	if err := e.objects.Delete(ctx, bucket, stagingKey); err != nil {
		slog.Warn("failed to delete staged OCR input", "key", stagingKey, "error", err)
	}
	shards, err := e.objects.ListPrefix(ctx, bucket, resultPrefix)
	if err != nil {
		slog.Warn("failed to list OCR output for cleanup", "prefix", resultPrefix, "error", err)
		return
	}
	for _, shard := range shards {
		if err := e.objects.Delete(ctx, bucket, shard.Key); err != nil {
			slog.Warn("failed to delete OCR output shard", "key", shard.Key, "error", err)
		}
	}
}

// readTextLayer extracts the selectable text layer page by page. It reports
// the page count without extracting when the count exceeds maxPages.
func readTextLayer(path string, maxPages int) (string, int, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	pageCount := reader.NumPage()
	if pageCount > maxPages {
		return "", pageCount, nil
	}

	var pages []string
	for i := 1; i <= pageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages = append(pages, content)
	}
	return strings.TrimSpace(strings.Join(pages, "\n")), pageCount, nil
}

func validatePDF(path string) error {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return api.ValidateFile(path, cfg)
}

func reformatPDF(inPath, outPath string) error {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return api.OptimizeFile(inPath, outPath, cfg)
}
