package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/NathnaelYimer/historical-bill/internal/models"
)

const (
	exportPrefix   = "historical_orders_"
	exportStampFmt = "20060102_150405"
)

// FetchError reports that the source page could not be retrieved after the
// retry policy was exhausted.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ScraperConfig holds all configuration for the scraper service.
type ScraperConfig struct {
	// BaseURL is the listing page to scrape.
	BaseURL string
	// SourceAuthority resolves relative PDF links, e.g.
	// "https://www.governor.ny.gov".
	SourceAuthority string
	// Bucket receives debug snapshots and JSON exports.
	Bucket string
}

// ScrapedOrder pairs a derived order id with its descriptor.
type ScrapedOrder struct {
	ID         string
	Descriptor models.OrderDescriptor
}

// ScrapeResult is the full outcome of one scrape.
type ScrapeResult struct {
	// Orders follows document order of appearance on the source page; an
	// order id seen twice keeps its first position with the later values.
	Orders  []ScrapedOrder
	Skipped int
}

// Scraper extracts historical executive order descriptors from the source
// page.
type Scraper struct {
	http    *resty.Client
	objects ObjectStore
	ledger  Ledger
	trigger OrchestrationTrigger
	config  ScraperConfig
}

// NewScraper wires the scraper with its collaborators. ledger and trigger
// may be nil when traceability or downstream orchestration is not wanted
// (e.g. in tests or local runs).
func NewScraper(http *resty.Client, objects ObjectStore, ledger Ledger, trigger OrchestrationTrigger, config ScraperConfig) *Scraper {
	return &Scraper{
		http:    http,
		objects: objects,
		ledger:  ledger,
		trigger: trigger,
		config:  config,
	}
}

// Scrape fetches the listing page and parses it into descriptors. The debug
// snapshot write is a side effect; its failure is logged, never fatal.
func (s *Scraper) Scrape(ctx context.Context) (*ScrapeResult, error) {
	slog.Info("fetching source page", "url", s.config.BaseURL)
	resp, err := s.http.R().SetContext(ctx).Get(s.config.BaseURL)
	if err != nil {
		return nil, &FetchError{URL: s.config.BaseURL, Err: err}
	}
	if resp.StatusCode() != 200 {
		return nil, &FetchError{URL: s.config.BaseURL, Err: fmt.Errorf("unexpected status %d", resp.StatusCode())}
	}

	snapshotKey := fmt.Sprintf("debug/webpage_%s.html", time.Now().UTC().Format(exportStampFmt))
	if err := s.objects.Put(ctx, s.config.Bucket, snapshotKey, resp.Body(), "text/html"); err != nil {
		slog.Warn("failed to save debug snapshot", "key", snapshotKey, "error", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse source page: %w", err)
	}

	result := s.parseSections(doc)
	slog.Info("scrape complete", "orders", len(result.Orders), "skipped", result.Skipped)
	return result, nil
}

// parseSections walks the governor sections of the listing page.
func (s *Scraper) parseSections(doc *goquery.Document) *ScrapeResult {
	result := &ScrapeResult{}
	index := make(map[string]int)
	// The inherited title deliberately spans paragraph and section
	// boundaries; an orphaned continuation segment at the top of a section
	// picks up the previous section's title.
	lastTitle := ""

	doc.Find("div.t-section__wrapper").Each(func(_ int, section *goquery.Selection) {
		governor := strings.TrimSpace(section.Find("h2.t-section__title").First().Text())
		if governor == "" {
			governor = "Unknown Governor"
		}
		slog.Info("processing section", "governor", governor)

		content := section.Find("div.a-text__html").First()
		if content.Length() == 0 {
			slog.Warn("no content found in section", "governor", governor)
			return
		}

		content.Find("p").Each(func(_ int, p *goquery.Selection) {
			s.parseParagraph(p, governor, result, index, &lastTitle)
		})
	})

	return result
}

// parseParagraph matches a paragraph's text segments against the segment
// grammar, pairing each accepted order with the next unused PDF link in
// paragraph-appearance order.
func (s *Scraper) parseParagraph(p *goquery.Selection, governor string, result *ScrapeResult, index map[string]int, lastTitle *string) {
	var links []string
	p.Find(`a[href$=".pdf"]`).Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok {
			links = append(links, href)
		}
	})
	if len(links) == 0 {
		slog.Warn("no PDF links found in paragraph", "text", strings.TrimSpace(p.Text()))
		result.Skipped++
		return
	}

	linkIndex := 0
	for _, seg := range splitSegments(p.Text()) {
		parsed, ok := parseSegment(seg)
		if !ok {
			slog.Warn("could not parse segment", "segment", seg)
			result.Skipped++
			continue
		}

		// Only continuation segments inherit; a main segment without a
		// parenthesized title gets the sentinel.
		title := parsed.Title
		if parsed.Continuation {
			title = *lastTitle
		}
		if title == "" {
			title = models.SentinelTitle
		}

		// Orders are dropped, never stored with a missing URL.
		if linkIndex >= len(links) {
			slog.Warn("no PDF link available for order", "order_num", parsed.OrderNum, "segment", seg)
			result.Skipped++
			continue
		}
		pdfURL := links[linkIndex]
		linkIndex++
		if !strings.HasPrefix(pdfURL, "http") {
			pdfURL = s.config.SourceAuthority + pdfURL
		}

		signedDate, dateOK := parseDate(parsed.SignedDate)
		if !dateOK {
			slog.Warn("could not parse date, keeping original", "date", parsed.SignedDate)
		}

		orderID := models.OrderID(parsed.OrderNum)
		descriptor := models.OrderDescriptor{
			OrderNum:   parsed.OrderNum,
			Title:      title,
			SignedDate: signedDate,
			PDFUrl:     pdfURL,
			Src:        models.SrcValue,
			Governor:   governor,
		}
		if at, seen := index[orderID]; seen {
			result.Orders[at].Descriptor = descriptor
		} else {
			index[orderID] = len(result.Orders)
			result.Orders = append(result.Orders, ScrapedOrder{ID: orderID, Descriptor: descriptor})
		}
		*lastTitle = title
		slog.Info("extracted order", "order_id", orderID, "order_num", parsed.OrderNum, "signed_date", signedDate)
	}
}

// Run scrapes the source, exports the result as a timestamped JSON object
// and triggers the downstream orchestration workflow. Ledger and trigger
// failures are non-fatal once the export has landed.
func (s *Scraper) Run(ctx context.Context) (*models.ScrapeResponse, error) {
	var runID string
	if s.ledger != nil {
		runID = s.ledger.Record(ctx, models.ScrapeRun{Status: "RUNNING", StartedAt: time.Now().UTC()})
	}

	// The previous export is recorded alongside the new one so a run's
	// delta can be reconstructed from the ledger.
	previous, err := s.objects.Latest(ctx, s.config.Bucket, exportPrefix)
	if err != nil {
		slog.Warn("could not determine previous export", "error", err)
	} else if previous != "" {
		slog.Info("previous export found", "key", previous)
	}

	result, err := s.Scrape(ctx)
	if err != nil {
		s.finishRun(ctx, runID, map[string]any{"status": "FAILED", "errorDetails": err.Error(), "finishedAt": time.Now().UTC()})
		return nil, err
	}
	if len(result.Orders) == 0 {
		slog.Warn("no historical executive orders extracted")
		s.finishRun(ctx, runID, map[string]any{"status": "EMPTY", "skippedCount": result.Skipped, "finishedAt": time.Now().UTC()})
		return &models.ScrapeResponse{Message: "No data extracted"}, nil
	}

	exportKey := exportPrefix + time.Now().UTC().Format(exportStampFmt) + ".json"
	payload, err := marshalOrdered(result.Orders)
	if err != nil {
		s.finishRun(ctx, runID, map[string]any{"status": "FAILED", "errorDetails": err.Error(), "finishedAt": time.Now().UTC()})
		return nil, fmt.Errorf("failed to marshal export: %w", err)
	}
	if err := s.objects.Put(ctx, s.config.Bucket, exportKey, payload, "application/json"); err != nil {
		s.finishRun(ctx, runID, map[string]any{"status": "FAILED", "errorDetails": err.Error(), "finishedAt": time.Now().UTC()})
		return nil, fmt.Errorf("failed to save export: %w", err)
	}
	slog.Info("export saved", "bucket", s.config.Bucket, "key", exportKey)

	s.finishRun(ctx, runID, map[string]any{
		"status":         "SUCCEEDED",
		"exportObject":   exportKey,
		"previousExport": previous,
		"orderCount":     len(result.Orders),
		"skippedCount":   result.Skipped,
		"finishedAt":     time.Now().UTC(),
	})

	if s.trigger != nil {
		execution, err := s.trigger.Trigger(ctx, models.WorkflowArgument{
			Bucket:       s.config.Bucket,
			ExportObject: exportKey,
			OrderCount:   len(result.Orders),
		})
		if err != nil {
			slog.Warn("failed to trigger orchestration workflow", "error", err)
		} else {
			slog.Info("orchestration workflow triggered", "execution", execution)
		}
	}

	orders := make(map[string]models.OrderDescriptor, len(result.Orders))
	for _, o := range result.Orders {
		orders[o.ID] = o.Descriptor
	}
	return &models.ScrapeResponse{
		Message:      "Data extraction complete",
		ExportObject: exportKey,
		Bucket:       s.config.Bucket,
		Orders:       orders,
	}, nil
}

func (s *Scraper) finishRun(ctx context.Context, runID string, fields map[string]any) {
	if s.ledger != nil {
		s.ledger.Update(ctx, runID, fields)
	}
}

// marshalOrdered serializes the export as a JSON object whose keys appear in
// document order, matching the order invariant of the scrape itself.
func marshalOrdered(orders []ScrapedOrder) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, o := range orders {
		entry, err := json.MarshalIndent(o.Descriptor, "  ", "  ")
		if err != nil {
			return nil, err
		}
		key, _ := json.Marshal(o.ID)
		buf.WriteString("  ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(entry)
		if i < len(orders)-1 {
			buf.WriteString(",")
		}
		buf.WriteString("\n")
	}
	buf.WriteString("}")
	return buf.Bytes(), nil
}
