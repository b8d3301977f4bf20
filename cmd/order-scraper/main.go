package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/NathnaelYimer/historical-bill/internal/gcp"
	"github.com/NathnaelYimer/historical-bill/internal/models"
	"github.com/NathnaelYimer/historical-bill/internal/services"
)

var (
	scraperInstance *services.Scraper
	once            sync.Once
	initErr         error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register both triggers. The HTTP one serves manual invocations, the
	// CloudEvent one serves the Cloud Scheduler Pub/Sub topic.
	functions.HTTP("ScrapeHistoricalOrders", scrapeHistoricalOrders)
	functions.CloudEvent("ScrapeHistoricalOrdersScheduled", scrapeHistoricalOrdersScheduled)
}

// main is required by the Go Functions Framework.
func main() {}

// initScraper builds the scraper and its clients once per instance.
func initScraper() (*services.Scraper, error) {
	ctx := context.Background()

	bucket := os.Getenv("EXPORT_BUCKET")
	if bucket == "" {
		return nil, errors.New("EXPORT_BUCKET environment variable is not set")
	}

	objects, err := gcp.NewObjectStore(ctx)
	if err != nil {
		return nil, err
	}

	// The run ledger and the workflow trigger are optional integrations;
	// leaving their variables unset runs the scraper standalone.
	var ledger services.Ledger
	projectID := os.Getenv("PROJECT_ID")
	if projectID != "" {
		fsClient, err := gcp.NewFirestoreClient(ctx, projectID)
		if err != nil {
			return nil, err
		}
		ledger = gcp.NewRunLedger(fsClient, gcp.GetEnv("FIRESTORE_COLLECTION", "scrape-runs"))
	}

	var trigger services.OrchestrationTrigger
	workflow := os.Getenv("WORKFLOW_NAME")
	if projectID != "" && workflow != "" {
		wt, err := gcp.NewWorkflowTrigger(ctx, projectID, gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"), workflow)
		if err != nil {
			return nil, err
		}
		trigger = wt
	}

	config := services.ScraperConfig{
		BaseURL:         gcp.GetEnv("SOURCE_URL", "https://www.governor.ny.gov/past-executive-orders"),
		SourceAuthority: gcp.GetEnv("SOURCE_AUTHORITY", "https://www.governor.ny.gov"),
		Bucket:          bucket,
	}
	return services.NewScraper(services.NewHTTPClient(60*time.Second), objects, ledger, trigger, config), nil
}

// scrapeHistoricalOrders is the HTTP entry point.
func scrapeHistoricalOrders(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		scraperInstance, initErr = initScraper()
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "failed to initialize service"})
		return
	}

	res, err := scraperInstance.Run(r.Context())
	if err != nil {
		// The specific error is already logged inside Run.
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// scrapeHistoricalOrdersScheduled handles the Cloud Scheduler trigger. The
// event payload carries no parameters; it only signals "run now".
func scrapeHistoricalOrdersScheduled(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		scraperInstance, initErr = initScraper()
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	if _, err := scraperInstance.Run(ctx); err != nil {
		// Returning the error marks the invocation as failed.
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
