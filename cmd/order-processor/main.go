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

	"github.com/NathnaelYimer/historical-bill/internal/database"
	"github.com/NathnaelYimer/historical-bill/internal/gcp"
	"github.com/NathnaelYimer/historical-bill/internal/models"
	"github.com/NathnaelYimer/historical-bill/internal/services"
)

var (
	processorInstance *services.Processor
	once              sync.Once
	initErr           error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("ProcessOrder", processOrder)
}

// main is required by the Go Functions Framework.
func main() {}

// initProcessor builds the processor and its clients once per instance.
func initProcessor() (*services.Processor, error) {
	ctx := context.Background()

	secretName := os.Getenv("DB_SECRET_NAME")
	bucket := os.Getenv("OCR_BUCKET")
	if secretName == "" || bucket == "" {
		return nil, errors.New("DB_SECRET_NAME and OCR_BUCKET environment variables must be set")
	}

	creds, err := gcp.DatabaseCredentials(ctx, secretName)
	if err != nil {
		return nil, err
	}
	db, err := database.Connect(ctx, creds)
	if err != nil {
		return nil, err
	}

	objects, err := gcp.NewObjectStore(ctx)
	if err != nil {
		return nil, err
	}
	ocr, err := gcp.NewVisionOCR(ctx, objects)
	if err != nil {
		return nil, err
	}

	var ledger services.Ledger
	if projectID := os.Getenv("PROJECT_ID"); projectID != "" {
		fsClient, err := gcp.NewFirestoreClient(ctx, projectID)
		if err != nil {
			return nil, err
		}
		ledger = gcp.NewRunLedger(fsClient, gcp.GetEnv("FIRESTORE_COLLECTION", "order-runs"))
	}

	extractor := services.NewExtractor(objects, ocr)
	config := services.ProcessorConfig{Bucket: bucket}
	return services.NewProcessor(services.NewHTTPClient(120*time.Second), db, extractor, ledger, config), nil
}

// processOrder is the HTTP handler invoked once per order by the workflow.
func processOrder(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		processorInstance, initErr = initProcessor()
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "failed to initialize service"})
		return
	}

	var req models.ProcessOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Could not decode request body", "error", err)
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "could not parse JSON"})
		return
	}
	if req.OrderID == "" || req.OrderData == nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "order_id and order_data are required"})
		return
	}

	if ok := processorInstance.Process(r.Context(), req.OrderID, *req.OrderData); !ok {
		// The specific error is already logged inside Process.
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "processing failed"})
		return
	}
	writeJSON(w, http.StatusOK, models.ProcessOrderResponse{
		Message: "order processed successfully",
		OrderID: req.OrderID,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
