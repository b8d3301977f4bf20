package models

// These structs define the JSON payloads for the HTTP triggers and for the
// hand-off between the scraper and the per-order orchestration workflow.

// ScrapeResponse is the body returned by the scrape trigger.
type ScrapeResponse struct {
	Message      string                     `json:"message"`
	ExportObject string                     `json:"export_object,omitempty"`
	Bucket       string                     `json:"bucket_name,omitempty"`
	Orders       map[string]OrderDescriptor `json:"orders,omitempty"`
}

// ProcessOrderRequest is the input for the per-order processing trigger.
type ProcessOrderRequest struct {
	OrderID   string           `json:"order_id"`
	OrderData *OrderDescriptor `json:"order_data"`
}

// ProcessOrderResponse is the output of the per-order processing trigger.
type ProcessOrderResponse struct {
	Message string `json:"message"`
	OrderID string `json:"order_id"`
}

// ErrorResponse is the uniform error body for both triggers.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WorkflowArgument is the payload handed to the orchestration workflow after
// a successful export. The workflow fans out one ProcessOrderRequest per
// descriptor in the export object.
type WorkflowArgument struct {
	Bucket       string `json:"bucket"`
	ExportObject string `json:"export_object"`
	OrderCount   int    `json:"order_count"`
}
