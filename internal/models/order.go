package models

import (
	"strings"
	"time"
)

// SrcValue identifies the provenance of every record produced by this
// pipeline.
const SrcValue = "governor.ny.gov"

// SentinelTitle is stored when no title could be extracted for an order.
const SentinelTitle = "No title available"

// AuditUser is recorded in the audit columns of every row this pipeline
// writes.
const AuditUser = "etl"

// OrderDescriptor is the in-memory record of one executive order's metadata
// prior to any persistence. It is produced by the scraper and consumed once
// by the order processor.
type OrderDescriptor struct {
	OrderNum   string `json:"order_num"`
	Title      string `json:"title"`
	SignedDate string `json:"signed_date"`
	PDFUrl     string `json:"pdf_url"`
	Src        string `json:"src"`
	Governor   string `json:"governor"`
}

// OrderID derives the stable natural key for an order number, e.g.
// "147.28" -> "NYORDER147_28".
func OrderID(orderNum string) string {
	return "NYORDER" + strings.ReplaceAll(orderNum, ".", "_")
}

// OrderEntry builds the executive_orders row for a descriptor. Audit columns
// are set as-of-now on every write since the pipeline always upserts.
func OrderEntry(orderID string, d OrderDescriptor, orderNum float64) map[string]any {
	now := time.Now().UTC().Format(time.RFC3339)
	return map[string]any{
		"order_id":      orderID,
		"title":         d.Title,
		"signed_date":   d.SignedDate,
		"description":   nil,
		"src":           d.Src,
		"row_ct_dt":     now,
		"row_ct_user":   AuditUser,
		"row_updt_dt":   now,
		"row_updt_user": AuditUser,
		"order_num":     orderNum,
	}
}

// OrderTextEntry builds the order_texts row. An empty text is a valid,
// storable outcome distinct from "row absent".
func OrderTextEntry(orderID, text, src string) map[string]any {
	now := time.Now().UTC().Format(time.RFC3339)
	return map[string]any{
		"order_id":      orderID,
		"text":          text,
		"src":           src,
		"row_ct_dt":     now,
		"row_ct_user":   AuditUser,
		"row_updt_dt":   now,
		"row_updt_user": AuditUser,
	}
}

// ScrapeRun tracks one scraper invocation in Firestore.
type ScrapeRun struct {
	Status         string    `firestore:"status,omitempty"`
	ExportObject   string    `firestore:"exportObject,omitempty"`
	PreviousExport string    `firestore:"previousExport,omitempty"`
	OrderCount     int       `firestore:"orderCount,omitempty"`
	SkippedCount   int       `firestore:"skippedCount,omitempty"`
	ErrorDetails   string    `firestore:"errorDetails,omitempty"`
	StartedAt      time.Time `firestore:"startedAt,omitempty"`
	FinishedAt     time.Time `firestore:"finishedAt,omitempty"`
}

// OrderRun tracks one order-processing invocation in Firestore.
type OrderRun struct {
	OrderID      string    `firestore:"orderId,omitempty"`
	Status       string    `firestore:"status,omitempty"`
	TextLength   int       `firestore:"textLength,omitempty"`
	ErrorDetails string    `firestore:"errorDetails,omitempty"`
	StartedAt    time.Time `firestore:"startedAt,omitempty"`
	FinishedAt   time.Time `firestore:"finishedAt,omitempty"`
}
