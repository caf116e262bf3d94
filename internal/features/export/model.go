package export

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Sync run types.
const (
	SyncFullExport  = "full_export"
	SyncIncremental = "incremental"
	SyncSingleItem  = "single_item"
	SyncManual      = "manual"
)

// Sync run statuses. Partial is a terminal success-with-failures state,
// distinct from failed.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusPartial    = "partial"
	StatusFailed     = "failed"
)

// Mapping sync statuses.
const (
	MappingSynced      = "synced"
	MappingNeedsUpdate = "needs_update"
	MappingDeleted     = "deleted"
	MappingFailed      = "failed"
)

// ItemError is one record's failure inside a run. Item failures never abort
// the batch; they accumulate here.
type ItemError struct {
	ItemType  string    `json:"item_type" bson:"item_type"`
	ItemID    string    `json:"item_id" bson:"item_id"`
	ItemName  string    `json:"item_name" bson:"item_name"`
	Error     string    `json:"error" bson:"error"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// FilterSnapshot records the filters a run was asked to apply.
type FilterSnapshot struct {
	From     *time.Time `json:"from,omitempty" bson:"from,omitempty"`
	To       *time.Time `json:"to,omitempty" bson:"to,omitempty"`
	Elements []int      `json:"elements,omitempty" bson:"elements,omitempty"`
}

// SyncLog is one export run's audit trail row. Created at run start,
// finalized exactly once at run end, never deleted.
type SyncLog struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	RunID          string             `json:"run_id" bson:"run_id"`
	TenantID       string             `json:"tenant_id" bson:"tenant_id"`
	SyncType       string             `json:"sync_type" bson:"sync_type"`
	TriggeredBy    string             `json:"triggered_by" bson:"triggered_by"`
	Status         string             `json:"status" bson:"status"`
	ItemsAttempted int                `json:"items_attempted" bson:"items_attempted"`
	ItemsSucceeded int                `json:"items_succeeded" bson:"items_succeeded"`
	ItemsFailed    int                `json:"items_failed" bson:"items_failed"`
	ByType         map[string]int     `json:"by_type,omitempty" bson:"by_type,omitempty"`
	Errors         []ItemError        `json:"errors,omitempty" bson:"errors,omitempty"`
	Filters        FilterSnapshot     `json:"filters" bson:"filters"`
	StartedAt      time.Time          `json:"started_at" bson:"started_at"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}

// ItemMapping proves one internal record has been uploaded. Its existence is
// the sole idempotency signal for incremental runs.
type ItemMapping struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TenantID     string             `json:"tenant_id" bson:"tenant_id"`
	ItemType     string             `json:"item_type" bson:"item_type"`
	ItemID       string             `json:"item_id" bson:"item_id"`
	ExternalID   string             `json:"external_id" bson:"external_id"`
	ExternalKind string             `json:"external_kind" bson:"external_kind"`
	Element      int                `json:"element" bson:"element"`
	QuestionID   string             `json:"question_id,omitempty" bson:"question_id,omitempty"`
	SyncStatus   string             `json:"sync_status" bson:"sync_status"`
	SyncedAt     time.Time          `json:"synced_at" bson:"synced_at"`
}

// ProgressFunc reports coarse per-type progress during a run.
type ProgressFunc func(phase string, current, total int, percentage float64)

// Options configures one export run.
type Options struct {
	SyncType    string
	TriggeredBy string
	From        *time.Time
	To          *time.Time
	Elements    []int
	Progress    ProgressFunc
}

// Result is the aggregated outcome of an export run.
type Result struct {
	RunID     string         `json:"run_id"`
	Success   bool           `json:"success"`
	Status    string         `json:"status"`
	Attempted int            `json:"attempted"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	ByType    map[string]int `json:"by_type"`
	Errors    []ItemError    `json:"errors,omitempty"`
}

// SingleItemResult reports the outcome of a one-record export.
type SingleItemResult struct {
	RunID      string `json:"run_id"`
	Success    bool   `json:"success"`
	ItemType   string `json:"item_type"`
	ItemID     string `json:"item_id"`
	ExternalID string `json:"external_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// typeResult is one exporter's tally for a single run.
type typeResult struct {
	Total     int
	Succeeded int
	Failed    int
	Errors    []ItemError
}
