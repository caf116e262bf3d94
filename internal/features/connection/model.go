package connection

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultEndpoint is used when a tenant saves a connection without an
// explicit endpoint override.
const DefaultEndpoint = "https://api.auditvault.io"

type Status string

const (
	StatusActive       Status = "active"
	StatusInvalidKey   Status = "invalid_key"
	StatusExpired      Status = "expired"
	StatusDisconnected Status = "disconnected"
)

// Valid sync frequencies for scheduled incremental exports.
const (
	FrequencyHourly = "hourly"
	FrequencyDaily  = "daily"
	FrequencyWeekly = "weekly"
)

// ExportSummary is the denormalized snapshot of the most recent export run,
// kept on the connection row for the admin dashboard.
type ExportSummary struct {
	RunID       string         `json:"run_id" bson:"run_id"`
	SyncType    string         `json:"sync_type" bson:"sync_type"`
	Status      string         `json:"status" bson:"status"`
	Attempted   int            `json:"attempted" bson:"attempted"`
	Succeeded   int            `json:"succeeded" bson:"succeeded"`
	Failed      int            `json:"failed" bson:"failed"`
	ByType      map[string]int `json:"by_type" bson:"by_type"`
	CompletedAt time.Time      `json:"completed_at" bson:"completed_at"`
}

// Connection is the one-per-tenant link to the external audit platform.
// The API key is stored encrypted (nonce:tag:ciphertext, hex segments) and
// never leaves the connection manager decrypted.
type Connection struct {
	ID               primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TenantID         string             `json:"tenant_id" bson:"tenant_id"`
	EncryptedAPIKey  string             `json:"-" bson:"encrypted_api_key"`
	Endpoint         string             `json:"endpoint" bson:"endpoint"`
	OrganizationID   string             `json:"organization_id" bson:"organization_id"`
	OrganizationName string             `json:"organization_name" bson:"organization_name"`
	AuditID          string             `json:"audit_id" bson:"audit_id"`
	Status           Status             `json:"connection_status" bson:"connection_status"`

	SyncEnabled   bool   `json:"sync_enabled" bson:"sync_enabled"`
	SyncFrequency string `json:"sync_frequency" bson:"sync_frequency"`

	AuditScheduledDate string `json:"audit_scheduled_date,omitempty" bson:"audit_scheduled_date,omitempty"`
	AuditorName        string `json:"auditor_name,omitempty" bson:"auditor_name,omitempty"`
	AuditorEmail       string `json:"auditor_email,omitempty" bson:"auditor_email,omitempty"`

	TotalItemsSynced  int            `json:"total_items_synced" bson:"total_items_synced"`
	LastSyncAt        *time.Time     `json:"last_sync_at,omitempty" bson:"last_sync_at,omitempty"`
	LastSyncStatus    string         `json:"last_sync_status,omitempty" bson:"last_sync_status,omitempty"`
	LastExportSummary *ExportSummary `json:"last_export_summary,omitempty" bson:"last_export_summary,omitempty"`

	LastValidatedAt time.Time `json:"last_validated_at" bson:"last_validated_at"`
	ConnectedBy     string    `json:"connected_by" bson:"connected_by"`
	CreatedAt       time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" bson:"updated_at"`
}

// SafeConnection is the connection with the encrypted key replaced by a
// display hint. This is the only shape handed to the admin UI.
type SafeConnection struct {
	Connection
	APIKeyHint string `json:"api_key_hint"`
}

// Stats is the rolling sync statistics view for one tenant.
type Stats struct {
	Status            Status         `json:"connection_status"`
	OrganizationName  string         `json:"organization_name"`
	AuditID           string         `json:"audit_id"`
	TotalItemsSynced  int            `json:"total_items_synced"`
	LastSyncAt        *time.Time     `json:"last_sync_at,omitempty"`
	LastSyncStatus    string         `json:"last_sync_status,omitempty"`
	LastExportSummary *ExportSummary `json:"last_export_summary,omitempty"`
}
