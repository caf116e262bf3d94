package auditclient

import "time"

// KeyPrefix is the issuer prefix carried by every platform API key. Error
// strings are scrubbed of anything matching it before they leave this package.
const KeyPrefix = "avk_"

// ValidationResult is the outcome of a credential validation call.
type ValidationResult struct {
	Valid              bool   `json:"valid"`
	Error              string `json:"error,omitempty"`
	OrganizationID     string `json:"organization_id,omitempty"`
	OrganizationName   string `json:"organization_name,omitempty"`
	CurrentAuditID     string `json:"current_audit_id,omitempty"`
	AuditScheduledDate string `json:"audit_scheduled_date,omitempty"`
	AuditorName        string `json:"auditor_name,omitempty"`
	AuditorEmail       string `json:"auditor_email,omitempty"`
}

// AuditQuestion is one question inside a COR element.
type AuditQuestion struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	EvidenceTypes []string `json:"evidenceTypes"`
	Required      bool     `json:"required"`
}

// AuditElement is one of the 14 numbered compliance categories.
type AuditElement struct {
	Number    int             `json:"number"`
	Name      string          `json:"name"`
	Weight    float64         `json:"weight"`
	Questions []AuditQuestion `json:"questions"`
}

// AuditStructure is the element/question hierarchy of one audit.
type AuditStructure struct {
	AuditID  string         `json:"audit_id"`
	Elements []AuditElement `json:"elements"`
}

// Attachment is an optional binary file uploaded with an evidence item.
type Attachment struct {
	Name string
	Data []byte
}

// EvidenceItem is the normalized payload sent to the platform. It is
// transient and never persisted.
type EvidenceItem struct {
	AuditID      string
	Element      int // COR element, 1-14
	QuestionID   string
	EvidenceType string
	Title        string
	Description  string
	Date         time.Time
	Attachment   *Attachment
	Metadata     map[string]interface{}
}

// UploadResult is the outcome of a single evidence upload.
type UploadResult struct {
	Success        bool   `json:"success"`
	ExternalItemID string `json:"external_item_id,omitempty"`
	Message        string `json:"message,omitempty"`
	Error          string `json:"error,omitempty"`
}

// BulkItemError records one failed item inside a bulk upload without
// aborting the remaining items.
type BulkItemError struct {
	Index int    `json:"index"` // 1-based position in the submitted batch
	Title string `json:"title"`
	Error string `json:"error"`
}

// BulkUploadResult aggregates a strictly sequential bulk upload.
type BulkUploadResult struct {
	Results []UploadResult  `json:"results"`
	Errors  []BulkItemError `json:"errors"`
}

// ProgressFunc receives (current, total) after every bulk item, success or not.
type ProgressFunc func(current, total int)
