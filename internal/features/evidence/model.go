// Package evidence models the eight exportable record types as explicit
// typed variants, each with its own converter to the normalized upload
// payload. Loose maps from the data layer stop at this boundary.
package evidence

import (
	"time"

	"go-comply/internal/auditclient"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Item type tags, also used as the mapping keys for idempotency.
const (
	TypeFormSubmission    = "form_submission"
	TypeDocument          = "document"
	TypeCertification     = "certification"
	TypeMaintenanceRecord = "maintenance_record"
	TypeTrainingRecord    = "training_record"
	TypeMeetingMinutes    = "meeting_minutes"
	TypeInspection        = "inspection"
	TypeIncidentReport    = "incident_report"
)

// AllTypes is the fixed export order of the orchestrator.
var AllTypes = []string{
	TypeFormSubmission,
	TypeDocument,
	TypeCertification,
	TypeMaintenanceRecord,
	TypeTrainingRecord,
	TypeMeetingMinutes,
	TypeInspection,
	TypeIncidentReport,
}

// Fixed COR elements for the types that do not carry a per-row element list.
const (
	ElementCertifications = 4
	ElementTraining       = 5
	ElementInspections    = 7
	ElementMaintenance    = 9
	ElementMeetings       = 11
	ElementIncidents      = 13
)

// Filters narrows a candidate query.
type Filters struct {
	From     *time.Time
	To       *time.Time
	Elements []int // COR elements; empty means all
}

// WantsElement reports whether the filter admits the given COR element.
func (f Filters) WantsElement(element int) bool {
	if len(f.Elements) == 0 {
		return true
	}
	for _, e := range f.Elements {
		if e == element {
			return true
		}
	}
	return false
}

// Source is one exportable record regardless of its concrete type.
type Source interface {
	ItemType() string
	ItemID() string
	ItemName() string
	Element() int
	AttachmentPath() string
	BuildItem() *auditclient.EvidenceItem
}

// FormSubmission is a completed safety form. Its COR elements come from the
// form template, so the primary element is row-derived.
type FormSubmission struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TenantID       string             `json:"tenant_id" bson:"tenant_id"`
	FormName       string             `json:"form_name" bson:"form_name"`
	FormTemplateID string             `json:"form_template_id" bson:"form_template_id"`
	Elements       []int              `json:"elements" bson:"elements"`
	SubmittedBy    string             `json:"submitted_by" bson:"submitted_by"`
	SubmittedAt    time.Time          `json:"submitted_at" bson:"submitted_at"`
	Summary        string             `json:"summary" bson:"summary"`
	PDFPath        string             `json:"pdf_path,omitempty" bson:"pdf_path,omitempty"`
}

func (f *FormSubmission) ItemType() string { return TypeFormSubmission }
func (f *FormSubmission) ItemID() string   { return f.ID.Hex() }
func (f *FormSubmission) ItemName() string { return f.FormName }

func (f *FormSubmission) Element() int {
	if len(f.Elements) > 0 {
		return f.Elements[0]
	}
	return 1
}

func (f *FormSubmission) AttachmentPath() string { return f.PDFPath }

func (f *FormSubmission) BuildItem() *auditclient.EvidenceItem {
	return &auditclient.EvidenceItem{
		Element:      f.Element(),
		EvidenceType: "form",
		Title:        f.FormName,
		Description:  f.Summary,
		Date:         f.SubmittedAt,
		Metadata: map[string]interface{}{
			"form_template_id": f.FormTemplateID,
			"submitted_by":     f.SubmittedBy,
			"elements":         f.Elements,
		},
	}
}

// Document is an uploaded policy or procedure document; its elements are
// tagged by the uploader, so the primary element is row-derived.
type Document struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TenantID    string             `json:"tenant_id" bson:"tenant_id"`
	Title       string             `json:"title" bson:"title"`
	Category    string             `json:"category" bson:"category"`
	Elements    []int              `json:"elements" bson:"elements"`
	Description string             `json:"description" bson:"description"`
	UploadedAt  time.Time          `json:"uploaded_at" bson:"uploaded_at"`
	FilePath    string             `json:"file_path,omitempty" bson:"file_path,omitempty"`
}

func (d *Document) ItemType() string { return TypeDocument }
func (d *Document) ItemID() string   { return d.ID.Hex() }
func (d *Document) ItemName() string { return d.Title }

func (d *Document) Element() int {
	if len(d.Elements) > 0 {
		return d.Elements[0]
	}
	return 1
}

func (d *Document) AttachmentPath() string { return d.FilePath }

func (d *Document) BuildItem() *auditclient.EvidenceItem {
	return &auditclient.EvidenceItem{
		Element:      d.Element(),
		EvidenceType: "document",
		Title:        d.Title,
		Description:  d.Description,
		Date:         d.UploadedAt,
		Metadata: map[string]interface{}{
			"category": d.Category,
			"elements": d.Elements,
		},
	}
}

// Certification is a worker certification or license.
type Certification struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TenantID        string             `json:"tenant_id" bson:"tenant_id"`
	WorkerName      string             `json:"worker_name" bson:"worker_name"`
	CertificateName string             `json:"certificate_name" bson:"certificate_name"`
	IssuedBy        string             `json:"issued_by" bson:"issued_by"`
	IssuedAt        time.Time          `json:"issued_at" bson:"issued_at"`
	ExpiresAt       *time.Time         `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
	ScanPath        string             `json:"scan_path,omitempty" bson:"scan_path,omitempty"`
}

func (c *Certification) ItemType() string { return TypeCertification }
func (c *Certification) ItemID() string   { return c.ID.Hex() }
func (c *Certification) ItemName() string {
	return c.CertificateName + " - " + c.WorkerName
}
func (c *Certification) Element() int           { return ElementCertifications }
func (c *Certification) AttachmentPath() string { return c.ScanPath }

func (c *Certification) BuildItem() *auditclient.EvidenceItem {
	meta := map[string]interface{}{
		"worker_name": c.WorkerName,
		"issued_by":   c.IssuedBy,
	}
	if c.ExpiresAt != nil {
		meta["expires_at"] = c.ExpiresAt.Format("2006-01-02")
	}
	return &auditclient.EvidenceItem{
		Element:      c.Element(),
		EvidenceType: "certification",
		Title:        c.ItemName(),
		Description:  "Certification issued by " + c.IssuedBy,
		Date:         c.IssuedAt,
		Metadata:     meta,
	}
}

// MaintenanceRecord is a completed equipment maintenance entry.
type MaintenanceRecord struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TenantID      string             `json:"tenant_id" bson:"tenant_id"`
	EquipmentName string             `json:"equipment_name" bson:"equipment_name"`
	WorkPerformed string             `json:"work_performed" bson:"work_performed"`
	PerformedBy   string             `json:"performed_by" bson:"performed_by"`
	PerformedAt   time.Time          `json:"performed_at" bson:"performed_at"`
	ReportPath    string             `json:"report_path,omitempty" bson:"report_path,omitempty"`
}

func (m *MaintenanceRecord) ItemType() string       { return TypeMaintenanceRecord }
func (m *MaintenanceRecord) ItemID() string         { return m.ID.Hex() }
func (m *MaintenanceRecord) ItemName() string       { return m.EquipmentName + " maintenance" }
func (m *MaintenanceRecord) Element() int           { return ElementMaintenance }
func (m *MaintenanceRecord) AttachmentPath() string { return m.ReportPath }

func (m *MaintenanceRecord) BuildItem() *auditclient.EvidenceItem {
	return &auditclient.EvidenceItem{
		Element:      m.Element(),
		EvidenceType: "maintenance",
		Title:        m.ItemName(),
		Description:  m.WorkPerformed,
		Date:         m.PerformedAt,
		Metadata: map[string]interface{}{
			"equipment":    m.EquipmentName,
			"performed_by": m.PerformedBy,
		},
	}
}

// TrainingRecord is one worker's completion of a training session.
type TrainingRecord struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TenantID    string             `json:"tenant_id" bson:"tenant_id"`
	CourseName  string             `json:"course_name" bson:"course_name"`
	WorkerName  string             `json:"worker_name" bson:"worker_name"`
	Trainer     string             `json:"trainer" bson:"trainer"`
	CompletedAt time.Time          `json:"completed_at" bson:"completed_at"`
	Score       *float64           `json:"score,omitempty" bson:"score,omitempty"`
	RecordPath  string             `json:"record_path,omitempty" bson:"record_path,omitempty"`
}

func (r *TrainingRecord) ItemType() string       { return TypeTrainingRecord }
func (r *TrainingRecord) ItemID() string         { return r.ID.Hex() }
func (r *TrainingRecord) ItemName() string       { return r.CourseName + " - " + r.WorkerName }
func (r *TrainingRecord) Element() int           { return ElementTraining }
func (r *TrainingRecord) AttachmentPath() string { return r.RecordPath }

func (r *TrainingRecord) BuildItem() *auditclient.EvidenceItem {
	meta := map[string]interface{}{
		"worker_name": r.WorkerName,
		"trainer":     r.Trainer,
	}
	if r.Score != nil {
		meta["score"] = *r.Score
	}
	return &auditclient.EvidenceItem{
		Element:      r.Element(),
		EvidenceType: "training",
		Title:        r.ItemName(),
		Description:  "Training delivered by " + r.Trainer,
		Date:         r.CompletedAt,
		Metadata:     meta,
	}
}

// MeetingMinutes records a safety meeting and its attendance.
type MeetingMinutes struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TenantID  string             `json:"tenant_id" bson:"tenant_id"`
	Subject   string             `json:"subject" bson:"subject"`
	Minutes   string             `json:"minutes" bson:"minutes"`
	Attendees []string           `json:"attendees" bson:"attendees"`
	HeldAt    time.Time          `json:"held_at" bson:"held_at"`
	NotesPath string             `json:"notes_path,omitempty" bson:"notes_path,omitempty"`
}

func (m *MeetingMinutes) ItemType() string       { return TypeMeetingMinutes }
func (m *MeetingMinutes) ItemID() string         { return m.ID.Hex() }
func (m *MeetingMinutes) ItemName() string       { return m.Subject }
func (m *MeetingMinutes) Element() int           { return ElementMeetings }
func (m *MeetingMinutes) AttachmentPath() string { return m.NotesPath }

func (m *MeetingMinutes) BuildItem() *auditclient.EvidenceItem {
	return &auditclient.EvidenceItem{
		Element:      m.Element(),
		EvidenceType: "meeting",
		Title:        m.Subject,
		Description:  m.Minutes,
		Date:         m.HeldAt,
		Metadata: map[string]interface{}{
			"attendees": m.Attendees,
		},
	}
}

// Inspection is a completed workplace inspection.
type Inspection struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TenantID      string             `json:"tenant_id" bson:"tenant_id"`
	Area          string             `json:"area" bson:"area"`
	Inspector     string             `json:"inspector" bson:"inspector"`
	Findings      string             `json:"findings" bson:"findings"`
	DeficiencyCnt int                `json:"deficiency_count" bson:"deficiency_count"`
	InspectedAt   time.Time          `json:"inspected_at" bson:"inspected_at"`
	ChecklistPath string             `json:"checklist_path,omitempty" bson:"checklist_path,omitempty"`
}

func (i *Inspection) ItemType() string       { return TypeInspection }
func (i *Inspection) ItemID() string         { return i.ID.Hex() }
func (i *Inspection) ItemName() string       { return i.Area + " inspection" }
func (i *Inspection) Element() int           { return ElementInspections }
func (i *Inspection) AttachmentPath() string { return i.ChecklistPath }

func (i *Inspection) BuildItem() *auditclient.EvidenceItem {
	return &auditclient.EvidenceItem{
		Element:      i.Element(),
		EvidenceType: "inspection",
		Title:        i.ItemName(),
		Description:  i.Findings,
		Date:         i.InspectedAt,
		Metadata: map[string]interface{}{
			"inspector":        i.Inspector,
			"deficiency_count": i.DeficiencyCnt,
		},
	}
}

// IncidentReport records a workplace incident or near miss.
type IncidentReport struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TenantID    string             `json:"tenant_id" bson:"tenant_id"`
	Title       string             `json:"title" bson:"title"`
	Severity    string             `json:"severity" bson:"severity"`
	Description string             `json:"description" bson:"description"`
	ReportedBy  string             `json:"reported_by" bson:"reported_by"`
	OccurredAt  time.Time          `json:"occurred_at" bson:"occurred_at"`
	ReportPath  string             `json:"report_path,omitempty" bson:"report_path,omitempty"`
}

func (r *IncidentReport) ItemType() string       { return TypeIncidentReport }
func (r *IncidentReport) ItemID() string         { return r.ID.Hex() }
func (r *IncidentReport) ItemName() string       { return r.Title }
func (r *IncidentReport) Element() int           { return ElementIncidents }
func (r *IncidentReport) AttachmentPath() string { return r.ReportPath }

func (r *IncidentReport) BuildItem() *auditclient.EvidenceItem {
	return &auditclient.EvidenceItem{
		Element:      r.Element(),
		EvidenceType: "incident",
		Title:        r.Title,
		Description:  r.Description,
		Date:         r.OccurredAt,
		Metadata: map[string]interface{}{
			"severity":    r.Severity,
			"reported_by": r.ReportedBy,
		},
	}
}
