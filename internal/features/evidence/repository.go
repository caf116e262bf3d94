package evidence

import (
	"context"
	"fmt"

	"go-comply/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EvidenceRepository reads export candidates from the platform's source
// collections. The collections are owned by the wider product; this layer
// only queries them.
type EvidenceRepository interface {
	List(ctx context.Context, tenantID, itemType string, f Filters) ([]Source, error)
}

type EvidenceRepositoryImpl struct {
	db *mongo.Database
}

func NewEvidenceRepository(db *database.MongodbDB) EvidenceRepository {
	return &EvidenceRepositoryImpl{db: db.DB}
}

func (r *EvidenceRepositoryImpl) List(ctx context.Context, tenantID, itemType string, f Filters) ([]Source, error) {
	switch itemType {
	case TypeFormSubmission:
		return r.listFormSubmissions(ctx, tenantID, f)
	case TypeDocument:
		return r.listDocuments(ctx, tenantID, f)
	case TypeCertification:
		return r.listCertifications(ctx, tenantID, f)
	case TypeMaintenanceRecord:
		return r.listMaintenanceRecords(ctx, tenantID, f)
	case TypeTrainingRecord:
		return r.listTrainingRecords(ctx, tenantID, f)
	case TypeMeetingMinutes:
		return r.listMeetingMinutes(ctx, tenantID, f)
	case TypeInspection:
		return r.listInspections(ctx, tenantID, f)
	case TypeIncidentReport:
		return r.listIncidentReports(ctx, tenantID, f)
	default:
		return nil, fmt.Errorf("unknown evidence type %q", itemType)
	}
}

// buildFilter scopes a candidate query to one tenant with an optional date
// range. Types with a per-row element list also filter on it here; fixed
// element types are filtered once by the caller before querying at all.
func buildFilter(tenantID, dateField string, f Filters, rowElements bool) bson.M {
	filter := bson.M{"tenant_id": tenantID}

	if f.From != nil || f.To != nil {
		dateRange := bson.M{}
		if f.From != nil {
			dateRange["$gte"] = *f.From
		}
		if f.To != nil {
			dateRange["$lte"] = *f.To
		}
		filter[dateField] = dateRange
	}

	if rowElements && len(f.Elements) > 0 {
		filter["elements"] = bson.M{"$in": f.Elements}
	}
	return filter
}

func (r *EvidenceRepositoryImpl) find(ctx context.Context, collection, dateField string, filter bson.M) (*mongo.Cursor, error) {
	opts := options.Find().SetSort(bson.D{{Key: dateField, Value: 1}})
	return r.db.Collection(collection).Find(ctx, filter, opts)
}

func (r *EvidenceRepositoryImpl) listFormSubmissions(ctx context.Context, tenantID string, f Filters) ([]Source, error) {
	cursor, err := r.find(ctx, "form_submissions", "submitted_at", buildFilter(tenantID, "submitted_at", f, true))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []FormSubmission
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	sources := make([]Source, 0, len(rows))
	for i := range rows {
		sources = append(sources, &rows[i])
	}
	return sources, nil
}

func (r *EvidenceRepositoryImpl) listDocuments(ctx context.Context, tenantID string, f Filters) ([]Source, error) {
	cursor, err := r.find(ctx, "documents", "uploaded_at", buildFilter(tenantID, "uploaded_at", f, true))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []Document
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	sources := make([]Source, 0, len(rows))
	for i := range rows {
		sources = append(sources, &rows[i])
	}
	return sources, nil
}

func (r *EvidenceRepositoryImpl) listCertifications(ctx context.Context, tenantID string, f Filters) ([]Source, error) {
	cursor, err := r.find(ctx, "certifications", "issued_at", buildFilter(tenantID, "issued_at", f, false))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []Certification
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	sources := make([]Source, 0, len(rows))
	for i := range rows {
		sources = append(sources, &rows[i])
	}
	return sources, nil
}

func (r *EvidenceRepositoryImpl) listMaintenanceRecords(ctx context.Context, tenantID string, f Filters) ([]Source, error) {
	cursor, err := r.find(ctx, "maintenance_records", "performed_at", buildFilter(tenantID, "performed_at", f, false))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []MaintenanceRecord
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	sources := make([]Source, 0, len(rows))
	for i := range rows {
		sources = append(sources, &rows[i])
	}
	return sources, nil
}

func (r *EvidenceRepositoryImpl) listTrainingRecords(ctx context.Context, tenantID string, f Filters) ([]Source, error) {
	cursor, err := r.find(ctx, "training_records", "completed_at", buildFilter(tenantID, "completed_at", f, false))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []TrainingRecord
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	sources := make([]Source, 0, len(rows))
	for i := range rows {
		sources = append(sources, &rows[i])
	}
	return sources, nil
}

func (r *EvidenceRepositoryImpl) listMeetingMinutes(ctx context.Context, tenantID string, f Filters) ([]Source, error) {
	cursor, err := r.find(ctx, "meeting_minutes", "held_at", buildFilter(tenantID, "held_at", f, false))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []MeetingMinutes
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	sources := make([]Source, 0, len(rows))
	for i := range rows {
		sources = append(sources, &rows[i])
	}
	return sources, nil
}

func (r *EvidenceRepositoryImpl) listInspections(ctx context.Context, tenantID string, f Filters) ([]Source, error) {
	cursor, err := r.find(ctx, "inspections", "inspected_at", buildFilter(tenantID, "inspected_at", f, false))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []Inspection
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	sources := make([]Source, 0, len(rows))
	for i := range rows {
		sources = append(sources, &rows[i])
	}
	return sources, nil
}

func (r *EvidenceRepositoryImpl) listIncidentReports(ctx context.Context, tenantID string, f Filters) ([]Source, error) {
	cursor, err := r.find(ctx, "incident_reports", "occurred_at", buildFilter(tenantID, "occurred_at", f, false))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []IncidentReport
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	sources := make([]Source, 0, len(rows))
	for i := range rows {
		sources = append(sources, &rows[i])
	}
	return sources, nil
}
