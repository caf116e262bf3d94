package export

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go-comply/internal/auditclient"
	"go-comply/internal/features/connection"
	"go-comply/internal/features/evidence"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type fakeAuditAPI struct {
	uploads  int
	uploadFn func(item *auditclient.EvidenceItem) (*auditclient.UploadResult, error)
}

func (f *fakeAuditAPI) ValidateConnection(ctx context.Context) (*auditclient.ValidationResult, error) {
	return &auditclient.ValidationResult{Valid: true}, nil
}

func (f *fakeAuditAPI) GetAuditStructure(ctx context.Context, auditID string) (*auditclient.AuditStructure, error) {
	return &auditclient.AuditStructure{AuditID: auditID}, nil
}

func (f *fakeAuditAPI) UploadEvidence(ctx context.Context, item *auditclient.EvidenceItem) (*auditclient.UploadResult, error) {
	f.uploads++
	if f.uploadFn != nil {
		return f.uploadFn(item)
	}
	return &auditclient.UploadResult{Success: true, ExternalItemID: fmt.Sprintf("ext-%d", f.uploads)}, nil
}

func (f *fakeAuditAPI) BulkUploadEvidence(ctx context.Context, auditID string, items []*auditclient.EvidenceItem, onProgress auditclient.ProgressFunc) (*auditclient.BulkUploadResult, error) {
	return &auditclient.BulkUploadResult{}, nil
}

func (f *fakeAuditAPI) UpdateEvidence(ctx context.Context, externalID string, updates map[string]interface{}) error {
	return nil
}

func (f *fakeAuditAPI) DeleteEvidence(ctx context.Context, externalID string) error {
	return nil
}

func (f *fakeAuditAPI) GetAuditStatus(ctx context.Context, auditID string) (map[string]interface{}, error) {
	return map[string]interface{}{}, nil
}

type recordedOutcome struct {
	status      string
	itemsSynced int
	summary     *connection.ExportSummary
}

type fakeConnectionService struct {
	conn     *connection.Connection
	client   *fakeAuditAPI
	outcomes []recordedOutcome
}

func (f *fakeConnectionService) GetClient(ctx context.Context, tenantID string) (connection.AuditAPI, *connection.Connection, error) {
	if f.conn == nil {
		return nil, nil, connection.ErrNotConfigured
	}
	if f.conn.Status != connection.StatusActive {
		return nil, nil, connection.ErrInactive
	}
	return f.client, f.conn, nil
}

func (f *fakeConnectionService) RecordExportOutcome(ctx context.Context, tenantID, status string, itemsSynced int, summary *connection.ExportSummary) error {
	f.outcomes = append(f.outcomes, recordedOutcome{status: status, itemsSynced: itemsSynced, summary: summary})
	return nil
}

func (f *fakeConnectionService) SaveConnection(ctx context.Context, tenantID, apiKey, actorID, endpoint string) (*connection.Connection, error) {
	return f.conn, nil
}

func (f *fakeConnectionService) GetConnection(ctx context.Context, tenantID string) (*connection.Connection, error) {
	if f.conn == nil {
		return nil, connection.ErrNotConfigured
	}
	return f.conn, nil
}

func (f *fakeConnectionService) GetDecryptedAPIKey(ctx context.Context, tenantID string) (string, error) {
	return "avk_test", nil
}

func (f *fakeConnectionService) ValidateConnection(ctx context.Context, tenantID string) (*auditclient.ValidationResult, error) {
	return &auditclient.ValidationResult{Valid: true}, nil
}

func (f *fakeConnectionService) Disconnect(ctx context.Context, tenantID string) error { return nil }

func (f *fakeConnectionService) UpdateSyncSettings(ctx context.Context, tenantID string, enabled bool, frequency string) error {
	return nil
}

func (f *fakeConnectionService) GetStats(ctx context.Context, tenantID string) (*connection.Stats, error) {
	return &connection.Stats{}, nil
}

func (f *fakeConnectionService) GetSafeConnectionInfo(ctx context.Context, tenantID string) (*connection.SafeConnection, error) {
	return &connection.SafeConnection{}, nil
}

type fakeEvidenceRepo struct {
	byType map[string][]evidence.Source
}

func (f *fakeEvidenceRepo) List(ctx context.Context, tenantID, itemType string, filters evidence.Filters) ([]evidence.Source, error) {
	return f.byType[itemType], nil
}

type fakeLogRepo struct {
	logs []*SyncLog
}

func (f *fakeLogRepo) Create(ctx context.Context, log *SyncLog) error {
	if log.StartedAt.IsZero() {
		log.StartedAt = time.Now()
	}
	f.logs = append(f.logs, log)
	return nil
}

func (f *fakeLogRepo) Finish(ctx context.Context, runID, status string, attempted, succeeded, failed int, byType map[string]int, errs []ItemError) error {
	for _, log := range f.logs {
		if log.RunID == runID {
			now := time.Now()
			log.Status = status
			log.ItemsAttempted = attempted
			log.ItemsSucceeded = succeeded
			log.ItemsFailed = failed
			log.ByType = byType
			log.Errors = errs
			log.CompletedAt = &now
			return nil
		}
	}
	return mongo.ErrNoDocuments
}

func (f *fakeLogRepo) GetByRunID(ctx context.Context, tenantID, runID string) (*SyncLog, error) {
	for _, log := range f.logs {
		if log.RunID == runID {
			return log, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (f *fakeLogRepo) ListByTenant(ctx context.Context, tenantID string, limit int64) ([]SyncLog, error) {
	var out []SyncLog
	for _, log := range f.logs {
		if log.TenantID == tenantID {
			out = append(out, *log)
		}
	}
	return out, nil
}

func (f *fakeLogRepo) EnsureIndexes(ctx context.Context) error { return nil }

type fakeMappingRepo struct {
	rows map[string]*ItemMapping
}

func newFakeMappingRepo() *fakeMappingRepo {
	return &fakeMappingRepo{rows: make(map[string]*ItemMapping)}
}

func mappingKey(tenantID, itemType, itemID string) string {
	return tenantID + "|" + itemType + "|" + itemID
}

func (f *fakeMappingRepo) Upsert(ctx context.Context, mapping *ItemMapping) error {
	mapping.SyncedAt = time.Now()
	f.rows[mappingKey(mapping.TenantID, mapping.ItemType, mapping.ItemID)] = mapping
	return nil
}

func (f *fakeMappingRepo) Get(ctx context.Context, tenantID, itemType, itemID string) (*ItemMapping, error) {
	if m, ok := f.rows[mappingKey(tenantID, itemType, itemID)]; ok {
		return m, nil
	}
	return nil, mongo.ErrNoDocuments
}

func (f *fakeMappingRepo) SyncedIDs(ctx context.Context, tenantID, itemType string) (map[string]bool, error) {
	ids := make(map[string]bool)
	for _, m := range f.rows {
		if m.TenantID == tenantID && m.ItemType == itemType {
			ids[m.ItemID] = true
		}
	}
	return ids, nil
}

func (f *fakeMappingRepo) EnsureIndexes(ctx context.Context) error { return nil }

type fakeBlobStore struct {
	files map[string][]byte
	fail  bool
}

func (f *fakeBlobStore) Download(ctx context.Context, path string) (string, []byte, error) {
	if f.fail {
		return "", nil, errors.New("blob unavailable")
	}
	if data, ok := f.files[path]; ok {
		return path, data, nil
	}
	return "", nil, errors.New("not found")
}

const testTenant = "tenant-1"

func activeConnection() *connection.Connection {
	return &connection.Connection{
		TenantID: testTenant,
		AuditID:  "audit-42",
		Endpoint: "https://api.auditvault.io",
		Status:   connection.StatusActive,
	}
}

func formSubmission(name string) *evidence.FormSubmission {
	return &evidence.FormSubmission{
		ID:          primitive.NewObjectID(),
		TenantID:    testTenant,
		FormName:    name,
		Elements:    []int{3},
		SubmittedAt: time.Now().Add(-24 * time.Hour),
	}
}

type harness struct {
	service     *ExportServiceImpl
	connections *fakeConnectionService
	client      *fakeAuditAPI
	evidence    *fakeEvidenceRepo
	logs        *fakeLogRepo
	mappings    *fakeMappingRepo
	blobs       *fakeBlobStore
}

func newHarness(conn *connection.Connection) *harness {
	client := &fakeAuditAPI{}
	connections := &fakeConnectionService{conn: conn, client: client}
	evidenceRepo := &fakeEvidenceRepo{byType: make(map[string][]evidence.Source)}
	logs := &fakeLogRepo{}
	mappings := newFakeMappingRepo()
	blobs := &fakeBlobStore{files: make(map[string][]byte)}

	service := NewExportService(connections, evidenceRepo, logs, mappings, blobs, zap.NewNop()).(*ExportServiceImpl)
	return &harness{
		service:     service,
		connections: connections,
		client:      client,
		evidence:    evidenceRepo,
		logs:        logs,
		mappings:    mappings,
		blobs:       blobs,
	}
}

func TestExportAllCompletes(t *testing.T) {
	h := newHarness(activeConnection())
	h.evidence.byType[evidence.TypeFormSubmission] = []evidence.Source{
		formSubmission("Toolbox Talk"), formSubmission("Hazard Assessment"),
	}
	h.evidence.byType[evidence.TypeInspection] = []evidence.Source{
		&evidence.Inspection{ID: primitive.NewObjectID(), TenantID: testTenant, Area: "Warehouse", InspectedAt: time.Now()},
	}

	var phases []string
	result, err := h.service.ExportAllEvidence(context.Background(), testTenant, Options{
		SyncType:    SyncFullExport,
		TriggeredBy: "user-1",
		Progress: func(phase string, current, total int, percentage float64) {
			phases = append(phases, phase)
		},
	})
	if err != nil {
		t.Fatalf("ExportAllEvidence() error = %v", err)
	}

	if !result.Success || result.Status != StatusCompleted {
		t.Errorf("result = %+v, want completed success", result)
	}
	if result.Attempted != 3 || result.Succeeded != 3 || result.Failed != 0 {
		t.Errorf("counts = %d/%d/%d, want 3/3/0", result.Attempted, result.Succeeded, result.Failed)
	}
	if result.ByType[evidence.TypeFormSubmission] != 2 || result.ByType[evidence.TypeInspection] != 1 {
		t.Errorf("ByType = %v", result.ByType)
	}
	if len(phases) != len(evidence.AllTypes) {
		t.Errorf("progress calls = %d, want %d", len(phases), len(evidence.AllTypes))
	}
	if len(h.mappings.rows) != 3 {
		t.Errorf("mappings = %d, want 3", len(h.mappings.rows))
	}

	log, err := h.logs.GetByRunID(context.Background(), testTenant, result.RunID)
	if err != nil {
		t.Fatalf("run log not persisted: %v", err)
	}
	if log.Status != StatusCompleted || log.CompletedAt == nil {
		t.Errorf("log = %+v, want finalized completed", log)
	}

	if len(h.connections.outcomes) != 1 {
		t.Fatalf("outcomes = %d, want 1", len(h.connections.outcomes))
	}
	outcome := h.connections.outcomes[0]
	if outcome.status != StatusCompleted || outcome.itemsSynced != 3 || outcome.summary == nil {
		t.Errorf("outcome = %+v", outcome)
	}
}

func TestIncrementalRunIsIdempotent(t *testing.T) {
	h := newHarness(activeConnection())
	h.evidence.byType[evidence.TypeFormSubmission] = []evidence.Source{
		formSubmission("Toolbox Talk"), formSubmission("Hazard Assessment"),
	}

	if _, err := h.service.ExportAllEvidence(context.Background(), testTenant, Options{SyncType: SyncIncremental}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	uploadsAfterFirst := h.client.uploads
	mappingsAfterFirst := len(h.mappings.rows)

	result, err := h.service.ExportAllEvidence(context.Background(), testTenant, Options{SyncType: SyncIncremental})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if h.client.uploads != uploadsAfterFirst {
		t.Errorf("second run made %d extra uploads", h.client.uploads-uploadsAfterFirst)
	}
	if len(h.mappings.rows) != mappingsAfterFirst {
		t.Errorf("second run wrote %d extra mappings", len(h.mappings.rows)-mappingsAfterFirst)
	}
	if result.Attempted != 0 || result.Status != StatusCompleted {
		t.Errorf("second run result = %+v, want empty completed", result)
	}
}

func TestFullExportRerunRefreshesMappings(t *testing.T) {
	h := newHarness(activeConnection())
	subs := []evidence.Source{
		formSubmission("Toolbox Talk"), formSubmission("Hazard Assessment"),
	}
	h.evidence.byType[evidence.TypeFormSubmission] = subs

	if _, err := h.service.ExportAllEvidence(context.Background(), testTenant, Options{SyncType: SyncFullExport}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, err := h.mappings.Get(context.Background(), testTenant, evidence.TypeFormSubmission, subs[0].ItemID())
	if err != nil {
		t.Fatalf("mapping missing after first run: %v", err)
	}

	// A full export deliberately re-uploads mapped items; the rerun must
	// refresh their mappings, not report them as failures.
	result, err := h.service.ExportAllEvidence(context.Background(), testTenant, Options{SyncType: SyncFullExport})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if result.Status != StatusCompleted || result.Failed != 0 || len(result.Errors) != 0 {
		t.Errorf("second run = %+v, want completed with no failures", result)
	}
	if result.Succeeded != 2 {
		t.Errorf("second run succeeded = %d, want 2", result.Succeeded)
	}
	if len(h.mappings.rows) != 2 {
		t.Errorf("mappings = %d, want 2 (refreshed, not duplicated)", len(h.mappings.rows))
	}

	second, err := h.mappings.Get(context.Background(), testTenant, evidence.TypeFormSubmission, subs[0].ItemID())
	if err != nil {
		t.Fatalf("mapping missing after second run: %v", err)
	}
	if second.ExternalID == first.ExternalID {
		t.Errorf("external id = %s, want refreshed on re-upload", second.ExternalID)
	}
}

func TestItemFailureIsolation(t *testing.T) {
	h := newHarness(activeConnection())
	subs := []evidence.Source{
		formSubmission("First"), formSubmission("Second"), formSubmission("Third"),
	}
	h.evidence.byType[evidence.TypeFormSubmission] = subs

	failTitle := subs[1].ItemName()
	h.client.uploadFn = func(item *auditclient.EvidenceItem) (*auditclient.UploadResult, error) {
		if item.Title == failTitle {
			return &auditclient.UploadResult{Success: false, Error: "server returned status 500"}, nil
		}
		return &auditclient.UploadResult{Success: true, ExternalItemID: "ext-" + item.Title}, nil
	}

	result, err := h.service.ExportAllEvidence(context.Background(), testTenant, Options{SyncType: SyncFullExport})
	if err != nil {
		t.Fatalf("ExportAllEvidence() error = %v", err)
	}

	if result.Success {
		t.Error("result.Success = true, want false")
	}
	if result.Status != StatusPartial {
		t.Errorf("status = %s, want partial", result.Status)
	}
	if result.ByType[evidence.TypeFormSubmission] != 2 {
		t.Errorf("form submissions succeeded = %d, want 2", result.ByType[evidence.TypeFormSubmission])
	}
	if len(result.Errors) != 1 {
		t.Fatalf("errors = %d, want 1", len(result.Errors))
	}
	if result.Errors[0].ItemType != evidence.TypeFormSubmission || result.Errors[0].ItemID != subs[1].ItemID() {
		t.Errorf("error entry = %+v", result.Errors[0])
	}

	// The other two items still got mappings
	if len(h.mappings.rows) != 2 {
		t.Errorf("mappings = %d, want 2", len(h.mappings.rows))
	}

	log, _ := h.logs.GetByRunID(context.Background(), testTenant, result.RunID)
	if log.Status != StatusPartial {
		t.Errorf("log status = %s, want partial", log.Status)
	}
}

func TestExportFailsWithoutAuditID(t *testing.T) {
	conn := activeConnection()
	conn.AuditID = ""
	h := newHarness(conn)

	_, err := h.service.ExportAllEvidence(context.Background(), testTenant, Options{SyncType: SyncFullExport})
	if !errors.Is(err, ErrNoAuditConfigured) {
		t.Fatalf("error = %v, want ErrNoAuditConfigured", err)
	}

	if len(h.logs.logs) != 1 {
		t.Fatalf("logs = %d, want 1 failed run row", len(h.logs.logs))
	}
	log := h.logs.logs[0]
	if log.Status != StatusFailed || log.CompletedAt == nil {
		t.Errorf("log = %+v, want finalized failed", log)
	}
	if len(log.Errors) != 1 || log.Errors[0].Error != ErrNoAuditConfigured.Error() {
		t.Errorf("log errors = %+v", log.Errors)
	}

	if len(h.connections.outcomes) != 1 || h.connections.outcomes[0].status != StatusFailed {
		t.Errorf("outcomes = %+v, want one failed", h.connections.outcomes)
	}
}

func TestExportRejectsConcurrentRun(t *testing.T) {
	h := newHarness(activeConnection())

	if err := h.service.beginRun(testTenant); err != nil {
		t.Fatalf("beginRun() error = %v", err)
	}
	defer h.service.endRun(testTenant)

	_, err := h.service.ExportAllEvidence(context.Background(), testTenant, Options{SyncType: SyncFullExport})
	if !errors.Is(err, ErrExportInProgress) {
		t.Errorf("error = %v, want ErrExportInProgress", err)
	}

	// Other tenants are unaffected
	h.connections.conn.TenantID = "tenant-2"
	if _, err := h.service.ExportAllEvidence(context.Background(), "tenant-2", Options{SyncType: SyncFullExport}); err != nil {
		t.Errorf("second tenant error = %v", err)
	}
}

func TestExportSingleItemRerunsWholeType(t *testing.T) {
	h := newHarness(activeConnection())
	subs := []evidence.Source{formSubmission("First"), formSubmission("Second")}
	h.evidence.byType[evidence.TypeFormSubmission] = subs

	result, err := h.service.ExportSingleItem(context.Background(), testTenant, evidence.TypeFormSubmission, subs[1].ItemID(), "user-1")
	if err != nil {
		t.Fatalf("ExportSingleItem() error = %v", err)
	}

	if !result.Success || result.ExternalID == "" {
		t.Errorf("result = %+v, want success with external id", result)
	}
	// Non-incremental rerun considers every candidate of the type
	if h.client.uploads != 2 {
		t.Errorf("uploads = %d, want 2", h.client.uploads)
	}

	log := h.logs.logs[0]
	if log.SyncType != SyncSingleItem || log.TriggeredBy != "user-1" {
		t.Errorf("log = %+v", log)
	}
}

func TestExportSingleItemUnknownType(t *testing.T) {
	h := newHarness(activeConnection())

	_, err := h.service.ExportSingleItem(context.Background(), testTenant, "payroll_record", "x", "user-1")
	if !errors.Is(err, ErrUnknownItemType) {
		t.Errorf("error = %v, want ErrUnknownItemType", err)
	}
}

func TestAttachmentFailureDegradesGracefully(t *testing.T) {
	h := newHarness(activeConnection())
	sub := formSubmission("With File")
	sub.PDFPath = "forms/with-file.pdf"
	h.evidence.byType[evidence.TypeFormSubmission] = []evidence.Source{sub}
	h.blobs.fail = true

	var uploaded *auditclient.EvidenceItem
	h.client.uploadFn = func(item *auditclient.EvidenceItem) (*auditclient.UploadResult, error) {
		uploaded = item
		return &auditclient.UploadResult{Success: true, ExternalItemID: "ext-1"}, nil
	}

	result, err := h.service.ExportAllEvidence(context.Background(), testTenant, Options{SyncType: SyncFullExport})
	if err != nil {
		t.Fatalf("ExportAllEvidence() error = %v", err)
	}

	if result.Failed != 0 || result.Succeeded != 1 {
		t.Errorf("counts = %d succeeded %d failed, want 1/0", result.Succeeded, result.Failed)
	}
	if uploaded == nil || uploaded.Attachment != nil {
		t.Errorf("uploaded = %+v, want item without attachment", uploaded)
	}
}

func TestAttachmentIncludedWhenAvailable(t *testing.T) {
	h := newHarness(activeConnection())
	sub := formSubmission("With File")
	sub.PDFPath = "forms/with-file.pdf"
	h.evidence.byType[evidence.TypeFormSubmission] = []evidence.Source{sub}
	h.blobs.files["forms/with-file.pdf"] = []byte("%PDF-1.4")

	var uploaded *auditclient.EvidenceItem
	h.client.uploadFn = func(item *auditclient.EvidenceItem) (*auditclient.UploadResult, error) {
		uploaded = item
		return &auditclient.UploadResult{Success: true, ExternalItemID: "ext-1"}, nil
	}

	if _, err := h.service.ExportAllEvidence(context.Background(), testTenant, Options{SyncType: SyncFullExport}); err != nil {
		t.Fatalf("ExportAllEvidence() error = %v", err)
	}

	if uploaded == nil || uploaded.Attachment == nil {
		t.Fatal("uploaded item missing attachment")
	}
	if string(uploaded.Attachment.Data) != "%PDF-1.4" {
		t.Errorf("attachment data = %q", uploaded.Attachment.Data)
	}
}

func TestElementFilterSkipsFixedElementTypes(t *testing.T) {
	h := newHarness(activeConnection())
	h.evidence.byType[evidence.TypeInspection] = []evidence.Source{
		&evidence.Inspection{ID: primitive.NewObjectID(), TenantID: testTenant, Area: "Yard", InspectedAt: time.Now()},
	}

	// Element 3 excludes inspections (fixed element 7)
	result, err := h.service.ExportAllEvidence(context.Background(), testTenant, Options{
		SyncType: SyncFullExport,
		Elements: []int{3},
	})
	if err != nil {
		t.Fatalf("ExportAllEvidence() error = %v", err)
	}

	if result.Attempted != 0 || h.client.uploads != 0 {
		t.Errorf("attempted = %d uploads = %d, want 0/0", result.Attempted, h.client.uploads)
	}
}

func TestAggregationPerType(t *testing.T) {
	h := newHarness(activeConnection())
	h.evidence.byType[evidence.TypeFormSubmission] = []evidence.Source{
		formSubmission("A"), formSubmission("B"), formSubmission("C"),
	}
	h.evidence.byType[evidence.TypeCertification] = []evidence.Source{
		&evidence.Certification{ID: primitive.NewObjectID(), TenantID: testTenant, WorkerName: "J. Doe", CertificateName: "First Aid", IssuedAt: time.Now()},
	}

	failed := 0
	h.client.uploadFn = func(item *auditclient.EvidenceItem) (*auditclient.UploadResult, error) {
		if item.EvidenceType == "form" && failed == 0 {
			failed++
			return nil, errors.New("connection reset")
		}
		return &auditclient.UploadResult{Success: true, ExternalItemID: "ext"}, nil
	}

	result, err := h.service.ExportAllEvidence(context.Background(), testTenant, Options{SyncType: SyncFullExport})
	if err != nil {
		t.Fatalf("ExportAllEvidence() error = %v", err)
	}

	// succeeded + errors per type equals candidates considered
	formErrors := 0
	for _, e := range result.Errors {
		if e.ItemType == evidence.TypeFormSubmission {
			formErrors++
		}
	}
	if result.ByType[evidence.TypeFormSubmission]+formErrors != 3 {
		t.Errorf("form submissions: %d succeeded + %d errors != 3", result.ByType[evidence.TypeFormSubmission], formErrors)
	}
	if result.ByType[evidence.TypeCertification] != 1 {
		t.Errorf("certifications succeeded = %d, want 1", result.ByType[evidence.TypeCertification])
	}
}
