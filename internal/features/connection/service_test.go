package connection

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go-comply/internal/auditclient"
	"go-comply/internal/crypto"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const testCipherKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

type memConnectionRepo struct {
	rows map[string]*Connection
}

func newMemConnectionRepo() *memConnectionRepo {
	return &memConnectionRepo{rows: make(map[string]*Connection)}
}

func (r *memConnectionRepo) GetByTenant(ctx context.Context, tenantID string) (*Connection, error) {
	if conn, ok := r.rows[tenantID]; ok {
		copied := *conn
		return &copied, nil
	}
	return nil, mongo.ErrNoDocuments
}

func (r *memConnectionRepo) Upsert(ctx context.Context, conn *Connection) error {
	now := time.Now()
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = now
	}
	conn.UpdatedAt = now
	copied := *conn
	r.rows[conn.TenantID] = &copied
	return nil
}

func (r *memConnectionRepo) Update(ctx context.Context, tenantID string, updates map[string]interface{}) error {
	conn, ok := r.rows[tenantID]
	if !ok {
		return mongo.ErrNoDocuments
	}
	for key, value := range updates {
		switch key {
		case "connection_status":
			conn.Status = value.(Status)
		case "sync_enabled":
			conn.SyncEnabled = value.(bool)
		case "sync_frequency":
			conn.SyncFrequency = value.(string)
		case "organization_name":
			conn.OrganizationName = value.(string)
		case "audit_id":
			conn.AuditID = value.(string)
		}
	}
	return nil
}

func (r *memConnectionRepo) UpdateStats(ctx context.Context, tenantID string, set map[string]interface{}, incItems int) error {
	conn, ok := r.rows[tenantID]
	if !ok {
		return mongo.ErrNoDocuments
	}
	conn.TotalItemsSynced += incItems
	if status, ok := set["last_sync_status"].(string); ok {
		conn.LastSyncStatus = status
	}
	if at, ok := set["last_sync_at"].(time.Time); ok {
		conn.LastSyncAt = &at
	}
	if summary, ok := set["last_export_summary"].(*ExportSummary); ok {
		conn.LastExportSummary = summary
	}
	return nil
}

func (r *memConnectionRepo) Delete(ctx context.Context, tenantID string) error {
	delete(r.rows, tenantID)
	return nil
}

func (r *memConnectionRepo) ListSyncEnabled(ctx context.Context) ([]Connection, error) {
	var out []Connection
	for _, conn := range r.rows {
		if conn.SyncEnabled && conn.Status == StatusActive {
			out = append(out, *conn)
		}
	}
	return out, nil
}

func (r *memConnectionRepo) EnsureIndexes(ctx context.Context) error { return nil }

type stubAuditAPI struct {
	result *auditclient.ValidationResult
	err    error
	calls  int
}

func (s *stubAuditAPI) ValidateConnection(ctx context.Context) (*auditclient.ValidationResult, error) {
	s.calls++
	return s.result, s.err
}

func (s *stubAuditAPI) GetAuditStructure(ctx context.Context, auditID string) (*auditclient.AuditStructure, error) {
	return nil, nil
}

func (s *stubAuditAPI) UploadEvidence(ctx context.Context, item *auditclient.EvidenceItem) (*auditclient.UploadResult, error) {
	return &auditclient.UploadResult{Success: true}, nil
}

func (s *stubAuditAPI) BulkUploadEvidence(ctx context.Context, auditID string, items []*auditclient.EvidenceItem, onProgress auditclient.ProgressFunc) (*auditclient.BulkUploadResult, error) {
	return &auditclient.BulkUploadResult{}, nil
}

func (s *stubAuditAPI) UpdateEvidence(ctx context.Context, externalID string, updates map[string]interface{}) error {
	return nil
}

func (s *stubAuditAPI) DeleteEvidence(ctx context.Context, externalID string) error { return nil }

func (s *stubAuditAPI) GetAuditStatus(ctx context.Context, auditID string) (map[string]interface{}, error) {
	return nil, nil
}

func newTestService(t *testing.T, api *stubAuditAPI) (*ConnectionServiceImpl, *memConnectionRepo) {
	t.Helper()
	cipher, err := crypto.NewCipher(testCipherKey)
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}
	repo := newMemConnectionRepo()
	factory := func(endpoint, apiKey string) AuditAPI { return api }
	service := NewConnectionService(repo, cipher, factory, zap.NewNop()).(*ConnectionServiceImpl)
	return service, repo
}

func validResult() *auditclient.ValidationResult {
	return &auditclient.ValidationResult{
		Valid:            true,
		OrganizationID:   "org-1",
		OrganizationName: "Acme Construction",
		CurrentAuditID:   "audit-42",
		AuditorName:      "T. Auditor",
	}
}

func TestSaveConnectionEncryptsAndPersists(t *testing.T) {
	api := &stubAuditAPI{result: validResult()}
	service, repo := newTestService(t, api)

	conn, err := service.SaveConnection(context.Background(), "tenant-1", "avk_live_secret1234", "user-1", "")
	if err != nil {
		t.Fatalf("SaveConnection() error = %v", err)
	}

	if conn.Status != StatusActive || conn.AuditID != "audit-42" {
		t.Errorf("conn = %+v, want active with audit metadata", conn)
	}
	if conn.Endpoint != DefaultEndpoint {
		t.Errorf("endpoint = %s, want default", conn.Endpoint)
	}

	stored := repo.rows["tenant-1"]
	if stored.EncryptedAPIKey == "" || strings.Contains(stored.EncryptedAPIKey, "avk_") {
		t.Errorf("stored key = %q, want encrypted token", stored.EncryptedAPIKey)
	}
	if got := strings.Count(stored.EncryptedAPIKey, ":"); got != 2 {
		t.Errorf("token segments = %d, want nonce:tag:ciphertext", got+1)
	}

	key, err := service.GetDecryptedAPIKey(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("GetDecryptedAPIKey() error = %v", err)
	}
	if key != "avk_live_secret1234" {
		t.Errorf("decrypted key = %q", key)
	}
}

func TestSaveConnectionRejectedKeyNeverPersists(t *testing.T) {
	api := &stubAuditAPI{result: &auditclient.ValidationResult{Valid: false, Error: "invalid credentials"}}
	service, repo := newTestService(t, api)

	_, err := service.SaveConnection(context.Background(), "tenant-1", "avk_bad", "user-1", "")
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("error = %v, want ErrValidationFailed", err)
	}
	if len(repo.rows) != 0 {
		t.Errorf("rows = %d, want nothing persisted", len(repo.rows))
	}
}

func TestSaveConnectionPreservesStatsOnReconnect(t *testing.T) {
	api := &stubAuditAPI{result: validResult()}
	service, repo := newTestService(t, api)

	if _, err := service.SaveConnection(context.Background(), "tenant-1", "avk_first", "user-1", ""); err != nil {
		t.Fatalf("first save: %v", err)
	}
	repo.rows["tenant-1"].TotalItemsSynced = 57
	repo.rows["tenant-1"].SyncEnabled = true
	repo.rows["tenant-1"].SyncFrequency = FrequencyDaily

	conn, err := service.SaveConnection(context.Background(), "tenant-1", "avk_rotated", "user-2", "")
	if err != nil {
		t.Fatalf("second save: %v", err)
	}

	if conn.TotalItemsSynced != 57 || !conn.SyncEnabled || conn.SyncFrequency != FrequencyDaily {
		t.Errorf("conn = %+v, want stats and sync settings preserved", conn)
	}

	key, _ := service.GetDecryptedAPIKey(context.Background(), "tenant-1")
	if key != "avk_rotated" {
		t.Errorf("key = %q, want rotated key", key)
	}
}

func TestGetDecryptedAPIKeyCorruptedToken(t *testing.T) {
	api := &stubAuditAPI{result: validResult()}
	service, repo := newTestService(t, api)

	if _, err := service.SaveConnection(context.Background(), "tenant-1", "avk_secret", "user-1", ""); err != nil {
		t.Fatalf("save: %v", err)
	}
	repo.rows["tenant-1"].EncryptedAPIKey = "not:a:token"

	_, err := service.GetDecryptedAPIKey(context.Background(), "tenant-1")
	if !errors.Is(err, ErrNoUsableKey) {
		t.Errorf("error = %v, want ErrNoUsableKey", err)
	}
}

func TestValidateConnectionUnusableCredentialFlipsStatus(t *testing.T) {
	api := &stubAuditAPI{result: validResult()}
	service, repo := newTestService(t, api)

	if _, err := service.SaveConnection(context.Background(), "tenant-1", "avk_secret", "user-1", ""); err != nil {
		t.Fatalf("save: %v", err)
	}
	repo.rows["tenant-1"].EncryptedAPIKey = "not:a:token"
	callsBefore := api.calls

	result, err := service.ValidateConnection(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("ValidateConnection() error = %v", err)
	}

	if result.Valid || result.Error != "stored credential unusable" {
		t.Errorf("result = %+v, want invalid with unusable-credential reason", result)
	}
	if repo.rows["tenant-1"].Status != StatusInvalidKey {
		t.Errorf("status = %s, want invalid_key", repo.rows["tenant-1"].Status)
	}
	// No live validation is attempted without a usable key
	if api.calls != callsBefore {
		t.Errorf("validation calls = %d, want %d", api.calls, callsBefore)
	}
}

func TestGetClientRequiresActiveStatus(t *testing.T) {
	api := &stubAuditAPI{result: validResult()}
	service, repo := newTestService(t, api)

	if _, err := service.SaveConnection(context.Background(), "tenant-1", "avk_secret", "user-1", ""); err != nil {
		t.Fatalf("save: %v", err)
	}
	repo.rows["tenant-1"].Status = StatusInvalidKey

	_, _, err := service.GetClient(context.Background(), "tenant-1")
	if !errors.Is(err, ErrInactive) {
		t.Errorf("error = %v, want ErrInactive", err)
	}
}

func TestGetClientNotConfigured(t *testing.T) {
	service, _ := newTestService(t, &stubAuditAPI{result: validResult()})

	_, _, err := service.GetClient(context.Background(), "missing-tenant")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("error = %v, want ErrNotConfigured", err)
	}
}

func TestValidateConnectionFailureFlipsStatusOnly(t *testing.T) {
	api := &stubAuditAPI{result: validResult()}
	service, repo := newTestService(t, api)

	if _, err := service.SaveConnection(context.Background(), "tenant-1", "avk_secret", "user-1", ""); err != nil {
		t.Fatalf("save: %v", err)
	}

	api.result = &auditclient.ValidationResult{Valid: false, Error: "key revoked"}
	result, err := service.ValidateConnection(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("ValidateConnection() error = %v", err)
	}
	if result.Valid {
		t.Error("result.Valid = true, want false")
	}

	stored := repo.rows["tenant-1"]
	if stored.Status != StatusInvalidKey {
		t.Errorf("status = %s, want invalid_key", stored.Status)
	}
	// Last-known-good audit metadata survives a failed re-validation
	if stored.OrganizationName != "Acme Construction" || stored.AuditID != "audit-42" {
		t.Errorf("metadata = %+v, want preserved", stored)
	}
}

func TestUpdateSyncSettingsRejectsUnknownFrequency(t *testing.T) {
	api := &stubAuditAPI{result: validResult()}
	service, _ := newTestService(t, api)

	if _, err := service.SaveConnection(context.Background(), "tenant-1", "avk_secret", "user-1", ""); err != nil {
		t.Fatalf("save: %v", err)
	}

	err := service.UpdateSyncSettings(context.Background(), "tenant-1", true, "fortnightly")
	if !errors.Is(err, ErrInvalidFrequency) {
		t.Errorf("error = %v, want ErrInvalidFrequency", err)
	}

	if err := service.UpdateSyncSettings(context.Background(), "tenant-1", true, FrequencyWeekly); err != nil {
		t.Errorf("valid frequency error = %v", err)
	}
}

func TestGetSafeConnectionInfoMasksKey(t *testing.T) {
	api := &stubAuditAPI{result: validResult()}
	service, _ := newTestService(t, api)

	if _, err := service.SaveConnection(context.Background(), "tenant-1", "avk_live_secret1234", "user-1", ""); err != nil {
		t.Fatalf("save: %v", err)
	}

	safe, err := service.GetSafeConnectionInfo(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("GetSafeConnectionInfo() error = %v", err)
	}

	if safe.EncryptedAPIKey != "" {
		t.Error("encrypted key leaked into safe view")
	}
	if safe.APIKeyHint != "****1234" {
		t.Errorf("hint = %q, want ****1234", safe.APIKeyHint)
	}
}

func TestDisconnectRemovesRow(t *testing.T) {
	api := &stubAuditAPI{result: validResult()}
	service, repo := newTestService(t, api)

	if _, err := service.SaveConnection(context.Background(), "tenant-1", "avk_secret", "user-1", ""); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := service.Disconnect(context.Background(), "tenant-1"); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if len(repo.rows) != 0 {
		t.Error("row still present after disconnect")
	}

	if err := service.Disconnect(context.Background(), "tenant-1"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("second disconnect error = %v, want ErrNotConfigured", err)
	}
}
