package connection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-comply/internal/auditclient"
	"go-comply/internal/config"
	"go-comply/internal/crypto"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrNotConfigured    = errors.New("no audit platform connection configured for tenant")
	ErrInactive         = errors.New("audit platform connection is not active")
	ErrValidationFailed = errors.New("audit platform credential validation failed")
	ErrNoUsableKey      = errors.New("no usable API key on connection")
	ErrInvalidFrequency = errors.New("sync frequency must be hourly, daily or weekly")
)

// AuditAPI is the slice of the platform client consumed by this service and
// the export pipeline.
type AuditAPI interface {
	ValidateConnection(ctx context.Context) (*auditclient.ValidationResult, error)
	GetAuditStructure(ctx context.Context, auditID string) (*auditclient.AuditStructure, error)
	UploadEvidence(ctx context.Context, item *auditclient.EvidenceItem) (*auditclient.UploadResult, error)
	BulkUploadEvidence(ctx context.Context, auditID string, items []*auditclient.EvidenceItem, onProgress auditclient.ProgressFunc) (*auditclient.BulkUploadResult, error)
	UpdateEvidence(ctx context.Context, externalID string, updates map[string]interface{}) error
	DeleteEvidence(ctx context.Context, externalID string) error
	GetAuditStatus(ctx context.Context, auditID string) (map[string]interface{}, error)
}

// ClientFactory builds a platform client for one endpoint/key pair. Tests
// swap it for a fake transport.
type ClientFactory func(endpoint, apiKey string) AuditAPI

// NewClientFactory wires the production HTTP client with config-driven
// timeout and upload pacing.
func NewClientFactory(cfg *config.Config, logger *zap.Logger) ClientFactory {
	return func(endpoint, apiKey string) AuditAPI {
		return auditclient.NewClient(auditclient.Options{
			Endpoint: endpoint,
			APIKey:   apiKey,
			Timeout:  time.Duration(cfg.HTTPTimeout) * time.Second,
			Pacer:    rate.NewLimiter(rate.Limit(cfg.UploadRate), cfg.UploadBurst),
			Logger:   logger,
		})
	}
}

type ConnectionService interface {
	SaveConnection(ctx context.Context, tenantID, apiKey, actorID, endpoint string) (*Connection, error)
	GetConnection(ctx context.Context, tenantID string) (*Connection, error)
	GetDecryptedAPIKey(ctx context.Context, tenantID string) (string, error)
	GetClient(ctx context.Context, tenantID string) (AuditAPI, *Connection, error)
	ValidateConnection(ctx context.Context, tenantID string) (*auditclient.ValidationResult, error)
	Disconnect(ctx context.Context, tenantID string) error
	UpdateSyncSettings(ctx context.Context, tenantID string, enabled bool, frequency string) error
	GetStats(ctx context.Context, tenantID string) (*Stats, error)
	GetSafeConnectionInfo(ctx context.Context, tenantID string) (*SafeConnection, error)
	RecordExportOutcome(ctx context.Context, tenantID, status string, itemsSynced int, summary *ExportSummary) error
}

type ConnectionServiceImpl struct {
	Repo      ConnectionRepository
	Cipher    *crypto.Cipher
	NewClient ClientFactory
	Logger    *zap.Logger
}

func NewConnectionService(repo ConnectionRepository, cipher *crypto.Cipher, factory ClientFactory, logger *zap.Logger) ConnectionService {
	return &ConnectionServiceImpl{
		Repo:      repo,
		Cipher:    cipher,
		NewClient: factory,
		Logger:    logger,
	}
}

// SaveConnection validates the plaintext key against the live platform and
// only then encrypts and upserts the tenant's connection row. A failed
// validation never persists anything.
func (s *ConnectionServiceImpl) SaveConnection(ctx context.Context, tenantID, apiKey, actorID, endpoint string) (*Connection, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	client := s.NewClient(endpoint, apiKey)
	result, err := client.ValidateConnection(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if !result.Valid {
		return nil, fmt.Errorf("%w: %s", ErrValidationFailed, result.Error)
	}

	encrypted, err := s.Cipher.Encrypt(apiKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt credential: %w", err)
	}

	existing, _ := s.Repo.GetByTenant(ctx, tenantID)

	conn := &Connection{
		TenantID:           tenantID,
		EncryptedAPIKey:    encrypted,
		Endpoint:           endpoint,
		OrganizationID:     result.OrganizationID,
		OrganizationName:   result.OrganizationName,
		AuditID:            result.CurrentAuditID,
		Status:             StatusActive,
		AuditScheduledDate: result.AuditScheduledDate,
		AuditorName:        result.AuditorName,
		AuditorEmail:       result.AuditorEmail,
		LastValidatedAt:    time.Now(),
		ConnectedBy:        actorID,
	}
	if existing != nil {
		// Overwritten in place; rolling stats survive a re-connect
		conn.ID = existing.ID
		conn.CreatedAt = existing.CreatedAt
		conn.SyncEnabled = existing.SyncEnabled
		conn.SyncFrequency = existing.SyncFrequency
		conn.TotalItemsSynced = existing.TotalItemsSynced
		conn.LastSyncAt = existing.LastSyncAt
		conn.LastSyncStatus = existing.LastSyncStatus
		conn.LastExportSummary = existing.LastExportSummary
	}

	if err := s.Repo.Upsert(ctx, conn); err != nil {
		return nil, fmt.Errorf("save connection: %w", err)
	}

	s.Logger.Info("Audit platform connection saved",
		zap.String("tenant_id", tenantID),
		zap.String("organization", result.OrganizationName),
	)
	return conn, nil
}

func (s *ConnectionServiceImpl) GetConnection(ctx context.Context, tenantID string) (*Connection, error) {
	conn, err := s.Repo.GetByTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotConfigured
		}
		return nil, err
	}
	return conn, nil
}

// GetDecryptedAPIKey returns the plaintext key. Decryption failures are
// swallowed into ErrNoUsableKey so cipher internals never leak to callers.
func (s *ConnectionServiceImpl) GetDecryptedAPIKey(ctx context.Context, tenantID string) (string, error) {
	conn, err := s.GetConnection(ctx, tenantID)
	if err != nil {
		return "", err
	}

	key, err := s.Cipher.Decrypt(conn.EncryptedAPIKey)
	if err != nil {
		s.Logger.Warn("Stored credential could not be decrypted",
			zap.String("tenant_id", tenantID),
		)
		return "", ErrNoUsableKey
	}
	return key, nil
}

// GetClient returns a ready platform client only for active connections.
func (s *ConnectionServiceImpl) GetClient(ctx context.Context, tenantID string) (AuditAPI, *Connection, error) {
	conn, err := s.GetConnection(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	if conn.Status != StatusActive {
		return nil, nil, fmt.Errorf("%w: status is %s", ErrInactive, conn.Status)
	}

	key, err := s.GetDecryptedAPIKey(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}

	return s.NewClient(conn.Endpoint, key), conn, nil
}

// ValidateConnection re-checks the stored credential against the live
// platform. On success the audit metadata is refreshed; on failure the
// last-known-good metadata is preserved and only the status flips.
func (s *ConnectionServiceImpl) ValidateConnection(ctx context.Context, tenantID string) (*auditclient.ValidationResult, error) {
	conn, err := s.GetConnection(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	key, err := s.GetDecryptedAPIKey(ctx, tenantID)
	if err != nil {
		if updateErr := s.Repo.Update(ctx, tenantID, map[string]interface{}{
			"connection_status": StatusInvalidKey,
		}); updateErr != nil {
			s.Logger.Error("Failed to mark connection after unusable credential",
				zap.String("tenant_id", tenantID),
				zap.Error(updateErr),
			)
		}
		return &auditclient.ValidationResult{Valid: false, Error: "stored credential unusable"}, nil
	}

	client := s.NewClient(conn.Endpoint, key)
	result, err := client.ValidateConnection(ctx)
	if err != nil {
		return nil, err
	}

	if result.Valid {
		err = s.Repo.Update(ctx, tenantID, map[string]interface{}{
			"connection_status":    StatusActive,
			"organization_id":      result.OrganizationID,
			"organization_name":    result.OrganizationName,
			"audit_id":             result.CurrentAuditID,
			"audit_scheduled_date": result.AuditScheduledDate,
			"auditor_name":         result.AuditorName,
			"auditor_email":        result.AuditorEmail,
			"last_validated_at":    time.Now(),
		})
	} else {
		err = s.Repo.Update(ctx, tenantID, map[string]interface{}{
			"connection_status": StatusInvalidKey,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("update connection status: %w", err)
	}

	return result, nil
}

// Disconnect hard-deletes the connection row.
func (s *ConnectionServiceImpl) Disconnect(ctx context.Context, tenantID string) error {
	if _, err := s.GetConnection(ctx, tenantID); err != nil {
		return err
	}
	if err := s.Repo.Delete(ctx, tenantID); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	s.Logger.Info("Audit platform connection removed", zap.String("tenant_id", tenantID))
	return nil
}

func (s *ConnectionServiceImpl) UpdateSyncSettings(ctx context.Context, tenantID string, enabled bool, frequency string) error {
	switch frequency {
	case FrequencyHourly, FrequencyDaily, FrequencyWeekly:
	default:
		return ErrInvalidFrequency
	}

	if _, err := s.GetConnection(ctx, tenantID); err != nil {
		return err
	}

	return s.Repo.Update(ctx, tenantID, map[string]interface{}{
		"sync_enabled":   enabled,
		"sync_frequency": frequency,
	})
}

func (s *ConnectionServiceImpl) GetStats(ctx context.Context, tenantID string) (*Stats, error) {
	conn, err := s.GetConnection(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Status:            conn.Status,
		OrganizationName:  conn.OrganizationName,
		AuditID:           conn.AuditID,
		TotalItemsSynced:  conn.TotalItemsSynced,
		LastSyncAt:        conn.LastSyncAt,
		LastSyncStatus:    conn.LastSyncStatus,
		LastExportSummary: conn.LastExportSummary,
	}, nil
}

// GetSafeConnectionInfo replaces the encrypted key with a display hint.
func (s *ConnectionServiceImpl) GetSafeConnectionInfo(ctx context.Context, tenantID string) (*SafeConnection, error) {
	conn, err := s.GetConnection(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	hint := "****"
	if key, err := s.Cipher.Decrypt(conn.EncryptedAPIKey); err == nil {
		hint = crypto.Hint(key)
	}

	safe := &SafeConnection{Connection: *conn, APIKeyHint: hint}
	safe.EncryptedAPIKey = ""
	return safe, nil
}

// RecordExportOutcome updates the rolling statistics after an export run.
func (s *ConnectionServiceImpl) RecordExportOutcome(ctx context.Context, tenantID, status string, itemsSynced int, summary *ExportSummary) error {
	set := map[string]interface{}{
		"last_sync_at":     time.Now(),
		"last_sync_status": status,
	}
	if summary != nil {
		set["last_export_summary"] = summary
	}
	return s.Repo.UpdateStats(ctx, tenantID, set, itemsSynced)
}
