package export

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go-comply/internal/auditclient"
	"go-comply/internal/features/blob"
	"go-comply/internal/features/connection"
	"go-comply/internal/features/evidence"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

var (
	ErrNoAuditConfigured = errors.New("no audit id configured for connection")
	ErrExportInProgress  = errors.New("an export is already running for this tenant")
	ErrUnknownItemType   = errors.New("unknown evidence item type")
)

type ExportService interface {
	ExportAllEvidence(ctx context.Context, tenantID string, opts Options) (*Result, error)
	ExportSingleItem(ctx context.Context, tenantID, itemType, itemID, actorID string) (*SingleItemResult, error)
	GetSyncHistory(ctx context.Context, tenantID string, limit int64) ([]SyncLog, error)
	ExportHistoryReport(ctx context.Context, tenantID string, limit int64) ([]byte, string, error)
}

type ExportServiceImpl struct {
	Connections connection.ConnectionService
	Evidence    evidence.EvidenceRepository
	Logs        SyncLogRepository
	Mappings    ItemMappingRepository
	Blobs       blob.Store
	Logger      *zap.Logger

	mu      sync.Mutex
	running map[string]bool
}

func NewExportService(
	connections connection.ConnectionService,
	evidenceRepo evidence.EvidenceRepository,
	logs SyncLogRepository,
	mappings ItemMappingRepository,
	blobs blob.Store,
	logger *zap.Logger,
) ExportService {
	return &ExportServiceImpl{
		Connections: connections,
		Evidence:    evidenceRepo,
		Logs:        logs,
		Mappings:    mappings,
		Blobs:       blobs,
		Logger:      logger,
		running:     make(map[string]bool),
	}
}

// beginRun takes the per-tenant single-flight slot. Two concurrent runs for
// one tenant would race the mapping-existence check and could double-upload.
func (s *ExportServiceImpl) beginRun(tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[tenantID] {
		return ErrExportInProgress
	}
	s.running[tenantID] = true
	return nil
}

func (s *ExportServiceImpl) endRun(tenantID string) {
	s.mu.Lock()
	delete(s.running, tenantID)
	s.mu.Unlock()
}

func reportProgress(fn ProgressFunc, phase string, current, total int) {
	if fn == nil {
		return
	}
	fn(phase, current, total, float64(current)/float64(total)*100)
}

// ExportAllEvidence runs the eight type exporters in a fixed order for one
// tenant and writes the run's audit trail. Item failures accumulate into a
// partial run; exporter-level failures mark the run failed and propagate.
func (s *ExportServiceImpl) ExportAllEvidence(ctx context.Context, tenantID string, opts Options) (*Result, error) {
	if err := s.beginRun(tenantID); err != nil {
		return nil, err
	}
	defer s.endRun(tenantID)

	if opts.SyncType == "" {
		opts.SyncType = SyncManual
	}

	client, conn, err := s.Connections.GetClient(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if conn.AuditID == "" {
		s.recordPreconditionFailure(ctx, tenantID, opts, ErrNoAuditConfigured)
		return nil, ErrNoAuditConfigured
	}

	runLog := &SyncLog{
		RunID:       uuid.NewString(),
		TenantID:    tenantID,
		SyncType:    opts.SyncType,
		TriggeredBy: opts.TriggeredBy,
		Status:      StatusInProgress,
		Filters:     FilterSnapshot{From: opts.From, To: opts.To, Elements: opts.Elements},
		StartedAt:   time.Now(),
	}
	if err := s.Logs.Create(ctx, runLog); err != nil {
		return nil, fmt.Errorf("create sync log: %w", err)
	}

	s.Logger.Info("Export run started",
		zap.String("tenant_id", tenantID),
		zap.String("run_id", runLog.RunID),
		zap.String("sync_type", opts.SyncType),
	)

	filters := evidence.Filters{From: opts.From, To: opts.To, Elements: opts.Elements}
	incremental := opts.SyncType == SyncIncremental

	result := &Result{RunID: runLog.RunID, ByType: make(map[string]int)}
	total := len(evidence.AllTypes)
	for i, itemType := range evidence.AllTypes {
		res, err := s.exportType(ctx, client, conn, itemType, incremental, filters)
		if err != nil {
			return nil, s.failRun(ctx, tenantID, runLog.RunID, result, err)
		}
		result.Attempted += res.Total
		result.Succeeded += res.Succeeded
		result.Failed += res.Failed
		result.ByType[itemType] = res.Succeeded
		result.Errors = append(result.Errors, res.Errors...)
		reportProgress(opts.Progress, itemType, i+1, total)
	}

	result.Status = StatusCompleted
	if result.Failed > 0 {
		result.Status = StatusPartial
	}
	result.Success = result.Failed == 0

	s.finishRun(ctx, tenantID, runLog.RunID, opts.SyncType, result)

	s.Logger.Info("Export run finished",
		zap.String("tenant_id", tenantID),
		zap.String("run_id", runLog.RunID),
		zap.String("status", result.Status),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// ExportSingleItem re-runs the matching type exporter in non-incremental
// mode. The whole type's candidate set is re-considered; already-mapped
// records upload again by design, and the requested id's outcome is read
// back from the mapping store afterwards.
func (s *ExportServiceImpl) ExportSingleItem(ctx context.Context, tenantID, itemType, itemID, actorID string) (*SingleItemResult, error) {
	known := false
	for _, t := range evidence.AllTypes {
		if t == itemType {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrUnknownItemType, itemType)
	}

	if err := s.beginRun(tenantID); err != nil {
		return nil, err
	}
	defer s.endRun(tenantID)

	opts := Options{SyncType: SyncSingleItem, TriggeredBy: actorID}

	client, conn, err := s.Connections.GetClient(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if conn.AuditID == "" {
		s.recordPreconditionFailure(ctx, tenantID, opts, ErrNoAuditConfigured)
		return nil, ErrNoAuditConfigured
	}

	runLog := &SyncLog{
		RunID:       uuid.NewString(),
		TenantID:    tenantID,
		SyncType:    SyncSingleItem,
		TriggeredBy: actorID,
		Status:      StatusInProgress,
		StartedAt:   time.Now(),
	}
	if err := s.Logs.Create(ctx, runLog); err != nil {
		return nil, fmt.Errorf("create sync log: %w", err)
	}

	res, err := s.exportType(ctx, client, conn, itemType, false, evidence.Filters{})
	if err != nil {
		return nil, s.failRun(ctx, tenantID, runLog.RunID, &Result{ByType: map[string]int{}}, err)
	}

	result := &Result{
		RunID:     runLog.RunID,
		Attempted: res.Total,
		Succeeded: res.Succeeded,
		Failed:    res.Failed,
		ByType:    map[string]int{itemType: res.Succeeded},
		Errors:    res.Errors,
	}
	result.Status = StatusCompleted
	if result.Failed > 0 {
		result.Status = StatusPartial
	}
	result.Success = result.Failed == 0

	s.finishRun(ctx, tenantID, runLog.RunID, SyncSingleItem, result)

	out := &SingleItemResult{
		RunID:    runLog.RunID,
		ItemType: itemType,
		ItemID:   itemID,
	}
	if mapping, err := s.Mappings.Get(ctx, tenantID, itemType, itemID); err == nil {
		out.Success = true
		out.ExternalID = mapping.ExternalID
		return out, nil
	}
	for _, e := range res.Errors {
		if e.ItemID == itemID {
			out.Error = e.Error
			return out, nil
		}
	}
	out.Error = "item not found among export candidates"
	return out, nil
}

func (s *ExportServiceImpl) GetSyncHistory(ctx context.Context, tenantID string, limit int64) ([]SyncLog, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	logs, err := s.Logs.ListByTenant(ctx, tenantID, limit)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}
	return logs, nil
}

// finishRun finalizes the run log and the connection's rolling statistics.
// Bookkeeping failures are logged but do not override the export outcome.
func (s *ExportServiceImpl) finishRun(ctx context.Context, tenantID, runID, syncType string, result *Result) {
	if err := s.Logs.Finish(ctx, runID, result.Status, result.Attempted, result.Succeeded, result.Failed, result.ByType, result.Errors); err != nil {
		s.Logger.Error("Failed to finalize sync log",
			zap.String("run_id", runID),
			zap.Error(err),
		)
	}

	summary := &connection.ExportSummary{
		RunID:       runID,
		SyncType:    syncType,
		Status:      result.Status,
		Attempted:   result.Attempted,
		Succeeded:   result.Succeeded,
		Failed:      result.Failed,
		ByType:      result.ByType,
		CompletedAt: time.Now(),
	}
	if err := s.Connections.RecordExportOutcome(ctx, tenantID, result.Status, result.Succeeded, summary); err != nil {
		s.Logger.Error("Failed to update connection statistics",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
	}
}

// failRun records an orchestrator-level failure. Unlike item failures this
// is not isolated; the cause propagates to the caller after the run log and
// connection status are marked failed.
func (s *ExportServiceImpl) failRun(ctx context.Context, tenantID, runID string, partial *Result, cause error) error {
	errs := append(partial.Errors, ItemError{
		ItemType:  "orchestrator",
		Error:     auditclient.Redact(cause.Error()),
		Timestamp: time.Now(),
	})
	if err := s.Logs.Finish(ctx, runID, StatusFailed, partial.Attempted, partial.Succeeded, partial.Failed, partial.ByType, errs); err != nil {
		s.Logger.Error("Failed to finalize sync log after run failure",
			zap.String("run_id", runID),
			zap.Error(err),
		)
	}
	if err := s.Connections.RecordExportOutcome(ctx, tenantID, StatusFailed, 0, nil); err != nil {
		s.Logger.Error("Failed to mark connection after run failure",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
	}
	return cause
}

// recordPreconditionFailure persists a failed run row for a run that never
// started, so precondition violations still show up in the history.
func (s *ExportServiceImpl) recordPreconditionFailure(ctx context.Context, tenantID string, opts Options, cause error) {
	now := time.Now()
	runLog := &SyncLog{
		RunID:       uuid.NewString(),
		TenantID:    tenantID,
		SyncType:    opts.SyncType,
		TriggeredBy: opts.TriggeredBy,
		Status:      StatusFailed,
		Errors: []ItemError{{
			ItemType:  "orchestrator",
			Error:     cause.Error(),
			Timestamp: now,
		}},
		Filters:     FilterSnapshot{From: opts.From, To: opts.To, Elements: opts.Elements},
		StartedAt:   now,
		CompletedAt: &now,
	}
	if err := s.Logs.Create(ctx, runLog); err != nil {
		s.Logger.Error("Failed to record precondition failure",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
	}
	if err := s.Connections.RecordExportOutcome(ctx, tenantID, StatusFailed, 0, nil); err != nil {
		s.Logger.Error("Failed to mark connection after precondition failure",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
	}
}
