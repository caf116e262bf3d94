// Package schedule drives unattended incremental exports for tenants that
// opted into scheduled sync.
package schedule

import (
	"context"
	"errors"
	"time"

	"go-comply/internal/features/connection"
	"go-comply/internal/features/export"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// scanSchedule is how often due connections are looked for. The per-tenant
// frequency gates whether a scan actually triggers a run.
const scanSchedule = "*/15 * * * *"

var frequencyIntervals = map[string]time.Duration{
	connection.FrequencyHourly: time.Hour,
	connection.FrequencyDaily:  24 * time.Hour,
	connection.FrequencyWeekly: 7 * 24 * time.Hour,
}

type ScheduleService interface {
	InitializeScheduler(ctx context.Context) error
	StopScheduler() error
	RunDueExports(ctx context.Context)
}

type ScheduleServiceImpl struct {
	ConnectionRepo connection.ConnectionRepository
	Exports        export.ExportService
	Logger         *zap.Logger

	scheduler *cron.Cron
}

func NewScheduleService(connectionRepo connection.ConnectionRepository, exports export.ExportService, logger *zap.Logger) ScheduleService {
	return &ScheduleServiceImpl{
		ConnectionRepo: connectionRepo,
		Exports:        exports,
		Logger:         logger,
	}
}

func (s *ScheduleServiceImpl) InitializeScheduler(ctx context.Context) error {
	s.scheduler = cron.New()
	_, err := s.scheduler.AddFunc(scanSchedule, func() {
		s.RunDueExports(context.Background())
	})
	if err != nil {
		return err
	}
	s.scheduler.Start()
	s.Logger.Info("Export scheduler started", zap.String("scan_schedule", scanSchedule))
	return nil
}

func (s *ScheduleServiceImpl) StopScheduler() error {
	if s.scheduler != nil {
		s.scheduler.Stop()
		s.Logger.Info("Export scheduler stopped")
	}
	return nil
}

// RunDueExports triggers an incremental run for every sync-enabled tenant
// whose frequency interval has elapsed since the last run. One tenant's
// failure never blocks the rest of the scan.
func (s *ScheduleServiceImpl) RunDueExports(ctx context.Context) {
	conns, err := s.ConnectionRepo.ListSyncEnabled(ctx)
	if err != nil {
		s.Logger.Error("Scheduler failed to list sync-enabled connections", zap.Error(err))
		return
	}

	now := time.Now()
	for i := range conns {
		conn := &conns[i]
		if !due(conn, now) {
			continue
		}

		result, err := s.Exports.ExportAllEvidence(ctx, conn.TenantID, export.Options{
			SyncType:    export.SyncIncremental,
			TriggeredBy: "scheduler",
		})
		if err != nil {
			if errors.Is(err, export.ErrExportInProgress) {
				continue
			}
			s.Logger.Error("Scheduled export failed",
				zap.String("tenant_id", conn.TenantID),
				zap.Error(err),
			)
			continue
		}

		s.Logger.Info("Scheduled export finished",
			zap.String("tenant_id", conn.TenantID),
			zap.String("run_id", result.RunID),
			zap.String("status", result.Status),
			zap.Int("succeeded", result.Succeeded),
		)
	}
}

func due(conn *connection.Connection, now time.Time) bool {
	interval, ok := frequencyIntervals[conn.SyncFrequency]
	if !ok {
		return false
	}
	if conn.LastSyncAt == nil {
		return true
	}
	return now.Sub(*conn.LastSyncAt) >= interval
}
