package schedule

import (
	"context"
	"testing"
	"time"

	"go-comply/internal/features/connection"
	"go-comply/internal/features/export"

	"go.uber.org/zap"
)

type fakeConnectionRepo struct {
	conns []connection.Connection
}

func (f *fakeConnectionRepo) GetByTenant(ctx context.Context, tenantID string) (*connection.Connection, error) {
	return nil, nil
}
func (f *fakeConnectionRepo) Upsert(ctx context.Context, conn *connection.Connection) error {
	return nil
}
func (f *fakeConnectionRepo) Update(ctx context.Context, tenantID string, updates map[string]interface{}) error {
	return nil
}
func (f *fakeConnectionRepo) UpdateStats(ctx context.Context, tenantID string, set map[string]interface{}, incItems int) error {
	return nil
}
func (f *fakeConnectionRepo) Delete(ctx context.Context, tenantID string) error { return nil }
func (f *fakeConnectionRepo) ListSyncEnabled(ctx context.Context) ([]connection.Connection, error) {
	return f.conns, nil
}
func (f *fakeConnectionRepo) EnsureIndexes(ctx context.Context) error { return nil }

type exportCall struct {
	tenantID string
	opts     export.Options
}

type fakeExportService struct {
	calls []exportCall
	err   error
}

func (f *fakeExportService) ExportAllEvidence(ctx context.Context, tenantID string, opts export.Options) (*export.Result, error) {
	f.calls = append(f.calls, exportCall{tenantID: tenantID, opts: opts})
	if f.err != nil {
		return nil, f.err
	}
	return &export.Result{RunID: "run-1", Success: true, Status: export.StatusCompleted}, nil
}

func (f *fakeExportService) ExportSingleItem(ctx context.Context, tenantID, itemType, itemID, actorID string) (*export.SingleItemResult, error) {
	return nil, nil
}

func (f *fakeExportService) GetSyncHistory(ctx context.Context, tenantID string, limit int64) ([]export.SyncLog, error) {
	return nil, nil
}

func (f *fakeExportService) ExportHistoryReport(ctx context.Context, tenantID string, limit int64) ([]byte, string, error) {
	return nil, "", nil
}

func TestDue(t *testing.T) {
	now := time.Now()
	hourAgo := now.Add(-2 * time.Hour)
	halfHourAgo := now.Add(-30 * time.Minute)
	twoDaysAgo := now.Add(-48 * time.Hour)

	tests := []struct {
		name string
		conn connection.Connection
		want bool
	}{
		{"no frequency set", connection.Connection{SyncEnabled: true}, false},
		{"never synced", connection.Connection{SyncFrequency: connection.FrequencyHourly}, true},
		{"hourly elapsed", connection.Connection{SyncFrequency: connection.FrequencyHourly, LastSyncAt: &hourAgo}, true},
		{"hourly not elapsed", connection.Connection{SyncFrequency: connection.FrequencyHourly, LastSyncAt: &halfHourAgo}, false},
		{"weekly not elapsed", connection.Connection{SyncFrequency: connection.FrequencyWeekly, LastSyncAt: &twoDaysAgo}, false},
		{"daily elapsed", connection.Connection{SyncFrequency: connection.FrequencyDaily, LastSyncAt: &twoDaysAgo}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := due(&tt.conn, now); got != tt.want {
				t.Errorf("due() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunDueExportsTriggersOnlyDueTenants(t *testing.T) {
	halfHourAgo := time.Now().Add(-30 * time.Minute)
	repo := &fakeConnectionRepo{conns: []connection.Connection{
		{TenantID: "tenant-due", SyncFrequency: connection.FrequencyHourly},
		{TenantID: "tenant-fresh", SyncFrequency: connection.FrequencyHourly, LastSyncAt: &halfHourAgo},
	}}
	exports := &fakeExportService{}

	service := NewScheduleService(repo, exports, zap.NewNop()).(*ScheduleServiceImpl)
	service.RunDueExports(context.Background())

	if len(exports.calls) != 1 {
		t.Fatalf("export calls = %d, want 1", len(exports.calls))
	}
	call := exports.calls[0]
	if call.tenantID != "tenant-due" {
		t.Errorf("tenant = %s, want tenant-due", call.tenantID)
	}
	if call.opts.SyncType != export.SyncIncremental || call.opts.TriggeredBy != "scheduler" {
		t.Errorf("opts = %+v", call.opts)
	}
}

func TestRunDueExportsSkipsBusyTenant(t *testing.T) {
	repo := &fakeConnectionRepo{conns: []connection.Connection{
		{TenantID: "tenant-busy", SyncFrequency: connection.FrequencyHourly},
		{TenantID: "tenant-other", SyncFrequency: connection.FrequencyHourly},
	}}
	exports := &fakeExportService{err: export.ErrExportInProgress}

	service := NewScheduleService(repo, exports, zap.NewNop()).(*ScheduleServiceImpl)
	service.RunDueExports(context.Background())

	// Both tenants are still attempted; the in-progress error is not fatal
	if len(exports.calls) != 2 {
		t.Errorf("export calls = %d, want 2", len(exports.calls))
	}
}
