package export

import (
	"context"
	"fmt"
	"time"

	"go-comply/internal/auditclient"
	"go-comply/internal/features/connection"
	"go-comply/internal/features/evidence"

	"go.uber.org/zap"
)

// fixedElements lists the types whose COR element is constant. Types absent
// here derive the primary element from a per-row element list.
var fixedElements = map[string]int{
	evidence.TypeCertification:     evidence.ElementCertifications,
	evidence.TypeMaintenanceRecord: evidence.ElementMaintenance,
	evidence.TypeTrainingRecord:    evidence.ElementTraining,
	evidence.TypeMeetingMinutes:    evidence.ElementMeetings,
	evidence.TypeInspection:        evidence.ElementInspections,
	evidence.TypeIncidentReport:    evidence.ElementIncidents,
}

func (res *typeResult) recordFailure(src evidence.Source, message string) {
	res.Failed++
	res.Errors = append(res.Errors, ItemError{
		ItemType:  src.ItemType(),
		ItemID:    src.ItemID(),
		ItemName:  src.ItemName(),
		Error:     auditclient.Redact(message),
		Timestamp: time.Now(),
	})
}

// exportType runs one type's pipeline: query candidates, skip already-mapped
// records in incremental mode, upload, persist mappings. One item's failure
// never halts the batch; only query or mapping-load failures escape as
// orchestrator-level errors.
func (s *ExportServiceImpl) exportType(ctx context.Context, client connection.AuditAPI, conn *connection.Connection, itemType string, incremental bool, f evidence.Filters) (*typeResult, error) {
	res := &typeResult{}

	if element, ok := fixedElements[itemType]; ok && !f.WantsElement(element) {
		return res, nil
	}

	sources, err := s.Evidence.List(ctx, conn.TenantID, itemType, f)
	if err != nil {
		return nil, fmt.Errorf("list %s candidates: %w", itemType, err)
	}

	var synced map[string]bool
	if incremental {
		synced, err = s.Mappings.SyncedIDs(ctx, conn.TenantID, itemType)
		if err != nil {
			return nil, fmt.Errorf("load %s mappings: %w", itemType, err)
		}
	}

	for _, src := range sources {
		if incremental && synced[src.ItemID()] {
			continue
		}
		res.Total++

		item := src.BuildItem()
		item.AuditID = conn.AuditID
		s.attach(ctx, src, item)

		upload, err := client.UploadEvidence(ctx, item)
		if err != nil {
			res.recordFailure(src, err.Error())
			continue
		}
		if !upload.Success {
			res.recordFailure(src, upload.Error)
			continue
		}

		mapping := &ItemMapping{
			TenantID:     conn.TenantID,
			ItemType:     itemType,
			ItemID:       src.ItemID(),
			ExternalID:   upload.ExternalItemID,
			ExternalKind: item.EvidenceType,
			Element:      item.Element,
			QuestionID:   item.QuestionID,
			SyncStatus:   MappingSynced,
		}
		if err := s.Mappings.Upsert(ctx, mapping); err != nil {
			res.recordFailure(src, fmt.Sprintf("record mapping: %v", err))
			continue
		}
		res.Succeeded++
	}
	return res, nil
}

// attach resolves the source's referenced file, if any. A download failure
// degrades gracefully; the item is still exported without a file and the
// failure is not counted against the item.
func (s *ExportServiceImpl) attach(ctx context.Context, src evidence.Source, item *auditclient.EvidenceItem) {
	path := src.AttachmentPath()
	if path == "" {
		return
	}

	name, data, err := s.Blobs.Download(ctx, path)
	if err != nil {
		s.Logger.Warn("Attachment download failed, exporting without file",
			zap.String("item_type", src.ItemType()),
			zap.String("item_id", src.ItemID()),
			zap.Error(err),
		)
		return
	}
	item.Attachment = &auditclient.Attachment{Name: name, Data: data}
}
