package billing

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	billingdomain "github.com/backoffice/backend/internal/domain/billing"
)

// exportPageSize is how many events are pulled per repository round trip
const exportPageSize = 500

// exportMaxRows caps a single export so a runaway query cannot hold the
// connection and the file in memory indefinitely
const exportMaxRows = 100_000

var exportHeader = []string{"Recorded At", "Event Type", "Quantity", "Unit", "User ID", "Resource ID", "Period Start"}

// ExportService renders a tenant's usage event log as CSV or XLSX for
// finance teams that reconcile invoices offline.
type ExportService struct {
	events billingdomain.UsageEventRepository
	logger *zap.Logger
}

// NewExportService creates a usage export service
func NewExportService(events billingdomain.UsageEventRepository, logger *zap.Logger) *ExportService {
	return &ExportService{events: events, logger: logger}
}

// ExportCSV writes the tenant's usage events matching the filter as CSV
func (s *ExportService) ExportCSV(ctx context.Context, tenantID uuid.UUID, filter billingdomain.UsageEventFilter) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}

	err := s.eachEvent(ctx, tenantID, filter, func(event *billingdomain.UsageEvent) error {
		return w.Write(eventRow(event))
	})
	if err != nil {
		return nil, err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportXLSX writes the tenant's usage events matching the filter as an
// Excel workbook with a single "Usage" sheet
func (s *ExportService) ExportXLSX(ctx context.Context, tenantID uuid.UUID, filter billingdomain.UsageEventFilter) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("failed to close workbook", zap.Error(err))
		}
	}()

	const sheet = "Usage"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		s.logger.Warn("failed to drop default sheet", zap.Error(err))
	}

	for col, title := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return nil, err
		}
	}

	row := 2
	err = s.eachEvent(ctx, tenantID, filter, func(event *billingdomain.UsageEvent) error {
		for col, value := range eventRow(event) {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
		row++
		return nil
	})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// eachEvent pages through the event log invoking fn per event, oldest first
func (s *ExportService) eachEvent(ctx context.Context, tenantID uuid.UUID, filter billingdomain.UsageEventFilter, fn func(*billingdomain.UsageEvent) error) error {
	filter.TenantID = &tenantID
	filter.PageSize = exportPageSize
	filter.OrderBy = "recorded_at"
	filter.OrderDir = "asc"

	seen := 0
	for page := 1; ; page++ {
		filter.Page = page
		batch, err := s.events.FindByFilter(ctx, filter)
		if err != nil {
			return err
		}
		for i := range batch.Items {
			if seen >= exportMaxRows {
				return fmt.Errorf("export exceeds %d rows, narrow the time range", exportMaxRows)
			}
			if err := fn(&batch.Items[i]); err != nil {
				return err
			}
			seen++
		}
		if page >= batch.TotalPages || len(batch.Items) == 0 {
			return nil
		}
	}
}

func eventRow(event *billingdomain.UsageEvent) []string {
	userID := ""
	if event.UserID != nil {
		userID = event.UserID.String()
	}
	resourceID := ""
	if event.ResourceID != nil {
		resourceID = *event.ResourceID
	}
	return []string{
		event.RecordedAt.UTC().Format("2006-01-02 15:04:05"),
		string(event.Type),
		strconv.FormatInt(event.Quantity, 10),
		event.Type.Unit(),
		userID,
		resourceID,
		event.PeriodStart.UTC().Format("2006-01-02"),
	}
}
