package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	domain "github.com/hanko-field/storebot/internal/domain"
	"github.com/hanko-field/storebot/internal/platform/storage"
	"github.com/hanko-field/storebot/internal/repositories"
)

const (
	exportSheetName   = "Заказы"
	exportDateLayout  = "02.01.2006 15:04"
	exportContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	missingUsername   = "Нет username"
)

var exportHeaders = []string{
	"ID заказа",
	"Дата заказа",
	"ФИО получателя",
	"Телефон",
	"Адрес",
	"Статус оплаты",
	"Telegram ID",
	"Username",
	"Товары",
}

// ErrExportUnavailable indicates orders could not be read or the workbook could not be built.
var ErrExportUnavailable = errors.New("export service: unavailable")

// ExportArchiver stores a copy of each export, typically in Cloud Storage.
type ExportArchiver interface {
	Upload(ctx context.Context, object, contentType string, data []byte) (string, error)
}

// ExportServiceDeps wires the order reader and the optional archive.
type ExportServiceDeps struct {
	Orders   repositories.OrderRepository
	Archiver ExportArchiver
	Location *time.Location
	Clock    func() time.Time
	Logger   func(context.Context, string, map[string]any)
}

type exportService struct {
	orders   repositories.OrderRepository
	archiver ExportArchiver
	location *time.Location
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewExportService constructs an ExportService.
func NewExportService(deps ExportServiceDeps) (ExportService, error) {
	if deps.Orders == nil {
		return nil, errors.New("export service: order repository is required")
	}
	location := deps.Location
	if location == nil {
		location = time.UTC
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &exportService{
		orders:   deps.Orders,
		archiver: deps.Archiver,
		location: location,
		now:      func() time.Time { return clock().In(location) },
		logger:   logger,
	}, nil
}

// ExportOrders writes one row per order, oldest first. Reading never modifies orders.
func (s *exportService) ExportOrders(ctx context.Context) (OrderExport, error) {
	orders, err := s.orders.List(ctx)
	if err != nil {
		return OrderExport{}, errors.Join(ErrExportUnavailable, err)
	}
	data, err := s.render(orders)
	if err != nil {
		return OrderExport{}, errors.Join(ErrExportUnavailable, err)
	}

	generatedAt := s.now()
	export := OrderExport{
		FileName:    ExportFileName(generatedAt),
		ContentType: exportContentType,
		Data:        data,
		Orders:      len(orders),
		GeneratedAt: generatedAt,
	}
	s.archive(ctx, export)
	return export, nil
}

func (s *exportService) render(orders []domain.Order) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	widths := make([]int, len(exportHeaders))
	rows := make([][]any, 0, len(orders)+1)
	header := make([]any, len(exportHeaders))
	for i, h := range exportHeaders {
		header[i] = h
	}
	rows = append(rows, header)
	for _, order := range orders {
		rows = append(rows, s.row(order))
	}

	for r, values := range rows {
		for c, value := range values {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(exportSheetName, cell, value); err != nil {
				return nil, fmt.Errorf("set %s: %w", cell, err)
			}
			if n := utf8.RuneCountInString(fmt.Sprint(value)); n > widths[c] {
				widths[c] = n
			}
		}
	}
	for c, width := range widths {
		name, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(exportSheetName, name, name, float64(width+2)); err != nil {
			return nil, fmt.Errorf("width %s: %w", name, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *exportService) row(order domain.Order) []any {
	status := "Не оплачен"
	if order.Paid {
		status = "Оплачен"
	}
	username := order.Username
	if username == "" {
		username = missingUsername
	}
	items := make([]string, 0, len(order.Lines))
	for _, line := range order.Lines {
		items = append(items, fmt.Sprintf("%s x %d", line.SubcategoryName, line.Quantity))
	}
	return []any{
		order.ID,
		order.CreatedAt.In(s.location).Format(exportDateLayout),
		order.Recipient.FullName,
		order.Recipient.Phone,
		order.Recipient.Address,
		status,
		order.UserID,
		username,
		strings.Join(items, ", "),
	}
}

func (s *exportService) archive(ctx context.Context, export OrderExport) {
	if s.archiver == nil {
		return
	}
	object, err := storage.BuildObjectPath(storage.PurposeOrderExport, storage.PathParams{
		FileName: export.FileName,
		At:       export.GeneratedAt,
	})
	if err == nil {
		_, err = s.archiver.Upload(ctx, object, export.ContentType, export.Data)
	}
	if err != nil {
		s.logger(ctx, "export.archive_failed", map[string]any{"file": export.FileName, "error": err.Error()})
		return
	}
	s.logger(ctx, "export.archived", map[string]any{"object": object, "orders": export.Orders})
}

// ExportFileName names the workbook after its generation time.
func ExportFileName(at time.Time) string {
	return fmt.Sprintf("orders_%s.xlsx", at.Format("20060102_150405"))
}
