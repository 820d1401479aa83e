package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"salonbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// AuditSource supplies the records for an audit workbook.
type AuditSource interface {
	ListReservationsByRange(ctx context.Context, from, to string) ([]models.Reservation, error)
	ListPaymentsByRange(ctx context.Context, from, to string) ([]models.PaymentRecord, error)
}

// AuditExporter writes reservations and payment attempts for a date span
// into an Excel workbook for operator review.
type AuditExporter struct {
	source AuditSource
	path   string
	logger *zerolog.Logger
}

func NewAuditExporter(source AuditSource, path string, logger *zerolog.Logger) *AuditExporter {
	return &AuditExporter{source: source, path: path, logger: logger}
}

// Export builds the workbook and returns the saved file path. Dates are
// inclusive, formatted YYYY-MM-DD.
func (e *AuditExporter) Export(ctx context.Context, from, to string) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	reservations, err := e.source.ListReservationsByRange(ctx, from, to)
	if err != nil {
		return "", fmt.Errorf("error getting reservations: %v", err)
	}
	payments, err := e.source.ListPaymentsByRange(ctx, from, to)
	if err != nil {
		return "", fmt.Errorf("error getting payments: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := e.writeReservations(f, reservations); err != nil {
		return "", err
	}
	if err := e.writePayments(f, payments); err != nil {
		return "", err
	}
	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("audit_%s_to_%s.xlsx", from, to)
	filePath := filepath.Join(e.path, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	e.logger.Info().Str("file_path", filePath).
		Int("reservations", len(reservations)).Int("payments", len(payments)).
		Msg("audit workbook created")
	return filePath, nil
}

func (e *AuditExporter) writeReservations(f *excelize.File, rows []models.Reservation) error {
	const sheet = "Reservations"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"ID", "Date", "Start", "Hours", "Provider", "Customer", "Phone",
		"Service", "Channel", "Payment Ref", "Status", "Created",
	}
	if err := writeHeader(f, sheet, headers); err != nil {
		return err
	}

	for i, r := range rows {
		row := i + 2
		setRow(f, sheet, row, []interface{}{
			r.ID, r.Date, r.StartTime, r.DurationHours, r.ProviderID,
			r.CustomerName, r.Phone, r.ServiceType, r.Channel,
			r.PaymentRef, r.PaymentStatus, r.CreatedAt.Format("02.01.2006 15:04"),
		})
	}

	_ = f.SetColWidth(sheet, "A", "A", 38)
	_ = f.SetColWidth(sheet, "B", "L", 16)
	return nil
}

func (e *AuditExporter) writePayments(f *excelize.File, rows []models.PaymentRecord) error {
	const sheet = "Payments"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("error creating sheet: %v", err)
	}

	headers := []string{
		"ID", "Ref Code", "Date", "Time", "Hours", "Provider", "Customer",
		"Expected", "Read", "Matched", "Status", "Slot", "Created",
	}
	if err := writeHeader(f, sheet, headers); err != nil {
		return err
	}

	for i, p := range rows {
		row := i + 2
		amountRead := ""
		if p.AmountRead != nil {
			amountRead = fmt.Sprintf("%.2f", *p.AmountRead)
		}
		setRow(f, sheet, row, []interface{}{
			p.ID, p.RefCode, p.Date, p.Time, p.Hours, p.ProviderName,
			p.CustomerName, p.AmountExpected, amountRead, boolToYesNo(p.Matched),
			p.Status, p.SlotID, p.CreatedAt.Format("02.01.2006 15:04"),
		})
	}

	_ = f.SetColWidth(sheet, "A", "A", 38)
	_ = f.SetColWidth(sheet, "B", "M", 16)
	return nil
}

func writeHeader(f *excelize.File, sheet string, headers []string) error {
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, header)
	}

	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil
	}
	startCell, _ := excelize.CoordinatesToCellName(1, 1)
	endCell, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(sheet, startCell, endCell, style)
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) {
	for i, val := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, val)
	}
}

func boolToYesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
