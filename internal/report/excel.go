package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/minhtran42/trade-executor/internal/store"
	"github.com/minhtran42/trade-executor/pkg/types"
)

// ExcelReporter exports execution history from the store.
type ExcelReporter struct {
	store *store.Store
}

// NewExcelReporter creates an Excel reporter over the given store.
func NewExcelReporter(s *store.Store) *ExcelReporter {
	return &ExcelReporter{store: s}
}

type excelStyles struct {
	header   int
	currency int
	datetime int
}

// WriteHistoryXLSX writes the recent orders and the 24-hour alert window
// to an Excel workbook at path.
func (r *ExcelReporter) WriteHistoryXLSX(ctx context.Context, path string, orderLimit int) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	orders, err := r.store.ListOrders(ctx, orderLimit)
	if err != nil {
		return err
	}
	alerts, err := r.store.ListAlerts(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		return err
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const ordersSheet = "Orders"
	const alertsSheet = "Risk Alerts"
	fx.SetSheetName(fx.GetSheetName(0), ordersSheet)
	fx.NewSheet(alertsSheet)

	styles, err := createStyles(fx)
	if err != nil {
		return err
	}

	if err := writeOrdersSheet(fx, ordersSheet, orders, styles); err != nil {
		return err
	}
	if err := writeAlertsSheet(fx, alertsSheet, alerts, styles); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func createStyles(fx *excelize.File) (excelStyles, error) {
	var styles excelStyles
	var err error

	styles.header, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:  true,
			Size:  11,
			Color: "FFFFFF",
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"2F4F4F"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return styles, err
	}

	styles.currency, err = fx.NewStyle(&excelize.Style{
		NumFmt: 7,
		Alignment: &excelize.Alignment{
			Horizontal: "right",
		},
	})
	if err != nil {
		return styles, err
	}

	styles.datetime, err = fx.NewStyle(&excelize.Style{
		NumFmt: 22,
		Alignment: &excelize.Alignment{
			Horizontal: "left",
		},
	})
	return styles, err
}

func writeOrdersSheet(fx *excelize.File, sheet string, orders []store.OrderRecord, styles excelStyles) error {
	headers := []string{"Executed At", "Request ID", "Venue Order ID", "Venue", "Symbol",
		"Side", "Type", "Quantity", "Price", "Filled", "Avg Fill Price", "Status"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, styles.header)
	}

	for i, o := range orders {
		row := i + 2
		values := []interface{}{
			o.ExecutedAt, o.RequestID, o.VenueOrderID, o.Venue, o.Symbol,
			o.Side, o.Type, o.Quantity, o.Price, o.FilledQuantity, o.AverageFillPrice, o.Status,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			fx.SetCellValue(sheet, cell, v)
		}
		first, _ := excelize.CoordinatesToCellName(1, row)
		fx.SetCellStyle(sheet, first, first, styles.datetime)
		priceCell, _ := excelize.CoordinatesToCellName(9, row)
		avgCell, _ := excelize.CoordinatesToCellName(11, row)
		fx.SetCellStyle(sheet, priceCell, priceCell, styles.currency)
		fx.SetCellStyle(sheet, avgCell, avgCell, styles.currency)
	}

	fx.SetColWidth(sheet, "A", "A", 20)
	fx.SetColWidth(sheet, "B", "C", 30)
	fx.SetColWidth(sheet, "D", "L", 14)
	return nil
}

func writeAlertsSheet(fx *excelize.File, sheet string, alerts []types.RiskAlert, styles excelStyles) error {
	headers := []string{"Raised At", "Type", "Severity", "Metric", "Message",
		"Value", "Threshold", "Recommended Action"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, styles.header)
	}

	for i, a := range alerts {
		row := i + 2
		values := []interface{}{
			a.Timestamp, string(a.Type), a.Severity, a.Metric, a.Message,
			a.CurrentValue, a.Threshold, a.RecommendedAction,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			fx.SetCellValue(sheet, cell, v)
		}
		first, _ := excelize.CoordinatesToCellName(1, row)
		fx.SetCellStyle(sheet, first, first, styles.datetime)
	}

	fx.SetColWidth(sheet, "A", "A", 20)
	fx.SetColWidth(sheet, "B", "D", 14)
	fx.SetColWidth(sheet, "E", "E", 50)
	fx.SetColWidth(sheet, "F", "G", 12)
	fx.SetColWidth(sheet, "H", "H", 45)
	return nil
}
