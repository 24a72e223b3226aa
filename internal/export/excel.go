package export

import (
	"bytes"
	"fmt"
	"time"

	"portal-data/internal/dataset"
	"portal-data/internal/domain"

	"github.com/xuri/excelize/v2"
)

var OrdersHeader = []string{
	"Order Number", "Status", "Distributor ID", "Created At",
	"Product", "Quantity", "Unit Price", "Line Total",
	"Subtotal", "Discount", "Tax", "Shipping", "Total",
}

var InventoryHeader = []string{
	"Batch Number", "Product", "Status", "Production Date", "Expiry Date",
	"Produced", "Available", "Storage Location",
}

// OrdersWorkbook writes one row per order item, repeating the order header
// columns. Orders without items get a single row. productNames maps product
// id to display name; unknown ids are written as is.
func OrdersWorkbook(orders []dataset.OrderWithItems, productNames map[string]string) ([]byte, error) {
	var rows [][]any
	for _, o := range orders {
		head := []any{o.OrderNumber, o.Status, o.DistributorID, formatTime(o.CreatedAt)}
		totals := []any{
			o.Subtotal.InexactFloat64(), o.DiscountAmount.InexactFloat64(), o.TaxAmount.InexactFloat64(),
			o.ShippingAmount.InexactFloat64(), o.TotalAmount.InexactFloat64(),
		}
		if len(o.Items) == 0 {
			row := append(append(head[:len(head):len(head)], "", nil, nil, nil), totals...)
			rows = append(rows, row)
			continue
		}
		for _, it := range o.Items {
			row := append(head[:len(head):len(head)],
				name(productNames, it.ProductID), it.Quantity,
				it.UnitPrice.InexactFloat64(), it.LineTotal.InexactFloat64())
			rows = append(rows, append(row, totals...))
		}
	}
	return workbook("Orders", OrdersHeader, []float64{22, 12, 38, 20, 28, 10, 12, 12, 12, 12, 12, 12, 12}, rows)
}

func InventoryWorkbook(batches []domain.InventoryBatch, productNames map[string]string) ([]byte, error) {
	rows := make([][]any, 0, len(batches))
	for _, b := range batches {
		expiry := ""
		if b.ExpiryDate != nil {
			expiry = b.ExpiryDate.Format("2006-01-02")
		}
		rows = append(rows, []any{
			b.BatchNumber, name(productNames, b.ProductID), b.Status,
			b.ProductionDate.Format("2006-01-02"), expiry,
			b.QuantityProduced, b.QuantityAvailable, b.StorageLocation,
		})
	}
	return workbook("Inventory", InventoryHeader, []float64{20, 28, 12, 16, 16, 12, 12, 20}, rows)
}

// ProductNames indexes product names by id.
func ProductNames(products []domain.Product) map[string]string {
	out := make(map[string]string, len(products))
	for _, p := range products {
		out[p.ID] = p.Name
	}
	return out
}

func workbook(sheet string, headers []string, widths []float64, rows [][]any) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
		if i < len(widths) {
			col, err := excelize.ColumnNumberToName(i + 1)
			if err != nil {
				return nil, err
			}
			if err := f.SetColWidth(sheet, col, col, widths[i]); err != nil {
				return nil, fmt.Errorf("failed to set column width: %w", err)
			}
		}
	}

	for r, row := range rows {
		for c, v := range row {
			if v == nil || v == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func name(names map[string]string, id string) string {
	if n, ok := names[id]; ok && n != "" {
		return n
	}
	return id
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
