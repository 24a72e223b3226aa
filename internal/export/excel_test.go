package export

import (
	"bytes"
	"testing"
	"time"

	"portal-data/internal/dataset"
	"portal-data/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func readRows(t *testing.T, data []byte, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{sheet}, f.GetSheetList())
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	return rows
}

func TestOrdersWorkbook_RowPerItem(t *testing.T) {
	d := decimal.RequireFromString
	orders := []dataset.OrderWithItems{
		{
			Order: domain.Order{OrderNumber: "ORD-20260301-A0C3E1", Status: "pending", DistributorID: "D",
				Subtotal: d("25"), TotalAmount: d("25"), CreatedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)},
			Items: []domain.OrderItem{
				{ProductID: "p1", Quantity: 2, UnitPrice: d("10"), LineTotal: d("20")},
				{ProductID: "p2", Quantity: 1, UnitPrice: d("5"), LineTotal: d("5")},
			},
		},
		{Order: domain.Order{OrderNumber: "ORD-20260302-FFFFFF", Status: "cancelled"}},
	}

	data, err := OrdersWorkbook(orders, ProductNames([]domain.Product{{ID: "p1", Name: "IPA"}}))
	require.NoError(t, err)

	rows := readRows(t, data, "Orders")
	require.Len(t, rows, 4)
	assert.Equal(t, OrdersHeader, rows[0])
	assert.Equal(t, "ORD-20260301-A0C3E1", rows[1][0])
	assert.Equal(t, "2026-03-01 08:00:00", rows[1][3])
	assert.Equal(t, "IPA", rows[1][4])
	assert.Equal(t, "2", rows[1][5])
	assert.Equal(t, "p2", rows[2][4], "unknown products fall back to the id")
	assert.Equal(t, "ORD-20260302-FFFFFF", rows[3][0])
}

func TestInventoryWorkbook(t *testing.T) {
	expiry := time.Date(2027, 2, 1, 0, 0, 0, 0, time.UTC)
	batches := []domain.InventoryBatch{
		{BatchNumber: "B-1", ProductID: "p1", Status: "active", ProductionDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			ExpiryDate: &expiry, QuantityProduced: 100, QuantityAvailable: 40, StorageLocation: "A"},
		{BatchNumber: "B-2", ProductID: "p1", Status: "depleted", ProductionDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			QuantityProduced: 10},
	}
	data, err := InventoryWorkbook(batches, map[string]string{"p1": "IPA"})
	require.NoError(t, err)

	rows := readRows(t, data, "Inventory")
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"B-1", "IPA", "active", "2026-02-01", "2027-02-01", "100", "40", "A"}, rows[1])
	assert.Equal(t, "B-2", rows[2][0])
	assert.Equal(t, "2026-01-01", rows[2][3])
}
