package query

// Entity collections of the portal store. Every collection carries tenant_id.

func base(cols ...Column) []Column {
	out := []Column{
		{Name: ColumnID, Kind: KindString},
		{Name: ColumnTenantID, Kind: KindString},
	}
	return append(out, cols...)
}

var (
	Products = NewSchema("products", base(
		Column{"name", KindString},
		Column{"description", KindString},
		Column{"wholesale_price", KindDecimal},
		Column{"retail_price", KindDecimal},
		Column{"category", KindString},
		Column{"tags", KindJSON},
		Column{"abv", KindFloat},
		Column{"volume_ml", KindInt},
		Column{"attributes", KindJSON},
		Column{"is_active", KindBool},
		Column{ColumnCreatedAt, KindTime},
		Column{ColumnUpdatedAt, KindTime},
	))

	Distributors = NewSchema("distributors", base(
		Column{"company_name", KindString},
		Column{"contact_name", KindString},
		Column{"email", KindString},
		Column{"phone", KindString},
		Column{"territory_id", KindString},
		Column{"tier", KindString},
		Column{"status", KindString},
		Column{"address", KindJSON},
		Column{ColumnCreatedAt, KindTime},
		Column{ColumnUpdatedAt, KindTime},
	))

	Orders = NewSchema("orders", base(
		Column{"order_number", KindString},
		Column{"distributor_id", KindString},
		Column{"status", KindString},
		Column{"subtotal", KindDecimal},
		Column{"discount_amount", KindDecimal},
		Column{"tax_amount", KindDecimal},
		Column{"shipping_amount", KindDecimal},
		Column{"total_amount", KindDecimal},
		Column{"notes", KindString},
		Column{ColumnCreatedAt, KindTime},
		Column{ColumnUpdatedAt, KindTime},
	), []string{"order_number"})

	OrderItems = NewSchema("order_items", base(
		Column{"order_id", KindString},
		Column{"product_id", KindString},
		Column{"quantity", KindInt},
		Column{"unit_price", KindDecimal},
		Column{"line_total", KindDecimal},
		Column{ColumnCreatedAt, KindTime},
	))

	InventoryBatches = NewSchema("inventory_batches", base(
		Column{"product_id", KindString},
		Column{"batch_number", KindString},
		Column{"production_date", KindTime},
		Column{"expiry_date", KindTime},
		Column{"quantity_produced", KindInt},
		Column{"quantity_available", KindInt},
		Column{"status", KindString},
		Column{"storage_location", KindString},
		Column{ColumnCreatedAt, KindTime},
		Column{ColumnUpdatedAt, KindTime},
	), []string{"batch_number"})

	Territories = NewSchema("territories", base(
		Column{"name", KindString},
		Column{"code", KindString},
		Column{"bounds", KindJSON},
		Column{"assigned_rep_id", KindString},
		Column{"target_revenue", KindDecimal},
		Column{"commission_structure", KindJSON},
		Column{"is_active", KindBool},
		Column{ColumnCreatedAt, KindTime},
		Column{ColumnUpdatedAt, KindTime},
	), []string{"code"})

	PerformanceMetrics = NewSchema("performance_metrics", base(
		Column{"metric_type", KindString},
		Column{"subject_type", KindString},
		Column{"subject_id", KindString},
		Column{"metric_name", KindString},
		Column{"metric_value", KindFloat},
		Column{"period_start", KindTime},
		Column{"period_end", KindTime},
		Column{"rating", KindString},
		Column{ColumnCreatedAt, KindTime},
	), []string{"metric_type", "subject_id", "metric_name", "period_start"})

	Shipments = NewSchema("shipments", base(
		Column{"order_id", KindString},
		Column{"carrier", KindString},
		Column{"tracking_number", KindString},
		Column{"status", KindString},
		Column{"destination", KindJSON},
		Column{"shipped_at", KindTime},
		Column{"delivered_at", KindTime},
		Column{ColumnCreatedAt, KindTime},
		Column{ColumnUpdatedAt, KindTime},
	))
)

// Tables lists every tenant-scoped collection.
func Tables() []*Schema {
	return []*Schema{Products, Distributors, Orders, OrderItems, InventoryBatches, Territories, PerformanceMetrics, Shipments}
}
