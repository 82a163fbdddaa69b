package shopify

import (
	"strconv"
	"time"

	"shopsync/internal/store"
)

// TransformOrder maps a raw order into the internal row shape. Pure, no
// I/O; both pipelines share it.
//
// The processing date is the UTC calendar date of processed_at, empty when
// the order is unprocessed. Money fields parse from decimal strings with
// missing or unparsable values treated as 0. The refund flag is set only
// for the exact statuses "refunded" and "partially_refunded".
func TransformOrder(o Order, tenantID string) store.OrderRow {
	row := store.OrderRow{
		TenantID:      tenantID,
		OrderID:       o.ID.String(),
		ProcessedAt:   calendarDateUTC(o.ProcessedAt),
		TotalPrice:    parseAmount(o.TotalPrice),
		DiscountTotal: parseAmount(o.TotalDiscounts),
		Currency:      o.Currency,
		IsRefund:      o.FinancialStatus == "refunded" || o.FinancialStatus == "partially_refunded",
	}

	if o.Customer != nil && o.Customer.ID.String() != "" {
		row.CustomerID = o.Customer.ID.String()
	}
	return row
}

// TransformOrders maps a fetched batch, preserving order.
func TransformOrders(orders []Order, tenantID string) []store.OrderRow {
	rows := make([]store.OrderRow, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, TransformOrder(o, tenantID))
	}
	return rows
}

func calendarDateUTC(timestamp string) string {
	if timestamp == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

func parseAmount(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
