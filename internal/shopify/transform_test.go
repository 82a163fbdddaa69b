package shopify

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransformOrder(t *testing.T) {
	order := Order{
		ID:              json.Number("450789469"),
		ProcessedAt:     "2024-01-01T23:30:00-02:00",
		TotalPrice:      "149.90",
		TotalDiscounts:  "10.00",
		Currency:        "USD",
		FinancialStatus: "paid",
		Customer:        &Customer{ID: json.Number("207119551")},
	}

	row := TransformOrder(order, "tenant-1")

	assert.Equal(t, "tenant-1", row.TenantID)
	assert.Equal(t, "450789469", row.OrderID)
	// -02:00 offset pushes the calendar date into Jan 2 UTC.
	assert.Equal(t, "2024-01-02", row.ProcessedAt)
	assert.Equal(t, 149.90, row.TotalPrice)
	assert.Equal(t, 10.00, row.DiscountTotal)
	assert.Equal(t, "USD", row.Currency)
	assert.Equal(t, "207119551", row.CustomerID)
	assert.False(t, row.IsRefund)
}

func TestTransformOrderRefundStatuses(t *testing.T) {
	cases := []struct {
		status string
		refund bool
	}{
		{"refunded", true},
		{"partially_refunded", true},
		{"paid", false},
		{"pending", false},
		{"voided", false},
		{"", false},
	}

	for _, tc := range cases {
		row := TransformOrder(Order{ID: json.Number("1"), FinancialStatus: tc.status}, "t")
		assert.Equal(t, tc.refund, row.IsRefund, "status %q", tc.status)
	}
}

func TestTransformOrderMissingFields(t *testing.T) {
	row := TransformOrder(Order{ID: json.Number("2")}, "tenant-1")

	assert.Empty(t, row.ProcessedAt)
	assert.Zero(t, row.TotalPrice)
	assert.Zero(t, row.DiscountTotal)
	assert.Empty(t, row.CustomerID)
}

func TestTransformOrderUnparsableValues(t *testing.T) {
	row := TransformOrder(Order{
		ID:          json.Number("3"),
		ProcessedAt: "not-a-timestamp",
		TotalPrice:  "abc",
	}, "tenant-1")

	assert.Empty(t, row.ProcessedAt)
	assert.Zero(t, row.TotalPrice)
}

func TestTransformOrders(t *testing.T) {
	orders := []Order{
		{ID: json.Number("1"), TotalPrice: "10.00"},
		{ID: json.Number("2"), TotalPrice: "20.00"},
	}

	rows := TransformOrders(orders, "tenant-1")

	assert.Len(t, rows, 2)
	assert.Equal(t, "1", rows[0].OrderID)
	assert.Equal(t, "2", rows[1].OrderID)
}
