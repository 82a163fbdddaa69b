// Package kpi recomputes per-tenant daily metrics from order rows.
package kpi

import (
	"sort"

	"shopsync/internal/store"
)

// AggregateDaily groups order rows by processing date and produces one KPI
// row per date. Pure, no I/O. Rows without a processing date are excluded
// entirely: they count toward storage but never toward a daily metric.
//
// Revenue sums total_price over every row in the date group, refunds
// included, while conversions count only non-refund rows. The asymmetry
// (gross revenue, net conversions) is long-standing upstream behavior and
// is preserved as-is. AOV is revenue/conversions, nil when the date has no
// conversions. Spend, clicks, cos and roas belong to other sources and
// stay nil.
//
// All rows in one call are assumed to share a tenant; each output row
// takes its tenant from the first row of its group. Output is sorted by
// date so repeated runs over the same input are byte-identical.
func AggregateDaily(rows []store.OrderRow) []store.DailyKPIRow {
	byDate := make(map[string][]store.OrderRow)
	for _, row := range rows {
		if row.ProcessedAt == "" {
			continue
		}
		byDate[row.ProcessedAt] = append(byDate[row.ProcessedAt], row)
	}

	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	out := make([]store.DailyKPIRow, 0, len(dates))
	for _, date := range dates {
		group := byDate[date]

		var revenue float64
		conversions := 0
		for _, row := range group {
			revenue += row.TotalPrice
			if !row.IsRefund {
				conversions++
			}
		}

		var aov *float64
		if conversions > 0 {
			v := revenue / float64(conversions)
			aov = &v
		}

		out = append(out, store.DailyKPIRow{
			TenantID:    group[0].TenantID,
			Date:        date,
			Source:      store.SourceShopify,
			Revenue:     revenue,
			Conversions: conversions,
			AOV:         aov,
		})
	}
	return out
}
