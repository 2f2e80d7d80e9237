// Package dashboard turns raw backend statistics payloads into
// display-ready series. Every transform is pure and total: missing
// sub-fields render as zero placeholders and empty input yields an empty
// series, never an error.
package dashboard

import (
	"sort"
	"strconv"
	"time"

	"github.com/jofan-cah/logistik-core/internal/core/types"
)

// RawStats is the backend summary payload. Every sub-object is optional;
// older backends omit sections they do not compute.
type RawStats struct {
	Inventory  *InventoryStats  `json:"inventory,omitempty"`
	Purchasing *PurchasingStats `json:"purchasing,omitempty"`
	Users      *UserStats       `json:"users,omitempty"`
}

// InventoryStats summarises category stock state.
type InventoryStats struct {
	TotalCategories int64 `json:"total_categories"`
	TotalStock      int64 `json:"total_stock"`
	LowStockCount   int64 `json:"low_stock_count"`
}

// PurchasingStats summarises recent receipt activity.
type PurchasingStats struct {
	ReceiptsThisMonth int64       `json:"receipts_this_month"`
	PendingReceipts   int64       `json:"pending_receipts"`
	SpendThisMonth    types.Money `json:"spend_this_month"`
}

// UserStats summarises account state.
type UserStats struct {
	ActiveUsers int64 `json:"active_users"`
	TotalUsers  int64 `json:"total_users"`
}

// StatCard is one display tuple for the dashboard header row.
type StatCard struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Trend int64  `json:"trend"`
	Icon  string `json:"icon"`
}

// FormatStatCards maps the raw summary into a fixed-order card list.
// Absent sections render as zeros rather than failing the whole dashboard.
func FormatStatCards(raw RawStats) []StatCard {
	inv := raw.Inventory
	if inv == nil {
		inv = &InventoryStats{}
	}
	pur := raw.Purchasing
	if pur == nil {
		pur = &PurchasingStats{}
	}
	usr := raw.Users
	if usr == nil {
		usr = &UserStats{}
	}

	return []StatCard{
		{Label: "Total Stock", Value: formatCount(inv.TotalStock), Icon: "package"},
		{Label: "Low Stock Categories", Value: formatCount(inv.LowStockCount), Trend: -inv.LowStockCount, Icon: "alert-triangle"},
		{Label: "Receipts This Month", Value: formatCount(pur.ReceiptsThisMonth), Trend: pur.ReceiptsThisMonth, Icon: "clipboard"},
		{Label: "Active Users", Value: formatCount(usr.ActiveUsers), Icon: "users"},
	}
}

// CategoryRow is one raw per-record row for the histogram.
type CategoryRow struct {
	CategoryName string `json:"category_name"`
}

// HistogramBucket is one name/count pair, ordered by descending count then
// name for a stable axis.
type HistogramBucket struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// FormatCategoryHistogram groups raw rows into name -> count buckets.
// Empty input returns an empty series.
func FormatCategoryHistogram(rows []CategoryRow) []HistogramBucket {
	counts := make(map[string]int64)
	for _, r := range rows {
		counts[r.CategoryName]++
	}
	out := make([]HistogramBucket, 0, len(counts))
	for name, count := range counts {
		out = append(out, HistogramBucket{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// TransactionRow is one raw per-record row for the monthly trend.
type TransactionRow struct {
	Date time.Time `json:"date"`
	Type string    `json:"type"`
}

// MonthBucket is one month's counts broken down by transaction type.
type MonthBucket struct {
	Month  string           `json:"month"` // YYYY-MM
	Counts map[string]int64 `json:"counts"`
}

// FormatMonthlyTrend groups raw rows into month -> {type -> count}
// buckets, oldest month first. Months between the oldest and newest row
// with no activity appear as zero buckets so chart axes stay contiguous.
// Empty input returns an empty series.
func FormatMonthlyTrend(rows []TransactionRow) []MonthBucket {
	if len(rows) == 0 {
		return []MonthBucket{}
	}

	byMonth := make(map[string]map[string]int64)
	first, last := rows[0].Date, rows[0].Date
	for _, r := range rows {
		key := r.Date.Format("2006-01")
		if byMonth[key] == nil {
			byMonth[key] = make(map[string]int64)
		}
		byMonth[key][r.Type]++
		if r.Date.Before(first) {
			first = r.Date
		}
		if r.Date.After(last) {
			last = r.Date
		}
	}

	var out []MonthBucket
	cursor := time.Date(first.Year(), first.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(last.Year(), last.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cursor.After(end) {
		key := cursor.Format("2006-01")
		counts := byMonth[key]
		if counts == nil {
			counts = make(map[string]int64)
		}
		out = append(out, MonthBucket{Month: key, Counts: counts})
		cursor = cursor.AddDate(0, 1, 0)
	}
	return out
}

func formatCount(v int64) string {
	// Grouping separators are a presentation concern; keep raw digits.
	return strconv.FormatInt(v, 10)
}
