// Package stock reconciles cart lines against authoritative stock levels.
package stock

import (
	"sort"
	"strings"

	"github.com/aistore/storefront/internal/domain"
)

// LowStockThreshold is the highest positive stock level reported as running low.
const LowStockThreshold = 5

// Compute derives StockInfo for every cart line. Products absent from levels count as zero stock.
func Compute(items []domain.CartItem, levels map[string]int) map[string]domain.StockInfo {
	out := make(map[string]domain.StockInfo, len(items))
	for _, item := range items {
		current := levels[item.ProductID]
		if current < 0 {
			current = 0
		}
		out[item.ProductID] = domain.StockInfo{
			ProductID:         item.ProductID,
			CurrentStock:      current,
			IsOutOfStock:      current <= 0,
			ExceedsStock:      item.Quantity > current,
			AvailableQuantity: clamp(item.Quantity, 0, current),
		}
	}
	return out
}

// HasStockIssues reports whether any line is out of stock or asks for more than is available.
func HasStockIssues(infos map[string]domain.StockInfo) bool {
	for _, info := range infos {
		if info.IsOutOfStock || info.ExceedsStock {
			return true
		}
	}
	return false
}

// IsLowStock reports whether a product should carry a low-stock badge.
func IsLowStock(stock int) bool {
	return stock > 0 && stock <= LowStockThreshold
}

// ProductIDs returns the sorted distinct product ids of items.
func ProductIDs(items []domain.CartItem) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func setKey(items []domain.CartItem) string {
	return strings.Join(ProductIDs(items), ",")
}

func clamp(value, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
