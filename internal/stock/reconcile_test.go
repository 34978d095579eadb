package stock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aistore/storefront/internal/domain"
)

func TestComputeClassifiesLines(t *testing.T) {
	items := []domain.CartItem{
		{ProductID: "a", Quantity: 3},
		{ProductID: "b", Quantity: 5},
		{ProductID: "c", Quantity: 1},
		{ProductID: "d", Quantity: 2},
	}
	levels := map[string]int{"a": 10, "b": 2, "c": 0}

	got := Compute(items, levels)
	require.Len(t, got, 4)

	assert.Equal(t, domain.StockInfo{ProductID: "a", CurrentStock: 10, AvailableQuantity: 3}, got["a"])
	assert.Equal(t, domain.StockInfo{ProductID: "b", CurrentStock: 2, ExceedsStock: true, AvailableQuantity: 2}, got["b"])
	assert.Equal(t, domain.StockInfo{ProductID: "c", IsOutOfStock: true, ExceedsStock: true}, got["c"])
	assert.True(t, got["d"].IsOutOfStock, "missing product counts as zero stock")
	assert.True(t, HasStockIssues(got))
}

func TestComputeNegativeStockTreatedAsZero(t *testing.T) {
	got := Compute([]domain.CartItem{{ProductID: "x", Quantity: 1}}, map[string]int{"x": -4})
	assert.Equal(t, 0, got["x"].CurrentStock)
	assert.Equal(t, 0, got["x"].AvailableQuantity)
	assert.True(t, got["x"].IsOutOfStock)
}

func TestHasStockIssuesFalseWhenEverythingFits(t *testing.T) {
	got := Compute([]domain.CartItem{{ProductID: "a", Quantity: 2}}, map[string]int{"a": 2})
	assert.False(t, HasStockIssues(got))
	assert.False(t, HasStockIssues(nil))
}

func TestIsLowStock(t *testing.T) {
	cases := map[int]bool{-1: false, 0: false, 1: true, 5: true, 6: false}
	for stock, want := range cases {
		if got := IsLowStock(stock); got != want {
			t.Fatalf("expected IsLowStock(%d)=%v, got %v", stock, want, got)
		}
	}
}

func TestProductIDsSortedAndDistinct(t *testing.T) {
	ids := ProductIDs([]domain.CartItem{{ProductID: "b"}, {ProductID: "a"}, {ProductID: "b"}, {ProductID: " "}})
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.Equal(t, "a,b", setKey([]domain.CartItem{{ProductID: "b"}, {ProductID: "a"}}))
}
