package catalog

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/product"
)

// --- Helpers ---

// newTestProduct builds a product. An empty price or rate leaves the field
// missing.
func newTestProduct(id, title, category, price, rate string) product.Product {
	p := product.Product{
		ID:       id,
		Title:    title,
		Category: category,
		Image:    "https://img.example.com/" + id + ".jpg",
	}
	if price != "" {
		p.Price = decimal.NewNullDecimal(decimal.RequireFromString(price))
	}
	if rate != "" {
		p.Rating = &product.Rating{Rate: decimal.RequireFromString(rate), Count: 10}
	}
	return p
}

func ids(products []product.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.ID
	}
	return out
}

func sampleCatalog() []product.Product {
	return []product.Product{
		newTestProduct("1", "Fjallraven Backpack", "men's clothing", "109.95", "3.9"),
		newTestProduct("2", "Mens Casual T-Shirt", "men's clothing", "22.3", "4.1"),
		newTestProduct("3", "Mens Cotton Jacket", "men's clothing", "55.99", "4.7"),
		newTestProduct("4", "Gold Chain Bracelet", "jewelery", "695", "4.6"),
		newTestProduct("5", "Solid Gold Petite", "jewelery", "168", "3.9"),
		newTestProduct("6", "WD 2TB External Drive", "electronics", "64", ""),
		newTestProduct("7", "SanDisk SSD", "electronics", "", "4.8"),
		newTestProduct("8", "Womens Rain Jacket", "women's clothing", "39.99", "3.8"),
	}
}

// --- Tests ---

func TestQueryMatches(t *testing.T) {
	p := newTestProduct("1", "Mens Cotton Jacket", "men's clothing", "55.99", "4.7")

	for _, tt := range []struct {
		name  string
		query Query
		want  bool
	}{
		{"empty search matches", DefaultQuery(), true},
		{"case insensitive substring", Query{Search: "COTTON jac", Category: AllCategories}, true},
		{"no substring", Query{Search: "denim", Category: AllCategories}, false},
		{"exact category", Query{Category: "men's clothing"}, true},
		{"category is not a prefix match", Query{Category: "men's"}, false},
		{"category is case sensitive", Query{Category: "Men's clothing"}, false},
		{"search and category both required", Query{Search: "jacket", Category: "jewelery"}, false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.query.Matches(p))
		})
	}
}

func TestDerive_DefaultKeepsUpstreamOrder(t *testing.T) {
	all := sampleCatalog()
	got := Derive(all, DefaultQuery())
	assert.Equal(t, ids(all), ids(got))
}

func TestDerive_DoesNotModifyInput(t *testing.T) {
	all := sampleCatalog()
	before := ids(all)

	_ = Derive(all, Query{Category: AllCategories, Sort: SortPriceHigh})
	assert.Equal(t, before, ids(all))
}

func TestDerive_Sort(t *testing.T) {
	all := sampleCatalog()

	t.Run("price low", func(t *testing.T) {
		got := Derive(all, Query{Category: AllCategories, Sort: SortPriceLow})
		assert.Equal(t, []string{"7", "2", "8", "3", "6", "1", "5", "4"}, ids(got))
	})
	t.Run("price high", func(t *testing.T) {
		got := Derive(all, Query{Category: AllCategories, Sort: SortPriceHigh})
		assert.Equal(t, []string{"4", "5", "1", "6", "3", "8", "2", "7"}, ids(got))
	})
	t.Run("rating high is stable for ties", func(t *testing.T) {
		got := Derive(all, Query{Category: AllCategories, Sort: SortRatingHigh})
		// 1 and 5 share 3.9 and keep upstream order; 6 has no rating.
		assert.Equal(t, []string{"7", "3", "4", "2", "1", "5", "8", "6"}, ids(got))
	})
}

func TestDerive_PriceLowTreatsMissingPriceAsZero(t *testing.T) {
	all := []product.Product{
		newTestProduct("a", "A", "x", "30", ""),
		newTestProduct("b", "B", "x", "", ""),
		newTestProduct("c", "C", "x", "10", ""),
	}

	got := Derive(all, Query{Sort: SortPriceLow})
	require.Len(t, got, 3)
	assert.Equal(t, []string{"b", "c", "a"}, ids(got))
	assert.False(t, got[0].Price.Valid)
}

func TestDerive_FilterThenSort(t *testing.T) {
	got := Derive(sampleCatalog(), Query{Search: "jacket", Category: AllCategories, Sort: SortPriceLow})
	assert.Equal(t, []string{"8", "3"}, ids(got))
}

func TestParseSortKey(t *testing.T) {
	assert.Equal(t, SortPriceLow, ParseSortKey("price-low"))
	assert.Equal(t, SortPriceHigh, ParseSortKey(" price-high "))
	assert.Equal(t, SortRatingHigh, ParseSortKey("rating-high"))
	assert.Equal(t, SortNone, ParseSortKey(""))
	assert.Equal(t, SortNone, ParseSortKey("rating-low"))
}

func TestQueryNormalize(t *testing.T) {
	q := Query{Search: "bag", Sort: "bogus"}.Normalize()
	assert.Equal(t, Query{Search: "bag", Category: AllCategories}, q)
}

func TestPaging(t *testing.T) {
	assert.Equal(t, 6, firstPage(14))
	assert.Equal(t, 2, firstPage(2))
	assert.Equal(t, 0, firstPage(0))
	assert.Equal(t, 12, nextPage(6, 14))
	assert.Equal(t, 14, nextPage(12, 14))
	assert.Equal(t, 14, nextPage(14, 14))
}

func BenchmarkDerive(b *testing.B) {
	all := make([]product.Product, 0, 1000)
	for i := range 1000 {
		all = append(all, newTestProduct(fmt.Sprint(i), fmt.Sprintf("Item %d", i), "x", fmt.Sprint(i%97), "4"))
	}
	q := Query{Search: "item 1", Category: AllCategories, Sort: SortPriceHigh}

	b.ReportAllocs()
	for b.Loop() {
		_ = Derive(all, q)
	}
}
