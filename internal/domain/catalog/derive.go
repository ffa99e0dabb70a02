package catalog

import (
	"slices"
	"strings"

	"github.com/xenking/storefront/internal/domain/product"
)

// Matches reports whether p passes the search and category filters of q.
// Search is a case-insensitive substring match on the title; the category
// must match exactly unless q selects AllCategories.
func (q Query) Matches(p product.Product) bool {
	if !strings.Contains(strings.ToLower(p.Title), strings.ToLower(q.Search)) {
		return false
	}
	return q.Category == AllCategories || q.Category == "" || p.Category == q.Category
}

// Derive returns the filtered-and-sorted view of all under q. It never
// modifies all and always returns a fresh slice.
func Derive(all []product.Product, q Query) []product.Product {
	out := make([]product.Product, 0, len(all))
	for _, p := range all {
		if q.Matches(p) {
			out = append(out, p)
		}
	}

	switch q.Sort {
	case SortPriceLow:
		slices.SortStableFunc(out, func(a, b product.Product) int {
			return a.PriceOrZero().Cmp(b.PriceOrZero())
		})
	case SortPriceHigh:
		slices.SortStableFunc(out, func(a, b product.Product) int {
			return b.PriceOrZero().Cmp(a.PriceOrZero())
		})
	case SortRatingHigh:
		slices.SortStableFunc(out, func(a, b product.Product) int {
			return b.RateOrZero().Cmp(a.RateOrZero())
		})
	}
	return out
}

// firstPage returns the revealed cursor for a freshly reset view of n items.
func firstPage(n int) int {
	return min(PageSize, n)
}

// nextPage returns the revealed cursor after appending one page to cursor,
// bounded by n.
func nextPage(cursor, n int) int {
	return min(cursor+PageSize, n)
}
