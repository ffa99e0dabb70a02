package catalog

import "strings"

// PageSize is the number of products revealed per load step.
const PageSize = 6

// AllCategories is the wildcard category that disables category filtering.
const AllCategories = "all"

// SortKey selects the ordering of the derived collection.
type SortKey string

// Supported sort keys. The zero value keeps the upstream order.
const (
	SortNone       SortKey = ""
	SortPriceLow   SortKey = "price-low"
	SortPriceHigh  SortKey = "price-high"
	SortRatingHigh SortKey = "rating-high"
)

// SortOption is a sort key paired with its display label.
type SortOption struct {
	Key   SortKey
	Label string
}

// SortOptions lists the selectable orderings in display order.
var SortOptions = []SortOption{
	{Key: SortNone, Label: "Sort By"},
	{Key: SortPriceLow, Label: "Price: Low → High"},
	{Key: SortPriceHigh, Label: "Price: High → Low"},
	{Key: SortRatingHigh, Label: "Rating: High → Low"},
}

// ParseSortKey maps a wire value to a SortKey. Unknown values map to
// SortNone.
func ParseSortKey(s string) SortKey {
	switch k := SortKey(strings.TrimSpace(s)); k {
	case SortPriceLow, SortPriceHigh, SortRatingHigh:
		return k
	default:
		return SortNone
	}
}

// Query holds the user-controlled parameters of the catalog view.
type Query struct {
	Search   string
	Category string
	Sort     SortKey
}

// DefaultQuery returns the query a freshly mounted catalog starts with.
func DefaultQuery() Query {
	return Query{Category: AllCategories}
}

// Normalize fills in defaults: an empty category means AllCategories.
func (q Query) Normalize() Query {
	if q.Category == "" {
		q.Category = AllCategories
	}
	q.Sort = ParseSortKey(string(q.Sort))
	return q
}
