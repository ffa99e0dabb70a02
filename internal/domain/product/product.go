package product

import (
	"context"

	"github.com/shopspring/decimal"
)

// Product represents a catalog item as returned by the upstream listing.
// Products are immutable once fetched.
type Product struct {
	ID       string
	Title    string
	Price    decimal.NullDecimal
	Category string
	Image    string
	Rating   *Rating
}

// Rating is the aggregated customer rating of a product.
type Rating struct {
	Rate  decimal.Decimal
	Count int
}

// PriceOrZero returns the product price, treating a missing price as zero.
func (p Product) PriceOrZero() decimal.Decimal {
	if !p.Price.Valid {
		return decimal.Zero
	}
	return p.Price.Decimal
}

// RateOrZero returns the rating rate, treating a missing rating as zero.
func (p Product) RateOrZero() decimal.Decimal {
	if p.Rating == nil {
		return decimal.Zero
	}
	return p.Rating.Rate
}

// Source fetches the full product collection in one read.
type Source interface {
	FetchAll(ctx context.Context) ([]Product, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) ([]Product, error)

// FetchAll calls f(ctx).
func (f SourceFunc) FetchAll(ctx context.Context) ([]Product, error) {
	return f(ctx)
}
