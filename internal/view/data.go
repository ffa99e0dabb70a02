package view

import (
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/product"
)

// DefaultHeadline is the hero banner text.
const DefaultHeadline = "SHOP the BEST."

// PageData is the view model of the whole storefront page.
type PageData struct {
	Title   string
	Hero    HeroData
	Catalog CatalogData
}

// HeroData is the view model of the static header banner.
type HeroData struct {
	ImageURL string
	Headline string
}

// CatalogData is the view model of the catalog unit and its fragments.
type CatalogData struct {
	// BasePath is the fragment root of the session, e.g. /catalog/<id>.
	BasePath    string
	Search      string
	Categories  []Option
	SortOptions []Option
	Cards       []Card
	Loading     bool
	End         bool
	// Gen and Revealed identify the grid the sentinel asks more for.
	Gen      uint64
	Revealed int
	// Retry makes the sentinel poll instead of waiting to be revealed.
	Retry     bool
	Skeletons []struct{}
}

// Option is one entry of a select element.
type Option struct {
	Value    string
	Label    string
	Selected bool
}

// Card is one product tile of the grid.
type Card struct {
	ID     string
	Title  string
	Image  string
	Price  string
	Rating string
}

// NewCatalogData builds the catalog view model from a session snapshot.
// Cards holds the whole visible slice.
func NewCatalogData(basePath string, snap catalog.Snapshot) CatalogData {
	cats := make([]Option, len(snap.Categories))
	for i, c := range snap.Categories {
		cats[i] = Option{
			Value:    c,
			Label:    catalog.CategoryLabel(c),
			Selected: c == snap.Query.Category,
		}
	}
	sorts := make([]Option, len(catalog.SortOptions))
	for i, o := range catalog.SortOptions {
		sorts[i] = Option{
			Value:    string(o.Key),
			Label:    o.Label,
			Selected: o.Key == snap.Query.Sort,
		}
	}
	return CatalogData{
		BasePath:    basePath,
		Search:      snap.Query.Search,
		Categories:  cats,
		SortOptions: sorts,
		Cards:       NewCards(snap.Visible),
		Loading:     snap.Loading(),
		End:         snap.EndOfResults(),
		Gen:         snap.Gen,
		Revealed:    len(snap.Visible),
		Skeletons:   make([]struct{}, catalog.PageSize),
	}
}

// NewCards converts products to grid tiles.
func NewCards(products []product.Product) []Card {
	cards := make([]Card, len(products))
	for i, p := range products {
		cards[i] = Card{
			ID:     p.ID,
			Title:  p.Title,
			Image:  p.Image,
			Price:  FormatPrice(p),
			Rating: FormatRating(p),
		}
	}
	return cards
}

// FormatPrice renders the price as shown on a card, "N/A" when missing.
func FormatPrice(p product.Product) string {
	if !p.Price.Valid {
		return "N/A"
	}
	return "$" + p.Price.Decimal.String()
}

// FormatRating renders the rating rate, "N/A" when missing.
func FormatRating(p product.Product) string {
	if p.Rating == nil {
		return "N/A"
	}
	return p.Rating.Rate.String()
}
