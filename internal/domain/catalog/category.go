package catalog

import (
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/xenking/storefront/internal/domain/product"
)

// Categories returns AllCategories followed by the unique category labels
// of all, in first-seen order.
func Categories(all []product.Product) []string {
	seen := make(map[string]struct{}, len(all))
	out := []string{AllCategories}
	for _, p := range all {
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	return out
}

// CategoryLabel renders a category for display with its first letter
// upper-cased and the rest left as is: "men's clothing" becomes
// "Men's clothing".
func CategoryLabel(category string) string {
	r, size := utf8.DecodeRuneInString(category)
	if r == utf8.RuneError {
		return category
	}
	// cases.Caser keeps transform state, so it is not shared.
	return cases.Upper(language.Und).String(category[:size]) + category[size:]
}
