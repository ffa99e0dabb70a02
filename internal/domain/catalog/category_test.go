package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategories(t *testing.T) {
	got := Categories(sampleCatalog())
	assert.Equal(t, []string{"all", "men's clothing", "jewelery", "electronics", "women's clothing"}, got)
}

func TestCategories_Empty(t *testing.T) {
	assert.Equal(t, []string{"all"}, Categories(nil))
}

func TestCategoryLabel(t *testing.T) {
	for in, want := range map[string]string{
		"all":              "All",
		"men's clothing":   "Men's clothing",
		"electronics":      "Electronics",
		"Already":          "Already",
		"élégance":         "Élégance",
		"":                 "",
		"women's clothing": "Women's clothing",
	} {
		assert.Equal(t, want, CategoryLabel(in), "label for %q", in)
	}
}
