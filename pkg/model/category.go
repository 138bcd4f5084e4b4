package model

// Category classifies a pin's subject matter. The set is closed: preference
// weights, the category selector, and the content generator all operate over
// this enumeration.
type Category string

const (
	CategoryGeneral      Category = "General"
	CategoryFood         Category = "Food"
	CategoryHistory      Category = "History"
	CategoryNature       Category = "Nature"
	CategoryCulture      Category = "Culture"
	CategoryArchitecture Category = "Architecture"
)

// Categories lists every recognized category in fixed enumeration order.
// The order is load-bearing: the weighted draw subtracts weights in this
// order, so changing it changes which category a given random value maps to.
var Categories = []Category{
	CategoryGeneral,
	CategoryFood,
	CategoryHistory,
	CategoryNature,
	CategoryCulture,
	CategoryArchitecture,
}

// FallbackCategory is used when a weighted draw exhausts all weights
// without selecting (floating-point rounding) or a category string is
// unrecognized.
const FallbackCategory = CategoryGeneral

// IsValidCategory reports whether s names a recognized category.
func IsValidCategory(s string) bool {
	for _, c := range Categories {
		if string(c) == s {
			return true
		}
	}
	return false
}

// DefaultWeights returns the uniform starting distribution for a device with
// no favorites. The last category absorbs the rounding remainder so the
// weights sum to 1.
func DefaultWeights() map[Category]float64 {
	return map[Category]float64{
		CategoryGeneral:      0.167,
		CategoryFood:         0.167,
		CategoryHistory:      0.167,
		CategoryNature:       0.167,
		CategoryCulture:      0.167,
		CategoryArchitecture: 0.165,
	}
}
