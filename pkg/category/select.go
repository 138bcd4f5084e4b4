// Package category plans the category sequence for a tour: a weighted draw
// over the device's learned preferences, with a variety rule that breaks up
// runs of the same category.
package category

import (
	"math/rand"

	"github.com/Shaandjain/local-audio-pins/pkg/model"
	"github.com/Shaandjain/local-audio-pins/pkg/prefs"
)

// Selector plans per-pin categories. The rand source is injectable so tests
// can drive the draw deterministically.
type Selector struct {
	rng *rand.Rand
}

// NewSelector creates a selector with the given source. A nil source uses
// the shared global generator.
func NewSelector(rng *rand.Rand) *Selector {
	return &Selector{rng: rng}
}

func (s *Selector) random() float64 {
	if s.rng != nil {
		return s.rng.Float64()
	}
	return rand.Float64()
}

// Select returns one category per pin. Explicitly requested categories are
// assigned round-robin; otherwise each slot is a weighted draw from the
// profile, and a category never appears three times in a row.
func (s *Selector) Select(profile *model.PreferenceProfile, requested []model.Category, pinCount int) []model.Category {
	if allowed := filterRecognized(requested); len(allowed) > 0 {
		out := make([]model.Category, pinCount)
		for i := 0; i < pinCount; i++ {
			out[i] = allowed[i%len(allowed)]
		}
		return out
	}

	top := prefs.TopCategories(profile, 4)
	out := make([]model.Category, 0, pinCount)

	for i := 0; i < pinCount; i++ {
		selected := s.draw(profile.CategoryWeights)

		// Don't repeat the same category three times in a row.
		if len(out) >= 2 && out[len(out)-1] == selected && out[len(out)-2] == selected {
			for _, c := range top {
				if c != selected {
					selected = c
					break
				}
			}
		}

		out = append(out, selected)
	}

	return out
}

// draw walks the cumulative distribution in canonical category order.
// Rounding can exhaust the weights without a hit; the fallback covers that.
func (s *Selector) draw(weights map[model.Category]float64) model.Category {
	random := s.random()
	for _, c := range model.Categories {
		random -= weights[c]
		if random <= 0 {
			return c
		}
	}
	return model.FallbackCategory
}

func filterRecognized(requested []model.Category) []model.Category {
	var out []model.Category
	for _, c := range requested {
		if model.IsValidCategory(string(c)) {
			out = append(out, c)
		}
	}
	return out
}
