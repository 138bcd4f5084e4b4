package prefs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Shaandjain/local-audio-pins/pkg/model"
	"github.com/Shaandjain/local-audio-pins/pkg/store"
)

// smoothingFactor keeps every category weight above zero so a device that
// only ever favorites Food pins still occasionally sees other categories.
const smoothingFactor = 0.5

var (
	// ErrNoProfile is returned when an operation requires an existing
	// preference profile for the device.
	ErrNoProfile = errors.New("no preference profile for device")

	// ErrNotFavorite is returned when removing a pin that is not in the
	// device's favorites.
	ErrNotFavorite = errors.New("pin not in favorites")
)

// pinResolver resolves favorite pin IDs to pins for category counting.
type pinResolver interface {
	GetPinsBatch(ctx context.Context, ids []string) (map[string]*model.Pin, error)
}

// Service manages per-device preference profiles and learns category
// weights from favorited pins.
type Service struct {
	prefs store.PreferenceStore
	pins  pinResolver
}

// NewService creates a preference service.
func NewService(prefs store.PreferenceStore, pins pinResolver) *Service {
	return &Service{prefs: prefs, pins: pins}
}

// Get returns the profile for a device, or nil if none exists.
func (s *Service) Get(ctx context.Context, deviceID string) (*model.PreferenceProfile, error) {
	return s.prefs.GetPreferences(ctx, deviceID)
}

// GetOrCreate returns the profile for a device, creating a default one if
// none exists yet.
func (s *Service) GetOrCreate(ctx context.Context, deviceID string) (*model.PreferenceProfile, error) {
	profile, err := s.prefs.GetPreferences(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		return profile, nil
	}

	now := time.Now().UTC()
	profile = &model.PreferenceProfile{
		DeviceID:        deviceID,
		FavoritePinIDs:  []string{},
		CategoryWeights: model.DefaultWeights(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.prefs.SavePreferences(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to save new profile: %w", err)
	}
	return profile, nil
}

// AddFavorite records a favorite pin and recalculates the category weights.
// Adding a pin that is already a favorite is a no-op for the favorites list
// but still recalculates.
func (s *Service) AddFavorite(ctx context.Context, deviceID, pinID string) (*model.PreferenceProfile, error) {
	profile, err := s.prefs.GetPreferences(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrNoProfile
	}

	if !contains(profile.FavoritePinIDs, pinID) {
		profile.FavoritePinIDs = append(profile.FavoritePinIDs, pinID)
	}

	if err := s.Recalculate(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// RemoveFavorite removes a favorite pin and recalculates the category
// weights. Returns ErrNotFavorite if the pin was not favorited.
func (s *Service) RemoveFavorite(ctx context.Context, deviceID, pinID string) (*model.PreferenceProfile, error) {
	profile, err := s.prefs.GetPreferences(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrNoProfile
	}

	idx := -1
	for i, id := range profile.FavoritePinIDs {
		if id == pinID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, ErrNotFavorite
	}
	profile.FavoritePinIDs = append(profile.FavoritePinIDs[:idx], profile.FavoritePinIDs[idx+1:]...)

	if err := s.Recalculate(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// Recalculate rebuilds the category weights from the profile's favorites
// and persists the result. Favorites that no longer resolve to a stored pin
// are skipped; with no resolvable favorites the defaults apply.
func (s *Service) Recalculate(ctx context.Context, profile *model.PreferenceProfile) error {
	if len(profile.FavoritePinIDs) == 0 {
		profile.CategoryWeights = model.DefaultWeights()
		return s.save(ctx, profile)
	}

	resolved, err := s.pins.GetPinsBatch(ctx, profile.FavoritePinIDs)
	if err != nil {
		return fmt.Errorf("failed to resolve favorite pins: %w", err)
	}

	counts := make(map[model.Category]int, len(model.Categories))
	totalResolvable := 0
	for _, pinID := range profile.FavoritePinIDs {
		pin, ok := resolved[pinID]
		if !ok || pin == nil {
			slog.Debug("Skipping unresolvable favorite", "device_id", profile.DeviceID, "pin_id", pinID)
			continue
		}
		category := pin.Category
		if !model.IsValidCategory(string(category)) {
			category = model.FallbackCategory
		}
		counts[category]++
		totalResolvable++
	}

	if totalResolvable == 0 {
		profile.CategoryWeights = model.DefaultWeights()
		return s.save(ctx, profile)
	}

	total := float64(totalResolvable) + smoothingFactor*float64(len(model.Categories))
	weights := make(map[model.Category]float64, len(model.Categories))
	for _, category := range model.Categories {
		weights[category] = (float64(counts[category]) + smoothingFactor) / total
	}
	profile.CategoryWeights = weights

	return s.save(ctx, profile)
}

func (s *Service) save(ctx context.Context, profile *model.PreferenceProfile) error {
	profile.UpdatedAt = time.Now().UTC()
	if err := s.prefs.SavePreferences(ctx, profile); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// TopCategories returns the n highest-weighted categories, best first.
// Ties keep the canonical category order.
func TopCategories(profile *model.PreferenceProfile, n int) []model.Category {
	sorted := make([]model.Category, len(model.Categories))
	copy(sorted, model.Categories)

	sort.SliceStable(sorted, func(i, j int) bool {
		return profile.CategoryWeights[sorted[i]] > profile.CategoryWeights[sorted[j]]
	})

	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
