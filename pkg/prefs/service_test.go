package prefs

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shaandjain/local-audio-pins/pkg/model"
)

type fakePrefStore struct {
	profiles map[string]*model.PreferenceProfile
	saves    int
}

func newFakePrefStore() *fakePrefStore {
	return &fakePrefStore{profiles: make(map[string]*model.PreferenceProfile)}
}

func (f *fakePrefStore) GetPreferences(ctx context.Context, deviceID string) (*model.PreferenceProfile, error) {
	return f.profiles[deviceID], nil
}

func (f *fakePrefStore) SavePreferences(ctx context.Context, profile *model.PreferenceProfile) error {
	f.profiles[profile.DeviceID] = profile
	f.saves++
	return nil
}

type fakePinResolver struct {
	pins map[string]*model.Pin
}

func (f *fakePinResolver) GetPinsBatch(ctx context.Context, ids []string) (map[string]*model.Pin, error) {
	out := make(map[string]*model.Pin)
	for _, id := range ids {
		if pin, ok := f.pins[id]; ok {
			out[id] = pin
		}
	}
	return out, nil
}

func newTestService(pins map[string]*model.Pin) (*Service, *fakePrefStore) {
	ps := newFakePrefStore()
	return NewService(ps, &fakePinResolver{pins: pins}), ps
}

func TestGetOrCreate(t *testing.T) {
	svc, ps := newTestService(nil)
	ctx := context.Background()

	profile, err := svc.GetOrCreate(ctx, "device-1")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "device-1", profile.DeviceID)
	assert.Empty(t, profile.FavoritePinIDs)
	assert.Equal(t, model.DefaultWeights(), profile.CategoryWeights)
	assert.Equal(t, 1, ps.saves)

	// Second call returns the stored profile without another save.
	again, err := svc.GetOrCreate(ctx, "device-1")
	require.NoError(t, err)
	assert.Equal(t, profile.CreatedAt, again.CreatedAt)
	assert.Equal(t, 1, ps.saves)
}

func TestAddFavorite_RecalculatesWeights(t *testing.T) {
	pins := map[string]*model.Pin{
		"pin-food-1": {ID: "pin-food-1", Category: model.CategoryFood},
		"pin-food-2": {ID: "pin-food-2", Category: model.CategoryFood},
		"pin-hist-1": {ID: "pin-hist-1", Category: model.CategoryHistory},
	}
	svc, _ := newTestService(pins)
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx, "device-1")
	require.NoError(t, err)

	profile, err := svc.AddFavorite(ctx, "device-1", "pin-food-1")
	require.NoError(t, err)
	_, err = svc.AddFavorite(ctx, "device-1", "pin-food-2")
	require.NoError(t, err)
	profile, err = svc.AddFavorite(ctx, "device-1", "pin-hist-1")
	require.NoError(t, err)

	assert.Len(t, profile.FavoritePinIDs, 3)

	// 3 resolvable favorites, smoothing 0.5 over 6 categories:
	// Food = (2+0.5)/(3+3) and History = (1+0.5)/(3+3).
	assert.InDelta(t, 2.5/6.0, profile.CategoryWeights[model.CategoryFood], 1e-9)
	assert.InDelta(t, 1.5/6.0, profile.CategoryWeights[model.CategoryHistory], 1e-9)
	assert.InDelta(t, 0.5/6.0, profile.CategoryWeights[model.CategoryNature], 1e-9)

	// Weights sum to 1 and every category stays above zero.
	sum := 0.0
	for _, c := range model.Categories {
		w := profile.CategoryWeights[c]
		assert.Greater(t, w, 0.0)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	// Favoriting is idempotent.
	profile, err = svc.AddFavorite(ctx, "device-1", "pin-food-1")
	require.NoError(t, err)
	assert.Len(t, profile.FavoritePinIDs, 3)
}

func TestAddFavorite_NoProfile(t *testing.T) {
	svc, _ := newTestService(nil)

	_, err := svc.AddFavorite(context.Background(), "unknown", "pin-1")
	assert.ErrorIs(t, err, ErrNoProfile)
}

func TestRemoveFavorite(t *testing.T) {
	pins := map[string]*model.Pin{
		"pin-1": {ID: "pin-1", Category: model.CategoryNature},
	}
	svc, _ := newTestService(pins)
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx, "device-1")
	require.NoError(t, err)
	_, err = svc.AddFavorite(ctx, "device-1", "pin-1")
	require.NoError(t, err)

	profile, err := svc.RemoveFavorite(ctx, "device-1", "pin-1")
	require.NoError(t, err)
	assert.Empty(t, profile.FavoritePinIDs)

	// Back to defaults with zero favorites.
	assert.Equal(t, model.DefaultWeights(), profile.CategoryWeights)

	_, err = svc.RemoveFavorite(ctx, "device-1", "pin-1")
	assert.ErrorIs(t, err, ErrNotFavorite)
}

func TestRecalculate_UnresolvableFavoritesSkipped(t *testing.T) {
	pins := map[string]*model.Pin{
		"pin-1": {ID: "pin-1", Category: model.CategoryCulture},
	}
	svc, _ := newTestService(pins)
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx, "device-1")
	require.NoError(t, err)

	_, err = svc.AddFavorite(ctx, "device-1", "pin-1")
	require.NoError(t, err)
	profile, err := svc.AddFavorite(ctx, "device-1", "pin-deleted")
	require.NoError(t, err)

	// Only pin-1 resolves, so Culture = (1+0.5)/(1+3).
	assert.InDelta(t, 1.5/4.0, profile.CategoryWeights[model.CategoryCulture], 1e-9)
}

func TestRecalculate_AllUnresolvableUsesDefaults(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx, "device-1")
	require.NoError(t, err)

	profile, err := svc.AddFavorite(ctx, "device-1", "pin-gone")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultWeights(), profile.CategoryWeights)
}

func TestTopCategories(t *testing.T) {
	profile := &model.PreferenceProfile{
		CategoryWeights: map[model.Category]float64{
			model.CategoryGeneral:      0.1,
			model.CategoryFood:         0.4,
			model.CategoryHistory:      0.2,
			model.CategoryNature:       0.1,
			model.CategoryCulture:      0.1,
			model.CategoryArchitecture: 0.1,
		},
	}

	top := TopCategories(profile, 3)
	require.Len(t, top, 3)
	assert.Equal(t, model.CategoryFood, top[0])
	assert.Equal(t, model.CategoryHistory, top[1])

	// Ties keep canonical order.
	assert.Equal(t, model.CategoryGeneral, top[2])

	// n larger than the category set is clamped.
	all := TopCategories(profile, math.MaxInt32)
	assert.Len(t, all, len(model.Categories))
}
