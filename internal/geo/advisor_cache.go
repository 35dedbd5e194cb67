package geo

import (
	"context"
	"strconv"
	"time"

	"github.com/shivas758/agriguru/internal/cache"
	"github.com/shivas758/agriguru/internal/domain"
)

// CachingAdvisor memoizes advisor answers; geography rarely changes.
type CachingAdvisor struct {
	inner Advisor
	cache cache.Client
	ttl   time.Duration
}

// NewCachingAdvisor wraps inner with a cache.
func NewCachingAdvisor(inner Advisor, c cache.Client, ttl time.Duration) *CachingAdvisor {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachingAdvisor{inner: inner, cache: c, ttl: ttl}
}

// Geocode implements Advisor.
func (a *CachingAdvisor) Geocode(ctx context.Context, place domain.Location) (*domain.Coordinates, error) {
	key := cache.CacheKey("geo", "geocode", place.State, place.District, place.Market)

	var cached domain.Coordinates
	if err := cache.GetJSON(ctx, a.cache, key, &cached); err == nil {
		return &cached, nil
	}

	c, err := a.inner.Geocode(ctx, place)
	if err != nil || c == nil {
		return c, err
	}
	_ = cache.SetJSON(ctx, a.cache, key, c, a.ttl)
	return c, nil
}

// SuggestNearby implements Advisor.
func (a *CachingAdvisor) SuggestNearby(ctx context.Context, origin domain.Location, max int) ([]domain.Location, error) {
	key := cache.CacheKey("geo", "nearby", origin.State, origin.District, origin.Market, strconv.Itoa(max))

	var cached []domain.Location
	if err := cache.GetJSON(ctx, a.cache, key, &cached); err == nil {
		return cached, nil
	}

	out, err := a.inner.SuggestNearby(ctx, origin, max)
	if err != nil {
		return nil, err
	}
	if len(out) > 0 {
		_ = cache.SetJSON(ctx, a.cache, key, out, a.ttl)
	}
	return out, nil
}
