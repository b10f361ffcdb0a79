package cache

import (
	"context"
	"fmt"
	"sync"
)

// Profile is a quality profile reduced to what scoring needs.
type Profile struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
	// FormatScores maps a custom format id to its score in this profile.
	FormatScores map[int32]int `json:"format_scores"`
}

// ProfileLoader fetches every quality profile of a service.
type ProfileLoader func(ctx context.Context) ([]Profile, error)

// ProfileCache is a read-through cache of quality profiles. It loads all profiles
// on first use and keeps them until Invalidate is called, normally once per export run.
type ProfileCache struct {
	load ProfileLoader

	mu       sync.Mutex
	profiles map[int32]Profile
}

// NewProfileCache creates a profile cache backed by load.
func NewProfileCache(load ProfileLoader) *ProfileCache {
	return &ProfileCache{load: load}
}

// Get returns the profile with the given id. The bool is false when the
// service has no such profile.
func (c *ProfileCache) Get(ctx context.Context, id int32) (Profile, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.profiles == nil {
		profiles, err := c.load(ctx)
		if err != nil {
			return Profile{}, false, fmt.Errorf("failed to load quality profiles: %w", err)
		}
		c.profiles = make(map[int32]Profile, len(profiles))
		for _, p := range profiles {
			c.profiles[p.ID] = p
		}
	}

	p, ok := c.profiles[id]
	return p, ok, nil
}

// Name returns the name of a profile, or "Unknown ID: {id}" if it can't be resolved.
func (c *ProfileCache) Name(ctx context.Context, id int32) string {
	p, ok, err := c.Get(ctx, id)
	if err != nil || !ok || p.Name == "" {
		return fmt.Sprintf("Unknown ID: %d", id)
	}
	return p.Name
}

// Invalidate drops the loaded profiles so the next Get reloads them.
func (c *ProfileCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles = nil
}
