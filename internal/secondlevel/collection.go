package secondlevel

import (
	"context"
	"strings"

	"github.com/charlesng35/l2cache/internal/mapping"
	"github.com/charlesng35/l2cache/internal/monitoring"
	apperrors "github.com/charlesng35/l2cache/pkg/errors"
)

// CollectionEntry lists the member identities of one initialized collection.
type CollectionEntry struct {
	Owner   string   `json:"owner"`
	Members []string `json:"members"`
}

// CollectionCache stores collection membership keyed by owner region, field and owner identity.
type CollectionCache struct {
	registry *mapping.Registry
	access   *storeAccess
}

func (c *CollectionCache) resolve(ownerClass, field, ownerID string) (string, mapping.Association, string, error) {
	region, err := c.registry.CollectionRegion(ownerClass, field)
	if err != nil {
		return "", mapping.Association{}, "", err
	}
	assoc, err := c.registry.Association(ownerClass, field)
	if err != nil {
		return "", mapping.Association{}, "", err
	}
	if strings.TrimSpace(ownerID) == "" {
		return "", mapping.Association{}, "", apperrors.ErrInvalidIdentity.WithMessagef("%s.%s owner identity is required", ownerClass, field)
	}
	return region, assoc, entryKey(KindCollection, region, ownerID), nil
}

// Put stores the member identities of ownerClass#ownerID.field.
func (c *CollectionCache) Put(ctx context.Context, ownerClass, field, ownerID string, members []string) error {
	region, assoc, key, err := c.resolve(ownerClass, field, ownerID)
	if err != nil {
		return err
	}
	if !assoc.Cacheable {
		return apperrors.ErrNotCacheable.WithMessagef("%s.%s is not cacheable", ownerClass, field)
	}

	entry := CollectionEntry{Owner: ownerClass, Members: append([]string{}, members...)}
	if err := c.access.save(ctx, region, key, entry); err != nil {
		return err
	}
	monitoring.RecordCachePut(string(KindCollection), region)
	return nil
}

// Contains reports whether membership is cached for ownerClass#ownerID.field.
func (c *CollectionCache) Contains(ctx context.Context, ownerClass, field, ownerID string) (bool, error) {
	_, assoc, key, err := c.resolve(ownerClass, field, ownerID)
	if err != nil {
		return false, err
	}
	if !assoc.Cacheable {
		return false, nil
	}
	ok, _ := c.access.exists(ctx, key)
	return ok, nil
}

// Get returns the cached member identities. Store failures are misses.
func (c *CollectionCache) Get(ctx context.Context, ownerClass, field, ownerID string) ([]string, bool, error) {
	region, assoc, key, err := c.resolve(ownerClass, field, ownerID)
	if err != nil {
		return nil, false, err
	}
	if !assoc.Cacheable {
		return nil, false, nil
	}

	var entry CollectionEntry
	found, _ := c.access.load(ctx, key, &entry)
	result := monitoring.ResultMiss
	if found {
		result = monitoring.ResultHit
	}
	monitoring.RecordCacheLookup(string(KindCollection), region, result)
	if !found {
		return nil, false, nil
	}
	return entry.Members, true, nil
}

// Evict removes the membership of ownerClass#ownerID.field.
func (c *CollectionCache) Evict(ctx context.Context, ownerClass, field, ownerID string) error {
	region, _, key, err := c.resolve(ownerClass, field, ownerID)
	if err != nil {
		return err
	}
	if err := c.access.remove(ctx, key); err != nil {
		return err
	}
	monitoring.RecordCacheEviction(string(KindCollection), region, "entry")
	return nil
}

// EvictRegion removes every cached membership of ownerClass.field.
func (c *CollectionCache) EvictRegion(ctx context.Context, ownerClass, field string) error {
	region, err := c.registry.CollectionRegion(ownerClass, field)
	if err != nil {
		return err
	}
	return c.evictRegionNamed(ctx, region)
}

func (c *CollectionCache) evictRegionNamed(ctx context.Context, region string) error {
	if err := c.access.removePrefix(ctx, regionPrefix(KindCollection, region)); err != nil {
		return err
	}
	monitoring.RecordCacheEviction(string(KindCollection), region, "region")
	return nil
}
