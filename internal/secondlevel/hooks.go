package secondlevel

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/l2cache/internal/mapping"
)

// The hooks below are the only write-triggering entry points. The unit of work calls them after
// a successful flush; each one finishes by touching the entity region synchronously, so any query
// started after the hook returns observes the new timestamp.
//
// Mapping errors are returned as-is. Store failures are logged, counted and aggregated into the
// returned error; the touch is still attempted.

// OnPersisted caches the snapshot of a newly inserted entity.
func (c *Cache) OnPersisted(ctx context.Context, class, id string, snapshot EntityEntry) error {
	return c.onWrite(ctx, "persisted", class, id, &snapshot)
}

// OnUpdated overwrites the cached snapshot of an updated entity.
func (c *Cache) OnUpdated(ctx context.Context, class, id string, snapshot EntityEntry) error {
	return c.onWrite(ctx, "updated", class, id, &snapshot)
}

// OnDeleted evicts a removed entity and every collection it owns or belongs to.
func (c *Cache) OnDeleted(ctx context.Context, class, id string) error {
	return c.onWrite(ctx, "deleted", class, id, nil)
}

func (c *Cache) onWrite(ctx context.Context, event, class, id string, snapshot *EntityEntry) error {
	cls, err := c.registry.Class(class)
	if err != nil {
		return err
	}

	c.populate.Lock()
	defer c.populate.Unlock()

	var errs error
	if cls.Cacheable {
		previous, hadPrevious := c.entities.peek(ctx, class, id)

		owners := map[mapping.InverseCollection]map[string]bool{}
		addOwners := func(entry EntityEntry) {
			for _, inverse := range c.registry.InverseCollections(class) {
				if owner := entry.Associations[inverse.Via]; owner != "" {
					if owners[inverse] == nil {
						owners[inverse] = map[string]bool{}
					}
					owners[inverse][owner] = true
				}
			}
		}
		if hadPrevious {
			addOwners(previous)
		}

		if snapshot != nil {
			if snapshot.Type == "" {
				snapshot.Type = class
			}
			addOwners(*snapshot)
			errs = multierr.Append(errs, c.entities.Put(ctx, class, id, *snapshot))
		} else {
			errs = multierr.Append(errs, c.entities.Evict(ctx, class, id))
			for field, assoc := range cls.ToMany {
				if assoc.Cacheable {
					errs = multierr.Append(errs, c.collections.Evict(ctx, class, field, id))
				}
			}
		}

		for inverse, ids := range owners {
			for owner := range ids {
				errs = multierr.Append(errs, c.collections.Evict(ctx, inverse.Owner, inverse.Field, owner))
			}
		}
	}

	now := c.clock.Now()
	c.timestamps.Touch(ctx, cls.Region, now)

	c.log.Debug("entity write applied",
		zap.String("event", event),
		zap.String("class", class),
		zap.String("id", id),
		zap.String("region", cls.Region),
		zap.Int64("timestamp", now),
		zap.Error(errs),
	)
	return errs
}

// OnCollectionInitialized caches the membership of a fully loaded collection. Partial or
// filtered loads must not call it.
func (c *Cache) OnCollectionInitialized(ctx context.Context, ownerClass, field, ownerID string, memberIDs []string) error {
	assoc, err := c.registry.Association(ownerClass, field)
	if err != nil {
		return err
	}
	if !assoc.Cacheable {
		return nil
	}
	return c.collections.Put(ctx, ownerClass, field, ownerID, memberIDs)
}

// OnCollectionUpdated evicts a collection whose membership changed.
func (c *Cache) OnCollectionUpdated(ctx context.Context, ownerClass, field, ownerID string) error {
	assoc, err := c.registry.Association(ownerClass, field)
	if err != nil {
		return err
	}
	if !assoc.Cacheable {
		return nil
	}
	return c.collections.Evict(ctx, ownerClass, field, ownerID)
}
