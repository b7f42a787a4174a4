package secondlevel

import (
	"context"
	"strings"

	"github.com/charlesng35/l2cache/internal/mapping"
	"github.com/charlesng35/l2cache/internal/monitoring"
	apperrors "github.com/charlesng35/l2cache/pkg/errors"
)

// EntityEntry is the flattened state of one entity. Associations hold target identities, with ""
// standing for a null reference.
type EntityEntry struct {
	Type         string            `json:"type"`
	Fields       map[string]any    `json:"fields"`
	Associations map[string]string `json:"associations,omitempty"`
}

// Clone returns a deep copy of the entry's maps.
func (e EntityEntry) Clone() EntityEntry {
	out := EntityEntry{Type: e.Type}
	if e.Fields != nil {
		out.Fields = make(map[string]any, len(e.Fields))
		for k, v := range e.Fields {
			out.Fields[k] = v
		}
	}
	if e.Associations != nil {
		out.Associations = make(map[string]string, len(e.Associations))
		for k, v := range e.Associations {
			out.Associations[k] = v
		}
	}
	return out
}

// Status tags the outcome of an entity lookup.
type Status int

const (
	// Miss means nothing usable is cached for the identity.
	Miss Status = iota
	// Incomplete means an entry exists but lacks state required by the requested type.
	Incomplete
	// Complete means the entry carries every field of its concrete type.
	Complete
)

func (s Status) String() string {
	switch s {
	case Complete:
		return "complete"
	case Incomplete:
		return "incomplete"
	default:
		return "miss"
	}
}

// Lookup is the tagged result of an entity read. The entry is only reachable when Complete.
type Lookup struct {
	status Status
	entry  EntityEntry
}

// Status returns the lookup tag.
func (l Lookup) Status() Status { return l.status }

// Entry returns a copy of the cached entry when the lookup is Complete.
func (l Lookup) Entry() (EntityEntry, bool) {
	if l.status != Complete {
		return EntityEntry{}, false
	}
	return l.entry.Clone(), true
}

// EntityCache stores entity snapshots under the region of their hierarchy root.
type EntityCache struct {
	registry *mapping.Registry
	access   *storeAccess
}

func (c *EntityCache) resolve(class, id string) (*mapping.Class, string, error) {
	cls, err := c.registry.Class(class)
	if err != nil {
		return nil, "", err
	}
	if strings.TrimSpace(id) == "" {
		return nil, "", apperrors.ErrInvalidIdentity.WithMessagef("%s identity is required", class)
	}
	return cls, entryKey(KindEntity, cls.Region, id), nil
}

// Put stores or overwrites the snapshot of class#id. An empty entry Type defaults to class.
func (c *EntityCache) Put(ctx context.Context, class, id string, entry EntityEntry) error {
	cls, key, err := c.resolve(class, id)
	if err != nil {
		return err
	}
	if !cls.Cacheable {
		return apperrors.ErrNotCacheable.WithMessagef("%s is not cacheable", class)
	}
	if entry.Type == "" {
		entry.Type = class
	}
	if !c.registry.IsA(entry.Type, cls.Root) {
		return apperrors.ErrUnmappedType.WithMessagef("snapshot type %q is not part of the %s hierarchy", entry.Type, cls.Root)
	}
	if entry.Fields == nil {
		entry.Fields = map[string]any{}
	}

	if err := c.access.save(ctx, cls.Region, key, entry); err != nil {
		return err
	}
	monitoring.RecordCachePut(string(KindEntity), cls.Region)
	return nil
}

// Contains reports whether an entry exists for class#id without decoding it.
func (c *EntityCache) Contains(ctx context.Context, class, id string) (bool, error) {
	cls, key, err := c.resolve(class, id)
	if err != nil {
		return false, err
	}
	if !cls.Cacheable {
		return false, nil
	}
	ok, _ := c.access.exists(ctx, key)
	return ok, nil
}

// Get resolves class#id. A cached subclass snapshot satisfies a superclass request; a cached
// superclass snapshot requested as a subclass is Incomplete, as is any snapshot missing a field or
// to-one association of its concrete type. Store failures are misses; only mapping errors are
// returned.
func (c *EntityCache) Get(ctx context.Context, class, id string) (Lookup, error) {
	cls, key, err := c.resolve(class, id)
	if err != nil {
		return Lookup{}, err
	}
	if !cls.Cacheable {
		return Lookup{status: Miss}, nil
	}

	lookup := c.classify(ctx, class, key)
	monitoring.RecordCacheLookup(string(KindEntity), cls.Region, resultLabel(lookup.status))
	return lookup, nil
}

// peek returns whatever snapshot is stored for class#id regardless of completeness.
func (c *EntityCache) peek(ctx context.Context, class, id string) (EntityEntry, bool) {
	cls, key, err := c.resolve(class, id)
	if err != nil || !cls.Cacheable {
		return EntityEntry{}, false
	}
	var entry EntityEntry
	found, _ := c.access.load(ctx, key, &entry)
	return entry, found
}

func (c *EntityCache) classify(ctx context.Context, class, key string) Lookup {
	var entry EntityEntry
	found, _ := c.access.load(ctx, key, &entry)
	if !found {
		return Lookup{status: Miss}
	}

	switch {
	case c.registry.IsA(entry.Type, class):
		if c.complete(entry) {
			return Lookup{status: Complete, entry: entry}
		}
		return Lookup{status: Incomplete}
	case c.registry.IsA(class, entry.Type):
		return Lookup{status: Incomplete}
	default:
		return Lookup{status: Miss}
	}
}

func (c *EntityCache) complete(entry EntityEntry) bool {
	concrete, err := c.registry.Class(entry.Type)
	if err != nil {
		return false
	}
	for _, field := range concrete.Fields {
		if _, ok := entry.Fields[field]; !ok {
			return false
		}
	}
	for field := range concrete.ToOne {
		if _, ok := entry.Associations[field]; !ok {
			return false
		}
	}
	return true
}

// Evict removes the entry for class#id.
func (c *EntityCache) Evict(ctx context.Context, class, id string) error {
	cls, key, err := c.resolve(class, id)
	if err != nil {
		return err
	}
	if err := c.access.remove(ctx, key); err != nil {
		return err
	}
	monitoring.RecordCacheEviction(string(KindEntity), cls.Region, "entry")
	return nil
}

// EvictRegion removes every entry of class's hierarchy.
func (c *EntityCache) EvictRegion(ctx context.Context, class string) error {
	region, err := c.registry.RegionFor(class)
	if err != nil {
		return err
	}
	return c.evictRegionNamed(ctx, region)
}

func (c *EntityCache) evictRegionNamed(ctx context.Context, region string) error {
	if err := c.access.removePrefix(ctx, regionPrefix(KindEntity, region)); err != nil {
		return err
	}
	monitoring.RecordCacheEviction(string(KindEntity), region, "region")
	return nil
}

func resultLabel(status Status) string {
	switch status {
	case Complete:
		return monitoring.ResultHit
	case Incomplete:
		return monitoring.ResultIncomplete
	default:
		return monitoring.ResultMiss
	}
}
