package secondlevel

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/l2cache/internal/cache"
	"github.com/charlesng35/l2cache/internal/mapping"
	"github.com/charlesng35/l2cache/internal/monitoring"
	apperrors "github.com/charlesng35/l2cache/pkg/errors"
	"github.com/charlesng35/l2cache/pkg/logger"
	"github.com/charlesng35/l2cache/pkg/validator"
)

// Options configures a Cache.
type Options struct {
	Store    cache.Store
	Registry *mapping.Registry
	// Clock defaults to a MonotonicClock.
	Clock     Clock
	Lifetimes Lifetimes
	// QueryRegion is used for queries that do not name a region. Defaults to DefaultQueryRegion.
	QueryRegion string
	// QueryRegions declares further query regions up front so callers can check a name with
	// HasQueryRegion before using it.
	QueryRegions []string
	Logger       *zap.Logger
}

// Cache is the second-level cache: the public read API plus the unit-of-work hooks.
type Cache struct {
	registry    *mapping.Registry
	clock       Clock
	log         *zap.Logger
	queryRegion string

	entities    *EntityCache
	collections *CollectionCache
	queries     *QueryCache
	timestamps  *TimestampRegion

	queryRegions sync.Map // string -> struct{}

	// populate orders loaded puts against write hooks: a hook holds it exclusively from its
	// snapshot put through its touch.
	populate sync.RWMutex
}

// New wires the entity, collection and query caches and the timestamp region over one store.
func New(opts Options) (*Cache, error) {
	if opts.Store == nil {
		return nil, errors.New("secondlevel: store is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("secondlevel: registry is required")
	}
	if opts.Clock == nil {
		opts.Clock = NewMonotonicClock()
	}
	if opts.Logger == nil {
		opts.Logger = logger.WithModule("secondlevel")
	}
	if opts.QueryRegion == "" {
		opts.QueryRegion = DefaultQueryRegion
	}
	for _, region := range append([]string{opts.QueryRegion}, opts.QueryRegions...) {
		if err := checkQueryRegion(region); err != nil {
			return nil, err
		}
	}

	access := &storeAccess{store: opts.Store, log: opts.Logger, lifetimes: opts.Lifetimes}
	entities := &EntityCache{registry: opts.Registry, access: access}
	timestamps := newTimestampRegion(access, opts.Logger)

	c := &Cache{
		registry:    opts.Registry,
		clock:       opts.Clock,
		log:         opts.Logger,
		queryRegion: opts.QueryRegion,
		entities:    entities,
		collections: &CollectionCache{registry: opts.Registry, access: access},
		queries:     &QueryCache{access: access, entities: entities, timestamps: timestamps},
		timestamps:  timestamps,
	}
	c.queryRegions.Store(opts.QueryRegion, struct{}{})
	for _, region := range opts.QueryRegions {
		c.queryRegions.Store(region, struct{}{})
	}
	for _, region := range c.Regions() {
		monitoring.RecordRegion(string(region.Kind), region.Name)
	}
	return c, nil
}

// Registry returns the mapping metadata the cache resolves regions from.
func (c *Cache) Registry() *mapping.Registry { return c.registry }

// Timestamps exposes the timestamp region.
func (c *Cache) Timestamps() *TimestampRegion { return c.timestamps }

// Now returns the next logical time. Query collaborators must read it before executing a query
// whose result they intend to cache.
func (c *Cache) Now() int64 { return c.clock.Now() }

// EntityRegion resolves the entity region of class.
func (c *Cache) EntityRegion(class string) (string, error) {
	return c.registry.RegionFor(class)
}

// CollectionRegion resolves the collection region of ownerClass.field.
func (c *Cache) CollectionRegion(ownerClass, field string) (string, error) {
	return c.registry.CollectionRegion(ownerClass, field)
}

// Cacheable reports whether class belongs to a cacheable hierarchy.
func (c *Cache) Cacheable(class string) (bool, error) {
	cls, err := c.registry.Class(class)
	if err != nil {
		return false, err
	}
	return cls.Cacheable, nil
}

// ContainsEntity reports whether class#id is cached.
func (c *Cache) ContainsEntity(ctx context.Context, class, id string) (bool, error) {
	return c.entities.Contains(ctx, class, id)
}

// FindEntity is the identity lookup. Only a Complete lookup exposes an entry.
func (c *Cache) FindEntity(ctx context.Context, class, id string) (Lookup, error) {
	return c.entities.Get(ctx, class, id)
}

// PutEntity stores a snapshot loaded by the data-access collaborator.
func (c *Cache) PutEntity(ctx context.Context, class, id string, entry EntityEntry) error {
	return c.entities.Put(ctx, class, id, entry)
}

// PutLoadedEntity stores a snapshot read from the database by a load that started at loadedAt,
// which must have been read from Now before the rows were read. The put is skipped when the
// entity region was invalidated at or after loadedAt, since the rows may predate that write.
func (c *Cache) PutLoadedEntity(ctx context.Context, class, id string, entry EntityEntry, loadedAt int64) (bool, error) {
	cls, err := c.registry.Class(class)
	if err != nil {
		return false, err
	}
	if !cls.Cacheable {
		return false, nil
	}

	c.populate.RLock()
	defer c.populate.RUnlock()
	if !c.timestamps.Fresh(ctx, []string{cls.Region}, loadedAt) {
		c.log.Debug("stale load not cached",
			zap.String("class", class),
			zap.String("id", id),
			zap.String("region", cls.Region),
			zap.Int64("loaded_at", loadedAt),
		)
		return false, nil
	}
	if err := c.entities.Put(ctx, class, id, entry); err != nil {
		return false, err
	}
	return true, nil
}

// EvictEntity removes class#id.
func (c *Cache) EvictEntity(ctx context.Context, class, id string) error {
	return c.entities.Evict(ctx, class, id)
}

// EvictEntityRegion removes every entry of class's hierarchy.
func (c *Cache) EvictEntityRegion(ctx context.Context, class string) error {
	return c.entities.EvictRegion(ctx, class)
}

// EvictEntityRegions clears every entity region.
func (c *Cache) EvictEntityRegions(ctx context.Context) error {
	var errs error
	for _, region := range c.registry.EntityRegions() {
		errs = multierr.Append(errs, c.entities.evictRegionNamed(ctx, region))
	}
	return errs
}

// ContainsCollection reports whether ownerClass#ownerID.field is cached.
func (c *Cache) ContainsCollection(ctx context.Context, ownerClass, field, ownerID string) (bool, error) {
	return c.collections.Contains(ctx, ownerClass, field, ownerID)
}

// EvictCollection removes ownerClass#ownerID.field.
func (c *Cache) EvictCollection(ctx context.Context, ownerClass, field, ownerID string) error {
	return c.collections.Evict(ctx, ownerClass, field, ownerID)
}

// EvictCollectionRegion removes every cached ownerClass.field membership.
func (c *Cache) EvictCollectionRegion(ctx context.Context, ownerClass, field string) error {
	return c.collections.EvictRegion(ctx, ownerClass, field)
}

// EvictCollectionRegions clears every collection region.
func (c *Cache) EvictCollectionRegions(ctx context.Context) error {
	var errs error
	for _, region := range c.registry.CollectionRegions() {
		errs = multierr.Append(errs, c.collections.evictRegionNamed(ctx, region))
	}
	return errs
}

// MemberLookup is one member of a cached collection resolved through the entity cache.
type MemberLookup struct {
	ID     string
	Lookup Lookup
}

// ResolveCollection returns the cached members of ownerClass#ownerID.field, each resolved through
// the entity cache. Members that are not Complete must be loaded by the caller.
func (c *Cache) ResolveCollection(ctx context.Context, ownerClass, field, ownerID string) ([]MemberLookup, bool, error) {
	members, ok, err := c.collections.Get(ctx, ownerClass, field, ownerID)
	if err != nil || !ok {
		return nil, false, err
	}
	assoc, err := c.registry.Association(ownerClass, field)
	if err != nil {
		return nil, false, err
	}

	out := make([]MemberLookup, 0, len(members))
	for _, id := range members {
		lookup, err := c.entities.Get(ctx, assoc.Target, id)
		if err != nil {
			return nil, false, err
		}
		out = append(out, MemberLookup{ID: id, Lookup: lookup})
	}
	return out, true, nil
}

// checkRegionName rejects names that could collide with another region's key prefix.
func checkRegionName(region string) error {
	if err := validator.ValidateVar("region", region, "required,identifier"); err != nil {
		return apperrors.ErrInvalidMetadata.WithMessagef("invalid query region %q", region).WithInternal(err)
	}
	return nil
}

func checkQueryRegion(region string) error {
	if err := checkRegionName(region); err != nil {
		return err
	}
	if region == TimestampRegionName {
		return apperrors.ErrInvalidMetadata.WithMessagef("query region cannot be %s", TimestampRegionName)
	}
	return nil
}

func (c *Cache) queryKey(key QueryKey) (QueryKey, error) {
	if key.Region == "" {
		key.Region = c.queryRegion
	}
	if _, known := c.queryRegions.Load(key.Region); known {
		return key, nil
	}
	if err := checkQueryRegion(key.Region); err != nil {
		return key, err
	}
	if _, known := c.queryRegions.LoadOrStore(key.Region, struct{}{}); !known {
		monitoring.RecordRegion(string(KindQuery), key.Region)
	}
	return key, nil
}

// HasQueryRegion reports whether region is the default query region, was declared in Options or
// has been used by a query.
func (c *Cache) HasQueryRegion(region string) bool {
	_, known := c.queryRegions.Load(region)
	return known
}

// ContainsQuery reports whether a result is stored for key, valid or not.
func (c *Cache) ContainsQuery(ctx context.Context, key QueryKey) (bool, error) {
	key, err := c.queryKey(key)
	if err != nil {
		return false, err
	}
	return c.queries.Contains(ctx, key)
}

// GetQueryResult returns the hydrated result for key, or false when it is absent, stale or only
// partially resolvable.
func (c *Cache) GetQueryResult(ctx context.Context, key QueryKey) ([]Hydrated, bool, error) {
	key, err := c.queryKey(key)
	if err != nil {
		return nil, false, err
	}
	return c.queries.Get(ctx, key)
}

// PutQueryResult stores refs created at createdAt, which must have been read from Now before
// the query executed.
func (c *Cache) PutQueryResult(ctx context.Context, key QueryKey, refs []ResultRef, regions []string, createdAt int64) error {
	key, err := c.queryKey(key)
	if err != nil {
		return err
	}
	return c.queries.Put(ctx, key, refs, regions, createdAt)
}

// EvictQuery removes the result stored for key.
func (c *Cache) EvictQuery(ctx context.Context, key QueryKey) error {
	key, err := c.queryKey(key)
	if err != nil {
		return err
	}
	return c.queries.Evict(ctx, key)
}

// EvictQueryRegion clears a query region; "" means the default query region.
func (c *Cache) EvictQueryRegion(ctx context.Context, region string) error {
	if region == "" {
		region = c.queryRegion
	}
	if err := checkRegionName(region); err != nil {
		return err
	}
	return c.queries.EvictRegion(ctx, region)
}

// EvictQueryRegions clears every query region used so far.
func (c *Cache) EvictQueryRegions(ctx context.Context) error {
	var errs error
	for _, region := range c.knownQueryRegions() {
		errs = multierr.Append(errs, c.queries.EvictRegion(ctx, region))
	}
	return errs
}

func (c *Cache) knownQueryRegions() []string {
	var regions []string
	c.queryRegions.Range(func(key, _ any) bool {
		regions = append(regions, key.(string))
		return true
	})
	sort.Strings(regions)
	return regions
}

// DependentRegions returns the sorted entity regions of classes, used as a query's dependency set.
func (c *Cache) DependentRegions(classes ...string) ([]string, error) {
	seen := map[string]bool{}
	var regions []string
	for _, class := range classes {
		region, err := c.registry.RegionFor(class)
		if err != nil {
			return nil, err
		}
		if !seen[region] {
			seen[region] = true
			regions = append(regions, region)
		}
	}
	sort.Strings(regions)
	return regions, nil
}

// Regions lists every region the cache knows about.
func (c *Cache) Regions() []Region {
	var regions []Region
	for _, name := range c.registry.EntityRegions() {
		regions = append(regions, Region{Name: name, Kind: KindEntity})
	}
	for _, name := range c.registry.CollectionRegions() {
		regions = append(regions, Region{Name: name, Kind: KindCollection})
	}
	for _, name := range c.knownQueryRegions() {
		regions = append(regions, Region{Name: name, Kind: KindQuery})
	}
	regions = append(regions, Region{Name: TimestampRegionName, Kind: KindTimestamp})
	sortRegions(regions)
	return regions
}

// EvictRegion clears a region by name. The timestamp region is rejected.
func (c *Cache) EvictRegion(ctx context.Context, region Region) error {
	switch region.Kind {
	case KindEntity:
		if !contains(c.registry.EntityRegions(), region.Name) {
			return apperrors.ErrRegionNotFound.WithMessagef("entity region %q not found", region.Name)
		}
		return c.entities.evictRegionNamed(ctx, region.Name)
	case KindCollection:
		if !contains(c.registry.CollectionRegions(), region.Name) {
			return apperrors.ErrRegionNotFound.WithMessagef("collection region %q not found", region.Name)
		}
		return c.collections.evictRegionNamed(ctx, region.Name)
	case KindQuery:
		if region.Name == TimestampRegionName {
			return apperrors.ErrBadRequest.WithMessagef("%s cannot be evicted", TimestampRegionName)
		}
		if !c.HasQueryRegion(region.Name) {
			return apperrors.ErrRegionNotFound.WithMessagef("query region %q not found", region.Name)
		}
		return c.EvictQueryRegion(ctx, region.Name)
	case KindTimestamp:
		return apperrors.ErrBadRequest.WithMessagef("%s cannot be evicted", TimestampRegionName)
	default:
		return apperrors.ErrRegionNotFound.WithMessagef("unknown region kind %q", region.Kind)
	}
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
