// Package orm is a small gorm-backed entity manager for joined-table hierarchies. It loads entities
// on second-level cache misses, tracks changes in a unit of work and notifies the cache after every
// successful flush.
package orm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/charlesng35/l2cache/internal/mapping"
	"github.com/charlesng35/l2cache/internal/secondlevel"
	apperrors "github.com/charlesng35/l2cache/pkg/errors"
	"github.com/charlesng35/l2cache/pkg/logger"
)

// Options configures an EntityManager.
type Options struct {
	DB     *gorm.DB
	Cache  *secondlevel.Cache
	Logger *zap.Logger
	// Counter is registered on DB when nil.
	Counter *QueryCounter
}

// EntityManager owns an identity map and a unit of work. It is safe for concurrent use, although
// callers normally create one session per request with Session.
type EntityManager struct {
	db        *gorm.DB
	registry  *mapping.Registry
	cache     *secondlevel.Cache
	persister *persister
	counter   *QueryCounter
	loads     *singleflight.Group
	log       *zap.Logger

	mu        sync.Mutex
	identity  map[string]*Entity
	originals map[string]secondlevel.EntityEntry
	inserts   []string
	removals  []string
}

// New constructs an EntityManager over db and cache.
func New(opts Options) (*EntityManager, error) {
	if opts.DB == nil {
		return nil, errors.New("orm: db is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("orm: cache is required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.WithModule("orm")
	}
	if opts.Counter == nil {
		counter, err := NewQueryCounter(opts.DB)
		if err != nil {
			return nil, fmt.Errorf("orm: register query counter: %w", err)
		}
		opts.Counter = counter
	}

	registry := opts.Cache.Registry()
	em := &EntityManager{
		db:        opts.DB,
		registry:  registry,
		cache:     opts.Cache,
		persister: &persister{db: opts.DB, registry: registry},
		counter:   opts.Counter,
		loads:     &singleflight.Group{},
		log:       opts.Logger,
	}
	em.reset()
	return em, nil
}

// Session returns a manager sharing the database, cache, counter and load coalescing of em with
// an empty identity map and unit of work.
func (em *EntityManager) Session() *EntityManager {
	session := &EntityManager{
		db:        em.db,
		registry:  em.registry,
		cache:     em.cache,
		persister: em.persister,
		counter:   em.counter,
		loads:     em.loads,
		log:       em.log,
	}
	session.reset()
	return session
}

func (em *EntityManager) reset() {
	em.identity = map[string]*Entity{}
	em.originals = map[string]secondlevel.EntityEntry{}
	em.inserts = nil
	em.removals = nil
}

// Cache returns the second-level cache the manager populates.
func (em *EntityManager) Cache() *secondlevel.Cache { return em.cache }

// Counter returns the statement counter of the underlying database handle.
func (em *EntityManager) Counter() *QueryCounter { return em.counter }

// Clear detaches every managed entity and drops pending changes.
func (em *EntityManager) Clear() {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.reset()
}

func (em *EntityManager) identityKey(class, id string) (string, error) {
	root, err := em.registry.RootOf(class)
	if err != nil {
		return "", err
	}
	return root + "#" + id, nil
}

// Contains reports whether e is managed by em.
func (em *EntityManager) Contains(e *Entity) bool {
	if e == nil {
		return false
	}
	key, err := em.identityKey(e.Class, e.ID)
	if err != nil {
		return false
	}
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.identity[key] == e
}

// manage returns the managed instance for id, creating it from entry when it is not yet in the
// identity map.
func (em *EntityManager) manage(id string, entry secondlevel.EntityEntry) (*Entity, error) {
	key, err := em.identityKey(entry.Type, id)
	if err != nil {
		return nil, err
	}
	em.mu.Lock()
	defer em.mu.Unlock()
	if existing, ok := em.identity[key]; ok {
		return existing, nil
	}
	e := entityFromEntry(id, entry)
	em.identity[key] = e
	em.originals[key] = entry.Clone()
	return e, nil
}

// cacheError returns configuration errors and logs everything else.
func (em *EntityManager) cacheError(op string, err error) error {
	if err == nil {
		return nil
	}
	if apperrors.IsConfiguration(err) {
		return err
	}
	em.log.Warn("second-level cache operation failed", zap.String("operation", op), zap.Error(err))
	return nil
}

// cacheEntity puts entry, read from rows by a load started at loadedAt, into the entity cache.
// Loads that raced a flush of the same region are not cached.
func (em *EntityManager) cacheEntity(ctx context.Context, id string, entry secondlevel.EntityEntry, loadedAt int64) error {
	_, err := em.cache.PutLoadedEntity(ctx, entry.Type, id, entry, loadedAt)
	return em.cacheError("put_entity", err)
}

// Find returns the entity of class with identity id. It consults the identity map, then the
// entity cache, and finally loads the row chain from the database.
func (em *EntityManager) Find(ctx context.Context, class, id string) (*Entity, error) {
	cls, err := em.registry.Class(class)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, apperrors.ErrInvalidIdentity.WithMessagef("%s identity is required", class)
	}

	key := cls.Root + "#" + id
	em.mu.Lock()
	managed, ok := em.identity[key]
	em.mu.Unlock()
	if ok {
		if !em.registry.IsA(managed.Class, class) {
			return nil, notFound(class, id)
		}
		return managed, nil
	}

	if cls.Cacheable {
		lookup, err := em.cache.FindEntity(ctx, class, id)
		if err != nil {
			return nil, err
		}
		if entry, ok := lookup.Entry(); ok {
			return em.manage(id, entry)
		}
	}

	value, err, _ := em.loads.Do(key, func() (any, error) {
		loadedAt := em.cache.Now()
		entry, err := em.persister.load(ctx, cls.Root, id)
		if err != nil {
			return nil, err
		}
		if err := em.cacheEntity(ctx, id, entry, loadedAt); err != nil {
			return nil, err
		}
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	entry := value.(secondlevel.EntityEntry)
	if !em.registry.IsA(entry.Type, class) {
		return nil, notFound(class, id)
	}
	return em.manage(id, entry)
}

// Reference resolves the ToOne association field of e. It returns nil when the reference is null.
func (em *EntityManager) Reference(ctx context.Context, e *Entity, field string) (*Entity, error) {
	assoc, err := em.registry.Association(e.Class, field)
	if err != nil {
		return nil, err
	}
	if assoc.Kind != mapping.ToOne {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("%s.%s is not a to-one association", e.Class, field))
	}
	id := e.Ref(field)
	if id == "" {
		return nil, nil
	}
	return em.Find(ctx, assoc.Target, id)
}

func (em *EntityManager) validate(e *Entity) (*mapping.Class, error) {
	if e == nil {
		return nil, apperrors.NewBadRequest("entity is required")
	}
	cls, err := em.registry.Class(e.Class)
	if err != nil {
		return nil, err
	}
	for field := range e.Fields {
		if !cls.HasField(field) {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("field %s.%s is not mapped", e.Class, field))
		}
	}
	for field := range e.Refs {
		if _, ok := cls.ToOne[field]; !ok {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("association %s.%s is not a to-one association", e.Class, field))
		}
	}
	return cls, nil
}

// Persist schedules e for insertion on the next Flush, assigning a UUID when it has no identity.
func (em *EntityManager) Persist(e *Entity) error {
	if _, err := em.validate(e); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	key, err := em.identityKey(e.Class, e.ID)
	if err != nil {
		return err
	}

	em.mu.Lock()
	defer em.mu.Unlock()
	if existing, ok := em.identity[key]; ok {
		if existing == e {
			return nil
		}
		return apperrors.ErrConflict.WithMessagef("%s#%s is already managed", e.Class, e.ID)
	}
	em.identity[key] = e
	em.inserts = append(em.inserts, key)
	return nil
}

// Remove schedules a managed entity for deletion on the next Flush.
func (em *EntityManager) Remove(e *Entity) error {
	if _, err := em.validate(e); err != nil {
		return err
	}
	key, err := em.identityKey(e.Class, e.ID)
	if err != nil {
		return err
	}

	em.mu.Lock()
	defer em.mu.Unlock()
	if em.identity[key] != e {
		return apperrors.NewBadRequest(fmt.Sprintf("%s#%s is not managed", e.Class, e.ID))
	}
	for i, pending := range em.inserts {
		if pending == key {
			em.inserts = append(em.inserts[:i], em.inserts[i+1:]...)
			delete(em.identity, key)
			return nil
		}
	}
	for _, pending := range em.removals {
		if pending == key {
			return nil
		}
	}
	em.removals = append(em.removals, key)
	return nil
}

type writeKind int

const (
	writeInsert writeKind = iota
	writeUpdate
	writeDelete
)

type write struct {
	kind   writeKind
	key    string
	class  *mapping.Class
	entity *Entity
	before secondlevel.EntityEntry
	after  secondlevel.EntityEntry
	dirty  []*mapping.Class
}

// Flush writes pending inserts, changes of managed entities and removals in one transaction. The
// second-level cache is notified only after the transaction commits.
func (em *EntityManager) Flush(ctx context.Context) error {
	em.mu.Lock()
	defer em.mu.Unlock()

	writes, err := em.collectWrites()
	if err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}

	err = em.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, w := range writes {
			var err error
			switch w.kind {
			case writeInsert:
				err = em.persister.insert(tx, w.class, w.entity.ID, w.after)
			case writeUpdate:
				err = em.persister.update(tx, w.dirty, w.entity.ID, w.after)
			case writeDelete:
				err = em.persister.delete(tx, w.class, w.entity.ID)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	var errs error
	for _, w := range writes {
		errs = multierr.Append(errs, em.notify(ctx, w))
		switch w.kind {
		case writeDelete:
			delete(em.identity, w.key)
			delete(em.originals, w.key)
		default:
			em.originals[w.key] = w.after.Clone()
		}
	}
	em.inserts = nil
	em.removals = nil

	em.log.Debug("unit of work flushed", zap.Int("writes", len(writes)), zap.Error(errs))
	return errs
}

func (em *EntityManager) collectWrites() ([]write, error) {
	var writes []write
	scheduled := map[string]bool{}

	for _, key := range em.inserts {
		e := em.identity[key]
		cls, err := em.validate(e)
		if err != nil {
			return nil, err
		}
		writes = append(writes, write{kind: writeInsert, key: key, class: cls, entity: e, after: e.snapshot(cls)})
		scheduled[key] = true
	}
	for _, key := range em.removals {
		scheduled[key] = true
	}

	keys := make([]string, 0, len(em.identity))
	for key := range em.identity {
		if !scheduled[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		e := em.identity[key]
		cls, err := em.validate(e)
		if err != nil {
			return nil, err
		}
		before := em.originals[key]
		after := e.snapshot(cls)
		dirty := changedTables(em.registry, cls, before, after)
		if len(dirty) == 0 {
			continue
		}
		writes = append(writes, write{kind: writeUpdate, key: key, class: cls, entity: e, before: before, after: after, dirty: dirty})
	}

	for _, key := range em.removals {
		e := em.identity[key]
		cls, err := em.registry.Class(e.Class)
		if err != nil {
			return nil, err
		}
		writes = append(writes, write{kind: writeDelete, key: key, class: cls, entity: e, before: em.originals[key]})
	}
	return writes, nil
}

// notify runs the cache hooks of one committed write. Collections the entity left are evicted
// from the flush-time snapshot because the cached copy may have expired.
func (em *EntityManager) notify(ctx context.Context, w write) error {
	var err error
	switch w.kind {
	case writeInsert:
		err = em.cache.OnPersisted(ctx, w.class.Name, w.entity.ID, w.after)
	case writeUpdate:
		err = em.cache.OnUpdated(ctx, w.class.Name, w.entity.ID, w.after)
	case writeDelete:
		err = em.cache.OnDeleted(ctx, w.class.Name, w.entity.ID)
	}
	errs := em.cacheError("write_hook", err)

	if w.kind == writeInsert {
		return errs
	}
	for _, inverse := range em.registry.InverseCollections(w.class.Name) {
		previous := w.before.Associations[inverse.Via]
		if previous == "" {
			continue
		}
		if w.kind == writeUpdate && previous == w.after.Associations[inverse.Via] {
			continue
		}
		errs = multierr.Append(errs, em.cacheError("collection_updated",
			em.cache.OnCollectionUpdated(ctx, inverse.Owner, inverse.Field, previous)))
	}
	return errs
}
