package orm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/l2cache/internal/mapping"
	"github.com/charlesng35/l2cache/internal/secondlevel"
	apperrors "github.com/charlesng35/l2cache/pkg/errors"
)

type joinSpec struct {
	path  string
	alias string
}

// Query selects entities of one class. Conditions and orderings reference fields as alias.field.
// Results are cached only when SetCacheable(true) is requested.
type Query struct {
	em         *EntityManager
	class      string
	alias      string
	joins      []joinSpec
	conditions []string
	params     []any
	orderBy    []string
	first      int
	max        int
	cacheable  bool
	region     string
}

// CreateQuery starts a query selecting class under alias.
func (em *EntityManager) CreateQuery(class, alias string) *Query {
	return &Query{em: em, class: class, alias: alias}
}

// Join fetch-joins the to-one association path ("alias.field") under alias.
func (q *Query) Join(path, alias string) *Query {
	q.joins = append(q.joins, joinSpec{path: path, alias: alias})
	return q
}

// Where adds a condition. Multiple conditions are combined with AND.
func (q *Query) Where(condition string, params ...any) *Query {
	q.conditions = append(q.conditions, condition)
	q.params = append(q.params, params...)
	return q
}

// OrderBy appends an ordering expression such as "i.id DESC".
func (q *Query) OrderBy(expr string) *Query {
	q.orderBy = append(q.orderBy, expr)
	return q
}

// SetFirstResult sets the offset of the result window.
func (q *Query) SetFirstResult(first int) *Query {
	q.first = first
	return q
}

// SetMaxResults limits the result window. Zero means unlimited.
func (q *Query) SetMaxResults(max int) *Query {
	q.max = max
	return q
}

// SetCacheable opts the query into the query result cache.
func (q *Query) SetCacheable(cacheable bool) *Query {
	q.cacheable = cacheable
	return q
}

// SetCacheRegion stores the result in region instead of the default query region.
func (q *Query) SetCacheRegion(region string) *Query {
	q.region = region
	return q
}

// Signature renders the query in a canonical form with every alias normalized.
func (q *Query) Signature() string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s %s", q.alias, q.class, q.alias)
	aliases := []string{q.alias}
	for _, join := range q.joins {
		fmt.Fprintf(&b, " JOIN %s %s", join.path, join.alias)
		aliases = append(aliases, join.alias)
	}
	if len(q.conditions) > 0 {
		b.WriteString(" WHERE (" + strings.Join(q.conditions, ") AND (") + ")")
	}
	if len(q.orderBy) > 0 {
		b.WriteString(" ORDER BY " + strings.Join(q.orderBy, ", "))
	}
	return secondlevel.NormalizeSignature(b.String(), aliases...)
}

func (q *Query) key() secondlevel.QueryKey {
	return secondlevel.QueryKey{
		Region:      q.region,
		Signature:   q.Signature(),
		Params:      q.params,
		FirstResult: q.first,
		MaxResults:  q.max,
	}
}

func (q *Query) selection() (*selection, error) {
	if strings.TrimSpace(q.alias) == "" {
		return nil, apperrors.NewBadRequest("query alias is required")
	}
	sel := newSelection(q.em.registry)
	if _, err := sel.add(q.alias, q.class, nil); err != nil {
		return nil, err
	}
	for _, join := range q.joins {
		if _, err := sel.joinToOne(join.path, join.alias); err != nil {
			return nil, err
		}
	}
	return sel, nil
}

// Result executes the query. A cacheable query is answered from the query result cache while none
// of its regions has been written since the result was stored.
func (q *Query) Result(ctx context.Context) ([]*Entity, error) {
	sel, err := q.selection()
	if err != nil {
		return nil, err
	}

	useCache := false
	if q.cacheable {
		if useCache, err = q.em.cache.Cacheable(q.class); err != nil {
			return nil, err
		}
	}
	if !useCache {
		return q.execute(ctx, sel, q.em.cache.Now())
	}

	key := q.key()
	hydrated, hit, err := q.em.cache.GetQueryResult(ctx, key)
	if err := q.em.cacheError("get_query_result", err); err != nil {
		return nil, err
	}
	if hit {
		out := make([]*Entity, 0, len(hydrated))
		for _, h := range hydrated {
			e, err := q.em.manage(h.Ref.ID, h.Entry)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	}

	// Read the creation time before executing so a write committed during the statement
	// invalidates the stored result.
	started := q.em.cache.Now()
	entities, err := q.execute(ctx, sel, started)
	if err != nil {
		return nil, err
	}

	classes := make([]string, 0, len(sel.sources))
	for _, src := range sel.sources {
		classes = append(classes, src.class.Name)
	}
	regions, err := q.em.cache.DependentRegions(classes...)
	if err != nil {
		return nil, err
	}
	refs := make([]secondlevel.ResultRef, 0, len(entities))
	for _, e := range entities {
		refs = append(refs, secondlevel.ResultRef{Type: e.Class, ID: e.ID})
	}
	if err := q.em.cacheError("put_query_result", q.em.cache.PutQueryResult(ctx, key, refs, regions, started)); err != nil {
		return nil, err
	}
	q.em.log.Debug("query result cached",
		zap.String("class", q.class),
		zap.Int("rows", len(refs)),
		zap.Strings("regions", regions),
	)
	return entities, nil
}

// execute runs one statement and hydrates every selected and fetch-joined entity. started is the
// logical time read before the statement runs.
func (q *Query) execute(ctx context.Context, sel *selection, started int64) ([]*Entity, error) {
	tx := q.em.db.WithContext(ctx).Table(sel.from).Select(strings.Join(sel.columns, ", "))
	for _, join := range sel.joins {
		tx = tx.Joins(join)
	}
	if len(q.conditions) > 0 {
		where, err := sel.translate("(" + strings.Join(q.conditions, ") AND (") + ")")
		if err != nil {
			return nil, err
		}
		tx = tx.Where(where, q.params...)
	}
	if len(q.orderBy) > 0 {
		order, err := sel.translate(strings.Join(q.orderBy, ", "))
		if err != nil {
			return nil, err
		}
		tx = tx.Order(order)
	} else {
		tx = tx.Order(sel.sources[0].base + "." + mapping.IdentifierColumn)
	}
	if q.first > 0 {
		tx = tx.Offset(q.first)
	}
	if q.max > 0 {
		tx = tx.Limit(q.max)
	}

	var rows []map[string]any
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}

	var out []*Entity
	seen := map[string]bool{}
	for _, row := range rows {
		for i, src := range sel.sources {
			id, entry, ok, err := src.hydrate(q.em.registry, row)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if err := q.em.cacheEntity(ctx, id, entry, started); err != nil {
				return nil, err
			}
			e, err := q.em.manage(id, entry)
			if err != nil {
				return nil, err
			}
			if i == 0 && !seen[id] {
				seen[id] = true
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// Collection returns the members of the ToMany association field of owner. Cached membership is
// resolved member by member through the entity cache; a miss, or a cached member that no longer
// exists, costs one membership query.
func (em *EntityManager) Collection(ctx context.Context, owner *Entity, field string) ([]*Entity, error) {
	if owner == nil || owner.ID == "" {
		return nil, apperrors.ErrInvalidIdentity.WithMessagef("collection owner identity is required")
	}
	assoc, err := em.registry.Association(owner.Class, field)
	if err != nil {
		return nil, err
	}
	if assoc.Kind != mapping.ToMany {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("%s.%s is not a collection", owner.Class, field))
	}

	if assoc.Cacheable {
		members, ok, err := em.cache.ResolveCollection(ctx, owner.Class, field, owner.ID)
		if err := em.cacheError("resolve_collection", err); err != nil {
			return nil, err
		}
		if ok {
			resolved, complete, err := em.collectionMembers(ctx, assoc.Target, members)
			if err != nil {
				return nil, err
			}
			if complete {
				return resolved, nil
			}
			// A member is gone from the database; the cached membership is a miss and is rebuilt.
			if err := em.cacheError("evict_collection",
				em.cache.EvictCollection(ctx, owner.Class, field, owner.ID)); err != nil {
				return nil, err
			}
		}
	}

	members, err := em.CreateQuery(assoc.Target, "m").
		Where("m."+assoc.MappedBy+" = ?", owner.ID).
		Result(ctx)
	if err != nil {
		return nil, err
	}
	if assoc.Cacheable {
		ids := make([]string, 0, len(members))
		for _, member := range members {
			ids = append(ids, member.ID)
		}
		if err := em.cacheError("collection_initialized",
			em.cache.OnCollectionInitialized(ctx, owner.Class, field, owner.ID, ids)); err != nil {
			return nil, err
		}
	}
	return members, nil
}

func (em *EntityManager) collectionMembers(ctx context.Context, target string, members []secondlevel.MemberLookup) ([]*Entity, bool, error) {
	out := make([]*Entity, 0, len(members))
	for _, member := range members {
		if entry, ok := member.Lookup.Entry(); ok {
			e, err := em.manage(member.ID, entry)
			if err != nil {
				return nil, false, err
			}
			out = append(out, e)
			continue
		}
		e, err := em.Find(ctx, target, member.ID)
		if err != nil {
			if apperrors.FromError(err).Code == apperrors.ErrNotFound.Code {
				em.log.Debug("cached collection member no longer exists", zap.String("class", target), zap.String("id", member.ID))
				return nil, false, nil
			}
			return nil, false, err
		}
		out = append(out, e)
	}
	return out, true, nil
}
