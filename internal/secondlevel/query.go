package secondlevel

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/charlesng35/l2cache/internal/monitoring"
	apperrors "github.com/charlesng35/l2cache/pkg/errors"
)

// QueryKey identifies a cacheable query execution.
type QueryKey struct {
	// Region defaults to DefaultQueryRegion.
	Region      string
	Signature   string
	Params      []any
	FirstResult int
	MaxResults  int
}

func (k QueryKey) region() string {
	if k.Region == "" {
		return DefaultQueryRegion
	}
	return k.Region
}

// Hash returns the hex sha256 of the key's canonical JSON rendering.
func (k QueryKey) Hash() (string, error) {
	canonical, err := json.Marshal(struct {
		Signature   string `json:"s"`
		Params      []any  `json:"p"`
		FirstResult int    `json:"f"`
		MaxResults  int    `json:"m"`
	}{k.Signature, k.Params, k.FirstResult, k.MaxResults})
	if err != nil {
		return "", apperrors.NewBadRequest(fmt.Sprintf("query parameters are not serialisable: %v", err))
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// ResultRef is one row of a cached query result.
type ResultRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// QueryEntry is the stored form of a cached query result.
type QueryEntry struct {
	Result    []ResultRef `json:"result"`
	CreatedAt int64       `json:"created_at"`
	Regions   []string    `json:"regions"`
}

// Hydrated is a query row resolved through the entity cache.
type Hydrated struct {
	Ref   ResultRef
	Entry EntityEntry
}

var whitespace = regexp.MustCompile(`\s+`)

// NormalizeSignature collapses whitespace and renames the given aliases positionally so that
// statements differing only in alias names share a signature.
func NormalizeSignature(statement string, aliases ...string) string {
	normalized := strings.TrimSpace(whitespace.ReplaceAllString(statement, " "))
	for i, alias := range aliases {
		if alias == "" {
			continue
		}
		pattern := regexp.MustCompile(`\b` + regexp.QuoteMeta(alias) + `\b`)
		normalized = pattern.ReplaceAllLiteralString(normalized, fmt.Sprintf("_%d", i))
	}
	return normalized
}

// QueryCache stores query results as ordered identity lists validated against the timestamp region.
type QueryCache struct {
	access     *storeAccess
	entities   *EntityCache
	timestamps *TimestampRegion
}

func (c *QueryCache) key(key QueryKey) (string, string, error) {
	region := key.region()
	if region == TimestampRegionName {
		return "", "", apperrors.ErrBadRequest.WithMessagef("%s cannot hold query results", TimestampRegionName)
	}
	hash, err := key.Hash()
	if err != nil {
		return "", "", err
	}
	return region, entryKey(KindQuery, region, hash), nil
}

// Put stores refs with creation time createdAt and the entity regions the result depends on.
func (c *QueryCache) Put(ctx context.Context, key QueryKey, refs []ResultRef, regions []string, createdAt int64) error {
	region, storeKey, err := c.key(key)
	if err != nil {
		return err
	}
	entry := QueryEntry{
		Result:    append([]ResultRef{}, refs...),
		CreatedAt: createdAt,
		Regions:   append([]string{}, regions...),
	}
	if err := c.access.save(ctx, region, storeKey, entry); err != nil {
		return err
	}
	monitoring.RecordCachePut(string(KindQuery), region)
	return nil
}

// Get returns the hydrated result for key. The entry is rejected when any dependent region was
// touched at or after its creation, and the whole result misses when any row is not Complete in
// the entity cache.
func (c *QueryCache) Get(ctx context.Context, key QueryKey) ([]Hydrated, bool, error) {
	region, storeKey, err := c.key(key)
	if err != nil {
		return nil, false, err
	}

	var entry QueryEntry
	found, _ := c.access.load(ctx, storeKey, &entry)
	if !found {
		monitoring.RecordCacheLookup(string(KindQuery), region, monitoring.ResultMiss)
		return nil, false, nil
	}

	if !c.timestamps.Fresh(ctx, entry.Regions, entry.CreatedAt) {
		monitoring.RecordCacheLookup(string(KindQuery), region, monitoring.ResultStale)
		_ = c.access.remove(ctx, storeKey)
		return nil, false, nil
	}

	hydrated := make([]Hydrated, 0, len(entry.Result))
	for _, ref := range entry.Result {
		lookup, err := c.entities.Get(ctx, ref.Type, ref.ID)
		if err != nil {
			return nil, false, err
		}
		snapshot, ok := lookup.Entry()
		if !ok {
			monitoring.RecordCacheLookup(string(KindQuery), region, monitoring.ResultIncomplete)
			return nil, false, nil
		}
		hydrated = append(hydrated, Hydrated{Ref: ref, Entry: snapshot})
	}

	monitoring.RecordCacheLookup(string(KindQuery), region, monitoring.ResultHit)
	return hydrated, true, nil
}

// Contains reports whether a result is stored for key, without validating it.
func (c *QueryCache) Contains(ctx context.Context, key QueryKey) (bool, error) {
	_, storeKey, err := c.key(key)
	if err != nil {
		return false, err
	}
	ok, _ := c.access.exists(ctx, storeKey)
	return ok, nil
}

// Evict removes the result stored for key.
func (c *QueryCache) Evict(ctx context.Context, key QueryKey) error {
	region, storeKey, err := c.key(key)
	if err != nil {
		return err
	}
	if err := c.access.remove(ctx, storeKey); err != nil {
		return err
	}
	monitoring.RecordCacheEviction(string(KindQuery), region, "entry")
	return nil
}

// EvictRegion removes every result stored in region.
func (c *QueryCache) EvictRegion(ctx context.Context, region string) error {
	if region == "" {
		region = DefaultQueryRegion
	}
	if region == TimestampRegionName {
		return apperrors.ErrBadRequest.WithMessagef("%s cannot be evicted", TimestampRegionName)
	}
	if err := c.access.removePrefix(ctx, regionPrefix(KindQuery, region)); err != nil {
		return err
	}
	monitoring.RecordCacheEviction(string(KindQuery), region, "region")
	return nil
}
