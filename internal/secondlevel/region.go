// Package secondlevel implements the cross-session cache of entity state, collection membership
// and query results, together with the timestamp region that invalidates cached queries.
//
// Entities and collections are invalidated precisely by identity. Query results are invalidated
// coarsely: every write touches the timestamp of its entity region, and a cached query is only
// served while none of the regions it depends on has been touched since the query was created.
package secondlevel

import (
	"sort"
	"strings"
	"time"
)

// Kind classifies a cache region.
type Kind string

const (
	KindEntity     Kind = "entity"
	KindCollection Kind = "collection"
	KindQuery      Kind = "query"
	KindTimestamp  Kind = "timestamp"
)

// Region is a named partition of the physical store.
type Region struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

const (
	// DefaultQueryRegion holds cacheable query results unless a query names its own region.
	DefaultQueryRegion = "query_cache_region"
	// TimestampRegionName is the region holding last-invalidation times. It is never evicted wholesale.
	TimestampRegionName = "timestamp_cache_region"

	keyNamespace = "l2"
)

func regionPrefix(kind Kind, region string) string {
	return keyNamespace + ":" + string(kind) + ":" + region + ":"
}

func entryKey(kind Kind, region, id string) string {
	return regionPrefix(kind, region) + id
}

func timestampKey(region string) string {
	return keyNamespace + ":" + string(KindTimestamp) + ":" + region
}

// Lifetimes configures how long entries live in the physical store. Zero means no expiry.
type Lifetimes struct {
	Default time.Duration
	Regions map[string]time.Duration
}

// For returns the lifetime of region.
func (l Lifetimes) For(region string) time.Duration {
	if d, ok := l.Regions[region]; ok {
		return d
	}
	return l.Default
}

func sortRegions(regions []Region) {
	order := map[Kind]int{KindEntity: 0, KindCollection: 1, KindQuery: 2, KindTimestamp: 3}
	sort.Slice(regions, func(i, j int) bool {
		if regions[i].Kind != regions[j].Kind {
			return order[regions[i].Kind] < order[regions[j].Kind]
		}
		return strings.Compare(regions[i].Name, regions[j].Name) < 0
	})
}
