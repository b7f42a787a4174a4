package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/l2cache/internal/mapping"
)

func TestAttractionCatalogBuildsRegistry(t *testing.T) {
	registry, err := mapping.NewRegistry(AttractionCatalog()...)
	require.NoError(t, err)

	for _, class := range []string{ClassAttractionInfo, ClassAttractionContactInfo, ClassAttractionLocationInfo} {
		region, err := registry.RegionFor(class)
		require.NoError(t, err)
		require.Equal(t, "attraction_info", region)
	}
}

func TestAttractionFixturesAreConsistent(t *testing.T) {
	seed := AttractionFixtures()
	require.Len(t, seed.Attractions, 6)
	require.Len(t, seed.Infos, 4)

	subclassRows := map[string]string{}
	for _, c := range seed.Contacts {
		subclassRows[c.ID] = "contact"
	}
	for _, l := range seed.Locations {
		subclassRows[l.ID] = "location"
	}
	for _, info := range seed.Infos {
		require.Equal(t, info.Dtype, subclassRows[info.ID], info.ID)
		require.NotNil(t, info.AttractionID)
	}
}

func TestCacheEntryExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Second)
	future := now.Add(time.Minute)

	require.False(t, CacheEntry{}.Expired(now))
	require.True(t, CacheEntry{ExpiresAt: &past}.Expired(now))
	require.True(t, CacheEntry{ExpiresAt: &now}.Expired(now))
	require.False(t, CacheEntry{ExpiresAt: &future}.Expired(now))
}
