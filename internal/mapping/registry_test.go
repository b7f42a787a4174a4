package mapping

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	apperrors "github.com/charlesng35/l2cache/pkg/errors"
)

func attractionCatalog() []ClassMetadata {
	return []ClassMetadata{
		{
			Name:      "Attraction",
			Table:     "attractions",
			Fields:    []string{"name"},
			Cacheable: true,
			Associations: []Association{
				{Field: "infos", Kind: ToMany, Target: "AttractionInfo", MappedBy: "attraction", Cacheable: true},
			},
		},
		{
			Name:      "AttractionInfo",
			Table:     "attraction_infos",
			Cacheable: true,
			Associations: []Association{
				{Field: "attraction", Kind: ToOne, Target: "Attraction"},
			},
		},
		{Name: "AttractionContactInfo", Parent: "AttractionInfo", Table: "attraction_contact_infos", Discriminator: "contact", Fields: []string{"fone"}},
		{Name: "AttractionLocationInfo", Parent: "AttractionInfo", Table: "attraction_location_infos", Discriminator: "location", Fields: []string{"address"}},
	}
}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(attractionCatalog()...)
	require.NoError(t, err)
	return r
}

func TestRegionForSharedAcrossHierarchy(t *testing.T) {
	r := newRegistry(t)

	root, err := r.RegionFor("AttractionInfo")
	require.NoError(t, err)
	require.Equal(t, "attraction_info", root)

	for _, name := range []string{"AttractionContactInfo", "AttractionLocationInfo"} {
		region, err := r.RegionFor(name)
		require.NoError(t, err)
		require.Equal(t, root, region, name)
	}

	other, err := r.RegionFor("Attraction")
	require.NoError(t, err)
	require.Equal(t, "attraction", other)
}

func TestRegionForExplicitRootRegion(t *testing.T) {
	catalog := attractionCatalog()
	catalog[1].Region = "infos"
	r, err := NewRegistry(catalog...)
	require.NoError(t, err)

	region, err := r.RegionFor("AttractionLocationInfo")
	require.NoError(t, err)
	require.Equal(t, "infos", region)
}

func TestRegionForUnmappedType(t *testing.T) {
	r := newRegistry(t)

	_, err := r.RegionFor("Ghost")
	require.Error(t, err)
	require.True(t, errors.Is(err, apperrors.ErrUnmappedType))
	require.True(t, apperrors.IsConfiguration(err))
}

func TestHierarchyQueries(t *testing.T) {
	r := newRegistry(t)

	chain, err := r.Chain("AttractionContactInfo")
	require.NoError(t, err)
	require.Equal(t, []string{"AttractionInfo", "AttractionContactInfo"}, chain)

	require.True(t, r.IsA("AttractionContactInfo", "AttractionInfo"))
	require.False(t, r.IsA("AttractionInfo", "AttractionContactInfo"))
	require.False(t, r.IsA("AttractionContactInfo", "AttractionLocationInfo"))

	require.ElementsMatch(t,
		[]string{"AttractionInfo", "AttractionContactInfo", "AttractionLocationInfo"},
		r.Descendants("AttractionInfo"))

	fields, err := r.Fields("AttractionContactInfo")
	require.NoError(t, err)
	require.Equal(t, []string{"fone"}, fields)

	toOne, err := r.ToOneAssociations("AttractionLocationInfo")
	require.NoError(t, err)
	require.Len(t, toOne, 1)
	require.Equal(t, "attraction_id", toOne[0].Column)

	class, err := r.ClassForDiscriminator("AttractionInfo", "location")
	require.NoError(t, err)
	require.Equal(t, "AttractionLocationInfo", class)

	_, err = r.ClassForDiscriminator("AttractionInfo", "unknown")
	require.ErrorIs(t, err, apperrors.ErrUnmappedType)
}

func TestCollectionRegionsAndInverse(t *testing.T) {
	r := newRegistry(t)

	region, err := r.CollectionRegion("Attraction", "infos")
	require.NoError(t, err)
	require.Equal(t, "attraction__infos", region)

	_, err = r.CollectionRegion("AttractionInfo", "attraction")
	require.ErrorIs(t, err, apperrors.ErrUnmappedType)

	require.Equal(t, []string{"attraction__infos"}, r.CollectionRegions())
	require.Equal(t, []string{"attraction", "attraction_info"}, r.EntityRegions())

	inverse := r.InverseCollections("AttractionContactInfo")
	want := []InverseCollection{{Owner: "Attraction", Field: "infos", Via: "attraction"}}
	if diff := cmp.Diff(want, inverse); diff != "" {
		t.Fatalf("inverse collections mismatch (-want +got):\n%s", diff)
	}
	require.Empty(t, r.InverseCollections("Attraction"))
}

func TestNewRegistryRejectsInvalidMetadata(t *testing.T) {
	tests := []struct {
		name    string
		classes []ClassMetadata
	}{
		{
			name:    "missing table",
			classes: []ClassMetadata{{Name: "Orphan"}},
		},
		{
			name:    "unknown parent",
			classes: []ClassMetadata{{Name: "Leaf", Parent: "Missing", Table: "leaves"}},
		},
		{
			name: "cycle",
			classes: []ClassMetadata{
				{Name: "A", Parent: "B", Table: "a"},
				{Name: "B", Parent: "A", Table: "b"},
			},
		},
		{
			name: "duplicate",
			classes: []ClassMetadata{
				{Name: "A", Table: "a"},
				{Name: "A", Table: "a2"},
			},
		},
		{
			name: "duplicate discriminator",
			classes: []ClassMetadata{
				{Name: "Root", Table: "roots"},
				{Name: "Left", Parent: "Root", Table: "lefts", Discriminator: "x"},
				{Name: "Right", Parent: "Root", Table: "rights", Discriminator: "x"},
			},
		},
		{
			name: "collection without inverse",
			classes: []ClassMetadata{
				{Name: "Owner", Table: "owners", Associations: []Association{{Field: "items", Kind: ToMany, Target: "Item"}}},
				{Name: "Item", Table: "items"},
			},
		},
		{
			name: "explicit region shared by two hierarchies",
			classes: []ClassMetadata{
				{Name: "Venue", Table: "venues", Region: "places"},
				{Name: "Museum", Table: "museums", Region: "places"},
			},
		},
		{
			name: "derived regions collide",
			classes: []ClassMetadata{
				{Name: "FooBar", Table: "foo_bars"},
				{Name: "Foo_Bar", Table: "foo_bar_rows"},
			},
		},
		{
			name: "bad identifier",
			classes: []ClassMetadata{
				{Name: "Bad", Table: "bad table"},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRegistry(tc.classes...)
			require.Error(t, err)
			require.ErrorIs(t, err, apperrors.ErrInvalidMetadata)
		})
	}
}

func TestRegionNameNormalisation(t *testing.T) {
	cases := map[string]string{
		"Attraction":                    "attraction",
		"AttractionInfo":                "attraction_info",
		"Doctrine.Tests.AttractionInfo": "doctrine_tests_attraction_info",
		"already_snake":                 "already_snake",
	}
	for in, want := range cases {
		require.Equal(t, want, regionName(in), in)
	}
}
