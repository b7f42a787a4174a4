package models

import "github.com/charlesng35/l2cache/internal/mapping"

// Class names of the bundled sample catalog.
const (
	ClassAttraction             = "Attraction"
	ClassAttractionInfo         = "AttractionInfo"
	ClassAttractionContactInfo  = "AttractionContactInfo"
	ClassAttractionLocationInfo = "AttractionLocationInfo"
)

// Attraction is the root row of the Attraction hierarchy.
type Attraction struct {
	ID   string `gorm:"primaryKey;size:64"`
	Name string `gorm:"size:255;not null"`
}

// TableName implements gorm's tabler.
func (Attraction) TableName() string { return "attractions" }

// AttractionInfo is the root table of a joined-table hierarchy. Dtype selects the subclass table.
type AttractionInfo struct {
	ID           string  `gorm:"primaryKey;size:64"`
	Dtype        string  `gorm:"column:dtype;size:64;not null;index"`
	AttractionID *string `gorm:"size:64;index"`
}

func (AttractionInfo) TableName() string { return "attraction_infos" }

// AttractionContactInfo holds the columns declared by the contact subclass.
type AttractionContactInfo struct {
	ID   string `gorm:"primaryKey;size:64"`
	Fone string `gorm:"size:64"`
}

func (AttractionContactInfo) TableName() string { return "attraction_contact_infos" }

// AttractionLocationInfo holds the columns declared by the location subclass.
type AttractionLocationInfo struct {
	ID      string `gorm:"primaryKey;size:64"`
	Address string `gorm:"size:255"`
}

func (AttractionLocationInfo) TableName() string { return "attraction_location_infos" }

// SampleModels lists the gorm models backing AttractionCatalog.
func SampleModels() []interface{} {
	return []interface{}{
		&Attraction{},
		&AttractionInfo{},
		&AttractionContactInfo{},
		&AttractionLocationInfo{},
	}
}

// AttractionCatalog returns the mapping metadata of the sample catalog. Both hierarchies are cacheable
// and Attraction.infos is a cached collection.
func AttractionCatalog() []mapping.ClassMetadata {
	return []mapping.ClassMetadata{
		{
			Name:      ClassAttraction,
			Table:     Attraction{}.TableName(),
			Fields:    []string{"name"},
			Cacheable: true,
			Associations: []mapping.Association{
				{Field: "infos", Kind: mapping.ToMany, Target: ClassAttractionInfo, MappedBy: "attraction", Cacheable: true},
			},
		},
		{
			Name:          ClassAttractionInfo,
			Table:         AttractionInfo{}.TableName(),
			Discriminator: "info",
			Cacheable:     true,
			Associations: []mapping.Association{
				{Field: "attraction", Kind: mapping.ToOne, Target: ClassAttraction, Column: "attraction_id"},
			},
		},
		{
			Name:          ClassAttractionContactInfo,
			Parent:        ClassAttractionInfo,
			Table:         AttractionContactInfo{}.TableName(),
			Discriminator: "contact",
			Fields:        []string{"fone"},
		},
		{
			Name:          ClassAttractionLocationInfo,
			Parent:        ClassAttractionInfo,
			Table:         AttractionLocationInfo{}.TableName(),
			Discriminator: "location",
			Fields:        []string{"address"},
		},
	}
}

// AttractionSeed is the fixture data set of the sample catalog.
type AttractionSeed struct {
	Attractions []Attraction
	Infos       []AttractionInfo
	Contacts    []AttractionContactInfo
	Locations   []AttractionLocationInfo
}

// AttractionFixtures returns six attractions, two contact infos and two location infos.
func AttractionFixtures() AttractionSeed {
	ref := func(id string) *string { return &id }

	return AttractionSeed{
		Attractions: []Attraction{
			{ID: "attraction-0", Name: "Park Ibirapuera"},
			{ID: "attraction-1", Name: "Museu de Arte"},
			{ID: "attraction-2", Name: "Mercado Municipal"},
			{ID: "attraction-3", Name: "Theatro Municipal"},
			{ID: "attraction-4", Name: "Pinacoteca"},
			{ID: "attraction-5", Name: "Catedral da Se"},
		},
		Infos: []AttractionInfo{
			{ID: "info-0", Dtype: "contact", AttractionID: ref("attraction-0")},
			{ID: "info-1", Dtype: "contact", AttractionID: ref("attraction-1")},
			{ID: "info-2", Dtype: "location", AttractionID: ref("attraction-2")},
			{ID: "info-3", Dtype: "location", AttractionID: ref("attraction-3")},
		},
		Contacts: []AttractionContactInfo{
			{ID: "info-0", Fone: "0000-0000"},
			{ID: "info-1", Fone: "1111-1111"},
		},
		Locations: []AttractionLocationInfo{
			{ID: "info-2", Address: "Av. Pedro Alvares Cabral"},
			{ID: "info-3", Address: "Praca Ramos de Azevedo"},
		},
	}
}
