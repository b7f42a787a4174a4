// Package mapping holds the static class metadata the second-level cache resolves regions from.
//
// Metadata is loaded once into a Registry. Everything the cache asks of it afterwards
// (hierarchy roots, field unions, region names) is a pure lookup against tables built at
// construction time.
package mapping

// AssociationKind distinguishes single-valued from collection-valued associations.
type AssociationKind string

const (
	// ToOne references a single target identity stored in a column of the declaring class's table.
	ToOne AssociationKind = "to_one"
	// ToMany is the inverse side of a ToOne association declared on the target.
	ToMany AssociationKind = "to_many"
)

// Association describes a relationship declared on a class.
type Association struct {
	Field  string          `mapstructure:"field" validate:"required,identifier"`
	Kind   AssociationKind `mapstructure:"kind" validate:"required,oneof=to_one to_many"`
	Target string          `mapstructure:"target" validate:"required,identifier"`
	// Column holds the foreign key for ToOne associations. Defaults to "<field>_id".
	Column string `mapstructure:"column" validate:"omitempty,identifier"`
	// MappedBy names the ToOne field on Target that owns a ToMany association.
	MappedBy string `mapstructure:"mapped_by" validate:"omitempty,identifier"`
	// Cacheable opts a ToMany association into the collection cache.
	Cacheable bool `mapstructure:"cacheable"`
}

// ClassMetadata is the static mapping of one entity class.
type ClassMetadata struct {
	Name string `mapstructure:"name" validate:"required,identifier"`
	// Parent names the superclass in a joined-table hierarchy.
	Parent string `mapstructure:"parent" validate:"omitempty,identifier"`
	Table  string `mapstructure:"table" validate:"required,identifier"`
	// Discriminator is the value stored in the root table's discriminator column. Defaults to Name.
	Discriminator string `mapstructure:"discriminator"`
	// Fields lists the persistent columns declared by this class, excluding the identifier.
	Fields       []string      `mapstructure:"fields" validate:"dive,required,identifier"`
	Associations []Association `mapstructure:"associations" validate:"dive"`
	// Cacheable and Region are only honoured on hierarchy roots.
	Cacheable bool   `mapstructure:"cacheable"`
	Region    string `mapstructure:"region" validate:"omitempty,identifier"`
}

// DiscriminatorColumn is the root-table column holding the concrete class discriminator.
const DiscriminatorColumn = "dtype"

// IdentifierColumn is the primary key column shared by every table of a hierarchy.
const IdentifierColumn = "id"

func (a Association) column() string {
	if a.Column != "" {
		return a.Column
	}
	return a.Field + "_id"
}
