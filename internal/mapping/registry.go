package mapping

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	apperrors "github.com/charlesng35/l2cache/pkg/errors"
	"github.com/charlesng35/l2cache/pkg/validator"
)

// Class is the resolved, read-only view of a mapped class.
type Class struct {
	Name          string
	Parent        string
	Table         string
	Discriminator string
	Root          string
	// Chain lists the hierarchy from the root down to this class, inclusive.
	Chain []string
	// Declared holds the fields declared by this class only.
	Declared []string
	// DeclaredToOne lists the ToOne fields whose columns live in this class's table.
	DeclaredToOne []string
	// Fields is the union of fields declared along Chain.
	Fields []string
	// ToOne holds every single-valued association visible on this class, keyed by field.
	ToOne map[string]Association
	// ToMany holds every collection-valued association visible on this class, keyed by field.
	ToMany map[string]Association
	Region string
	// Cacheable is inherited from the hierarchy root.
	Cacheable bool
}

// HasField reports whether field is a persistent field of the class.
func (c *Class) HasField(field string) bool {
	for _, f := range c.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// Registry maps class names to resolved metadata. It is immutable after NewRegistry returns.
type Registry struct {
	classes        map[string]*Class
	descendants    map[string][]string
	discriminators map[string]map[string]string // root -> discriminator -> class
	order          []string
}

// NewRegistry validates the supplied metadata and builds the lookup tables.
func NewRegistry(classes ...ClassMetadata) (*Registry, error) {
	byName := make(map[string]ClassMetadata, len(classes))
	order := make([]string, 0, len(classes))
	for _, meta := range classes {
		if err := validator.ValidateStruct(meta); err != nil {
			return nil, apperrors.ErrInvalidMetadata.WithInternal(fmt.Errorf("class %q: %w", meta.Name, err))
		}
		if _, exists := byName[meta.Name]; exists {
			return nil, apperrors.ErrInvalidMetadata.WithInternal(fmt.Errorf("class %q declared twice", meta.Name))
		}
		byName[meta.Name] = meta
		order = append(order, meta.Name)
	}

	r := &Registry{
		classes:        make(map[string]*Class, len(byName)),
		descendants:    make(map[string][]string),
		discriminators: make(map[string]map[string]string),
		order:          order,
	}

	for _, name := range order {
		chain, err := resolveChain(byName, name)
		if err != nil {
			return nil, err
		}
		r.classes[name] = buildClass(byName, chain)
	}

	owners := make(map[string]string)
	for _, name := range order {
		class := r.classes[name]
		if root, taken := owners[class.Region]; taken && root != class.Root {
			return nil, apperrors.ErrInvalidMetadata.WithInternal(
				fmt.Errorf("hierarchies %q and %q share entity region %q", root, class.Root, class.Region))
		}
		owners[class.Region] = class.Root
	}

	for _, name := range order {
		class := r.classes[name]
		for _, ancestor := range class.Chain {
			r.descendants[ancestor] = append(r.descendants[ancestor], name)
		}

		byDisc, ok := r.discriminators[class.Root]
		if !ok {
			byDisc = make(map[string]string)
			r.discriminators[class.Root] = byDisc
		}
		if other, dup := byDisc[class.Discriminator]; dup {
			return nil, apperrors.ErrInvalidMetadata.WithInternal(
				fmt.Errorf("classes %q and %q share discriminator %q", other, name, class.Discriminator))
		}
		byDisc[class.Discriminator] = name
	}

	if err := r.checkAssociations(); err != nil {
		return nil, err
	}

	return r, nil
}

// MustRegistry is NewRegistry for static metadata known to be valid.
func MustRegistry(classes ...ClassMetadata) *Registry {
	r, err := NewRegistry(classes...)
	if err != nil {
		panic(err)
	}
	return r
}

func resolveChain(byName map[string]ClassMetadata, name string) ([]string, error) {
	seen := map[string]bool{}
	var reversed []string
	for current := name; current != ""; {
		if seen[current] {
			return nil, apperrors.ErrInvalidMetadata.WithInternal(fmt.Errorf("inheritance cycle through %q", current))
		}
		seen[current] = true

		meta, ok := byName[current]
		if !ok {
			return nil, apperrors.ErrInvalidMetadata.WithInternal(fmt.Errorf("class %q extends unmapped class %q", name, current))
		}
		reversed = append(reversed, current)
		current = meta.Parent
	}

	chain := make([]string, len(reversed))
	for i, n := range reversed {
		chain[len(reversed)-1-i] = n
	}
	return chain, nil
}

func buildClass(byName map[string]ClassMetadata, chain []string) *Class {
	self := byName[chain[len(chain)-1]]
	root := byName[chain[0]]

	class := &Class{
		Name:          self.Name,
		Parent:        self.Parent,
		Table:         self.Table,
		Discriminator: self.Discriminator,
		Root:          root.Name,
		Chain:         chain,
		Declared:      append([]string(nil), self.Fields...),
		ToOne:         make(map[string]Association),
		ToMany:        make(map[string]Association),
		Region:        root.Region,
		Cacheable:     root.Cacheable,
	}
	if class.Discriminator == "" {
		class.Discriminator = self.Name
	}
	if class.Region == "" {
		class.Region = regionName(root.Name)
	}

	for _, assoc := range self.Associations {
		if assoc.Kind == ToOne {
			class.DeclaredToOne = append(class.DeclaredToOne, assoc.Field)
		}
	}

	for _, name := range chain {
		meta := byName[name]
		class.Fields = append(class.Fields, meta.Fields...)
		for _, assoc := range meta.Associations {
			if assoc.Kind == ToOne {
				assoc.Column = assoc.column()
				class.ToOne[assoc.Field] = assoc
			} else {
				class.ToMany[assoc.Field] = assoc
			}
		}
	}
	return class
}

func (r *Registry) checkAssociations() error {
	for _, name := range r.order {
		class := r.classes[name]
		for field, assoc := range class.ToOne {
			if _, ok := r.classes[assoc.Target]; !ok {
				return apperrors.ErrInvalidMetadata.WithInternal(fmt.Errorf("%s.%s targets unmapped class %q", name, field, assoc.Target))
			}
		}
		for field, assoc := range class.ToMany {
			target, ok := r.classes[assoc.Target]
			if !ok {
				return apperrors.ErrInvalidMetadata.WithInternal(fmt.Errorf("%s.%s targets unmapped class %q", name, field, assoc.Target))
			}
			inverse, ok := target.ToOne[assoc.MappedBy]
			if !ok {
				return apperrors.ErrInvalidMetadata.WithInternal(fmt.Errorf("%s.%s is mapped by unknown field %s.%s", name, field, assoc.Target, assoc.MappedBy))
			}
			if !r.IsA(name, inverse.Target) {
				return apperrors.ErrInvalidMetadata.WithInternal(fmt.Errorf("%s.%s does not reference %s", assoc.Target, assoc.MappedBy, name))
			}
		}
	}
	return nil
}

// regionName derives a stable region name from a hierarchy root class name.
func regionName(root string) string {
	var b strings.Builder
	b.Grow(len(root) + 4)
	prevUnderscore := true
	for i, r := range root {
		switch {
		case unicode.IsUpper(r):
			if i > 0 && !prevUnderscore {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			prevUnderscore = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			prevUnderscore = false
		default:
			if !prevUnderscore {
				b.WriteByte('_')
			}
			prevUnderscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

func unmapped(name string) error {
	return apperrors.ErrUnmappedType.WithMessagef("type %q is not mapped", name)
}

// Class returns the resolved metadata for name.
func (r *Registry) Class(name string) (*Class, error) {
	if r != nil {
		if class, ok := r.classes[name]; ok {
			return class, nil
		}
	}
	return nil, unmapped(name)
}

// RegionFor returns the entity region shared by every class of name's hierarchy.
func (r *Registry) RegionFor(name string) (string, error) {
	class, err := r.Class(name)
	if err != nil {
		return "", err
	}
	return class.Region, nil
}

// RootOf returns the hierarchy root of name.
func (r *Registry) RootOf(name string) (string, error) {
	class, err := r.Class(name)
	if err != nil {
		return "", err
	}
	return class.Root, nil
}

// IsA reports whether class is ancestor or one of its subclasses.
func (r *Registry) IsA(class, ancestor string) bool {
	c, err := r.Class(class)
	if err != nil {
		return false
	}
	for _, name := range c.Chain {
		if name == ancestor {
			return true
		}
	}
	return false
}

// Descendants returns name and every subclass of it.
func (r *Registry) Descendants(name string) []string {
	return append([]string(nil), r.descendants[name]...)
}

// Fields returns the union of fields declared along name's hierarchy chain.
func (r *Registry) Fields(name string) ([]string, error) {
	class, err := r.Class(name)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), class.Fields...), nil
}

// Association returns the association declared as field on class or one of its ancestors.
func (r *Registry) Association(class, field string) (Association, error) {
	c, err := r.Class(class)
	if err != nil {
		return Association{}, err
	}
	if assoc, ok := c.ToOne[field]; ok {
		return assoc, nil
	}
	if assoc, ok := c.ToMany[field]; ok {
		return assoc, nil
	}
	return Association{}, apperrors.ErrUnmappedType.WithMessagef("association %s.%s is not mapped", class, field)
}

// CollectionRegion returns the collection region for owner's field.
func (r *Registry) CollectionRegion(owner, field string) (string, error) {
	assoc, err := r.Association(owner, field)
	if err != nil {
		return "", err
	}
	if assoc.Kind != ToMany {
		return "", apperrors.ErrUnmappedType.WithMessagef("association %s.%s is not a collection", owner, field)
	}
	region, err := r.RegionFor(owner)
	if err != nil {
		return "", err
	}
	return region + "__" + regionName(field), nil
}

// ClassForDiscriminator maps a discriminator value read from root's table to its class.
func (r *Registry) ClassForDiscriminator(root, value string) (string, error) {
	if byDisc, ok := r.discriminators[root]; ok {
		if name, ok := byDisc[value]; ok {
			return name, nil
		}
	}
	return "", apperrors.ErrUnmappedType.WithMessagef("discriminator %q is not mapped under %q", value, root)
}

// InverseCollections returns the cacheable ToMany associations that class's ToOne field feeds,
// keyed by the owning class.
func (r *Registry) InverseCollections(class string) []InverseCollection {
	c, err := r.Class(class)
	if err != nil {
		return nil
	}
	var out []InverseCollection
	for _, role := range r.CollectionRoles() {
		assoc := r.classes[role.Owner].ToMany[role.Field]
		if !r.IsA(class, assoc.Target) {
			continue
		}
		toOne, ok := c.ToOne[assoc.MappedBy]
		if !ok {
			continue
		}
		out = append(out, InverseCollection{Owner: role.Owner, Field: role.Field, Via: toOne.Field})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner != out[j].Owner {
			return out[i].Owner < out[j].Owner
		}
		return out[i].Field < out[j].Field
	})
	return out
}

// InverseCollection names a cached collection whose membership depends on a ToOne field.
type InverseCollection struct {
	Owner string
	Field string
	// Via is the ToOne field on the member class that points at the owner.
	Via string
}

// EntityRegions returns every distinct entity region, sorted.
func (r *Registry) EntityRegions() []string {
	seen := map[string]bool{}
	var out []string
	for _, name := range r.order {
		region := r.classes[name].Region
		if !seen[region] {
			seen[region] = true
			out = append(out, region)
		}
	}
	sort.Strings(out)
	return out
}

// CollectionRole identifies a collection association by its declaring class and field.
type CollectionRole struct {
	Owner  string
	Field  string
	Region string
}

// CollectionRoles returns every cacheable collection association.
func (r *Registry) CollectionRoles() []CollectionRole {
	var out []CollectionRole
	for _, name := range r.order {
		class := r.classes[name]
		for _, field := range sortedKeys(class.ToMany) {
			assoc := class.ToMany[field]
			if !assoc.Cacheable {
				continue
			}
			// Only report the class that declares the association.
			if class.Parent != "" {
				if parent, err := r.Class(class.Parent); err == nil {
					if _, inherited := parent.ToMany[field]; inherited {
						continue
					}
				}
			}
			region, _ := r.CollectionRegion(name, field)
			out = append(out, CollectionRole{Owner: name, Field: field, Region: region})
		}
	}
	return out
}

// Names returns mapped class names in declaration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

func sortedKeys(m map[string]Association) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Chain returns the hierarchy of name from the root down to name itself.
func (r *Registry) Chain(name string) ([]string, error) {
	class, err := r.Class(name)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), class.Chain...), nil
}

// ToOneAssociations returns the single-valued associations visible on name, sorted by field.
func (r *Registry) ToOneAssociations(name string) ([]Association, error) {
	class, err := r.Class(name)
	if err != nil {
		return nil, err
	}
	out := make([]Association, 0, len(class.ToOne))
	for _, field := range sortedKeys(class.ToOne) {
		out = append(out, class.ToOne[field])
	}
	return out, nil
}

// CollectionRegions returns every distinct collection region, sorted.
func (r *Registry) CollectionRegions() []string {
	var out []string
	for _, role := range r.CollectionRoles() {
		out = append(out, role.Region)
	}
	sort.Strings(out)
	return out
}
