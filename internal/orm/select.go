package orm

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/charlesng35/l2cache/internal/mapping"
	"github.com/charlesng35/l2cache/internal/secondlevel"
	apperrors "github.com/charlesng35/l2cache/pkg/errors"
)

// source is one selected class of a statement together with the table aliases of its rows: the
// hierarchy root, the chain down to the class and every subclass below it.
type source struct {
	alias string
	class *mapping.Class
	root  *mapping.Class
	base  string
	// tables maps class name to table alias.
	tables map[string]string
	// order lists the classes of tables in join order.
	order []string
	// polymorphic is set when the root table carries a discriminator column.
	polymorphic bool
}

// selection accumulates the FROM and JOIN clauses shared by every source of a statement.
type selection struct {
	registry *mapping.Registry
	sources  []*source
	byAlias  map[string]*source
	from     string
	joins    []string
	columns  []string
	next     int
}

func newSelection(registry *mapping.Registry) *selection {
	return &selection{registry: registry, byAlias: map[string]*source{}}
}

func (s *selection) tableAlias() string {
	alias := fmt.Sprintf("t%d", s.next)
	s.next++
	return alias
}

func isPolymorphic(registry *mapping.Registry, root string) bool {
	return len(registry.Descendants(root)) > 1
}

// add registers class under alias. on is the join condition on the root table alias; an empty
// on makes the source the FROM clause.
func (s *selection) add(alias, class string, on func(base string) string) (*source, error) {
	if _, dup := s.byAlias[alias]; dup {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("alias %q is already used", alias))
	}
	cls, err := s.registry.Class(class)
	if err != nil {
		return nil, err
	}
	root, err := s.registry.Class(cls.Root)
	if err != nil {
		return nil, err
	}

	src := &source{
		alias:       alias,
		class:       cls,
		root:        root,
		tables:      map[string]string{},
		polymorphic: isPolymorphic(s.registry, root.Name),
	}
	src.base = s.tableAlias()
	if on == nil {
		s.from = root.Table + " " + src.base
	} else {
		s.joins = append(s.joins, fmt.Sprintf("JOIN %s %s ON %s", root.Table, src.base, on(src.base)))
	}
	src.tables[root.Name] = src.base
	src.order = append(src.order, root.Name)

	for _, name := range cls.Chain[1:] {
		member, err := s.registry.Class(name)
		if err != nil {
			return nil, err
		}
		alias := s.tableAlias()
		s.joins = append(s.joins, fmt.Sprintf("JOIN %s %s ON %s.id = %s.id", member.Table, alias, alias, src.base))
		src.tables[name] = alias
		src.order = append(src.order, name)
	}

	descendants := s.registry.Descendants(cls.Name)
	sort.Strings(descendants)
	for _, name := range descendants {
		if name == cls.Name {
			continue
		}
		member, err := s.registry.Class(name)
		if err != nil {
			return nil, err
		}
		alias := s.tableAlias()
		s.joins = append(s.joins, fmt.Sprintf("LEFT JOIN %s %s ON %s.id = %s.id", member.Table, alias, alias, src.base))
		src.tables[name] = alias
		src.order = append(src.order, name)
	}

	s.columns = append(s.columns, fmt.Sprintf("%s.id AS %s__id", src.base, src.base))
	if src.polymorphic {
		s.columns = append(s.columns, fmt.Sprintf("%s.%s AS %s__%s", src.base, mapping.DiscriminatorColumn, src.base, mapping.DiscriminatorColumn))
	}
	for _, name := range src.order {
		member, _ := s.registry.Class(name)
		table := src.tables[name]
		for _, column := range tableColumns(member) {
			s.columns = append(s.columns, fmt.Sprintf("%s.%s AS %s__%s", table, column, table, column))
		}
	}

	s.sources = append(s.sources, src)
	s.byAlias[alias] = src
	return src, nil
}

// joinToOne fetch-joins the target of a ToOne association path such as "i.attraction".
func (s *selection) joinToOne(path, alias string) (*source, error) {
	owner, field, ok := strings.Cut(path, ".")
	if !ok {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("join path %q must be alias.field", path))
	}
	src, known := s.byAlias[owner]
	if !known {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown alias %q in join %q", owner, path))
	}
	assoc, err := s.registry.Association(src.class.Name, field)
	if err != nil {
		return nil, err
	}
	if assoc.Kind != mapping.ToOne {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("join %q must follow a to-one association", path))
	}
	column, err := src.column(s.registry, field)
	if err != nil {
		return nil, err
	}
	return s.add(alias, assoc.Target, func(base string) string {
		return fmt.Sprintf("%s.id = %s", base, column)
	})
}

func tableColumns(member *mapping.Class) []string {
	columns := append([]string(nil), member.Declared...)
	for _, field := range member.DeclaredToOne {
		columns = append(columns, member.ToOne[field].Column)
	}
	return columns
}

// column resolves field of the source to its qualified column.
func (src *source) column(registry *mapping.Registry, field string) (string, error) {
	if field == mapping.IdentifierColumn {
		return src.base + "." + mapping.IdentifierColumn, nil
	}
	for _, name := range src.order {
		member, err := registry.Class(name)
		if err != nil {
			return "", err
		}
		for _, declared := range member.Declared {
			if declared == field {
				return src.tables[name] + "." + field, nil
			}
		}
		for _, declared := range member.DeclaredToOne {
			if declared == field {
				return src.tables[name] + "." + member.ToOne[field].Column, nil
			}
		}
	}
	return "", apperrors.NewBadRequest(fmt.Sprintf("field %s.%s is not mapped", src.alias, field))
}

var pathPattern = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)\b`)

// translate rewrites alias.field references in expr into qualified columns. Tokens whose prefix
// is not a known alias are left untouched.
func (s *selection) translate(expr string) (string, error) {
	var firstErr error
	out := pathPattern.ReplaceAllStringFunc(expr, func(match string) string {
		parts := pathPattern.FindStringSubmatch(match)
		src, ok := s.byAlias[parts[1]]
		if !ok {
			return match
		}
		column, err := src.column(s.registry, parts[2])
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return match
		}
		return column
	})
	return out, firstErr
}

// hydrate extracts the snapshot of src from one result row. It returns false when the row carries
// no entity for src.
func (src *source) hydrate(registry *mapping.Registry, row map[string]any) (string, secondlevel.EntityEntry, bool, error) {
	id := toString(row[src.base+"__id"])
	if id == "" {
		return "", secondlevel.EntityEntry{}, false, nil
	}

	concreteName := src.root.Name
	if src.polymorphic {
		name, err := registry.ClassForDiscriminator(src.root.Name, toString(row[src.base+"__"+mapping.DiscriminatorColumn]))
		if err != nil {
			return "", secondlevel.EntityEntry{}, false, err
		}
		concreteName = name
	}
	concrete, err := registry.Class(concreteName)
	if err != nil {
		return "", secondlevel.EntityEntry{}, false, err
	}
	if !registry.IsA(concrete.Name, src.class.Name) {
		return "", secondlevel.EntityEntry{}, false, nil
	}

	entry := secondlevel.EntityEntry{
		Type:         concrete.Name,
		Fields:       map[string]any{},
		Associations: map[string]string{},
	}
	for _, name := range concrete.Chain {
		member, err := registry.Class(name)
		if err != nil {
			return "", secondlevel.EntityEntry{}, false, err
		}
		table, ok := src.tables[name]
		if !ok {
			return "", secondlevel.EntityEntry{}, false, fmt.Errorf("orm: %s is not joined for alias %s", name, src.alias)
		}
		readColumns(member, func(column string) any { return row[table+"__"+column] }, &entry)
	}
	return id, entry, true, nil
}
