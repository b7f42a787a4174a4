package orm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/l2cache/internal/mapping"
	"github.com/charlesng35/l2cache/internal/secondlevel"
	apperrors "github.com/charlesng35/l2cache/pkg/errors"
)

// persister reads and writes the rows of a joined-table hierarchy. The root table carries the
// identifier, the discriminator, the root's fields and its ToOne columns; every subclass table
// carries the identifier and the columns its class declares.
type persister struct {
	db       *gorm.DB
	registry *mapping.Registry
}

var idColumn = clause.Column{Name: mapping.IdentifierColumn}

// load reads id starting from the root table of class. It issues one statement per table in the
// concrete class's chain and returns the complete snapshot.
func (p *persister) load(ctx context.Context, class, id string) (secondlevel.EntityEntry, error) {
	requested, err := p.registry.Class(class)
	if err != nil {
		return secondlevel.EntityEntry{}, err
	}
	root, err := p.registry.Class(requested.Root)
	if err != nil {
		return secondlevel.EntityEntry{}, err
	}

	rootRow, err := p.row(ctx, root.Table, id)
	if err != nil {
		return secondlevel.EntityEntry{}, err
	}

	concreteName := root.Name
	if dtype, ok := rootRow[mapping.DiscriminatorColumn]; ok && dtype != nil {
		concreteName, err = p.registry.ClassForDiscriminator(root.Name, toString(dtype))
		if err != nil {
			return secondlevel.EntityEntry{}, err
		}
	}
	if !p.registry.IsA(concreteName, requested.Name) {
		return secondlevel.EntityEntry{}, notFound(class, id)
	}
	concrete, err := p.registry.Class(concreteName)
	if err != nil {
		return secondlevel.EntityEntry{}, err
	}

	entry := secondlevel.EntityEntry{
		Type:         concrete.Name,
		Fields:       map[string]any{},
		Associations: map[string]string{},
	}
	for _, name := range concrete.Chain {
		member, err := p.registry.Class(name)
		if err != nil {
			return secondlevel.EntityEntry{}, err
		}
		row := rootRow
		if member.Name != root.Name {
			if row, err = p.row(ctx, member.Table, id); err != nil {
				return secondlevel.EntityEntry{}, err
			}
		}
		readColumns(member, func(column string) any { return row[column] }, &entry)
	}
	return entry, nil
}

func (p *persister) row(ctx context.Context, table, id string) (map[string]any, error) {
	row := map[string]any{}
	err := p.db.WithContext(ctx).Table(table).Where(clause.Eq{Column: idColumn, Value: id}).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(table, id)
	}
	return row, err
}

// readColumns copies member's declared columns into entry using get to read each one.
func readColumns(member *mapping.Class, get func(column string) any, entry *secondlevel.EntityEntry) {
	for _, field := range member.Declared {
		entry.Fields[field] = normalizeValue(get(field))
	}
	for _, field := range member.DeclaredToOne {
		entry.Associations[field] = toString(get(member.ToOne[field].Column))
	}
}

// insert writes one row per table in class's chain, root first.
func (p *persister) insert(tx *gorm.DB, class *mapping.Class, id string, entry secondlevel.EntityEntry) error {
	for _, name := range class.Chain {
		member, err := p.registry.Class(name)
		if err != nil {
			return err
		}
		values := columnValues(member, entry)
		values[mapping.IdentifierColumn] = id
		if member.Name == class.Root && isPolymorphic(p.registry, class.Root) {
			values[mapping.DiscriminatorColumn] = class.Discriminator
		}
		if err := tx.Table(member.Table).Create(values).Error; err != nil {
			return translateWriteError(err, class.Name, id)
		}
	}
	return nil
}

// update rewrites the columns of the given chain members.
func (p *persister) update(tx *gorm.DB, members []*mapping.Class, id string, entry secondlevel.EntityEntry) error {
	for _, member := range members {
		values := columnValues(member, entry)
		if len(values) == 0 {
			continue
		}
		if err := tx.Table(member.Table).Where(clause.Eq{Column: idColumn, Value: id}).Updates(values).Error; err != nil {
			return translateWriteError(err, member.Name, id)
		}
	}
	return nil
}

// delete removes the rows of class's chain, leaf first.
func (p *persister) delete(tx *gorm.DB, class *mapping.Class, id string) error {
	for i := len(class.Chain) - 1; i >= 0; i-- {
		member, err := p.registry.Class(class.Chain[i])
		if err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM ? WHERE ? = ?", clause.Table{Name: member.Table}, idColumn, id).Error; err != nil {
			return err
		}
	}
	return nil
}

func columnValues(member *mapping.Class, entry secondlevel.EntityEntry) map[string]any {
	values := make(map[string]any, len(member.Declared)+len(member.DeclaredToOne)+2)
	for _, field := range member.Declared {
		values[field] = entry.Fields[field]
	}
	for _, field := range member.DeclaredToOne {
		var ref any
		if id := entry.Associations[field]; id != "" {
			ref = id
		}
		values[member.ToOne[field].Column] = ref
	}
	return values
}

func notFound(class, id string) error {
	return apperrors.ErrNotFound.WithMessagef("%s#%s not found", class, id)
}

func translateWriteError(err error, class, id string) error {
	if isUniqueConstraintError(err) {
		return apperrors.ErrConflict.WithMessagef("%s#%s already exists", class, id).WithInternal(err)
	}
	return err
}

// isUniqueConstraintError detects uniqueness violations across the supported drivers.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") || strings.Contains(lower, "duplicate")
}

func normalizeValue(v any) any {
	switch value := v.(type) {
	case []byte:
		return string(value)
	case *string:
		if value == nil {
			return nil
		}
		return *value
	default:
		return v
	}
}

func toString(v any) string {
	switch value := normalizeValue(v).(type) {
	case nil:
		return ""
	case string:
		return value
	default:
		return fmt.Sprint(value)
	}
}
