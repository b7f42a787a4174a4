package orm

import (
	"reflect"

	"github.com/charlesng35/l2cache/internal/mapping"
	"github.com/charlesng35/l2cache/internal/secondlevel"
)

// Entity is a managed instance of a mapped class. Fields holds the persistent fields of the
// class's whole chain; Refs holds the identity referenced by each ToOne association ("" is null).
type Entity struct {
	Class  string
	ID     string
	Fields map[string]any
	Refs   map[string]string
}

// NewEntity returns an unmanaged entity of class. The identity is assigned by Persist when empty.
func NewEntity(class string) *Entity {
	return &Entity{Class: class, Fields: map[string]any{}, Refs: map[string]string{}}
}

// Get returns the value of field.
func (e *Entity) Get(field string) any { return e.Fields[field] }

// Set assigns field.
func (e *Entity) Set(field string, value any) *Entity {
	if e.Fields == nil {
		e.Fields = map[string]any{}
	}
	e.Fields[field] = value
	return e
}

// Ref returns the identity referenced by the ToOne association field.
func (e *Entity) Ref(field string) string { return e.Refs[field] }

// SetRef points the ToOne association field at id. An empty id clears it.
func (e *Entity) SetRef(field, id string) *Entity {
	if e.Refs == nil {
		e.Refs = map[string]string{}
	}
	e.Refs[field] = id
	return e
}

// snapshot captures the cacheable state of e, filling every mapped field and association so the
// entry is complete for its class.
func (e *Entity) snapshot(class *mapping.Class) secondlevel.EntityEntry {
	entry := secondlevel.EntityEntry{
		Type:         class.Name,
		Fields:       make(map[string]any, len(class.Fields)),
		Associations: make(map[string]string, len(class.ToOne)),
	}
	for _, field := range class.Fields {
		entry.Fields[field] = e.Fields[field]
	}
	for field := range class.ToOne {
		entry.Associations[field] = e.Refs[field]
	}
	return entry
}

func entityFromEntry(id string, entry secondlevel.EntityEntry) *Entity {
	clone := entry.Clone()
	e := &Entity{Class: entry.Type, ID: id, Fields: clone.Fields, Refs: clone.Associations}
	if e.Fields == nil {
		e.Fields = map[string]any{}
	}
	if e.Refs == nil {
		e.Refs = map[string]string{}
	}
	return e
}

// changedTables returns the tables of class's chain whose columns differ between before and after.
func changedTables(registry *mapping.Registry, class *mapping.Class, before, after secondlevel.EntityEntry) []*mapping.Class {
	var out []*mapping.Class
	for _, name := range class.Chain {
		member, err := registry.Class(name)
		if err != nil {
			continue
		}
		dirty := false
		for _, field := range member.Declared {
			if !reflect.DeepEqual(before.Fields[field], after.Fields[field]) {
				dirty = true
			}
		}
		for _, field := range member.DeclaredToOne {
			if before.Associations[field] != after.Associations[field] {
				dirty = true
			}
		}
		if dirty {
			out = append(out, member)
		}
	}
	return out
}
