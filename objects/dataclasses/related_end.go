package dataclasses

import "reflect"

// RelatedEnd is one end of a relationship as seen from the owning entity.
type RelatedEnd interface {
	RelationshipName() string
	TargetRole() string
	IsLoaded() bool
	SetLoaded(loaded bool)
}

// Collection is the contract of collection-valued navigation properties.
type Collection interface {
	Add(entity any)
	Remove(entity any) bool
	Contains(entity any) bool
	Len() int
	Items() []any
}

type end struct {
	relationship string
	role         string
	loaded       bool
}

func (e *end) RelationshipName() string { return e.relationship }
func (e *end) TargetRole() string       { return e.role }
func (e *end) IsLoaded() bool           { return e.loaded }
func (e *end) SetLoaded(loaded bool)    { e.loaded = loaded }

// EntityReference is a reference-valued related end.
type EntityReference struct {
	end
	value any
}

// Value returns the related entity, or nil.
func (r *EntityReference) Value() any { return r.value }

// SetValue sets the related entity.
func (r *EntityReference) SetValue(entity any) {
	r.value = entity
}

// EntityCollection is a collection-valued related end.
type EntityCollection struct {
	end
	items []any
}

var _ Collection = (*EntityCollection)(nil)

// Add adds an entity unless it is already present.
func (c *EntityCollection) Add(entity any) {
	if entity == nil || c.Contains(entity) {
		return
	}
	c.items = append(c.items, entity)
}

// Remove removes an entity and reports whether it was present.
func (c *EntityCollection) Remove(entity any) bool {
	for i, item := range c.items {
		if same(item, entity) {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports whether the entity is present.
func (c *EntityCollection) Contains(entity any) bool {
	for _, item := range c.items {
		if same(item, entity) {
			return true
		}
	}
	return false
}

// Len returns the number of entities.
func (c *EntityCollection) Len() int { return len(c.items) }

// Items returns a copy of the entities.
func (c *EntityCollection) Items() []any { return append([]any(nil), c.items...) }

// Items returns the entities of c that are of type T.
func Items[T any](c Collection) []T {
	if c == nil {
		return nil
	}
	var out []T
	for _, item := range c.Items() {
		if v, ok := item.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// same compares entities by identity.
func same(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
