package dataclasses

import (
	"reflect"

	"github.com/syssam/ospace"
)

// RelationshipManager tracks the related ends of one entity. It is either
// owned by a wrapper (NewRelationshipManager) or by the entity itself
// (Create). The entity it belongs to is fixed by the first owner and never
// changes afterwards.
type RelationshipManager struct {
	entity any
	owner  Owner
	ends   map[endKey]RelatedEnd
	order  []endKey
}

type endKey struct {
	relationship string
	role         string
}

// NewRelationshipManager returns a manager whose entity is fixed by the first
// SetOwner call.
func NewRelationshipManager() *RelationshipManager {
	return &RelationshipManager{ends: make(map[endKey]RelatedEnd)}
}

// Create returns a manager owned by entity.
func Create(entity any) *RelationshipManager {
	rm := NewRelationshipManager()
	rm.entity = entity
	return rm
}

// SetOwner sets the wrapper back-reference. The owner may be replaced, but
// it must always wrap the same entity.
func (rm *RelationshipManager) SetOwner(o Owner) error {
	if o == nil {
		return ospace.NewConfigurationError("RelationshipManager", "owner is required", nil)
	}
	entity := o.Entity()
	if rm.entity != nil && !sameEntity(rm.entity, entity) {
		return ospace.NewIdentityError("relationship manager owner", reflect.TypeOf(entity),
			"the relationship manager already belongs to another entity")
	}
	rm.entity = entity
	rm.owner = o
	return nil
}

func sameEntity(a, b any) bool {
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() == reflect.Pointer && vb.Kind() == reflect.Pointer {
		return va.Pointer() == vb.Pointer()
	}
	return same(a, b)
}

// Owner returns the wrapper back-reference, or nil.
func (rm *RelationshipManager) Owner() Owner { return rm.owner }

// Entity returns the entity the manager belongs to, or nil.
func (rm *RelationshipManager) Entity() any { return rm.entity }

// RelatedEnd returns the related end for the relationship and target role,
// if it was created.
func (rm *RelationshipManager) RelatedEnd(relationship, role string) (RelatedEnd, bool) {
	e, ok := rm.ends[endKey{relationship, role}]
	return e, ok
}

// RelatedReference returns the reference end for the relationship and
// target role, creating it on first use.
func (rm *RelationshipManager) RelatedReference(relationship, role string) *EntityReference {
	k := endKey{relationship, role}
	if e, ok := rm.ends[k].(*EntityReference); ok {
		return e
	}
	r := &EntityReference{end: end{relationship: relationship, role: role}}
	rm.add(k, r)
	return r
}

// RelatedCollection returns the collection end for the relationship and
// target role, creating it on first use.
func (rm *RelationshipManager) RelatedCollection(relationship, role string) *EntityCollection {
	k := endKey{relationship, role}
	if e, ok := rm.ends[k].(*EntityCollection); ok {
		return e
	}
	c := &EntityCollection{end: end{relationship: relationship, role: role}}
	rm.add(k, c)
	return c
}

func (rm *RelationshipManager) add(k endKey, e RelatedEnd) {
	if _, ok := rm.ends[k]; !ok {
		rm.order = append(rm.order, k)
	}
	rm.ends[k] = e
}

// Ends returns the related ends in creation order.
func (rm *RelationshipManager) Ends() []RelatedEnd {
	ends := make([]RelatedEnd, 0, len(rm.order))
	for _, k := range rm.order {
		ends = append(ends, rm.ends[k])
	}
	return ends
}

// Snapshot is the serializable state of a relationship manager.
type Snapshot struct {
	Ends []EndSnapshot `msgpack:"ends"`
}

// EndSnapshot is the serializable state of one related end.
type EndSnapshot struct {
	Relationship string `msgpack:"rel"`
	Role         string `msgpack:"role"`
	Collection   bool   `msgpack:"coll,omitempty"`
	Loaded       bool   `msgpack:"loaded,omitempty"`
}

// Snapshot captures the related ends and their loaded flags. Related
// entities are not captured: references are carried by the entity's own
// navigation properties and collections are loaded again.
func (rm *RelationshipManager) Snapshot() Snapshot {
	s := Snapshot{Ends: make([]EndSnapshot, 0, len(rm.order))}
	for _, k := range rm.order {
		e := rm.ends[k]
		_, coll := e.(*EntityCollection)
		s.Ends = append(s.Ends, EndSnapshot{
			Relationship: k.relationship,
			Role:         k.role,
			Collection:   coll,
			Loaded:       e.IsLoaded(),
		})
	}
	return s
}

// Restore recreates the related ends recorded in s.
func (rm *RelationshipManager) Restore(s Snapshot) {
	for _, es := range s.Ends {
		var e RelatedEnd
		if es.Collection {
			e = rm.RelatedCollection(es.Relationship, es.Role)
		} else {
			e = rm.RelatedReference(es.Relationship, es.Role)
		}
		e.SetLoaded(es.Loaded)
	}
}
