// Package dataclasses holds the capability contracts an entity type may
// implement natively, entity keys and the relationship manager that tracks an
// entity's related ends.
package dataclasses

// EntityChangeTracker receives member change notifications from an entity.
type EntityChangeTracker interface {
	EntityMemberChanging(member string)
	EntityMemberChanged(member string)
}

// EntityWithChangeTracker is implemented by entities that report their own
// member changes.
type EntityWithChangeTracker interface {
	SetChangeTracker(tracker EntityChangeTracker)
}

// EntityWithKey is implemented by entities that store their own key.
type EntityWithKey interface {
	EntityKey() *EntityKey
	SetEntityKey(key *EntityKey)
}

// EntityWithRelationships is implemented by entities that own their
// relationship manager.
type EntityWithRelationships interface {
	RelationshipManager() *RelationshipManager
}

// Owner is the back-reference a relationship manager keeps to the wrapper
// of the entity it belongs to.
type Owner interface {
	Entity() any
}
