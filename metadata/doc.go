// Package metadata describes the object space: the entity types an ORM
// materializes, their scalar and navigation members, their keys and the
// relationship types that connect them.
//
// An EntityType is immutable once constructed. Its hashed description is a
// content hash of everything structural about the description, so two
// workspaces that describe the same Go type differently can be told apart:
//
//	customer, err := metadata.NewEntityType("Customer", reflect.TypeOf(Customer{}),
//		metadata.Namespace("Shop"),
//		metadata.Key("ID"),
//		metadata.Property("ID"),
//		metadata.Property("Name"),
//		metadata.Collection("Orders"),
//	)
//
// Descriptions may also be loaded from YAML with LoadYAML and kept fresh
// with a Watcher.
package metadata
