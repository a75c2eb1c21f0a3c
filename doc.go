// Package ospace is the object-space runtime of an ORM: it synthesizes proxy
// types for entity structs, wraps entity instances behind a uniform access
// interface and tracks their changes and relationships.
//
// The package itself only holds the error vocabulary shared by the
// sub-packages:
//
//	metadata             entity type descriptions and workspaces
//	objects/dataclasses  capability interfaces, keys and relationship managers
//	objects/proxy        proxy type synthesis and the process-wide proxy registry
//	objects              entity wrappers, strategies, state manager and context
//	proxygen             compile-time proxy source generation
//	dialect/sql          database/sql driver, stats and debug wrappers
//	config               file and environment settings, logger construction
//	cmd/ospacegen        proxy generator command
package ospace
