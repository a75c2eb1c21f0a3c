package objects

import (
	"fmt"
	"reflect"

	"github.com/syssam/ospace/objects/dataclasses"
)

// Capabilities is what a Go type offers the wrapper layer. For proxies the
// change tracker and relationship capabilities include the ones the proxy
// adds to its base type.
type Capabilities struct {
	HasKey           bool
	HasChangeTracker bool
	HasRelationships bool
	IsProxy          bool
}

// String implements fmt.Stringer.
func (c Capabilities) String() string {
	return fmt.Sprintf("key=%t tracker=%t relationships=%t proxy=%t",
		c.HasKey, c.HasChangeTracker, c.HasRelationships, c.IsProxy)
}

var (
	keyIface           = reflect.TypeOf((*dataclasses.EntityWithKey)(nil)).Elem()
	changeTrackerIface = reflect.TypeOf((*dataclasses.EntityWithChangeTracker)(nil)).Elem()
	relationshipsIface = reflect.TypeOf((*dataclasses.EntityWithRelationships)(nil)).Elem()
)

// nativeCapabilities reports the interfaces t implements itself.
func nativeCapabilities(t reflect.Type) Capabilities {
	return Capabilities{
		HasKey:           t.Implements(keyIface),
		HasChangeTracker: t.Implements(changeTrackerIface),
		HasRelationships: t.Implements(relationshipsIface),
	}
}

// WrapperKind is the wrapper form selected for a type.
type WrapperKind int

// Wrapper forms.
const (
	// LightweightWrapper delegates everything to the entity.
	LightweightWrapper WrapperKind = iota
	// RelationshipsWrapper uses strategies and the entity's own relationship manager.
	RelationshipsWrapper
	// NoRelationshipsWrapper uses strategies and owns its relationship manager.
	NoRelationshipsWrapper
)

// String implements fmt.Stringer.
func (k WrapperKind) String() string {
	switch k {
	case LightweightWrapper:
		return "lightweight"
	case RelationshipsWrapper:
		return "with-relationships"
	default:
		return "without-relationships"
	}
}

// WrapperKind selects the wrapper form.
func (c Capabilities) WrapperKind() WrapperKind {
	switch {
	case c.HasKey && c.HasChangeTracker && c.HasRelationships && !c.IsProxy:
		return LightweightWrapper
	case c.HasRelationships:
		return RelationshipsWrapper
	default:
		return NoRelationshipsWrapper
	}
}

// AccessorKind is the property accessor strategy selected for a type.
type AccessorKind int

// Property accessor strategies.
const (
	// NoAccessor means the entity manages its navigation storage itself.
	NoAccessor AccessorKind = iota
	// PocoAccessor reads and writes navigation members directly.
	PocoAccessor
)

// TrackingKind is the change tracking strategy selected for a type.
type TrackingKind int

// Change tracking strategies.
const (
	// SnapshotTracking compares against original value snapshots.
	SnapshotTracking TrackingKind = iota
	// NotifyingTracking relies on the entity's change notifications.
	NotifyingTracking
)

// KeyKind is the entity key strategy selected for a type.
type KeyKind int

// Entity key strategies.
const (
	// PocoKey stores the key in the strategy, one per instance.
	PocoKey KeyKind = iota
	// EntityOwnedKey stores the key on the entity.
	EntityOwnedKey
)

// StrategyKinds is the strategy triple of a type.
type StrategyKinds struct {
	Accessor AccessorKind
	Tracking TrackingKind
	Key      KeyKind
}

// StrategyKinds selects the three strategies independently. Proxies always
// get the POCO property accessor.
func (c Capabilities) StrategyKinds() StrategyKinds {
	var s StrategyKinds
	if !c.HasRelationships || c.IsProxy {
		s.Accessor = PocoAccessor
	}
	if c.HasChangeTracker {
		s.Tracking = NotifyingTracking
	}
	if c.HasKey {
		s.Key = EntityOwnedKey
	}
	return s
}
