package objects

import (
	"reflect"

	"github.com/syssam/ospace"
	"github.com/syssam/ospace/objects/dataclasses"
	"github.com/syssam/ospace/objects/proxy"
)

// MergeOption selects how materialized rows merge with tracked entities.
type MergeOption int

// Merge options.
const (
	// AppendOnly keeps tracked entities as they are.
	AppendOnly MergeOption = iota
	// OverwriteChanges replaces the values of tracked entities.
	OverwriteChanges
	// NoTracking materializes entities without tracking them.
	NoTracking
)

// String implements fmt.Stringer.
func (o MergeOption) String() string {
	switch o {
	case AppendOnly:
		return "append-only"
	case OverwriteChanges:
		return "overwrite-changes"
	default:
		return "no-tracking"
	}
}

// EntityWrapper gives uniform access to one entity instance. The family is
// closed; wrappers are created by a WrapperFactory.
type EntityWrapper interface {
	// Entity returns the wrapped instance.
	Entity() any
	// IdentityType returns the entity's Go type. For proxies it is the base
	// type, not the proxy struct.
	IdentityType() reflect.Type
	// ProxyInfo returns the proxy type information, or nil for plain entities.
	ProxyInfo() *proxy.ProxyTypeInfo

	RelationshipManager() *dataclasses.RelationshipManager
	// OwnsRelationshipManager reports whether the wrapper, not the entity,
	// owns the relationship manager.
	OwnsRelationshipManager() bool

	EntityKey() *dataclasses.EntityKey
	SetEntityKey(key *dataclasses.EntityKey)
	// EntityKeyFromEntity returns the key stored on the entity itself, or nil.
	EntityKeyFromEntity() *dataclasses.EntityKey

	Context() *Context
	EntitySet() string
	MergeOption() MergeOption
	AttachContext(ctx *Context, entitySet string, mergeOption MergeOption)
	DetachContext()

	SetChangeTracker(tracker dataclasses.EntityChangeTracker)
	TakeSnapshot(entry *EntityEntry)
	// SetCurrentValue writes a scalar member and reports the change to entry.
	SetCurrentValue(entry *EntityEntry, member string, value any) error
	// UpdateCurrentValueRecord writes member values without marking them modified.
	UpdateCurrentValueRecord(values map[string]any, entry *EntityEntry) error

	CollectionAdd(end dataclasses.RelatedEnd, value any) error
	CollectionRemove(end dataclasses.RelatedEnd, value any) (bool, error)
	EnsureCollectionNotNull(end dataclasses.RelatedEnd) error
	NavigationPropertyValue(end dataclasses.RelatedEnd) (any, error)
	SetNavigationPropertyValue(end dataclasses.RelatedEnd, value any) error
	RemoveNavigationPropertyValue(end dataclasses.RelatedEnd, value any) error

	access() *members
}

// wrapper holds the state shared by every non-null wrapper form.
type wrapper struct {
	m           *members
	ctx         *Context
	entitySet   string
	mergeOption MergeOption
}

func (w *wrapper) Entity() any                      { return w.m.entity }
func (w *wrapper) IdentityType() reflect.Type       { return w.m.identity() }
func (w *wrapper) ProxyInfo() *proxy.ProxyTypeInfo  { return w.m.info }
func (w *wrapper) Context() *Context                { return w.ctx }
func (w *wrapper) EntitySet() string                { return w.entitySet }
func (w *wrapper) MergeOption() MergeOption         { return w.mergeOption }
func (w *wrapper) access() *members                 { return w.m }
func (w *wrapper) isProxy() bool                    { return w.m.info != nil }
func (w *wrapper) DetachContext()                   { w.ctx, w.entitySet, w.mergeOption = nil, "", AppendOnly }

func (w *wrapper) AttachContext(ctx *Context, entitySet string, mergeOption MergeOption) {
	w.ctx, w.entitySet, w.mergeOption = ctx, entitySet, mergeOption
}

// updateRecord writes values and, for proxies, refreshes complex members
// the proxy may have replaced.
func (w *wrapper) updateRecord(values map[string]any, entry *EntityEntry) error {
	if entry == nil {
		for name, v := range values {
			if err := w.m.setBase(name, v); err != nil {
				return err
			}
		}
		return nil
	}
	if err := entry.UpdateRecordWithoutSetModified(values); err != nil {
		return err
	}
	if w.isProxy() {
		entry.DetectChangesInComplexProperties()
	}
	return nil
}

// LightweightEntityWrapper wraps entities that implement every capability
// themselves. It delegates to the entity and uses no strategies.
type LightweightEntityWrapper struct {
	wrapper
	key     dataclasses.EntityWithKey
	tracker dataclasses.EntityWithChangeTracker
	rm      *dataclasses.RelationshipManager
}

var _ EntityWrapper = (*LightweightEntityWrapper)(nil)

func newLightweightWrapper(m *members) (*LightweightEntityWrapper, error) {
	w := &LightweightEntityWrapper{
		wrapper: wrapper{m: m},
		key:     m.entity.(dataclasses.EntityWithKey),
		tracker: m.entity.(dataclasses.EntityWithChangeTracker),
	}
	w.rm = m.entity.(dataclasses.EntityWithRelationships).RelationshipManager()
	if w.rm == nil {
		return nil, ospace.NewConfigurationError(m.identity().String(), "the entity returned a nil relationship manager", nil)
	}
	return w, nil
}

func (w *LightweightEntityWrapper) RelationshipManager() *dataclasses.RelationshipManager { return w.rm }
func (w *LightweightEntityWrapper) OwnsRelationshipManager() bool                       { return false }
func (w *LightweightEntityWrapper) EntityKey() *dataclasses.EntityKey                   { return w.key.EntityKey() }
func (w *LightweightEntityWrapper) SetEntityKey(key *dataclasses.EntityKey)             { w.key.SetEntityKey(key) }
func (w *LightweightEntityWrapper) EntityKeyFromEntity() *dataclasses.EntityKey         { return w.key.EntityKey() }

func (w *LightweightEntityWrapper) SetChangeTracker(tracker dataclasses.EntityChangeTracker) {
	w.tracker.SetChangeTracker(tracker)
}

// TakeSnapshot only snapshots complex members, and only when entry asks for it.
func (w *LightweightEntityWrapper) TakeSnapshot(entry *EntityEntry) {
	if entry != nil && entry.RequiresComplexChangeTracking() {
		entry.TakeSnapshot(true)
	}
}

func (w *LightweightEntityWrapper) SetCurrentValue(entry *EntityEntry, member string, value any) error {
	return notifySet(entry, w.m, member, value)
}

func (w *LightweightEntityWrapper) UpdateCurrentValueRecord(values map[string]any, entry *EntityEntry) error {
	return w.updateRecord(values, entry)
}

// The entity manages its navigation storage itself.

func (w *LightweightEntityWrapper) CollectionAdd(dataclasses.RelatedEnd, any) error { return nil }
func (w *LightweightEntityWrapper) CollectionRemove(dataclasses.RelatedEnd, any) (bool, error) {
	return false, nil
}
func (w *LightweightEntityWrapper) EnsureCollectionNotNull(dataclasses.RelatedEnd) error { return nil }
func (w *LightweightEntityWrapper) NavigationPropertyValue(dataclasses.RelatedEnd) (any, error) {
	return nil, nil
}
func (w *LightweightEntityWrapper) SetNavigationPropertyValue(dataclasses.RelatedEnd, any) error {
	return nil
}
func (w *LightweightEntityWrapper) RemoveNavigationPropertyValue(dataclasses.RelatedEnd, any) error {
	return nil
}

// strategyWrapper delegates to the three strategies of the entity's type.
type strategyWrapper struct {
	wrapper
	rm       *dataclasses.RelationshipManager
	owned    bool
	accessor PropertyAccessorStrategy
	tracking ChangeTrackingStrategy
	keys     EntityKeyStrategy
}

func newStrategyWrapper(m *members, rm *dataclasses.RelationshipManager, owned bool, s strategies) (strategyWrapper, error) {
	if rm == nil {
		return strategyWrapper{}, ospace.NewConfigurationError(m.identity().String(),
			"a strategy-backed entity wrapper requires a relationship manager", nil)
	}
	return strategyWrapper{
		wrapper:  wrapper{m: m},
		rm:       rm,
		owned:    owned,
		accessor: s.accessor,
		tracking: s.tracking,
		keys:     s.keys,
	}, nil
}

func (w *strategyWrapper) RelationshipManager() *dataclasses.RelationshipManager { return w.rm }
func (w *strategyWrapper) OwnsRelationshipManager() bool                       { return w.owned }
func (w *strategyWrapper) EntityKey() *dataclasses.EntityKey                   { return w.keys.EntityKey() }
func (w *strategyWrapper) EntityKeyFromEntity() *dataclasses.EntityKey         { return w.keys.EntityKeyFromEntity() }

func (w *strategyWrapper) SetEntityKey(key *dataclasses.EntityKey) { w.keys.SetEntityKey(key) }

func (w *strategyWrapper) SetChangeTracker(tracker dataclasses.EntityChangeTracker) {
	w.tracking.SetChangeTracker(tracker)
}

func (w *strategyWrapper) TakeSnapshot(entry *EntityEntry) { w.tracking.TakeSnapshot(entry) }

func (w *strategyWrapper) SetCurrentValue(entry *EntityEntry, member string, value any) error {
	return w.tracking.SetCurrentValue(entry, w.m, member, value)
}

func (w *strategyWrapper) UpdateCurrentValueRecord(values map[string]any, entry *EntityEntry) error {
	return w.updateRecord(values, entry)
}

func (w *strategyWrapper) CollectionAdd(end dataclasses.RelatedEnd, value any) error {
	if w.accessor == nil {
		return nil
	}
	return w.accessor.CollectionAdd(end, value)
}

func (w *strategyWrapper) CollectionRemove(end dataclasses.RelatedEnd, value any) (bool, error) {
	if w.accessor == nil {
		return false, nil
	}
	return w.accessor.CollectionRemove(end, value)
}

// EnsureCollectionNotNull assigns a new collection to the navigation member
// of end when it is nil.
func (w *strategyWrapper) EnsureCollectionNotNull(end dataclasses.RelatedEnd) error {
	if w.accessor == nil {
		return nil
	}
	current, err := w.accessor.NavigationPropertyValue(end)
	if err != nil || isSet(current) {
		return err
	}
	created, err := w.accessor.CollectionCreate(end)
	if err != nil || created == nil {
		return err
	}
	return w.accessor.SetNavigationPropertyValue(end, created)
}

func (w *strategyWrapper) NavigationPropertyValue(end dataclasses.RelatedEnd) (any, error) {
	if w.accessor == nil {
		return nil, nil
	}
	return w.accessor.NavigationPropertyValue(end)
}

func (w *strategyWrapper) SetNavigationPropertyValue(end dataclasses.RelatedEnd, value any) error {
	if w.accessor == nil {
		return nil
	}
	return w.accessor.SetNavigationPropertyValue(end, value)
}

func (w *strategyWrapper) RemoveNavigationPropertyValue(end dataclasses.RelatedEnd, value any) error {
	if w.accessor == nil {
		return nil
	}
	return w.accessor.RemoveNavigationPropertyValue(end, value)
}

// EntityWrapperWithRelationships wraps entities whose relationship manager
// is owned by the entity: types implementing
// dataclasses.EntityWithRelationships and every proxy.
type EntityWrapperWithRelationships struct {
	strategyWrapper
}

var _ EntityWrapper = (*EntityWrapperWithRelationships)(nil)

// EntityWrapperWithoutRelationships wraps entities without a relationship
// manager of their own; the wrapper owns one.
type EntityWrapperWithoutRelationships struct {
	strategyWrapper
}

var _ EntityWrapper = (*EntityWrapperWithoutRelationships)(nil)

// NullEntityWrapper stands for a nil entity. Every operation is a no-op.
type NullEntityWrapper struct{}

var nullWrapper = &NullEntityWrapper{}

var _ EntityWrapper = nullWrapper

// NullWrapper returns the shared wrapper of nil entities.
func NullWrapper() *NullEntityWrapper { return nullWrapper }

func (*NullEntityWrapper) Entity() any                                           { return nil }
func (*NullEntityWrapper) IdentityType() reflect.Type                            { return nil }
func (*NullEntityWrapper) ProxyInfo() *proxy.ProxyTypeInfo                       { return nil }
func (*NullEntityWrapper) RelationshipManager() *dataclasses.RelationshipManager { return nil }
func (*NullEntityWrapper) OwnsRelationshipManager() bool                         { return false }
func (*NullEntityWrapper) EntityKey() *dataclasses.EntityKey                     { return nil }
func (*NullEntityWrapper) SetEntityKey(*dataclasses.EntityKey)                   {}
func (*NullEntityWrapper) EntityKeyFromEntity() *dataclasses.EntityKey           { return nil }
func (*NullEntityWrapper) Context() *Context                                     { return nil }
func (*NullEntityWrapper) EntitySet() string                                     { return "" }
func (*NullEntityWrapper) MergeOption() MergeOption                              { return NoTracking }
func (*NullEntityWrapper) AttachContext(*Context, string, MergeOption)           {}
func (*NullEntityWrapper) DetachContext()                                        {}
func (*NullEntityWrapper) SetChangeTracker(dataclasses.EntityChangeTracker)      {}
func (*NullEntityWrapper) TakeSnapshot(*EntityEntry)                             {}
func (*NullEntityWrapper) SetCurrentValue(*EntityEntry, string, any) error       { return nil }
func (*NullEntityWrapper) UpdateCurrentValueRecord(map[string]any, *EntityEntry) error {
	return nil
}
func (*NullEntityWrapper) CollectionAdd(dataclasses.RelatedEnd, any) error             { return nil }
func (*NullEntityWrapper) CollectionRemove(dataclasses.RelatedEnd, any) (bool, error)  { return false, nil }
func (*NullEntityWrapper) EnsureCollectionNotNull(dataclasses.RelatedEnd) error        { return nil }
func (*NullEntityWrapper) NavigationPropertyValue(dataclasses.RelatedEnd) (any, error) { return nil, nil }
func (*NullEntityWrapper) SetNavigationPropertyValue(dataclasses.RelatedEnd, any) error {
	return nil
}
func (*NullEntityWrapper) RemoveNavigationPropertyValue(dataclasses.RelatedEnd, any) error {
	return nil
}
func (*NullEntityWrapper) access() *members { return nil }
