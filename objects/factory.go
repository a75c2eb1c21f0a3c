package objects

import (
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/syssam/ospace"
	"github.com/syssam/ospace/metadata"
	"github.com/syssam/ospace/objects/dataclasses"
	"github.com/syssam/ospace/objects/proxy"
)

// WrapperFactory creates entity wrappers. The wrapper form and the strategy
// constructors are resolved once per runtime type and cached. A
// WrapperFactory is safe for concurrent use.
type WrapperFactory struct {
	registry *proxy.Registry
	ws       *metadata.Workspace
	plans    sync.Map
	flight   singleflight.Group
}

// FactoryOption configures a WrapperFactory.
type FactoryOption func(*WrapperFactory)

// WithMetadata sets the workspace describing non-proxy entity types. It is
// used by the property accessor strategy and by key creation.
func WithMetadata(ws *metadata.Workspace) FactoryOption {
	return func(f *WrapperFactory) { f.ws = ws }
}

// NewWrapperFactory returns a factory recognizing the proxies of registry.
// A nil registry recognizes no proxies.
func NewWrapperFactory(registry *proxy.Registry, opts ...FactoryOption) *WrapperFactory {
	if registry == nil {
		registry = proxy.NewRegistry()
	}
	f := &WrapperFactory{registry: registry}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Registry returns the proxy registry of the factory.
func (f *WrapperFactory) Registry() *proxy.Registry { return f.registry }

// typePlan is everything the factory resolved for one runtime type.
type typePlan struct {
	caps   Capabilities
	kinds  StrategyKinds
	info   *proxy.ProxyTypeInfo
	entity *metadata.EntityType
	create func(entity any) (EntityWrapper, error)
}

// strategies is the strategy triple of one wrapper.
type strategies struct {
	accessor PropertyAccessorStrategy
	tracking ChangeTrackingStrategy
	keys     EntityKeyStrategy
}

func (f *WrapperFactory) plan(t reflect.Type) (*typePlan, error) {
	if p, ok := f.plans.Load(t); ok {
		return p.(*typePlan), nil
	}
	v, err, _ := f.flight.Do(fmt.Sprintf("%p", t), func() (any, error) {
		if p, ok := f.plans.Load(t); ok {
			return p, nil
		}
		p, err := f.resolve(t)
		if err != nil {
			return nil, err
		}
		f.plans.Store(t, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*typePlan), nil
}

func (f *WrapperFactory) resolve(t reflect.Type) (*typePlan, error) {
	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: entity type %v is not a pointer to a struct", ospace.ErrInvalidOperation, t)
	}
	p := &typePlan{}
	if info, ok := f.registry.LookupByGeneratedType(t); ok && f.registry.IsProxyType(t) {
		p.info = info
		p.entity = info.EntityType()
		p.caps = Capabilities{
			HasKey:           info.Plan().Base.HasKey,
			HasChangeTracker: info.ImplementsChangeTracker(),
			HasRelationships: info.ImplementsRelationships(),
			IsProxy:          true,
		}
	} else {
		p.caps = nativeCapabilities(t)
		if f.ws != nil {
			p.entity, _ = f.ws.EntityTypeOf(t)
		}
	}
	p.kinds = p.caps.StrategyKinds()
	switch p.caps.WrapperKind() {
	case LightweightWrapper:
		p.create = func(entity any) (EntityWrapper, error) {
			m, err := newMembers(entity, nil)
			if err != nil {
				return nil, err
			}
			return newLightweightWrapper(m)
		}
	case RelationshipsWrapper:
		p.create = func(entity any) (EntityWrapper, error) {
			m, err := newMembers(entity, p.info)
			if err != nil {
				return nil, err
			}
			rm, err := p.relationshipManager(entity)
			if err != nil {
				return nil, err
			}
			sw, err := newStrategyWrapper(m, rm, false, p.strategies(m))
			if err != nil {
				return nil, err
			}
			return &EntityWrapperWithRelationships{sw}, nil
		}
	default:
		p.create = func(entity any) (EntityWrapper, error) {
			m, err := newMembers(entity, p.info)
			if err != nil {
				return nil, err
			}
			sw, err := newStrategyWrapper(m, dataclasses.NewRelationshipManager(), true, p.strategies(m))
			if err != nil {
				return nil, err
			}
			return &EntityWrapperWithoutRelationships{sw}, nil
		}
	}
	return p, nil
}

// relationshipManager returns the manager owned by entity.
func (p *typePlan) relationshipManager(entity any) (*dataclasses.RelationshipManager, error) {
	if p.info != nil {
		rel, err := p.info.Relationships(entity)
		if err != nil {
			return nil, err
		}
		return rel.RelationshipManager(), nil
	}
	return entity.(dataclasses.EntityWithRelationships).RelationshipManager(), nil
}

func (p *typePlan) strategies(m *members) strategies {
	var s strategies
	if p.kinds.Accessor == PocoAccessor {
		s.accessor = &PocoPropertyAccessorStrategy{entity: p.entity, m: m}
	}
	s.tracking = snapshotStrategy
	if p.kinds.Tracking == NotifyingTracking {
		if target, ok := p.changeTracker(m.entity); ok {
			s.tracking = &EntityWithChangeTrackerStrategy{target: target}
		}
	}
	s.keys = &PocoEntityKeyStrategy{}
	if p.kinds.Key == EntityOwnedKey {
		if holder, ok := p.keyHolder(m.entity); ok {
			s.keys = &EntityWithKeyStrategy{holder: holder}
		}
	}
	return s
}

func (p *typePlan) changeTracker(entity any) (dataclasses.EntityWithChangeTracker, bool) {
	if p.info != nil {
		return p.info.ChangeTracker(entity)
	}
	ct, ok := entity.(dataclasses.EntityWithChangeTracker)
	return ct, ok
}

func (p *typePlan) keyHolder(entity any) (dataclasses.EntityWithKey, bool) {
	if p.info != nil {
		return p.info.KeyHolder(entity)
	}
	k, ok := entity.(dataclasses.EntityWithKey)
	return k, ok
}

// Capabilities returns the capabilities of the runtime type t.
func (f *WrapperFactory) Capabilities(t reflect.Type) (Capabilities, error) {
	p, err := f.plan(t)
	if err != nil {
		return Capabilities{}, err
	}
	return p.caps, nil
}

// EntityTypeOf returns the description of the runtime type t, or nil.
func (f *WrapperFactory) EntityTypeOf(t reflect.Type) *metadata.EntityType {
	p, err := f.plan(t)
	if err != nil {
		return nil
	}
	return p.entity
}

// CreateNewWrapper wraps entity in a new wrapper of the form selected for
// its type. A nil entity gets the null wrapper. key seeds the wrapper's key
// when it has none.
func (f *WrapperFactory) CreateNewWrapper(entity any, key *dataclasses.EntityKey) (EntityWrapper, error) {
	if !isSet(entity) {
		return nullWrapper, nil
	}
	p, err := f.plan(reflect.TypeOf(entity))
	if err != nil {
		return nil, err
	}
	w, err := p.create(entity)
	if err != nil {
		return nil, err
	}
	if err := w.RelationshipManager().SetOwner(w); err != nil {
		return nil, err
	}
	if key != nil && w.EntityKey() == nil {
		w.SetEntityKey(key)
	}
	if p.info != nil {
		if err := p.info.SetEntityWrapper(entity, w); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// WrapEntityUsingStateManager returns the wrapper of entity, reusing the
// wrapper already tracked by osm, recorded by its transaction, owning the
// entity's relationship manager or registered on the proxy, in that order.
// The entry is returned when the entity is tracked.
func (f *WrapperFactory) WrapEntityUsingStateManager(entity any, osm *ObjectStateManager) (EntityWrapper, *EntityEntry, error) {
	if !isSet(entity) {
		return nullWrapper, nil, nil
	}
	var tm *TransactionManager
	if osm != nil {
		if entry, ok := osm.FindEntityEntry(entity); ok {
			return entry.Wrapper(), entry, nil
		}
		tm = osm.TransactionManager()
		if tm.TrackProcessedEntities() {
			if w, ok := tm.WrappedEntity(entity); ok {
				return w, nil, nil
			}
		}
	}
	if er, ok := entity.(dataclasses.EntityWithRelationships); ok {
		rm := er.RelationshipManager()
		if rm == nil {
			return nil, nil, ospace.NewConfigurationError(reflect.TypeOf(entity).String(),
				"the entity returned a nil relationship manager", nil)
		}
		if owner := rm.Owner(); owner != nil {
			w, ok := owner.(EntityWrapper)
			if !ok || !sameInstance(w.Entity(), entity) {
				return nil, nil, ospace.NewIdentityError("relationship manager owner", reflect.TypeOf(entity),
					"the owner of the relationship manager does not wrap the entity")
			}
			return w, nil, nil
		}
	} else if info, ok := f.registry.ProxyOf(entity); ok {
		owner, err := info.EntityWrapper(entity)
		if err != nil {
			return nil, nil, err
		}
		if w, ok := owner.(EntityWrapper); ok {
			return w, nil, nil
		}
	}
	w, err := f.CreateNewWrapper(entity, nil)
	if err != nil {
		return nil, nil, err
	}
	if tm != nil && tm.TrackProcessedEntities() {
		tm.RecordWrapped(entity, w)
	}
	return w, nil, nil
}

// WrapEntityUsingContext wraps entity using the state manager of c.
func (f *WrapperFactory) WrapEntityUsingContext(entity any, c *Context) (EntityWrapper, *EntityEntry, error) {
	if c == nil {
		return f.WrapEntityUsingStateManager(entity, nil)
	}
	return f.WrapEntityUsingStateManager(entity, c.StateManager())
}

// UpdateNoTrackingWrapper fills in the key and the context of a wrapper
// created by a no-tracking query.
func (f *WrapperFactory) UpdateNoTrackingWrapper(w EntityWrapper, c *Context, entitySet string) error {
	if w.EntityKey() == nil {
		key, err := c.StateManager().CreateEntityKey(entitySet, w.Entity())
		if err != nil {
			return err
		}
		w.SetEntityKey(key)
	}
	if w.Context() == nil {
		w.AttachContext(c, entitySet, NoTracking)
	}
	return nil
}
