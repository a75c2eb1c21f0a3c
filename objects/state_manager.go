package objects

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/syssam/ospace"
	"github.com/syssam/ospace/objects/dataclasses"
)

// ObjectStateManager is the identity map of a Context. Entities are found
// by instance and by key. It is not safe for concurrent use.
type ObjectStateManager struct {
	factory  *WrapperFactory
	log      *zap.Logger
	byEntity map[any]*EntityEntry
	byKey    map[string]*EntityEntry
	order    []*EntityEntry
	tm       *TransactionManager
	fkSetter any
}

// NewObjectStateManager returns an empty state manager wrapping entities
// with factory.
func NewObjectStateManager(factory *WrapperFactory, log *zap.Logger) *ObjectStateManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &ObjectStateManager{
		factory:  factory,
		log:      log,
		byEntity: make(map[any]*EntityEntry),
		byKey:    make(map[string]*EntityEntry),
		tm:       &TransactionManager{},
	}
}

// TransactionManager returns the bookkeeping of the running operation.
func (osm *ObjectStateManager) TransactionManager() *TransactionManager { return osm.tm }

// FindEntityEntry returns the entry tracking entity.
func (osm *ObjectStateManager) FindEntityEntry(entity any) (*EntityEntry, bool) {
	if !isSet(entity) {
		return nil, false
	}
	e, ok := osm.byEntity[instance(entity)]
	return e, ok
}

// FindEntityEntryByKey returns the entry with the given key.
func (osm *ObjectStateManager) FindEntityEntryByKey(key *dataclasses.EntityKey) (*EntityEntry, bool) {
	if key == nil {
		return nil, false
	}
	e, ok := osm.byKey[key.String()]
	return e, ok
}

// Entries returns the entries in any of the given states, in the order they
// were added.
func (osm *ObjectStateManager) Entries(states EntityState) []*EntityEntry {
	var entries []*EntityEntry
	for _, e := range osm.order {
		if e.state&states != 0 {
			entries = append(entries, e)
		}
	}
	return entries
}

// CreateEntityKey builds the key of entity in entitySet from its key members.
func (osm *ObjectStateManager) CreateEntityKey(entitySet string, entity any) (*dataclasses.EntityKey, error) {
	if !isSet(entity) {
		return nil, fmt.Errorf("%w: cannot create the key of a nil entity", ospace.ErrInvalidOperation)
	}
	p, err := osm.factory.plan(reflect.TypeOf(entity))
	if err != nil {
		return nil, err
	}
	if p.entity == nil || len(p.entity.KeyMembers()) == 0 {
		return nil, ospace.NewConfigurationError(reflect.TypeOf(entity).String(), "entity type has no key members", nil)
	}
	m, err := newMembers(entity, p.info)
	if err != nil {
		return nil, err
	}
	members := make([]dataclasses.KeyMember, 0, len(p.entity.KeyMembers()))
	for _, name := range p.entity.KeyMembers() {
		v, err := m.getBase(name)
		if err != nil {
			return nil, err
		}
		members = append(members, dataclasses.KeyMember{Name: name, Value: clone(v)})
	}
	return dataclasses.NewEntityKey(entitySet, members...), nil
}

// AddEntry starts tracking the entity of w under key.
func (osm *ObjectStateManager) AddEntry(w EntityWrapper, key *dataclasses.EntityKey, entitySet string, state EntityState) (*EntityEntry, error) {
	entity := w.Entity()
	if !isSet(entity) {
		return nil, fmt.Errorf("%w: cannot track a nil entity", ospace.ErrInvalidOperation)
	}
	if _, ok := osm.byEntity[instance(entity)]; ok {
		return nil, fmt.Errorf("%w: entity %T is already tracked", ospace.ErrInvalidOperation, entity)
	}
	if key == nil {
		return nil, fmt.Errorf("%w: entity %T has no key", ospace.ErrInvalidOperation, entity)
	}
	if other, ok := osm.byKey[key.String()]; ok {
		return nil, fmt.Errorf("%w: key %s is already tracked for another %v", ospace.ErrInvalidOperation, key, other.wrapper.IdentityType())
	}
	p, err := osm.factory.plan(reflect.TypeOf(entity))
	if err != nil {
		return nil, err
	}
	e := newEntityEntry(osm, w, p.entity, p.caps, key, entitySet, state)
	w.SetEntityKey(key)
	osm.byEntity[instance(entity)] = e
	osm.byKey[key.String()] = e
	osm.order = append(osm.order, e)
	w.SetChangeTracker(e)
	w.TakeSnapshot(e)
	osm.log.Debug("entity tracked",
		zap.Stringer("key", key),
		zap.Stringer("state", state),
		zap.Stringer("type", w.IdentityType()),
	)
	return e, nil
}

// Detach stops tracking entity.
func (osm *ObjectStateManager) Detach(entity any) error {
	e, ok := osm.FindEntityEntry(entity)
	if !ok {
		return fmt.Errorf("%w: entity %T is not tracked", ospace.ErrInvalidOperation, entity)
	}
	osm.remove(e)
	return nil
}

func (osm *ObjectStateManager) remove(e *EntityEntry) {
	delete(osm.byEntity, instance(e.Entity()))
	if e.key != nil {
		delete(osm.byKey, e.key.String())
	}
	for i, o := range osm.order {
		if o == e {
			osm.order = append(osm.order[:i], osm.order[i+1:]...)
			break
		}
	}
	e.wrapper.SetChangeTracker(nil)
	e.wrapper.DetachContext()
	e.state = Detached
	if osm.fkSetter != nil && sameInstance(osm.fkSetter, e.Entity()) {
		osm.fkSetter = nil
	}
}

// DetectChanges runs change detection on every tracked entry and returns
// the number of entries that changed.
func (osm *ObjectStateManager) DetectChanges() int {
	n := 0
	for _, e := range osm.order {
		if e.DetectChanges() {
			n++
		}
	}
	return n
}

// AcceptAllChanges accepts the changes of every tracked entry.
func (osm *ObjectStateManager) AcceptAllChanges() {
	for _, e := range append([]*EntityEntry(nil), osm.order...) {
		e.AcceptChanges()
	}
}

// EntityInvokingFKSetter returns the entity whose foreign key setter is
// running, or nil.
func (osm *ObjectStateManager) EntityInvokingFKSetter() any { return osm.fkSetter }

// SetEntityInvokingFKSetter sets the entity whose foreign key setter is
// running.
func (osm *ObjectStateManager) SetEntityInvokingFKSetter(entity any) { osm.fkSetter = entity }

// TransactionManager holds the bookkeeping of one Attach, AddObject or
// change detection operation.
type TransactionManager struct {
	processed      map[any]EntityWrapper
	trackDepth     int
	originalValues int
}

// BeginTrackProcessedEntities starts recording the wrappers created while
// walking an object graph. Calls nest.
func (tm *TransactionManager) BeginTrackProcessedEntities() {
	if tm.trackDepth == 0 {
		tm.processed = make(map[any]EntityWrapper)
	}
	tm.trackDepth++
}

// EndTrackProcessedEntities ends a BeginTrackProcessedEntities call.
func (tm *TransactionManager) EndTrackProcessedEntities() {
	if tm.trackDepth == 0 {
		return
	}
	tm.trackDepth--
	if tm.trackDepth == 0 {
		tm.processed = nil
	}
}

// TrackProcessedEntities reports whether wrappers are being recorded.
func (tm *TransactionManager) TrackProcessedEntities() bool { return tm.trackDepth > 0 }

// WrappedEntity returns the wrapper recorded for entity.
func (tm *TransactionManager) WrappedEntity(entity any) (EntityWrapper, bool) {
	w, ok := tm.processed[instance(entity)]
	return w, ok
}

// RecordWrapped records the wrapper of entity.
func (tm *TransactionManager) RecordWrapped(entity any, w EntityWrapper) {
	if tm.processed != nil {
		tm.processed[instance(entity)] = w
	}
}

// Processed reports whether entity was already visited by the running
// operation.
func (tm *TransactionManager) Processed(entity any) bool {
	_, ok := tm.processed[instance(entity)]
	return ok
}

// BeginOriginalValuesGetter marks that original values are being read.
// Member change notifications received meanwhile do not modify entries.
func (tm *TransactionManager) BeginOriginalValuesGetter() { tm.originalValues++ }

// EndOriginalValuesGetter ends a BeginOriginalValuesGetter call.
func (tm *TransactionManager) EndOriginalValuesGetter() {
	if tm.originalValues > 0 {
		tm.originalValues--
	}
}

// InOriginalValuesGetter reports whether original values are being read.
func (tm *TransactionManager) InOriginalValuesGetter() bool { return tm.originalValues > 0 }
