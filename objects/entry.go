package objects

import (
	"bytes"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/syssam/ospace"
	"github.com/syssam/ospace/metadata"
	"github.com/syssam/ospace/objects/dataclasses"
	"github.com/syssam/ospace/objects/proxy"
)

// EntityState is the tracking state of an entity.
type EntityState int

// Entity states. They are bit flags so that several can be queried at once.
const (
	Detached EntityState = 1 << iota
	Unchanged
	Added
	Deleted
	Modified
)

// String implements fmt.Stringer.
func (s EntityState) String() string {
	names := []string{}
	for _, f := range []struct {
		s    EntityState
		name string
	}{{Detached, "detached"}, {Unchanged, "unchanged"}, {Added, "added"}, {Deleted, "deleted"}, {Modified, "modified"}} {
		if s&f.s != 0 {
			names = append(names, f.name)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("EntityState(%d)", int(s))
	}
	return strings.Join(names, "|")
}

// EntityEntry is the tracking record of one entity in an ObjectStateManager.
// It is the change tracker handed to entities that report their own changes.
type EntityEntry struct {
	osm       *ObjectStateManager
	wrapper   EntityWrapper
	entity    *metadata.EntityType
	key       *dataclasses.EntityKey
	entitySet string
	state     EntityState

	// scalars are the members covered by snapshots, complex the subset
	// compared by value on every detection pass.
	scalars []string
	complex map[string]bool
	fk      map[string]bool

	original map[string]any
	modified map[string]bool

	requiresScalar  bool
	requiresComplex bool
	requiresAny     bool
}

var _ dataclasses.EntityChangeTracker = (*EntityEntry)(nil)

func newEntityEntry(osm *ObjectStateManager, w EntityWrapper, et *metadata.EntityType, caps Capabilities, key *dataclasses.EntityKey, entitySet string, state EntityState) *EntityEntry {
	e := &EntityEntry{
		osm:       osm,
		wrapper:   w,
		entity:    et,
		key:       key,
		entitySet: entitySet,
		state:     state,
		complex:   make(map[string]bool),
		fk:        make(map[string]bool),
		original:  make(map[string]any),
		modified:  make(map[string]bool),
	}
	e.scalars = scalarMembers(et, w.access())
	for _, name := range e.scalars {
		if t, ok := w.access().fieldType(name); ok && isComplex(t) {
			e.complex[name] = true
		}
	}
	if et != nil {
		for _, nav := range et.NavigationMembers() {
			if !nav.IsCollection() {
				e.fk[nav.Name+"ID"] = true
			}
		}
	}
	e.requiresScalar = !caps.HasChangeTracker
	e.requiresComplex = e.requiresScalar || (caps.IsProxy && len(e.complex) > 0)
	e.requiresAny = !caps.HasRelationships || e.requiresComplex || e.requiresScalar
	return e
}

// scalarMembers returns the scalar members of et, or the exported non-entity
// fields of the entity when it has no description.
func scalarMembers(et *metadata.EntityType, m *members) []string {
	var names []string
	if et != nil {
		for _, mem := range et.Members() {
			if !mem.IsNavigation() && m.has(mem.Name) {
				names = append(names, mem.Name)
			}
		}
		return names
	}
	t := m.identity()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Anonymous || isNavigationType(f.Type) {
			continue
		}
		names = append(names, f.Name)
	}
	return names
}

func isNavigationType(t reflect.Type) bool {
	switch {
	case t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct:
		return true
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Pointer:
		return true
	case t.Kind() == reflect.Interface:
		return true
	}
	return false
}

// isComplex reports whether members of type t are compared as a whole
// structure rather than as a single value.
func isComplex(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && proxy.ClassifyEquality(t) != proxy.EqualOperator
}

// Entity returns the tracked entity.
func (e *EntityEntry) Entity() any { return e.wrapper.Entity() }

// Wrapper returns the wrapper of the tracked entity.
func (e *EntityEntry) Wrapper() EntityWrapper { return e.wrapper }

// EntityKey returns the key of the entry.
func (e *EntityEntry) EntityKey() *dataclasses.EntityKey { return e.key }

// EntitySet returns the entity set of the entry.
func (e *EntityEntry) EntitySet() string { return e.entitySet }

// State returns the tracking state.
func (e *EntityEntry) State() EntityState { return e.state }

// RequiresScalarChangeTracking reports whether scalar changes are detected
// by snapshot comparison.
func (e *EntityEntry) RequiresScalarChangeTracking() bool { return e.requiresScalar }

// RequiresComplexChangeTracking reports whether complex members are detected
// by snapshot comparison.
func (e *EntityEntry) RequiresComplexChangeTracking() bool { return e.requiresComplex }

// RequiresAnyChangeTracking reports whether the entry needs any change
// detection pass at all.
func (e *EntityEntry) RequiresAnyChangeTracking() bool { return e.requiresAny }

// ModifiedMembers returns the names of the modified members in order.
func (e *EntityEntry) ModifiedMembers() []string {
	names := make([]string, 0, len(e.modified))
	for name := range e.modified {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsModified reports whether member is modified.
func (e *EntityEntry) IsModified(member string) bool { return e.modified[member] }

// OriginalValue returns the value member had when the entry was last
// accepted. Members that never changed report their current value.
func (e *EntityEntry) OriginalValue(member string) (any, error) {
	if v, ok := e.original[member]; ok {
		return v, nil
	}
	return e.wrapper.access().getBase(member)
}

// CurrentValue returns the value of member without running lazy loading.
func (e *EntityEntry) CurrentValue(member string) (any, error) {
	return e.wrapper.access().getBase(member)
}

// TakeSnapshot records the current values as original values, of complex
// members only when onlyComplex is set.
func (e *EntityEntry) TakeSnapshot(onlyComplex bool) {
	tm := e.osm.TransactionManager()
	tm.BeginOriginalValuesGetter()
	defer tm.EndOriginalValuesGetter()
	for _, name := range e.scalars {
		if onlyComplex && !e.complex[name] {
			continue
		}
		if v, err := e.wrapper.access().getBase(name); err == nil {
			e.original[name] = clone(v)
		}
	}
}

// EntityMemberChanging records the original value of member before its
// first change. Foreign key members of proxies mark the entity as the one
// running a foreign key setter until the setter returns.
func (e *EntityEntry) EntityMemberChanging(member string) {
	if e.state&(Detached|Deleted) != 0 {
		return
	}
	if _, ok := e.original[member]; !ok && e.state != Added {
		if v, err := e.wrapper.access().getBase(member); err == nil {
			e.original[member] = clone(v)
		}
	}
	if e.fk[member] && e.wrapper.ProxyInfo() != nil {
		e.osm.SetEntityInvokingFKSetter(e.Entity())
	}
}

// EntityMemberChanged marks member as modified.
func (e *EntityEntry) EntityMemberChanged(member string) {
	if e.state&(Detached|Deleted) != 0 || e.osm.TransactionManager().InOriginalValuesGetter() {
		return
	}
	e.setModified(member)
}

// SetModifiedMember marks member as modified without comparing values.
func (e *EntityEntry) SetModifiedMember(member string) error {
	if !e.wrapper.access().has(member) {
		return fmt.Errorf("%w: member %q of %v", ospace.ErrNotFound, member, e.wrapper.IdentityType())
	}
	if e.state&(Detached|Deleted|Added) != 0 {
		return fmt.Errorf("%w: cannot modify a member of a %s entity", ospace.ErrInvalidOperation, e.state)
	}
	e.setModified(member)
	return nil
}

func (e *EntityEntry) setModified(member string) {
	if e.state == Added {
		return
	}
	e.modified[member] = true
	if e.state == Unchanged {
		e.state = Modified
	}
}

// UpdateRecordWithoutSetModified writes values to the entity without
// marking any member modified.
func (e *EntityEntry) UpdateRecordWithoutSetModified(values map[string]any) error {
	m := e.wrapper.access()
	for _, name := range slices.Sorted(maps.Keys(values)) {
		if err := m.setBase(name, values[name]); err != nil {
			return err
		}
	}
	return nil
}

// DetectChanges compares the entity with its snapshot and marks the
// members that differ. It reports whether anything changed.
func (e *EntityEntry) DetectChanges() bool {
	if e.state&(Unchanged|Modified) == 0 || !e.requiresAny {
		return false
	}
	changed := false
	for _, name := range e.scalars {
		if !e.requiresScalar && !e.complex[name] {
			continue
		}
		if e.detect(name) {
			changed = true
		}
	}
	return changed
}

// DetectChangesInComplexProperties runs DetectChanges for complex members
// only.
func (e *EntityEntry) DetectChangesInComplexProperties() bool {
	if e.state&(Unchanged|Modified) == 0 || !e.requiresComplex {
		return false
	}
	changed := false
	for name := range e.complex {
		if e.detect(name) {
			changed = true
		}
	}
	return changed
}

func (e *EntityEntry) detect(member string) bool {
	original, ok := e.original[member]
	if !ok {
		return false
	}
	current, err := e.wrapper.access().getBase(member)
	if err != nil || valuesEqual(original, current) {
		return false
	}
	wasModified := e.modified[member]
	e.setModified(member)
	return !wasModified
}

// AcceptChanges makes the current values the original values. Deleted
// entities are detached.
func (e *EntityEntry) AcceptChanges() {
	switch e.state {
	case Deleted:
		e.osm.remove(e)
		return
	case Detached:
		return
	}
	e.state = Unchanged
	clear(e.modified)
	clear(e.original)
	e.wrapper.TakeSnapshot(e)
}

// Delete marks the entity deleted. Added entities are detached instead.
func (e *EntityEntry) Delete() {
	switch e.state {
	case Added:
		e.osm.remove(e)
	case Unchanged, Modified:
		e.state = Deleted
	}
}

// String implements fmt.Stringer.
func (e *EntityEntry) String() string {
	return fmt.Sprintf("%v %s %s", e.wrapper.IdentityType(), e.key, e.state)
}

// clone copies byte slices so snapshots do not alias the entity.
func clone(v any) any {
	if b, ok := v.([]byte); ok && b != nil {
		return bytes.Clone(b)
	}
	return v
}
