package objects

import (
	"reflect"

	"github.com/syssam/ospace/metadata"
	"github.com/syssam/ospace/objects/dataclasses"
	"github.com/syssam/ospace/objects/proxy"
)

// PropertyAccessorStrategy reads and writes the navigation members backing
// related ends. Ends without a navigation member on the entity are ignored.
type PropertyAccessorStrategy interface {
	NavigationPropertyValue(end dataclasses.RelatedEnd) (any, error)
	SetNavigationPropertyValue(end dataclasses.RelatedEnd, value any) error
	RemoveNavigationPropertyValue(end dataclasses.RelatedEnd, value any) error
	CollectionCreate(end dataclasses.RelatedEnd) (any, error)
	CollectionAdd(end dataclasses.RelatedEnd, value any) error
	CollectionRemove(end dataclasses.RelatedEnd, value any) (bool, error)
}

// ChangeTrackingStrategy connects an entity to the change tracker of its
// state entry.
type ChangeTrackingStrategy interface {
	SetChangeTracker(tracker dataclasses.EntityChangeTracker)
	TakeSnapshot(entry *EntityEntry)
	SetCurrentValue(entry *EntityEntry, m *members, member string, value any) error
}

// EntityKeyStrategy stores the key of an entity.
type EntityKeyStrategy interface {
	EntityKey() *dataclasses.EntityKey
	SetEntityKey(key *dataclasses.EntityKey)
	// EntityKeyFromEntity returns the key stored on the entity itself, or nil.
	EntityKeyFromEntity() *dataclasses.EntityKey
}

// PocoPropertyAccessorStrategy accesses navigation members directly. It
// always uses the base accessors, so proxies neither lazy load nor run the
// relationship-aware setters.
type PocoPropertyAccessorStrategy struct {
	entity *metadata.EntityType
	m      *members
}

var _ PropertyAccessorStrategy = (*PocoPropertyAccessorStrategy)(nil)

// navigation returns the navigation member of end, or nil.
func (s *PocoPropertyAccessorStrategy) navigation(end dataclasses.RelatedEnd) *metadata.Member {
	if s.entity == nil || end == nil {
		return nil
	}
	rel, role := end.RelationshipName(), end.TargetRole()
	for _, m := range s.entity.NavigationMembers() {
		nav := m.Navigation
		if nav.ToRole != role {
			continue
		}
		if nav.Relationship == rel || shortName(nav.Relationship) == rel {
			return m
		}
	}
	return nil
}

// NavigationPropertyValue returns the value of the navigation member of end.
func (s *PocoPropertyAccessorStrategy) NavigationPropertyValue(end dataclasses.RelatedEnd) (any, error) {
	nav := s.navigation(end)
	if nav == nil {
		return nil, nil
	}
	return s.m.getBase(nav.Name)
}

// SetNavigationPropertyValue sets a reference navigation member.
func (s *PocoPropertyAccessorStrategy) SetNavigationPropertyValue(end dataclasses.RelatedEnd, value any) error {
	nav := s.navigation(end)
	if nav == nil {
		return nil
	}
	return s.m.setBase(nav.Name, value)
}

// RemoveNavigationPropertyValue clears a reference navigation member holding
// value, or removes value from a collection navigation member.
func (s *PocoPropertyAccessorStrategy) RemoveNavigationPropertyValue(end dataclasses.RelatedEnd, value any) error {
	nav := s.navigation(end)
	if nav == nil {
		return nil
	}
	if nav.IsCollection() {
		_, err := s.CollectionRemove(end, value)
		return err
	}
	current, err := s.m.getBase(nav.Name)
	if err != nil {
		return err
	}
	if sameInstance(current, value) {
		return s.m.setBase(nav.Name, nil)
	}
	return nil
}

// CollectionCreate returns a new, empty collection for the navigation member
// of end. Proxies that claim the member get the collection managed by end.
func (s *PocoPropertyAccessorStrategy) CollectionCreate(end dataclasses.RelatedEnd) (any, error) {
	nav := s.navigation(end)
	if nav == nil {
		return nil, nil
	}
	if s.m.info != nil {
		if mp, ok := s.m.info.Plan().Member(nav.Name); ok && mp.Claim == proxy.ClaimCollection {
			rel, err := s.m.info.Relationships(s.m.entity)
			if err != nil {
				return nil, err
			}
			return rel.RelationshipManager().RelatedCollection(mp.Relationship, mp.TargetRole), nil
		}
	}
	t, _ := s.m.fieldType(nav.Name)
	if t.Kind() == reflect.Slice {
		return reflect.MakeSlice(t, 0, 0).Interface(), nil
	}
	return &dataclasses.EntityCollection{}, nil
}

// ensure returns the collection of the navigation member of end, creating
// it when it is nil.
func (s *PocoPropertyAccessorStrategy) ensure(nav *metadata.Member, end dataclasses.RelatedEnd) (any, error) {
	current, err := s.m.getBase(nav.Name)
	if err != nil || isSet(current) {
		return current, err
	}
	created, err := s.CollectionCreate(end)
	if err != nil {
		return nil, err
	}
	if err := s.m.setBase(nav.Name, created); err != nil {
		return nil, err
	}
	return created, nil
}

// CollectionAdd adds value to the collection navigation member of end.
func (s *PocoPropertyAccessorStrategy) CollectionAdd(end dataclasses.RelatedEnd, value any) error {
	nav := s.navigation(end)
	if nav == nil {
		return nil
	}
	coll, err := s.ensure(nav, end)
	if err != nil {
		return err
	}
	if c, ok := coll.(dataclasses.Collection); ok {
		c.Add(value)
		return nil
	}
	items := reflect.ValueOf(coll)
	for i := 0; i < items.Len(); i++ {
		if sameInstance(items.Index(i).Interface(), value) {
			return nil
		}
	}
	v, err := convert(value, items.Type().Elem())
	if err != nil {
		return err
	}
	return s.m.setBase(nav.Name, reflect.Append(items, v).Interface())
}

// CollectionRemove removes value from the collection navigation member of end.
func (s *PocoPropertyAccessorStrategy) CollectionRemove(end dataclasses.RelatedEnd, value any) (bool, error) {
	nav := s.navigation(end)
	if nav == nil {
		return false, nil
	}
	coll, err := s.m.getBase(nav.Name)
	if err != nil || !isSet(coll) {
		return false, err
	}
	if c, ok := coll.(dataclasses.Collection); ok {
		return c.Remove(value), nil
	}
	items := reflect.ValueOf(coll)
	for i := 0; i < items.Len(); i++ {
		if sameInstance(items.Index(i).Interface(), value) {
			rest := reflect.AppendSlice(items.Slice(0, i), items.Slice(i+1, items.Len()))
			return true, s.m.setBase(nav.Name, rest.Interface())
		}
	}
	return false, nil
}

// EntityWithChangeTrackerStrategy hands the change tracker to an entity that
// reports its own member changes, natively or through its proxy.
type EntityWithChangeTrackerStrategy struct {
	target dataclasses.EntityWithChangeTracker
}

var _ ChangeTrackingStrategy = (*EntityWithChangeTrackerStrategy)(nil)

// SetChangeTracker implements ChangeTrackingStrategy.
func (s *EntityWithChangeTrackerStrategy) SetChangeTracker(tracker dataclasses.EntityChangeTracker) {
	s.target.SetChangeTracker(tracker)
}

// TakeSnapshot snapshots complex members only, when the entry needs it.
func (s *EntityWithChangeTrackerStrategy) TakeSnapshot(entry *EntityEntry) {
	if entry != nil && entry.RequiresComplexChangeTracking() {
		entry.TakeSnapshot(true)
	}
}

// SetCurrentValue writes the member through its notifying setter. Members
// whose proxy setter does not notify are reported to entry directly.
func (s *EntityWithChangeTrackerStrategy) SetCurrentValue(entry *EntityEntry, m *members, member string, value any) error {
	if m.info != nil {
		if mp, ok := m.info.Plan().Member(member); ok && mp.Claim == proxy.ClaimScalar {
			return m.set(member, value)
		}
	}
	return notifySet(entry, m, member, value)
}

// SnapshotChangeTrackingStrategy detects changes by comparing members with
// the snapshot taken when the entity was attached. It is stateless and shared.
type SnapshotChangeTrackingStrategy struct{}

var _ ChangeTrackingStrategy = snapshotStrategy

var snapshotStrategy = &SnapshotChangeTrackingStrategy{}

// SetChangeTracker is a no-op.
func (*SnapshotChangeTrackingStrategy) SetChangeTracker(dataclasses.EntityChangeTracker) {}

// TakeSnapshot records the original values of every member.
func (*SnapshotChangeTrackingStrategy) TakeSnapshot(entry *EntityEntry) {
	if entry != nil {
		entry.TakeSnapshot(false)
	}
}

// SetCurrentValue writes the member and reports the change when the value
// differs.
func (*SnapshotChangeTrackingStrategy) SetCurrentValue(entry *EntityEntry, m *members, member string, value any) error {
	current, err := m.getBase(member)
	if err != nil {
		return err
	}
	if valuesEqual(current, value) {
		return nil
	}
	return notifySet(entry, m, member, value)
}

// notifySet reports the change of member to entry around a base write.
func notifySet(entry *EntityEntry, m *members, member string, value any) error {
	if entry != nil {
		entry.EntityMemberChanging(member)
	}
	if err := m.setBase(member, value); err != nil {
		return err
	}
	if entry != nil {
		entry.EntityMemberChanged(member)
	}
	return nil
}

// EntityWithKeyStrategy keeps the key on an entity that stores its own.
type EntityWithKeyStrategy struct {
	holder dataclasses.EntityWithKey
}

var _ EntityKeyStrategy = (*EntityWithKeyStrategy)(nil)

// EntityKey implements EntityKeyStrategy.
func (s *EntityWithKeyStrategy) EntityKey() *dataclasses.EntityKey { return s.holder.EntityKey() }

// SetEntityKey implements EntityKeyStrategy.
func (s *EntityWithKeyStrategy) SetEntityKey(key *dataclasses.EntityKey) { s.holder.SetEntityKey(key) }

// EntityKeyFromEntity implements EntityKeyStrategy.
func (s *EntityWithKeyStrategy) EntityKeyFromEntity() *dataclasses.EntityKey {
	return s.holder.EntityKey()
}

// PocoEntityKeyStrategy stores the key itself, so there is one per instance.
type PocoEntityKeyStrategy struct {
	key *dataclasses.EntityKey
}

var _ EntityKeyStrategy = (*PocoEntityKeyStrategy)(nil)

// EntityKey implements EntityKeyStrategy.
func (s *PocoEntityKeyStrategy) EntityKey() *dataclasses.EntityKey { return s.key }

// SetEntityKey implements EntityKeyStrategy.
func (s *PocoEntityKeyStrategy) SetEntityKey(key *dataclasses.EntityKey) { s.key = key }

// EntityKeyFromEntity returns nil; the entity does not store a key.
func (*PocoEntityKeyStrategy) EntityKeyFromEntity() *dataclasses.EntityKey { return nil }

func shortName(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i+1:]
		}
	}
	return name
}

func valuesEqual(a, b any) bool {
	if ab, ok := a.([]byte); ok {
		bb, ok := b.([]byte)
		return ok && proxy.BytesEqual(ab, bb)
	}
	return reflect.DeepEqual(a, b)
}
