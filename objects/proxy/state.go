package proxy

import (
	"reflect"

	"github.com/syssam/ospace"
	"github.com/syssam/ospace/objects/dataclasses"
)

// State holds the fields a proxy adds to its base type. Only the
// relationship manager is serialized.
type State struct {
	caps    *CapabilityTable
	info    *ProxyTypeInfo
	self    any
	rm      *dataclasses.RelationshipManager
	tracker dataclasses.EntityChangeTracker
	wrapper dataclasses.Owner
}

var (
	_ dataclasses.EntityWithRelationships = (*State)(nil)
	_ dataclasses.EntityWithChangeTracker = (*State)(nil)
)

// NewState returns the state of the proxy instance self, backed by caps.
// Generated proxy types call it from their constructor.
func NewState(self any, caps *CapabilityTable) *State {
	return &State{caps: caps, self: self}
}

// RelationshipManager returns the proxy's relationship manager, creating an
// entity-owned one on first use.
func (s *State) RelationshipManager() *dataclasses.RelationshipManager {
	if s.rm == nil {
		s.rm = dataclasses.Create(s.self)
	}
	return s.rm
}

// SetChangeTracker sets the tracker notified by intercepted scalar setters.
func (s *State) SetChangeTracker(tracker dataclasses.EntityChangeTracker) {
	s.tracker = tracker
}

// ChangeTracker returns the current change tracker, or nil.
func (s *State) ChangeTracker() dataclasses.EntityChangeTracker { return s.tracker }

// MemberChanging notifies the change tracker, if any.
func (s *State) MemberChanging(member string) {
	if s.tracker != nil {
		s.tracker.EntityMemberChanging(member)
	}
}

// MemberChanged notifies the change tracker, if any.
func (s *State) MemberChanged(member string) {
	if s.tracker != nil {
		s.tracker.EntityMemberChanged(member)
	}
}

// ResetFKSetter clears the foreign-key setter guard of the owning context.
func (s *State) ResetFKSetter() {
	if reset := s.caps.resetFK; reset != nil {
		reset(s.self)
	}
}

// Intercept runs the lazy-load interceptor of member. Without an interceptor
// the value is kept.
func (s *State) Intercept(member string, value any) bool {
	if fn := s.caps.interceptors[member]; fn != nil {
		return fn(s.self, value)
	}
	return true
}

// CompareBytes compares byte slice key values with the comparer of the
// proxy type.
func (s *State) CompareBytes(a, b []byte) bool {
	if s.caps.compareBytes == nil {
		return BytesEqual(a, b)
	}
	return s.caps.compareBytes(a, b)
}

// EntityWrapper returns the wrapper registered on the proxy. A wrapper that
// wraps another entity is an identity error.
func (s *State) EntityWrapper() (dataclasses.Owner, error) {
	if s.wrapper != nil && !sameInstance(s.wrapper.Entity(), s.self) {
		return nil, ospace.NewIdentityError("proxy wrapper", reflect.TypeOf(s.self),
			"the registered wrapper wraps a different entity")
	}
	return s.wrapper, nil
}

// SetEntityWrapper registers the wrapper of the proxy. The wrapper must wrap
// this proxy instance.
func (s *State) SetEntityWrapper(w dataclasses.Owner) error {
	if w != nil && !sameInstance(w.Entity(), s.self) {
		return ospace.NewIdentityError("proxy wrapper", reflect.TypeOf(s.self),
			"the wrapper does not wrap this proxy instance")
	}
	s.wrapper = w
	return nil
}

// Info returns the type information of a runtime proxy, or nil for
// generated proxy types.
func (s *State) Info() *ProxyTypeInfo { return s.info }

func sameInstance(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	return va.Type() == vb.Type() && va.Kind() == reflect.Pointer && va.Pointer() == vb.Pointer()
}
