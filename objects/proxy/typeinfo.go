package proxy

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/ospace"
	"github.com/syssam/ospace/metadata"
	"github.com/syssam/ospace/objects/dataclasses"
)

// Field positions of every runtime proxy struct.
const (
	baseField  = 0
	stateField = 1
)

// ProxyTypeInfo is the published information about one runtime proxy type.
// Proxy instances are pointers to a struct synthesized with reflect.StructOf:
//
//	struct {
//		Base  T      `ospace:"base" hash:"..." module:"..."`
//		State *State
//	}
//
// The struct has no methods of its own, so every intercepted access goes
// through Get and Set.
type ProxyTypeInfo struct {
	proxyType    reflect.Type
	entity       *metadata.EntityType
	plan         *Plan
	module       uuid.UUID
	caps         *CapabilityTable
	associations map[string]*metadata.AssociationType
	equal        map[string]Comparer
}

// ProxyType returns the synthesized struct type. Instances are pointers to it.
func (info *ProxyTypeInfo) ProxyType() reflect.Type { return info.proxyType }

// BaseType returns the entity's Go type.
func (info *ProxyTypeInfo) BaseType() reflect.Type { return info.plan.Base.Type }

// EntityType returns the description the proxy was built from.
func (info *ProxyTypeInfo) EntityType() *metadata.EntityType { return info.entity }

// Plan returns the interception plan of the proxy.
func (info *ProxyTypeInfo) Plan() *Plan { return info.plan }

// Module returns the identity of the generation module hosting the type.
func (info *ProxyTypeInfo) Module() uuid.UUID { return info.module }

// Capabilities returns the capability table of the proxy type.
func (info *ProxyTypeInfo) Capabilities() *CapabilityTable { return info.caps }

// DataContract returns the data-contract marker replicated on the proxy, or nil.
func (info *ProxyTypeInfo) DataContract() *metadata.DataContract { return info.plan.DataContract }

// ImplementsChangeTracker reports whether instances report member changes,
// natively or through the proxy.
func (info *ProxyTypeInfo) ImplementsChangeTracker() bool {
	return info.plan.Base.HasChangeTracker || info.plan.ImplementChangeTracker
}

// ImplementsRelationships reports whether instances expose a relationship
// manager. Every proxy state carries one.
func (info *ProxyTypeInfo) ImplementsRelationships() bool { return true }

// ValidateType checks that et describes the proxy's entity the same way.
func (info *ProxyTypeInfo) ValidateType(et *metadata.EntityType) error {
	if et != info.entity && et.HashedDescription() != info.entity.HashedDescription() {
		return ospace.NewDuplicateTypeError(info.BaseType(), info.entity.FullName(),
			info.entity.HashedDescription(), et.HashedDescription())
	}
	return nil
}

// New returns a new proxy instance.
func (info *ProxyTypeInfo) New() any {
	v := reflect.New(info.proxyType)
	info.attach(v)
	return v.Interface()
}

func (info *ProxyTypeInfo) attach(v reflect.Value) *State {
	st := &State{caps: info.caps, info: info, self: v.Interface()}
	v.Elem().Field(stateField).Set(reflect.ValueOf(st))
	return st
}

func (info *ProxyTypeInfo) value(p any) (reflect.Value, error) {
	v := reflect.ValueOf(p)
	if !v.IsValid() || v.Kind() != reflect.Pointer || v.Type().Elem() != info.proxyType || v.IsNil() {
		return reflect.Value{}, fmt.Errorf("%w: %T is not an instance of proxy %s", ospace.ErrInvalidOperation, p, info.entity.FullName())
	}
	return v, nil
}

// Base returns a pointer to the base value embedded in p.
func (info *ProxyTypeInfo) Base(p any) (any, error) {
	v, err := info.value(p)
	if err != nil {
		return nil, err
	}
	return v.Elem().Field(baseField).Addr().Interface(), nil
}

// State returns the proxy-added state of p, attaching one to instances that
// were not created by New.
func (info *ProxyTypeInfo) State(p any) (*State, error) {
	v, err := info.value(p)
	if err != nil {
		return nil, err
	}
	if st, _ := v.Elem().Field(stateField).Interface().(*State); st != nil {
		return st, nil
	}
	return info.attach(v), nil
}

// EntityWrapper returns the wrapper registered on p.
func (info *ProxyTypeInfo) EntityWrapper(p any) (dataclasses.Owner, error) {
	st, err := info.State(p)
	if err != nil {
		return nil, err
	}
	return st.EntityWrapper()
}

// SetEntityWrapper registers w on p. The wrapper must wrap p.
func (info *ProxyTypeInfo) SetEntityWrapper(p any, w dataclasses.Owner) error {
	st, err := info.State(p)
	if err != nil {
		return err
	}
	return st.SetEntityWrapper(w)
}

// ChangeTracker returns the object accepting a change tracker for p: the
// base value when it tracks changes natively, the proxy state when the proxy
// does.
func (info *ProxyTypeInfo) ChangeTracker(p any) (dataclasses.EntityWithChangeTracker, bool) {
	if info.plan.Base.HasChangeTracker {
		base, err := info.Base(p)
		if err != nil {
			return nil, false
		}
		ct, ok := base.(dataclasses.EntityWithChangeTracker)
		return ct, ok
	}
	if !info.plan.ImplementChangeTracker {
		return nil, false
	}
	st, err := info.State(p)
	if err != nil {
		return nil, false
	}
	return st, true
}

// KeyHolder returns the base value of p when it stores its own key.
func (info *ProxyTypeInfo) KeyHolder(p any) (dataclasses.EntityWithKey, bool) {
	if !info.plan.Base.HasKey {
		return nil, false
	}
	base, err := info.Base(p)
	if err != nil {
		return nil, false
	}
	k, ok := base.(dataclasses.EntityWithKey)
	return k, ok
}

// Relationships returns the relationship capability of p.
func (info *ProxyTypeInfo) Relationships(p any) (dataclasses.EntityWithRelationships, error) {
	return info.State(p)
}

func (info *ProxyTypeInfo) member(name string) (*MemberPlan, error) {
	mp, ok := info.plan.Member(name)
	if !ok || mp.Field == nil {
		return nil, fmt.Errorf("%w: member %q of %s", ospace.ErrNotFound, name, info.entity.FullName())
	}
	return mp, nil
}

// Get reads member through the proxy. Lazy-loaded members run their
// interceptor and read the field again when a load happened.
func (info *ProxyTypeInfo) Get(p any, member string) (any, error) {
	v, err := info.value(p)
	if err != nil {
		return nil, err
	}
	mp, err := info.member(member)
	if err != nil {
		return nil, err
	}
	base := v.Elem().Field(baseField)
	value := base.FieldByIndex(mp.Field.Index).Interface()
	if !mp.LazyLoad {
		return value, nil
	}
	st, err := info.State(p)
	if err != nil {
		return nil, err
	}
	if !st.Intercept(member, value) {
		value = base.FieldByIndex(mp.Field.Index).Interface()
	}
	return value, nil
}

// Set writes member through the proxy. Claimed scalar setters notify the
// change tracker, skipping key members set to their current value. Claimed
// collection setters only accept the collection already managed by the
// related end.
func (info *ProxyTypeInfo) Set(p any, member string, value any) error {
	v, err := info.value(p)
	if err != nil {
		return err
	}
	mp, err := info.member(member)
	if err != nil {
		return err
	}
	field := v.Elem().Field(baseField).FieldByIndex(mp.Field.Index)
	rv, err := assignable(value, field.Type())
	if err != nil {
		return fmt.Errorf("proxy: set %s.%s: %w", info.entity.FullName(), member, err)
	}
	st, err := info.State(p)
	if err != nil {
		return err
	}

	switch mp.Claim {
	case ClaimScalar:
		if mp.IsKey && info.equal[member](field, rv) {
			return nil
		}
		defer st.ResetFKSetter()
		st.MemberChanging(member)
		field.Set(rv)
		st.MemberChanged(member)
	case ClaimCollection:
		end := st.RelationshipManager().RelatedCollection(mp.Relationship, mp.TargetRole)
		if c, ok := value.(*dataclasses.EntityCollection); !ok || c != end {
			return ospace.NewCollectionReplaceError(member, info.entity.FullName())
		}
		field.Set(rv)
	case ClaimReference:
		st.RelationshipManager().RelatedReference(mp.Relationship, mp.TargetRole).SetValue(value)
		field.Set(rv)
	default:
		field.Set(rv)
	}
	return nil
}

// ContainsBaseGetter reports whether member has an intercepted getter with an
// unintercepted counterpart.
func (info *ProxyTypeInfo) ContainsBaseGetter(member string) bool {
	mp, ok := info.plan.Member(member)
	return ok && mp.BaseGetter
}

// ContainsBaseSetter reports whether member has an intercepted setter with an
// unintercepted counterpart.
func (info *ProxyTypeInfo) ContainsBaseSetter(member string) bool {
	mp, ok := info.plan.Member(member)
	return ok && mp.BaseSetter
}

// BaseGetter reads the base field of member without interception.
func (info *ProxyTypeInfo) BaseGetter(p any, member string) (any, error) {
	v, err := info.value(p)
	if err != nil {
		return nil, err
	}
	mp, err := info.member(member)
	if err != nil {
		return nil, err
	}
	return v.Elem().Field(baseField).FieldByIndex(mp.Field.Index).Interface(), nil
}

// BaseSetter writes the base field of member without interception.
func (info *ProxyTypeInfo) BaseSetter(p any, member string, value any) error {
	v, err := info.value(p)
	if err != nil {
		return err
	}
	mp, err := info.member(member)
	if err != nil {
		return err
	}
	field := v.Elem().Field(baseField).FieldByIndex(mp.Field.Index)
	rv, err := assignable(value, field.Type())
	if err != nil {
		return fmt.Errorf("proxy: set base %s.%s: %w", info.entity.FullName(), member, err)
	}
	field.Set(rv)
	return nil
}

// InitializeCollections assigns the related collections managed by the
// relationship manager to the collection-valued members of p.
func (info *ProxyTypeInfo) InitializeCollections(p any) error {
	st, err := info.State(p)
	if err != nil {
		return err
	}
	for _, mp := range info.plan.CollectionMembers() {
		end := st.RelationshipManager().RelatedCollection(mp.Relationship, mp.TargetRole)
		if err := info.Set(p, mp.Name, end); err != nil {
			return err
		}
	}
	return nil
}

// NavigationAssociationType returns the association type of a relationship
// reachable from the proxy, by full or short name.
func (info *ProxyTypeInfo) NavigationAssociationType(relationship string) (*metadata.AssociationType, bool) {
	if a, ok := info.associations[relationship]; ok {
		return a, true
	}
	for _, a := range info.associations {
		if a.Name == relationship {
			return a, true
		}
	}
	return nil, false
}

// AssociationTypes returns the association types reachable from the proxy.
func (info *ProxyTypeInfo) AssociationTypes() []*metadata.AssociationType {
	out := make([]*metadata.AssociationType, 0, len(info.associations))
	for _, a := range info.associations {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out
}

type envelope struct {
	Base          msgpack.RawMessage   `msgpack:"base"`
	Relationships dataclasses.Snapshot `msgpack:"rel"`
}

// Marshal serializes p: the base value through its own msgpack hooks and the
// relationship manager added by the proxy. The change tracker and the
// wrapper back-reference are not serialized.
func (info *ProxyTypeInfo) Marshal(p any) ([]byte, error) {
	if !info.plan.Serializable {
		return nil, ospace.NewConfigurationError(info.entity.FullName(),
			"base type does not implement msgpack.CustomEncoder and msgpack.CustomDecoder", nil)
	}
	base, err := info.Base(p)
	if err != nil {
		return nil, err
	}
	st, err := info.State(p)
	if err != nil {
		return nil, err
	}
	raw, err := msgpack.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("proxy: marshal base of %s: %w", info.entity.FullName(), err)
	}
	var snap dataclasses.Snapshot
	if st.rm != nil {
		snap = st.rm.Snapshot()
	}
	return msgpack.Marshal(&envelope{Base: raw, Relationships: snap})
}

// Unmarshal returns a new proxy instance decoded from data.
func (info *ProxyTypeInfo) Unmarshal(data []byte) (any, error) {
	if !info.plan.Serializable {
		return nil, ospace.NewConfigurationError(info.entity.FullName(),
			"base type does not implement msgpack.CustomEncoder and msgpack.CustomDecoder", nil)
	}
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("proxy: unmarshal %s: %w", info.entity.FullName(), err)
	}
	p := info.New()
	base, _ := info.Base(p)
	if err := msgpack.Unmarshal(env.Base, base); err != nil {
		return nil, fmt.Errorf("proxy: unmarshal base of %s: %w", info.entity.FullName(), err)
	}
	st, _ := info.State(p)
	st.RelationshipManager().Restore(env.Relationships)
	info.restoreEnds(p, st)
	if err := info.InitializeCollections(p); err != nil {
		return nil, err
	}
	return p, nil
}

// restoreEnds reconciles the restored ends with the decoded base value.
// Collection items are not serialized, so collection ends load again on
// first access. Reference ends pick up the value the base decoded.
func (info *ProxyTypeInfo) restoreEnds(p any, st *State) {
	rm := st.RelationshipManager()
	for i := range info.plan.Members {
		mp := &info.plan.Members[i]
		if mp.Member == nil || !mp.Member.IsNavigation() || mp.Field == nil {
			continue
		}
		if mp.Member.IsCollection() {
			if end := rm.RelatedCollection(mp.Relationship, mp.TargetRole); end.Len() == 0 {
				end.SetLoaded(false)
			}
			continue
		}
		if v, err := info.BaseGetter(p, mp.Name); err == nil && !isNil(v) {
			rm.RelatedReference(mp.Relationship, mp.TargetRole).SetValue(v)
		}
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

func assignable(value any, t reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(value)
	switch {
	case rv.Type().AssignableTo(t):
		return rv, nil
	case numeric(rv.Kind()) && numeric(t.Kind()):
		if cv, ok := ConvertNumber(rv, t); ok {
			return cv, nil
		}
		return reflect.Value{}, fmt.Errorf("%w: %v does not fit in %s", ospace.ErrInvalidOperation, value, t)
	}
	return reflect.Value{}, fmt.Errorf("%w: cannot assign %s to %s", ospace.ErrInvalidOperation, rv.Type(), t)
}

func numeric(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}

// ConvertNumber converts the numeric value rv to the numeric type t. It
// reports false when the value changes on the way: fractions and
// out-of-range values. Conversions between floats only lose precision and
// always succeed.
func ConvertNumber(rv reflect.Value, t reflect.Type) (reflect.Value, bool) {
	from := rv.Kind()
	if isFloat(from) {
		f := rv.Float()
		if isFloat(t.Kind()) {
			return rv.Convert(t), true
		}
		if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
			return reflect.Value{}, false
		}
	}
	cv := rv.Convert(t)
	switch {
	case signed(from) && unsigned(t.Kind()) && rv.Int() < 0:
		return reflect.Value{}, false
	case unsigned(from) && signed(t.Kind()) && cv.Int() < 0:
		return reflect.Value{}, false
	}
	if !cv.Convert(rv.Type()).Equal(rv) {
		return reflect.Value{}, false
	}
	return cv, true
}

func isFloat(k reflect.Kind) bool { return k == reflect.Float32 || k == reflect.Float64 }

func signed(k reflect.Kind) bool { return k >= reflect.Int && k <= reflect.Int64 }

func unsigned(k reflect.Kind) bool { return k >= reflect.Uint && k <= reflect.Uintptr }
