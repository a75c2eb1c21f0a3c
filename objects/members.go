package objects

import (
	"fmt"
	"reflect"
	"time"

	"github.com/syssam/ospace"
	"github.com/syssam/ospace/objects/proxy"
)

// members reads and writes the members of one entity instance. Proxy
// members go through the proxy type information; the base accessors never
// run interception.
type members struct {
	entity any
	info   *proxy.ProxyTypeInfo
	// value is the addressable struct holding the members, the base value
	// for proxies.
	value reflect.Value
}

func newMembers(entity any, info *proxy.ProxyTypeInfo) (*members, error) {
	m := &members{entity: entity, info: info}
	target := entity
	if info != nil {
		base, err := info.Base(entity)
		if err != nil {
			return nil, err
		}
		target = base
	}
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: entity %T is not a pointer to a struct", ospace.ErrInvalidOperation, entity)
	}
	m.value = v.Elem()
	return m, nil
}

// identity returns the entity's Go type, the base type for proxies.
func (m *members) identity() reflect.Type { return m.value.Type() }

func (m *members) field(name string) (reflect.Value, error) {
	f := m.value.FieldByName(name)
	if !f.IsValid() {
		return reflect.Value{}, fmt.Errorf("%w: member %q of %v", ospace.ErrNotFound, name, m.identity())
	}
	return f, nil
}

// has reports whether the entity has a member with the given name.
func (m *members) has(name string) bool {
	_, ok := m.value.Type().FieldByName(name)
	return ok
}

// fieldType returns the Go type of a member.
func (m *members) fieldType(name string) (reflect.Type, bool) {
	f, ok := m.value.Type().FieldByName(name)
	if !ok {
		return nil, false
	}
	return f.Type, true
}

// get reads a member the way user code would, running lazy loading on proxies.
func (m *members) get(name string) (any, error) {
	if m.info != nil {
		if _, ok := m.info.Plan().Member(name); ok {
			return m.info.Get(m.entity, name)
		}
	}
	return m.getBase(name)
}

// set writes a member the way user code would, running the proxy setter.
func (m *members) set(name string, value any) error {
	if m.info != nil {
		if _, ok := m.info.Plan().Member(name); ok {
			return m.info.Set(m.entity, name, value)
		}
	}
	return m.setBase(name, value)
}

func (m *members) getBase(name string) (any, error) {
	f, err := m.field(name)
	if err != nil {
		return nil, err
	}
	return f.Interface(), nil
}

func (m *members) setBase(name string, value any) error {
	f, err := m.field(name)
	if err != nil {
		return err
	}
	rv, err := convert(value, f.Type())
	if err != nil {
		return fmt.Errorf("objects: set %v.%s: %w", m.identity(), name, err)
	}
	f.Set(rv)
	return nil
}

var timeType = reflect.TypeOf(time.Time{})

// convert converts value to t. Beyond Go assignability it accepts the
// conversions database drivers need: lossless conversions between numeric
// kinds, integers to bool, between strings and byte slices, and values to
// pointers of their converted type. Integers never convert to strings.
func convert(value any, t reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(t), nil
	}
	if base, ok := proxy.BaseOf(value); ok && !reflect.TypeOf(value).AssignableTo(t) && reflect.TypeOf(base).AssignableTo(t) {
		return reflect.ValueOf(base), nil
	}
	rv := reflect.ValueOf(value)
	switch from := rv.Type(); {
	case from.AssignableTo(t):
		return rv, nil
	case numeric(from.Kind()) && numeric(t.Kind()):
		if cv, ok := proxy.ConvertNumber(rv, t); ok {
			return cv, nil
		}
		return reflect.Value{}, fmt.Errorf("%w: %v does not fit in %s", ospace.ErrInvalidOperation, value, t)
	case integer(from.Kind()) && t.Kind() == reflect.Bool:
		return reflect.ValueOf(rv.Convert(reflect.TypeOf(int64(0))).Int() != 0).Convert(t), nil
	case from.Kind() == reflect.String && isBytes(t), isBytes(from) && t.Kind() == reflect.String:
		return rv.Convert(t), nil
	case from.Kind() == reflect.String && t == timeType:
		ts, err := time.Parse(time.RFC3339Nano, rv.String())
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(ts), nil
	case from.Kind() == t.Kind() && from.ConvertibleTo(t):
		return rv.Convert(t), nil
	case t.Kind() == reflect.Pointer && from.Kind() != reflect.Pointer:
		elem, err := convert(value, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(elem)
		return p, nil
	}
	return reflect.Value{}, fmt.Errorf("%w: cannot assign %s to %s", ospace.ErrInvalidOperation, rv.Type(), t)
}

func numeric(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}

func integer(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Uint64
}

func isBytes(t reflect.Type) bool {
	return t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8
}

// isSet reports whether v holds a non-nil value. Typed nil pointers, maps,
// slices and interfaces count as unset.
func isSet(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	}
	return true
}

// instance returns the value identifying entity: the embedded base value
// for proxies, the entity itself otherwise.
func instance(entity any) any {
	if base, ok := proxy.BaseOf(entity); ok {
		return base
	}
	return entity
}

// sameInstance reports whether a and b are the same entity. A proxy is the
// same instance as its embedded base value.
func sameInstance(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	a, b = instance(a), instance(b)
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	return va.Type() == vb.Type() && va.Kind() == reflect.Pointer && va.Pointer() == vb.Pointer()
}
