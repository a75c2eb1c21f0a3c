package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-openapi/inflect"

	"github.com/syssam/ospace"
)

// EntityType is an immutable description of one entity type.
type EntityType struct {
	name         string
	namespace    string
	typ          reflect.Type
	abstract     bool
	sealed       bool
	members      []*Member
	byName       map[string]*Member
	keys         []string
	dataContract *DataContract
	hash         string
}

// EntityOption configures an EntityType under construction.
type EntityOption func(*EntityType)

// Namespace sets the namespace of the entity type.
func Namespace(ns string) EntityOption {
	return func(et *EntityType) { et.namespace = ns }
}

// Abstract marks the entity type as abstract.
func Abstract() EntityOption {
	return func(et *EntityType) { et.abstract = true }
}

// Sealed marks the entity type as sealed.
func Sealed() EntityOption {
	return func(et *EntityType) { et.sealed = true }
}

// Key declares the key members of the entity type.
func Key(names ...string) EntityOption {
	return func(et *EntityType) { et.keys = append(et.keys, names...) }
}

// WithDataContract marks the entity type with a data-contract serialization marker.
func WithDataContract(isReference bool) EntityOption {
	return func(et *EntityType) { et.dataContract = &DataContract{IsReference: isReference} }
}

// Property declares a scalar member.
func Property(name string, opts ...MemberOption) EntityOption {
	return func(et *EntityType) {
		m := &Member{Name: name, Kind: PropertyMember}
		for _, opt := range opts {
			opt(m)
		}
		et.members = append(et.members, m)
	}
}

// Reference declares a reference-valued navigation member with 0..1 multiplicity.
func Reference(name string, opts ...MemberOption) EntityOption {
	return navigation(name, ZeroOrOne, opts)
}

// RequiredReference declares a reference-valued navigation member with multiplicity 1.
func RequiredReference(name string, opts ...MemberOption) EntityOption {
	return navigation(name, One, opts)
}

// Collection declares a collection-valued navigation member.
func Collection(name string, opts ...MemberOption) EntityOption {
	return navigation(name, Many, opts)
}

func navigation(name string, mult Multiplicity, opts []MemberOption) EntityOption {
	return func(et *EntityType) {
		m := &Member{
			Name:       name,
			Kind:       NavigationMember,
			Navigation: &Navigation{ToMultiplicity: mult},
		}
		for _, opt := range opts {
			opt(m)
		}
		et.members = append(et.members, m)
	}
}

// NewEntityType builds and validates an entity type description. The type may
// be nil for descriptions that are only used for code generation. Pointer types
// are dereferenced.
func NewEntityType(name string, typ reflect.Type, opts ...EntityOption) (*EntityType, error) {
	if name == "" {
		return nil, ospace.NewConfigurationError("entity type", "name is required", nil)
	}
	if typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	et := &EntityType{name: name, typ: typ}
	for _, opt := range opts {
		opt(et)
	}
	et.byName = make(map[string]*Member, len(et.members))
	for _, m := range et.members {
		if m.Name == "" {
			return nil, ospace.NewConfigurationError(et.FullName(), "member name is required", nil)
		}
		if _, ok := et.byName[m.Name]; ok {
			return nil, ospace.NewConfigurationError(et.FullName(), fmt.Sprintf("duplicate member %q", m.Name), nil)
		}
		et.byName[m.Name] = m
		if m.Navigation != nil {
			et.defaultNavigation(m)
		}
	}
	seen := make(map[string]struct{}, len(et.keys))
	for _, k := range et.keys {
		m, ok := et.byName[k]
		switch {
		case !ok:
			return nil, ospace.NewConfigurationError(et.FullName(), fmt.Sprintf("key member %q is not declared", k), ospace.ErrNotFound)
		case m.IsNavigation():
			return nil, ospace.NewConfigurationError(et.FullName(), fmt.Sprintf("key member %q is a navigation property", k), nil)
		}
		if _, dup := seen[k]; dup {
			return nil, ospace.NewConfigurationError(et.FullName(), fmt.Sprintf("key member %q declared twice", k), nil)
		}
		seen[k] = struct{}{}
	}
	et.hash = et.describe()
	return et, nil
}

// MustEntityType is like NewEntityType but panics on error.
func MustEntityType(name string, typ reflect.Type, opts ...EntityOption) *EntityType {
	et, err := NewEntityType(name, typ, opts...)
	if err != nil {
		panic(err)
	}
	return et
}

func (et *EntityType) defaultNavigation(m *Member) {
	nav := m.Navigation
	if nav.Target == "" {
		target := m.Name
		if nav.ToMultiplicity == Many {
			target = inflect.Singularize(target)
		}
		nav.Target = inflect.Camelize(target)
	}
	if nav.Relationship == "" {
		nav.Relationship = et.name + "_" + m.Name
		if et.namespace != "" {
			nav.Relationship = et.namespace + "." + nav.Relationship
		}
	}
	if nav.FromRole == "" {
		nav.FromRole = et.name
	}
	if nav.ToRole == "" {
		nav.ToRole = m.Name
	}
}

// describe renders the canonical form of the description and hashes it.
func (et *EntityType) describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "entity %s abstract=%t sealed=%t\n", et.FullName(), et.abstract, et.sealed)
	if et.dataContract != nil {
		fmt.Fprintf(&b, "datacontract reference=%t\n", et.dataContract.IsReference)
	}
	for _, m := range et.members {
		fmt.Fprintf(&b, "%s %s type=%s final=%t readonly=%t", m.Kind, m.Name, m.TypeName, m.Final, m.ReadOnly)
		if nav := m.Navigation; nav != nil {
			fmt.Fprintf(&b, " rel=%s from=%s to=%s target=%s mult=%s",
				nav.Relationship, nav.FromRole, nav.ToRole, nav.Target, nav.ToMultiplicity)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "key %s\n", strings.Join(et.keys, ","))
	sum := sha256.Sum256([]byte(b.String()))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// Name returns the short name of the entity type.
func (et *EntityType) Name() string { return et.name }

// Namespace returns the namespace of the entity type.
func (et *EntityType) Namespace() string { return et.namespace }

// FullName returns the namespace-qualified name of the entity type.
func (et *EntityType) FullName() string {
	if et.namespace == "" {
		return et.name
	}
	return et.namespace + "." + et.name
}

// Type returns the Go type described, or nil for declared-only descriptions.
func (et *EntityType) Type() reflect.Type { return et.typ }

// Abstract reports whether the entity type is abstract.
func (et *EntityType) Abstract() bool { return et.abstract }

// Sealed reports whether the entity type is sealed.
func (et *EntityType) Sealed() bool { return et.sealed }

// DataContract returns the data-contract marker, or nil.
func (et *EntityType) DataContract() *DataContract { return et.dataContract }

// HashedDescription returns the uppercase hex SHA-256 of the canonical description.
func (et *EntityType) HashedDescription() string { return et.hash }

// Members returns the members in declaration order.
func (et *EntityType) Members() []*Member { return et.members }

// Member returns the member with the given name.
func (et *EntityType) Member(name string) (*Member, bool) {
	m, ok := et.byName[name]
	return m, ok
}

// KeyMembers returns the names of the key members.
func (et *EntityType) KeyMembers() []string { return et.keys }

// IsKeyMember reports whether name is a key member.
func (et *EntityType) IsKeyMember(name string) bool {
	for _, k := range et.keys {
		if k == name {
			return true
		}
	}
	return false
}

// NavigationMembers returns the navigation members in declaration order.
func (et *EntityType) NavigationMembers() []*Member {
	var navs []*Member
	for _, m := range et.members {
		if m.IsNavigation() {
			navs = append(navs, m)
		}
	}
	return navs
}

// String implements fmt.Stringer.
func (et *EntityType) String() string { return et.FullName() }
