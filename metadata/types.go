package metadata

import (
	"fmt"
	"strings"
)

// Multiplicity of a relationship end.
type Multiplicity int

// Relationship end multiplicities.
const (
	ZeroOrOne Multiplicity = iota
	One
	Many
)

// String returns the textual form used in YAML and in hashed descriptions.
func (m Multiplicity) String() string {
	switch m {
	case ZeroOrOne:
		return "0..1"
	case One:
		return "1"
	case Many:
		return "*"
	default:
		return fmt.Sprintf("Multiplicity(%d)", int(m))
	}
}

// ParseMultiplicity parses the textual form of a multiplicity.
func ParseMultiplicity(s string) (Multiplicity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0..1", "zero_or_one", "optional":
		return ZeroOrOne, nil
	case "1", "one", "required":
		return One, nil
	case "*", "many":
		return Many, nil
	}
	return 0, fmt.Errorf("metadata: unknown multiplicity %q", s)
}

// MemberKind distinguishes scalar properties from navigation properties.
type MemberKind int

// Member kinds.
const (
	PropertyMember MemberKind = iota
	NavigationMember
)

// String implements fmt.Stringer.
func (k MemberKind) String() string {
	if k == NavigationMember {
		return "navigation"
	}
	return "property"
}

// Navigation holds the relationship information of a navigation member.
type Navigation struct {
	// Relationship is the full name of the relationship (association) type.
	Relationship string
	// FromRole is the role name of the declaring entity.
	FromRole string
	// ToRole is the role name of the target entity.
	ToRole string
	// Target is the name of the target entity type.
	Target string
	// ToMultiplicity is the multiplicity of the target end.
	ToMultiplicity Multiplicity
}

// Member is a scalar or navigation member of an entity type.
type Member struct {
	Name string
	Kind MemberKind
	// TypeName is the declared Go type of the member. It is only required
	// for descriptions that are not bound to a Go type (code generation).
	TypeName string
	// Final marks both accessors as not overridable.
	Final bool
	// ReadOnly marks the setter as not overridable.
	ReadOnly bool
	// Navigation is set for navigation members.
	Navigation *Navigation
}

// IsNavigation reports whether the member is a navigation property.
func (m *Member) IsNavigation() bool { return m.Kind == NavigationMember && m.Navigation != nil }

// IsCollection reports whether the member is a collection-valued navigation property.
func (m *Member) IsCollection() bool {
	return m.IsNavigation() && m.Navigation.ToMultiplicity == Many
}

// MemberOption configures a Member.
type MemberOption func(*Member)

// Final marks a member's accessors as not overridable by proxies.
func Final() MemberOption {
	return func(m *Member) { m.Final = true }
}

// ReadOnly marks a member's setter as not overridable by proxies.
func ReadOnly() MemberOption {
	return func(m *Member) { m.ReadOnly = true }
}

// TypeName sets the declared Go type name of a member.
func TypeName(name string) MemberOption {
	return func(m *Member) { m.TypeName = name }
}

// Target sets the target entity type of a navigation member.
func Target(name string) MemberOption {
	return func(m *Member) {
		if m.Navigation != nil {
			m.Navigation.Target = name
		}
	}
}

// Relationship sets the relationship full name of a navigation member.
func Relationship(name string) MemberOption {
	return func(m *Member) {
		if m.Navigation != nil {
			m.Navigation.Relationship = name
		}
	}
}

// Roles sets the from and to role names of a navigation member.
func Roles(from, to string) MemberOption {
	return func(m *Member) {
		if m.Navigation != nil {
			m.Navigation.FromRole = from
			m.Navigation.ToRole = to
		}
	}
}

// DataContract mirrors a data-contract serialization marker on an entity type.
type DataContract struct {
	IsReference bool
}

// AssociationEnd is one end of an association type.
type AssociationEnd struct {
	Role         string
	Type         string
	Multiplicity Multiplicity
}

// AssociationType is a relationship type between two entity types.
type AssociationType struct {
	FullName string
	Name     string
	Ends     [2]AssociationEnd
}

// End returns the end with the given role name.
func (a *AssociationType) End(role string) (AssociationEnd, bool) {
	for _, e := range a.Ends {
		if e.Role == role {
			return e, true
		}
	}
	return AssociationEnd{}, false
}
