package proxy

import "github.com/syssam/ospace/metadata"

// Claim is the kind of setter interception planned for a member.
type Claim int

// Setter claims.
const (
	// ClaimNone leaves the setter to the base type.
	ClaimNone Claim = iota
	// ClaimScalar wraps the setter with change notification.
	ClaimScalar
	// ClaimReference routes the setter through the related reference.
	ClaimReference
	// ClaimCollection guards the setter with the related collection identity check.
	ClaimCollection
)

// String implements fmt.Stringer.
func (c Claim) String() string {
	switch c {
	case ClaimScalar:
		return "scalar"
	case ClaimReference:
		return "reference"
	case ClaimCollection:
		return "collection"
	default:
		return "none"
	}
}

// MemberPlan is the interception decision for one member.
type MemberPlan struct {
	Name  string
	Claim Claim
	// LazyLoad reports whether the getter is intercepted for lazy loading.
	LazyLoad bool
	// IsKey reports whether the member is part of the entity key.
	IsKey    bool
	Equality EqualityClass
	// Relationship and TargetRole identify the related end of navigation members.
	Relationship string
	TargetRole   string
	// BaseGetter and BaseSetter report whether an unintercepted accessor
	// must be exposed next to the intercepted one.
	BaseGetter bool
	BaseSetter bool

	Member *metadata.Member
	Field  *BaseMember
}

// Intercepted reports whether any accessor of the member is intercepted.
func (m *MemberPlan) Intercepted() bool { return m.Claim != ClaimNone || m.LazyLoad }

// Plan is the pure output of the interception analysis of one entity type.
// The runtime builder and the source generator both consume it.
type Plan struct {
	Entity  *metadata.EntityType
	Base    *BaseType
	Members []MemberPlan

	// ImplementChangeTracker is set when the proxy reports member changes
	// on behalf of the base type.
	ImplementChangeTracker bool
	// ImplementRelationships is set when every member was claimed by the
	// relationship-aware implementor.
	ImplementRelationships bool
	// Serializable is set when the base type has its own msgpack hooks.
	Serializable bool
	// DataContract is copied from the entity type unless the base type is
	// serializable.
	DataContract *metadata.DataContract
}

// CanProxyType reports whether a proxy may derive from base.
func CanProxyType(et *metadata.EntityType, base *BaseType) bool {
	return base.Exported &&
		base.Struct &&
		!et.Sealed() &&
		!et.Abstract() &&
		!base.HasRelationships
}

// NewPlan decides, member by member, which accessors a proxy of et must
// intercept. The relationship-aware implementor is all-or-nothing: when one
// member cannot be claimed no member is claimed.
func NewPlan(et *metadata.EntityType, base *BaseType) *Plan {
	p := &Plan{
		Entity:       et,
		Base:         base,
		Serializable: base.Serializable,
	}
	if !base.Serializable {
		p.DataContract = et.DataContract()
	}
	implementTracker := !base.HasChangeTracker
	implementRelationships := !base.HasRelationships

	claimed := 0
	for _, m := range et.Members() {
		f, _ := base.Member(m.Name)
		mp := MemberPlan{
			Name:   m.Name,
			IsKey:  et.IsKeyMember(m.Name),
			Member: m,
			Field:  f,
		}
		if f != nil {
			mp.Equality = f.Equality
		}
		if nav := m.Navigation; nav != nil {
			mp.Relationship = nav.Relationship
			mp.TargetRole = nav.ToRole
		}
		if f != nil && f.Setter {
			switch {
			case !m.IsNavigation():
				if implementTracker {
					mp.Claim = ClaimScalar
				}
			case implementRelationships && m.IsCollection():
				if f.Collection {
					mp.Claim = ClaimCollection
				}
			case implementRelationships:
				mp.Claim = ClaimReference
			}
		}
		if mp.Claim != ClaimNone {
			claimed++
		}
		// Lazy loading applies to navigation getters independently.
		mp.LazyLoad = m.IsNavigation() && f != nil && f.Getter
		p.Members = append(p.Members, mp)
	}

	if claimed != len(et.Members()) {
		for i := range p.Members {
			p.Members[i].Claim = ClaimNone
		}
		implementTracker, implementRelationships = false, false
	}
	p.ImplementChangeTracker = implementTracker
	p.ImplementRelationships = implementRelationships

	for i := range p.Members {
		mp := &p.Members[i]
		mp.BaseGetter = mp.LazyLoad
		mp.BaseSetter = mp.Claim == ClaimReference || mp.Claim == ClaimCollection
	}
	return p
}

// Empty reports whether no member needs interception, in which case no
// proxy type is built.
func (p *Plan) Empty() bool {
	for i := range p.Members {
		if p.Members[i].Intercepted() {
			return false
		}
	}
	return true
}

// Member returns the plan of the named member.
func (p *Plan) Member(name string) (*MemberPlan, bool) {
	for i := range p.Members {
		if p.Members[i].Name == name {
			return &p.Members[i], true
		}
	}
	return nil, false
}

// LazyMembers returns the members whose getters are intercepted.
func (p *Plan) LazyMembers() []*MemberPlan {
	var out []*MemberPlan
	for i := range p.Members {
		if p.Members[i].LazyLoad {
			out = append(out, &p.Members[i])
		}
	}
	return out
}

// CollectionMembers returns the members claimed as related collections.
func (p *Plan) CollectionMembers() []*MemberPlan {
	var out []*MemberPlan
	for i := range p.Members {
		if p.Members[i].Claim == ClaimCollection {
			out = append(out, &p.Members[i])
		}
	}
	return out
}
