package proxygen

import (
	"go/token"
	"reflect"
	"strings"

	"github.com/dave/jennifer/jen"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/syssam/ospace/objects/proxy"
)

const (
	ospacePkg      = "github.com/syssam/ospace"
	proxyPkg       = "github.com/syssam/ospace/objects/proxy"
	dataclassesPkg = "github.com/syssam/ospace/objects/dataclasses"
)

// qualifiers maps package names used in declared member types to their
// import paths.
var qualifiers = map[string]string{
	"dataclasses": dataclassesPkg,
	"time":        "time",
	"uuid":        "github.com/google/uuid",
	"json":        "encoding/json",
}

// emitter renders the proxy of one plan.
type emitter struct {
	plan    *proxy.Plan
	pkgPath string
	name    string
	recv    string
	title   cases.Caser
}

func newEmitter(plan *proxy.Plan, pkgPath string) *emitter {
	return &emitter{
		plan:    plan,
		pkgPath: pkgPath,
		name:    plan.Base.Name + "Proxy",
		recv:    "p",
		title:   cases.Title(language.Und, cases.NoLower),
	}
}

func (e *emitter) emit(f *jen.File) {
	base := e.plan.Base
	entity := e.plan.Entity.FullName()

	f.Commentf("%s is the generated proxy of %s.", e.name, entity)
	f.Type().Id(e.name).Struct(
		jen.Qual(e.pkgPath, base.Name),
		jen.Id("state").Op("*").Qual(proxyPkg, "State"),
	)
	collections := e.plan.CollectionMembers()
	ctor := []jen.Code{
		jen.Id(e.recv).Op(":=").Op("&").Id(e.name).Values(),
		jen.Id(e.recv).Dot("state").Op("=").Qual(proxyPkg, "NewState").Call(jen.Id(e.recv), jen.Id("caps")),
	}
	if len(collections) > 0 {
		ctor = append(ctor, jen.Id(e.recv).Dot("InitializeCollections").Call())
	}
	ctor = append(ctor, jen.Return(jen.Id(e.recv)))
	f.Line()
	f.Commentf("New%s returns a proxy whose hooks are taken from caps.", e.name)
	f.Func().Id("New"+e.name).
		Params(jen.Id("caps").Op("*").Qual(proxyPkg, "CapabilityTable")).
		Op("*").Id(e.name).
		Block(ctor...)
	if len(collections) > 0 {
		e.initializeCollections(f, collections)
	}

	if e.plan.ImplementRelationships {
		f.Line()
		f.Var().Id("_").Qual(dataclassesPkg, "EntityWithRelationships").Op("=").Parens(jen.Op("*").Id(e.name)).Parens(jen.Nil())
		f.Line()
		f.Comment("RelationshipManager implements dataclasses.EntityWithRelationships.")
		f.Func().Params(e.receiver()).Id("RelationshipManager").Params().
			Op("*").Qual(dataclassesPkg, "RelationshipManager").
			Block(jen.Return(e.state().Dot("RelationshipManager").Call()))
	}
	if e.plan.ImplementChangeTracker {
		f.Line()
		f.Comment("SetChangeTracker implements dataclasses.EntityWithChangeTracker.")
		f.Func().Params(e.receiver()).Id("SetChangeTracker").
			Params(jen.Id("tracker").Qual(dataclassesPkg, "EntityChangeTracker")).
			Block(e.state().Dot("SetChangeTracker").Call(jen.Id("tracker")))
	}

	for i := range e.plan.Members {
		mp := &e.plan.Members[i]
		if mp.Field == nil {
			continue
		}
		if mp.LazyLoad {
			e.getter(f, mp)
		}
		switch mp.Claim {
		case proxy.ClaimScalar:
			e.scalarSetter(f, mp)
		case proxy.ClaimReference:
			e.referenceSetter(f, mp)
		case proxy.ClaimCollection:
			e.collectionSetter(f, mp, entity)
		}
		if mp.BaseGetter {
			f.Line()
			f.Func().Params(e.receiver()).Id("BaseGet"+e.accessor(mp)).Params().Add(e.memberType(mp)).
				Block(jen.Return(e.field(mp)))
		}
		if mp.BaseSetter {
			f.Line()
			f.Func().Params(e.receiver()).Id("BaseSet"+e.accessor(mp)).Params(jen.Id("v").Add(e.memberType(mp))).
				Block(e.field(mp).Op("=").Id("v"))
		}
	}
}

func (e *emitter) receiver() *jen.Statement {
	return jen.Id(e.recv).Op("*").Id(e.name)
}

func (e *emitter) state() *jen.Statement {
	return jen.Id(e.recv).Dot("state")
}

func (e *emitter) field(mp *proxy.MemberPlan) *jen.Statement {
	return jen.Id(e.recv).Dot(e.plan.Base.Name).Dot(mp.Name)
}

func (e *emitter) accessor(mp *proxy.MemberPlan) string {
	return e.title.String(mp.Name)
}

func (e *emitter) memberType(mp *proxy.MemberPlan) jen.Code {
	if mp.Field.Type != nil {
		return reflectType(mp.Field.Type)
	}
	return declaredType(mp.Field.TypeName, e.pkgPath)
}

// getter runs the lazy loading interceptor before reading the field.
func (e *emitter) getter(f *jen.File, mp *proxy.MemberPlan) {
	f.Line()
	f.Func().Params(e.receiver()).Id("Get"+e.accessor(mp)).Params().Add(e.memberType(mp)).Block(
		e.state().Dot("Intercept").Call(jen.Lit(mp.Name), e.field(mp)),
		jen.Return(e.field(mp)),
	)
}

// scalarSetter notifies the change tracker around the assignment. Key
// members set to their current value are left alone.
func (e *emitter) scalarSetter(f *jen.File, mp *proxy.MemberPlan) {
	var body []jen.Code
	if mp.IsKey {
		body = append(body, jen.If(e.keyEqual(mp)).Block(jen.Return()))
	}
	body = append(body,
		jen.Defer().Add(e.state()).Dot("ResetFKSetter").Call(),
		e.state().Dot("MemberChanging").Call(jen.Lit(mp.Name)),
		e.field(mp).Op("=").Id("v"),
		e.state().Dot("MemberChanged").Call(jen.Lit(mp.Name)),
	)
	f.Line()
	f.Func().Params(e.receiver()).Id("Set"+e.accessor(mp)).Params(jen.Id("v").Add(e.memberType(mp))).Block(body...)
}

func (e *emitter) keyEqual(mp *proxy.MemberPlan) jen.Code {
	switch mp.Equality {
	case proxy.EqualPrimitive:
		return e.field(mp).Op("==").Id("v")
	case proxy.EqualBytes:
		return e.state().Dot("CompareBytes").Call(e.field(mp), jen.Id("v"))
	case proxy.EqualOperator:
		return e.field(mp).Dot("Equal").Call(jen.Id("v"))
	default:
		return jen.Qual(proxyPkg, "BoxedEqual").Call(e.field(mp), jen.Id("v"))
	}
}

// referenceSetter records the value in the related reference.
func (e *emitter) referenceSetter(f *jen.File, mp *proxy.MemberPlan) {
	f.Line()
	f.Func().Params(e.receiver()).Id("Set"+e.accessor(mp)).Params(jen.Id("v").Add(e.memberType(mp))).Block(
		e.state().Dot("RelationshipManager").Call().
			Dot("RelatedReference").Call(jen.Lit(mp.Relationship), jen.Lit(mp.TargetRole)).
			Dot("SetValue").Call(jen.Id("v")),
		e.field(mp).Op("=").Id("v"),
	)
}

// collectionSetter only accepts the collection managed by the related end.
func (e *emitter) collectionSetter(f *jen.File, mp *proxy.MemberPlan, entity string) {
	f.Line()
	f.Func().Params(e.receiver()).Id("Set"+e.accessor(mp)).Params(jen.Id("v").Add(e.memberType(mp))).Error().Block(
		jen.Id("end").Op(":=").Add(e.state()).Dot("RelationshipManager").Call().
			Dot("RelatedCollection").Call(jen.Lit(mp.Relationship), jen.Lit(mp.TargetRole)),
		jen.If(
			jen.List(jen.Id("c"), jen.Id("ok")).Op(":=").Id("any").Parens(jen.Id("v")).Assert(jen.Op("*").Qual(dataclassesPkg, "EntityCollection")),
			jen.Op("!").Id("ok").Op("||").Id("c").Op("!=").Id("end"),
		).Block(
			jen.Return(jen.Qual(ospacePkg, "NewCollectionReplaceError").Call(jen.Lit(mp.Name), jen.Lit(entity))),
		),
		e.field(mp).Op("=").Id("v"),
		jen.Return(jen.Nil()),
	)
}

// initializeCollections links each collection member to the collection of
// its related end.
func (e *emitter) initializeCollections(f *jen.File, members []*proxy.MemberPlan) {
	body := make([]jen.Code, 0, len(members))
	for _, mp := range members {
		body = append(body, e.field(mp).Op("=").Add(e.state()).Dot("RelationshipManager").Call().
			Dot("RelatedCollection").Call(jen.Lit(mp.Relationship), jen.Lit(mp.TargetRole)))
	}
	f.Line()
	f.Comment("InitializeCollections sets the collection members to the collections")
	f.Comment("managed by the relationship manager.")
	f.Func().Params(e.receiver()).Id("InitializeCollections").Params().Block(body...)
}

// reflectType renders a Go type.
func reflectType(t reflect.Type) jen.Code {
	if t.Name() != "" {
		if t.PkgPath() == "" {
			return jen.Id(t.Name())
		}
		return jen.Qual(t.PkgPath(), t.Name())
	}
	switch t.Kind() {
	case reflect.Pointer:
		return jen.Op("*").Add(reflectType(t.Elem()))
	case reflect.Slice:
		return jen.Index().Add(reflectType(t.Elem()))
	case reflect.Array:
		return jen.Index(jen.Lit(t.Len())).Add(reflectType(t.Elem()))
	case reflect.Map:
		return jen.Map(reflectType(t.Key())).Add(reflectType(t.Elem()))
	default:
		return jen.Id(t.String())
	}
}

// declaredType renders a type declared by name. Exported bare names belong
// to the package of the entity types.
func declaredType(name, pkgPath string) jen.Code {
	name = strings.TrimSpace(name)
	switch {
	case strings.HasPrefix(name, "*"):
		return jen.Op("*").Add(declaredType(name[1:], pkgPath))
	case strings.HasPrefix(name, "[]"):
		return jen.Index().Add(declaredType(name[2:], pkgPath))
	case strings.HasPrefix(name, "map["):
		return jen.Id(name)
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		pkg, sel := name[:i], name[i+1:]
		if path, ok := qualifiers[pkg]; ok {
			pkg = path
		}
		return jen.Qual(pkg, sel)
	}
	if token.IsExported(name) {
		return jen.Qual(pkgPath, name)
	}
	return jen.Id(name)
}
