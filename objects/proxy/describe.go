package proxy

import (
	"fmt"
	"go/token"
	"reflect"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/ospace"
	"github.com/syssam/ospace/metadata"
	"github.com/syssam/ospace/objects/dataclasses"
)

// Struct tag options recognized on entity fields.
const (
	tagName     = "ospace"
	tagFinal    = "final"
	tagReadOnly = "readonly"
)

var (
	changeTrackerIface = reflect.TypeOf((*dataclasses.EntityWithChangeTracker)(nil)).Elem()
	keyIface           = reflect.TypeOf((*dataclasses.EntityWithKey)(nil)).Elem()
	relationshipsIface = reflect.TypeOf((*dataclasses.EntityWithRelationships)(nil)).Elem()
	encoderIface       = reflect.TypeOf((*msgpack.CustomEncoder)(nil)).Elem()
	decoderIface       = reflect.TypeOf((*msgpack.CustomDecoder)(nil)).Elem()
	collectionIface    = reflect.TypeOf((*dataclasses.Collection)(nil)).Elem()
	entityCollection   = reflect.TypeOf((*dataclasses.EntityCollection)(nil))
)

// BaseType describes the Go type a proxy derives from. It is produced from a
// bound reflect.Type by Describe, or from declared type names by
// DescribeDeclared.
type BaseType struct {
	Name    string
	PkgPath string
	// Type is nil for declared-only descriptions.
	Type reflect.Type
	// Exported reports whether the type name is visible outside its package.
	Exported bool
	// Struct reports whether the zero value is a usable instance.
	Struct bool
	// Native capabilities, checked on the pointer type.
	HasKey           bool
	HasChangeTracker bool
	HasRelationships bool
	// Serializable reports whether the pointer type implements both
	// msgpack.CustomEncoder and msgpack.CustomDecoder.
	Serializable bool
	Members      []BaseMember
}

// BaseMember describes the field backing one entity member.
type BaseMember struct {
	Name     string
	Index    []int
	Type     reflect.Type
	TypeName string
	// Getter and Setter report whether the accessors may be intercepted.
	Getter bool
	Setter bool
	// Collection reports whether the field holds a dataclasses.Collection.
	Collection bool
	Equality   EqualityClass
}

// Member returns the member with the given name.
func (b *BaseType) Member(name string) (*BaseMember, bool) {
	for i := range b.Members {
		if b.Members[i].Name == name {
			return &b.Members[i], true
		}
	}
	return nil, false
}

// Describe inspects the Go type bound to et.
func Describe(et *metadata.EntityType) (*BaseType, error) {
	t := et.Type()
	if t == nil {
		return nil, ospace.NewConfigurationError(et.FullName(), "entity type is not bound to a Go type", nil)
	}
	b := &BaseType{
		Name:     t.Name(),
		PkgPath:  t.PkgPath(),
		Type:     t,
		Exported: token.IsExported(t.Name()),
		Struct:   t.Kind() == reflect.Struct,
	}
	if !b.Struct {
		return b, nil
	}
	pt := reflect.PointerTo(t)
	b.HasKey = pt.Implements(keyIface)
	b.HasChangeTracker = pt.Implements(changeTrackerIface)
	b.HasRelationships = pt.Implements(relationshipsIface)
	b.Serializable = pt.Implements(encoderIface) && pt.Implements(decoderIface)

	for _, m := range et.Members() {
		f, ok := t.FieldByName(m.Name)
		if !ok {
			return nil, ospace.NewConfigurationError(et.FullName(),
				fmt.Sprintf("member %q has no backing field on %v", m.Name, t), ospace.ErrNotFound)
		}
		bm := BaseMember{
			Name:       m.Name,
			Index:      f.Index,
			Type:       f.Type,
			TypeName:   f.Type.String(),
			Collection: f.Type == collectionIface || f.Type == entityCollection,
			Equality:   ClassifyEquality(f.Type),
		}
		bm.Getter, bm.Setter = accessors(f.IsExported(), f.Tag.Get(tagName), m)
		b.Members = append(b.Members, bm)
	}
	return b, nil
}

// DescribeDeclared builds a BaseType from the declared member type names of
// et, for code generation. Declared types have no native capabilities.
func DescribeDeclared(et *metadata.EntityType, pkgPath string) *BaseType {
	b := &BaseType{
		Name:     et.Name(),
		PkgPath:  pkgPath,
		Exported: token.IsExported(et.Name()),
		Struct:   true,
	}
	for _, m := range et.Members() {
		typeName := m.TypeName
		if typeName == "" && m.IsCollection() {
			typeName = "*dataclasses.EntityCollection"
		}
		bm := BaseMember{
			Name:       m.Name,
			TypeName:   typeName,
			Collection: typeName == "dataclasses.Collection" || typeName == "*dataclasses.EntityCollection",
			Equality:   ClassifyDeclared(typeName),
		}
		bm.Getter, bm.Setter = accessors(token.IsExported(m.Name), "", m)
		b.Members = append(b.Members, bm)
	}
	return b
}

func accessors(exported bool, tag string, m *metadata.Member) (getter, setter bool) {
	if !exported || m.Final {
		return false, false
	}
	getter, setter = true, !m.ReadOnly
	for _, opt := range strings.Split(tag, ",") {
		switch strings.TrimSpace(opt) {
		case tagFinal:
			return false, false
		case tagReadOnly:
			setter = false
		}
	}
	return getter, setter
}
