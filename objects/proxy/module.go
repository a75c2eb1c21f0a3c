package proxy

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

// module is the generation context shared by the proxies of one base
// package. Its identity is part of every proxy type it defines, so types
// defined by a discarded module are never handed out again.
type module struct {
	id      uuid.UUID
	pkgPath string
}

func newModule(pkgPath string) *module {
	return &module{id: uuid.New(), pkgPath: pkgPath}
}

func (m *module) tag(hash string) reflect.StructTag {
	return reflect.StructTag(fmt.Sprintf(`ospace:"base" hash:"%s" module:"%s"`, hash, m.id))
}

// define synthesizes the proxy struct type for base.
func (m *module) define(base reflect.Type, hash string) reflect.Type {
	return reflect.StructOf([]reflect.StructField{
		{Name: "Base", Type: base, Tag: m.tag(hash)},
		{Name: "State", Type: reflect.TypeOf((*State)(nil))},
	})
}

// moduleOf returns the module id recorded on a proxy struct type.
func moduleOf(t reflect.Type) (string, bool) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || t.NumField() != 2 || t.Name() != "" {
		return "", false
	}
	f := t.Field(baseField)
	if f.Name != "Base" || f.Tag.Get("ospace") != "base" {
		return "", false
	}
	id := f.Tag.Get("module")
	return id, id != ""
}

// BaseOf returns a pointer to the base value embedded in a runtime proxy
// instance. The pointer shares the proxy's address. It reports false for any
// other value.
func BaseOf(entity any) (any, bool) {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return nil, false
	}
	if _, ok := moduleOf(v.Type()); !ok {
		return nil, false
	}
	return v.Elem().Field(baseField).Addr().Interface(), true
}
