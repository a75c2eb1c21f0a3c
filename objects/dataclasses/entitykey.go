package dataclasses

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
)

// KeyMember is one named value of an entity key.
type KeyMember struct {
	Name  string
	Value any
}

// EntityKey identifies an entity within an entity set.
type EntityKey struct {
	EntitySet string
	Members   []KeyMember
	temporary uuid.UUID
}

// NewEntityKey returns a permanent key.
func NewEntityKey(entitySet string, members ...KeyMember) *EntityKey {
	return &EntityKey{EntitySet: entitySet, Members: members}
}

// NewTemporaryKey returns a key for an added entity that has no store
// generated values yet. Temporary keys are only equal to themselves.
func NewTemporaryKey(entitySet string) *EntityKey {
	return &EntityKey{EntitySet: entitySet, temporary: uuid.New()}
}

// IsTemporary reports whether the key is temporary.
func (k *EntityKey) IsTemporary() bool { return k != nil && k.temporary != uuid.Nil }

// Value returns the value of the named key member.
func (k *EntityKey) Value(name string) (any, bool) {
	for _, m := range k.Members {
		if m.Name == name {
			return m.Value, true
		}
	}
	return nil, false
}

// Equal reports whether both keys identify the same entity.
func (k *EntityKey) Equal(o *EntityKey) bool {
	switch {
	case k == o:
		return true
	case k == nil || o == nil:
		return false
	case k.IsTemporary() || o.IsTemporary():
		return k.temporary == o.temporary
	case k.EntitySet != o.EntitySet || len(k.Members) != len(o.Members):
		return false
	}
	for i, m := range k.Members {
		if m.Name != o.Members[i].Name || !valueEqual(m.Value, o.Members[i].Value) {
			return false
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	if ab, ok := a.([]byte); ok {
		bb, ok := b.([]byte)
		return ok && bytes.Equal(ab, bb)
	}
	return reflect.DeepEqual(a, b)
}

// String returns a stable rendering usable as a map key.
func (k *EntityKey) String() string {
	if k == nil {
		return "<nil>"
	}
	if k.IsTemporary() {
		return k.EntitySet + "(temp:" + k.temporary.String() + ")"
	}
	parts := make([]string, len(k.Members))
	for i, m := range k.Members {
		parts[i] = fmt.Sprintf("%s=%v", m.Name, m.Value)
	}
	return k.EntitySet + "(" + strings.Join(parts, ",") + ")"
}
