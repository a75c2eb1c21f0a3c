package metadata

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/syssam/ospace"
)

// Workspace is a set of entity types and the association types derived from
// their navigation members. A Workspace is safe for concurrent use.
type Workspace struct {
	mu           sync.RWMutex
	entities     map[string]*EntityType
	byType       map[reflect.Type]*EntityType
	associations map[string]*AssociationType
	order        []*EntityType
}

// NewWorkspace returns an empty workspace.
func NewWorkspace() *Workspace {
	return &Workspace{
		entities:     make(map[string]*EntityType),
		byType:       make(map[reflect.Type]*EntityType),
		associations: make(map[string]*AssociationType),
	}
}

// Register adds entity types to the workspace. A full name or a Go type may
// be registered only once per workspace.
func (w *Workspace) Register(ets ...*EntityType) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, et := range ets {
		if et == nil {
			return ospace.NewConfigurationError("workspace", "nil entity type", nil)
		}
		if _, ok := w.entities[et.FullName()]; ok {
			return ospace.NewConfigurationError("workspace", fmt.Sprintf("entity type %q registered twice", et.FullName()), nil)
		}
		if t := et.Type(); t != nil {
			if prev, ok := w.byType[t]; ok {
				return ospace.NewConfigurationError("workspace",
					fmt.Sprintf("type %v already mapped by entity type %q", t, prev.FullName()), nil)
			}
			w.byType[t] = et
		}
		w.entities[et.FullName()] = et
		w.order = append(w.order, et)
		for _, m := range et.NavigationMembers() {
			w.associate(et, m.Navigation)
		}
	}
	return nil
}

// associate records the association type of nav, merging the inverse end
// when the target declares the same relationship.
func (w *Workspace) associate(et *EntityType, nav *Navigation) {
	if a, ok := w.associations[nav.Relationship]; ok {
		if a.Ends[1].Role == nav.FromRole {
			a.Ends[0].Multiplicity = nav.ToMultiplicity
		}
		return
	}
	name := nav.Relationship
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	w.associations[nav.Relationship] = &AssociationType{
		FullName: nav.Relationship,
		Name:     name,
		Ends: [2]AssociationEnd{
			{Role: nav.FromRole, Type: et.FullName(), Multiplicity: ZeroOrOne},
			{Role: nav.ToRole, Type: w.qualify(et, nav.Target), Multiplicity: nav.ToMultiplicity},
		},
	}
}

func (w *Workspace) qualify(et *EntityType, target string) string {
	if strings.Contains(target, ".") || et.Namespace() == "" {
		return target
	}
	return et.Namespace() + "." + target
}

// EntityType returns the entity type with the given full or short name.
func (w *Workspace) EntityType(name string) (*EntityType, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if et, ok := w.entities[name]; ok {
		return et, true
	}
	for _, et := range w.order {
		if et.Name() == name {
			return et, true
		}
	}
	return nil, false
}

// EntityTypeOf returns the entity type mapping t. Pointer types are dereferenced.
func (w *Workspace) EntityTypeOf(t reflect.Type) (*EntityType, bool) {
	if t == nil {
		return nil, false
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	et, ok := w.byType[t]
	return et, ok
}

// EntityTypes returns the entity types in registration order.
func (w *Workspace) EntityTypes() []*EntityType {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]*EntityType(nil), w.order...)
}

// AssociationType returns the association type with the given full or short name.
func (w *Workspace) AssociationType(name string) (*AssociationType, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if a, ok := w.associations[name]; ok {
		return a, true
	}
	for _, a := range w.associations {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// AssociationTypes returns all association types sorted by full name.
func (w *Workspace) AssociationTypes() []*AssociationType {
	w.mu.RLock()
	defer w.mu.RUnlock()
	all := make([]*AssociationType, 0, len(w.associations))
	for _, a := range w.associations {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].FullName < all[j].FullName })
	return all
}

// AssociationsOf returns the association types reachable from et's navigation
// members, keyed by relationship full name. A nil workspace derives them from
// et alone.
func (w *Workspace) AssociationsOf(et *EntityType) map[string]*AssociationType {
	if w == nil {
		w = NewWorkspace()
		if err := w.Register(et); err != nil {
			return nil
		}
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[string]*AssociationType)
	for _, m := range et.NavigationMembers() {
		if a, ok := w.associations[m.Navigation.Relationship]; ok {
			out[a.FullName] = a
		}
	}
	return out
}
