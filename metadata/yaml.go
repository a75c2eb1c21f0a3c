package metadata

import (
	"fmt"
	"io"
	"os"
	"reflect"

	"gopkg.in/yaml.v3"

	"github.com/syssam/ospace"
)

// TypeResolver maps an entity name to the Go type it describes.
type TypeResolver func(name string) (reflect.Type, bool)

// TypesOf returns a TypeResolver over the named types of the given values,
// keyed by type name. Pointer values are dereferenced.
func TypesOf(values ...any) TypeResolver {
	types := make(map[string]reflect.Type, len(values))
	for _, v := range values {
		t := reflect.TypeOf(v)
		if t == nil {
			continue
		}
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		types[t.Name()] = t
	}
	return func(name string) (reflect.Type, bool) {
		t, ok := types[name]
		return t, ok
	}
}

// Document is the YAML form of a workspace.
type Document struct {
	Namespace string           `yaml:"namespace,omitempty"`
	Entities  []EntityDocument `yaml:"entities"`
}

// EntityDocument is the YAML form of an entity type.
type EntityDocument struct {
	Name         string               `yaml:"name"`
	Abstract     bool                 `yaml:"abstract,omitempty"`
	Sealed       bool                 `yaml:"sealed,omitempty"`
	DataContract *DataContractDoc     `yaml:"data_contract,omitempty"`
	Key          []string             `yaml:"key,omitempty"`
	Properties   []PropertyDocument   `yaml:"properties,omitempty"`
	Navigations  []NavigationDocument `yaml:"navigations,omitempty"`
}

// DataContractDoc is the YAML form of a data-contract marker.
type DataContractDoc struct {
	IsReference bool `yaml:"is_reference"`
}

// PropertyDocument is the YAML form of a scalar member.
type PropertyDocument struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type,omitempty"`
	Final    bool   `yaml:"final,omitempty"`
	ReadOnly bool   `yaml:"readonly,omitempty"`
}

// NavigationDocument is the YAML form of a navigation member.
type NavigationDocument struct {
	Name         string `yaml:"name"`
	Type         string `yaml:"type,omitempty"`
	Target       string `yaml:"target,omitempty"`
	Multiplicity string `yaml:"multiplicity,omitempty"`
	Relationship string `yaml:"relationship,omitempty"`
	FromRole     string `yaml:"from_role,omitempty"`
	ToRole       string `yaml:"to_role,omitempty"`
	Final        bool   `yaml:"final,omitempty"`
	ReadOnly     bool   `yaml:"readonly,omitempty"`
}

// LoadYAML decodes a workspace document. Entities the resolver does not know,
// or all entities when resolve is nil, are description-only.
func LoadYAML(r io.Reader, resolve TypeResolver) (*Workspace, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, ospace.NewConfigurationError("metadata", "decode yaml document", err)
	}
	return doc.Workspace(resolve)
}

// LoadFile reads a workspace document from path.
func LoadFile(path string, resolve TypeResolver) (*Workspace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("metadata: open %s: %w", path, err)
	}
	defer f.Close()
	return LoadYAML(f, resolve)
}

// Workspace builds a workspace from the document.
func (d *Document) Workspace(resolve TypeResolver) (*Workspace, error) {
	ws := NewWorkspace()
	for _, ed := range d.Entities {
		et, err := ed.entityType(d.Namespace, resolve)
		if err != nil {
			return nil, err
		}
		if err := ws.Register(et); err != nil {
			return nil, err
		}
	}
	return ws, nil
}

func (ed *EntityDocument) entityType(ns string, resolve TypeResolver) (*EntityType, error) {
	opts := []EntityOption{Namespace(ns), Key(ed.Key...)}
	if ed.Abstract {
		opts = append(opts, Abstract())
	}
	if ed.Sealed {
		opts = append(opts, Sealed())
	}
	if ed.DataContract != nil {
		opts = append(opts, WithDataContract(ed.DataContract.IsReference))
	}
	for _, p := range ed.Properties {
		opts = append(opts, Property(p.Name, memberOptions(p.Type, p.Final, p.ReadOnly)...))
	}
	for _, n := range ed.Navigations {
		mult, err := ParseMultiplicity(n.Multiplicity)
		if err != nil {
			return nil, ospace.NewConfigurationError(ed.Name, fmt.Sprintf("navigation %q", n.Name), err)
		}
		mopts := memberOptions(n.Type, n.Final, n.ReadOnly)
		if n.Target != "" {
			mopts = append(mopts, Target(n.Target))
		}
		if n.Relationship != "" {
			mopts = append(mopts, Relationship(n.Relationship))
		}
		if n.FromRole != "" || n.ToRole != "" {
			mopts = append(mopts, Roles(n.FromRole, n.ToRole))
		}
		opts = append(opts, navigation(n.Name, mult, mopts))
	}
	var typ reflect.Type
	if resolve != nil {
		typ, _ = resolve(ed.Name)
	}
	return NewEntityType(ed.Name, typ, opts...)
}

func memberOptions(typeName string, final, readOnly bool) []MemberOption {
	var opts []MemberOption
	if typeName != "" {
		opts = append(opts, TypeName(typeName))
	}
	if final {
		opts = append(opts, Final())
	}
	if readOnly {
		opts = append(opts, ReadOnly())
	}
	return opts
}
