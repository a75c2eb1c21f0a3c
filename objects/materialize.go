package objects

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-openapi/inflect"
	"go.uber.org/zap"

	"github.com/syssam/ospace"
	"github.com/syssam/ospace/dialect/sql"
	"github.com/syssam/ospace/metadata"
	"github.com/syssam/ospace/objects/dataclasses"
)

// Materialize runs query on the driver of the context and returns one
// entity of type t per row. Columns map to scalar members by member name or
// by its snake_case form. Rows whose key is already tracked are merged
// according to mo.
func (c *Context) Materialize(ctx context.Context, t reflect.Type, mo MergeOption, query string, args ...any) ([]any, error) {
	if c.driver == nil {
		return nil, ospace.NewConfigurationError("Context", "no driver configured", nil)
	}
	et, err := c.entityType(t)
	if err != nil {
		return nil, err
	}
	var rows sql.Rows
	if err := c.driver.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	records, err := sql.ScanRecords(rows)
	if err != nil {
		return nil, err
	}
	set := c.EntitySetName(et.Type())
	entities := make([]any, 0, len(records))
	for _, rec := range records {
		entity, err := c.materialize(et, set, rec, mo)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	c.log.Debug("entities materialized",
		zap.String("entity", et.FullName()),
		zap.Stringer("merge", mo),
		zap.Int("count", len(entities)),
	)
	return entities, nil
}

func (c *Context) materialize(et *metadata.EntityType, set string, rec sql.Record, mo MergeOption) (any, error) {
	values, err := recordValues(et, rec)
	if err != nil {
		return nil, err
	}
	key, err := recordKey(et, set, values)
	if err != nil {
		return nil, err
	}
	if mo != NoTracking {
		if entry, ok := c.osm.FindEntityEntryByKey(key); ok {
			if mo == OverwriteChanges && entry.State()&(Unchanged|Modified) != 0 {
				if err := entry.Wrapper().UpdateCurrentValueRecord(values, entry); err != nil {
					return nil, err
				}
				entry.AcceptChanges()
			}
			return entry.Entity(), nil
		}
	}
	entity, err := c.CreateObject(et.Type())
	if err != nil {
		return nil, err
	}
	w, err := c.factory.CreateNewWrapper(entity, key)
	if err != nil {
		return nil, err
	}
	if err := w.UpdateCurrentValueRecord(values, nil); err != nil {
		return nil, err
	}
	if mo == NoTracking {
		if err := c.factory.UpdateNoTrackingWrapper(w, c, set); err != nil {
			return nil, err
		}
		return entity, nil
	}
	if err := c.attachWrapper(w, set, Unchanged, mo); err != nil {
		return nil, err
	}
	return entity, nil
}

// recordValues converts the columns of rec to the scalar members of et.
func recordValues(et *metadata.EntityType, rec sql.Record) (map[string]any, error) {
	values := make(map[string]any)
	for _, m := range et.Members() {
		if m.IsNavigation() {
			continue
		}
		v, ok := column(rec, m.Name)
		if !ok {
			continue
		}
		f, ok := et.Type().FieldByName(m.Name)
		if !ok {
			return nil, fmt.Errorf("%w: member %q of %s", ospace.ErrNotFound, m.Name, et.FullName())
		}
		rv, err := convert(v, f.Type)
		if err != nil {
			return nil, fmt.Errorf("objects: column %s of %s: %w", m.Name, et.FullName(), err)
		}
		values[m.Name] = rv.Interface()
	}
	return values, nil
}

// column returns the value of member in rec.
func column(rec sql.Record, member string) (any, bool) {
	if v, ok := rec[member]; ok {
		return v, true
	}
	if v, ok := rec[inflect.Underscore(member)]; ok {
		return v, true
	}
	for name, v := range rec {
		if strings.EqualFold(name, member) || strings.EqualFold(strings.ReplaceAll(name, "_", ""), member) {
			return v, true
		}
	}
	return nil, false
}

func recordKey(et *metadata.EntityType, set string, values map[string]any) (*dataclasses.EntityKey, error) {
	if len(et.KeyMembers()) == 0 {
		return nil, ospace.NewConfigurationError(et.FullName(), "entity type has no key members", nil)
	}
	members := make([]dataclasses.KeyMember, 0, len(et.KeyMembers()))
	for _, name := range et.KeyMembers() {
		v, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("%w: key column %q of %s", ospace.ErrNotFound, name, et.FullName())
		}
		members = append(members, dataclasses.KeyMember{Name: name, Value: v})
	}
	return dataclasses.NewEntityKey(set, members...), nil
}

// Query loads one navigation member with SQL. Params name the members of
// the owning entity bound to the query arguments, in order.
type Query struct {
	SQL    string
	Params []string
	Target reflect.Type
}

// QueryLoader is a RelatedLoader running a Query per navigation member
// through Materialize. Queries are registered by entity full name and
// member name.
type QueryLoader struct {
	queries map[string]Query
}

var _ RelatedLoader = (*QueryLoader)(nil)

// NewQueryLoader returns a loader without queries.
func NewQueryLoader() *QueryLoader {
	return &QueryLoader{queries: make(map[string]Query)}
}

// Register sets the query loading member of the entity type entity.
func (l *QueryLoader) Register(entity, member string, q Query) *QueryLoader {
	l.queries[entity+"."+member] = q
	return l
}

func (l *QueryLoader) query(c *Context, w EntityWrapper, nav *metadata.Member) (Query, *metadata.EntityType, error) {
	et := c.factory.EntityTypeOf(reflect.TypeOf(w.Entity()))
	if et == nil {
		return Query{}, nil, fmt.Errorf("%w: entity type for %v", ospace.ErrNotFound, w.IdentityType())
	}
	q, ok := l.queries[et.FullName()+"."+nav.Name]
	if !ok {
		return Query{}, nil, fmt.Errorf("%w: no query for %s.%s", ospace.ErrNotFound, et.FullName(), nav.Name)
	}
	return q, et, nil
}

// LoadRelated implements RelatedLoader.
func (l *QueryLoader) LoadRelated(ctx context.Context, c *Context, w EntityWrapper, nav *metadata.Member) ([]any, error) {
	q, _, err := l.query(c, w, nav)
	if err != nil {
		return nil, err
	}
	args := make([]any, 0, len(q.Params))
	for _, p := range q.Params {
		v, err := w.access().getBase(p)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	mo := w.MergeOption()
	if w.Context() == nil {
		mo = AppendOnly
	}
	return c.Materialize(ctx, q.Target, mo, q.SQL, args...)
}
