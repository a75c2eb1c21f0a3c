package objects

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/syssam/ospace"
	"github.com/syssam/ospace/dialect"
)

// BatchQuery loads one navigation member of many entities with a single
// query. SQL holds one %s verb replaced by the placeholders of the owner
// values. Param names the member of the owners bound to the placeholders
// and ForeignKey the member of the target matching it.
//
//	objects.BatchQuery{
//		SQL:        "SELECT id, customer_id FROM orders WHERE customer_id IN (%s)",
//		Param:      "ID",
//		ForeignKey: "CustomerID",
//		Target:     reflect.TypeOf(Order{}),
//	}
type BatchQuery struct {
	SQL        string
	Param      string
	ForeignKey string
	Target     reflect.Type
}

// keyFunc extracts a grouping key from a value.
type keyFunc[K comparable, V any] func(V) K

// groupByKey groups values by key, keeping their order within each group.
func groupByKey[K comparable, V any](values []V, keyFn keyFunc[K, V]) map[K][]V {
	result := make(map[K][]V)
	for _, v := range values {
		key := keyFn(v)
		result[key] = append(result[key], v)
	}
	return result
}

// orderGroupsByKeys returns the group of every key, in the order of keys.
func orderGroupsByKeys[K comparable, V any](keys []K, groups map[K][]V) [][]V {
	result := make([][]V, len(keys))
	for i, key := range keys {
		result[i] = groups[key]
	}
	return result
}

type keyed struct {
	key    string
	entity any
}

// LoadPropertyBatch loads member of every entity with one query. Entities
// whose member is already loaded are skipped.
func (c *Context) LoadPropertyBatch(ctx context.Context, entities []any, member string, q BatchQuery) error {
	if c.driver == nil {
		return ospace.NewConfigurationError("Context", "no driver configured", nil)
	}
	var (
		owners []EntityWrapper
		keys   []string
		args   []any
		seen   = make(map[string]bool)
	)
	for _, entity := range entities {
		w, err := c.Wrap(entity)
		if err != nil {
			return err
		}
		nav, err := c.navigation(w, member)
		if err != nil {
			return err
		}
		if relatedEnd(w, nav).IsLoaded() {
			continue
		}
		v, err := w.access().getBase(q.Param)
		if err != nil {
			return err
		}
		k := groupKey(v)
		owners, keys = append(owners, w), append(keys, k)
		if !seen[k] {
			seen[k] = true
			args = append(args, v)
		}
	}
	if len(owners) == 0 {
		return nil
	}
	mo := AppendOnly
	if owners[0].Context() != nil && owners[0].MergeOption() == NoTracking {
		mo = NoTracking
	}
	related, err := c.Materialize(ctx, q.Target, mo, fmt.Sprintf(q.SQL, placeholders(c.driver.Dialect(), len(args))), args...)
	if err != nil {
		return err
	}
	pairs := make([]keyed, 0, len(related))
	for _, r := range related {
		w, err := c.Wrap(r)
		if err != nil {
			return err
		}
		v, err := w.access().getBase(q.ForeignKey)
		if err != nil {
			return err
		}
		pairs = append(pairs, keyed{key: groupKey(v), entity: r})
	}
	groups := orderGroupsByKeys(keys, groupByKey(pairs, func(p keyed) string { return p.key }))
	for i, w := range owners {
		nav, _ := c.navigation(w, member)
		group := make([]any, len(groups[i]))
		for j, p := range groups[i] {
			group[j] = p.entity
		}
		if err := fill(w, nav, group); err != nil {
			return err
		}
	}
	return nil
}

// groupKey renders a member value as a grouping key. Pointers are
// dereferenced so that nullable foreign keys match their owner values.
func groupKey(v any) string {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "<nil>"
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return "<nil>"
	}
	if b, ok := rv.Interface().([]byte); ok {
		return fmt.Sprintf("%x", b)
	}
	return fmt.Sprint(rv.Interface())
}

func placeholders(dialectName string, n int) string {
	ps := make([]string, n)
	for i := range ps {
		if dialectName == dialect.Postgres {
			ps[i] = fmt.Sprintf("$%d", i+1)
		} else {
			ps[i] = "?"
		}
	}
	return strings.Join(ps, ", ")
}
