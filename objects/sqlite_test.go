package objects_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/ospace/dialect"
	"github.com/syssam/ospace/dialect/sql"
	"github.com/syssam/ospace/objects"
	"github.com/syssam/ospace/objects/proxy"
)

var schema = []string{
	"CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT NOT NULL)",
	"CREATE TABLE orders (id INTEGER PRIMARY KEY, customer_id INTEGER NOT NULL, total REAL NOT NULL)",
	"INSERT INTO customers (id, name) VALUES (1, 'Ada'), (2, 'Grace'), (3, 'Edsger')",
	"INSERT INTO orders (id, customer_id, total) VALUES (10, 1, 3.5), (11, 1, 4.5), (12, 2, 1.25)",
}

func sqliteContext(t *testing.T, opts ...objects.Option) (*objects.Context, *sql.StatsDriver) {
	t.Helper()
	drv, err := sql.Open(dialect.SQLite, ":memory:")
	require.NoError(t, err)
	drv.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { drv.Close() })

	ctx := context.Background()
	for _, stmt := range schema {
		require.NoError(t, drv.Exec(ctx, stmt, []any{}, nil))
	}
	stats := sql.NewStatsDriver(drv)
	return newContext(t, append(opts, objects.WithDriver(stats))...), stats
}

func shopLoader() *objects.QueryLoader {
	return objects.NewQueryLoader().
		Register("Shop.Customer", "Orders", objects.Query{
			SQL:    "SELECT id, customer_id, total FROM orders WHERE customer_id = ? ORDER BY id",
			Params: []string{"ID"},
			Target: reflect.TypeOf(Order{}),
		}).
		Register("Shop.Order", "Customer", objects.Query{
			SQL:    "SELECT id, name FROM customers WHERE id = ?",
			Params: []string{"CustomerID"},
			Target: reflect.TypeOf(Customer{}),
		})
}

func TestSQLite_Materialize(t *testing.T) {
	t.Parallel()

	c, stats := sqliteContext(t)
	got, err := c.Materialize(context.Background(), reflect.TypeOf(Customer{}), objects.AppendOnly,
		"SELECT id, name FROM customers ORDER BY id")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, name := range []string{"Ada", "Grace", "Edsger"} {
		v, err := c.Get(got[i], "Name")
		require.NoError(t, err)
		assert.Equal(t, name, v)
	}
	assert.Len(t, c.StateManager().Entries(objects.Unchanged), 3)
	assert.EqualValues(t, 1, stats.QueryStats().Stats().TotalQueries)
}

func TestSQLite_LazyLoad(t *testing.T) {
	t.Parallel()

	c, stats := sqliteContext(t, objects.WithLoader(shopLoader()))
	got, err := c.Materialize(context.Background(), reflect.TypeOf(Customer{}), objects.AppendOnly,
		"SELECT id, name FROM customers WHERE id = ?", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	ada := got[0]

	coll := orders(t, c, ada)
	require.Equal(t, 2, coll.Len())
	_ = orders(t, c, ada)
	assert.EqualValues(t, 2, stats.QueryStats().Stats().TotalQueries)

	order := coll.Items()[0]
	total, err := c.Get(order, "Total")
	require.NoError(t, err)
	assert.Equal(t, 3.5, total)

	v, err := c.Get(order, "Customer")
	require.NoError(t, err)
	base, ok := proxy.BaseOf(ada)
	require.True(t, ok)
	assert.Same(t, base, v, "the tracked customer is reused")
	assert.EqualValues(t, 3, stats.QueryStats().Stats().TotalQueries)
	assert.Len(t, c.StateManager().Entries(objects.Unchanged), 3)

	t.Run("no tracking", func(t *testing.T) {
		got, err := c.Materialize(context.Background(), reflect.TypeOf(Customer{}), objects.NoTracking,
			"SELECT id, name FROM customers WHERE id = ?", 2)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 1, orders(t, c, got[0]).Len())
		assert.Len(t, c.StateManager().Entries(objects.Unchanged), 3, "no tracking loads are not attached")
	})
}

func TestSQLite_LoadPropertyBatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, stats := sqliteContext(t)
	customers, err := c.Materialize(ctx, reflect.TypeOf(Customer{}), objects.AppendOnly,
		"SELECT id, name FROM customers ORDER BY id")
	require.NoError(t, err)
	require.Len(t, customers, 3)

	q := objects.BatchQuery{
		SQL:        "SELECT id, customer_id, total FROM orders WHERE customer_id IN (%s) ORDER BY id",
		Param:      "ID",
		ForeignKey: "CustomerID",
		Target:     reflect.TypeOf(Order{}),
	}
	require.NoError(t, c.LoadPropertyBatch(ctx, customers, "Orders", q))
	assert.EqualValues(t, 2, stats.QueryStats().Stats().TotalQueries)

	for i, n := range []int{2, 1, 0} {
		assert.Equal(t, n, orders(t, c, customers[i]).Len())
		w, err := c.Wrap(customers[i])
		require.NoError(t, err)
		assert.True(t, w.RelationshipManager().RelatedCollection("Shop.Customer_Orders", "Orders").IsLoaded())
	}

	require.NoError(t, c.LoadPropertyBatch(ctx, customers, "Orders", q))
	assert.EqualValues(t, 2, stats.QueryStats().Stats().TotalQueries, "loaded members are skipped")
	assert.Len(t, c.StateManager().Entries(objects.Unchanged), 6)

	err = c.LoadPropertyBatch(ctx, customers, "Name", q)
	assert.Error(t, err)
}
