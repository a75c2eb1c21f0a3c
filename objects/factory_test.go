package objects_test

import (
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/ospace"
	"github.com/syssam/ospace/objects"
	"github.com/syssam/ospace/objects/dataclasses"
	"github.com/syssam/ospace/objects/proxy"
)

func TestCreateNewWrapper(t *testing.T) {
	t.Parallel()

	c := newContext(t)
	f := c.Factory()

	t.Run("nil", func(t *testing.T) {
		w, err := f.CreateNewWrapper(nil, nil)
		require.NoError(t, err)
		assert.Same(t, objects.NullWrapper(), w)
		w, err = f.CreateNewWrapper((*Customer)(nil), nil)
		require.NoError(t, err)
		assert.Same(t, objects.NullWrapper(), w)
	})

	t.Run("plain entity", func(t *testing.T) {
		cust := &Customer{ID: 1}
		key := dataclasses.NewEntityKey("Customers", dataclasses.KeyMember{Name: "ID", Value: 1})
		w, err := f.CreateNewWrapper(cust, key)
		require.NoError(t, err)
		require.IsType(t, &objects.EntityWrapperWithoutRelationships{}, w)
		assert.Same(t, cust, w.Entity())
		assert.Equal(t, reflect.TypeOf(Customer{}), w.IdentityType())
		assert.Nil(t, w.ProxyInfo())
		assert.True(t, w.OwnsRelationshipManager())
		assert.Same(t, cust, w.RelationshipManager().Entity())
		assert.Equal(t, objects.EntityWrapper(w), w.RelationshipManager().Owner())
		assert.Same(t, key, w.EntityKey())
		assert.Nil(t, w.EntityKeyFromEntity(), "the key lives on the wrapper")

		other, err := f.CreateNewWrapper(&Customer{ID: 2}, nil)
		require.NoError(t, err)
		assert.Nil(t, other.EntityKey(), "keys are per instance")
	})

	t.Run("entity with every capability", func(t *testing.T) {
		inv := &Invoice{Number: "A-1"}
		key := dataclasses.NewEntityKey("Invoices", dataclasses.KeyMember{Name: "Number", Value: "A-1"})
		w, err := f.CreateNewWrapper(inv, key)
		require.NoError(t, err)
		require.IsType(t, &objects.LightweightEntityWrapper{}, w)
		assert.False(t, w.OwnsRelationshipManager())
		assert.Same(t, inv.RelationshipManager(), w.RelationshipManager())
		assert.Same(t, key, inv.key, "the key is stored on the entity")
		assert.Same(t, key, w.EntityKeyFromEntity())

		w.SetEntityKey(nil)
		assert.Nil(t, inv.key)
	})

	t.Run("proxy", func(t *testing.T) {
		p, err := c.CreateObject(reflect.TypeOf(Customer{}))
		require.NoError(t, err)
		w, err := f.CreateNewWrapper(p, nil)
		require.NoError(t, err)
		require.IsType(t, &objects.EntityWrapperWithRelationships{}, w)
		assert.Equal(t, reflect.TypeOf(Customer{}), w.IdentityType(), "proxies report their base type")
		require.NotNil(t, w.ProxyInfo())
		assert.False(t, w.OwnsRelationshipManager())

		registered, err := w.ProxyInfo().EntityWrapper(p)
		require.NoError(t, err)
		assert.Equal(t, objects.EntityWrapper(w), registered)
		rel, err := w.ProxyInfo().Relationships(p)
		require.NoError(t, err)
		assert.Same(t, rel.RelationshipManager(), w.RelationshipManager())
	})

	t.Run("nil relationship manager", func(t *testing.T) {
		_, err := f.CreateNewWrapper(&Shared{ID: 1}, nil)
		assert.True(t, ospace.IsConfigurationError(err))
	})

	t.Run("shared relationship manager", func(t *testing.T) {
		rm := dataclasses.NewRelationshipManager()
		_, err := f.CreateNewWrapper(&Shared{ID: 1, rm: rm}, nil)
		require.NoError(t, err)
		_, err = f.CreateNewWrapper(&Shared{ID: 2, rm: rm}, nil)
		assert.True(t, ospace.IsIdentityError(err))
	})

	t.Run("not a struct pointer", func(t *testing.T) {
		_, err := f.CreateNewWrapper(Customer{}, nil)
		assert.ErrorIs(t, err, ospace.ErrInvalidOperation)
	})
}

func TestWrapEntityUsingStateManager(t *testing.T) {
	t.Parallel()

	c := newContext(t)
	f := c.Factory()

	t.Run("proxy wrapper is reused", func(t *testing.T) {
		p := newCustomer(t, c, 1, "Ada")
		w1, entry, err := f.WrapEntityUsingStateManager(p, nil)
		require.NoError(t, err)
		assert.Nil(t, entry)
		w2, _, err := f.WrapEntityUsingStateManager(p, nil)
		require.NoError(t, err)
		assert.Same(t, w1, w2)
	})

	t.Run("relationship manager owner is reused", func(t *testing.T) {
		inv := &Invoice{Number: "A-2"}
		w1, err := f.CreateNewWrapper(inv, nil)
		require.NoError(t, err)
		w2, _, err := f.WrapEntityUsingStateManager(inv, nil)
		require.NoError(t, err)
		assert.Same(t, w1, w2)
	})

	t.Run("owner wrapping another entity", func(t *testing.T) {
		rm := dataclasses.NewRelationshipManager()
		_, err := f.CreateNewWrapper(&Shared{ID: 1, rm: rm}, nil)
		require.NoError(t, err)
		_, _, err = f.WrapEntityUsingStateManager(&Shared{ID: 2, rm: rm}, nil)
		assert.True(t, ospace.IsIdentityError(err))
	})

	t.Run("nil relationship manager", func(t *testing.T) {
		_, _, err := f.WrapEntityUsingStateManager(&Shared{ID: 3}, nil)
		assert.True(t, ospace.IsConfigurationError(err))
	})

	t.Run("plain entities get a new wrapper", func(t *testing.T) {
		cust := &Customer{ID: 4}
		w1, _, err := f.WrapEntityUsingStateManager(cust, nil)
		require.NoError(t, err)
		w2, _, err := f.WrapEntityUsingStateManager(cust, nil)
		require.NoError(t, err)
		assert.NotSame(t, w1, w2)
	})

	t.Run("processed entities", func(t *testing.T) {
		osm := objects.NewObjectStateManager(f, nil)
		tm := osm.TransactionManager()
		cust := &Customer{ID: 5}

		tm.BeginTrackProcessedEntities()
		tm.BeginTrackProcessedEntities()
		w1, _, err := f.WrapEntityUsingStateManager(cust, osm)
		require.NoError(t, err)
		assert.True(t, tm.Processed(cust))
		tm.EndTrackProcessedEntities()
		w2, _, err := f.WrapEntityUsingStateManager(cust, osm)
		require.NoError(t, err)
		assert.Same(t, w1, w2, "nested calls share the processed set")
		tm.EndTrackProcessedEntities()

		assert.False(t, tm.TrackProcessedEntities())
		w3, _, err := f.WrapEntityUsingStateManager(cust, osm)
		require.NoError(t, err)
		assert.NotSame(t, w1, w3)
	})

	t.Run("tracked entity", func(t *testing.T) {
		cust := &Customer{ID: 6}
		require.NoError(t, c.Attach("", cust))
		w, entry, err := f.WrapEntityUsingContext(cust, c)
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Same(t, entry.Wrapper(), w)
		assert.Same(t, c, w.Context())
		assert.Equal(t, "Customers", w.EntitySet())
	})

	t.Run("nil", func(t *testing.T) {
		w, entry, err := f.WrapEntityUsingContext(nil, c)
		require.NoError(t, err)
		assert.Nil(t, entry)
		assert.Same(t, objects.NullWrapper(), w)
	})
}

func TestWrapperFactory_Concurrent(t *testing.T) {
	t.Parallel()

	f := objects.NewWrapperFactory(nil, objects.WithMetadata(shop(t)))
	require.NotNil(t, f.Registry())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w, err := f.CreateNewWrapper(&Order{ID: i}, nil)
			assert.NoError(t, err)
			assert.IsType(t, &objects.EntityWrapperWithoutRelationships{}, w)
		}(i)
	}
	wg.Wait()
}

func TestUpdateNoTrackingWrapper(t *testing.T) {
	t.Parallel()

	c := newContext(t)
	f := c.Factory()
	cust := &Customer{ID: 7}
	w, err := f.CreateNewWrapper(cust, nil)
	require.NoError(t, err)

	require.NoError(t, f.UpdateNoTrackingWrapper(w, c, "Customers"))
	assert.Equal(t, "Customers(ID=7)", w.EntityKey().String())
	assert.Same(t, c, w.Context())
	assert.Equal(t, objects.NoTracking, w.MergeOption())
	_, tracked := c.Entry(cust)
	assert.False(t, tracked)
}

func TestNullWrapper(t *testing.T) {
	t.Parallel()

	w := objects.NullWrapper()
	assert.Nil(t, w.Entity())
	assert.Nil(t, w.IdentityType())
	assert.Nil(t, w.ProxyInfo())
	assert.Nil(t, w.RelationshipManager())
	assert.Nil(t, w.EntityKey())
	assert.Nil(t, w.Context())
	assert.Equal(t, objects.NoTracking, w.MergeOption())

	end := dataclasses.NewRelationshipManager().RelatedCollection("Shop.Customer_Orders", "Orders")
	assert.NoError(t, w.CollectionAdd(end, &Order{}))
	removed, err := w.CollectionRemove(end, &Order{})
	assert.NoError(t, err)
	assert.False(t, removed)
	v, err := w.NavigationPropertyValue(end)
	assert.NoError(t, err)
	assert.Nil(t, v)
	assert.NoError(t, w.SetCurrentValue(nil, "Name", "x"))
}

func TestBaseOf(t *testing.T) {
	t.Parallel()

	c := newContext(t)
	p := newCustomer(t, c, 1, "Ada")
	base, ok := proxy.BaseOf(p)
	require.True(t, ok)
	assert.Equal(t, "Ada", base.(*Customer).Name)
	_, ok = proxy.BaseOf(&Customer{})
	assert.False(t, ok)
}
