package proxy_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/ospace"
	"github.com/syssam/ospace/metadata"
	"github.com/syssam/ospace/objects/proxy"
)

func TestDescribe(t *testing.T) {
	t.Parallel()

	base, err := proxy.Describe(customerType())
	require.NoError(t, err)
	assert.True(t, base.Exported)
	assert.True(t, base.Struct)
	assert.False(t, base.HasRelationships)
	assert.False(t, base.Serializable)

	orders, ok := base.Member("Orders")
	require.True(t, ok)
	assert.True(t, orders.Collection)
	assert.True(t, orders.Getter)
	assert.True(t, orders.Setter)

	t.Run("tags", func(t *testing.T) {
		audit := metadata.MustEntityType("Audit", reflect.TypeOf(Audit{}),
			metadata.Property("ID"), metadata.Property("Comment"), metadata.Reference("Order"))
		base, err := proxy.Describe(audit)
		require.NoError(t, err)
		comment, _ := base.Member("Comment")
		assert.True(t, comment.Getter)
		assert.False(t, comment.Setter)

		tag := metadata.MustEntityType("Tag", reflect.TypeOf(Tag{}), metadata.Property("Name"))
		base, err = proxy.Describe(tag)
		require.NoError(t, err)
		name, _ := base.Member("Name")
		assert.False(t, name.Getter)
		assert.False(t, name.Setter)
	})

	t.Run("missing field", func(t *testing.T) {
		_, err := proxy.Describe(metadata.MustEntityType("Customer", reflect.TypeOf(Customer{}), metadata.Property("Email")))
		require.Error(t, err)
		assert.ErrorIs(t, err, ospace.ErrNotFound)
	})

	t.Run("unbound", func(t *testing.T) {
		_, err := proxy.Describe(metadata.MustEntityType("Customer", nil))
		assert.True(t, ospace.IsConfigurationError(err))
	})

	t.Run("native capabilities", func(t *testing.T) {
		base, err := proxy.Describe(invoiceType())
		require.NoError(t, err)
		assert.True(t, base.Serializable)

		base, err = proxy.Describe(metadata.MustEntityType("Native", reflect.TypeOf(Native{}), metadata.Property("ID")))
		require.NoError(t, err)
		assert.True(t, base.HasRelationships)
	})
}

func TestNewPlan(t *testing.T) {
	t.Parallel()

	t.Run("customer", func(t *testing.T) {
		et := customerType()
		base, err := proxy.Describe(et)
		require.NoError(t, err)
		plan := proxy.NewPlan(et, base)

		assert.False(t, plan.Empty())
		assert.True(t, plan.ImplementChangeTracker)
		assert.True(t, plan.ImplementRelationships)

		id, _ := plan.Member("ID")
		assert.Equal(t, proxy.ClaimScalar, id.Claim)
		assert.True(t, id.IsKey)
		assert.Equal(t, proxy.EqualPrimitive, id.Equality)

		name, _ := plan.Member("Name")
		assert.Equal(t, proxy.ClaimScalar, name.Claim)
		assert.False(t, name.IsKey)
		assert.False(t, name.LazyLoad)

		orders, _ := plan.Member("Orders")
		assert.Equal(t, proxy.ClaimCollection, orders.Claim)
		assert.True(t, orders.LazyLoad)
		assert.True(t, orders.BaseGetter)
		assert.True(t, orders.BaseSetter)
		assert.Equal(t, "Shop.Customer_Orders", orders.Relationship)
		assert.Equal(t, "Orders", orders.TargetRole)
	})

	t.Run("all or nothing", func(t *testing.T) {
		et := metadata.MustEntityType("Audit", reflect.TypeOf(Audit{}),
			metadata.Property("ID"), metadata.Property("Comment"), metadata.Reference("Order"))
		base, err := proxy.Describe(et)
		require.NoError(t, err)
		plan := proxy.NewPlan(et, base)

		assert.False(t, plan.ImplementChangeTracker)
		assert.False(t, plan.ImplementRelationships)
		for _, mp := range plan.Members {
			assert.Equal(t, proxy.ClaimNone, mp.Claim, mp.Name)
		}
		order, _ := plan.Member("Order")
		assert.True(t, order.LazyLoad, "lazy loading does not depend on the relationship implementor")
		assert.False(t, plan.Empty())
	})

	t.Run("many navigation needs a collection field", func(t *testing.T) {
		type Basket struct {
			ID    int
			Items []*Order
		}
		et := metadata.MustEntityType("Basket", reflect.TypeOf(Basket{}), metadata.Property("ID"), metadata.Collection("Items"))
		base, err := proxy.Describe(et)
		require.NoError(t, err)
		plan := proxy.NewPlan(et, base)
		assert.False(t, plan.ImplementRelationships)
		items, _ := plan.Member("Items")
		assert.Equal(t, proxy.ClaimNone, items.Claim)
	})

	t.Run("empty", func(t *testing.T) {
		et := metadata.MustEntityType("Tag", reflect.TypeOf(Tag{}), metadata.Property("Name"))
		base, err := proxy.Describe(et)
		require.NoError(t, err)
		assert.True(t, proxy.NewPlan(et, base).Empty())
	})

	t.Run("data contract", func(t *testing.T) {
		et := customerType(metadata.WithDataContract(true))
		base, _ := proxy.Describe(et)
		plan := proxy.NewPlan(et, base)
		require.NotNil(t, plan.DataContract)
		assert.True(t, plan.DataContract.IsReference)

		inv := invoiceType(metadata.WithDataContract(true))
		base, _ = proxy.Describe(inv)
		plan = proxy.NewPlan(inv, base)
		assert.True(t, plan.Serializable)
		assert.Nil(t, plan.DataContract, "serializable base types keep their own contract")
	})
}

func TestCanProxyType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		et   *metadata.EntityType
		want bool
	}{
		{"customer", customerType(), true},
		{"sealed", customerType(metadata.Sealed()), false},
		{"abstract", customerType(metadata.Abstract()), false},
		{"unexported", metadata.MustEntityType("unexported", reflect.TypeOf(unexported{}), metadata.Property("Name")), false},
		{"native relationships", metadata.MustEntityType("Native", reflect.TypeOf(Native{}), metadata.Property("ID")), false},
		{"not a struct", metadata.MustEntityType("Duration", reflect.TypeOf(time.Duration(0))), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, err := proxy.Describe(tt.et)
			require.NoError(t, err)
			assert.Equal(t, tt.want, proxy.CanProxyType(tt.et, base))
		})
	}
}

func TestDescribeDeclared(t *testing.T) {
	t.Parallel()

	et := metadata.MustEntityType("Customer", nil,
		metadata.Key("ID"),
		metadata.Property("ID", metadata.TypeName("int64")),
		metadata.Property("Code", metadata.TypeName("[]byte"), metadata.ReadOnly()),
		metadata.Collection("Orders"),
	)
	base := proxy.DescribeDeclared(et, "example.com/shop/model")
	assert.Equal(t, "example.com/shop/model", base.PkgPath)
	assert.Nil(t, base.Type)

	id, _ := base.Member("ID")
	assert.Equal(t, proxy.EqualPrimitive, id.Equality)
	code, _ := base.Member("Code")
	assert.Equal(t, proxy.EqualBytes, code.Equality)
	assert.False(t, code.Setter)
	orders, _ := base.Member("Orders")
	assert.True(t, orders.Collection)
	assert.Equal(t, "*dataclasses.EntityCollection", orders.TypeName)

	plan := proxy.NewPlan(et, base)
	assert.False(t, plan.ImplementRelationships, "the read-only Code member cannot be claimed")
}
