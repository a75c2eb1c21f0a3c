package metadata_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/ospace"
	"github.com/syssam/ospace/metadata"
)

type Customer struct {
	ID   int
	Name string
}

func TestNewEntityType(t *testing.T) {
	t.Parallel()

	et, err := metadata.NewEntityType("Customer", reflect.TypeOf(&Customer{}),
		metadata.Namespace("Shop"),
		metadata.Key("ID"),
		metadata.Property("ID"),
		metadata.Property("Name"),
		metadata.Collection("Orders"),
		metadata.Reference("Account"),
	)
	require.NoError(t, err)

	assert.Equal(t, "Shop.Customer", et.FullName())
	assert.Equal(t, reflect.TypeOf(Customer{}), et.Type(), "pointer types are dereferenced")
	assert.True(t, et.IsKeyMember("ID"))
	assert.False(t, et.IsKeyMember("Name"))
	assert.Len(t, et.Members(), 4)

	t.Run("navigation defaults", func(t *testing.T) {
		orders, ok := et.Member("Orders")
		require.True(t, ok)
		require.True(t, orders.IsCollection())
		assert.Equal(t, "Order", orders.Navigation.Target)
		assert.Equal(t, "Shop.Customer_Orders", orders.Navigation.Relationship)
		assert.Equal(t, "Customer", orders.Navigation.FromRole)
		assert.Equal(t, "Orders", orders.Navigation.ToRole)

		account, ok := et.Member("Account")
		require.True(t, ok)
		assert.False(t, account.IsCollection())
		assert.Equal(t, "Account", account.Navigation.Target)
		assert.Equal(t, metadata.ZeroOrOne, account.Navigation.ToMultiplicity)
	})

	t.Run("navigation members", func(t *testing.T) {
		navs := et.NavigationMembers()
		require.Len(t, navs, 2)
		assert.Equal(t, "Orders", navs[0].Name)
		assert.Equal(t, "Account", navs[1].Name)
	})
}

func TestNewEntityTypeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts []metadata.EntityOption
		want string
	}{
		{
			name: "duplicate member",
			opts: []metadata.EntityOption{metadata.Property("Name"), metadata.Property("Name")},
			want: `duplicate member "Name"`,
		},
		{
			name: "undeclared key",
			opts: []metadata.EntityOption{metadata.Key("ID"), metadata.Property("Name")},
			want: `key member "ID" is not declared`,
		},
		{
			name: "navigation key",
			opts: []metadata.EntityOption{metadata.Key("Orders"), metadata.Collection("Orders")},
			want: "is a navigation property",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := metadata.NewEntityType("Customer", nil, tt.opts...)
			require.Error(t, err)
			assert.True(t, ospace.IsConfigurationError(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := metadata.NewEntityType("", nil)
	assert.True(t, ospace.IsConfigurationError(err))
}

func TestHashedDescription(t *testing.T) {
	t.Parallel()

	typ := reflect.TypeOf(Customer{})
	base := []metadata.EntityOption{metadata.Key("ID"), metadata.Property("ID"), metadata.Property("Name")}

	a := metadata.MustEntityType("Customer", typ, base...)
	b := metadata.MustEntityType("Customer", typ, base...)
	assert.Equal(t, a.HashedDescription(), b.HashedDescription(), "equal descriptions hash equally")
	assert.Len(t, a.HashedDescription(), 64)
	assert.Equal(t, strings.ToUpper(a.HashedDescription()), a.HashedDescription())

	variants := map[string][]metadata.EntityOption{
		"extra member":  append(append([]metadata.EntityOption{}, base...), metadata.Collection("Orders")),
		"readonly":      {metadata.Key("ID"), metadata.Property("ID"), metadata.Property("Name", metadata.ReadOnly())},
		"no key":        {metadata.Property("ID"), metadata.Property("Name")},
		"sealed":        append(append([]metadata.EntityOption{}, base...), metadata.Sealed()),
		"namespace":     append(append([]metadata.EntityOption{}, base...), metadata.Namespace("Other")),
		"data contract": append(append([]metadata.EntityOption{}, base...), metadata.WithDataContract(true)),
	}
	for name, opts := range variants {
		t.Run(name, func(t *testing.T) {
			c := metadata.MustEntityType("Customer", typ, opts...)
			assert.NotEqual(t, a.HashedDescription(), c.HashedDescription())
		})
	}
}

func TestMultiplicity(t *testing.T) {
	t.Parallel()

	for _, m := range []metadata.Multiplicity{metadata.ZeroOrOne, metadata.One, metadata.Many} {
		parsed, err := metadata.ParseMultiplicity(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
	parsed, err := metadata.ParseMultiplicity("many")
	require.NoError(t, err)
	assert.Equal(t, metadata.Many, parsed)

	_, err = metadata.ParseMultiplicity("2..3")
	assert.Error(t, err)
}
