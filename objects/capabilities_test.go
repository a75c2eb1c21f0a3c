package objects_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/ospace"
	"github.com/syssam/ospace/objects"
)

func TestCapabilities_Selection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		caps    objects.Capabilities
		wrapper objects.WrapperKind
		kinds   objects.StrategyKinds
	}{
		{
			name:    "plain",
			caps:    objects.Capabilities{},
			wrapper: objects.NoRelationshipsWrapper,
			kinds:   objects.StrategyKinds{Accessor: objects.PocoAccessor, Tracking: objects.SnapshotTracking, Key: objects.PocoKey},
		},
		{
			name:    "every capability",
			caps:    objects.Capabilities{HasKey: true, HasChangeTracker: true, HasRelationships: true},
			wrapper: objects.LightweightWrapper,
			kinds:   objects.StrategyKinds{Accessor: objects.NoAccessor, Tracking: objects.NotifyingTracking, Key: objects.EntityOwnedKey},
		},
		{
			name:    "relationships only",
			caps:    objects.Capabilities{HasRelationships: true},
			wrapper: objects.RelationshipsWrapper,
			kinds:   objects.StrategyKinds{Accessor: objects.NoAccessor, Tracking: objects.SnapshotTracking, Key: objects.PocoKey},
		},
		{
			name:    "key and tracker",
			caps:    objects.Capabilities{HasKey: true, HasChangeTracker: true},
			wrapper: objects.NoRelationshipsWrapper,
			kinds:   objects.StrategyKinds{Accessor: objects.PocoAccessor, Tracking: objects.NotifyingTracking, Key: objects.EntityOwnedKey},
		},
		{
			name:    "proxy",
			caps:    objects.Capabilities{HasChangeTracker: true, HasRelationships: true, IsProxy: true},
			wrapper: objects.RelationshipsWrapper,
			kinds:   objects.StrategyKinds{Accessor: objects.PocoAccessor, Tracking: objects.NotifyingTracking, Key: objects.PocoKey},
		},
		{
			name:    "proxy of a keyed type",
			caps:    objects.Capabilities{HasKey: true, HasChangeTracker: true, HasRelationships: true, IsProxy: true},
			wrapper: objects.RelationshipsWrapper,
			kinds:   objects.StrategyKinds{Accessor: objects.PocoAccessor, Tracking: objects.NotifyingTracking, Key: objects.EntityOwnedKey},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wrapper, tt.caps.WrapperKind())
			assert.Equal(t, tt.kinds, tt.caps.StrategyKinds())
		})
	}
}

func TestWrapperFactory_Capabilities(t *testing.T) {
	t.Parallel()

	c := newContext(t)
	f := c.Factory()

	caps, err := f.Capabilities(reflect.TypeOf(&Invoice{}))
	require.NoError(t, err)
	assert.Equal(t, objects.Capabilities{HasKey: true, HasChangeTracker: true, HasRelationships: true}, caps)

	caps, err = f.Capabilities(reflect.TypeOf(&Customer{}))
	require.NoError(t, err)
	assert.Equal(t, objects.Capabilities{}, caps)
	assert.Equal(t, "Shop.Customer", f.EntityTypeOf(reflect.TypeOf(&Customer{})).FullName())

	p, err := c.CreateObject(reflect.TypeOf(Customer{}))
	require.NoError(t, err)
	caps, err = f.Capabilities(reflect.TypeOf(p))
	require.NoError(t, err)
	assert.True(t, caps.IsProxy)
	assert.True(t, caps.HasChangeTracker)
	assert.True(t, caps.HasRelationships)
	assert.False(t, caps.HasKey)
	assert.Equal(t, "Shop.Customer", f.EntityTypeOf(reflect.TypeOf(p)).FullName())

	_, err = f.Capabilities(reflect.TypeOf(Customer{}))
	assert.ErrorIs(t, err, ospace.ErrInvalidOperation)
	assert.Nil(t, f.EntityTypeOf(reflect.TypeOf(0)))
}

func TestStringers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "lightweight", objects.LightweightWrapper.String())
	assert.Equal(t, "without-relationships", objects.NoRelationshipsWrapper.String())
	assert.Equal(t, "no-tracking", objects.NoTracking.String())
	assert.Equal(t, "overwrite-changes", objects.OverwriteChanges.String())
	assert.Equal(t, "added|modified", (objects.Added | objects.Modified).String())
	assert.Equal(t, "EntityState(0)", objects.EntityState(0).String())
	assert.Equal(t, "key=true tracker=false relationships=false proxy=false", objects.Capabilities{HasKey: true}.String())
}
