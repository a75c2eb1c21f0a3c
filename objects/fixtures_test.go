package objects_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/syssam/ospace/metadata"
	"github.com/syssam/ospace/objects"
	"github.com/syssam/ospace/objects/dataclasses"
)

type Customer struct {
	ID     int
	Name   string
	Orders dataclasses.Collection
}

type Order struct {
	ID         int
	CustomerID int
	Total      float64
	Customer   *Customer
}

// Invoice implements every entity capability itself.
type Invoice struct {
	Number  string
	Amount  float64
	key     *dataclasses.EntityKey
	tracker dataclasses.EntityChangeTracker
	rm      *dataclasses.RelationshipManager
}

func (i *Invoice) EntityKey() *dataclasses.EntityKey       { return i.key }
func (i *Invoice) SetEntityKey(key *dataclasses.EntityKey) { i.key = key }

func (i *Invoice) SetChangeTracker(tracker dataclasses.EntityChangeTracker) { i.tracker = tracker }

func (i *Invoice) RelationshipManager() *dataclasses.RelationshipManager {
	if i.rm == nil {
		i.rm = dataclasses.Create(i)
	}
	return i.rm
}

func (i *Invoice) SetAmount(amount float64) {
	if i.tracker != nil {
		i.tracker.EntityMemberChanging("Amount")
	}
	i.Amount = amount
	if i.tracker != nil {
		i.tracker.EntityMemberChanged("Amount")
	}
}

// Ledger reports its own changes but has no relationship manager, so its
// proxy only intercepts the lazy Customer navigation.
type Ledger struct {
	ID       int
	Balance  float64
	Customer *Customer
	tracker  dataclasses.EntityChangeTracker
}

func (l *Ledger) SetChangeTracker(tracker dataclasses.EntityChangeTracker) { l.tracker = tracker }

type Address struct {
	Street string
	City   string
}

type Supplier struct {
	ID      int
	Name    string
	Address Address
	Code    []byte
}

type Basket struct {
	ID    int
	Items []*Order
}

// Shared hands out a relationship manager it may share with other instances.
type Shared struct {
	ID int
	rm *dataclasses.RelationshipManager
}

func (s *Shared) RelationshipManager() *dataclasses.RelationshipManager { return s.rm }

func customerType() *metadata.EntityType {
	return metadata.MustEntityType("Customer", reflect.TypeOf(Customer{}),
		metadata.Namespace("Shop"),
		metadata.Key("ID"),
		metadata.Property("ID"),
		metadata.Property("Name"),
		metadata.Collection("Orders",
			metadata.Relationship("Shop.Customer_Orders"),
			metadata.Roles("Customer", "Orders"),
			metadata.Target("Order")),
	)
}

func orderType() *metadata.EntityType {
	return metadata.MustEntityType("Order", reflect.TypeOf(Order{}),
		metadata.Namespace("Shop"),
		metadata.Key("ID"),
		metadata.Property("ID"),
		metadata.Property("CustomerID"),
		metadata.Property("Total"),
		metadata.Reference("Customer",
			metadata.Relationship("Shop.Customer_Orders"),
			metadata.Roles("Orders", "Customer"),
			metadata.Target("Customer")),
	)
}

func invoiceType() *metadata.EntityType {
	return metadata.MustEntityType("Invoice", reflect.TypeOf(Invoice{}),
		metadata.Namespace("Shop"),
		metadata.Key("Number"),
		metadata.Property("Number"),
		metadata.Property("Amount"),
	)
}

func ledgerType() *metadata.EntityType {
	return metadata.MustEntityType("Ledger", reflect.TypeOf(Ledger{}),
		metadata.Namespace("Shop"),
		metadata.Key("ID"),
		metadata.Property("ID"),
		metadata.Property("Balance"),
		metadata.Reference("Customer", metadata.Target("Customer")),
	)
}

func supplierType() *metadata.EntityType {
	return metadata.MustEntityType("Supplier", reflect.TypeOf(Supplier{}),
		metadata.Namespace("Shop"),
		metadata.Sealed(),
		metadata.Key("ID"),
		metadata.Property("ID"),
		metadata.Property("Name"),
		metadata.Property("Address"),
		metadata.Property("Code"),
	)
}

func basketType() *metadata.EntityType {
	return metadata.MustEntityType("Basket", reflect.TypeOf(Basket{}),
		metadata.Namespace("Shop"),
		metadata.Key("ID"),
		metadata.Property("ID"),
		metadata.Collection("Items",
			metadata.Relationship("Shop.Basket_Items"),
			metadata.Roles("Basket", "Items"),
			metadata.Target("Order")),
	)
}

func shop(t *testing.T) *metadata.Workspace {
	t.Helper()
	ws := metadata.NewWorkspace()
	require.NoError(t, ws.Register(customerType(), orderType(), invoiceType(), supplierType(), basketType()))
	return ws
}

// newContext returns a context with its own lazy-loading registry.
func newContext(t *testing.T, opts ...objects.Option) *objects.Context {
	t.Helper()
	return objects.NewContext(shop(t), append([]objects.Option{objects.WithRegistry(objects.NewRegistry())}, opts...)...)
}

// newCustomer returns a tracked-ready customer proxy with the given key.
func newCustomer(t *testing.T, c *objects.Context, id int, name string) any {
	t.Helper()
	p, err := c.CreateObject(reflect.TypeOf(Customer{}))
	require.NoError(t, err)
	require.NoError(t, c.Set(p, "ID", id))
	require.NoError(t, c.Set(p, "Name", name))
	return p
}

func newOrder(t *testing.T, c *objects.Context, id, customerID int) any {
	t.Helper()
	p, err := c.CreateObject(reflect.TypeOf(Order{}))
	require.NoError(t, err)
	require.NoError(t, c.Set(p, "ID", id))
	require.NoError(t, c.Set(p, "CustomerID", customerID))
	return p
}
