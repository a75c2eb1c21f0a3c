package proxy_test

import (
	"reflect"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/ospace/metadata"
	"github.com/syssam/ospace/objects/dataclasses"
)

type Customer struct {
	ID     int
	Name   string
	Orders dataclasses.Collection
}

type Order struct {
	ID       int
	Customer *Customer
}

type Invoice struct {
	Number []byte
	Total  float64
	Order  *Order
}

func (i *Invoice) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeMulti(i.Number, i.Total)
}

func (i *Invoice) DecodeMsgpack(dec *msgpack.Decoder) error {
	return dec.DecodeMulti(&i.Number, &i.Total)
}

type Store struct {
	ID    int
	Items dataclasses.Collection
}

func (s *Store) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeInt(int64(s.ID))
}

func (s *Store) DecodeMsgpack(dec *msgpack.Decoder) error {
	id, err := dec.DecodeInt()
	s.ID = id
	return err
}

type Tag struct {
	Name string `ospace:"final"`
}

type Audit struct {
	ID      int
	Comment string `ospace:"readonly"`
	Order   *Order
}

type Native struct {
	ID int
	rm *dataclasses.RelationshipManager
}

func (n *Native) RelationshipManager() *dataclasses.RelationshipManager {
	if n.rm == nil {
		n.rm = dataclasses.Create(n)
	}
	return n.rm
}

type unexported struct {
	Name string
}

type tracker struct {
	changing []string
	changed  []string
	panicOn  string
}

func (t *tracker) EntityMemberChanging(member string) { t.changing = append(t.changing, member) }

func (t *tracker) EntityMemberChanged(member string) {
	if member == t.panicOn {
		panic("tracker failure")
	}
	t.changed = append(t.changed, member)
}

type owner struct{ entity any }

func (o owner) Entity() any { return o.entity }

func customerType(opts ...metadata.EntityOption) *metadata.EntityType {
	base := []metadata.EntityOption{
		metadata.Namespace("Shop"),
		metadata.Key("ID"),
		metadata.Property("ID"),
		metadata.Property("Name"),
		metadata.Collection("Orders"),
	}
	return metadata.MustEntityType("Customer", reflect.TypeOf(Customer{}), append(base, opts...)...)
}

func orderType() *metadata.EntityType {
	return metadata.MustEntityType("Order", reflect.TypeOf(Order{}),
		metadata.Namespace("Shop"),
		metadata.Key("ID"),
		metadata.Property("ID"),
		metadata.Reference("Customer", metadata.Relationship("Shop.Customer_Orders"), metadata.Roles("Orders", "Customer")),
	)
}

func invoiceType(opts ...metadata.EntityOption) *metadata.EntityType {
	base := []metadata.EntityOption{
		metadata.Namespace("Shop"),
		metadata.Key("Number"),
		metadata.Property("Number"),
		metadata.Property("Total"),
		metadata.Reference("Order"),
	}
	return metadata.MustEntityType("Invoice", reflect.TypeOf(Invoice{}), append(base, opts...)...)
}

func storeType() *metadata.EntityType {
	return metadata.MustEntityType("Store", reflect.TypeOf(Store{}),
		metadata.Namespace("Shop"),
		metadata.Key("ID"),
		metadata.Property("ID"),
		metadata.Collection("Items", metadata.Target("Order")),
	)
}
