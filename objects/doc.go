// Package objects gives the rest of the runtime one way to reach an entity's
// key, relationships and change tracking, whatever capabilities the entity
// type implements and whether the instance is a runtime proxy.
//
// Entities are always reached through an EntityWrapper. The WrapperFactory
// picks the wrapper form and the strategies once per Go type:
//
//	f := objects.NewWrapperFactory(registry)
//	w, err := f.CreateNewWrapper(customer, nil)
//
// A Context ties a metadata workspace, a proxy registry, an
// ObjectStateManager and an optional database driver together, and is the
// usual entry point:
//
//	ctx := objects.NewContext(ws, objects.WithDriver(drv))
//	c, err := ctx.CreateObject(customerType)
//	err = ctx.AddObject("Customers", c)
package objects
