package proxy

import (
	"fmt"

	"github.com/syssam/ospace"
	"github.com/syssam/ospace/metadata"
	"github.com/syssam/ospace/objects/dataclasses"
)

// InterceptorFactory returns the lazy-load interceptor of a navigation
// member. wrapperOf resolves the wrapper registered on a proxy instance.
// A nil interceptor leaves the getter without interception.
type InterceptorFactory func(member *metadata.Member, wrapperOf func(proxy any) (dataclasses.Owner, error)) Interceptor

// FKSetterReset clears the foreign-key setter guard of the context owning
// the wrapper. It receives nil for untracked proxies.
type FKSetterReset func(wrapper dataclasses.Owner)

// builder turns a plan into a published proxy type.
type builder struct {
	plan         *Plan
	module       *module
	associations map[string]*metadata.AssociationType
	interceptors InterceptorFactory
	resetFK      FKSetterReset
	onBuild      func(*metadata.EntityType) error
}

// build defines the proxy type and finalizes its capability table. Panics
// raised while synthesizing the type are returned as generation errors.
func (b *builder) build() (info *ProxyTypeInfo, err error) {
	et := b.plan.Entity
	defer func() {
		if r := recover(); r != nil {
			info, err = nil, ospace.NewGenerationError(et.FullName(), "define", fmt.Sprint(r), nil)
		}
	}()

	typ := b.module.define(b.plan.Base.Type, et.HashedDescription())
	info = &ProxyTypeInfo{
		proxyType:    typ,
		entity:       et,
		plan:         b.plan,
		module:       b.module.id,
		caps:         NewCapabilityTable(),
		associations: b.associations,
		equal:        make(map[string]Comparer),
	}
	if b.onBuild != nil {
		if err := b.onBuild(et); err != nil {
			return nil, ospace.NewGenerationError(et.FullName(), "hook", "build hook failed", err)
		}
	}
	if err := b.finalize(info); err != nil {
		return nil, err
	}
	return info, nil
}

// finalize assigns the capability table once, before the type is published.
func (b *builder) finalize(info *ProxyTypeInfo) error {
	wrapperOf := info.EntityWrapper
	interceptors := make(map[string]Interceptor)
	if b.interceptors != nil {
		for _, mp := range b.plan.LazyMembers() {
			if fn := b.interceptors(mp.Member, wrapperOf); fn != nil {
				interceptors[mp.Name] = fn
			}
		}
	}
	var reset func(any)
	if b.resetFK != nil {
		reset = func(p any) {
			w, _ := wrapperOf(p)
			b.resetFK(w)
		}
	}
	if err := info.caps.Finalize(interceptors, reset, BytesEqual); err != nil {
		return ospace.NewGenerationError(info.entity.FullName(), "finalize", "", err)
	}
	for _, mp := range b.plan.Members {
		if mp.IsKey && mp.Claim == ClaimScalar {
			info.equal[mp.Name] = KeyEqual(mp.Equality, info.caps.compareBytes)
		}
	}
	return nil
}
