package objects

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/syssam/ospace/metadata"
	"github.com/syssam/ospace/objects/dataclasses"
	"github.com/syssam/ospace/objects/proxy"
)

// RelatedLoader loads the entities related to the entity of w through the
// navigation member nav.
type RelatedLoader interface {
	LoadRelated(ctx context.Context, c *Context, w EntityWrapper, nav *metadata.Member) ([]any, error)
}

// LoaderFunc adapts a function to a RelatedLoader.
type LoaderFunc func(ctx context.Context, c *Context, w EntityWrapper, nav *metadata.Member) ([]any, error)

// LoadRelated implements RelatedLoader.
func (f LoaderFunc) LoadRelated(ctx context.Context, c *Context, w EntityWrapper, nav *metadata.Member) ([]any, error) {
	return f(ctx, c, w, nav)
}

// NewRegistry returns a proxy registry whose proxies lazy load navigation
// members through the context tracking them.
func NewRegistry(opts ...proxy.Option) *proxy.Registry {
	return proxy.NewRegistry(append([]proxy.Option{
		proxy.WithInterceptorFactory(lazyInterceptor),
		proxy.WithFKSetterReset(resetFKSetter),
	}, opts...)...)
}

// DefaultRegistry returns the process-wide registry shared by all contexts
// created without WithRegistry. Its proxy types live until the process
// exits.
var DefaultRegistry = sync.OnceValue(func() *proxy.Registry { return NewRegistry() })

// lazyInterceptor returns the getter interceptor of a navigation member.
// References holding a value are never loaded; collections are loaded once
// per related end.
func lazyInterceptor(nav *metadata.Member, wrapperOf func(any) (dataclasses.Owner, error)) proxy.Interceptor {
	mustBeNull := !nav.IsCollection()
	return func(p, value any) bool {
		if mustBeNull && isSet(value) {
			return true
		}
		owner, err := wrapperOf(p)
		if err != nil {
			return true
		}
		w, ok := owner.(EntityWrapper)
		if !ok || w.Context() == nil {
			return true
		}
		return !w.Context().deferredLoad(w, nav)
	}
}

// resetFKSetter clears the foreign key setter guard after a proxy setter.
func resetFKSetter(owner dataclasses.Owner) {
	w, ok := owner.(EntityWrapper)
	if !ok || w.Context() == nil {
		return
	}
	w.Context().osm.SetEntityInvokingFKSetter(nil)
}

// deferredLoad loads nav of w on behalf of a proxy getter. It reports
// whether the member may have changed.
func (c *Context) deferredLoad(w EntityWrapper, nav *metadata.Member) bool {
	if !c.lazyLoading || c.loader == nil || c.osm.TransactionManager().InOriginalValuesGetter() {
		return false
	}
	if w.MergeOption() == NoTracking && w.EntityKey() == nil {
		return false
	}
	end := relatedEnd(w, nav)
	if end.IsLoaded() || c.loading[end] {
		return false
	}
	c.loading[end] = true
	defer delete(c.loading, end)
	if err := c.load(context.Background(), w, nav); err != nil {
		c.onLoadError(fmt.Errorf("objects: lazy load %v.%s: %w", w.IdentityType(), nav.Name, err))
		return false
	}
	return true
}

// load runs the loader for nav of w and stores the result in the related
// end and in the navigation member.
func (c *Context) load(ctx context.Context, w EntityWrapper, nav *metadata.Member) error {
	related, err := c.loader.LoadRelated(ctx, c, w, nav)
	if err != nil {
		return err
	}
	if err := c.trackRelated(w, related); err != nil {
		return err
	}
	if err := fill(w, nav, related); err != nil {
		return err
	}
	c.log.Debug("navigation loaded",
		zap.Stringer("type", w.IdentityType()),
		zap.String("member", nav.Name),
		zap.Int("count", len(related)),
	)
	return nil
}

// fill stores related in the related end of nav and in the navigation
// member, and marks the end loaded.
func fill(w EntityWrapper, nav *metadata.Member, related []any) error {
	end := relatedEnd(w, nav)
	switch end := end.(type) {
	case *dataclasses.EntityCollection:
		for _, r := range related {
			end.Add(r)
			if err := w.CollectionAdd(end, r); err != nil {
				return err
			}
		}
	case *dataclasses.EntityReference:
		var value any
		if len(related) > 0 {
			value = related[0]
		}
		end.SetValue(value)
		if err := w.SetNavigationPropertyValue(end, value); err != nil {
			return err
		}
	}
	end.SetLoaded(true)
	return nil
}

// trackRelated attaches loaded entities when the entity of w is tracked.
func (c *Context) trackRelated(w EntityWrapper, related []any) error {
	if w.MergeOption() == NoTracking {
		return nil
	}
	if _, tracked := c.osm.FindEntityEntry(w.Entity()); !tracked {
		return nil
	}
	for _, r := range related {
		if err := c.track("", r, Unchanged); err != nil {
			return err
		}
	}
	return nil
}
