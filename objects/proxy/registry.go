package proxy

import (
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/syssam/ospace"
	"github.com/syssam/ospace/metadata"
	"github.com/syssam/ospace/objects/dataclasses"
)

// Registry maps entity descriptions to their runtime proxy types. It builds
// each proxy type at most once and shares it between all callers; a type
// found ineligible is remembered as such. A Registry is safe for concurrent
// use and lives as long as the types it produced.
type Registry struct {
	mu      sync.RWMutex
	byName  map[identity]*entry
	byProxy map[reflect.Type]*ProxyTypeInfo
	modules map[string]*module

	// known holds the ids of every module that ever defined a proxy type.
	known  sync.Map
	flight singleflight.Group

	log          *zap.Logger
	interceptors InterceptorFactory
	resetFK      FKSetterReset
	onScan       func(*metadata.EntityType)
	onBuild      func(*metadata.EntityType) error
}

type identity struct {
	typ  reflect.Type
	name string
}

// entry is a cache slot; a nil info is a negative entry.
type entry struct {
	info *ProxyTypeInfo
	hash string
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithInterceptorFactory sets the factory of lazy-load interceptors installed
// on every proxy type built afterwards.
func WithInterceptorFactory(f InterceptorFactory) Option {
	return func(r *Registry) { r.interceptors = f }
}

// WithFKSetterReset sets the hook run after every intercepted scalar setter.
func WithFKSetterReset(f FKSetterReset) Option {
	return func(r *Registry) { r.resetFK = f }
}

// OnScan registers a hook called whenever a type is scanned for eligibility.
func OnScan(f func(*metadata.EntityType)) Option {
	return func(r *Registry) { r.onScan = f }
}

// OnBuild registers a hook called while a proxy type is being built. An
// error fails the build.
func OnBuild(f func(*metadata.EntityType) error) Option {
	return func(r *Registry) { r.onBuild = f }
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byName:  make(map[identity]*entry),
		byProxy: make(map[reflect.Type]*ProxyTypeInfo),
		modules: make(map[string]*module),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lookup returns the cached proxy of et without building it. A cached entry
// with a different description is an error.
func (r *Registry) Lookup(et *metadata.EntityType) (*ProxyTypeInfo, bool, error) {
	if et.Type() == nil {
		return nil, false, nil
	}
	r.mu.RLock()
	e, ok := r.byName[identity{et.Type(), et.FullName()}]
	r.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if err := e.validate(et); err != nil {
		return nil, true, err
	}
	return e.info, true, nil
}

func (e *entry) validate(et *metadata.EntityType) error {
	if e.info != nil {
		return e.info.ValidateType(et)
	}
	if e.hash != et.HashedDescription() {
		return newDuplicate(et, e.hash)
	}
	return nil
}

func newDuplicate(et *metadata.EntityType, cached string) error {
	return ospace.NewDuplicateTypeError(et.Type(), et.FullName(), cached, et.HashedDescription())
}

// GetOrBuild returns the proxy of et, building it on first use. It returns
// nil without error when et cannot be proxied. Association types reachable
// from the proxy are resolved in ws, or derived from et when ws is nil.
func (r *Registry) GetOrBuild(et *metadata.EntityType, ws *metadata.Workspace) (*ProxyTypeInfo, error) {
	if info, ok, err := r.Lookup(et); ok || err != nil {
		return info, err
	}
	if et.Type() == nil {
		return nil, nil
	}
	key := fmt.Sprintf("%s.%s|%s", et.Type().PkgPath(), et.Type().Name(), et.FullName())
	v, err, _ := r.flight.Do(key, func() (any, error) {
		// Re-check: another caller may have finished while we queued.
		r.mu.RLock()
		e, ok := r.byName[identity{et.Type(), et.FullName()}]
		r.mu.RUnlock()
		if ok {
			return e, nil
		}
		return r.create(et, ws)
	})
	if err != nil {
		return nil, err
	}
	e := v.(*entry)
	if err := e.validate(et); err != nil {
		return nil, err
	}
	return e.info, nil
}

// BuildAll builds the proxies of every bound entity type of ws. It stops at
// the first error.
func (r *Registry) BuildAll(ws *metadata.Workspace) error {
	for _, et := range ws.EntityTypes() {
		if et.Type() == nil {
			continue
		}
		if _, err := r.GetOrBuild(et, ws); err != nil {
			return err
		}
	}
	return nil
}

// create scans et and builds its proxy type. It runs at most once per
// identity at a time.
func (r *Registry) create(et *metadata.EntityType, ws *metadata.Workspace) (*entry, error) {
	if r.onScan != nil {
		r.onScan(et)
	}
	base, err := Describe(et)
	if err != nil {
		return nil, err
	}
	e := &entry{hash: et.HashedDescription()}
	plan := NewPlan(et, base)
	if !CanProxyType(et, base) || plan.Empty() {
		r.log.Debug("entity type is not proxied", zap.String("entity", et.FullName()))
		r.store(et, e)
		return e, nil
	}

	mod := r.module(base.PkgPath)
	b := &builder{
		plan:         plan,
		module:       mod,
		associations: ws.AssociationsOf(et),
		interceptors: r.interceptors,
		resetFK:      r.resetFK,
		onBuild:      r.onBuild,
	}
	info, err := b.build()
	if err != nil {
		r.discard(mod)
		r.log.Warn("proxy generation failed, module discarded",
			zap.String("entity", et.FullName()),
			zap.Stringer("module", mod.id),
			zap.Error(err),
		)
		return nil, err
	}
	e.info = info
	r.known.Store(mod.id.String(), struct{}{})
	r.store(et, e)
	r.log.Debug("proxy type built",
		zap.String("entity", et.FullName()),
		zap.String("hash", et.HashedDescription()),
		zap.Stringer("module", mod.id),
		zap.Int("intercepted", intercepted(plan)),
	)
	return e, nil
}

func intercepted(p *Plan) int {
	n := 0
	for i := range p.Members {
		if p.Members[i].Intercepted() {
			n++
		}
	}
	return n
}

func (r *Registry) store(et *metadata.EntityType, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[identity{et.Type(), et.FullName()}] = e
	if e.info != nil {
		r.byProxy[e.info.proxyType] = e.info
	}
}

func (r *Registry) module(pkgPath string) *module {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.modules[pkgPath]
	if !ok {
		m = newModule(pkgPath)
		r.modules[pkgPath] = m
	}
	return m
}

func (r *Registry) discard(m *module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.modules[m.pkgPath] == m {
		delete(r.modules, m.pkgPath)
	}
}

// IsProxyType reports whether t, or the type it points to, was defined by a
// module of this registry.
func (r *Registry) IsProxyType(t reflect.Type) bool {
	if t == nil {
		return false
	}
	id, ok := moduleOf(t)
	if !ok {
		return false
	}
	_, known := r.known.Load(id)
	return known
}

// LookupByGeneratedType returns the information of a proxy type. Pointer
// types are dereferenced.
func (r *Registry) LookupByGeneratedType(t reflect.Type) (*ProxyTypeInfo, bool) {
	if t == nil {
		return nil, false
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byProxy[t]
	return info, ok
}

// ProxyOf returns the information of the proxy type of entity, if entity is
// a proxy instance.
func (r *Registry) ProxyOf(entity any) (*ProxyTypeInfo, bool) {
	t := reflect.TypeOf(entity)
	if !r.IsProxyType(t) {
		return nil, false
	}
	return r.LookupByGeneratedType(t)
}

// KnownProxyTypes returns the struct types of every proxy built so far.
func (r *Registry) KnownProxyTypes() []reflect.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]reflect.Type, 0, len(r.byProxy))
	for t := range r.byProxy {
		types = append(types, t)
	}
	return types
}

// ProxyWrapper returns the wrapper registered on a proxy instance. It
// returns nil for non-proxies and proxies without a wrapper.
func (r *Registry) ProxyWrapper(entity any) (dataclasses.Owner, error) {
	info, ok := r.ProxyOf(entity)
	if !ok {
		return nil, nil
	}
	return info.EntityWrapper(entity)
}

// AssociationTypeFromProxy resolves a relationship name through the proxy
// type of entity.
func (r *Registry) AssociationTypeFromProxy(entity any, relationship string) (*metadata.AssociationType, bool) {
	info, ok := r.ProxyOf(entity)
	if !ok {
		return nil, false
	}
	return info.NavigationAssociationType(relationship)
}

// AssociationTypesFromProxy returns the association types reachable from the
// proxy type of entity, or nil.
func (r *Registry) AssociationTypesFromProxy(entity any) []*metadata.AssociationType {
	info, ok := r.ProxyOf(entity)
	if !ok {
		return nil
	}
	return info.AssociationTypes()
}

// BaseGetter returns a function reading property of declaring without proxy
// interception, for plain instances and proxies alike.
func (r *Registry) BaseGetter(declaring reflect.Type, property string) (func(entity any) (any, error), error) {
	declaring = deref(declaring)
	index, err := fieldIndex(declaring, property)
	if err != nil {
		return nil, err
	}
	return func(entity any) (any, error) {
		if info, ok := r.ProxyOf(entity); ok && info.ContainsBaseGetter(property) {
			return info.BaseGetter(entity, property)
		}
		v, err := r.baseValue(entity, declaring)
		if err != nil {
			return nil, err
		}
		return v.FieldByIndex(index).Interface(), nil
	}, nil
}

// BaseSetter returns a function writing property of declaring without proxy
// interception, for plain instances and proxies alike.
func (r *Registry) BaseSetter(declaring reflect.Type, property string) (func(entity, value any) error, error) {
	declaring = deref(declaring)
	index, err := fieldIndex(declaring, property)
	if err != nil {
		return nil, err
	}
	return func(entity, value any) error {
		if info, ok := r.ProxyOf(entity); ok && info.ContainsBaseSetter(property) {
			return info.BaseSetter(entity, property, value)
		}
		v, err := r.baseValue(entity, declaring)
		if err != nil {
			return err
		}
		f := v.FieldByIndex(index)
		rv, err := assignable(value, f.Type())
		if err != nil {
			return fmt.Errorf("proxy: set %v.%s: %w", declaring, property, err)
		}
		f.Set(rv)
		return nil
	}, nil
}

// baseValue returns the addressable struct value of declaring held by entity.
func (r *Registry) baseValue(entity any, declaring reflect.Type) (reflect.Value, error) {
	if info, ok := r.ProxyOf(entity); ok {
		base, err := info.Base(entity)
		if err != nil {
			return reflect.Value{}, err
		}
		entity = base
	}
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Type() != declaring {
		return reflect.Value{}, fmt.Errorf("proxy: %T is not a *%v", entity, declaring)
	}
	return v.Elem(), nil
}

func deref(t reflect.Type) reflect.Type {
	if t != nil && t.Kind() == reflect.Pointer {
		return t.Elem()
	}
	return t
}

func fieldIndex(declaring reflect.Type, property string) ([]int, error) {
	if declaring == nil || declaring.Kind() != reflect.Struct {
		return nil, fmt.Errorf("proxy: %v is not a struct type", declaring)
	}
	f, ok := declaring.FieldByName(property)
	if !ok {
		return nil, fmt.Errorf("proxy: %v has no field %q", declaring, property)
	}
	return f.Index, nil
}
