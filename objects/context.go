package objects

import (
	"context"
	"fmt"
	"reflect"

	"github.com/go-openapi/inflect"
	"go.uber.org/zap"

	"github.com/syssam/ospace"
	"github.com/syssam/ospace/dialect"
	"github.com/syssam/ospace/metadata"
	"github.com/syssam/ospace/objects/dataclasses"
	"github.com/syssam/ospace/objects/proxy"
)

// Context tracks entities of one unit of work. It creates proxies, wraps
// entities, keeps them in its state manager and lazy loads their
// navigation members. A Context is not safe for concurrent use.
type Context struct {
	ws       *metadata.Workspace
	registry *proxy.Registry
	factory  *WrapperFactory
	osm      *ObjectStateManager
	driver   dialect.Driver
	loader   RelatedLoader
	log      *zap.Logger

	proxyCreation bool
	lazyLoading   bool
	onLoadError   func(error)
	loading       map[dataclasses.RelatedEnd]bool
}

// Option configures a Context.
type Option func(*Context)

// WithRegistry sets the proxy registry in place of the process-wide
// DefaultRegistry. Registries that should lazy load must be created with
// NewRegistry.
func WithRegistry(r *proxy.Registry) Option {
	return func(c *Context) { c.registry = r }
}

// WithLoader sets the loader of related entities.
func WithLoader(l RelatedLoader) Option {
	return func(c *Context) { c.loader = l }
}

// WithProxyCreation enables or disables proxy creation. It is enabled by
// default.
func WithProxyCreation(enabled bool) Option {
	return func(c *Context) { c.proxyCreation = enabled }
}

// WithLazyLoading enables or disables lazy loading. It is enabled by default.
func WithLazyLoading(enabled bool) Option {
	return func(c *Context) { c.lazyLoading = enabled }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Context) {
		if l != nil {
			c.log = l
		}
	}
}

// WithDriver sets the database driver used by Materialize.
func WithDriver(drv dialect.Driver) Option {
	return func(c *Context) { c.driver = drv }
}

// WithLoadErrorHandler sets the handler of lazy loading errors. Lazy loads
// run inside member reads, which cannot return errors. The default handler
// logs the error.
func WithLoadErrorHandler(h func(error)) Option {
	return func(c *Context) { c.onLoadError = h }
}

// NewContext returns a context over the entity types of ws. Without
// WithRegistry the context uses DefaultRegistry, which every such context in
// the process shares: proxy types built for one are reused by the others.
// Pass WithRegistry(NewRegistry()) for an isolated registry.
func NewContext(ws *metadata.Workspace, opts ...Option) *Context {
	c := &Context{
		ws:            ws,
		log:           zap.NewNop(),
		proxyCreation: true,
		lazyLoading:   true,
		loading:       make(map[dataclasses.RelatedEnd]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.ws == nil {
		c.ws = metadata.NewWorkspace()
	}
	if c.registry == nil {
		c.registry = DefaultRegistry()
	}
	if c.onLoadError == nil {
		c.onLoadError = func(err error) {
			c.log.Error("lazy loading failed", zap.Error(err))
		}
	}
	c.factory = NewWrapperFactory(c.registry, WithMetadata(c.ws))
	c.osm = NewObjectStateManager(c.factory, c.log)
	return c
}

// Workspace returns the metadata workspace.
func (c *Context) Workspace() *metadata.Workspace { return c.ws }

// Registry returns the proxy registry.
func (c *Context) Registry() *proxy.Registry { return c.registry }

// Factory returns the wrapper factory.
func (c *Context) Factory() *WrapperFactory { return c.factory }

// StateManager returns the state manager.
func (c *Context) StateManager() *ObjectStateManager { return c.osm }

// Driver returns the database driver, or nil.
func (c *Context) Driver() dialect.Driver { return c.driver }

// ProxyCreationEnabled reports whether CreateObject returns proxies.
func (c *Context) ProxyCreationEnabled() bool { return c.proxyCreation }

// LazyLoadingEnabled reports whether navigation reads load related entities.
func (c *Context) LazyLoadingEnabled() bool { return c.lazyLoading }

// SetLazyLoadingEnabled enables or disables lazy loading.
func (c *Context) SetLazyLoadingEnabled(enabled bool) { c.lazyLoading = enabled }

func (c *Context) entityType(t reflect.Type) (*metadata.EntityType, error) {
	et, ok := c.ws.EntityTypeOf(t)
	if !ok {
		return nil, fmt.Errorf("%w: entity type for %v", ospace.ErrNotFound, t)
	}
	return et, nil
}

// CreateProxyTypes builds the proxies of the given Go types, or of every
// entity type of the workspace when none are given.
func (c *Context) CreateProxyTypes(types ...reflect.Type) error {
	if len(types) == 0 {
		return c.registry.BuildAll(c.ws)
	}
	for _, t := range types {
		et, err := c.entityType(t)
		if err != nil {
			return err
		}
		if _, err := c.registry.GetOrBuild(et, c.ws); err != nil {
			return err
		}
	}
	return nil
}

// CreateObject returns a new instance of the entity type t: a proxy with
// initialized collections when proxy creation is enabled and t can be
// proxied, a *T otherwise.
func (c *Context) CreateObject(t reflect.Type) (any, error) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %v is not a struct type", ospace.ErrInvalidOperation, t)
	}
	if c.proxyCreation {
		if et, ok := c.ws.EntityTypeOf(t); ok {
			info, err := c.registry.GetOrBuild(et, c.ws)
			if err != nil {
				return nil, err
			}
			if info != nil {
				p := info.New()
				if err := info.InitializeCollections(p); err != nil {
					return nil, err
				}
				return p, nil
			}
		}
	}
	return reflect.New(t).Interface(), nil
}

// Wrap returns the wrapper of entity, reusing any wrapper the context
// already knows.
func (c *Context) Wrap(entity any) (EntityWrapper, error) {
	w, _, err := c.factory.WrapEntityUsingContext(entity, c)
	return w, err
}

// Entry returns the tracking entry of entity.
func (c *Context) Entry(entity any) (*EntityEntry, bool) {
	return c.osm.FindEntityEntry(entity)
}

// EntitySetName returns the default entity set of t: the plural of the
// entity type name.
func (c *Context) EntitySetName(t reflect.Type) string {
	if info, ok := c.registry.LookupByGeneratedType(t); ok && c.registry.IsProxyType(t) {
		return inflect.Pluralize(info.EntityType().Name())
	}
	if et, ok := c.ws.EntityTypeOf(t); ok {
		return inflect.Pluralize(et.Name())
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return inflect.Pluralize(t.Name())
}

// Get reads member of entity. Navigation members of proxies are lazy loaded.
func (c *Context) Get(entity any, member string) (any, error) {
	w, err := c.Wrap(entity)
	if err != nil {
		return nil, err
	}
	if w.access() == nil {
		return nil, fmt.Errorf("%w: cannot read %q of a nil entity", ospace.ErrInvalidOperation, member)
	}
	return w.access().get(member)
}

// Set writes member of entity and reports the change to its entry.
func (c *Context) Set(entity any, member string, value any) error {
	w, entry, err := c.factory.WrapEntityUsingContext(entity, c)
	if err != nil {
		return err
	}
	m := w.access()
	if m == nil {
		return fmt.Errorf("%w: cannot write %q of a nil entity", ospace.ErrInvalidOperation, member)
	}
	if entry == nil || c.isNavigation(w, member) {
		return m.set(member, value)
	}
	return w.SetCurrentValue(entry, member, value)
}

func (c *Context) isNavigation(w EntityWrapper, member string) bool {
	et := c.factory.EntityTypeOf(reflect.TypeOf(w.Entity()))
	if et == nil {
		return false
	}
	mem, ok := et.Member(member)
	return ok && mem.IsNavigation()
}

// Attach tracks entity and the entities reachable from its navigation
// members as unchanged. An empty entitySet selects the default set.
func (c *Context) Attach(entitySet string, entity any) error {
	return c.track(entitySet, entity, Unchanged)
}

// AddObject tracks entity and the untracked entities reachable from it as
// added, under temporary keys.
func (c *Context) AddObject(entitySet string, entity any) error {
	return c.track(entitySet, entity, Added)
}

func (c *Context) track(entitySet string, entity any, state EntityState) error {
	if !isSet(entity) {
		return fmt.Errorf("%w: cannot track a nil entity", ospace.ErrInvalidOperation)
	}
	tm := c.osm.TransactionManager()
	tm.BeginTrackProcessedEntities()
	defer tm.EndTrackProcessedEntities()
	return c.trackGraph(entitySet, entity, state)
}

func (c *Context) trackGraph(entitySet string, entity any, state EntityState) error {
	tm := c.osm.TransactionManager()
	if tm.Processed(entity) {
		return nil
	}
	w, entry, err := c.factory.WrapEntityUsingContext(entity, c)
	if err != nil {
		return err
	}
	tm.RecordWrapped(entity, w)
	if entry != nil {
		return nil
	}
	if entitySet == "" {
		entitySet = c.EntitySetName(reflect.TypeOf(entity))
	}
	if err := c.attachWrapper(w, entitySet, state, AppendOnly); err != nil {
		return err
	}
	return c.fixupGraph(w, state)
}

// attachWrapper adds w to the state manager under a permanent key, or a
// temporary one for added entities.
func (c *Context) attachWrapper(w EntityWrapper, entitySet string, state EntityState, mo MergeOption) error {
	key := w.EntityKey()
	if key == nil || (state == Added) != key.IsTemporary() {
		var err error
		if state == Added {
			key = dataclasses.NewTemporaryKey(entitySet)
		} else if key, err = c.osm.CreateEntityKey(entitySet, w.Entity()); err != nil {
			return err
		}
	}
	if _, err := c.osm.AddEntry(w, key, entitySet, state); err != nil {
		return err
	}
	w.AttachContext(c, entitySet, mo)
	return nil
}

// fixupGraph tracks the entities held by the navigation members of w and
// records them in its related ends.
func (c *Context) fixupGraph(w EntityWrapper, state EntityState) error {
	et := c.factory.EntityTypeOf(reflect.TypeOf(w.Entity()))
	if et == nil {
		return nil
	}
	for _, nav := range et.NavigationMembers() {
		value, err := w.access().getBase(nav.Name)
		if err != nil || !isSet(value) {
			continue
		}
		end := relatedEnd(w, nav)
		for _, related := range items(value) {
			if err := c.trackGraph("", related, state); err != nil {
				return err
			}
			switch end := end.(type) {
			case *dataclasses.EntityCollection:
				end.Add(related)
			case *dataclasses.EntityReference:
				end.SetValue(related)
			}
		}
	}
	return nil
}

// items returns the entities held by a navigation member value.
func items(value any) []any {
	if c, ok := value.(dataclasses.Collection); ok {
		return c.Items()
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice {
		out := make([]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			if e := rv.Index(i).Interface(); isSet(e) {
				out = append(out, e)
			}
		}
		return out
	}
	return []any{value}
}

// relatedEnd returns the related end backing nav in the relationship
// manager of w.
func relatedEnd(w EntityWrapper, nav *metadata.Member) dataclasses.RelatedEnd {
	rm := w.RelationshipManager()
	if nav.IsCollection() {
		return rm.RelatedCollection(nav.Navigation.Relationship, nav.Navigation.ToRole)
	}
	return rm.RelatedReference(nav.Navigation.Relationship, nav.Navigation.ToRole)
}

// DeleteObject marks entity deleted.
func (c *Context) DeleteObject(entity any) error {
	entry, ok := c.osm.FindEntityEntry(entity)
	if !ok {
		return fmt.Errorf("%w: entity %T is not tracked", ospace.ErrInvalidOperation, entity)
	}
	entry.Delete()
	return nil
}

// Detach stops tracking entity.
func (c *Context) Detach(entity any) error { return c.osm.Detach(entity) }

// DetectChanges detects the changes of every snapshot-tracked entity and
// returns the number of entities that changed.
func (c *Context) DetectChanges() int { return c.osm.DetectChanges() }

// AcceptAllChanges accepts the changes of every tracked entity.
func (c *Context) AcceptAllChanges() { c.osm.AcceptAllChanges() }

// LoadProperty loads the navigation member of entity through the loader,
// whether lazy loading is enabled or not.
func (c *Context) LoadProperty(ctx context.Context, entity any, member string) error {
	w, err := c.Wrap(entity)
	if err != nil {
		return err
	}
	nav, err := c.navigation(w, member)
	if err != nil {
		return err
	}
	if c.loader == nil {
		return ospace.NewConfigurationError("Context", "no related loader configured", nil)
	}
	return c.load(ctx, w, nav)
}

func (c *Context) navigation(w EntityWrapper, member string) (*metadata.Member, error) {
	if w.access() == nil {
		return nil, fmt.Errorf("%w: cannot load %q of a nil entity", ospace.ErrInvalidOperation, member)
	}
	et := c.factory.EntityTypeOf(reflect.TypeOf(w.Entity()))
	if et == nil {
		return nil, fmt.Errorf("%w: entity type for %v", ospace.ErrNotFound, w.IdentityType())
	}
	nav, ok := et.Member(member)
	if !ok || !nav.IsNavigation() {
		return nil, fmt.Errorf("%w: navigation member %q of %s", ospace.ErrNotFound, member, et.FullName())
	}
	return nav, nil
}
