package proxygen

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/dave/jennifer/jen"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/tools/imports"

	"github.com/syssam/ospace"
	"github.com/syssam/ospace/metadata"
	"github.com/syssam/ospace/objects/proxy"
)

// Generator writes one Go source file per proxy-eligible entity type of a
// workspace.
type Generator struct {
	ws      *metadata.Workspace
	outDir  string
	pkg     string
	base    string
	workers int
	log     *zap.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithPackage sets the package name of the generated files. It defaults to
// the base name of the output directory.
func WithPackage(pkg string) Option {
	return func(g *Generator) {
		if pkg != "" {
			g.pkg = pkg
		}
	}
}

// WithWorkers sets the number of files generated in parallel.
func WithWorkers(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.workers = n
		}
	}
}

// WithLogger sets the logger of the generator.
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.log = l
		}
	}
}

// WithBaseImport sets the import path of the package declaring the entity
// types. It is required for entity types not bound to a Go type.
func WithBaseImport(path string) Option {
	return func(g *Generator) { g.base = path }
}

// NewGenerator returns a generator of the proxies of ws into outDir.
func NewGenerator(ws *metadata.Workspace, outDir string, opts ...Option) *Generator {
	g := &Generator{
		ws:      ws,
		outDir:  outDir,
		pkg:     filepath.Base(outDir),
		workers: runtime.GOMAXPROCS(0),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// target is one proxy to generate.
type target struct {
	plan    *proxy.Plan
	pkgPath string
}

// Plans returns the interception plans of the proxy-eligible entity types,
// ordered by entity name.
func (g *Generator) Plans() ([]*proxy.Plan, error) {
	targets, err := g.targets()
	if err != nil {
		return nil, err
	}
	plans := make([]*proxy.Plan, len(targets))
	for i, t := range targets {
		plans[i] = t.plan
	}
	return plans, nil
}

func (g *Generator) targets() ([]target, error) {
	var targets []target
	for _, et := range g.ws.EntityTypes() {
		base, pkgPath, err := g.describe(et)
		if err != nil {
			return nil, err
		}
		if !proxy.CanProxyType(et, base) {
			g.log.Debug("entity type cannot be proxied", zap.String("entity", et.FullName()))
			continue
		}
		plan := proxy.NewPlan(et, base)
		if plan.Empty() {
			g.log.Debug("entity type needs no proxy", zap.String("entity", et.FullName()))
			continue
		}
		targets = append(targets, target{plan: plan, pkgPath: pkgPath})
	}
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].plan.Entity.FullName() < targets[j].plan.Entity.FullName()
	})
	return targets, nil
}

func (g *Generator) describe(et *metadata.EntityType) (*proxy.BaseType, string, error) {
	if et.Type() != nil {
		base, err := proxy.Describe(et)
		if err != nil {
			return nil, "", err
		}
		return base, base.PkgPath, nil
	}
	if g.base == "" {
		return nil, "", ospace.NewConfigurationError(et.FullName(),
			"entity type is not bound to a Go type and no base import is set", nil)
	}
	return proxy.DescribeDeclared(et, g.base), g.base, nil
}

// Generate writes the proxy files. A file that fails to format is written
// next to its target with an ".error" suffix.
func (g *Generator) Generate(ctx context.Context) error {
	targets, err := g.targets()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(g.outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for _, t := range targets {
		eg.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return g.writeFile(t)
			}
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	g.log.Info("proxies generated", zap.String("dir", g.outDir), zap.Int("count", len(targets)))
	return nil
}

// FileName returns the name of the file generated for the entity type name.
func FileName(name string) string {
	return cases.Lower(language.Und).String(name) + "_proxy.go"
}

func (g *Generator) writeFile(t target) error {
	name := t.plan.Entity.FullName()
	f := jen.NewFile(g.pkg)
	f.HeaderComment("Code generated by ospacegen. DO NOT EDIT.")
	newEmitter(t.plan, t.pkgPath).emit(f)

	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return ospace.NewGenerationError(name, "render", "render proxy source", err)
	}
	path := filepath.Join(g.outDir, FileName(t.plan.Base.Name))
	formatted, err := imports.Process(path, buf.Bytes(), nil)
	if err != nil {
		debugPath := path + ".error"
		_ = os.WriteFile(debugPath, buf.Bytes(), 0o644)
		return ospace.NewGenerationError(name, "format",
			fmt.Sprintf("unformatted source written to %s", debugPath), err)
	}
	if err := os.WriteFile(path, formatted, 0o644); err != nil {
		return ospace.NewGenerationError(name, "write", path, err)
	}
	g.log.Debug("proxy file generated", zap.String("entity", name), zap.String("path", path))
	return nil
}
