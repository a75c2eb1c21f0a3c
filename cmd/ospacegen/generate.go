package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/syssam/ospace/config"
	"github.com/syssam/ospace/metadata"
	"github.com/syssam/ospace/proxygen"
)

type generateOptions struct {
	config     string
	metadata   string
	out        string
	pkg        string
	baseImport string
	workers    int
	watch      bool
}

func newGenerateCmd() *cobra.Command {
	var opts generateOptions
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate proxy types from a metadata document",
		Long: `Generate writes <entity>_proxy.go for every entity type of the metadata
document that can be proxied. Flags override the configuration file.

Examples:
  ospacegen generate --metadata model.yaml --out ./proxies --base-import example.com/shop
  ospacegen generate --config ospace.yaml --watch
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			log, err := config.NewLogger(cfg.Log)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			if err := generate(cmd.Context(), cfg, log); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "proxies written to %s\n", cfg.Generate.Out)
			if !cfg.Metadata.Watch {
				return nil
			}
			return watch(cmd, cfg, log)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.config, "config", "", "configuration file (default ./ospace.yaml)")
	f.StringVar(&opts.metadata, "metadata", "", "metadata document")
	f.StringVar(&opts.out, "out", "", "output directory")
	f.StringVar(&opts.pkg, "package", "", "package name of the generated files")
	f.StringVar(&opts.baseImport, "base-import", "", "import path of the package declaring the entity types")
	f.IntVar(&opts.workers, "workers", 0, "files generated in parallel")
	f.BoolVar(&opts.watch, "watch", false, "regenerate when the metadata document changes")
	return cmd
}

// load reads the configuration and applies the flags set on the command line.
func (o *generateOptions) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.config)
	if err != nil {
		return nil, err
	}
	f := cmd.Flags()
	if f.Changed("metadata") {
		cfg.Metadata.Path = o.metadata
	}
	if f.Changed("out") {
		cfg.Generate.Out = o.out
	}
	if f.Changed("package") {
		cfg.Generate.Package = o.pkg
	}
	if f.Changed("base-import") {
		cfg.Generate.BaseImport = o.baseImport
	}
	if f.Changed("workers") {
		cfg.Generate.Workers = o.workers
	}
	if f.Changed("watch") {
		cfg.Metadata.Watch = o.watch
	}
	return cfg, cfg.Validate()
}

func generate(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	ws, err := metadata.LoadFile(cfg.Metadata.Path, nil)
	if err != nil {
		return err
	}
	return regenerate(ctx, ws, cfg, log)
}

func regenerate(ctx context.Context, ws *metadata.Workspace, cfg *config.Config, log *zap.Logger) error {
	g := proxygen.NewGenerator(ws, cfg.Generate.Out,
		proxygen.WithPackage(cfg.Generate.Package),
		proxygen.WithBaseImport(cfg.Generate.BaseImport),
		proxygen.WithWorkers(cfg.Generate.Workers),
		proxygen.WithLogger(log),
	)
	return g.Generate(ctx)
}

// watch regenerates on every change of the metadata document until the
// process is interrupted.
func watch(cmd *cobra.Command, cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, err := metadata.NewWatcher(cfg.Metadata.Path, nil,
		func(ws *metadata.Workspace) {
			if err := regenerate(ctx, ws, cfg, log); err != nil {
				log.Error("regenerate proxies", zap.Error(err))
			}
		},
		metadata.WithWatchLogger(log),
	)
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "watching %s, press Ctrl+C to stop\n", cfg.Metadata.Path)
	<-ctx.Done()
	return nil
}
