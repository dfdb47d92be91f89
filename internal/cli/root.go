// Package cli implements the mediavault command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fruitsalade/mediavault/internal/catalog"
	"github.com/fruitsalade/mediavault/internal/catalog/badgerstore"
	"github.com/fruitsalade/mediavault/internal/catalog/postgres"
	"github.com/fruitsalade/mediavault/internal/config"
	"github.com/fruitsalade/mediavault/internal/logging"
	"github.com/fruitsalade/mediavault/internal/media"
	"github.com/fruitsalade/mediavault/internal/storage"
	"github.com/fruitsalade/mediavault/internal/storage/factory"
)

var (
	cfgFile string
	verbose bool

	// Loaded by PersistentPreRunE.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "mediavault",
	Short: "Media ingestion service",
	Long: StyleTitle.Render("mediavault") + " - media ingestion service\n\n" +
		"Accepts uploads into a fixed set of root directories, deduplicates them\n" +
		"by content hash and derives JPEG thumbnails.",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, FormatError(err.Error()))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr at debug level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(tokenCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	cfg = c

	if cmd.Name() == serveCmd.Name() {
		return logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	}
	if verbose {
		return logging.Init(logging.Config{Level: "debug", Format: "console", OutputPath: "stderr"})
	}
	logging.InitNop()
	return nil
}

// app bundles the components every command that touches media needs.
type app struct {
	disks   *storage.Registry
	catalog catalog.Catalog
	media   *media.Service
}

func openApp(ctx context.Context) (*app, error) {
	cat, err := openCatalog(ctx, cfg)
	if err != nil {
		return nil, err
	}

	disks, err := factory.NewRegistry(ctx, cfg.Disks)
	if err != nil {
		cat.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}
	backend, err := disks.Get(cfg.Media.Disk)
	if err != nil {
		disks.Close()
		cat.Close()
		return nil, err
	}

	svc, err := media.NewService(cfg.Media, backend, cat)
	if err != nil {
		disks.Close()
		cat.Close()
		return nil, err
	}
	return &app{disks: disks, catalog: cat, media: svc}, nil
}

func (a *app) Close() {
	if err := a.catalog.Close(); err != nil {
		logging.Warn("closing catalog", zap.Error(err))
	}
	a.disks.Close()
}

func openCatalog(ctx context.Context, c *config.Config) (catalog.Catalog, error) {
	switch c.CatalogDriver {
	case config.DriverPostgres:
		logging.Info("connecting to PostgreSQL...")
		store, err := postgres.New(c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		return store, nil
	case config.DriverBadger:
		logging.Info("opening badger catalog", zap.String("path", c.BadgerPath))
		store, err := badgerstore.Open(c.BadgerPath)
		if err != nil {
			return nil, fmt.Errorf("open badger catalog: %w", err)
		}
		return store, nil
	default:
		logging.Warn("using in-memory catalog; records are lost on exit")
		return catalog.NewMemory(), nil
	}
}

// principalFlags adds --as and --role to commands acting on behalf of a user.
func principalFlags(cmd *cobra.Command, id *string, roles *[]string) {
	cmd.Flags().StringVar(id, "as", "cli", "principal ID recorded as the creator")
	cmd.Flags().StringSliceVar(roles, "role", nil, "role held by the principal (repeatable)")
}
