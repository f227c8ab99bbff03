package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/depotscan/internal/cache"
	"github.com/andresmejia3/depotscan/internal/config"
	"github.com/andresmejia3/depotscan/internal/logging"
	"github.com/andresmejia3/depotscan/internal/metrics"
	"github.com/andresmejia3/depotscan/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// localStore is the namespaced cache backend: a directory by default,
// PostgreSQL when a database is configured.
type localStore interface {
	Set(ctx context.Context, namespace, key string, value []byte) error
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Keys(ctx context.Context, namespace string) ([]string, error)
	Clear(ctx context.Context, namespace string) error
}

var (
	// Cfg is the loaded configuration shared by subcommands
	Cfg *config.Config
	// DB is the optional database connection (nil without --db / POSTGRES_HOST)
	DB *store.Store
	// Local is the cache backend the session purges at startup
	Local localStore
	// Logger is the structured logger
	Logger *zap.Logger
	// Metrics collects session counters for --metrics-file
	Metrics *metrics.Metrics

	cfgPath     string
	dbURL       string
	verbose     bool
	metricsFile string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "depotscan",
	Short:   "Depot screenshot recognition for the Arknights toolbox",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		Cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		// Flags beat the file and the environment
		if dbURL != "" {
			Cfg.DatabaseURL = dbURL
		}
		if metricsFile != "" {
			Cfg.MetricsFile = metricsFile
		}

		Logger, err = logging.New(Cfg.Logging, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		Metrics = metrics.New()

		if Cfg.DatabaseURL != "" {
			// Use the command's context (which will be cancellable) for the connection
			DB, err = store.New(cmd.Context(), Cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			Local = DB
		} else {
			Local = cache.NewFileStore(Cfg.Cache.Dir)
		}
		return nil
	},
}

// teardown runs after every command, failed ones included. Cobra skips
// PersistentPostRun when RunE returns an error.
func teardown() {
	if Cfg != nil && Logger != nil {
		if err := Metrics.WriteTextfile(Cfg.MetricsFile); err != nil {
			Logger.Warn("Failed to write metrics file", zap.Error(err))
		}
	}
	if DB != nil {
		// Use Background here because the main context might be cancelled already (due to Ctrl+C)
		DB.Close(context.Background())
		DB = nil
	}
	if Logger != nil {
		_ = Logger.Sync()
	}
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	err := rootCmd.ExecuteContext(ctx)
	teardown()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "depot.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string (enables scan history)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus textfile metrics on exit")
}
