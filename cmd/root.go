// Package cmd defines and implements the CLI commands for the harvester executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-harvester/internal/app"
	"github.com/JakeFAU/article-harvester/internal/config"
	"github.com/JakeFAU/article-harvester/internal/engine"
)

const closeTimeout = 10 * time.Second

// App is the subset of *app.App the commands use.
type App interface {
	Logger() *zap.Logger
	Engine() *engine.Engine
	Categories() []engine.Category
	Serve(ctx context.Context) error
	Close(ctx context.Context) error
}

// newApp is the application factory. Tests replace it.
var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	return app.Build(ctx, cfg)
}

type runtimeKey struct{}

// runtime is what PersistentPreRunE hands to subcommands.
type runtime struct {
	app App
	cfg config.Config
}

func newRootCmd() *cobra.Command {
	var cfgFile, envFile string

	cmd := &cobra.Command{
		Use:           "harvester",
		Short:         "Crawls paginated blog listings into an article store.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `harvester walks the paginated listing pages of a blog, extracts every
article it links to, and upserts the records into the configured store.
The serve command exposes the stored articles over a read-only HTTP API.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadEnvFile(envFile); err != nil {
				return err
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey{}, &runtime{app: appInstance, cfg: cfg}))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML/JSON/TOML config file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")

	cmd.AddCommand(newCrawlCmd(), newServeCmd())
	return cmd
}

// withRuntime runs fn with the initialized services and closes them
// afterwards, whether or not fn fails.
func withRuntime(cmd *cobra.Command, fn func(rt *runtime) error) (err error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtime)
	if !ok || rt == nil || rt.app == nil {
		return errors.New("application services not initialized")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if cerr := rt.app.Close(ctx); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(rt)
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command
// context so crawls stop after the current page.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "harvester: %v\n", err)
		stop()
		os.Exit(1)
	}
}
