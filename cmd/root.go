// Package cmd defines the stockwatch command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/stockwatch/internal/app"
	"github.com/JakeFAU/stockwatch/internal/config"
	"github.com/JakeFAU/stockwatch/internal/logging"
	"github.com/JakeFAU/stockwatch/internal/scheduler"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is what subcommands need from the wired services. Tests swap in a fake.
type App interface {
	Run(ctx context.Context) error
	RunOnce(ctx context.Context) scheduler.CycleReport
	Handler() http.Handler
	Config() config.Config
	Logger() *zap.Logger
	Close() error
}

// newApp loads configuration, builds the logger and wires every service.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "stockwatch",
		Short: "Polls product pages and alerts when items come back in stock.",
		Long: `stockwatch checks a configured list of product pages or JSON endpoints
on a fixed cadence, remembers each item's last known availability and sends
an alert when an item flips from out of stock to in stock.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./stockwatch.yaml, /etc/stockwatch, $HOME/.stockwatch)")
	cmd.AddCommand(newWatchCmd(), newCheckCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// closeApp releases services and flushes the logger, folding any close error
// into *errp.
func closeApp(appInstance App, errp *error) {
	if err := appInstance.Close(); err != nil && *errp == nil {
		*errp = fmt.Errorf("close services: %w", err)
	}
	_ = appInstance.Logger().Sync()
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
