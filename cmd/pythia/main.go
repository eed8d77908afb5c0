// Command pythia builds the daily slate, predicts it and serves the results.
//
// Usage:
//
//	pythia serve
//	pythia run --leagues nfl,ncaaf --no-db
//	pythia results --days 3
//	pythia track
//	pythia train
//	pythia export
//	pythia venues --leagues ncaaf
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const (
	serviceName    = "pythia"
	serviceVersion = "1.0.0"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:          serviceName,
		Short:        "Sports slate scraper and SU/ATS/OU prediction service",
		Version:      serviceVersion,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "YAML overrides file (default $PYTHIA_CONFIG)")
	flags.StringSliceVar(&opts.leagues, "leagues", nil, "Leagues to process, comma separated (default $LEAGUES)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (default $LOG_LEVEL)")

	root.AddCommand(serveCmd(opts))
	root.AddCommand(runCmd(opts))
	root.AddCommand(resultsCmd(opts))
	root.AddCommand(trackCmd(opts))
	root.AddCommand(trainCmd(opts))
	root.AddCommand(exportCmd(opts))
	root.AddCommand(venuesCmd(opts))
	return root
}

// withApp runs fn with a connected app and a context cancelled on SIGINT or
// SIGTERM.
func withApp(opts *globalOptions, ao appOptions, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, opts, ao)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		a.log.Errorf("❌ %v", err)
		return err
	}
	return nil
}
