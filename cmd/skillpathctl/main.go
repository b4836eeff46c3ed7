// Command skillpathctl administers a SkillPath Hub deployment: schema
// migrations, the course registry, progress snapshots, credentials and
// bearer tokens for the API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skillpath/skillpath-hub/config"
	"github.com/skillpath/skillpath-hub/internal/app"
	"github.com/skillpath/skillpath-hub/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(config.Load).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// cli carries state shared by every subcommand.
type cli struct {
	loadConfig func() (*config.Config, error)
	verbose    bool
}

func newRootCmd(load func() (*config.Config, error)) *cobra.Command {
	c := &cli{loadConfig: load}

	root := &cobra.Command{
		Use:   "skillpathctl",
		Short: "Administer a SkillPath Hub deployment",
		Long: `skillpathctl talks to the same storage backends as the API server,
configured through the same environment variables (SKILLPATH_CONFIG,
DATABASE_URL, PROGRESS_BACKEND and the rest).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log to stderr")
	root.PersistentFlags().String("output", "json", "output format for documents: json or yaml")

	root.AddCommand(
		c.migrateCmd(),
		c.courseCmd(),
		c.progressCmd(),
		c.credentialCmd(),
		c.tokenCmd(),
		c.featuresCmd(),
	)
	return root
}

func (c *cli) config() (*config.Config, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func (c *cli) logger(cfg *config.Config) *logger.Logger {
	if !c.verbose {
		return logger.Nop()
	}
	opts := logger.DefaultOptions()
	opts.Output = os.Stderr
	opts.Format = logger.FormatConsole
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	return logger.New(opts)
}

// withApp runs fn against a fully wired application.
func (c *cli) withApp(cmd *cobra.Command, fn func(*app.App) error) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}
	a, err := app.New(cmd.Context(), cfg, c.logger(cfg))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
