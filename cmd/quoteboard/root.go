package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rickgao/quoteboard/internal/config"
)

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath string
	envPath    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "quoteboard",
		Short: "Real-time level-one quote board",
		Long: `Quoteboard keeps the latest level-one quote for every configured equity
and futures symbol and renders them as a terminal board.

It provides:
  - A streamer session with login, subscriptions and reconnects
  - A REST quote poller for warm start and backup
  - An optional mirror of the latest snapshots to Postgres and Redis

Run "quoteboard auth" once to store OAuth tokens, then "quoteboard run".
"quoteboard tail" prints raw streamer traffic for debugging.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "quoteboard.yaml", "path to config file")
	root.PersistentFlags().StringVar(&opts.envPath, "env", ".env", "dotenv file loaded before the config")

	root.AddCommand(
		newRunCmd(opts),
		newAuthCmd(opts),
		newTailCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig loads the dotenv file, then the validated config.
func (o *rootOptions) loadConfig() (*config.BoardConfig, error) {
	if err := config.LoadEnvFile(o.envPath); err != nil {
		return nil, err
	}
	cfg, err := config.LoadAndValidate(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", o.configPath, err)
	}
	return cfg, nil
}
