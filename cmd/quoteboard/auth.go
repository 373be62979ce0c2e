package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/quoteboard/internal/auth"
	"github.com/rickgao/quoteboard/internal/config"
)

const authTimeout = 30 * time.Second

func newAuthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize the app and store OAuth tokens",
		Long: `Print the authorization URL, then read the URL the browser was redirected
to after login. The code it carries is exchanged for tokens, which are
written to auth.token_path.

The refresh token lasts seven days; run this again when it expires.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger, closer, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer closer.Close()

			client := auth.NewClient(authConfig(cfg), logger)
			defer client.Close()

			tokens := auth.NewTokenSource(client, cfg.Auth.TokenPath, cfg.Auth.RefreshInterval, logger)

			ctx, cancel := context.WithTimeout(cmd.Context(), authTimeout)
			defer cancel()
			return authorize(ctx, client, tokens, cmd.InOrStdin(), cmd.OutOrStdout(), cfg.Auth.TokenPath)
		},
	}
}

// authorize runs the interactive code exchange and stores the token.
func authorize(ctx context.Context, client *auth.Client, tokens *auth.TokenSource, in io.Reader, out io.Writer, path string) error {
	fmt.Fprintln(out, "Open this URL in a browser and log in:")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  "+client.AuthorizeURL())
	fmt.Fprintln(out)
	fmt.Fprint(out, "Paste the URL you were redirected to: ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read redirect url: %w", err)
	}

	code, err := auth.ParseRedirect(strings.TrimSpace(line))
	if err != nil {
		return err
	}

	tok, err := client.Exchange(ctx, code)
	if err != nil {
		return err
	}
	if err := tokens.Set(tok); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nTokens saved to %s (refresh token valid until %s)\n",
		path, tok.RefreshExpiry().Local().Format(time.RFC1123))
	return nil
}

func authConfig(cfg *config.BoardConfig) auth.Config {
	return auth.Config{
		AppKey:       cfg.App.Key,
		AppSecret:    cfg.App.Secret,
		CallbackURL:  cfg.App.CallbackURL,
		AuthorizeURL: cfg.API.AuthorizeURL,
		TokenURL:     cfg.API.TokenURL,
	}
}
