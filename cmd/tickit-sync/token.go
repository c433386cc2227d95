package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tickitapp/tickit-sync/internal/auth"
	"github.com/tickitapp/tickit-sync/internal/config"
)

const (
	defaultTokenName = "default"
	hashPreviewLen   = 20
	rule             = "------------------------------------------------------------"
)

type tokenOptions struct {
	name       string
	list       bool
	revoke     string
	configPath string
}

func newTokenCmd() *cobra.Command {
	var opts tokenOptions

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate a new API token",
		Long: `Generate a device token and store its hash in the config file.

The plain token is shown once. When no config file exists, the [[tokens]]
entry is printed for manual setup instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.ResolvePath(opts.configPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case opts.list:
				return listTokens(out, path)
			case opts.revoke != "":
				return revokeToken(out, path, opts.revoke)
			default:
				return generateToken(out, path, opts.name)
			}
		},
	}

	cmd.Flags().StringVarP(&opts.name, "name", "n", defaultTokenName, "name/label for the token")
	cmd.Flags().BoolVar(&opts.list, "list", false, "list all configured tokens")
	cmd.Flags().StringVar(&opts.revoke, "revoke", "", "revoke a token by name")
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "config file path")
	cmd.MarkFlagsMutuallyExclusive("list", "revoke")
	return cmd
}

func configExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func listTokens(out io.Writer, path string) error {
	exists, err := configExists(path)
	if err != nil {
		return err
	}
	if !exists {
		fmt.Fprintf(out, "No config file found at %s\n", path)
		fmt.Fprintln(out, "Run 'tickit-sync init' to create one.")
		return nil
	}

	cfg, err := config.LoadFrom(path)
	if err != nil {
		return err
	}

	if len(cfg.Tokens) == 0 {
		fmt.Fprintln(out, "No tokens configured.")
		fmt.Fprintln(out, "Generate one with: tickit-sync token --name <device-name>")
		return nil
	}

	fmt.Fprintln(out, "Configured tokens:")
	fmt.Fprintln(out)
	bold := color.New(color.Bold)
	for _, t := range cfg.Tokens {
		fmt.Fprintf(out, "  %s - %s\n", bold.Sprint(t.Name), hashPreview(t.TokenHash))
	}
	return nil
}

// hashPreview truncates a stored hash for display.
func hashPreview(hash string) string {
	if len(hash) > hashPreviewLen {
		return hash[:hashPreviewLen] + "..."
	}
	return hash
}

func revokeToken(out io.Writer, path, name string) error {
	exists, err := configExists(path)
	if err != nil {
		return err
	}
	if !exists {
		fmt.Fprintf(out, "No config file found at %s\n", path)
		return nil
	}

	cfg, err := config.LoadFrom(path)
	if err != nil {
		return err
	}

	if !cfg.RemoveToken(name) {
		fmt.Fprintf(out, "Token '%s' not found.\n", name)
		return nil
	}
	if err := cfg.Save(path); err != nil {
		return err
	}

	color.New(color.FgYellow).Fprintf(out, "Revoked token '%s'.\n", name)
	return nil
}

func generateToken(out io.Writer, path, name string) error {
	if name == "" {
		name = defaultTokenName
	}

	exists, err := configExists(path)
	if err != nil {
		return err
	}

	var cfg *config.Config
	if exists {
		cfg, err = config.LoadFrom(path)
		if err != nil {
			return err
		}
		if slices.ContainsFunc(cfg.Tokens, func(t config.TokenConfig) bool { return t.Name == name }) {
			fmt.Fprintf(out, "Token '%s' already exists. Use --revoke first to replace it.\n", name)
			return nil
		}
	}

	token, err := auth.GenerateToken()
	if err != nil {
		return err
	}
	hash, err := auth.HashToken(token)
	if err != nil {
		return err
	}

	highlight := color.New(color.FgCyan, color.Bold)

	if exists {
		cfg.AddToken(name, hash)
		if err := cfg.Save(path); err != nil {
			return err
		}
		color.New(color.FgGreen).Fprintf(out, "Generated API token for '%s'\n\n", name)
		fmt.Fprintf(out, "Token: %s\n\n", highlight.Sprint(token))
	} else {
		fmt.Fprintf(out, "Generated API token for '%s':\n\n", name)
		fmt.Fprintf(out, "Token: %s\n\n", highlight.Sprint(token))
		fmt.Fprintln(out, "Add this to your server's config.toml:")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "  [[tokens]]")
		fmt.Fprintf(out, "  name = %q\n", name)
		fmt.Fprintf(out, "  token_hash = %q\n\n", hash)
	}

	printClientSetup(out, token)
	return nil
}

func printClientSetup(out io.Writer, token string) {
	fmt.Fprintln(out, rule)
	fmt.Fprintln(out, "MOBILE APP (tickit-mobile):")
	fmt.Fprintln(out, "   Settings > Sync Server: http://YOUR_SERVER_IP:3030")
	fmt.Fprintf(out, "   Settings > Sync Token: %s\n", token)
	fmt.Fprintln(out, "   Settings > Sync Enabled: ON")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "DESKTOP CLI (tickit):")
	fmt.Fprintln(out, "   Press 's' to open Settings, then configure:")
	fmt.Fprintln(out, "   * Sync Server: http://YOUR_SERVER_IP:3030")
	fmt.Fprintf(out, "   * Sync Token: %s\n", token)
	fmt.Fprintln(out, "   * Sync Enabled: ON")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "   Or add to ~/.config/tickit/config.toml:")
	fmt.Fprintln(out, "   [sync]")
	fmt.Fprintln(out, "   enabled = true")
	fmt.Fprintln(out, `   server = "http://YOUR_SERVER_IP:3030"`)
	fmt.Fprintf(out, "   token = %q\n", token)
	fmt.Fprintln(out, rule)
	color.New(color.FgYellow).Fprintln(out, "Save this token now - it cannot be retrieved later!")
}
